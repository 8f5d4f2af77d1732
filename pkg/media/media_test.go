package media

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestBuildExtractArgs(t *testing.T) {
	args := buildExtractArgs("/in/talk.mp4", "/out/talk.wav")

	want := []string{
		"-y", "-nostdin", "-hide_banner", "-loglevel", "error",
		"-i", "/in/talk.mp4",
		"-vn", "-acodec", "pcm_s16le", "-ar", "16000", "-ac", "1",
		"-f", "wav",
		"/out/talk.wav",
	}
	if len(args) != len(want) {
		t.Fatalf("got %d args, want %d: %v", len(args), len(want), args)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Errorf("arg[%d] = %q, want %q", i, args[i], want[i])
		}
	}
}

func TestExtractMissingBinary(t *testing.T) {
	f := NewFFmpeg("/nonexistent/ffmpeg-for-test")
	err := f.Extract(context.Background(), "in.mp4", t.TempDir()+"/out.wav")
	if err == nil {
		t.Fatal("expected error for missing binary")
	}
	if !strings.Contains(err.Error(), "media: ffmpeg") {
		t.Errorf("error %q missing package prefix", err)
	}
}

func TestProbeMissingBinary(t *testing.T) {
	f := &FFmpeg{ProbePath: "/nonexistent/ffprobe-for-test"}
	_, err := f.Probe(context.Background(), "in.mp4")
	if err == nil {
		t.Fatal("expected error for missing binary")
	}
}

func TestParseProbeDuration(t *testing.T) {
	tests := []struct {
		name    string
		out     string
		want    time.Duration
		wantErr bool
	}{
		{name: "integer seconds", out: "90\n", want: 90 * time.Second},
		{name: "fractional", out: "12.345\n", want: 12345 * time.Millisecond},
		{name: "surrounding space", out: "  7.5  ", want: 7500 * time.Millisecond},
		{name: "empty", out: "", wantErr: true},
		{name: "garbage", out: "N/A", wantErr: true},
		{name: "negative", out: "-3", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseProbeDuration(tt.out)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseProbeDuration(%q): expected error", tt.out)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseProbeDuration(%q): %v", tt.out, err)
			}
			if got != tt.want {
				t.Errorf("parseProbeDuration(%q) = %v, want %v", tt.out, got, tt.want)
			}
		})
	}
}

func TestStderrTail(t *testing.T) {
	if got := stderrTail(""); got != "(no output)" {
		t.Errorf("empty tail = %q", got)
	}
	long := "a\nb\nc\nd\ne\nf"
	if got := stderrTail(long); got != "c | d | e | f" {
		t.Errorf("tail = %q, want last four lines", got)
	}
	if got := stderrTail("single"); got != "single" {
		t.Errorf("tail = %q", got)
	}
}

func TestProbeBinaryDerivation(t *testing.T) {
	tests := []struct {
		name  string
		f     FFmpeg
		want  string
		wantF string
	}{
		{name: "defaults", f: FFmpeg{}, want: "ffprobe", wantF: "ffmpeg"},
		{name: "explicit probe", f: FFmpeg{ProbePath: "/opt/bin/ffprobe"}, want: "/opt/bin/ffprobe", wantF: "ffmpeg"},
		{name: "derived from ffmpeg path", f: FFmpeg{Path: "/opt/bin/ffmpeg"}, want: "/opt/bin/ffprobe", wantF: "/opt/bin/ffmpeg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.f.probeBinary(); got != tt.want {
				t.Errorf("probeBinary() = %q, want %q", got, tt.want)
			}
			if got := tt.f.binary(); got != tt.wantF {
				t.Errorf("binary() = %q, want %q", got, tt.wantF)
			}
		})
	}
}
