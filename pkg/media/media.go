// Package media extracts pipeline-ready audio from source videos.
//
// The transcription stage wants 16 kHz mono 16-bit PCM WAV, which keeps
// whisper.cpp happy and files small. Extraction shells out to ffmpeg; no
// pure-Go demuxer covers the container zoo real source footage arrives in.
package media

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Target audio format for the transcription stage.
const (
	sampleRate = 16000
	channels   = 1
)

// Extractor produces a transcription-ready audio file from a source video.
type Extractor interface {
	// Extract writes the audio track of videoPath to audioPath as 16 kHz
	// mono PCM WAV, creating parent directories as needed.
	Extract(ctx context.Context, videoPath, audioPath string) error
}

// FFmpeg implements Extractor by shelling out to the ffmpeg binary.
type FFmpeg struct {
	// Path is the ffmpeg binary. Empty means "ffmpeg" from PATH.
	Path string

	// ProbePath is the ffprobe binary. Empty means "ffprobe" from PATH.
	ProbePath string
}

var _ Extractor = (*FFmpeg)(nil)

// NewFFmpeg returns an FFmpeg runner using the given binary path, or the
// binaries from PATH when path is empty.
func NewFFmpeg(path string) *FFmpeg {
	return &FFmpeg{Path: path}
}

func (f *FFmpeg) binary() string {
	if f.Path == "" {
		return "ffmpeg"
	}
	return f.Path
}

func (f *FFmpeg) probeBinary() string {
	if f.ProbePath != "" {
		return f.ProbePath
	}
	if f.Path != "" {
		// Sit ffprobe next to a custom ffmpeg.
		return filepath.Join(filepath.Dir(f.Path), "ffprobe")
	}
	return "ffprobe"
}

// buildExtractArgs constructs the ffmpeg argument list for audio extraction.
// Kept separate from execution so the exact command line is testable.
func buildExtractArgs(videoPath, audioPath string) []string {
	return []string{
		"-y",
		"-nostdin",
		"-hide_banner",
		"-loglevel", "error",
		"-i", videoPath,
		"-vn", // drop video streams
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", strconv.Itoa(channels),
		"-f", "wav",
		audioPath,
	}
}

// Extract implements Extractor.
func (f *FFmpeg) Extract(ctx context.Context, videoPath, audioPath string) error {
	if err := os.MkdirAll(filepath.Dir(audioPath), 0o755); err != nil {
		return fmt.Errorf("media: create audio dir: %w", err)
	}

	cmd := exec.CommandContext(ctx, f.binary(), buildExtractArgs(videoPath, audioPath)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("media: ffmpeg: %w", ctx.Err())
		}
		return fmt.Errorf("media: ffmpeg: %w: %s", err, stderrTail(stderr.String()))
	}
	return nil
}

// Probe returns the container duration of the file at path, via ffprobe.
// Used for run summaries; extraction does not depend on it.
func (f *FFmpeg) Probe(ctx context.Context, path string) (time.Duration, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}
	cmd := exec.CommandContext(ctx, f.probeBinary(), args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return 0, fmt.Errorf("media: ffprobe: %w", ctx.Err())
		}
		return 0, fmt.Errorf("media: ffprobe: %w: %s", err, stderrTail(stderr.String()))
	}
	return parseProbeDuration(stdout.String())
}

// parseProbeDuration converts ffprobe's bare seconds output into a Duration.
func parseProbeDuration(out string) (time.Duration, error) {
	s := strings.TrimSpace(out)
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("media: parse duration %q: %w", s, err)
	}
	if secs < 0 {
		return 0, fmt.Errorf("media: negative duration %q", s)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// stderrTail keeps the last few lines of tool output for error messages.
func stderrTail(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(no output)"
	}
	lines := strings.Split(s, "\n")
	if len(lines) > 4 {
		lines = lines[len(lines)-4:]
	}
	return strings.Join(lines, " | ")
}
