// Package whisper provides transcribers backed by whisper.cpp.
//
// Two variants exist. Transcriber talks to a running whisper-server binary
// (which exposes a REST API at POST /inference) and is the default choice:
// the server keeps the model resident between runs and needs no CGO. Native
// loads the model in-process through the whisper.cpp Go bindings and avoids
// HTTP entirely; see native.go for its build requirements.
//
// Usage:
//
//	tr, err := whisper.New("http://localhost:8080",
//	    whisper.WithLanguage("en"),
//	)
//	transcript, err := tr.Transcribe(ctx, "audio.wav")
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/clipforge/clipforge/pkg/provider/transcribe"
	"github.com/clipforge/clipforge/pkg/types"
)

const (
	defaultLanguage = "en"
	defaultTimeout  = 15 * time.Minute
)

var _ transcribe.Transcriber = (*Transcriber)(nil)

// Option is a functional option for configuring a Transcriber.
type Option func(*Transcriber)

// WithModel sets the model identifier forwarded to the whisper-server
// (e.g., "base.en", "small"). When empty the server uses whichever model it
// was started with, which is the default.
func WithModel(model string) Option {
	return func(t *Transcriber) {
		t.model = model
	}
}

// WithLanguage sets the language code sent to the whisper-server
// (e.g., "en", "de", "fr"). Defaults to "en"; "auto" asks the server to
// detect the language.
func WithLanguage(lang string) Option {
	return func(t *Transcriber) {
		t.language = lang
	}
}

// WithTemperature sets the decoding temperature. Zero (the default) keeps
// decoding greedy, which is what clip timing wants.
func WithTemperature(temp float64) Option {
	return func(t *Transcriber) {
		t.temperature = temp
	}
}

// WithTimeout sets the per-request HTTP timeout. Long-form sources take
// minutes to transcribe, so the default is generous (15 minutes).
func WithTimeout(d time.Duration) Option {
	return func(t *Transcriber) {
		t.httpClient.Timeout = d
	}
}

// WithHTTPClient replaces the underlying HTTP client entirely.
func WithHTTPClient(c *http.Client) Option {
	return func(t *Transcriber) {
		t.httpClient = c
	}
}

// Transcriber implements transcribe.Transcriber backed by a whisper-server
// HTTP endpoint. Safe for concurrent use.
type Transcriber struct {
	serverURL   string
	model       string
	language    string
	temperature float64
	httpClient  *http.Client
}

// New creates a Transcriber that connects to the whisper-server at serverURL
// (e.g., "http://localhost:8080"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Transcriber, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	t := &Transcriber{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// Name implements transcribe.Transcriber.
func (t *Transcriber) Name() string { return "whisper" }

// Transcribe uploads the audio file to the whisper-server /inference endpoint
// and maps the verbose JSON result onto the shared transcript model.
func (t *Transcriber) Transcribe(ctx context.Context, audioPath string) (*types.Transcript, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: open audio: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := io.Copy(fw, f); err != nil {
		return nil, fmt.Errorf("whisper: read audio: %w", err)
	}

	fields := map[string]string{
		"response_format": "verbose_json",
	}
	if t.language != "" {
		fields["language"] = t.language
	}
	if t.model != "" {
		fields["model"] = t.model
	}
	if t.temperature > 0 {
		fields["temperature"] = strconv.FormatFloat(t.temperature, 'f', -1, 64)
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("whisper: write %s field: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	endpoint := t.serverURL + "/inference"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		tail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("whisper: server returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(tail)))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("whisper: read response body: %w", err)
	}

	var result verboseResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("whisper: parse JSON response: %w", err)
	}

	return result.toTranscript(audioPath), nil
}

// verboseResponse mirrors the verbose_json shape whisper-server shares with
// the OpenAI transcription API.
type verboseResponse struct {
	Task     string           `json:"task"`
	Language string           `json:"language"`
	Duration float64          `json:"duration"`
	Text     string           `json:"text"`
	Segments []verboseSegment `json:"segments"`
}

type verboseSegment struct {
	ID    int           `json:"id"`
	Start float64       `json:"start"`
	End   float64       `json:"end"`
	Text  string        `json:"text"`
	Words []verboseWord `json:"words,omitempty"`
}

type verboseWord struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// toTranscript maps the wire shape onto types.Transcript. Segment IDs are
// renumbered to their positions so downstream code can rely on them being
// consecutive even when the server seeks.
func (r *verboseResponse) toTranscript(audioPath string) *types.Transcript {
	tr := &types.Transcript{
		AudioPath: audioPath,
		Language:  r.Language,
		Duration:  r.Duration,
		Segments:  make([]types.TranscriptSegment, 0, len(r.Segments)),
	}
	for i, seg := range r.Segments {
		out := types.TranscriptSegment{
			ID:    i,
			Start: seg.Start,
			End:   seg.End,
			Text:  strings.TrimSpace(seg.Text),
		}
		for _, w := range seg.Words {
			out.Words = append(out.Words, types.WordTiming{Word: w.Word, Start: w.Start, End: w.End})
		}
		tr.Segments = append(tr.Segments, out)
	}

	// Servers built without verbose support return plain {"text": ...};
	// surface that as a single segment spanning the reported duration.
	if len(tr.Segments) == 0 && strings.TrimSpace(r.Text) != "" {
		tr.Segments = append(tr.Segments, types.TranscriptSegment{
			ID:    0,
			Start: 0,
			End:   r.Duration,
			Text:  strings.TrimSpace(r.Text),
		})
	}
	return tr
}
