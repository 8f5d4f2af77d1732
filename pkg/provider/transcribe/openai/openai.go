// Package openai provides a transcriber backed by the OpenAI audio API.
//
// It uploads the prepared WAV file to the hosted transcription endpoint
// (whisper-1 by default) and maps the verbose JSON result onto the shared
// transcript model. Useful when no local whisper-server is running.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	oai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"

	"github.com/clipforge/clipforge/pkg/provider/transcribe"
	"github.com/clipforge/clipforge/pkg/types"
)

const defaultModel = "whisper-1"

var _ transcribe.Transcriber = (*Transcriber)(nil)

// Transcriber implements transcribe.Transcriber using the OpenAI audio
// transcriptions endpoint. Safe for concurrent use.
type Transcriber struct {
	client   oai.Client
	model    string
	language string
}

// config holds optional configuration for the transcriber.
type config struct {
	baseURL  string
	model    string
	language string
	timeout  time.Duration
}

// Option is a functional option for Transcriber.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithModel sets the transcription model. Defaults to whisper-1.
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithLanguage sets the ISO-639-1 input language hint (e.g., "en").
func WithLanguage(lang string) Option {
	return func(c *config) { c.language = lang }
}

// WithTimeout sets a per-request HTTP timeout. Defaults to the SDK's own.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// New constructs a hosted OpenAI transcriber.
func New(apiKey string, opts ...Option) (*Transcriber, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}

	cfg := &config{model: defaultModel}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}

	return &Transcriber{
		client:   oai.NewClient(reqOpts...),
		model:    cfg.model,
		language: cfg.language,
	}, nil
}

// Name implements transcribe.Transcriber.
func (t *Transcriber) Name() string { return "openai" }

// Transcribe implements transcribe.Transcriber. It requests verbose JSON
// with segment granularity so the timed shape survives the hosted API.
func (t *Transcriber) Transcribe(ctx context.Context, audioPath string) (*types.Transcript, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("openai: open audio: %w", err)
	}
	defer f.Close()

	params := oai.AudioTranscriptionNewParams{
		File:           f,
		Model:          oai.AudioModel(t.model),
		ResponseFormat: oai.AudioResponseFormatVerboseJSON,
		TimestampGranularities: []string{"segment"},
	}
	if t.language != "" {
		params.Language = param.NewOpt(t.language)
	}

	// The typed New result only carries text; verbose_json is decoded from
	// the raw body instead.
	var verbose oai.TranscriptionVerbose
	_, err = t.client.Audio.Transcriptions.New(ctx, params, option.WithResponseBodyInto(&verbose))
	if err != nil {
		return nil, fmt.Errorf("openai: transcription: %w", err)
	}

	tr := &types.Transcript{
		AudioPath: audioPath,
		Language:  verbose.Language,
		Duration:  verbose.Duration,
		Segments:  make([]types.TranscriptSegment, 0, len(verbose.Segments)),
	}
	for i, seg := range verbose.Segments {
		tr.Segments = append(tr.Segments, types.TranscriptSegment{
			ID:    i,
			Start: float64(seg.Start),
			End:   float64(seg.End),
			Text:  strings.TrimSpace(seg.Text),
		})
	}
	if len(tr.Segments) == 0 && strings.TrimSpace(verbose.Text) != "" {
		tr.Segments = append(tr.Segments, types.TranscriptSegment{
			ID:   0,
			End:  verbose.Duration,
			Text: strings.TrimSpace(verbose.Text),
		})
	}
	return tr, nil
}
