// Package anyllm provides a universal LLM client backed by
// github.com/mozilla-ai/any-llm-go, a unified multi-provider interface that
// supports OpenAI, Anthropic, Gemini, Ollama, DeepSeek, Mistral, Groq, and more.
//
// Usage:
//
//	c, err := anyllm.New("anthropic", "claude-sonnet-4-5", anyllmlib.WithAPIKey("sk-ant-..."))
//	c, err := anyllm.NewOllama("llama3.1:8b")
//
// The local vendors (ollama, llamacpp, llamafile) are the usual choice for
// the breaker-guarded primary scorer; hosted vendors serve as the remote
// path.
package anyllm

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/clipforge/clipforge/pkg/provider/llm"
)

// Client implements llm.Client by wrapping github.com/mozilla-ai/any-llm-go.
type Client struct {
	backend anyllmlib.Provider
	vendor  string
	model   string
}

var _ llm.Client = (*Client)(nil)

// New creates a new Client backed by the given vendor.
//
// vendor is one of: "openai", "anthropic", "gemini", "ollama", "deepseek",
// "mistral", "groq", "llamacpp", "llamafile".
//
// model is the specific model to use (e.g., "gpt-4o", "llama3.1:8b").
//
// opts are any-llm-go configuration options (e.g., anyllmlib.WithAPIKey,
// anyllmlib.WithBaseURL). If no API key option is provided, the backend falls
// back to the relevant environment variable (OPENAI_API_KEY,
// ANTHROPIC_API_KEY, ...).
func New(vendor string, model string, opts ...anyllmlib.Option) (*Client, error) {
	if vendor == "" {
		return nil, fmt.Errorf("anyllm: vendor must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("anyllm: model must not be empty")
	}

	backend, err := createBackend(vendor, opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", vendor, err)
	}

	return &Client{backend: backend, vendor: strings.ToLower(vendor), model: model}, nil
}

// NewOpenAI creates a Client backed by OpenAI.
// Without options, it reads the OPENAI_API_KEY environment variable.
func NewOpenAI(model string, opts ...anyllmlib.Option) (*Client, error) {
	return New("openai", model, opts...)
}

// NewAnthropic creates a Client backed by Anthropic.
// Without options, it reads the ANTHROPIC_API_KEY environment variable.
func NewAnthropic(model string, opts ...anyllmlib.Option) (*Client, error) {
	return New("anthropic", model, opts...)
}

// NewGemini creates a Client backed by Google Gemini.
// Without options, it reads the GEMINI_API_KEY or GOOGLE_API_KEY environment variable.
func NewGemini(model string, opts ...anyllmlib.Option) (*Client, error) {
	return New("gemini", model, opts...)
}

// NewOllama creates a Client backed by Ollama (local inference).
// Without options, it connects to http://localhost:11434.
func NewOllama(model string, opts ...anyllmlib.Option) (*Client, error) {
	return New("ollama", model, opts...)
}

// NewDeepSeek creates a Client backed by DeepSeek.
// Without options, it reads the DEEPSEEK_API_KEY environment variable.
func NewDeepSeek(model string, opts ...anyllmlib.Option) (*Client, error) {
	return New("deepseek", model, opts...)
}

// NewMistral creates a Client backed by Mistral AI.
// Without options, it reads the MISTRAL_API_KEY environment variable.
func NewMistral(model string, opts ...anyllmlib.Option) (*Client, error) {
	return New("mistral", model, opts...)
}

// NewGroq creates a Client backed by Groq.
// Without options, it reads the GROQ_API_KEY environment variable.
func NewGroq(model string, opts ...anyllmlib.Option) (*Client, error) {
	return New("groq", model, opts...)
}

// NewLlamaCpp creates a Client backed by a running llama.cpp server.
// Without options, it connects to http://127.0.0.1:8080/v1.
func NewLlamaCpp(model string, opts ...anyllmlib.Option) (*Client, error) {
	return New("llamacpp", model, opts...)
}

// NewLlamaFile creates a Client backed by a running llamafile server.
// Without options, it connects to the default llamafile server.
func NewLlamaFile(model string, opts ...anyllmlib.Option) (*Client, error) {
	return New("llamafile", model, opts...)
}

// IsLocalVendor reports whether the named vendor runs inference on the
// caller's own hardware. Local vendors are eligible as the circuit-breaker
// guarded primary scorer.
func IsLocalVendor(name string) bool {
	switch strings.ToLower(name) {
	case "ollama", "llamacpp", "llamafile":
		return true
	}
	return false
}

// createBackend creates the underlying any-llm-go provider for the given vendor.
func createBackend(vendor string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(vendor) {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	case "deepseek":
		return deepseek.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	case "groq":
		return groq.New(opts...)
	case "llamacpp":
		return llamacpp.New(opts...)
	case "llamafile":
		return llamafile.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported vendor %q; supported: openai, anthropic, gemini, ollama, deepseek, mistral, groq, llamacpp, llamafile", vendor)
	}
}

// Name implements llm.Client.
func (c *Client) Name() string { return c.vendor }

// Complete implements llm.Client.
func (c *Client) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	resp, err := c.backend.Completion(ctx, c.buildParams(req))
	if err != nil {
		return nil, fmt.Errorf("anyllm: completion: %w", c.convertErr(err))
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("anyllm: empty choices in response")
	}

	result := &llm.Response{
		Content: resp.Choices[0].Message.ContentString(),
	}
	if resp.Usage != nil {
		result.Usage = llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	return result, nil
}

// buildParams converts a Request into anyllm CompletionParams.
func (c *Client) buildParams(req llm.Request) anyllmlib.CompletionParams {
	var messages []anyllmlib.Message
	if req.System != "" {
		messages = append(messages, anyllmlib.Message{
			Role:    anyllmlib.RoleSystem,
			Content: req.System,
		})
	}
	messages = append(messages, anyllmlib.Message{
		Role:    anyllmlib.RoleUser,
		Content: req.Prompt,
	})

	params := anyllmlib.CompletionParams{
		Model:    c.model,
		Messages: messages,
	}
	if req.Temperature != 0 {
		t := req.Temperature
		params.Temperature = &t
	}
	if req.MaxTokens > 0 {
		mt := req.MaxTokens
		params.MaxTokens = &mt
	}
	return params
}

// any-llm-go surfaces backend failures as flattened error strings, so status
// and cooldown have to be fished back out of the text.
var (
	statusRe = regexp.MustCompile(`status(?:\s*code)?[:\s]+(\d{3})`)
	retryRe  = regexp.MustCompile(`(?i)(?:retry[- ]after[:\s]+|try again in\s+)(\d+(?:\.\d+)?)\s*(ms|s|m)?`)
)

// convertErr lifts recognisable backend failures into llm.APIError so the
// engine can classify rate limits and read cooldown hints. Errors without a
// recognisable status or hint pass through unchanged.
func (c *Client) convertErr(err error) error {
	msg := err.Error()

	status := 0
	if m := statusRe.FindStringSubmatch(strings.ToLower(msg)); m != nil {
		status, _ = strconv.Atoi(m[1])
	}

	var retryAfter time.Duration
	if m := retryRe.FindStringSubmatch(msg); m != nil {
		if val, perr := strconv.ParseFloat(m[1], 64); perr == nil && val >= 0 {
			unit := time.Second
			switch m[2] {
			case "ms":
				unit = time.Millisecond
			case "m":
				unit = time.Minute
			}
			retryAfter = time.Duration(val * float64(unit))
		}
	}

	if status == 0 && retryAfter == 0 {
		return err
	}
	return &llm.APIError{
		Provider:   c.vendor,
		StatusCode: status,
		RetryAfter: retryAfter,
		Msg:        strings.TrimSpace(msg),
		Err:        err,
	}
}
