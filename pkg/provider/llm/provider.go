// Package llm defines the Client interface for Large Language Model backends.
//
// An LLM client wraps a remote or local model API (e.g., OpenAI, Anthropic
// Claude, or a local Ollama instance) and exposes a uniform single-shot
// completion interface for the scoring engine, without coupling it to any
// specific SDK. The engine drives batching, pacing, and retries itself, so
// clients stay thin: one request in, one response out, typed errors for the
// failure modes the engine branches on.
//
// Implementors must be safe for concurrent use and must propagate context
// cancellation promptly.
package llm

import "context"

// Usage holds token accounting information returned by the LLM backend.
// All counts are in the model's native token unit and may differ between
// providers for the same textual content.
type Usage struct {
	// PromptTokens is the number of tokens consumed by the system prompt and
	// user message. This value directly affects billing.
	PromptTokens int

	// CompletionTokens is the number of tokens generated in the response.
	CompletionTokens int

	// TotalTokens is PromptTokens + CompletionTokens. Some providers return
	// it directly rather than computing it from the parts.
	TotalTokens int
}

// Request carries everything the model needs to produce one completion.
// Callers should treat a zero-value request as invalid; at minimum Prompt
// must be non-empty.
type Request struct {
	// System is an optional high-priority instruction injected before the
	// user message. Providers without a dedicated system slot prepend it as
	// a "system"-role message.
	System string

	// Prompt is the user message driving the response.
	Prompt string

	// Temperature controls output randomness in the range [0.0, 2.0]. The
	// scoring engine uses a low value so repeated runs stay comparable.
	Temperature float64

	// MaxTokens caps the number of completion tokens the model may generate.
	// Zero means use the provider default.
	MaxTokens int
}

// Response is the full (non-streaming) model reply.
type Response struct {
	// Content is the text of the assistant's reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Client is the abstraction over any LLM backend.
//
// Implementations must be safe for concurrent use from multiple goroutines
// and must return promptly once ctx is cancelled. Failures should be
// surfaced as *APIError whenever the backend exposes enough detail, so the
// engine can distinguish rate limits (and their cooldown hints) from hard
// errors.
type Client interface {
	// Complete sends req to the model and waits for the full response.
	Complete(ctx context.Context, req Request) (*Response, error)

	// Name identifies the backend ("openai", "ollama", ...) for logs and
	// metrics labels.
	Name() string
}
