package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// APIError is a failure reported by an LLM backend with enough structure for
// the scoring engine to branch on: HTTP status for retry classification and
// the server-advertised cooldown for rate-limit handling.
type APIError struct {
	// Provider names the backend that produced the error.
	Provider string

	// StatusCode is the HTTP status when known, zero otherwise.
	StatusCode int

	// RetryAfter is the server-advertised cooldown. Zero means the server
	// sent no usable hint.
	RetryAfter time.Duration

	// Msg is the provider's own description of the failure.
	Msg string

	// Err is the underlying SDK or transport error, when one exists.
	Err error
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "llm %s", e.Provider)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if e.Msg != "" {
		fmt.Fprintf(&b, ": %s", e.Msg)
	}
	if e.RetryAfter > 0 {
		fmt.Fprintf(&b, " (retry after %s)", e.RetryAfter)
	}
	return b.String()
}

func (e *APIError) Unwrap() error { return e.Err }

// RetryAfterHint extracts a server-advertised cooldown from err. The second
// return is false when err carries no hint.
func RetryAfterHint(err error) (time.Duration, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		return apiErr.RetryAfter, true
	}
	return 0, false
}

// IsRateLimited reports whether err is an HTTP 429 from the backend.
func IsRateLimited(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == 429
}

// IsRetryable reports whether a later attempt could plausibly succeed:
// rate limits, server-side errors, timeouts, and temporary transport faults.
// Context cancellation is never retryable.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429:
			return true
		case apiErr.StatusCode == 408:
			return true
		case apiErr.StatusCode >= 500 && apiErr.StatusCode < 600:
			return true
		}
	}
	return false
}

// Markers local model runtimes emit when they cannot map or grow model
// memory. Matched case-insensitively against the whole error chain.
var resourceExhaustedMarkers = []string{
	"out of memory",
	"cannot allocate",
	"failed to allocate",
	"insufficient memory",
	"not enough memory",
	"model requires more system memory",
}

// IsResourceExhausted reports whether err looks like a memory-allocation
// failure from a local runtime (ollama, llama.cpp). These count against the
// local scorer's circuit breaker separately from ordinary failures.
func IsResourceExhausted(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range resourceExhaustedMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
