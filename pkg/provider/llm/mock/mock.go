// Package mock provides a test double for the llm.Client interface.
//
// Use Client in unit tests to verify the requests the scoring engine sends
// and to feed controlled responses without a live LLM backend. Replies can
// be scripted per call, so retry paths (fail, fail, succeed) are easy to
// stage. All fields are safe to set before calling any method; mutating them
// during a concurrent call is the caller's responsibility.
//
// Example:
//
//	c := &mock.Client{
//	    Script: []mock.Reply{
//	        {Err: &llm.APIError{Provider: "mock", StatusCode: 429, RetryAfter: 2 * time.Second}},
//	        {Response: &llm.Response{Content: `{"results": []}`}},
//	    },
//	}
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/clipforge/clipforge/pkg/provider/llm"
)

// Reply is one scripted outcome for a Complete call.
type Reply struct {
	// Response is returned when Err is nil.
	Response *llm.Response

	// Err, if non-nil, is returned instead of a response.
	Err error
}

// Call records a single invocation of Complete.
type Call struct {
	// Ctx is the context passed to Complete.
	Ctx context.Context

	// Req is the Request passed to Complete.
	Req llm.Request
}

// Client is a mock implementation of llm.Client.
//
// Each Complete call consumes the next Script entry; once the script is
// exhausted, Response and Err provide the steady-state behaviour. Zero
// values return (nil, nil).
type Client struct {
	mu sync.Mutex

	// --- Configurable behaviour ---

	// NameValue is returned by Name. Defaults to "mock" when empty.
	NameValue string

	// Script is consumed one entry per Complete call, in order.
	Script []Reply

	// Response is returned by Complete after the script is exhausted.
	Response *llm.Response

	// Err, if non-nil, is returned after the script is exhausted.
	Err error

	// Delay, if set, makes every Complete call wait before answering.
	// Cancelling the context during the wait returns ctx.Err().
	Delay time.Duration

	// --- Call records (read after test) ---

	// Calls records every invocation of Complete in order.
	Calls []Call

	next int
}

var _ llm.Client = (*Client)(nil)

// Name implements llm.Client.
func (c *Client) Name() string {
	if c.NameValue == "" {
		return "mock"
	}
	return c.NameValue
}

// Complete records the call and plays back the next scripted reply.
func (c *Client) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	c.mu.Lock()
	c.Calls = append(c.Calls, Call{Ctx: ctx, Req: req})
	reply := Reply{Response: c.Response, Err: c.Err}
	if c.next < len(c.Script) {
		reply = c.Script[c.next]
		c.next++
	}
	delay := c.Delay
	c.mu.Unlock()

	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if reply.Err != nil {
		return nil, reply.Err
	}
	return reply.Response, nil
}

// CallCount returns the number of Complete invocations so far. Thread-safe.
func (c *Client) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Calls)
}

// Reset clears all recorded calls and rewinds the script. Thread-safe.
func (c *Client) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls = nil
	c.next = 0
}
