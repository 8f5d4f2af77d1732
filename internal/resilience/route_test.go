package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/clipforge/clipforge/pkg/provider/llm"
	llmmock "github.com/clipforge/clipforge/pkg/provider/llm/mock"
)

var errAlloc = &llm.APIError{Provider: "llamacpp", Msg: "failed to allocate 4096 MB"}

func newRoute(t *testing.T, local, remote llm.Client) *ScorerRoute {
	t.Helper()
	r, err := NewScorerRoute(local, remote, CircuitBreakerConfig{Threshold: 3})
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestRoutePrefersLocal(t *testing.T) {
	local := &llmmock.Client{NameValue: "local", Response: &llm.Response{Content: "local says hi"}}
	remote := &llmmock.Client{NameValue: "remote", Response: &llm.Response{Content: "remote says hi"}}
	r := newRoute(t, local, remote)

	resp, err := r.Complete(context.Background(), llm.Request{Prompt: "p"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "local says hi" {
		t.Errorf("Content = %q, want local response", resp.Content)
	}
	if remote.CallCount() != 0 {
		t.Errorf("remote called %d times, want 0", remote.CallCount())
	}
	if got := r.Name(); got != "local" {
		t.Errorf("Name = %q, want local", got)
	}
}

func TestRouteFallsThroughOnLocalFailure(t *testing.T) {
	local := &llmmock.Client{NameValue: "local", Err: errors.New("boom")}
	remote := &llmmock.Client{NameValue: "remote", Response: &llm.Response{Content: "remote"}}
	r := newRoute(t, local, remote)

	resp, err := r.Complete(context.Background(), llm.Request{Prompt: "p"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "remote" {
		t.Errorf("Content = %q, want remote response", resp.Content)
	}
	if local.CallCount() != 1 || remote.CallCount() != 1 {
		t.Errorf("calls = (%d local, %d remote), want (1, 1)",
			local.CallCount(), remote.CallCount())
	}
}

func TestRouteDisablesLocalAfterStreak(t *testing.T) {
	local := &llmmock.Client{NameValue: "local", Err: errors.New("boom")}
	remote := &llmmock.Client{NameValue: "remote", Response: &llm.Response{Content: "r"}}
	r := newRoute(t, local, remote)

	for i := 0; i < 3; i++ {
		if _, err := r.Complete(context.Background(), llm.Request{}); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if disabled, reason := r.LocalDisabled(); !disabled || reason != TripFailures {
		t.Fatalf("LocalDisabled = (%v, %q), want (true, %q)", disabled, reason, TripFailures)
	}

	// Subsequent calls skip the dead local path entirely.
	if _, err := r.Complete(context.Background(), llm.Request{}); err != nil {
		t.Fatal(err)
	}
	if local.CallCount() != 3 {
		t.Errorf("local called %d times, want 3", local.CallCount())
	}
	if got := r.Name(); got != "remote" {
		t.Errorf("Name = %q after trip, want remote", got)
	}
}

func TestRouteAllocationErrorsTripAllocationReason(t *testing.T) {
	local := &llmmock.Client{NameValue: "local", Err: errAlloc}
	remote := &llmmock.Client{NameValue: "remote", Response: &llm.Response{Content: "r"}}
	r := newRoute(t, local, remote)

	for i := 0; i < 3; i++ {
		if _, err := r.Complete(context.Background(), llm.Request{}); err != nil {
			t.Fatal(err)
		}
	}
	if _, reason := r.LocalDisabled(); reason != TripAllocation {
		t.Errorf("reason = %q, want %q", reason, TripAllocation)
	}
}

func TestRouteSuccessResetsStreak(t *testing.T) {
	local := &llmmock.Client{
		NameValue: "local",
		Script: []llmmock.Reply{
			{Err: errors.New("boom")},
			{Err: errors.New("boom")},
			{Response: &llm.Response{Content: "ok"}},
			{Err: errors.New("boom")},
			{Err: errors.New("boom")},
		},
		Response: &llm.Response{Content: "steady"},
	}
	remote := &llmmock.Client{NameValue: "remote", Response: &llm.Response{Content: "r"}}
	r := newRoute(t, local, remote)

	for i := 0; i < 5; i++ {
		if _, err := r.Complete(context.Background(), llm.Request{}); err != nil {
			t.Fatal(err)
		}
	}
	if disabled, _ := r.LocalDisabled(); disabled {
		t.Fatal("success mid-streak must reset the breaker")
	}
}

func TestRouteRemoteOnly(t *testing.T) {
	remote := &llmmock.Client{NameValue: "remote", Response: &llm.Response{Content: "r"}}
	r := newRoute(t, nil, remote)

	resp, err := r.Complete(context.Background(), llm.Request{})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "r" {
		t.Errorf("Content = %q", resp.Content)
	}
	if disabled, _ := r.LocalDisabled(); disabled {
		t.Error("no local path, nothing to disable")
	}
}

func TestRouteLocalOnlyErrorsSurface(t *testing.T) {
	local := &llmmock.Client{NameValue: "local", Err: errors.New("boom")}
	r := newRoute(t, local, nil)

	if _, err := r.Complete(context.Background(), llm.Request{}); err == nil {
		t.Fatal("expected local error to surface without a remote")
	}

	// Trip the breaker, then expect ErrNoScorer.
	for i := 0; i < 2; i++ {
		_, _ = r.Complete(context.Background(), llm.Request{})
	}
	_, err := r.Complete(context.Background(), llm.Request{})
	if !errors.Is(err, ErrNoScorer) {
		t.Errorf("err = %v, want ErrNoScorer", err)
	}
}

func TestRouteCancellationDoesNotFallThrough(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	local := &llmmock.Client{NameValue: "local", Err: context.Canceled}
	remote := &llmmock.Client{NameValue: "remote", Response: &llm.Response{Content: "r"}}
	r := newRoute(t, local, remote)

	if _, err := r.Complete(ctx, llm.Request{}); err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if remote.CallCount() != 0 {
		t.Errorf("remote called %d times on cancellation, want 0", remote.CallCount())
	}
	if disabled, _ := r.LocalDisabled(); disabled {
		t.Error("cancellation must not count against the breaker")
	}
}

func TestRouteNeedsABackend(t *testing.T) {
	if _, err := NewScorerRoute(nil, nil, CircuitBreakerConfig{}); err == nil {
		t.Fatal("expected error for empty route")
	}
}
