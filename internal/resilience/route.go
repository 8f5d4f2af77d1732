package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/clipforge/clipforge/pkg/provider/llm"
)

// ErrNoScorer is returned when the route has no callable backend left:
// the local path is disabled and no remote is configured.
var ErrNoScorer = errors.New("no scorer available")

// ScorerRoute implements [llm.Client] over an optional breaker-guarded local
// backend with a remote fallback. While the breaker is closed the local
// backend is primary; after it trips every request goes remote.
type ScorerRoute struct {
	local   llm.Client
	remote  llm.Client
	breaker *CircuitBreaker
}

// Compile-time interface assertion.
var _ llm.Client = (*ScorerRoute)(nil)

// NewScorerRoute builds a route. local may be nil (remote-only setups);
// remote may be nil (local-only setups); not both.
func NewScorerRoute(local, remote llm.Client, cfg CircuitBreakerConfig) (*ScorerRoute, error) {
	if local == nil && remote == nil {
		return nil, errors.New("resilience: route needs at least one backend")
	}
	if cfg.Name == "" && local != nil {
		cfg.Name = local.Name()
	}
	return &ScorerRoute{
		local:   local,
		remote:  remote,
		breaker: NewCircuitBreaker(cfg),
	}, nil
}

// Complete tries the local backend first while its breaker allows, then the
// remote. Cancellation never falls through: a dead context is the caller's
// signal, not a provider failure.
func (r *ScorerRoute) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	if r.local != nil && r.breaker.Allow() {
		resp, err := r.local.Complete(ctx, req)
		if err == nil {
			r.breaker.RecordSuccess()
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
		r.breaker.RecordFailure(llm.IsResourceExhausted(err))
		if r.remote == nil {
			return nil, err
		}
		slog.Warn("local scorer failed, using remote",
			"local", r.local.Name(), "err", err)
	}
	if r.remote == nil {
		return nil, fmt.Errorf("%w: local disabled (%s)", ErrNoScorer, r.breaker.Tripped())
	}
	return r.remote.Complete(ctx, req)
}

// Name identifies the backend currently answering requests.
func (r *ScorerRoute) Name() string {
	if r.local != nil && r.breaker.Allow() {
		return r.local.Name()
	}
	if r.remote != nil {
		return r.remote.Name()
	}
	return "none"
}

// LocalDisabled reports whether the local path tripped, and why.
func (r *ScorerRoute) LocalDisabled() (bool, TripReason) {
	if r.local == nil {
		return false, TripNone
	}
	reason := r.breaker.Tripped()
	return reason != TripNone, reason
}
