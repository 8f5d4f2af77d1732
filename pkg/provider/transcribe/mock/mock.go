// Package mock provides a test double for the transcribe.Transcriber
// interface.
//
// Use Transcriber in unit tests to feed a fixed transcript into the pipeline
// without running a speech-to-text engine, and to verify which audio files
// were submitted.
package mock

import (
	"context"
	"sync"

	"github.com/clipforge/clipforge/pkg/provider/transcribe"
	"github.com/clipforge/clipforge/pkg/types"
)

// Call records a single invocation of Transcribe.
type Call struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context

	// AudioPath is the file path passed to Transcribe.
	AudioPath string
}

// Transcriber is a mock implementation of transcribe.Transcriber.
// Zero values return (nil, nil); set Err to inject a failure.
type Transcriber struct {
	mu sync.Mutex

	// NameValue is returned by Name. Defaults to "mock" when empty.
	NameValue string

	// Transcript is returned by Transcribe when Err is nil.
	Transcript *types.Transcript

	// Err, if non-nil, is returned instead of a transcript.
	Err error

	// Calls records every invocation of Transcribe in order.
	Calls []Call
}

var _ transcribe.Transcriber = (*Transcriber)(nil)

// Name implements transcribe.Transcriber.
func (t *Transcriber) Name() string {
	if t.NameValue == "" {
		return "mock"
	}
	return t.NameValue
}

// Transcribe records the call and returns Transcript, Err.
func (t *Transcriber) Transcribe(ctx context.Context, audioPath string) (*types.Transcript, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Calls = append(t.Calls, Call{Ctx: ctx, AudioPath: audioPath})
	if t.Err != nil {
		return nil, t.Err
	}
	return t.Transcript, nil
}

// CallCount returns the number of Transcribe invocations so far. Thread-safe.
func (t *Transcriber) CallCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.Calls)
}
