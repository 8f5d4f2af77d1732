// Package transcribe defines the Transcriber interface for speech-to-text
// backends.
//
// A transcriber takes a prepared audio file (16 kHz mono PCM WAV as produced
// by the media extractor) and returns a full timed transcript in one call.
// The pipeline runs transcription as a batch stage, so there is no streaming
// surface here: implementations that wrap streaming engines buffer
// internally and return once the whole file is processed.
//
// Implementations must be safe for concurrent use and must honour context
// cancellation on the blocking call.
package transcribe

import (
	"context"

	"github.com/clipforge/clipforge/pkg/types"
)

// Transcriber is the abstraction over any speech-to-text backend.
type Transcriber interface {
	// Transcribe reads the audio file at audioPath and returns the timed
	// transcript. Segment start/end offsets are seconds from the beginning
	// of the file, ordered and non-overlapping.
	//
	// Returns an error if the file cannot be read, the backend fails, or
	// ctx is cancelled first.
	Transcribe(ctx context.Context, audioPath string) (*types.Transcript, error)

	// Name identifies the backend ("whisper", "openai", ...) for logs.
	Name() string
}
