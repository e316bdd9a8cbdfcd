// Package mock provides a test double for the asr.Recognizer interface.
//
// Use Recognizer in unit tests to feed controlled transcripts into the
// pipeline without a live recognition backend. All fields are safe to set
// before calling any method; mutating them during a concurrent call is the
// caller's responsibility.
//
// Example:
//
//	r := &mock.Recognizer{Texts: []string{"hello world"}}
//	text, err := r.Transcribe(ctx, seg)
package mock

import (
	"context"
	"sync"

	"github.com/argot-voice/argot/pkg/audio"
	"github.com/argot-voice/argot/pkg/provider/asr"
)

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Segment is the segment passed to Transcribe.
	Segment audio.Segment
}

// Recognizer is a mock implementation of asr.Recognizer and asr.Reloader.
// Zero values cause methods to return zero values and nil errors.
type Recognizer struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Texts is the sequence of transcripts returned by successive Transcribe
	// calls. Once exhausted, Transcribe returns the last element (or "" when
	// Texts is empty).
	Texts []string

	// TranscribeErr, if non-nil, is returned by every Transcribe call.
	TranscribeErr error

	// ReloadErr, if non-nil, is returned by Reload.
	ReloadErr error

	// --- Call records (read after test) ---

	// TranscribeCalls records every invocation of Transcribe in order.
	TranscribeCalls []TranscribeCall

	// ReloadCount is the number of times Reload was called.
	ReloadCount int

	// CloseCount is the number of times Close was called.
	CloseCount int
}

// Transcribe records the call and returns the next configured transcript.
func (r *Recognizer) Transcribe(ctx context.Context, seg audio.Segment) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := len(r.TranscribeCalls)
	r.TranscribeCalls = append(r.TranscribeCalls, TranscribeCall{Ctx: ctx, Segment: seg})
	if r.TranscribeErr != nil {
		return "", r.TranscribeErr
	}
	if len(r.Texts) == 0 {
		return "", nil
	}
	if idx >= len(r.Texts) {
		idx = len(r.Texts) - 1
	}
	return r.Texts[idx], nil
}

// Reload records the call and returns ReloadErr.
func (r *Recognizer) Reload(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ReloadCount++
	return r.ReloadErr
}

// Close records the call and returns nil.
func (r *Recognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.CloseCount++
	return nil
}

// Reset clears all recorded calls. Thread-safe.
func (r *Recognizer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.TranscribeCalls = nil
	r.ReloadCount = 0
	r.CloseCount = 0
}

// Ensure Recognizer implements the interfaces at compile time.
var (
	_ asr.Recognizer = (*Recognizer)(nil)
	_ asr.Reloader   = (*Recognizer)(nil)
)
