// Package mock provides a test double for the tts.Synthesizer interface.
//
// Use Synthesizer to verify which lines the pipeline speaks without a live
// synthesis backend. Zero values cause methods to return zero values and nil
// errors.
package mock

import (
	"context"
	"sync"

	"github.com/argot-voice/argot/pkg/provider/tts"
)

// SpeakCall records a single invocation of Speak.
type SpeakCall struct {
	// Ctx is the context passed to Speak.
	Ctx context.Context
	// Text is the line passed to Speak.
	Text string
}

// Synthesizer is a mock implementation of tts.Synthesizer.
type Synthesizer struct {
	mu sync.Mutex

	// SpeakErr, if non-nil, is returned by every Speak call.
	SpeakErr error

	// SpeakCalls records every invocation of Speak in order.
	SpeakCalls []SpeakCall

	// CloseCount is the number of times Close was called.
	CloseCount int
}

// Speak records the call and returns SpeakErr.
func (s *Synthesizer) Speak(ctx context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SpeakCalls = append(s.SpeakCalls, SpeakCall{Ctx: ctx, Text: text})
	return s.SpeakErr
}

// Close records the call and returns nil.
func (s *Synthesizer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCount++
	return nil
}

// Reset clears all recorded calls. Thread-safe.
func (s *Synthesizer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SpeakCalls = nil
	s.CloseCount = 0
}

// Ensure Synthesizer implements tts.Synthesizer at compile time.
var _ tts.Synthesizer = (*Synthesizer)(nil)
