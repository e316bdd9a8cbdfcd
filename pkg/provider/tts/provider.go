// Package tts defines the speech synthesis provider interface.
//
// Synthesis is the optional last stage of the pipeline: translated lines are
// spoken through a backend server and the resulting PCM is written to a
// caller-supplied sink (a playback pipe, a file, a network stream).
package tts

import (
	"context"
	"errors"
)

// ErrEmptyText is returned when there is no text to synthesize.
var ErrEmptyText = errors.New("tts: empty text")

// Synthesizer speaks one translated line. Implementations write synthesized
// 16-bit little-endian mono PCM to the sink they were constructed with.
type Synthesizer interface {
	// Speak synthesizes text and writes the audio to the configured sink.
	// It returns once the whole line has been written.
	Speak(ctx context.Context, text string) error

	// Close releases any resources held by the synthesizer.
	Close() error
}
