// Package asr defines the speech recognition provider interface.
//
// A Recognizer turns one completed audio segment into text. Recognition is a
// batch operation per segment; streaming partials are out of scope because the
// segmenter already delivers utterance-sized spans.
package asr

import (
	"context"
	"errors"

	"github.com/argot-voice/argot/pkg/audio"
)

// ErrEmptySegment is returned when a segment contains no audio data.
var ErrEmptySegment = errors.New("asr: empty segment")

// Recognizer transcribes audio segments. Implementations must be safe for use
// by a single goroutine; the pipeline runs one recognition worker.
type Recognizer interface {
	// Transcribe returns the recognized text for the segment. An empty string
	// with a nil error means the segment contained no recognizable speech.
	Transcribe(ctx context.Context, seg audio.Segment) (string, error)

	// Close releases any resources held by the recognizer.
	Close() error
}

// Reloader is implemented by recognizers that hold a local model which can be
// torn down and re-created in place. Remote recognizers do not implement it;
// callers type-assert before reloading.
type Reloader interface {
	Reload(ctx context.Context) error
}
