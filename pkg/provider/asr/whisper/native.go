// This file contains the Native recognizer backed by the whisper.cpp CGO
// bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/argot-voice/argot/pkg/audio"
	"github.com/argot-voice/argot/pkg/provider/asr"
)

// Compile-time assertions that Native satisfies asr.Recognizer and
// asr.Reloader.
var (
	_ asr.Recognizer = (*Native)(nil)
	_ asr.Reloader   = (*Native)(nil)
)

// Native implements asr.Recognizer using the whisper.cpp Go bindings (CGO),
// eliminating HTTP overhead entirely. The model is loaded once and reused
// across inferences; Reload tears it down and loads it again from the same
// path.
type Native struct {
	modelPath string
	language  string

	mu    sync.Mutex
	model whisperlib.Model
}

// NativeOption is a functional option for configuring a Native recognizer.
type NativeOption func(*Native)

// WithNativeLanguage sets the BCP-47 language code for transcription
// (e.g., "en", "de", "fr"). Defaults to "en".
func WithNativeLanguage(lang string) NativeOption {
	return func(n *Native) { n.language = lang }
}

// NewNative creates a Native recognizer that loads the whisper.cpp model from
// the given file path. The caller must call Close when the recognizer is no
// longer needed.
func NewNative(modelPath string, opts ...NativeOption) (*Native, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	n := &Native{
		modelPath: modelPath,
		language:  defaultLanguage,
		model:     model,
	}
	for _, o := range opts {
		o(n)
	}
	return n, nil
}

// Transcribe converts the segment to float32 samples, runs whisper.cpp
// inference in a fresh context, and returns the concatenated text.
//
// Each inference creates its own whisper context: contexts are not
// thread-safe, but the model can be shared.
func (n *Native) Transcribe(ctx context.Context, seg audio.Segment) (string, error) {
	if len(seg.Data) == 0 {
		return "", asr.ErrEmptySegment
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	pcm, err := segmentPCM16(seg)
	if err != nil {
		return "", err
	}
	samples := pcm16ToFloat32(pcm)

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.model == nil {
		return "", errors.New("whisper: recognizer is closed")
	}

	wctx, err := n.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}

	if err := wctx.SetLanguage(n.language); err != nil {
		slog.Warn("failed to set whisper language, using default",
			"language", n.language, "error", err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text != "" {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, " "), nil
}

// Reload implements asr.Reloader: it closes the current model and loads a
// fresh one from the original path. On load failure the recognizer is left
// without a model and subsequent Transcribe calls fail until a later Reload
// succeeds.
func (n *Native) Reload(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.model != nil {
		if err := n.model.Close(); err != nil {
			slog.Warn("closing whisper model before reload failed", "error", err)
		}
		n.model = nil
	}

	model, err := whisperlib.New(n.modelPath)
	if err != nil {
		return fmt.Errorf("whisper: reload model %q: %w", n.modelPath, err)
	}
	n.model = model
	return nil
}

// Close releases the whisper model. Safe to call more than once.
func (n *Native) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.model == nil {
		return nil
	}
	err := n.model.Close()
	n.model = nil
	return err
}

// pcm16ToFloat32 converts 16-bit little-endian PCM to the float32 samples
// whisper.cpp consumes.
func pcm16ToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	samples := make([]float32, n)
	for i := range n {
		v := int16(uint16(pcm[i*2]) | uint16(pcm[i*2+1])<<8)
		samples[i] = float32(v) / 32768.0
	}
	return samples
}
