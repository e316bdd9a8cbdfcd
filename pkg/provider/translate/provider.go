// Package translate defines the translation provider interface.
//
// Backends fall into three kinds that differ in lifecycle, not in call
// signature: a local runtime serving models it manages itself, a local server
// loaded from a quantized model file, and a remote hosted API. The pipeline
// treats them uniformly through Translator and discovers reload capability
// structurally through Reloader.
package translate

import (
	"context"
	"errors"
)

// Kind classifies a translation backend by where its model lives.
type Kind string

const (
	// KindLocalRuntime is a locally running model runtime that manages its own
	// model store (e.g. an ollama daemon).
	KindLocalRuntime Kind = "local_runtime"

	// KindQuantizedFile is a local inference server loaded from a quantized
	// model file (e.g. a llama.cpp or llamafile server over a GGUF).
	KindQuantizedFile Kind = "quantized_file"

	// KindRemoteAPI is a hosted API. Remote backends are never reloaded.
	KindRemoteAPI Kind = "remote_api"
)

// ErrEmptyText is returned when a request carries no text to translate.
var ErrEmptyText = errors.New("translate: empty text")

// Request is a single translation request. SystemPrompt carries the rendered
// instruction template; Text carries the user-visible content to translate,
// optionally prefixed with recent-context lines.
type Request struct {
	SystemPrompt string
	Text         string
}

// Translator turns recognized text into the target language.
// Implementations must tolerate concurrent calls only if their backend does;
// the pipeline runs one translation worker.
type Translator interface {
	// Translate returns the translated text for the request.
	Translate(ctx context.Context, req Request) (string, error)

	// Kind reports the backend classification.
	Kind() Kind

	// Close releases any resources held by the translator.
	Close() error
}

// Reloader is implemented only by translators whose backend can be torn down
// and re-created in place. Remote API translators deliberately do not
// implement it; callers type-assert before reloading:
//
//	if r, ok := tr.(translate.Reloader); ok {
//	    err = r.Reload(ctx)
//	}
type Reloader interface {
	Reload(ctx context.Context) error
}
