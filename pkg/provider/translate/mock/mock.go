// Package mock provides test doubles for the translate.Translator interface.
//
// Translator is a plain non-reloadable backend; ReloadableTranslator adds the
// Reload method for tests that exercise the recovery path. Zero values cause
// methods to return zero values and nil errors.
package mock

import (
	"context"
	"sync"

	"github.com/argot-voice/argot/pkg/provider/translate"
)

// TranslateCall records a single invocation of Translate.
type TranslateCall struct {
	// Ctx is the context passed to Translate.
	Ctx context.Context
	// Req is the request passed to Translate.
	Req translate.Request
}

// Translator is a mock implementation of translate.Translator.
type Translator struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// BackendKind is returned by Kind. Defaults to KindRemoteAPI when empty.
	BackendKind translate.Kind

	// Responses is the sequence of translations returned by successive
	// Translate calls. Once exhausted, Translate returns the last element
	// (or "" when Responses is empty).
	Responses []string

	// Errs maps a zero-based call index to an error returned for that call,
	// letting tests fail specific calls while others succeed.
	Errs map[int]error

	// TranslateErr, if non-nil, is returned by every Translate call.
	TranslateErr error

	// --- Call records (read after test) ---

	// TranslateCalls records every invocation of Translate in order.
	TranslateCalls []TranslateCall

	// CloseCount is the number of times Close was called.
	CloseCount int
}

// Translate records the call and returns the next configured response.
func (t *Translator) Translate(ctx context.Context, req translate.Request) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx := len(t.TranslateCalls)
	t.TranslateCalls = append(t.TranslateCalls, TranslateCall{Ctx: ctx, Req: req})
	if t.TranslateErr != nil {
		return "", t.TranslateErr
	}
	if err, ok := t.Errs[idx]; ok {
		return "", err
	}
	if len(t.Responses) == 0 {
		return "", nil
	}
	if idx >= len(t.Responses) {
		idx = len(t.Responses) - 1
	}
	return t.Responses[idx], nil
}

// Kind returns BackendKind, defaulting to KindRemoteAPI.
func (t *Translator) Kind() translate.Kind {
	if t.BackendKind == "" {
		return translate.KindRemoteAPI
	}
	return t.BackendKind
}

// Close records the call and returns nil.
func (t *Translator) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.CloseCount++
	return nil
}

// Reset clears all recorded calls. Thread-safe.
func (t *Translator) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.TranslateCalls = nil
	t.CloseCount = 0
}

// ReloadableTranslator is a Translator that also satisfies translate.Reloader.
type ReloadableTranslator struct {
	Translator

	// ReloadErr, if non-nil, is returned by Reload.
	ReloadErr error

	// ReloadCount is the number of times Reload was called.
	ReloadCount int
}

// Reload records the call and returns ReloadErr.
func (t *ReloadableTranslator) Reload(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ReloadCount++
	return t.ReloadErr
}

// Ensure the mocks implement the interfaces at compile time.
var (
	_ translate.Translator = (*Translator)(nil)
	_ translate.Translator = (*ReloadableTranslator)(nil)
	_ translate.Reloader   = (*ReloadableTranslator)(nil)
)
