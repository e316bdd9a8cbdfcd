package config

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/argot-voice/argot/pkg/provider/asr"
	"github.com/argot-voice/argot/pkg/provider/translate"
	"github.com/argot-voice/argot/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	recognizers map[string]func(ProviderEntry) (asr.Recognizer, error)
	translators map[string]func(ProviderEntry, LanguagesConfig) (translate.Translator, error)
	synthesizer map[string]func(ProviderEntry, io.Writer) (tts.Synthesizer, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		recognizers: make(map[string]func(ProviderEntry) (asr.Recognizer, error)),
		translators: make(map[string]func(ProviderEntry, LanguagesConfig) (translate.Translator, error)),
		synthesizer: make(map[string]func(ProviderEntry, io.Writer) (tts.Synthesizer, error)),
	}
}

// RegisterRecognizer registers a speech recognizer factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterRecognizer(name string, factory func(ProviderEntry) (asr.Recognizer, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recognizers[name] = factory
}

// RegisterTranslator registers a translator factory under name. The factory
// receives the language pair so it can render the system prompt.
func (r *Registry) RegisterTranslator(name string, factory func(ProviderEntry, LanguagesConfig) (translate.Translator, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.translators[name] = factory
}

// RegisterSynthesizer registers a speech synthesizer factory under name.
// The factory receives the PCM sink the synthesizer writes to.
func (r *Registry) RegisterSynthesizer(name string, factory func(ProviderEntry, io.Writer) (tts.Synthesizer, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.synthesizer[name] = factory
}

// CreateRecognizer instantiates a recognizer using the factory registered
// under entry.Name. Returns [ErrProviderNotRegistered] if no factory has
// been registered for that name.
func (r *Registry) CreateRecognizer(entry ProviderEntry) (asr.Recognizer, error) {
	r.mu.RLock()
	factory, ok := r.recognizers[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: recognizer/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateTranslator instantiates a translator using the factory registered
// under entry.Name.
func (r *Registry) CreateTranslator(entry ProviderEntry, langs LanguagesConfig) (translate.Translator, error) {
	r.mu.RLock()
	factory, ok := r.translators[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: translator/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry, langs)
}

// CreateSynthesizer instantiates a synthesizer using the factory registered
// under entry.Name, writing PCM to out.
func (r *Registry) CreateSynthesizer(entry ProviderEntry, out io.Writer) (tts.Synthesizer, error) {
	r.mu.RLock()
	factory, ok := r.synthesizer[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: synthesizer/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry, out)
}
