// Package anyllm provides translators backed by github.com/mozilla-ai/any-llm-go,
// a unified multi-provider interface that supports OpenAI, Anthropic, Gemini,
// Ollama, DeepSeek, Mistral, Groq, and more.
//
// Local backends (ollama, llamacpp, llamafile) are wrapped in a Local
// translator that additionally supports Reload; remote backends are returned
// as plain translators without reload capability.
//
// Usage:
//
//	tr, err := anyllm.New("ollama", "qwen2.5:7b")
//	tr, err := anyllm.New("anthropic", "claude-3-5-sonnet-latest", anyllmlib.WithAPIKey("sk-ant-..."))
package anyllm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/argot-voice/argot/pkg/provider/translate"
)

// Compile-time assertions: Provider is a Translator, Local additionally
// reloads, and a plain Provider must never satisfy Reloader.
var (
	_ translate.Translator = (*Provider)(nil)
	_ translate.Translator = (*Local)(nil)
	_ translate.Reloader   = (*Local)(nil)
)

// Provider implements translate.Translator by wrapping any-llm-go.
type Provider struct {
	mu      sync.Mutex
	backend anyllmlib.Provider

	model       string
	kind        translate.Kind
	temperature float64
	maxTokens   int
}

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithTemperature sets the sampling temperature sent with each request.
// Zero leaves the backend default in place.
func WithTemperature(t float64) Option {
	return func(p *Provider) { p.temperature = t }
}

// WithMaxTokens caps the completion length. Zero leaves the backend default.
func WithMaxTokens(n int) Option {
	return func(p *Provider) { p.maxTokens = n }
}

// New creates a translator backed by the given provider name.
//
// providerName is one of: "openai", "anthropic", "gemini", "ollama",
// "deepseek", "mistral", "groq", "llamacpp", "llamafile".
//
// model is the specific model to use (e.g., "gpt-4o", "qwen2.5:7b").
//
// backendOpts are any-llm-go configuration options (e.g.,
// anyllmlib.WithAPIKey, anyllmlib.WithBaseURL). Without an API key option the
// backend falls back to its environment variable (OPENAI_API_KEY,
// ANTHROPIC_API_KEY, and so on).
//
// Local backends are returned wrapped in a *Local so they satisfy
// translate.Reloader; remote backends are returned as a plain *Provider.
func New(providerName, model string, opts []Option, backendOpts ...anyllmlib.Option) (translate.Translator, error) {
	p, err := newProvider(providerName, model, opts, backendOpts...)
	if err != nil {
		return nil, err
	}
	if p.kind == translate.KindRemoteAPI {
		return p, nil
	}
	return &Local{
		Provider:     p,
		providerName: providerName,
		backendOpts:  backendOpts,
	}, nil
}

func newProvider(providerName, model string, opts []Option, backendOpts ...anyllmlib.Option) (*Provider, error) {
	if providerName == "" {
		return nil, fmt.Errorf("anyllm: providerName must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("anyllm: model must not be empty")
	}

	backend, err := createBackend(providerName, backendOpts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", providerName, err)
	}

	p := &Provider{
		backend: backend,
		model:   model,
		kind:    classifyKind(providerName),
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Translate implements translate.Translator.
func (p *Provider) Translate(ctx context.Context, req translate.Request) (string, error) {
	if strings.TrimSpace(req.Text) == "" {
		return "", translate.ErrEmptyText
	}

	params := p.buildParams(req)

	p.mu.Lock()
	backend := p.backend
	p.mu.Unlock()

	resp, err := backend.Completion(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anyllm: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("anyllm: empty choices in response")
	}
	return resp.Choices[0].Message.ContentString(), nil
}

// Kind implements translate.Translator.
func (p *Provider) Kind() translate.Kind { return p.kind }

// Close implements translate.Translator. The any-llm-go backends hold no
// resources that need explicit release.
func (p *Provider) Close() error { return nil }

// buildParams converts a Request into anyllm CompletionParams.
func (p *Provider) buildParams(req translate.Request) anyllmlib.CompletionParams {
	var messages []anyllmlib.Message
	if req.SystemPrompt != "" {
		messages = append(messages, anyllmlib.Message{
			Role:    anyllmlib.RoleSystem,
			Content: req.SystemPrompt,
		})
	}
	messages = append(messages, anyllmlib.Message{
		Role:    anyllmlib.RoleUser,
		Content: req.Text,
	})

	params := anyllmlib.CompletionParams{
		Model:    p.model,
		Messages: messages,
	}
	if p.temperature != 0 {
		t := p.temperature
		params.Temperature = &t
	}
	if p.maxTokens > 0 {
		mt := p.maxTokens
		params.MaxTokens = &mt
	}
	return params
}

// Local wraps a Provider whose backend runs on this machine and can be torn
// down and re-created. It is the only anyllm translator that satisfies
// translate.Reloader.
type Local struct {
	*Provider

	providerName string
	backendOpts  []anyllmlib.Option
}

// Reload implements translate.Reloader: it re-creates the backend client so a
// wedged local runtime gets a fresh connection state.
func (l *Local) Reload(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	backend, err := createBackend(l.providerName, l.backendOpts...)
	if err != nil {
		return fmt.Errorf("anyllm: reload %q backend: %w", l.providerName, err)
	}
	l.mu.Lock()
	l.backend = backend
	l.mu.Unlock()
	return nil
}

// classifyKind maps a provider name to its backend kind.
func classifyKind(providerName string) translate.Kind {
	switch strings.ToLower(providerName) {
	case "ollama":
		return translate.KindLocalRuntime
	case "llamacpp", "llamafile":
		return translate.KindQuantizedFile
	default:
		return translate.KindRemoteAPI
	}
}

// createBackend creates the underlying any-llm-go provider for the given
// provider name.
func createBackend(providerName string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(providerName) {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	case "deepseek":
		return deepseek.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	case "groq":
		return groq.New(opts...)
	case "llamacpp":
		return llamacpp.New(opts...)
	case "llamafile":
		return llamafile.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider %q; supported: openai, anthropic, gemini, ollama, deepseek, mistral, groq, llamacpp, llamafile", providerName)
	}
}
