package anyllm

import (
	"testing"

	"github.com/argot-voice/argot/pkg/provider/translate"
)

func TestClassifyKind(t *testing.T) {
	tests := []struct {
		provider string
		want     translate.Kind
	}{
		{"ollama", translate.KindLocalRuntime},
		{"Ollama", translate.KindLocalRuntime},
		{"llamacpp", translate.KindQuantizedFile},
		{"llamafile", translate.KindQuantizedFile},
		{"openai", translate.KindRemoteAPI},
		{"anthropic", translate.KindRemoteAPI},
		{"gemini", translate.KindRemoteAPI},
		{"deepseek", translate.KindRemoteAPI},
		{"mistral", translate.KindRemoteAPI},
		{"groq", translate.KindRemoteAPI},
	}
	for _, tt := range tests {
		if got := classifyKind(tt.provider); got != tt.want {
			t.Errorf("classifyKind(%q): got %q, want %q", tt.provider, got, tt.want)
		}
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New("", "model", nil); err == nil {
		t.Error("expected error for empty provider name")
	}
	if _, err := New("ollama", "", nil); err == nil {
		t.Error("expected error for empty model")
	}
	if _, err := New("watsonx", "model", nil); err == nil {
		t.Error("expected error for unsupported provider")
	}
}

func TestLocalBackendsImplementReloader(t *testing.T) {
	for _, name := range []string{"ollama", "llamacpp", "llamafile"} {
		tr, err := New(name, "test-model", nil)
		if err != nil {
			t.Fatalf("New(%q): %v", name, err)
		}
		if _, ok := tr.(translate.Reloader); !ok {
			t.Errorf("%q translator must implement Reloader", name)
		}
	}
}

func TestRemoteBackendDoesNotImplementReloader(t *testing.T) {
	tr, err := New("ollama", "test-model", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	local, ok := tr.(*Local)
	if !ok {
		t.Fatal("ollama translator is not a *Local")
	}
	// The underlying plain provider must not satisfy Reloader on its own.
	var plain translate.Translator = local.Provider
	if _, ok := plain.(translate.Reloader); ok {
		t.Error("plain provider must not implement Reloader")
	}
}

func TestBuildParams(t *testing.T) {
	p := &Provider{model: "test-model", temperature: 0.3, maxTokens: 256}
	params := p.buildParams(translate.Request{SystemPrompt: "sys", Text: "hello"})

	if params.Model != "test-model" {
		t.Errorf("model: got %q", params.Model)
	}
	if len(params.Messages) != 2 {
		t.Fatalf("messages: got %d, want 2", len(params.Messages))
	}
	if params.Messages[0].Content != "sys" {
		t.Errorf("system message: got %q", params.Messages[0].Content)
	}
	if params.Messages[1].Content != "hello" {
		t.Errorf("user message: got %q", params.Messages[1].Content)
	}
	if params.Temperature == nil || *params.Temperature != 0.3 {
		t.Error("temperature not forwarded")
	}
	if params.MaxTokens == nil || *params.MaxTokens != 256 {
		t.Error("max tokens not forwarded")
	}
}
