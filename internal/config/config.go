// Package config provides the configuration schema, loader, and provider
// registry for the Argot live translation pipeline.
package config

// LogLevel controls log verbosity for the Argot process.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// SampleFormatName selects the PCM sample encoding of the input stream.
type SampleFormatName string

const (
	FormatInt8    SampleFormatName = "int8"
	FormatInt16   SampleFormatName = "int16"
	FormatInt32   SampleFormatName = "int32"
	FormatFloat32 SampleFormatName = "float32"
)

// IsValid reports whether f is a recognised sample format.
func (f SampleFormatName) IsValid() bool {
	switch f {
	case FormatInt8, FormatInt16, FormatInt32, FormatFloat32:
		return true
	}
	return false
}

// Config is the root configuration structure for Argot.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Audio     AudioConfig     `yaml:"audio"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Languages LanguagesConfig `yaml:"languages"`
	Providers ProvidersConfig `yaml:"providers"`
	Output    OutputConfig    `yaml:"output"`
	Bridge    BridgeConfig    `yaml:"bridge"`
}

// ServerConfig holds network and logging settings for the metrics and
// health HTTP server.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// AudioConfig describes the incoming PCM stream and the voice detector.
type AudioConfig struct {
	// SampleRate is the input sample rate in Hz (e.g., 16000).
	SampleRate int `yaml:"sample_rate"`

	// Channels is the input channel count. Multi-channel input is mixed
	// down to mono before segmentation.
	Channels int `yaml:"channels"`

	// Format is the PCM sample encoding of the input stream.
	Format SampleFormatName `yaml:"format"`

	// FrameMs is the analysis frame length in milliseconds.
	FrameMs int `yaml:"frame_ms"`

	// EnergyThreshold is the normalized RMS level above which a frame can
	// count as voiced.
	EnergyThreshold float64 `yaml:"energy_threshold"`

	// CrossingThreshold is the zero-crossing rate above which a frame can
	// count as voiced.
	CrossingThreshold float64 `yaml:"crossing_threshold"`

	// Filter enables the speech band-pass and noise gate on emitted
	// segments.
	Filter bool `yaml:"filter"`
}

// PipelineConfig tunes segmentation and the recognition/translation stages.
type PipelineConfig struct {
	// MinSegmentMs is the shortest utterance worth recognizing, in
	// milliseconds.
	MinSegmentMs int `yaml:"min_segment_ms"`

	// MaxSegmentMs force-cuts an utterance at this length.
	MaxSegmentMs int `yaml:"max_segment_ms"`

	// MediumPauseMs is the pause length that closes a segment once the
	// minimum is buffered.
	MediumPauseMs int `yaml:"medium_pause_ms"`

	// LongPauseMs is the pause length that closes a segment regardless of
	// remaining speech momentum, and the idle threshold for flushing.
	LongPauseMs int `yaml:"long_pause_ms"`

	// QueueSize bounds the channels between pipeline stages.
	QueueSize int `yaml:"queue_size"`

	// BatchSize is the number of recognized lines translated per request.
	BatchSize int `yaml:"batch_size"`

	// ContextWindow is the number of previous source lines included in the
	// translation prompt.
	ContextWindow int `yaml:"context_window"`

	// DedupeWindowMs suppresses a recognized line repeating an earlier one
	// within this window.
	DedupeWindowMs int `yaml:"dedupe_window_ms"`

	// FuzzyDedupe additionally suppresses near-duplicates by string
	// similarity instead of exact matches only.
	FuzzyDedupe bool `yaml:"fuzzy_dedupe"`

	// MaxRetries caps how many times a failed line re-enters the translation
	// queue before being dropped. Zero retries indefinitely.
	MaxRetries int `yaml:"max_retries"`

	// MaxConsecutiveErrors triggers a translator model reload when reached.
	MaxConsecutiveErrors int `yaml:"max_consecutive_errors"`

	// ErrorCooldownMs is the pause after a failed translation request.
	ErrorCooldownMs int `yaml:"error_cooldown_ms"`

	// ReloadIntervalMs periodically reloads the translator model even without
	// errors. Zero disables the timer; remote API backends ignore reloads.
	ReloadIntervalMs int `yaml:"reload_interval_ms"`

	// RequestTimeoutMs bounds a single recognition or translation request.
	RequestTimeoutMs int `yaml:"request_timeout_ms"`
}

// LanguagesConfig selects the translation direction. Values are ISO 639-1
// codes (e.g., "de", "en"); see [LanguageName] for prompt rendering.
type LanguagesConfig struct {
	Source string `yaml:"source"`
	Target string `yaml:"target"`
}

// ProvidersConfig declares which provider implementation to use for each
// pipeline stage. Each field selects a named provider registered in the
// [Registry].
type ProvidersConfig struct {
	Recognizer  ProviderEntry `yaml:"recognizer"`
	Translator  ProviderEntry `yaml:"translator"`
	Synthesizer ProviderEntry `yaml:"synthesizer"`
}

// ProviderEntry is the common configuration block shared by all provider
// types. The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "whisper",
	// "openai", "coqui").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o",
	// a GGUF file path for local runtimes).
	Model string `yaml:"model"`

	// Voice is the synthesizer voice identifier. Ignored by other provider
	// kinds.
	Voice string `yaml:"voice"`

	// SystemPrompt overrides the default translation instruction template.
	// Supports the {source_language} and {target_language} placeholders.
	SystemPrompt string `yaml:"system_prompt"`

	// Options holds provider-specific configuration values not covered by
	// the standard fields above.
	Options map[string]any `yaml:"options"`
}

// OutputConfig controls transcript files and speech playback.
type OutputConfig struct {
	// TranscriptDir is where session transcript files are written. Empty
	// disables transcript output.
	TranscriptDir string `yaml:"transcript_dir"`

	// Speak enables speech synthesis of translated lines. Requires a
	// configured synthesizer provider.
	Speak bool `yaml:"speak"`
}

// BridgeConfig controls the WebSocket event bridge.
type BridgeConfig struct {
	// Enabled serves live pipeline events on /ws of the HTTP server.
	Enabled bool `yaml:"enabled"`
}
