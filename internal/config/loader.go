package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"recognizer":  {"whisper", "whisper-native"},
	"translator":  {"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"synthesizer": {"coqui", "coqui-xtts", "elevenlabs"},
}

// Default returns a configuration with working values for everything that
// has a sensible default. Provider entries are left empty and must be set
// by the caller or the config file.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8080",
			LogLevel:   LogInfo,
		},
		Audio: AudioConfig{
			SampleRate:        16000,
			Channels:          1,
			Format:            FormatInt16,
			FrameMs:           100,
			EnergyThreshold:   0.01,
			CrossingThreshold: 0.02,
			Filter:            true,
		},
		Pipeline: PipelineConfig{
			MinSegmentMs:         2000,
			MaxSegmentMs:         12000,
			MediumPauseMs:        800,
			LongPauseMs:          1500,
			QueueSize:            32,
			BatchSize:            4,
			ContextWindow:        3,
			DedupeWindowMs:       5000,
			MaxRetries:           0,
			MaxConsecutiveErrors: 3,
			ErrorCooldownMs:      2000,
			ReloadIntervalMs:     600000,
			RequestTimeoutMs:     30000,
		},
		Languages: LanguagesConfig{
			Source: "en",
			Target: "en",
		},
	}
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of [Default] values
// and validates the result. Useful in tests where configs are constructed
// from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Audio
	if cfg.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate must be positive, got %d", cfg.Audio.SampleRate))
	}
	if cfg.Audio.Channels <= 0 {
		errs = append(errs, fmt.Errorf("audio.channels must be positive, got %d", cfg.Audio.Channels))
	}
	if !cfg.Audio.Format.IsValid() {
		errs = append(errs, fmt.Errorf("audio.format %q is invalid; valid values: int8, int16, int32, float32", cfg.Audio.Format))
	}
	if cfg.Audio.FrameMs <= 0 {
		errs = append(errs, fmt.Errorf("audio.frame_ms must be positive, got %d", cfg.Audio.FrameMs))
	}
	if cfg.Audio.EnergyThreshold < 0 || cfg.Audio.EnergyThreshold > 1 {
		errs = append(errs, fmt.Errorf("audio.energy_threshold %.3f is out of range [0, 1]", cfg.Audio.EnergyThreshold))
	}
	if cfg.Audio.CrossingThreshold < 0 || cfg.Audio.CrossingThreshold > 1 {
		errs = append(errs, fmt.Errorf("audio.crossing_threshold %.3f is out of range [0, 1]", cfg.Audio.CrossingThreshold))
	}

	// Pipeline timing
	p := cfg.Pipeline
	if p.MinSegmentMs <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.min_segment_ms must be positive, got %d", p.MinSegmentMs))
	}
	if p.MaxSegmentMs <= p.MinSegmentMs {
		errs = append(errs, fmt.Errorf("pipeline.max_segment_ms (%d) must exceed min_segment_ms (%d)", p.MaxSegmentMs, p.MinSegmentMs))
	}
	if p.MediumPauseMs <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.medium_pause_ms must be positive, got %d", p.MediumPauseMs))
	}
	if p.LongPauseMs < p.MediumPauseMs {
		errs = append(errs, fmt.Errorf("pipeline.long_pause_ms (%d) must be at least medium_pause_ms (%d)", p.LongPauseMs, p.MediumPauseMs))
	}
	if p.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.queue_size must be positive, got %d", p.QueueSize))
	}
	if p.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.batch_size must be positive, got %d", p.BatchSize))
	}
	if p.ContextWindow < 0 {
		errs = append(errs, fmt.Errorf("pipeline.context_window must not be negative, got %d", p.ContextWindow))
	}
	if p.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("pipeline.max_retries must not be negative, got %d", p.MaxRetries))
	}
	if p.MaxConsecutiveErrors <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.max_consecutive_errors must be positive, got %d", p.MaxConsecutiveErrors))
	}
	if p.BatchSize > 16 {
		slog.Warn("pipeline.batch_size is unusually large; long prompts degrade translation latency", "batch_size", p.BatchSize)
	}

	// Languages
	if cfg.Languages.Source == "" {
		errs = append(errs, fmt.Errorf("languages.source is required"))
	}
	if cfg.Languages.Target == "" {
		errs = append(errs, fmt.Errorf("languages.target is required"))
	}
	if cfg.Languages.Source != "" && cfg.Languages.Source == cfg.Languages.Target {
		slog.Warn("languages.source equals languages.target; output will repeat the input language",
			"language", cfg.Languages.Source)
	}

	// Providers
	validateProviderName("recognizer", cfg.Providers.Recognizer.Name)
	validateProviderName("translator", cfg.Providers.Translator.Name)
	validateProviderName("synthesizer", cfg.Providers.Synthesizer.Name)

	if cfg.Providers.Recognizer.Name == "" {
		errs = append(errs, fmt.Errorf("providers.recognizer.name is required"))
	}
	if cfg.Providers.Translator.Name == "" {
		errs = append(errs, fmt.Errorf("providers.translator.name is required"))
	}
	if cfg.Output.Speak && cfg.Providers.Synthesizer.Name == "" {
		errs = append(errs, fmt.Errorf("output.speak requires providers.synthesizer to be configured"))
	}
	if !cfg.Output.Speak && cfg.Providers.Synthesizer.Name != "" {
		slog.Warn("providers.synthesizer is configured but output.speak is disabled; translated lines will not be spoken")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
