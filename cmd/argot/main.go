// Command argot is the live speech translation server. It reads raw PCM from
// stdin, segments it on speech pauses, and streams recognized and translated
// lines to the transcript files, the WebSocket bridge, and optionally a
// speech synthesizer.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/argot-voice/argot/internal/app"
	"github.com/argot-voice/argot/internal/config"
	"github.com/argot-voice/argot/internal/observe"
	"github.com/argot-voice/argot/pkg/audio"
	"github.com/argot-voice/argot/pkg/provider/asr"
	"github.com/argot-voice/argot/pkg/provider/asr/whisper"
	"github.com/argot-voice/argot/pkg/provider/translate"
	"github.com/argot-voice/argot/pkg/provider/translate/anyllm"
	oaitranslate "github.com/argot-voice/argot/pkg/provider/translate/openai"
	"github.com/argot-voice/argot/pkg/provider/tts"
	"github.com/argot-voice/argot/pkg/provider/tts/coqui"
	"github.com/argot-voice/argot/pkg/provider/tts/elevenlabs"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	sourceLang := flag.String("source-lang", "", "override the configured source language (ISO 639-1 code)")
	targetLang := flag.String("target-lang", "", "override the configured target language (ISO 639-1 code)")
	batchSize := flag.Int("batch-size", 0, "override the configured translation batch size")
	debug := flag.Bool("debug", false, "force debug logging regardless of config")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "argot: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "argot: %v\n", err)
		}
		return 1
	}
	if *sourceLang != "" {
		cfg.Languages.Source = *sourceLang
	}
	if *targetLang != "" {
		cfg.Languages.Target = *targetLang
	}
	if *batchSize > 0 {
		cfg.Pipeline.BatchSize = *batchSize
	}
	if *debug {
		cfg.Server.LogLevel = config.LogDebug
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("argot starting",
		"version", version,
		"config", *configPath,
		"source", cfg.Languages.Source,
		"target", cfg.Languages.Target,
		"listen_addr", cfg.Server.ListenAddr,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── Instantiate providers ─────────────────────────────────────────────────
	providers, err := buildProviders(ctx, cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(cfg, providers)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("pipeline ready, press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── Recognizers ───────────────────────────────────────────────────────────

	reg.RegisterRecognizer("whisper", func(entry config.ProviderEntry) (asr.Recognizer, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterRecognizer("whisper-native", func(entry config.ProviderEntry) (asr.Recognizer, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []whisper.NativeOption
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	// ── Translators ───────────────────────────────────────────────────────────
	// The dedicated openai package speaks the official SDK; the remaining
	// remote backends all share the same any-llm-go pattern of optional
	// APIKey + optional BaseURL.
	reg.RegisterTranslator("openai", func(entry config.ProviderEntry, _ config.LanguagesConfig) (translate.Translator, error) {
		var opts []oaitranslate.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaitranslate.WithBaseURL(entry.BaseURL))
		}
		if temp, ok := optFloat(entry.Options, "temperature"); ok {
			opts = append(opts, oaitranslate.WithTemperature(temp))
		}
		if n, ok := optInt(entry.Options, "max_tokens"); ok {
			opts = append(opts, oaitranslate.WithMaxTokens(n))
		}
		return oaitranslate.New(entry.APIKey, entry.Model, opts...)
	})

	for _, providerName := range []string{
		"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterTranslator(providerName, func(entry config.ProviderEntry, _ config.LanguagesConfig) (translate.Translator, error) {
			var backendOpts []anyllmlib.Option
			if entry.APIKey != "" {
				backendOpts = append(backendOpts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				backendOpts = append(backendOpts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, anyllmOpts(entry), backendOpts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterTranslator("ollama", func(entry config.ProviderEntry, _ config.LanguagesConfig) (translate.Translator, error) {
		var backendOpts []anyllmlib.Option
		if entry.BaseURL != "" {
			backendOpts = append(backendOpts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, anyllmOpts(entry), backendOpts...)
	})

	// ── Synthesizers ──────────────────────────────────────────────────────────

	reg.RegisterSynthesizer("coqui", func(entry config.ProviderEntry, out io.Writer) (tts.Synthesizer, error) {
		return coqui.New(entry.BaseURL, out, coquiOpts(entry)...)
	})

	reg.RegisterSynthesizer("coqui-xtts", func(entry config.ProviderEntry, out io.Writer) (tts.Synthesizer, error) {
		opts := append(coquiOpts(entry), coqui.WithAPIMode(coqui.APIModeXTTS))
		return coqui.New(entry.BaseURL, out, opts...)
	})

	reg.RegisterSynthesizer("elevenlabs", func(entry config.ProviderEntry, out io.Writer) (tts.Synthesizer, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if outputFmt := optString(entry.Options, "output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		return elevenlabs.New(entry.APIKey, entry.Voice, out, opts...)
	})
}

// anyllmOpts extracts the sampling options shared by all any-llm-go backends.
func anyllmOpts(entry config.ProviderEntry) []anyllm.Option {
	var opts []anyllm.Option
	if temp, ok := optFloat(entry.Options, "temperature"); ok {
		opts = append(opts, anyllm.WithTemperature(temp))
	}
	if n, ok := optInt(entry.Options, "max_tokens"); ok {
		opts = append(opts, anyllm.WithMaxTokens(n))
	}
	return opts
}

// coquiOpts extracts the options shared by both Coqui API modes.
func coquiOpts(entry config.ProviderEntry) []coqui.Option {
	var opts []coqui.Option
	if entry.Voice != "" {
		opts = append(opts, coqui.WithVoice(entry.Voice))
	}
	if lang := optString(entry.Options, "language"); lang != "" {
		opts = append(opts, coqui.WithLanguage(lang))
	}
	return opts
}

// buildProviders instantiates the audio source and all providers named in cfg
// and returns them in an [app.Providers] struct for the application to consume.
func buildProviders(ctx context.Context, cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	frameSize := cfg.Audio.SampleRate * cfg.Audio.FrameMs / 1000
	source, err := audio.NewStreamSource(ctx, os.Stdin, audio.StreamConfig{
		SampleRate: cfg.Audio.SampleRate,
		Format:     audio.SampleFormat(cfg.Audio.Format),
		FrameSize:  frameSize,
	})
	if err != nil {
		return nil, fmt.Errorf("create audio source: %w", err)
	}
	ps.Source = source
	slog.Info("audio source ready",
		"sample_rate", cfg.Audio.SampleRate,
		"format", cfg.Audio.Format,
		"frame_ms", cfg.Audio.FrameMs,
	)

	name := cfg.Providers.Recognizer.Name
	ps.Recognizer, err = reg.CreateRecognizer(cfg.Providers.Recognizer)
	if err != nil {
		return nil, fmt.Errorf("create recognizer %q: %w", name, err)
	}
	slog.Info("provider created", "kind", "recognizer", "name", name)

	name = cfg.Providers.Translator.Name
	ps.Translator, err = reg.CreateTranslator(cfg.Providers.Translator, cfg.Languages)
	if err != nil {
		return nil, fmt.Errorf("create translator %q: %w", name, err)
	}
	slog.Info("provider created", "kind", "translator", "name", name)

	if cfg.Output.Speak {
		name = cfg.Providers.Synthesizer.Name
		out, err := synthSink(cfg.Providers.Synthesizer)
		if err != nil {
			return nil, fmt.Errorf("open synthesizer output: %w", err)
		}
		ps.Synthesizer, err = reg.CreateSynthesizer(cfg.Providers.Synthesizer, out)
		if err != nil {
			return nil, fmt.Errorf("create synthesizer %q: %w", name, err)
		}
		slog.Info("provider created", "kind", "synthesizer", "name", name)
	}

	return ps, nil
}

// synthSink resolves where synthesized PCM goes. Defaults to stdout so the
// output can be piped straight into a player; an output_path option redirects
// it to a file instead.
func synthSink(entry config.ProviderEntry) (io.Writer, error) {
	if path := optString(entry.Options, "output_path"); path != "" {
		return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	}
	return os.Stdout, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Fprintln(os.Stderr, "╔═══════════════════════════════════════╗")
	fmt.Fprintln(os.Stderr, "║          Argot startup summary        ║")
	fmt.Fprintln(os.Stderr, "╠═══════════════════════════════════════╣")
	printProvider("Recognizer", cfg.Providers.Recognizer.Name, cfg.Providers.Recognizer.Model)
	printProvider("Translator", cfg.Providers.Translator.Name, cfg.Providers.Translator.Model)
	if cfg.Output.Speak {
		printProvider("Synthesizer", cfg.Providers.Synthesizer.Name, cfg.Providers.Synthesizer.Voice)
	} else {
		printProvider("Synthesizer", "", "")
	}
	printRow("Languages", cfg.Languages.Source+" -> "+cfg.Languages.Target)
	if cfg.Server.ListenAddr != "" {
		printRow("Listen addr", cfg.Server.ListenAddr)
	}
	if cfg.Output.TranscriptDir != "" {
		printRow("Transcripts", cfg.Output.TranscriptDir)
	}
	if cfg.Bridge.Enabled {
		printRow("Bridge", "enabled (/ws)")
	} else {
		printRow("Bridge", "(disabled)")
	}
	fmt.Fprintln(os.Stderr, "╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, detail string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if detail != "" {
		value = name + " / " + detail
	}
	printRow(kind, value)
}

func printRow(kind, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Fprintf(os.Stderr, "║  %-14s  : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

// optFloat extracts a numeric value from a provider Options map. YAML decodes
// numbers as either int or float64 depending on their spelling.
func optFloat(opts map[string]any, key string) (float64, bool) {
	if opts == nil {
		return 0, false
	}
	switch v := opts[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

// optInt extracts an integer value from a provider Options map.
func optInt(opts map[string]any, key string) (int, bool) {
	if opts == nil {
		return 0, false
	}
	v, ok := opts[key].(int)
	if !ok {
		return 0, false
	}
	return v, true
}
