// Package app wires all Argot subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects the
// transcript sink, event bridge, HTTP server, and translation pipeline;
// Run executes them until the context ends; Shutdown tears everything down
// in order.
//
// For testing, inject doubles via functional options (WithTranscriptLogger,
// WithPublisher). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/argot-voice/argot/internal/bridge"
	"github.com/argot-voice/argot/internal/config"
	"github.com/argot-voice/argot/internal/health"
	"github.com/argot-voice/argot/internal/logsink"
	"github.com/argot-voice/argot/internal/observe"
	"github.com/argot-voice/argot/internal/pipeline"
	"github.com/argot-voice/argot/pkg/audio"
	"github.com/argot-voice/argot/pkg/provider/asr"
	"github.com/argot-voice/argot/pkg/provider/translate"
	"github.com/argot-voice/argot/pkg/provider/tts"
)

// Providers holds one interface value per pipeline slot. Synthesizer may be
// nil when speech output is disabled. Populated by main.go via the config
// registry.
type Providers struct {
	Source      audio.FrameSource
	Recognizer  asr.Recognizer
	Translator  translate.Translator
	Synthesizer tts.Synthesizer
}

// App owns all subsystem lifetimes and orchestrates the translation
// pipeline.
type App struct {
	cfg       *config.Config
	providers *Providers

	pipe       *pipeline.Pipeline
	hub        *bridge.Bridge
	transcript pipeline.TranscriptLogger
	events     pipeline.Publisher
	httpSrv    *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithTranscriptLogger injects a transcript sink instead of creating one
// from config.
func WithTranscriptLogger(l pipeline.TranscriptLogger) Option {
	return func(a *App) { a.transcript = l }
}

// WithPublisher injects an event publisher instead of creating the
// WebSocket bridge from config.
func WithPublisher(p pipeline.Publisher) Option {
	return func(a *App) { a.events = p }
}

// New creates an App by wiring all subsystems together. The providers
// struct comes from main.go (populated via the config registry). Use Option
// functions to inject test doubles.
func New(cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		return nil, errors.New("app: nil providers")
	}
	if providers.Source == nil {
		return nil, errors.New("app: no audio source configured")
	}
	if providers.Recognizer == nil {
		return nil, errors.New("app: no recognizer configured")
	}
	if providers.Translator == nil {
		return nil, errors.New("app: no translator configured")
	}
	if cfg.Output.Speak && providers.Synthesizer == nil {
		return nil, errors.New("app: output.speak enabled but no synthesizer configured")
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}

	if err := a.initTranscript(); err != nil {
		return nil, fmt.Errorf("app: init transcript: %w", err)
	}
	a.initBridge()
	a.initHTTP()

	if err := a.initPipeline(); err != nil {
		return nil, fmt.Errorf("app: init pipeline: %w", err)
	}

	a.closers = append(a.closers,
		providers.Recognizer.Close,
		providers.Translator.Close,
	)
	if providers.Synthesizer != nil {
		a.closers = append(a.closers, providers.Synthesizer.Close)
	}
	a.closers = append(a.closers, providers.Source.Close)

	return a, nil
}

// initTranscript opens the session transcript sink when configured.
func (a *App) initTranscript() error {
	if a.transcript != nil || a.cfg.Output.TranscriptDir == "" {
		return nil
	}
	sink, err := logsink.New(a.cfg.Output.TranscriptDir,
		logsink.WithLanguages(a.cfg.Languages.Source, a.cfg.Languages.Target))
	if err != nil {
		return err
	}
	a.transcript = sink
	a.closers = append(a.closers, sink.Close)
	slog.Info("transcript sink opened", "dir", a.cfg.Output.TranscriptDir)
	return nil
}

// initBridge creates the WebSocket event bridge when enabled.
func (a *App) initBridge() {
	if a.events != nil || !a.cfg.Bridge.Enabled {
		return
	}
	a.hub = bridge.New()
	a.events = a.hub
	a.closers = append(a.closers, a.hub.Close)
}

// initHTTP assembles the metrics, health, and bridge HTTP server.
func (a *App) initHTTP() {
	if a.cfg.Server.ListenAddr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())

	checks := []health.Checker{
		{Name: "recognizer", Check: func(context.Context) error {
			if a.providers.Recognizer == nil {
				return errors.New("not configured")
			}
			return nil
		}},
		{Name: "translator", Check: func(context.Context) error {
			if a.providers.Translator == nil {
				return errors.New("not configured")
			}
			return nil
		}},
	}
	health.New(checks...).Register(mux)

	if a.hub != nil {
		mux.Handle("GET /ws", a.hub)
	}

	a.httpSrv = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           observe.Middleware(observe.DefaultMetrics())(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// initPipeline translates the file configuration into pipeline wiring.
func (a *App) initPipeline() error {
	systemPrompt := translate.RenderSystemPrompt(
		a.cfg.Providers.Translator.SystemPrompt,
		config.LanguageName(a.cfg.Languages.Source),
		config.LanguageName(a.cfg.Languages.Target),
	)

	pcfg := pipeline.Config{
		Segmenter: audio.SegmenterConfig{
			SampleRate:          a.cfg.Audio.SampleRate,
			Format:              audio.SampleFormat(a.cfg.Audio.Format),
			MinBufferDuration:   time.Duration(a.cfg.Pipeline.MinSegmentMs) * time.Millisecond,
			MaxBufferDuration:   time.Duration(a.cfg.Pipeline.MaxSegmentMs) * time.Millisecond,
			MediumPauseDuration: time.Duration(a.cfg.Pipeline.MediumPauseMs) * time.Millisecond,
			LongPauseDuration:   time.Duration(a.cfg.Pipeline.LongPauseMs) * time.Millisecond,
			VAD: audio.VADConfig{
				VoiceThreshold:        a.cfg.Audio.EnergyThreshold,
				ZeroCrossingThreshold: a.cfg.Audio.CrossingThreshold,
			},
		},
		Filter:               a.cfg.Audio.Filter,
		SystemPrompt:         systemPrompt,
		QueueSize:            a.cfg.Pipeline.QueueSize,
		BatchSize:            a.cfg.Pipeline.BatchSize,
		ContextWindow:        a.cfg.Pipeline.ContextWindow,
		DedupeWindow:         time.Duration(a.cfg.Pipeline.DedupeWindowMs) * time.Millisecond,
		FuzzyDedupe:          a.cfg.Pipeline.FuzzyDedupe,
		MaxRetries:           a.cfg.Pipeline.MaxRetries,
		MaxConsecutiveErrors: a.cfg.Pipeline.MaxConsecutiveErrors,
		ErrorCooldown:        time.Duration(a.cfg.Pipeline.ErrorCooldownMs) * time.Millisecond,
		ReloadInterval:       time.Duration(a.cfg.Pipeline.ReloadIntervalMs) * time.Millisecond,
		RequestTimeout:       time.Duration(a.cfg.Pipeline.RequestTimeoutMs) * time.Millisecond,
	}

	var popts []pipeline.Option
	if a.cfg.Output.Speak {
		popts = append(popts, pipeline.WithSynthesizer(a.providers.Synthesizer))
	}
	if a.transcript != nil {
		popts = append(popts, pipeline.WithTranscript(a.transcript))
	}
	if a.events != nil {
		popts = append(popts, pipeline.WithEvents(a.events))
	}

	p, err := pipeline.New(pcfg, a.providers.Source, a.providers.Recognizer, a.providers.Translator, popts...)
	if err != nil {
		return err
	}
	a.pipe = p
	return nil
}

// Run starts the HTTP server and the translation pipeline and blocks until
// the pipeline ends or ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a.httpSrv != nil {
		go func() {
			slog.Info("http server listening", "addr", a.httpSrv.Addr)
			if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("http server error", "err", err)
			}
		}()
	}

	if a.events != nil {
		a.events.Publish(bridge.Event{Type: bridge.EventStatus, Text: "pipeline started"})
	}

	err := a.pipe.Run(ctx)

	if a.events != nil {
		a.events.Publish(bridge.Event{Type: bridge.EventStatus, Text: "pipeline stopped"})
	}
	return err
}

// Shutdown tears down all subsystems. It respects the context deadline: if
// ctx expires before all closers finish, remaining closers are skipped and
// the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if a.httpSrv != nil {
			if err := a.httpSrv.Shutdown(ctx); err != nil {
				slog.Warn("http server shutdown error", "err", err)
			}
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
