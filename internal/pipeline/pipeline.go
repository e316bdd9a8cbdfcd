// Package pipeline wires the live translation stages together.
//
// Audio frames flow from a [audio.FrameSource] through segmentation,
// recognition, and translation, then out to transcript files, the event
// bridge, and optionally speech synthesis:
//
//	frames → segmenter → recognizer → translator → outputs
//
// Stages run as independent goroutines connected by bounded channels, so a
// slow provider backs pressure up the pipe instead of growing unbounded
// queues. Failed translations re-enter the queue ahead of new lines and are
// retried until they succeed, unless a retry cap is configured.
package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/argot-voice/argot/internal/bridge"
	"github.com/argot-voice/argot/internal/observe"
	"github.com/argot-voice/argot/pkg/audio"
	"github.com/argot-voice/argot/pkg/provider/asr"
	"github.com/argot-voice/argot/pkg/provider/translate"
	"github.com/argot-voice/argot/pkg/provider/tts"
)

// Config tunes the pipeline stages. Zero values fall back to the defaults
// noted per field.
type Config struct {
	// Segmenter is the buffering and pause policy for utterance
	// segmentation. Required.
	Segmenter audio.SegmenterConfig

	// Filter applies the speech band-pass and noise gate to emitted
	// segments before recognition.
	Filter bool

	// SystemPrompt is the rendered translation instruction sent with every
	// request. Required.
	SystemPrompt string

	// QueueSize bounds the inter-stage channels. Default 32.
	QueueSize int

	// BatchSize is the number of lines pulled per translation round.
	// Default 4.
	BatchSize int

	// ContextWindow is the number of previous source lines included in the
	// translation prompt. Default 3.
	ContextWindow int

	// DedupeWindow suppresses recognized lines exactly repeating the last
	// emitted line within this span. Default 5s.
	DedupeWindow time.Duration

	// FuzzyDedupe widens duplicate suppression to any line emitted within
	// the window, matched by normalized text and string similarity.
	FuzzyDedupe bool

	// MaxRetries caps how many times a failed line re-enters the translation
	// queue. Zero retries indefinitely; the error cooldown keeps the retry
	// queue from growing faster than one line per cooldown period.
	MaxRetries int

	// MaxConsecutiveErrors triggers a provider model reload when reached.
	// Default 3.
	MaxConsecutiveErrors int

	// ErrorCooldown is the pause after a failed provider request. Default 2s.
	ErrorCooldown time.Duration

	// ReloadInterval periodically reloads the translator model regardless of
	// errors, checked once per translation round. Zero disables the timer.
	// Backends without reload support (remote APIs) are unaffected.
	ReloadInterval time.Duration

	// RequestTimeout bounds a single provider request. Default 30s.
	RequestTimeout time.Duration

	// ShutdownGrace is how long Run waits for stage goroutines after
	// cancellation before abandoning them. Default 5s.
	ShutdownGrace time.Duration

	// IdlePoll is how often the segmenter checks for a stalled stream.
	// Default 250ms.
	IdlePoll time.Duration
}

func (c *Config) applyDefaults() {
	if c.QueueSize <= 0 {
		c.QueueSize = 32
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 4
	}
	if c.ContextWindow < 0 {
		c.ContextWindow = 0
	}
	if c.DedupeWindow <= 0 {
		c.DedupeWindow = 5 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.MaxConsecutiveErrors <= 0 {
		c.MaxConsecutiveErrors = 3
	}
	if c.ErrorCooldown <= 0 {
		c.ErrorCooldown = 2 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = 5 * time.Second
	}
	if c.IdlePoll <= 0 {
		c.IdlePoll = 250 * time.Millisecond
	}
}

// TranscriptLogger receives finished lines for file output. Implemented by
// the logsink package.
type TranscriptLogger interface {
	Recognized(text string, at time.Time) error
	Translated(source, translated string, at time.Time) error
}

// Publisher receives pipeline events for live clients. Implemented by the
// bridge package.
type Publisher interface {
	Publish(ev bridge.Event)
}

// Pipeline runs the segment → recognize → translate → output stages over
// one audio source.
type Pipeline struct {
	cfg Config

	source      audio.FrameSource
	recognizer  asr.Recognizer
	translator  translate.Translator
	synthesizer tts.Synthesizer

	transcript TranscriptLogger
	events     Publisher
	metrics    *observe.Metrics
}

// Option configures optional pipeline outputs.
type Option func(*Pipeline)

// WithSynthesizer speaks every translated line through s.
func WithSynthesizer(s tts.Synthesizer) Option {
	return func(p *Pipeline) { p.synthesizer = s }
}

// WithTranscript writes finished lines through t.
func WithTranscript(t TranscriptLogger) Option {
	return func(p *Pipeline) { p.transcript = t }
}

// WithEvents publishes pipeline events through pub.
func WithEvents(pub Publisher) Option {
	return func(p *Pipeline) { p.events = pub }
}

// WithMetrics overrides the metrics instance. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// New validates the configuration and assembles a pipeline. Run starts it.
func New(cfg Config, source audio.FrameSource, recognizer asr.Recognizer, translator translate.Translator, opts ...Option) (*Pipeline, error) {
	if source == nil {
		return nil, errors.New("pipeline: nil frame source")
	}
	if recognizer == nil {
		return nil, errors.New("pipeline: nil recognizer")
	}
	if translator == nil {
		return nil, errors.New("pipeline: nil translator")
	}
	if err := cfg.Segmenter.Validate(); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	if cfg.SystemPrompt == "" {
		return nil, errors.New("pipeline: empty system prompt")
	}
	cfg.applyDefaults()

	p := &Pipeline{
		cfg:        cfg,
		source:     source,
		recognizer: recognizer,
		translator: translator,
	}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	return p, nil
}
