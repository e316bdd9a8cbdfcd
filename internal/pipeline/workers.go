package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/argot-voice/argot/internal/bridge"
	"github.com/argot-voice/argot/internal/observe"
	"github.com/argot-voice/argot/pkg/audio"
	"github.com/argot-voice/argot/pkg/provider/asr"
	"github.com/argot-voice/argot/pkg/provider/translate"
)

// Run executes the pipeline until the source ends or ctx is cancelled.
// After cancellation, stage goroutines get [Config.ShutdownGrace] to finish
// their current provider calls; stragglers are abandoned.
func (p *Pipeline) Run(ctx context.Context) error {
	segCh := make(chan audio.Segment, p.cfg.QueueSize)
	textCh := make(chan TextItem, p.cfg.QueueSize)
	outCh := make(chan TranslatedItem, p.cfg.QueueSize)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.segmentLoop(gctx, segCh) })
	g.Go(func() error { return p.recognizeLoop(gctx, segCh, textCh) })
	g.Go(func() error { return p.translateLoop(gctx, textCh, outCh) })
	g.Go(func() error { return p.outputLoop(gctx, outCh) })

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
	}

	select {
	case err := <-done:
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	case <-time.After(p.cfg.ShutdownGrace):
		slog.Warn("pipeline: shutdown grace expired, abandoning stage goroutines",
			"grace", p.cfg.ShutdownGrace)
		return fmt.Errorf("pipeline: shutdown timed out after %v", p.cfg.ShutdownGrace)
	}
}

// segmentLoop feeds source frames through the segmenter and publishes
// completed segments. A stalled stream is flushed through the idle path so
// a final half-finished utterance still gets recognized.
func (p *Pipeline) segmentLoop(ctx context.Context, out chan<- audio.Segment) error {
	defer close(out)

	seg, err := audio.NewSegmenter(p.cfg.Segmenter)
	if err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	var filter *audio.SpeechFilter
	if p.cfg.Filter {
		filter = audio.NewSpeechFilter()
	}

	emit := func(s *audio.Segment) bool {
		if filter != nil {
			filtered, ferr := filter.Apply(*s)
			if ferr != nil {
				slog.Warn("pipeline: speech filter failed, using raw segment", "error", ferr)
			} else {
				*s = filtered
			}
		}
		p.metrics.RecordSegment(ctx, string(s.Reason))
		select {
		case out <- *s:
			p.metrics.QueueDepth.Add(ctx, 1, metric.WithAttributes(observe.Attr("queue", "segments")))
			return true
		case <-ctx.Done():
			return false
		}
	}

	idle := time.NewTicker(p.cfg.IdlePoll)
	defer idle.Stop()
	lastFrame := time.Now()

	frames := p.source.Frames()
	for {
		select {
		case <-ctx.Done():
			return nil

		case <-idle.C:
			if s := seg.Flush(time.Since(lastFrame)); s != nil {
				if !emit(s) {
					return nil
				}
			}

		case frame, ok := <-frames:
			if !ok {
				// Stream ended: force out whatever is still buffered.
				if s := seg.Flush(p.cfg.Segmenter.LongPauseDuration); s != nil {
					emit(s)
				}
				return nil
			}
			lastFrame = time.Now()
			s, perr := seg.Push(frame)
			if perr != nil {
				slog.Warn("pipeline: dropping frame", "error", perr)
				continue
			}
			if s != nil {
				if !emit(s) {
					return nil
				}
			}
		}
	}
}

// recognizeLoop transcribes segments, drops duplicates, and forwards
// recognized lines. Consecutive recognizer failures trigger a model reload
// when the recognizer supports one.
func (p *Pipeline) recognizeLoop(ctx context.Context, in <-chan audio.Segment, out chan<- TextItem) error {
	defer close(out)

	dedupe := newDeduper(p.cfg.DedupeWindow, p.cfg.FuzzyDedupe)
	consecutiveErrors := 0

	for {
		var segment audio.Segment
		select {
		case <-ctx.Done():
			return nil
		case s, ok := <-in:
			if !ok {
				return nil
			}
			segment = s
		}
		p.metrics.QueueDepth.Add(ctx, -1, metric.WithAttributes(observe.Attr("queue", "segments")))

		sctx, span := observe.StartSpan(ctx, "pipeline.recognize")
		rctx, cancel := context.WithTimeout(sctx, p.cfg.RequestTimeout)
		start := time.Now()
		text, err := p.recognizer.Transcribe(rctx, segment)
		cancel()
		p.metrics.RecognitionDuration.Record(sctx, time.Since(start).Seconds())

		if err != nil {
			span.End()
			consecutiveErrors++
			p.metrics.RecordProviderError(ctx, "recognizer", "recognition")
			observe.Logger(sctx).Warn("pipeline: recognition failed",
				"error", err,
				"segment_duration", segment.Duration(),
				"consecutive_errors", consecutiveErrors,
			)
			if consecutiveErrors >= p.cfg.MaxConsecutiveErrors {
				p.reloadProvider(ctx, p.recognizer, "recognition")
				consecutiveErrors = 0
			}
			// Failed segments are skipped without pausing; live audio keeps
			// arriving and the cooldown belongs to the translation stage.
			continue
		}
		span.End()
		consecutiveErrors = 0

		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		now := time.Now()
		if dedupe.seen(text, now) {
			slog.Debug("pipeline: duplicate line suppressed", "text", text)
			continue
		}

		item := TextItem{PairID: uuid.NewString(), Text: text, At: now}
		p.metrics.LinesRecognized.Add(ctx, 1)
		p.notifyRecognized(item)

		select {
		case out <- item:
		case <-ctx.Done():
			return nil
		}
	}
}

// translateLoop pulls recognized lines in batches, translates each, and
// forwards the results. Failed lines re-enter the queue ahead of new input;
// repeated failures reload the model when the translator supports one.
func (p *Pipeline) translateLoop(ctx context.Context, in <-chan TextItem, out chan<- TranslatedItem) error {
	defer close(out)

	hist := newHistory(p.cfg.ContextWindow)
	retries := newRetryQueue(p.cfg.MaxRetries)
	consecutiveErrors := 0
	lastReload := time.Now()

	for {
		if p.cfg.ReloadInterval > 0 && time.Since(lastReload) >= p.cfg.ReloadInterval {
			p.reloadProvider(ctx, p.translator, "translation")
			lastReload = time.Now()
		}

		batch, more := p.collectBatch(ctx, in, retries)
		if len(batch) == 0 {
			if !more {
				return nil
			}
			continue
		}

		for _, item := range batch {
			req := translate.BuildRequest(p.cfg.SystemPrompt, hist.recent(), item.Text)

			sctx, span := observe.StartSpan(ctx, "pipeline.translate")
			tctx, cancel := context.WithTimeout(sctx, p.cfg.RequestTimeout)
			start := time.Now()
			text, err := p.translator.Translate(tctx, req)
			cancel()
			p.metrics.TranslationDuration.Record(sctx, time.Since(start).Seconds())
			span.End()

			if err == nil && !isValidTranslation(text) {
				err = fmt.Errorf("pipeline: degenerate translation %q", text)
			}
			if err != nil {
				consecutiveErrors++
				p.metrics.RecordProviderError(ctx, "translator", "translation")
				slog.Warn("pipeline: translation failed",
					"error", err,
					"text", item.Text,
					"retries", item.retries,
					"consecutive_errors", consecutiveErrors,
				)
				if retries.push(item) {
					p.metrics.TranslationRetries.Add(ctx, 1)
				} else {
					slog.Error("pipeline: dropping line, retry budget spent", "text", item.Text)
					p.notifyError(fmt.Sprintf("dropped untranslated line: %s", item.Text))
				}
				if consecutiveErrors >= p.cfg.MaxConsecutiveErrors {
					p.reloadProvider(ctx, p.translator, "translation")
					consecutiveErrors = 0
					lastReload = time.Now()
				}
				if !p.cooldown(ctx) {
					return nil
				}
				continue
			}
			consecutiveErrors = 0

			hist.add(item.Text)
			now := time.Now()
			p.metrics.LinesTranslated.Add(ctx, 1)
			p.metrics.PipelineDuration.Record(ctx, now.Sub(item.At).Seconds())

			translated := TranslatedItem{
				PairID: item.PairID,
				Source: item.Text,
				Text:   strings.TrimSpace(text),
				At:     now,
			}
			select {
			case out <- translated:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// collectBatch assembles the next translation batch: queued retries first,
// then one blocking pull from in, then whatever else is immediately
// available. The second return is false once in is closed and no retries
// remain.
func (p *Pipeline) collectBatch(ctx context.Context, in <-chan TextItem, retries *retryQueue) ([]TextItem, bool) {
	batch := make([]TextItem, 0, p.cfg.BatchSize)

	for len(batch) < p.cfg.BatchSize {
		item, ok := retries.pop()
		if !ok {
			break
		}
		batch = append(batch, item)
	}

	if len(batch) == 0 {
		select {
		case <-ctx.Done():
			return nil, false
		case item, ok := <-in:
			if !ok {
				return nil, retries.len() > 0
			}
			batch = append(batch, item)
		}
	}

	for len(batch) < p.cfg.BatchSize {
		select {
		case item, ok := <-in:
			if !ok {
				return batch, retries.len() > 0
			}
			batch = append(batch, item)
		default:
			return batch, true
		}
	}
	return batch, true
}

// outputLoop delivers translated lines to the transcript, the event bridge,
// and the optional synthesizer.
func (p *Pipeline) outputLoop(ctx context.Context, in <-chan TranslatedItem) error {
	for {
		var item TranslatedItem
		select {
		case <-ctx.Done():
			return nil
		case it, ok := <-in:
			if !ok {
				return nil
			}
			item = it
		}

		if p.transcript != nil {
			if err := p.transcript.Translated(item.Source, item.Text, item.At); err != nil {
				slog.Warn("pipeline: transcript write failed", "error", err)
			}
		}
		if p.events != nil {
			p.events.Publish(bridge.Event{
				Type:      bridge.EventTranslated,
				Text:      item.Text,
				PairID:    item.PairID,
				Timestamp: item.At,
			})
		}

		if p.synthesizer == nil {
			continue
		}
		sctx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
		start := time.Now()
		err := p.synthesizer.Speak(sctx, item.Text)
		cancel()
		p.metrics.SynthesisDuration.Record(ctx, time.Since(start).Seconds())
		if err != nil {
			p.metrics.RecordProviderError(ctx, "synthesizer", "synthesis")
			slog.Warn("pipeline: synthesis failed", "error", err, "text", item.Text)
		}
	}
}

// reloadProvider reloads prov in place when it supports reloading. Remote
// API providers do not implement the reload interfaces and are skipped.
func (p *Pipeline) reloadProvider(ctx context.Context, prov any, stage string) {
	var reload func(context.Context) error
	switch r := prov.(type) {
	case translate.Reloader:
		reload = r.Reload
	case asr.Reloader:
		reload = r.Reload
	default:
		slog.Debug("pipeline: provider does not support reload", "stage", stage)
		return
	}

	slog.Info("pipeline: reloading provider model", "stage", stage)
	rctx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
	defer cancel()
	if err := reload(rctx); err != nil {
		slog.Error("pipeline: model reload failed", "stage", stage, "error", err)
		return
	}
	p.metrics.RecordModelReload(ctx, stage)
}

// cooldown pauses after a provider failure. Reports false when ctx ended
// during the pause.
func (p *Pipeline) cooldown(ctx context.Context) bool {
	select {
	case <-time.After(p.cfg.ErrorCooldown):
		return true
	case <-ctx.Done():
		return false
	}
}

func (p *Pipeline) notifyRecognized(item TextItem) {
	if p.transcript != nil {
		if err := p.transcript.Recognized(item.Text, item.At); err != nil {
			slog.Warn("pipeline: transcript write failed", "error", err)
		}
	}
	if p.events != nil {
		p.events.Publish(bridge.Event{
			Type:      bridge.EventRecognized,
			Text:      item.Text,
			PairID:    item.PairID,
			Timestamp: item.At,
		})
	}
}

func (p *Pipeline) notifyError(msg string) {
	if p.events != nil {
		p.events.Publish(bridge.Event{Type: bridge.EventError, Text: msg, Timestamp: time.Now()})
	}
}
