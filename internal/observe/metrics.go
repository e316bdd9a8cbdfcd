// Package observe provides application-wide observability primitives for
// Argot: OpenTelemetry metrics, distributed tracing, structured logging, and
// HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Argot metrics.
const meterName = "github.com/argot-voice/argot"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// RecognitionDuration tracks speech recognition latency per segment.
	RecognitionDuration metric.Float64Histogram

	// TranslationDuration tracks translation latency per batch item.
	TranslationDuration metric.Float64Histogram

	// SynthesisDuration tracks speech synthesis latency per line.
	SynthesisDuration metric.Float64Histogram

	// PipelineDuration tracks end-to-end latency from segment cut to
	// translated line.
	PipelineDuration metric.Float64Histogram

	// --- Counters ---

	// SegmentsEmitted counts segments cut by the segmenter. Use with
	// attribute: attribute.String("reason", ...)
	SegmentsEmitted metric.Int64Counter

	// LinesRecognized counts recognized lines that passed deduplication.
	LinesRecognized metric.Int64Counter

	// LinesTranslated counts accepted translations.
	LinesTranslated metric.Int64Counter

	// TranslationRetries counts items re-queued after a failed or invalid
	// translation.
	TranslationRetries metric.Int64Counter

	// ModelReloads counts backend model reloads. Use with attribute:
	//   attribute.String("stage", ...)
	ModelReloads metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("stage", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// QueueDepth tracks items buffered between stages. Use with attribute:
	//   attribute.String("queue", ...)
	QueueDepth metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.RecognitionDuration, err = m.Float64Histogram("argot.recognition.duration",
		metric.WithDescription("Latency of speech recognition per segment."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranslationDuration, err = m.Float64Histogram("argot.translation.duration",
		metric.WithDescription("Latency of translation per item."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SynthesisDuration, err = m.Float64Histogram("argot.synthesis.duration",
		metric.WithDescription("Latency of speech synthesis per line."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PipelineDuration, err = m.Float64Histogram("argot.pipeline.duration",
		metric.WithDescription("End-to-end latency from segment cut to translated line."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.SegmentsEmitted, err = m.Int64Counter("argot.segments.emitted",
		metric.WithDescription("Total segments cut by the segmenter, by reason."),
	); err != nil {
		return nil, err
	}
	if met.LinesRecognized, err = m.Int64Counter("argot.lines.recognized",
		metric.WithDescription("Total recognized lines that passed deduplication."),
	); err != nil {
		return nil, err
	}
	if met.LinesTranslated, err = m.Int64Counter("argot.lines.translated",
		metric.WithDescription("Total accepted translations."),
	); err != nil {
		return nil, err
	}
	if met.TranslationRetries, err = m.Int64Counter("argot.translation.retries",
		metric.WithDescription("Total items re-queued after a failed or invalid translation."),
	); err != nil {
		return nil, err
	}
	if met.ModelReloads, err = m.Int64Counter("argot.model.reloads",
		metric.WithDescription("Total backend model reloads by stage."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("argot.provider.errors",
		metric.WithDescription("Total provider errors by provider and stage."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.QueueDepth, err = m.Int64UpDownCounter("argot.queue.depth",
		metric.WithDescription("Items buffered between pipeline stages, by queue."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("argot.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordSegment records a segment-emitted counter increment with its cut
// reason.
func (m *Metrics) RecordSegment(ctx context.Context, reason string) {
	m.SegmentsEmitted.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, stage string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("stage", stage),
		),
	)
}

// RecordModelReload records a model reload counter increment for a stage.
func (m *Metrics) RecordModelReload(ctx context.Context, stage string) {
	m.ModelReloads.Add(ctx, 1,
		metric.WithAttributes(attribute.String("stage", stage)),
	)
}
