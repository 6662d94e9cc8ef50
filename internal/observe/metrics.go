// Package observe provides application-wide observability primitives for
// Voxline: OpenTelemetry metrics, distributed tracing, and HTTP middleware
// that ties them together.
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

// meterName is the instrumentation scope name used for all Voxline metrics.
const meterName = "github.com/corvid-labs/voxline"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// EmbedDuration tracks voice embedding extraction latency.
	EmbedDuration metric.Float64Histogram

	// SynthDuration tracks speech synthesis latency.
	SynthDuration metric.Float64Histogram

	// DecisionDuration tracks version decision latency, index search included.
	DecisionDuration metric.Float64Histogram

	// PlaybackDuration tracks age-based playback resolution latency.
	PlaybackDuration metric.Float64Histogram

	// --- Counters ---

	// Decisions counts version decisions. Use with attribute:
	//   attribute.String("action", ...)
	Decisions metric.Int64Counter

	// PlaybackRequests counts playback resolutions. Use with attribute:
	//   attribute.String("label", ...)
	PlaybackRequests metric.Int64Counter

	// CacheEvents counts playback audio cache hits and misses. Use with
	// attribute: attribute.String("result", "hit"|"miss")
	CacheEvents metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// RateLimited counts playback requests rejected by the per-user limiter.
	RateLimited metric.Int64Counter

	// --- Gauges ---

	// ActiveUsers tracks the number of users with at least one voice version
	// loaded in the index.
	ActiveUsers metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for embedding and synthesis latencies.
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
	if met.EmbedDuration, err = m.Float64Histogram("voxline.embed.duration",
		metric.WithDescription("Latency of voice embedding extraction."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SynthDuration, err = m.Float64Histogram("voxline.synth.duration",
		metric.WithDescription("Latency of speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.DecisionDuration, err = m.Float64Histogram("voxline.decision.duration",
		metric.WithDescription("Latency of version decisions including index search."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PlaybackDuration, err = m.Float64Histogram("voxline.playback.duration",
		metric.WithDescription("Latency of age-based playback resolution."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Decisions, err = m.Int64Counter("voxline.decisions",
		metric.WithDescription("Total version decisions by action."),
	); err != nil {
		return nil, err
	}
	if met.PlaybackRequests, err = m.Int64Counter("voxline.playback.requests",
		metric.WithDescription("Total playback resolutions by label."),
	); err != nil {
		return nil, err
	}
	if met.CacheEvents, err = m.Int64Counter("voxline.cache.events",
		metric.WithDescription("Playback audio cache hits and misses."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("voxline.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.RateLimited, err = m.Int64Counter("voxline.rate_limited",
		metric.WithDescription("Playback requests rejected by the per-user rate limiter."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveUsers, err = m.Int64UpDownCounter("voxline.active_users",
		metric.WithDescription("Number of users with voice versions loaded in the index."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("voxline.http.request.duration",
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

// RecordDecision records a version decision counter increment.
func (m *Metrics) RecordDecision(ctx context.Context, action string) {
	m.Decisions.Add(ctx, 1,
		metric.WithAttributes(attribute.String("action", action)),
	)
}

// RecordPlayback records a playback resolution counter increment.
func (m *Metrics) RecordPlayback(ctx context.Context, label string) {
	m.PlaybackRequests.Add(ctx, 1,
		metric.WithAttributes(attribute.String("label", label)),
	)
}

// RecordCacheEvent records a playback cache hit or miss.
func (m *Metrics) RecordCacheEvent(ctx context.Context, result string) {
	m.CacheEvents.Add(ctx, 1,
		metric.WithAttributes(attribute.String("result", result)),
	)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
