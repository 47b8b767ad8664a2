// Package observe provides application-wide observability primitives for
// facetalk: OpenTelemetry metrics, tracing, request-scoped logging, and the
// HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and bridged to
// Prometheus by [InitProvider] so they can be scraped at /metrics. A
// package-level [DefaultMetrics] instance exists for convenience; tests
// should use [NewMetrics] with their own [metric.MeterProvider].
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all facetalk metrics.
const meterName = "github.com/MrWong99/facetalk"

// Speech session outcomes recorded by [Metrics.RecordSpeech].
const (
	OutcomeCompleted   = "completed"
	OutcomeInterrupted = "interrupted"
	OutcomeFailed      = "failed"
)

// Metrics holds the OpenTelemetry instruments of the application. All fields
// are safe for concurrent use.
type Metrics struct {
	// STTDuration tracks how long one recognition session took, from the
	// first audio chunk to the final transcript.
	STTDuration metric.Float64Histogram

	// TTSDuration tracks time to first synthesized audio.
	TTSDuration metric.Float64Histogram

	// FrameDuration tracks the cost of one animation driver step.
	FrameDuration metric.Float64Histogram

	// ProviderRequests counts provider calls. Attributes:
	//   provider, kind ("stt" | "tts"), status ("ok" | "error")
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Attributes: provider, kind.
	ProviderErrors metric.Int64Counter

	// QAMatches counts matcher lookups. Attribute: result ("hit" | "miss").
	QAMatches metric.Int64Counter

	// SpeechSessions counts finished speech output sessions. Attribute:
	// outcome (see the Outcome constants).
	SpeechSessions metric.Int64Counter

	// ActiveSessions tracks live websocket client sessions.
	ActiveSessions metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Attributes:
	// method, route.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are histogram boundaries in seconds tuned for speech latency.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// frameBuckets cover sub-millisecond to one-frame (16ms) step costs.
var frameBuckets = []float64{
	0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.0167,
}

// NewMetrics creates all instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.STTDuration, err = m.Float64Histogram("facetalk.stt.duration",
		metric.WithDescription("Duration of one speech recognition session."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("facetalk.tts.duration",
		metric.WithDescription("Time until the first synthesized audio chunk."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.FrameDuration, err = m.Float64Histogram("facetalk.avatar.frame.duration",
		metric.WithDescription("Cost of one animation driver step."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(frameBuckets...),
	); err != nil {
		return nil, err
	}

	if met.ProviderRequests, err = m.Int64Counter("facetalk.provider.requests",
		metric.WithDescription("Provider requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("facetalk.provider.errors",
		metric.WithDescription("Provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.QAMatches, err = m.Int64Counter("facetalk.qa.matches",
		metric.WithDescription("Q&A lookups by result."),
	); err != nil {
		return nil, err
	}
	if met.SpeechSessions, err = m.Int64Counter("facetalk.speech.sessions",
		metric.WithDescription("Finished speech output sessions by outcome."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("facetalk.active_sessions",
		metric.WithDescription("Number of connected avatar sessions."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("facetalk.http.request.duration",
		metric.WithDescription("HTTP request latency by method and route."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, created on
// first call from [otel.GetMeterProvider]. Panics if instrument creation
// fails.
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

// Attr is a short alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest counts one provider call.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError counts one provider error.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordMatch counts a Q&A lookup as a hit or a miss.
func (m *Metrics) RecordMatch(ctx context.Context, matched bool) {
	result := "miss"
	if matched {
		result = "hit"
	}
	m.QAMatches.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordSpeech counts one finished speech session.
func (m *Metrics) RecordSpeech(ctx context.Context, outcome string) {
	m.SpeechSessions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordFrame records the cost of one driver step.
func (m *Metrics) RecordFrame(ctx context.Context, d time.Duration) {
	m.FrameDuration.Record(ctx, d.Seconds())
}
