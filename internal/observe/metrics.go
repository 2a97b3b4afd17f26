// Package observe provides the observability primitives for jarvis:
// OpenTelemetry metrics, tracing helpers, trace-aware structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported to
// Prometheus by [InitProvider]; [MetricsHandler] serves them on /metrics.
// A package-level [Metrics] instance ([DefaultMetrics]) is available for
// convenience; tests should use [NewMetrics] with their own
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"strconv"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all jarvis metrics.
const meterName = "github.com/MrWong99/jarvis"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// VADDuration tracks voice activity detection latency per segment.
	VADDuration metric.Float64Histogram

	// STTDuration tracks transcription latency, including time spent waiting
	// for a transcription slot.
	STTDuration metric.Float64Histogram

	// LLMDuration tracks assistant completion latency.
	LLMDuration metric.Float64Histogram

	// BroadcastDuration tracks how long a fan-out to all clients takes.
	BroadcastDuration metric.Float64Histogram

	// --- Counters ---

	// Segments counts classified segments. Attribute: speech=true|false.
	Segments metric.Int64Counter

	// DecodeErrors counts payloads that could not be decoded as audio.
	DecodeErrors metric.Int64Counter

	// ProviderRequests counts provider calls. Attributes: provider, kind, status.
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider failures. Attributes: provider, kind.
	ProviderErrors metric.Int64Counter

	// RelayDropped counts transcripts lost to relay overflow. Attribute: policy.
	RelayDropped metric.Int64Counter

	// AssistantOutputs counts worker outcomes. Attribute:
	// kind=response|task|silent|violation|error.
	AssistantOutputs metric.Int64Counter

	// BroadcastSends counts per-client deliveries. Attribute: status=ok|error.
	BroadcastSends metric.Int64Counter

	// --- Gauges ---

	// ActiveConnections tracks the number of registered client connections.
	ActiveConnections metric.Int64UpDownCounter

	// RelayDepth tracks the number of transcripts waiting for the worker.
	RelayDepth metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Attributes:
	// method, path.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for the
// speech pipeline.
var latencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	histograms := []struct {
		dst  *metric.Float64Histogram
		name string
		desc string
	}{
		{&met.VADDuration, "jarvis.vad.duration", "Latency of voice activity detection per segment."},
		{&met.STTDuration, "jarvis.stt.duration", "Latency of speech-to-text transcription."},
		{&met.LLMDuration, "jarvis.llm.duration", "Latency of assistant LLM completions."},
		{&met.BroadcastDuration, "jarvis.broadcast.duration", "Latency of a fan-out to all connected clients."},
	}
	for _, h := range histograms {
		if *h.dst, err = m.Float64Histogram(h.name,
			metric.WithDescription(h.desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		); err != nil {
			return nil, err
		}
	}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&met.Segments, "jarvis.segments", "Classified audio segments by speech outcome."},
		{&met.DecodeErrors, "jarvis.decode.errors", "Client payloads that could not be decoded."},
		{&met.ProviderRequests, "jarvis.provider.requests", "Provider calls by provider, kind, and status."},
		{&met.ProviderErrors, "jarvis.provider.errors", "Provider failures by provider and kind."},
		{&met.RelayDropped, "jarvis.relay.dropped", "Transcripts discarded because the relay was full."},
		{&met.AssistantOutputs, "jarvis.assistant.outputs", "Assistant worker outcomes by kind."},
		{&met.BroadcastSends, "jarvis.broadcast.sends", "Per-client broadcast deliveries by status."},
	}
	for _, c := range counters {
		if *c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, err
		}
	}

	if met.ActiveConnections, err = m.Int64UpDownCounter("jarvis.active_connections",
		metric.WithDescription("Number of registered client connections."),
	); err != nil {
		return nil, err
	}
	if met.RelayDepth, err = m.Int64UpDownCounter("jarvis.relay.depth",
		metric.WithDescription("Transcripts waiting for the assistant worker."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("jarvis.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
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

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
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

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordSegment counts one classified segment.
func (m *Metrics) RecordSegment(ctx context.Context, speech bool) {
	m.Segments.Add(ctx, 1, metric.WithAttributes(attribute.String("speech", strconv.FormatBool(speech))))
}

// RecordProviderRequest counts one provider call with its outcome.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError counts one provider failure.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordRelayDrop counts one transcript lost to overflow.
func (m *Metrics) RecordRelayDrop(ctx context.Context, policy string) {
	m.RelayDropped.Add(ctx, 1, metric.WithAttributes(attribute.String("policy", policy)))
}

// RecordAssistantOutput counts one worker outcome.
func (m *Metrics) RecordAssistantOutput(ctx context.Context, kind string) {
	m.AssistantOutputs.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordBroadcastSend counts one per-client delivery.
func (m *Metrics) RecordBroadcastSend(ctx context.Context, ok bool) {
	status := "ok"
	if !ok {
		status = "error"
	}
	m.BroadcastSends.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}
