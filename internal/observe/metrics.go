// Package observe provides application-wide observability primitives for
// rovabot: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all rovabot metrics.
const meterName = "github.com/davidcole1340/rovabot"

// Status attribute values shared by the counters below.
const (
	StatusOK      = "ok"
	StatusError   = "error"
	StatusSkipped = "skipped"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// RefreshDuration tracks how long one on-air fetch takes, including
	// failed ones.
	RefreshDuration metric.Float64Histogram

	// RefreshResults counts refresh cycles. Use with attribute:
	//   attribute.String("status", "ok"|"error"|"skipped")
	RefreshResults metric.Int64Counter

	// OnAirStations is the number of records in the current snapshot.
	OnAirStations metric.Int64Gauge

	// BreakerTransitions counts circuit breaker state changes. Use with
	// attributes:
	//   attribute.String("breaker", ...), attribute.String("state", ...)
	BreakerTransitions metric.Int64Counter

	// ActiveVoiceSessions tracks the number of guilds the bot is connected to.
	ActiveVoiceSessions metric.Int64UpDownCounter

	// VoiceSelections counts station selections. Use with attribute:
	//   attribute.String("status", ...)
	VoiceSelections metric.Int64Counter

	// Commands counts handled chat commands. Use with attribute:
	//   attribute.String("command", ...)
	Commands metric.Int64Counter

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// HTTP calls to the Rova API.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.RefreshDuration, err = m.Float64Histogram("rovabot.refresh.duration",
		metric.WithDescription("Latency of on-air refresh fetches."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RefreshResults, err = m.Int64Counter("rovabot.refresh.results",
		metric.WithDescription("Refresh cycles by outcome."),
	); err != nil {
		return nil, err
	}
	if met.OnAirStations, err = m.Int64Gauge("rovabot.onair.stations",
		metric.WithDescription("Number of stations in the current on-air snapshot."),
	); err != nil {
		return nil, err
	}
	if met.BreakerTransitions, err = m.Int64Counter("rovabot.breaker.transitions",
		metric.WithDescription("Circuit breaker state changes by breaker and target state."),
	); err != nil {
		return nil, err
	}
	if met.ActiveVoiceSessions, err = m.Int64UpDownCounter("rovabot.voice.active_sessions",
		metric.WithDescription("Number of guilds with a live voice connection."),
	); err != nil {
		return nil, err
	}
	if met.VoiceSelections, err = m.Int64Counter("rovabot.voice.selections",
		metric.WithDescription("Station selections by outcome."),
	); err != nil {
		return nil, err
	}
	if met.Commands, err = m.Int64Counter("rovabot.commands",
		metric.WithDescription("Handled chat commands by command name."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("rovabot.http.request.duration",
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

// RecordRefresh records one refresh cycle's outcome and, unless it was
// skipped, its duration.
func (m *Metrics) RecordRefresh(ctx context.Context, status string, d time.Duration) {
	m.RefreshResults.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	if status != StatusSkipped {
		m.RefreshDuration.Record(ctx, d.Seconds())
	}
}

// RecordBreakerTransition counts a circuit breaker state change.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, breaker, state string) {
	m.BreakerTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("breaker", breaker),
			attribute.String("state", state),
		),
	)
}

// RecordSelection counts a station selection with its outcome.
func (m *Metrics) RecordSelection(ctx context.Context, status string) {
	m.VoiceSelections.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordCommand counts a handled chat command.
func (m *Metrics) RecordCommand(ctx context.Context, command string) {
	m.Commands.Add(ctx, 1, metric.WithAttributes(attribute.String("command", command)))
}
