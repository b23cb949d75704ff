// Package metrics wires the Session Manager's runtime counters into OTel
// metric instruments (SPEC_FULL.md §1.1 observability): per-destination
// queue depth, in-flight request count, retry count, and completion
// latency.
package metrics

import (
	"context"

	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Recorder holds the instruments the session manager reports through. The
// transport pools do not call it, so QueueDepthDelta has no caller in this
// module. A nil *Recorder is safe to call methods on (they no-op),
// so instrumentation stays optional for callers that never built one.
type Recorder struct {
	queueDepth        metric.Int64UpDownCounter
	inFlight          metric.Int64UpDownCounter
	retries           metric.Int64Counter
	completionLatency metric.Float64Histogram
}

// NewRecorder builds a Recorder against meter, typically
// provider.Meter("sourcequery/engine").
func NewRecorder(meter metric.Meter) (*Recorder, error) {
	queueDepth, err := meter.Int64UpDownCounter("sourcequery.queue_depth",
		metric.WithDescription("pending writes queued per destination"))
	if err != nil {
		return nil, err
	}
	inFlight, err := meter.Int64UpDownCounter("sourcequery.requests_in_flight",
		metric.WithDescription("requests awaiting a correlated reply"))
	if err != nil {
		return nil, err
	}
	retries, err := meter.Int64Counter("sourcequery.retries_total",
		metric.WithDescription("UDP retry attempts issued"))
	if err != nil {
		return nil, err
	}
	completionLatency, err := meter.Float64Histogram("sourcequery.completion_latency_seconds",
		metric.WithDescription("time from dispatch to future completion"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	return &Recorder{
		queueDepth:        queueDepth,
		inFlight:          inFlight,
		retries:           retries,
		completionLatency: completionLatency,
	}, nil
}

// NewProvider builds a minimal in-process MeterProvider with no exporter
// registered; callers that want metrics scraped attach a reader
// (sdkmetric.WithReader) themselves. Kept separate from NewRecorder so
// tests can supply their own provider/reader pair.
func NewProvider(opts ...sdkmetric.Option) *sdkmetric.MeterProvider {
	return sdkmetric.NewMeterProvider(opts...)
}

func (r *Recorder) QueueDepthDelta(ctx context.Context, delta int64, dest string) {
	if r == nil {
		return
	}
	r.queueDepth.Add(ctx, delta, metric.WithAttributes(destAttr(dest)))
}

func (r *Recorder) InFlightDelta(ctx context.Context, delta int64, dest string) {
	if r == nil {
		return
	}
	r.inFlight.Add(ctx, delta, metric.WithAttributes(destAttr(dest)))
}

func (r *Recorder) RetryObserved(ctx context.Context, dest string) {
	if r == nil {
		return
	}
	r.retries.Add(ctx, 1, metric.WithAttributes(destAttr(dest)))
}

func (r *Recorder) CompletionObserved(ctx context.Context, seconds float64, dest, kind string) {
	if r == nil {
		return
	}
	r.completionLatency.Record(ctx, seconds, metric.WithAttributes(destAttr(dest), kindAttr(kind)))
}
