package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Instrument describes one metric. Buckets only apply to histograms.
type Instrument struct {
	Name        string
	Description string
	Unit        string
	Buckets     []float64
}

// Counter counts events.
type Counter struct {
	c metric.Int64Counter
}

// NewCounter registers a monotonic counter on meter.
func NewCounter(meter metric.Meter, in Instrument) (*Counter, error) {
	c, err := meter.Int64Counter(in.Name, metric.WithDescription(in.Description), metric.WithUnit(in.Unit))
	if err != nil {
		return nil, fmt.Errorf("counter %s: %w", in.Name, err)
	}
	return &Counter{c: c}, nil
}

// Inc adds one.
func (c *Counter) Inc(ctx context.Context, attrs ...attribute.KeyValue) {
	c.c.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// Gauge holds a last-value reading.
type Gauge struct {
	g metric.Int64Gauge
}

// NewGauge registers a gauge on meter.
func NewGauge(meter metric.Meter, in Instrument) (*Gauge, error) {
	g, err := meter.Int64Gauge(in.Name, metric.WithDescription(in.Description), metric.WithUnit(in.Unit))
	if err != nil {
		return nil, fmt.Errorf("gauge %s: %w", in.Name, err)
	}
	return &Gauge{g: g}, nil
}

// Set records v as the current value.
func (g *Gauge) Set(ctx context.Context, v int64, attrs ...attribute.KeyValue) {
	g.g.Record(ctx, v, metric.WithAttributes(attrs...))
}

// Timer is a histogram of durations in seconds.
type Timer struct {
	h metric.Float64Histogram
}

// NewTimer registers a duration histogram on meter.
func NewTimer(meter metric.Meter, in Instrument) (*Timer, error) {
	opts := []metric.Float64HistogramOption{metric.WithDescription(in.Description), metric.WithUnit("s")}
	if len(in.Buckets) > 0 {
		opts = append(opts, metric.WithExplicitBucketBoundaries(in.Buckets...))
	}
	h, err := meter.Float64Histogram(in.Name, opts...)
	if err != nil {
		return nil, fmt.Errorf("histogram %s: %w", in.Name, err)
	}
	return &Timer{h: h}, nil
}

// Observe records d.
func (t *Timer) Observe(ctx context.Context, d time.Duration, attrs ...attribute.KeyValue) {
	t.h.Record(ctx, d.Seconds(), metric.WithAttributes(attrs...))
}

// Attribute keys shared by the sync instruments.
var (
	AttrOutcome  = attribute.Key("outcome")
	AttrApproved = attribute.Key("approved")
	AttrResult   = attribute.Key("result")
	AttrKind     = attribute.Key("change.kind")
	AttrSource   = attribute.Key("change.source")
)

// Bucket boundaries in seconds, sized to the poll and decision timeouts.
var (
	DecisionLatencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15, 30}
	PollDurationBuckets    = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8}
)
