package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/jerson21/santitelas-frontend-sub003/internal/domain/validation"
)

// SyncMetrics records the health of the transfer-validation sync client:
// pending backlog, connection churn, poll fallback results and decision
// outcomes.
type SyncMetrics struct {
	logger *zap.Logger

	pending   *Gauge
	connected *Gauge

	reconnects *Counter
	polls      *Counter
	decisions  *Counter
	changes    *Counter

	pollDuration    *Timer
	decisionLatency *Timer
}

// SyncMetricsConfig holds configuration for sync metrics.
type SyncMetricsConfig struct {
	Meter  metric.Meter
	Logger *zap.Logger
}

// NewSyncMetrics creates the instruments.
func NewSyncMetrics(cfg SyncMetricsConfig) (*SyncMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	sm := &SyncMetrics{logger: logger}

	gauges := []struct {
		dst **Gauge
		in  Instrument
	}{
		{&sm.pending, Instrument{Name: "transfer_sync_pending", Description: "Transfers awaiting manual validation", Unit: "{transfers}"}},
		{&sm.connected, Instrument{Name: "transfer_sync_connected", Description: "1 while the push channel is connected", Unit: "1"}},
	}
	for _, g := range gauges {
		v, err := NewGauge(cfg.Meter, g.in)
		if err != nil {
			return nil, err
		}
		*g.dst = v
	}

	counters := []struct {
		dst **Counter
		in  Instrument
	}{
		{&sm.reconnects, Instrument{Name: "transfer_sync_reconnect_attempts_total", Description: "Reconnection attempts scheduled after a drop", Unit: "{attempts}"}},
		{&sm.polls, Instrument{Name: "transfer_sync_polls_total", Description: "Poll fallback fetches by result", Unit: "{polls}"}},
		{&sm.decisions, Instrument{Name: "transfer_sync_decisions_total", Description: "Approve/reject decisions by outcome", Unit: "{decisions}"}},
		{&sm.changes, Instrument{Name: "transfer_sync_store_changes_total", Description: "Store mutations by kind and source", Unit: "{changes}"}},
	}
	for _, c := range counters {
		v, err := NewCounter(cfg.Meter, c.in)
		if err != nil {
			return nil, err
		}
		*c.dst = v
	}

	var err error
	if sm.pollDuration, err = NewTimer(cfg.Meter, Instrument{
		Name:        "transfer_sync_poll_duration_seconds",
		Description: "Poll fallback fetch latency",
		Buckets:     PollDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if sm.decisionLatency, err = NewTimer(cfg.Meter, Instrument{
		Name:        "transfer_sync_decision_latency_seconds",
		Description: "Time from sending a decision to its outcome",
		Buckets:     DecisionLatencyBuckets,
	}); err != nil {
		return nil, err
	}

	return sm, nil
}

// OnStoreChange is a store listener recording the backlog and change kinds.
func (sm *SyncMetrics) OnStoreChange(cs validation.ChangeSet) {
	ctx := context.Background()
	sm.pending.Set(ctx, int64(cs.Count))
	for _, c := range cs.Changes {
		sm.changes.Inc(ctx, AttrKind.String(string(c.Kind)), AttrSource.String(string(cs.Source)))
	}
}

// ConnectionChanged records the push channel state.
func (sm *SyncMetrics) ConnectionChanged(connected bool) {
	var v int64
	if connected {
		v = 1
	}
	sm.connected.Set(context.Background(), v)
}

// ReconnectScheduled counts a reconnection attempt.
func (sm *SyncMetrics) ReconnectScheduled(attempt int, delay time.Duration) {
	sm.reconnects.Inc(context.Background())
	sm.logger.Debug("reconnect scheduled", zap.Int("attempt", attempt), zap.Duration("delay", delay))
}

// PollCompleted records a poll fallback fetch.
func (sm *SyncMetrics) PollCompleted(ctx context.Context, err error, _ int, latency time.Duration) {
	result := "ok"
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		result = "timeout"
	case err != nil:
		result = "error"
	}
	sm.polls.Inc(ctx, AttrResult.String(result))
	sm.pollDuration.Observe(ctx, latency, AttrResult.String(result))
}

// DecisionCompleted records a decision outcome.
func (sm *SyncMetrics) DecisionCompleted(ctx context.Context, approved bool, outcome validation.Outcome, latency time.Duration) {
	sm.decisions.Inc(ctx, AttrApproved.Bool(approved), AttrOutcome.String(string(outcome)))
	sm.decisionLatency.Observe(ctx, latency, AttrOutcome.String(string(outcome)))
}
