package telemetry_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/jerson21/santitelas-frontend-sub003/internal/domain/validation"
	"github.com/jerson21/santitelas-frontend-sub003/internal/infrastructure/telemetry"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumWhere(m metricdata.Metrics, kv attribute.KeyValue) int64 {
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		return -1
	}
	var total int64
	for _, dp := range sum.DataPoints {
		if v, found := dp.Attributes.Value(kv.Key); found && v == kv.Value {
			total += dp.Value
		}
	}
	return total
}

func gaugeValue(m metricdata.Metrics) int64 {
	g, ok := m.Data.(metricdata.Gauge[int64])
	if !ok || len(g.DataPoints) == 0 {
		return -1
	}
	return g.DataPoints[0].Value
}

func newTestSyncMetrics(t *testing.T) (*telemetry.SyncMetrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp, err := telemetry.NewMeterProvider(context.Background(), telemetry.MetricsConfig{ServiceName: "test"},
		zaptest.NewLogger(t), telemetry.WithReader(reader))
	require.NoError(t, err)
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	require.True(t, mp.IsEnabled())

	sm, err := telemetry.NewSyncMetrics(telemetry.SyncMetricsConfig{Meter: mp.Meter("transfer-sync")})
	require.NoError(t, err)
	return sm, reader
}

func TestNewMeterProvider_Disabled(t *testing.T) {
	mp, err := telemetry.NewMeterProvider(context.Background(), telemetry.MetricsConfig{ServiceName: "test"}, zap.NewNop())
	require.NoError(t, err)

	assert.False(t, mp.IsEnabled())
	assert.Nil(t, mp.Handler())
	assert.NotNil(t, mp.Meter("x"))
	assert.NoError(t, mp.ForceFlush(context.Background()))
	assert.NoError(t, mp.Shutdown(context.Background()))
}

func TestNewSyncMetrics_NilMeter(t *testing.T) {
	_, err := telemetry.NewSyncMetrics(telemetry.SyncMetricsConfig{})
	assert.ErrorIs(t, err, telemetry.ErrMeterNil)
}

func TestSyncMetrics_NoopMeter(t *testing.T) {
	sm, err := telemetry.NewSyncMetrics(telemetry.SyncMetricsConfig{Meter: noop.NewMeterProvider().Meter("noop")})
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		sm.OnStoreChange(validation.ChangeSet{Count: 1})
		sm.ConnectionChanged(true)
		sm.ReconnectScheduled(1, time.Second)
		sm.PollCompleted(context.Background(), nil, 0, time.Millisecond)
		sm.DecisionCompleted(context.Background(), true, validation.OutcomeOk, time.Millisecond)
	})
}

func TestSyncMetrics_Records(t *testing.T) {
	sm, reader := newTestSyncMetrics(t)
	ctx := context.Background()

	sm.OnStoreChange(validation.ChangeSet{
		Source: validation.SourcePush,
		Count:  2,
		Changes: []validation.Change{
			{Kind: validation.ChangeAdded, ID: 1},
			{Kind: validation.ChangeAdded, ID: 2},
		},
	})
	sm.ConnectionChanged(false)
	sm.ReconnectScheduled(1, time.Second)
	sm.ReconnectScheduled(2, 2*time.Second)
	sm.PollCompleted(ctx, nil, 2, 30*time.Millisecond)
	sm.PollCompleted(ctx, context.DeadlineExceeded, 0, 8*time.Second)
	sm.PollCompleted(ctx, errors.New("HTTP 500"), 0, time.Millisecond)
	sm.DecisionCompleted(ctx, true, validation.OutcomeOk, 200*time.Millisecond)
	sm.DecisionCompleted(ctx, false, validation.OutcomeTimedOut, 15*time.Second)

	got := collect(t, reader)

	assert.Equal(t, int64(2), gaugeValue(got["transfer_sync_pending"]))
	assert.Equal(t, int64(0), gaugeValue(got["transfer_sync_connected"]))
	assert.Equal(t, int64(2), sumWhere(got["transfer_sync_store_changes_total"], telemetry.AttrKind.String("added")))

	reconnects, ok := got["transfer_sync_reconnect_attempts_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, reconnects.DataPoints, 1)
	assert.Equal(t, int64(2), reconnects.DataPoints[0].Value)

	polls := got["transfer_sync_polls_total"]
	assert.Equal(t, int64(1), sumWhere(polls, telemetry.AttrResult.String("ok")))
	assert.Equal(t, int64(1), sumWhere(polls, telemetry.AttrResult.String("timeout")))
	assert.Equal(t, int64(1), sumWhere(polls, telemetry.AttrResult.String("error")))

	decisions := got["transfer_sync_decisions_total"]
	assert.Equal(t, int64(1), sumWhere(decisions, telemetry.AttrOutcome.String("ok")))
	assert.Equal(t, int64(1), sumWhere(decisions, telemetry.AttrOutcome.String("timed_out")))

	latency, ok := got["transfer_sync_decision_latency_seconds"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	var count uint64
	for _, dp := range latency.DataPoints {
		count += dp.Count
	}
	assert.Equal(t, uint64(2), count)
}

func TestMeterProvider_PrometheusHandler(t *testing.T) {
	mp, err := telemetry.NewMeterProvider(context.Background(),
		telemetry.MetricsConfig{ServiceName: "test", PrometheusEnabled: true}, zap.NewNop())
	require.NoError(t, err)
	defer mp.Shutdown(context.Background())

	sm, err := telemetry.NewSyncMetrics(telemetry.SyncMetricsConfig{Meter: mp.Meter("transfer-sync")})
	require.NoError(t, err)
	sm.DecisionCompleted(context.Background(), true, validation.OutcomeOk, time.Second)

	h := mp.Handler()
	require.NotNil(t, h)
	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "transfer_sync_decisions_total")
}
