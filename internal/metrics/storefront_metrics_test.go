package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestRecordCartMutation(t *testing.T) {
	m := NewStorefrontMetricsWithRegisterer(prometheus.NewRegistry())

	m.RecordCartMutation("add", nil)
	m.RecordCartMutation("add", nil)
	m.RecordCartMutation("add", errors.New("boom"))
	m.RecordCartClamped()

	if got := counterValue(t, m.cartMutations.WithLabelValues("add", "ok")); got != 2 {
		t.Errorf("expected 2 ok mutations, got %v", got)
	}
	if got := counterValue(t, m.cartMutations.WithLabelValues("add", "error")); got != 1 {
		t.Errorf("expected 1 failed mutation, got %v", got)
	}
	if got := counterValue(t, m.cartClamped); got != 1 {
		t.Errorf("expected 1 clamp, got %v", got)
	}
}

func TestRecordTransitionAndPreview(t *testing.T) {
	m := NewStorefrontMetricsWithRegisterer(prometheus.NewRegistry())

	m.RecordTransition("cancel", "illegal", time.Millisecond)
	m.RecordPreview("stale", 10*time.Millisecond)
	m.RecordRemoteSync("applied")

	if got := counterValue(t, m.transitions.WithLabelValues("cancel", "illegal")); got != 1 {
		t.Errorf("expected 1 illegal transition, got %v", got)
	}
	if got := counterValue(t, m.previews.WithLabelValues("stale")); got != 1 {
		t.Errorf("expected 1 stale preview, got %v", got)
	}
	if got := counterValue(t, m.remoteSync.WithLabelValues("applied")); got != 1 {
		t.Errorf("expected 1 applied sync, got %v", got)
	}
}

func TestCommandsInFlight(t *testing.T) {
	m := NewStorefrontMetricsWithRegisterer(prometheus.NewRegistry())

	m.CommandStarted()
	m.CommandStarted()
	m.CommandFinished()

	var metric dto.Metric
	if err := m.inFlight.Write(&metric); err != nil {
		t.Fatalf("write gauge: %v", err)
	}
	if got := metric.GetGauge().GetValue(); got != 1 {
		t.Errorf("expected 1 command in flight, got %v", got)
	}
}

func TestDoubleRegistrationReusesCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	first := NewStorefrontMetricsWithRegisterer(registry)
	second := NewStorefrontMetricsWithRegisterer(registry)

	first.RecordOrderPlaced()
	second.RecordOrderPlaced()

	if got := counterValue(t, first.ordersPlaced); got != 2 {
		t.Errorf("expected shared counter value 2, got %v", got)
	}
}

func TestNilMetricsAreNoop(t *testing.T) {
	var m *StorefrontMetrics
	m.RecordCartMutation("add", nil)
	m.RecordTransition("cancel", "ok", time.Second)
	m.CommandStarted()
	m.RecordBackendRetry()
}

func TestOutboxAndCleanupMetrics(t *testing.T) {
	m := NewStorefrontMetricsWithRegisterer(prometheus.NewRegistry())

	m.RecordOutboxPublish("sent")
	m.RecordOutboxPublish("sent")
	m.SetOutboxBacklog(3, -time.Second)
	m.RecordIdempotencyCleanup(nil, 5)
	m.RecordIdempotencyCleanup(errors.New("db down"), 0)

	if got := counterValue(t, m.outboxPublish.WithLabelValues("sent")); got != 2 {
		t.Errorf("expected 2 sent, got %v", got)
	}
	var gauge dto.Metric
	if err := m.outboxOldestPending.Write(&gauge); err != nil {
		t.Fatalf("write gauge: %v", err)
	}
	if got := gauge.GetGauge().GetValue(); got != 0 {
		t.Errorf("negative age must be clamped to 0, got %v", got)
	}
	if got := counterValue(t, m.idempotencyCleanupDeleted); got != 5 {
		t.Errorf("expected 5 deleted, got %v", got)
	}
	if got := counterValue(t, m.idempotencyCleanupRuns.WithLabelValues("error")); got != 1 {
		t.Errorf("expected 1 failed run, got %v", got)
	}
}
