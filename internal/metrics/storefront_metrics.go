package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// StorefrontMetrics содержит метрики корзины, предпросмотра и жизненного цикла заказа.
// Все методы безопасны для nil-получателя.
type StorefrontMetrics struct {
	// Корзина
	cartMutations *prometheus.CounterVec
	cartClamped   prometheus.Counter

	// Предпросмотр
	previews        *prometheus.CounterVec
	previewDuration prometheus.Histogram

	// Заказы
	ordersPlaced       prometheus.Counter
	transitions        *prometheus.CounterVec
	transitionDuration *prometheus.HistogramVec
	remoteSync         *prometheus.CounterVec
	inFlight           prometheus.Gauge

	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter

	// Outbox
	outboxPublish       *prometheus.CounterVec
	outboxPending       prometheus.Gauge
	outboxOldestPending prometheus.Gauge

	idempotencyCleanupRuns    *prometheus.CounterVec
	idempotencyCleanupDeleted prometheus.Counter

	// Бэкенд
	backendRequests *prometheus.CounterVec
	backendRetries  prometheus.Counter
}

// NewStorefrontMetrics регистрирует метрики в DefaultRegisterer.
func NewStorefrontMetrics() *StorefrontMetrics {
	return NewStorefrontMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewStorefrontMetricsWithRegisterer регистрирует метрики в переданном registerer.
// Повторная регистрация возвращает уже существующие коллекторы.
func NewStorefrontMetricsWithRegisterer(registerer prometheus.Registerer) *StorefrontMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &StorefrontMetrics{
		cartMutations: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_cart_mutations_total",
			Help: "Cart mutations grouped by operation and result",
		}, []string{"op", "result"})),
		cartClamped: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storefront_cart_clamped_total",
			Help: "Cart quantity changes clamped to available stock",
		})),
		previews: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_checkout_previews_total",
			Help: "Checkout previews grouped by outcome",
		}, []string{"outcome"})),
		previewDuration: register(registerer, prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "storefront_checkout_preview_duration_seconds",
			Help:    "Duration of checkout preview computation",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		})),
		ordersPlaced: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storefront_orders_placed_total",
			Help: "Orders successfully created on the backend",
		})),
		transitions: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_order_transitions_total",
			Help: "Order lifecycle transitions grouped by action and result",
		}, []string{"action", "result"})),
		transitionDuration: register(registerer, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "storefront_order_transition_duration_seconds",
			Help:    "Duration of order lifecycle commands including the backend call",
			Buckets: prometheus.DefBuckets,
		}, []string{"action"})),
		remoteSync: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_order_status_sync_total",
			Help: "Backend order status events grouped by result",
		}, []string{"result"})),
		inFlight: register(registerer, prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "storefront_order_commands_in_flight",
			Help: "Order lifecycle commands currently waiting for the backend",
		})),
		timelineEvents: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storefront_timeline_events_total",
			Help: "Total number of timeline events recorded",
		})),
		outboxEvents: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storefront_outbox_events_total",
			Help: "Total number of events written to the outbox",
		})),
		outboxPublish: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_outbox_publish_attempts_total",
			Help: "Outbox publish attempts grouped by result",
		}, []string{"result"})),
		outboxPending: register(registerer, prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "storefront_outbox_pending_records",
			Help: "Current number of pending records in the outbox",
		})),
		outboxOldestPending: register(registerer, prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "storefront_outbox_oldest_pending_age_seconds",
			Help: "Age of the oldest pending outbox record",
		})),
		idempotencyCleanupRuns: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_idempotency_cleanup_runs_total",
			Help: "Idempotency cleanup runs grouped by result",
		}, []string{"result"})),
		idempotencyCleanupDeleted: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storefront_idempotency_cleanup_deleted_total",
			Help: "Expired idempotency records deleted",
		})),
		backendRequests: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_backend_requests_total",
			Help: "Backend HTTP requests grouped by operation and outcome",
		}, []string{"operation", "outcome"})),
		backendRetries: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storefront_backend_retries_total",
			Help: "Automatic retries after timeout or network failure",
		})),
	}
}

func register[C prometheus.Collector](registerer prometheus.Registerer, collector C) C {
	if err := registerer.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			existing, ok := already.ExistingCollector.(C)
			if !ok {
				panic(fmt.Sprintf("collector already registered with unexpected type %T", already.ExistingCollector))
			}
			return existing
		}
		panic(fmt.Sprintf("register collector: %v", err))
	}
	return collector
}

// RecordCartMutation учитывает изменение корзины.
func (m *StorefrontMetrics) RecordCartMutation(op string, err error) {
	if m == nil {
		return
	}
	m.cartMutations.WithLabelValues(op, resultLabel(err)).Inc()
}

// RecordCartClamped учитывает урезание количества до остатка.
func (m *StorefrontMetrics) RecordCartClamped() {
	if m == nil {
		return
	}
	m.cartClamped.Inc()
}

// RecordPreview учитывает расчёт предпросмотра: ready, blocked, stale или error.
func (m *StorefrontMetrics) RecordPreview(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.previews.WithLabelValues(outcome).Inc()
	m.previewDuration.Observe(duration.Seconds())
}

// RecordOrderPlaced увеличивает счётчик созданных заказов.
func (m *StorefrontMetrics) RecordOrderPlaced() {
	if m == nil {
		return
	}
	m.ordersPlaced.Inc()
}

// RecordTransition учитывает результат команды над заказом.
func (m *StorefrontMetrics) RecordTransition(action, result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(action, result).Inc()
	m.transitionDuration.WithLabelValues(action).Observe(duration.Seconds())
}

// RecordRemoteSync учитывает событие статуса от бэкенда: applied или ignored.
func (m *StorefrontMetrics) RecordRemoteSync(result string) {
	if m == nil {
		return
	}
	m.remoteSync.WithLabelValues(result).Inc()
}

// CommandStarted увеличивает число команд в полёте.
func (m *StorefrontMetrics) CommandStarted() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

// CommandFinished уменьшает число команд в полёте.
func (m *StorefrontMetrics) CommandFinished() {
	if m == nil {
		return
	}
	m.inFlight.Dec()
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *StorefrontMetrics) RecordTimelineEvent() {
	if m == nil {
		return
	}
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *StorefrontMetrics) RecordOutboxEvent() {
	if m == nil {
		return
	}
	m.outboxEvents.Inc()
}

// RecordBackendRequest учитывает запрос к бэкенду.
func (m *StorefrontMetrics) RecordBackendRequest(operation, outcome string) {
	if m == nil {
		return
	}
	m.backendRequests.WithLabelValues(operation, outcome).Inc()
}

// RecordBackendRetry учитывает автоматический повтор запроса.
func (m *StorefrontMetrics) RecordBackendRetry() {
	if m == nil {
		return
	}
	m.backendRetries.Inc()
}

// RecordOutboxPublish учитывает попытку публикации: sent, retry_error, failed, dlq_failed.
func (m *StorefrontMetrics) RecordOutboxPublish(result string) {
	if m == nil {
		return
	}
	m.outboxPublish.WithLabelValues(result).Inc()
}

// SetOutboxBacklog обновляет размер backlog и возраст старейшей записи.
func (m *StorefrontMetrics) SetOutboxBacklog(pending int, oldestAge time.Duration) {
	if m == nil {
		return
	}
	m.outboxPending.Set(float64(pending))
	m.outboxOldestPending.Set(max(oldestAge, 0).Seconds())
}

// RecordIdempotencyCleanup учитывает прогон очистки idempotency-ключей.
func (m *StorefrontMetrics) RecordIdempotencyCleanup(err error, deleted int) {
	if m == nil {
		return
	}
	m.idempotencyCleanupRuns.WithLabelValues(resultLabel(err)).Inc()
	if deleted > 0 {
		m.idempotencyCleanupDeleted.Add(float64(deleted))
	}
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return "error"
}
