// Package outbox доставляет события заказов из transactional outbox
// в брокер: по порядку внутри заказа, с retry и DLQ.
package outbox

import (
	"context"
	"encoding/json"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

const (
	defaultPollInterval   = time.Second
	defaultBatchSize      = 100
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 50 * time.Millisecond
	maxRetryDelay         = 5 * time.Second
)

// DeadLetter: тело, с которым недоставленное событие уходит в DLQ.
// Формат читает утилита dlq-replay.
type DeadLetter struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishError  string          `json:"publish_error"`
	Attempts      int             `json:"attempts"`
	PublishedAt   time.Time       `json:"dlq_published_at"`
}

// Result: итог одного цикла.
type Result struct {
	Sent   int
	Failed int
	// Deferred: события заказов, чьё более раннее событие не доставлено в этом цикле.
	Deferred int
}

type Worker struct {
	repo         domain.OutboxRepository
	publisher    domain.OutboxPublisher
	dlqPublisher domain.OutboxPublisher
	metrics      *metrics.StorefrontMetrics
	logger       *log.Entry
	pollInterval time.Duration
	batchSize    int
	maxAttempts  int
	baseDelay    time.Duration
	now          func() time.Time
}

type Option func(*Worker)

func WithLogger(logger *log.Entry) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

func WithMetrics(m *metrics.StorefrontMetrics) Option {
	return func(w *Worker) { w.metrics = m }
}

// WithDLQPublisher включает отправку в DLQ после исчерпания попыток.
func WithDLQPublisher(publisher domain.OutboxPublisher) Option {
	return func(w *Worker) { w.dlqPublisher = publisher }
}

func WithPollInterval(interval time.Duration) Option {
	return func(w *Worker) {
		if interval > 0 {
			w.pollInterval = interval
		}
	}
}

func WithBatchSize(size int) Option {
	return func(w *Worker) {
		if size > 0 {
			w.batchSize = size
		}
	}
}

func WithMaxAttempts(attempts int) Option {
	return func(w *Worker) {
		if attempts > 0 {
			w.maxAttempts = attempts
		}
	}
}

// WithRetryBaseDelay задаёт первую паузу между попытками; дальше она удваивается
// до maxRetryDelay. Ноль отключает паузы.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(w *Worker) { w.baseDelay = max(delay, 0) }
}

func WithClock(now func() time.Time) Option {
	return func(w *Worker) {
		if now != nil {
			w.now = now
		}
	}
}

func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, opts ...Option) *Worker {
	w := &Worker{
		repo:         repo,
		publisher:    publisher,
		logger:       log.WithField("component", "outbox-worker"),
		pollInterval: defaultPollInterval,
		batchSize:    defaultBatchSize,
		maxAttempts:  defaultMaxAttempts,
		baseDelay:    defaultRetryBaseDelay,
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run опрашивает outbox раз в pollInterval до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil || w.publisher == nil {
		w.logger.Warn("outbox worker disabled: no repository or publisher")
		return
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		if res := w.ProcessOnce(ctx); res.Failed > 0 {
			w.logger.WithFields(log.Fields{
				"sent":     res.Sent,
				"failed":   res.Failed,
				"deferred": res.Deferred,
			}).Warn("outbox cycle finished with failures")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ProcessOnce забирает одну порцию pending-событий и пытается их доставить.
func (w *Worker) ProcessOnce(ctx context.Context) Result {
	var res Result
	if ctx.Err() != nil {
		return res
	}
	defer w.reportBacklog()

	batch, err := w.repo.PullPending(w.batchSize)
	if err != nil {
		w.logger.WithError(err).Warn("pull pending outbox events failed")
		return res
	}

	// если событие заказа не ушло, следующие события этого заказа ждут следующего цикла
	stalled := make(map[string]struct{})
	for _, msg := range batch {
		if ctx.Err() != nil {
			return res
		}
		if _, ok := stalled[msg.AggregateID]; ok {
			res.Deferred++
			continue
		}

		fields := log.Fields{"outbox_id": msg.ID, "order_id": msg.AggregateID, "event_type": msg.EventType}
		attempts, err := w.deliver(ctx, msg)
		if err != nil {
			if ctx.Err() != nil {
				return res
			}
			res.Failed++
			stalled[msg.AggregateID] = struct{}{}
			w.metrics.RecordOutboxPublish("failed")
			w.logger.WithError(err).WithFields(fields).WithField("attempts", attempts).Error("outbox event not delivered")
			w.deadLetter(msg, attempts, err, fields)
			if err := w.repo.MarkFailed(msg.ID); err != nil {
				w.logger.WithError(err).WithFields(fields).Warn("mark outbox event failed")
			}
			continue
		}

		res.Sent++
		if err := w.repo.MarkSent(msg.ID); err != nil {
			w.logger.WithError(err).WithFields(fields).Warn("mark outbox event sent")
		}
	}
	return res
}

// deliver возвращает число сделанных попыток и ошибку последней из них.
func (w *Worker) deliver(ctx context.Context, msg domain.OutboxMessage) (int, error) {
	var lastErr error
	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		if lastErr = w.publisher.Publish(msg); lastErr == nil {
			w.metrics.RecordOutboxPublish("sent")
			return attempt, nil
		}
		w.metrics.RecordOutboxPublish("retry_error")
		if attempt == w.maxAttempts {
			break
		}

		if delay := backoff(w.baseDelay, attempt); delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return attempt, ctx.Err()
			case <-timer.C:
			}
		}
	}
	return w.maxAttempts, lastErr
}

// backoff удваивает base с каждой попыткой, не превышая maxRetryDelay.
func backoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base
	for i := 1; i < attempt && delay < maxRetryDelay; i++ {
		delay *= 2
	}
	return min(delay, maxRetryDelay)
}

func (w *Worker) deadLetter(msg domain.OutboxMessage, attempts int, cause error, fields log.Fields) {
	if w.dlqPublisher == nil {
		return
	}

	body, err := json.Marshal(DeadLetter{
		OutboxID:      msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       json.RawMessage(msg.Payload),
		PublishError:  cause.Error(),
		Attempts:      attempts,
		PublishedAt:   w.now(),
	})
	if err == nil {
		err = w.dlqPublisher.Publish(domain.OutboxMessage{
			ID:            msg.ID,
			AggregateType: msg.AggregateType,
			AggregateID:   msg.AggregateID,
			EventType:     msg.EventType,
			Payload:       body,
			CreatedAt:     msg.CreatedAt,
		})
	}
	if err != nil {
		w.metrics.RecordOutboxPublish("dlq_failed")
		w.logger.WithError(err).WithFields(fields).Warn("dead letter not published")
	}
}

func (w *Worker) reportBacklog() {
	stats, err := w.repo.Stats()
	if err != nil {
		w.logger.WithError(err).Warn("collect outbox backlog failed")
		return
	}
	var age time.Duration
	if stats.PendingCount > 0 && !stats.OldestPendingAt.IsZero() {
		age = w.now().Sub(stats.OldestPendingAt)
	}
	w.metrics.SetOutboxBacklog(stats.PendingCount, age)
}
