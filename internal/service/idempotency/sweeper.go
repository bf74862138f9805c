// Package idempotency чистит ключи идемпотентности мутирующих RPC витрины
// (PlaceOrder, UploadPaymentProof, CancelOrder и т.д.) после истечения TTL.
package idempotency

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

const (
	defaultInterval   = 10 * time.Minute
	defaultBatchSize  = 500
	maxBatchesPerTick = 20
)

// SweepResult: итог одного прохода.
type SweepResult struct {
	Deleted int
	Batches int
	// Backlog выставляется, если проход упёрся в лимит батчей.
	Backlog bool
}

// Sweeper удаляет записи с истёкшим TTL порциями, не больше
// maxBatchesPerTick порций за тик, чтобы не держать базу долго.
type Sweeper struct {
	repo      domain.IdempotencyRepository
	metrics   *metrics.StorefrontMetrics
	logger    *log.Entry
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

type Option func(*Sweeper)

func WithLogger(logger *log.Entry) Option {
	return func(s *Sweeper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.StorefrontMetrics) Option {
	return func(s *Sweeper) { s.metrics = m }
}

// WithInterval задаёт паузу между проходами; неположительное значение игнорируется.
func WithInterval(interval time.Duration) Option {
	return func(s *Sweeper) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

func WithBatchSize(size int) Option {
	return func(s *Sweeper) {
		if size > 0 {
			s.batchSize = size
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

func NewSweeper(repo domain.IdempotencyRepository, opts ...Option) *Sweeper {
	s := &Sweeper{
		repo:      repo,
		logger:    log.WithField("component", "idempotency-sweeper"),
		interval:  defaultInterval,
		batchSize: defaultBatchSize,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run делает проход сразу и затем раз в interval, пока ctx не отменён.
func (s *Sweeper) Run(ctx context.Context) {
	if s.repo == nil {
		s.logger.Warn("idempotency sweeper disabled: no repository")
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.tick(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) tick(ctx context.Context) {
	res, err := s.Sweep(ctx)
	if errors.Is(err, context.Canceled) {
		return
	}
	s.metrics.RecordIdempotencyCleanup(err, res.Deleted)

	entry := s.logger.WithFields(log.Fields{"deleted": res.Deleted, "batches": res.Batches})
	switch {
	case err != nil:
		entry.WithError(err).Warn("idempotency sweep failed")
	case res.Backlog:
		entry.Warn("idempotency sweep hit batch limit, rest is left for next tick")
	case res.Deleted > 0:
		entry.Info("expired idempotency keys removed")
	}
}

// Sweep удаляет записи с ttl <= now. Частичный результат возвращается и при ошибке.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	before := s.now()
	var res SweepResult
	for res.Batches < maxBatchesPerTick {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		deleted, err := s.repo.DeleteExpired(before, s.batchSize)
		if err != nil {
			return res, err
		}
		res.Batches++
		res.Deleted += deleted
		if deleted < s.batchSize {
			return res, nil
		}
	}
	res.Backlog = true
	return res, nil
}
