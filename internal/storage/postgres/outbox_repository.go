package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	outboxPending = "pending"
	outboxSent    = "sent"
	outboxFailed  = "failed"

	defaultPullLimit = 100

	insertOutboxSQL = `INSERT INTO outbox_messages
		(id, aggregate_type, aggregate_id, event_type, payload, status, attempt_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 'pending', 0, $6, $7)`
	pullOutboxSQL = `SELECT id, aggregate_type, aggregate_id, event_type, payload, attempt_count, created_at
		FROM outbox_messages WHERE status = 'pending' ORDER BY created_at, id LIMIT $1`
	outboxStatsSQL = `SELECT COUNT(*), MIN(created_at) FROM outbox_messages WHERE status = 'pending'`
	// published_at ставится только при успешной доставке
	markOutboxSQL = `UPDATE outbox_messages
		SET status = $2, attempt_count = attempt_count + 1, updated_at = $3,
		    published_at = CASE WHEN $2 = 'sent' THEN $3 ELSE published_at END
		WHERE id = $1 AND status = 'pending'`
)

type outboxRepository struct {
	db *sql.DB
}

// NewOutboxRepository хранит события заказов в таблице outbox_messages
// в той же базе, что и зеркало заказов.
func NewOutboxRepository(store *Store) domain.OutboxRepository {
	return &outboxRepository{db: store.DB()}
}

func (r *outboxRepository) Enqueue(msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}
	msg.Attempts = 0

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, insertOutboxSQL,
		msg.ID, msg.AggregateType, msg.AggregateID, msg.EventType, msg.Payload, msg.CreatedAt, now)
	if err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("enqueue %s for order %s: %w", msg.EventType, msg.AggregateID, err)
	}
	return msg, nil
}

// PullPending не блокирует строки: сервис держит один outbox worker на базу.
func (r *outboxRepository) PullPending(limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = defaultPullLimit
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, pullOutboxSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("pull pending outbox: %w", err)
	}
	defer rows.Close()

	var batch []domain.OutboxMessage
	for rows.Next() {
		var msg domain.OutboxMessage
		err := rows.Scan(&msg.ID, &msg.AggregateType, &msg.AggregateID, &msg.EventType,
			&msg.Payload, &msg.Attempts, &msg.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		msg.CreatedAt = msg.CreatedAt.UTC()
		batch = append(batch, msg)
	}
	return batch, rows.Err()
}

func (r *outboxRepository) Stats() (domain.OutboxStats, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var (
		stats  domain.OutboxStats
		oldest sql.NullTime
	)
	if err := r.db.QueryRowContext(ctx, outboxStatsSQL).Scan(&stats.PendingCount, &oldest); err != nil {
		return domain.OutboxStats{}, fmt.Errorf("outbox backlog: %w", err)
	}
	if oldest.Valid {
		stats.OldestPendingAt = oldest.Time.UTC()
	}
	return stats, nil
}

func (r *outboxRepository) MarkSent(id string) error {
	return r.finish(id, outboxSent)
}

func (r *outboxRepository) MarkFailed(id string) error {
	return r.finish(id, outboxFailed)
}

// finish переводит только pending-записи, поэтому повторная отметка возвращает ErrOutboxMessageNotFound.
func (r *outboxRepository) finish(id, status string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, markOutboxSQL, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark outbox %s as %s: %w", id, status, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark outbox %s as %s: %w", id, status, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", domain.ErrOutboxMessageNotFound, id)
	}
	return nil
}

var _ domain.OutboxRepository = (*outboxRepository)(nil)
