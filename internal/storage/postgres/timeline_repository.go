package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	insertTimelineSQL = `INSERT INTO timeline_events (order_id, type, from_status, status, reason, occurred) VALUES ($1, $2, $3, $4, $5, $6)`
	selectTimelineSQL = `SELECT type, from_status, status, reason, occurred FROM timeline_events WHERE order_id = $1 ORDER BY occurred, id`
)

type timelineRepository struct {
	db *sql.DB
}

// NewTimelineRepository хранит историю заказов в таблице timeline_events.
func NewTimelineRepository(store *Store) domain.TimelineRepository {
	return &timelineRepository{db: store.DB()}
}

func (r *timelineRepository) Append(event domain.TimelineEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}
	occurred := event.Occurred
	if occurred.IsZero() {
		occurred = time.Now()
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, insertTimelineSQL,
		event.OrderID, event.Type, string(event.From), string(event.Status), event.Reason, occurred.UTC())
	if err != nil {
		return fmt.Errorf("append timeline of order %s: %w", event.OrderID, err)
	}
	return nil
}

func (r *timelineRepository) List(orderID string) ([]domain.TimelineEvent, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, selectTimelineSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("list timeline of order %s: %w", orderID, err)
	}
	defer rows.Close()

	var events []domain.TimelineEvent
	for rows.Next() {
		event := domain.TimelineEvent{OrderID: orderID}
		var from, status string
		if err := rows.Scan(&event.Type, &from, &status, &event.Reason, &event.Occurred); err != nil {
			return nil, fmt.Errorf("scan timeline event: %w", err)
		}
		event.From = domain.OrderStatus(from)
		event.Status = domain.OrderStatus(status)
		event.Occurred = event.Occurred.UTC()
		events = append(events, event)
	}
	return events, rows.Err()
}

var _ domain.TimelineRepository = (*timelineRepository)(nil)
