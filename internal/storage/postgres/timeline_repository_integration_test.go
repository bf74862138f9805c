package postgres

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestTimelineRepository_PostgresAppendAndList(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewTimelineRepository(store)

	placedAt := time.Now().UTC().Add(-time.Minute).Round(time.Microsecond)
	require.NoError(t, repo.Append(domain.TimelineEvent{
		OrderID:  "timeline-order",
		Type:     "order.payment_proof_uploaded",
		From:     domain.OrderStatusPendingPayment,
		Status:   domain.OrderStatusPendingConfirmation,
		Occurred: placedAt.Add(10 * time.Second),
	}))
	require.NoError(t, repo.Append(domain.TimelineEvent{
		OrderID:  "timeline-order",
		Type:     "order.placed",
		Status:   domain.OrderStatusPendingPayment,
		Occurred: placedAt,
	}))
	// пустое время заполняется текущим
	require.NoError(t, repo.Append(domain.TimelineEvent{
		OrderID: "timeline-order",
		Type:    "order.cancelled",
		Status:  domain.OrderStatusCancelled,
		Reason:  "changed my mind",
	}))

	events, err := repo.List("timeline-order")
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "order.placed", events[0].Type)
	assert.Equal(t, domain.OrderStatusPendingConfirmation, events[1].Status)
	assert.Equal(t, domain.OrderStatusPendingPayment, events[1].From)
	assert.True(t, events[1].Changed())
	assert.Equal(t, "timeline-order", events[1].OrderID)
	assert.Equal(t, "changed my mind", events[2].Reason)
	assert.False(t, events[2].Occurred.IsZero())
}

func TestTimelineRepository_PostgresValidation(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewTimelineRepository(store)

	err := repo.Append(domain.TimelineEvent{Type: "order.placed"})
	assert.True(t, errors.Is(err, domain.ErrOrderIDRequired))
	err = repo.Append(domain.TimelineEvent{OrderID: "timeline-order"})
	assert.True(t, errors.Is(err, domain.ErrTimelineTypeRequired))

	events, err := repo.List("missing-order")
	require.NoError(t, err)
	assert.Empty(t, events)
}
