package memory_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func TestTimelineRepository_OrdersByOccurred(t *testing.T) {
	repo := memory.NewTimelineRepository()
	placed := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Append(domain.TimelineEvent{
		OrderID: "order-1", Type: "order.cancelled",
		From: domain.OrderStatusPendingPayment, Status: domain.OrderStatusCancelled,
		Occurred: placed.Add(time.Hour),
	}))
	require.NoError(t, repo.Append(domain.TimelineEvent{
		OrderID: "order-1", Type: "order.placed", Status: domain.OrderStatusPendingPayment, Occurred: placed,
	}))
	// одинаковое время сохраняет порядок записи
	require.NoError(t, repo.Append(domain.TimelineEvent{
		OrderID: "order-1", Type: "order.status_synced",
		From: domain.OrderStatusCancelled, Status: domain.OrderStatusCancelled,
		Occurred: placed.Add(time.Hour),
	}))
	require.NoError(t, repo.Append(domain.TimelineEvent{OrderID: "order-2", Type: "order.placed", Occurred: placed}))

	events, err := repo.List("order-1")
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "order.placed", events[0].Type)
	assert.Equal(t, "order.cancelled", events[1].Type)
	assert.Equal(t, "order.status_synced", events[2].Type)
	assert.True(t, events[1].Changed())
	assert.False(t, events[2].Changed())

	events[0].Type = "mutated"
	again, err := repo.List("order-1")
	require.NoError(t, err)
	assert.Equal(t, "order.placed", again[0].Type)
}

func TestTimelineRepository_Validation(t *testing.T) {
	repo := memory.NewTimelineRepository()

	assert.ErrorIs(t, repo.Append(domain.TimelineEvent{Type: "order.placed"}), domain.ErrOrderIDRequired)
	assert.ErrorIs(t, repo.Append(domain.TimelineEvent{OrderID: "order-1", Type: " "}), domain.ErrTimelineTypeRequired)

	require.NoError(t, repo.Append(domain.TimelineEvent{OrderID: "order-1", Type: "order.placed"}))
	events, err := repo.List("order-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.False(t, events[0].Occurred.IsZero())

	empty, err := repo.List("missing")
	require.NoError(t, err)
	assert.Empty(t, empty)
}
