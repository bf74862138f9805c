package kafka

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type applierFunc func(ctx context.Context, orderID string, status domain.OrderStatus, reason string) (domain.Order, error)

func (f applierFunc) ApplyRemoteStatus(ctx context.Context, orderID string, status domain.OrderStatus, reason string) (domain.Order, error) {
	return f(ctx, orderID, status, reason)
}

func statusUpdateMessage(value string) *sarama.ConsumerMessage {
	return &sarama.ConsumerMessage{Topic: TopicOrderStatus, Key: []byte("o-1"), Value: []byte(value)}
}

func TestStatusUpdateHandler_Applies(t *testing.T) {
	var gotStatus domain.OrderStatus
	var gotReason string
	handler := NewStatusUpdateHandler(applierFunc(func(_ context.Context, orderID string, status domain.OrderStatus, reason string) (domain.Order, error) {
		assert.Equal(t, "o-1", orderID)
		gotStatus, gotReason = status, reason
		return domain.Order{ID: orderID, Status: status}, nil
	}), nil)

	err := handler(context.Background(), statusUpdateMessage(`{"order_id":"o-1","status":"cancelled","reason":"stock"}`))
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, gotStatus)
	assert.Equal(t, "stock", gotReason)
}

func TestStatusUpdateHandler_SkipsUnknownAndStale(t *testing.T) {
	for _, applyErr := range []error{domain.ErrOrderNotFound, domain.ErrIllegalTransition} {
		handler := NewStatusUpdateHandler(applierFunc(func(context.Context, string, domain.OrderStatus, string) (domain.Order, error) {
			return domain.Order{}, applyErr
		}), nil)
		assert.NoError(t, handler(context.Background(), statusUpdateMessage(`{"order_id":"o-1","status":"SHIPPED"}`)))
	}
}

func TestStatusUpdateHandler_DefaultLoggerLeavesStandardLoggerAlone(t *testing.T) {
	std := log.StandardLogger()
	out, level := std.Out, std.GetLevel()
	t.Cleanup(func() {
		std.SetOutput(out)
		std.SetLevel(level)
	})
	var buf bytes.Buffer
	std.SetOutput(&buf)
	std.SetLevel(log.DebugLevel)

	handler := NewStatusUpdateHandler(applierFunc(func(context.Context, string, domain.OrderStatus, string) (domain.Order, error) {
		return domain.Order{}, domain.ErrIllegalTransition
	}), nil)
	require.NoError(t, handler(context.Background(), statusUpdateMessage(`{"order_id":"o-1","status":"SHIPPED"}`)))
	assert.Empty(t, buf.String())
}

func TestStatusUpdateHandler_PropagatesTransientErrors(t *testing.T) {
	handler := NewStatusUpdateHandler(applierFunc(func(context.Context, string, domain.OrderStatus, string) (domain.Order, error) {
		return domain.Order{}, errors.New("database unavailable")
	}), nil)

	err := handler(context.Background(), statusUpdateMessage(`{"order_id":"o-1","status":"SHIPPED"}`))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrPoisonMessage))
}

func TestStatusUpdateHandler_RejectsUnknownStatus(t *testing.T) {
	handler := NewStatusUpdateHandler(applierFunc(func(context.Context, string, domain.OrderStatus, string) (domain.Order, error) {
		t.Fatal("applier must not be called")
		return domain.Order{}, nil
	}), nil)

	err := handler(context.Background(), statusUpdateMessage(`{"order_id":"o-1","status":"LOST"}`))
	assert.ErrorIs(t, err, ErrPoisonMessage)
}
