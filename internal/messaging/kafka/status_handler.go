package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// StatusApplier применяет к локальному заказу статус, пришедший от бэкенда.
type StatusApplier interface {
	ApplyRemoteStatus(ctx context.Context, orderID string, status domain.OrderStatus, reason string) (domain.Order, error)
}

// NewStatusUpdateHandler строит обработчик топика TopicOrderStatus.
// Заказы, которых нет в локальном зеркале, и устаревшие статусы пропускаются.
func NewStatusUpdateHandler(applier StatusApplier, logger *log.Entry) MessageHandler {
	if logger == nil {
		logger = log.New().WithField("component", "order-status-consumer")
	}
	return func(ctx context.Context, message *sarama.ConsumerMessage) error {
		update, err := ParseStatusUpdate(message)
		if err != nil {
			return err
		}
		status := domain.OrderStatus(strings.ToUpper(strings.TrimSpace(update.Status)))
		if !status.Valid() {
			return fmt.Errorf("%w: unknown order status %q", ErrPoisonMessage, update.Status)
		}

		fields := log.Fields{"order_id": update.OrderID, "status": status}
		_, err = applier.ApplyRemoteStatus(ctx, update.OrderID, status, update.Reason)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, domain.ErrOrderNotFound):
			logger.WithFields(fields).Debug("order is not mirrored locally, skipping")
			return nil
		case domain.KindOf(err) == domain.KindIneligibility:
			logger.WithError(err).WithFields(fields).Info("stale status update ignored")
			return nil
		default:
			return err
		}
	}
}
