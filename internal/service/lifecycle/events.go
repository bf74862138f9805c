package lifecycle

import (
	"encoding/json"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
)

const (
	aggregateOrder    = "order"
	eventStatusSynced = kafka.EventTypeOrderStatusSynced
)

// emit пишет событие в outbox (оттуда оно уйдёт в Kafka) и в timeline заказа.
// Ошибки записи событий не отменяют уже выполненное действие.
func (s *Service) emit(order domain.Order, eventType kafka.EventType, previous domain.OrderStatus, reason string) {
	fields := log.Fields{"order_id": order.ID, "event": eventType}

	if s.outbox != nil {
		event := kafka.NewOrderEvent(eventType, order.ID, order.UserID, string(order.Status), eventMetadata(order, reason))
		event.PreviousStatus = string(previous)
		event.Timestamp = order.UpdatedAt
		payload, err := json.Marshal(event)
		if err != nil {
			s.logger.WithError(err).WithFields(fields).Error("marshal event failed")
		} else if _, err := s.outbox.Enqueue(domain.OutboxMessage{
			AggregateType: aggregateOrder,
			AggregateID:   order.ID,
			EventType:     string(eventType),
			Payload:       payload,
		}); err != nil {
			s.logger.WithError(err).WithFields(fields).Error("enqueue event failed")
		} else {
			s.metrics.RecordOutboxEvent()
		}
	}

	if s.timeline != nil {
		occurred := order.UpdatedAt
		if occurred.IsZero() {
			occurred = s.now()
		}
		if err := s.timeline.Append(domain.TimelineEvent{
			OrderID:  order.ID,
			Type:     string(eventType),
			From:     previous,
			Status:   order.Status,
			Reason:   reason,
			Occurred: occurred,
		}); err != nil {
			s.logger.WithError(err).WithFields(fields).Warn("append timeline event failed")
		} else {
			s.metrics.RecordTimelineEvent()
		}
	}
}

func eventMetadata(order domain.Order, reason string) map[string]any {
	meta := map[string]any{
		"store_id":     order.StoreID,
		"total_amount": int64(order.TotalAmount),
	}
	if reason != "" {
		meta["reason"] = reason
	}
	if order.PaymentDeadline != nil {
		meta["payment_deadline"] = order.PaymentDeadline.UTC()
	}
	if order.VoucherCode != "" {
		meta["voucher_code"] = order.VoucherCode
	}
	return meta
}
