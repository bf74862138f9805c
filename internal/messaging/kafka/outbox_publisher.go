package kafka

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Заголовки позволяют потребителям фильтровать и дедуплицировать события без разбора тела.
const (
	HeaderEventType     = "x-event-type"
	HeaderOutboxID      = "x-outbox-id"
	HeaderAggregateType = "x-aggregate-type"
)

var errPublisherNotInitialized = errors.New("kafka outbox publisher is not initialized")

// OutboxEnvelope: тело сообщения, в котором запись outbox уходит в Kafka.
type OutboxEnvelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurred_at"`
	PublishedAt   time.Time       `json:"published_at"`
}

// EnvelopeFor заворачивает запись outbox; payload должен быть валидным JSON.
func EnvelopeFor(msg domain.OutboxMessage, publishedAt time.Time) OutboxEnvelope {
	return OutboxEnvelope{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       json.RawMessage(msg.Payload),
		OccurredAt:    msg.CreatedAt.UTC(),
		PublishedAt:   publishedAt.UTC(),
	}
}

// OutboxPublisher отправляет записи outbox в один topic.
type OutboxPublisher struct {
	producer *Producer
	topic    string
}

// NewOutboxPublisher публикует в topic; пустой topic означает order.events.
func NewOutboxPublisher(producer *Producer, topic string) *OutboxPublisher {
	if topic == "" {
		topic = TopicOrderEvents
	}
	return &OutboxPublisher{producer: producer, topic: topic}
}

func (p *OutboxPublisher) Topic() string {
	return p.topic
}

// Publish использует ID заказа как ключ партиционирования.
func (p *OutboxPublisher) Publish(msg domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return errPublisherNotInitialized
	}

	key := msg.AggregateID
	if key == "" {
		key = msg.ID
	}
	return p.producer.PublishJSON(p.topic, key, EnvelopeFor(msg, p.producer.now()), map[string]string{
		HeaderEventType:     msg.EventType,
		HeaderOutboxID:      msg.ID,
		HeaderAggregateType: msg.AggregateType,
	})
}

var _ domain.OutboxPublisher = (*OutboxPublisher)(nil)
