package kafka

import "time"

// EventType определяет тип события
type EventType string

const (
	// События жизненного цикла заказа
	EventTypeOrderPlaced           EventType = "order.placed"
	EventTypePaymentProofUploaded  EventType = "order.payment_proof_uploaded"
	EventTypeOrderCancelled        EventType = "order.cancelled"
	EventTypeOrderPaymentAccepted  EventType = "order.payment_accepted"
	EventTypeOrderShipped          EventType = "order.shipped"
	EventTypeOrderReceiptConfirmed EventType = "order.receipt_confirmed"
	// EventTypeOrderStatusSynced: статус подтянут с бэкенда.
	EventTypeOrderStatusSynced EventType = "order.status_synced"
)

// Topics для Kafka
const (
	TopicOrderEvents = "storefront.order.events"
	// TopicOrderStatus: изменения статусов, которые публикует бэкенд заказов.
	TopicOrderStatus     = "storefront.order.status"
	TopicDeadLetterQueue = "storefront.dlq"
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// OrderEvent представляет событие заказа
type OrderEvent struct {
	EventType      EventType      `json:"event_type"`
	OrderID        string         `json:"order_id"`
	UserID         string         `json:"user_id"`
	Status         string         `json:"status"`
	PreviousStatus string         `json:"previous_status,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// NewOrderEvent создает новое событие заказа
func NewOrderEvent(eventType EventType, orderID, userID, status string, metadata map[string]any) *OrderEvent {
	return &OrderEvent{
		EventType: eventType,
		OrderID:   orderID,
		UserID:    userID,
		Status:    status,
		Timestamp: time.Now().UTC(),
		Metadata:  metadata,
	}
}

// StatusUpdate: сообщение бэкенда об изменении статуса заказа.
type StatusUpdate struct {
	OrderID   string    `json:"order_id"`
	Status    string    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DLQMessage: содержимое сообщения в Dead Letter Queue.
type DLQMessage struct {
	OriginalTopic     string `json:"original_topic"`
	OriginalPartition int32  `json:"original_partition"`
	OriginalOffset    int64  `json:"original_offset"`
	OriginalKey       string `json:"original_key"`
	OriginalValue     string `json:"original_value"`
	ErrorMessage      string `json:"error_message"`
	FailedAt          string `json:"failed_at"`
	RetryCount        int    `json:"retry_count"`
}
