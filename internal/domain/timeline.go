package domain

import (
	"errors"
	"strings"
	"time"
)

// ErrTimelineTypeRequired: событие истории без типа.
var ErrTimelineTypeRequired = errors.New("timeline event type is required")

// TimelineEvent: запись в истории заказа, которую видит покупатель.
type TimelineEvent struct {
	OrderID string
	Type    string
	// From пуст для события размещения заказа.
	From     OrderStatus
	Status   OrderStatus
	Reason   string
	Occurred time.Time
}

// Changed сообщает, сменило ли событие статус заказа.
func (e TimelineEvent) Changed() bool {
	return e.From != e.Status
}

// Validate проверяет обязательные поля перед записью.
func (e TimelineEvent) Validate() error {
	if strings.TrimSpace(e.OrderID) == "" {
		return ErrOrderIDRequired
	}
	if strings.TrimSpace(e.Type) == "" {
		return ErrTimelineTypeRequired
	}
	return nil
}
