package domain

import (
	"strings"
	"time"
)

// OrderAction: действие над заказом.
type OrderAction string

const (
	ActionUploadPaymentProof OrderAction = "upload_payment_proof"
	ActionCancel             OrderAction = "cancel"
	ActionConfirmReceipt     OrderAction = "confirm_receipt"
	// ActionAcceptPayment и ActionShip выполняет администратор магазина.
	ActionAcceptPayment OrderAction = "accept_payment"
	ActionShip          OrderAction = "ship"
)

type transition struct {
	from []OrderStatus
	to   OrderStatus
}

var transitions = map[OrderAction]transition{
	ActionUploadPaymentProof: {from: []OrderStatus{OrderStatusPendingPayment}, to: OrderStatusPendingConfirmation},
	ActionCancel:             {from: []OrderStatus{OrderStatusPendingPayment, OrderStatusPendingConfirmation}, to: OrderStatusCancelled},
	ActionAcceptPayment:      {from: []OrderStatus{OrderStatusPendingConfirmation}, to: OrderStatusProcessing},
	ActionShip:               {from: []OrderStatus{OrderStatusProcessing}, to: OrderStatusShipped},
	ActionConfirmReceipt:     {from: []OrderStatus{OrderStatusShipped}, to: OrderStatusConfirmed},
}

// порядок статусов на основном пути; CANCELLED вне шкалы.
var happyPath = []OrderStatus{
	OrderStatusPendingPayment,
	OrderStatusPendingConfirmation,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusConfirmed,
}

// Valid проверяет, что статус известен.
func (s OrderStatus) Valid() bool {
	return s == OrderStatusCancelled || s.rank() >= 0
}

// Terminal: из статуса нет переходов.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusConfirmed || s == OrderStatusCancelled
}

// Cancellable: покупатель ещё может отменить заказ.
func (s OrderStatus) Cancellable() bool {
	return s == OrderStatusPendingPayment || s == OrderStatusPendingConfirmation
}

func (s OrderStatus) rank() int {
	for i, st := range happyPath {
		if st == s {
			return i
		}
	}
	return -1
}

// Reachable сообщает, можно ли из from попасть в to по графу статусов.
// Используется при синхронизации со статусами бэкенда: откаты назад отбрасываются.
func Reachable(from, to OrderStatus) bool {
	if from == to || from.Terminal() || !to.Valid() {
		return false
	}
	if to == OrderStatusCancelled {
		return from.Cancellable()
	}
	fr, tr := from.rank(), to.rank()
	return fr >= 0 && tr > fr
}

// Allowed проверяет, разрешено ли действие из статуса.
func (a OrderAction) Allowed(from OrderStatus) bool {
	t, ok := transitions[a]
	if !ok {
		return false
	}
	for _, st := range t.from {
		if st == from {
			return true
		}
	}
	return false
}

// Target возвращает статус, в который ведёт действие.
func (a OrderAction) Target() (OrderStatus, bool) {
	t, ok := transitions[a]
	return t.to, ok
}

// PaymentDeadlinePassed: срок оплаты задан и истёк.
func (o Order) PaymentDeadlinePassed(now time.Time) bool {
	return o.Status == OrderStatusPendingPayment && o.PaymentDeadline != nil && now.After(*o.PaymentDeadline)
}

// PaymentTimeLeft возвращает оставшееся время на оплату (0, если срока нет или он истёк).
func (o Order) PaymentTimeLeft(now time.Time) time.Duration {
	if o.Status != OrderStatusPendingPayment || o.PaymentDeadline == nil {
		return 0
	}
	return max(o.PaymentDeadline.Sub(now), 0)
}

// Transition возвращает новое состояние заказа после действия. Получатель не меняется.
func (o Order) Transition(action OrderAction, reason string, now time.Time) (Order, error) {
	if !action.Allowed(o.Status) {
		return Order{}, ErrIllegalTransition.WithMessage("%s is not allowed from %s", action, o.Status)
	}
	switch action {
	case ActionCancel:
		if strings.TrimSpace(reason) == "" {
			return Order{}, ErrCancelReasonRequired
		}
	case ActionUploadPaymentProof:
		if o.PaymentDeadlinePassed(now) {
			return Order{}, ErrPaymentDeadlinePassed
		}
	}

	target, _ := action.Target()
	next := o.Clone()
	next.Status = target
	next.UpdatedAt = now
	if target != OrderStatusPendingPayment {
		next.PaymentDeadline = nil
	}
	if action == ActionCancel {
		next.CancelReason = strings.TrimSpace(reason)
	}
	return next, nil
}

// AvailableActions возвращает действия покупателя, доступные сейчас.
func (o Order) AvailableActions(now time.Time) []OrderAction {
	var actions []OrderAction
	for _, a := range []OrderAction{ActionUploadPaymentProof, ActionCancel, ActionConfirmReceipt} {
		if !a.Allowed(o.Status) {
			continue
		}
		if a == ActionUploadPaymentProof && o.PaymentDeadlinePassed(now) {
			continue
		}
		actions = append(actions, a)
	}
	return actions
}
