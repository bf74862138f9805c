package domain

import "time"

// OrderStatus описывает жизненный цикл заказа витрины.
type OrderStatus string

const (
	// OrderStatusPendingPayment: заказ создан, ждём подтверждение оплаты от покупателя.
	OrderStatusPendingPayment OrderStatus = "PENDING_PAYMENT"
	// OrderStatusPendingConfirmation: подтверждение загружено, магазин проверяет оплату.
	OrderStatusPendingConfirmation OrderStatus = "PENDING_CONFIRMATION"
	// OrderStatusProcessing: магазин принял оплату и собирает заказ.
	OrderStatusProcessing OrderStatus = "PROCESSING"
	// OrderStatusShipped: заказ передан в доставку.
	OrderStatusShipped OrderStatus = "SHIPPED"
	// OrderStatusConfirmed: покупатель подтвердил получение.
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	// OrderStatusCancelled: заказ отменён.
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// OrderItem: снимок позиции на момент создания заказа.
// Последующие изменения каталога на него не влияют.
type OrderItem struct {
	ID              string
	ProductID       string
	ProductName     string
	PriceAtPurchase Money
	Qty             int32
}

// Total возвращает стоимость позиции.
func (i OrderItem) Total() Money {
	return i.PriceAtPurchase.Times(i.Qty)
}

// Order агрегирует состояние заказа и его позиции.
type Order struct {
	ID              string
	UserID          string
	StoreID         string
	Status          OrderStatus
	Items           []OrderItem
	Subtotal        Money
	ShippingCost    Money
	DiscountAmount  Money
	TotalAmount     Money
	ShippingService string
	AddressID       string
	VoucherCode     string
	// PaymentDeadline задан только в статусе PENDING_PAYMENT.
	PaymentDeadline *time.Time
	PaymentProofURL string
	CancelReason    string
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.ID == "" {
		errs = append(errs, ErrOrderIDRequired)
	}
	if o.UserID == "" {
		errs = append(errs, ErrUserRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}

	var calc Money
	for _, item := range o.Items {
		if item.Qty <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.PriceAtPurchase < 0 {
			errs = append(errs, ErrItemPriceInvalid)
		}
		calc += item.Total()
	}
	if calc != o.Subtotal {
		errs = append(errs, ErrSubtotalMismatch)
	}

	// total = subtotal + shipping - discount, не отрицательный.
	if o.TotalAmount < 0 {
		errs = append(errs, ErrAmountNegative)
	}
	if o.TotalAmount != o.Subtotal+o.ShippingCost-o.DiscountAmount {
		errs = append(errs, ErrTotalMismatch)
	}
	if o.PaymentDeadline != nil && o.Status != OrderStatusPendingPayment {
		errs = append(errs, ErrDeadlineOutsidePendingPayment)
	}

	return errs
}

// Clone возвращает глубокую копию заказа.
func (o Order) Clone() Order {
	o.Items = append([]OrderItem(nil), o.Items...)
	if o.PaymentDeadline != nil {
		deadline := *o.PaymentDeadline
		o.PaymentDeadline = &deadline
	}
	return o
}
