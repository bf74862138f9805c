package domain

import (
	"context"
	"time"
)

// CatalogService: источник актуальных цен и остатков.
type CatalogService interface {
	// Product возвращает цену и остаток товара в магазине.
	Product(ctx context.Context, productID, storeID string) (ProductOffer, error)
}

// DiscountService отдаёт правила скидок магазина для набора товаров.
type DiscountService interface {
	ApplicableRules(ctx context.Context, storeID string, productIDs []string) ([]DiscountRule, error)
}

// VoucherService работает с ваучерами текущего пользователя.
type VoucherService interface {
	MyVouchers(ctx context.Context) ([]Voucher, error)
	// ApplyVoucher погашает ваучер; orderID может быть пустым.
	ApplyVoucher(ctx context.Context, code, orderID string) error
}

// StoreLocator определяет ближайший магазин и расстояние до него.
type StoreLocator interface {
	NearestStore(ctx context.Context, at Coordinates) (NearestStore, error)
}

// ShippingOptionSource отдаёт тарифы доставки магазина.
type ShippingOptionSource interface {
	ShippingOptions(ctx context.Context, storeID string) ([]ShippingOption, error)
}

// PlaceOrderRequest: данные для создания заказа на бэкенде.
type PlaceOrderRequest struct {
	IdempotencyKey  string
	UserID          string
	StoreID         string
	AddressID       string
	ShippingService string
	VoucherCode     string
	Items           []PlaceOrderItem
	// ExpectedTotal: итог предпросмотра; бэкенд пересчитывает сам.
	ExpectedTotal Money
}

// PlaceOrderItem: строка заказа в запросе.
type PlaceOrderItem struct {
	ProductID string
	Qty       int32
}

// OrderGateway: сервис заказов бэкенда.
type OrderGateway interface {
	CreateOrder(ctx context.Context, req PlaceOrderRequest) (Order, error)
	UploadPaymentProof(ctx context.Context, orderID string, proof PaymentProof) (Order, error)
	CancelOrder(ctx context.Context, orderID, reason string) (Order, error)
	ConfirmOrder(ctx context.Context, orderID string) (Order, error)
	GetOrder(ctx context.Context, orderID string) (Order, error)
}

// OrderAdminGateway: действия администратора магазина над заказом.
type OrderAdminGateway interface {
	AcceptPayment(ctx context.Context, orderID string) (Order, error)
	ShipOrder(ctx context.Context, orderID string) (Order, error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	Append(event TimelineEvent) error
	List(orderID string) ([]TimelineEvent, error)
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(key, method, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(key string) (IdempotencyRecord, error)
	MarkDone(key string, response []byte, statusCode int) error
	MarkFailed(key string, response []byte, statusCode int) error
	DeleteExpired(before time.Time, limit int) (int, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	Attempts      int
	CreatedAt     time.Time
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
