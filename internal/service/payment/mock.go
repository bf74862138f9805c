// Package payment хранит заказы с оплатой переводом в памяти: создание, загрузка
// подтверждения, проверка оплаты магазином. Подменяет сервис заказов бэкенда
// в dev-режиме.
package payment

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// DefaultPaymentWindow: срок оплаты нового заказа.
const DefaultPaymentWindow = 24 * time.Hour

// MockGateway: конфигурируемый сервис заказов.
type MockGateway struct {
	mu      sync.Mutex
	catalog domain.CatalogService
	window  time.Duration
	now     func() time.Time

	orders map[string]domain.Order
	byKey  map[string]string

	// Ошибки, возвращаемые соответствующими вызовами.
	CreateErr error
	UploadErr error
	CancelErr error

	CreateCalls int
	UploadCalls int
}

// Option настраивает MockGateway.
type Option func(*MockGateway)

// WithPaymentWindow задаёт срок оплаты.
func WithPaymentWindow(d time.Duration) Option {
	return func(m *MockGateway) {
		if d > 0 {
			m.window = d
		}
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(m *MockGateway) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMockGateway создаёт сервис заказов. Цены позиций берутся из catalog.
func NewMockGateway(catalog domain.CatalogService, opts ...Option) *MockGateway {
	m := &MockGateway{
		catalog: catalog,
		window:  DefaultPaymentWindow,
		now:     time.Now,
		orders:  make(map[string]domain.Order),
		byKey:   make(map[string]string),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateOrder создаёт заказ в PENDING_PAYMENT. Повтор с тем же ключом возвращает тот же заказ.
func (m *MockGateway) CreateOrder(ctx context.Context, req domain.PlaceOrderRequest) (domain.Order, error) {
	m.mu.Lock()
	m.CreateCalls++
	if m.CreateErr != nil {
		m.mu.Unlock()
		return domain.Order{}, m.CreateErr
	}
	if id, ok := m.byKey[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		order := m.orders[id].Clone()
		m.mu.Unlock()
		return order, nil
	}
	m.mu.Unlock()

	if len(req.Items) == 0 {
		return domain.Order{}, domain.ErrCartEmpty
	}

	now := m.now().UTC()
	order := domain.Order{
		ID:              uuid.NewString(),
		UserID:          req.UserID,
		StoreID:         req.StoreID,
		Status:          domain.OrderStatusPendingPayment,
		ShippingService: req.ShippingService,
		AddressID:       req.AddressID,
		VoucherCode:     req.VoucherCode,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for _, it := range req.Items {
		offer, err := m.catalog.Product(ctx, it.ProductID, req.StoreID)
		if err != nil {
			return domain.Order{}, fmt.Errorf("price item %s: %w", it.ProductID, err)
		}
		if it.Qty > offer.Stock {
			return domain.Order{}, domain.ErrOutOfStock.WithMessage("only %d of %s left", offer.Stock, it.ProductID)
		}
		item := domain.OrderItem{
			ID:              uuid.NewString(),
			ProductID:       it.ProductID,
			ProductName:     offer.Name,
			PriceAtPurchase: offer.Price,
			Qty:             it.Qty,
		}
		order.Items = append(order.Items, item)
		order.Subtotal += item.Total()
	}

	// разбивки итога в запросе нет: разница с subtotal относится на доставку или скидку
	order.TotalAmount = req.ExpectedTotal
	if diff := req.ExpectedTotal - order.Subtotal; diff >= 0 {
		order.ShippingCost = diff
	} else {
		order.DiscountAmount = -diff
	}
	deadline := now.Add(m.window)
	order.PaymentDeadline = &deadline

	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.byKey[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		return m.orders[id].Clone(), nil
	}
	m.orders[order.ID] = order
	if req.IdempotencyKey != "" {
		m.byKey[req.IdempotencyKey] = order.ID
	}
	return order.Clone(), nil
}

// UploadPaymentProof принимает подтверждение оплаты.
func (m *MockGateway) UploadPaymentProof(ctx context.Context, orderID string, proof domain.PaymentProof) (domain.Order, error) {
	m.mu.Lock()
	m.UploadCalls++
	uploadErr := m.UploadErr
	m.mu.Unlock()
	if uploadErr != nil {
		return domain.Order{}, uploadErr
	}
	if len(proof.Data) == 0 {
		return domain.Order{}, domain.ErrInvalidProof
	}
	return m.transition(orderID, domain.ActionUploadPaymentProof, "", func(o *domain.Order) {
		o.PaymentProofURL = fmt.Sprintf("mock://payment-proofs/%s/%s", o.ID, proof.Filename)
	})
}

// CancelOrder отменяет заказ.
func (m *MockGateway) CancelOrder(ctx context.Context, orderID, reason string) (domain.Order, error) {
	m.mu.Lock()
	cancelErr := m.CancelErr
	m.mu.Unlock()
	if cancelErr != nil {
		return domain.Order{}, cancelErr
	}
	return m.transition(orderID, domain.ActionCancel, reason, nil)
}

// ConfirmOrder подтверждает получение.
func (m *MockGateway) ConfirmOrder(ctx context.Context, orderID string) (domain.Order, error) {
	return m.transition(orderID, domain.ActionConfirmReceipt, "", nil)
}

// AcceptPayment подтверждает оплату от имени магазина.
func (m *MockGateway) AcceptPayment(ctx context.Context, orderID string) (domain.Order, error) {
	return m.transition(orderID, domain.ActionAcceptPayment, "", nil)
}

// ShipOrder отправляет заказ.
func (m *MockGateway) ShipOrder(ctx context.Context, orderID string) (domain.Order, error) {
	return m.transition(orderID, domain.ActionShip, "", nil)
}

// GetOrder возвращает заказ или ErrNotFound.
func (m *MockGateway) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[orderID]
	if !ok {
		return domain.Order{}, domain.ErrNotFound.WithMessage("order %s not found", orderID)
	}
	return order.Clone(), nil
}

// Orders возвращает заказы пользователя, новые первыми.
func (m *MockGateway) Orders(userID string) []domain.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Order
	for _, o := range m.orders {
		if o.UserID == userID {
			out = append(out, o.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// ExpireUnpaid отменяет неоплаченные заказы с истёкшим сроком. Возвращает их число.
func (m *MockGateway) ExpireUnpaid() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now().UTC()
	expired := 0
	for id, o := range m.orders {
		if !o.PaymentDeadlinePassed(now) {
			continue
		}
		next, err := o.Transition(domain.ActionCancel, "payment deadline passed", now)
		if err != nil {
			continue
		}
		m.orders[id] = next
		expired++
	}
	return expired
}

func (m *MockGateway) transition(orderID string, action domain.OrderAction, reason string, mutate func(*domain.Order)) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[orderID]
	if !ok {
		return domain.Order{}, domain.ErrNotFound.WithMessage("order %s not found", orderID)
	}
	next, err := order.Transition(action, reason, m.now().UTC())
	if err != nil {
		return domain.Order{}, err
	}
	if mutate != nil {
		mutate(&next)
	}
	m.orders[orderID] = next
	return next.Clone(), nil
}

var (
	_ domain.OrderGateway      = (*MockGateway)(nil)
	_ domain.OrderAdminGateway = (*MockGateway)(nil)
)
