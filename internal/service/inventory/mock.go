// Package inventory хранит каталог магазинов в памяти: цены и остатки товаров.
// Подменяет сервис каталога бэкенда в dev-режиме и тестах.
package inventory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// MockService: конфигурируемый каталог.
type MockService struct {
	mu     sync.Mutex
	offers map[string]domain.ProductOffer

	// ProductErr, если задана, возвращается из любого вызова Product.
	ProductErr   error
	ProductCalls int
}

// NewMockService возвращает каталог с переданными предложениями.
func NewMockService(offers ...domain.ProductOffer) *MockService {
	m := &MockService{offers: make(map[string]domain.ProductOffer, len(offers))}
	for _, offer := range offers {
		m.Put(offer)
	}
	return m
}

func offerKey(storeID, productID string) string {
	return storeID + "/" + productID
}

// Put добавляет или заменяет предложение.
func (m *MockService) Put(offer domain.ProductOffer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offers[offerKey(offer.StoreID, offer.ProductID)] = offer
}

// SetStock меняет остаток. Возвращает false, если товара нет.
func (m *MockService) SetStock(storeID, productID string, stock int32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := offerKey(storeID, productID)
	offer, ok := m.offers[key]
	if !ok {
		return false
	}
	offer.Stock = stock
	m.offers[key] = offer
	return true
}

// SetPrice меняет цену. Возвращает false, если товара нет.
func (m *MockService) SetPrice(storeID, productID string, price domain.Money) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := offerKey(storeID, productID)
	offer, ok := m.offers[key]
	if !ok {
		return false
	}
	offer.Price = price
	m.offers[key] = offer
	return true
}

// Remove снимает товар с продажи.
func (m *MockService) Remove(storeID, productID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.offers, offerKey(storeID, productID))
}

// Product возвращает предложение или ErrNotFound.
func (m *MockService) Product(ctx context.Context, productID, storeID string) (domain.ProductOffer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ProductCalls++
	if err := ctx.Err(); err != nil {
		return domain.ProductOffer{}, domain.ErrTransport.Wrap(err)
	}
	if m.ProductErr != nil {
		return domain.ProductOffer{}, m.ProductErr
	}
	offer, ok := m.offers[offerKey(storeID, productID)]
	if !ok {
		return domain.ProductOffer{}, domain.ErrNotFound.WithMessage("product %s not sold in store %s", productID, storeID)
	}
	return offer, nil
}

var _ domain.CatalogService = (*MockService)(nil)
