// Package promo держит правила скидок и ваучеры в памяти для dev-режима и тестов.
package promo

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// MockService отдаёт правила скидок магазинов и ваучеры пользователя.
type MockService struct {
	mu       sync.Mutex
	rules    map[string][]domain.DiscountRule
	vouchers map[string]domain.Voucher
	now      func() time.Time

	RulesErr    error
	VouchersErr error
	ApplyCalls  int
}

// NewMockService создаёт пустой сервис.
func NewMockService() *MockService {
	return &MockService{
		rules:    make(map[string][]domain.DiscountRule),
		vouchers: make(map[string]domain.Voucher),
		now:      time.Now,
	}
}

// WithClock подменяет источник времени для отметки погашения.
func (m *MockService) WithClock(now func() time.Time) *MockService {
	m.now = now
	return m
}

// AddRule добавляет правило магазину.
func (m *MockService) AddRule(storeID string, rule domain.DiscountRule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[storeID] = append(m.rules[storeID], rule)
}

// AddVoucher выдаёт ваучер.
func (m *MockService) AddVoucher(v domain.Voucher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vouchers[strings.ToUpper(v.Code)] = v
}

// ApplicableRules возвращает правила магазина на корзину и на товары из productIDs.
func (m *MockService) ApplicableRules(ctx context.Context, storeID string, productIDs []string) ([]domain.DiscountRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RulesErr != nil {
		return nil, m.RulesErr
	}
	var out []domain.DiscountRule
	for _, r := range m.rules[storeID] {
		if r.Scope == domain.DiscountScopeCart || slices.Contains(productIDs, r.ProductID) {
			out = append(out, r)
		}
	}
	return out, nil
}

// MyVouchers возвращает все выданные ваучеры, отсортированные по коду.
func (m *MockService) MyVouchers(ctx context.Context) ([]domain.Voucher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.VouchersErr != nil {
		return nil, m.VouchersErr
	}
	out := make([]domain.Voucher, 0, len(m.vouchers))
	for _, v := range m.vouchers {
		out = append(out, v)
	}
	slices.SortFunc(out, func(a, b domain.Voucher) int { return strings.Compare(a.Code, b.Code) })
	return out, nil
}

// ApplyVoucher помечает ваучер погашенным.
func (m *MockService) ApplyVoucher(ctx context.Context, code, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ApplyCalls++
	key := strings.ToUpper(strings.TrimSpace(code))
	v, ok := m.vouchers[key]
	if !ok {
		return domain.ErrVoucherNotFound.WithMessage("voucher %s not found", code)
	}
	if v.IsUsed() {
		return domain.ErrVoucherAlreadyUsed
	}
	now := m.now()
	if v.Expired(now) {
		return domain.ErrVoucherExpired
	}
	v.UsedAt = &now
	m.vouchers[key] = v
	return nil
}

var (
	_ domain.DiscountService = (*MockService)(nil)
	_ domain.VoucherService  = (*MockService)(nil)
)
