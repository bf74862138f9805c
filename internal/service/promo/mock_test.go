package promo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestApplicableRules_FiltersByStoreAndProduct(t *testing.T) {
	m := NewMockService()
	m.AddRule("s-1", domain.DiscountRule{ID: 1, Scope: domain.DiscountScopeCart, Kind: domain.DiscountKindPercentage, Value: decimal.NewFromInt(10)})
	m.AddRule("s-1", domain.DiscountRule{ID: 2, Scope: domain.DiscountScopeProduct, ProductID: "p-1", Kind: domain.DiscountKindBOGO})
	m.AddRule("s-1", domain.DiscountRule{ID: 3, Scope: domain.DiscountScopeProduct, ProductID: "p-9", Kind: domain.DiscountKindBOGO})
	m.AddRule("s-2", domain.DiscountRule{ID: 4, Scope: domain.DiscountScopeCart})

	rules, err := m.ApplicableRules(context.Background(), "s-1", []string{"p-1", "p-2"})
	require.NoError(t, err)
	ids := make([]int64, 0, len(rules))
	for _, r := range rules {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []int64{1, 2}, ids)

	m.RulesErr = domain.ErrTransport
	_, err = m.ApplicableRules(context.Background(), "s-1", nil)
	assert.True(t, errors.Is(err, domain.ErrTransport))
}

func TestApplyVoucher(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	m := NewMockService().WithClock(func() time.Time { return now })
	m.AddVoucher(domain.Voucher{Code: "SAVE10", Kind: domain.VoucherKindNominal, Value: decimal.NewFromInt(1000), ExpiresAt: now.Add(time.Hour)})
	m.AddVoucher(domain.Voucher{Code: "OLD", Kind: domain.VoucherKindNominal, ExpiresAt: now.Add(-time.Hour)})
	ctx := context.Background()

	require.NoError(t, m.ApplyVoucher(ctx, "save10", "o-1"))
	assert.True(t, errors.Is(m.ApplyVoucher(ctx, "SAVE10", "o-2"), domain.ErrVoucherAlreadyUsed))
	assert.True(t, errors.Is(m.ApplyVoucher(ctx, "OLD", ""), domain.ErrVoucherExpired))
	assert.True(t, errors.Is(m.ApplyVoucher(ctx, "NOPE", ""), domain.ErrVoucherNotFound))
	assert.Equal(t, 4, m.ApplyCalls)

	vouchers, err := m.MyVouchers(ctx)
	require.NoError(t, err)
	require.Len(t, vouchers, 2)
	assert.Equal(t, "OLD", vouchers[0].Code)
	assert.True(t, vouchers[1].IsUsed())
}
