package pricing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func twoLines() []domain.CartLine {
	return []domain.CartLine{
		{ID: "l-a", ProductID: "p-a", UnitPrice: 10000, Qty: 2, AvailableStock: 10},
		{ID: "l-b", ProductID: "p-b", UnitPrice: 5000, Qty: 1, AvailableStock: 10},
	}
}

func pct(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestResolve_CartWidePercentage(t *testing.T) {
	r := NewResolver(nil)

	out := r.Resolve(Input{
		Lines: twoLines(),
		Rules: []domain.DiscountRule{{ID: 1, Scope: domain.DiscountScopeCart, Kind: domain.DiscountKindPercentage, Value: pct(10)}},
		Now:   now,
	})

	assert.Equal(t, domain.Money(2500), out.DiscountAmount)
	assert.Equal(t, domain.Money(2500), out.TotalDiscount)
	assert.Equal(t, domain.Money(22500), domain.Money(25000)-out.TotalDiscount)
}

func TestResolve_NominalVoucherCapped(t *testing.T) {
	r := NewResolver(nil)
	voucher := domain.Voucher{
		Code: "SAVE5K", Kind: domain.VoucherKindNominal, Value: pct(5000),
		MinPurchase: 20000, MaxDiscount: 4000, ExpiresAt: now.Add(time.Hour), Target: domain.VoucherTargetTransaction,
	}

	out := r.Resolve(Input{Lines: twoLines(), Voucher: &voucher, Now: now})

	require.NoError(t, out.VoucherErr)
	assert.Equal(t, domain.Money(4000), out.VoucherDeduction)
	assert.Equal(t, domain.Money(4000), out.TotalDiscount)
}

func TestResolve_VoucherBelowMinimum(t *testing.T) {
	r := NewResolver(nil)
	voucher := domain.Voucher{
		Code: "BIG", Kind: domain.VoucherKindNominal, Value: pct(5000),
		MinPurchase: 30000, ExpiresAt: now.Add(time.Hour), Target: domain.VoucherTargetTransaction,
	}

	out := r.Resolve(Input{Lines: twoLines(), Voucher: &voucher, Now: now})

	require.ErrorIs(t, out.VoucherErr, domain.ErrVoucherIneligible)
	assert.Zero(t, out.VoucherDeduction)
	assert.Zero(t, out.TotalDiscount)
}

func TestResolve_VoucherExpiredAndUsed(t *testing.T) {
	r := NewResolver(nil)
	used := now.Add(-time.Hour)

	expired := domain.Voucher{Code: "OLD", Kind: domain.VoucherKindNominal, Value: pct(100), ExpiresAt: now.Add(-time.Second)}
	out := r.Resolve(Input{Lines: twoLines(), Voucher: &expired, Now: now})
	require.ErrorIs(t, out.VoucherErr, domain.ErrVoucherExpired)

	spent := domain.Voucher{Code: "USED", Kind: domain.VoucherKindNominal, Value: pct(100), UsedAt: &used}
	out = r.Resolve(Input{Lines: twoLines(), Voucher: &spent, Now: now})
	require.ErrorIs(t, out.VoucherErr, domain.ErrVoucherAlreadyUsed)
	assert.Zero(t, out.TotalDiscount)
}

func TestResolve_ShippingVoucherCappedAtShippingCost(t *testing.T) {
	r := NewResolver(nil)
	voucher := domain.Voucher{
		Code: "FREESHIP", Kind: domain.VoucherKindNominal, Value: pct(20000), Target: domain.VoucherTargetShipping,
	}

	out := r.Resolve(Input{Lines: twoLines(), Voucher: &voucher, ShippingCost: 9000, Now: now})

	assert.Equal(t, domain.Money(9000), out.ShippingDeduction)
	assert.Zero(t, out.VoucherDeduction)
	assert.Equal(t, domain.Money(9000), out.TotalDiscount)
}

func TestResolve_BOGO(t *testing.T) {
	r := NewResolver(nil)
	lines := []domain.CartLine{
		{ProductID: "p-a", UnitPrice: 3000, Qty: 5},
		{ProductID: "p-b", UnitPrice: 1000, Qty: 1},
	}
	rules := []domain.DiscountRule{
		{ID: 4, Scope: domain.DiscountScopeProduct, ProductID: "p-a", Kind: domain.DiscountKindBOGO},
		{ID: 5, Scope: domain.DiscountScopeProduct, ProductID: "p-b", Kind: domain.DiscountKindBOGO},
	}

	out := r.Resolve(Input{Lines: lines, Rules: rules, Now: now})

	// floor(5/2)=2 бесплатные единицы; у p-b одна единица, скидки нет
	assert.Equal(t, domain.Money(6000), out.ProductDiscount)
	require.Len(t, out.Applied, 1)
	assert.Equal(t, int64(4), out.Applied[0].RuleID)
}

func TestResolve_ProductRulesBeforeCartRulesInIDOrder(t *testing.T) {
	r := NewResolver(nil)
	rules := []domain.DiscountRule{
		{ID: 9, Scope: domain.DiscountScopeCart, Kind: domain.DiscountKindPercentage, Value: pct(10)},
		{ID: 3, Scope: domain.DiscountScopeProduct, ProductID: "p-a", Kind: domain.DiscountKindNominal, Value: pct(3000), MaxDiscount: 2000},
		{ID: 2, Scope: domain.DiscountScopeProduct, ProductID: "p-a", Kind: domain.DiscountKindPercentage, Value: pct(50)},
	}

	out := r.Resolve(Input{Lines: twoLines(), Rules: rules, Now: now})

	// правило 2: 50% от 20000 = 10000; правило 3: min(3000, 2000) = 2000
	// корзина: 10% от 25000-12000 = 1300
	assert.Equal(t, domain.Money(12000), out.ProductDiscount)
	assert.Equal(t, domain.Money(1300), out.CartDiscount)
	require.Len(t, out.Applied, 3)
	assert.Equal(t, []int64{2, 3, 9}, []int64{out.Applied[0].RuleID, out.Applied[1].RuleID, out.Applied[2].RuleID})
}

func TestResolve_FiltersInactiveAndBelowMinimumRules(t *testing.T) {
	r := NewResolver(nil)
	rules := []domain.DiscountRule{
		{ID: 1, Scope: domain.DiscountScopeCart, Kind: domain.DiscountKindNominal, Value: pct(1000), EndsAt: now.Add(-time.Minute)},
		{ID: 2, Scope: domain.DiscountScopeCart, Kind: domain.DiscountKindNominal, Value: pct(1000), StartsAt: now.Add(time.Minute)},
		{ID: 3, Scope: domain.DiscountScopeCart, Kind: domain.DiscountKindNominal, Value: pct(1000), MinPurchase: 25001},
		{ID: 4, Scope: domain.DiscountScopeCart, Kind: domain.DiscountKindNominal, Value: pct(1000), MinPurchase: 25000},
	}

	out := r.Resolve(Input{Lines: twoLines(), Rules: rules, Now: now})

	assert.Equal(t, domain.Money(1000), out.DiscountAmount)
	require.Len(t, out.Applied, 1)
	assert.Equal(t, int64(4), out.Applied[0].RuleID)
}

func TestResolve_TotalDiscountNeverExceedsSubtotal(t *testing.T) {
	r := NewResolver(nil)
	rules := []domain.DiscountRule{
		{ID: 1, Scope: domain.DiscountScopeProduct, ProductID: "p-a", Kind: domain.DiscountKindNominal, Value: pct(50000)},
		{ID: 2, Scope: domain.DiscountScopeCart, Kind: domain.DiscountKindNominal, Value: pct(50000)},
		{ID: 3, Scope: domain.DiscountScopeCart, Kind: domain.DiscountKindPercentage, Value: pct(100)},
	}
	voucher := domain.Voucher{Code: "X", Kind: domain.VoucherKindNominal, Value: pct(99999), Target: domain.VoucherTargetTransaction}

	out := r.Resolve(Input{Lines: twoLines(), Rules: rules, Voucher: &voucher, Now: now})

	assert.LessOrEqual(t, int64(out.TotalDiscount), int64(25000))
	assert.Equal(t, domain.Money(25000), out.TotalDiscount)
}
