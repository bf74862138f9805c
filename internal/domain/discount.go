package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DiscountScope определяет, к чему применяется правило.
type DiscountScope string

const (
	// DiscountScopeProduct: правило для конкретного товара.
	DiscountScopeProduct DiscountScope = "PRODUCT"
	// DiscountScopeCart: правило на всю корзину.
	DiscountScopeCart DiscountScope = "CART"
)

// DiscountKind: способ расчёта скидки.
type DiscountKind string

const (
	// DiscountKindBOGO: каждая вторая единица товара бесплатно.
	DiscountKindBOGO DiscountKind = "BOGO"
	// DiscountKindPercentage: процент от суммы.
	DiscountKindPercentage DiscountKind = "PERCENTAGE"
	// DiscountKindNominal: фиксированная сумма в минимальных единицах.
	DiscountKindNominal DiscountKind = "NOMINAL"
)

// DiscountRule: правило скидки магазина. Правила только читаются.
// MaxDiscount == 0 означает отсутствие ограничения.
type DiscountRule struct {
	ID          int64
	Name        string
	Scope       DiscountScope
	ProductID   string
	Kind        DiscountKind
	Value       decimal.Decimal
	MinPurchase Money
	MaxDiscount Money
	StartsAt    time.Time
	EndsAt      time.Time
}

// ActiveAt проверяет окно действия правила (границы включительно).
func (r DiscountRule) ActiveAt(now time.Time) bool {
	if !r.StartsAt.IsZero() && now.Before(r.StartsAt) {
		return false
	}
	if !r.EndsAt.IsZero() && now.After(r.EndsAt) {
		return false
	}
	return true
}

// Eligible: правило действует сейчас и сумма покупки достигла минимума.
func (r DiscountRule) Eligible(now time.Time, subtotal Money) bool {
	return r.ActiveAt(now) && r.MinPurchase <= subtotal
}

// Amount считает скидку от base без учёта BOGO.
func (r DiscountRule) Amount(base Money) Money {
	var amount Money
	switch r.Kind {
	case DiscountKindPercentage:
		amount = base.Percent(r.Value)
	case DiscountKindNominal:
		amount = Money(r.Value.Floor().IntPart())
	default:
		return 0
	}
	if r.MaxDiscount > 0 {
		amount = MinMoney(amount, r.MaxDiscount)
	}
	return MinMoney(amount.NonNegative(), base.NonNegative())
}

// AppliedDiscount: одна применённая скидка.
type AppliedDiscount struct {
	RuleID      int64
	VoucherCode string
	ProductID   string
	Kind        DiscountKind
	Amount      Money
}

// DiscountBreakdown: результат разрешения скидок и ваучера.
type DiscountBreakdown struct {
	// ProductDiscount: сумма скидок по товарам.
	ProductDiscount Money
	// CartDiscount: сумма скидок на корзину.
	CartDiscount Money
	// DiscountAmount = ProductDiscount + CartDiscount.
	DiscountAmount    Money
	VoucherDeduction  Money
	ShippingDeduction Money
	TotalDiscount     Money
	Applied           []AppliedDiscount
	// VoucherErr: причина, по которой выбранный ваучер не применён.
	VoucherErr error
}
