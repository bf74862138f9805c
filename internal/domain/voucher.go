package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// VoucherKind: способ расчёта ваучера.
type VoucherKind string

const (
	VoucherKindPercentage VoucherKind = "PERCENTAGE"
	VoucherKindNominal    VoucherKind = "NOMINAL"
)

// VoucherTarget: на что действует ваучер.
type VoucherTarget string

const (
	// VoucherTargetTransaction уменьшает стоимость товаров.
	VoucherTargetTransaction VoucherTarget = "TRANSACTION"
	// VoucherTargetShipping уменьшает стоимость доставки.
	VoucherTargetShipping VoucherTarget = "SHIPPING"
)

// Voucher: персональный ваучер пользователя. Однократность контролирует бэкенд,
// здесь UsedAt и ExpiresAt служат только для отображения и раннего отказа.
type Voucher struct {
	Code        string
	Kind        VoucherKind
	Value       decimal.Decimal
	MinPurchase Money
	MaxDiscount Money
	ExpiresAt   time.Time
	Target      VoucherTarget
	UsedAt      *time.Time
}

// IsUsed сообщает, что ваучер уже погашен.
func (v Voucher) IsUsed() bool {
	return v.UsedAt != nil
}

// Expired сообщает, что срок ваучера истёк.
func (v Voucher) Expired(now time.Time) bool {
	return !v.ExpiresAt.IsZero() && now.After(v.ExpiresAt)
}

// Check проверяет применимость ваучера к сумме покупки.
func (v Voucher) Check(now time.Time, subtotal Money) error {
	switch {
	case v.IsUsed():
		return ErrVoucherAlreadyUsed.WithMessage("voucher %s already used", v.Code)
	case v.Expired(now):
		return ErrVoucherExpired.WithMessage("voucher %s expired at %s", v.Code, v.ExpiresAt.Format(time.RFC3339))
	case subtotal < v.MinPurchase:
		return ErrVoucherIneligible.WithMessage("voucher %s requires minimum purchase %d", v.Code, v.MinPurchase)
	}
	return nil
}

// Deduction считает вычет от base с учётом MaxDiscount; не превышает base.
func (v Voucher) Deduction(base Money) Money {
	var amount Money
	switch v.Kind {
	case VoucherKindPercentage:
		amount = base.Percent(v.Value)
	case VoucherKindNominal:
		amount = Money(v.Value.Floor().IntPart())
	}
	if v.MaxDiscount > 0 {
		amount = MinMoney(amount, v.MaxDiscount)
	}
	return MinMoney(amount.NonNegative(), base.NonNegative())
}
