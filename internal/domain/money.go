package domain

import "github.com/shopspring/decimal"

// Money: сумма в минимальных денежных единицах (копейки, центы, рупии без дробной части).
type Money int64

// Times возвращает стоимость qty единиц.
func (m Money) Times(qty int32) Money {
	return m * Money(qty)
}

// Percent возвращает pct процентов от суммы, округляя вниз до целой единицы.
func (m Money) Percent(pct decimal.Decimal) Money {
	if m <= 0 || !pct.IsPositive() {
		return 0
	}
	v := decimal.NewFromInt(int64(m)).Mul(pct).Div(decimal.NewFromInt(100)).Floor()
	return Money(v.IntPart())
}

// NonNegative обрезает отрицательные значения до нуля.
func (m Money) NonNegative() Money {
	if m < 0 {
		return 0
	}
	return m
}

// Decimal переводит сумму в decimal для промежуточных расчётов.
func (m Money) Decimal() decimal.Decimal {
	return decimal.NewFromInt(int64(m))
}

// MoneyFromDecimal округляет до ближайшей целой единицы (половина от нуля).
func MoneyFromDecimal(d decimal.Decimal) Money {
	return Money(d.Round(0).IntPart())
}

// MinMoney возвращает минимальную из сумм.
func MinMoney(first Money, rest ...Money) Money {
	min := first
	for _, v := range rest {
		if v < min {
			min = v
		}
	}
	return min
}

// ValidQuantity проверяет, что количество не меньше единицы.
func ValidQuantity(qty int32) error {
	if qty < 1 {
		return ErrInvalidQuantity
	}
	return nil
}
