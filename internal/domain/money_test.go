package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestMoneyPercentFloors(t *testing.T) {
	tests := []struct {
		name   string
		amount Money
		pct    string
		want   Money
	}{
		{name: "ten percent", amount: 25000, pct: "10", want: 2500},
		{name: "fraction floored", amount: 999, pct: "10", want: 99},
		{name: "fractional percent", amount: 10000, pct: "12.5", want: 1250},
		{name: "zero amount", amount: 0, pct: "10", want: 0},
		{name: "negative percent", amount: 1000, pct: "-5", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.amount.Percent(decimal.RequireFromString(tt.pct))
			if got != tt.want {
				t.Fatalf("Percent() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestMoneyFromDecimalRoundsHalfAwayFromZero(t *testing.T) {
	if got := MoneyFromDecimal(decimal.RequireFromString("10.5")); got != 11 {
		t.Fatalf("10.5 -> %d", got)
	}
	if got := MoneyFromDecimal(decimal.RequireFromString("10.49")); got != 10 {
		t.Fatalf("10.49 -> %d", got)
	}
}

func TestMinMoneyAndNonNegative(t *testing.T) {
	if got := MinMoney(5000, 4000, 4500); got != 4000 {
		t.Fatalf("MinMoney() = %d", got)
	}
	if got := Money(-3).NonNegative(); got != 0 {
		t.Fatalf("NonNegative() = %d", got)
	}
	if ValidQuantity(0) == nil || ValidQuantity(1) != nil {
		t.Fatal("ValidQuantity boundary is 1")
	}
}
