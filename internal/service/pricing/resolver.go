// Package pricing разрешает скидки магазина и ваучер пользователя для корзины.
package pricing

import (
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Input: снимок корзины и всё, что нужно для расчёта скидок.
type Input struct {
	Lines   []domain.CartLine
	Rules   []domain.DiscountRule
	Voucher *domain.Voucher
	// ShippingCost: стоимость выбранной доставки, база для SHIPPING-ваучера.
	ShippingCost domain.Money
	Now          time.Time
}

// Resolver применяет правила по возрастанию ID: сначала товарные, затем на корзину, затем ваучер.
type Resolver struct {
	logger *log.Entry
}

// NewResolver создаёт Resolver.
func NewResolver(logger *log.Entry) *Resolver {
	if logger == nil {
		logger = log.New().WithField("component", "pricing")
	}
	return &Resolver{logger: logger}
}

// Resolve считает разбивку скидок. Ошибка ваучера не прерывает расчёт:
// она возвращается в VoucherErr, а вычет по ваучеру остаётся нулевым.
func (r *Resolver) Resolve(in Input) domain.DiscountBreakdown {
	var out domain.DiscountBreakdown

	subtotal := subtotalOf(in.Lines)
	rules := eligibleRules(in.Rules, in.Now, subtotal)

	// остаток по каждой строке, чтобы скидки не уводили строку в минус
	remaining := make([]domain.Money, len(in.Lines))
	for i, line := range in.Lines {
		remaining[i] = line.Total()
	}

	for _, rule := range rules {
		if rule.Scope != domain.DiscountScopeProduct {
			continue
		}
		for i, line := range in.Lines {
			if line.ProductID != rule.ProductID || remaining[i] == 0 {
				continue
			}
			amount := lineDiscount(rule, line, remaining[i])
			if amount == 0 {
				continue
			}
			remaining[i] -= amount
			out.ProductDiscount += amount
			out.Applied = append(out.Applied, domain.AppliedDiscount{
				RuleID: rule.ID, ProductID: line.ProductID, Kind: rule.Kind, Amount: amount,
			})
		}
	}

	net := subtotal - out.ProductDiscount
	for _, rule := range rules {
		if rule.Scope != domain.DiscountScopeCart || net == 0 {
			continue
		}
		if rule.Kind == domain.DiscountKindBOGO {
			r.logger.WithField("rule_id", rule.ID).Debug("cart-wide BOGO rule ignored")
			continue
		}
		amount := rule.Amount(net)
		if amount == 0 {
			continue
		}
		net -= amount
		out.CartDiscount += amount
		out.Applied = append(out.Applied, domain.AppliedDiscount{RuleID: rule.ID, Kind: rule.Kind, Amount: amount})
	}
	out.DiscountAmount = out.ProductDiscount + out.CartDiscount

	if in.Voucher != nil {
		r.applyVoucher(&out, *in.Voucher, in.Now, subtotal, net, in.ShippingCost)
	}

	out.TotalDiscount = out.DiscountAmount + out.VoucherDeduction + out.ShippingDeduction
	return out
}

func (r *Resolver) applyVoucher(out *domain.DiscountBreakdown, v domain.Voucher, now time.Time, subtotal, net, shipping domain.Money) {
	if err := v.Check(now, subtotal); err != nil {
		out.VoucherErr = err
		r.logger.WithError(err).WithField("voucher", v.Code).Debug("voucher rejected")
		return
	}

	var applied domain.AppliedDiscount
	switch v.Target {
	case domain.VoucherTargetShipping:
		out.ShippingDeduction = v.Deduction(shipping.NonNegative())
		applied = domain.AppliedDiscount{VoucherCode: v.Code, Amount: out.ShippingDeduction}
	default:
		out.VoucherDeduction = v.Deduction(net.NonNegative())
		applied = domain.AppliedDiscount{VoucherCode: v.Code, Amount: out.VoucherDeduction}
	}
	if applied.Amount > 0 {
		out.Applied = append(out.Applied, applied)
	}
}

// lineDiscount считает скидку правила на строку, не больше её остатка.
func lineDiscount(rule domain.DiscountRule, line domain.CartLine, remaining domain.Money) domain.Money {
	if rule.Kind == domain.DiscountKindBOGO {
		free := line.Qty / 2
		if free == 0 {
			return 0
		}
		return domain.MinMoney(line.UnitPrice.Times(free), remaining)
	}
	return rule.Amount(remaining)
}

func eligibleRules(rules []domain.DiscountRule, now time.Time, subtotal domain.Money) []domain.DiscountRule {
	out := make([]domain.DiscountRule, 0, len(rules))
	for _, rule := range rules {
		if rule.Eligible(now, subtotal) {
			out = append(out, rule)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func subtotalOf(lines []domain.CartLine) domain.Money {
	var total domain.Money
	for _, line := range lines {
		total += line.Total()
	}
	return total
}
