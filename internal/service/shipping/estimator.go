// Package shipping оценивает стоимость доставки от ближайшего магазина до адреса покупателя.
package shipping

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

var gramsPerKg = decimal.NewFromInt(1000)

// Estimator рассчитывает тарифы. Расстояние приходит от StoreLocator и здесь не вычисляется.
type Estimator struct {
	locator domain.StoreLocator
	options domain.ShippingOptionSource
	rates   domain.ShippingRates
	logger  *log.Entry
}

// NewEstimator создаёт Estimator.
func NewEstimator(locator domain.StoreLocator, options domain.ShippingOptionSource, rates domain.ShippingRates, logger *log.Entry) *Estimator {
	if logger == nil {
		logger = log.New().WithField("component", "shipping")
	}
	return &Estimator{locator: locator, options: options, rates: rates, logger: logger}
}

// Quote определяет ближайший магазин и возвращает доступные тарифы по возрастанию стоимости.
func (e *Estimator) Quote(ctx context.Context, dest *domain.Address, weightGrams int64) (domain.ShippingQuote, error) {
	if dest == nil {
		return domain.ShippingQuote{}, domain.ErrNoAddressSelected
	}

	store, err := e.locator.NearestStore(ctx, dest.Location)
	if err != nil {
		return domain.ShippingQuote{}, fmt.Errorf("resolve nearest store: %w", err)
	}
	candidates, err := e.options.ShippingOptions(ctx, store.StoreID)
	if err != nil {
		return domain.ShippingQuote{}, fmt.Errorf("load shipping options: %w", err)
	}

	priced := Price(candidates, store.DistanceKm, weightGrams, e.rates)
	if len(priced) == 0 {
		e.logger.WithFields(log.Fields{
			"store_id":    store.StoreID,
			"distance_km": store.DistanceKm,
			"candidates":  len(candidates),
		}).Info("no shipping option covers destination")
		return domain.ShippingQuote{}, domain.ErrNoShippingAvailable.WithMessage(
			"store %s is %.1f km away, no option covers it", store.StoreID, store.DistanceKm)
	}

	return domain.ShippingQuote{Store: store, WeightGrams: weightGrams, Options: priced}, nil
}

// Price отбрасывает тарифы, не покрывающие расстояние, и считает стоимость остальных.
func Price(options []domain.ShippingOption, distanceKm float64, weightGrams int64, rates domain.ShippingRates) []domain.PricedShippingOption {
	priced := make([]domain.PricedShippingOption, 0, len(options))
	for _, opt := range options {
		if !opt.Serves(distanceKm) {
			continue
		}
		priced = append(priced, domain.PricedShippingOption{
			ShippingOption: opt,
			Cost:           Cost(opt, distanceKm, weightGrams, rates),
		})
	}
	sort.SliceStable(priced, func(i, j int) bool {
		if priced[i].Cost != priced[j].Cost {
			return priced[i].Cost < priced[j].Cost
		}
		return priced[i].ServiceCode < priced[j].ServiceCode
	})
	return priced
}

// Cost = base + km*perKm + (g/1000)*perKg, округление до целой единицы.
func Cost(opt domain.ShippingOption, distanceKm float64, weightGrams int64, rates domain.ShippingRates) domain.Money {
	total := opt.BaseCost.Decimal().
		Add(decimal.NewFromFloat(distanceKm).Mul(rates.PerKm)).
		Add(decimal.NewFromInt(weightGrams).Div(gramsPerKg).Mul(rates.PerKg))
	return domain.MoneyFromDecimal(total)
}
