package shipping

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type stubLocator struct {
	store domain.NearestStore
	err   error
	calls int
}

func (s *stubLocator) NearestStore(_ context.Context, _ domain.Coordinates) (domain.NearestStore, error) {
	s.calls++
	return s.store, s.err
}

type stubOptions struct {
	options []domain.ShippingOption
	err     error
}

func (s *stubOptions) ShippingOptions(_ context.Context, _ string) ([]domain.ShippingOption, error) {
	return s.options, s.err
}

func km(v float64) *float64 { return &v }

var rates = domain.ShippingRates{PerKm: decimal.NewFromInt(1000), PerKg: decimal.NewFromInt(500)}

func TestCost(t *testing.T) {
	opt := domain.ShippingOption{ServiceCode: "regular", BaseCost: 5000}

	// 5000 + 3.25*1000 + 1.5*500 = 9000
	assert.Equal(t, domain.Money(9000), Cost(opt, 3.25, 1500, rates))
	// 5000 + 0.0005*1000 = 5000.5 -> 5001
	assert.Equal(t, domain.Money(5001), Cost(opt, 0.0005, 0, rates))
	// 5000 + 0.0004*1000 = 5000.4 -> 5000
	assert.Equal(t, domain.Money(5000), Cost(opt, 0.0004, 0, rates))
}

func TestQuote_ExcludesOptionsBeyondMaxDistance(t *testing.T) {
	locator := &stubLocator{store: domain.NearestStore{StoreID: "store-1", DistanceKm: 75}}
	options := &stubOptions{options: []domain.ShippingOption{
		{ServiceCode: "bike", BaseCost: 1000, MaxDistanceKm: km(50)},
		{ServiceCode: "van", BaseCost: 8000},
	}}
	e := NewEstimator(locator, options, rates, nil)

	quote, err := e.Quote(context.Background(), &domain.Address{ID: "addr-1"}, 2000)
	require.NoError(t, err)
	require.Len(t, quote.Options, 1)
	assert.Equal(t, "van", quote.Options[0].ServiceCode)
	assert.Equal(t, domain.Money(8000+75000+1000), quote.Options[0].Cost)
	assert.Equal(t, "store-1", quote.Store.StoreID)
}

func TestQuote_OnlyOptionOutOfRange(t *testing.T) {
	locator := &stubLocator{store: domain.NearestStore{StoreID: "store-1", DistanceKm: 75}}
	options := &stubOptions{options: []domain.ShippingOption{
		{ServiceCode: "bike", BaseCost: 1000, MaxDistanceKm: km(50)},
	}}
	e := NewEstimator(locator, options, rates, nil)

	_, err := e.Quote(context.Background(), &domain.Address{ID: "addr-1"}, 0)
	require.ErrorIs(t, err, domain.ErrNoShippingAvailable)
}

func TestQuote_NoAddress(t *testing.T) {
	locator := &stubLocator{}
	e := NewEstimator(locator, &stubOptions{}, rates, nil)

	_, err := e.Quote(context.Background(), nil, 100)
	require.ErrorIs(t, err, domain.ErrNoAddressSelected)
	assert.Zero(t, locator.calls, "no remote call without address")
}

func TestQuote_SortsByCostAndPropagatesErrors(t *testing.T) {
	locator := &stubLocator{store: domain.NearestStore{StoreID: "store-1", DistanceKm: 2}}
	options := &stubOptions{options: []domain.ShippingOption{
		{ServiceCode: "express", BaseCost: 15000},
		{ServiceCode: "regular", BaseCost: 5000},
		{ServiceCode: "economy", BaseCost: 5000},
	}}
	e := NewEstimator(locator, options, rates, nil)

	quote, err := e.Quote(context.Background(), &domain.Address{}, 0)
	require.NoError(t, err)
	codes := []string{quote.Options[0].ServiceCode, quote.Options[1].ServiceCode, quote.Options[2].ServiceCode}
	assert.Equal(t, []string{"economy", "regular", "express"}, codes)

	cheapest, ok := quote.Option("")
	require.True(t, ok)
	assert.Equal(t, "economy", cheapest.ServiceCode)
	_, ok = quote.Option("drone")
	assert.False(t, ok)

	locator.err = domain.ErrTransport
	_, err = e.Quote(context.Background(), &domain.Address{}, 0)
	assert.True(t, errors.Is(err, domain.ErrTransport))
}
