package shipping

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestHaversineKm(t *testing.T) {
	jakarta := domain.Coordinates{Lat: -6.2088, Lng: 106.8456}
	bandung := domain.Coordinates{Lat: -6.9175, Lng: 107.6191}

	assert.InDelta(t, 116.0, HaversineKm(jakarta, bandung), 2.0)
	assert.Zero(t, HaversineKm(jakarta, jakarta))
	assert.InDelta(t, HaversineKm(jakarta, bandung), HaversineKm(bandung, jakarta), 1e-9)
}

func TestStaticLocator(t *testing.T) {
	far := 5.0
	locator := NewStaticLocator(
		Store{ID: "s-north", Location: domain.Coordinates{Lat: 1, Lng: 0}},
		Store{ID: "s-south", Location: domain.Coordinates{Lat: -1, Lng: 0}, Options: []domain.ShippingOption{
			{ServiceCode: "REG", BaseCost: 1000},
			{ServiceCode: "EXP", BaseCost: 2000, MaxDistanceKm: &far},
		}},
	)
	ctx := context.Background()

	store, err := locator.NearestStore(ctx, domain.Coordinates{Lat: -0.9, Lng: 0})
	require.NoError(t, err)
	assert.Equal(t, "s-south", store.StoreID)
	assert.InDelta(t, 11.12, store.DistanceKm, 0.01)

	options, err := locator.ShippingOptions(ctx, "s-south")
	require.NoError(t, err)
	assert.Len(t, options, 2)

	_, err = locator.ShippingOptions(ctx, "missing")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	_, err = NewStaticLocator().NearestStore(ctx, domain.Coordinates{})
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestEstimator_WithStaticLocator(t *testing.T) {
	locator := NewStaticLocator(Store{
		ID:       "s-1",
		Location: domain.Coordinates{Lat: 0, Lng: 0},
		Options:  []domain.ShippingOption{{ServiceCode: "REG", BaseCost: 1000}},
	})
	est := NewEstimator(locator, locator, domain.ShippingRates{}, nil)

	quote, err := est.Quote(context.Background(), &domain.Address{Location: domain.Coordinates{Lat: 0.01}}, 500)
	require.NoError(t, err)
	assert.Equal(t, "s-1", quote.Store.StoreID)
	require.Len(t, quote.Options, 1)
	assert.Equal(t, domain.Money(1000), quote.Options[0].Cost)
}
