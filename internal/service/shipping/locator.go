package shipping

import (
	"context"
	"math"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const earthRadiusKm = 6371.0

// Store: магазин с координатами и тарифами доставки.
type Store struct {
	ID       string
	Name     string
	Location domain.Coordinates
	Options  []domain.ShippingOption
}

// StaticLocator ищет ближайший магазин по прямой (haversine) среди заданных.
// Используется в dev-режиме вместо сервиса магазинов бэкенда.
type StaticLocator struct {
	mu     sync.RWMutex
	stores []Store

	NearestErr error
}

// NewStaticLocator создаёт локатор.
func NewStaticLocator(stores ...Store) *StaticLocator {
	return &StaticLocator{stores: stores}
}

// AddStore добавляет магазин.
func (l *StaticLocator) AddStore(s Store) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stores = append(l.stores, s)
}

// NearestStore возвращает ближайший магазин; расстояние округлено до сотых км.
func (l *StaticLocator) NearestStore(ctx context.Context, at domain.Coordinates) (domain.NearestStore, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.NearestErr != nil {
		return domain.NearestStore{}, l.NearestErr
	}
	if len(l.stores) == 0 {
		return domain.NearestStore{}, domain.ErrNotFound.WithMessage("no stores configured")
	}

	best, bestKm := l.stores[0], math.Inf(1)
	for _, s := range l.stores {
		if km := HaversineKm(at, s.Location); km < bestKm {
			best, bestKm = s, km
		}
	}
	return domain.NearestStore{
		StoreID:    best.ID,
		Name:       best.Name,
		Location:   best.Location,
		DistanceKm: decimal.NewFromFloat(bestKm).Round(2).InexactFloat64(),
	}, nil
}

// ShippingOptions возвращает тарифы магазина.
func (l *StaticLocator) ShippingOptions(ctx context.Context, storeID string) ([]domain.ShippingOption, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, s := range l.stores {
		if s.ID == storeID {
			return append([]domain.ShippingOption(nil), s.Options...), nil
		}
	}
	return nil, domain.ErrNotFound.WithMessage("store %s not found", storeID)
}

// HaversineKm: расстояние по дуге большого круга.
func HaversineKm(a, b domain.Coordinates) float64 {
	lat1, lat2 := a.Lat*math.Pi/180, b.Lat*math.Pi/180
	dLat := lat2 - lat1
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

var (
	_ domain.StoreLocator         = (*StaticLocator)(nil)
	_ domain.ShippingOptionSource = (*StaticLocator)(nil)
)
