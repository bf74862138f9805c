package domain

import "github.com/shopspring/decimal"

// Coordinates: географические координаты в градусах.
type Coordinates struct {
	Lat float64
	Lng float64
}

// Address: адрес доставки пользователя.
type Address struct {
	ID         string
	Label      string
	Recipient  string
	Phone      string
	Line       string
	City       string
	PostalCode string
	Location   Coordinates
}

// NearestStore: магазин, ближайший к адресу, и расстояние до него.
type NearestStore struct {
	StoreID    string
	Name       string
	Location   Coordinates
	DistanceKm float64
}

// ShippingOption: тариф доставки магазина. При MaxDistanceKm == nil дальность не ограничена.
type ShippingOption struct {
	ServiceCode   string
	Name          string
	BaseCost      Money
	ETD           string
	MaxDistanceKm *float64
}

// Serves проверяет, что тариф покрывает расстояние.
func (o ShippingOption) Serves(distanceKm float64) bool {
	return o.MaxDistanceKm == nil || distanceKm <= *o.MaxDistanceKm
}

// ShippingRates: ставки расчёта: за километр и за килограмм.
type ShippingRates struct {
	PerKm decimal.Decimal
	PerKg decimal.Decimal
}

// PricedShippingOption: тариф с рассчитанной стоимостью.
type PricedShippingOption struct {
	ShippingOption
	Cost Money
}

// ShippingQuote: результат оценки доставки.
type ShippingQuote struct {
	Store       NearestStore
	WeightGrams int64
	Options     []PricedShippingOption
}

// Option возвращает тариф по коду; пустой код выбирает самый дешёвый.
func (q ShippingQuote) Option(serviceCode string) (PricedShippingOption, bool) {
	if len(q.Options) == 0 {
		return PricedShippingOption{}, false
	}
	if serviceCode == "" {
		return q.Options[0], true
	}
	for _, opt := range q.Options {
		if opt.ServiceCode == serviceCode {
			return opt, true
		}
	}
	return PricedShippingOption{}, false
}
