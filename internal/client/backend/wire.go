package backend

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type productDTO struct {
	ID          string `json:"id"`
	StoreID     string `json:"storeId"`
	Name        string `json:"name"`
	Price       int64  `json:"price"`
	Stock       int32  `json:"stock"`
	WeightGrams int64  `json:"weightGrams"`
}

func (p productDTO) toDomain() domain.ProductOffer {
	return domain.ProductOffer{
		ProductID:   p.ID,
		StoreID:     p.StoreID,
		Name:        p.Name,
		Price:       domain.Money(p.Price),
		Stock:       p.Stock,
		WeightGrams: p.WeightGrams,
	}
}

type discountRuleDTO struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Scope       string          `json:"scope"`
	ProductID   string          `json:"productId"`
	Kind        string          `json:"kind"`
	Value       decimal.Decimal `json:"value"`
	MinPurchase int64           `json:"minPurchase"`
	MaxDiscount int64           `json:"maxDiscount"`
	StartsAt    time.Time       `json:"startsAt"`
	EndsAt      time.Time       `json:"endsAt"`
}

func (r discountRuleDTO) toDomain() domain.DiscountRule {
	return domain.DiscountRule{
		ID:          r.ID,
		Name:        r.Name,
		Scope:       domain.DiscountScope(r.Scope),
		ProductID:   r.ProductID,
		Kind:        domain.DiscountKind(r.Kind),
		Value:       r.Value,
		MinPurchase: domain.Money(r.MinPurchase),
		MaxDiscount: domain.Money(r.MaxDiscount),
		StartsAt:    r.StartsAt,
		EndsAt:      r.EndsAt,
	}
}

type voucherDTO struct {
	Code        string          `json:"code"`
	Kind        string          `json:"kind"`
	Value       decimal.Decimal `json:"value"`
	MinPurchase int64           `json:"minPurchase"`
	MaxDiscount int64           `json:"maxDiscount"`
	ExpiresAt   time.Time       `json:"expiresAt"`
	Target      string          `json:"target"`
	UsedAt      *time.Time      `json:"usedAt"`
}

func (v voucherDTO) toDomain() domain.Voucher {
	return domain.Voucher{
		Code:        v.Code,
		Kind:        domain.VoucherKind(v.Kind),
		Value:       v.Value,
		MinPurchase: domain.Money(v.MinPurchase),
		MaxDiscount: domain.Money(v.MaxDiscount),
		ExpiresAt:   v.ExpiresAt,
		Target:      domain.VoucherTarget(v.Target),
		UsedAt:      v.UsedAt,
	}
}

type nearestStoreDTO struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	DistanceKm float64 `json:"distanceKm"`
}

func (s nearestStoreDTO) toDomain() domain.NearestStore {
	return domain.NearestStore{
		StoreID:    s.ID,
		Name:       s.Name,
		Location:   domain.Coordinates{Lat: s.Lat, Lng: s.Lng},
		DistanceKm: s.DistanceKm,
	}
}

type shippingOptionDTO struct {
	ServiceCode   string   `json:"serviceCode"`
	Name          string   `json:"name"`
	BaseCost      int64    `json:"baseCost"`
	ETD           string   `json:"etd"`
	MaxDistanceKm *float64 `json:"maxDistanceKm"`
}

func (o shippingOptionDTO) toDomain() domain.ShippingOption {
	return domain.ShippingOption{
		ServiceCode:   o.ServiceCode,
		Name:          o.Name,
		BaseCost:      domain.Money(o.BaseCost),
		ETD:           o.ETD,
		MaxDistanceKm: o.MaxDistanceKm,
	}
}

type orderItemDTO struct {
	ID              string `json:"id"`
	ProductID       string `json:"productId"`
	ProductName     string `json:"productNameSnapshot"`
	PriceAtPurchase int64  `json:"priceAtPurchase"`
	Quantity        int32  `json:"quantity"`
}

type orderDTO struct {
	ID              string         `json:"id"`
	UserID          string         `json:"userId"`
	StoreID         string         `json:"storeId"`
	Status          string         `json:"status"`
	Items           []orderItemDTO `json:"items"`
	Subtotal        int64          `json:"subtotal"`
	ShippingCost    int64          `json:"shippingCost"`
	DiscountAmount  int64          `json:"discountAmount"`
	TotalAmount     int64          `json:"totalAmount"`
	ShippingService string         `json:"shippingService"`
	AddressID       string         `json:"addressId"`
	VoucherCode     string         `json:"voucherCode"`
	PaymentDeadline *time.Time     `json:"paymentDeadline"`
	PaymentProofURL string         `json:"paymentProofUrl"`
	CancelReason    string         `json:"cancelReason"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

func (o orderDTO) toDomain() domain.Order {
	order := domain.Order{
		ID:              o.ID,
		UserID:          o.UserID,
		StoreID:         o.StoreID,
		Status:          domain.OrderStatus(o.Status),
		Subtotal:        domain.Money(o.Subtotal),
		ShippingCost:    domain.Money(o.ShippingCost),
		DiscountAmount:  domain.Money(o.DiscountAmount),
		TotalAmount:     domain.Money(o.TotalAmount),
		ShippingService: o.ShippingService,
		AddressID:       o.AddressID,
		VoucherCode:     o.VoucherCode,
		PaymentDeadline: o.PaymentDeadline,
		PaymentProofURL: o.PaymentProofURL,
		CancelReason:    o.CancelReason,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
	for _, it := range o.Items {
		order.Items = append(order.Items, domain.OrderItem{
			ID:              it.ID,
			ProductID:       it.ProductID,
			ProductName:     it.ProductName,
			PriceAtPurchase: domain.Money(it.PriceAtPurchase),
			Qty:             it.Quantity,
		})
	}
	return order
}

type placeOrderDTO struct {
	UserID          string              `json:"userId"`
	StoreID         string              `json:"storeId"`
	AddressID       string              `json:"addressId"`
	ShippingService string              `json:"shippingService"`
	VoucherCode     string              `json:"voucherCode,omitempty"`
	Items           []placeOrderItemDTO `json:"items"`
	ExpectedTotal   int64               `json:"expectedTotal"`
}

type placeOrderItemDTO struct {
	ProductID string `json:"productId"`
	Quantity  int32  `json:"quantity"`
}

func newPlaceOrderDTO(req domain.PlaceOrderRequest) placeOrderDTO {
	dto := placeOrderDTO{
		UserID:          req.UserID,
		StoreID:         req.StoreID,
		AddressID:       req.AddressID,
		ShippingService: req.ShippingService,
		VoucherCode:     req.VoucherCode,
		ExpectedTotal:   int64(req.ExpectedTotal),
		Items:           make([]placeOrderItemDTO, 0, len(req.Items)),
	}
	for _, it := range req.Items {
		dto.Items = append(dto.Items, placeOrderItemDTO{ProductID: it.ProductID, Quantity: it.Qty})
	}
	return dto
}
