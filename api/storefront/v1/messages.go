package storefrontv1

// Суммы передаются целыми значениями в минимальных единицах валюты.
// Время в unix-секундах, 0 означает «не задано».

type CartLine struct {
	Id             string `json:"id"`
	ProductId      string `json:"productId"`
	Name           string `json:"name,omitempty"`
	UnitPrice      int64  `json:"unitPrice"`
	Qty            int32  `json:"qty"`
	AvailableStock int32  `json:"availableStock"`
	WeightGrams    int64  `json:"weightGrams,omitempty"`
	LineTotal      int64  `json:"lineTotal"`
}

type Cart struct {
	Id            string      `json:"id,omitempty"`
	UserId        string      `json:"userId"`
	StoreId       string      `json:"storeId,omitempty"`
	Lines         []*CartLine `json:"lines,omitempty"`
	Subtotal      int64       `json:"subtotal"`
	Version       int64       `json:"version"`
	UpdatedAtUnix int64       `json:"updatedAtUnix,omitempty"`
}

// LineChange описывает изменённую строку; при Clamped количество урезано до остатка.
type LineChange struct {
	Line      *CartLine `json:"line"`
	Requested int32     `json:"requested"`
	Clamped   bool      `json:"clamped"`
}

type GetCartRequest struct {
	UserId string `json:"userId"`
}

type AddToCartRequest struct {
	UserId    string `json:"userId"`
	StoreId   string `json:"storeId"`
	ProductId string `json:"productId"`
	Qty       int32  `json:"qty"`
}

type SetQuantityRequest struct {
	UserId string `json:"userId"`
	LineId string `json:"lineId"`
	Qty    int32  `json:"qty"`
}

type RemoveLineRequest struct {
	UserId string `json:"userId"`
	LineId string `json:"lineId"`
}

type ClearCartRequest struct {
	UserId string `json:"userId"`
}

type SwitchStoreRequest struct {
	UserId  string `json:"userId"`
	StoreId string `json:"storeId"`
}

// CartResponse: общий ответ операций с корзиной.
type CartResponse struct {
	Cart          *Cart       `json:"cart"`
	Change        *LineChange `json:"change,omitempty"`
	StoreSwitched bool        `json:"storeSwitched,omitempty"`
}

type Address struct {
	Id         string  `json:"id"`
	Label      string  `json:"label,omitempty"`
	Recipient  string  `json:"recipient,omitempty"`
	Phone      string  `json:"phone,omitempty"`
	Line       string  `json:"line,omitempty"`
	City       string  `json:"city,omitempty"`
	PostalCode string  `json:"postalCode,omitempty"`
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
}

type PreviewCheckoutRequest struct {
	UserId       string   `json:"userId"`
	Address      *Address `json:"address,omitempty"`
	HasAddresses bool     `json:"hasAddresses"`
	VoucherCode  string   `json:"voucherCode,omitempty"`
	ServiceCode  string   `json:"serviceCode,omitempty"`
}

type LineCheck struct {
	LineId         string `json:"lineId"`
	ProductId      string `json:"productId"`
	Name           string `json:"name,omitempty"`
	Qty            int32  `json:"qty"`
	AvailableStock int32  `json:"availableStock"`
	UnitPrice      int64  `json:"unitPrice"`
	PriceChanged   bool   `json:"priceChanged,omitempty"`
	Ok             bool   `json:"ok"`
}

type NearestStore struct {
	StoreId    string  `json:"storeId"`
	Name       string  `json:"name,omitempty"`
	DistanceKm float64 `json:"distanceKm"`
}

type ShippingOption struct {
	ServiceCode string `json:"serviceCode"`
	Name        string `json:"name,omitempty"`
	Etd         string `json:"etd,omitempty"`
	Cost        int64  `json:"cost"`
}

type AppliedDiscount struct {
	RuleId      int64  `json:"ruleId,omitempty"`
	VoucherCode string `json:"voucherCode,omitempty"`
	ProductId   string `json:"productId,omitempty"`
	Kind        string `json:"kind"`
	Amount      int64  `json:"amount"`
}

type Issue struct {
	Code      string `json:"code"`
	Kind      string `json:"kind,omitempty"`
	Message   string `json:"message,omitempty"`
	ProductId string `json:"productId,omitempty"`
}

type CheckoutPreview struct {
	UserId            string             `json:"userId"`
	CartId            string             `json:"cartId,omitempty"`
	StoreId           string             `json:"storeId,omitempty"`
	CanCheckout       bool               `json:"canCheckout"`
	RequiresAddress   bool               `json:"requiresAddress,omitempty"`
	Subtotal          int64              `json:"subtotal"`
	TotalWeightGrams  int64              `json:"totalWeightGrams"`
	Lines             []*LineCheck       `json:"lines,omitempty"`
	Store             *NearestStore      `json:"store,omitempty"`
	ShippingOptions   []*ShippingOption  `json:"shippingOptions,omitempty"`
	SelectedService   string             `json:"selectedService,omitempty"`
	ShippingCost      int64              `json:"shippingCost"`
	DiscountAmount    int64              `json:"discountAmount"`
	VoucherCode       string             `json:"voucherCode,omitempty"`
	VoucherDeduction  int64              `json:"voucherDeduction"`
	ShippingDeduction int64              `json:"shippingDeduction"`
	TotalDiscount     int64              `json:"totalDiscount"`
	Total             int64              `json:"total"`
	Applied           []*AppliedDiscount `json:"applied,omitempty"`
	Issues            []*Issue           `json:"issues,omitempty"`
	Generation        uint64             `json:"generation"`
	ComputedAtUnix    int64              `json:"computedAtUnix,omitempty"`
}

type PreviewCheckoutResponse struct {
	Preview *CheckoutPreview `json:"preview"`
}

// PlaceOrderRequest повторяет параметры предпросмотра: перед созданием
// заказа предпросмотр пересчитывается с ними заново.
type PlaceOrderRequest struct {
	UserId       string   `json:"userId"`
	Address      *Address `json:"address,omitempty"`
	HasAddresses bool     `json:"hasAddresses"`
	VoucherCode  string   `json:"voucherCode,omitempty"`
	ServiceCode  string   `json:"serviceCode,omitempty"`
}

type OrderItem struct {
	Id              string `json:"id,omitempty"`
	ProductId       string `json:"productId"`
	ProductName     string `json:"productName,omitempty"`
	PriceAtPurchase int64  `json:"priceAtPurchase"`
	Qty             int32  `json:"qty"`
}

type Order struct {
	Id                  string       `json:"id"`
	UserId              string       `json:"userId"`
	StoreId             string       `json:"storeId"`
	Status              string       `json:"status"`
	Items               []*OrderItem `json:"items,omitempty"`
	Subtotal            int64        `json:"subtotal"`
	ShippingCost        int64        `json:"shippingCost"`
	DiscountAmount      int64        `json:"discountAmount"`
	TotalAmount         int64        `json:"totalAmount"`
	ShippingService     string       `json:"shippingService,omitempty"`
	AddressId           string       `json:"addressId,omitempty"`
	VoucherCode         string       `json:"voucherCode,omitempty"`
	PaymentDeadlineUnix int64        `json:"paymentDeadlineUnix,omitempty"`
	PaymentProofUrl     string       `json:"paymentProofUrl,omitempty"`
	CancelReason        string       `json:"cancelReason,omitempty"`
	Version             int64        `json:"version"`
	CreatedAtUnix       int64        `json:"createdAtUnix,omitempty"`
	UpdatedAtUnix       int64        `json:"updatedAtUnix,omitempty"`
	AvailableActions    []string     `json:"availableActions,omitempty"`
}

type TimelineEvent struct {
	Type           string `json:"type"`
	PreviousStatus string `json:"previousStatus,omitempty"`
	Status         string `json:"status,omitempty"`
	Reason         string `json:"reason,omitempty"`
	UnixTime       int64  `json:"unixTime"`
}

type PlaceOrderResponse struct {
	Order *Order `json:"order"`
}

type GetOrderRequest struct {
	OrderId string `json:"orderId"`
	// Refresh перечитывает заказ с бэкенда перед ответом.
	Refresh bool `json:"refresh,omitempty"`
}

type GetOrderResponse struct {
	Order    *Order           `json:"order"`
	Timeline []*TimelineEvent `json:"timeline,omitempty"`
}

type ListOrdersRequest struct {
	UserId   string `json:"userId"`
	PageSize int32  `json:"pageSize,omitempty"`
}

type ListOrdersResponse struct {
	Orders []*Order `json:"orders"`
}

type UploadPaymentProofRequest struct {
	OrderId     string `json:"orderId"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType,omitempty"`
	Data        []byte `json:"data"`
}

type CancelOrderRequest struct {
	OrderId string `json:"orderId"`
	Reason  string `json:"reason"`
}

// OrderActionRequest: действие над заказом без параметров.
type OrderActionRequest struct {
	OrderId string `json:"orderId"`
}

type OrderResponse struct {
	Order *Order `json:"order"`
}
