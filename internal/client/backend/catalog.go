package backend

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Product возвращает цену и остаток товара. Одновременные запросы одного товара
// склеиваются в один вызов.
func (c *Client) Product(ctx context.Context, productID, storeID string) (domain.ProductOffer, error) {
	key := storeID + "/" + productID
	v, err, _ := c.products.Do(key, func() (any, error) {
		var dto productDTO
		err := c.call(ctx, request{
			op:     "catalog.product",
			method: http.MethodGet,
			path:   "/products/" + url.PathEscape(productID),
			query:  url.Values{"storeId": {storeID}},
		}, &dto)
		if err != nil {
			return domain.ProductOffer{}, err
		}
		offer := dto.toDomain()
		if offer.ProductID == "" {
			offer.ProductID = productID
		}
		if offer.StoreID == "" {
			offer.StoreID = storeID
		}
		return offer, nil
	})
	if err != nil {
		return domain.ProductOffer{}, err
	}
	return v.(domain.ProductOffer), nil
}

// ApplicableRules возвращает правила скидок магазина для товаров корзины.
func (c *Client) ApplicableRules(ctx context.Context, storeID string, productIDs []string) ([]domain.DiscountRule, error) {
	var dtos []discountRuleDTO
	err := c.call(ctx, request{
		op:     "discounts.applicable",
		method: http.MethodGet,
		path:   "/discounts/applicable",
		query:  url.Values{"storeId": {storeID}, "productIds": {strings.Join(productIDs, ",")}},
	}, &dtos)
	if err != nil {
		return nil, err
	}
	rules := make([]domain.DiscountRule, 0, len(dtos))
	for _, d := range dtos {
		rules = append(rules, d.toDomain())
	}
	return rules, nil
}

// MyVouchers возвращает ваучеры пользователя из токена контекста.
func (c *Client) MyVouchers(ctx context.Context) ([]domain.Voucher, error) {
	var dtos []voucherDTO
	if err := c.call(ctx, request{op: "vouchers.mine", method: http.MethodGet, path: "/vouchers/me"}, &dtos); err != nil {
		return nil, err
	}
	vouchers := make([]domain.Voucher, 0, len(dtos))
	for _, d := range dtos {
		vouchers = append(vouchers, d.toDomain())
	}
	return vouchers, nil
}

// ApplyVoucher погашает ваучер, при наличии привязывая его к заказу.
func (c *Client) ApplyVoucher(ctx context.Context, code, orderID string) error {
	body := struct {
		Code    string `json:"code"`
		OrderID string `json:"orderId,omitempty"`
	}{Code: code, OrderID: orderID}
	return c.call(ctx, request{op: "vouchers.apply", method: http.MethodPost, path: "/vouchers/apply", body: body}, nil)
}

// NearestStore находит ближайший к точке магазин.
func (c *Client) NearestStore(ctx context.Context, at domain.Coordinates) (domain.NearestStore, error) {
	var dto nearestStoreDTO
	err := c.call(ctx, request{
		op:     "stores.nearest",
		method: http.MethodGet,
		path:   "/stores/nearest",
		query: url.Values{
			"lat": {strconv.FormatFloat(at.Lat, 'f', -1, 64)},
			"lng": {strconv.FormatFloat(at.Lng, 'f', -1, 64)},
		},
	}, &dto)
	if err != nil {
		return domain.NearestStore{}, err
	}
	return dto.toDomain(), nil
}

// ShippingOptions возвращает тарифы доставки магазина.
func (c *Client) ShippingOptions(ctx context.Context, storeID string) ([]domain.ShippingOption, error) {
	var dtos []shippingOptionDTO
	err := c.call(ctx, request{
		op:     "stores.shipping_options",
		method: http.MethodGet,
		path:   "/stores/" + url.PathEscape(storeID) + "/shipping-options",
	}, &dtos)
	if err != nil {
		return nil, err
	}
	options := make([]domain.ShippingOption, 0, len(dtos))
	for _, d := range dtos {
		options = append(options, d.toDomain())
	}
	return options, nil
}

var (
	_ domain.CatalogService       = (*Client)(nil)
	_ domain.DiscountService      = (*Client)(nil)
	_ domain.VoucherService       = (*Client)(nil)
	_ domain.StoreLocator         = (*Client)(nil)
	_ domain.ShippingOptionSource = (*Client)(nil)
)
