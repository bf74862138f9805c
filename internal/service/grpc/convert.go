package grpcsvc

import (
	storefrontv1 "github.com/vladislavdragonenkov/storefront/api/storefront/v1"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/cart"
)

func toProtoCartLine(line domain.CartLine) *storefrontv1.CartLine {
	return &storefrontv1.CartLine{
		Id:             line.ID,
		ProductId:      line.ProductID,
		Name:           line.Name,
		UnitPrice:      int64(line.UnitPrice),
		Qty:            line.Qty,
		AvailableStock: line.AvailableStock,
		WeightGrams:    line.WeightGrams,
		LineTotal:      int64(line.Total()),
	}
}

func toProtoCart(c domain.Cart) *storefrontv1.Cart {
	lines := make([]*storefrontv1.CartLine, 0, len(c.Lines))
	var subtotal domain.Money
	for _, line := range c.Lines {
		lines = append(lines, toProtoCartLine(line))
		subtotal += line.Total()
	}
	out := &storefrontv1.Cart{
		Id:       c.ID,
		UserId:   c.UserID,
		StoreId:  c.StoreID,
		Lines:    lines,
		Subtotal: int64(subtotal),
		Version:  c.Version,
	}
	if !c.UpdatedAt.IsZero() {
		out.UpdatedAtUnix = c.UpdatedAt.Unix()
	}
	return out
}

func toCartResponse(res cart.Result) *storefrontv1.CartResponse {
	out := &storefrontv1.CartResponse{
		Cart:          toProtoCart(res.Cart),
		StoreSwitched: res.StoreSwitched,
	}
	if res.Change != nil {
		out.Change = &storefrontv1.LineChange{
			Line:      toProtoCartLine(res.Change.Line),
			Requested: res.Change.Requested,
			Clamped:   res.Change.Clamped,
		}
	}
	return out
}

func fromProtoAddress(a *storefrontv1.Address) *domain.Address {
	if a == nil {
		return nil
	}
	return &domain.Address{
		ID:         a.Id,
		Label:      a.Label,
		Recipient:  a.Recipient,
		Phone:      a.Phone,
		Line:       a.Line,
		City:       a.City,
		PostalCode: a.PostalCode,
		Location:   domain.Coordinates{Lat: a.Lat, Lng: a.Lng},
	}
}

func toProtoPreview(p domain.CheckoutPreview) *storefrontv1.CheckoutPreview {
	out := &storefrontv1.CheckoutPreview{
		UserId:            p.UserID,
		CartId:            p.CartID,
		StoreId:           p.StoreID,
		CanCheckout:       p.CanCheckout,
		RequiresAddress:   p.RequiresAddress,
		Subtotal:          int64(p.Subtotal),
		TotalWeightGrams:  p.TotalWeightGrams,
		SelectedService:   p.SelectedService,
		ShippingCost:      int64(p.ShippingCost),
		DiscountAmount:    int64(p.DiscountAmount),
		VoucherCode:       p.VoucherCode,
		VoucherDeduction:  int64(p.VoucherDeduction),
		ShippingDeduction: int64(p.ShippingDeduction),
		TotalDiscount:     int64(p.TotalDiscount),
		Total:             int64(p.Total),
		Generation:        p.Generation,
	}
	if !p.ComputedAt.IsZero() {
		out.ComputedAtUnix = p.ComputedAt.Unix()
	}
	if p.Store != nil {
		out.Store = &storefrontv1.NearestStore{StoreId: p.Store.StoreID, Name: p.Store.Name, DistanceKm: p.Store.DistanceKm}
	}
	for _, l := range p.Lines {
		out.Lines = append(out.Lines, &storefrontv1.LineCheck{
			LineId:         l.LineID,
			ProductId:      l.ProductID,
			Name:           l.Name,
			Qty:            l.Qty,
			AvailableStock: l.AvailableStock,
			UnitPrice:      int64(l.UnitPrice),
			PriceChanged:   l.PriceChanged,
			Ok:             l.OK(),
		})
	}
	for _, o := range p.ShippingOptions {
		out.ShippingOptions = append(out.ShippingOptions, &storefrontv1.ShippingOption{
			ServiceCode: o.ServiceCode,
			Name:        o.Name,
			Etd:         o.ETD,
			Cost:        int64(o.Cost),
		})
	}
	for _, a := range p.Applied {
		out.Applied = append(out.Applied, &storefrontv1.AppliedDiscount{
			RuleId:      a.RuleID,
			VoucherCode: a.VoucherCode,
			ProductId:   a.ProductID,
			Kind:        string(a.Kind),
			Amount:      int64(a.Amount),
		})
	}
	for _, i := range p.Issues {
		out.Issues = append(out.Issues, &storefrontv1.Issue{
			Code:      i.Code,
			Kind:      string(i.Kind),
			Message:   i.Message,
			ProductId: i.ProductID,
		})
	}
	return out
}

func (s *StorefrontService) toProtoOrder(order domain.Order) *storefrontv1.Order {
	items := make([]*storefrontv1.OrderItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, &storefrontv1.OrderItem{
			Id:              item.ID,
			ProductId:       item.ProductID,
			ProductName:     item.ProductName,
			PriceAtPurchase: int64(item.PriceAtPurchase),
			Qty:             item.Qty,
		})
	}

	out := &storefrontv1.Order{
		Id:              order.ID,
		UserId:          order.UserID,
		StoreId:         order.StoreID,
		Status:          string(order.Status),
		Items:           items,
		Subtotal:        int64(order.Subtotal),
		ShippingCost:    int64(order.ShippingCost),
		DiscountAmount:  int64(order.DiscountAmount),
		TotalAmount:     int64(order.TotalAmount),
		ShippingService: order.ShippingService,
		AddressId:       order.AddressID,
		VoucherCode:     order.VoucherCode,
		PaymentProofUrl: order.PaymentProofURL,
		CancelReason:    order.CancelReason,
		Version:         order.Version,
	}
	if order.PaymentDeadline != nil {
		out.PaymentDeadlineUnix = order.PaymentDeadline.Unix()
	}
	if !order.CreatedAt.IsZero() {
		out.CreatedAtUnix = order.CreatedAt.Unix()
	}
	if !order.UpdatedAt.IsZero() {
		out.UpdatedAtUnix = order.UpdatedAt.Unix()
	}
	for _, a := range order.AvailableActions(s.now()) {
		out.AvailableActions = append(out.AvailableActions, string(a))
	}
	return out
}
