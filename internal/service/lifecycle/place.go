package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
)

// PlaceInput: параметры оформления и ключ идемпотентности запроса.
type PlaceInput struct {
	domain.CheckoutInput
	IdempotencyKey string
}

// Place создаёт заказ из текущей корзины. Перед созданием предпросмотр
// пересчитывается заново: остатки, доставка и скидки берутся свежими.
func (s *Service) Place(ctx context.Context, in PlaceInput) (domain.Order, error) {
	if s.preview == nil {
		return domain.Order{}, errors.New("order placement is not configured")
	}
	if in.UserID == "" {
		return domain.Order{}, domain.ErrUserRequired
	}
	release, err := s.acquire("place:" + in.UserID)
	if err != nil {
		return domain.Order{}, err
	}
	defer release()

	if in.IdempotencyKey == "" {
		in.IdempotencyKey = uuid.NewString()
	}
	logger := s.logger.WithFields(log.Fields{"user_id": in.UserID, "idempotency_key": in.IdempotencyKey})

	preview, err := s.preview.Preview(ctx, in.CheckoutInput)
	if err != nil {
		return domain.Order{}, fmt.Errorf("checkout preview: %w", err)
	}
	if !preview.CanCheckout {
		return domain.Order{}, blockedError(preview)
	}

	req := domain.PlaceOrderRequest{
		IdempotencyKey:  in.IdempotencyKey,
		UserID:          in.UserID,
		StoreID:         preview.StoreID,
		ShippingService: preview.SelectedService,
		VoucherCode:     preview.VoucherCode,
		ExpectedTotal:   preview.Total,
	}
	if in.Address != nil {
		req.AddressID = in.Address.ID
	}
	for _, line := range preview.Lines {
		req.Items = append(req.Items, domain.PlaceOrderItem{ProductID: line.ProductID, Qty: line.Qty})
	}

	remote, err := s.gateway.CreateOrder(ctx, req)
	if err != nil {
		logger.WithError(err).Warn("create order failed")
		return domain.Order{}, err
	}

	order := s.placedOrder(remote, req, preview)
	if errs := order.ValidateInvariants(); len(errs) > 0 {
		logger.WithField("order_id", order.ID).WithField("problems", errors.Join(errs...).Error()).
			Warn("backend order violates local invariants")
	}
	if order.TotalAmount != preview.Total {
		logger.WithFields(log.Fields{
			"order_id": order.ID,
			"expected": preview.Total,
			"actual":   order.TotalAmount,
		}).Warn("backend total differs from preview")
	}

	switch err := s.orders.Create(order); {
	case err == nil:
	case domain.IsVersionConflict(err):
		// повтор с тем же ключом идемпотентности: заказ уже в зеркале
		existing, getErr := s.orders.Get(order.ID)
		if getErr != nil {
			return domain.Order{}, getErr
		}
		return existing, nil
	default:
		// заказ на бэкенде уже создан; Refresh положит его в зеркало позже
		logger.WithError(err).WithField("order_id", order.ID).Error("mirror placed order failed")
	}

	if req.VoucherCode != "" && s.vouchers != nil {
		if err := s.vouchers.ApplyVoucher(ctx, req.VoucherCode, order.ID); err != nil {
			logger.WithError(err).WithField("voucher", req.VoucherCode).Warn("apply voucher failed")
		}
	}
	if s.carts != nil {
		if _, err := s.carts.Clear(ctx, in.UserID); err != nil {
			logger.WithError(err).Warn("clear cart after order failed")
		}
	}
	s.preview.Forget(in.UserID)

	s.emit(order, kafka.EventTypeOrderPlaced, "", "")
	s.metrics.RecordOrderPlaced()
	logger.WithFields(log.Fields{"order_id": order.ID, "total": order.TotalAmount}).Info("order placed")
	return order, nil
}

// placedOrder собирает снимок заказа: приоритет у ответа бэкенда,
// пропущенные поля берутся из запроса и предпросмотра.
func (s *Service) placedOrder(remote domain.Order, req domain.PlaceOrderRequest, preview domain.CheckoutPreview) domain.Order {
	order := s.normalize(remote)
	if order.UserID == "" {
		order.UserID = req.UserID
	}
	if order.StoreID == "" {
		order.StoreID = req.StoreID
	}
	if order.ShippingService == "" {
		order.ShippingService = req.ShippingService
	}
	if order.AddressID == "" {
		order.AddressID = req.AddressID
	}
	if order.VoucherCode == "" {
		order.VoucherCode = req.VoucherCode
	}
	if len(order.Items) == 0 {
		for _, line := range preview.Lines {
			order.Items = append(order.Items, domain.OrderItem{
				ID:              uuid.NewString(),
				ProductID:       line.ProductID,
				ProductName:     line.Name,
				PriceAtPurchase: line.UnitPrice,
				Qty:             line.Qty,
			})
		}
		order.Subtotal = preview.Subtotal
		order.ShippingCost = preview.ShippingCost
		order.DiscountAmount = preview.TotalDiscount
		order.TotalAmount = preview.Total
	}
	if order.Status == domain.OrderStatusPendingPayment && order.PaymentDeadline == nil {
		deadline := order.CreatedAt.Add(s.paymentWindow)
		order.PaymentDeadline = &deadline
	}
	return order
}

func blockedError(preview domain.CheckoutPreview) error {
	if len(preview.Issues) == 0 {
		return domain.ErrCheckoutBlocked
	}
	issue := preview.Issues[0]
	return domain.ErrCheckoutBlocked.WithMessage("%s: %s", issue.Code, issue.Message)
}
