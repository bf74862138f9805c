package grpcsvc

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	storefrontv1 "github.com/vladislavdragonenkov/storefront/api/storefront/v1"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/cart"
	"github.com/vladislavdragonenkov/storefront/internal/service/lifecycle"
)

// CartService: операции корзины, доступные через API.
type CartService interface {
	Get(ctx context.Context, userID string) (domain.Cart, error)
	AddItem(ctx context.Context, userID, storeID, productID string, qty int32) (cart.Result, error)
	SetQuantity(ctx context.Context, userID, lineID string, qty int32) (cart.Result, error)
	RemoveLine(ctx context.Context, userID, lineID string) (cart.Result, error)
	Clear(ctx context.Context, userID string) (cart.Result, error)
	SwitchStore(ctx context.Context, userID, storeID string) (cart.Result, error)
}

// CheckoutService считает предпросмотр оформления.
type CheckoutService interface {
	Preview(ctx context.Context, in domain.CheckoutInput) (domain.CheckoutPreview, error)
}

// OrderService: создание заказа и действия над ним.
type OrderService interface {
	Place(ctx context.Context, in lifecycle.PlaceInput) (domain.Order, error)
	Get(ctx context.Context, orderID string) (domain.Order, error)
	Refresh(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, userID string, limit int) ([]domain.Order, error)
	Timeline(orderID string) ([]domain.TimelineEvent, error)
	UploadPaymentProof(ctx context.Context, orderID string, proof domain.PaymentProof) (domain.Order, error)
	Cancel(ctx context.Context, orderID, reason string) (domain.Order, error)
	ConfirmReceipt(ctx context.Context, orderID string) (domain.Order, error)
	AcceptPayment(ctx context.Context, orderID string) (domain.Order, error)
	Ship(ctx context.Context, orderID string) (domain.Order, error)
}

// StorefrontService реализует gRPC API витрины поверх сервисов корзины,
// предпросмотра и жизненного цикла заказа.
type StorefrontService struct {
	storefrontv1.UnimplementedStorefrontServiceServer

	carts    CartService
	checkout CheckoutService
	orders   OrderService
	idemRepo domain.IdempotencyRepository
	logger   *log.Entry
	now      func() time.Time
}

const defaultListOrdersLimit = 100

// NewStorefrontService конструирует сервис с зависимостями. idemRepo может быть nil,
// тогда idempotency-key игнорируется.
func NewStorefrontService(
	carts CartService,
	checkout CheckoutService,
	orders OrderService,
	idemRepo domain.IdempotencyRepository,
	logger *log.Entry,
) *StorefrontService {
	if logger == nil {
		logger = log.New().WithField("component", "storefront-api")
	}
	return &StorefrontService{
		carts:    carts,
		checkout: checkout,
		orders:   orders,
		idemRepo: idemRepo,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// GetCart возвращает корзину пользователя; отсутствующая корзина приходит пустой.
func (s *StorefrontService) GetCart(ctx context.Context, req *storefrontv1.GetCartRequest) (*storefrontv1.CartResponse, error) {
	if req == nil || req.UserId == "" {
		return nil, status.Error(codes.InvalidArgument, "user_id is required")
	}
	c, err := s.carts.Get(ctx, req.UserId)
	if err != nil {
		return nil, s.rpcError(ctx, "GetCart", err)
	}
	return &storefrontv1.CartResponse{Cart: toProtoCart(c)}, nil
}

// AddToCart добавляет товар в корзину.
func (s *StorefrontService) AddToCart(ctx context.Context, req *storefrontv1.AddToCartRequest) (*storefrontv1.CartResponse, error) {
	if req == nil || req.UserId == "" {
		return nil, status.Error(codes.InvalidArgument, "user_id is required")
	}
	if req.ProductId == "" {
		return nil, status.Error(codes.InvalidArgument, "product_id is required")
	}
	return withIdempotency(s, ctx, storefrontv1.StorefrontService_AddToCart_FullMethodName, req,
		func(ctx context.Context) (*storefrontv1.CartResponse, error) {
			res, err := s.carts.AddItem(ctx, req.UserId, req.StoreId, req.ProductId, req.Qty)
			if err != nil {
				return nil, err
			}
			return toCartResponse(res), nil
		})
}

// SetQuantity задаёт количество строки.
func (s *StorefrontService) SetQuantity(ctx context.Context, req *storefrontv1.SetQuantityRequest) (*storefrontv1.CartResponse, error) {
	if req == nil || req.UserId == "" {
		return nil, status.Error(codes.InvalidArgument, "user_id is required")
	}
	return withIdempotency(s, ctx, storefrontv1.StorefrontService_SetQuantity_FullMethodName, req,
		func(ctx context.Context) (*storefrontv1.CartResponse, error) {
			res, err := s.carts.SetQuantity(ctx, req.UserId, req.LineId, req.Qty)
			if err != nil {
				return nil, err
			}
			return toCartResponse(res), nil
		})
}

// RemoveLine удаляет строку корзины.
func (s *StorefrontService) RemoveLine(ctx context.Context, req *storefrontv1.RemoveLineRequest) (*storefrontv1.CartResponse, error) {
	if req == nil || req.UserId == "" {
		return nil, status.Error(codes.InvalidArgument, "user_id is required")
	}
	return withIdempotency(s, ctx, storefrontv1.StorefrontService_RemoveLine_FullMethodName, req,
		func(ctx context.Context) (*storefrontv1.CartResponse, error) {
			res, err := s.carts.RemoveLine(ctx, req.UserId, req.LineId)
			if err != nil {
				return nil, err
			}
			return toCartResponse(res), nil
		})
}

// ClearCart очищает корзину.
func (s *StorefrontService) ClearCart(ctx context.Context, req *storefrontv1.ClearCartRequest) (*storefrontv1.CartResponse, error) {
	if req == nil || req.UserId == "" {
		return nil, status.Error(codes.InvalidArgument, "user_id is required")
	}
	return withIdempotency(s, ctx, storefrontv1.StorefrontService_ClearCart_FullMethodName, req,
		func(ctx context.Context) (*storefrontv1.CartResponse, error) {
			res, err := s.carts.Clear(ctx, req.UserId)
			if err != nil {
				return nil, err
			}
			return toCartResponse(res), nil
		})
}

// SwitchStore переключает корзину на другой магазин, очищая строки.
func (s *StorefrontService) SwitchStore(ctx context.Context, req *storefrontv1.SwitchStoreRequest) (*storefrontv1.CartResponse, error) {
	if req == nil || req.UserId == "" {
		return nil, status.Error(codes.InvalidArgument, "user_id is required")
	}
	return withIdempotency(s, ctx, storefrontv1.StorefrontService_SwitchStore_FullMethodName, req,
		func(ctx context.Context) (*storefrontv1.CartResponse, error) {
			res, err := s.carts.SwitchStore(ctx, req.UserId, req.StoreId)
			if err != nil {
				return nil, err
			}
			return toCartResponse(res), nil
		})
}

// PreviewCheckout считает стоимость оформления. Бизнес-причины, мешающие оформлению,
// приходят в issues, а не ошибкой.
func (s *StorefrontService) PreviewCheckout(ctx context.Context, req *storefrontv1.PreviewCheckoutRequest) (*storefrontv1.PreviewCheckoutResponse, error) {
	if req == nil || req.UserId == "" {
		return nil, status.Error(codes.InvalidArgument, "user_id is required")
	}
	preview, err := s.checkout.Preview(ctx, domain.CheckoutInput{
		UserID:       req.UserId,
		Address:      fromProtoAddress(req.Address),
		HasAddresses: req.HasAddresses || req.Address != nil,
		VoucherCode:  req.VoucherCode,
		ServiceCode:  req.ServiceCode,
	})
	if err != nil {
		return nil, s.rpcError(ctx, "PreviewCheckout", err)
	}
	return &storefrontv1.PreviewCheckoutResponse{Preview: toProtoPreview(preview)}, nil
}

// PlaceOrder создаёт заказ из корзины. idempotency-key передаётся бэкенду как ключ создания заказа.
func (s *StorefrontService) PlaceOrder(ctx context.Context, req *storefrontv1.PlaceOrderRequest) (*storefrontv1.PlaceOrderResponse, error) {
	if req == nil || req.UserId == "" {
		return nil, status.Error(codes.InvalidArgument, "user_id is required")
	}
	key, _ := readIdempotencyKey(ctx)
	return withIdempotency(s, ctx, storefrontv1.StorefrontService_PlaceOrder_FullMethodName, req,
		func(ctx context.Context) (*storefrontv1.PlaceOrderResponse, error) {
			order, err := s.orders.Place(ctx, lifecycle.PlaceInput{
				CheckoutInput: domain.CheckoutInput{
					UserID:       req.UserId,
					Address:      fromProtoAddress(req.Address),
					HasAddresses: req.HasAddresses || req.Address != nil,
					VoucherCode:  req.VoucherCode,
					ServiceCode:  req.ServiceCode,
				},
				IdempotencyKey: key,
			})
			if err != nil {
				return nil, err
			}
			return &storefrontv1.PlaceOrderResponse{Order: s.toProtoOrder(order)}, nil
		})
}

// GetOrder возвращает заказ и его таймлайн.
func (s *StorefrontService) GetOrder(ctx context.Context, req *storefrontv1.GetOrderRequest) (*storefrontv1.GetOrderResponse, error) {
	if req == nil || req.OrderId == "" {
		return nil, status.Error(codes.InvalidArgument, "order_id is required")
	}

	load := s.orders.Get
	if req.Refresh {
		load = s.orders.Refresh
	}
	order, err := load(ctx, req.OrderId)
	if err != nil {
		return nil, s.rpcError(ctx, "GetOrder", err)
	}

	return &storefrontv1.GetOrderResponse{
		Order:    s.toProtoOrder(order),
		Timeline: s.buildTimeline(order.ID),
	}, nil
}

// ListOrders возвращает заказы пользователя.
func (s *StorefrontService) ListOrders(ctx context.Context, req *storefrontv1.ListOrdersRequest) (*storefrontv1.ListOrdersResponse, error) {
	if req == nil || req.UserId == "" {
		return nil, status.Error(codes.InvalidArgument, "user_id is required")
	}

	limit := int(req.PageSize)
	if limit <= 0 {
		limit = defaultListOrdersLimit
	}

	orders, err := s.orders.List(ctx, req.UserId, limit)
	if err != nil {
		return nil, s.rpcError(ctx, "ListOrders", err)
	}

	result := make([]*storefrontv1.Order, 0, len(orders))
	for _, order := range orders {
		result = append(result, s.toProtoOrder(order))
	}
	return &storefrontv1.ListOrdersResponse{Orders: result}, nil
}

// UploadPaymentProof загружает подтверждение оплаты.
func (s *StorefrontService) UploadPaymentProof(ctx context.Context, req *storefrontv1.UploadPaymentProofRequest) (*storefrontv1.OrderResponse, error) {
	if req == nil || req.OrderId == "" {
		return nil, status.Error(codes.InvalidArgument, "order_id is required")
	}
	return withIdempotency(s, ctx, storefrontv1.StorefrontService_UploadPaymentProof_FullMethodName, req,
		func(ctx context.Context) (*storefrontv1.OrderResponse, error) {
			return s.orderResponse(s.orders.UploadPaymentProof(ctx, req.OrderId, domain.PaymentProof{
				Filename:    req.Filename,
				ContentType: req.ContentType,
				Data:        req.Data,
			}))
		})
}

// CancelOrder отменяет заказ с указанной причиной.
func (s *StorefrontService) CancelOrder(ctx context.Context, req *storefrontv1.CancelOrderRequest) (*storefrontv1.OrderResponse, error) {
	if req == nil || req.OrderId == "" {
		return nil, status.Error(codes.InvalidArgument, "order_id is required")
	}
	return withIdempotency(s, ctx, storefrontv1.StorefrontService_CancelOrder_FullMethodName, req,
		func(ctx context.Context) (*storefrontv1.OrderResponse, error) {
			return s.orderResponse(s.orders.Cancel(ctx, req.OrderId, req.Reason))
		})
}

// ConfirmReceipt подтверждает получение заказа.
func (s *StorefrontService) ConfirmReceipt(ctx context.Context, req *storefrontv1.OrderActionRequest) (*storefrontv1.OrderResponse, error) {
	if req == nil || req.OrderId == "" {
		return nil, status.Error(codes.InvalidArgument, "order_id is required")
	}
	return withIdempotency(s, ctx, storefrontv1.StorefrontService_ConfirmReceipt_FullMethodName, req,
		func(ctx context.Context) (*storefrontv1.OrderResponse, error) {
			return s.orderResponse(s.orders.ConfirmReceipt(ctx, req.OrderId))
		})
}

// AcceptPayment: действие магазина: оплата принята.
func (s *StorefrontService) AcceptPayment(ctx context.Context, req *storefrontv1.OrderActionRequest) (*storefrontv1.OrderResponse, error) {
	if req == nil || req.OrderId == "" {
		return nil, status.Error(codes.InvalidArgument, "order_id is required")
	}
	return withIdempotency(s, ctx, storefrontv1.StorefrontService_AcceptPayment_FullMethodName, req,
		func(ctx context.Context) (*storefrontv1.OrderResponse, error) {
			return s.orderResponse(s.orders.AcceptPayment(ctx, req.OrderId))
		})
}

// ShipOrder: действие магазина: заказ передан в доставку.
func (s *StorefrontService) ShipOrder(ctx context.Context, req *storefrontv1.OrderActionRequest) (*storefrontv1.OrderResponse, error) {
	if req == nil || req.OrderId == "" {
		return nil, status.Error(codes.InvalidArgument, "order_id is required")
	}
	return withIdempotency(s, ctx, storefrontv1.StorefrontService_ShipOrder_FullMethodName, req,
		func(ctx context.Context) (*storefrontv1.OrderResponse, error) {
			return s.orderResponse(s.orders.Ship(ctx, req.OrderId))
		})
}

func (s *StorefrontService) orderResponse(order domain.Order, err error) (*storefrontv1.OrderResponse, error) {
	if err != nil {
		return nil, err
	}
	return &storefrontv1.OrderResponse{Order: s.toProtoOrder(order)}, nil
}

func (s *StorefrontService) buildTimeline(orderID string) []*storefrontv1.TimelineEvent {
	events, err := s.orders.Timeline(orderID)
	if err != nil {
		s.logger.WithError(err).WithField("order_id", orderID).Warn("failed to list timeline events")
		return nil
	}
	result := make([]*storefrontv1.TimelineEvent, 0, len(events))
	for _, event := range events {
		result = append(result, &storefrontv1.TimelineEvent{
			Type:           event.Type,
			PreviousStatus: string(event.From),
			Status:         string(event.Status),
			Reason:         event.Reason,
			UnixTime:       event.Occurred.Unix(),
		})
	}
	return result
}
