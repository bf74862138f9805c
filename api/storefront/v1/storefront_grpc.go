package storefrontv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const ServiceName = "storefront.v1.StorefrontService"

const (
	StorefrontService_GetCart_FullMethodName            = "/storefront.v1.StorefrontService/GetCart"
	StorefrontService_AddToCart_FullMethodName          = "/storefront.v1.StorefrontService/AddToCart"
	StorefrontService_SetQuantity_FullMethodName        = "/storefront.v1.StorefrontService/SetQuantity"
	StorefrontService_RemoveLine_FullMethodName         = "/storefront.v1.StorefrontService/RemoveLine"
	StorefrontService_ClearCart_FullMethodName          = "/storefront.v1.StorefrontService/ClearCart"
	StorefrontService_SwitchStore_FullMethodName        = "/storefront.v1.StorefrontService/SwitchStore"
	StorefrontService_PreviewCheckout_FullMethodName    = "/storefront.v1.StorefrontService/PreviewCheckout"
	StorefrontService_PlaceOrder_FullMethodName         = "/storefront.v1.StorefrontService/PlaceOrder"
	StorefrontService_GetOrder_FullMethodName           = "/storefront.v1.StorefrontService/GetOrder"
	StorefrontService_ListOrders_FullMethodName         = "/storefront.v1.StorefrontService/ListOrders"
	StorefrontService_UploadPaymentProof_FullMethodName = "/storefront.v1.StorefrontService/UploadPaymentProof"
	StorefrontService_CancelOrder_FullMethodName        = "/storefront.v1.StorefrontService/CancelOrder"
	StorefrontService_ConfirmReceipt_FullMethodName     = "/storefront.v1.StorefrontService/ConfirmReceipt"
	StorefrontService_AcceptPayment_FullMethodName      = "/storefront.v1.StorefrontService/AcceptPayment"
	StorefrontService_ShipOrder_FullMethodName          = "/storefront.v1.StorefrontService/ShipOrder"
)

// StorefrontServiceServer: серверная часть API витрины.
type StorefrontServiceServer interface {
	GetCart(context.Context, *GetCartRequest) (*CartResponse, error)
	AddToCart(context.Context, *AddToCartRequest) (*CartResponse, error)
	SetQuantity(context.Context, *SetQuantityRequest) (*CartResponse, error)
	RemoveLine(context.Context, *RemoveLineRequest) (*CartResponse, error)
	ClearCart(context.Context, *ClearCartRequest) (*CartResponse, error)
	SwitchStore(context.Context, *SwitchStoreRequest) (*CartResponse, error)
	PreviewCheckout(context.Context, *PreviewCheckoutRequest) (*PreviewCheckoutResponse, error)
	PlaceOrder(context.Context, *PlaceOrderRequest) (*PlaceOrderResponse, error)
	GetOrder(context.Context, *GetOrderRequest) (*GetOrderResponse, error)
	ListOrders(context.Context, *ListOrdersRequest) (*ListOrdersResponse, error)
	UploadPaymentProof(context.Context, *UploadPaymentProofRequest) (*OrderResponse, error)
	CancelOrder(context.Context, *CancelOrderRequest) (*OrderResponse, error)
	ConfirmReceipt(context.Context, *OrderActionRequest) (*OrderResponse, error)
	AcceptPayment(context.Context, *OrderActionRequest) (*OrderResponse, error)
	ShipOrder(context.Context, *OrderActionRequest) (*OrderResponse, error)
}

// UnimplementedStorefrontServiceServer отвечает Unimplemented на все методы.
type UnimplementedStorefrontServiceServer struct{}

func (UnimplementedStorefrontServiceServer) GetCart(context.Context, *GetCartRequest) (*CartResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetCart not implemented")
}
func (UnimplementedStorefrontServiceServer) AddToCart(context.Context, *AddToCartRequest) (*CartResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method AddToCart not implemented")
}
func (UnimplementedStorefrontServiceServer) SetQuantity(context.Context, *SetQuantityRequest) (*CartResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method SetQuantity not implemented")
}
func (UnimplementedStorefrontServiceServer) RemoveLine(context.Context, *RemoveLineRequest) (*CartResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method RemoveLine not implemented")
}
func (UnimplementedStorefrontServiceServer) ClearCart(context.Context, *ClearCartRequest) (*CartResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ClearCart not implemented")
}
func (UnimplementedStorefrontServiceServer) SwitchStore(context.Context, *SwitchStoreRequest) (*CartResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method SwitchStore not implemented")
}
func (UnimplementedStorefrontServiceServer) PreviewCheckout(context.Context, *PreviewCheckoutRequest) (*PreviewCheckoutResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method PreviewCheckout not implemented")
}
func (UnimplementedStorefrontServiceServer) PlaceOrder(context.Context, *PlaceOrderRequest) (*PlaceOrderResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method PlaceOrder not implemented")
}
func (UnimplementedStorefrontServiceServer) GetOrder(context.Context, *GetOrderRequest) (*GetOrderResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetOrder not implemented")
}
func (UnimplementedStorefrontServiceServer) ListOrders(context.Context, *ListOrdersRequest) (*ListOrdersResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ListOrders not implemented")
}
func (UnimplementedStorefrontServiceServer) UploadPaymentProof(context.Context, *UploadPaymentProofRequest) (*OrderResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method UploadPaymentProof not implemented")
}
func (UnimplementedStorefrontServiceServer) CancelOrder(context.Context, *CancelOrderRequest) (*OrderResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method CancelOrder not implemented")
}
func (UnimplementedStorefrontServiceServer) ConfirmReceipt(context.Context, *OrderActionRequest) (*OrderResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ConfirmReceipt not implemented")
}
func (UnimplementedStorefrontServiceServer) AcceptPayment(context.Context, *OrderActionRequest) (*OrderResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method AcceptPayment not implemented")
}
func (UnimplementedStorefrontServiceServer) ShipOrder(context.Context, *OrderActionRequest) (*OrderResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ShipOrder not implemented")
}

// RegisterStorefrontServiceServer регистрирует реализацию на gRPC сервере.
func RegisterStorefrontServiceServer(s grpc.ServiceRegistrar, srv StorefrontServiceServer) {
	s.RegisterService(&StorefrontService_ServiceDesc, srv)
}

func unaryHandler[Req, Resp any](
	fullMethod string,
	call func(StorefrontServiceServer, context.Context, *Req) (*Resp, error),
) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(StorefrontServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(StorefrontServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// StorefrontService_ServiceDesc описывает сервис для grpc.Server.
var StorefrontService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*StorefrontServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetCart", Handler: unaryHandler(StorefrontService_GetCart_FullMethodName, StorefrontServiceServer.GetCart)},
		{MethodName: "AddToCart", Handler: unaryHandler(StorefrontService_AddToCart_FullMethodName, StorefrontServiceServer.AddToCart)},
		{MethodName: "SetQuantity", Handler: unaryHandler(StorefrontService_SetQuantity_FullMethodName, StorefrontServiceServer.SetQuantity)},
		{MethodName: "RemoveLine", Handler: unaryHandler(StorefrontService_RemoveLine_FullMethodName, StorefrontServiceServer.RemoveLine)},
		{MethodName: "ClearCart", Handler: unaryHandler(StorefrontService_ClearCart_FullMethodName, StorefrontServiceServer.ClearCart)},
		{MethodName: "SwitchStore", Handler: unaryHandler(StorefrontService_SwitchStore_FullMethodName, StorefrontServiceServer.SwitchStore)},
		{MethodName: "PreviewCheckout", Handler: unaryHandler(StorefrontService_PreviewCheckout_FullMethodName, StorefrontServiceServer.PreviewCheckout)},
		{MethodName: "PlaceOrder", Handler: unaryHandler(StorefrontService_PlaceOrder_FullMethodName, StorefrontServiceServer.PlaceOrder)},
		{MethodName: "GetOrder", Handler: unaryHandler(StorefrontService_GetOrder_FullMethodName, StorefrontServiceServer.GetOrder)},
		{MethodName: "ListOrders", Handler: unaryHandler(StorefrontService_ListOrders_FullMethodName, StorefrontServiceServer.ListOrders)},
		{MethodName: "UploadPaymentProof", Handler: unaryHandler(StorefrontService_UploadPaymentProof_FullMethodName, StorefrontServiceServer.UploadPaymentProof)},
		{MethodName: "CancelOrder", Handler: unaryHandler(StorefrontService_CancelOrder_FullMethodName, StorefrontServiceServer.CancelOrder)},
		{MethodName: "ConfirmReceipt", Handler: unaryHandler(StorefrontService_ConfirmReceipt_FullMethodName, StorefrontServiceServer.ConfirmReceipt)},
		{MethodName: "AcceptPayment", Handler: unaryHandler(StorefrontService_AcceptPayment_FullMethodName, StorefrontServiceServer.AcceptPayment)},
		{MethodName: "ShipOrder", Handler: unaryHandler(StorefrontService_ShipOrder_FullMethodName, StorefrontServiceServer.ShipOrder)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "storefront/v1/storefront.json",
}

// StorefrontServiceClient: клиент API витрины. Все вызовы идут с JSON кодеком.
type StorefrontServiceClient interface {
	GetCart(ctx context.Context, in *GetCartRequest, opts ...grpc.CallOption) (*CartResponse, error)
	AddToCart(ctx context.Context, in *AddToCartRequest, opts ...grpc.CallOption) (*CartResponse, error)
	SetQuantity(ctx context.Context, in *SetQuantityRequest, opts ...grpc.CallOption) (*CartResponse, error)
	RemoveLine(ctx context.Context, in *RemoveLineRequest, opts ...grpc.CallOption) (*CartResponse, error)
	ClearCart(ctx context.Context, in *ClearCartRequest, opts ...grpc.CallOption) (*CartResponse, error)
	SwitchStore(ctx context.Context, in *SwitchStoreRequest, opts ...grpc.CallOption) (*CartResponse, error)
	PreviewCheckout(ctx context.Context, in *PreviewCheckoutRequest, opts ...grpc.CallOption) (*PreviewCheckoutResponse, error)
	PlaceOrder(ctx context.Context, in *PlaceOrderRequest, opts ...grpc.CallOption) (*PlaceOrderResponse, error)
	GetOrder(ctx context.Context, in *GetOrderRequest, opts ...grpc.CallOption) (*GetOrderResponse, error)
	ListOrders(ctx context.Context, in *ListOrdersRequest, opts ...grpc.CallOption) (*ListOrdersResponse, error)
	UploadPaymentProof(ctx context.Context, in *UploadPaymentProofRequest, opts ...grpc.CallOption) (*OrderResponse, error)
	CancelOrder(ctx context.Context, in *CancelOrderRequest, opts ...grpc.CallOption) (*OrderResponse, error)
	ConfirmReceipt(ctx context.Context, in *OrderActionRequest, opts ...grpc.CallOption) (*OrderResponse, error)
	AcceptPayment(ctx context.Context, in *OrderActionRequest, opts ...grpc.CallOption) (*OrderResponse, error)
	ShipOrder(ctx context.Context, in *OrderActionRequest, opts ...grpc.CallOption) (*OrderResponse, error)
}

type storefrontServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewStorefrontServiceClient создаёт клиента поверх соединения.
func NewStorefrontServiceClient(cc grpc.ClientConnInterface) StorefrontServiceClient {
	return &storefrontServiceClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	callOpts := append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, callOpts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *storefrontServiceClient) GetCart(ctx context.Context, in *GetCartRequest, opts ...grpc.CallOption) (*CartResponse, error) {
	return invoke[CartResponse](ctx, c.cc, StorefrontService_GetCart_FullMethodName, in, opts)
}

func (c *storefrontServiceClient) AddToCart(ctx context.Context, in *AddToCartRequest, opts ...grpc.CallOption) (*CartResponse, error) {
	return invoke[CartResponse](ctx, c.cc, StorefrontService_AddToCart_FullMethodName, in, opts)
}

func (c *storefrontServiceClient) SetQuantity(ctx context.Context, in *SetQuantityRequest, opts ...grpc.CallOption) (*CartResponse, error) {
	return invoke[CartResponse](ctx, c.cc, StorefrontService_SetQuantity_FullMethodName, in, opts)
}

func (c *storefrontServiceClient) RemoveLine(ctx context.Context, in *RemoveLineRequest, opts ...grpc.CallOption) (*CartResponse, error) {
	return invoke[CartResponse](ctx, c.cc, StorefrontService_RemoveLine_FullMethodName, in, opts)
}

func (c *storefrontServiceClient) ClearCart(ctx context.Context, in *ClearCartRequest, opts ...grpc.CallOption) (*CartResponse, error) {
	return invoke[CartResponse](ctx, c.cc, StorefrontService_ClearCart_FullMethodName, in, opts)
}

func (c *storefrontServiceClient) SwitchStore(ctx context.Context, in *SwitchStoreRequest, opts ...grpc.CallOption) (*CartResponse, error) {
	return invoke[CartResponse](ctx, c.cc, StorefrontService_SwitchStore_FullMethodName, in, opts)
}

func (c *storefrontServiceClient) PreviewCheckout(ctx context.Context, in *PreviewCheckoutRequest, opts ...grpc.CallOption) (*PreviewCheckoutResponse, error) {
	return invoke[PreviewCheckoutResponse](ctx, c.cc, StorefrontService_PreviewCheckout_FullMethodName, in, opts)
}

func (c *storefrontServiceClient) PlaceOrder(ctx context.Context, in *PlaceOrderRequest, opts ...grpc.CallOption) (*PlaceOrderResponse, error) {
	return invoke[PlaceOrderResponse](ctx, c.cc, StorefrontService_PlaceOrder_FullMethodName, in, opts)
}

func (c *storefrontServiceClient) GetOrder(ctx context.Context, in *GetOrderRequest, opts ...grpc.CallOption) (*GetOrderResponse, error) {
	return invoke[GetOrderResponse](ctx, c.cc, StorefrontService_GetOrder_FullMethodName, in, opts)
}

func (c *storefrontServiceClient) ListOrders(ctx context.Context, in *ListOrdersRequest, opts ...grpc.CallOption) (*ListOrdersResponse, error) {
	return invoke[ListOrdersResponse](ctx, c.cc, StorefrontService_ListOrders_FullMethodName, in, opts)
}

func (c *storefrontServiceClient) UploadPaymentProof(ctx context.Context, in *UploadPaymentProofRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	return invoke[OrderResponse](ctx, c.cc, StorefrontService_UploadPaymentProof_FullMethodName, in, opts)
}

func (c *storefrontServiceClient) CancelOrder(ctx context.Context, in *CancelOrderRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	return invoke[OrderResponse](ctx, c.cc, StorefrontService_CancelOrder_FullMethodName, in, opts)
}

func (c *storefrontServiceClient) ConfirmReceipt(ctx context.Context, in *OrderActionRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	return invoke[OrderResponse](ctx, c.cc, StorefrontService_ConfirmReceipt_FullMethodName, in, opts)
}

func (c *storefrontServiceClient) AcceptPayment(ctx context.Context, in *OrderActionRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	return invoke[OrderResponse](ctx, c.cc, StorefrontService_AcceptPayment_FullMethodName, in, opts)
}

func (c *storefrontServiceClient) ShipOrder(ctx context.Context, in *OrderActionRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	return invoke[OrderResponse](ctx, c.cc, StorefrontService_ShipOrder_FullMethodName, in, opts)
}
