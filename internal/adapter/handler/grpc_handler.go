package handler

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/rl1809/cart-checkout/internal/core/domain"
	"github.com/rl1809/cart-checkout/internal/core/service"
	"github.com/rl1809/cart-checkout/internal/port"
)

const ServiceName = "shop.v1.CartCheckout"

type GetCartRequest struct{}

type AddItemGRPCRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type UpdateItemRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type RemoveItemRequest struct {
	ProductID int64 `json:"product_id"`
}

type ClearCartRequest struct{}

type CheckoutGRPCRequest struct {
	Address        string `json:"address"`
	PaymentToken   string `json:"payment_token"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type ListOrdersRequest struct{}

type GetOrderRequest struct {
	OrderID string `json:"order_id"`
}

type GetProductRequest struct {
	ID int64 `json:"id"`
}

type ListProductsRequest struct {
	Category string `json:"category,omitempty"`
	Search   string `json:"search,omitempty"`
}

// CartCheckoutServer is the method set registered under ServiceName.
type CartCheckoutServer interface {
	GetCart(context.Context, *GetCartRequest) (*CartResponse, error)
	AddItem(context.Context, *AddItemGRPCRequest) (*CartResponse, error)
	UpdateItem(context.Context, *UpdateItemRequest) (*CartResponse, error)
	RemoveItem(context.Context, *RemoveItemRequest) (*CartResponse, error)
	ClearCart(context.Context, *ClearCartRequest) (*CartResponse, error)
	Checkout(context.Context, *CheckoutGRPCRequest) (*CheckoutResponse, error)
	ListOrders(context.Context, *ListOrdersRequest) (*ListOrdersResponse, error)
	GetOrder(context.Context, *GetOrderRequest) (*OrderDetailResponse, error)
	GetProduct(context.Context, *GetProductRequest) (*ProductResponse, error)
	ListProducts(context.Context, *ListProductsRequest) (*ListProductsResponse, error)
}

var publicMethods = map[string]bool{
	"/" + ServiceName + "/GetProduct":   true,
	"/" + ServiceName + "/ListProducts": true,
	"/grpc.health.v1.Health/Check":      true,
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CartCheckoutServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("GetCart", CartCheckoutServer.GetCart),
		unary("AddItem", CartCheckoutServer.AddItem),
		unary("UpdateItem", CartCheckoutServer.UpdateItem),
		unary("RemoveItem", CartCheckoutServer.RemoveItem),
		unary("ClearCart", CartCheckoutServer.ClearCart),
		unary("Checkout", CartCheckoutServer.Checkout),
		unary("ListOrders", CartCheckoutServer.ListOrders),
		unary("GetOrder", CartCheckoutServer.GetOrder),
		unary("GetProduct", CartCheckoutServer.GetProduct),
		unary("ListProducts", CartCheckoutServer.ListProducts),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "shop/v1/cart_checkout",
}

func unary[Req, Resp any](name string, call func(CartCheckoutServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			server := srv.(CartCheckoutServer)
			if interceptor == nil {
				return call(server, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(server, ctx, req.(*Req))
			})
		},
	}
}

type GRPCHandler struct {
	carts    *service.CartService
	checkout *service.CheckoutService
	orders   *service.OrderService
	catalog  *service.CatalogService
	log      *slog.Logger
}

func NewGRPCHandler(carts *service.CartService, checkout *service.CheckoutService, orders *service.OrderService, catalog *service.CatalogService, logger *slog.Logger) *GRPCHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &GRPCHandler{
		carts:    carts,
		checkout: checkout,
		orders:   orders,
		catalog:  catalog,
		log:      logger.With("component", "grpc_handler"),
	}
}

func (h *GRPCHandler) Register(s grpc.ServiceRegistrar) {
	s.RegisterService(&ServiceDesc, h)
}

// NewGRPCServer wires the handler, the standard health service, tracing and
// identity resolution into one server.
func NewGRPCServer(h *GRPCHandler, resolver port.IdentityResolver) (*grpc.Server, *health.Server) {
	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(AuthInterceptor(resolver)),
	)
	h.Register(srv)

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return srv, hs
}

func (h *GRPCHandler) GetCart(ctx context.Context, _ *GetCartRequest) (*CartResponse, error) {
	return h.cart(ctx)
}

func (h *GRPCHandler) AddItem(ctx context.Context, req *AddItemGRPCRequest) (*CartResponse, error) {
	if err := h.carts.AddToCart(ctx, UserIDFromContext(ctx), req.ProductID, req.Quantity); err != nil {
		return nil, h.toStatus(err)
	}
	return h.cart(ctx)
}

func (h *GRPCHandler) UpdateItem(ctx context.Context, req *UpdateItemRequest) (*CartResponse, error) {
	if err := h.carts.SetCartLineQuantity(ctx, UserIDFromContext(ctx), req.ProductID, req.Quantity); err != nil {
		return nil, h.toStatus(err)
	}
	return h.cart(ctx)
}

func (h *GRPCHandler) RemoveItem(ctx context.Context, req *RemoveItemRequest) (*CartResponse, error) {
	if err := h.carts.RemoveCartLine(ctx, UserIDFromContext(ctx), req.ProductID); err != nil {
		return nil, h.toStatus(err)
	}
	return h.cart(ctx)
}

func (h *GRPCHandler) ClearCart(ctx context.Context, _ *ClearCartRequest) (*CartResponse, error) {
	if err := h.carts.ClearCart(ctx, UserIDFromContext(ctx)); err != nil {
		return nil, h.toStatus(err)
	}
	return h.cart(ctx)
}

func (h *GRPCHandler) Checkout(ctx context.Context, req *CheckoutGRPCRequest) (*CheckoutResponse, error) {
	res, err := h.checkout.Checkout(ctx, service.CheckoutRequest{
		UserID:         UserIDFromContext(ctx),
		Address:        req.Address,
		PaymentToken:   req.PaymentToken,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return nil, h.toStatus(err)
	}
	resp := toCheckoutResponse(res)
	return &resp, nil
}

func (h *GRPCHandler) ListOrders(ctx context.Context, _ *ListOrdersRequest) (*ListOrdersResponse, error) {
	orders, err := h.orders.ListOrders(ctx, UserIDFromContext(ctx))
	if err != nil {
		return nil, h.toStatus(err)
	}
	resp := toListOrdersResponse(orders)
	return &resp, nil
}

func (h *GRPCHandler) GetOrder(ctx context.Context, req *GetOrderRequest) (*OrderDetailResponse, error) {
	order, err := h.orders.GetOrderDetail(ctx, UserIDFromContext(ctx), req.OrderID)
	if err != nil {
		return nil, h.toStatus(err)
	}
	resp := toOrderDetailResponse(order)
	return &resp, nil
}

func (h *GRPCHandler) GetProduct(ctx context.Context, req *GetProductRequest) (*ProductResponse, error) {
	p, err := h.catalog.GetProduct(ctx, req.ID)
	if err != nil {
		return nil, h.toStatus(err)
	}
	resp := toProductResponse(*p)
	return &resp, nil
}

func (h *GRPCHandler) ListProducts(ctx context.Context, req *ListProductsRequest) (*ListProductsResponse, error) {
	products, err := h.catalog.ListProducts(ctx, domain.ProductFilter{Category: req.Category, Search: req.Search})
	if err != nil {
		return nil, h.toStatus(err)
	}
	resp := toListProductsResponse(products)
	return &resp, nil
}

func (h *GRPCHandler) cart(ctx context.Context) (*CartResponse, error) {
	view, err := h.carts.GetCart(ctx, UserIDFromContext(ctx))
	if err != nil {
		return nil, h.toStatus(err)
	}
	resp := toCartResponse(view)
	return &resp, nil
}

func (h *GRPCHandler) toStatus(err error) error {
	kind, known := classify(err)
	if !known {
		h.log.Error("rpc failed", "error", err)
		return status.Error(codes.Internal, "internal error")
	}
	return status.Error(kind.code, err.Error())
}

func grpcCode(err error) codes.Code {
	kind, _ := classify(err)
	return kind.code
}
