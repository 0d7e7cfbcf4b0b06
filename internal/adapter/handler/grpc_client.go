package handler

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// GRPCClient calls the CartCheckout service over a JSON-coded connection.
type GRPCClient struct {
	cc grpc.ClientConnInterface
}

func NewGRPCClient(cc grpc.ClientConnInterface) *GRPCClient {
	return &GRPCClient{cc: cc}
}

// AsUser attaches the caller identity to outgoing calls.
func AsUser(ctx context.Context, userID string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, UserIDMetadata, userID)
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, req any) (*Resp, error) {
	out := new(Resp)
	err := cc.Invoke(ctx, "/"+ServiceName+"/"+method, req, out, grpc.CallContentSubtype(CodecName))
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *GRPCClient) GetCart(ctx context.Context) (*CartResponse, error) {
	return invoke[CartResponse](ctx, c.cc, "GetCart", &GetCartRequest{})
}

func (c *GRPCClient) AddItem(ctx context.Context, productID int64, quantity int) (*CartResponse, error) {
	return invoke[CartResponse](ctx, c.cc, "AddItem", &AddItemGRPCRequest{ProductID: productID, Quantity: quantity})
}

func (c *GRPCClient) UpdateItem(ctx context.Context, productID int64, quantity int) (*CartResponse, error) {
	return invoke[CartResponse](ctx, c.cc, "UpdateItem", &UpdateItemRequest{ProductID: productID, Quantity: quantity})
}

func (c *GRPCClient) RemoveItem(ctx context.Context, productID int64) (*CartResponse, error) {
	return invoke[CartResponse](ctx, c.cc, "RemoveItem", &RemoveItemRequest{ProductID: productID})
}

func (c *GRPCClient) ClearCart(ctx context.Context) (*CartResponse, error) {
	return invoke[CartResponse](ctx, c.cc, "ClearCart", &ClearCartRequest{})
}

func (c *GRPCClient) Checkout(ctx context.Context, req *CheckoutGRPCRequest) (*CheckoutResponse, error) {
	return invoke[CheckoutResponse](ctx, c.cc, "Checkout", req)
}

func (c *GRPCClient) ListOrders(ctx context.Context) (*ListOrdersResponse, error) {
	return invoke[ListOrdersResponse](ctx, c.cc, "ListOrders", &ListOrdersRequest{})
}

func (c *GRPCClient) GetOrder(ctx context.Context, orderID string) (*OrderDetailResponse, error) {
	return invoke[OrderDetailResponse](ctx, c.cc, "GetOrder", &GetOrderRequest{OrderID: orderID})
}

func (c *GRPCClient) GetProduct(ctx context.Context, id int64) (*ProductResponse, error) {
	return invoke[ProductResponse](ctx, c.cc, "GetProduct", &GetProductRequest{ID: id})
}

func (c *GRPCClient) ListProducts(ctx context.Context, req *ListProductsRequest) (*ListProductsResponse, error) {
	return invoke[ListProductsResponse](ctx, c.cc, "ListProducts", req)
}
