package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/cart-checkout/internal/core/domain"
	"github.com/rl1809/cart-checkout/internal/core/service"
)

// Money is rendered as a fixed two-decimal string on every transport.

type ProductResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       string `json:"price"`
	Category    string `json:"category"`
	Stock       int    `json:"stock"`
	Image       string `json:"image,omitempty"`
}

type ListProductsResponse struct {
	Products []ProductResponse `json:"products"`
}

type CartLineResponse struct {
	ProductID      int64  `json:"product_id"`
	Name           string `json:"name"`
	Category       string `json:"category"`
	UnitPrice      string `json:"unit_price"`
	Quantity       int    `json:"quantity"`
	Subtotal       string `json:"subtotal"`
	AvailableStock int    `json:"available_stock"`
	Image          string `json:"image,omitempty"`
}

type CartResponse struct {
	Lines    []CartLineResponse `json:"lines"`
	Subtotal string             `json:"subtotal"`
	Tax      string             `json:"tax"`
	Shipping string             `json:"shipping"`
	Total    string             `json:"total"`
}

type CheckoutResponse struct {
	OrderID  string    `json:"order_id"`
	Subtotal string    `json:"subtotal"`
	Tax      string    `json:"tax"`
	Shipping string    `json:"shipping"`
	Total    string    `json:"total"`
	PlacedAt time.Time `json:"placed_at"`
}

type OrderSummaryResponse struct {
	ID        string    `json:"id"`
	Date      time.Time `json:"date"`
	Total     string    `json:"total"`
	Shipping  string    `json:"shipping"`
	LineCount int       `json:"line_count"`
}

type ListOrdersResponse struct {
	Orders []OrderSummaryResponse `json:"orders"`
}

type OrderLineResponse struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	UnitPrice string `json:"unit_price"`
	Quantity  int    `json:"quantity"`
	Subtotal  string `json:"subtotal"`
}

type OrderDetailResponse struct {
	ID           string              `json:"id"`
	Date         time.Time           `json:"date"`
	Address      string              `json:"address"`
	PaymentToken string              `json:"payment_token"`
	Lines        []OrderLineResponse `json:"lines"`
	Subtotal     string              `json:"subtotal"`
	Tax          string              `json:"tax"`
	Shipping     string              `json:"shipping"`
	Total        string              `json:"total"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func toProductResponse(p domain.Product) ProductResponse {
	return ProductResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       money(p.Price),
		Category:    p.Category,
		Stock:       p.Stock,
		Image:       p.Image,
	}
}

func toListProductsResponse(products []domain.Product) ListProductsResponse {
	resp := ListProductsResponse{Products: make([]ProductResponse, len(products))}
	for i, p := range products {
		resp.Products[i] = toProductResponse(p)
	}
	return resp
}

func toCartResponse(v *domain.CartView) CartResponse {
	resp := CartResponse{
		Lines:    make([]CartLineResponse, len(v.Lines)),
		Subtotal: money(v.Subtotal),
		Tax:      money(v.Tax),
		Shipping: money(v.Shipping),
		Total:    money(v.Total),
	}
	for i, l := range v.Lines {
		resp.Lines[i] = CartLineResponse{
			ProductID:      l.ProductID,
			Name:           l.Name,
			Category:       l.Category,
			UnitPrice:      money(l.UnitPrice),
			Quantity:       l.Quantity,
			Subtotal:       money(l.Subtotal),
			AvailableStock: l.AvailableStock,
			Image:          l.Image,
		}
	}
	return resp
}

func toCheckoutResponse(r *service.CheckoutResult) CheckoutResponse {
	return CheckoutResponse{
		OrderID:  r.OrderID,
		Subtotal: money(r.Subtotal),
		Tax:      money(r.Tax),
		Shipping: money(r.Shipping),
		Total:    money(r.Total),
		PlacedAt: r.PlacedAt,
	}
}

func toListOrdersResponse(orders []domain.OrderSummary) ListOrdersResponse {
	resp := ListOrdersResponse{Orders: make([]OrderSummaryResponse, len(orders))}
	for i, o := range orders {
		resp.Orders[i] = OrderSummaryResponse{
			ID:        o.ID,
			Date:      o.CreatedAt,
			Total:     money(o.Total),
			Shipping:  money(o.Shipping),
			LineCount: o.LineCount,
		}
	}
	return resp
}

func toOrderDetailResponse(o *domain.Order) OrderDetailResponse {
	resp := OrderDetailResponse{
		ID:           o.ID,
		Date:         o.CreatedAt,
		Address:      o.Address,
		PaymentToken: o.PaymentToken,
		Lines:        make([]OrderLineResponse, len(o.Lines)),
		Subtotal:     money(o.Subtotal),
		Tax:          money(o.Tax),
		Shipping:     money(o.Shipping),
		Total:        money(o.Total),
	}
	for i, l := range o.Lines {
		resp.Lines[i] = OrderLineResponse{
			ProductID: l.ProductID,
			Name:      l.Name,
			UnitPrice: money(l.UnitPrice),
			Quantity:  l.Quantity,
			Subtotal:  money(l.Subtotal()),
		}
	}
	return resp
}
