package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/rl1809/cart-checkout/internal/core/domain"
	"github.com/rl1809/cart-checkout/internal/core/service"
	"github.com/rl1809/cart-checkout/internal/metrics"
	"github.com/rl1809/cart-checkout/internal/port"
)

const maxBodyBytes = 1 << 20

type HTTPHandler struct {
	carts    *service.CartService
	checkout *service.CheckoutService
	orders   *service.OrderService
	catalog  *service.CatalogService
	log      *slog.Logger
}

type AddItemRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type UpdateQuantityRequest struct {
	Quantity int `json:"quantity"`
}

type CheckoutHTTPRequest struct {
	Address      string `json:"address"`
	PaymentToken string `json:"payment_token"`
}

func NewHTTPHandler(carts *service.CartService, checkout *service.CheckoutService, orders *service.OrderService, catalog *service.CatalogService, logger *slog.Logger) *HTTPHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPHandler{
		carts:    carts,
		checkout: checkout,
		orders:   orders,
		catalog:  catalog,
		log:      logger.With("component", "http_handler"),
	}
}

// Routes mounts the API. m may be nil.
func (h *HTTPHandler) Routes(resolver port.IdentityResolver, m *metrics.Metrics) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if m != nil {
		r.Use(m.Middleware)
		r.Method(http.MethodGet, "/metrics", m.Handler())
	}

	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Get("/products", h.ListProducts)
		r.Get("/products/{id}", h.GetProduct)

		r.Group(func(r chi.Router) {
			r.Use(Authenticate(resolver))

			r.Get("/cart", h.GetCart)
			r.Delete("/cart", h.ClearCart)
			r.Post("/cart/items", h.AddItem)
			r.Put("/cart/items/{product_id}", h.UpdateQuantity)
			r.Delete("/cart/items/{product_id}", h.RemoveItem)

			r.Post("/checkout", h.Checkout)

			r.Get("/orders", h.ListOrders)
			r.Get("/orders/{id}", h.GetOrder)
		})
	})

	return otelhttp.NewHandler(r, "http.server")
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.ListProducts(r.Context(), domain.ProductFilter{
		Category: r.URL.Query().Get("category"),
		Search:   r.URL.Query().Get("search"),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toListProductsResponse(products))
}

func (h *HTTPHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.catalog.GetProduct(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(*p))
}

func (h *HTTPHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	h.respondCart(w, r, http.StatusOK)
}

func (h *HTTPHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.ProductID <= 0 {
		h.fail(w, r, fmt.Errorf("product_id must be positive: %w", domain.ErrInvalidInput))
		return
	}

	if err := h.carts.AddToCart(r.Context(), UserIDFromContext(r.Context()), req.ProductID, req.Quantity); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondCart(w, r, http.StatusCreated)
}

func (h *HTTPHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	productID, err := int64Param(r, "product_id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req UpdateQuantityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.carts.SetCartLineQuantity(r.Context(), UserIDFromContext(r.Context()), productID, req.Quantity); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondCart(w, r, http.StatusOK)
}

func (h *HTTPHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	productID, err := int64Param(r, "product_id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.carts.RemoveCartLine(r.Context(), UserIDFromContext(r.Context()), productID); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondCart(w, r, http.StatusOK)
}

func (h *HTTPHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.carts.ClearCart(r.Context(), UserIDFromContext(r.Context())); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondCart(w, r, http.StatusOK)
}

func (h *HTTPHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutHTTPRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := h.checkout.Checkout(r.Context(), service.CheckoutRequest{
		UserID:         UserIDFromContext(r.Context()),
		Address:        req.Address,
		PaymentToken:   req.PaymentToken,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCheckoutResponse(res))
}

func (h *HTTPHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListOrders(r.Context(), UserIDFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toListOrdersResponse(orders))
}

func (h *HTTPHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.GetOrderDetail(r.Context(), UserIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDetailResponse(order))
}

func (h *HTTPHandler) respondCart(w http.ResponseWriter, r *http.Request, status int) {
	view, err := h.carts.GetCart(r.Context(), UserIDFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, status, toCartResponse(view))
}

func (h *HTTPHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if _, known := classify(err); !known {
		h.log.Error("request failed", "method", r.Method, "path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()), "error", err)
	}
	respondError(w, err)
}

func respondError(w http.ResponseWriter, err error) {
	kind, known := classify(err)
	if kind.status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	resp := ErrorResponse{Error: http.StatusText(kind.status), Code: kind.name}
	if known {
		resp.Details = err.Error()
	}
	writeJSON(w, kind.status, resp)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fmt.Errorf("request body too large: %w", domain.ErrInvalidInput)
		}
		return fmt.Errorf("invalid JSON body: %w", domain.ErrInvalidInput)
	}
	return nil
}

func int64Param(r *http.Request, name string) (int64, error) {
	v, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", name, domain.ErrInvalidInput)
	}
	return v, nil
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
