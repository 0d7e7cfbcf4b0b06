package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rl1809/cart-checkout/internal/core/domain"
	"github.com/rl1809/cart-checkout/internal/core/pricing"
	"github.com/rl1809/cart-checkout/internal/port"
)

var tracer = otel.Tracer("github.com/rl1809/cart-checkout/internal/core/service")

type CheckoutRequest struct {
	UserID         string `validate:"required"`
	Address        string `validate:"required,min=8"`
	PaymentToken   string `validate:"required,len=16,number"`
	IdempotencyKey string `validate:"omitempty,max=128"`
}

type CheckoutResult struct {
	OrderID  string          `json:"order_id"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	Shipping decimal.Decimal `json:"shipping"`
	Total    decimal.Decimal `json:"total"`
	PlacedAt time.Time       `json:"placed_at"`
}

// CheckoutService converts an active cart into an order. Validation, pricing,
// stock decrement, order creation and cart draining commit together or not at all.
type CheckoutService struct {
	tx       port.Transactor
	cache    port.CartCache
	idem     port.IdempotencyStore
	validate *validator.Validate
	opts     options
	log      *slog.Logger
}

func NewCheckoutService(tx port.Transactor, cache port.CartCache, idem port.IdempotencyStore, opts ...Option) *CheckoutService {
	o := buildOptions(opts)
	return &CheckoutService{
		tx:       tx,
		cache:    cache,
		idem:     idem,
		validate: validator.New(),
		opts:     o,
		log:      o.logger.With("component", "checkout_service"),
	}
}

func (s *CheckoutService) Checkout(ctx context.Context, req CheckoutRequest) (res *CheckoutResult, err error) {
	ctx, span := tracer.Start(ctx, "CheckoutService.Checkout", trace.WithSpanKind(trace.SpanKindInternal))
	start := time.Now()
	defer func() {
		s.opts.recorder.ObserveCheckout(Outcome(err), time.Since(start))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, Outcome(err))
		}
		span.End()
	}()

	req.Address = strings.TrimSpace(req.Address)
	req.PaymentToken = strings.TrimSpace(req.PaymentToken)
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	span.SetAttributes(attribute.String("user.id", req.UserID))

	idemKey := ""
	if req.IdempotencyKey != "" && s.idem != nil {
		idemKey = req.UserID + ":" + req.IdempotencyKey
		prior, err := s.reserve(ctx, idemKey)
		if err != nil {
			return nil, err
		}
		if prior != nil {
			span.SetAttributes(attribute.Bool("checkout.replayed", true))
			return prior, nil
		}
	}

	var order domain.Order
	err = inTx(ctx, s.tx, s.opts.retry, func(ctx context.Context, repos port.Repositories) error {
		placed, err := s.finalize(ctx, repos, req)
		if err != nil {
			return err
		}
		order = *placed
		return nil
	})
	if err != nil {
		if idemKey != "" {
			if rerr := s.idem.Release(ctx, idemKey); rerr != nil {
				s.log.Warn("idempotency release failed", "user_id", req.UserID, "error", rerr)
			}
		}
		s.log.Info("checkout rejected", "user_id", req.UserID, "outcome", Outcome(err), "error", err)
		return nil, err
	}

	invalidateCart(ctx, s.cache, s.log, req.UserID)

	res = &CheckoutResult{
		OrderID:  order.ID,
		Subtotal: order.Subtotal,
		Tax:      order.Tax,
		Shipping: order.Shipping,
		Total:    order.Total,
		PlacedAt: order.CreatedAt,
	}
	if idemKey != "" {
		s.complete(ctx, idemKey, res)
	}

	span.SetAttributes(attribute.String("order.id", order.ID))
	s.log.Info("order placed", "user_id", req.UserID, "order_id", order.ID, "total", order.Total.StringFixed(2), "lines", len(order.Lines))
	return res, nil
}

// reserve claims the idempotency key. It returns the recorded result when the
// key already completed. A store outage does not block checkout: the drained
// cart already prevents a second order for the same contents.
func (s *CheckoutService) reserve(ctx context.Context, key string) (*CheckoutResult, error) {
	ok, stored, err := s.idem.Reserve(ctx, key)
	if err != nil {
		s.log.Warn("idempotency store unavailable", "error", err)
		return nil, nil
	}
	if ok {
		return nil, nil
	}
	if stored == "" {
		return nil, domain.ErrDuplicateRequest
	}

	var prior CheckoutResult
	if err := json.Unmarshal([]byte(stored), &prior); err != nil {
		return nil, fmt.Errorf("decode stored checkout result: %w", err)
	}
	return &prior, nil
}

func (s *CheckoutService) complete(ctx context.Context, key string, res *CheckoutResult) {
	data, err := json.Marshal(res)
	if err == nil {
		err = s.idem.Complete(ctx, key, string(data))
	}
	if err != nil {
		s.log.Warn("idempotency complete failed", "order_id", res.OrderID, "error", err)
	}
}

func (s *CheckoutService) finalize(ctx context.Context, repos port.Repositories, req CheckoutRequest) (*domain.Order, error) {
	cart, err := repos.Carts.ActiveCart(ctx, req.UserID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrEmptyCart
	}
	if err != nil {
		return nil, err
	}

	lines, err := repos.Carts.Lines(ctx, cart.ID)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, domain.ErrEmptyCart
	}

	ids := make([]int64, len(lines))
	for i, line := range lines {
		ids[i] = line.ProductID
	}
	products, err := repos.Stock.LockProducts(ctx, ids)
	if err != nil {
		return nil, err
	}

	items := make([]pricing.Item, 0, len(lines))
	for _, line := range lines {
		p, ok := products[line.ProductID]
		if !ok {
			return nil, fmt.Errorf("product %d: %w", line.ProductID, domain.ErrProductGone)
		}
		if p.Stock < line.Quantity {
			return nil, fmt.Errorf("product %d: requested %d, available %d: %w", p.ID, line.Quantity, p.Stock, domain.ErrInsufficientStock)
		}
		items = append(items, pricing.Item{UnitPrice: p.Price, Quantity: line.Quantity, Category: p.Category})
	}
	totals := pricing.Calculate(items)

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate order id: %w", err)
	}
	now := s.opts.now().UTC()
	order := &domain.Order{
		ID:           id.String(),
		UserID:       req.UserID,
		Address:      req.Address,
		PaymentToken: req.PaymentToken,
		Subtotal:     totals.Subtotal,
		Tax:          totals.Tax,
		Shipping:     totals.Shipping,
		Total:        totals.Total,
		Lines:        make([]domain.OrderLine, 0, len(lines)),
		CreatedAt:    now,
	}

	for _, line := range lines {
		p := products[line.ProductID]
		if err := repos.Stock.DecrementStock(ctx, p.ID, line.Quantity); err != nil {
			return nil, err
		}
		order.Lines = append(order.Lines, domain.OrderLine{
			OrderID:   order.ID,
			ProductID: p.ID,
			Quantity:  line.Quantity,
			Name:      p.Name,
			UnitPrice: p.Price,
		})
	}

	if err := repos.Orders.CreateOrder(ctx, *order); err != nil {
		return nil, err
	}
	if _, err := repos.Carts.DeleteLines(ctx, cart.ID); err != nil {
		return nil, err
	}
	if err := repos.Carts.MarkCleared(ctx, cart.ID, now); err != nil {
		return nil, err
	}

	event, err := orderPlacedEvent(order)
	if err != nil {
		return nil, err
	}
	if err := repos.Outbox.Append(ctx, event); err != nil {
		return nil, err
	}
	return order, nil
}

func orderPlacedEvent(order *domain.Order) (domain.OutboxEvent, error) {
	payload := domain.OrderPlacedPayload{
		OrderID:  order.ID,
		UserID:   order.UserID,
		Total:    order.Total.StringFixed(2),
		Lines:    make([]domain.OrderPlacedLine, len(order.Lines)),
		PlacedAt: order.CreatedAt,
	}
	for i, l := range order.Lines {
		payload.Lines[i] = domain.OrderPlacedLine{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice.StringFixed(2),
		}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return domain.OutboxEvent{}, fmt.Errorf("marshal order placed event: %w", err)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return domain.OutboxEvent{}, fmt.Errorf("generate event id: %w", err)
	}
	return domain.OutboxEvent{
		ID:          id.String(),
		AggregateID: order.ID,
		EventType:   domain.EventOrderPlaced,
		Payload:     data,
		CreatedAt:   order.CreatedAt,
	}, nil
}

// Outcome labels an error by kind for metrics and traces.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, domain.ErrProductGone):
		return "product_gone"
	case errors.Is(err, domain.ErrBusy):
		return "busy"
	case errors.Is(err, domain.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, domain.ErrDuplicateRequest):
		return "duplicate"
	default:
		return "error"
	}
}
