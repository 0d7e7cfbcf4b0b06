package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rl1809/cart-checkout/internal/core/domain"
	"github.com/rl1809/cart-checkout/internal/port"
)

// OrderService is the read side of placed orders.
type OrderService struct {
	tx port.Transactor
}

func NewOrderService(tx port.Transactor) *OrderService {
	return &OrderService{tx: tx}
}

// ListOrders returns the user's orders, newest first.
func (s *OrderService) ListOrders(ctx context.Context, userID string) ([]domain.OrderSummary, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required: %w", domain.ErrInvalidInput)
	}
	return s.tx.Repositories().Orders.ListOrders(ctx, userID)
}

// GetOrderDetail returns the order with its line snapshots. Orders placed by
// another user are reported as domain.ErrForbidden.
func (s *OrderService) GetOrderDetail(ctx context.Context, userID, orderID string) (*domain.Order, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required: %w", domain.ErrInvalidInput)
	}

	order, err := s.tx.Repositories().Orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, fmt.Errorf("order %s: %w", orderID, domain.ErrForbidden)
	}

	subtotal := decimal.Zero
	for _, l := range order.Lines {
		subtotal = subtotal.Add(l.Subtotal())
	}
	order.Subtotal = subtotal
	return order, nil
}
