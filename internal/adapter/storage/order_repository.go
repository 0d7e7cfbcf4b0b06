package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rl1809/cart-checkout/internal/core/domain"
)

type orderRepository struct {
	q queryer
}

func (r *orderRepository) CreateOrder(ctx context.Context, order domain.Order) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, address, payment_token, subtotal, tax, shipping, total, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID, order.UserID, order.Address, order.PaymentToken,
		order.Subtotal, order.Tax, order.Shipping, order.Total, order.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for _, line := range order.Lines {
		_, err := r.q.ExecContext(ctx, `
			INSERT INTO order_lines (order_id, product_id, quantity, name, unit_price)
			VALUES (?, ?, ?, ?, ?)`,
			order.ID, line.ProductID, line.Quantity, line.Name, line.UnitPrice,
		)
		if err != nil {
			return fmt.Errorf("insert order line %d: %w", line.ProductID, err)
		}
	}
	return nil
}

func (r *orderRepository) ListOrders(ctx context.Context, userID string) ([]domain.OrderSummary, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT o.id, o.created_at, o.total, o.shipping, COUNT(l.product_id)
		FROM orders o
		LEFT JOIN order_lines l ON l.order_id = o.id
		WHERE o.user_id = ?
		GROUP BY o.id, o.created_at, o.total, o.shipping
		ORDER BY o.created_at DESC, o.id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query orders by user id: %w", err)
	}
	defer rows.Close()

	var orders []domain.OrderSummary
	for rows.Next() {
		var o domain.OrderSummary
		if err := rows.Scan(&o.ID, &o.CreatedAt, &o.Total, &o.Shipping, &o.LineCount); err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return orders, nil
}

func (r *orderRepository) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	var o domain.Order
	err := r.q.QueryRowContext(ctx, `
		SELECT id, user_id, address, payment_token, subtotal, tax, shipping, total, created_at
		FROM orders WHERE id = ?`, orderID,
	).Scan(&o.ID, &o.UserID, &o.Address, &o.PaymentToken, &o.Subtotal, &o.Tax, &o.Shipping, &o.Total, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", orderID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query order by id: %w", err)
	}

	rows, err := r.q.QueryContext(ctx, `
		SELECT order_id, product_id, quantity, name, unit_price
		FROM order_lines WHERE order_id = ?
		ORDER BY product_id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var l domain.OrderLine
		if err := rows.Scan(&l.OrderID, &l.ProductID, &l.Quantity, &l.Name, &l.UnitPrice); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		o.Lines = append(o.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order lines: %w", err)
	}
	return &o, nil
}

func (r *orderRepository) CountOrders(ctx context.Context, userID string) (int, error) {
	var n int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders WHERE user_id = ?`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count orders: %w", err)
	}
	return n, nil
}
