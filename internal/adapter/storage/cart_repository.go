package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rl1809/cart-checkout/internal/core/domain"
)

type cartRepository struct {
	q       queryer
	dialect dialect
}

func (r *cartRepository) ActiveCart(ctx context.Context, userID string) (*domain.Cart, error) {
	var c domain.Cart
	err := r.q.QueryRowContext(ctx, `
		SELECT c.id, c.user_id, c.state, c.created_at, c.updated_at
		FROM active_carts a
		JOIN carts c ON c.id = a.cart_id
		WHERE a.user_id = ?`+r.dialect.lockSuffix, userID,
	).Scan(&c.ID, &c.UserID, &c.State, &c.CreatedAt, &c.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("active cart for user %s: %w", userID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query active cart: %w", err)
	}
	return &c, nil
}

func (r *cartRepository) CreateActiveCart(ctx context.Context, cart domain.Cart) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO carts (id, user_id, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		cart.ID, cart.UserID, domain.CartStateActive, cart.CreatedAt.UTC(), cart.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert cart: %w", err)
	}

	// the primary key on active_carts.user_id is the one-active-cart-per-user invariant
	_, err = r.q.ExecContext(ctx, `INSERT INTO active_carts (user_id, cart_id) VALUES (?, ?)`, cart.UserID, cart.ID)
	if r.dialect.isDuplicate(err) {
		return fmt.Errorf("user %s already has an active cart: %w", cart.UserID, domain.ErrBusy)
	}
	if err != nil {
		return fmt.Errorf("insert active cart: %w", err)
	}
	return nil
}

func (r *cartRepository) Lines(ctx context.Context, cartID string) ([]domain.CartLine, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT cart_id, product_id, quantity, added_at
		FROM cart_lines
		WHERE cart_id = ?
		ORDER BY added_at, product_id`, cartID)
	if err != nil {
		return nil, fmt.Errorf("query cart lines: %w", err)
	}
	defer rows.Close()

	var lines []domain.CartLine
	for rows.Next() {
		var l domain.CartLine
		if err := rows.Scan(&l.CartID, &l.ProductID, &l.Quantity, &l.AddedAt); err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cart lines: %w", err)
	}
	return lines, nil
}

func (r *cartRepository) GetLine(ctx context.Context, cartID string, productID int64) (*domain.CartLine, error) {
	var l domain.CartLine
	err := r.q.QueryRowContext(ctx, `
		SELECT cart_id, product_id, quantity, added_at
		FROM cart_lines
		WHERE cart_id = ? AND product_id = ?`, cartID, productID,
	).Scan(&l.CartID, &l.ProductID, &l.Quantity, &l.AddedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %d in cart: %w", productID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query cart line: %w", err)
	}
	return &l, nil
}

func (r *cartRepository) InsertLine(ctx context.Context, line domain.CartLine) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO cart_lines (cart_id, product_id, quantity, added_at)
		VALUES (?, ?, ?, ?)`,
		line.CartID, line.ProductID, line.Quantity, line.AddedAt.UTC(),
	)
	if r.dialect.isDuplicate(err) {
		return fmt.Errorf("product %d already in cart: %w", line.ProductID, domain.ErrBusy)
	}
	if err != nil {
		return fmt.Errorf("insert cart line: %w", err)
	}
	return nil
}

func (r *cartRepository) UpdateLineQuantity(ctx context.Context, cartID string, productID int64, quantity int) error {
	// MySQL reports 0 affected rows for an unchanged value, so existence is the caller's check
	_, err := r.q.ExecContext(ctx, `
		UPDATE cart_lines SET quantity = ?
		WHERE cart_id = ? AND product_id = ?`,
		quantity, cartID, productID,
	)
	if err != nil {
		return fmt.Errorf("update cart line: %w", err)
	}
	return nil
}

func (r *cartRepository) DeleteLine(ctx context.Context, cartID string, productID int64) error {
	result, err := r.q.ExecContext(ctx, `DELETE FROM cart_lines WHERE cart_id = ? AND product_id = ?`, cartID, productID)
	if err != nil {
		return fmt.Errorf("delete cart line: %w", err)
	}
	return requireAffected(result, fmt.Errorf("product %d in cart: %w", productID, domain.ErrNotFound))
}

func (r *cartRepository) DeleteLines(ctx context.Context, cartID string) (int, error) {
	result, err := r.q.ExecContext(ctx, `DELETE FROM cart_lines WHERE cart_id = ?`, cartID)
	if err != nil {
		return 0, fmt.Errorf("delete cart lines: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete cart lines: %w", err)
	}
	return int(n), nil
}

func (r *cartRepository) Touch(ctx context.Context, cartID string, at time.Time) error {
	if _, err := r.q.ExecContext(ctx, `UPDATE carts SET updated_at = ? WHERE id = ?`, at.UTC(), cartID); err != nil {
		return fmt.Errorf("touch cart: %w", err)
	}
	return nil
}

func (r *cartRepository) MarkCleared(ctx context.Context, cartID string, at time.Time) error {
	if _, err := r.q.ExecContext(ctx, `UPDATE carts SET state = ?, updated_at = ? WHERE id = ?`,
		domain.CartStateCleared, at.UTC(), cartID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	if _, err := r.q.ExecContext(ctx, `DELETE FROM active_carts WHERE cart_id = ?`, cartID); err != nil {
		return fmt.Errorf("release active cart: %w", err)
	}
	return nil
}

func requireAffected(result sql.Result, notFound error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
