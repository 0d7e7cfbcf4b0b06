package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/rl1809/cart-checkout/internal/core/domain"
	"github.com/rl1809/cart-checkout/internal/core/pricing"
	"github.com/rl1809/cart-checkout/internal/port"
)

const loadCartTimeout = 5 * time.Second

// CartService owns the lifecycle of a user's active cart. Stock checks made
// here are advisory; CheckoutService repeats them under lock.
type CartService struct {
	tx    port.Transactor
	cache port.CartCache
	sf    singleflight.Group
	opts  options
	log   *slog.Logger
}

func NewCartService(tx port.Transactor, cache port.CartCache, opts ...Option) *CartService {
	o := buildOptions(opts)
	return &CartService{
		tx:    tx,
		cache: cache,
		opts:  o,
		log:   o.logger.With("component", "cart_service"),
	}
}

// GetCart prices the user's active cart against the current catalog. A user
// without an active cart gets an empty view; no cart is created.
func (s *CartService) GetCart(ctx context.Context, userID string) (*domain.CartView, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required: %w", domain.ErrInvalidInput)
	}

	cart, err := s.loadCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	catalog := s.tx.Repositories().Catalog
	view := &domain.CartView{Lines: []domain.CartViewLine{}}
	items := make([]pricing.Item, 0, len(cart.Lines))
	for _, line := range cart.Lines {
		p, err := catalog.GetProduct(ctx, line.ProductID)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}

		item := pricing.Item{UnitPrice: p.Price, Quantity: line.Quantity, Category: p.Category}
		items = append(items, item)
		view.Lines = append(view.Lines, domain.CartViewLine{
			ProductID:      p.ID,
			Name:           p.Name,
			Category:       p.Category,
			UnitPrice:      p.Price,
			Quantity:       line.Quantity,
			Subtotal:       pricing.LineSubtotal(item),
			AvailableStock: p.Stock,
			Image:          p.Image,
		})
	}

	totals := pricing.Calculate(items)
	view.Subtotal = totals.Subtotal
	view.Tax = totals.Tax
	view.Shipping = totals.Shipping
	view.Total = totals.Total
	return view, nil
}

// loadCart returns the cached cart lines, falling back to the store. Concurrent
// misses for the same user and cache version share one store read.
func (s *CartService) loadCart(ctx context.Context, userID string) (*domain.Cart, error) {
	cart, err := s.cache.Get(ctx, userID)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, port.ErrCacheMiss) {
		s.log.Warn("cart cache read failed", "user_id", userID, "error", err)
	}

	// the version is read before the store so an invalidation that lands
	// during the read makes the write-back a no-op
	version, verr := s.cache.Version(ctx, userID)
	if verr != nil {
		s.log.Debug("cart cache version unavailable", "user_id", userID, "error", verr)
	}

	v, err, _ := s.sf.Do(userID+"\x00"+version, func() (interface{}, error) {
		// shared by every waiter, so one caller's cancellation must not fail the rest
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadCartTimeout)
		defer cancel()

		repos := s.tx.Repositories()
		cart, err := repos.Carts.ActiveCart(ctx, userID)
		if errors.Is(err, domain.ErrNotFound) {
			return &domain.Cart{UserID: userID, State: domain.CartStateActive}, nil
		}
		if err != nil {
			return nil, err
		}

		lines, err := repos.Carts.Lines(ctx, cart.ID)
		if err != nil {
			return nil, err
		}
		cart.Lines = lines

		if verr == nil {
			if err := s.cache.Set(ctx, userID, cart, version); err != nil {
				s.log.Warn("cart cache write failed", "user_id", userID, "error", err)
			}
		}
		return cart, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Cart), nil
}

// AddToCart adds quantity units of a product, merging with an existing line.
func (s *CartService) AddToCart(ctx context.Context, userID string, productID int64, quantity int) error {
	if userID == "" {
		return fmt.Errorf("user id is required: %w", domain.ErrInvalidInput)
	}
	if quantity <= 0 {
		return fmt.Errorf("quantity must be positive, got %d: %w", quantity, domain.ErrInvalidInput)
	}

	err := inTx(ctx, s.tx, s.opts.retry, func(ctx context.Context, repos port.Repositories) error {
		product, err := repos.Catalog.GetProduct(ctx, productID)
		if err != nil {
			return err
		}

		now := s.opts.now().UTC()
		cart, err := activeCart(ctx, repos, userID, now)
		if err != nil {
			return err
		}

		line, err := repos.Carts.GetLine(ctx, cart.ID, productID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			if quantity > product.Stock {
				return fmt.Errorf("product %d: requested %d, available %d: %w", productID, quantity, product.Stock, domain.ErrInsufficientStock)
			}
			err = repos.Carts.InsertLine(ctx, domain.CartLine{CartID: cart.ID, ProductID: productID, Quantity: quantity, AddedAt: now})
		case err != nil:
			return err
		default:
			merged := line.Quantity + quantity
			if merged > product.Stock {
				return fmt.Errorf("product %d: requested %d, available %d: %w", productID, merged, product.Stock, domain.ErrInsufficientStock)
			}
			err = repos.Carts.UpdateLineQuantity(ctx, cart.ID, productID, merged)
		}
		if err != nil {
			return err
		}
		return repos.Carts.Touch(ctx, cart.ID, now)
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx, userID)
	s.log.Debug("cart line added", "user_id", userID, "product_id", productID, "quantity", quantity)
	return nil
}

// SetCartLineQuantity replaces a line's quantity; zero removes the line.
func (s *CartService) SetCartLineQuantity(ctx context.Context, userID string, productID int64, quantity int) error {
	if userID == "" {
		return fmt.Errorf("user id is required: %w", domain.ErrInvalidInput)
	}
	if quantity < 0 {
		return fmt.Errorf("quantity must not be negative, got %d: %w", quantity, domain.ErrInvalidInput)
	}

	err := inTx(ctx, s.tx, s.opts.retry, func(ctx context.Context, repos port.Repositories) error {
		cart, err := repos.Carts.ActiveCart(ctx, userID)
		if err != nil {
			return err
		}
		if _, err := repos.Carts.GetLine(ctx, cart.ID, productID); err != nil {
			return err
		}

		if quantity == 0 {
			if err := repos.Carts.DeleteLine(ctx, cart.ID, productID); err != nil {
				return err
			}
		} else {
			product, err := repos.Catalog.GetProduct(ctx, productID)
			if err != nil {
				return err
			}
			if quantity > product.Stock {
				return fmt.Errorf("product %d: requested %d, available %d: %w", productID, quantity, product.Stock, domain.ErrInsufficientStock)
			}
			if err := repos.Carts.UpdateLineQuantity(ctx, cart.ID, productID, quantity); err != nil {
				return err
			}
		}
		return repos.Carts.Touch(ctx, cart.ID, s.opts.now().UTC())
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx, userID)
	s.log.Debug("cart line quantity set", "user_id", userID, "product_id", productID, "quantity", quantity)
	return nil
}

func (s *CartService) RemoveCartLine(ctx context.Context, userID string, productID int64) error {
	if userID == "" {
		return fmt.Errorf("user id is required: %w", domain.ErrInvalidInput)
	}

	err := inTx(ctx, s.tx, s.opts.retry, func(ctx context.Context, repos port.Repositories) error {
		cart, err := repos.Carts.ActiveCart(ctx, userID)
		if err != nil {
			return err
		}
		if err := repos.Carts.DeleteLine(ctx, cart.ID, productID); err != nil {
			return err
		}
		return repos.Carts.Touch(ctx, cart.ID, s.opts.now().UTC())
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx, userID)
	s.log.Debug("cart line removed", "user_id", userID, "product_id", productID)
	return nil
}

// ClearCart empties the active cart and leaves it active. Clearing when the
// user has no active cart is a no-op.
func (s *CartService) ClearCart(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("user id is required: %w", domain.ErrInvalidInput)
	}

	var removed int
	err := inTx(ctx, s.tx, s.opts.retry, func(ctx context.Context, repos port.Repositories) error {
		cart, err := repos.Carts.ActiveCart(ctx, userID)
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		n, err := repos.Carts.DeleteLines(ctx, cart.ID)
		if err != nil {
			return err
		}
		removed = n
		return repos.Carts.Touch(ctx, cart.ID, s.opts.now().UTC())
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx, userID)
	s.log.Debug("cart cleared", "user_id", userID, "lines", removed)
	return nil
}

func (s *CartService) invalidate(ctx context.Context, userID string) {
	invalidateCart(ctx, s.cache, s.log, userID)
}

func invalidateCart(ctx context.Context, cache port.CartCache, log *slog.Logger, userID string) {
	if err := cache.Delete(ctx, userID); err != nil {
		log.Warn("cart cache invalidation failed", "user_id", userID, "error", err)
	}
}

// activeCart returns the user's active cart, creating an empty one if needed.
// A concurrent creation surfaces as domain.ErrBusy and the retry finds it.
func activeCart(ctx context.Context, repos port.Repositories, userID string, now time.Time) (*domain.Cart, error) {
	cart, err := repos.Carts.ActiveCart(ctx, userID)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate cart id: %w", err)
	}
	cart = &domain.Cart{
		ID:        id.String(),
		UserID:    userID,
		State:     domain.CartStateActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := repos.Carts.CreateActiveCart(ctx, *cart); err != nil {
		return nil, err
	}
	return cart, nil
}
