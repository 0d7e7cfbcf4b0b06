package port

import (
	"context"
	"time"

	"github.com/rl1809/cart-checkout/internal/core/domain"
)

type CatalogRepository interface {
	// GetProduct returns domain.ErrNotFound when the product does not exist
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)

	ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error)

	// UpsertProduct inserts or replaces a catalog entry (seed, restock, repricing)
	UpsertProduct(ctx context.Context, product domain.Product) error

	CountProducts(ctx context.Context) (int, error)
}

type StockRepository interface {
	// LockProducts takes an exclusive hold on every listed product, in ascending id
	// order, until the enclosing transaction ends. Missing ids are absent from the map.
	LockProducts(ctx context.Context, ids []int64) (map[int64]domain.Product, error)

	// DecrementStock fails with domain.ErrInsufficientStock instead of going negative
	DecrementStock(ctx context.Context, productID int64, quantity int) error
}

type CartRepository interface {
	// ActiveCart returns the user's active cart without lines, holding it for the
	// rest of the transaction. domain.ErrNotFound when the user has none.
	ActiveCart(ctx context.Context, userID string) (*domain.Cart, error)

	// CreateActiveCart fails with domain.ErrBusy if another active cart won the race
	CreateActiveCart(ctx context.Context, cart domain.Cart) error

	Lines(ctx context.Context, cartID string) ([]domain.CartLine, error)

	// GetLine returns domain.ErrNotFound when the product is not in the cart
	GetLine(ctx context.Context, cartID string, productID int64) (*domain.CartLine, error)

	InsertLine(ctx context.Context, line domain.CartLine) error

	UpdateLineQuantity(ctx context.Context, cartID string, productID int64, quantity int) error

	// DeleteLine returns domain.ErrNotFound when there was nothing to delete
	DeleteLine(ctx context.Context, cartID string, productID int64) error

	DeleteLines(ctx context.Context, cartID string) (int, error)

	Touch(ctx context.Context, cartID string, at time.Time) error

	// MarkCleared retires the cart: state becomes cleared and the user is left
	// without an active cart until the next one is created
	MarkCleared(ctx context.Context, cartID string, at time.Time) error
}

type OrderRepository interface {
	// CreateOrder persists the order and all of its lines
	CreateOrder(ctx context.Context, order domain.Order) error

	// ListOrders returns the user's orders, most recent first
	ListOrders(ctx context.Context, userID string) ([]domain.OrderSummary, error)

	// GetOrder returns the order with its lines, domain.ErrNotFound if absent
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)

	CountOrders(ctx context.Context, userID string) (int, error)
}

type OutboxRepository interface {
	Append(ctx context.Context, event domain.OutboxEvent) error

	Pending(ctx context.Context, limit int) ([]domain.OutboxEvent, error)

	MarkPublished(ctx context.Context, id string, at time.Time) error
}

// Repositories is one consistent view of the store: either bound to a
// transaction or to the plain connection pool.
type Repositories struct {
	Catalog CatalogRepository
	Stock   StockRepository
	Carts   CartRepository
	Orders  OrderRepository
	Outbox  OutboxRepository
}

type Transactor interface {
	// WithinTx commits when fn returns nil and rolls back on every other exit
	// path, including panics. Lock contention surfaces as domain.ErrBusy.
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error

	// Repositories returns non-transactional repositories for reads
	Repositories() Repositories
}
