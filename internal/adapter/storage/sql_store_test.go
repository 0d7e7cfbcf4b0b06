package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/cart-checkout/internal/core/domain"
	"github.com/rl1809/cart-checkout/internal/port"
)

func newSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()
	store, err := Open(context.Background(), DriverSQLite, SQLiteDSN(filepath.Join(t.TempDir(), "shop.db")))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func seedTestProduct(t *testing.T, store *SQLStore, id int64, price string, category string, stock int) {
	t.Helper()
	err := store.Repositories().Catalog.UpsertProduct(context.Background(), domain.Product{
		ID:       id,
		Name:     "product",
		Price:    decimal.RequireFromString(price),
		Category: category,
		Stock:    stock,
	})
	require.NoError(t, err)
}

func newCart(t *testing.T, store *SQLStore, userID string) domain.Cart {
	t.Helper()
	now := time.Now().UTC()
	cart := domain.Cart{ID: userID + "-cart", UserID: userID, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, store.Repositories().Carts.CreateActiveCart(context.Background(), cart))
	return cart
}

func TestSQLStore_Catalog(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)
	catalog := store.Repositories().Catalog

	require.NoError(t, catalog.UpsertProduct(ctx, domain.Product{
		ID: 1, Name: "Laptop Pro", Description: "14 inch", Price: decimal.RequireFromString("999.90"), Category: "Electrónica", Stock: 3,
	}))
	require.NoError(t, catalog.UpsertProduct(ctx, domain.Product{
		ID: 2, Name: "Desk Lamp", Description: "LED", Price: decimal.RequireFromString("25"), Category: "Hogar", Stock: 10,
	}))

	p, err := catalog.GetProduct(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Laptop Pro", p.Name)
	assert.True(t, p.Price.Equal(decimal.RequireFromString("999.90")))
	assert.Equal(t, 3, p.Stock)
	assert.Equal(t, 0, p.Version)

	_, err = catalog.GetProduct(ctx, 99)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	found, err := catalog.ListProducts(ctx, domain.ProductFilter{Search: "lamp"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, int64(2), found[0].ID)

	found, err = catalog.ListProducts(ctx, domain.ProductFilter{Category: "electrónica"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, int64(1), found[0].ID)

	all, err := catalog.ListProducts(ctx, domain.ProductFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, catalog.UpsertProduct(ctx, domain.Product{
		ID: 1, Name: "Laptop Pro", Price: decimal.RequireFromString("899"), Category: "Electrónica", Stock: 5,
	}))
	p, err = catalog.GetProduct(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 5, p.Stock)
	assert.Equal(t, 1, p.Version)

	n, err := catalog.CountProducts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	err = catalog.UpsertProduct(ctx, domain.Product{ID: 3, Name: "bad", Stock: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSQLStore_DecrementStock(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)
	seedTestProduct(t, store, 1, "10", "Hogar", 2)

	stock := store.Repositories().Stock
	require.NoError(t, stock.DecrementStock(ctx, 1, 2))

	err := stock.DecrementStock(ctx, 1, 1)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)

	p, err := store.Repositories().Catalog.GetProduct(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, p.Stock)
	assert.Equal(t, 1, p.Version)
}

func TestSQLStore_LockProductsSkipsMissing(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)
	seedTestProduct(t, store, 1, "10", "Hogar", 2)
	seedTestProduct(t, store, 3, "10", "Hogar", 2)

	err := store.WithinTx(ctx, func(ctx context.Context, repos port.Repositories) error {
		locked, err := repos.Stock.LockProducts(ctx, []int64{3, 2, 1})
		require.NoError(t, err)
		assert.Len(t, locked, 2)
		assert.Contains(t, locked, int64(1))
		assert.Contains(t, locked, int64(3))
		return nil
	})
	require.NoError(t, err)
}

func TestSQLStore_OneActiveCartPerUser(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)
	carts := store.Repositories().Carts

	first := newCart(t, store, "user-1")

	now := time.Now().UTC()
	err := carts.CreateActiveCart(ctx, domain.Cart{ID: "second", UserID: "user-1", CreatedAt: now, UpdatedAt: now})
	assert.ErrorIs(t, err, domain.ErrBusy)

	active, err := carts.ActiveCart(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, active.ID)
	assert.Equal(t, domain.CartStateActive, active.State)

	require.NoError(t, carts.MarkCleared(ctx, first.ID, now))
	_, err = carts.ActiveCart(ctx, "user-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// a retired cart frees the slot for a new one
	require.NoError(t, carts.CreateActiveCart(ctx, domain.Cart{ID: "third", UserID: "user-1", CreatedAt: now, UpdatedAt: now}))
}

func TestSQLStore_CartLines(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)
	seedTestProduct(t, store, 1, "10", "Hogar", 5)
	seedTestProduct(t, store, 2, "20", "Hogar", 5)
	carts := store.Repositories().Carts
	cart := newCart(t, store, "user-1")

	now := time.Now().UTC()
	require.NoError(t, carts.InsertLine(ctx, domain.CartLine{CartID: cart.ID, ProductID: 1, Quantity: 2, AddedAt: now}))
	require.NoError(t, carts.InsertLine(ctx, domain.CartLine{CartID: cart.ID, ProductID: 2, Quantity: 1, AddedAt: now.Add(time.Second)}))

	err := carts.InsertLine(ctx, domain.CartLine{CartID: cart.ID, ProductID: 1, Quantity: 1, AddedAt: now})
	assert.ErrorIs(t, err, domain.ErrBusy)

	require.NoError(t, carts.UpdateLineQuantity(ctx, cart.ID, 1, 4))
	line, err := carts.GetLine(ctx, cart.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 4, line.Quantity)

	lines, err := carts.Lines(ctx, cart.ID)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, int64(1), lines[0].ProductID)
	assert.Equal(t, int64(2), lines[1].ProductID)

	require.NoError(t, carts.DeleteLine(ctx, cart.ID, 2))
	assert.ErrorIs(t, carts.DeleteLine(ctx, cart.ID, 2), domain.ErrNotFound)

	_, err = carts.GetLine(ctx, cart.ID, 2)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	n, err := carts.DeleteLines(ctx, cart.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	lines, err = carts.Lines(ctx, cart.ID)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestSQLStore_WithinTxRollsBack(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)
	seedTestProduct(t, store, 1, "10", "Hogar", 5)
	errBoom := errors.New("boom")

	err := store.WithinTx(ctx, func(ctx context.Context, repos port.Repositories) error {
		if err := repos.Stock.DecrementStock(ctx, 1, 3); err != nil {
			return err
		}
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)

	p, err := store.Repositories().Catalog.GetProduct(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 5, p.Stock)
}

func TestSQLStore_WithinTxRollsBackOnPanic(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)
	seedTestProduct(t, store, 1, "10", "Hogar", 5)

	assert.Panics(t, func() {
		_ = store.WithinTx(ctx, func(ctx context.Context, repos port.Repositories) error {
			if err := repos.Stock.DecrementStock(ctx, 1, 3); err != nil {
				return err
			}
			panic("interrupted")
		})
	})

	p, err := store.Repositories().Catalog.GetProduct(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 5, p.Stock)
}

func TestSQLStore_Orders(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)
	seedTestProduct(t, store, 1, "10", "Hogar", 5)
	seedTestProduct(t, store, 2, "20", "Hogar", 5)
	orders := store.Repositories().Orders

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	older := domain.Order{
		ID: "order-a", UserID: "user-1", Address: "Calle Mayor 1", PaymentToken: "1234567812345678",
		Subtotal: decimal.NewFromInt(10), Tax: decimal.RequireFromString("2.1"), Shipping: decimal.NewFromInt(50), Total: decimal.RequireFromString("62.1"),
		Lines:     []domain.OrderLine{{OrderID: "order-a", ProductID: 1, Quantity: 1, Name: "Lamp", UnitPrice: decimal.NewFromInt(10)}},
		CreatedAt: base,
	}
	newer := domain.Order{
		ID: "order-b", UserID: "user-1", Address: "Calle Mayor 1", PaymentToken: "1234567812345678",
		Subtotal: decimal.NewFromInt(50), Tax: decimal.RequireFromString("10.5"), Shipping: decimal.NewFromInt(50), Total: decimal.RequireFromString("110.5"),
		Lines: []domain.OrderLine{
			{OrderID: "order-b", ProductID: 1, Quantity: 1, Name: "Lamp", UnitPrice: decimal.NewFromInt(10)},
			{OrderID: "order-b", ProductID: 2, Quantity: 2, Name: "Chair", UnitPrice: decimal.NewFromInt(20)},
		},
		CreatedAt: base.Add(time.Minute),
	}
	require.NoError(t, orders.CreateOrder(ctx, older))
	require.NoError(t, orders.CreateOrder(ctx, newer))

	list, err := orders.ListOrders(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "order-b", list[0].ID)
	assert.Equal(t, 2, list[0].LineCount)
	assert.True(t, list[0].Total.Equal(decimal.RequireFromString("110.5")))
	assert.Equal(t, "order-a", list[1].ID)

	other, err := orders.ListOrders(ctx, "user-2")
	require.NoError(t, err)
	assert.Empty(t, other)

	got, err := orders.GetOrder(ctx, "order-b")
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.UserID)
	assert.True(t, got.CreatedAt.Equal(newer.CreatedAt))
	require.Len(t, got.Lines, 2)
	assert.Equal(t, "Chair", got.Lines[1].Name)
	assert.True(t, got.Lines[1].UnitPrice.Equal(decimal.NewFromInt(20)))

	_, err = orders.GetOrder(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	n, err := orders.CountOrders(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSQLStore_Outbox(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)
	outbox := store.Repositories().Outbox

	now := time.Now().UTC()
	require.NoError(t, outbox.Append(ctx, domain.OutboxEvent{
		ID: "evt-1", AggregateID: "order-a", EventType: domain.EventOrderPlaced, Payload: []byte(`{"order_id":"order-a"}`), CreatedAt: now,
	}))
	require.NoError(t, outbox.Append(ctx, domain.OutboxEvent{
		ID: "evt-2", AggregateID: "order-b", EventType: domain.EventOrderPlaced, Payload: []byte(`{"order_id":"order-b"}`), CreatedAt: now.Add(time.Second),
	}))

	pending, err := outbox.Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "evt-1", pending[0].ID)
	assert.JSONEq(t, `{"order_id":"order-a"}`, string(pending[0].Payload))

	require.NoError(t, outbox.MarkPublished(ctx, "evt-1", now))
	assert.ErrorIs(t, outbox.MarkPublished(ctx, "evt-1", now), domain.ErrNotFound)

	pending, err = outbox.Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "evt-2", pending[0].ID)
}

func TestSQLStore_ConcurrentDecrementNeverOversells(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)
	seedTestProduct(t, store, 1, "10", "Hogar", 5)

	var (
		wg      sync.WaitGroup
		success atomic.Int32
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.WithinTx(ctx, func(ctx context.Context, repos port.Repositories) error {
				if _, err := repos.Stock.LockProducts(ctx, []int64{1}); err != nil {
					return err
				}
				return repos.Stock.DecrementStock(ctx, 1, 1)
			})
			if err == nil {
				success.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(5), success.Load())
	p, err := store.Repositories().Catalog.GetProduct(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, p.Stock)
}

// Requires a MySQL server; set MYSQL_DSN (with multiStatements=true&parseTime=true) to run.
func TestMySQLStore_ConcurrentDecrement(t *testing.T) {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		t.Skip("MYSQL_DSN not set")
	}
	ctx := context.Background()
	store, err := Open(ctx, DriverMySQL, dsn, WithLockWait(2*time.Second))
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	defer store.Close()

	const productID = 900001
	require.NoError(t, store.Repositories().Catalog.UpsertProduct(ctx, domain.Product{
		ID: productID, Name: "mysql-test", Price: decimal.NewFromInt(1), Category: "Hogar", Stock: 10,
	}))

	var (
		wg      sync.WaitGroup
		success atomic.Int32
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.WithinTx(ctx, func(ctx context.Context, repos port.Repositories) error {
				if _, err := repos.Stock.LockProducts(ctx, []int64{productID}); err != nil {
					return err
				}
				return repos.Stock.DecrementStock(ctx, productID, 1)
			})
			if err == nil {
				success.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(10), success.Load())
	p, err := store.Repositories().Catalog.GetProduct(ctx, productID)
	require.NoError(t, err)
	assert.Equal(t, 0, p.Stock)
}
