package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/cart-checkout/internal/adapter/storage"
	"github.com/rl1809/cart-checkout/internal/core/domain"
	"github.com/rl1809/cart-checkout/internal/port"
)

type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type fixture struct {
	store    *storage.SQLStore
	carts    *CartService
	checkout *CheckoutService
	orders   *OrderService
	catalog  *CatalogService
}

func testOptions() []Option {
	clock := &stepClock{t: time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)}
	return []Option{
		WithClock(clock.Now),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithRetryPolicy(RetryPolicy{MaxAttempts: 5, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}),
	}
}

func newSQLiteStore(t *testing.T) *storage.SQLStore {
	t.Helper()
	store, err := storage.Open(context.Background(), storage.DriverSQLite, storage.SQLiteDSN(filepath.Join(t.TempDir(), "shop.db")))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newFixture(t *testing.T, cache port.CartCache, idem port.IdempotencyStore, extra ...Option) *fixture {
	t.Helper()
	store := newSQLiteStore(t)
	if cache == nil {
		cache = storage.NopCartCache{}
	}
	opts := append(testOptions(), extra...)
	return &fixture{
		store:    store,
		carts:    NewCartService(store, cache, opts...),
		checkout: NewCheckoutService(store, cache, idem, opts...),
		orders:   NewOrderService(store),
		catalog:  NewCatalogService(store, opts...),
	}
}

func (f *fixture) product(t *testing.T, id int64, price, category string, stock int) {
	t.Helper()
	require.NoError(t, f.catalog.UpsertProduct(context.Background(), domain.Product{
		ID:       id,
		Name:     fmt.Sprintf("product-%d", id),
		Price:    decimal.RequireFromString(price),
		Category: category,
		Stock:    stock,
	}))
}

func (f *fixture) stock(t *testing.T, id int64) int {
	t.Helper()
	p, err := f.catalog.GetProduct(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func validCheckout(userID string) CheckoutRequest {
	return CheckoutRequest{
		UserID:       userID,
		Address:      "Calle Mayor 12, Madrid",
		PaymentToken: "4111111111111111",
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
