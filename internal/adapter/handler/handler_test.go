package handler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/cart-checkout/internal/adapter/storage"
	"github.com/rl1809/cart-checkout/internal/core/domain"
	"github.com/rl1809/cart-checkout/internal/core/service"
)

type services struct {
	store    *storage.SQLStore
	carts    *service.CartService
	checkout *service.CheckoutService
	orders   *service.OrderService
	catalog  *service.CatalogService
	logger   *slog.Logger
}

func newServices(t *testing.T) *services {
	t.Helper()
	ctx := context.Background()
	store, err := storage.Open(ctx, storage.DriverSQLite, storage.SQLiteDSN(filepath.Join(t.TempDir(), "shop.db")))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts := []service.Option{service.WithLogger(logger)}
	s := &services{
		store:    store,
		carts:    service.NewCartService(store, storage.NopCartCache{}, opts...),
		checkout: service.NewCheckoutService(store, storage.NopCartCache{}, nil, opts...),
		orders:   service.NewOrderService(store),
		catalog:  service.NewCatalogService(store, opts...),
		logger:   logger,
	}

	_, err = s.catalog.Seed(ctx, []domain.Product{
		{ID: 1, Name: "Lámpara", Description: "LED desk lamp", Price: decimal.RequireFromString("100"), Category: "Hogar", Stock: 1},
		{ID: 2, Name: "Auriculares", Description: "Bluetooth", Price: decimal.RequireFromString("59.99"), Category: domain.ReducedRateCategory, Stock: 10},
	})
	require.NoError(t, err)
	return s
}

var errBusyForTest = fmt.Errorf("%w: lock wait timeout", domain.ErrBusy)
