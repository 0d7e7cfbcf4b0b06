package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rl1809/cart-checkout/internal/core/domain"
	"github.com/rl1809/cart-checkout/internal/port"
)

type CatalogService struct {
	tx   port.Transactor
	opts options
	log  *slog.Logger
}

func NewCatalogService(tx port.Transactor, opts ...Option) *CatalogService {
	o := buildOptions(opts)
	return &CatalogService{tx: tx, opts: o, log: o.logger.With("component", "catalog_service")}
}

func (s *CatalogService) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	return s.tx.Repositories().Catalog.GetProduct(ctx, id)
}

func (s *CatalogService) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	return s.tx.Repositories().Catalog.ListProducts(ctx, filter)
}

// UpsertProduct restocks or reprices a product. Orders already placed keep
// their snapshot prices.
func (s *CatalogService) UpsertProduct(ctx context.Context, p domain.Product) error {
	if err := p.Validate(); err != nil {
		return err
	}
	p.UpdatedAt = s.opts.now().UTC()
	return inTx(ctx, s.tx, s.opts.retry, func(ctx context.Context, repos port.Repositories) error {
		return repos.Catalog.UpsertProduct(ctx, p)
	})
}

// Seed loads products into an empty catalog. A catalog that already has
// products is left untouched and Seed reports 0.
func (s *CatalogService) Seed(ctx context.Context, products []domain.Product) (int, error) {
	seeded := 0
	err := inTx(ctx, s.tx, s.opts.retry, func(ctx context.Context, repos port.Repositories) error {
		seeded = 0
		n, err := repos.Catalog.CountProducts(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			return nil
		}

		now := s.opts.now().UTC()
		for _, p := range products {
			if err := p.Validate(); err != nil {
				return err
			}
			p.UpdatedAt = now
			if err := repos.Catalog.UpsertProduct(ctx, p); err != nil {
				return fmt.Errorf("seed product %d: %w", p.ID, err)
			}
			seeded++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if seeded > 0 {
		s.log.Info("catalog seeded", "products", seeded)
	}
	return seeded, nil
}
