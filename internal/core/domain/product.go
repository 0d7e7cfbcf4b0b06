package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ReducedRateCategory is taxed at the reduced rate; every other category pays the standard rate.
const ReducedRateCategory = "Electrónica"

type Product struct {
	ID          int64
	Name        string
	Description string
	Price       decimal.Decimal
	Category    string
	Stock       int
	Image       string
	Version     int // bumped on every stock change
	UpdatedAt   time.Time
}

// PriceScale is the number of decimal places a catalog price may carry.
const PriceScale = 2

// Validate checks the fields every catalog write needs. Prices are limited to
// whole cents so every store keeps them exactly.
func (p Product) Validate() error {
	switch {
	case p.ID <= 0:
		return fmt.Errorf("product id must be positive, got %d: %w", p.ID, ErrInvalidInput)
	case p.Name == "":
		return fmt.Errorf("product %d needs a name: %w", p.ID, ErrInvalidInput)
	case p.Price.IsNegative():
		return fmt.Errorf("product %d price %s is negative: %w", p.ID, p.Price, ErrInvalidInput)
	case !p.Price.Equal(p.Price.Round(PriceScale)):
		return fmt.Errorf("product %d price %s has more than %d decimals: %w", p.ID, p.Price, PriceScale, ErrInvalidInput)
	case p.Stock < 0:
		return fmt.Errorf("product %d stock %d is negative: %w", p.ID, p.Stock, ErrInvalidInput)
	}
	return nil
}

type ProductFilter struct {
	Category string
	Search   string
}
