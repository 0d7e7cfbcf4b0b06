package storage

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/shopspring/decimal"

	"github.com/rl1809/cart-checkout/internal/core/domain"
)

type seedProduct struct {
	ID          int64           `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	Stock       int             `json:"stock"`
	Image       string          `json:"image"`
}

// DecodeSeed reads a JSON array of catalog entries.
func DecodeSeed(r io.Reader) ([]domain.Product, error) {
	var raw []seedProduct
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode seed: %w", err)
	}

	products := make([]domain.Product, 0, len(raw))
	for _, sp := range raw {
		p := domain.Product{
			ID:          sp.ID,
			Name:        sp.Title,
			Description: sp.Description,
			Price:       sp.Price,
			Category:    sp.Category,
			Stock:       sp.Stock,
			Image:       sp.Image,
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("seed entry: %w", err)
		}
		products = append(products, p)
	}
	return products, nil
}

func LoadSeedFile(path string) ([]domain.Product, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()
	return DecodeSeed(f)
}
