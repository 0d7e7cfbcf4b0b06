package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is written once at checkout and never mutated.
type Order struct {
	ID           string
	UserID       string
	Address      string
	PaymentToken string
	Subtotal     decimal.Decimal
	Tax          decimal.Decimal
	Shipping     decimal.Decimal
	Total        decimal.Decimal
	Lines        []OrderLine
	CreatedAt    time.Time
}

// OrderLine snapshots the product name and unit price at purchase time.
type OrderLine struct {
	OrderID   string
	ProductID int64
	Quantity  int
	Name      string
	UnitPrice decimal.Decimal
}

func (l OrderLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type OrderSummary struct {
	ID        string
	CreatedAt time.Time
	Total     decimal.Decimal
	Shipping  decimal.Decimal
	LineCount int
}
