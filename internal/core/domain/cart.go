package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type CartState string

const (
	CartStateActive  CartState = "active"
	CartStateCleared CartState = "cleared"
)

type Cart struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	State     CartState  `json:"state"`
	Lines     []CartLine `json:"lines"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// CartLine is unique per (cart, product); quantity is always >= 1.
type CartLine struct {
	CartID    string    `json:"cart_id"`
	ProductID int64     `json:"product_id"`
	Quantity  int       `json:"quantity"`
	AddedAt   time.Time `json:"added_at"`
}

// CartView is a cart priced against the current catalog.
type CartView struct {
	Lines    []CartViewLine
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Shipping decimal.Decimal
	Total    decimal.Decimal
}

type CartViewLine struct {
	ProductID      int64
	Name           string
	Category       string
	UnitPrice      decimal.Decimal
	Quantity       int
	Subtotal       decimal.Decimal
	AvailableStock int
	Image          string
}
