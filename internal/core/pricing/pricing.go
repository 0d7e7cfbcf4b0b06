// Package pricing turns (unit price, quantity, category) tuples into order totals.
// The same function prices the live cart and the checkout, so the displayed
// total always equals the charged total for an unchanged catalog.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/rl1809/cart-checkout/internal/core/domain"
)

var (
	StandardTaxRate       = decimal.RequireFromString("0.21")
	ReducedTaxRate        = decimal.RequireFromString("0.10")
	FreeShippingThreshold = decimal.NewFromInt(1000)
	FlatShipping          = decimal.NewFromInt(50)
)

type Item struct {
	UnitPrice decimal.Decimal
	Quantity  int
	Category  string
}

type Totals struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Shipping decimal.Decimal
	Total    decimal.Decimal
}

func Calculate(items []Item) Totals {
	subtotal := decimal.Zero
	tax := decimal.Zero

	for _, item := range items {
		line := LineSubtotal(item)
		subtotal = subtotal.Add(line)
		tax = tax.Add(LineTax(item.Category, line))
	}

	shipping := Shipping(subtotal)

	return Totals{
		Subtotal: subtotal,
		Tax:      tax,
		Shipping: shipping,
		Total:    subtotal.Add(tax).Add(shipping),
	}
}

func LineSubtotal(item Item) decimal.Decimal {
	return item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
}

// LineTax is exact; with prices in whole cents it carries at most four
// decimals. Rounding to cents happens only when an amount is rendered.
func LineTax(category string, lineSubtotal decimal.Decimal) decimal.Decimal {
	rate := StandardTaxRate
	if category == domain.ReducedRateCategory {
		rate = ReducedTaxRate
	}
	return lineSubtotal.Mul(rate)
}

func Shipping(subtotal decimal.Decimal) decimal.Decimal {
	switch {
	case subtotal.GreaterThan(FreeShippingThreshold):
		return decimal.Zero
	case subtotal.IsPositive():
		return FlatShipping
	default:
		return decimal.Zero
	}
}
