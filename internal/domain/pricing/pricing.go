// Package pricing turns requested lines and catalog pricing into per-line
// frozen unit prices and an order subtotal. Everything here is pure.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-checkout/internal/domain/product"
)

var hundred = decimal.NewFromInt(100)

// Line is a requested product and quantity.
type Line struct {
	LineID    int64
	ProductID int64
	Quantity  int
}

// PricedLine is a Line with its unit price fixed at calculation time.
type PricedLine struct {
	Line
	ProductName     string
	ListPrice       decimal.Decimal
	DiscountPercent int
	UnitPrice       decimal.Decimal
	Total           decimal.Decimal
}

// Quote is the result of pricing a set of lines.
type Quote struct {
	Lines    []PricedLine
	Subtotal decimal.Decimal
}

// InvalidLineError indicates a line that cannot be priced: its quantity is
// not positive or its product no longer exists.
type InvalidLineError struct {
	LineID    int64
	ProductID int64
	Reason    string
}

func (e *InvalidLineError) Error() string {
	if e.LineID != 0 {
		return fmt.Sprintf("invalid cart line %d (product %d): %s", e.LineID, e.ProductID, e.Reason)
	}
	return fmt.Sprintf("invalid line for product %d: %s", e.ProductID, e.Reason)
}

// Reasons reported by InvalidLineError.
const (
	ReasonQuantity        = "quantity must be greater than 0"
	ReasonProductNotFound = "product not found"
	ReasonDiscountRange   = "discount percent out of range"
)

// EffectiveUnitPrice returns price*(1-discount/100) when the discount is
// positive, else price, rounded to cents.
func EffectiveUnitPrice(p product.Pricing) decimal.Decimal {
	if p.DiscountPercent <= 0 {
		return p.Price.Round(2)
	}
	factor := hundred.Sub(decimal.NewFromInt(int64(p.DiscountPercent))).Div(hundred)
	return p.Price.Mul(factor).Round(2)
}

// Calculate prices every line against the catalog snapshot. Lines keep their
// input order.
func Calculate(lines []Line, catalog map[int64]product.Pricing) (Quote, error) {
	q := Quote{
		Lines:    make([]PricedLine, 0, len(lines)),
		Subtotal: decimal.Zero,
	}
	for _, l := range lines {
		if l.Quantity <= 0 {
			return Quote{}, &InvalidLineError{LineID: l.LineID, ProductID: l.ProductID, Reason: ReasonQuantity}
		}
		p, ok := catalog[l.ProductID]
		if !ok {
			return Quote{}, &InvalidLineError{LineID: l.LineID, ProductID: l.ProductID, Reason: ReasonProductNotFound}
		}
		if p.DiscountPercent < 0 || p.DiscountPercent > 100 {
			return Quote{}, &InvalidLineError{LineID: l.LineID, ProductID: l.ProductID, Reason: ReasonDiscountRange}
		}

		unit := EffectiveUnitPrice(p)
		total := unit.Mul(decimal.NewFromInt(int64(l.Quantity)))
		q.Lines = append(q.Lines, PricedLine{
			Line:            l,
			ProductName:     p.Name,
			ListPrice:       p.Price,
			DiscountPercent: p.DiscountPercent,
			UnitPrice:       unit,
			Total:           total,
		})
		q.Subtotal = q.Subtotal.Add(total)
	}
	return q, nil
}
