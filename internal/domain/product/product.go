package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item available for purchase.
type Product struct {
	ID              int64
	Name            string
	Price           decimal.Decimal
	DiscountPercent int
	Category        string
	ImageURL        string
}

// Pricing returns the read-only pricing snapshot of the product.
func (p Product) Pricing() Pricing {
	return Pricing{
		ProductID:       p.ID,
		Name:            p.Name,
		Price:           p.Price,
		DiscountPercent: p.DiscountPercent,
	}
}

// Pricing is the catalog's price and discount for a single product, as seen
// at the moment it was read.
type Pricing struct {
	ProductID       int64
	Name            string
	Price           decimal.Decimal
	DiscountPercent int
}

// Catalog reads pricing snapshots by product id.
type Catalog interface {
	GetPricing(ctx context.Context, id int64) (Pricing, error)
}

// Repository defines read operations for the product catalog.
type Repository interface {
	Catalog
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id int64) (*Product, error)
}
