// Package checkout converts selected cart lines into an immutable order while
// updating the user's loyalty ledger, all in one atomic unit of work.
package checkout

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-checkout/internal/domain/cart"
	"github.com/xenking/storefront-checkout/internal/domain/coupon"
	"github.com/xenking/storefront-checkout/internal/domain/loyalty"
	"github.com/xenking/storefront-checkout/internal/domain/order"
	"github.com/xenking/storefront-checkout/internal/domain/product"
)

// Tx is the set of operations available inside a checkout unit of work.
// Everything written through a Tx is committed together or not at all.
type Tx interface {
	// LockLedger reads the user's ledger and holds it exclusively until the
	// unit of work ends.
	LockLedger(ctx context.Context, userID string) (loyalty.Ledger, error)
	// ListLines returns the subset of ids owned by the user.
	ListLines(ctx context.Context, userID string, ids []int64) ([]cart.Line, error)
	// GetPricings returns pricing for the products that exist.
	GetPricings(ctx context.Context, productIDs []int64) (map[int64]product.Pricing, error)
	CreateOrder(ctx context.Context, o *order.Order) error
	DeleteLines(ctx context.Context, userID string, ids []int64) error
	// SaveLedger writes next, failing with loyalty.ErrConflict when the
	// stored ledger is no longer prev.
	SaveLedger(ctx context.Context, userID string, prev, next loyalty.Ledger) error
}

// Store runs units of work. Implementations may call fn more than once when
// a unit of work is aborted by contention; only the last call commits.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Notifier is told about committed orders. It is best-effort.
type Notifier interface {
	NotifyOrderPlaced(ctx context.Context, p order.Placed) error
}

// Request is the input of Checkout.
type Request struct {
	UserID string
	// LineIDs are the selected cart lines.
	LineIDs []int64
	// Quantities overrides the quantity of selected lines for this checkout.
	Quantities map[int64]int
	Coupons    coupon.Selection
	Customer   order.Customer
}

// Result is the outcome of a successful checkout.
type Result struct {
	OrderID    string
	Subtotal   decimal.Decimal
	Discount   decimal.Decimal
	TotalPrice decimal.Decimal

	NewUserCouponUsed bool
	AccumulatedAmount decimal.Decimal

	Order *order.Order
}
