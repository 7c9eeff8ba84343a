package coupon

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-checkout/internal/domain/loyalty"
)

// Threshold identifies which accumulated-spend coupon was applied, if any.
type Threshold string

const (
	// ThresholdNone means no threshold coupon was applied.
	ThresholdNone Threshold = ""
	// Threshold50 is the coupon unlocked at $50 of accumulated spend.
	Threshold50 Threshold = "50"
	// Threshold100 is the coupon unlocked at $100 of accumulated spend.
	Threshold100 Threshold = "100"
)

var (
	// NewUserCredit is the one-time discount for a user's first use.
	NewUserCredit = decimal.NewFromInt(5)
	// Threshold50Minimum is the accumulated spend unlocking Threshold50.
	Threshold50Minimum = decimal.NewFromInt(50)
	// Threshold50Amount is the discount granted by Threshold50.
	Threshold50Amount = decimal.NewFromInt(5)
	// Threshold100Minimum is the accumulated spend unlocking Threshold100.
	Threshold100Minimum = decimal.NewFromInt(100)
	// Threshold100Amount is the discount granted by Threshold100.
	Threshold100Amount = decimal.NewFromInt(10)
)

// ErrConflictingCoupons is returned when both threshold coupons are requested.
var ErrConflictingCoupons = errors.New("the $50 and $100 coupons cannot be combined")

// Selection holds the coupons the customer asked to use.
type Selection struct {
	NewUser      bool
	Threshold50  bool
	Threshold100 bool
}

// Validate rejects mutually exclusive selections.
func (s Selection) Validate() error {
	if s.Threshold50 && s.Threshold100 {
		return ErrConflictingCoupons
	}
	return nil
}

// Outcome is the decision of the policy for one order.
type Outcome struct {
	Discount decimal.Decimal
	Total    decimal.Decimal
	// NewUserApplied reports whether the new-user credit was granted.
	NewUserApplied bool
	// Threshold is the threshold coupon that was granted.
	Threshold Threshold
	// Delta is the change to apply to the ledger.
	Delta loyalty.Delta
	// Ledger is the ledger after Delta.
	Ledger loyalty.Ledger
}
