package coupon

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-checkout/internal/domain/loyalty"
)

// Evaluate decides the discount for an order with the given subtotal and the
// resulting ledger change.
//
// Conflicting threshold coupons fail before anything else is computed. The
// threshold check uses the existing accumulated amount plus this order's
// subtotal, so a single order may cross a threshold. A requested threshold
// coupon that is not yet reached is ignored and the subtotal accrues instead.
func Evaluate(subtotal decimal.Decimal, ledger loyalty.Ledger, sel Selection) (Outcome, error) {
	if err := sel.Validate(); err != nil {
		return Outcome{}, err
	}

	out := Outcome{Discount: decimal.Zero}

	if sel.NewUser && !ledger.NewUserCouponUsed {
		out.Discount = out.Discount.Add(NewUserCredit)
		out.NewUserApplied = true
		out.Delta.ConsumeNewUserCredit = true
	}

	withCurrent := ledger.AccumulatedAmount.Add(subtotal)
	switch {
	case sel.Threshold100 && withCurrent.GreaterThanOrEqual(Threshold100Minimum):
		out.Discount = out.Discount.Add(Threshold100Amount)
		out.Threshold = Threshold100
		out.Delta.ResetAccumulated = true
	case sel.Threshold50 && withCurrent.GreaterThanOrEqual(Threshold50Minimum):
		out.Discount = out.Discount.Add(Threshold50Amount)
		out.Threshold = Threshold50
		out.Delta.ResetAccumulated = true
	default:
		out.Delta.Accrue = subtotal
	}

	total := subtotal.Sub(out.Discount)
	if total.IsNegative() {
		total = decimal.Zero
	}
	out.Total = total.Round(2)
	out.Discount = out.Discount.Round(2)

	next, err := ledger.Apply(out.Delta)
	if err != nil {
		return Outcome{}, err
	}
	out.Ledger = next

	return out, nil
}
