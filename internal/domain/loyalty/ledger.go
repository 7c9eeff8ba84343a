// Package loyalty holds the per-user loyalty ledger: accumulated spend that
// has not yet been turned into a threshold coupon, and the one-time new-user
// credit flag.
package loyalty

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrUserNotFound is returned when no ledger exists for the user.
	ErrUserNotFound = errors.New("user not found")
	// ErrConflict is returned when the ledger changed between read and write.
	ErrConflict = errors.New("ledger was modified concurrently")
	// ErrNegativeAmount is returned when an accrual would be negative.
	ErrNegativeAmount = errors.New("accrued amount must not be negative")
)

// Ledger is the loyalty state owned by the user aggregate.
//
// NewUserCouponUsed only ever moves from false to true. AccumulatedAmount is
// never negative. Version is the optimistic concurrency token of the row it
// was read from.
type Ledger struct {
	AccumulatedAmount decimal.Decimal
	NewUserCouponUsed bool
	Version           int64
}

// Delta is a pending change to a Ledger, computed before anything is written.
type Delta struct {
	// ConsumeNewUserCredit marks the new-user credit as used.
	ConsumeNewUserCredit bool
	// ResetAccumulated sets the accumulated amount to exactly zero.
	ResetAccumulated bool
	// Accrue is added to the accumulated amount when ResetAccumulated is false.
	Accrue decimal.Decimal
}

// Apply returns the ledger after the delta. The receiver is not modified and
// the version is carried over unchanged; storage bumps it on write.
func (l Ledger) Apply(d Delta) (Ledger, error) {
	next := l
	if d.ConsumeNewUserCredit {
		next.NewUserCouponUsed = true
	}
	switch {
	case d.ResetAccumulated:
		next.AccumulatedAmount = decimal.Zero
	case d.Accrue.IsNegative():
		return Ledger{}, ErrNegativeAmount
	default:
		next.AccumulatedAmount = l.AccumulatedAmount.Add(d.Accrue)
	}
	return next, nil
}
