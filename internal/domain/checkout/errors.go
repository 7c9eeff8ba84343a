package checkout

import (
	"fmt"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront-checkout/internal/domain/coupon"
	"github.com/xenking/storefront-checkout/internal/domain/pricing"
)

// Rejections. None of them leaves any state behind.
var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrEmptySelection  = errors.New("no cart lines selected")
	ErrNoValidLines    = errors.New("none of the selected cart lines belong to the user")
)

// InvalidCustomerError indicates missing or malformed contact or delivery
// information.
type InvalidCustomerError struct {
	Field  string
	Reason string
}

func (e *InvalidCustomerError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// CheckoutFailedError indicates that the atomic commit did not complete.
// Nothing was written and the request may be retried.
type CheckoutFailedError struct {
	Err error
}

func (e *CheckoutFailedError) Error() string {
	return fmt.Sprintf("checkout failed: %v", e.Err)
}

func (e *CheckoutFailedError) Unwrap() error {
	return e.Err
}

// IsRejection reports whether err is a validation failure detected before
// anything was written, as opposed to a storage failure.
func IsRejection(err error) bool {
	if errors.Is(err, ErrUnauthenticated) ||
		errors.Is(err, ErrEmptySelection) ||
		errors.Is(err, ErrNoValidLines) ||
		errors.Is(err, coupon.ErrConflictingCoupons) {
		return true
	}
	var (
		lineErr     *pricing.InvalidLineError
		customerErr *InvalidCustomerError
	)
	return errors.As(err, &lineErr) || errors.As(err, &customerErr)
}
