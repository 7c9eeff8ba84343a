package handler

import (
	"net/http"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront-checkout/internal/domain/checkout"
	"github.com/xenking/storefront-checkout/internal/domain/coupon"
	"github.com/xenking/storefront-checkout/internal/domain/pricing"
)

// checkoutStatus maps a checkout error to an HTTP status and client message.
func checkoutStatus(err error) (int, string) {
	var (
		lineErr     *pricing.InvalidLineError
		customerErr *checkout.InvalidCustomerError
		failedErr   *checkout.CheckoutFailedError
	)
	switch {
	case errors.Is(err, checkout.ErrUnauthenticated):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, checkout.ErrEmptySelection),
		errors.Is(err, coupon.ErrConflictingCoupons),
		errors.As(err, &customerErr):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, checkout.ErrNoValidLines), errors.As(err, &lineErr):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.As(err, &failedErr):
		return http.StatusServiceUnavailable, "checkout could not be completed, please retry"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func (h *Handler) writeRetryAfter(w http.ResponseWriter) {
	w.Header().Set("Retry-After", strconv.Itoa(h.retryAfter))
}

// internalError logs err and answers 500 without leaking details.
func internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	zctx.From(r.Context()).Error(msg, zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}
