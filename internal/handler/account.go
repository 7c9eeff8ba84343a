package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront-checkout/internal/domain/auth"
	"github.com/xenking/storefront-checkout/internal/domain/loyalty"
)

// Me returns the caller's profile and loyalty ledger, which the client uses
// to decide which coupons to offer.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	acc, err := h.Accounts.Get(r.Context(), id.UserID)
	switch {
	case errors.Is(err, loyalty.ErrUserNotFound):
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	case err != nil:
		internalError(w, r, "Get account", err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.Field("id", func(e *jx.Encoder) { e.Str(acc.ID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(acc.Name) })
		e.Field("email", func(e *jx.Encoder) { e.Str(acc.Email) })
		e.Field("phone", func(e *jx.Encoder) { e.Str(acc.Phone) })
		e.Field("address", func(e *jx.Encoder) { e.Str(acc.Address) })
		e.Field("newUserUsed", func(e *jx.Encoder) { e.Bool(acc.Ledger.NewUserCouponUsed) })
		e.Field("accumulatedAmount", func(e *jx.Encoder) { money(e, acc.Ledger.AccumulatedAmount) })
		e.ObjEnd()
	})
}
