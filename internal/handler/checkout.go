package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront-checkout/internal/domain/auth"
	"github.com/xenking/storefront-checkout/internal/domain/checkout"
	"github.com/xenking/storefront-checkout/internal/domain/order"
	idem "github.com/xenking/storefront-checkout/internal/storage/redis"
)

const (
	// HeaderIdempotencyKey makes a checkout replayable.
	HeaderIdempotencyKey = "Idempotency-Key"
	// HeaderReplayed is set on responses served from the idempotency store.
	HeaderReplayed = "Idempotent-Replayed"

	maxIdempotencyKey = 255
)

// Checkout turns the selected cart lines into an order.
//
// With an Idempotency-Key header the first response for the key is stored
// and replayed for repeated requests; a duplicate arriving while the first
// is still running gets 409. Transient failures are not stored, so the
// client can retry with the same key.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, _ := auth.FromContext(ctx)

	req, err := decodeCheckout(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.UserID = id.UserID

	key := strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))
	if len(key) > maxIdempotencyKey {
		writeError(w, http.StatusBadRequest, "Idempotency-Key is too long")
		return
	}
	if key == "" || h.Idempotency == nil {
		h.respond(w, h.placeOrder(ctx, req))
		return
	}

	stored, err := h.Idempotency.Begin(ctx, id.UserID, key)
	switch {
	case errors.Is(err, idem.ErrInProgress):
		writeError(w, http.StatusConflict, "a request with this Idempotency-Key is in progress")
		return
	case err != nil:
		zctx.From(ctx).Error("Idempotency store unavailable", zap.Error(err))
		h.writeRetryAfter(w)
		writeError(w, http.StatusServiceUnavailable, "checkout could not be completed, please retry")
		return
	case stored != nil:
		w.Header().Set(HeaderReplayed, "true")
		writeRaw(w, stored.Status, stored.Body)
		return
	}

	resp := h.placeOrder(ctx, req)
	// The order may be committed even if the client went away.
	storeCtx := context.WithoutCancel(ctx)
	if resp.Status >= http.StatusInternalServerError {
		err = h.Idempotency.Abort(storeCtx, id.UserID, key)
	} else {
		err = h.Idempotency.Finish(storeCtx, id.UserID, key, resp)
	}
	if err != nil {
		zctx.From(ctx).Warn("Idempotency record not saved", zap.String("key", key), zap.Error(err))
	}
	h.respond(w, resp)
}

func (h *Handler) respond(w http.ResponseWriter, resp idem.Response) {
	if resp.Status == http.StatusServiceUnavailable {
		h.writeRetryAfter(w)
	}
	writeRaw(w, resp.Status, resp.Body)
}

func (h *Handler) placeOrder(ctx context.Context, req checkout.Request) idem.Response {
	res, err := h.Service.Checkout(ctx, req)
	if err != nil {
		status, msg := checkoutStatus(err)
		if status >= http.StatusInternalServerError {
			zctx.From(ctx).Error("Checkout failed", zap.Error(err))
		}
		return idem.Response{Status: status, Body: errorBody(status, msg)}
	}

	return idem.Response{Status: http.StatusCreated, Body: render(func(e *jx.Encoder) {
		e.ObjStart()
		e.Field("orderId", func(e *jx.Encoder) { e.Str(res.OrderID) })
		e.Field("subtotal", func(e *jx.Encoder) { money(e, res.Subtotal) })
		e.Field("discount", func(e *jx.Encoder) { money(e, res.Discount) })
		e.Field("totalPrice", func(e *jx.Encoder) { money(e, res.TotalPrice) })
		e.Field("newUserCouponUsed", func(e *jx.Encoder) { e.Bool(res.NewUserCouponUsed) })
		e.Field("accumulatedAmount", func(e *jx.Encoder) { money(e, res.AccumulatedAmount) })
		e.Field("order", func(e *jx.Encoder) { encodeOrder(e, res.Order) })
		e.ObjEnd()
	})}
}

func decodeCheckout(r *http.Request) (checkout.Request, error) {
	var req checkout.Request
	err := decodeObject(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "customerName":
			req.Customer.Name, err = d.Str()
		case "customerEmail":
			req.Customer.Email, err = d.Str()
		case "deliveryMethod":
			var m string
			m, err = d.Str()
			req.Customer.DeliveryMethod = order.DeliveryMethod(m)
		case "shippingAddress":
			if d.Next() == jx.Null {
				return d.Null()
			}
			req.Customer.ShippingAddress, err = d.Str()
		case "contactPhone":
			req.Customer.ContactPhone, err = d.Str()
		case "useNewUserCoupon":
			req.Coupons.NewUser, err = d.Bool()
		case "use50Coupon":
			req.Coupons.Threshold50, err = d.Bool()
		case "use100Coupon":
			req.Coupons.Threshold100, err = d.Bool()
		case "items":
			err = d.Arr(func(d *jx.Decoder) error {
				return decodeItem(d, &req)
			})
		default:
			err = d.Skip()
		}
		return err
	})
	return req, err
}

// decodeItem reads {cartLineId, quantity}. A present quantity overrides the
// quantity stored on the cart line.
func decodeItem(d *jx.Decoder, req *checkout.Request) error {
	var (
		lineID   int64
		quantity int
		override bool
	)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "cartLineId":
			lineID, err = d.Int64()
		case "quantity":
			quantity, err = d.Int()
			override = true
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		return err
	}
	if lineID <= 0 {
		return errors.New("cartLineId is required")
	}

	req.LineIDs = append(req.LineIDs, lineID)
	if override {
		if req.Quantities == nil {
			req.Quantities = make(map[int64]int)
		}
		req.Quantities[lineID] = quantity
	}
	return nil
}
