package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront-checkout/internal/domain/auth"
	"github.com/xenking/storefront-checkout/internal/domain/order"
)

// MyOrders lists the caller's orders, newest first.
func (h *Handler) MyOrders(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	orders, err := h.Orders.ListByUser(r.Context(), id.UserID)
	if err != nil {
		internalError(w, r, "List orders", err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for i := range orders {
			encodeOrder(e, &orders[i])
		}
		e.ArrEnd()
	})
}

// UpdateOrderStatus sets the administrative status of an order.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var status order.Status
	err := decodeObject(r, func(d *jx.Decoder, key string) error {
		if key != "status" {
			return d.Skip()
		}
		s, err := d.Str()
		status = order.Status(s)
		return err
	})
	if err == nil {
		err = status.Validate()
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id := chi.URLParam(r, "id")
	h.respondUpdated(w, r, id, h.Orders.UpdateStatus(r.Context(), id, status))
}

// UpdateOrderShipping sets the courier and tracking number of an order.
// Omitted fields are left unchanged.
func (h *Handler) UpdateOrderShipping(w http.ResponseWriter, r *http.Request) {
	var s order.Shipping
	err := decodeObject(r, func(d *jx.Decoder, key string) error {
		var target **string
		switch key {
		case "courier":
			target = &s.Courier
		case "trackingNumber":
			target = &s.TrackingNumber
		default:
			return d.Skip()
		}
		v, err := d.Str()
		*target = &v
		return err
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id := chi.URLParam(r, "id")
	h.respondUpdated(w, r, id, h.Orders.UpdateShipping(r.Context(), id, s))
}

func (h *Handler) respondUpdated(w http.ResponseWriter, r *http.Request, id string, err error) {
	if err == nil {
		var o *order.Order
		if o, err = h.Orders.Get(r.Context(), id); err == nil {
			writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
			return
		}
	}
	if errors.Is(err, order.ErrNotFound) {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	internalError(w, r, "Update order", err)
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.Field("id", func(e *jx.Encoder) { e.Str(o.ID) })
	e.Field("userId", func(e *jx.Encoder) { e.Str(o.UserID) })
	e.Field("createdAt", func(e *jx.Encoder) { timestamp(e, o.CreatedAt) })
	e.Field("customerName", func(e *jx.Encoder) { e.Str(o.Customer.Name) })
	e.Field("customerEmail", func(e *jx.Encoder) { e.Str(o.Customer.Email) })
	e.Field("deliveryMethod", func(e *jx.Encoder) { e.Str(string(o.Customer.DeliveryMethod)) })
	if o.Customer.ShippingAddress != "" {
		e.Field("shippingAddress", func(e *jx.Encoder) { e.Str(o.Customer.ShippingAddress) })
	}
	e.Field("contactPhone", func(e *jx.Encoder) { e.Str(o.Customer.ContactPhone) })
	e.Field("subtotal", func(e *jx.Encoder) { money(e, o.Subtotal) })
	e.Field("discount", func(e *jx.Encoder) { money(e, o.Discount) })
	e.Field("totalPrice", func(e *jx.Encoder) { money(e, o.TotalPrice) })
	e.Field("newUserCouponApplied", func(e *jx.Encoder) { e.Bool(o.NewUserCouponApplied) })
	e.Field("thresholdCoupon", func(e *jx.Encoder) { e.Str(o.ThresholdCoupon) })
	e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
	e.Field("courier", func(e *jx.Encoder) { e.Str(o.Courier) })
	e.Field("trackingNumber", func(e *jx.Encoder) { e.Str(o.TrackingNumber) })
	e.Field("items", func(e *jx.Encoder) {
		e.ArrStart()
		for _, it := range o.Items {
			e.ObjStart()
			e.Field("productId", func(e *jx.Encoder) { e.Int64(it.ProductID) })
			e.Field("productName", func(e *jx.Encoder) { e.Str(it.ProductName) })
			e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
			e.Field("unitPrice", func(e *jx.Encoder) { money(e, it.UnitPrice) })
			e.Field("lineTotal", func(e *jx.Encoder) { money(e, it.LineTotal()) })
			e.ObjEnd()
		}
		e.ArrEnd()
	})
	e.ObjEnd()
}
