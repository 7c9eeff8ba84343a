package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront-checkout/internal/domain/auth"
	"github.com/xenking/storefront-checkout/internal/domain/cart"
	"github.com/xenking/storefront-checkout/internal/domain/product"
)

// ListCart returns the caller's cart lines.
func (h *Handler) ListCart(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	lines, err := h.Carts.List(r.Context(), id.UserID)
	if err != nil {
		internalError(w, r, "List cart", err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for _, l := range lines {
			encodeLine(e, l)
		}
		e.ArrEnd()
	})
}

// AddToCart adds a product to the caller's cart, incrementing an existing
// line for the same product. Quantity defaults to 1.
func (h *Handler) AddToCart(w http.ResponseWriter, r *http.Request) {
	var (
		productID int64
		quantity  = 1
	)
	err := decodeObject(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "productId":
			productID, err = d.Int64()
		case "quantity":
			quantity, err = d.Int()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if productID <= 0 {
		writeError(w, http.StatusBadRequest, "productId is required")
		return
	}

	id, _ := auth.FromContext(r.Context())
	line, err := h.Carts.Add(r.Context(), id.UserID, productID, quantity)
	switch {
	case errors.Is(err, cart.ErrInvalidQuantity):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, product.ErrNotFound):
		writeError(w, http.StatusNotFound, "product not found")
		return
	case err != nil:
		internalError(w, r, "Add to cart", err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeLine(e, *line) })
}

// IncrementCartLine adds one to the quantity of a cart line.
func (h *Handler) IncrementCartLine(w http.ResponseWriter, r *http.Request) {
	h.changeLine(w, r, func(ctx context.Context, userID string, lineID int64) (*cart.Line, error) {
		return h.Carts.Adjust(ctx, userID, lineID, 1)
	})
}

// DecrementCartLine removes one from the quantity of a cart line. A line
// never drops below 1; use RemoveCartLine to delete it.
func (h *Handler) DecrementCartLine(w http.ResponseWriter, r *http.Request) {
	h.changeLine(w, r, func(ctx context.Context, userID string, lineID int64) (*cart.Line, error) {
		return h.Carts.Adjust(ctx, userID, lineID, -1)
	})
}

// UpdateCartLine sets the quantity of a cart line from the quantity query
// parameter.
func (h *Handler) UpdateCartLine(w http.ResponseWriter, r *http.Request) {
	quantity, err := strconv.Atoi(r.URL.Query().Get("quantity"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "quantity must be an integer")
		return
	}
	h.changeLine(w, r, func(ctx context.Context, userID string, lineID int64) (*cart.Line, error) {
		return h.Carts.SetQuantity(ctx, userID, lineID, quantity)
	})
}

// RemoveCartLine deletes a cart line.
func (h *Handler) RemoveCartLine(w http.ResponseWriter, r *http.Request) {
	lineID, ok := parseID(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid cart line id")
		return
	}
	id, _ := auth.FromContext(r.Context())
	err := h.Carts.Remove(r.Context(), id.UserID, lineID)
	switch {
	case errors.Is(err, cart.ErrLineNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		internalError(w, r, "Remove cart line", err)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) changeLine(w http.ResponseWriter, r *http.Request,
	change func(ctx context.Context, userID string, lineID int64) (*cart.Line, error),
) {
	lineID, ok := parseID(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid cart line id")
		return
	}
	id, _ := auth.FromContext(r.Context())
	line, err := change(r.Context(), id.UserID, lineID)
	switch {
	case errors.Is(err, cart.ErrInvalidQuantity):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, cart.ErrLineNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		internalError(w, r, "Update cart line", err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeLine(e, *line) })
}

func encodeLine(e *jx.Encoder, l cart.Line) {
	e.ObjStart()
	e.Field("id", func(e *jx.Encoder) { e.Int64(l.ID) })
	e.Field("productId", func(e *jx.Encoder) { e.Int64(l.ProductID) })
	e.Field("quantity", func(e *jx.Encoder) { e.Int(l.Quantity) })
	e.Field("createdAt", func(e *jx.Encoder) { timestamp(e, l.CreatedAt) })
	e.ObjEnd()
}
