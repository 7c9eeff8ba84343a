// Package handler implements the storefront HTTP API.
package handler

import (
	"context"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/storefront-checkout/internal/domain/account"
	"github.com/xenking/storefront-checkout/internal/domain/auth"
	"github.com/xenking/storefront-checkout/internal/domain/cart"
	"github.com/xenking/storefront-checkout/internal/domain/checkout"
	"github.com/xenking/storefront-checkout/internal/domain/order"
	"github.com/xenking/storefront-checkout/internal/domain/product"
	idem "github.com/xenking/storefront-checkout/internal/storage/redis"
)

// Checkouter places orders.
type Checkouter interface {
	Checkout(ctx context.Context, req checkout.Request) (*checkout.Result, error)
}

// IdempotencyStore remembers checkout responses by Idempotency-Key.
type IdempotencyStore interface {
	Begin(ctx context.Context, userID, key string) (*idem.Response, error)
	Finish(ctx context.Context, userID, key string, resp idem.Response) error
	Abort(ctx context.Context, userID, key string) error
}

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// ImageBaseURL is prepended to relative image paths in product responses.
	ImageBaseURL string
	// APIKeyPepper is the HMAC key API keys are hashed with.
	APIKeyPepper []byte
	// RetryAfterSeconds is advertised when a checkout fails transiently.
	RetryAfterSeconds int
}

// Deps are the domain collaborators of the Handler. Idempotency may be nil,
// in which case the Idempotency-Key header is ignored.
type Deps struct {
	Products    product.Repository
	Carts       cart.Repository
	Accounts    account.Repository
	Orders      order.Repository
	APIKeys     auth.Repository
	Service     Checkouter
	Idempotency IdempotencyStore
}

// Handler serves the storefront API.
type Handler struct {
	Deps

	imageBaseURL string
	pepper       []byte
	retryAfter   int
}

// NewHandler constructs a Handler.
func NewHandler(cfg Config, deps Deps) *Handler {
	retry := cfg.RetryAfterSeconds
	if retry <= 0 {
		retry = 1
	}
	return &Handler{
		Deps:         deps,
		imageBaseURL: cfg.ImageBaseURL,
		pepper:       cfg.APIKeyPepper,
		retryAfter:   retry,
	}
}

// Routes registers the API on r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/products", h.ListProducts)
		r.Get("/products/{id}", h.GetProduct)

		r.Group(func(r chi.Router) {
			r.Use(h.Authenticate)

			r.Get("/cart", h.ListCart)
			r.Post("/cart", h.AddToCart)
			r.Post("/cart/increment/{id}", h.IncrementCartLine)
			r.Post("/cart/decrement/{id}", h.DecrementCartLine)
			r.Post("/cart/update/{id}", h.UpdateCartLine)
			r.Delete("/cart/remove/{id}", h.RemoveCartLine)
			r.Post("/cart/checkout", h.Checkout)
			r.Get("/orders/my", h.MyOrders)
			r.Get("/account/me", h.Me)

			r.Group(func(r chi.Router) {
				r.Use(RequireScope(auth.ScopeAdmin))
				r.Put("/orders/{id}/status", h.UpdateOrderStatus)
				r.Put("/orders/{id}/shipping", h.UpdateOrderShipping)
			})
		})
	})
}
