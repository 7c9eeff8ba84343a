package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront-checkout/internal/domain/auth"
)

// HeaderAPIKey carries the caller's API key.
const HeaderAPIKey = "api_key"

// Authenticate resolves the api_key header to an identity. The key is hashed
// with the pepper before lookup and the stored hash compared in constant time.
func (h *Handler) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(HeaderAPIKey)
		if key == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		hash := auth.HashKey(h.pepper, key)
		info, err := h.APIKeys.FindByHash(r.Context(), hash)
		switch {
		case errors.Is(err, auth.ErrKeyNotFound):
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		case err != nil:
			internalError(w, r, "API key lookup failed", err)
			return
		}
		if !auth.HashEqual(hash, info.KeyHash) || info.UserID == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		ctx := auth.WithIdentity(r.Context(), auth.Identity{UserID: info.UserID, Scopes: info.Scopes})
		ctx = zctx.With(ctx, zap.String("user_id", info.UserID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireScope rejects authenticated callers lacking scope with 403.
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := auth.FromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if !id.HasScope(scope) {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
