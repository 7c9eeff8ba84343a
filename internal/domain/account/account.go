// Package account exposes the user aggregate that owns the loyalty ledger.
package account

import (
	"context"

	"github.com/xenking/storefront-checkout/internal/domain/loyalty"
)

// Account is a storefront user with its loyalty ledger.
type Account struct {
	ID      string
	Name    string
	Email   string
	Phone   string
	Address string
	Ledger  loyalty.Ledger
}

// Repository reads accounts. A missing user yields loyalty.ErrUserNotFound.
type Repository interface {
	Get(ctx context.Context, id string) (*Account, error)
}
