// Package cart describes per-user cart lines.
package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

var (
	// ErrInvalidQuantity is returned when a line would hold a non-positive quantity.
	ErrInvalidQuantity = errors.New("quantity must be greater than 0")
	// ErrLineNotFound is returned when a line does not exist or belongs to
	// another user.
	ErrLineNotFound = errors.New("cart line not found")
)

// Line is a single product entry in a user's cart. Lines are never shared
// across users.
type Line struct {
	ID        int64
	UserID    string
	ProductID int64
	Quantity  int
	CreatedAt time.Time
}

// Repository provides access to cart lines.
type Repository interface {
	// List returns every line owned by the user.
	List(ctx context.Context, userID string) ([]Line, error)
	// Add inserts a line for the product or increments the existing one.
	Add(ctx context.Context, userID string, productID int64, quantity int) (*Line, error)
	// Adjust adds delta to the line's quantity, never going below 1.
	Adjust(ctx context.Context, userID string, lineID int64, delta int) (*Line, error)
	// SetQuantity replaces the line's quantity.
	SetQuantity(ctx context.Context, userID string, lineID int64, quantity int) (*Line, error)
	// Remove deletes a single line.
	Remove(ctx context.Context, userID string, lineID int64) error
	// ListLines returns the subset of ids that exist and are owned by the user.
	ListLines(ctx context.Context, userID string, ids []int64) ([]Line, error)
	// DeleteLines removes the given lines owned by the user.
	DeleteLines(ctx context.Context, userID string, ids []int64) error
}
