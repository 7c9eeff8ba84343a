package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront-checkout/internal/domain/cart"
	"github.com/xenking/storefront-checkout/internal/domain/product"
)

const (
	listCartSQL = `SELECT id, user_id, product_id, quantity, created_at
		FROM cart_items WHERE user_id = $1 ORDER BY id`

	// Selected lines stay locked until the checkout commits, so a concurrent
	// add to the same line waits and then inserts a fresh line.
	listCartLinesSQL = `SELECT id, user_id, product_id, quantity, created_at
		FROM cart_items WHERE user_id = $1 AND id = ANY($2) ORDER BY id
		FOR UPDATE`

	addCartLineSQL = `INSERT INTO cart_items (user_id, product_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
		RETURNING id, user_id, product_id, quantity, created_at`

	adjustCartLineSQL = `UPDATE cart_items SET quantity = GREATEST(quantity + $3, 1)
		WHERE user_id = $1 AND id = $2
		RETURNING id, user_id, product_id, quantity, created_at`

	setCartLineSQL = `UPDATE cart_items SET quantity = $3
		WHERE user_id = $1 AND id = $2
		RETURNING id, user_id, product_id, quantity, created_at`

	removeCartLineSQL = `DELETE FROM cart_items WHERE user_id = $1 AND id = $2`

	deleteCartLinesSQL = `DELETE FROM cart_items WHERE user_id = $1 AND id = ANY($2)`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// List returns every line in the user's cart.
func (r *CartRepository) List(ctx context.Context, userID string) ([]cart.Line, error) {
	rows, err := r.pool.Query(ctx, listCartSQL, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list cart")
	}
	return pgx.CollectRows(rows, scanCartLine)
}

// Add inserts a line or increments the quantity of the existing line for the
// same product.
func (r *CartRepository) Add(ctx context.Context, userID string, productID int64, quantity int) (*cart.Line, error) {
	if quantity <= 0 {
		return nil, cart.ErrInvalidQuantity
	}
	rows, err := r.pool.Query(ctx, addCartLineSQL, userID, productID, quantity)
	if err != nil {
		return nil, errors.Wrap(err, "add cart line")
	}
	line, err := pgx.CollectExactlyOneRow(rows, scanCartLine)
	if err != nil {
		if pgCode(err) == codeForeignKeyViolation {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrap(err, "add cart line")
	}
	return &line, nil
}

// Adjust adds delta to the quantity of the line, keeping at least 1.
func (r *CartRepository) Adjust(ctx context.Context, userID string, lineID int64, delta int) (*cart.Line, error) {
	return r.updateLine(ctx, adjustCartLineSQL, userID, lineID, delta)
}

// SetQuantity replaces the quantity of the line.
func (r *CartRepository) SetQuantity(ctx context.Context, userID string, lineID int64, quantity int) (*cart.Line, error) {
	if quantity <= 0 {
		return nil, cart.ErrInvalidQuantity
	}
	return r.updateLine(ctx, setCartLineSQL, userID, lineID, quantity)
}

func (r *CartRepository) updateLine(ctx context.Context, sql, userID string, lineID int64, arg int) (*cart.Line, error) {
	rows, err := r.pool.Query(ctx, sql, userID, lineID, arg)
	if err != nil {
		return nil, errors.Wrapf(err, "update cart line %d", lineID)
	}
	line, err := pgx.CollectExactlyOneRow(rows, scanCartLine)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrLineNotFound
		}
		return nil, errors.Wrapf(err, "update cart line %d", lineID)
	}
	return &line, nil
}

// Remove deletes the line.
func (r *CartRepository) Remove(ctx context.Context, userID string, lineID int64) error {
	tag, err := r.pool.Exec(ctx, removeCartLineSQL, userID, lineID)
	if err != nil {
		return errors.Wrapf(err, "remove cart line %d", lineID)
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrLineNotFound
	}
	return nil
}

// ListLines returns the lines among ids that belong to the user.
func (r *CartRepository) ListLines(ctx context.Context, userID string, ids []int64) ([]cart.Line, error) {
	return listCartLines(ctx, r.pool, userID, ids)
}

// DeleteLines removes the lines among ids that belong to the user.
func (r *CartRepository) DeleteLines(ctx context.Context, userID string, ids []int64) error {
	return deleteCartLines(ctx, r.pool, userID, ids)
}

func listCartLines(ctx context.Context, db dbtx, userID string, ids []int64) ([]cart.Line, error) {
	rows, err := db.Query(ctx, listCartLinesSQL, userID, ids)
	if err != nil {
		return nil, errors.Wrap(err, "list cart lines")
	}
	return pgx.CollectRows(rows, scanCartLine)
}

func deleteCartLines(ctx context.Context, db dbtx, userID string, ids []int64) error {
	if _, err := db.Exec(ctx, deleteCartLinesSQL, userID, ids); err != nil {
		return errors.Wrap(err, "delete cart lines")
	}
	return nil
}

func scanCartLine(row pgx.CollectableRow) (cart.Line, error) {
	var l cart.Line
	err := row.Scan(&l.ID, &l.UserID, &l.ProductID, &l.Quantity, &l.CreatedAt)
	return l, err
}
