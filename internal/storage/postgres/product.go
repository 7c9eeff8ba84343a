package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront-checkout/internal/domain/product"
)

const (
	listProductsSQL = `SELECT id, name, price, discount_percent, category, image_url
		FROM products ORDER BY id`

	getProductByIDSQL = `SELECT id, name, price, discount_percent, category, image_url
		FROM products WHERE id = $1`

	getPricingsSQL = `SELECT id, name, price, discount_percent
		FROM products WHERE id = ANY($1)`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns all products from the catalog ordered by ID.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get product %d", id)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get product %d", id)
	}
	return &p, nil
}

// GetPricing returns the current pricing snapshot of a product.
func (r *ProductRepository) GetPricing(ctx context.Context, id int64) (product.Pricing, error) {
	m, err := getPricings(ctx, r.pool, []int64{id})
	if err != nil {
		return product.Pricing{}, err
	}
	p, ok := m[id]
	if !ok {
		return product.Pricing{}, product.ErrNotFound
	}
	return p, nil
}

// getPricings returns pricing keyed by product id. Missing products are
// absent from the map.
func getPricings(ctx context.Context, db dbtx, ids []int64) (map[int64]product.Pricing, error) {
	rows, err := db.Query(ctx, getPricingsSQL, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get pricings")
	}
	list, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (product.Pricing, error) {
		var p product.Pricing
		err := row.Scan(&p.ProductID, &p.Name, &p.Price, &p.DiscountPercent)
		return p, err
	})
	if err != nil {
		return nil, errors.Wrap(err, "scan pricings")
	}

	out := make(map[int64]product.Pricing, len(list))
	for _, p := range list {
		out[p.ProductID] = p
	}
	return out, nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.DiscountPercent, &p.Category, &p.ImageURL)
	return p, err
}
