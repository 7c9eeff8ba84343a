package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront-checkout/internal/domain/account"
	"github.com/xenking/storefront-checkout/internal/domain/auth"
	"github.com/xenking/storefront-checkout/internal/domain/product"
)

const (
	upsertProductSQL = `INSERT INTO products (id, name, price, discount_percent, category, image_url)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			price = EXCLUDED.price,
			discount_percent = EXCLUDED.discount_percent,
			category = EXCLUDED.category,
			image_url = EXCLUDED.image_url`

	syncProductSequenceSQL = `SELECT setval('products_id_seq', GREATEST((SELECT max(id) FROM products), 1))`

	// The ledger is left alone on conflict.
	upsertUserSQL = `INSERT INTO users (id, name, email, phone, address)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			phone = EXCLUDED.phone,
			address = EXCLUDED.address`

	upsertAPIKeySQL = `INSERT INTO api_keys (id, key_hash, user_id, name, scopes, active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		ON CONFLICT (id) DO UPDATE SET
			key_hash = EXCLUDED.key_hash,
			user_id = EXCLUDED.user_id,
			name = EXCLUDED.name,
			scopes = EXCLUDED.scopes,
			active = TRUE`
)

// Seeder writes fixture data. Every operation is an upsert, so seeding twice
// is harmless.
type Seeder struct {
	pool *pgxpool.Pool
}

// NewSeeder returns a Seeder that uses the given pool.
func NewSeeder(pool *pgxpool.Pool) *Seeder {
	return &Seeder{pool: pool}
}

// UpsertProduct writes p under its own id.
func (s *Seeder) UpsertProduct(ctx context.Context, p product.Product) error {
	if _, err := s.pool.Exec(ctx, upsertProductSQL,
		p.ID, p.Name, p.Price, p.DiscountPercent, p.Category, p.ImageURL,
	); err != nil {
		return errors.Wrapf(err, "upsert product %d", p.ID)
	}
	return nil
}

// SyncProductSequence moves the id sequence past explicitly seeded ids.
func (s *Seeder) SyncProductSequence(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, syncProductSequenceSQL); err != nil {
		return errors.Wrap(err, "sync product sequence")
	}
	return nil
}

// UpsertUser writes the profile of a; the ledger keeps its stored value.
func (s *Seeder) UpsertUser(ctx context.Context, a account.Account) error {
	if _, err := s.pool.Exec(ctx, upsertUserSQL, a.ID, a.Name, a.Email, a.Phone, a.Address); err != nil {
		return errors.Wrapf(err, "upsert user %s", a.ID)
	}
	return nil
}

// UpsertAPIKey writes an active key. info.KeyHash must already be hashed.
func (s *Seeder) UpsertAPIKey(ctx context.Context, info auth.APIKeyInfo) error {
	scopes := info.Scopes
	if scopes == nil {
		scopes = []string{}
	}
	if _, err := s.pool.Exec(ctx, upsertAPIKeySQL,
		info.ID, info.KeyHash, info.UserID, info.Name, scopes,
	); err != nil {
		return errors.Wrapf(err, "upsert api key %s", info.ID)
	}
	return nil
}
