package postgres

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xenking/storefront-checkout/internal/domain/cart"
	"github.com/xenking/storefront-checkout/internal/domain/checkout"
	"github.com/xenking/storefront-checkout/internal/domain/loyalty"
	"github.com/xenking/storefront-checkout/internal/domain/order"
	"github.com/xenking/storefront-checkout/internal/domain/product"
)

var (
	_ checkout.Store = (*CheckoutStore)(nil)
	_ checkout.Tx    = (*checkoutTx)(nil)
)

// CheckoutStore runs checkout units of work in READ COMMITTED transactions.
// The user's row is locked first, so checkouts of one user are serialized
// while different users proceed in parallel. Transactions aborted by
// serialization failures, deadlocks or a stale ledger version are retried
// with exponential backoff.
type CheckoutStore struct {
	pool        *pgxpool.Pool
	maxAttempts int
	newBackOff  func() backoff.BackOff
}

// CheckoutStoreOption configures a CheckoutStore.
type CheckoutStoreOption func(*CheckoutStore)

// WithMaxAttempts sets how many times a unit of work may run. Values below 1
// are treated as 1.
func WithMaxAttempts(n int) CheckoutStoreOption {
	return func(s *CheckoutStore) { s.maxAttempts = max(n, 1) }
}

// NewCheckoutStore returns a CheckoutStore that uses the given pool.
func NewCheckoutStore(pool *pgxpool.Pool, opts ...CheckoutStoreOption) *CheckoutStore {
	s := &CheckoutStore{
		pool:        pool,
		maxAttempts: 3,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 20 * time.Millisecond
			b.MaxInterval = 500 * time.Millisecond
			return b
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// InTx runs fn in a transaction, committing when it returns nil.
func (s *CheckoutStore) InTx(ctx context.Context, fn func(ctx context.Context, tx checkout.Tx) error) error {
	attempt := 0
	op := func() error {
		attempt++
		err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
			return fn(ctx, &checkoutTx{tx: tx})
		})
		if err == nil || retryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(s.newBackOff(), uint64(s.maxAttempts-1)), ctx)
	return backoff.RetryNotify(op, b, func(err error, wait time.Duration) {
		zctx.From(ctx).Debug("Retrying checkout transaction",
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	})
}

func retryable(err error) bool {
	if errors.Is(err, loyalty.ErrConflict) {
		return true
	}
	switch pgCode(err) {
	case codeSerializationFailure, codeDeadlockDetected:
		return true
	default:
		return false
	}
}

type checkoutTx struct {
	tx pgx.Tx
}

func (t *checkoutTx) LockLedger(ctx context.Context, userID string) (loyalty.Ledger, error) {
	return lockLedger(ctx, t.tx, userID)
}

func (t *checkoutTx) ListLines(ctx context.Context, userID string, ids []int64) ([]cart.Line, error) {
	return listCartLines(ctx, t.tx, userID, ids)
}

func (t *checkoutTx) GetPricings(ctx context.Context, productIDs []int64) (map[int64]product.Pricing, error) {
	return getPricings(ctx, t.tx, productIDs)
}

func (t *checkoutTx) CreateOrder(ctx context.Context, o *order.Order) error {
	return createOrder(ctx, t.tx, o)
}

func (t *checkoutTx) DeleteLines(ctx context.Context, userID string, ids []int64) error {
	return deleteCartLines(ctx, t.tx, userID, ids)
}

func (t *checkoutTx) SaveLedger(ctx context.Context, userID string, prev, next loyalty.Ledger) error {
	return saveLedger(ctx, t.tx, userID, prev, next)
}
