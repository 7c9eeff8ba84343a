package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront-checkout/internal/domain/account"
	"github.com/xenking/storefront-checkout/internal/domain/loyalty"
)

const (
	getAccountSQL = `SELECT id, name, email, phone, address,
		accumulated_amount, new_user_coupon_used, ledger_version
		FROM users WHERE id = $1`

	lockLedgerSQL = `SELECT accumulated_amount, new_user_coupon_used, ledger_version
		FROM users WHERE id = $1 FOR UPDATE`

	// The flag is OR-ed so a write can never clear it.
	saveLedgerSQL = `UPDATE users
		SET accumulated_amount = $2,
			new_user_coupon_used = new_user_coupon_used OR $3,
			ledger_version = ledger_version + 1
		WHERE id = $1 AND ledger_version = $4`
)

var _ account.Repository = (*AccountRepository)(nil)

// AccountRepository reads users together with their loyalty ledger.
type AccountRepository struct {
	pool *pgxpool.Pool
}

// NewAccountRepository returns an AccountRepository that uses the given pool.
func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{pool: pool}
}

// Get returns the user with the given id or loyalty.ErrUserNotFound.
func (r *AccountRepository) Get(ctx context.Context, id string) (*account.Account, error) {
	var a account.Account
	err := r.pool.QueryRow(ctx, getAccountSQL, id).Scan(
		&a.ID, &a.Name, &a.Email, &a.Phone, &a.Address,
		&a.Ledger.AccumulatedAmount, &a.Ledger.NewUserCouponUsed, &a.Ledger.Version,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, loyalty.ErrUserNotFound
		}
		return nil, errors.Wrapf(err, "get account %q", id)
	}
	return &a, nil
}

func lockLedger(ctx context.Context, db dbtx, userID string) (loyalty.Ledger, error) {
	var l loyalty.Ledger
	err := db.QueryRow(ctx, lockLedgerSQL, userID).Scan(&l.AccumulatedAmount, &l.NewUserCouponUsed, &l.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return loyalty.Ledger{}, loyalty.ErrUserNotFound
		}
		return loyalty.Ledger{}, errors.Wrap(err, "lock ledger")
	}
	return l, nil
}

func saveLedger(ctx context.Context, db dbtx, userID string, prev, next loyalty.Ledger) error {
	tag, err := db.Exec(ctx, saveLedgerSQL, userID, next.AccumulatedAmount, next.NewUserCouponUsed, prev.Version)
	if err != nil {
		if pgCode(err) == codeCheckViolation {
			return loyalty.ErrNegativeAmount
		}
		return errors.Wrap(err, "save ledger")
	}
	if tag.RowsAffected() == 0 {
		return loyalty.ErrConflict
	}
	return nil
}
