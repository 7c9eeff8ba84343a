package loyalty

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedger_Apply(t *testing.T) {
	tests := []struct {
		name     string
		ledger   Ledger
		delta    Delta
		wantAmt  string
		wantUsed bool
	}{
		{
			name:    "accrue adds subtotal",
			ledger:  Ledger{AccumulatedAmount: decimal.NewFromInt(10)},
			delta:   Delta{Accrue: decimal.NewFromInt(20)},
			wantAmt: "30",
		},
		{
			name:    "reset wins over accrue",
			ledger:  Ledger{AccumulatedAmount: decimal.NewFromInt(40)},
			delta:   Delta{ResetAccumulated: true, Accrue: decimal.NewFromInt(20)},
			wantAmt: "0",
		},
		{
			name:     "consume new user credit",
			ledger:   Ledger{AccumulatedAmount: decimal.Zero},
			delta:    Delta{ConsumeNewUserCredit: true, Accrue: decimal.NewFromInt(30)},
			wantAmt:  "30",
			wantUsed: true,
		},
		{
			name:     "used flag never reverts",
			ledger:   Ledger{AccumulatedAmount: decimal.NewFromInt(5), NewUserCouponUsed: true},
			delta:    Delta{Accrue: decimal.Zero},
			wantAmt:  "5",
			wantUsed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.ledger.Apply(tt.delta)
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.wantAmt).Equal(got.AccumulatedAmount),
				"want %s, got %s", tt.wantAmt, got.AccumulatedAmount)
			assert.Equal(t, tt.wantUsed, got.NewUserCouponUsed)
		})
	}
}

func TestLedger_ApplyKeepsReceiver(t *testing.T) {
	l := Ledger{AccumulatedAmount: decimal.NewFromInt(7), Version: 3}

	next, err := l.Apply(Delta{ConsumeNewUserCredit: true, ResetAccumulated: true})
	require.NoError(t, err)

	assert.True(t, decimal.NewFromInt(7).Equal(l.AccumulatedAmount))
	assert.False(t, l.NewUserCouponUsed)
	assert.Equal(t, int64(3), next.Version)
}

func TestLedger_ApplyNegativeAccrual(t *testing.T) {
	l := Ledger{AccumulatedAmount: decimal.NewFromInt(7)}

	_, err := l.Apply(Delta{Accrue: decimal.NewFromInt(-1)})
	require.ErrorIs(t, err, ErrNegativeAmount)
}
