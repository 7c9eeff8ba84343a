package order

import "github.com/shopspring/decimal"

// Placed describes a committed order together with the ledger it left behind.
// It is what gets sent to the customer and the shop administrator.
type Placed struct {
	Order         Order
	CustomerEmail string
	AdminEmail    string

	AccumulatedAmount decimal.Decimal
	NewUserCouponUsed bool
}
