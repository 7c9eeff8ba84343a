package order

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when an order does not exist.
var ErrNotFound = errors.New("order not found")

// Status is the administrative state of an order.
type Status string

// StatusPending is the status every order is created with. Administrators
// may move an order to any other non-empty status.
const StatusPending Status = "pending"

// ErrInvalidStatus is returned for an empty or overlong status.
var ErrInvalidStatus = errors.New("status must be 1 to 32 characters")

// Validate checks that s can be stored.
func (s Status) Validate() error {
	if n := len(strings.TrimSpace(string(s))); n == 0 || n > 32 {
		return ErrInvalidStatus
	}
	return nil
}

// DeliveryMethod is how the customer receives the order.
type DeliveryMethod string

const (
	DeliveryPickup  DeliveryMethod = "pickup"
	DeliveryCourier DeliveryMethod = "courier"
)

// Valid reports whether m is a known delivery method.
func (m DeliveryMethod) Valid() bool {
	return m == DeliveryPickup || m == DeliveryCourier
}

// Customer is the contact and delivery information given at checkout.
type Customer struct {
	Name            string
	Email           string
	DeliveryMethod  DeliveryMethod
	ShippingAddress string
	ContactPhone    string
}

// Order is a placed order. Money fields and items never change after
// creation; only Status, Courier and TrackingNumber are administrative.
type Order struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	Customer  Customer

	Subtotal   decimal.Decimal
	Discount   decimal.Decimal
	TotalPrice decimal.Decimal

	NewUserCouponApplied bool
	ThresholdCoupon      string

	Status         Status
	Courier        string
	TrackingNumber string

	Items []Item
}

// Item is a permanent snapshot of a purchased product. UnitPrice is the
// effective price at order time.
type Item struct {
	ProductID   int64
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
}

// LineTotal returns UnitPrice * Quantity.
func (i Item) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Shipping holds administrative shipping fields. Nil fields are left unchanged.
type Shipping struct {
	Courier        *string
	TrackingNumber *string
}

// Repository defines persistence operations for orders outside of checkout.
type Repository interface {
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	Get(ctx context.Context, id string) (*Order, error)
	UpdateStatus(ctx context.Context, id string, status Status) error
	UpdateShipping(ctx context.Context, id string, s Shipping) error
}
