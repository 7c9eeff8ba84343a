package checkout

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/storefront-checkout/internal/domain/coupon"
	"github.com/xenking/storefront-checkout/internal/domain/loyalty"
	"github.com/xenking/storefront-checkout/internal/domain/order"
	"github.com/xenking/storefront-checkout/internal/domain/pricing"
)

const instrumentationName = "github.com/xenking/storefront-checkout/internal/domain/checkout"

// Option configures a Service.
type Option func(*Service)

// WithAdminEmail sets the shop administrator address passed to the notifier.
func WithAdminEmail(email string) Option {
	return func(s *Service) { s.adminEmail = email }
}

// WithTimeout bounds the duration of the atomic unit of work.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// WithTracerProvider sets the tracer provider. Defaults to a no-op provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracerProvider = tp }
}

// WithMeterProvider sets the meter provider. Defaults to a no-op provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) { s.meterProvider = mp }
}

// Service places orders from cart selections.
type Service struct {
	store    Store
	notifier Notifier

	adminEmail string
	timeout    time.Duration
	now        func() time.Time
	newID      func() string

	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	tracer         trace.Tracer
	orders         metric.Int64Counter
	discounts      metric.Float64Counter
	notifyFailures metric.Int64Counter
}

// NewService creates a checkout Service. The notifier may be nil.
func NewService(store Store, notifier Notifier, opts ...Option) (*Service, error) {
	s := &Service{
		store:          store,
		notifier:       notifier,
		now:            func() time.Time { return time.Now().UTC() },
		newID:          func() string { return uuid.New().String() },
		tracerProvider: tracenoop.NewTracerProvider(),
		meterProvider:  metricnoop.NewMeterProvider(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.tracer = s.tracerProvider.Tracer(instrumentationName)
	meter := s.meterProvider.Meter(instrumentationName)

	var err error
	if s.orders, err = meter.Int64Counter("checkout.orders",
		metric.WithDescription("Checkout attempts by outcome"),
	); err != nil {
		return nil, errors.Wrap(err, "orders counter")
	}
	if s.discounts, err = meter.Float64Counter("checkout.discount.amount",
		metric.WithDescription("Total coupon discount granted"),
		metric.WithUnit("USD"),
	); err != nil {
		return nil, errors.Wrap(err, "discount counter")
	}
	if s.notifyFailures, err = meter.Int64Counter("checkout.notify.failures",
		metric.WithDescription("Order notifications that could not be dispatched"),
	); err != nil {
		return nil, errors.Wrap(err, "notify failures counter")
	}

	return s, nil
}

// Checkout validates the request, prices the selected cart lines, applies
// the coupon policy and then, in one unit of work, persists the order and its
// items, deletes the consumed cart lines and writes the new ledger. The
// notifier is called only after the commit and its failures are logged, never
// returned.
func (s *Service) Checkout(ctx context.Context, req Request) (_ *Result, rerr error) {
	ctx, span := s.tracer.Start(ctx, "checkout.Checkout",
		trace.WithAttributes(attribute.String("user.id", req.UserID)),
	)
	defer func() {
		outcome := "placed"
		switch {
		case rerr == nil:
		case IsRejection(rerr):
			outcome = "rejected"
		default:
			outcome = "failed"
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		s.orders.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
		span.End()
	}()

	lineIDs, err := validate(req)
	if err != nil {
		return nil, err
	}

	var (
		placed *order.Order
		ledger loyalty.Ledger
	)
	txCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		txCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	err = s.store.InTx(txCtx, func(ctx context.Context, tx Tx) error {
		o, next, err := s.place(ctx, tx, req, lineIDs)
		if err != nil {
			return err
		}
		placed, ledger = o, next
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, loyalty.ErrUserNotFound):
			return nil, ErrUnauthenticated
		case IsRejection(err):
			return nil, err
		default:
			return nil, &CheckoutFailedError{Err: err}
		}
	}

	span.SetAttributes(attribute.String("order.id", placed.ID))
	s.discounts.Add(ctx, placed.Discount.InexactFloat64())
	zctx.From(ctx).Info("Order placed",
		zap.String("order_id", placed.ID),
		zap.String("user_id", placed.UserID),
		zap.Stringer("subtotal", placed.Subtotal),
		zap.Stringer("discount", placed.Discount),
		zap.Stringer("total", placed.TotalPrice),
		zap.Int("items", len(placed.Items)),
	)

	s.notify(ctx, order.Placed{
		Order:             *placed,
		CustomerEmail:     placed.Customer.Email,
		AdminEmail:        s.adminEmail,
		AccumulatedAmount: ledger.AccumulatedAmount,
		NewUserCouponUsed: ledger.NewUserCouponUsed,
	})

	return &Result{
		OrderID:           placed.ID,
		Subtotal:          placed.Subtotal,
		Discount:          placed.Discount,
		TotalPrice:        placed.TotalPrice,
		NewUserCouponUsed: ledger.NewUserCouponUsed,
		AccumulatedAmount: ledger.AccumulatedAmount,
		Order:             placed,
	}, nil
}

// place runs inside the unit of work. All reads and computations happen
// before the first write.
func (s *Service) place(ctx context.Context, tx Tx, req Request, lineIDs []int64) (*order.Order, loyalty.Ledger, error) {
	ledger, err := tx.LockLedger(ctx, req.UserID)
	if err != nil {
		return nil, loyalty.Ledger{}, errors.Wrap(err, "lock ledger")
	}

	lines, err := tx.ListLines(ctx, req.UserID, lineIDs)
	if err != nil {
		return nil, loyalty.Ledger{}, errors.Wrap(err, "list cart lines")
	}
	if len(lines) == 0 {
		return nil, loyalty.Ledger{}, ErrNoValidLines
	}

	priceLines := make([]pricing.Line, len(lines))
	consumed := make([]int64, len(lines))
	productIDs := make([]int64, 0, len(lines))
	for i, l := range lines {
		qty := l.Quantity
		if q, ok := req.Quantities[l.ID]; ok {
			qty = q
		}
		priceLines[i] = pricing.Line{LineID: l.ID, ProductID: l.ProductID, Quantity: qty}
		consumed[i] = l.ID
		if !slices.Contains(productIDs, l.ProductID) {
			productIDs = append(productIDs, l.ProductID)
		}
	}

	catalog, err := tx.GetPricings(ctx, productIDs)
	if err != nil {
		return nil, loyalty.Ledger{}, errors.Wrap(err, "get pricing")
	}

	quote, err := pricing.Calculate(priceLines, catalog)
	if err != nil {
		return nil, loyalty.Ledger{}, err
	}

	outcome, err := coupon.Evaluate(quote.Subtotal, ledger, req.Coupons)
	if err != nil {
		return nil, loyalty.Ledger{}, err
	}

	o := s.newOrder(req, quote, outcome)

	if err := tx.CreateOrder(ctx, o); err != nil {
		return nil, loyalty.Ledger{}, errors.Wrap(err, "create order")
	}
	if err := tx.DeleteLines(ctx, req.UserID, consumed); err != nil {
		return nil, loyalty.Ledger{}, errors.Wrap(err, "delete cart lines")
	}
	if err := tx.SaveLedger(ctx, req.UserID, ledger, outcome.Ledger); err != nil {
		return nil, loyalty.Ledger{}, errors.Wrap(err, "save ledger")
	}

	return o, outcome.Ledger, nil
}

func (s *Service) newOrder(req Request, quote pricing.Quote, outcome coupon.Outcome) *order.Order {
	items := make([]order.Item, len(quote.Lines))
	for i, l := range quote.Lines {
		items[i] = order.Item{
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
		}
	}

	return &order.Order{
		ID:                   s.newID(),
		UserID:               req.UserID,
		CreatedAt:            s.now(),
		Customer:             req.Customer,
		Subtotal:             quote.Subtotal.Round(2),
		Discount:             outcome.Discount,
		TotalPrice:           outcome.Total,
		NewUserCouponApplied: outcome.NewUserApplied,
		ThresholdCoupon:      string(outcome.Threshold),
		Status:               order.StatusPending,
		Items:                items,
	}
}

func (s *Service) notify(ctx context.Context, p order.Placed) {
	if s.notifier == nil {
		return
	}
	// The order is committed; a cancelled request must not cancel delivery.
	if err := s.notifier.NotifyOrderPlaced(context.WithoutCancel(ctx), p); err != nil {
		s.notifyFailures.Add(ctx, 1)
		zctx.From(ctx).Warn("Order notification failed",
			zap.String("order_id", p.Order.ID),
			zap.Error(err),
		)
	}
}

// validate performs every check that needs no storage access and returns the
// de-duplicated selection.
func validate(req Request) ([]int64, error) {
	if req.UserID == "" {
		return nil, ErrUnauthenticated
	}
	if len(req.LineIDs) == 0 {
		return nil, ErrEmptySelection
	}
	if err := req.Coupons.Validate(); err != nil {
		return nil, err
	}
	if err := validateCustomer(req.Customer); err != nil {
		return nil, err
	}

	// Overrides are checked by the calculator, after lines the caller does
	// not own have been dropped.
	ids := make([]int64, 0, len(req.LineIDs))
	for _, id := range req.LineIDs {
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func validateCustomer(c order.Customer) error {
	switch {
	case strings.TrimSpace(c.Name) == "":
		return &InvalidCustomerError{Field: "customerName", Reason: "required"}
	case !strings.Contains(c.Email, "@"):
		return &InvalidCustomerError{Field: "customerEmail", Reason: "must be an email address"}
	case strings.TrimSpace(c.ContactPhone) == "":
		return &InvalidCustomerError{Field: "contactPhone", Reason: "required"}
	case !c.DeliveryMethod.Valid():
		return &InvalidCustomerError{Field: "deliveryMethod", Reason: "must be pickup or courier"}
	case c.DeliveryMethod == order.DeliveryCourier && strings.TrimSpace(c.ShippingAddress) == "":
		return &InvalidCustomerError{Field: "shippingAddress", Reason: "required for courier delivery"}
	}
	return nil
}
