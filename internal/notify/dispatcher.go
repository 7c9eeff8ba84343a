package notify

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/xenking/storefront-checkout/internal/domain/order"
)

// Dispatcher decouples notification delivery from the request that placed
// the order. NotifyOrderPlaced only enqueues; Run delivers in the background
// and retries failed deliveries with exponential backoff.
type Dispatcher struct {
	next       Sender
	queue      chan order.Placed
	retry      retryPolicy
	drain      time.Duration
	lg         *zap.Logger
	dispatched metric.Int64Counter
}

var _ Sender = (*Dispatcher)(nil)

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithQueueSize sets the queue capacity.
func WithQueueSize(n int) DispatcherOption {
	return func(d *Dispatcher) { d.queue = make(chan order.Placed, max(n, 1)) }
}

// WithMaxRetries sets how many times a failed delivery is retried. Each
// channel of a Splitter is retried on its own.
func WithMaxRetries(n int) DispatcherOption {
	return func(d *Dispatcher) { d.retry.maxRetries = uint64(max(n, 0)) }
}

// WithDrainTimeout bounds delivery of queued notifications after Run's
// context is done.
func WithDrainTimeout(t time.Duration) DispatcherOption {
	return func(d *Dispatcher) { d.drain = t }
}

// WithLogger sets the logger.
func WithLogger(lg *zap.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.lg = lg }
}

// WithMeterProvider sets the meter provider. The default is a no-op.
func WithMeterProvider(mp metric.MeterProvider) DispatcherOption {
	return func(d *Dispatcher) {
		c, err := mp.Meter("github.com/xenking/storefront-checkout/internal/notify").Int64Counter("notify.dispatch",
			metric.WithDescription("Order notifications by result"),
		)
		if err == nil {
			d.dispatched = c
		}
	}
}

// NewDispatcher creates a Dispatcher delivering to next.
func NewDispatcher(next Sender, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		next:       next,
		queue: make(chan order.Placed, 256),
		retry: defaultRetryPolicy(),
		drain: 5 * time.Second,
		lg:    zap.NewNop(),
	}
	d.dispatched, _ = noop.Meter{}.Int64Counter("notify.dispatch")
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// NotifyOrderPlaced enqueues p without blocking.
func (d *Dispatcher) NotifyOrderPlaced(ctx context.Context, p order.Placed) error {
	select {
	case d.queue <- p:
		return nil
	default:
		d.record(ctx, "dropped")
		return &NotificationError{Channel: "queue", OrderID: p.Order.ID, Err: ErrQueueFull}
	}
}

// Run delivers queued notifications until ctx is done, then tries to drain
// what is left within the drain timeout.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return d.flush(context.WithoutCancel(ctx))
		}
		select {
		case p := <-d.queue:
			d.deliver(ctx, p)
		case <-ctx.Done():
		}
	}
}

func (d *Dispatcher) flush(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, d.drain)
	defer cancel()
	for {
		select {
		case p := <-d.queue:
			d.deliver(ctx, p)
		default:
			return nil
		}
		if err := ctx.Err(); err != nil {
			if n := len(d.queue); n > 0 {
				d.lg.Warn("Dropping undelivered notifications", zap.Int("count", n))
			}
			return errors.Wrap(err, "drain notifications")
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, p order.Placed) {
	lg := d.lg.With(zap.String("order_id", p.Order.ID))

	if err := d.retry.send(ctx, lg, d.next, p); err != nil {
		d.record(ctx, "failed")
		lg.Warn("Notification failed", zap.Error(err))
		return
	}
	d.record(ctx, "delivered")
}

func (d *Dispatcher) record(ctx context.Context, result string) {
	d.dispatched.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}
