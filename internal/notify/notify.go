// Package notify delivers best-effort order notifications: transactional
// email through Brevo and order events through Kafka. Nothing here can affect
// a committed order.
package notify

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"go.uber.org/multierr"

	"github.com/xenking/storefront-checkout/internal/domain/order"
)

// ErrQueueFull is returned when the dispatcher cannot accept more work.
var ErrQueueFull = errors.New("notification queue is full")

// Sender delivers a notification about a placed order.
type Sender interface {
	NotifyOrderPlaced(ctx context.Context, p order.Placed) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, p order.Placed) error

// NotifyOrderPlaced calls f.
func (f SenderFunc) NotifyOrderPlaced(ctx context.Context, p order.Placed) error {
	return f(ctx, p)
}

// NotificationError reports a failed delivery on one channel.
type NotificationError struct {
	Channel string
	OrderID string
	Err     error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notify %s about order %s: %v", e.Channel, e.OrderID, e.Err)
}

func (e *NotificationError) Unwrap() error {
	return e.Err
}

// Delivery is one send that succeeds or fails on its own, such as a single
// email recipient or a single Kafka publish.
type Delivery struct {
	Channel string
	Send    func(ctx context.Context) error
}

// Splitter is implemented by senders that deliver through independent
// channels. Retrying a Splitter repeats only the deliveries that failed.
type Splitter interface {
	Deliveries(p order.Placed) []Delivery
}

// Deliveries returns the independent deliveries of s for p. A sender that is
// not a Splitter is a single delivery.
func Deliveries(s Sender, p order.Placed) []Delivery {
	if sp, ok := s.(Splitter); ok {
		return sp.Deliveries(p)
	}
	return []Delivery{{
		Channel: "sender",
		Send:    func(ctx context.Context) error { return s.NotifyOrderPlaced(ctx, p) },
	}}
}

func sendAll(ctx context.Context, ds []Delivery) error {
	var err error
	for _, d := range ds {
		err = multierr.Append(err, d.Send(ctx))
	}
	return err
}

// Multi sends to every sender and combines their errors. A failing sender
// does not stop the others.
type Multi []Sender

var (
	_ Sender   = Multi(nil)
	_ Splitter = Multi(nil)
)

// NotifyOrderPlaced implements Sender.
func (m Multi) NotifyOrderPlaced(ctx context.Context, p order.Placed) error {
	return sendAll(ctx, m.Deliveries(p))
}

// Deliveries implements Splitter by flattening the deliveries of every sender.
func (m Multi) Deliveries(p order.Placed) []Delivery {
	var out []Delivery
	for _, s := range m {
		out = append(out, Deliveries(s, p)...)
	}
	return out
}
