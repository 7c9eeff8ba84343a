package notify

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/xenking/storefront-checkout/internal/domain/order"
)

const headerEventType = "event_type"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// NewWriter returns a writer for topic keyed by order id.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
}

// NewReader returns a consumer group reader for topic.
func NewReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
}

// KafkaPublisher publishes order events.
type KafkaPublisher struct {
	writer messageWriter
	now    func() time.Time
}

var (
	_ Sender   = (*KafkaPublisher)(nil)
	_ Splitter = (*KafkaPublisher)(nil)
)

// NewKafkaPublisher creates a publisher writing through w.
func NewKafkaPublisher(w messageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: w, now: time.Now}
}

// NotifyOrderPlaced publishes an order.placed event keyed by order id.
func (p *KafkaPublisher) NotifyOrderPlaced(ctx context.Context, placed order.Placed) error {
	msg := kafka.Message{
		Key:   []byte(placed.Order.ID),
		Value: EncodePlaced(placed),
		Time:  p.now().UTC(),
		Headers: []kafka.Header{
			{Key: headerEventType, Value: []byte(EventOrderPlaced)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return &NotificationError{Channel: "kafka", OrderID: placed.Order.ID, Err: err}
	}
	return nil
}

// Deliveries implements Splitter.
func (p *KafkaPublisher) Deliveries(placed order.Placed) []Delivery {
	return []Delivery{{
		Channel: "kafka",
		Send:    func(ctx context.Context) error { return p.NotifyOrderPlaced(ctx, placed) },
	}}
}

// Relay consumes order events and hands them to a Sender, typically the
// Mailer. Failed deliveries are retried per channel with exponential
// backoff. A message is committed once handled, so an event that cannot be
// decoded or still fails after the retries is logged and skipped. A message
// interrupted by shutdown is left uncommitted and redelivered.
type Relay struct {
	reader messageReader
	next   Sender
	retry  retryPolicy
	lg     *zap.Logger
}

// RelayOption configures a Relay.
type RelayOption func(*Relay)

// WithRelayMaxRetries sets how many times a failed delivery is retried.
func WithRelayMaxRetries(n int) RelayOption {
	return func(r *Relay) { r.retry.maxRetries = uint64(max(n, 0)) }
}

// NewRelay creates a Relay.
func NewRelay(r messageReader, next Sender, lg *zap.Logger, opts ...RelayOption) *Relay {
	relay := &Relay{reader: r, next: next, retry: defaultRetryPolicy(), lg: lg}
	for _, opt := range opts {
		opt(relay)
	}
	return relay
}

// Run processes messages until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	for {
		msg, err := r.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "fetch message")
		}

		r.handle(ctx, msg)
		if ctx.Err() != nil {
			return nil
		}

		if err := r.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "commit message")
		}
	}
}

func (r *Relay) handle(ctx context.Context, msg kafka.Message) {
	lg := r.lg.With(zap.Int("partition", msg.Partition), zap.Int64("offset", msg.Offset))

	if t := eventType(msg); t != "" && t != EventOrderPlaced {
		lg.Debug("Skipping event", zap.String("event_type", t))
		return
	}

	placed, err := DecodePlaced(msg.Value)
	if err != nil {
		lg.Warn("Skipping malformed order event", zap.Error(err))
		return
	}

	if err := r.retry.send(ctx, lg, r.next, placed); err != nil {
		lg.Warn("Order event delivery failed",
			zap.String("order_id", placed.Order.ID),
			zap.Error(err),
		)
		return
	}
	lg.Info("Order event delivered", zap.String("order_id", placed.Order.ID))
}

func eventType(msg kafka.Message) string {
	for _, h := range msg.Headers {
		if h.Key == headerEventType {
			return string(h.Value)
		}
	}
	return ""
}
