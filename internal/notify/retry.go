package notify

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/xenking/storefront-checkout/internal/domain/order"
)

// retryPolicy retries each delivery of a notification on its own, so a
// channel that already succeeded is never sent to again.
type retryPolicy struct {
	maxRetries uint64
	newBackOff func() backoff.BackOff
}

func defaultRetryPolicy() retryPolicy {
	return retryPolicy{
		maxRetries: 3,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 10 * time.Second
			return b
		},
	}
}

// send returns the combined errors of the deliveries that never succeeded.
func (r retryPolicy) send(ctx context.Context, lg *zap.Logger, next Sender, p order.Placed) error {
	var errs error
	for _, d := range Deliveries(next, p) {
		b := backoff.WithContext(backoff.WithMaxRetries(r.newBackOff(), r.maxRetries), ctx)
		err := backoff.RetryNotify(func() error {
			return d.Send(ctx)
		}, b, func(err error, wait time.Duration) {
			lg.Debug("Retrying notification",
				zap.String("channel", d.Channel),
				zap.Duration("wait", wait),
				zap.Error(err),
			)
		})
		errs = multierr.Append(errs, err)
	}
	return errs
}
