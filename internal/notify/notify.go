package notify

import (
	"context"
	"errors"
	"iter"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/otcore/internal/model"
)

// ErrClosed is returned by Publish after the notifier has shut down.
var ErrClosed = errors.New("notifier closed")

// DefaultPollInterval is the Poller interval when none is configured.
const DefaultPollInterval = 500 * time.Millisecond

// Publisher receives committed operations from the pipeline.
type Publisher interface {
	Publish(ctx context.Context, op model.CommittedOperation) error
}

// Notifier delivers committed operations to subscribers.
//
// Subscribe returns a lazy sequence of the object's operations with
// revision > from, in revision order, each exactly once. The sequence
// ends without an error when ctx is done, and yields a single error
// (then ends) when the log cannot be read.
type Notifier interface {
	Publisher
	Subscribe(ctx context.Context, id model.ObjectID, from int64) iter.Seq2[model.CommittedOperation, error]
}

// Option configures a Hub, Poller or RedisRelay.
type Option func(*options)

type options struct {
	logger   *zap.Logger
	interval time.Duration
}

func buildOptions(opts []Option) options {
	o := options{logger: zap.NewNop(), interval: DefaultPollInterval}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithInterval sets the Poller interval.
func WithInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.interval = d
		}
	}
}

// Multi returns a Publisher that hands every operation to each of pubs in
// order. All publishers are called even if one fails.
func Multi(pubs ...Publisher) Publisher {
	return multi(pubs)
}

type multi []Publisher

func (m multi) Publish(ctx context.Context, op model.CommittedOperation) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, op); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
