package notify

import (
	"context"
	"iter"
	"time"

	"github.com/roach88/otcore/internal/model"
	"github.com/roach88/otcore/internal/store"
)

// Poller is the pull notifier: each subscription re-reads the log at a
// fixed interval and delivers what it has not seen yet.
type Poller struct {
	log      store.Adapter
	interval time.Duration
}

// NewPoller creates a Poller over log.
func NewPoller(log store.Adapter, opts ...Option) *Poller {
	o := buildOptions(opts)
	return &Poller{log: log, interval: o.interval}
}

// Publish is a no-op; the log is the only source.
func (p *Poller) Publish(context.Context, model.CommittedOperation) error {
	return nil
}

// Subscribe implements Notifier. The first poll runs immediately.
func (p *Poller) Subscribe(ctx context.Context, id model.ObjectID, from int64) iter.Seq2[model.CommittedOperation, error] {
	return func(yield func(model.CommittedOperation, error) bool) {
		f := newFollower(ctx, p.log, id, from, yield)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			if !f.catchUp() {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}
}
