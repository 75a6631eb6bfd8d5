package notify

import (
	"context"
	"iter"
	"sync"

	"go.uber.org/zap"

	"github.com/roach88/otcore/internal/model"
	"github.com/roach88/otcore/internal/store"
)

// Hub is the in-process push notifier.
//
// Publish never blocks: operations go onto an unbounded input queue that
// Run fans out to per-subscriber queues. Every subscription first
// catches up from the log, so subscribers that register late or miss a
// publication still see every revision.
type Hub struct {
	log    store.Adapter
	logger *zap.Logger
	in     *queue[model.CommittedOperation]

	mu     sync.Mutex
	subs   map[string]map[*subscription]struct{}
	closed bool
}

type subscription struct {
	key string
	q   *queue[model.CommittedOperation]
}

// NewHub creates a Hub reading catch-up history from log.
// Run must be started for live delivery.
func NewHub(log store.Adapter, opts ...Option) *Hub {
	o := buildOptions(opts)
	return &Hub{
		log:    log,
		logger: o.logger,
		in:     newQueue[model.CommittedOperation](),
		subs:   make(map[string]map[*subscription]struct{}),
	}
}

// Publish queues op for delivery. Returns ErrClosed after Close.
func (h *Hub) Publish(_ context.Context, op model.CommittedOperation) error {
	if !h.in.Enqueue(op) {
		return ErrClosed
	}
	return nil
}

// Run dispatches published operations until ctx is done or Close is
// called, then ends every open subscription. Queued operations are
// dispatched before Run returns after Close.
func (h *Hub) Run(ctx context.Context) error {
	defer h.shutdown()

	for {
		for {
			op, ok := h.in.TryDequeue()
			if !ok {
				break
			}
			h.dispatch(op)
		}
		if h.in.Drained() {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-h.in.Wait():
		}
	}
}

// Close stops accepting publications. Run returns once the input queue
// is drained.
func (h *Hub) Close() {
	h.in.Close()
}

// Subscribers returns the number of open subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, set := range h.subs {
		n += len(set)
	}
	return n
}

// Subscribe implements Notifier. The subscription is registered before
// the catch-up read, so no publication can fall between the two.
func (h *Hub) Subscribe(ctx context.Context, id model.ObjectID, from int64) iter.Seq2[model.CommittedOperation, error] {
	return func(yield func(model.CommittedOperation, error) bool) {
		sub := h.register(id.String())
		defer h.unregister(sub)

		f := newFollower(ctx, h.log, id, from, yield)
		if !f.catchUp() {
			return
		}
		for {
			if op, ok := sub.q.TryDequeue(); ok {
				if !f.deliver(op) {
					return
				}
				continue
			}
			if sub.q.Drained() {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-sub.q.Wait():
			}
		}
	}
}

func (h *Hub) dispatch(op model.CommittedOperation) {
	key := op.ObjectID.String()

	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs[key] {
		sub.q.Enqueue(op)
	}
	h.logger.Debug("dispatched",
		zap.String("object", key),
		zap.Int64("revision", op.Revision),
		zap.Int("subscribers", len(h.subs[key])),
	)
}

func (h *Hub) register(key string) *subscription {
	sub := &subscription{key: key, q: newQueue[model.CommittedOperation]()}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		sub.q.Close()
		return sub
	}
	set, ok := h.subs[key]
	if !ok {
		set = make(map[*subscription]struct{})
		h.subs[key] = set
	}
	set[sub] = struct{}{}
	return sub
}

func (h *Hub) unregister(sub *subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.subs[sub.key]
	delete(set, sub)
	if len(set) == 0 {
		delete(h.subs, sub.key)
	}
	sub.q.Close()
}

func (h *Hub) shutdown() {
	h.in.Close()

	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for _, set := range h.subs {
		for sub := range set {
			sub.q.Close()
		}
	}
}
