package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/roach88/otcore/internal/model"
	"github.com/roach88/otcore/internal/ot"
	"github.com/roach88/otcore/internal/schema"
	"github.com/roach88/otcore/internal/store"
)

// Defaults for the retry budgets.
const (
	DefaultMaxAttempts       = 8
	DefaultMaxStorageRetries = 5
)

// Publisher receives every committed operation. notify.Hub, the Redis
// relay and the Kafka publisher implement it.
type Publisher interface {
	Publish(ctx context.Context, op model.CommittedOperation) error
}

// Submission is one client edit.
type Submission struct {
	ObjectID     model.ObjectID
	BaseRevision int64
	Patches      []model.Patch
	Author       string

	// Nonce distinguishes deliberate repeats of an identical edit from
	// retries. Leave it empty to treat every identical resubmission as a
	// retry.
	Nonce string
}

// Result describes a successful submission.
type Result struct {
	// Revision is the object's revision after the submission. For a
	// skipped submission it is the unchanged current revision.
	Revision int64

	// Applied are the adjusted patches that were committed.
	Applied []model.Patch

	// Previous are the operations committed between the base revision
	// and this commit, which the client has not seen yet.
	Previous []model.CommittedOperation

	// Missed is the composition of Previous: one patch sequence that
	// brings the client's base state up to the state before Applied.
	Missed []model.Patch

	// Duplicate is set when the same submission was already committed;
	// Revision and Applied then describe that earlier commit.
	Duplicate bool

	// Skipped is set when the adjusted patches do not change the value.
	// Nothing is written.
	Skipped bool

	// Attempts counts conditional-write attempts, 1 without contention.
	Attempts int
}

// Pipeline commits submissions against a store.
//
// Thread-safety: Submit is safe for concurrent use. Submissions against
// different objects never wait on each other.
type Pipeline struct {
	store             store.Adapter
	publishers        []Publisher
	schema            *schema.Registry
	locks             *objectLocks
	observer          Observer
	ids               IDGenerator
	now               func() time.Time
	logger            *zap.Logger
	maxAttempts       int
	maxStorageRetries int
	backoffInitial    time.Duration
	backoffMax        time.Duration
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithMaxAttempts bounds conditional-write attempts per submission.
// Default: 8 (DefaultMaxAttempts).
func WithMaxAttempts(n int) Option {
	return func(p *Pipeline) {
		p.maxAttempts = n
	}
}

// WithMaxStorageRetries bounds retries of one storage call that fails
// with store.ErrUnavailable. Default: 5 (DefaultMaxStorageRetries).
func WithMaxStorageRetries(n int) Option {
	return func(p *Pipeline) {
		p.maxStorageRetries = n
	}
}

// WithStorageBackoff sets the exponential backoff between storage
// retries. Default: 50ms doubling up to 2s.
func WithStorageBackoff(initial, max time.Duration) Option {
	return func(p *Pipeline) {
		p.backoffInitial = initial
		p.backoffMax = max
	}
}

// WithPublisher adds a publisher informed of every commit.
func WithPublisher(pub Publisher) Option {
	return func(p *Pipeline) {
		p.publishers = append(p.publishers, pub)
	}
}

// WithSchema validates every new document value against its type.
func WithSchema(r *schema.Registry) Option {
	return func(p *Pipeline) {
		p.schema = r
	}
}

// WithObjectLocks admits one submission per object at a time into the
// rebase phase. The lock is never held across a storage call; the
// store's conditional write still decides every race.
func WithObjectLocks() Option {
	return func(p *Pipeline) {
		p.locks = newObjectLocks()
	}
}

// WithObserver reports every state transition.
func WithObserver(obs Observer) Option {
	return func(p *Pipeline) {
		p.observer = obs
	}
}

// WithIDGenerator sets the request id source. Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(p *Pipeline) {
		p.ids = g
	}
}

// WithClock sets the commit timestamp source. Default: time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

// WithLogger sets the logger. Default: no-op.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// New creates a Pipeline over s.
func New(s store.Adapter, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:             s,
		ids:               UUIDv7Generator{},
		now:               time.Now,
		logger:            zap.NewNop(),
		maxAttempts:       DefaultMaxAttempts,
		maxStorageRetries: DefaultMaxStorageRetries,
		backoffInitial:    50 * time.Millisecond,
		backoffMax:        2 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// plan is one attempt's outcome before the conditional write. final is
// set when no write is needed.
type plan struct {
	append   store.Append
	previous []model.CommittedOperation
	missed   []model.Patch
	final    *Result
}

// Submit commits sub, rebasing it over any operations committed since
// its base revision. Rejections are *SubmitError; a cancelled ctx
// returns ctx.Err() and leaves no trace as long as it happens before
// the conditional write.
func (p *Pipeline) Submit(ctx context.Context, sub Submission) (*Result, error) {
	reqID := p.ids.Generate()
	log := p.logger.With(
		zap.String("request", reqID),
		zap.Stringer("object", sub.ObjectID),
		zap.Int64("base", sub.BaseRevision))
	tr := newTracker(p.observer, reqID, sub.ObjectID)

	op := model.Operation{
		ObjectID:     sub.ObjectID,
		BaseRevision: sub.BaseRevision,
		Patches:      sub.Patches,
		Author:       sub.Author,
		Nonce:        sub.Nonce,
	}
	if err := op.Validate(); err != nil {
		index := -1
		var pde *model.PatchDecodeError
		if errors.As(err, &pde) {
			index = pde.Index
		}
		return nil, tr.reject(newMalformed(sub.ObjectID, index, err))
	}
	opID, err := model.OperationID(op)
	if err != nil {
		return nil, tr.reject(newMalformed(sub.ObjectID, -1, err))
	}

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		tr.attempt(attempt)

		pl, err := p.prepare(ctx, sub, opID, tr)
		if err != nil {
			return nil, tr.reject(err)
		}
		if pl.final != nil {
			pl.final.Attempts = attempt
			tr.commit(pl.final.Revision)
			log.Debug("submission needs no write",
				zap.Bool("duplicate", pl.final.Duplicate),
				zap.Bool("skipped", pl.final.Skipped),
				zap.Int64("revision", pl.final.Revision))
			return pl.final, nil
		}

		if err := ctx.Err(); err != nil {
			return nil, tr.reject(err)
		}

		var rev int64
		err = p.retryStorage(ctx, log, func() error {
			var err error
			rev, err = p.store.AppendIfRevision(ctx, pl.append)
			return err
		})
		switch {
		case err == nil:
			committed := pl.append.Committed(rev)
			tr.commit(rev)
			log.Info("committed",
				zap.Int64("revision", rev),
				zap.Int("patches", len(committed.Patches)),
				zap.Int("attempt", attempt))
			p.publish(ctx, log, committed)

			return &Result{
				Revision: rev,
				Applied:  committed.Patches,
				Previous: pl.previous,
				Missed:   pl.missed,
				Attempts: attempt,
			}, nil
		case errors.Is(err, store.ErrConflict):
			log.Debug("lost compare-and-set, retrying",
				zap.Int64("expected", pl.append.ExpectedRevision),
				zap.Int("attempt", attempt))
			continue
		default:
			return nil, tr.reject(p.storageError(sub.ObjectID, err))
		}
	}

	log.Warn("retry budget exhausted", zap.Int("attempts", p.maxAttempts))
	return nil, tr.reject(newRetryExhausted(sub.ObjectID, p.maxAttempts))
}

// prepare reads the object, rebases sub over the tail and computes the
// new value.
func (p *Pipeline) prepare(ctx context.Context, sub Submission, opID string, tr *tracker) (plan, error) {
	current, exists, err := p.load(ctx, sub.ObjectID)
	if err != nil {
		return plan{}, err
	}
	if !exists && sub.BaseRevision != 0 {
		return plan{}, newNotFound(sub.ObjectID, sub.BaseRevision)
	}
	if sub.BaseRevision > current.Revision {
		return plan{}, newInvalidBase(sub.ObjectID, sub.BaseRevision, current.Revision)
	}

	patches := sub.Patches
	tail := []model.CommittedOperation{}
	if sub.BaseRevision < current.Revision {
		tr.move(StateRebasing)
		tail, err = p.tail(ctx, sub.ObjectID, sub.BaseRevision, current.Revision)
		if err != nil {
			return plan{}, err
		}
		for i, c := range tail {
			if c.OperationID == opID {
				return plan{final: &Result{
					Revision:  c.Revision,
					Applied:   c.Patches,
					Previous:  tail[:i],
					Missed:    ot.ComposeAll(tail[:i]),
					Duplicate: true,
				}}, nil
			}
		}
	}

	release, err := p.lockObject(ctx, sub.ObjectID)
	if err != nil {
		return plan{}, err
	}
	if len(tail) > 0 {
		patches = ot.Rebase(sub.Patches, sub.Author, tail)
	}
	value, applyErr := ot.Apply(current.Value, patches)
	release()
	if applyErr != nil {
		return plan{}, p.locateMalformed(ctx, sub, applyErr)
	}
	if p.schema != nil {
		if err := p.schema.Validate(sub.ObjectID.Type, value); err != nil {
			return plan{}, newMalformed(sub.ObjectID, -1, err)
		}
	}

	missed := ot.ComposeAll(tail)
	if exists && model.Equal(value, current.Value) {
		return plan{final: &Result{
			Revision: current.Revision,
			Applied:  patches,
			Previous: tail,
			Missed:   missed,
			Skipped:  true,
		}}, nil
	}

	return plan{
		append: store.Append{
			ObjectID:         sub.ObjectID,
			ExpectedRevision: current.Revision,
			BaseRevision:     sub.BaseRevision,
			Patches:          patches,
			Value:            value,
			Author:           sub.Author,
			CommittedAt:      p.now().UTC(),
			OperationID:      opID,
		},
		previous: tail,
		missed:   missed,
	}, nil
}

// lockObject takes the object's lock when locks are enabled. Callers
// release it before any storage call.
func (p *Pipeline) lockObject(ctx context.Context, id model.ObjectID) (func(), error) {
	if p.locks == nil {
		return func() {}, nil
	}
	return p.locks.acquire(ctx, id.String())
}

// load returns the current snapshot, or the empty revision-0 document
// when the object does not exist yet.
func (p *Pipeline) load(ctx context.Context, id model.ObjectID) (model.Snapshot, bool, error) {
	var snap model.Snapshot
	err := p.retryStorage(ctx, p.logger, func() error {
		var err error
		snap, err = p.store.Get(ctx, id)
		return err
	})
	switch {
	case err == nil:
		return snap, true, nil
	case errors.Is(err, store.ErrNotFound):
		return model.Snapshot{ObjectID: id, Value: model.EmptyDocument()}, false, nil
	default:
		return model.Snapshot{}, false, p.storageError(id, err)
	}
}

// tail returns the operations in (base, current]. Operations committed
// after the snapshot was read are left for the next attempt.
func (p *Pipeline) tail(ctx context.Context, id model.ObjectID, base, current int64) ([]model.CommittedOperation, error) {
	var ops []model.CommittedOperation
	err := p.retryStorage(ctx, p.logger, func() error {
		var err error
		ops, err = p.store.ListCommittedSince(ctx, id, base)
		return err
	})
	if err != nil {
		return nil, p.storageError(id, err)
	}

	tail := ops[:0:0]
	for _, op := range ops {
		if op.Revision <= current {
			tail = append(tail, op)
		}
	}
	if int64(len(tail)) != current-base {
		return nil, newUnavailable(id, fmt.Errorf("revision log has %d entries in (%d, %d]", len(tail), base, current))
	}
	return tail, nil
}

// locateMalformed reports an apply failure with the index of the
// offending submitted patch, checked against the base state.
func (p *Pipeline) locateMalformed(ctx context.Context, sub Submission, applyErr error) error {
	index := -1
	var ae *ot.ApplyError
	if errors.As(applyErr, &ae) {
		index = ae.Index
	}
	if sub.BaseRevision == 0 {
		if _, err := ot.Apply(model.EmptyDocument(), sub.Patches); errors.As(err, &ae) {
			index = ae.Index
		}
		return newMalformed(sub.ObjectID, index, applyErr)
	}

	base, err := store.SnapshotAt(ctx, p.store, sub.ObjectID, sub.BaseRevision)
	if err != nil {
		p.logger.Debug("cannot rebuild base state for error report",
			zap.Stringer("object", sub.ObjectID),
			zap.Error(err))
		return newMalformed(sub.ObjectID, index, applyErr)
	}
	if _, err := ot.Apply(base.Value, sub.Patches); errors.As(err, &ae) {
		index = ae.Index
	}
	return newMalformed(sub.ObjectID, index, applyErr)
}

// retryStorage retries fn with exponential backoff while it fails with
// store.ErrUnavailable. Any other error stops immediately.
func (p *Pipeline) retryStorage(ctx context.Context, log *zap.Logger, fn func() error) error {
	eb := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(p.backoffInitial),
		backoff.WithMaxInterval(p.backoffMax),
		backoff.WithMaxElapsedTime(0),
	)
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(p.maxStorageRetries)), ctx)

	return backoff.RetryNotify(func() error {
		err := fn()
		if err == nil || errors.Is(err, store.ErrUnavailable) {
			return err
		}
		return backoff.Permanent(err)
	}, b, func(err error, wait time.Duration) {
		log.Warn("storage unavailable, backing off",
			zap.Duration("wait", wait),
			zap.Error(err))
	})
}

func (p *Pipeline) storageError(id model.ObjectID, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return newUnavailable(id, err)
}

// publish hands op to every publisher. The commit is durable at this
// point, so publish failures are logged and not returned.
func (p *Pipeline) publish(ctx context.Context, log *zap.Logger, op model.CommittedOperation) {
	ctx = context.WithoutCancel(ctx)
	for _, pub := range p.publishers {
		if err := pub.Publish(ctx, op); err != nil {
			log.Warn("publish failed",
				zap.Int64("revision", op.Revision),
				zap.Error(err))
		}
	}
}
