package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/otcore/internal/model"
)

// MemoryStore is an in-process Adapter. It backs tests and single-node
// runs without a database.
type MemoryStore struct {
	mu       sync.Mutex
	objects  map[string]*memObject
	onAppend func(Append) error
	failN    int
	failErr  error
}

type memObject struct {
	snapshot model.Snapshot
	log      []model.CommittedOperation
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]*memObject)}
}

// OnAppend installs a hook run at the start of every AppendIfRevision.
// A non-nil error from the hook is returned instead of writing.
// Pass nil to remove the hook.
func (m *MemoryStore) OnAppend(fn func(Append) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onAppend = fn
}

// FailNext makes the next n calls to AppendIfRevision return err
// without writing. n < 0 fails every call until FailNext(0, nil).
func (m *MemoryStore) FailNext(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failN = n
	m.failErr = err
}

func (m *MemoryStore) Get(ctx context.Context, id model.ObjectID) (model.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return model.Snapshot{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	obj, ok := m.objects[id.String()]
	if !ok {
		return model.Snapshot{}, fmt.Errorf("get %s: %w", id, ErrNotFound)
	}
	return obj.snapshot, nil
}

func (m *MemoryStore) AppendIfRevision(ctx context.Context, a Append) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failN != 0 {
		if m.failN > 0 {
			m.failN--
		}
		return 0, m.failErr
	}
	if m.onAppend != nil {
		if err := m.onAppend(a); err != nil {
			return 0, err
		}
	}

	key := a.ObjectID.String()
	obj, exists := m.objects[key]
	var current int64
	if exists {
		current = obj.snapshot.Revision
	}
	if !exists && a.ExpectedRevision != 0 {
		return 0, fmt.Errorf("append %s: %w", key, ErrNotFound)
	}
	if current != a.ExpectedRevision {
		return 0, fmt.Errorf("append %s at revision %d (current %d): %w", key, a.ExpectedRevision, current, ErrConflict)
	}

	rev := current + 1
	if !exists {
		obj = &memObject{}
		m.objects[key] = obj
	}
	obj.snapshot = model.Snapshot{ObjectID: a.ObjectID, Revision: rev, Value: a.Value}
	obj.log = append(obj.log, a.Committed(rev))
	return rev, nil
}

func (m *MemoryStore) ListCommittedSince(ctx context.Context, id model.ObjectID, since int64) ([]model.CommittedOperation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []model.CommittedOperation{}
	obj, ok := m.objects[id.String()]
	if !ok {
		return out, nil
	}
	for _, op := range obj.log {
		if op.Revision > since {
			out = append(out, op)
		}
	}
	return out, nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}
