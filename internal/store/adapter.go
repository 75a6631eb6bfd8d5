package store

import (
	"context"
	"errors"
	"time"

	"github.com/roach88/otcore/internal/model"
)

var (
	// ErrNotFound means no object exists with the given id.
	ErrNotFound = errors.New("object not found")

	// ErrConflict means the object's revision no longer matches the
	// expected revision. The caller should re-read and retry.
	ErrConflict = errors.New("concurrent write conflict")

	// ErrUnavailable wraps transient storage failures.
	ErrUnavailable = errors.New("storage unavailable")
)

// Adapter is the narrow persistence interface the commit pipeline needs.
// Implementations must make AppendIfRevision atomic: the log entry and
// the current-state record change together or not at all.
type Adapter interface {
	// Get returns the current snapshot, or ErrNotFound.
	Get(ctx context.Context, id model.ObjectID) (model.Snapshot, error)

	// AppendIfRevision commits a new revision if the object is still at
	// a.ExpectedRevision (0 meaning "does not exist yet"). It returns the
	// new revision, or ErrConflict if another writer got there first.
	AppendIfRevision(ctx context.Context, a Append) (int64, error)

	// ListCommittedSince returns operations with revision > since in
	// ascending revision order. Unknown objects yield an empty slice.
	ListCommittedSince(ctx context.Context, id model.ObjectID, since int64) ([]model.CommittedOperation, error)
}

// Store is an Adapter that owns resources.
type Store interface {
	Adapter
	Close() error
}

// Append is one conditional write: the adjusted patches to log and the
// resulting document value to store as the new current state.
type Append struct {
	ObjectID         model.ObjectID
	ExpectedRevision int64
	BaseRevision     int64
	Patches          []model.Patch
	Value            model.Object
	Author           string
	CommittedAt      time.Time
	OperationID      string
}

// Committed returns the log entry this append produces at revision rev.
func (a Append) Committed(rev int64) model.CommittedOperation {
	patches := a.Patches
	if patches == nil {
		patches = []model.Patch{}
	}
	return model.CommittedOperation{
		ObjectID:     a.ObjectID,
		Revision:     rev,
		BaseRevision: a.BaseRevision,
		Patches:      patches,
		Author:       a.Author,
		CommittedAt:  a.CommittedAt.UTC(),
		OperationID:  a.OperationID,
	}
}
