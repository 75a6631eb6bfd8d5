package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"go.uber.org/zap"

	"github.com/roach88/otcore/internal/model"
	"github.com/roach88/otcore/internal/store/migrations"
)

// SQLStore is an Adapter over database/sql. The same queries serve every
// dialect; only placeholders, DDL and error classification differ.
//
// Compare-and-set is an UPDATE guarded by "revision = expected". The
// first revision is an INSERT that collides on the objects primary key,
// and the (object_id, revision) key on operations backs both up.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	logger  *zap.Logger
}

var _ Store = (*SQLStore)(nil)

type dialect struct {
	kind     migrations.Dialect
	builder  sq.StatementBuilderType
	classify func(error) error
}

// Option configures a SQLStore.
type Option func(*options)

type options struct {
	logger       *zap.Logger
	maxOpenConns int
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMaxOpenConns caps the connection pool. Ignored for SQLite, which
// always uses a single connection.
func WithMaxOpenConns(n int) Option {
	return func(o *options) {
		o.maxOpenConns = n
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: zap.NewNop(), maxOpenConns: 25}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// newSQLStore runs migrations and wraps db. It closes db on failure.
func newSQLStore(db *sql.DB, d dialect, o options) (*SQLStore, error) {
	if err := migrations.NewManager(db, d.kind, o.logger).Run(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return &SQLStore{db: db, dialect: d, logger: o.logger}, nil
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLStore) Get(ctx context.Context, id model.ObjectID) (model.Snapshot, error) {
	query, args, err := s.dialect.builder.
		Select("revision", "value").
		From("objects").
		Where(sq.Eq{"object_id": id.String()}).
		ToSql()
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("get %s: %w", id, err)
	}

	var (
		rev   int64
		value string
	)
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&rev, &value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Snapshot{}, fmt.Errorf("get %s: %w", id, ErrNotFound)
		}
		return model.Snapshot{}, fmt.Errorf("get %s: %w", id, s.dialect.classify(err))
	}

	doc, err := decodeDocument(value)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("get %s: %w", id, err)
	}
	return model.Snapshot{ObjectID: id, Revision: rev, Value: doc}, nil
}

func (s *SQLStore) AppendIfRevision(ctx context.Context, a Append) (int64, error) {
	key := a.ObjectID.String()
	value, err := model.MarshalCanonical(a.Value)
	if err != nil {
		return 0, fmt.Errorf("append %s: marshal value: %w", key, err)
	}
	patches, err := json.Marshal(model.Patches(a.Patches))
	if err != nil {
		return 0, fmt.Errorf("append %s: marshal patches: %w", key, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("append %s: begin: %w", key, s.dialect.classify(err))
	}
	defer tx.Rollback()

	rev := a.ExpectedRevision + 1
	at := a.CommittedAt.UTC().UnixNano()

	if a.ExpectedRevision == 0 {
		query, args, err := s.dialect.builder.
			Insert("objects").
			Columns("object_id", "tenant", "type", "revision", "value", "updated_at").
			Values(key, a.ObjectID.Tenant, string(a.ObjectID.Type), rev, string(value), at).
			ToSql()
		if err != nil {
			return 0, fmt.Errorf("append %s: %w", key, err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return 0, fmt.Errorf("append %s: create: %w", key, s.dialect.classify(err))
		}
	} else {
		query, args, err := s.dialect.builder.
			Update("objects").
			Set("revision", rev).
			Set("value", string(value)).
			Set("updated_at", at).
			Where(sq.Eq{"object_id": key, "revision": a.ExpectedRevision}).
			ToSql()
		if err != nil {
			return 0, fmt.Errorf("append %s: %w", key, err)
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, fmt.Errorf("append %s: update: %w", key, s.dialect.classify(err))
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("append %s: rows affected: %w", key, s.dialect.classify(err))
		}
		if n == 0 {
			return 0, s.missedUpdate(ctx, tx, a)
		}
	}

	query, args, err := s.dialect.builder.
		Insert("operations").
		Columns("object_id", "revision", "base_revision", "author", "operation_id", "patches", "committed_at").
		Values(key, rev, a.BaseRevision, a.Author, a.OperationID, string(patches), at).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("append %s: %w", key, err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return 0, fmt.Errorf("append %s: log: %w", key, s.dialect.classify(err))
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("append %s: commit: %w", key, s.dialect.classify(err))
	}

	s.logger.Debug("appended revision",
		zap.String("object", key),
		zap.Int64("revision", rev))
	return rev, nil
}

// missedUpdate explains a guarded UPDATE that matched no row.
func (s *SQLStore) missedUpdate(ctx context.Context, tx *sql.Tx, a Append) error {
	key := a.ObjectID.String()
	query, args, err := s.dialect.builder.
		Select("revision").
		From("objects").
		Where(sq.Eq{"object_id": key}).
		ToSql()
	if err != nil {
		return fmt.Errorf("append %s: %w", key, err)
	}
	var current int64
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("append %s: %w", key, ErrNotFound)
		}
		return fmt.Errorf("append %s: %w", key, s.dialect.classify(err))
	}
	return fmt.Errorf("append %s at revision %d (current %d): %w", key, a.ExpectedRevision, current, ErrConflict)
}

func (s *SQLStore) ListCommittedSince(ctx context.Context, id model.ObjectID, since int64) ([]model.CommittedOperation, error) {
	query, args, err := s.dialect.builder.
		Select("revision", "base_revision", "author", "operation_id", "patches", "committed_at").
		From("operations").
		Where(sq.Eq{"object_id": id.String()}).
		Where(sq.Gt{"revision": since}).
		OrderBy("revision ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", id, err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", id, s.dialect.classify(err))
	}
	defer rows.Close()

	ops := []model.CommittedOperation{}
	for rows.Next() {
		var (
			op      = model.CommittedOperation{ObjectID: id}
			patches string
			at      int64
		)
		if err := rows.Scan(&op.Revision, &op.BaseRevision, &op.Author, &op.OperationID, &patches, &at); err != nil {
			return nil, fmt.Errorf("list %s: scan: %w", id, err)
		}
		var decoded model.Patches
		if err := json.Unmarshal([]byte(patches), &decoded); err != nil {
			return nil, fmt.Errorf("list %s: revision %d: %w", id, op.Revision, err)
		}
		op.Patches = decoded
		op.CommittedAt = time.Unix(0, at).UTC()
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list %s: iterate: %w", id, s.dialect.classify(err))
	}
	return ops, nil
}

func decodeDocument(data string) (model.Object, error) {
	v, err := model.DecodeValue([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	obj, ok := v.(model.Object)
	if !ok {
		return nil, fmt.Errorf("decode document: stored value is %s, not an object", model.KindName(v))
	}
	return obj, nil
}

func conflict(err error) error {
	return fmt.Errorf("%w: %v", ErrConflict, err)
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
