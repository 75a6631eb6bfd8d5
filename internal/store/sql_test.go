package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/otcore/internal/model"
	"github.com/roach88/otcore/internal/store/migrations"
)

func TestOpenSQLite_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := OpenSQLite(path)
	require.NoError(t, err)
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpenSQLite_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")
	id := freshID()

	s1, err := OpenSQLite(path)
	require.NoError(t, err)
	_, err = s1.AppendIfRevision(ctx, appendAt(id, 0, model.Object{"kept": model.Bool(true)}))
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	for i := 0; i < 3; i++ {
		s, err := OpenSQLite(path)
		require.NoError(t, err, "reopen %d", i)
		snap, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, int64(1), snap.Revision)
		assert.Equal(t, model.Object{"kept": model.Bool(true)}, snap.Value)

		version, err := migrations.NewManager(s.db, migrations.DialectSQLite, nil).CurrentVersion(ctx)
		require.NoError(t, err)
		assert.Equal(t, len(migrations.All()), version)
		require.NoError(t, s.Close())
	}
}

func TestOpenSQLite_Pragmas(t *testing.T) {
	s := createTestStore(t)

	var mode string
	require.NoError(t, s.db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)

	var timeout int
	require.NoError(t, s.db.QueryRow("PRAGMA busy_timeout").Scan(&timeout))
	assert.Equal(t, 5000, timeout)

	var fk int
	require.NoError(t, s.db.QueryRow("PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk)
}

func TestOpenSQLite_Tables(t *testing.T) {
	s := createTestStore(t)
	for _, table := range []string{"objects", "operations", "schema_migrations"} {
		var name string
		err := s.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		assert.NoError(t, err, "table %q", table)
	}
}

func TestSQLStore_LogRowsAreImmutableKeys(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	id := freshID()

	_, err := s.AppendIfRevision(ctx, appendAt(id, 0, model.Object{}))
	require.NoError(t, err)

	// A second log row at the same revision violates the primary key.
	_, err = s.db.Exec(`INSERT INTO operations
		(object_id, revision, base_revision, author, operation_id, patches, committed_at)
		VALUES (?, 1, 0, 'x', 'x', '[]', 0)`, id.String())
	require.Error(t, err)
	assert.ErrorIs(t, classifySQLite(err), ErrConflict)
}

func TestSQLStore_CorruptValue(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	id := freshID()

	_, err := s.AppendIfRevision(ctx, appendAt(id, 0, model.Object{}))
	require.NoError(t, err)
	_, err = s.db.Exec("UPDATE objects SET value = '[1,2]' WHERE object_id = ?", id.String())
	require.NoError(t, err)

	_, err = s.Get(ctx, id)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not an object")
}

func TestOpen_Drivers(t *testing.T) {
	mem, err := Open(DriverMemory, "")
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, mem)

	lite, err := Open(DriverSQLite, filepath.Join(t.TempDir(), "open.db"))
	require.NoError(t, err)
	defer lite.Close()
	assert.IsType(t, &SQLStore{}, lite)

	_, err = Open("oracle", "")
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		classify func(error) error
		err      error
		want     error
	}{
		{"sqlite unique", classifySQLite, sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}, ErrConflict},
		{"sqlite busy", classifySQLite, sqlite3.Error{Code: sqlite3.ErrBusy}, ErrUnavailable},
		{"postgres unique", classifyPostgres, &pq.Error{Code: "23505"}, ErrConflict},
		{"postgres serialization", classifyPostgres, &pq.Error{Code: "40001"}, ErrConflict},
		{"postgres connection", classifyPostgres, &pq.Error{Code: "08006"}, ErrUnavailable},
		{"mysql duplicate", classifyMySQL, &mysql.MySQLError{Number: 1062}, ErrConflict},
		{"mysql lock wait", classifyMySQL, &mysql.MySQLError{Number: 1205}, ErrUnavailable},
		{"mysql bad conn", classifyMySQL, mysql.ErrInvalidConn, ErrUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.classify(tt.err), tt.want)
		})
	}

	plain := &pq.Error{Code: "42601"}
	assert.Same(t, plain, classifyPostgres(plain))
}
