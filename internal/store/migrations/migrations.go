// Package migrations manages the versioned SQL schema of the object store.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
)

// Dialect selects per-database DDL and placeholder syntax.
type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectPostgres
	DialectMySQL
)

func (d Dialect) String() string {
	switch d {
	case DialectSQLite:
		return "sqlite3"
	case DialectPostgres:
		return "postgres"
	case DialectMySQL:
		return "mysql"
	}
	return fmt.Sprintf("Dialect(%d)", int(d))
}

// Migration is one forward-only schema step.
type Migration struct {
	Version     int
	Description string
	Up          func(ctx context.Context, tx *sql.Tx, dialect Dialect) error
}

// Manager applies pending migrations and records them in schema_migrations.
type Manager struct {
	db         *sql.DB
	dialect    Dialect
	migrations []Migration
	logger     *zap.Logger
}

// NewManager returns a manager for all known migrations.
func NewManager(db *sql.DB, dialect Dialect, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		db:         db,
		dialect:    dialect,
		migrations: All(),
		logger:     logger,
	}
}

// Run applies every migration newer than the recorded version, each in
// its own transaction. Safe to call on every startup.
func (m *Manager) Run(ctx context.Context) error {
	if err := m.createMigrationsTable(ctx); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	current, err := m.CurrentVersion(ctx)
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	sort.Slice(m.migrations, func(i, j int) bool {
		return m.migrations[i].Version < m.migrations[j].Version
	})

	for _, mig := range m.migrations {
		if mig.Version <= current {
			continue
		}
		m.logger.Info("running migration",
			zap.Int("version", mig.Version),
			zap.String("description", mig.Description),
			zap.Stringer("dialect", m.dialect))
		if err := m.apply(ctx, mig); err != nil {
			return fmt.Errorf("migration %d: %w", mig.Version, err)
		}
	}
	return nil
}

func (m *Manager) apply(ctx context.Context, mig Migration) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := mig.Up(ctx, tx, m.dialect); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, m.insertVersionSQL(), mig.Version, mig.Description, time.Now().UTC().UnixNano()); err != nil {
		return fmt.Errorf("record version: %w", err)
	}
	return tx.Commit()
}

// CurrentVersion returns the highest applied migration, or 0.
func (m *Manager) CurrentVersion(ctx context.Context) (int, error) {
	var version int
	row := m.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&version); err != nil {
		return 0, err
	}
	return version, nil
}

func (m *Manager) createMigrationsTable(ctx context.Context) error {
	query := `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		description TEXT NOT NULL,
		applied_at BIGINT NOT NULL
	)`
	if m.dialect == DialectMySQL {
		query = `CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			description VARCHAR(255) NOT NULL,
			applied_at BIGINT NOT NULL
		)`
	}
	_, err := m.db.ExecContext(ctx, query)
	return err
}

func (m *Manager) insertVersionSQL() string {
	if m.dialect == DialectPostgres {
		return "INSERT INTO schema_migrations (version, description, applied_at) VALUES ($1, $2, $3)"
	}
	return "INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)"
}

// All returns every migration in version order.
func All() []Migration {
	return []Migration{
		migration001Objects(),
	}
}

func execAll(ctx context.Context, tx *sql.Tx, queries []string) error {
	for _, q := range queries {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}
