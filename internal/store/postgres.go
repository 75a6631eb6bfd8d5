package store

import (
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"github.com/roach88/otcore/internal/store/migrations"
)

var postgresDialect = dialect{
	kind:     migrations.DialectPostgres,
	builder:  sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	classify: classifyPostgres,
}

// OpenPostgres connects to dsn (a postgres:// URL or key=value string)
// and applies migrations.
func OpenPostgres(dsn string, opts ...Option) (*SQLStore, error) {
	o := buildOptions(opts)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", unavailable(err))
	}
	db.SetMaxOpenConns(o.maxOpenConns)
	db.SetMaxIdleConns(5)

	return newSQLStore(db, postgresDialect, o)
}

func classifyPostgres(err error) error {
	var pe *pq.Error
	if errors.As(err, &pe) {
		switch pe.Code.Name() {
		case "unique_violation", "serialization_failure", "deadlock_detected":
			return conflict(err)
		case "admin_shutdown", "crash_shutdown", "cannot_connect_now", "too_many_connections":
			return unavailable(err)
		}
		if pe.Code.Class() == "08" {
			return unavailable(err)
		}
	}
	return classifyCommon(err)
}
