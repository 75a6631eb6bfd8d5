package store

import (
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-sql-driver/mysql"

	"github.com/roach88/otcore/internal/store/migrations"
)

var mysqlDialect = dialect{
	kind:     migrations.DialectMySQL,
	builder:  sq.StatementBuilder.PlaceholderFormat(sq.Question),
	classify: classifyMySQL,
}

// MySQL server error numbers.
const (
	mysqlDuplicateEntry  = 1062
	mysqlLockWaitTimeout = 1205
	mysqlDeadlock        = 1213
	mysqlTooManyConns    = 1040
)

// OpenMySQL connects to dsn (user:pass@tcp(host:port)/db) and applies
// migrations.
func OpenMySQL(dsn string, opts ...Option) (*SQLStore, error) {
	o := buildOptions(opts)

	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse dsn: %w", err)
	}
	cfg.ParseTime = true

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", unavailable(err))
	}
	db.SetMaxOpenConns(o.maxOpenConns)
	db.SetMaxIdleConns(5)

	return newSQLStore(db, mysqlDialect, o)
}

func classifyMySQL(err error) error {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case mysqlDuplicateEntry, mysqlDeadlock:
			return conflict(err)
		case mysqlLockWaitTimeout, mysqlTooManyConns:
			return unavailable(err)
		}
	}
	if errors.Is(err, mysql.ErrInvalidConn) {
		return unavailable(err)
	}
	return classifyCommon(err)
}
