package store

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
)

// Drivers accepted by Open.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// Open returns a Store for the named driver. dsn is ignored for the
// memory driver and is a file path for SQLite.
func Open(driverName, dsn string, opts ...Option) (Store, error) {
	var (
		s   *SQLStore
		err error
	)
	switch driverName {
	case DriverMemory:
		return NewMemoryStore(), nil
	case DriverSQLite, "sqlite":
		s, err = OpenSQLite(dsn, opts...)
	case DriverPostgres:
		s, err = OpenPostgres(dsn, opts...)
	case DriverMySQL:
		s, err = OpenMySQL(dsn, opts...)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driverName)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// classifyCommon maps driver-independent connection failures.
func classifyCommon(err error) error {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return unavailable(err)
	}
	return err
}
