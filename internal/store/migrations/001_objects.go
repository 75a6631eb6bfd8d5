package migrations

import (
	"context"
	"database/sql"
)

// migration001Objects creates the current-state table and the revision log.
func migration001Objects() Migration {
	return Migration{
		Version:     1,
		Description: "objects and operations tables",
		Up: func(ctx context.Context, tx *sql.Tx, dialect Dialect) error {
			switch dialect {
			case DialectMySQL:
				return execAll(ctx, tx, mysqlObjects)
			case DialectPostgres:
				return execAll(ctx, tx, postgresObjects)
			default:
				return execAll(ctx, tx, sqliteObjects)
			}
		},
	}
}

var sqliteObjects = []string{
	`CREATE TABLE IF NOT EXISTS objects (
		object_id TEXT PRIMARY KEY,
		tenant TEXT NOT NULL,
		type TEXT NOT NULL,
		revision INTEGER NOT NULL,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS operations (
		object_id TEXT NOT NULL,
		revision INTEGER NOT NULL,
		base_revision INTEGER NOT NULL,
		author TEXT NOT NULL,
		operation_id TEXT NOT NULL,
		patches TEXT NOT NULL,
		committed_at INTEGER NOT NULL,
		PRIMARY KEY (object_id, revision),
		FOREIGN KEY (object_id) REFERENCES objects(object_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_objects_tenant ON objects(tenant, type)`,
}

var postgresObjects = []string{
	`CREATE TABLE IF NOT EXISTS objects (
		object_id TEXT PRIMARY KEY,
		tenant TEXT NOT NULL,
		type TEXT NOT NULL,
		revision BIGINT NOT NULL,
		value TEXT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS operations (
		object_id TEXT NOT NULL REFERENCES objects(object_id),
		revision BIGINT NOT NULL,
		base_revision BIGINT NOT NULL,
		author TEXT NOT NULL,
		operation_id TEXT NOT NULL,
		patches TEXT NOT NULL,
		committed_at BIGINT NOT NULL,
		PRIMARY KEY (object_id, revision)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_objects_tenant ON objects(tenant, type)`,
}

var mysqlObjects = []string{
	`CREATE TABLE IF NOT EXISTS objects (
		object_id VARCHAR(255) NOT NULL PRIMARY KEY,
		tenant VARCHAR(64) NOT NULL,
		type VARCHAR(32) NOT NULL,
		revision BIGINT NOT NULL,
		value LONGTEXT NOT NULL,
		updated_at BIGINT NOT NULL,
		INDEX idx_objects_tenant (tenant, type)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_bin`,
	`CREATE TABLE IF NOT EXISTS operations (
		object_id VARCHAR(255) NOT NULL,
		revision BIGINT NOT NULL,
		base_revision BIGINT NOT NULL,
		author VARCHAR(128) NOT NULL,
		operation_id CHAR(64) NOT NULL,
		patches LONGTEXT NOT NULL,
		committed_at BIGINT NOT NULL,
		PRIMARY KEY (object_id, revision),
		CONSTRAINT fk_operations_object FOREIGN KEY (object_id) REFERENCES objects(object_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_bin`,
}
