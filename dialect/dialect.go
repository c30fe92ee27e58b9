package dialect

import (
	"context"
	"database/sql/driver"
)

// Dialect names for external usage.
const (
	MySQL    = "mysql"
	SQLite   = "sqlite"
	Postgres = "postgres"
)

// ExecQuerier wraps the two database operations used by the unit of work.
type ExecQuerier interface {
	// Exec executes a query that does not return records. For example, in SQL,
	// INSERT or UPDATE. It scans the result into the pointer v. For SQL drivers,
	// it is dialect/sql.Result.
	Exec(ctx context.Context, query string, args, v any) error
	// Query executes a query that returns rows, typically a SELECT in SQL.
	// It scans the result into the pointer v. For SQL drivers, it is
	// *dialect/sql.Rows.
	Query(ctx context.Context, query string, args, v any) error
}

// Driver is the interface that wraps all necessary operations for
// an EntityManager to load and flush entities.
type Driver interface {
	ExecQuerier
	// Tx starts and returns a new transaction.
	// The returned transaction must be committed or rolled back.
	Tx(context.Context) (Tx, error)
	// Close closes the underlying connection.
	Close() error
	// Dialect returns the dialect name of the driver.
	Dialect() string
}

// Tx wraps the Exec and Query operations in transaction.
type Tx interface {
	ExecQuerier
	driver.Tx
}

// Normalize maps a database/sql driver name onto one of the dialect
// names above. Unknown names are returned as is.
func Normalize(name string) string {
	switch name {
	case Postgres, "pgx", "postgresql":
		return Postgres
	case MySQL:
		return MySQL
	case SQLite, "sqlite3":
		return SQLite
	}
	return name
}
