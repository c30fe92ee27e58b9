// Package dialect provides the database dialect abstraction used by strata.
//
// The EntityManager never talks to database/sql directly. It loads rows and
// flushes batches through the Driver interface defined here, which keeps the
// unit of work testable with a mocked connection and lets a caller hand it a
// transaction instead of a pool.
//
// # Supported Dialects
//
//   - Postgres: PostgreSQL (lib/pq or pgx stdlib driver)
//   - MySQL: MySQL/MariaDB (go-sql-driver/mysql)
//   - SQLite: SQLite (modernc.org/sqlite)
//
// # Driver Interface
//
//	type Driver interface {
//	    Exec(ctx context.Context, query string, args, v any) error
//	    Query(ctx context.Context, query string, args, v any) error
//	    Tx(ctx context.Context) (Tx, error)
//	    Close() error
//	    Dialect() string
//	}
//
// The Tx interface embeds ExecQuerier together with database/sql/driver.Tx,
// so a flush issued through a Tx is committed or rolled back as one unit.
//
// # Usage
//
//	drv, err := sql.Open(dialect.Postgres, "postgres://...")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer drv.Close()
//	em := strata.NewEntityManager(drv, registry)
//
// # Sub-packages
//
//   - dialect/sql: database/sql driver, statement builder, stats and debug drivers
//   - dialect/sql/sqlgraph: constraint error classification
package dialect
