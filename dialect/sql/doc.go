// Package sql implements the dialect.Driver interface on top of
// database/sql and builds the statements a strata unit of work issues:
//
//   - SelectBy and SelectIn load rows by one column.
//   - BatchInsert writes many rows in one INSERT, returning generated
//     identities where the dialect supports RETURNING.
//   - BulkUpdate rewrites many rows in one UPDATE, using unnest over
//     column arrays on PostgreSQL and CASE expressions elsewhere.
//   - DeletePairs removes join-table rows.
//
// Identifiers are quoted and placeholders numbered per dialect:
//
//	b := sql.Dialect(dialect.Postgres)
//	b.WriteString("SELECT * FROM ").Ident("users").WriteString(" WHERE ").Ident("id").WriteString(" = ").Arg(1)
//	query, args := b.Query() // SELECT * FROM "users" WHERE "id" = $1
//
// StatsDriver and DebugDriver wrap any dialect.Driver with statement
// statistics and statement logging, and StatsCollector exports the
// statistics to Prometheus.
package sql
