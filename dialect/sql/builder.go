package sql

import (
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/syssam/strata/dialect"
)

// Builder is the base query builder for the statements issued by the
// unit of work. It quotes identifiers and numbers placeholders according
// to its dialect.
type Builder struct {
	sb      strings.Builder
	args    []any
	dialect string
}

// Dialect creates a new Builder for the given dialect.
func Dialect(name string) *Builder {
	return &Builder{dialect: dialect.Normalize(name)}
}

// WriteString appends raw SQL to the builder.
func (b *Builder) WriteString(s string) *Builder {
	b.sb.WriteString(s)
	return b
}

// Ident appends a quoted identifier. Qualified names ("t.c") are quoted
// part by part.
func (b *Builder) Ident(s string) *Builder {
	for i, part := range strings.Split(s, ".") {
		if i > 0 {
			b.sb.WriteByte('.')
		}
		b.sb.WriteString(b.quote(part))
	}
	return b
}

// IdentComma appends the quoted identifiers separated by commas.
func (b *Builder) IdentComma(s ...string) *Builder {
	for i := range s {
		if i > 0 {
			b.sb.WriteString(", ")
		}
		b.Ident(s[i])
	}
	return b
}

// Arg appends a placeholder for v and records v as a statement argument.
func (b *Builder) Arg(v any) *Builder {
	b.args = append(b.args, v)
	if b.dialect == dialect.Postgres {
		b.sb.WriteByte('$')
		b.sb.WriteString(strconv.Itoa(len(b.args)))
	} else {
		b.sb.WriteByte('?')
	}
	return b
}

// Args appends the placeholders for vs separated by commas.
func (b *Builder) Args(vs ...any) *Builder {
	for i := range vs {
		if i > 0 {
			b.sb.WriteString(", ")
		}
		b.Arg(vs[i])
	}
	return b
}

// Query returns the statement text and its arguments.
func (b *Builder) Query() (string, []any) {
	return b.sb.String(), b.args
}

func (b *Builder) quote(s string) string {
	if b.dialect == dialect.MySQL {
		return "`" + strings.ReplaceAll(s, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// SupportsReturning reports whether the dialect can return generated
// identities from a multi-row insert.
func SupportsReturning(name string) bool {
	return dialect.Normalize(name) != dialect.MySQL
}

// SelectBy builds "SELECT columns FROM table WHERE column = value ORDER BY id".
func SelectBy(name, table string, columns []string, column string, value any) (string, []any) {
	b := Dialect(name)
	b.WriteString("SELECT ").IdentComma(columns...).
		WriteString(" FROM ").Ident(table).
		WriteString(" WHERE ").Ident(column).WriteString(" = ").Arg(value).
		WriteString(" ORDER BY ").Ident(columns[0])
	return b.Query()
}

// SelectIn builds "SELECT columns FROM table WHERE column IN (values...)".
func SelectIn(name, table string, columns []string, column string, values []any) (string, []any) {
	b := Dialect(name)
	b.WriteString("SELECT ").IdentComma(columns...).
		WriteString(" FROM ").Ident(table).
		WriteString(" WHERE ").Ident(column).WriteString(" IN (").Args(values...).WriteString(")")
	return b.Query()
}

// BatchInsert describes a multi-row insert.
type BatchInsert struct {
	Table   string
	Columns []string
	// Rows holds one value per column for every inserted row.
	Rows [][]any
	// Returning is the generated column to return, if any. It is
	// ignored by dialects that do not support RETURNING.
	Returning string
	// IgnoreConflicts skips rows that violate a unique constraint.
	IgnoreConflicts bool
}

// Query builds the insert statement.
func (i *BatchInsert) Query(name string) (string, []any) {
	b := Dialect(name)
	if i.IgnoreConflicts && b.dialect == dialect.MySQL {
		b.WriteString("INSERT IGNORE INTO ")
	} else {
		b.WriteString("INSERT INTO ")
	}
	b.Ident(i.Table).
		WriteString(" (").IdentComma(i.Columns...).WriteString(") VALUES ")
	for j, row := range i.Rows {
		if j > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(").Args(row...).WriteString(")")
	}
	if i.IgnoreConflicts && b.dialect != dialect.MySQL {
		b.WriteString(" ON CONFLICT DO NOTHING")
	}
	if i.Returning != "" && SupportsReturning(b.dialect) {
		b.WriteString(" RETURNING ").Ident(i.Returning)
	}
	return b.Query()
}

// UpdateColumn is a column written by a BulkUpdate.
type UpdateColumn struct {
	Name string
	// DBType is the database type used to cast the columnar array
	// in the Postgres form of the statement.
	DBType string
}

// BulkUpdate describes a set-based update of many rows keyed by a
// single identity column.
type BulkUpdate struct {
	Table   string
	Key     UpdateColumn
	Columns []UpdateColumn
	// Keys holds the key of every updated row.
	Keys []any
	// Values holds, per column, the new value of every row in Keys order.
	Values [][]any
}

// Query builds the update statement. Postgres receives one array per
// column and joins against their unnest; other dialects receive a CASE
// expression per column.
func (u *BulkUpdate) Query(name string) (string, []any) {
	b := Dialect(name)
	if b.dialect == dialect.Postgres {
		u.columnar(b)
	} else {
		u.cases(b)
	}
	return b.Query()
}

func (u *BulkUpdate) columnar(b *Builder) {
	const data = "data"
	b.WriteString("UPDATE ").Ident(u.Table).WriteString(" SET ")
	for i, c := range u.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.Ident(c.Name).WriteString(" = ").Ident(data + "." + c.Name)
	}
	b.WriteString(" FROM (SELECT ")
	unnest := func(c UpdateColumn, values []any) {
		b.WriteString("unnest(").Arg(pq.Array(values)).
			WriteString("::" + c.DBType + "[]) AS ").Ident(c.Name)
	}
	unnest(u.Key, u.Keys)
	for i, c := range u.Columns {
		b.WriteString(", ")
		unnest(c, u.Values[i])
	}
	b.WriteString(") AS ").Ident(data).
		WriteString(" WHERE ").Ident(u.Table + "." + u.Key.Name).
		WriteString(" = ").Ident(data + "." + u.Key.Name)
}

func (u *BulkUpdate) cases(b *Builder) {
	b.WriteString("UPDATE ").Ident(u.Table).WriteString(" SET ")
	for i, c := range u.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.Ident(c.Name).WriteString(" = CASE ").Ident(u.Key.Name)
		for j, key := range u.Keys {
			b.WriteString(" WHEN ").Arg(key).WriteString(" THEN ").Arg(u.Values[i][j])
		}
		b.WriteString(" END")
	}
	b.WriteString(" WHERE ").Ident(u.Key.Name).WriteString(" IN (").Args(u.Keys...).WriteString(")")
}

// DeletePairs builds a delete of join-table rows matching any of the
// given (column, otherColumn) pairs.
func DeletePairs(name, table, column, otherColumn string, pairs [][2]any) (string, []any) {
	b := Dialect(name)
	b.WriteString("DELETE FROM ").Ident(table).WriteString(" WHERE ")
	for i, p := range pairs {
		if i > 0 {
			b.WriteString(" OR ")
		}
		b.WriteString("(").Ident(column).WriteString(" = ").Arg(p[0]).
			WriteString(" AND ").Ident(otherColumn).WriteString(" = ").Arg(p[1]).WriteString(")")
	}
	return b.Query()
}
