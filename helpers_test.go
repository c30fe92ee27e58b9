package strata_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/syssam/strata"
	"github.com/syssam/strata/dialect"
	"github.com/syssam/strata/dialect/sql"
	"github.com/syssam/strata/meta"
	"github.com/syssam/strata/meta/serde"
)

var authorMeta = meta.New("Author").Rank(0).
	Field("firstName", "text", serde.String).
	OneToMany("books", "Book", "author").
	OneToOne("image", "Image", "author").
	Build()

var bookMeta = meta.New("Book").Rank(1).
	Field("title", "text", serde.String).
	ManyToOne("author", "Author", "books").
	ManyToMany("tags", "Tag", "books", "books_to_tags").
	Build()

var imageMeta = meta.New("Image").Rank(1).
	Field("fileName", "text", serde.String).
	ManyToOne("author", "Author", "image").
	Build()

var tagMeta = meta.New("Tag").Rank(0).
	Field("name", "text", serde.String).
	ManyToMany("books", "Book", "tags", "books_to_tags").
	Build()

var registry = meta.MustNewRegistry(authorMeta, bookMeta, imageMeta, tagMeta)

var ddl = []string{
	`CREATE TABLE authors (id INTEGER PRIMARY KEY AUTOINCREMENT, first_name TEXT)`,
	`CREATE TABLE tags (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT)`,
	`CREATE TABLE books (id INTEGER PRIMARY KEY AUTOINCREMENT, title TEXT, author_id INTEGER REFERENCES authors (id))`,
	`CREATE TABLE images (id INTEGER PRIMARY KEY AUTOINCREMENT, file_name TEXT, author_id INTEGER REFERENCES authors (id))`,
	`CREATE TABLE books_to_tags (
		book_id INTEGER NOT NULL REFERENCES books (id),
		tag_id INTEGER NOT NULL REFERENCES tags (id),
		PRIMARY KEY (book_id, tag_id)
	)`,
}

// openSQLite returns a driver on a fresh database file with foreign keys
// enforced, wrapped in a StatsDriver.
func openSQLite(t *testing.T) *sql.StatsDriver {
	t.Helper()
	path := filepath.Join(t.TempDir(), "strata.db")
	drv, err := sql.Open("sqlite", "file:"+path+"?_pragma=foreign_keys(1)")
	require.NoError(t, err)
	t.Cleanup(func() { drv.Close() })
	for _, stmt := range ddl {
		_, err := drv.DB().Exec(stmt)
		require.NoError(t, err)
	}
	return sql.NewStatsDriver(drv)
}

// exec runs raw SQL against the test database.
func exec(t *testing.T, drv dialect.Driver, query string, args ...any) {
	t.Helper()
	if args == nil {
		args = []any{}
	}
	require.NoError(t, drv.Exec(context.Background(), query, args, nil))
}

// column reads one column of one row.
func column(t *testing.T, drv dialect.Driver, query string, args ...any) any {
	t.Helper()
	if args == nil {
		args = []any{}
	}
	var rows sql.Rows
	require.NoError(t, drv.Query(context.Background(), query, args, &rows))
	values, err := sql.ScanValues(rows)
	require.NoError(t, err)
	require.Len(t, values, 1)
	return values[0][0]
}

// count returns the number of rows a query returns.
func count(t *testing.T, drv dialect.Driver, query string, args ...any) int {
	t.Helper()
	if args == nil {
		args = []any{}
	}
	var rows sql.Rows
	require.NoError(t, drv.Query(context.Background(), query, args, &rows))
	values, err := sql.ScanValues(rows)
	require.NoError(t, err)
	return len(values)
}

func create(t *testing.T, em *strata.EntityManager, m *meta.EntityMeta, fields map[string]any) *strata.Entity {
	t.Helper()
	e, err := em.Create(m, fields)
	require.NoError(t, err)
	return e
}

func members(t *testing.T, c strata.Collection) []*strata.Entity {
	t.Helper()
	got, err := c.Get()
	require.NoError(t, err)
	return got
}

func target(t *testing.T, r strata.Reference) *strata.Entity {
	t.Helper()
	got, err := r.Get()
	require.NoError(t, err)
	return got
}
