package sql

import (
	"database/sql/driver"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/strata/dialect"
)

func TestBuilderQuoting(t *testing.T) {
	tests := []struct {
		dialect string
		want    string
	}{
		{dialect.Postgres, `"books"."author_id" = $1`},
		{dialect.SQLite, `"books"."author_id" = ?`},
		{dialect.MySQL, "`books`.`author_id` = ?"},
		{"pgx", `"books"."author_id" = $1`},
	}
	for _, tt := range tests {
		t.Run(tt.dialect, func(t *testing.T) {
			query, args := Dialect(tt.dialect).Ident("books.author_id").WriteString(" = ").Arg(1).Query()
			assert.Equal(t, tt.want, query)
			assert.Equal(t, []any{1}, args)
		})
	}
	query, _ := Dialect(dialect.Postgres).Ident(`we"ird`).Query()
	assert.Equal(t, `"we""ird"`, query)
}

func TestSelectBy(t *testing.T) {
	query, args := SelectBy(dialect.Postgres, "books", []string{"id", "title", "author_id"}, "author_id", int64(1))
	assert.Equal(t, `SELECT "id", "title", "author_id" FROM "books" WHERE "author_id" = $1 ORDER BY "id"`, query)
	assert.Equal(t, []any{int64(1)}, args)
}

func TestSelectIn(t *testing.T) {
	query, args := SelectIn(dialect.MySQL, "authors", []string{"id", "first_name"}, "id", []any{int64(3), int64(1)})
	assert.Equal(t, "SELECT `id`, `first_name` FROM `authors` WHERE `id` IN (?, ?)", query)
	assert.Equal(t, []any{int64(3), int64(1)}, args)
}

func TestBatchInsert(t *testing.T) {
	insert := &BatchInsert{
		Table:     "authors",
		Columns:   []string{"first_name", "age"},
		Rows:      [][]any{{"a1", 30}, {"a2", nil}},
		Returning: "id",
	}
	t.Run("postgres", func(t *testing.T) {
		query, args := insert.Query(dialect.Postgres)
		assert.Equal(t, `INSERT INTO "authors" ("first_name", "age") VALUES ($1, $2), ($3, $4) RETURNING "id"`, query)
		assert.Equal(t, []any{"a1", 30, "a2", nil}, args)
	})
	t.Run("sqlite", func(t *testing.T) {
		query, _ := insert.Query(dialect.SQLite)
		assert.Equal(t, `INSERT INTO "authors" ("first_name", "age") VALUES (?, ?), (?, ?) RETURNING "id"`, query)
	})
	t.Run("mysql", func(t *testing.T) {
		query, _ := insert.Query(dialect.MySQL)
		assert.Equal(t, "INSERT INTO `authors` (`first_name`, `age`) VALUES (?, ?), (?, ?)", query)
	})
}

func TestBatchInsertIgnoreConflicts(t *testing.T) {
	insert := &BatchInsert{
		Table:           "books_to_tags",
		Columns:         []string{"book_id", "tag_id"},
		Rows:            [][]any{{int64(1), int64(2)}},
		IgnoreConflicts: true,
	}
	query, _ := insert.Query(dialect.Postgres)
	assert.Equal(t, `INSERT INTO "books_to_tags" ("book_id", "tag_id") VALUES ($1, $2) ON CONFLICT DO NOTHING`, query)
	query, _ = insert.Query(dialect.MySQL)
	assert.Equal(t, "INSERT IGNORE INTO `books_to_tags` (`book_id`, `tag_id`) VALUES (?, ?)", query)
}

func TestBulkUpdate(t *testing.T) {
	update := &BulkUpdate{
		Table:   "books",
		Key:     UpdateColumn{Name: "id", DBType: "bigint"},
		Columns: []UpdateColumn{{Name: "title", DBType: "text"}, {Name: "author_id", DBType: "bigint"}},
		Keys:    []any{int64(1), int64(2)},
		Values:  [][]any{{"t1", "t2"}, {int64(10), nil}},
	}
	t.Run("postgres", func(t *testing.T) {
		query, args := update.Query(dialect.Postgres)
		assert.Equal(t, `UPDATE "books" SET "title" = "data"."title", "author_id" = "data"."author_id" `+
			`FROM (SELECT unnest($1::bigint[]) AS "id", unnest($2::text[]) AS "title", unnest($3::bigint[]) AS "author_id") AS "data" `+
			`WHERE "books"."id" = "data"."id"`, query)
		require.Len(t, args, 3)
		v, err := args[1].(driver.Valuer).Value()
		require.NoError(t, err)
		assert.Equal(t, `{"t1","t2"}`, v)
		assert.Equal(t, pq.Array([]any{int64(10), nil}), args[2])
	})
	t.Run("sqlite", func(t *testing.T) {
		query, args := update.Query(dialect.SQLite)
		assert.Equal(t, `UPDATE "books" SET "title" = CASE "id" WHEN ? THEN ? WHEN ? THEN ? END, `+
			`"author_id" = CASE "id" WHEN ? THEN ? WHEN ? THEN ? END WHERE "id" IN (?, ?)`, query)
		assert.Equal(t, []any{int64(1), "t1", int64(2), "t2", int64(1), int64(10), int64(2), nil, int64(1), int64(2)}, args)
	})
}

func TestDeletePairs(t *testing.T) {
	query, args := DeletePairs(dialect.SQLite, "book_tags", "book_id", "tag_id", [][2]any{{1, 2}, {1, 3}})
	assert.Equal(t, `DELETE FROM "book_tags" WHERE ("book_id" = ? AND "tag_id" = ?) OR ("book_id" = ? AND "tag_id" = ?)`, query)
	assert.Equal(t, []any{1, 2, 1, 3}, args)
}

func TestSupportsReturning(t *testing.T) {
	assert.True(t, SupportsReturning(dialect.Postgres))
	assert.True(t, SupportsReturning(dialect.SQLite))
	assert.False(t, SupportsReturning(dialect.MySQL))
}
