package sql

import (
	"strconv"
	"testing"

	"github.com/syssam/strata/dialect"
)

func BenchmarkBatchInsert(b *testing.B) {
	rows := make([][]any, 100)
	for i := range rows {
		rows[i] = []any{"title " + strconv.Itoa(i), int64(i)}
	}
	insert := &BatchInsert{Table: "books", Columns: []string{"title", "author_id"}, Rows: rows, Returning: "id"}
	for _, d := range []string{dialect.SQLite, dialect.MySQL, dialect.Postgres} {
		b.Run(d, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				insert.Query(d)
			}
		})
	}
}

func BenchmarkBulkUpdate(b *testing.B) {
	keys := make([]any, 100)
	titles := make([]any, 100)
	for i := range keys {
		keys[i] = int64(i + 1)
		titles[i] = "title " + strconv.Itoa(i)
	}
	update := &BulkUpdate{
		Table:   "books",
		Key:     UpdateColumn{Name: "id", DBType: "bigint"},
		Columns: []UpdateColumn{{Name: "title", DBType: "text"}},
		Keys:    keys,
		Values:  [][]any{titles},
	}
	for _, d := range []string{dialect.SQLite, dialect.MySQL, dialect.Postgres} {
		b.Run(d, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				update.Query(d)
			}
		})
	}
}
