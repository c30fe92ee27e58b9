package sql

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/strata/dialect"
)

// TestOpenDB tests the OpenDB function with different driver names.
func TestOpenDB(t *testing.T) {
	tests := []struct {
		name   string
		driver string
		want   string
	}{
		{"Postgres", "postgres", dialect.Postgres},
		{"PGX", "pgx", dialect.Postgres},
		{"MySQL", "mysql", dialect.MySQL},
		{"SQLite", "sqlite", dialect.SQLite},
		{"SQLite3", "sqlite3", dialect.SQLite},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, _, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			drv := OpenDB(tt.driver, db)
			assert.Equal(t, tt.want, drv.Dialect())
		})
	}
}

func TestDriverQuery(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	drv := OpenDB(dialect.Postgres, db)

	t.Run("scan_values", func(t *testing.T) {
		mock.ExpectQuery(`SELECT "id", "title" FROM "books" WHERE "author_id" = \$1`).
			WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "title"}).
				AddRow(int64(1), "t1").
				AddRow(int64(2), "t2"))

		rows := &Rows{}
		err := drv.Query(context.Background(), `SELECT "id", "title" FROM "books" WHERE "author_id" = $1`, []any{int64(1)}, rows)
		require.NoError(t, err)
		values, err := ScanValues(rows)
		require.NoError(t, err)
		assert.Equal(t, [][]any{{int64(1), "t1"}, {int64(2), "t2"}}, values)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("scan_ids", func(t *testing.T) {
		mock.ExpectQuery("INSERT INTO").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)).AddRow(int64(8)))

		rows := &Rows{}
		err := drv.Query(context.Background(), `INSERT INTO "authors" ("first_name") VALUES ($1), ($2) RETURNING "id"`, []any{"a", "b"}, rows)
		require.NoError(t, err)
		ids, err := ScanInt64s(rows)
		require.NoError(t, err)
		assert.Equal(t, []int64{7, 8}, ids)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query_error", func(t *testing.T) {
		mock.ExpectQuery("SELECT").WillReturnError(errors.New("boom"))
		err := drv.Query(context.Background(), "SELECT 1", []any{}, &Rows{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "dialect/sql: query: boom")
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid_args", func(t *testing.T) {
		err := drv.Query(context.Background(), "SELECT 1", "bad", &Rows{})
		require.Error(t, err)
		err = drv.Query(context.Background(), "SELECT 1", []any{}, new(int))
		require.Error(t, err)
	})
}

func TestDriverExec(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	drv := OpenDB(dialect.MySQL, db)

	t.Run("with_result", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO `authors`").WillReturnResult(sqlmock.NewResult(5, 2))
		var res Result
		err := drv.Exec(context.Background(), "INSERT INTO `authors` (`first_name`) VALUES (?), (?)", []any{"a", "b"}, &res)
		require.NoError(t, err)
		id, err := res.LastInsertId()
		require.NoError(t, err)
		assert.Equal(t, int64(5), id)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("exec_error", func(t *testing.T) {
		mock.ExpectExec("UPDATE").WillReturnError(errors.New("constraint violation"))
		err := drv.Exec(context.Background(), "UPDATE `books` SET `title` = ?", []any{"x"}, nil)
		require.Error(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid_target", func(t *testing.T) {
		err := drv.Exec(context.Background(), "UPDATE `books` SET `title` = ?", []any{"x"}, new(int))
		require.Error(t, err)
	})
}

func TestDriverTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	drv := OpenDB(dialect.Postgres, db)

	t.Run("commit", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		tx, err := drv.Tx(context.Background())
		require.NoError(t, err)
		require.NoError(t, tx.Exec(context.Background(), "UPDATE books SET title = $1", []any{"x"}, nil))
		require.NoError(t, tx.Commit())
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rollback", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE").WillReturnError(errors.New("error"))
		mock.ExpectRollback()

		tx, err := drv.Tx(context.Background())
		require.NoError(t, err)
		require.Error(t, tx.Exec(context.Background(), "UPDATE books SET title = $1", []any{"x"}, nil))
		require.NoError(t, tx.Rollback())
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
