package sql

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/strata/dialect"
)

func TestStatsDriver(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	var slow []string
	drv := NewStatsDriver(OpenDB(dialect.SQLite, db),
		WithSlowThreshold(-1),
		WithSlowQueryHook(func(_ context.Context, query string, _ []any, _ time.Duration) {
			slow = append(slow, query)
		}),
	)
	ctx := context.Background()

	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectExec("UPDATE").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE").WillReturnError(errors.New("boom"))
	mock.ExpectBegin()
	mock.ExpectExec("INSERT").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	rows := &Rows{}
	require.NoError(t, drv.Query(ctx, "SELECT id FROM t", []any{}, rows))
	require.NoError(t, rows.Close())
	require.NoError(t, drv.Exec(ctx, "UPDATE t SET a = 1", []any{}, nil))
	require.Error(t, drv.Exec(ctx, "DELETE FROM t", []any{}, nil))
	tx, err := drv.Tx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Exec(ctx, "INSERT INTO t DEFAULT VALUES", []any{}, nil))
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())

	s := drv.QueryStats().Stats()
	assert.Equal(t, int64(1), s.TotalQueries)
	assert.Equal(t, int64(3), s.TotalExecs)
	assert.Equal(t, int64(4), s.Statements())
	assert.Equal(t, int64(1), s.Errors)
	assert.Equal(t, int64(4), s.SlowQueries)
	assert.Len(t, slow, 4)
	assert.Contains(t, s.String(), "queries=1 execs=3")

	drv.QueryStats().Reset()
	assert.Equal(t, StatsSnapshot{}, drv.QueryStats().Stats())
	assert.Zero(t, StatsSnapshot{}.AvgDuration())
}

func TestStatsDriverSlowLog(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	drv := NewStatsDriver(OpenDB(dialect.Postgres, db), WithSlowQueryLog(logger))
	drv.SetSlowThreshold(-1)

	mock.ExpectExec("UPDATE").WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, drv.Exec(context.Background(), "UPDATE t SET a = $1", []any{1}, nil))
	assert.Contains(t, buf.String(), "slow query detected")
	assert.Contains(t, buf.String(), "UPDATE t SET a = $1")
}

func TestDebugDriver(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	drv := NewDebugDriver(OpenDB(dialect.Postgres, db), logger)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	ctx := context.Background()
	tx, err := drv.Tx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Exec(ctx, "UPDATE t SET a = $1", []any{1}, nil))
	require.NoError(t, tx.Rollback())
	require.NoError(t, mock.ExpectationsWereMet())

	out := buf.String()
	for _, msg := range []string{"begin transaction", "tx exec", "rollback transaction"} {
		assert.True(t, strings.Contains(out, msg), "missing %q in %s", msg, out)
	}
}

func TestStatsCollector(t *testing.T) {
	stats := &QueryStats{}
	stats.TotalQueries.Add(3)
	stats.TotalExecs.Add(2)
	c := NewStatsCollector("strata", stats)
	assert.Equal(t, 5, testutil.CollectAndCount(c))

	expected := `
# HELP strata_db_queries_total Row-returning statements executed.
# TYPE strata_db_queries_total counter
strata_db_queries_total 3
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected), "strata_db_queries_total"))
}
