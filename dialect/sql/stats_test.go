package sql

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/versa/dialect"
)

func TestStatsDriver(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	var slow []string
	drv := NewStatsDriver(OpenDB(dialect.SQLite, db),
		WithSlowThreshold(-1),
		WithSlowQueryHook(func(_ context.Context, st *Statement) {
			slow = append(slow, st.Op.String()+" "+st.Query)
		}),
	)
	ctx := context.Background()
	assert.Equal(t, dialect.SQLite, drv.Dialect())

	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	rows := &Rows{}
	require.NoError(t, drv.Query(ctx, "SELECT 1", []any{}, rows))
	require.NoError(t, rows.Close())

	mock.ExpectBegin()
	mock.ExpectExec("INSERT").WillReturnError(&mysql.MySQLError{Number: 1213, Message: "deadlock"})
	mock.ExpectRollback()
	tx, err := drv.Tx(ctx)
	require.NoError(t, err)
	require.Error(t, tx.Exec(ctx, "INSERT INTO t VALUES (1)", []any{}, nil))
	require.NoError(t, tx.Rollback())
	require.NoError(t, mock.ExpectationsWereMet())

	s := drv.QueryStats().Stats()
	assert.Equal(t, int64(1), s.TotalQueries)
	assert.Equal(t, int64(1), s.TotalExecs)
	assert.Equal(t, int64(1), s.Errors)
	assert.Equal(t, int64(1), s.Transient)
	assert.Equal(t, int64(1), s.Rollbacks)
	assert.Zero(t, s.Commits)
	assert.Equal(t, int64(2), s.SlowQueries)
	assert.Equal(t, []string{"query SELECT 1", "exec INSERT INTO t VALUES (1)"}, slow)
	assert.Contains(t, s.String(), "transient=1")

	drv.QueryStats().Reset()
	assert.Zero(t, drv.QueryStats().Stats().TotalQueries)
	assert.Zero(t, StatsSnapshot{}.AvgQueryDuration())
}

func TestSlowQueryLog(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	drv := NewStatsDriver(OpenDB(dialect.MySQL, db), WithSlowThreshold(-1), WithSlowQueryLog(logger))
	mock.ExpectExec("DELETE").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, drv.Exec(context.Background(), "DELETE FROM versa_live_version", []any{}, nil))
	assert.Contains(t, buf.String(), "slow query detected")
	assert.Contains(t, buf.String(), "versa_live_version")
}

func TestDebugDriver(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	drv := NewDebugDriver(OpenDB(dialect.Postgres, db), DebugWithLogger(logger))

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	tx, err := drv.Tx(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx.Exec(context.Background(), "CREATE TABLE versa_bool (id INT)", []any{}, nil))
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())

	out := buf.String()
	assert.Contains(t, out, "msg=begin tx=true")
	assert.Contains(t, out, `msg=exec tx=true`)
	assert.Contains(t, out, `query="CREATE TABLE versa_bool (id INT)"`)
	assert.Contains(t, out, "msg=commit tx=true")

	buf.Reset()
	quiet := NewDebugDriver(OpenDB(dialect.Postgres, db), DebugWithLogger(logger), DebugWithLevel(slog.LevelDebug-1))
	mock.ExpectExec("DROP TABLE").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, quiet.Exec(context.Background(), "DROP TABLE versa_bool", []any{}, nil))
	assert.Empty(t, buf.String())
}

func TestOpString(t *testing.T) {
	assert.Equal(t, "rollback", OpRollback.String())
	assert.Equal(t, "op(9)", Op(9).String())
}
