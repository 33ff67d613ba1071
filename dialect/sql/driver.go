package sql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/syssam/versa/dialect"
)

type (
	// Result is the result of an Exec.
	Result = sql.Result
	// NullInt64 is a nullable int64 scan target.
	NullInt64 = sql.NullInt64
	// NullString is a nullable string scan target.
	NullString = sql.NullString
	// NullTime is a nullable time.Time scan target.
	NullTime = sql.NullTime
)

// Driver runs statements on a *sql.DB for one dialect.
type Driver struct {
	Conn
	db *sql.DB
}

// PoolOption tunes the connection pool of a driver opened with Open.
type PoolOption func(*sql.DB)

// WithMaxOpenConns limits the number of open connections.
func WithMaxOpenConns(n int) PoolOption {
	return func(db *sql.DB) { db.SetMaxOpenConns(n) }
}

// WithMaxIdleConns limits the number of idle connections kept in the pool.
func WithMaxIdleConns(n int) PoolOption {
	return func(db *sql.DB) { db.SetMaxIdleConns(n) }
}

// WithConnMaxLifetime closes connections older than d.
func WithConnMaxLifetime(d time.Duration) PoolOption {
	return func(db *sql.DB) { db.SetConnMaxLifetime(d) }
}

// Open opens a database with a registered database/sql driver, e.g. "pgx"
// or "sqlserver". The dialect is derived from driverName.
func Open(driverName, source string, opts ...PoolOption) (*Driver, error) {
	db, err := sql.Open(driverName, source)
	if err != nil {
		return nil, err
	}
	for _, opt := range opts {
		opt(db)
	}
	return OpenDB(driverName, db), nil
}

// OpenDB returns a driver for an opened database. name is a dialect or a
// database/sql driver name.
func OpenDB(name string, db *sql.DB) *Driver {
	return &Driver{Conn: Conn{ExecQuerier: db, dialect: dialect.Normalize(name)}, db: db}
}

// DB returns the underlying database.
func (d *Driver) DB() *sql.DB { return d.db }

// Tx starts a transaction.
func (d *Driver) Tx(ctx context.Context) (dialect.Tx, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify("begin", err)
	}
	return &Tx{Conn: Conn{ExecQuerier: tx, dialect: d.dialect}, tx: tx}, nil
}

// Close closes the database.
func (d *Driver) Close() error { return d.db.Close() }

// Tx is a transaction opened by a Driver.
type Tx struct {
	Conn
	tx *sql.Tx
}

// Commit commits the transaction.
func (t *Tx) Commit() error { return classify("commit", t.tx.Commit()) }

// Rollback aborts the transaction.
func (t *Tx) Rollback() error { return t.tx.Rollback() }

// ExecQuerier is implemented by *sql.DB, *sql.Tx and *sql.Conn.
type ExecQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Conn adapts an ExecQuerier to dialect.ExecQuerier. Args must be a []any.
// Exec accepts a nil or *Result destination and Query a *Rows one.
type Conn struct {
	ExecQuerier
	dialect string
}

// Dialect returns the normalized dialect name.
func (c Conn) Dialect() string { return c.dialect }

// Exec runs a statement that returns no rows.
func (c Conn) Exec(ctx context.Context, query string, args, v any) error {
	argv, err := argSlice(args)
	if err != nil {
		return err
	}
	res, ok := v.(*Result)
	if v != nil && !ok {
		return fmt.Errorf("dialect/sql: exec: unsupported destination %T, want *sql.Result", v)
	}
	r, err := c.ExecContext(ctx, query, argv...)
	if err != nil {
		return fmt.Errorf("dialect/sql: exec: %w", classify("exec", err))
	}
	if res != nil {
		*res = r
	}
	return nil
}

// Query runs a statement and stores its rows in v. The caller closes them.
func (c Conn) Query(ctx context.Context, query string, args, v any) error {
	rows, ok := v.(*Rows)
	if !ok {
		return fmt.Errorf("dialect/sql: query: unsupported destination %T, want *sql.Rows", v)
	}
	argv, err := argSlice(args)
	if err != nil {
		return err
	}
	r, err := c.QueryContext(ctx, query, argv...)
	if err != nil {
		return fmt.Errorf("dialect/sql: query: %w", classify("query", err))
	}
	rows.Rows = r
	return nil
}

func argSlice(args any) ([]any, error) {
	switch a := args.(type) {
	case nil:
		return nil, nil
	case []any:
		return a, nil
	default:
		return nil, fmt.Errorf("dialect/sql: unsupported args %T, want []any", args)
	}
}

// Rows holds the result of a Query.
type Rows struct{ *sql.Rows }

var (
	_ dialect.Driver = (*Driver)(nil)
	_ dialect.Tx     = (*Tx)(nil)
)
