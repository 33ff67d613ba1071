package dialect

import (
	"context"
	"strings"
)

// Dialect names.
const (
	MySQL     = "mysql"
	Postgres  = "postgres"
	SQLite    = "sqlite"
	Oracle    = "oracle"
	SQLServer = "sqlserver"
)

// Names returns the supported dialect names.
func Names() []string {
	return []string{MySQL, Postgres, SQLite, Oracle, SQLServer}
}

// Normalize maps a database/sql driver name to its dialect. It returns the
// input unchanged when no dialect matches.
func Normalize(driverName string) string {
	name := strings.ToLower(driverName)
	switch {
	case strings.HasPrefix(name, "pgx"), strings.HasPrefix(name, "postgres"):
		return Postgres
	case strings.HasPrefix(name, "mssql"), strings.HasPrefix(name, "sqlserver"), strings.HasPrefix(name, "azuresql"):
		return SQLServer
	case strings.HasPrefix(name, "sqlite"):
		return SQLite
	case strings.HasPrefix(name, "mysql"), strings.HasPrefix(name, "mariadb"):
		return MySQL
	case strings.HasPrefix(name, "oracle"), strings.HasPrefix(name, "godror"):
		return Oracle
	}
	return driverName
}

// ExecQuerier wraps the 2 database operations.
type ExecQuerier interface {
	// Exec executes a query that does not return records. For example, in SQL, INSERT or UPDATE.
	// It scans the result into the pointer v. For SQL drivers, it is dialect/sql.Result.
	Exec(ctx context.Context, query string, args, v any) error
	// Query executes a query that returns rows, typically a SELECT in SQL.
	// It scans the result into the pointer v. For SQL drivers, it is *dialect/sql.Rows.
	Query(ctx context.Context, query string, args, v any) error
}

// Driver is the interface that wraps all necessary operations for the
// persistence engines.
type Driver interface {
	ExecQuerier
	// Tx starts and returns a new transaction.
	Tx(context.Context) (Tx, error)
	// Close closes the underlying connection.
	Close() error
	// Dialect returns the dialect name of the driver.
	Dialect() string
}

// Tx wraps the Exec and Query operations in transaction.
type Tx interface {
	ExecQuerier
	Commit() error
	Rollback() error
}
