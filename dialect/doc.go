// Package dialect defines the dialect names and the driver interfaces the
// persistence engines are written against.
//
// # Supported Dialects
//
//	dialect.MySQL     = "mysql"      // MySQL and MariaDB
//	dialect.Postgres  = "postgres"   // lib/pq or pgx
//	dialect.SQLite    = "sqlite"     // modernc.org/sqlite
//	dialect.Oracle    = "oracle"     // sijms/go-ora
//	dialect.SQLServer = "sqlserver"  // microsoft/go-mssqldb
//
// Driver names registered with database/sql are mapped to a dialect with
// Normalize, so "pgx" and "mssql" resolve to Postgres and SQLServer.
//
// # Driver Interface
//
//	type Driver interface {
//	    Exec(ctx context.Context, query string, args, v any) error
//	    Query(ctx context.Context, query string, args, v any) error
//	    Tx(ctx context.Context) (Tx, error)
//	    Close() error
//	    Dialect() string
//	}
//
// Tx adds Commit and Rollback. Both implement ExecQuerier, which is what the
// save and load engines and the listener hooks receive.
//
// # Sub-packages
//
//   - dialect/sql: database/sql driver adapter, stats and debug drivers
//   - dialect/sql/schema: schema manager and the Provider interface
//   - dialect/sql/syntax: one Provider per backend
//   - dialect/sql/sqlgraph: save and load engines
package dialect
