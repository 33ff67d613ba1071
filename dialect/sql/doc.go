// Package sql adapts database/sql to the dialect.Driver interface.
//
//	drv, err := sql.Open("pgx", dsn) // dialect resolves to "postgres"
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer drv.Close()
//
// StatsDriver and DebugDriver wrap another driver and observe every query,
// exec and transaction boundary: the first counts them and reports slow
// statements, the second logs them.
//
// Driver failures that may succeed on retry (broken connections, timeouts,
// deadlocks, serialization failures) are returned as versa.ConnectionError.
// Classification understands the typed errors of go-sql-driver/mysql,
// lib/pq, pgx, go-mssqldb and go-ora; IsUniqueConstraintError and friends
// classify constraint violations the same way.
//
// Open takes PoolOption values to size the connection pool:
//
//	drv, err := sql.Open("pgx", dsn, sql.WithMaxOpenConns(20), sql.WithConnMaxLifetime(time.Hour))
package sql
