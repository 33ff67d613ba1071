package sql

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	mssql "github.com/microsoft/go-mssqldb"
	"github.com/sijms/go-ora/v2/network"

	"github.com/syssam/versa"
)

// PostgreSQL SQLSTATE codes.
const (
	pgUniqueViolation      = "23505"
	pgForeignKeyViolation  = "23503"
	pgCheckViolation       = "23514"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgTooManyConnections   = "53300"
	pgAdminShutdown        = "57P01"
	pgCannotConnectNow     = "57P03"
	pgConnectionClass      = "08"
)

// MySQL error numbers.
const (
	mysqlDuplicateEntry         = 1062
	mysqlForeignKeyParent       = 1451 // Cannot delete or update a parent row
	mysqlForeignKeyChild        = 1452 // Cannot add or update a child row
	mysqlCheckConstraintViolate = 3819
	mysqlTooManyConnections     = 1040
	mysqlLockWaitTimeout        = 1205
	mysqlDeadlock               = 1213
	mysqlServerGone             = 2006
	mysqlServerLost             = 2013
)

// SQL Server error numbers.
var mssqlTransient = map[int32]bool{
	-2:    true, // timeout
	233:   true, // connection closed by the server
	1205:  true, // deadlock victim
	10053: true,
	10054: true,
	40197: true,
	40501: true, // service busy
	40613: true, // database unavailable
	49918: true,
}

// SQL Server constraint error numbers.
const (
	mssqlUniqueIndex      = 2601
	mssqlUniqueConstraint = 2627
	mssqlForeignKey       = 547
)

// Oracle error codes.
var oraTransient = map[int]bool{
	60:    true, // deadlock
	3113:  true, // end-of-file on communication channel
	3114:  true, // not connected
	3135:  true, // connection lost contact
	8177:  true, // cannot serialize access
	12170: true, // connect timeout
	12541: true, // no listener
	12545: true,
}

// Oracle constraint error codes.
const (
	oraUniqueConstraint = 1
	oraForeignKeyChild  = 2291
	oraForeignKeyParent = 2292
	oraCheckConstraint  = 2290
)

// classify wraps transient driver failures in a versa.ConnectionError and
// returns every other error unchanged.
func classify(op string, err error) error {
	if err == nil || versa.IsConnectionError(err) || !IsTransient(err) {
		return err
	}
	return versa.NewConnectionError(op, err)
}

// IsTransient reports if err is an I/O or concurrency failure that may
// succeed when retried: broken connections, timeouts, deadlocks and
// serialization failures.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	if code, ok := sqlState(err); ok {
		switch {
		case strings.HasPrefix(code, pgConnectionClass),
			code == pgSerializationFailure,
			code == pgDeadlockDetected,
			code == pgTooManyConnections,
			code == pgAdminShutdown,
			code == pgCannotConnectNow:
			return true
		}
	}
	if e, ok := asError[*mysql.MySQLError](err); ok {
		switch e.Number {
		case mysqlTooManyConnections, mysqlLockWaitTimeout, mysqlDeadlock, mysqlServerGone, mysqlServerLost:
			return true
		}
	}
	if e, ok := asError[mssql.Error](err); ok && mssqlTransient[e.Number] {
		return true
	}
	if e, ok := asError[*mssql.Error](err); ok && mssqlTransient[e.Number] {
		return true
	}
	if e, ok := asError[*network.OracleError](err); ok && oraTransient[e.ErrCode] {
		return true
	}
	return false
}

// IsConstraintError returns true if the error resulted from a database constraint violation.
func IsConstraintError(err error) bool {
	return IsUniqueConstraintError(err) ||
		IsForeignKeyConstraintError(err) ||
		IsCheckConstraintError(err)
}

// IsUniqueConstraintError reports if the error resulted from a DB uniqueness constraint violation.
// e.g. duplicate value in unique index.
func IsUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := sqlState(err); ok && code == pgUniqueViolation {
		return true
	}
	if e, ok := asError[*mysql.MySQLError](err); ok && e.Number == mysqlDuplicateEntry {
		return true
	}
	if n, ok := mssqlNumber(err); ok && (n == mssqlUniqueIndex || n == mssqlUniqueConstraint) {
		return true
	}
	if e, ok := asError[*network.OracleError](err); ok && e.ErrCode == oraUniqueConstraint {
		return true
	}
	// Fallback to string matching for drivers without typed errors
	return containsAny(err.Error(),
		"Error 1062",                 // MySQL (string fallback)
		"violates unique constraint", // Postgres (string fallback)
		"UNIQUE constraint failed",   // SQLite
	)
}

// IsForeignKeyConstraintError reports if the error resulted from a database foreign-key constraint violation.
// e.g. parent row does not exist.
func IsForeignKeyConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := sqlState(err); ok && code == pgForeignKeyViolation {
		return true
	}
	if e, ok := asError[*mysql.MySQLError](err); ok && (e.Number == mysqlForeignKeyParent || e.Number == mysqlForeignKeyChild) {
		return true
	}
	if n, ok := mssqlNumber(err); ok && n == mssqlForeignKey {
		return true
	}
	if e, ok := asError[*network.OracleError](err); ok && (e.ErrCode == oraForeignKeyChild || e.ErrCode == oraForeignKeyParent) {
		return true
	}
	return containsAny(err.Error(),
		"Error 1451",                      // MySQL (Cannot delete or update a parent row)
		"Error 1452",                      // MySQL (Cannot add or update a child row)
		"violates foreign key constraint", // Postgres
		"FOREIGN KEY constraint failed",   // SQLite
	)
}

// IsCheckConstraintError reports if the error resulted from a database check constraint violation.
// e.g. a value does not satisfy a check condition.
func IsCheckConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := sqlState(err); ok && code == pgCheckViolation {
		return true
	}
	if e, ok := asError[*mysql.MySQLError](err); ok && e.Number == mysqlCheckConstraintViolate {
		return true
	}
	if e, ok := asError[*network.OracleError](err); ok && e.ErrCode == oraCheckConstraint {
		return true
	}
	return containsAny(err.Error(),
		"Error 3819",                // MySQL
		"violates check constraint", // Postgres
		"CHECK constraint failed",   // SQLite
	)
}

// sqlState extracts a Postgres SQLSTATE from lib/pq or pgx errors.
func sqlState(err error) (string, bool) {
	if e, ok := asError[*pq.Error](err); ok {
		return string(e.Code), true
	}
	if e, ok := asError[*pgconn.PgError](err); ok {
		return e.Code, true
	}
	return "", false
}

func mssqlNumber(err error) (int32, bool) {
	if e, ok := asError[mssql.Error](err); ok {
		return e.Number, true
	}
	if e, ok := asError[*mssql.Error](err); ok {
		return e.Number, true
	}
	return 0, false
}

// asError attempts to extract an error of type T from the error chain.
func asError[T error](err error) (T, bool) {
	var target T
	if errors.As(err, &target) {
		return target, true
	}
	return target, false
}

// containsAny returns true if s contains any of the substrings.
func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
