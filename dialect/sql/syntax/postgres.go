package syntax

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/syssam/versa/dialect"
	"github.com/syssam/versa/dialect/sql/schema"
	"github.com/syssam/versa/schema/field"
)

// Postgres is the provider of PostgreSQL. It serves both the lib/pq and
// the pgx drivers.
type Postgres struct{}

var pgQuote = quoteWith(`"`, `"`)

// Dialect implements schema.Provider.
func (Postgres) Dialect() string { return dialect.Postgres }

// Quote implements schema.Provider.
func (Postgres) Quote(name string) string { return pgQuote(name) }

// Placeholder implements schema.Provider.
func (Postgres) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

// MaxParams implements schema.Provider.
func (Postgres) MaxParams() int { return 65535 }

// Bind implements schema.Provider.
func (Postgres) Bind(_ field.Type, v any) any { return v }

// DataType implements schema.Provider.
func (Postgres) DataType(t field.Type, size int) string {
	switch t.Elem() {
	case field.TypeBool:
		return "boolean"
	case field.TypeShort:
		return "smallint"
	case field.TypeInt, field.TypeEnum:
		return "integer"
	case field.TypeLong, field.TypeTime, field.TypeDuration:
		return "bigint"
	case field.TypeFloat:
		return "real"
	case field.TypeDouble:
		return "double precision"
	case field.TypeString:
		if size > 0 {
			return fmt.Sprintf("character varying(%d)", size)
		}
		return "text"
	case field.TypeEnumString:
		return fmt.Sprintf("character varying(%d)", sizeOr(size, 255))
	case field.TypeUUID:
		return "uuid"
	case field.TypeBlob:
		return "bytea"
	case field.TypeDate:
		return "date"
	case field.TypeDateTime:
		return "timestamp"
	case field.TypeZonedDateTime, field.TypePeriod:
		return "character varying(64)"
	case field.TypeYearMonth, field.TypeMonthDay:
		return "character varying(16)"
	}
	return "text"
}

// TableExists implements schema.Provider.
func (Postgres) TableExists(ctx context.Context, q dialect.ExecQuerier, table string) (bool, error) {
	return schema.Exists(ctx, q,
		`SELECT COUNT(*) FROM "information_schema"."tables" WHERE "table_schema" = CURRENT_SCHEMA() AND "table_name" = $1`, table)
}

// ColumnExists implements schema.Provider.
func (Postgres) ColumnExists(ctx context.Context, q dialect.ExecQuerier, table, column string) (bool, error) {
	return schema.Exists(ctx, q,
		`SELECT COUNT(*) FROM "information_schema"."columns" WHERE "table_schema" = CURRENT_SCHEMA() AND "table_name" = $1 AND "column_name" = $2`, table, column)
}

// ProcedureExists implements schema.Provider.
func (Postgres) ProcedureExists(ctx context.Context, q dialect.ExecQuerier, name string) (bool, error) {
	return schema.Exists(ctx, q,
		`SELECT COUNT(*) FROM "pg_catalog"."pg_proc" p JOIN "pg_catalog"."pg_namespace" n ON n."oid" = p."pronamespace" WHERE n."nspname" = CURRENT_SCHEMA() AND p."prokind" = 'p' AND p."proname" = $1`, name)
}

// Columns implements schema.Provider.
func (Postgres) Columns(ctx context.Context, q dialect.ExecQuerier, table string) ([]string, error) {
	return schema.Strings(ctx, q,
		`SELECT "column_name" FROM "information_schema"."columns" WHERE "table_schema" = CURRENT_SCHEMA() AND "table_name" = $1 ORDER BY "ordinal_position"`, table)
}

// CreateTable implements schema.Provider.
func (p Postgres) CreateTable(t *schema.Table) []string {
	return schema.TableBuilder{
		Type:  func(c *schema.Column) string { return p.DataType(c.Type, c.Size) },
		Quote: pgQuote,
	}.Build(t)
}

// AddColumn implements schema.Provider.
func (p Postgres) AddColumn(table string, c *schema.Column) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s NULL", pgQuote(table), pgQuote(c.Name), p.DataType(c.Type, c.Size))
}

// UpsertStatement implements schema.Provider.
func (p Postgres) UpsertStatement(u *schema.Upsert) string {
	return onConflict(p, u, schema.Placeholders(p, 1, len(u.Table.Columns)))
}

// InsertStatement implements schema.Provider.
func (p Postgres) InsertStatement(t *schema.Table, rows int) string {
	return multiValues(p, t, rows)
}

// UpsertProcedureDDL implements schema.Provider.
func (p Postgres) UpsertProcedureDDL(u *schema.Upsert) []string {
	ps := params(u, func(n string, c *schema.Column) string {
		return n + " " + p.DataType(c.Type, c.Size)
	})
	body := onConflict(p, u, strings.Join(argNames(u, ""), ", "))
	return []string{
		fmt.Sprintf("CREATE OR REPLACE PROCEDURE %s(%s) LANGUAGE SQL AS $$ %s $$", pgQuote(u.ProcedureName()), ps, body),
	}
}

// CallProcedure implements schema.Provider.
func (p Postgres) CallProcedure(u *schema.Upsert) string {
	return fmt.Sprintf("CALL %s(%s)", pgQuote(u.ProcedureName()), schema.Placeholders(p, 1, len(u.Table.Columns)))
}

// Lock implements schema.Provider. The lock is released when the
// transaction ends.
func (Postgres) Lock(name string) schema.AdvisoryLock {
	return schema.AdvisoryLock{Acquire: "SELECT pg_advisory_xact_lock($1)", Args: []any{lockKey(name)}}
}
