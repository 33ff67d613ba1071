package syntax

import (
	"context"
	"fmt"

	"github.com/syssam/versa/dialect"
	"github.com/syssam/versa/dialect/sql/schema"
	"github.com/syssam/versa/schema/field"
)

// SQLite is the provider of SQLite. It has no stored procedures, so
// upserts always run as plain statements.
type SQLite struct{}

var sqliteQuote = quoteWith("`", "`")

// Dialect implements schema.Provider.
func (SQLite) Dialect() string { return dialect.SQLite }

// Quote implements schema.Provider.
func (SQLite) Quote(name string) string { return sqliteQuote(name) }

// Placeholder implements schema.Provider.
func (SQLite) Placeholder(int) string { return "?" }

// MaxParams implements schema.Provider.
func (SQLite) MaxParams() int { return 999 }

// Bind implements schema.Provider.
func (SQLite) Bind(_ field.Type, v any) any { return v }

// DataType implements schema.Provider.
func (SQLite) DataType(t field.Type, _ int) string {
	switch t.Elem() {
	case field.TypeBool:
		return "bool"
	case field.TypeShort, field.TypeInt, field.TypeLong, field.TypeEnum, field.TypeTime, field.TypeDuration:
		return "integer"
	case field.TypeFloat, field.TypeDouble:
		return "real"
	case field.TypeBlob:
		return "blob"
	case field.TypeDate:
		return "date"
	case field.TypeDateTime:
		return "datetime"
	}
	return "text"
}

// TableExists implements schema.Provider.
func (SQLite) TableExists(ctx context.Context, q dialect.ExecQuerier, table string) (bool, error) {
	return schema.Exists(ctx, q, "SELECT COUNT(*) FROM `sqlite_master` WHERE `type` = 'table' AND `name` = ?", table)
}

// ColumnExists implements schema.Provider.
func (SQLite) ColumnExists(ctx context.Context, q dialect.ExecQuerier, table, column string) (bool, error) {
	return schema.Exists(ctx, q, "SELECT COUNT(*) FROM pragma_table_info(?) WHERE `name` = ?", table, column)
}

// ProcedureExists implements schema.Provider.
func (SQLite) ProcedureExists(context.Context, dialect.ExecQuerier, string) (bool, error) {
	return false, nil
}

// Columns implements schema.Provider.
func (SQLite) Columns(ctx context.Context, q dialect.ExecQuerier, table string) ([]string, error) {
	return schema.Strings(ctx, q, "SELECT `name` FROM pragma_table_info(?) ORDER BY `cid`", table)
}

// CreateTable implements schema.Provider.
func (p SQLite) CreateTable(t *schema.Table) []string {
	return schema.TableBuilder{
		Type:  func(c *schema.Column) string { return p.DataType(c.Type, c.Size) },
		Quote: sqliteQuote,
	}.Build(t)
}

// AddColumn implements schema.Provider.
func (p SQLite) AddColumn(table string, c *schema.Column) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s NULL", sqliteQuote(table), sqliteQuote(c.Name), p.DataType(c.Type, c.Size))
}

// UpsertStatement implements schema.Provider.
func (p SQLite) UpsertStatement(u *schema.Upsert) string {
	return onConflict(p, u, schema.Placeholders(p, 1, len(u.Table.Columns)))
}

// InsertStatement implements schema.Provider.
func (p SQLite) InsertStatement(t *schema.Table, rows int) string {
	return multiValues(p, t, rows)
}

// UpsertProcedureDDL implements schema.Provider.
func (SQLite) UpsertProcedureDDL(*schema.Upsert) []string { return nil }

// CallProcedure implements schema.Provider by falling back to the upsert
// statement.
func (p SQLite) CallProcedure(u *schema.Upsert) string { return p.UpsertStatement(u) }

// Lock implements schema.Provider. SQLite serializes writers on its own.
func (SQLite) Lock(string) schema.AdvisoryLock { return schema.AdvisoryLock{} }
