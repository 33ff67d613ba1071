package syntax

import (
	"context"
	"fmt"
	"strings"

	"github.com/syssam/versa/dialect"
	"github.com/syssam/versa/dialect/sql/schema"
	"github.com/syssam/versa/schema/field"
)

// MySQL is the provider of MySQL and MariaDB.
type MySQL struct{}

var mysqlQuote = quoteWith("`", "`")

// Dialect implements schema.Provider.
func (MySQL) Dialect() string { return dialect.MySQL }

// Quote implements schema.Provider.
func (MySQL) Quote(name string) string { return mysqlQuote(name) }

// Placeholder implements schema.Provider.
func (MySQL) Placeholder(int) string { return "?" }

// MaxParams implements schema.Provider.
func (MySQL) MaxParams() int { return 65535 }

// Bind implements schema.Provider.
func (MySQL) Bind(_ field.Type, v any) any { return v }

// DataType implements schema.Provider.
func (MySQL) DataType(t field.Type, size int) string {
	switch t.Elem() {
	case field.TypeBool:
		return "boolean"
	case field.TypeShort:
		return "smallint"
	case field.TypeInt, field.TypeEnum:
		return "int"
	case field.TypeLong, field.TypeTime, field.TypeDuration:
		return "bigint"
	case field.TypeFloat:
		return "float"
	case field.TypeDouble:
		return "double"
	case field.TypeString:
		if size > 0 && size <= 16383 {
			return fmt.Sprintf("varchar(%d)", size)
		}
		return "longtext"
	case field.TypeEnumString:
		return fmt.Sprintf("varchar(%d)", sizeOr(size, 255))
	case field.TypeUUID:
		return "char(36)"
	case field.TypeBlob:
		return "longblob"
	case field.TypeDate:
		return "date"
	case field.TypeDateTime:
		return "datetime(6)"
	case field.TypeZonedDateTime, field.TypePeriod:
		return "varchar(64)"
	case field.TypeYearMonth, field.TypeMonthDay:
		return "varchar(16)"
	}
	return "longtext"
}

// TableExists implements schema.Provider.
func (MySQL) TableExists(ctx context.Context, q dialect.ExecQuerier, table string) (bool, error) {
	return schema.Exists(ctx, q,
		"SELECT COUNT(*) FROM `INFORMATION_SCHEMA`.`TABLES` WHERE `TABLE_SCHEMA` = (SELECT DATABASE()) AND `TABLE_NAME` = ?", table)
}

// ColumnExists implements schema.Provider.
func (MySQL) ColumnExists(ctx context.Context, q dialect.ExecQuerier, table, column string) (bool, error) {
	return schema.Exists(ctx, q,
		"SELECT COUNT(*) FROM `INFORMATION_SCHEMA`.`COLUMNS` WHERE `TABLE_SCHEMA` = (SELECT DATABASE()) AND `TABLE_NAME` = ? AND `COLUMN_NAME` = ?", table, column)
}

// ProcedureExists implements schema.Provider.
func (MySQL) ProcedureExists(ctx context.Context, q dialect.ExecQuerier, name string) (bool, error) {
	return schema.Exists(ctx, q,
		"SELECT COUNT(*) FROM `INFORMATION_SCHEMA`.`ROUTINES` WHERE `ROUTINE_SCHEMA` = (SELECT DATABASE()) AND `ROUTINE_TYPE` = 'PROCEDURE' AND `ROUTINE_NAME` = ?", name)
}

// Columns implements schema.Provider.
func (MySQL) Columns(ctx context.Context, q dialect.ExecQuerier, table string) ([]string, error) {
	return schema.Strings(ctx, q,
		"SELECT `COLUMN_NAME` FROM `INFORMATION_SCHEMA`.`COLUMNS` WHERE `TABLE_SCHEMA` = (SELECT DATABASE()) AND `TABLE_NAME` = ? ORDER BY `ORDINAL_POSITION`", table)
}

// CreateTable implements schema.Provider.
func (p MySQL) CreateTable(t *schema.Table) []string {
	return schema.TableBuilder{
		Type:   func(c *schema.Column) string { return p.DataType(c.Type, c.Size) },
		Quote:  mysqlQuote,
		Suffix: "CHARSET utf8mb4 COLLATE utf8mb4_bin",
	}.Build(t)
}

// AddColumn implements schema.Provider.
func (p MySQL) AddColumn(table string, c *schema.Column) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s NULL", mysqlQuote(table), mysqlQuote(c.Name), p.DataType(c.Type, c.Size))
}

// UpsertStatement implements schema.Provider.
func (p MySQL) UpsertStatement(u *schema.Upsert) string {
	return p.upsert(u, schema.Placeholders(p, 1, len(u.Table.Columns)))
}

func (MySQL) upsert(u *schema.Upsert, values string) string {
	var sets []string
	for _, c := range u.UpdateColumns() {
		c = mysqlQuote(c)
		if c == mysqlQuote(u.Monotonic) {
			sets = append(sets, fmt.Sprintf("%s = GREATEST(%s, VALUES(%s))", c, c, c))
		} else {
			sets = append(sets, fmt.Sprintf("%s = VALUES(%s)", c, c))
		}
	}
	if len(sets) == 0 {
		k := mysqlQuote(u.KeyColumns()[0])
		sets = append(sets, fmt.Sprintf("%s = %s", k, k))
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON DUPLICATE KEY UPDATE %s",
		mysqlQuote(u.Table.Name), quoteAll(mysqlQuote, u.Columns()), values, strings.Join(sets, ", "))
}

// InsertStatement implements schema.Provider.
func (p MySQL) InsertStatement(t *schema.Table, rows int) string {
	return multiValues(p, t, rows)
}

// UpsertProcedureDDL implements schema.Provider.
func (p MySQL) UpsertProcedureDDL(u *schema.Upsert) []string {
	name := mysqlQuote(u.ProcedureName())
	ps := params(u, func(n string, c *schema.Column) string {
		return fmt.Sprintf("IN %s %s", n, p.DataType(c.Type, c.Size))
	})
	body := p.upsert(u, strings.Join(argNames(u, ""), ", "))
	return []string{
		"DROP PROCEDURE IF EXISTS " + name,
		fmt.Sprintf("CREATE PROCEDURE %s(%s) BEGIN %s; END", name, ps, body),
	}
}

// CallProcedure implements schema.Provider.
func (p MySQL) CallProcedure(u *schema.Upsert) string {
	return fmt.Sprintf("CALL %s(%s)", mysqlQuote(u.ProcedureName()), schema.Placeholders(p, 1, len(u.Table.Columns)))
}

// Lock implements schema.Provider. GET_LOCK is held by the session of the
// transaction and released explicitly.
func (MySQL) Lock(name string) schema.AdvisoryLock {
	return schema.AdvisoryLock{
		Acquire: "SELECT GET_LOCK(?, 30)",
		Release: "DO RELEASE_LOCK(?)",
		Args:    []any{name},
		Checked: true,
	}
}

func sizeOr(size, def int) int {
	if size > 0 {
		return size
	}
	return def
}
