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

// Oracle is the provider of Oracle Database 12.2 and later.
type Oracle struct{}

// oraQuote quotes upper-cased identifiers, which keeps them equal to their
// unquoted form in the data dictionary.
func oraQuote(name string) string {
	return `"` + strings.ReplaceAll(strings.ToUpper(name), `"`, `""`) + `"`
}

// Dialect implements schema.Provider.
func (Oracle) Dialect() string { return dialect.Oracle }

// Quote implements schema.Provider.
func (Oracle) Quote(name string) string { return oraQuote(name) }

// Placeholder implements schema.Provider.
func (Oracle) Placeholder(n int) string { return ":" + strconv.Itoa(n) }

// MaxParams implements schema.Provider.
func (Oracle) MaxParams() int { return 32767 }

// Bind implements schema.Provider. Booleans are stored as NUMBER(1).
func (Oracle) Bind(_ field.Type, v any) any {
	if b, ok := v.(bool); ok {
		if b {
			return 1
		}
		return 0
	}
	return v
}

// DataType implements schema.Provider.
func (Oracle) DataType(t field.Type, size int) string {
	switch t.Elem() {
	case field.TypeBool:
		return "NUMBER(1)"
	case field.TypeShort:
		return "NUMBER(5)"
	case field.TypeInt, field.TypeEnum:
		return "NUMBER(10)"
	case field.TypeLong, field.TypeTime, field.TypeDuration:
		return "NUMBER(19)"
	case field.TypeFloat:
		return "BINARY_FLOAT"
	case field.TypeDouble:
		return "BINARY_DOUBLE"
	case field.TypeString:
		if size > 0 && size <= 4000 {
			return fmt.Sprintf("VARCHAR2(%d CHAR)", size)
		}
		return "NCLOB"
	case field.TypeEnumString:
		return fmt.Sprintf("VARCHAR2(%d CHAR)", min(sizeOr(size, 255), 4000))
	case field.TypeUUID:
		return "VARCHAR2(36 CHAR)"
	case field.TypeBlob:
		return "BLOB"
	case field.TypeDate:
		return "DATE"
	case field.TypeDateTime:
		return "TIMESTAMP(9)"
	case field.TypeZonedDateTime, field.TypePeriod:
		return "VARCHAR2(64 CHAR)"
	case field.TypeYearMonth, field.TypeMonthDay:
		return "VARCHAR2(16 CHAR)"
	}
	return "NCLOB"
}

// TableExists implements schema.Provider.
func (Oracle) TableExists(ctx context.Context, q dialect.ExecQuerier, table string) (bool, error) {
	return schema.Exists(ctx, q, "SELECT COUNT(*) FROM USER_TABLES WHERE TABLE_NAME = UPPER(:1)", table)
}

// ColumnExists implements schema.Provider.
func (Oracle) ColumnExists(ctx context.Context, q dialect.ExecQuerier, table, column string) (bool, error) {
	return schema.Exists(ctx, q, "SELECT COUNT(*) FROM USER_TAB_COLUMNS WHERE TABLE_NAME = UPPER(:1) AND COLUMN_NAME = UPPER(:2)", table, column)
}

// ProcedureExists implements schema.Provider.
func (Oracle) ProcedureExists(ctx context.Context, q dialect.ExecQuerier, name string) (bool, error) {
	return schema.Exists(ctx, q, "SELECT COUNT(*) FROM USER_PROCEDURES WHERE OBJECT_TYPE = 'PROCEDURE' AND OBJECT_NAME = UPPER(:1)", name)
}

// Columns implements schema.Provider.
func (Oracle) Columns(ctx context.Context, q dialect.ExecQuerier, table string) ([]string, error) {
	return schema.Strings(ctx, q, "SELECT COLUMN_NAME FROM USER_TAB_COLUMNS WHERE TABLE_NAME = UPPER(:1) ORDER BY COLUMN_ID", table)
}

// CreateTable implements schema.Provider.
func (p Oracle) CreateTable(t *schema.Table) []string {
	return schema.TableBuilder{
		Type:  func(c *schema.Column) string { return p.DataType(c.Type, c.Size) },
		Quote: oraQuote,
	}.Build(t)
}

// AddColumn implements schema.Provider.
func (p Oracle) AddColumn(table string, c *schema.Column) string {
	return fmt.Sprintf("ALTER TABLE %s ADD (%s %s NULL)", oraQuote(table), oraQuote(c.Name), p.DataType(c.Type, c.Size))
}

// UpsertStatement implements schema.Provider.
func (p Oracle) UpsertStatement(u *schema.Upsert) string {
	return p.merge(u, func(i int) string { return p.Placeholder(i + 1) })
}

func (Oracle) merge(u *schema.Upsert, arg func(int) string) string {
	cols := u.Columns()
	src := make([]string, len(cols))
	for i, c := range cols {
		src[i] = fmt.Sprintf("%s AS %s", arg(i), oraQuote(c))
	}
	return merge(Oracle{}, u, "t", "SELECT "+strings.Join(src, ", ")+" FROM DUAL",
		func(sets, cond string) string {
			if cond != "" {
				return fmt.Sprintf(" WHEN MATCHED THEN UPDATE SET %s WHERE %s", sets, cond)
			}
			return " WHEN MATCHED THEN UPDATE SET " + sets
		}, "")
}

// InsertStatement implements schema.Provider. Oracle has no multi-row
// VALUES list and uses INSERT ALL instead.
func (p Oracle) InsertStatement(t *schema.Table, rows int) string {
	cols := t.ColumnNames()
	into := fmt.Sprintf("INTO %s (%s) VALUES", oraQuote(t.Name), quoteAll(oraQuote, cols))
	var b strings.Builder
	b.WriteString("INSERT ALL")
	for i := 0; i < rows; i++ {
		fmt.Fprintf(&b, " %s (%s)", into, schema.Placeholders(p, i*len(cols)+1, len(cols)))
	}
	b.WriteString(" SELECT 1 FROM DUAL")
	return b.String()
}

// UpsertProcedureDDL implements schema.Provider.
func (p Oracle) UpsertProcedureDDL(u *schema.Upsert) []string {
	ps := params(u, func(n string, c *schema.Column) string {
		return n + " IN " + baseType(p.DataType(c.Type, c.Size))
	})
	names := argNames(u, "")
	body := p.merge(u, func(i int) string { return names[i] })
	return []string{
		fmt.Sprintf("CREATE OR REPLACE PROCEDURE %s (%s) AS BEGIN %s; END;", oraQuote(u.ProcedureName()), ps, body),
	}
}

// CallProcedure implements schema.Provider.
func (p Oracle) CallProcedure(u *schema.Upsert) string {
	return fmt.Sprintf("BEGIN %s(%s); END;", oraQuote(u.ProcedureName()), schema.Placeholders(p, 1, len(u.Table.Columns)))
}

// Lock implements schema.Provider. Oracle commits DDL implicitly, so a
// transaction scoped lock cannot cover it and none is taken.
func (Oracle) Lock(string) schema.AdvisoryLock { return schema.AdvisoryLock{} }

// baseType strips the precision of a type name. PL/SQL parameters are
// declared without one.
func baseType(t string) string {
	if i := strings.IndexByte(t, '('); i > 0 {
		return t[:i]
	}
	return t
}
