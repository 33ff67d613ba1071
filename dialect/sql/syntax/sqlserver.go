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

// SQLServer is the provider of Microsoft SQL Server and Azure SQL.
type SQLServer struct{}

var mssqlQuote = quoteWith("[", "]")

// Dialect implements schema.Provider.
func (SQLServer) Dialect() string { return dialect.SQLServer }

// Quote implements schema.Provider.
func (SQLServer) Quote(name string) string { return mssqlQuote(name) }

// Placeholder implements schema.Provider.
func (SQLServer) Placeholder(n int) string { return "@p" + strconv.Itoa(n) }

// MaxParams implements schema.Provider. The server accepts 2100
// parameters per request and keeps a few for itself.
func (SQLServer) MaxParams() int { return 2090 }

// Bind implements schema.Provider.
func (SQLServer) Bind(_ field.Type, v any) any { return v }

// DataType implements schema.Provider.
func (SQLServer) DataType(t field.Type, size int) string {
	switch t.Elem() {
	case field.TypeBool:
		return "bit"
	case field.TypeShort:
		return "smallint"
	case field.TypeInt, field.TypeEnum:
		return "int"
	case field.TypeLong, field.TypeTime, field.TypeDuration:
		return "bigint"
	case field.TypeFloat:
		return "real"
	case field.TypeDouble:
		return "float"
	case field.TypeString:
		if size > 0 && size <= 4000 {
			return fmt.Sprintf("nvarchar(%d)", size)
		}
		return "nvarchar(max)"
	case field.TypeEnumString:
		return fmt.Sprintf("nvarchar(%d)", min(sizeOr(size, 255), 4000))
	case field.TypeUUID:
		return "nvarchar(36)"
	case field.TypeBlob:
		return "varbinary(max)"
	case field.TypeDate:
		return "date"
	case field.TypeDateTime:
		return "datetime2(7)"
	case field.TypeZonedDateTime, field.TypePeriod:
		return "nvarchar(64)"
	case field.TypeYearMonth, field.TypeMonthDay:
		return "nvarchar(16)"
	}
	return "nvarchar(max)"
}

// TableExists implements schema.Provider.
func (SQLServer) TableExists(ctx context.Context, q dialect.ExecQuerier, table string) (bool, error) {
	return schema.Exists(ctx, q,
		"SELECT COUNT(*) FROM [INFORMATION_SCHEMA].[TABLES] WHERE [TABLE_SCHEMA] = SCHEMA_NAME() AND [TABLE_NAME] = @p1", table)
}

// ColumnExists implements schema.Provider.
func (SQLServer) ColumnExists(ctx context.Context, q dialect.ExecQuerier, table, column string) (bool, error) {
	return schema.Exists(ctx, q,
		"SELECT COUNT(*) FROM [INFORMATION_SCHEMA].[COLUMNS] WHERE [TABLE_SCHEMA] = SCHEMA_NAME() AND [TABLE_NAME] = @p1 AND [COLUMN_NAME] = @p2", table, column)
}

// ProcedureExists implements schema.Provider.
func (SQLServer) ProcedureExists(ctx context.Context, q dialect.ExecQuerier, name string) (bool, error) {
	return schema.Exists(ctx, q,
		"SELECT COUNT(*) FROM [sys].[procedures] WHERE [schema_id] = SCHEMA_ID() AND [name] = @p1", name)
}

// Columns implements schema.Provider.
func (SQLServer) Columns(ctx context.Context, q dialect.ExecQuerier, table string) ([]string, error) {
	return schema.Strings(ctx, q,
		"SELECT [COLUMN_NAME] FROM [INFORMATION_SCHEMA].[COLUMNS] WHERE [TABLE_SCHEMA] = SCHEMA_NAME() AND [TABLE_NAME] = @p1 ORDER BY [ORDINAL_POSITION]", table)
}

// CreateTable implements schema.Provider. SQL Server rejects two cascading
// paths between the same tables, so only the first cascading foreign key
// to a referenced table keeps its action.
func (p SQLServer) CreateTable(t *schema.Table) []string {
	cascades := make(map[string]*schema.ForeignKey)
	return schema.TableBuilder{
		Type:  func(c *schema.Column) string { return p.DataType(c.Type, c.Size) },
		Quote: mssqlQuote,
		OnDelete: func(_ *schema.Table, fk *schema.ForeignKey) schema.ReferenceOption {
			if fk.OnDelete != schema.Cascade {
				return fk.OnDelete
			}
			if first, ok := cascades[fk.RefTable.Name]; ok && first != fk {
				return schema.NoAction
			}
			cascades[fk.RefTable.Name] = fk
			return schema.Cascade
		},
	}.Build(t)
}

// AddColumn implements schema.Provider.
func (p SQLServer) AddColumn(table string, c *schema.Column) string {
	return fmt.Sprintf("ALTER TABLE %s ADD %s %s NULL", mssqlQuote(table), mssqlQuote(c.Name), p.DataType(c.Type, c.Size))
}

// UpsertStatement implements schema.Provider.
func (p SQLServer) UpsertStatement(u *schema.Upsert) string {
	return p.merge(u, func(i int) string { return p.Placeholder(i + 1) })
}

func (SQLServer) merge(u *schema.Upsert, arg func(int) string) string {
	cols := u.Columns()
	src := make([]string, len(cols))
	for i, c := range cols {
		src[i] = fmt.Sprintf("%s AS %s", arg(i), mssqlQuote(c))
	}
	return merge(SQLServer{}, u, "WITH (HOLDLOCK) AS t", "SELECT "+strings.Join(src, ", "),
		func(sets, cond string) string {
			if cond != "" {
				return fmt.Sprintf(" WHEN MATCHED AND %s THEN UPDATE SET %s", cond, sets)
			}
			return " WHEN MATCHED THEN UPDATE SET " + sets
		}, ";")
}

// InsertStatement implements schema.Provider.
func (p SQLServer) InsertStatement(t *schema.Table, rows int) string {
	return multiValues(p, t, rows)
}

// UpsertProcedureDDL implements schema.Provider.
func (p SQLServer) UpsertProcedureDDL(u *schema.Upsert) []string {
	ps := params(u, func(n string, c *schema.Column) string {
		return "@" + n + " " + p.DataType(c.Type, c.Size)
	})
	names := argNames(u, "@")
	body := p.merge(u, func(i int) string { return names[i] })
	return []string{
		fmt.Sprintf("CREATE OR ALTER PROCEDURE %s %s AS BEGIN SET NOCOUNT ON; %s END", mssqlQuote(u.ProcedureName()), ps, body),
	}
}

// CallProcedure implements schema.Provider.
func (p SQLServer) CallProcedure(u *schema.Upsert) string {
	return fmt.Sprintf("EXEC %s %s", mssqlQuote(u.ProcedureName()), schema.Placeholders(p, 1, len(u.Table.Columns)))
}

// Lock implements schema.Provider. The application lock is owned by the
// transaction and released when it ends. sp_getapplock returns a negative
// status when the lock is not granted.
func (SQLServer) Lock(name string) schema.AdvisoryLock {
	return schema.AdvisoryLock{
		Acquire: "DECLARE @r int; " +
			"EXEC @r = sp_getapplock @Resource = @p1, @LockMode = 'Exclusive', @LockOwner = 'Transaction', @LockTimeout = 30000; " +
			"SELECT CASE WHEN @r >= 0 THEN 1 ELSE 0 END",
		Args:    []any{name},
		Checked: true,
	}
}
