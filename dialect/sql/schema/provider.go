package schema

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/syssam/versa/dialect"
	"github.com/syssam/versa/dialect/sql"
	"github.com/syssam/versa/schema/field"
)

// Provider generates the backend specific SQL used by the Manager and the
// save and load engines. There is one implementation per backend in the
// syntax package.
type Provider interface {
	// Dialect returns the dialect name, e.g. dialect.Postgres.
	Dialect() string
	// DataType returns the native column type of t. size bounds string
	// columns and 0 means unbounded.
	DataType(t field.Type, size int) string
	// Quote quotes an identifier.
	Quote(name string) string
	// Placeholder returns the n-th (1-based) bind parameter marker.
	Placeholder(n int) string
	// MaxParams returns the maximum number of bind parameters a single
	// statement may carry.
	MaxParams() int
	// Bind converts the column form of a value of type t to a driver argument.
	Bind(t field.Type, v any) any

	TableExists(ctx context.Context, q dialect.ExecQuerier, table string) (bool, error)
	ColumnExists(ctx context.Context, q dialect.ExecQuerier, table, column string) (bool, error)
	ProcedureExists(ctx context.Context, q dialect.ExecQuerier, name string) (bool, error)
	// Columns returns the column names of an existing table.
	Columns(ctx context.Context, q dialect.ExecQuerier, table string) ([]string, error)

	// CreateTable returns the statements creating t and its indexes.
	CreateTable(t *Table) []string
	// AddColumn returns the statement adding c to an existing table.
	AddColumn(table string, c *Column) string
	// UpsertStatement returns a parameterized statement inserting one row of
	// u.Table, or updating its non-key columns when the key exists. The
	// parameters follow u.Table.Columns order.
	UpsertStatement(u *Upsert) string
	// InsertStatement returns a statement inserting rows rows of t.
	InsertStatement(t *Table, rows int) string
	// UpsertProcedureDDL returns the statements creating or replacing the
	// upsert procedure of u. It returns nil when the backend has no
	// stored procedures.
	UpsertProcedureDDL(u *Upsert) []string
	// CallProcedure returns the statement invoking the upsert procedure of u.
	CallProcedure(u *Upsert) string
	// Lock returns the statements of the cross-process lock named name.
	Lock(name string) AdvisoryLock
}

// AdvisoryLock serializes schema changes across processes. It is taken
// inside the schema transaction.
type AdvisoryLock struct {
	// Acquire takes the lock. Empty means no lock is needed.
	Acquire string
	// Release frees the lock before commit. Empty when the lock ends with
	// the transaction.
	Release string
	Args    []any
	// Checked is set when Acquire returns one row holding 1 once the lock
	// is granted and 0 when it timed out.
	Checked bool
}

// Upsert describes an insert-or-update of one table row.
type Upsert struct {
	Table *Table
	// Keys are the conflict columns. Defaults to the primary key.
	Keys []string
	// Monotonic, when set, names a column that existing rows only accept
	// when the new value is greater.
	Monotonic string
}

// NewUpsert returns an upsert of t keyed by its primary key.
func NewUpsert(t *Table) *Upsert {
	return &Upsert{Table: t}
}

// KeyColumns returns the conflict columns.
func (u *Upsert) KeyColumns() []string {
	if len(u.Keys) > 0 {
		return u.Keys
	}
	return u.Table.PrimaryKeyNames()
}

// Columns returns every column in parameter order.
func (u *Upsert) Columns() []string {
	return u.Table.ColumnNames()
}

// UpdateColumns returns the non-key columns.
func (u *Upsert) UpdateColumns() []string {
	keys := u.KeyColumns()
	var cols []string
	for _, c := range u.Table.Columns {
		if !slices.Contains(keys, c.Name) {
			cols = append(cols, c.Name)
		}
	}
	return cols
}

// ProcedureName returns the name of the upsert procedure of the table.
func (u *Upsert) ProcedureName() string {
	return ProcedureName(u.Table.Name)
}

// ProcedureName returns the name of the upsert procedure of a table.
func ProcedureName(table string) string {
	name := "up_" + table
	if len(name) > maxIdentifier {
		name = name[:maxIdentifier]
	}
	return name
}

// Placeholders returns n comma separated bind parameters starting at
// the parameter number start.
func Placeholders(p Provider, start, n int) string {
	ps := make([]string, n)
	for i := range ps {
		ps[i] = p.Placeholder(start + i)
	}
	return strings.Join(ps, ", ")
}

// Exists runs query and reports if it returned at least one row with a
// non-zero first column.
func Exists(ctx context.Context, q dialect.ExecQuerier, query string, args ...any) (bool, error) {
	rows := &sql.Rows{}
	if err := q.Query(ctx, query, args, rows); err != nil {
		return false, err
	}
	defer rows.Close()
	if !rows.Next() {
		return false, rows.Err()
	}
	var n int64
	if err := rows.Scan(&n); err != nil {
		return false, err
	}
	return n > 0, rows.Close()
}

// Strings runs query and collects its first column.
func Strings(ctx context.Context, q dialect.ExecQuerier, query string, args ...any) ([]string, error) {
	rows := &sql.Rows{}
	if err := q.Query(ctx, query, args, rows); err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		names = append(names, s)
	}
	return names, rows.Err()
}

// TableBuilder renders the CREATE TABLE statements shared by every backend.
// Providers plug in their type names and the options they diverge on.
type TableBuilder struct {
	// Type returns the native type of a column.
	Type func(c *Column) string
	// Quote quotes an identifier. Defaults to no quoting.
	Quote func(string) string
	// OnDelete adjusts the delete action of a foreign key.
	OnDelete func(t *Table, fk *ForeignKey) ReferenceOption
	// Suffix is appended to the CREATE TABLE statement, e.g. an engine clause.
	Suffix string
}

// Build returns the CREATE TABLE statement of t followed by its CREATE INDEX
// statements.
func (b TableBuilder) Build(t *Table) []string {
	q := b.Quote
	if q == nil {
		q = func(s string) string { return s }
	}
	defs := make([]string, 0, len(t.Columns)+len(t.ForeignKeys)+1)
	for _, c := range t.Columns {
		def := q(c.Name) + " " + b.Type(c)
		if !c.Nullable {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	if len(t.PrimaryKey) > 0 {
		defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", quoteAll(q, columnNames(t.PrimaryKey))))
	}
	for _, fk := range t.ForeignKeys {
		action := fk.OnDelete
		if b.OnDelete != nil {
			action = b.OnDelete(t, fk)
		}
		def := fmt.Sprintf("CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)",
			q(fk.Symbol), quoteAll(q, columnNames(fk.Columns)), q(fk.RefTable.Name), quoteAll(q, columnNames(fk.RefColumns)))
		if action != "" && action != NoAction {
			def += " ON DELETE " + string(action)
		}
		defs = append(defs, def)
	}
	stmt := fmt.Sprintf("CREATE TABLE %s (%s)", q(t.Name), strings.Join(defs, ", "))
	if b.Suffix != "" {
		stmt += " " + b.Suffix
	}
	stmts := []string{stmt}
	for _, idx := range t.Indexes {
		kind := "INDEX"
		if idx.Unique {
			kind = "UNIQUE INDEX"
		}
		stmts = append(stmts, fmt.Sprintf("CREATE %s %s ON %s (%s)", kind, q(idx.Name), q(t.Name), quoteAll(q, idx.ColumnNames())))
	}
	return stmts
}

func quoteAll(q func(string) string, names []string) string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = q(n)
	}
	return columnList(out)
}
