package sqlgraph

import (
	"context"
	"strings"

	"github.com/syssam/versa/dialect"
	"github.com/syssam/versa/dialect/sql"
	"github.com/syssam/versa/dialect/sql/schema"
	"github.com/syssam/versa/entity"
	"github.com/syssam/versa/schema/field"
)

// builder renders one parameterized statement. Placeholders are numbered
// in the order their arguments are added.
type builder struct {
	p    schema.Provider
	sb   strings.Builder
	args []any
}

func newBuilder(p schema.Provider) *builder {
	return &builder{p: p}
}

// WriteString appends raw SQL.
func (b *builder) WriteString(s string) *builder {
	b.sb.WriteString(s)
	return b
}

// Ident appends a quoted identifier.
func (b *builder) Ident(name string) *builder {
	b.sb.WriteString(b.p.Quote(name))
	return b
}

// Idents appends a comma separated list of quoted identifiers.
func (b *builder) Idents(names ...string) *builder {
	for i, n := range names {
		if i > 0 {
			b.sb.WriteString(", ")
		}
		b.Ident(n)
	}
	return b
}

// Arg appends a placeholder bound to v.
func (b *builder) Arg(v any) *builder {
	b.args = append(b.args, v)
	b.sb.WriteString(b.p.Placeholder(len(b.args)))
	return b
}

// In appends "col IN (...)" over vs.
func (b *builder) In(col string, vs ...any) *builder {
	b.Ident(col).WriteString(" IN (")
	for i, v := range vs {
		if i > 0 {
			b.sb.WriteString(", ")
		}
		b.Arg(v)
	}
	b.sb.WriteString(")")
	return b
}

// Keys appends an OR chain matching the composite keys on the given id and
// version columns. Row value IN lists are not portable.
func (b *builder) Keys(idCol, evCol string, keys []entity.Key) *builder {
	b.sb.WriteString("(")
	for i, k := range keys {
		if i > 0 {
			b.sb.WriteString(" OR ")
		}
		b.WriteString("(").Ident(idCol).WriteString(" = ").Arg(k.ID).
			WriteString(" AND ").Ident(evCol).WriteString(" = ").Arg(k.EditVersion).
			WriteString(")")
	}
	b.sb.WriteString(")")
	return b
}

// Query returns the statement and its arguments.
func (b *builder) Query() (string, []any) {
	return b.sb.String(), b.args
}

// chunks splits n items into consecutive [start, end) ranges of at most size.
func chunks(n, size int) [][2]int {
	if size < 1 {
		size = 1
	}
	var out [][2]int
	for start := 0; start < n; start += size {
		out = append(out, [2]int{start, min(start+size, n)})
	}
	return out
}

// query runs a statement and calls fn for every row.
func query(ctx context.Context, q dialect.ExecQuerier, b *builder, fn func(*sql.Rows) error) error {
	stmt, args := b.Query()
	rows := &sql.Rows{}
	if err := q.Query(ctx, stmt, args, rows); err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	return rows.Close()
}

// bindRow converts column values to driver arguments in column order.
func bindRow(p schema.Provider, t *schema.Table, vs ...any) []any {
	args := make([]any, len(vs))
	for i, v := range vs {
		typ := field.TypeString
		if i < len(t.Columns) {
			typ = t.Columns[i].Type
		}
		args[i] = p.Bind(typ, v)
	}
	return args
}
