// Package syntax holds one schema.Provider per supported backend.
//
// Providers are selected by dialect name:
//
//	p, err := syntax.For(drv.Dialect())
//	if err != nil {
//	    return err
//	}
//	m := schema.NewManager(drv, p, reg)
package syntax

import (
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/syssam/versa/dialect"
	"github.com/syssam/versa/dialect/sql/schema"
)

// For returns the provider of the given dialect or driver name.
func For(name string) (schema.Provider, error) {
	switch dialect.Normalize(name) {
	case dialect.MySQL:
		return MySQL{}, nil
	case dialect.Postgres:
		return Postgres{}, nil
	case dialect.SQLite:
		return SQLite{}, nil
	case dialect.SQLServer:
		return SQLServer{}, nil
	case dialect.Oracle:
		return Oracle{}, nil
	}
	return nil, fmt.Errorf("syntax: unsupported dialect %q", name)
}

// MustFor is like For but panics on error.
func MustFor(name string) schema.Provider {
	p, err := For(name)
	if err != nil {
		panic(err)
	}
	return p
}

// Compile-time checks.
var (
	_ schema.Provider = MySQL{}
	_ schema.Provider = Postgres{}
	_ schema.Provider = SQLite{}
	_ schema.Provider = SQLServer{}
	_ schema.Provider = Oracle{}
)

// lockKey maps a lock name to a 64-bit advisory lock key.
func lockKey(name string) int64 {
	h := fnv.New64a()
	h.Write([]byte(name))
	return int64(h.Sum64())
}

// quoteWith returns a function quoting identifiers between start and end.
func quoteWith(start, end string) func(string) string {
	return func(s string) string {
		return start + strings.ReplaceAll(s, end, end+end) + end
	}
}

func quoteAll(q func(string) string, names []string) string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = q(n)
	}
	return strings.Join(out, ", ")
}

// onConflict renders the INSERT ... ON CONFLICT upsert shared by Postgres
// and SQLite.
func onConflict(p schema.Provider, u *schema.Upsert, values string) string {
	q, t := p.Quote, u.Table.Name
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s)",
		q(t), quoteAll(q, u.Columns()), values, quoteAll(q, u.KeyColumns()))
	updates := u.UpdateColumns()
	if len(updates) == 0 {
		b.WriteString(" DO NOTHING")
		return b.String()
	}
	sets := make([]string, len(updates))
	for i, c := range updates {
		sets[i] = fmt.Sprintf("%s = EXCLUDED.%s", q(c), q(c))
	}
	fmt.Fprintf(&b, " DO UPDATE SET %s", strings.Join(sets, ", "))
	if u.Monotonic != "" {
		fmt.Fprintf(&b, " WHERE %s.%s < EXCLUDED.%s", q(t), q(u.Monotonic), q(u.Monotonic))
	}
	return b.String()
}

// merge renders the MERGE upsert shared by SQL Server and Oracle. source
// is the row source expression, e.g. "SELECT @p1 AS [id]". matched renders
// the WHEN MATCHED clause from the SET list and the optional guard.
func merge(p schema.Provider, u *schema.Upsert, into, source string, matched func(sets, cond string) string, tail string) string {
	q := p.Quote
	on := make([]string, 0, len(u.KeyColumns()))
	for _, k := range u.KeyColumns() {
		on = append(on, fmt.Sprintf("t.%s = s.%s", q(k), q(k)))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "MERGE INTO %s %s USING (%s) s ON (%s)", q(u.Table.Name), into, source, strings.Join(on, " AND "))
	if updates := u.UpdateColumns(); len(updates) > 0 {
		sets := make([]string, len(updates))
		for i, c := range updates {
			sets[i] = fmt.Sprintf("t.%s = s.%s", q(c), q(c))
		}
		cond := ""
		if u.Monotonic != "" {
			cond = fmt.Sprintf("t.%s < s.%s", q(u.Monotonic), q(u.Monotonic))
		}
		b.WriteString(matched(strings.Join(sets, ", "), cond))
	}
	cols := u.Columns()
	vals := make([]string, len(cols))
	for i, c := range cols {
		vals[i] = "s." + q(c)
	}
	fmt.Fprintf(&b, " WHEN NOT MATCHED THEN INSERT (%s) VALUES (%s)%s", quoteAll(q, cols), strings.Join(vals, ", "), tail)
	return b.String()
}

// multiValues renders an INSERT with rows VALUES tuples.
func multiValues(p schema.Provider, t *schema.Table, rows int) string {
	cols := t.ColumnNames()
	tuples := make([]string, rows)
	for i := range tuples {
		tuples[i] = "(" + schema.Placeholders(p, i*len(cols)+1, len(cols)) + ")"
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", p.Quote(t.Name), quoteAll(p.Quote, cols), strings.Join(tuples, ", "))
}

// params renders the parameter list of an upsert procedure.
func params(u *schema.Upsert, param func(name string, c *schema.Column) string) string {
	ps := make([]string, len(u.Table.Columns))
	for i, c := range u.Table.Columns {
		ps[i] = param("p_"+c.Name, c)
	}
	return strings.Join(ps, ", ")
}

// argNames returns the procedure parameter names in column order.
func argNames(u *schema.Upsert, prefix string) []string {
	names := make([]string, len(u.Table.Columns))
	for i, c := range u.Table.Columns {
		names[i] = prefix + "p_" + c.Name
	}
	return names
}
