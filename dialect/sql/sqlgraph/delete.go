package sqlgraph

import (
	"context"
	"slices"

	"github.com/syssam/versa"
	"github.com/syssam/versa/dialect/sql"
	"github.com/syssam/versa/dialect/sql/schema"
)

// PhaseDelete is reported by versa.SaveError when a delete statement fails.
const PhaseDelete = "delete"

// Delete removes every version of the given ids. Values, projection rows
// and the bindings of the removed parents go with the overview rows.
// Bindings that point at a removed version from another parent are removed
// as well, so no parent is left with a dangling binding, and the cached
// versions of those parents are dropped.
func (g *Graph) Delete(ctx context.Context, ids ...string) error {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return nil
	}
	if err := g.mgr.EnsureSchema(ctx); err != nil {
		return err
	}
	tx, err := g.drv.Tx(ctx)
	if err != nil {
		return &versa.SaveError{Phase: PhaseBegin, Err: err}
	}
	evict := slices.Clone(ids)
	for n, c := range chunks(len(ids), g.prov.MaxParams()) {
		vs := make([]any, 0, c[1]-c[0])
		for _, id := range ids[c[0]:c[1]] {
			vs = append(vs, id)
		}
		if g.cache != nil {
			b := newBuilder(g.prov).WriteString("SELECT DISTINCT ").Ident(schema.ParentIDColumn).
				WriteString(" FROM ").Ident(schema.BindingTable).WriteString(" WHERE ").In(schema.ChildIDColumn, vs...)
			err := query(ctx, tx, b, func(rows *sql.Rows) error {
				var id string
				if err := rows.Scan(&id); err != nil {
					return err
				}
				evict = append(evict, id)
				return nil
			})
			if err != nil {
				return rollback(tx, &versa.SaveError{Phase: PhaseDelete, Batch: n, Err: err})
			}
		}
		deletes := []struct {
			table, col string
		}{
			{schema.BindingTable, schema.ChildIDColumn},
			{schema.OverviewTable, schema.IDColumn},
			{schema.LiveVersionTable, schema.IDColumn},
		}
		for _, d := range deletes {
			stmt, args := newBuilder(g.prov).WriteString("DELETE FROM ").Ident(d.table).
				WriteString(" WHERE ").In(d.col, vs...).Query()
			if err := tx.Exec(ctx, stmt, args, nil); err != nil {
				return rollback(tx, &versa.SaveError{Phase: PhaseDelete, Batch: n, Err: err})
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return &versa.SaveError{Phase: PhaseCommit, Err: err}
	}
	if g.cache != nil {
		for _, id := range dedupe(evict) {
			if err := g.cache.DeletePrefix(ctx, versa.CacheIDPrefix(id)); err != nil {
				g.log.WarnContext(ctx, "cache delete failed", "id", id, "error", err)
			}
		}
	}
	return nil
}
