package sqlgraph

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/syssam/versa"
	"github.com/syssam/versa/dialect"
	"github.com/syssam/versa/dialect/sql"
	"github.com/syssam/versa/dialect/sql/schema"
	"github.com/syssam/versa/entity"
	registry "github.com/syssam/versa/schema"
)

// Save phases reported by versa.SaveError.
const (
	PhaseBegin       = "begin"
	PhaseClear       = "clear"
	PhaseOverview    = "overview"
	PhaseLivePointer = "live-pointer"
	PhaseValues      = "values"
	PhaseCollections = "collections"
	PhaseBindings    = "bindings"
	PhaseProjection  = "projection"
	PhaseListener    = "listener"
	PhaseCommit      = "commit"
)

// record is one instance in column form, encoded before any row is written.
type record struct {
	inst     *entity.Instance
	scalars  []scalarRow
	colls    []collRow
	refs     []int32 // populated entity fields
	unset    []fieldSlot
	proj     *schema.Table
	projArgs []any
}

type scalarRow struct {
	table   *schema.Table
	fieldID int32
	val     any
}

// fieldSlot is a registered field an instance does not hold, with the
// table its rows are stored in.
type fieldSlot struct {
	table   *schema.Table
	fieldID int32
}

type collRow struct {
	table   *schema.Table
	fieldID int32
	vals    []any
}

// Save persists the object graphs rooted at roots. Instances without an id
// get a generated one. Batches commit independently: on failure the
// returned *versa.SaveError names the failed batch and phase, and every
// earlier batch stays committed.
func (g *Graph) Save(ctx context.Context, roots ...*entity.Instance) error {
	fg, err := g.flatten(roots)
	if err != nil {
		return err
	}
	recs, ids, err := g.prepare(fg)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		return nil
	}
	if err := g.mgr.EnsureSchema(ctx, ids...); err != nil {
		return err
	}
	edges := make(map[entity.Key][]edge)
	for _, e := range fg.edges {
		edges[e.parent] = append(edges[e.parent], e)
	}
	now := time.Now().UTC()
	for n, c := range chunks(len(recs), g.batchLimit()) {
		if err := g.saveBatch(ctx, n, recs[c[0]:c[1]], edges, now); err != nil {
			return err
		}
	}
	return nil
}

// prepare validates the instances against the registry and encodes their
// values. It returns the records in save order and the entity types seen.
func (g *Graph) prepare(fg *flatGraph) ([]*record, []int32, error) {
	var (
		recs  = make([]*record, 0, len(fg.nodes))
		ids   []int32
		owned = make(map[int32][]int32)
	)
	for _, i := range fg.nodes {
		et, ok := g.reg.Entity(i.EntityID)
		if !ok {
			return nil, nil, fmt.Errorf("sqlgraph: %s: %w: %d", i.Key(), versa.ErrUnknownEntity, i.EntityID)
		}
		fids, ok := owned[i.EntityID]
		if !ok {
			fids = g.reg.FieldIDs(i.EntityID)
			owned[i.EntityID] = fids
			ids = append(ids, i.EntityID)
		}
		rec := &record{inst: i}
		held := i.FieldIDs()
		for _, fid := range held {
			d, ok := g.reg.Field(fid)
			if !ok || !slices.Contains(fids, fid) {
				return nil, nil, fmt.Errorf("sqlgraph: %s: field %d is not a field of entity %s", i.Key(), fid, et.Name)
			}
			if d.Type.IsEntity() {
				rec.refs = append(rec.refs, fid)
				continue
			}
			v, _ := i.Value(fid)
			cols, err := entity.Encode(d, v)
			if err != nil {
				return nil, nil, err
			}
			if d.Type.IsCollection() {
				rec.colls = append(rec.colls, collRow{table: g.valueTable(d.Type), fieldID: fid, vals: cols})
			} else if len(cols) == 1 {
				rec.scalars = append(rec.scalars, scalarRow{table: g.valueTable(d.Type), fieldID: fid, val: cols[0]})
			} else {
				rec.unset = append(rec.unset, fieldSlot{table: g.valueTable(d.Type), fieldID: fid})
			}
		}
		for _, fid := range fids {
			if slices.Contains(held, fid) {
				continue
			}
			d, _ := g.reg.Field(fid)
			tb := g.binding
			if !d.Type.IsEntity() {
				tb = g.valueTable(d.Type)
			}
			rec.unset = append(rec.unset, fieldSlot{table: tb, fieldID: fid})
		}
		if err := g.prepareProjection(rec, et); err != nil {
			return nil, nil, err
		}
		recs = append(recs, rec)
	}
	return recs, ids, nil
}

// prepareProjection encodes the projection row of rec when projections
// are enabled and its entity type names one.
func (g *Graph) prepareProjection(rec *record, et registry.EntityType) error {
	if !g.mgr.Projections() || et.Projection == "" {
		return nil
	}
	fields := g.reg.FieldsOf(et.ID)
	rec.proj = schema.Projection(et.Projection, fields, g.overview)
	rec.projArgs = []any{rec.inst.ID, rec.inst.EditVersion}
	for _, d := range fields {
		if !d.Type.Flattenable() {
			continue
		}
		var val any
		if v, ok := rec.inst.Value(d.ID); ok {
			cols, err := entity.Encode(d, v)
			if err != nil {
				return err
			}
			if len(cols) == 1 {
				val = cols[0]
			}
		}
		rec.projArgs = append(rec.projArgs, val)
	}
	return nil
}

func (g *Graph) saveBatch(ctx context.Context, n int, recs []*record, edges map[entity.Key][]edge, now time.Time) error {
	tx, err := g.drv.Tx(ctx)
	if err != nil {
		return &versa.SaveError{Phase: PhaseBegin, Batch: n, Err: err}
	}
	insts := make([]*entity.Instance, len(recs))
	for i, r := range recs {
		insts[i] = r.inst
	}
	fail := func(phase string, err error) error {
		return rollback(tx, &versa.SaveError{Phase: phase, Batch: n, Err: err})
	}
	for _, l := range g.preSave {
		if err := l.PreSave(ctx, tx, insts); err != nil {
			return fail(PhaseListener, err)
		}
	}
	phases := []struct {
		name string
		run  func(context.Context, dialect.ExecQuerier, []*record) error
	}{
		{PhaseClear, g.clearUnset},
		{PhaseOverview, func(ctx context.Context, q dialect.ExecQuerier, recs []*record) error {
			return g.writeOverviews(ctx, q, recs, now)
		}},
		{PhaseLivePointer, g.writeLivePointers},
		{PhaseValues, g.writeScalars},
		{PhaseCollections, g.writeCollections},
		{PhaseBindings, func(ctx context.Context, q dialect.ExecQuerier, recs []*record) error {
			return g.writeBindings(ctx, q, recs, edges)
		}},
		{PhaseProjection, g.writeProjections},
	}
	for _, p := range phases {
		if err := p.run(ctx, tx, recs); err != nil {
			return fail(p.name, err)
		}
	}
	for _, l := range g.postSave {
		if err := l.PostSave(ctx, tx, insts); err != nil {
			return fail(PhaseListener, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return &versa.SaveError{Phase: PhaseCommit, Batch: n, Err: err}
	}
	for _, i := range insts {
		g.cacheDelete(ctx, versa.CacheKey{ID: i.ID, EditVersion: i.EditVersion}.String())
	}
	return nil
}

func (g *Graph) writeOverviews(ctx context.Context, q dialect.ExecQuerier, recs []*record, now time.Time) error {
	stmt := g.upsert(schema.NewUpsert(g.overview))
	for _, r := range recs {
		i := r.inst
		created := i.CreatedAt
		if created.IsZero() {
			created = now
		}
		args := bindRow(g.prov, g.overview, i.ID, i.EditVersion, i.EntityID, i.Live, created.UTC(), now)
		if err := q.Exec(ctx, stmt, args, nil); err != nil {
			return fmt.Errorf("%s: %w", i.Key(), err)
		}
	}
	return nil
}

func (g *Graph) writeLivePointers(ctx context.Context, q dialect.ExecQuerier, recs []*record) error {
	if !g.livePointer {
		return nil
	}
	stmt := g.upsert(schema.UpsertOf(g.live))
	for _, r := range recs {
		args := bindRow(g.prov, g.live, r.inst.ID, r.inst.EditVersion)
		if err := q.Exec(ctx, stmt, args, nil); err != nil {
			return fmt.Errorf("%s: %w", r.inst.Key(), err)
		}
	}
	return nil
}

func (g *Graph) writeScalars(ctx context.Context, q dialect.ExecQuerier, recs []*record) error {
	stmts := make(map[string]string)
	for _, r := range recs {
		for _, row := range r.scalars {
			stmt, ok := stmts[row.table.Name]
			if !ok {
				stmt = g.upsert(schema.NewUpsert(row.table))
				stmts[row.table.Name] = stmt
			}
			args := bindRow(g.prov, row.table, r.inst.ID, r.inst.EditVersion, row.fieldID, row.val)
			if err := q.Exec(ctx, stmt, args, nil); err != nil {
				return fmt.Errorf("%s field %d: %w", r.inst.Key(), row.fieldID, err)
			}
		}
	}
	return nil
}

// clearUnset deletes the rows of fields that a re-saved version no longer
// holds, so the stored version matches the saved instance. Versions saved
// for the first time have no rows to delete and are skipped.
func (g *Graph) clearUnset(ctx context.Context, q dialect.ExecQuerier, recs []*record) error {
	var keys []entity.Key
	for _, r := range recs {
		if len(r.unset) > 0 {
			keys = append(keys, r.inst.Key())
		}
	}
	if len(keys) == 0 {
		return nil
	}
	stored := make(map[entity.Key]bool, len(keys))
	for _, c := range chunks(len(keys), g.keyLimit()) {
		b := newBuilder(g.prov).WriteString("SELECT ").Idents(schema.IDColumn, schema.EditVersionColumn).
			WriteString(" FROM ").Ident(g.overview.Name).WriteString(" WHERE ").
			Keys(schema.IDColumn, schema.EditVersionColumn, keys[c[0]:c[1]])
		err := query(ctx, q, b, func(rows *sql.Rows) error {
			var k entity.Key
			if err := rows.Scan(&k.ID, &k.EditVersion); err != nil {
				return err
			}
			stored[k] = true
			return nil
		})
		if err != nil {
			return err
		}
	}
	var (
		tables []*schema.Table
		slots  = make(map[string][]slot)
	)
	for _, r := range recs {
		if !stored[r.inst.Key()] {
			continue
		}
		for _, u := range r.unset {
			name := u.table.Name
			if _, ok := slots[name]; !ok {
				tables = append(tables, u.table)
			}
			slots[name] = append(slots[name], slot{key: r.inst.Key(), fieldID: u.fieldID})
		}
	}
	for _, t := range tables {
		idCol, evCol := schema.IDColumn, schema.EditVersionColumn
		if t == g.binding {
			idCol, evCol = schema.ParentIDColumn, schema.ParentEditVersionColumn
		}
		if err := g.deleteSlots(ctx, q, t, idCol, evCol, slots[t.Name]); err != nil {
			return err
		}
	}
	return nil
}

// slot identifies the rows of one field of one instance version.
type slot struct {
	key     entity.Key
	fieldID int32
}

// deleteSlots removes the rows of the given slots from t, which is keyed by
// the id, version and field columns.
func (g *Graph) deleteSlots(ctx context.Context, q dialect.ExecQuerier, t *schema.Table, idCol, evCol string, slots []slot) error {
	for _, c := range chunks(len(slots), g.prov.MaxParams()/3) {
		b := newBuilder(g.prov).WriteString("DELETE FROM ").Ident(t.Name).WriteString(" WHERE ")
		for i, s := range slots[c[0]:c[1]] {
			if i > 0 {
				b.WriteString(" OR ")
			}
			b.WriteString("(").Ident(idCol).WriteString(" = ").Arg(s.key.ID).
				WriteString(" AND ").Ident(evCol).WriteString(" = ").Arg(s.key.EditVersion).
				WriteString(" AND ").Ident(schema.FieldIDColumn).WriteString(" = ").Arg(s.fieldID).
				WriteString(")")
		}
		stmt, args := b.Query()
		if err := q.Exec(ctx, stmt, args, nil); err != nil {
			return fmt.Errorf("delete from %s: %w", t.Name, err)
		}
	}
	return nil
}

// insertRows inserts rows of t with multi-row statements that stay within
// the parameter limit.
func (g *Graph) insertRows(ctx context.Context, q dialect.ExecQuerier, t *schema.Table, rows [][]any) error {
	width := len(t.Columns)
	for _, c := range chunks(len(rows), g.prov.MaxParams()/width) {
		args := make([]any, 0, (c[1]-c[0])*width)
		for _, row := range rows[c[0]:c[1]] {
			args = append(args, bindRow(g.prov, t, row...)...)
		}
		if err := q.Exec(ctx, g.prov.InsertStatement(t, c[1]-c[0]), args, nil); err != nil {
			return fmt.Errorf("insert into %s: %w", t.Name, err)
		}
	}
	return nil
}

// writeCollections replaces the elements of every populated collection
// slot, so a collection saved shorter than before keeps no stale element.
func (g *Graph) writeCollections(ctx context.Context, q dialect.ExecQuerier, recs []*record) error {
	var (
		tables []*schema.Table
		slots  = make(map[string][]slot)
		rows   = make(map[string][][]any)
	)
	for _, r := range recs {
		for _, c := range r.colls {
			name := c.table.Name
			if _, ok := slots[name]; !ok {
				tables = append(tables, c.table)
			}
			slots[name] = append(slots[name], slot{key: r.inst.Key(), fieldID: c.fieldID})
			for seq, v := range c.vals {
				rows[name] = append(rows[name], []any{r.inst.ID, r.inst.EditVersion, c.fieldID, int32(seq), v})
			}
		}
	}
	for _, t := range tables {
		if err := g.deleteSlots(ctx, q, t, schema.IDColumn, schema.EditVersionColumn, slots[t.Name]); err != nil {
			return err
		}
		if err := g.insertRows(ctx, q, t, rows[t.Name]); err != nil {
			return err
		}
	}
	return nil
}

// writeBindings replaces the bindings of every populated entity slot. A
// child referenced twice by one collection keeps a single row holding its
// last position.
func (g *Graph) writeBindings(ctx context.Context, q dialect.ExecQuerier, recs []*record, edges map[entity.Key][]edge) error {
	var slots []slot
	for _, r := range recs {
		for _, fid := range r.refs {
			slots = append(slots, slot{key: r.inst.Key(), fieldID: fid})
		}
	}
	if len(slots) == 0 {
		return nil
	}
	if err := g.deleteSlots(ctx, q, g.binding, schema.ParentIDColumn, schema.ParentEditVersionColumn, slots); err != nil {
		return err
	}
	stmt := g.upsert(schema.UpsertOf(g.binding))
	for _, r := range recs {
		for _, e := range edges[r.inst.Key()] {
			args := bindRow(g.prov, g.binding, e.parent.ID, e.parent.EditVersion, e.fieldID, e.child.ID, e.child.EditVersion, e.seq)
			if err := q.Exec(ctx, stmt, args, nil); err != nil {
				return fmt.Errorf("%s field %d -> %s: %w", e.parent, e.fieldID, e.child, err)
			}
		}
	}
	return nil
}

func (g *Graph) writeProjections(ctx context.Context, q dialect.ExecQuerier, recs []*record) error {
	stmts := make(map[string]string)
	for _, r := range recs {
		if r.proj == nil {
			continue
		}
		stmt, ok := stmts[r.proj.Name]
		if !ok {
			stmt = g.upsert(schema.UpsertOf(r.proj))
			stmts[r.proj.Name] = stmt
		}
		if err := q.Exec(ctx, stmt, bindRow(g.prov, r.proj, r.projArgs...), nil); err != nil {
			return fmt.Errorf("%s: %w", r.inst.Key(), err)
		}
	}
	return nil
}
