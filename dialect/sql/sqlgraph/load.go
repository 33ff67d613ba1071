package sqlgraph

import (
	"context"
	"fmt"
	"slices"

	"github.com/syssam/versa"
	"github.com/syssam/versa/dialect"
	"github.com/syssam/versa/dialect/sql"
	"github.com/syssam/versa/dialect/sql/schema"
	"github.com/syssam/versa/entity"
	"github.com/syssam/versa/schema/field"
)

// Load phases reported by versa.LoadError.
const (
	PhaseResolve = "resolve"
	PhaseCache   = "cache"
)

// LoadByIDs loads the latest version of every id together with everything
// it references. Unknown ids are skipped. The result follows the order of
// ids.
//
// When bindings point to versions that cannot be materialized, the
// instances that could be loaded are returned along with a
// *versa.DanglingReferenceError.
func (g *Graph) LoadByIDs(ctx context.Context, ids ...string) ([]*entity.Instance, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return g.read(ctx, func(q dialect.ExecQuerier) ([]*entity.Instance, error) {
		keys, err := g.resolveIDs(ctx, q, ids)
		if err != nil {
			return nil, &versa.LoadError{Phase: PhaseResolve, Err: err}
		}
		return g.load(ctx, q, keys)
	})
}

// LoadByKeys loads the given versions together with everything they
// reference. Unknown keys are skipped.
func (g *Graph) LoadByKeys(ctx context.Context, keys ...entity.Key) ([]*entity.Instance, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	return g.read(ctx, func(q dialect.ExecQuerier) ([]*entity.Instance, error) {
		return g.load(ctx, q, keys)
	})
}

// LoadAllOfType loads the latest version of every id whose entity type is
// entityID or one of its subtypes, ordered by id.
func (g *Graph) LoadAllOfType(ctx context.Context, entityID int32) ([]*entity.Instance, error) {
	if _, ok := g.reg.Entity(entityID); !ok {
		return nil, fmt.Errorf("sqlgraph: %w: %d", versa.ErrUnknownEntity, entityID)
	}
	return g.read(ctx, func(q dialect.ExecQuerier) ([]*entity.Instance, error) {
		keys, err := g.resolveType(ctx, q, g.reg.InheritanceClosure(entityID))
		if err != nil {
			return nil, &versa.LoadError{Phase: PhaseResolve, Err: err}
		}
		return g.load(ctx, q, keys)
	})
}

// read runs fn in one transaction. A dangling reference error keeps the
// partial result.
func (g *Graph) read(ctx context.Context, fn func(dialect.ExecQuerier) ([]*entity.Instance, error)) ([]*entity.Instance, error) {
	if err := g.mgr.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	tx, err := g.drv.Tx(ctx)
	if err != nil {
		return nil, &versa.LoadError{Phase: PhaseBegin, Err: err}
	}
	out, err := fn(tx)
	if err != nil && !versa.IsDanglingReference(err) {
		return nil, rollback(tx, err)
	}
	if cerr := tx.Commit(); cerr != nil {
		return nil, &versa.LoadError{Phase: PhaseCommit, Err: cerr}
	}
	return out, err
}

// liveFilter appends the live condition when only live versions resolve.
func (g *Graph) liveFilter(b *builder) {
	if g.liveOnly {
		b.WriteString(" AND ").Ident(schema.LiveColumn).WriteString(" = ").Arg(g.prov.Bind(field.TypeBool, true))
	}
}

// resolveIDs maps every id to its highest edit version, keeping the order
// of ids.
func (g *Graph) resolveIDs(ctx context.Context, q dialect.ExecQuerier, ids []string) ([]entity.Key, error) {
	ids = dedupe(ids)
	latest := make(map[string]int32, len(ids))
	for _, c := range chunks(len(ids), g.prov.MaxParams()-1) {
		vs := make([]any, 0, c[1]-c[0])
		for _, id := range ids[c[0]:c[1]] {
			vs = append(vs, id)
		}
		b := g.selectLatest().In(schema.IDColumn, vs...)
		g.liveFilter(b)
		b.WriteString(" GROUP BY ").Ident(schema.IDColumn)
		err := query(ctx, q, b, func(rows *sql.Rows) error {
			var k entity.Key
			if err := rows.Scan(&k.ID, &k.EditVersion); err != nil {
				return err
			}
			latest[k.ID] = k.EditVersion
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	keys := make([]entity.Key, 0, len(latest))
	for _, id := range ids {
		if ev, ok := latest[id]; ok {
			keys = append(keys, entity.Key{ID: id, EditVersion: ev})
		}
	}
	return keys, nil
}

// resolveType returns the latest version of every id stored with one of
// the given entity types, ordered by id.
func (g *Graph) resolveType(ctx context.Context, q dialect.ExecQuerier, entityIDs []int32) ([]entity.Key, error) {
	vs := make([]any, len(entityIDs))
	for i, id := range entityIDs {
		vs[i] = id
	}
	b := g.selectLatest().In(schema.EntityIDColumn, vs...)
	g.liveFilter(b)
	b.WriteString(" GROUP BY ").Ident(schema.IDColumn).WriteString(" ORDER BY ").Ident(schema.IDColumn)
	var keys []entity.Key
	err := query(ctx, q, b, func(rows *sql.Rows) error {
		var k entity.Key
		if err := rows.Scan(&k.ID, &k.EditVersion); err != nil {
			return err
		}
		keys = append(keys, k)
		return nil
	})
	return keys, err
}

func (g *Graph) selectLatest() *builder {
	return newBuilder(g.prov).
		WriteString("SELECT ").Ident(schema.IDColumn).
		WriteString(", MAX(").Ident(schema.EditVersionColumn).WriteString(") FROM ").
		Ident(schema.OverviewTable).WriteString(" WHERE ")
}

// loader is the state of one load call.
type loader struct {
	insts   map[entity.Key]*entity.Instance
	seen    map[entity.Key]bool
	unknown map[entity.Key]int32 // versions of unregistered entity types
	edges   []edge
	fresh   []*entity.Instance // materialized from the database, not the cache
}

func (g *Graph) load(ctx context.Context, q dialect.ExecQuerier, roots []entity.Key) ([]*entity.Instance, error) {
	for _, l := range g.preLoad {
		if err := l.PreLoad(ctx, q, roots); err != nil {
			return nil, &versa.LoadError{Phase: PhaseListener, Err: err}
		}
	}
	st := &loader{
		insts:   make(map[entity.Key]*entity.Instance),
		seen:    make(map[entity.Key]bool),
		unknown: make(map[entity.Key]int32),
	}
	var queue []entity.Key
	for _, k := range roots {
		if !st.seen[k] {
			st.seen[k] = true
			queue = append(queue, k)
		}
	}
	for len(queue) > 0 {
		var next []entity.Key
		for _, c := range chunks(len(queue), g.keyLimit()) {
			children, err := g.loadBatch(ctx, q, st, queue[c[0]:c[1]])
			if err != nil {
				return nil, err
			}
			for _, k := range children {
				if !st.seen[k] {
					st.seen[k] = true
					next = append(next, k)
				}
			}
		}
		queue = next
	}
	if err := checkAcyclic(st.edges); err != nil {
		return nil, err
	}
	dangling := g.attach(ctx, st)
	g.cacheStore(ctx, st, dangling)

	out := make([]*entity.Instance, 0, len(roots))
	for _, k := range roots {
		if i, ok := st.insts[k]; ok {
			out = append(out, i)
		} else if et, ok := st.unknown[k]; ok {
			dangling = append(dangling, versa.DanglingRef{ChildID: k.ID, ChildEditVersion: k.EditVersion, EntityTypeID: et})
		}
	}
	for _, l := range g.postLoad {
		if err := l.PostLoad(ctx, q, out); err != nil {
			return nil, &versa.LoadError{Phase: PhaseListener, Err: err}
		}
	}
	if len(dangling) > 0 {
		return out, &versa.DanglingReferenceError{Refs: dangling}
	}
	return out, nil
}

// loadBatch materializes keys and returns the keys of their children.
func (g *Graph) loadBatch(ctx context.Context, q dialect.ExecQuerier, st *loader, keys []entity.Key) ([]entity.Key, error) {
	var children []entity.Key
	misses, err := g.fromCache(ctx, st, keys, &children)
	if err != nil {
		return nil, &versa.LoadError{Phase: PhaseCache, Err: err}
	}
	if len(misses) == 0 {
		return children, nil
	}
	found, err := g.readOverviews(ctx, q, st, misses)
	if err != nil {
		return nil, &versa.LoadError{Phase: PhaseOverview, Err: err}
	}
	if len(found) == 0 {
		return children, nil
	}
	if err := g.readValues(ctx, q, st, found); err != nil {
		return nil, &versa.LoadError{Phase: PhaseValues, Err: err}
	}
	if err := g.readBindings(ctx, q, st, found, &children); err != nil {
		return nil, &versa.LoadError{Phase: PhaseBindings, Err: err}
	}
	return children, nil
}

// fromCache restores the cached versions among keys and returns the rest.
func (g *Graph) fromCache(ctx context.Context, st *loader, keys []entity.Key, children *[]entity.Key) ([]entity.Key, error) {
	if g.cache == nil {
		return keys, nil
	}
	var misses []entity.Key
	for _, k := range keys {
		b, err := g.cache.Get(ctx, versa.CacheKey{ID: k.ID, EditVersion: k.EditVersion}.String())
		if err != nil {
			return nil, err
		}
		if b == nil {
			misses = append(misses, k)
			continue
		}
		s, err := entity.UnmarshalSnapshot(b)
		if err == nil {
			var i *entity.Instance
			if i, err = s.Restore(g.reg.Field); err == nil {
				st.insts[k] = i
				for _, fid := range sortedFields(s.Children) {
					for seq, c := range s.Children[fid] {
						st.edges = append(st.edges, edge{parent: k, child: c, fieldID: fid, seq: int32(seq)})
						*children = append(*children, c)
					}
				}
				continue
			}
		}
		g.log.WarnContext(ctx, "discarding cached version", "key", k.String(), "error", err)
		misses = append(misses, k)
	}
	return misses, nil
}

func (g *Graph) readOverviews(ctx context.Context, q dialect.ExecQuerier, st *loader, keys []entity.Key) ([]entity.Key, error) {
	b := newBuilder(g.prov).WriteString("SELECT ").Idents(g.overview.ColumnNames()...).
		WriteString(" FROM ").Ident(g.overview.Name).WriteString(" WHERE ").
		Keys(schema.IDColumn, schema.EditVersionColumn, keys)
	var found []entity.Key
	err := query(ctx, q, b, func(rows *sql.Rows) error {
		var (
			ov                  entity.Overview
			created, lastEdited sql.NullTime
		)
		if err := rows.Scan(&ov.ID, &ov.EditVersion, &ov.EntityID, &ov.Live, &created, &lastEdited); err != nil {
			return err
		}
		i, err := g.reg.NewInstance(ov.EntityID)
		if err != nil {
			st.unknown[ov.Key] = ov.EntityID
			return nil
		}
		ov.CreatedAt, ov.LastEdit = created.Time, lastEdited.Time
		i.Overview = ov
		st.insts[ov.Key] = i
		st.fresh = append(st.fresh, i)
		found = append(found, ov.Key)
		return nil
	})
	return found, err
}

// readValues reads every value table used by the entity types of keys.
// Rows that cannot be decoded are logged and skipped.
func (g *Graph) readValues(ctx context.Context, q dialect.ExecQuerier, st *loader, keys []entity.Key) error {
	var entityIDs []int32
	for _, k := range keys {
		if id := st.insts[k].EntityID; !slices.Contains(entityIDs, id) {
			entityIDs = append(entityIDs, id)
		}
	}
	for _, t := range g.reg.FieldTypes(entityIDs...) {
		if t.IsEntity() {
			continue
		}
		tb := g.valueTable(t)
		b := newBuilder(g.prov).WriteString("SELECT ").
			Idents(schema.IDColumn, schema.EditVersionColumn, schema.FieldIDColumn, schema.ValueColumn).
			WriteString(" FROM ").Ident(tb.Name).WriteString(" WHERE ").
			Keys(schema.IDColumn, schema.EditVersionColumn, keys)
		if t.IsCollection() {
			b.WriteString(" ORDER BY ").Idents(schema.IDColumn, schema.EditVersionColumn, schema.FieldIDColumn, schema.SeqColumn)
		}
		err := query(ctx, q, b, func(rows *sql.Rows) error {
			var (
				k   entity.Key
				fid int32
				raw any
			)
			if err := rows.Scan(&k.ID, &k.EditVersion, &fid, &raw); err != nil {
				return err
			}
			i, ok := st.insts[k]
			if !ok {
				return nil
			}
			g.decode(ctx, i, tb.Name, t, fid, raw)
			return nil
		})
		if err != nil {
			return fmt.Errorf("%s: %w", tb.Name, err)
		}
	}
	return nil
}

// decode sets one value row on i. Problems are recoverable and only logged.
func (g *Graph) decode(ctx context.Context, i *entity.Instance, table string, t field.Type, fid int32, raw any) {
	d, ok := g.reg.Field(fid)
	if !ok || d.Type != t {
		g.log.WarnContext(ctx, "skipping value of unknown field", "field_id", fid, "table", table, "key", i.Key().String())
		return
	}
	var (
		v   entity.Value
		err error
	)
	if t.IsCollection() {
		cur, _ := i.Value(fid)
		v, err = entity.AppendDecoded(d, cur, raw)
	} else {
		v, err = entity.Decode(d, raw)
	}
	if err != nil {
		g.log.WarnContext(ctx, "skipping undecodable value", "field_id", fid, "table", table, "key", i.Key().String(), "error", err)
		return
	}
	i.Set(fid, v)
}

func (g *Graph) readBindings(ctx context.Context, q dialect.ExecQuerier, st *loader, keys []entity.Key, children *[]entity.Key) error {
	b := newBuilder(g.prov).WriteString("SELECT ").Idents(g.binding.ColumnNames()...).
		WriteString(" FROM ").Ident(g.binding.Name).WriteString(" WHERE ").
		Keys(schema.ParentIDColumn, schema.ParentEditVersionColumn, keys).
		WriteString(" ORDER BY ").Idents(schema.ParentIDColumn, schema.ParentEditVersionColumn, schema.FieldIDColumn, schema.SeqColumn)
	return query(ctx, q, b, func(rows *sql.Rows) error {
		var e edge
		if err := rows.Scan(&e.parent.ID, &e.parent.EditVersion, &e.fieldID, &e.child.ID, &e.child.EditVersion, &e.seq); err != nil {
			return err
		}
		st.edges = append(st.edges, e)
		*children = append(*children, e.child)
		return nil
	})
}

// attach sets the entity slots of every loaded parent and returns the
// bindings whose child is missing.
func (g *Graph) attach(ctx context.Context, st *loader) []versa.DanglingRef {
	type slotKey struct {
		parent  entity.Key
		fieldID int32
	}
	var (
		order    []slotKey
		slots    = make(map[slotKey][]*entity.Instance)
		dangling []versa.DanglingRef
	)
	for _, e := range st.edges {
		sk := slotKey{e.parent, e.fieldID}
		if _, ok := slots[sk]; !ok {
			order = append(order, sk)
			slots[sk] = nil
		}
		c, ok := st.insts[e.child]
		if !ok {
			dangling = append(dangling, versa.DanglingRef{
				ParentID:          e.parent.ID,
				ParentEditVersion: e.parent.EditVersion,
				FieldID:           e.fieldID,
				ChildID:           e.child.ID,
				ChildEditVersion:  e.child.EditVersion,
				EntityTypeID:      st.unknown[e.child],
			})
			continue
		}
		slots[sk] = append(slots[sk], c)
	}
	for _, sk := range order {
		p, cs := st.insts[sk.parent], slots[sk]
		if p == nil || len(cs) == 0 {
			continue
		}
		d, ok := g.reg.Field(sk.fieldID)
		switch {
		case !ok || !d.Type.IsEntity():
			g.log.WarnContext(ctx, "skipping binding of unknown field", "field_id", sk.fieldID, "table", schema.BindingTable, "key", sk.parent.String())
		case d.Type.IsCollection():
			p.Set(sk.fieldID, entity.Refs(cs...))
		default:
			p.Set(sk.fieldID, entity.Ref(cs[0]))
		}
	}
	return dangling
}

// cacheStore caches the versions read from the database. Versions with a
// dangling binding are not cached.
func (g *Graph) cacheStore(ctx context.Context, st *loader, dangling []versa.DanglingRef) {
	if g.cache == nil {
		return
	}
	skip := make(map[entity.Key]bool, len(dangling))
	for _, r := range dangling {
		skip[entity.Key{ID: r.ParentID, EditVersion: r.ParentEditVersion}] = true
	}
	for _, i := range st.fresh {
		if skip[i.Key()] {
			continue
		}
		s, err := entity.NewSnapshot(i, g.reg.Field)
		if err == nil {
			var b []byte
			if b, err = entity.MarshalSnapshot(s); err == nil {
				err = g.cache.Set(ctx, versa.CacheKey{ID: i.ID, EditVersion: i.EditVersion}.String(), b, 0)
			}
		}
		if err != nil {
			g.log.WarnContext(ctx, "cache store failed", "key", i.Key().String(), "error", err)
		}
	}
}

// checkAcyclic reports a cycle among the loaded bindings. Stored graphs
// are acyclic unless written outside the save engine.
func checkAcyclic(edges []edge) error {
	next := make(map[entity.Key][]entity.Key)
	var nodes []entity.Key
	for _, e := range edges {
		if _, ok := next[e.parent]; !ok {
			nodes = append(nodes, e.parent)
		}
		next[e.parent] = append(next[e.parent], e.child)
	}
	var (
		color = make(map[entity.Key]int)
		path  []entity.Key
		visit func(entity.Key) error
	)
	visit = func(k entity.Key) error {
		switch color[k] {
		case black:
			return nil
		case gray:
			var keys []string
			for i := slices.Index(path, k); i < len(path); i++ {
				keys = append(keys, path[i].String())
			}
			return &versa.CycleDetectedError{Path: append(keys, k.String())}
		}
		color[k] = gray
		path = append(path, k)
		for _, c := range next[k] {
			if err := visit(c); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		color[k] = black
		return nil
	}
	for _, k := range nodes {
		if err := visit(k); err != nil {
			return err
		}
	}
	return nil
}

func sortedFields(m map[int32][]entity.Key) []int32 {
	ids := make([]int32, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
