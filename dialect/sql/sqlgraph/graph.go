// Package sqlgraph implements the save and load engines that persist object
// graphs of entity instances into the shared per-type tables.
//
// Save flattens the graph in post order so children are written before the
// parents that bind them, and writes it in batches bounded by the bind
// parameter limit of the backend. Each batch runs in one transaction with
// the phases in fixed order: overview, live pointer, scalar values,
// collections, bindings and projections.
//
// Load resolves a key set, reads the overview and value tables in batches
// and follows the bindings breadth first until every reachable version is
// materialized.
package sqlgraph

import (
	"context"
	"log/slog"
	"sync"

	"github.com/syssam/versa"
	"github.com/syssam/versa/dialect"
	"github.com/syssam/versa/dialect/sql/schema"
	"github.com/syssam/versa/entity"
	registry "github.com/syssam/versa/schema"
	"github.com/syssam/versa/schema/field"
)

// PreSaveListener is notified inside the transaction of every save batch
// before any row is written.
type PreSaveListener interface {
	PreSave(ctx context.Context, q dialect.ExecQuerier, instances []*entity.Instance) error
}

// PostSaveListener is notified inside the transaction of every save batch
// after all of its rows are written.
type PostSaveListener interface {
	PostSave(ctx context.Context, q dialect.ExecQuerier, instances []*entity.Instance) error
}

// PreLoadListener is notified before the keys of a load are read.
type PreLoadListener interface {
	PreLoad(ctx context.Context, q dialect.ExecQuerier, keys []entity.Key) error
}

// PostLoadListener is notified with the materialized roots of a load.
type PostLoadListener interface {
	PostLoad(ctx context.Context, q dialect.ExecQuerier, instances []*entity.Instance) error
}

// Graph is the save and load engine of one database.
type Graph struct {
	drv   dialect.Driver
	mgr   *schema.Manager
	prov  schema.Provider
	reg   *registry.Registry
	log   *slog.Logger
	cache versa.Cache

	batchSize   int
	livePointer bool
	liveOnly    bool

	preSave  []PreSaveListener
	postSave []PostSaveListener
	preLoad  []PreLoadListener
	postLoad []PostLoadListener

	overview *schema.Table
	live     *schema.Table
	binding  *schema.Table

	mu     sync.Mutex
	values map[string]*schema.Table
}

// Option configures a Graph.
type Option func(*Graph)

// WithLogger sets the logger receiving recovered load problems.
func WithLogger(l *slog.Logger) Option {
	return func(g *Graph) {
		if l != nil {
			g.log = l
		}
	}
}

// WithCache enables the version cache. Versions are immutable, so cached
// entries are only dropped on delete or when a key is saved again.
func WithCache(c versa.Cache) Option {
	return func(g *Graph) {
		g.cache = c
	}
}

// WithBatchSize bounds the number of instances written per transaction.
// The bound is lowered further when the backend parameter limit requires.
func WithBatchSize(n int) Option {
	return func(g *Graph) {
		g.batchSize = n
	}
}

// WithLivePointer enables maintenance of the live version table.
func WithLivePointer(enabled bool) Option {
	return func(g *Graph) {
		g.livePointer = enabled
	}
}

// WithLiveOnly restricts id and type resolution to versions flagged live.
func WithLiveOnly(enabled bool) Option {
	return func(g *Graph) {
		g.liveOnly = enabled
	}
}

// WithListeners registers save and load listeners. Each value is checked
// once for the listener interfaces it implements; other values are ignored.
func WithListeners(ls ...any) Option {
	return func(g *Graph) {
		for _, l := range ls {
			if x, ok := l.(PreSaveListener); ok {
				g.preSave = append(g.preSave, x)
			}
			if x, ok := l.(PostSaveListener); ok {
				g.postSave = append(g.postSave, x)
			}
			if x, ok := l.(PreLoadListener); ok {
				g.preLoad = append(g.preLoad, x)
			}
			if x, ok := l.(PostLoadListener); ok {
				g.postLoad = append(g.postLoad, x)
			}
		}
	}
}

// NewGraph returns an engine writing through drv. The manager provides the
// dialect and ensures the tables exist before they are used.
func NewGraph(drv dialect.Driver, mgr *schema.Manager, reg *registry.Registry, opts ...Option) *Graph {
	ov := schema.Overview()
	g := &Graph{
		drv:      drv,
		mgr:      mgr,
		prov:     mgr.Provider(),
		reg:      reg,
		log:      slog.Default(),
		overview: ov,
		live:     schema.LiveVersion(),
		binding:  schema.Binding(ov),
		values:   make(map[string]*schema.Table),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// batchLimit returns the number of instances per save transaction.
func (g *Graph) batchLimit() int {
	n := g.prov.MaxParams() / len(g.overview.Columns)
	if g.batchSize > 0 && g.batchSize < n {
		n = g.batchSize
	}
	return max(n, 1)
}

// keyLimit returns the number of composite keys per OR chain.
func (g *Graph) keyLimit() int {
	return max(g.prov.MaxParams()/2, 1)
}

// valueTable returns the shared value table of a field type.
func (g *Graph) valueTable(t field.Type) *schema.Table {
	name := schema.ValueTableName(t)
	g.mu.Lock()
	defer g.mu.Unlock()
	tb, ok := g.values[name]
	if !ok {
		tb = schema.Value(t, g.overview)
		g.values[name] = tb
	}
	return tb
}

// upsert returns the statement writing one row with u, through the upsert
// procedure when the manager maintains them.
func (g *Graph) upsert(u *schema.Upsert) string {
	if g.mgr.UseProcedures() {
		return g.prov.CallProcedure(u)
	}
	return g.prov.UpsertStatement(u)
}

func (g *Graph) cacheDelete(ctx context.Context, key string) {
	if g.cache == nil {
		return
	}
	if err := g.cache.Delete(ctx, key); err != nil {
		g.log.WarnContext(ctx, "cache delete failed", "key", key, "error", err)
	}
}

// rollback calls tx.Rollback and wraps the given error with the rollback error if occurred.
func rollback(tx dialect.Tx, err error) error {
	if rerr := tx.Rollback(); rerr != nil {
		err = versa.NewAggregateError(err, rerr)
	}
	return err
}
