// Package store wires a database driver, its dialect provider, a field and
// entity registry and the persistence engines into one client.
//
//	reg := schema.NewRegistry()
//	reg.MustRegisterEntityType(schema.EntityType{ID: 1, Name: "Customer", Fields: ...})
//	client, err := store.Open("pgx", dsn, reg, store.WithCache(versa.NewMemoryCache()))
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	if err := client.Save(ctx, customer); err != nil {
//	    return err
//	}
//	customers, err := client.LoadAllOfType(ctx, 1)
package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/syssam/versa"
	"github.com/syssam/versa/dialect"
	"github.com/syssam/versa/dialect/sql"
	"github.com/syssam/versa/dialect/sql/schema"
	"github.com/syssam/versa/dialect/sql/sqlgraph"
	"github.com/syssam/versa/dialect/sql/syntax"
	"github.com/syssam/versa/entity"
	registry "github.com/syssam/versa/schema"
)

// Client persists and loads entity instances of one database.
type Client struct {
	drv   dialect.Driver
	reg   *registry.Registry
	mgr   *schema.Manager
	graph *sqlgraph.Graph
	stats *sql.QueryStats
	cfg   config
}

type config struct {
	log         *slog.Logger
	cache       versa.Cache
	batchSize   int
	livePointer bool
	liveOnly    bool
	procedures  bool
	projections bool
	lockName    string
	listeners   []any
	debug       bool
	slowQuery   time.Duration
	pool        []sql.PoolOption
}

// Option configures a Client.
type Option func(*config)

// WithLogger sets the logger of the client, its schema manager and engines.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.log = l
	}
}

// WithCache enables the version cache.
func WithCache(cache versa.Cache) Option {
	return func(c *config) {
		c.cache = cache
	}
}

// WithBatchSize bounds the number of instances written per transaction.
func WithBatchSize(n int) Option {
	return func(c *config) {
		c.batchSize = n
	}
}

// WithLivePointer enables maintenance of the live version table.
func WithLivePointer(enabled bool) Option {
	return func(c *config) {
		c.livePointer = enabled
	}
}

// WithLiveOnly restricts id and type resolution to live versions.
func WithLiveOnly(enabled bool) Option {
	return func(c *config) {
		c.liveOnly = enabled
	}
}

// WithProcedures writes rows through stored upsert procedures on the
// backends that support them.
func WithProcedures(enabled bool) Option {
	return func(c *config) {
		c.procedures = enabled
	}
}

// WithProjections maintains the projection tables of entity types that
// declare one.
func WithProjections(enabled bool) Option {
	return func(c *config) {
		c.projections = enabled
	}
}

// WithLockName sets the advisory lock guarding schema changes.
func WithLockName(name string) Option {
	return func(c *config) {
		c.lockName = name
	}
}

// WithListeners registers save and load listeners. See sqlgraph.WithListeners.
func WithListeners(ls ...any) Option {
	return func(c *config) {
		c.listeners = append(c.listeners, ls...)
	}
}

// WithDebug logs every statement at debug level.
func WithDebug() Option {
	return func(c *config) {
		c.debug = true
	}
}

// WithSlowQuery collects query statistics and logs statements slower than
// threshold.
func WithSlowQuery(threshold time.Duration) Option {
	return func(c *config) {
		c.slowQuery = threshold
	}
}

// WithPool tunes the connection pool of a client created by Open.
func WithPool(opts ...sql.PoolOption) Option {
	return func(c *config) {
		c.pool = append(c.pool, opts...)
	}
}

// Open opens a database with the given database/sql driver name and
// returns a client for it.
func Open(driverName, dsn string, reg *registry.Registry, opts ...Option) (*Client, error) {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}
	drv, err := sql.Open(driverName, dsn, cfg.pool...)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", driverName, err)
	}
	c, err := New(drv, reg, opts...)
	if err != nil {
		drv.Close()
		return nil, err
	}
	return c, nil
}

// New returns a client writing through drv. The dialect provider is
// selected by drv.Dialect().
func New(drv dialect.Driver, reg *registry.Registry, opts ...Option) (*Client, error) {
	cfg := config{log: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.log == nil {
		cfg.log = slog.Default()
	}
	prov, err := syntax.For(drv.Dialect())
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	c := &Client{reg: reg, cfg: cfg}
	if cfg.slowQuery > 0 {
		sd := sql.NewStatsDriver(drv, sql.WithSlowThreshold(cfg.slowQuery), sql.WithSlowQueryLog(cfg.log))
		c.stats = sd.QueryStats()
		drv = sd
	}
	if cfg.debug {
		drv = sql.NewDebugDriver(drv, sql.DebugWithLogger(cfg.log))
	}
	c.drv = drv
	mopts := []schema.ManagerOption{
		schema.WithLogger(cfg.log),
		schema.WithProcedures(cfg.procedures),
		schema.WithProjections(cfg.projections),
	}
	if cfg.lockName != "" {
		mopts = append(mopts, schema.WithLockName(cfg.lockName))
	}
	c.mgr = schema.NewManager(drv, prov, reg, mopts...)
	c.graph = sqlgraph.NewGraph(drv, c.mgr, reg,
		sqlgraph.WithLogger(cfg.log),
		sqlgraph.WithCache(cfg.cache),
		sqlgraph.WithBatchSize(cfg.batchSize),
		sqlgraph.WithLivePointer(cfg.livePointer),
		sqlgraph.WithLiveOnly(cfg.liveOnly),
		sqlgraph.WithListeners(cfg.listeners...),
	)
	return c, nil
}

// Registry returns the registry of the client.
func (c *Client) Registry() *registry.Registry { return c.reg }

// Driver returns the driver the client writes through.
func (c *Client) Driver() dialect.Driver { return c.drv }

// Dialect returns the dialect name of the database.
func (c *Client) Dialect() string { return c.drv.Dialect() }

// QueryStats returns the collected query statistics, or nil when the
// client was built without WithSlowQuery.
func (c *Client) QueryStats() *sql.QueryStats { return c.stats }

// Close closes the database connection.
func (c *Client) Close() error { return c.drv.Close() }

// EnsureSchema creates or extends the tables of the given entity types, or
// of all registered types when none are given.
func (c *Client) EnsureSchema(ctx context.Context, entityIDs ...int32) error {
	return c.mgr.EnsureSchema(ctx, entityIDs...)
}

// Validate compares the database with the tables the registry requires.
func (c *Client) Validate(ctx context.Context, entityIDs ...int32) (*schema.Report, error) {
	return c.mgr.Validate(ctx, entityIDs...)
}

// Save persists the object graphs rooted at roots.
func (c *Client) Save(ctx context.Context, roots ...*entity.Instance) error {
	return c.graph.Save(ctx, roots...)
}

// LoadByIDs loads the latest version of every id.
func (c *Client) LoadByIDs(ctx context.Context, ids ...string) ([]*entity.Instance, error) {
	return c.graph.LoadByIDs(ctx, ids...)
}

// LoadByKeys loads the given versions.
func (c *Client) LoadByKeys(ctx context.Context, keys ...entity.Key) ([]*entity.Instance, error) {
	return c.graph.LoadByKeys(ctx, keys...)
}

// LoadAllOfType loads the latest version of every instance of the entity
// type and its subtypes.
func (c *Client) LoadAllOfType(ctx context.Context, entityID int32) ([]*entity.Instance, error) {
	return c.graph.LoadAllOfType(ctx, entityID)
}

// Delete removes every version of the given ids.
func (c *Client) Delete(ctx context.Context, ids ...string) error {
	return c.graph.Delete(ctx, ids...)
}

// Debug returns a client sharing the registry and options of c that logs
// every statement.
func (c *Client) Debug() *Client {
	if c.cfg.debug {
		return c
	}
	cfg := c.cfg
	cfg.debug = true
	cfg.slowQuery = 0
	d, err := New(c.drv, c.reg, func(dst *config) { *dst = cfg })
	if err != nil {
		return c
	}
	d.stats = c.stats
	return d
}
