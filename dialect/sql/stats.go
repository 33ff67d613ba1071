package sql

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/syssam/versa"
	"github.com/syssam/versa/dialect"
)

// Op is the kind of work an instrumented driver observed.
type Op uint8

// Observed operations.
const (
	OpQuery Op = iota + 1
	OpExec
	OpBegin
	OpCommit
	OpRollback
)

var opNames = [...]string{OpQuery: "query", OpExec: "exec", OpBegin: "begin", OpCommit: "commit", OpRollback: "rollback"}

func (o Op) String() string {
	if int(o) < len(opNames) && opNames[o] != "" {
		return opNames[o]
	}
	return fmt.Sprintf("op(%d)", uint8(o))
}

// Statement describes one observed operation. Query and Args are empty
// for transaction boundaries.
type Statement struct {
	Op    Op
	Query string
	Args  []any
	InTx  bool
	Took  time.Duration
	Err   error
}

// observer is called after every operation of an instrumented driver.
type observer func(context.Context, *Statement)

// observed runs fn and reports it to obs.
func observed(ctx context.Context, obs observer, st Statement, fn func() error) error {
	start := time.Now()
	st.Err = fn()
	st.Took = time.Since(start)
	obs(ctx, &st)
	return st.Err
}

// instrumented wraps a driver and reports each operation to an observer.
type instrumented struct {
	dialect.Driver
	obs observer
}

func (d *instrumented) Query(ctx context.Context, query string, args, v any) error {
	return observed(ctx, d.obs, Statement{Op: OpQuery, Query: query, Args: argList(args)}, func() error {
		return d.Driver.Query(ctx, query, args, v)
	})
}

func (d *instrumented) Exec(ctx context.Context, query string, args, v any) error {
	return observed(ctx, d.obs, Statement{Op: OpExec, Query: query, Args: argList(args)}, func() error {
		return d.Driver.Exec(ctx, query, args, v)
	})
}

func (d *instrumented) Tx(ctx context.Context) (dialect.Tx, error) {
	var tx dialect.Tx
	err := observed(ctx, d.obs, Statement{Op: OpBegin, InTx: true}, func() (err error) {
		tx, err = d.Driver.Tx(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &instrumentedTx{Tx: tx, ctx: ctx, obs: d.obs}, nil
}

// instrumentedTx reports the statements of a transaction. Commit and
// Rollback take no context, so they are reported with the one the
// transaction began with.
type instrumentedTx struct {
	dialect.Tx
	ctx context.Context
	obs observer
}

func (tx *instrumentedTx) Query(ctx context.Context, query string, args, v any) error {
	return observed(ctx, tx.obs, Statement{Op: OpQuery, Query: query, Args: argList(args), InTx: true}, func() error {
		return tx.Tx.Query(ctx, query, args, v)
	})
}

func (tx *instrumentedTx) Exec(ctx context.Context, query string, args, v any) error {
	return observed(ctx, tx.obs, Statement{Op: OpExec, Query: query, Args: argList(args), InTx: true}, func() error {
		return tx.Tx.Exec(ctx, query, args, v)
	})
}

func (tx *instrumentedTx) Commit() error {
	return observed(tx.ctx, tx.obs, Statement{Op: OpCommit, InTx: true}, tx.Tx.Commit)
}

func (tx *instrumentedTx) Rollback() error {
	return observed(tx.ctx, tx.obs, Statement{Op: OpRollback, InTx: true}, tx.Tx.Rollback)
}

func argList(args any) []any {
	argv, _ := args.([]any)
	return argv
}

// QueryStats counts the operations seen by a StatsDriver. All counters are
// safe for concurrent use.
type QueryStats struct {
	queries   atomic.Int64
	execs     atomic.Int64
	commits   atomic.Int64
	rollbacks atomic.Int64
	slow      atomic.Int64
	errors    atomic.Int64
	transient atomic.Int64
	nanos     atomic.Int64
}

// StatsSnapshot is a point-in-time copy of QueryStats.
type StatsSnapshot struct {
	TotalQueries  int64
	TotalExecs    int64
	Commits       int64
	Rollbacks     int64
	SlowQueries   int64
	Errors        int64
	Transient     int64 // errors classified as versa.ConnectionError
	TotalDuration time.Duration
}

// Stats returns a snapshot of the counters.
func (s *QueryStats) Stats() StatsSnapshot {
	return StatsSnapshot{
		TotalQueries:  s.queries.Load(),
		TotalExecs:    s.execs.Load(),
		Commits:       s.commits.Load(),
		Rollbacks:     s.rollbacks.Load(),
		SlowQueries:   s.slow.Load(),
		Errors:        s.errors.Load(),
		Transient:     s.transient.Load(),
		TotalDuration: time.Duration(s.nanos.Load()),
	}
}

// Reset sets all counters to zero.
func (s *QueryStats) Reset() {
	for _, c := range []*atomic.Int64{&s.queries, &s.execs, &s.commits, &s.rollbacks, &s.slow, &s.errors, &s.transient, &s.nanos} {
		c.Store(0)
	}
}

// AvgQueryDuration returns the mean duration of queries and execs.
func (s StatsSnapshot) AvgQueryDuration() time.Duration {
	n := s.TotalQueries + s.TotalExecs
	if n == 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(n)
}

func (s StatsSnapshot) String() string {
	return fmt.Sprintf("queries=%d execs=%d commits=%d rollbacks=%d slow=%d errors=%d transient=%d avg=%s",
		s.TotalQueries, s.TotalExecs, s.Commits, s.Rollbacks, s.SlowQueries, s.Errors, s.Transient, s.AvgQueryDuration())
}

// SlowQueryHook is called with every query or exec slower than the
// threshold of a StatsDriver.
type SlowQueryHook func(ctx context.Context, st *Statement)

// StatsDriver is a driver that counts the operations of the driver it wraps.
type StatsDriver struct {
	instrumented
	stats     *QueryStats
	threshold time.Duration
	hook      SlowQueryHook
}

// StatsOption configures a StatsDriver.
type StatsOption func(*StatsDriver)

// WithSlowThreshold sets the duration above which a statement counts as
// slow. Defaults to 100ms.
func WithSlowThreshold(d time.Duration) StatsOption {
	return func(s *StatsDriver) {
		s.threshold = d
	}
}

// WithSlowQueryHook sets the hook called for slow statements.
func WithSlowQueryHook(hook SlowQueryHook) StatsOption {
	return func(s *StatsDriver) {
		s.hook = hook
	}
}

// WithSlowQueryLog logs slow statements as warnings to logger, or to the
// default logger when logger is nil.
func WithSlowQueryLog(logger *slog.Logger) StatsOption {
	if logger == nil {
		logger = slog.Default()
	}
	return WithSlowQueryHook(func(ctx context.Context, st *Statement) {
		logger.WarnContext(ctx, "slow query detected", "op", st.Op, "took", st.Took, "query", st.Query, "args", len(st.Args))
	})
}

// NewStatsDriver wraps drv with statistics collection.
//
//	sd := sql.NewStatsDriver(drv, sql.WithSlowThreshold(200*time.Millisecond), sql.WithSlowQueryLog(nil))
//	client, err := store.New(sd, reg)
//	...
//	log.Println(sd.QueryStats().Stats())
func NewStatsDriver(drv dialect.Driver, opts ...StatsOption) *StatsDriver {
	s := &StatsDriver{stats: &QueryStats{}, threshold: 100 * time.Millisecond}
	for _, opt := range opts {
		opt(s)
	}
	s.instrumented = instrumented{Driver: drv, obs: s.observe}
	return s
}

// QueryStats returns the counters of the driver.
func (d *StatsDriver) QueryStats() *QueryStats { return d.stats }

func (d *StatsDriver) observe(ctx context.Context, st *Statement) {
	switch st.Op {
	case OpQuery:
		d.stats.queries.Add(1)
	case OpExec:
		d.stats.execs.Add(1)
	case OpCommit:
		d.stats.commits.Add(1)
	case OpRollback:
		d.stats.rollbacks.Add(1)
	}
	if st.Err != nil {
		d.stats.errors.Add(1)
		if versa.IsConnectionError(st.Err) {
			d.stats.transient.Add(1)
		}
	}
	if st.Op != OpQuery && st.Op != OpExec {
		return
	}
	d.stats.nanos.Add(int64(st.Took))
	if st.Took > d.threshold {
		d.stats.slow.Add(1)
		if d.hook != nil {
			d.hook(ctx, st)
		}
	}
}

// DebugDriver is a driver that logs every operation of the driver it wraps.
type DebugDriver struct {
	instrumented
	logger *slog.Logger
	level  slog.Level
}

// DebugOption configures a DebugDriver.
type DebugOption func(*DebugDriver)

// DebugWithLogger sets the logger of the driver. Defaults to slog.Default().
func DebugWithLogger(logger *slog.Logger) DebugOption {
	return func(d *DebugDriver) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// DebugWithLevel sets the level statements are logged at. Defaults to
// slog.LevelDebug.
func DebugWithLevel(level slog.Level) DebugOption {
	return func(d *DebugDriver) {
		d.level = level
	}
}

// NewDebugDriver wraps drv with statement logging.
func NewDebugDriver(drv dialect.Driver, opts ...DebugOption) *DebugDriver {
	d := &DebugDriver{logger: slog.Default(), level: slog.LevelDebug}
	for _, opt := range opts {
		opt(d)
	}
	d.instrumented = instrumented{Driver: drv, obs: d.observe}
	return d
}

func (d *DebugDriver) observe(ctx context.Context, st *Statement) {
	if !d.logger.Enabled(ctx, d.level) {
		return
	}
	attrs := []slog.Attr{slog.Bool("tx", st.InTx), slog.Duration("took", st.Took)}
	if st.Query != "" {
		attrs = append(attrs, slog.String("query", st.Query), slog.Any("args", st.Args))
	}
	if st.Err != nil {
		attrs = append(attrs, slog.Any("error", st.Err))
	}
	d.logger.LogAttrs(ctx, d.level, st.Op.String(), attrs...)
}

var (
	_ dialect.Driver = (*StatsDriver)(nil)
	_ dialect.Driver = (*DebugDriver)(nil)
	_ dialect.Tx     = (*instrumentedTx)(nil)
)
