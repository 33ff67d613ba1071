package schema

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/syssam/versa"
	"github.com/syssam/versa/dialect"
	registry "github.com/syssam/versa/schema"
	"github.com/syssam/versa/schema/field"
)

// DefaultLockName is the advisory lock serializing schema changes across
// processes.
const DefaultLockName = "versa_schema"

// Manager creates and evolves the storage tables of the registered entity
// types. EnsureSchema is idempotent: once the tables of an entity type
// exist, calling it again issues no DDL.
type Manager struct {
	drv         dialect.Driver
	prov        Provider
	reg         *registry.Registry
	log         *slog.Logger
	procedures  bool
	projections bool
	lockName    string
	group       singleflight.Group

	mu        sync.Mutex
	tables    map[string]int   // table -> number of columns known to exist
	procs     map[string]int   // procedure -> number of columns it was created for
	applied   map[int32]uint64 // entity -> registry version ensured, plus one
	persisted uint64           // registry version persisted in the registry tables, plus one
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the logger receiving every DDL statement.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithProcedures enables the generation of upsert stored procedures on
// backends that support them.
func WithProcedures(enabled bool) ManagerOption {
	return func(m *Manager) {
		m.procedures = enabled
	}
}

// WithProjections enables the projection tables of the entity types that
// name one.
func WithProjections(enabled bool) ManagerOption {
	return func(m *Manager) {
		m.projections = enabled
	}
}

// WithLockName sets the name of the advisory lock.
func WithLockName(name string) ManagerOption {
	return func(m *Manager) {
		m.lockName = name
	}
}

// NewManager returns a Manager creating tables through drv.
func NewManager(drv dialect.Driver, p Provider, reg *registry.Registry, opts ...ManagerOption) *Manager {
	m := &Manager{
		drv:      drv,
		prov:     p,
		reg:      reg,
		log:      slog.Default(),
		lockName: DefaultLockName,
		tables:   make(map[string]int),
		procs:    make(map[string]int),
		applied:  make(map[int32]uint64),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Provider returns the dialect provider of the manager.
func (m *Manager) Provider() Provider { return m.prov }

// UseProcedures reports if writes go through the upsert procedures.
func (m *Manager) UseProcedures() bool {
	return m.procedures && m.prov.UpsertProcedureDDL(NewUpsert(LiveVersion())) != nil
}

// Projections reports if projection tables are maintained.
func (m *Manager) Projections() bool { return m.projections }

// ProjectionOf returns the projection table of an entity type, or nil when
// projections are disabled or the type has none.
func (m *Manager) ProjectionOf(entityID int32) *Table {
	if !m.projections {
		return nil
	}
	et, ok := m.reg.Entity(entityID)
	if !ok || et.Projection == "" {
		return nil
	}
	return Projection(et.Projection, m.reg.FieldsOf(entityID), Overview())
}

// Tables returns the tables required by the given entity types, or by
// every registered entity type when none are given.
func (m *Manager) Tables(entityIDs ...int32) []*Table {
	if len(entityIDs) == 0 {
		entityIDs = m.entityIDs()
	}
	var types []field.Type
	if len(entityIDs) > 0 {
		types = m.reg.FieldTypes(entityIDs...)
	}
	tables := Layout(types)
	for _, id := range entityIDs {
		if t := m.ProjectionOf(id); t != nil {
			tables = append(tables, t)
		}
	}
	return tables
}

func (m *Manager) entityIDs() []int32 {
	ets := m.reg.Entities()
	ids := make([]int32, len(ets))
	for i, et := range ets {
		ids[i] = et.ID
	}
	return ids
}

// EnsureSchema creates the missing tables, columns and procedures of the
// given entity types, or of every registered entity type when none are
// given, and persists the registry. Concurrent calls in one process are
// collapsed and calls across processes are serialized by an advisory lock.
func (m *Manager) EnsureSchema(ctx context.Context, entityIDs ...int32) error {
	if len(entityIDs) == 0 {
		entityIDs = m.entityIDs()
	}
	ids := slices.Clone(entityIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)
	version := m.reg.Version()
	if m.upToDate(ids, version) {
		return nil
	}
	_, err, _ := m.group.Do(fmt.Sprint(ids), func() (any, error) {
		if m.upToDate(ids, version) {
			return nil, nil
		}
		err := m.run(ctx, func(s *session) error {
			return m.ensure(ctx, s, ids, version)
		})
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		for _, id := range ids {
			m.applied[id] = version + 1
		}
		m.persisted = version + 1
		return nil, nil
	})
	return err
}

// EnsureProjectionTable creates t when it does not exist, or adds the
// columns it misses. Existing columns are never dropped.
func (m *Manager) EnsureProjectionTable(ctx context.Context, t *Table) error {
	return m.run(ctx, func(s *session) error {
		changed, err := m.ensureProjection(ctx, s, t)
		if err != nil {
			return err
		}
		return m.ensureProcedure(ctx, s, NewUpsert(t), changed)
	})
}

// Validate checks the layout required by the registry and compares it
// with the tables in the database. See CheckDrift for how differences
// are graded.
func (m *Manager) Validate(ctx context.Context, entityIDs ...int32) (*Report, error) {
	desired := m.Tables(entityIDs...)
	report := CheckLayout(desired)
	var current []*Table
	for _, t := range desired {
		exists, err := m.prov.TableExists(ctx, m.drv, t.Name)
		if err != nil {
			return nil, versa.NewSchemaError("inspect", t.Name, err)
		}
		if !exists {
			continue
		}
		ct, err := m.inspect(ctx, m.drv, t)
		if err != nil {
			return nil, err
		}
		current = append(current, ct)
	}
	report.merge(CheckDrift(current, desired))
	return report, nil
}

func (m *Manager) upToDate(ids []int32, version uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.persisted != version+1 {
		return false
	}
	for _, id := range ids {
		if m.applied[id] != version+1 {
			return false
		}
	}
	return true
}

// session is one schema transaction. Knowledge gathered in it is
// published to the manager on commit only.
type session struct {
	dialect.ExecQuerier
	tables map[string]int
	procs  map[string]int
}

func (m *Manager) run(ctx context.Context, fn func(*session) error) error {
	tx, err := m.drv.Tx(ctx)
	if err != nil {
		return versa.NewSchemaError("begin", "", err)
	}
	s := &session{ExecQuerier: tx, tables: make(map[string]int), procs: make(map[string]int)}
	lk := m.prov.Lock(m.lockName)
	if err := acquire(ctx, tx, lk); err != nil {
		return rollback(tx, versa.NewSchemaError("lock", m.lockName, err))
	}
	if err := fn(s); err != nil {
		return rollback(tx, err)
	}
	if lk.Release != "" {
		if err := tx.Exec(ctx, lk.Release, lk.Args, nil); err != nil {
			return rollback(tx, versa.NewSchemaError("unlock", m.lockName, err))
		}
	}
	if err := tx.Commit(); err != nil {
		return versa.NewSchemaError("commit", "", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, n := range s.tables {
		m.tables[name] = n
	}
	for name, n := range s.procs {
		m.procs[name] = n
	}
	return nil
}

// errLockTimeout is returned when the advisory lock was not granted.
var errLockTimeout = errors.New("advisory lock was not granted")

func acquire(ctx context.Context, q dialect.ExecQuerier, lk AdvisoryLock) error {
	switch {
	case lk.Acquire == "":
		return nil
	case !lk.Checked:
		return q.Exec(ctx, lk.Acquire, lk.Args, nil)
	}
	granted, err := Exists(ctx, q, lk.Acquire, lk.Args...)
	if err != nil {
		return err
	}
	if !granted {
		return errLockTimeout
	}
	return nil
}

func (m *Manager) ensure(ctx context.Context, s *session, ids []int32, version uint64) error {
	tables := m.Tables(ids...)
	if res := CheckLayout(tables); res.HasErrors() {
		return versa.NewSchemaError("validate", res.Errors()[0].Table, res.Err())
	}
	for _, t := range tables {
		var (
			changed bool
			err     error
		)
		if IsProjection(t) {
			changed, err = m.ensureProjection(ctx, s, t)
		} else {
			changed, err = m.ensureTable(ctx, s, t)
		}
		if err != nil {
			return err
		}
		if u := UpsertOf(t); u != nil {
			if err := m.ensureProcedure(ctx, s, u, changed); err != nil {
				return err
			}
		}
	}
	return m.persistRegistry(ctx, s, version)
}

// known reports if the table was seen with at least n columns.
func (m *Manager) known(s *session, name string, n int) bool {
	if c, ok := s.tables[name]; ok && c >= n {
		return true
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.tables[name]
	return ok && c >= n
}

func (m *Manager) ensureTable(ctx context.Context, s *session, t *Table) (bool, error) {
	if m.known(s, t.Name, len(t.Columns)) {
		return false, nil
	}
	exists, err := m.prov.TableExists(ctx, s, t.Name)
	if err != nil {
		return false, versa.NewSchemaError("inspect", t.Name, err)
	}
	if !exists {
		if err := m.createTable(ctx, s, t); err != nil {
			return false, err
		}
	}
	s.tables[t.Name] = len(t.Columns)
	return !exists, nil
}

func (m *Manager) createTable(ctx context.Context, s *session, t *Table) error {
	if res := CheckTable(t); res.HasErrors() {
		return versa.NewSchemaError("create table", t.Name, res.Err())
	}
	for _, stmt := range m.prov.CreateTable(t) {
		if err := m.exec(ctx, s, stmt); err != nil {
			return versa.NewSchemaError("create table", t.Name, err)
		}
	}
	return nil
}

func (m *Manager) ensureProjection(ctx context.Context, s *session, t *Table) (bool, error) {
	if m.known(s, t.Name, len(t.Columns)) {
		return false, nil
	}
	exists, err := m.prov.TableExists(ctx, s, t.Name)
	if err != nil {
		return false, versa.NewSchemaError("inspect", t.Name, err)
	}
	if !exists {
		if err := m.createTable(ctx, s, t); err != nil {
			return false, err
		}
		s.tables[t.Name] = len(t.Columns)
		return true, nil
	}
	current, err := m.inspect(ctx, s, t)
	if err != nil {
		return false, err
	}
	for _, w := range CheckDrift([]*Table{current}, []*Table{t}).Warnings() {
		if !t.HasColumn(w.Column) {
			m.log.WarnContext(ctx, "projection table drift", "table", w.Table, "column", w.Column, "message", w.Message)
		}
	}
	var changed bool
	for _, c := range t.Columns {
		if current.HasColumn(c.Name) {
			continue
		}
		if err := m.exec(ctx, s, m.prov.AddColumn(t.Name, c)); err != nil {
			return false, versa.NewSchemaError("add column", t.Name, err)
		}
		changed = true
	}
	s.tables[t.Name] = len(t.Columns)
	return changed, nil
}

// inspect returns the current form of t as far as the column names go.
// Columns shared with t take their definition from t.
func (m *Manager) inspect(ctx context.Context, q dialect.ExecQuerier, t *Table) (*Table, error) {
	names, err := m.prov.Columns(ctx, q, t.Name)
	if err != nil {
		return nil, versa.NewSchemaError("inspect", t.Name, err)
	}
	current := NewTable(t.Name)
	for _, name := range names {
		name = strings.ToLower(name)
		if c, ok := t.Column(name); ok {
			current.AddColumn(c)
		} else {
			current.AddColumn(&Column{Name: name, Nullable: true})
		}
	}
	current.Indexes = t.Indexes
	return current, nil
}

func (m *Manager) ensureProcedure(ctx context.Context, s *session, u *Upsert, changed bool) error {
	if !m.UseProcedures() {
		return nil
	}
	name, n := u.ProcedureName(), len(u.Table.Columns)
	if !changed {
		if c, ok := s.procs[name]; ok && c >= n {
			return nil
		}
		m.mu.Lock()
		c, ok := m.procs[name]
		m.mu.Unlock()
		if ok && c >= n {
			return nil
		}
		exists, err := m.prov.ProcedureExists(ctx, s, name)
		if err != nil {
			return versa.NewSchemaError("inspect", name, err)
		}
		if exists {
			s.procs[name] = n
			return nil
		}
	}
	for _, stmt := range m.prov.UpsertProcedureDDL(u) {
		if err := m.exec(ctx, s, stmt); err != nil {
			return versa.NewSchemaError("create procedure", name, err)
		}
	}
	s.procs[name] = n
	return nil
}

// persistRegistry upserts the registry into the registry tables.
func (m *Manager) persistRegistry(ctx context.Context, s *session, version uint64) error {
	m.mu.Lock()
	done := m.persisted == version+1
	m.mu.Unlock()
	if done {
		return nil
	}
	tables := make(map[string]*Table)
	for _, t := range Registry() {
		tables[t.Name] = t
	}
	upsert := func(table string, args ...any) error {
		t := tables[table]
		for i, c := range t.Columns {
			args[i] = m.prov.Bind(c.Type, args[i])
		}
		if err := s.Exec(ctx, m.prov.UpsertStatement(NewUpsert(t)), args, nil); err != nil {
			return versa.NewSchemaError("persist registry", table, err)
		}
		return nil
	}
	for _, d := range m.reg.Fields() {
		if err := upsert(FieldTable, d.ID, d.Name, int32(d.Type), d.Description); err != nil {
			return err
		}
		for _, tag := range d.Tags {
			if err := upsert(FieldTagTable, d.ID, tag); err != nil {
				return err
			}
		}
		for _, k := range sortedKeys(d.AlternateCodes) {
			if err := upsert(AlternateCodeTable, d.ID, k, d.AlternateCodes[k]); err != nil {
				return err
			}
		}
		for i, v := range d.EnumValues {
			if err := upsert(EnumTable, d.ID, int32(i), v); err != nil {
				return err
			}
		}
	}
	for _, et := range m.reg.Entities() {
		if err := upsert(EntityTable, et.ID, et.Name); err != nil {
			return err
		}
		for _, d := range et.Fields {
			if err := upsert(EntityFieldTable, et.ID, d.ID); err != nil {
				return err
			}
		}
		for _, p := range et.Parents {
			if err := upsert(InheritanceTable, p, et.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *Manager) exec(ctx context.Context, q dialect.ExecQuerier, stmt string) error {
	m.log.InfoContext(ctx, "schema change", "dialect", m.prov.Dialect(), "statement", stmt)
	return q.Exec(ctx, stmt, []any{}, nil)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// rollback calls tx.Rollback and wraps the given error with the rollback error if occurred.
func rollback(tx dialect.Tx, err error) error {
	if rerr := tx.Rollback(); rerr != nil {
		err = fmt.Errorf("%w: %v", err, rerr)
	}
	return err
}
