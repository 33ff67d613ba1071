package schema

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/syssam/versa"
	"github.com/syssam/versa/entity"
	"github.com/syssam/versa/schema/field"
)

// Factory creates an empty instance of a registered entity type.
type Factory func() *entity.Instance

// EntityType describes one mapped entity type.
type EntityType struct {
	ID      int32
	Name    string
	Parents []int32 // direct parent entity types
	Fields  []*field.Descriptor
	// New creates empty instances on load. Defaults to entity.New(ID).
	New Factory
	// Projection names a flattened reporting table that Save keeps up to
	// date with one row per instance. Empty disables the projection.
	Projection string
}

// Registry holds the process-wide mapping from numeric ids to entity types
// and fields. It is append-only and safe for concurrent registration and
// lookup. Use one Registry per application and pass it by reference.
type Registry struct {
	mu       sync.RWMutex
	entities map[int32]*entityEntry
	fields   map[int32]*field.Descriptor
	children map[int32][]int32 // parent -> direct subtypes
	version  uint64
}

type entityEntry struct {
	typ    EntityType
	fields []int32 // own field ids, in registration order
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entities: make(map[int32]*entityEntry),
		fields:   make(map[int32]*field.Descriptor),
		children: make(map[int32][]int32),
	}
}

// RegisterEntityType registers t and its fields. Registering the same
// id with the same name and parents again is a no-op apart from adding
// fields not yet attached. Any other difference is a registration conflict.
func (r *Registry) RegisterEntityType(t EntityType) error {
	if t.ID <= 0 {
		return fmt.Errorf("schema: entity %q: id must be positive, got %d", t.Name, t.ID)
	}
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("schema: entity %d: name is required", t.ID)
	}
	parents := slices.Clone(t.Parents)
	slices.Sort(parents)
	parents = slices.Compact(parents)
	if slices.Contains(parents, t.ID) {
		return versa.NewRegistrationConflictError("entity", t.ID, "entity type cannot inherit from itself")
	}
	for _, d := range t.Fields {
		if err := checkDescriptor(d); err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entities[t.ID]; ok {
		if e.typ.Name != t.Name {
			return versa.NewRegistrationConflictError("entity", t.ID, fmt.Sprintf("name %q differs from registered %q", t.Name, e.typ.Name))
		}
		if !slices.Equal(e.typ.Parents, parents) {
			return versa.NewRegistrationConflictError("entity", t.ID, fmt.Sprintf("parents %v differ from registered %v", parents, e.typ.Parents))
		}
		if t.Projection != "" && e.typ.Projection != "" && t.Projection != e.typ.Projection {
			return versa.NewRegistrationConflictError("entity", t.ID, fmt.Sprintf("projection %q differs from registered %q", t.Projection, e.typ.Projection))
		}
	}
	for _, d := range t.Fields {
		if err := r.conflictLocked(d); err != nil {
			return err
		}
	}
	if err := r.cycleLocked(t.ID, parents); err != nil {
		return err
	}

	e, ok := r.entities[t.ID]
	if !ok {
		e = &entityEntry{typ: EntityType{ID: t.ID, Name: t.Name, Parents: parents, New: t.New, Projection: t.Projection}}
		r.entities[t.ID] = e
		for _, p := range parents {
			r.children[p] = append(r.children[p], t.ID)
		}
		r.version++
	}
	if e.typ.New == nil && t.New != nil {
		e.typ.New = t.New
	}
	if e.typ.Projection == "" && t.Projection != "" {
		e.typ.Projection = t.Projection
		r.version++
	}
	for _, d := range t.Fields {
		r.addFieldLocked(e, d)
	}
	return nil
}

// MustRegisterEntityType is like RegisterEntityType but panics on error.
func (r *Registry) MustRegisterEntityType(t EntityType) {
	if err := r.RegisterEntityType(t); err != nil {
		panic(err)
	}
}

// RegisterField attaches d to an already registered entity type.
func (r *Registry) RegisterField(entityID int32, d *field.Descriptor) error {
	if err := checkDescriptor(d); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entities[entityID]
	if !ok {
		return fmt.Errorf("%w: %d", versa.ErrUnknownEntity, entityID)
	}
	if err := r.conflictLocked(d); err != nil {
		return err
	}
	r.addFieldLocked(e, d)
	return nil
}

func checkDescriptor(d *field.Descriptor) error {
	if d == nil {
		return errors.New("schema: nil field descriptor")
	}
	if d.Err != nil {
		return fmt.Errorf("schema: field %s: %w", d, d.Err)
	}
	if d.ID <= 0 || !d.Type.Valid() {
		return fmt.Errorf("schema: invalid field descriptor %s", d)
	}
	return nil
}

func (r *Registry) conflictLocked(d *field.Descriptor) error {
	prev, ok := r.fields[d.ID]
	if !ok || prev.SameShape(d) {
		return nil
	}
	return versa.NewRegistrationConflictError("field", d.ID, fmt.Sprintf("%s differs from registered %s", d, prev))
}

// cycleLocked reports an error if making parents the parents of id closes
// an inheritance cycle.
func (r *Registry) cycleLocked(id int32, parents []int32) error {
	seen := map[int32]bool{}
	stack := slices.Clone(parents)
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if p == id {
			return versa.NewRegistrationConflictError("entity", id, "inheritance cycle")
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		if e, ok := r.entities[p]; ok {
			stack = append(stack, e.typ.Parents...)
		}
	}
	return nil
}

func (r *Registry) addFieldLocked(e *entityEntry, d *field.Descriptor) {
	if _, ok := r.fields[d.ID]; !ok {
		r.fields[d.ID] = d
		r.version++
	}
	if !slices.Contains(e.fields, d.ID) {
		e.fields = append(e.fields, d.ID)
		r.version++
	}
}

// Version increases every time the registry changes. Callers may use it to
// detect that nothing was registered since a previous observation.
func (r *Registry) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// ResolveEntityType returns the factory of a registered entity type.
func (r *Registry) ResolveEntityType(id int32) (Factory, error) {
	r.mu.RLock()
	e, ok := r.entities[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %d", versa.ErrUnknownEntity, id)
	}
	if e.typ.New != nil {
		return e.typ.New, nil
	}
	return func() *entity.Instance { return entity.New(id) }, nil
}

// NewInstance creates an empty instance of entity type id.
func (r *Registry) NewInstance(id int32) (*entity.Instance, error) {
	f, err := r.ResolveEntityType(id)
	if err != nil {
		return nil, err
	}
	i := f()
	if i == nil {
		return nil, fmt.Errorf("schema: factory of entity %d returned nil", id)
	}
	i.EntityID = id
	return i, nil
}

// Entity returns the registered entity type with its own fields.
func (r *Registry) Entity(id int32) (EntityType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entities[id]
	if !ok {
		return EntityType{}, false
	}
	return r.exportLocked(e), true
}

func (r *Registry) exportLocked(e *entityEntry) EntityType {
	t := e.typ
	t.Parents = slices.Clone(e.typ.Parents)
	t.Fields = make([]*field.Descriptor, 0, len(e.fields))
	for _, id := range e.fields {
		t.Fields = append(t.Fields, r.fields[id])
	}
	return t
}

// Entities returns all registered entity types ordered by id.
func (r *Registry) Entities() []EntityType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := slices.Sorted(maps.Keys(r.entities))
	ts := make([]EntityType, 0, len(ids))
	for _, id := range ids {
		ts = append(ts, r.exportLocked(r.entities[id]))
	}
	return ts
}

// Field returns the descriptor of a registered field.
func (r *Registry) Field(id int32) (*field.Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.fields[id]
	return d, ok
}

// Fields returns every registered field ordered by id.
func (r *Registry) Fields() []*field.Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := slices.Sorted(maps.Keys(r.fields))
	ds := make([]*field.Descriptor, 0, len(ids))
	for _, id := range ids {
		ds = append(ds, r.fields[id])
	}
	return ds
}

// FieldsOf returns the effective fields of an entity type: its own fields
// and those of all its ancestors, ordered by id.
func (r *Registry) FieldsOf(entityID int32) []*field.Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := make(map[int32]*field.Descriptor)
	for _, id := range r.ancestorsLocked(entityID) {
		if e, ok := r.entities[id]; ok {
			for _, fid := range e.fields {
				set[fid] = r.fields[fid]
			}
		}
	}
	ds := make([]*field.Descriptor, 0, len(set))
	for _, id := range slices.Sorted(maps.Keys(set)) {
		ds = append(ds, set[id])
	}
	return ds
}

// FieldIDs returns the effective field ids of an entity type.
func (r *Registry) FieldIDs(entityID int32) []int32 {
	ds := r.FieldsOf(entityID)
	ids := make([]int32, len(ds))
	for i, d := range ds {
		ids[i] = d.ID
	}
	return ids
}

// EnumFieldIDs returns the effective enum field ids of an entity type.
func (r *Registry) EnumFieldIDs(entityID int32) []int32 {
	var ids []int32
	for _, d := range r.FieldsOf(entityID) {
		if d.Type.IsEnum() {
			ids = append(ids, d.ID)
		}
	}
	return ids
}

// FieldTypes returns the distinct field types used by the given entity
// types, or by every registered field when none are given.
func (r *Registry) FieldTypes(entityIDs ...int32) []field.Type {
	var ds []*field.Descriptor
	if len(entityIDs) == 0 {
		ds = r.Fields()
	}
	for _, id := range entityIDs {
		ds = append(ds, r.FieldsOf(id)...)
	}
	seen := make(map[field.Type]struct{})
	for _, d := range ds {
		seen[d.Type] = struct{}{}
	}
	return slices.Sorted(maps.Keys(seen))
}

// InheritanceClosure returns id and all of its transitive subtypes,
// ordered ascending.
func (r *Registry) InheritanceClosure(id int32) []int32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.walkLocked(id, func(n int32) []int32 { return r.children[n] })
}

// Ancestors returns id and all of its transitive parents, ordered ascending.
func (r *Registry) Ancestors(id int32) []int32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ancestorsLocked(id)
}

func (r *Registry) ancestorsLocked(id int32) []int32 {
	return r.walkLocked(id, func(n int32) []int32 {
		if e, ok := r.entities[n]; ok {
			return e.typ.Parents
		}
		return nil
	})
}

func (r *Registry) walkLocked(id int32, next func(int32) []int32) []int32 {
	seen := map[int32]bool{id: true}
	stack := []int32{id}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, m := range next(n) {
			if !seen[m] {
				seen[m] = true
				stack = append(stack, m)
			}
		}
	}
	return slices.Sorted(maps.Keys(seen))
}
