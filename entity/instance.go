package entity

import (
	"fmt"
	"slices"
	"time"
)

// Key is the composite key of one immutable entity version.
type Key struct {
	ID          string
	EditVersion int32
}

// String returns "id@version".
func (k Key) String() string {
	return fmt.Sprintf("%s@%d", k.ID, k.EditVersion)
}

// IsZero reports if the key has not been assigned.
func (k Key) IsZero() bool {
	return k.ID == "" && k.EditVersion == 0
}

// Overview is the per-version header persisted in the overview table.
type Overview struct {
	Key
	EntityID  int32
	Live      bool
	CreatedAt time.Time
	LastEdit  time.Time
}

// Instance is the in-memory form of one persistable entity version: its
// overview and one typed value slot per populated field.
type Instance struct {
	Overview
	values map[int32]Value
}

// New returns an empty live instance of the given entity type.
func New(entityID int32) *Instance {
	return &Instance{
		Overview: Overview{EntityID: entityID, Live: true},
		values:   make(map[int32]Value),
	}
}

// NewWithKey returns an empty live instance with a preassigned key.
func NewWithKey(entityID int32, id string, editVersion int32) *Instance {
	i := New(entityID)
	i.ID, i.EditVersion = id, editVersion
	return i
}

// Key returns the composite key of the instance.
func (i *Instance) Key() Key {
	return i.Overview.Key
}

// Set stores v in the slot of fieldID. Setting a null Value clears the slot.
func (i *Instance) Set(fieldID int32, v Value) *Instance {
	if i.values == nil {
		i.values = make(map[int32]Value)
	}
	if v.IsNull() {
		delete(i.values, fieldID)
		return i
	}
	i.values[fieldID] = v
	return i
}

// Unset clears the slot of fieldID.
func (i *Instance) Unset(fieldID int32) {
	delete(i.values, fieldID)
}

// Value returns the value stored in the slot of fieldID.
func (i *Instance) Value(fieldID int32) (Value, bool) {
	v, ok := i.values[fieldID]
	return v, ok
}

// FieldIDs returns the ids of all populated slots in ascending order.
func (i *Instance) FieldIDs() []int32 {
	ids := make([]int32, 0, len(i.values))
	for id := range i.values {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Len returns the number of populated slots.
func (i *Instance) Len() int {
	return len(i.values)
}

// Children returns the nested instances referenced by the entity slot
// fieldID, in collection order.
func (i *Instance) Children(fieldID int32) []*Instance {
	v, ok := i.values[fieldID]
	if !ok {
		return nil
	}
	switch c := v.v.(type) {
	case *Instance:
		return []*Instance{c}
	case []*Instance:
		return c
	}
	return nil
}

// Get returns the value of fieldID as T. It reports false if the slot is
// empty or holds a different Go type.
func Get[T any](i *Instance, fieldID int32) (T, bool) {
	var zero T
	v, ok := i.values[fieldID]
	if !ok {
		return zero, false
	}
	t, ok := v.v.(T)
	return t, ok
}

// String implements fmt.Stringer.
func (i *Instance) String() string {
	return fmt.Sprintf("Instance(%s, entity=%d, fields=%d)", i.Key(), i.EntityID, len(i.values))
}
