package schema_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/versa"
	"github.com/syssam/versa/entity"
	"github.com/syssam/versa/schema"
	"github.com/syssam/versa/schema/field"
)

func animals(t *testing.T) *schema.Registry {
	t.Helper()
	r := schema.NewRegistry()
	require.NoError(t, r.RegisterEntityType(schema.EntityType{
		ID:   1,
		Name: "animal",
		Fields: []*field.Descriptor{
			field.String(1, "name").Descriptor(),
			field.Enum(2, "size", "small", "large").Descriptor(),
		},
	}))
	require.NoError(t, r.RegisterEntityType(schema.EntityType{
		ID:      2,
		Name:    "dog",
		Parents: []int32{1},
		Fields:  []*field.Descriptor{field.Bool(3, "good").Descriptor()},
	}))
	require.NoError(t, r.RegisterEntityType(schema.EntityType{
		ID:      3,
		Name:    "puppy",
		Parents: []int32{2},
		Fields:  []*field.Descriptor{field.Collection(field.TypeString, 4, "toys").Descriptor()},
	}))
	return r
}

func TestRegistryInheritance(t *testing.T) {
	r := animals(t)
	assert.Equal(t, []int32{1, 2, 3}, r.InheritanceClosure(1))
	assert.Equal(t, []int32{2, 3}, r.InheritanceClosure(2))
	assert.Equal(t, []int32{3}, r.InheritanceClosure(3))
	assert.Equal(t, []int32{42}, r.InheritanceClosure(42))
	assert.Equal(t, []int32{1, 2, 3}, r.Ancestors(3))

	assert.Equal(t, []int32{1, 2}, r.FieldIDs(1))
	assert.Equal(t, []int32{1, 2, 3, 4}, r.FieldIDs(3))
	assert.Equal(t, []int32{2}, r.EnumFieldIDs(3))
}

func TestRegistryIdempotent(t *testing.T) {
	r := animals(t)
	v := r.Version()
	require.NoError(t, r.RegisterEntityType(schema.EntityType{
		ID:     1,
		Name:   "animal",
		Fields: []*field.Descriptor{field.String(1, "name").Descriptor()},
	}))
	assert.Equal(t, v, r.Version())

	require.NoError(t, r.RegisterField(1, field.Long(5, "weight").Descriptor()))
	assert.Greater(t, r.Version(), v)
	assert.Equal(t, []int32{1, 2, 5}, r.FieldIDs(1))

	et, ok := r.Entity(1)
	require.True(t, ok)
	assert.Equal(t, "animal", et.Name)
	assert.Len(t, et.Fields, 3)
	assert.Len(t, r.Entities(), 3)
	assert.Len(t, r.Fields(), 5)
}

func TestRegistryConflicts(t *testing.T) {
	r := animals(t)
	tests := []struct {
		name string
		typ  schema.EntityType
	}{
		{"name", schema.EntityType{ID: 1, Name: "beast"}},
		{"parents", schema.EntityType{ID: 2, Name: "dog"}},
		{"field type", schema.EntityType{ID: 1, Name: "animal", Fields: []*field.Descriptor{field.Int(1, "name").Descriptor()}}},
		{"enum values", schema.EntityType{ID: 1, Name: "animal", Fields: []*field.Descriptor{field.Enum(2, "size", "large", "small").Descriptor()}}},
		{"self parent", schema.EntityType{ID: 9, Name: "ouroboros", Parents: []int32{9}}},
		{"cycle", schema.EntityType{ID: 1, Name: "animal", Parents: []int32{3}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.RegisterEntityType(tt.typ)
			require.Error(t, err)
			assert.True(t, versa.IsRegistrationConflict(err), err)
		})
	}

	err := r.RegisterField(1, field.Double(3, "good").Descriptor())
	assert.True(t, versa.IsRegistrationConflict(err))

	err = r.RegisterField(99, field.Double(50, "x").Descriptor())
	assert.ErrorIs(t, err, versa.ErrUnknownEntity)
}

func TestRegistryInvalid(t *testing.T) {
	r := schema.NewRegistry()
	assert.Error(t, r.RegisterEntityType(schema.EntityType{ID: 0, Name: "x"}))
	assert.Error(t, r.RegisterEntityType(schema.EntityType{ID: 1}))
	assert.Error(t, r.RegisterEntityType(schema.EntityType{
		ID: 1, Name: "x", Fields: []*field.Descriptor{field.Enum(1, "e").Descriptor()},
	}))
	assert.Panics(t, func() { r.MustRegisterEntityType(schema.EntityType{}) })
}

func TestRegistryFactory(t *testing.T) {
	r := animals(t)
	_, err := r.ResolveEntityType(77)
	assert.ErrorIs(t, err, versa.ErrUnknownEntity)

	i, err := r.NewInstance(2)
	require.NoError(t, err)
	assert.Equal(t, int32(2), i.EntityID)
	assert.True(t, i.Live)

	r.MustRegisterEntityType(schema.EntityType{
		ID:   10,
		Name: "custom",
		New: func() *entity.Instance {
			return entity.New(0).Set(1, entity.String("preset"))
		},
	})
	i, err = r.NewInstance(10)
	require.NoError(t, err)
	assert.Equal(t, int32(10), i.EntityID)
	assert.Equal(t, 1, i.Len())
}

func TestRegistryFieldTypes(t *testing.T) {
	r := animals(t)
	assert.Equal(t, []field.Type{field.TypeBool, field.TypeString, field.TypeEnum, field.TypeStringCollection}, r.FieldTypes())
	assert.Equal(t, []field.Type{field.TypeString, field.TypeEnum}, r.FieldTypes(1))
}

func TestRegistryConcurrent(t *testing.T) {
	r := schema.NewRegistry()
	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := int32(i%4 + 1)
			assert.NoError(t, r.RegisterEntityType(schema.EntityType{
				ID:     id,
				Name:   fmt.Sprintf("e%d", id),
				Fields: []*field.Descriptor{field.Int(id, fmt.Sprintf("f%d", id)).Descriptor()},
			}))
			r.FieldsOf(id)
			r.InheritanceClosure(id)
		}()
	}
	wg.Wait()
	assert.Len(t, r.Entities(), 4)
	assert.Len(t, r.Fields(), 4)
}
