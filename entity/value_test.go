package entity_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/versa"
	"github.com/syssam/versa/entity"
	"github.com/syssam/versa/schema/field"
)

func TestNewValue(t *testing.T) {
	v, err := entity.NewValue(field.TypeInt, int32(7))
	require.NoError(t, err)
	assert.Equal(t, field.TypeInt, v.Type())
	assert.Equal(t, int32(7), v.Interface())
	assert.Equal(t, 1, v.Len())

	v, err = entity.NewValue(field.TypeString, nil)
	require.NoError(t, err)
	assert.True(t, v.IsNull())
	assert.Equal(t, 0, v.Len())
	assert.Equal(t, "null", v.String())

	_, err = entity.NewValue(field.TypeInt, int64(7))
	require.Error(t, err)
	assert.True(t, versa.IsTypeMismatch(err))

	_, err = entity.NewValue(field.TypeInvalid, 1)
	require.Error(t, err)
}

func TestNewValueGoTypes(t *testing.T) {
	child := entity.New(2)
	tests := []struct {
		typ field.Type
		v   any
	}{
		{field.TypeBool, true},
		{field.TypeShort, int16(1)},
		{field.TypeLong, int64(1)},
		{field.TypeFloat, float32(1.5)},
		{field.TypeDouble, 1.5},
		{field.TypeUUID, uuid.New()},
		{field.TypeBlob, []byte("x")},
		{field.TypeDate, time.Now()},
		{field.TypeTime, entity.TimeOfDay{Hour: 1}},
		{field.TypeDuration, time.Second},
		{field.TypePeriod, entity.Period{Days: 1}},
		{field.TypeYearMonth, entity.YearMonth{Year: 2024, Month: time.May}},
		{field.TypeMonthDay, entity.MonthDay{Month: time.May, Day: 1}},
		{field.TypeEnum, "red"},
		{field.TypeEntity, child},
		{field.TypeIntCollection, []int32{1, 2}},
		{field.TypeEnumStringCollection, []string{"a"}},
		{field.TypeEntityCollection, []*entity.Instance{child}},
	}
	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			_, err := entity.NewValue(tt.typ, tt.v)
			assert.NoError(t, err)
		})
	}
}

func TestCollection(t *testing.T) {
	v, err := entity.Collection(field.TypeString, "a", "b", "c")
	require.NoError(t, err)
	assert.Equal(t, field.TypeStringCollection, v.Type())
	assert.Equal(t, 3, v.Len())

	v, err = entity.Collection[int32](field.TypeInt)
	require.NoError(t, err)
	assert.False(t, v.IsNull())
	assert.Equal(t, 0, v.Len())

	_, err = entity.Collection(field.TypeInt, "a")
	assert.True(t, versa.IsTypeMismatch(err))
}

func TestMustValuePanics(t *testing.T) {
	assert.Panics(t, func() { entity.MustValue(field.TypeBool, "yes") })
	assert.NotPanics(t, func() { entity.MustValue(field.TypeBool, true) })
}

func TestRefs(t *testing.T) {
	assert.True(t, entity.Ref(nil).IsNull())
	assert.True(t, entity.Blob(nil).IsNull())
	a, b := entity.New(2), entity.New(2)
	v := entity.Refs(a, b)
	assert.Equal(t, field.TypeEntityCollection, v.Type())
	assert.Equal(t, 2, v.Len())
	assert.Equal(t, 0, entity.Refs().Len())
}

func TestInstanceSlots(t *testing.T) {
	i := entity.New(1)
	assert.True(t, i.Live)
	assert.True(t, i.Key().IsZero())

	i.Set(3, entity.String("c")).Set(1, entity.Int(1)).Set(2, entity.Bool(true))
	assert.Equal(t, []int32{1, 2, 3}, i.FieldIDs())
	assert.Equal(t, 3, i.Len())

	s, ok := entity.Get[string](i, 3)
	require.True(t, ok)
	assert.Equal(t, "c", s)
	_, ok = entity.Get[int64](i, 1)
	assert.False(t, ok)

	i.Set(3, entity.Value{})
	_, ok = i.Value(3)
	assert.False(t, ok)
	i.Unset(2)
	assert.Equal(t, []int32{1}, i.FieldIDs())
}

func TestInstanceChildren(t *testing.T) {
	a, b := entity.New(2), entity.New(2)
	i := entity.NewWithKey(1, "p", 4)
	assert.Equal(t, entity.Key{ID: "p", EditVersion: 4}, i.Key())
	assert.Equal(t, "p@4", i.Key().String())

	i.Set(10, entity.Ref(a))
	i.Set(11, entity.Refs(a, b))
	assert.Equal(t, []*entity.Instance{a}, i.Children(10))
	assert.Equal(t, []*entity.Instance{a, b}, i.Children(11))
	assert.Nil(t, i.Children(12))
}
