package entity

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/syssam/versa"
	"github.com/syssam/versa/schema/field"
)

// Value is a tagged union over the field types. The zero Value is null.
//
// The Go type held by a Value is fixed by its field type:
//
//	bool            bool
//	short           int16
//	int             int32
//	long            int64
//	float           float32
//	double          float64
//	string          string
//	uuid            uuid.UUID
//	blob            []byte
//	date, datetime,
//	zoned_datetime  time.Time
//	time            TimeOfDay
//	duration        time.Duration
//	period          Period
//	year_month      YearMonth
//	month_day       MonthDay
//	enum,
//	enum_string     string (the enum value name)
//	entity          *Instance
//
// Collections hold a slice of the element type.
type Value struct {
	typ field.Type
	v   any
}

// NewValue returns a Value of type t holding v. A nil v yields a null Value.
// It returns a TypeMismatchError if v is not the Go type of t.
func NewValue(t field.Type, v any) (Value, error) {
	if v == nil {
		return Value{}, nil
	}
	if !t.Valid() {
		return Value{}, fmt.Errorf("entity: invalid field type %s", t)
	}
	if !holds(t, v) {
		return Value{}, versa.NewTypeMismatchError(0, t.String(), fmt.Sprintf("%T", v))
	}
	return Value{typ: t, v: v}, nil
}

// MustValue is like NewValue but panics on mismatch.
func MustValue(t field.Type, v any) Value {
	val, err := NewValue(t, v)
	if err != nil {
		panic(err)
	}
	return val
}

// Collection returns a collection Value of the given element type.
func Collection[T any](elem field.Type, vs ...T) (Value, error) {
	if vs == nil {
		vs = []T{}
	}
	return NewValue(elem.Collection(), vs)
}

// Bool returns a bool Value.
func Bool(b bool) Value { return Value{typ: field.TypeBool, v: b} }

// Short returns a short Value.
func Short(n int16) Value { return Value{typ: field.TypeShort, v: n} }

// Int returns an int Value.
func Int(n int32) Value { return Value{typ: field.TypeInt, v: n} }

// Long returns a long Value.
func Long(n int64) Value { return Value{typ: field.TypeLong, v: n} }

// Float returns a float Value.
func Float(f float32) Value { return Value{typ: field.TypeFloat, v: f} }

// Double returns a double Value.
func Double(f float64) Value { return Value{typ: field.TypeDouble, v: f} }

// String returns a string Value.
func String(s string) Value { return Value{typ: field.TypeString, v: s} }

// UUID returns a uuid Value.
func UUID(u uuid.UUID) Value { return Value{typ: field.TypeUUID, v: u} }

// Blob returns a blob Value.
func Blob(b []byte) Value {
	if b == nil {
		return Value{}
	}
	return Value{typ: field.TypeBlob, v: b}
}

// Date returns a date Value. Only the calendar date of t is persisted.
func Date(t time.Time) Value { return Value{typ: field.TypeDate, v: t} }

// DateTime returns a date-time Value. The instant is persisted in UTC.
func DateTime(t time.Time) Value { return Value{typ: field.TypeDateTime, v: t} }

// ZonedDateTime returns a date-time Value that keeps its zone offset.
func ZonedDateTime(t time.Time) Value { return Value{typ: field.TypeZonedDateTime, v: t} }

// Duration returns a duration Value.
func Duration(d time.Duration) Value { return Value{typ: field.TypeDuration, v: d} }

// Enum returns an enum Value persisted by ordinal.
func Enum(name string) Value { return Value{typ: field.TypeEnum, v: name} }

// EnumString returns an enum Value persisted by name.
func EnumString(name string) Value { return Value{typ: field.TypeEnumString, v: name} }

// Ref returns an entity Value referencing child.
func Ref(child *Instance) Value {
	if child == nil {
		return Value{}
	}
	return Value{typ: field.TypeEntity, v: child}
}

// Refs returns an entity collection Value.
func Refs(children ...*Instance) Value {
	if children == nil {
		children = []*Instance{}
	}
	return Value{typ: field.TypeEntityCollection, v: children}
}

// Type returns the field type of the value.
func (v Value) Type() field.Type { return v.typ }

// Interface returns the held Go value, or nil for a null Value.
func (v Value) Interface() any { return v.v }

// IsNull reports if the value is null.
func (v Value) IsNull() bool { return v.v == nil }

// Len returns the number of elements of a collection, 1 for a non-null
// scalar and 0 for null.
func (v Value) Len() int {
	if v.v == nil {
		return 0
	}
	if !v.typ.IsCollection() {
		return 1
	}
	n := 0
	_ = eachElem(v.typ.Elem(), v.v, func(any) error { n++; return nil })
	return n
}

// String implements fmt.Stringer.
func (v Value) String() string {
	if v.v == nil {
		return "null"
	}
	return fmt.Sprintf("%s(%v)", v.typ, v.v)
}

// holds reports if v is the Go type of t.
func holds(t field.Type, v any) bool {
	if t.IsCollection() {
		switch t.Elem() {
		case field.TypeBool:
			return is[[]bool](v)
		case field.TypeShort:
			return is[[]int16](v)
		case field.TypeInt:
			return is[[]int32](v)
		case field.TypeLong:
			return is[[]int64](v)
		case field.TypeFloat:
			return is[[]float32](v)
		case field.TypeDouble:
			return is[[]float64](v)
		case field.TypeString, field.TypeEnum, field.TypeEnumString:
			return is[[]string](v)
		case field.TypeUUID:
			return is[[]uuid.UUID](v)
		case field.TypeDate, field.TypeDateTime, field.TypeZonedDateTime:
			return is[[]time.Time](v)
		case field.TypeTime:
			return is[[]TimeOfDay](v)
		case field.TypeDuration:
			return is[[]time.Duration](v)
		case field.TypePeriod:
			return is[[]Period](v)
		case field.TypeYearMonth:
			return is[[]YearMonth](v)
		case field.TypeMonthDay:
			return is[[]MonthDay](v)
		case field.TypeEntity:
			return is[[]*Instance](v)
		}
		return false
	}
	switch t {
	case field.TypeBool:
		return is[bool](v)
	case field.TypeShort:
		return is[int16](v)
	case field.TypeInt:
		return is[int32](v)
	case field.TypeLong:
		return is[int64](v)
	case field.TypeFloat:
		return is[float32](v)
	case field.TypeDouble:
		return is[float64](v)
	case field.TypeString, field.TypeEnum, field.TypeEnumString:
		return is[string](v)
	case field.TypeUUID:
		return is[uuid.UUID](v)
	case field.TypeBlob:
		return is[[]byte](v)
	case field.TypeDate, field.TypeDateTime, field.TypeZonedDateTime:
		return is[time.Time](v)
	case field.TypeTime:
		return is[TimeOfDay](v)
	case field.TypeDuration:
		return is[time.Duration](v)
	case field.TypePeriod:
		return is[Period](v)
	case field.TypeYearMonth:
		return is[YearMonth](v)
	case field.TypeMonthDay:
		return is[MonthDay](v)
	case field.TypeEntity:
		c, ok := v.(*Instance)
		return ok && c != nil
	}
	return false
}

func is[T any](v any) bool {
	_, ok := v.(T)
	return ok
}
