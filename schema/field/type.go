package field

import (
	"fmt"
	"strings"
)

// Type is the closed set of persistable field types. The numeric values
// are persisted in the registry tables and must never be reordered.
type Type uint8

// Scalar types.
const (
	TypeInvalid       Type = 0
	TypeBool          Type = 1
	TypeShort         Type = 2
	TypeInt           Type = 3
	TypeLong          Type = 4
	TypeFloat         Type = 5
	TypeDouble        Type = 6
	TypeString        Type = 7
	TypeUUID          Type = 8
	TypeBlob          Type = 9
	TypeDate          Type = 10
	TypeDateTime      Type = 11
	TypeZonedDateTime Type = 12
	TypeTime          Type = 13
	TypeDuration      Type = 14
	TypePeriod        Type = 15
	TypeYearMonth     Type = 16
	TypeMonthDay      Type = 17
	TypeEnum          Type = 18
	TypeEnumString    Type = 19
	TypeEntity        Type = 20
)

// Collection types. Each one is an ordered list of its element type.
const (
	TypeBoolCollection          Type = 41
	TypeShortCollection         Type = 42
	TypeIntCollection           Type = 43
	TypeLongCollection          Type = 44
	TypeFloatCollection         Type = 45
	TypeDoubleCollection        Type = 46
	TypeStringCollection        Type = 47
	TypeUUIDCollection          Type = 48
	TypeDateCollection          Type = 50
	TypeDateTimeCollection      Type = 51
	TypeZonedDateTimeCollection Type = 52
	TypeTimeCollection          Type = 53
	TypeDurationCollection      Type = 54
	TypePeriodCollection        Type = 55
	TypeYearMonthCollection     Type = 56
	TypeMonthDayCollection      Type = 57
	TypeEnumCollection          Type = 58
	TypeEnumStringCollection    Type = 59
	TypeEntityCollection        Type = 60
)

// collectionOffset separates a scalar type from its collection counterpart.
const collectionOffset = 40

var typeNames = map[Type]string{
	TypeBool:          "bool",
	TypeShort:         "short",
	TypeInt:           "int",
	TypeLong:          "long",
	TypeFloat:         "float",
	TypeDouble:        "double",
	TypeString:        "string",
	TypeUUID:          "uuid",
	TypeBlob:          "blob",
	TypeDate:          "date",
	TypeDateTime:      "datetime",
	TypeZonedDateTime: "zoned_datetime",
	TypeTime:          "time",
	TypeDuration:      "duration",
	TypePeriod:        "period",
	TypeYearMonth:     "year_month",
	TypeMonthDay:      "month_day",
	TypeEnum:          "enum",
	TypeEnumString:    "enum_string",
	TypeEntity:        "entity",
}

// Types returns every valid type, scalars first.
func Types() []Type {
	ts := make([]Type, 0, 2*len(typeNames))
	for t := TypeBool; t <= TypeEntity; t++ {
		ts = append(ts, t)
	}
	for t := TypeBool; t <= TypeEntity; t++ {
		if c := t.Collection(); c != TypeInvalid {
			ts = append(ts, c)
		}
	}
	return ts
}

// String returns the stable name of the type, e.g. "string" or "string_collection".
func (t Type) String() string {
	if t.IsCollection() {
		return typeNames[t.Elem()] + "_collection"
	}
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("invalid(%d)", uint8(t))
}

// ParseType returns the type with the given stable name.
func ParseType(s string) (Type, error) {
	name, coll := strings.CutSuffix(strings.ToLower(strings.TrimSpace(s)), "_collection")
	for t, n := range typeNames {
		if n != name {
			continue
		}
		if !coll {
			return t, nil
		}
		if c := t.Collection(); c != TypeInvalid {
			return c, nil
		}
	}
	return TypeInvalid, fmt.Errorf("field: unknown type %q", s)
}

// Valid reports if t is a member of the closed enumeration.
func (t Type) Valid() bool {
	if t.IsCollection() {
		return true
	}
	_, ok := typeNames[t]
	return ok
}

// IsCollection reports if t is an ordered collection type.
func (t Type) IsCollection() bool {
	if t <= collectionOffset || t > TypeEntityCollection {
		return false
	}
	return t != TypeBlob+collectionOffset
}

// Elem returns the element type of a collection, or t itself for scalars.
func (t Type) Elem() Type {
	if t.IsCollection() {
		return t - collectionOffset
	}
	return t
}

// Collection returns the collection counterpart of a scalar type, or
// TypeInvalid when the type has none (blobs and collections).
func (t Type) Collection() Type {
	if t == TypeBlob || t.IsCollection() || !t.Valid() {
		return TypeInvalid
	}
	return t + collectionOffset
}

// IsEntity reports if values of t are nested entity instances.
func (t Type) IsEntity() bool {
	return t.Elem() == TypeEntity
}

// IsEnum reports if t is one of the enum types or their collections.
func (t Type) IsEnum() bool {
	e := t.Elem()
	return e == TypeEnum || e == TypeEnumString
}

// Flattenable reports if t can become a column of a projection table.
// Collections, blobs and entity references are not flattened.
func (t Type) Flattenable() bool {
	return t.Valid() && !t.IsCollection() && t != TypeBlob && t != TypeEntity
}

// Temporal reports if the element type is stored as a point in time.
func (t Type) Temporal() bool {
	e := t.Elem()
	return e == TypeDate || e == TypeDateTime
}
