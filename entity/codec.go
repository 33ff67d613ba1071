package entity

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/syssam/versa"
	"github.com/syssam/versa/schema/field"
)

// Encode converts a populated slot into its column values, one per
// collection element (or exactly one for scalars). It is the single
// write-side dispatch over field types.
func Encode(d *field.Descriptor, v Value) ([]any, error) {
	if v.IsNull() {
		return nil, nil
	}
	if v.typ != d.Type {
		return nil, versa.NewTypeMismatchError(d.ID, d.Type.String(), v.typ.String())
	}
	if d.Type.IsEntity() {
		return nil, fmt.Errorf("entity: field %s is persisted as bindings", d)
	}
	elem := d.Type.Elem()
	if !d.Type.IsCollection() {
		c, err := toColumn(d, elem, v.v)
		if err != nil {
			return nil, err
		}
		return []any{c}, nil
	}
	var cols []any
	err := eachElem(elem, v.v, func(e any) error {
		c, err := toColumn(d, elem, e)
		if err != nil {
			return err
		}
		cols = append(cols, c)
		return nil
	})
	return cols, err
}

// Decode converts the column value of a scalar slot into a Value. It is
// the single read-side dispatch over field types.
func Decode(d *field.Descriptor, raw any) (Value, error) {
	if d.Type.IsCollection() || d.Type.IsEntity() {
		return Value{}, fmt.Errorf("entity: field %s is not a scalar value", d)
	}
	x, err := fromColumn(d, d.Type, raw)
	if err != nil {
		return Value{}, err
	}
	return Value{typ: d.Type, v: x}, nil
}

// AppendDecoded decodes one collection element and appends it to cur,
// which may be null.
func AppendDecoded(d *field.Descriptor, cur Value, raw any) (Value, error) {
	if !d.Type.IsCollection() || d.Type.IsEntity() {
		return cur, fmt.Errorf("entity: field %s is not a value collection", d)
	}
	elem := d.Type.Elem()
	x, err := fromColumn(d, elem, raw)
	if err != nil {
		return cur, err
	}
	base := cur.v
	if cur.typ != d.Type {
		base = nil
	}
	nv, err := appendElem(elem, base, x)
	if err != nil {
		return cur, err
	}
	return Value{typ: d.Type, v: nv}, nil
}

func mismatch(d *field.Descriptor, got any) error {
	return versa.NewTypeMismatchError(d.ID, d.Type.String(), fmt.Sprintf("%T", got))
}

func toColumn(d *field.Descriptor, t field.Type, v any) (any, error) {
	switch t {
	case field.TypeBool, field.TypeShort, field.TypeInt, field.TypeLong,
		field.TypeFloat, field.TypeDouble, field.TypeString, field.TypeBlob:
		return v, nil
	case field.TypeUUID:
		return v.(uuid.UUID).String(), nil
	case field.TypeDate:
		tm := v.(time.Time)
		return time.Date(tm.Year(), tm.Month(), tm.Day(), 0, 0, 0, 0, time.UTC), nil
	case field.TypeDateTime:
		return v.(time.Time).UTC(), nil
	case field.TypeZonedDateTime:
		return v.(time.Time).Format(time.RFC3339Nano), nil
	case field.TypeTime:
		return v.(TimeOfDay).Nanos(), nil
	case field.TypeDuration:
		return int64(v.(time.Duration)), nil
	case field.TypePeriod:
		return v.(Period).String(), nil
	case field.TypeYearMonth:
		return v.(YearMonth).String(), nil
	case field.TypeMonthDay:
		return v.(MonthDay).String(), nil
	case field.TypeEnum:
		name := v.(string)
		ord, ok := d.Ordinal(name)
		if !ok {
			return nil, versa.NewTypeMismatchError(d.ID, d.Type.String(), fmt.Sprintf("unknown enum value %q", name))
		}
		return int32(ord), nil
	case field.TypeEnumString:
		name := v.(string)
		if _, ok := d.Ordinal(name); !ok {
			return nil, versa.NewTypeMismatchError(d.ID, d.Type.String(), fmt.Sprintf("unknown enum value %q", name))
		}
		return name, nil
	}
	return nil, fmt.Errorf("entity: no column form for %s", t)
}

func fromColumn(d *field.Descriptor, t field.Type, raw any) (any, error) {
	if raw == nil {
		// Some backends store empty strings and blobs as NULL.
		switch t {
		case field.TypeString:
			return "", nil
		case field.TypeBlob:
			return []byte{}, nil
		}
		return nil, fmt.Errorf("entity: field %s: unexpected NULL", d)
	}
	switch t {
	case field.TypeBool:
		return asBool(d, raw)
	case field.TypeShort:
		n, err := asInt64(d, raw)
		if err != nil {
			return nil, err
		}
		if n < math.MinInt16 || n > math.MaxInt16 {
			return nil, fmt.Errorf("entity: field %s: %d overflows short", d, n)
		}
		return int16(n), nil
	case field.TypeInt:
		n, err := asInt64(d, raw)
		if err != nil {
			return nil, err
		}
		if n < math.MinInt32 || n > math.MaxInt32 {
			return nil, fmt.Errorf("entity: field %s: %d overflows int", d, n)
		}
		return int32(n), nil
	case field.TypeLong:
		return asInt64(d, raw)
	case field.TypeFloat:
		f, err := asFloat64(d, raw)
		return float32(f), err
	case field.TypeDouble:
		return asFloat64(d, raw)
	case field.TypeString:
		return asString(d, raw)
	case field.TypeUUID:
		if b, ok := raw.([]byte); ok && len(b) == 16 {
			return uuid.FromBytes(b)
		}
		s, err := asString(d, raw)
		if err != nil {
			return nil, err
		}
		return uuid.Parse(strings.TrimSpace(s))
	case field.TypeBlob:
		return asBytes(d, raw)
	case field.TypeDate:
		tm, err := asTime(d, raw)
		if err != nil {
			return nil, err
		}
		tm = tm.UTC()
		return time.Date(tm.Year(), tm.Month(), tm.Day(), 0, 0, 0, 0, time.UTC), nil
	case field.TypeDateTime:
		tm, err := asTime(d, raw)
		return tm.UTC(), err
	case field.TypeZonedDateTime:
		if tm, ok := raw.(time.Time); ok {
			return tm, nil
		}
		s, err := asString(d, raw)
		if err != nil {
			return nil, err
		}
		return time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
	case field.TypeTime:
		n, err := asInt64(d, raw)
		if err != nil {
			return nil, err
		}
		return TimeOfDayFromNanos(n)
	case field.TypeDuration:
		n, err := asInt64(d, raw)
		return time.Duration(n), err
	case field.TypePeriod:
		s, err := asString(d, raw)
		if err != nil {
			return nil, err
		}
		return ParsePeriod(s)
	case field.TypeYearMonth:
		s, err := asString(d, raw)
		if err != nil {
			return nil, err
		}
		return ParseYearMonth(s)
	case field.TypeMonthDay:
		s, err := asString(d, raw)
		if err != nil {
			return nil, err
		}
		return ParseMonthDay(s)
	case field.TypeEnum:
		n, err := asInt64(d, raw)
		if err != nil {
			return nil, err
		}
		name, ok := d.EnumName(int(n))
		if !ok {
			return nil, versa.NewTypeMismatchError(d.ID, d.Type.String(), fmt.Sprintf("unknown enum ordinal %d", n))
		}
		return name, nil
	case field.TypeEnumString:
		s, err := asString(d, raw)
		if err != nil {
			return nil, err
		}
		if _, ok := d.Ordinal(s); !ok {
			return nil, versa.NewTypeMismatchError(d.ID, d.Type.String(), fmt.Sprintf("unknown enum value %q", s))
		}
		return s, nil
	}
	return nil, fmt.Errorf("entity: no column form for %s", t)
}

func asInt64(d *field.Descriptor, raw any) (int64, error) {
	switch n := raw.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("entity: field %s: %d overflows int64", d, n)
		}
		return int64(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, mismatch(d, raw)
		}
		return int64(n), nil
	case float32:
		if float64(n) != math.Trunc(float64(n)) {
			return 0, mismatch(d, raw)
		}
		return int64(n), nil
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	case []byte:
		return parseInt(d, string(n))
	case string:
		return parseInt(d, n)
	}
	return 0, mismatch(d, raw)
}

func parseInt(d *field.Descriptor, s string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, errors.Join(mismatch(d, s), err)
	}
	return n, nil
}

func asFloat64(d *field.Descriptor, raw any) (float64, error) {
	switch f := raw.(type) {
	case float64:
		return f, nil
	case float32:
		return float64(f), nil
	case []byte:
		return strconv.ParseFloat(strings.TrimSpace(string(f)), 64)
	case string:
		return strconv.ParseFloat(strings.TrimSpace(f), 64)
	}
	n, err := asInt64(d, raw)
	return float64(n), err
}

func asBool(d *field.Descriptor, raw any) (bool, error) {
	switch b := raw.(type) {
	case bool:
		return b, nil
	case []byte:
		return strconv.ParseBool(strings.TrimSpace(string(b)))
	case string:
		return strconv.ParseBool(strings.TrimSpace(b))
	}
	n, err := asInt64(d, raw)
	return n != 0, err
}

func asString(d *field.Descriptor, raw any) (string, error) {
	switch s := raw.(type) {
	case string:
		return s, nil
	case []byte:
		return string(s), nil
	}
	return "", mismatch(d, raw)
}

func asBytes(d *field.Descriptor, raw any) ([]byte, error) {
	switch b := raw.(type) {
	case []byte:
		return append([]byte{}, b...), nil
	case string:
		return []byte(b), nil
	}
	return nil, mismatch(d, raw)
}

// timeLayouts are the textual forms drivers return for temporal columns.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

func asTime(d *field.Descriptor, raw any) (time.Time, error) {
	var s string
	switch t := raw.(type) {
	case time.Time:
		return t, nil
	case string:
		s = t
	case []byte:
		s = string(t)
	default:
		return time.Time{}, mismatch(d, raw)
	}
	s = strings.TrimSpace(s)
	if i := strings.Index(s, " m="); i > 0 {
		s = s[:i]
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("entity: field %s: cannot parse time %q", d, s)
}

// sliceOps are the collection operations for one element Go type.
type sliceOps struct {
	each   func(v any, fn func(any) error) error
	append func(cur, e any) (any, error)
}

func opsOf[T any]() sliceOps {
	return sliceOps{
		each: func(v any, fn func(any) error) error {
			s, ok := v.([]T)
			if !ok {
				return fmt.Errorf("entity: %T is not %T", v, s)
			}
			for _, e := range s {
				if err := fn(e); err != nil {
					return err
				}
			}
			return nil
		},
		append: func(cur, e any) (any, error) {
			s, _ := cur.([]T)
			x, ok := e.(T)
			if !ok {
				return cur, fmt.Errorf("entity: element %T is not %T", e, x)
			}
			return append(s, x), nil
		},
	}
}

// collections maps an element type to its slice operations.
var collections = map[field.Type]sliceOps{
	field.TypeBool:          opsOf[bool](),
	field.TypeShort:         opsOf[int16](),
	field.TypeInt:           opsOf[int32](),
	field.TypeLong:          opsOf[int64](),
	field.TypeFloat:         opsOf[float32](),
	field.TypeDouble:        opsOf[float64](),
	field.TypeString:        opsOf[string](),
	field.TypeUUID:          opsOf[uuid.UUID](),
	field.TypeDate:          opsOf[time.Time](),
	field.TypeDateTime:      opsOf[time.Time](),
	field.TypeZonedDateTime: opsOf[time.Time](),
	field.TypeTime:          opsOf[TimeOfDay](),
	field.TypeDuration:      opsOf[time.Duration](),
	field.TypePeriod:        opsOf[Period](),
	field.TypeYearMonth:     opsOf[YearMonth](),
	field.TypeMonthDay:      opsOf[MonthDay](),
	field.TypeEnum:          opsOf[string](),
	field.TypeEnumString:    opsOf[string](),
	field.TypeEntity:        opsOf[*Instance](),
}

func eachElem(elem field.Type, v any, fn func(any) error) error {
	ops, ok := collections[elem]
	if !ok {
		return fmt.Errorf("entity: %s has no collection form", elem)
	}
	return ops.each(v, fn)
}

func appendElem(elem field.Type, cur, e any) (any, error) {
	ops, ok := collections[elem]
	if !ok {
		return cur, fmt.Errorf("entity: %s has no collection form", elem)
	}
	return ops.append(cur, e)
}
