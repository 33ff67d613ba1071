package field

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Descriptor describes one registered field. Field ids are process-wide:
// the same descriptor may be shared by several entity types.
type Descriptor struct {
	ID             int32
	Name           string
	Type           Type
	Description    string
	Size           int               // max length of string columns, 0 means unbounded
	Tags           []string          // free-form classification tags
	AlternateCodes map[string]string // alternate codes keyed by consumer, e.g. a dialect name
	EnumValues     []string          // ordinal -> name, for enum types
	Err            error
}

// SameShape reports if d and o describe the same persisted field.
// Tags, codes and descriptions may differ between registrations.
func (d *Descriptor) SameShape(o *Descriptor) bool {
	return d.ID == o.ID &&
		d.Name == o.Name &&
		d.Type == o.Type &&
		slices.Equal(d.EnumValues, o.EnumValues)
}

// Ordinal returns the ordinal of an enum value.
func (d *Descriptor) Ordinal(name string) (int, bool) {
	i := slices.Index(d.EnumValues, name)
	return i, i >= 0
}

// EnumName returns the enum value with the given ordinal.
func (d *Descriptor) EnumName(ordinal int) (string, bool) {
	if ordinal < 0 || ordinal >= len(d.EnumValues) {
		return "", false
	}
	return d.EnumValues[ordinal], true
}

// HasTag reports if the field carries the tag.
func (d *Descriptor) HasTag(tag string) bool {
	return slices.Contains(d.Tags, tag)
}

// String implements fmt.Stringer.
func (d *Descriptor) String() string {
	return fmt.Sprintf("%s(%d):%s", d.Name, d.ID, d.Type)
}

// Builder is a fluent builder for field descriptors.
type Builder struct {
	desc *Descriptor
}

// New returns a builder for a field of any type.
func New(t Type, id int32, name string) *Builder {
	return &Builder{desc: &Descriptor{ID: id, Name: name, Type: t}}
}

// Bool returns a builder for a boolean field.
func Bool(id int32, name string) *Builder { return New(TypeBool, id, name) }

// Short returns a builder for an int16 field.
func Short(id int32, name string) *Builder { return New(TypeShort, id, name) }

// Int returns a builder for an int32 field.
func Int(id int32, name string) *Builder { return New(TypeInt, id, name) }

// Long returns a builder for an int64 field.
func Long(id int32, name string) *Builder { return New(TypeLong, id, name) }

// Float returns a builder for a float32 field.
func Float(id int32, name string) *Builder { return New(TypeFloat, id, name) }

// Double returns a builder for a float64 field.
func Double(id int32, name string) *Builder { return New(TypeDouble, id, name) }

// String returns a builder for a string field.
func String(id int32, name string) *Builder { return New(TypeString, id, name) }

// UUID returns a builder for a uuid field.
func UUID(id int32, name string) *Builder { return New(TypeUUID, id, name) }

// Blob returns a builder for a binary field.
func Blob(id int32, name string) *Builder { return New(TypeBlob, id, name) }

// Date returns a builder for a calendar date field.
func Date(id int32, name string) *Builder { return New(TypeDate, id, name) }

// DateTime returns a builder for a date-time field without zone.
func DateTime(id int32, name string) *Builder { return New(TypeDateTime, id, name) }

// ZonedDateTime returns a builder for a date-time field that keeps its offset.
func ZonedDateTime(id int32, name string) *Builder { return New(TypeZonedDateTime, id, name) }

// Time returns a builder for a time-of-day field.
func Time(id int32, name string) *Builder { return New(TypeTime, id, name) }

// Duration returns a builder for a duration field.
func Duration(id int32, name string) *Builder { return New(TypeDuration, id, name) }

// Period returns a builder for a calendar period field.
func Period(id int32, name string) *Builder { return New(TypePeriod, id, name) }

// YearMonth returns a builder for a year-month field.
func YearMonth(id int32, name string) *Builder { return New(TypeYearMonth, id, name) }

// MonthDay returns a builder for a month-day field.
func MonthDay(id int32, name string) *Builder { return New(TypeMonthDay, id, name) }

// Enum returns a builder for an enum field persisted by ordinal.
func Enum(id int32, name string, values ...string) *Builder {
	return New(TypeEnum, id, name).Values(values...)
}

// EnumString returns a builder for an enum field persisted by name.
func EnumString(id int32, name string, values ...string) *Builder {
	return New(TypeEnumString, id, name).Values(values...)
}

// Entity returns a builder for a nested entity reference.
func Entity(id int32, name string) *Builder { return New(TypeEntity, id, name) }

// Entities returns a builder for an ordered collection of nested entities.
func Entities(id int32, name string) *Builder { return New(TypeEntityCollection, id, name) }

// Collection returns a builder for the collection counterpart of elem.
func Collection(elem Type, id int32, name string) *Builder {
	b := New(elem.Collection(), id, name)
	if b.desc.Type == TypeInvalid {
		b.desc.Err = fmt.Errorf("field %q: type %s has no collection counterpart", name, elem)
	}
	return b
}

// Size sets the max length of string-typed columns.
func (b *Builder) Size(n int) *Builder {
	b.desc.Size = n
	return b
}

// Description sets a human readable description.
func (b *Builder) Description(s string) *Builder {
	b.desc.Description = s
	return b
}

// Tags appends classification tags.
func (b *Builder) Tags(tags ...string) *Builder {
	for _, t := range tags {
		if !slices.Contains(b.desc.Tags, t) {
			b.desc.Tags = append(b.desc.Tags, t)
		}
	}
	return b
}

// AlternateCode records an alternate code for the field.
func (b *Builder) AlternateCode(key, code string) *Builder {
	if b.desc.AlternateCodes == nil {
		b.desc.AlternateCodes = make(map[string]string)
	}
	b.desc.AlternateCodes[key] = code
	return b
}

// Values sets the enum values. Their order defines the persisted ordinals.
func (b *Builder) Values(values ...string) *Builder {
	b.desc.EnumValues = append(b.desc.EnumValues, values...)
	return b
}

// Descriptor validates and returns the field descriptor.
func (b *Builder) Descriptor() *Descriptor {
	d := b.desc
	if d.Err != nil {
		return d
	}
	var errs []error
	if d.ID <= 0 {
		errs = append(errs, fmt.Errorf("field %q: id must be positive, got %d", d.Name, d.ID))
	}
	if strings.TrimSpace(d.Name) == "" {
		errs = append(errs, fmt.Errorf("field %d: name is required", d.ID))
	}
	if !d.Type.Valid() {
		errs = append(errs, fmt.Errorf("field %q: invalid type %s", d.Name, d.Type))
	}
	if d.Size < 0 {
		errs = append(errs, fmt.Errorf("field %q: negative size %d", d.Name, d.Size))
	}
	if d.Type.IsEnum() {
		if len(d.EnumValues) == 0 {
			errs = append(errs, fmt.Errorf("field %q: enum requires at least one value", d.Name))
		}
		seen := make(map[string]struct{}, len(d.EnumValues))
		for _, v := range d.EnumValues {
			if _, ok := seen[v]; ok {
				errs = append(errs, fmt.Errorf("field %q: duplicate enum value %q", d.Name, v))
			}
			seen[v] = struct{}{}
		}
	}
	d.Err = errors.Join(errs...)
	return d
}
