package gen

import (
	"github.com/dave/jennifer/jen"

	"github.com/syssam/versa/schema/field"
)

const (
	entityPkg = "github.com/syssam/versa/entity"
	fieldPkg  = "github.com/syssam/versa/schema/field"
	schemaPkg = "github.com/syssam/versa/schema"
	uuidPkg   = "github.com/google/uuid"
)

// typeConstants maps scalar field types to their constant in package field.
var typeConstants = map[field.Type]string{
	field.TypeBool:          "TypeBool",
	field.TypeShort:         "TypeShort",
	field.TypeInt:           "TypeInt",
	field.TypeLong:          "TypeLong",
	field.TypeFloat:         "TypeFloat",
	field.TypeDouble:        "TypeDouble",
	field.TypeString:        "TypeString",
	field.TypeUUID:          "TypeUUID",
	field.TypeBlob:          "TypeBlob",
	field.TypeDate:          "TypeDate",
	field.TypeDateTime:      "TypeDateTime",
	field.TypeZonedDateTime: "TypeZonedDateTime",
	field.TypeTime:          "TypeTime",
	field.TypeDuration:      "TypeDuration",
	field.TypePeriod:        "TypePeriod",
	field.TypeYearMonth:     "TypeYearMonth",
	field.TypeMonthDay:      "TypeMonthDay",
	field.TypeEnum:          "TypeEnum",
	field.TypeEnumString:    "TypeEnumString",
	field.TypeEntity:        "TypeEntity",
}

// typeConstant returns the qualified constant of t, e.g. field.TypeStringCollection.
func typeConstant(t field.Type) jen.Code {
	name := typeConstants[t.Elem()]
	if t.IsCollection() {
		name += "Collection"
	}
	return jen.Qual(fieldPkg, name)
}

// goType returns the Go type an entity.Value of type t holds.
func goType(t field.Type) jen.Code {
	if t.IsCollection() {
		return jen.Index().Add(goType(t.Elem()))
	}
	switch t {
	case field.TypeBool:
		return jen.Bool()
	case field.TypeShort:
		return jen.Int16()
	case field.TypeInt:
		return jen.Int32()
	case field.TypeLong:
		return jen.Int64()
	case field.TypeFloat:
		return jen.Float32()
	case field.TypeDouble:
		return jen.Float64()
	case field.TypeUUID:
		return jen.Qual(uuidPkg, "UUID")
	case field.TypeBlob:
		return jen.Index().Byte()
	case field.TypeDate, field.TypeDateTime, field.TypeZonedDateTime:
		return jen.Qual("time", "Time")
	case field.TypeTime:
		return jen.Qual(entityPkg, "TimeOfDay")
	case field.TypeDuration:
		return jen.Qual("time", "Duration")
	case field.TypePeriod:
		return jen.Qual(entityPkg, "Period")
	case field.TypeYearMonth:
		return jen.Qual(entityPkg, "YearMonth")
	case field.TypeMonthDay:
		return jen.Qual(entityPkg, "MonthDay")
	case field.TypeEntity:
		return jen.Op("*").Qual(entityPkg, "Instance")
	default:
		// string, enum and enum_string
		return jen.String()
	}
}

// descriptor returns the field.New(...) builder chain recreating d.
func descriptor(d *field.Descriptor) *jen.Statement {
	s := jen.Qual(fieldPkg, "New").Call(typeConstant(d.Type), jen.Lit(int(d.ID)), jen.Lit(d.Name))
	if d.Size > 0 {
		s.Dot("Size").Call(jen.Lit(d.Size))
	}
	if d.Description != "" {
		s.Dot("Description").Call(jen.Lit(d.Description))
	}
	if len(d.Tags) > 0 {
		s.Dot("Tags").Call(lits(d.Tags)...)
	}
	if len(d.EnumValues) > 0 {
		s.Dot("Values").Call(lits(d.EnumValues)...)
	}
	for _, k := range sortedKeys(d.AlternateCodes) {
		s.Dot("AlternateCode").Call(jen.Lit(k), jen.Lit(d.AlternateCodes[k]))
	}
	return s.Dot("Descriptor").Call()
}

func lits(ss []string) []jen.Code {
	out := make([]jen.Code, len(ss))
	for i, s := range ss {
		out[i] = jen.Lit(s)
	}
	return out
}
