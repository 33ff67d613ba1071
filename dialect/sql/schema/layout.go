package schema

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/syssam/versa/schema/field"
)

// Storage table names.
const (
	TablePrefix        = "versa_"
	OverviewTable      = TablePrefix + "overview"
	LiveVersionTable   = TablePrefix + "live_version"
	BindingTable       = TablePrefix + "binding"
	EntityTable        = TablePrefix + "entity"
	FieldTable         = TablePrefix + "field"
	EntityFieldTable   = TablePrefix + "entity_field"
	InheritanceTable   = TablePrefix + "entity_inheritance"
	FieldTagTable      = TablePrefix + "field_tag"
	AlternateCodeTable = TablePrefix + "field_alternate_code"
	EnumTable          = TablePrefix + "enum_value"
)

// Column names shared by the storage tables.
const (
	IDColumn                = "id"
	EditVersionColumn       = "edit_version"
	EntityIDColumn          = "entity_id"
	LiveColumn              = "live"
	CreatedAtColumn         = "created_at"
	LastEditColumn          = "last_edit"
	MaxEditVersionColumn    = "max_edit_version"
	FieldIDColumn           = "field_id"
	SeqColumn               = "seq"
	ValueColumn             = "val"
	ParentIDColumn          = "parent_id"
	ParentEditVersionColumn = "parent_edit_version"
	ChildIDColumn           = "child_id"
	ChildEditVersionColumn  = "child_edit_version"
)

// IDSize is the maximum length of instance ids.
const IDSize = 128

// nameSize bounds registry names and short strings.
const nameSize = 255

// maxIdentifier is the longest identifier accepted by every supported backend.
const maxIdentifier = 30

func idColumn(name string) *Column {
	return &Column{Name: name, Type: field.TypeString, Size: IDSize}
}

func intColumn(name string) *Column {
	return &Column{Name: name, Type: field.TypeInt}
}

// Overview returns the overview table: one row per entity version.
func Overview() *Table {
	t := NewTable(OverviewTable).
		AddPrimary(idColumn(IDColumn)).
		AddPrimary(intColumn(EditVersionColumn)).
		AddColumn(intColumn(EntityIDColumn)).
		AddColumn(&Column{Name: LiveColumn, Type: field.TypeBool}).
		AddColumn(&Column{Name: CreatedAtColumn, Type: field.TypeDateTime}).
		AddColumn(&Column{Name: LastEditColumn, Type: field.TypeDateTime})
	t.kind = kindOverview
	return t.AddIndex("ix_versa_overview_entity", false, EntityIDColumn, IDColumn)
}

// LiveVersion returns the live pointer table holding the highest saved
// edit version per id.
func LiveVersion() *Table {
	t := NewTable(LiveVersionTable).
		AddPrimary(idColumn(IDColumn)).
		AddColumn(intColumn(MaxEditVersionColumn))
	t.kind = kindLive
	return t
}

// Binding returns the table linking parent versions to child versions.
func Binding(overview *Table) *Table {
	t := NewTable(BindingTable).
		AddPrimary(idColumn(ParentIDColumn)).
		AddPrimary(intColumn(ParentEditVersionColumn)).
		AddPrimary(intColumn(FieldIDColumn)).
		AddPrimary(idColumn(ChildIDColumn)).
		AddPrimary(intColumn(ChildEditVersionColumn)).
		AddColumn(intColumn(SeqColumn))
	t.kind = kindBinding
	return t.
		AddIndex("ix_versa_binding_child", false, ChildIDColumn, ChildEditVersionColumn).
		AddForeignKey("fk_versa_binding_parent", overview, Cascade, ParentIDColumn, ParentEditVersionColumn).
		AddForeignKey("fk_versa_binding_child", overview, Cascade, ChildIDColumn, ChildEditVersionColumn)
}

// ValueTableName returns the name of the shared table storing values of
// type t, e.g. "versa_int" or "versa_int_coll".
func ValueTableName(t field.Type) string {
	name := TablePrefix + t.Elem().String()
	if t.IsCollection() {
		name += "_coll"
	}
	return name
}

// Value returns the shared value table of type t. Scalars are keyed by
// (id, edit_version, field_id) and collections add the element sequence.
func Value(t field.Type, overview *Table) *Table {
	name := ValueTableName(t)
	tb := NewTable(name).
		AddPrimary(idColumn(IDColumn)).
		AddPrimary(intColumn(EditVersionColumn)).
		AddPrimary(intColumn(FieldIDColumn))
	tb.kind = kindValue
	if t.IsCollection() {
		tb.AddPrimary(intColumn(SeqColumn))
		tb.kind = kindCollection
	}
	tb.AddColumn(&Column{Name: ValueColumn, Type: t.Elem(), Nullable: true})
	return tb.AddForeignKey("fk_"+name, overview, Cascade, IDColumn, EditVersionColumn)
}

// Registry returns the tables persisting the field and entity registry.
func Registry() []*Table {
	entity := NewTable(EntityTable).
		AddPrimary(intColumn(EntityIDColumn)).
		AddColumn(&Column{Name: "name", Type: field.TypeString, Size: nameSize})
	fld := NewTable(FieldTable).
		AddPrimary(intColumn(FieldIDColumn)).
		AddColumn(&Column{Name: "name", Type: field.TypeString, Size: nameSize}).
		AddColumn(intColumn("field_type")).
		AddColumn(&Column{Name: "description", Type: field.TypeString, Size: 1024, Nullable: true})
	return []*Table{
		entity,
		fld,
		NewTable(EntityFieldTable).
			AddPrimary(intColumn(EntityIDColumn)).
			AddPrimary(intColumn(FieldIDColumn)),
		NewTable(InheritanceTable).
			AddPrimary(intColumn("parent_id")).
			AddPrimary(intColumn("child_id")),
		NewTable(FieldTagTable).
			AddPrimary(intColumn(FieldIDColumn)).
			AddPrimary(&Column{Name: "tag", Type: field.TypeString, Size: nameSize}),
		NewTable(AlternateCodeTable).
			AddPrimary(intColumn(FieldIDColumn)).
			AddPrimary(&Column{Name: "dialect", Type: field.TypeString, Size: 64}).
			AddColumn(&Column{Name: "code", Type: field.TypeString, Size: nameSize}),
		NewTable(EnumTable).
			AddPrimary(intColumn(FieldIDColumn)).
			AddPrimary(intColumn("ordinal")).
			AddColumn(&Column{Name: "name", Type: field.TypeString, Size: nameSize}),
	}
}

// Projection returns the flattened reporting table of an entity type with
// one nullable column per flattenable field. Collections, blobs and entity
// references are skipped.
func Projection(name string, fields []*field.Descriptor, overview *Table) *Table {
	t := NewTable(Identifier(name)).
		AddPrimary(idColumn(IDColumn)).
		AddPrimary(intColumn(EditVersionColumn))
	t.kind = kindProjection
	for _, d := range fields {
		if !d.Type.Flattenable() {
			continue
		}
		col := ProjectionColumn(d)
		if t.HasColumn(col) {
			col = Identifier(fmt.Sprintf("%s_%d", col, d.ID))
		}
		t.AddColumn(&Column{Name: col, Type: d.Type, Size: d.Size, Nullable: true})
	}
	return t.AddForeignKey(Identifier("fk_"+t.Name), overview, Cascade, IDColumn, EditVersionColumn)
}

// ProjectionColumn returns the projection column name of a field.
func ProjectionColumn(d *field.Descriptor) string {
	name := Identifier(d.Name)
	switch name {
	case "", IDColumn, EditVersionColumn:
		return Identifier(fmt.Sprintf("f_%d_%s", d.ID, name))
	}
	return name
}

// Identifier converts s into a lower snake case SQL identifier that is
// valid on every supported backend.
func Identifier(s string) string {
	var (
		b    strings.Builder
		prev rune
	)
	for i, r := range s {
		switch {
		case r < unicode.MaxASCII && unicode.IsUpper(r):
			if i > 0 && prev != '_' && (unicode.IsLower(prev) || unicode.IsDigit(prev)) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
		default:
			if prev != '_' && b.Len() > 0 {
				b.WriteByte('_')
			}
			r = '_'
		}
		prev = r
	}
	out := strings.Trim(b.String(), "_")
	if out != "" && unicode.IsDigit(rune(out[0])) {
		out = "f_" + out
	}
	if len(out) > maxIdentifier {
		out = strings.TrimRight(out[:maxIdentifier], "_")
	}
	return out
}

// IsProjection reports if t was built by Projection.
func IsProjection(t *Table) bool {
	return t.kind == kindProjection
}

// UpsertOf returns the upsert the save engine writes rows of t with, or nil
// when rows of t are inserted after a delete or not written by the engine.
func UpsertOf(t *Table) *Upsert {
	switch t.kind {
	case kindOverview, kindBinding, kindValue, kindProjection:
		return NewUpsert(t)
	case kindLive:
		return &Upsert{Table: t, Monotonic: MaxEditVersionColumn}
	}
	return nil
}

// Layout returns every table required to store the given field types,
// including the overview, live pointer, binding and registry tables.
// Entity types are stored as bindings and need no value table.
func Layout(types []field.Type) []*Table {
	overview := Overview()
	tables := []*Table{overview, LiveVersion(), Binding(overview)}
	tables = append(tables, Registry()...)
	for _, t := range types {
		if t.IsEntity() || !t.Valid() {
			continue
		}
		tables = append(tables, Value(t, overview))
	}
	return tables
}
