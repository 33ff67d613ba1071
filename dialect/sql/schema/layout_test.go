package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/versa/schema/field"
)

func TestValueTableName(t *testing.T) {
	assert.Equal(t, "versa_int", ValueTableName(field.TypeInt))
	assert.Equal(t, "versa_int_coll", ValueTableName(field.TypeIntCollection))
	assert.Equal(t, "versa_zoned_datetime_coll", ValueTableName(field.TypeZonedDateTimeCollection))
	assert.Equal(t, "versa_enum_string", ValueTableName(field.TypeEnumString))
}

func TestValue(t *testing.T) {
	ov := Overview()
	scalar := Value(field.TypeDate, ov)
	assert.Equal(t, []string{IDColumn, EditVersionColumn, FieldIDColumn, ValueColumn}, scalar.ColumnNames())
	assert.Equal(t, []string{IDColumn, EditVersionColumn, FieldIDColumn}, scalar.PrimaryKeyNames())
	c, ok := scalar.Column(ValueColumn)
	require.True(t, ok)
	assert.Equal(t, field.TypeDate, c.Type)
	assert.True(t, c.Nullable)
	require.Len(t, scalar.ForeignKeys, 1)
	assert.Equal(t, Cascade, scalar.ForeignKeys[0].OnDelete)
	assert.Equal(t, OverviewTable, scalar.ForeignKeys[0].RefTable.Name)

	coll := Value(field.TypeDateCollection, ov)
	assert.Equal(t, []string{IDColumn, EditVersionColumn, FieldIDColumn, SeqColumn}, coll.PrimaryKeyNames())
	c, _ = coll.Column(ValueColumn)
	assert.Equal(t, field.TypeDate, c.Type)

	assert.NotNil(t, UpsertOf(scalar))
	assert.Nil(t, UpsertOf(coll))
}

func TestUpsertOf(t *testing.T) {
	ov := Overview()
	u := UpsertOf(LiveVersion())
	require.NotNil(t, u)
	assert.Equal(t, MaxEditVersionColumn, u.Monotonic)
	assert.Equal(t, []string{IDColumn}, u.KeyColumns())
	assert.Equal(t, []string{MaxEditVersionColumn}, u.UpdateColumns())
	assert.Equal(t, "up_versa_live_version", u.ProcedureName())

	u = UpsertOf(Binding(ov))
	require.NotNil(t, u)
	assert.Equal(t, []string{SeqColumn}, u.UpdateColumns())
	for _, tb := range Registry() {
		assert.Nil(t, UpsertOf(tb), tb.Name)
	}
}

func TestProjection(t *testing.T) {
	fields := []*field.Descriptor{
		field.String(1, "FullName").Size(64).Descriptor(),
		field.Int(2, "full name").Descriptor(),
		field.Collection(field.TypeInt, 3, "scores").Descriptor(),
		field.Blob(4, "avatar").Descriptor(),
		field.Entity(5, "address").Descriptor(),
		field.Date(6, "id").Descriptor(),
		field.Enum(7, "status", "active", "closed").Descriptor(),
	}
	tb := Projection("CustomerView", fields, Overview())
	assert.Equal(t, "customer_view", tb.Name)
	assert.True(t, IsProjection(tb))
	assert.Equal(t, []string{"id", "edit_version", "full_name", "full_name_2", "f_6_id", "status"}, tb.ColumnNames())
	c, _ := tb.Column("full_name")
	assert.Equal(t, 64, c.Size)
	assert.True(t, c.Nullable)
	require.Len(t, tb.ForeignKeys, 1)
	assert.Equal(t, "fk_customer_view", tb.ForeignKeys[0].Symbol)
}

func TestIdentifier(t *testing.T) {
	tests := []struct{ in, want string }{
		{"name", "name"},
		{"FullName", "full_name"},
		{"full-name", "full_name"},
		{"  spaced  out ", "spaced_out"},
		{"2fa", "f_2fa"},
		{"HTTPServer", "httpserver"},
		{"a_very_long_identifier_that_exceeds", "a_very_long_identifier_that_ex"},
		{"ünïcode", "n_code"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Identifier(tt.in), tt.in)
	}
}

func TestLayout(t *testing.T) {
	tables := Layout([]field.Type{field.TypeString, field.TypeEntity, field.TypeEntityCollection, field.TypeIntCollection})
	var names []string
	for _, tb := range tables {
		names = append(names, tb.Name)
	}
	assert.Equal(t, []string{
		OverviewTable, LiveVersionTable, BindingTable,
		EntityTable, FieldTable, EntityFieldTable, InheritanceTable, FieldTagTable, AlternateCodeTable, EnumTable,
		"versa_string", "versa_int_coll",
	}, names)
	res := CheckLayout(tables)
	assert.False(t, res.HasErrors(), res.String())
}

func TestLayoutAllTypes(t *testing.T) {
	tables := Layout(field.Types())
	res := CheckLayout(tables)
	assert.Empty(t, res.Errors(), res.String())
	seen := make(map[string]bool, len(tables))
	for _, tb := range tables {
		assert.False(t, seen[tb.Name], "table %s is laid out twice", tb.Name)
		seen[tb.Name] = true
	}
	assert.True(t, seen[ValueTableName(field.TypeEnum)])
	assert.True(t, seen[EnumTable])
}

func TestProcedureName(t *testing.T) {
	assert.Equal(t, "up_versa_overview", ProcedureName(OverviewTable))
	assert.Len(t, ProcedureName("a_really_long_projection_table_name"), maxIdentifier)
}
