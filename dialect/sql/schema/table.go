package schema

import (
	"fmt"
	"strings"

	"github.com/syssam/versa/schema/field"
)

// Table describes a table in the storage layout.
type Table struct {
	Name        string
	Columns     []*Column
	columns     map[string]*Column
	Indexes     []*Index
	PrimaryKey  []*Column
	ForeignKeys []*ForeignKey
	kind        tableKind
}

// tableKind tells how the save engine writes into a table.
type tableKind uint8

const (
	kindOther tableKind = iota
	kindOverview
	kindLive
	kindBinding
	kindValue
	kindCollection
	kindProjection
)

// NewTable returns a new table with the given name.
func NewTable(name string) *Table {
	return &Table{
		Name:    name,
		columns: make(map[string]*Column),
	}
}

// AddColumn adds a new column to the table.
func (t *Table) AddColumn(c *Column) *Table {
	if t.columns == nil {
		t.columns = make(map[string]*Column)
	}
	t.columns[c.Name] = c
	t.Columns = append(t.Columns, c)
	return t
}

// AddPrimary adds a new column to the primary key. The column is also
// added to the table columns when it is not there yet.
func (t *Table) AddPrimary(c *Column) *Table {
	if _, ok := t.Column(c.Name); !ok {
		t.AddColumn(c)
	}
	t.PrimaryKey = append(t.PrimaryKey, c)
	return t
}

// AddIndex creates and adds a new index to the table from the given column names.
func (t *Table) AddIndex(name string, unique bool, columns ...string) *Table {
	idx := &Index{Name: name, Unique: unique}
	for _, n := range columns {
		c, ok := t.Column(n)
		if !ok {
			c = &Column{Name: n}
		}
		idx.Columns = append(idx.Columns, c)
	}
	t.Indexes = append(t.Indexes, idx)
	return t
}

// AddForeignKey adds a foreign key on the given columns that references
// the primary key of ref.
func (t *Table) AddForeignKey(symbol string, ref *Table, onDelete ReferenceOption, columns ...string) *Table {
	fk := &ForeignKey{
		Symbol:     symbol,
		RefTable:   ref,
		RefColumns: ref.PrimaryKey,
		OnDelete:   onDelete,
	}
	for _, n := range columns {
		c, ok := t.Column(n)
		if !ok {
			c = &Column{Name: n}
		}
		fk.Columns = append(fk.Columns, c)
	}
	t.ForeignKeys = append(t.ForeignKeys, fk)
	return t
}

// Column returns the column with the given name.
func (t *Table) Column(name string) (*Column, bool) {
	if c, ok := t.columns[name]; ok {
		return c, true
	}
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// HasColumn reports if the table has a column with the given name.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.Column(name)
	return ok
}

// ColumnNames returns the column names in declaration order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// PrimaryKeyNames returns the names of the primary key columns.
func (t *Table) PrimaryKeyNames() []string {
	names := make([]string, len(t.PrimaryKey))
	for i, c := range t.PrimaryKey {
		names[i] = c.Name
	}
	return names
}

// Column describes a table column. Type is the logical value type and is
// mapped to a native column type by a Provider.
type Column struct {
	Name     string
	Type     field.Type
	Size     int // max size for string columns, 0 means unbounded
	Nullable bool
	Default  any
	Unique   bool
}

// String implements the fmt.Stringer interface.
func (c *Column) String() string {
	return fmt.Sprintf("%s %s", c.Name, c.Type)
}

// Index describes a table index.
type Index struct {
	Name    string
	Unique  bool
	Columns []*Column
}

// ColumnNames returns the names of the index columns.
func (i *Index) ColumnNames() []string {
	names := make([]string, len(i.Columns))
	for j, c := range i.Columns {
		names[j] = c.Name
	}
	return names
}

// ReferenceOption for constraint actions.
type ReferenceOption string

// Reference options.
const (
	NoAction ReferenceOption = "NO ACTION"
	Cascade  ReferenceOption = "CASCADE"
)

// ForeignKey describes a foreign-key constraint.
type ForeignKey struct {
	Symbol     string
	Columns    []*Column
	RefTable   *Table
	RefColumns []*Column
	OnDelete   ReferenceOption
}

// columnList joins quoted column names with commas.
func columnList(names []string) string {
	return strings.Join(names, ", ")
}

func columnNames(cs []*Column) []string {
	names := make([]string, len(cs))
	for i, c := range cs {
		names[i] = c.Name
	}
	return names
}
