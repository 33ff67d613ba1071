package gen

import (
	"fmt"
	"go/token"
	"slices"
	"strings"

	"github.com/go-openapi/inflect"

	"github.com/syssam/versa/schema/catalog"
	"github.com/syssam/versa/schema/field"
)

type (
	// Graph holds the entity types of one catalog in catalog order.
	Graph struct {
		*Config
		Nodes []*Type
	}

	// Type is one entity type to generate a wrapper for.
	Type struct {
		ID         int32
		Name       string // catalog name
		GoName     string
		Parents    []*Type
		Fields     []*Field // own fields, in catalog order
		Projection string
		children   []*Type
	}

	// Field is one field of an entity type.
	Field struct {
		ID          int32
		Name        string // catalog name
		GoName      string
		Type        field.Type
		Description string
		Descriptor  *field.Descriptor
	}
)

// reserved are the selectors promoted from the embedded *entity.Instance.
var reserved = []string{
	"Key", "Set", "Unset", "Value", "FieldIDs", "Len", "Children", "String",
	"Overview", "ID", "EditVersion", "EntityID", "Live", "CreatedAt", "LastEdit", "Instance",
}

// NewGraph builds the generation graph of a validated catalog.
func NewGraph(c *Config, cat *catalog.Catalog) (*Graph, error) {
	if c == nil {
		return nil, configError("Config", nil, "missing config")
	}
	g := &Graph{Config: c}
	byName := make(map[string]*Type)
	goNames := make(map[string]string)
	for i := range cat.EntityTypes {
		e := &cat.EntityTypes[i]
		t := &Type{ID: e.ID, Name: e.Name, GoName: GoName(e.Name), Projection: e.Projection}
		if !token.IsIdentifier(t.GoName) {
			return nil, catalogError(e.Name, "", fmt.Sprintf("cannot derive a Go name (got %q)", t.GoName), nil)
		}
		if prev, ok := goNames[t.GoName]; ok {
			return nil, catalogError(e.Name, "", fmt.Sprintf("Go name %s is also used by %s", t.GoName, prev), nil)
		}
		goNames[t.GoName] = e.Name
		for _, name := range e.Fields {
			cf, ok := cat.FieldByName(name)
			if !ok {
				return nil, catalogError(e.Name, name, "unknown field", nil)
			}
			f, err := newField(cf)
			if err != nil {
				return nil, catalogError(e.Name, name, "", err)
			}
			t.Fields = append(t.Fields, f)
		}
		byName[strings.ToLower(e.Name)] = t
		g.Nodes = append(g.Nodes, t)
	}
	for i, t := range g.Nodes {
		for _, name := range cat.EntityTypes[i].Parents {
			p, ok := byName[strings.ToLower(name)]
			if !ok {
				return nil, catalogError(t.Name, "", fmt.Sprintf("unknown parent %s", name), nil)
			}
			t.Parents = append(t.Parents, p)
			p.children = append(p.children, t)
		}
	}
	for _, t := range g.Nodes {
		seen := make(map[string]string)
		for _, f := range t.AllFields() {
			if prev, ok := seen[f.GoName]; ok && prev != f.Name {
				return nil, catalogError(t.Name, f.Name, fmt.Sprintf("Go name %s is also used by field %s", f.GoName, prev), nil)
			}
			seen[f.GoName] = f.Name
		}
	}
	return g, nil
}

func newField(cf *catalog.Field) (*Field, error) {
	d := cf.Descriptor()
	if d.Err != nil {
		return nil, d.Err
	}
	name := GoName(cf.Name)
	if slices.Contains(reserved, name) || strings.HasPrefix(name, "Set") {
		name += "Field"
	}
	if !token.IsIdentifier(name) {
		return nil, fmt.Errorf("cannot derive a Go name (got %q)", name)
	}
	return &Field{ID: d.ID, Name: d.Name, GoName: name, Type: d.Type, Description: d.Description, Descriptor: d}, nil
}

// initialisms are kept upper case in Go names.
var initialisms = map[string]string{
	"Id": "ID", "Uuid": "UUID", "Url": "URL", "Uri": "URI", "Api": "API", "Http": "HTTP", "Sql": "SQL", "Json": "JSON",
}

// GoName converts a catalog name to an exported Go identifier, e.g.
// "customer_id" to "CustomerID".
func GoName(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '-', '.', ' ':
			return '_'
		}
		return r
	}, strings.TrimSpace(s))
	parts := strings.Split(inflect.Underscore(s), "_")
	var b strings.Builder
	for _, p := range parts {
		if p == "" {
			continue
		}
		w := inflect.Capitalize(p)
		if up, ok := initialisms[w]; ok {
			w = up
		}
		b.WriteString(w)
	}
	out := b.String()
	if out != "" && out[0] >= '0' && out[0] <= '9' {
		out = "F" + out
	}
	return out
}

// AllFields returns the own and inherited fields of t ordered by id.
func (t *Type) AllFields() []*Field {
	set := make(map[int32]*Field)
	var walk func(*Type)
	walk = func(n *Type) {
		for _, f := range n.Fields {
			set[f.ID] = f
		}
		for _, p := range n.Parents {
			walk(p)
		}
	}
	walk(t)
	fs := make([]*Field, 0, len(set))
	for _, f := range set {
		fs = append(fs, f)
	}
	slices.SortFunc(fs, func(a, b *Field) int { return int(a.ID) - int(b.ID) })
	return fs
}

// Closure returns the ids of t and all of its subtypes, ordered ascending.
func (t *Type) Closure() []int32 {
	seen := map[int32]bool{}
	var walk func(*Type)
	walk = func(n *Type) {
		if seen[n.ID] {
			return
		}
		seen[n.ID] = true
		for _, c := range n.children {
			walk(c)
		}
	}
	walk(t)
	ids := make([]int32, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Receiver returns the receiver name of the generated wrapper methods.
func (t *Type) Receiver() string {
	r := strings.ToLower(t.GoName[:1])
	if token.Lookup(r).IsKeyword() {
		r += "_"
	}
	return r
}

// File returns the name of the file holding the wrapper of t.
func (t *Type) File() string {
	return inflect.Underscore(t.GoName) + ".go"
}
