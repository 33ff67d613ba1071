// Package catalog loads entity type definitions from YAML and registers
// them with a schema.Registry.
//
//	version: 1
//	fields:
//	  - {id: 1, name: name, type: string, size: 64}
//	  - {id: 2, name: state, type: enum, values: [new, done]}
//	  - {id: 3, name: address, type: entity}
//	entity_types:
//	  - {id: 1, name: customer, fields: [name, state, address], projection: customer_view}
//	  - {id: 2, name: vip, parents: [customer]}
package catalog

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/syssam/versa/schema"
	"github.com/syssam/versa/schema/field"
)

type Catalog struct {
	Version     int          `yaml:"version"`
	Fields      []Field      `yaml:"fields"`
	EntityTypes []EntityType `yaml:"entity_types"`

	fieldIndex  map[string]*Field
	entityIndex map[string]*EntityType
}

type Field struct {
	ID             int32             `yaml:"id"`
	Name           string            `yaml:"name"`
	Type           string            `yaml:"type"`
	Size           int               `yaml:"size"`
	Description    string            `yaml:"description"`
	Tags           []string          `yaml:"tags"`
	AlternateCodes map[string]string `yaml:"alternate_codes"`
	Values         []string          `yaml:"values"`
}

type EntityType struct {
	ID         int32    `yaml:"id"`
	Name       string   `yaml:"name"`
	Parents    []string `yaml:"parents"`
	Fields     []string `yaml:"fields"`
	Projection string   `yaml:"projection"`
}

// Load reads and validates the catalog at path.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a catalog document.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}
	return &c, nil
}

// Validate checks the catalog for structural errors and builds its indexes.
func (c *Catalog) Validate() error {
	if c.Version != 1 {
		return fmt.Errorf("unsupported version: %d", c.Version)
	}
	if len(c.EntityTypes) == 0 {
		return fmt.Errorf("at least one entity type is required")
	}

	c.fieldIndex = make(map[string]*Field)
	fieldIDs := make(map[int32]string)
	for i := range c.Fields {
		f := &c.Fields[i]
		if strings.TrimSpace(f.Name) == "" {
			return fmt.Errorf("field %d name is required", i)
		}
		key := strings.ToLower(f.Name)
		if _, exists := c.fieldIndex[key]; exists {
			return fmt.Errorf("duplicate field name: %s", f.Name)
		}
		if prev, exists := fieldIDs[f.ID]; exists {
			return fmt.Errorf("fields %s and %s share id %d", prev, f.Name, f.ID)
		}
		d := f.Descriptor()
		if d.Err != nil {
			return d.Err
		}
		c.fieldIndex[key] = f
		fieldIDs[f.ID] = f.Name
	}

	c.entityIndex = make(map[string]*EntityType)
	entityIDs := make(map[int32]string)
	for i := range c.EntityTypes {
		e := &c.EntityTypes[i]
		if strings.TrimSpace(e.Name) == "" {
			return fmt.Errorf("entity type %d name is required", i)
		}
		if e.ID <= 0 {
			return fmt.Errorf("entity type %s id must be positive", e.Name)
		}
		key := strings.ToLower(e.Name)
		if _, exists := c.entityIndex[key]; exists {
			return fmt.Errorf("duplicate entity type name: %s", e.Name)
		}
		if prev, exists := entityIDs[e.ID]; exists {
			return fmt.Errorf("entity types %s and %s share id %d", prev, e.Name, e.ID)
		}
		c.entityIndex[key] = e
		entityIDs[e.ID] = e.Name
	}

	for _, e := range c.EntityTypes {
		for _, name := range e.Fields {
			if _, ok := c.fieldIndex[strings.ToLower(name)]; !ok {
				return fmt.Errorf("entity type %s references unknown field: %s", e.Name, name)
			}
		}
		for _, name := range e.Parents {
			if _, ok := c.entityIndex[strings.ToLower(name)]; !ok {
				return fmt.Errorf("entity type %s references unknown parent: %s", e.Name, name)
			}
		}
	}
	return nil
}

// Descriptor builds the field descriptor. Errors are reported in Err.
func (f *Field) Descriptor() *field.Descriptor {
	t, err := field.ParseType(f.Type)
	if err != nil {
		return &field.Descriptor{ID: f.ID, Name: f.Name, Err: fmt.Errorf("field %s: %w", f.Name, err)}
	}
	b := field.New(t, f.ID, f.Name).
		Size(f.Size).
		Description(f.Description).
		Tags(f.Tags...).
		Values(f.Values...)
	for k, v := range f.AlternateCodes {
		b.AlternateCode(k, v)
	}
	return b.Descriptor()
}

// FieldByName returns the field definition with the given name.
func (c *Catalog) FieldByName(name string) (*Field, bool) {
	f, ok := c.fieldIndex[strings.ToLower(name)]
	return f, ok
}

// EntityTypeByName returns the entity type definition with the given name.
func (c *Catalog) EntityTypeByName(name string) (*EntityType, bool) {
	e, ok := c.entityIndex[strings.ToLower(name)]
	return e, ok
}

// EntityType converts a catalog entry into a registry entity type.
func (c *Catalog) EntityType(e *EntityType) schema.EntityType {
	t := schema.EntityType{ID: e.ID, Name: e.Name, Projection: e.Projection}
	for _, name := range e.Parents {
		if p, ok := c.EntityTypeByName(name); ok {
			t.Parents = append(t.Parents, p.ID)
		}
	}
	for _, name := range e.Fields {
		if f, ok := c.FieldByName(name); ok {
			t.Fields = append(t.Fields, f.Descriptor())
		}
	}
	return t
}

// Register registers every entity type of the catalog with r.
func (c *Catalog) Register(r *schema.Registry) error {
	for i := range c.EntityTypes {
		if err := r.RegisterEntityType(c.EntityType(&c.EntityTypes[i])); err != nil {
			return fmt.Errorf("registering %s: %w", c.EntityTypes[i].Name, err)
		}
	}
	return nil
}
