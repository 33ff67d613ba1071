// Package versa maps typed domain objects onto a versioned
// entity-attribute-value schema shared by all entity types.
//
// Every persisted object version is identified by a composite key
// (id, edit version). An overview row records the entity type of each
// version; every populated field becomes one row in the table shared by
// all fields of the same field type; references between objects are
// recorded as bindings.
//
// # Packages
//
//   - schema/field: the closed set of field types and field descriptors
//   - schema: the entity and field registry
//   - entity: in-memory instances and the tagged-union Value type
//   - dialect/sql/schema: the schema manager and the dialect Provider interface
//   - dialect/sql/syntax: MySQL, PostgreSQL, Oracle, SQL Server and SQLite providers
//   - dialect/sql/sqlgraph: the Save and Load engines
//   - store: the Client facade
//
// # Usage
//
//	reg := schema.NewRegistry()
//	name := field.String(10, "name").Descriptor()
//	if err := reg.RegisterEntityType(schema.EntityType{ID: 1, Name: "customer", Fields: []*field.Descriptor{name}}); err != nil {
//	    log.Fatal(err)
//	}
//	client, err := store.Open(dialect.SQLite, "file:app.db?_pragma=foreign_keys(1)", reg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := client.EnsureSchema(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	c := entity.New(1)
//	c.Set(name.ID, entity.String("hello"))
//	if _, err := client.Save(ctx, c); err != nil {
//	    log.Fatal(err)
//	}
//	loaded, err := client.LoadByIDs(ctx, 1, c.Key().ID)
//
// The errors returned by the engines are typed; see errors.go.
package versa
