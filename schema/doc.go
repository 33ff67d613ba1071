// Package schema holds the Registry: the process-wide mapping from stable
// numeric ids to entity types and their fields.
//
// Entity types are registered explicitly at startup, each with its id, a
// factory and its field list:
//
//	reg := schema.NewRegistry()
//	reg.MustRegisterEntityType(schema.EntityType{
//	    ID:   1,
//	    Name: "animal",
//	    Fields: []*field.Descriptor{
//	        field.String(1, "name").Size(64).Descriptor(),
//	    },
//	})
//	reg.MustRegisterEntityType(schema.EntityType{
//	    ID:      2,
//	    Name:    "dog",
//	    Parents: []int32{1},
//	    Fields: []*field.Descriptor{
//	        field.EnumString(2, "breed", "beagle", "collie").Descriptor(),
//	    },
//	})
//
// A subtype inherits the fields of its ancestors, and InheritanceClosure
// expands a type to itself plus every transitive subtype, so loading all
// "animal" instances also returns dogs.
//
// Registration is idempotent. Registering an id again with a different
// shape fails with a versa.RegistrationConflictError. Nothing is ever
// removed from a Registry.
package schema
