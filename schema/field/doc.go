// Package field provides the closed set of persistable field types and
// fluent builders for field descriptors.
//
// Field ids are stable numeric identifiers chosen by the application. They
// are persisted in every value row, so an id must never be reused for a
// field of a different type:
//
//	name := field.String(101, "name").Size(120).Descriptor()
//	tags := field.Collection(field.TypeString, 102, "tags").Descriptor()
//	status := field.Enum(103, "status", "draft", "active", "archived").Descriptor()
//	address := field.Entity(104, "address").Descriptor()
//
// # Field Types
//
// Scalars: bool, short, int, long, float, double, string, uuid, blob, date,
// datetime, zoned_datetime, time, duration, period, year_month, month_day.
// Every scalar except blob has a collection counterpart. Enum fields are
// persisted by ordinal, enum_string fields by name. Entity and entity
// collection fields reference nested instances and are persisted as
// bindings rather than values.
//
// # Metadata
//
//	field.String(105, "email").
//	    Tags("contact", "pii").
//	    AlternateCode("legacy", "EMAIL_ADDR").
//	    Description("primary email address")
package field
