package versa

import (
	"errors"
	"fmt"
	"strings"
)

// Standard sentinel errors. Every typed error below reports true for
// errors.Is against its sentinel.
var (
	// ErrRegistrationConflict is returned when an entity type or field is
	// re-registered with a different shape.
	ErrRegistrationConflict = errors.New("versa: registration conflict")

	// ErrSchema is returned when DDL fails or a dialect lacks a capability.
	ErrSchema = errors.New("versa: schema error")

	// ErrTypeMismatch is returned when a value does not match its field type.
	ErrTypeMismatch = errors.New("versa: type mismatch")

	// ErrConnection is returned for transient I/O failures.
	ErrConnection = errors.New("versa: connection error")

	// ErrDanglingReference is returned when a binding points to an
	// entity type that has no registered factory.
	ErrDanglingReference = errors.New("versa: dangling reference")

	// ErrCycleDetected is returned when an object graph is not a DAG.
	ErrCycleDetected = errors.New("versa: cycle detected")

	// ErrUnknownEntity is returned when an entity type id is not registered.
	ErrUnknownEntity = errors.New("versa: unknown entity type")
)

// RegistrationConflictError represents a conflicting re-registration.
type RegistrationConflictError struct {
	Kind   string // "entity" or "field"
	ID     int32
	Reason string
}

// Error returns the error string.
func (e *RegistrationConflictError) Error() string {
	return fmt.Sprintf("versa: conflicting registration of %s %d: %s", e.Kind, e.ID, e.Reason)
}

// Is reports whether the target error matches ErrRegistrationConflict.
func (e *RegistrationConflictError) Is(err error) bool {
	return err == ErrRegistrationConflict
}

// NewRegistrationConflictError returns a new RegistrationConflictError.
func NewRegistrationConflictError(kind string, id int32, reason string) *RegistrationConflictError {
	return &RegistrationConflictError{Kind: kind, ID: id, Reason: reason}
}

// IsRegistrationConflict returns true if the error is a RegistrationConflictError.
func IsRegistrationConflict(err error) bool {
	return errors.Is(err, ErrRegistrationConflict)
}

// SchemaError wraps a DDL failure or a missing dialect capability.
type SchemaError struct {
	Table string // Table or procedure the operation targeted
	Op    string // e.g. "create table", "add column", "create procedure"
	Err   error
}

// Error returns the error string.
func (e *SchemaError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("versa: schema %s %s: %v", e.Op, e.Table, e.Err)
	}
	return fmt.Sprintf("versa: schema %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *SchemaError) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches ErrSchema.
func (e *SchemaError) Is(err error) bool {
	return err == ErrSchema
}

// NewSchemaError returns a new SchemaError.
func NewSchemaError(op, table string, err error) *SchemaError {
	return &SchemaError{Op: op, Table: table, Err: err}
}

// IsSchemaError returns true if the error is a SchemaError.
func IsSchemaError(err error) bool {
	return errors.Is(err, ErrSchema)
}

// TypeMismatchError is returned when a value does not match the type
// its field was registered with.
type TypeMismatchError struct {
	FieldID int32
	Want    string // registered field type
	Got     string // offending value type
}

// Error returns the error string.
func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("versa: field %d expects %s, got %s", e.FieldID, e.Want, e.Got)
}

// Is reports whether the target error matches ErrTypeMismatch.
func (e *TypeMismatchError) Is(err error) bool {
	return err == ErrTypeMismatch
}

// NewTypeMismatchError returns a new TypeMismatchError.
func NewTypeMismatchError(fieldID int32, want, got string) *TypeMismatchError {
	return &TypeMismatchError{FieldID: fieldID, Want: want, Got: got}
}

// IsTypeMismatch returns true if the error is a TypeMismatchError.
func IsTypeMismatch(err error) bool {
	return errors.Is(err, ErrTypeMismatch)
}

// ConnectionError wraps a transient driver failure. Callers may retry.
type ConnectionError struct {
	Op  string
	Err error
}

// Error returns the error string.
func (e *ConnectionError) Error() string {
	return fmt.Sprintf("versa: connection failed during %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches ErrConnection.
func (e *ConnectionError) Is(err error) bool {
	return err == ErrConnection
}

// Retryable always reports true.
func (e *ConnectionError) Retryable() bool { return true }

// NewConnectionError returns a new ConnectionError.
func NewConnectionError(op string, err error) *ConnectionError {
	return &ConnectionError{Op: op, Err: err}
}

// IsConnectionError returns true if the error is a ConnectionError.
func IsConnectionError(err error) bool {
	return errors.Is(err, ErrConnection)
}

// DanglingRef describes one binding whose child could not be materialized.
// A reference without parent is a requested root of an unregistered type.
type DanglingRef struct {
	ParentID          string
	ParentEditVersion int32
	FieldID           int32
	ChildID           string
	ChildEditVersion  int32
	EntityTypeID      int32 // 0 when the child version does not exist
}

// DanglingReferenceError lists bindings that point to unregistered entity types.
type DanglingReferenceError struct {
	Refs []DanglingRef
}

// Error returns the error string.
func (e *DanglingReferenceError) Error() string {
	var sb strings.Builder
	sb.WriteString("versa: dangling references:")
	for _, r := range e.Refs {
		sb.WriteString(" [")
		if r.ParentID != "" {
			fmt.Fprintf(&sb, "parent=%s@%d field=%d ", r.ParentID, r.ParentEditVersion, r.FieldID)
		}
		if r.ChildID != "" {
			fmt.Fprintf(&sb, "child=%s@%d ", r.ChildID, r.ChildEditVersion)
		}
		fmt.Fprintf(&sb, "entity=%d]", r.EntityTypeID)
	}
	return sb.String()
}

// Is reports whether the target error matches ErrDanglingReference.
func (e *DanglingReferenceError) Is(err error) bool {
	return err == ErrDanglingReference
}

// IsDanglingReference returns true if the error is a DanglingReferenceError.
func IsDanglingReference(err error) bool {
	return errors.Is(err, ErrDanglingReference)
}

// CycleDetectedError is returned when a graph revisits a node on its own path.
type CycleDetectedError struct {
	Path []string // composite keys from the first revisited node back to itself
}

// Error returns the error string.
func (e *CycleDetectedError) Error() string {
	return fmt.Sprintf("versa: object graph contains a cycle: %s", strings.Join(e.Path, " -> "))
}

// Is reports whether the target error matches ErrCycleDetected.
func (e *CycleDetectedError) Is(err error) bool {
	return err == ErrCycleDetected
}

// IsCycleDetected returns true if the error is a CycleDetectedError.
func IsCycleDetected(err error) bool {
	return errors.Is(err, ErrCycleDetected)
}

// SaveError identifies the phase and batch of a failed save.
type SaveError struct {
	Phase string // e.g. "overview", "values", "bindings"
	Batch int
	Err   error
}

// Error returns the error string.
func (e *SaveError) Error() string {
	return fmt.Sprintf("versa: save batch %d (%s): %v", e.Batch, e.Phase, e.Err)
}

// Unwrap returns the underlying error.
func (e *SaveError) Unwrap() error {
	return e.Err
}

// IsSaveError returns true if the error is a SaveError.
func IsSaveError(err error) bool {
	if err == nil {
		return false
	}
	var e *SaveError
	return errors.As(err, &e)
}

// LoadError identifies the phase of a failed load.
type LoadError struct {
	Phase string // e.g. "resolve", "overview", "values", "bindings"
	Err   error
}

// Error returns the error string.
func (e *LoadError) Error() string {
	return fmt.Sprintf("versa: load (%s): %v", e.Phase, e.Err)
}

// Unwrap returns the underlying error.
func (e *LoadError) Unwrap() error {
	return e.Err
}

// IsLoadError returns true if the error is a LoadError.
func IsLoadError(err error) bool {
	if err == nil {
		return false
	}
	var e *LoadError
	return errors.As(err, &e)
}

// AggregateError represents multiple errors collected during an operation.
type AggregateError struct {
	Errors []error
}

// Error returns the error string.
func (e *AggregateError) Error() string {
	if len(e.Errors) == 0 {
		return "versa: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var sb strings.Builder
	sb.WriteString("versa: multiple errors:")
	for i, err := range e.Errors {
		fmt.Fprintf(&sb, "\n  [%d] %v", i+1, err)
	}
	return sb.String()
}

// Unwrap returns the collected errors.
func (e *AggregateError) Unwrap() []error {
	return e.Errors
}

// NewAggregateError returns a new AggregateError if there are errors,
// otherwise returns nil.
func NewAggregateError(errs ...error) error {
	var filtered []error
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &AggregateError{Errors: filtered}
}
