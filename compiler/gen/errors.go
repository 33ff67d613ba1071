// Package gen generates typed Go wrappers and registration code from an
// entity catalog.
package gen

import (
	"errors"
	"fmt"
)

// Sentinels matched by errors.Is against an *Error of the same Kind.
var (
	ErrInvalidCatalog   = errors.New("gen: invalid catalog")
	ErrMissingConfig    = errors.New("gen: invalid configuration")
	ErrGenerationFailed = errors.New("gen: generation failed")
)

// Kind tells which stage of a Run failed.
type Kind uint8

const (
	// KindCatalog marks a catalog that cannot be turned into Go code.
	KindCatalog Kind = iota + 1
	// KindConfig marks an invalid option.
	KindConfig
	// KindOutput marks a failure to render, format, write or prune a file.
	KindOutput
)

// Error is the error returned by the generator.
//
// Subject names what failed: "type" or "type.field" for KindCatalog, the
// option name for KindConfig and the file for KindOutput. Phase is only
// set for KindOutput.
type Error struct {
	Kind    Kind
	Subject string
	Phase   string
	Msg     string
	Err     error
}

func (e *Error) Error() string {
	head := map[Kind]string{KindCatalog: "catalog", KindConfig: "config", KindOutput: "output"}[e.Kind]
	if e.Phase != "" {
		head += " " + e.Phase
	}
	if e.Subject != "" {
		head += " " + e.Subject
	}
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("gen: %s: %s: %v", head, e.Msg, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("gen: %s: %v", head, e.Err)
	default:
		return fmt.Sprintf("gen: %s: %s", head, e.Msg)
	}
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	switch target {
	case ErrInvalidCatalog:
		return e.Kind == KindCatalog
	case ErrMissingConfig:
		return e.Kind == KindConfig
	case ErrGenerationFailed:
		return e.Kind == KindOutput
	}
	return false
}

func catalogError(typ, field, msg string, err error) error {
	subject := typ
	if field != "" {
		subject += "." + field
	}
	return &Error{Kind: KindCatalog, Subject: subject, Msg: msg, Err: err}
}

func configError(option string, value any, msg string) error {
	if value != nil {
		msg = fmt.Sprintf("%s (got %v)", msg, value)
	}
	return &Error{Kind: KindConfig, Subject: option, Msg: msg}
}

func outputError(phase, file, msg string, err error) error {
	return &Error{Kind: KindOutput, Subject: file, Phase: phase, Msg: msg, Err: err}
}

func isKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}

// IsCatalogError reports if err was caused by the catalog.
func IsCatalogError(err error) bool { return isKind(err, KindCatalog) }

// IsConfigError reports if err was caused by an invalid option.
func IsConfigError(err error) bool { return isKind(err, KindConfig) }

// IsGenerationError reports if err was raised while producing files.
func IsGenerationError(err error) bool { return isKind(err, KindOutput) }
