// Package errors classifies the failures of a conversion. Every error the
// pipeline returns unwraps to one of the sentinels below, so callers can
// branch with Is or report Code without knowing the concrete type.
package errors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrMalformedDocument = errors.New("malformed document")
	ErrUnresolved        = errors.New("unresolved resource")
	ErrUnsupported       = errors.New("unsupported")
	ErrIO                = errors.New("i/o failure")
)

// MalformedDocumentError is returned when a document lacks the structure
// every conversion depends on, such as the <article> root.
type MalformedDocumentError struct {
	Reason string
	Err    error
}

func (e *MalformedDocumentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed document: %s: %v", e.Reason, e.Err)
	}
	return "malformed document: " + e.Reason
}

func (e *MalformedDocumentError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrMalformedDocument, e.Err}
	}
	return []error{ErrMalformedDocument}
}

// UnresolvedResourceError reports a reference whose target is not in the
// package. It never aborts a conversion.
type UnresolvedResourceError struct {
	Kind     string // e.g. "figure", "bibr"
	TargetID string
}

func (e *UnresolvedResourceError) Error() string {
	return fmt.Sprintf("unresolved %s reference: %s", e.Kind, e.TargetID)
}

func (e *UnresolvedResourceError) Unwrap() error { return ErrUnresolved }

// NotFoundError names a missing job, blob, article or catalog entry.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
	}
	return e.Resource + " not found"
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ValidationError rejects one input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
	}
	return "validation failed: " + e.Message
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// IOError wraps a filesystem or stream failure with the operation and
// path involved.
type IOError struct {
	Operation string // "read", "digest", "unpack", ...
	Path      string
	Err       error
}

func (e *IOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("failed to %s %s: %v", e.Operation, e.Path, e.Err)
	}
	return fmt.Sprintf("failed to %s: %v", e.Operation, e.Err)
}

func (e *IOError) Unwrap() []error { return []error{ErrIO, e.Err} }

// ParseError reports a value that could not be parsed, such as a date or
// a dimension attribute.
type ParseError struct {
	Format  string
	Path    string
	Message string
}

func (e *ParseError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("failed to parse %s at %s: %s", e.Format, e.Path, e.Message)
	}
	return fmt.Sprintf("failed to parse %s: %s", e.Format, e.Message)
}

func (e *ParseError) Unwrap() error { return ErrInvalidInput }

// UnsupportedError rejects a format or feature the converter does not
// handle.
type UnsupportedError struct {
	Feature string
	Reason  string
}

func (e *UnsupportedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("unsupported %s: %s", e.Feature, e.Reason)
	}
	return "unsupported " + e.Feature
}

func (e *UnsupportedError) Unwrap() error { return ErrUnsupported }

func NewMalformed(reason string, err error) *MalformedDocumentError {
	return &MalformedDocumentError{Reason: reason, Err: err}
}

func NewUnresolved(kind, targetID string) *UnresolvedResourceError {
	return &UnresolvedResourceError{Kind: kind, TargetID: targetID}
}

func NewNotFound(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

func NewValidation(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func NewIO(operation, path string, err error) *IOError {
	return &IOError{Operation: operation, Path: path, Err: err}
}

func NewParse(format, path, message string) *ParseError {
	return &ParseError{Format: format, Path: path, Message: message}
}

func NewUnsupported(feature, reason string) *UnsupportedError {
	return &UnsupportedError{Feature: feature, Reason: reason}
}

// IsFatal reports whether err must abort a conversion. Unresolved
// references are the only non-fatal class.
func IsFatal(err error) bool {
	return err != nil && !errors.Is(err, ErrUnresolved)
}

// codes is checked in order; the first matching sentinel wins.
var codes = []struct {
	err  error
	code string
}{
	{ErrMalformedDocument, "MALFORMED_DOCUMENT"},
	{ErrInvalidInput, "INVALID_INPUT"},
	{ErrNotFound, "NOT_FOUND"},
	{ErrUnsupported, "UNSUPPORTED"},
	{ErrUnresolved, "UNRESOLVED"},
	{ErrIO, "IO_ERROR"},
}

// Code returns a stable machine-readable name for the class of err, or
// "INTERNAL" when err belongs to none. Code(nil) is "".
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "INTERNAL"
}

func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }
