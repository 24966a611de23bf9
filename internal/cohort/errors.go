package cohort

import (
	"fmt"
	"strings"
)

// InputError indicates the base table is missing, unreadable, or empty.
type InputError struct {
	Path   string
	Reason string
	Err    error
}

func (e *InputError) Error() string {
	msg := "input error"
	if e.Path != "" {
		msg += " (" + e.Path + ")"
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *InputError) Unwrap() error { return e.Err }

// SchemaError indicates a column mismatch: either the base table lacks a
// required column, or an event names a field that is not a column.
type SchemaError struct {
	Columns []string
	Reason  string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema error: %s: %s", e.Reason, strings.Join(e.Columns, ", "))
}

// CoercionError indicates a value that cannot be converted to its
// column's declared type.
type CoercionError struct {
	Column string
	Value  string
	Reason string
	Err    error
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("invalid %s value %q: %s", e.Column, e.Value, e.Reason)
}

func (e *CoercionError) Unwrap() error { return e.Err }
