package eventlog

import (
	"fmt"
	"strings"
)

// ValidationError indicates the event log contains fields outside the
// whitelist. It is raised against the whole merged log, so a single bad
// historical entry blocks every later append until it is removed.
type ValidationError struct {
	Fields []string // offending field names, sorted
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("event log contains invalid fields: %s", strings.Join(e.Fields, ", "))
}

// DecodeError reports a malformed event log row.
type DecodeError struct {
	Line int
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("event log line %d: %v", e.Line, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
