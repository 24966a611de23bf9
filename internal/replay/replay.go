// Package replay reconstructs the entity table as of a date by applying
// the event log onto the base table with last-write-wins semantics per
// (entity, field).
package replay

import (
	"fmt"
	"sort"

	"cloud.google.com/go/civil"

	"github.com/abhisek/cohortwatch/internal/cohort"
	"github.com/abhisek/cohortwatch/internal/eventlog"
)

// UnknownEntityPolicy decides what happens to an event whose entity is
// not in the base table.
type UnknownEntityPolicy string

const (
	// IgnoreUnknown skips the event and reports it in Result.Ignored.
	IgnoreUnknown UnknownEntityPolicy = "ignore"
	// FailUnknown aborts the reconstruction with UnknownEntityError.
	FailUnknown UnknownEntityPolicy = "fail"
)

// ParsePolicy converts a configuration value to a policy.
func ParsePolicy(s string) (UnknownEntityPolicy, error) {
	switch p := UnknownEntityPolicy(s); p {
	case IgnoreUnknown, FailUnknown:
		return p, nil
	case "":
		return IgnoreUnknown, nil
	}
	return "", fmt.Errorf("unknown entity policy %q: want %q or %q", s, IgnoreUnknown, FailUnknown)
}

// UnknownEntityError reports events naming entities absent from the base
// table under FailUnknown.
type UnknownEntityError struct {
	EntityIDs []string // sorted, distinct
}

func (e *UnknownEntityError) Error() string {
	return fmt.Sprintf("events reference %d unknown entities: %v", len(e.EntityIDs), e.EntityIDs)
}

// ApplyError wraps a coercion failure with the event that caused it.
type ApplyError struct {
	Event eventlog.Event
	Err   error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("apply event %s: %v", e.Event, e.Err)
}

func (e *ApplyError) Unwrap() error { return e.Err }

// Config controls the Engine.
type Config struct {
	UnknownEntity UnknownEntityPolicy
}

// DefaultConfig ignores events for unknown entities.
func DefaultConfig() Config {
	return Config{UnknownEntity: IgnoreUnknown}
}

// Engine reconstructs point-in-time tables. It holds no state between
// calls and never mutates its inputs.
type Engine struct {
	cfg Config
}

// New creates an Engine.
func New(cfg Config) *Engine {
	if cfg.UnknownEntity == "" {
		cfg.UnknownEntity = IgnoreUnknown
	}
	return &Engine{cfg: cfg}
}

// Result is the reconstructed table plus bookkeeping about the replay.
type Result struct {
	AsOf    civil.Date
	Table   *cohort.Table
	Applied int              // qualifying events written onto a row
	Ignored []eventlog.Event // qualifying events for unknown entities
}

// Reconstruct applies every event dated on or before asOf onto a copy of
// base. Events are applied by date; same-day events keep log order, so
// for any (entity, field) the chronologically latest event wins and the
// later of two same-day events wins.
func (e *Engine) Reconstruct(base *cohort.Table, events []eventlog.Event, asOf civil.Date) (*Result, error) {
	if err := checkFields(base, events); err != nil {
		return nil, err
	}

	ordered := eventlog.Ordered(events, asOf)
	out := base.Clone()
	index := out.Index()
	res := &Result{AsOf: asOf, Table: out}

	unknown := make(map[string]struct{})
	for _, ev := range ordered {
		i, ok := index[ev.EntityID]
		if !ok {
			unknown[ev.EntityID] = struct{}{}
			res.Ignored = append(res.Ignored, ev)
			continue
		}
		if err := out.Entities[i].Set(ev.Field, ev.NewValue); err != nil {
			return nil, &ApplyError{Event: ev, Err: err}
		}
		res.Applied++
	}

	if len(unknown) > 0 && e.cfg.UnknownEntity == FailUnknown {
		ids := make([]string, 0, len(unknown))
		for id := range unknown {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		return nil, &UnknownEntityError{EntityIDs: ids}
	}
	return res, nil
}

// Reconstruct is Engine.Reconstruct with the default configuration,
// returning only the table.
func Reconstruct(base *cohort.Table, events []eventlog.Event, asOf civil.Date) (*cohort.Table, error) {
	res, err := New(DefaultConfig()).Reconstruct(base, events, asOf)
	if err != nil {
		return nil, err
	}
	return res.Table, nil
}

// checkFields fails with a SchemaError when any event names a field that
// is not a column of the base table, whatever its date.
func checkFields(base *cohort.Table, events []eventlog.Event) error {
	bad := make(map[string]struct{})
	for _, ev := range events {
		if !base.HasColumn(ev.Field) {
			bad[ev.Field] = struct{}{}
		}
	}
	if len(bad) == 0 {
		return nil
	}
	cols := make([]string, 0, len(bad))
	for f := range bad {
		cols = append(cols, f)
	}
	sort.Strings(cols)
	return &cohort.SchemaError{Columns: cols, Reason: "event fields are not base table columns"}
}
