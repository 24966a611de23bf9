package eventlog

import (
	"slices"
	"sort"

	"cloud.google.com/go/civil"
)

// Whitelist is the set of fields events may target.
type Whitelist map[string]struct{}

// NewWhitelist builds a Whitelist from field names.
func NewWhitelist(fields ...string) Whitelist {
	w := make(Whitelist, len(fields))
	for _, f := range fields {
		w[f] = struct{}{}
	}
	return w
}

// Allows reports whether field may be targeted by an event.
func (w Whitelist) Allows(field string) bool {
	_, ok := w[field]
	return ok
}

// Validate checks every event against the whitelist and reports all
// offending fields at once.
func (w Whitelist) Validate(events []Event) error {
	bad := make(map[string]struct{})
	for _, e := range events {
		if !w.Allows(e.Field) {
			bad[e.Field] = struct{}{}
		}
	}
	if len(bad) == 0 {
		return nil
	}
	fields := make([]string, 0, len(bad))
	for f := range bad {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return &ValidationError{Fields: fields}
}

// Merge appends incoming to existing and collapses exact duplicates on
// (entity, date, field, value), keeping the first occurrence. Insertion
// order is otherwise preserved, so merging the same events twice is a
// no-op.
func Merge(existing, incoming []Event) []Event {
	seen := make(map[key]struct{}, len(existing)+len(incoming))
	out := make([]Event, 0, len(existing)+len(incoming))
	for _, batch := range [][]Event{existing, incoming} {
		for _, e := range batch {
			k := e.key()
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, e)
		}
	}
	return out
}

// Dedup collapses exact duplicates within a single log.
func Dedup(events []Event) []Event {
	return Merge(nil, events)
}

// UpTo returns the events dated on or before asOf, in log order.
func UpTo(events []Event, asOf civil.Date) []Event {
	var out []Event
	for _, e := range events {
		if OnOrBefore(e.Date, asOf) {
			out = append(out, e)
		}
	}
	return out
}

// Ordered returns the events dated on or before asOf sorted by date.
// Events sharing a date keep their log order, which is what makes the
// later of two same-day writes win on replay.
func Ordered(events []Event, asOf civil.Date) []Event {
	out := UpTo(events, asOf)
	slices.SortStableFunc(out, func(a, b Event) int {
		switch {
		case a.Date.Before(b.Date):
			return -1
		case a.Date.After(b.Date):
			return 1
		}
		return 0
	})
	return out
}
