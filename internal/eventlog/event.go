package eventlog

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"github.com/abhisek/cohortwatch/internal/cohort"
)

// Column names of the persisted event log, in header order.
const (
	ColEntityID = "entity_id"
	ColDate     = "event_date"
	ColField    = "field"
	ColNewValue = "new_value"
	ColSource   = "source"
)

// Columns is the event log header.
var Columns = []string{ColEntityID, ColDate, ColField, ColNewValue, ColSource}

// DefaultFields are the mutable entity attributes events may target.
var DefaultFields = []string{cohort.ColStage, cohort.ColEngagement}

// Event is one proposed field mutation.
type Event struct {
	EntityID string     `json:"entity_id"`
	Date     civil.Date `json:"event_date"`
	Field    string     `json:"field"`
	NewValue string     `json:"new_value"`
	Source   string     `json:"source,omitempty"`
}

func (e Event) String() string {
	return fmt.Sprintf("%s %s %s=%q", e.Date, e.EntityID, e.Field, e.NewValue)
}

// key identifies exact duplicates. Source is provenance only and does not
// take part.
type key struct {
	entity string
	date   civil.Date
	field  string
	value  string
}

func (e Event) key() key {
	return key{entity: e.EntityID, date: e.Date, field: e.Field, value: e.NewValue}
}

// dateLayouts are tried in order. The first is the canonical form used
// when writing.
var dateLayouts = []string{"2006-01-02", "2006-1-2", "2006/01/02", "2006/1/2"}

// ParseDate parses a calendar date. Non-canonical spellings such as
// 2024-1-5 are accepted so that comparisons never depend on string order.
func ParseDate(raw string) (civil.Date, error) {
	v := strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return civil.DateOf(t), nil
		}
	}
	return civil.Date{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", raw)
}

// OnOrBefore reports whether d is not after asOf.
func OnOrBefore(d, asOf civil.Date) bool {
	return !d.After(asOf)
}
