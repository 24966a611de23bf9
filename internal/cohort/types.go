package cohort

import (
	"fmt"
	"strconv"
	"strings"
)

// Column names of the base table. Any other header is carried through
// untouched as a passthrough column.
const (
	ColEntityID     = "entity_id"
	ColCategory     = "category"
	ColElapsedUnits = "elapsed_units"
	ColStage        = "stage"
	ColEngagement   = "engagement_flag"
)

// RequiredColumns lists the columns every base table must carry, in the
// order they are written when a table is built from scratch.
var RequiredColumns = []string{
	ColEntityID,
	ColCategory,
	ColElapsedUnits,
	ColStage,
	ColEngagement,
}

// Stage is a milestone reached by an entity. Values outside the fixed
// enumeration are rejected wherever a stage is parsed.
type Stage string

const (
	StageNone         Stage = "None"
	StageApplying     Stage = "Applying"
	StageInterviewing Stage = "Interviewing"
	StageOffer        Stage = "Offer"
)

var stageOrder = []Stage{StageNone, StageApplying, StageInterviewing, StageOffer}

// Stages returns the stage enumeration in progression order.
func Stages() []Stage {
	out := make([]Stage, len(stageOrder))
	copy(out, stageOrder)
	return out
}

// ParseStage converts a raw value to a Stage.
func ParseStage(raw string) (Stage, error) {
	v := strings.TrimSpace(raw)
	for _, s := range stageOrder {
		if string(s) == v {
			return s, nil
		}
	}
	return "", &CoercionError{Column: ColStage, Value: raw, Reason: "not a known stage"}
}

// Valid reports whether s is a member of the stage enumeration.
func (s Stage) Valid() bool {
	_, err := ParseStage(string(s))
	return err == nil
}

// Terminal reports whether no further progression is possible from s.
func (s Stage) Terminal() bool { return s == StageOffer }

// Entity is one tracked individual in the cohort.
type Entity struct {
	ID           string            `json:"entity_id"`
	Category     string            `json:"category"`
	ElapsedUnits int               `json:"elapsed_units"`
	Stage        Stage             `json:"stage"`
	Engaged      bool              `json:"engagement_flag"`
	Extra        map[string]string `json:"extra,omitempty"`
}

// EngagementFlag returns the 0/1 form of Engaged.
func (e *Entity) EngagementFlag() int {
	if e.Engaged {
		return 1
	}
	return 0
}

// Get returns the text form of a column value.
func (e *Entity) Get(column string) string {
	switch column {
	case ColEntityID:
		return e.ID
	case ColCategory:
		return e.Category
	case ColElapsedUnits:
		return strconv.Itoa(e.ElapsedUnits)
	case ColStage:
		return string(e.Stage)
	case ColEngagement:
		return strconv.Itoa(e.EngagementFlag())
	}
	return e.Extra[column]
}

// Set coerces raw to the declared type of column and stores it.
// The identifier column cannot be overwritten.
func (e *Entity) Set(column, raw string) error {
	switch column {
	case ColEntityID:
		return &CoercionError{Column: column, Value: raw, Reason: "identifier is immutable"}
	case ColCategory:
		e.Category = strings.TrimSpace(raw)
	case ColElapsedUnits:
		n, err := ParseUnits(raw)
		if err != nil {
			return err
		}
		e.ElapsedUnits = n
	case ColStage:
		s, err := ParseStage(raw)
		if err != nil {
			return err
		}
		e.Stage = s
	case ColEngagement:
		b, err := ParseFlag(raw)
		if err != nil {
			return err
		}
		e.Engaged = b
	default:
		if e.Extra == nil {
			e.Extra = make(map[string]string)
		}
		e.Extra[column] = raw
	}
	return nil
}

// ParseUnits parses a non-negative elapsed unit count.
func ParseUnits(raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, &CoercionError{Column: ColElapsedUnits, Value: raw, Reason: "not an integer", Err: err}
	}
	if n < 0 {
		return 0, &CoercionError{Column: ColElapsedUnits, Value: raw, Reason: "must be non-negative"}
	}
	return n, nil
}

// ParseFlag parses an engagement flag. Only the integers 0 and 1 are
// accepted.
func ParseFlag(raw string) (bool, error) {
	switch strings.TrimSpace(raw) {
	case "0":
		return false, nil
	case "1":
		return true, nil
	}
	return false, &CoercionError{Column: ColEngagement, Value: raw, Reason: "expected 0 or 1"}
}

// clone returns a deep copy of e.
func (e Entity) clone() Entity {
	if e.Extra != nil {
		extra := make(map[string]string, len(e.Extra))
		for k, v := range e.Extra {
			extra[k] = v
		}
		e.Extra = extra
	}
	return e
}

// Table is a base or reconstructed entity table.
type Table struct {
	// Columns is the header in output order, passthrough columns included.
	Columns  []string
	Entities []Entity
}

// NewTable creates an empty table with the required columns followed by
// any extra passthrough columns.
func NewTable(extra ...string) *Table {
	cols := make([]string, 0, len(RequiredColumns)+len(extra))
	cols = append(cols, RequiredColumns...)
	cols = append(cols, extra...)
	return &Table{Columns: cols}
}

// Len returns the number of entities.
func (t *Table) Len() int { return len(t.Entities) }

// HasColumn reports whether name is part of the table header.
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Clone returns a deep copy that shares nothing with t.
func (t *Table) Clone() *Table {
	out := &Table{
		Columns:  make([]string, len(t.Columns)),
		Entities: make([]Entity, len(t.Entities)),
	}
	copy(out.Columns, t.Columns)
	for i, e := range t.Entities {
		out.Entities[i] = e.clone()
	}
	return out
}

// Index maps entity IDs to their row position.
func (t *Table) Index() map[string]int {
	idx := make(map[string]int, len(t.Entities))
	for i, e := range t.Entities {
		idx[e.ID] = i
	}
	return idx
}

// Lookup returns the entity with the given ID.
func (t *Table) Lookup(id string) (*Entity, bool) {
	for i := range t.Entities {
		if t.Entities[i].ID == id {
			return &t.Entities[i], true
		}
	}
	return nil, false
}

// Validate checks the required columns and per-row invariants.
func (t *Table) Validate() error {
	if missing := MissingColumns(t.Columns); len(missing) > 0 {
		return &SchemaError{Columns: missing, Reason: "base table missing required columns"}
	}
	seen := make(map[string]bool, len(t.Entities))
	for i, e := range t.Entities {
		if e.ID == "" {
			return fmt.Errorf("row %d: %w", i+1, &InputError{Reason: "empty entity_id"})
		}
		if seen[e.ID] {
			return &InputError{Reason: fmt.Sprintf("duplicate entity_id %q", e.ID)}
		}
		seen[e.ID] = true
		if !e.Stage.Valid() {
			return fmt.Errorf("entity %s: %w", e.ID, &CoercionError{Column: ColStage, Value: string(e.Stage), Reason: "not a known stage"})
		}
		if e.ElapsedUnits < 0 {
			return fmt.Errorf("entity %s: %w", e.ID, &CoercionError{Column: ColElapsedUnits, Value: strconv.Itoa(e.ElapsedUnits), Reason: "must be non-negative"})
		}
	}
	return nil
}

// MissingColumns returns the required columns absent from header, in
// RequiredColumns order.
func MissingColumns(header []string) []string {
	have := make(map[string]bool, len(header))
	for _, h := range header {
		have[h] = true
	}
	var missing []string
	for _, c := range RequiredColumns {
		if !have[c] {
			missing = append(missing, c)
		}
	}
	return missing
}
