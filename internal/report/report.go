// Package report turns a reconstructed table into the dated artifacts of
// a refresh run: the snapshot, the per-entity recommendations and the
// per-category bottom line.
package report

import (
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"

	"cloud.google.com/go/civil"

	"github.com/abhisek/cohortwatch/internal/classify"
	"github.com/abhisek/cohortwatch/internal/cohort"
)

// Derived column names appended to the snapshot columns in the report.
const (
	ColStatus = "status"
	ColAction = "recommended_action"
)

// SummaryColumns is the bottom-line header.
var SummaryColumns = []string{
	"category",
	"total_entities",
	"pct_on_track",
	"pct_behind",
	"pct_at_risk",
	"pct_no_engagement",
}

// SnapshotName is the artifact name of the snapshot for asOf.
func SnapshotName(asOf civil.Date) string {
	return fmt.Sprintf("cohort_asof_%s.csv", asOf)
}

// ReportName is the artifact name of the recommendations for asOf.
func ReportName(asOf civil.Date) string {
	return fmt.Sprintf("intervention_recommendations_%s.csv", asOf)
}

// SummaryName is the artifact name of the bottom line for asOf.
func SummaryName(asOf civil.Date) string {
	return fmt.Sprintf("category_bottom_line_%s.csv", asOf)
}

// Row is one classified entity.
type Row struct {
	Entity cohort.Entity
	classify.Result
}

// Report is the classified table, sorted by category, elapsed units and
// entity ID.
type Report struct {
	AsOf    civil.Date
	Columns []string
	Rows    []Row
}

// Build classifies every entity of t. t is not modified.
func Build(t *cohort.Table, asOf civil.Date, c *classify.Classifier) *Report {
	r := &Report{
		AsOf:    asOf,
		Columns: append(slices.Clone(t.Columns), ColStatus, ColAction),
		Rows:    make([]Row, 0, t.Len()),
	}
	for i := range t.Entities {
		e := t.Entities[i]
		r.Rows = append(r.Rows, Row{Entity: e, Result: c.Classify(&e)})
	}
	slices.SortStableFunc(r.Rows, func(a, b Row) int {
		if d := strings.Compare(a.Entity.Category, b.Entity.Category); d != 0 {
			return d
		}
		if a.Entity.ElapsedUnits != b.Entity.ElapsedUnits {
			return a.Entity.ElapsedUnits - b.Entity.ElapsedUnits
		}
		return strings.Compare(a.Entity.ID, b.Entity.ID)
	})
	return r
}

// StatusCounts tallies rows per status.
func (r *Report) StatusCounts() map[classify.Status]int {
	out := make(map[classify.Status]int, 3)
	for _, row := range r.Rows {
		out[row.Status]++
	}
	return out
}

// WriteCSV writes the report with the snapshot columns followed by status
// and recommended_action.
func (r *Report) WriteCSV(w io.Writer) error {
	return cohort.WriteCSVWith(w, r.Columns, len(r.Rows), func(i int, col string) string {
		row := &r.Rows[i]
		switch col {
		case ColStatus:
			return string(row.Status)
		case ColAction:
			return row.Action
		}
		return row.Entity.Get(col)
	})
}

// CategorySummary is the bottom line for one category. Percentages are on
// a 0-100 scale rounded to one decimal.
type CategorySummary struct {
	Category        string
	Total           int
	PctOnTrack      float64
	PctBehind       float64
	PctAtRisk       float64
	PctNoEngagement float64
}

// Summarize groups the report by category, in ascending category order.
func Summarize(r *Report) []CategorySummary {
	type tally struct {
		total, onTrack, behind, atRisk, disengaged int
	}
	byCat := make(map[string]*tally)
	var order []string
	for _, row := range r.Rows {
		t, ok := byCat[row.Entity.Category]
		if !ok {
			t = &tally{}
			byCat[row.Entity.Category] = t
			order = append(order, row.Entity.Category)
		}
		t.total++
		switch row.Status {
		case classify.StatusOnTrack:
			t.onTrack++
		case classify.StatusBehind:
			t.behind++
		case classify.StatusAtRisk:
			t.atRisk++
		}
		if !row.Entity.Engaged {
			t.disengaged++
		}
	}
	slices.Sort(order)

	out := make([]CategorySummary, 0, len(order))
	for _, cat := range order {
		t := byCat[cat]
		out = append(out, CategorySummary{
			Category:        cat,
			Total:           t.total,
			PctOnTrack:      pct(t.onTrack, t.total),
			PctBehind:       pct(t.behind, t.total),
			PctAtRisk:       pct(t.atRisk, t.total),
			PctNoEngagement: pct(t.disengaged, t.total),
		})
	}
	return out
}

// pct returns n/total as a percentage rounded half to even to one decimal.
func pct(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.RoundToEven(float64(n)*1000/float64(total)) / 10
}

// FormatPct renders a percentage with exactly one decimal.
func FormatPct(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}

// WriteSummaryCSV writes the bottom line with SummaryColumns.
func WriteSummaryCSV(w io.Writer, rows []CategorySummary) error {
	return cohort.WriteCSVWith(w, SummaryColumns, len(rows), func(i int, col string) string {
		s := rows[i]
		switch col {
		case "category":
			return s.Category
		case "total_entities":
			return strconv.Itoa(s.Total)
		case "pct_on_track":
			return FormatPct(s.PctOnTrack)
		case "pct_behind":
			return FormatPct(s.PctBehind)
		case "pct_at_risk":
			return FormatPct(s.PctAtRisk)
		case "pct_no_engagement":
			return FormatPct(s.PctNoEngagement)
		}
		return ""
	})
}
