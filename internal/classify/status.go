package classify

import (
	"fmt"
	"slices"
	"sort"

	"github.com/abhisek/cohortwatch/internal/cohort"
)

// Status is the progress classification of an entity.
type Status string

const (
	StatusOnTrack Status = "On Track"
	StatusBehind  Status = "Behind"
	StatusAtRisk  Status = "At Risk"
)

// Statuses returns every status in report order.
func Statuses() []Status {
	return []Status{StatusOnTrack, StatusBehind, StatusAtRisk}
}

// Rule holds the thresholds for one category. An entity is At Risk when
// it is not engaged, has reached AtRiskUnits and sits in one of
// AtRiskStages. Otherwise it is Behind when it has reached BehindUnits
// and sits in one of BehindStages (and, if BehindRequiresDisengaged, is
// not engaged).
type Rule struct {
	AtRiskUnits              int            `yaml:"at_risk_units"`
	AtRiskStages             []cohort.Stage `yaml:"at_risk_stages"`
	BehindUnits              int            `yaml:"behind_units"`
	BehindStages             []cohort.Stage `yaml:"behind_stages"`
	BehindRequiresDisengaged bool           `yaml:"behind_requires_disengaged"`
}

// Status classifies e under r.
func (r Rule) Status(e *cohort.Entity) Status {
	if !e.Engaged && e.ElapsedUnits >= r.AtRiskUnits && slices.Contains(r.AtRiskStages, e.Stage) {
		return StatusAtRisk
	}
	if e.ElapsedUnits >= r.BehindUnits && slices.Contains(r.BehindStages, e.Stage) {
		if !r.BehindRequiresDisengaged || !e.Engaged {
			return StatusBehind
		}
	}
	return StatusOnTrack
}

// Rules maps category names to thresholds. Categories without a rule are
// always On Track.
type Rules map[string]Rule

var (
	early = []cohort.Stage{cohort.StageNone, cohort.StageApplying}
	none  = []cohort.Stage{cohort.StageNone}
)

// DefaultRules returns the standard category table.
func DefaultRules() Rules {
	return Rules{
		"Consulting": {AtRiskUnits: 9, AtRiskStages: early, BehindUnits: 7, BehindStages: none},
		"Tech":       {AtRiskUnits: 13, AtRiskStages: early, BehindUnits: 11, BehindStages: none},
		"Healthcare": {AtRiskUnits: 15, AtRiskStages: early, BehindUnits: 13, BehindStages: none},
		"Finance":    {AtRiskUnits: 11, AtRiskStages: early, BehindUnits: 9, BehindStages: none},
		"Undecided":  {AtRiskUnits: 9, AtRiskStages: none, BehindUnits: 7, BehindStages: none, BehindRequiresDisengaged: true},
	}
}

// Status classifies e using the rule for its category.
func (rs Rules) Status(e *cohort.Entity) Status {
	r, ok := rs[e.Category]
	if !ok {
		return StatusOnTrack
	}
	return r.Status(e)
}

// Validate checks every rule for negative thresholds and unknown stages.
func (rs Rules) Validate() error {
	cats := make([]string, 0, len(rs))
	for c := range rs {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	for _, c := range cats {
		r := rs[c]
		if r.AtRiskUnits < 0 || r.BehindUnits < 0 {
			return fmt.Errorf("category %q: thresholds must be non-negative", c)
		}
		for _, s := range append(slices.Clone(r.AtRiskStages), r.BehindStages...) {
			if !s.Valid() {
				return fmt.Errorf("category %q: unknown stage %q", c, s)
			}
		}
	}
	return nil
}

// ClassifyStatus classifies e with DefaultRules.
func ClassifyStatus(e *cohort.Entity) Status {
	return DefaultRules().Status(e)
}
