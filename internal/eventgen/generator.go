// Package eventgen synthesizes plausible weekly update events for a
// cohort. All randomness comes from a source owned by the Generator, so
// a seed fully determines the output.
package eventgen

import (
	"errors"
	"math/rand/v2"

	"cloud.google.com/go/civil"

	"github.com/abhisek/cohortwatch/internal/cohort"
	"github.com/abhisek/cohortwatch/internal/eventlog"
)

// DefaultSource tags generated events.
const DefaultSource = "synthetic_weekly_generator"

// ErrEmptyCohort is returned when there is nobody to generate events for.
var ErrEmptyCohort = errors.New("no entities found in the cohort")

// Config controls the Generator.
type Config struct {
	// Count is the number of events generated per call.
	Count int

	// Source is the provenance tag written on every event.
	Source string

	// EngagementProbability is the chance that an event is an
	// engagement update rather than a stage update.
	EngagementProbability float64

	// RetainEngagement is the chance that an already engaged entity
	// stays engaged when it is picked for an engagement update.
	RetainEngagement float64
}

// DefaultConfig returns the standard weekly mix.
func DefaultConfig() Config {
	return Config{
		Count:                 6,
		Source:                DefaultSource,
		EngagementProbability: 0.45,
		RetainEngagement:      0.85,
	}
}

// transitions lists the stages an entity may move to next. Repeating the
// current stage models no progress that week; Offer is terminal.
var transitions = map[cohort.Stage][]cohort.Stage{
	cohort.StageNone:         {cohort.StageApplying, cohort.StageNone},
	cohort.StageApplying:     {cohort.StageInterviewing, cohort.StageApplying},
	cohort.StageInterviewing: {cohort.StageOffer, cohort.StageInterviewing},
	cohort.StageOffer:        {cohort.StageOffer},
}

// Generator produces events from a seeded random source.
type Generator struct {
	cfg Config
	rng *rand.Rand
}

// New creates a Generator whose output is determined by seed.
func New(seed uint64, cfg Config) *Generator {
	if cfg.Source == "" {
		cfg.Source = DefaultSource
	}
	return &Generator{
		cfg: cfg,
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Generate returns cfg.Count events dated date, drawn against the
// current state in t. t is not modified.
func (g *Generator) Generate(t *cohort.Table, date civil.Date) ([]eventlog.Event, error) {
	if t == nil || t.Len() == 0 {
		return nil, ErrEmptyCohort
	}

	events := make([]eventlog.Event, 0, g.cfg.Count)
	for i := 0; i < g.cfg.Count; i++ {
		e := &t.Entities[g.rng.IntN(t.Len())]
		ev := eventlog.Event{EntityID: e.ID, Date: date, Source: g.cfg.Source}

		if g.rng.Float64() < g.cfg.EngagementProbability {
			ev.Field = cohort.ColEngagement
			ev.NewValue = g.nextEngagement(e.Engaged)
		} else {
			ev.Field = cohort.ColStage
			ev.NewValue = string(g.nextStage(e.Stage))
		}
		events = append(events, ev)
	}
	return events, nil
}

// nextEngagement flips disengaged entities to engaged and only rarely
// drops an engaged one.
func (g *Generator) nextEngagement(engaged bool) string {
	if !engaged {
		return "1"
	}
	if g.rng.Float64() < g.cfg.RetainEngagement {
		return "1"
	}
	return "0"
}

func (g *Generator) nextStage(current cohort.Stage) cohort.Stage {
	next, ok := transitions[current]
	if !ok {
		next = transitions[cohort.StageNone]
	}
	return next[g.rng.IntN(len(next))]
}
