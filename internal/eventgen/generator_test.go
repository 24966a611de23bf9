package eventgen

import (
	"strings"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/cohortwatch/internal/cohort"
	"github.com/abhisek/cohortwatch/internal/eventlog"
)

const cohortCSV = `entity_id,category,elapsed_units,stage,engagement_flag
S1,Tech,14,None,0
S2,Finance,5,Applying,1
S3,Consulting,9,Interviewing,0
S4,Healthcare,20,Offer,1
`

func loadCohort(t *testing.T) *cohort.Table {
	t.Helper()
	tbl, err := cohort.ReadCSV(strings.NewReader(cohortCSV))
	require.NoError(t, err)
	return tbl
}

var runDate = civil.Date{Year: 2024, Month: 1, Day: 15}

func TestGenerate_Deterministic(t *testing.T) {
	tbl := loadCohort(t)
	cfg := DefaultConfig()
	cfg.Count = 50

	a, err := New(42, cfg).Generate(tbl, runDate)
	require.NoError(t, err)
	b, err := New(42, cfg).Generate(tbl, runDate)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := New(7, cfg).Generate(tbl, runDate)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestGenerate_EventsArePlausible(t *testing.T) {
	tbl := loadCohort(t)
	cfg := DefaultConfig()
	cfg.Count = 500

	events, err := New(1, cfg).Generate(tbl, runDate)
	require.NoError(t, err)
	require.Len(t, events, 500)

	w := eventlog.NewWhitelist(eventlog.DefaultFields...)
	require.NoError(t, w.Validate(events))

	var stageEvents, flagEvents int
	for _, ev := range events {
		assert.Equal(t, runDate, ev.Date)
		assert.Equal(t, DefaultSource, ev.Source)
		e, ok := tbl.Lookup(ev.EntityID)
		require.True(t, ok)

		switch ev.Field {
		case cohort.ColStage:
			stageEvents++
			assert.Contains(t, transitions[e.Stage], cohort.Stage(ev.NewValue), "%s cannot move %s -> %s", e.ID, e.Stage, ev.NewValue)
		case cohort.ColEngagement:
			flagEvents++
			if !e.Engaged {
				assert.Equal(t, "1", ev.NewValue, "disengaged entities always flip to engaged")
			}
		}
	}
	assert.Positive(t, stageEvents)
	assert.Positive(t, flagEvents)
}

func TestGenerate_OfferIsTerminal(t *testing.T) {
	tbl, err := cohort.ReadCSV(strings.NewReader("entity_id,category,elapsed_units,stage,engagement_flag\nS4,Tech,20,Offer,1\n"))
	require.NoError(t, err)
	cfg := DefaultConfig()
	cfg.Count = 100
	cfg.EngagementProbability = 0

	events, err := New(3, cfg).Generate(tbl, runDate)
	require.NoError(t, err)
	for _, ev := range events {
		assert.Equal(t, string(cohort.StageOffer), ev.NewValue)
	}
}

func TestGenerate_EmptyCohort(t *testing.T) {
	_, err := New(1, DefaultConfig()).Generate(cohort.NewTable(), runDate)
	require.ErrorIs(t, err, ErrEmptyCohort)
}

func TestGenerate_DoesNotMutateTable(t *testing.T) {
	tbl := loadCohort(t)
	before := tbl.Clone()
	_, err := New(9, DefaultConfig()).Generate(tbl, runDate)
	require.NoError(t, err)
	assert.Equal(t, before, tbl)
}
