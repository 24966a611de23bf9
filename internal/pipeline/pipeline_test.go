package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/cohortwatch/internal/artifact"
	"github.com/abhisek/cohortwatch/internal/cohort"
	"github.com/abhisek/cohortwatch/internal/eventgen"
	"github.com/abhisek/cohortwatch/internal/eventlog"
	"github.com/abhisek/cohortwatch/internal/logging"
	"github.com/abhisek/cohortwatch/internal/metrics"
	"github.com/abhisek/cohortwatch/internal/replay"
	"github.com/abhisek/cohortwatch/internal/store"
)

const baseCSV = `entity_id,category,elapsed_units,stage,engagement_flag
C1,Consulting,10,None,0
T1,Tech,5,Applying,1
`

var asOf = civil.Date{Year: 2024, Month: 1, Day: 15}

func day(d int) civil.Date { return civil.Date{Year: 2024, Month: 1, Day: d} }

func ev(id string, d int, field, value string) eventlog.Event {
	return eventlog.Event{EntityID: id, Date: day(d), Field: field, NewValue: value, Source: "test"}
}

type fixture struct {
	runner    *Runner
	snapshots *artifact.Memory
	outputs   *artifact.Memory
}

func newFixture(t *testing.T, events ...eventlog.Event) *fixture {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cohort.csv")
	require.NoError(t, os.WriteFile(path, []byte(baseCSV), 0o644))

	f := &fixture{snapshots: artifact.NewMemory(), outputs: artifact.NewMemory()}
	f.runner = &Runner{
		Log:       logging.Discard(),
		BasePath:  path,
		Events:    eventlog.NewStore(eventlog.NewMemoryBackend(events...)),
		Snapshots: f.snapshots,
		Outputs:   f.outputs,
	}
	return f
}

func (f *fixture) artifacts() []string {
	return append(f.snapshots.Names(), f.outputs.Names()...)
}

func TestRefresh_WritesArtifacts(t *testing.T) {
	f := newFixture(t,
		ev("C1", 3, "stage", "Applying"),
		ev("C1", 10, "engagement_flag", "1"),
		ev("T1", 20, "stage", "Interviewing"), // after the run date
		ev("X9", 5, "stage", "Applying"),      // unknown entity
	)

	res, err := f.runner.Refresh(context.Background(), asOf)
	require.NoError(t, err)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 2, res.Replay.Applied)
	assert.Len(t, res.Replay.Ignored, 1)
	assert.Len(t, res.Locations, 3)

	snap, ok := f.snapshots.Get("cohort_asof_2024-01-15.csv")
	require.True(t, ok)
	assert.Equal(t, strings.Join([]string{
		"entity_id,category,elapsed_units,stage,engagement_flag",
		"C1,Consulting,10,Applying,1",
		"T1,Tech,5,Applying,1",
		"",
	}, "\n"), string(snap))

	recs, ok := f.outputs.Get("intervention_recommendations_2024-01-15.csv")
	require.True(t, ok)
	assert.Contains(t, string(recs),
		"C1,Consulting,10,Applying,1,On Track,Recommend: Consulting recruiting tips + next relevant workshop\n")

	bottom, ok := f.outputs.Get("category_bottom_line_2024-01-15.csv")
	require.True(t, ok)
	assert.Equal(t, strings.Join([]string{
		"category,total_entities,pct_on_track,pct_behind,pct_at_risk,pct_no_engagement",
		"Consulting,1,100.0,0.0,0.0,0.0",
		"Tech,1,100.0,0.0,0.0,0.0",
		"",
	}, "\n"), string(bottom))
}

func TestRefresh_EmptyLogMatchesBase(t *testing.T) {
	f := newFixture(t)
	_, err := f.runner.Refresh(context.Background(), asOf)
	require.NoError(t, err)

	snap, ok := f.snapshots.Get("cohort_asof_2024-01-15.csv")
	require.True(t, ok)
	assert.Equal(t, baseCSV, string(snap))
}

func TestRefresh_NoArtifactsOnFailure(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(f *fixture)
		target any
	}{
		{
			name: "non-whitelisted field",
			setup: func(f *fixture) {
				f.runner.Events = eventlog.NewStore(eventlog.NewMemoryBackend(ev("C1", 3, "category", "Tech")))
			},
			target: new(*eventlog.ValidationError),
		},
		{
			name: "field missing from base",
			setup: func(f *fixture) {
				f.runner.Events = eventlog.NewStore(
					eventlog.NewMemoryBackend(ev("C1", 3, "salary", "10")),
					eventlog.WithFields("stage", "engagement_flag", "salary"),
				)
			},
			target: new(*cohort.SchemaError),
		},
		{
			name: "unknown entity with fail policy",
			setup: func(f *fixture) {
				f.runner.Events = eventlog.NewStore(eventlog.NewMemoryBackend(ev("X9", 3, "stage", "Applying")))
				f.runner.Engine = replay.New(replay.Config{UnknownEntity: replay.FailUnknown})
			},
			target: new(*replay.UnknownEntityError),
		},
		{
			name: "missing base table",
			setup: func(f *fixture) {
				f.runner.BasePath = filepath.Join(t.TempDir(), "missing.csv")
			},
			target: new(*cohort.InputError),
		},
		{
			name: "stage outside the set",
			setup: func(f *fixture) {
				f.runner.Events = eventlog.NewStore(eventlog.NewMemoryBackend(ev("C1", 3, "stage", "Hired")))
			},
			target: new(*cohort.CoercionError),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setup(f)

			_, err := f.runner.Refresh(context.Background(), asOf)
			require.Error(t, err)
			assert.True(t, errors.As(err, tt.target), "error %v has wrong type", err)
			assert.Empty(t, f.artifacts())
		})
	}
}

// failingSink stores artifacts in memory but rejects one name.
type failingSink struct {
	*artifact.Memory
	reject string
}

func (s failingSink) Put(ctx context.Context, name string, data []byte) (string, error) {
	if name == s.reject {
		return "", fmt.Errorf("put %s: disk full", name)
	}
	return s.Memory.Put(ctx, name, data)
}

func TestRefresh_CacheFailureWritesNothing(t *testing.T) {
	st, err := store.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	require.NoError(t, st.Close())

	f := newFixture(t, ev("C1", 3, "stage", "Applying"))
	f.runner.Cache = st.SnapshotRepo()

	_, err = f.runner.Refresh(context.Background(), asOf)
	require.Error(t, err)
	assert.Empty(t, f.artifacts())
}

func TestRefresh_FailedWriteKeepsEarlierArtifacts(t *testing.T) {
	st, err := store.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	f := newFixture(t, ev("C1", 3, "stage", "Applying"))
	f.runner.Cache = st.SnapshotRepo()
	f.runner.Outputs = failingSink{Memory: f.outputs, reject: "category_bottom_line_2024-01-15.csv"}

	ctx := context.Background()
	_, err = f.runner.Refresh(ctx, asOf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	assert.Equal(t, []string{
		"cohort_asof_2024-01-15.csv",
		"intervention_recommendations_2024-01-15.csv",
	}, f.artifacts())

	snap, err := f.runner.Cache.ForDate(ctx, asOf)
	require.NoError(t, err)
	assert.NotNil(t, snap, "cache is saved before any artifact")
}

func TestRefresh_CachesSnapshot(t *testing.T) {
	st, err := store.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	f := newFixture(t, ev("C1", 3, "stage", "Applying"))
	f.runner.Cache = st.SnapshotRepo()
	f.runner.CacheKeep = 1

	ctx := context.Background()
	_, err = f.runner.Refresh(ctx, day(8))
	require.NoError(t, err)
	res, err := f.runner.Refresh(ctx, asOf)
	require.NoError(t, err)

	list, err := f.runner.Cache.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 1, "older snapshots pruned")

	snap, err := f.runner.Cache.ForDate(ctx, asOf)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, res.RunID, snap.RunID)
	e, ok := snap.Table().Lookup("C1")
	require.True(t, ok)
	assert.Equal(t, cohort.StageApplying, e.Stage)
}

func TestRefresh_WritesMetrics(t *testing.T) {
	f := newFixture(t, ev("C1", 3, "stage", "Applying"))
	f.runner.Metrics = metrics.New()
	f.runner.MetricsFile = filepath.Join(t.TempDir(), "cohortwatch.prom")

	_, err := f.runner.Refresh(context.Background(), asOf)
	require.NoError(t, err)

	body, err := os.ReadFile(f.runner.MetricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(body), `cohortwatch_cohort_entities{category="Consulting",status="On Track"} 1`)
	assert.Contains(t, string(body), "cohortwatch_replay_events_applied_total 1")
}

func TestGenerate_AppendsDatedEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.runner.Generate(ctx, asOf, eventgen.New(42, eventgen.DefaultConfig()))
	require.NoError(t, err)
	assert.Equal(t, 6, len(res.Added)+res.Duplicates)

	logged, err := f.runner.Events.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, res.Added, logged)
	for _, e := range logged {
		assert.Equal(t, asOf, e.Date)
		assert.Equal(t, eventgen.DefaultSource, e.Source)
	}

	// The generated log replays cleanly.
	_, err = f.runner.Refresh(ctx, asOf)
	require.NoError(t, err)
}

func TestGenerate_RejectedByValidation(t *testing.T) {
	f := newFixture(t)
	f.runner.Events = eventlog.NewStore(eventlog.NewMemoryBackend(), eventlog.WithFields("engagement_flag"))

	cfg := eventgen.DefaultConfig()
	cfg.EngagementProbability = 0 // stage events only
	_, err := f.runner.Generate(context.Background(), asOf, eventgen.New(1, cfg))

	var verr *eventlog.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"stage"}, verr.Fields)

	logged, err := f.runner.Events.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, logged)
}
