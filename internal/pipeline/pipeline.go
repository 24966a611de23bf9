// Package pipeline runs the weekly jobs: generate appends synthetic
// events to the log, refresh replays the log as of a date and writes the
// snapshot, the recommendations and the bottom line.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"github.com/abhisek/cohortwatch/internal/artifact"
	"github.com/abhisek/cohortwatch/internal/classify"
	"github.com/abhisek/cohortwatch/internal/cohort"
	"github.com/abhisek/cohortwatch/internal/eventgen"
	"github.com/abhisek/cohortwatch/internal/eventlog"
	"github.com/abhisek/cohortwatch/internal/metrics"
	"github.com/abhisek/cohortwatch/internal/replay"
	"github.com/abhisek/cohortwatch/internal/report"
	"github.com/abhisek/cohortwatch/internal/store"
)

// Runner holds the collaborators shared by the jobs. Log, BasePath and
// Events are required. A nil Engine or Classifier means the defaults.
type Runner struct {
	Log        *slog.Logger
	BasePath   string
	Events     *eventlog.Store
	Engine     *replay.Engine
	Classifier *classify.Classifier

	// Snapshots receives the reconstructed table, Outputs the report and
	// the summary.
	Snapshots artifact.Sink
	Outputs   artifact.Sink

	// Cache, when set, also stores each refresh's table. It is never read
	// back by replay.
	Cache     store.SnapshotRepo
	CacheKeep int

	Metrics     *metrics.Recorder
	MetricsFile string
}

// Reconstruct loads the base table and the validated log and replays it
// as of asOf.
func (r *Runner) Reconstruct(ctx context.Context, asOf civil.Date) (*replay.Result, error) {
	base, err := cohort.LoadFile(r.BasePath)
	if err != nil {
		return nil, err
	}
	events, err := r.Events.Load(ctx)
	if err != nil {
		return nil, err
	}

	engine := r.Engine
	if engine == nil {
		engine = replay.New(replay.DefaultConfig())
	}
	start := time.Now()
	res, err := engine.Reconstruct(base, events, asOf)
	if err != nil {
		return nil, err
	}
	took := time.Since(start)

	if n := len(res.Ignored); n > 0 {
		r.Log.Warn("ignored events for unknown entities", "count", n, "first", res.Ignored[0].String())
	}
	r.Log.Debug("replayed event log",
		"as_of", asOf.String(), "events", len(events), "applied", res.Applied, "took", took)
	if r.Metrics != nil {
		r.Metrics.Replayed(res.Applied, len(res.Ignored), took)
	}
	return res, nil
}

// Append adds events to the log and records the outcome.
func (r *Runner) Append(ctx context.Context, events []eventlog.Event) (*eventlog.AppendResult, error) {
	res, err := r.Events.Append(ctx, events)
	if err != nil {
		return nil, err
	}
	r.Log.Info("appended events",
		"submitted", len(events), "added", len(res.Added), "duplicates", res.Duplicates, "total", res.Total)
	if r.Metrics != nil {
		r.Metrics.Appended(len(res.Added), res.Duplicates)
	}
	return res, nil
}

// Generate draws events dated asOf against the cohort as it stands on
// asOf and appends them to the log.
func (r *Runner) Generate(ctx context.Context, asOf civil.Date, gen *eventgen.Generator) (*eventlog.AppendResult, error) {
	current, err := r.Reconstruct(ctx, asOf)
	if err != nil {
		return nil, err
	}
	events, err := gen.Generate(current.Table, asOf)
	if err != nil {
		return nil, err
	}
	res, err := r.Append(ctx, events)
	if err != nil {
		return nil, err
	}
	return res, r.finish("generate")
}

// RefreshResult describes a completed refresh.
type RefreshResult struct {
	RunID     string
	AsOf      civil.Date
	Replay    *replay.Result
	Report    *report.Report
	Summary   []report.CategorySummary
	Locations []string
}

// Refresh rebuilds the cohort as of asOf, classifies it and writes the
// three dated artifacts. No artifact is written unless reconstruction,
// encoding and the snapshot cache all succeed. Artifacts are written in
// order and a failed write leaves the ones before it in place.
func (r *Runner) Refresh(ctx context.Context, asOf civil.Date) (*RefreshResult, error) {
	runID := uuid.NewString()
	log := r.Log.With("run_id", runID, "as_of", asOf.String())

	res, err := r.Reconstruct(ctx, asOf)
	if err != nil {
		return nil, err
	}
	c := r.Classifier
	if c == nil {
		c = classify.New(nil)
	}
	rep := report.Build(res.Table, asOf, c)
	summary := report.Summarize(rep)

	var snap, recs, bottom bytes.Buffer
	if err := cohort.WriteCSV(&snap, res.Table); err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	if err := rep.WriteCSV(&recs); err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	if err := report.WriteSummaryCSV(&bottom, summary); err != nil {
		return nil, fmt.Errorf("encode summary: %w", err)
	}

	if r.Cache != nil {
		if err := r.cache(ctx, runID, asOf, res.Table); err != nil {
			return nil, err
		}
	}

	out := &RefreshResult{RunID: runID, AsOf: asOf, Replay: res, Report: rep, Summary: summary}
	writes := []struct {
		sink artifact.Sink
		name string
		data []byte
	}{
		{r.Snapshots, report.SnapshotName(asOf), snap.Bytes()},
		{r.Outputs, report.ReportName(asOf), recs.Bytes()},
		{r.Outputs, report.SummaryName(asOf), bottom.Bytes()},
	}
	for _, w := range writes {
		loc, err := w.sink.Put(ctx, w.name, w.data)
		if err != nil {
			return nil, err
		}
		log.Info("wrote artifact", "location", loc, "bytes", len(w.data))
		out.Locations = append(out.Locations, loc)
	}

	if r.Metrics != nil {
		for _, s := range summary {
			for status, n := range statusCounts(rep, s.Category) {
				r.Metrics.Entities(s.Category, status, n)
			}
		}
	}
	counts := rep.StatusCounts()
	log.Info("refresh complete",
		"entities", len(rep.Rows),
		"on_track", counts[classify.StatusOnTrack],
		"behind", counts[classify.StatusBehind],
		"at_risk", counts[classify.StatusAtRisk])

	return out, r.finish("refresh")
}

func (r *Runner) cache(ctx context.Context, runID string, asOf civil.Date, t *cohort.Table) error {
	if err := r.Cache.Save(ctx, store.NewSnapshot(runID, asOf, t)); err != nil {
		return err
	}
	if r.CacheKeep > 0 {
		if err := r.Cache.Prune(ctx, r.CacheKeep); err != nil {
			return err
		}
	}
	return nil
}

// finish stamps and writes the metrics file if one is configured.
func (r *Runner) finish(command string) error {
	if r.Metrics == nil || r.MetricsFile == "" {
		return nil
	}
	r.Metrics.Succeeded(command, time.Now())
	return r.Metrics.WriteTextfile(r.MetricsFile)
}

// statusCounts counts every status, including zeros, for one category.
func statusCounts(rep *report.Report, category string) map[classify.Status]int {
	counts := make(map[classify.Status]int, 3)
	for _, s := range classify.Statuses() {
		counts[s] = 0
	}
	for _, row := range rep.Rows {
		if row.Entity.Category == category {
			counts[row.Status]++
		}
	}
	return counts
}
