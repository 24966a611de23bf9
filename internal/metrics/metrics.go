// Package metrics collects per-run Prometheus metrics and writes them in
// the text exposition format, for node_exporter's textfile collector.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/abhisek/cohortwatch/internal/classify"
)

const namespace = "cohortwatch"

// Recorder holds the metrics of one run on its own registry.
type Recorder struct {
	reg *prometheus.Registry

	eventsAppended   prometheus.Counter
	eventsDuplicate  prometheus.Counter
	eventsApplied    prometheus.Counter
	eventsIgnored    prometheus.Counter
	entitiesByStatus *prometheus.GaugeVec
	replayDuration   prometheus.Gauge
	lastSuccess      *prometheus.GaugeVec
}

// New creates a Recorder with a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Recorder{
		reg: reg,
		eventsAppended: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "appended_total",
			Help:      "Events newly written to the event log",
		}),
		eventsDuplicate: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "duplicates_total",
			Help:      "Submitted events dropped as exact duplicates",
		}),
		eventsApplied: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "replay",
			Name:      "events_applied_total",
			Help:      "Events applied during replay",
		}),
		eventsIgnored: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "replay",
			Name:      "events_ignored_total",
			Help:      "Events skipped because their entity is not in the base table",
		}),
		entitiesByStatus: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cohort",
			Name:      "entities",
			Help:      "Entities by category and status as of the run date",
		}, []string{"category", "status"}),
		replayDuration: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "replay",
			Name:      "duration_seconds",
			Help:      "Wall time of the last replay",
		}),
		lastSuccess: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run by command",
		}, []string{"command"}),
	}
}

// Appended records the outcome of an append.
func (r *Recorder) Appended(added, duplicates int) {
	r.eventsAppended.Add(float64(added))
	r.eventsDuplicate.Add(float64(duplicates))
}

// Replayed records a replay's counts and duration.
func (r *Recorder) Replayed(applied, ignored int, took time.Duration) {
	r.eventsApplied.Add(float64(applied))
	r.eventsIgnored.Add(float64(ignored))
	r.replayDuration.Set(took.Seconds())
}

// Entities sets the entity count for a category and status.
func (r *Recorder) Entities(category string, status classify.Status, n int) {
	r.entitiesByStatus.WithLabelValues(category, string(status)).Set(float64(n))
}

// Succeeded marks command as completed at t.
func (r *Recorder) Succeeded(command string, t time.Time) {
	r.lastSuccess.WithLabelValues(command).Set(float64(t.Unix()))
}

// WriteTextfile writes the registry to path atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("write metrics %s: %w", path, err)
	}
	return nil
}
