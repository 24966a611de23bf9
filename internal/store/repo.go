package store

import (
	"context"
	"time"

	"cloud.google.com/go/civil"

	"github.com/abhisek/cohortwatch/internal/cohort"
)

// snapshotVersion is bumped when the encoded SnapshotData layout changes.
const snapshotVersion = 1

// SnapshotData captures a reconstructed cohort table.
type SnapshotData struct {
	Version  int             `json:"version"`
	Columns  []string        `json:"columns"`
	Entities []cohort.Entity `json:"entities"`
}

// Snapshot is a cached reconstruction of the cohort as of one date.
type Snapshot struct {
	ID        string
	RunID     string
	AsOf      civil.Date
	CreatedAt time.Time
	Data      SnapshotData
}

// SnapshotInfo describes a stored snapshot without its data.
type SnapshotInfo struct {
	ID        string
	RunID     string
	AsOf      civil.Date
	CreatedAt time.Time
	Entities  int
}

// NewSnapshot captures t as of asOf for the given run.
func NewSnapshot(runID string, asOf civil.Date, t *cohort.Table) *Snapshot {
	c := t.Clone()
	return &Snapshot{
		RunID: runID,
		AsOf:  asOf,
		Data: SnapshotData{
			Version:  snapshotVersion,
			Columns:  c.Columns,
			Entities: c.Entities,
		},
	}
}

// Table rebuilds the cohort table held by the snapshot.
func (s *Snapshot) Table() *cohort.Table {
	t := &cohort.Table{
		Columns:  s.Data.Columns,
		Entities: s.Data.Entities,
	}
	return t.Clone()
}

// SnapshotRepo manages cached cohort snapshots.
type SnapshotRepo interface {
	// Save stores a new snapshot. An empty ID and zero CreatedAt are
	// filled in.
	Save(ctx context.Context, snap *Snapshot) error

	// Latest returns the most recent snapshot, or nil if none exist.
	Latest(ctx context.Context) (*Snapshot, error)

	// ForDate returns the most recent snapshot taken as of asOf, or nil.
	ForDate(ctx context.Context, asOf civil.Date) (*Snapshot, error)

	// List returns up to limit snapshots, newest first. limit <= 0 means all.
	List(ctx context.Context, limit int) ([]SnapshotInfo, error)

	// Prune deletes all but the N most recent snapshots.
	Prune(ctx context.Context, keep int) error
}
