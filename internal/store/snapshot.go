package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"
)

const snapshotsTable = "snapshots"

// snapshotRepo implements SnapshotRepo on the snapshots table.
type snapshotRepo struct {
	db      *sql.DB
	dialect string
}

func (r *snapshotRepo) Save(ctx context.Context, snap *Snapshot) error {
	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(snap.Data)
	if err != nil {
		return fmt.Errorf("marshal snapshot data: %w", err)
	}

	query, args := builder(r.dialect).Insert(snapshotsTable).
		Columns("id", "run_id", "as_of", "created_at", "entity_count", "data").
		Values(snap.ID, snap.RunID, snap.AsOf.String(), snap.CreatedAt.UnixNano(), len(snap.Data.Entities), string(data)).
		Query()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func (r *snapshotRepo) Latest(ctx context.Context) (*Snapshot, error) {
	return r.first(ctx, nil)
}

func (r *snapshotRepo) ForDate(ctx context.Context, asOf civil.Date) (*Snapshot, error) {
	return r.first(ctx, entsql.EQ("as_of", asOf.String()))
}

func (r *snapshotRepo) first(ctx context.Context, where *entsql.Predicate) (*Snapshot, error) {
	d := builder(r.dialect)
	sel := d.Select("id", "run_id", "as_of", "created_at", "data").
		From(d.Table(snapshotsTable)).
		OrderBy(entsql.Desc("created_at")).
		Limit(1)
	if where != nil {
		sel.Where(where)
	}
	query, args := sel.Query()

	var (
		snap    Snapshot
		asOf    string
		created int64
		data    string
	)
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&snap.ID, &snap.RunID, &asOf, &created, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query snapshot: %w", err)
	}
	if snap.AsOf, err = civil.ParseDate(asOf); err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", snap.ID, err)
	}
	snap.CreatedAt = time.Unix(0, created).UTC()
	if err := json.Unmarshal([]byte(data), &snap.Data); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot %s: %w", snap.ID, err)
	}
	return &snap, nil
}

func (r *snapshotRepo) List(ctx context.Context, limit int) ([]SnapshotInfo, error) {
	d := builder(r.dialect)
	sel := d.Select("id", "run_id", "as_of", "created_at", "entity_count").
		From(d.Table(snapshotsTable)).
		OrderBy(entsql.Desc("created_at"))
	if limit > 0 {
		sel.Limit(limit)
	}
	query, args := sel.Query()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []SnapshotInfo
	for rows.Next() {
		var (
			info    SnapshotInfo
			asOf    string
			created int64
		)
		if err := rows.Scan(&info.ID, &info.RunID, &asOf, &created, &info.Entities); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		if info.AsOf, err = civil.ParseDate(asOf); err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", info.ID, err)
		}
		info.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, info)
	}
	return out, rows.Err()
}

func (r *snapshotRepo) Prune(ctx context.Context, keep int) error {
	// The keep-th newest snapshot (zero based) is the newest one to delete.
	d := builder(r.dialect)
	query, args := d.Select("created_at").
		From(d.Table(snapshotsTable)).
		OrderBy(entsql.Desc("created_at")).
		Offset(keep).
		Limit(1).
		Query()

	var threshold int64
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&threshold)
	if errors.Is(err, sql.ErrNoRows) {
		return nil // fewer than keep snapshots exist
	}
	if err != nil {
		return fmt.Errorf("query snapshots for prune: %w", err)
	}

	query, args = d.Delete(snapshotsTable).
		Where(entsql.LTE("created_at", threshold)).
		Query()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("prune snapshots: %w", err)
	}
	return nil
}
