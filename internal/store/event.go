package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/abhisek/cohortwatch/internal/eventlog"
)

const eventsTable = "update_events"

// EventBackend stores the event log in the update_events table. Rows are
// ordered by a global sequence number, which is the log order used to
// break same-day ties on replay.
type EventBackend struct {
	db      *sql.DB
	dialect string
	seq     *sequenceCounter
}

var _ eventlog.Backend = (*EventBackend)(nil)

// Load returns every event in sequence order.
func (b *EventBackend) Load(ctx context.Context) ([]eventlog.Event, error) {
	d := builder(b.dialect)
	query, args := d.Select("entity_id", "event_date", "field", "new_value", "source").
		From(d.Table(eventsTable)).
		OrderBy(entsql.Asc("seq")).
		Query()

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []eventlog.Event
	for rows.Next() {
		var (
			ev   eventlog.Event
			date string
		)
		if err := rows.Scan(&ev.EntityID, &date, &ev.Field, &ev.NewValue, &ev.Source); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if ev.Date, err = eventlog.ParseDate(date); err != nil {
			return nil, fmt.Errorf("event for %s: %w", ev.EntityID, err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Append inserts events in one transaction, each with the next sequence
// number. Exact duplicates already present are skipped by the unique
// constraint.
func (b *EventBackend) Append(ctx context.Context, events []eventlog.Event) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().UnixNano()
	for _, ev := range events {
		seqNum, err := b.seq.Next(ctx, tx)
		if err != nil {
			return err
		}
		query, args := builder(b.dialect).Insert(eventsTable).
			Columns("seq", "entity_id", "event_date", "field", "new_value", "source", "recorded_at").
			Values(seqNum, ev.EntityID, ev.Date.String(), ev.Field, ev.NewValue, ev.Source, now).
			OnConflict(
				entsql.ConflictColumns("entity_id", "event_date", "field", "new_value"),
				entsql.DoNothing(),
			).
			Query()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("save event %s: %w", ev, err)
		}
	}
	return tx.Commit()
}

// sequenceCounter hands out the global monotonic sequence numbers that
// order the log. The counter is a single-row table so SQLite and Postgres
// behave the same; RETURNING makes each increment atomic.
type sequenceCounter struct {
	mu sync.Mutex
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// newSequenceCounter ensures the tracking table exists and is seeded.
func newSequenceCounter(ctx context.Context, db *sql.DB, dia string) (*sequenceCounter, error) {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS global_sequence (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		next_val BIGINT NOT NULL DEFAULT 1
	)`)
	if err != nil {
		return nil, fmt.Errorf("create sequence table: %w", err)
	}

	query, args := builder(dia).Insert("global_sequence").
		Columns("id", "next_val").
		Values(1, 1).
		OnConflict(entsql.ConflictColumns("id"), entsql.DoNothing()).
		Query()
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("seed sequence: %w", err)
	}

	return &sequenceCounter{}, nil
}

// Next atomically returns the next sequence number and increments the
// counter. q is usually the transaction the number will be used in.
func (sc *sequenceCounter) Next(ctx context.Context, q querier) (int64, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	var seq int64
	err := q.QueryRowContext(ctx,
		`UPDATE global_sequence SET next_val = next_val + 1 WHERE id = 1 RETURNING next_val - 1`,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("next sequence: %w", err)
	}
	return seq, nil
}
