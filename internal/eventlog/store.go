package eventlog

import (
	"context"
	"fmt"
	"sync"

	"cloud.google.com/go/civil"
)

// Backend persists the raw event log. Implementations only store and
// return rows in insertion order; validation and deduplication belong
// to Store.
type Backend interface {
	// Load returns every persisted event in insertion order.
	Load(ctx context.Context) ([]Event, error)

	// Append persists events after the existing ones.
	Append(ctx context.Context, events []Event) error
}

// Store is the append-only, validated event log.
type Store struct {
	// mu serializes Append so the full-log validation and the write that
	// follows it cannot interleave with another appender.
	mu        sync.Mutex
	backend   Backend
	whitelist Whitelist
}

// Option configures a Store.
type Option func(*Store)

// WithFields replaces the default field whitelist.
func WithFields(fields ...string) Option {
	return func(s *Store) { s.whitelist = NewWhitelist(fields...) }
}

// NewStore creates a Store over backend.
func NewStore(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend:   backend,
		whitelist: NewWhitelist(DefaultFields...),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Load returns the deduplicated log after validating it.
func (s *Store) Load(ctx context.Context) ([]Event, error) {
	raw, err := s.backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load event log: %w", err)
	}
	events := Dedup(raw)
	if err := s.whitelist.Validate(events); err != nil {
		return nil, err
	}
	return events, nil
}

// UpTo returns the validated events dated on or before asOf.
func (s *Store) UpTo(ctx context.Context, asOf civil.Date) ([]Event, error) {
	events, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	return UpTo(events, asOf), nil
}

// AppendResult describes the outcome of an Append.
type AppendResult struct {
	Added      []Event // events that were not already in the log
	Duplicates int     // incoming events collapsed as exact duplicates
	Total      int     // log size after the append
}

// Append merges events into the log. The merged log is validated as a
// whole before anything is written; on a ValidationError the stored log
// is left unchanged.
func (s *Store) Append(ctx context.Context, events []Event) (*AppendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load event log: %w", err)
	}
	existing := Dedup(raw)
	combined := Merge(existing, events)

	if err := s.whitelist.Validate(combined); err != nil {
		return nil, err
	}

	added := combined[len(existing):]
	res := &AppendResult{
		Added:      added,
		Duplicates: len(events) - len(added),
		Total:      len(combined),
	}
	if len(added) == 0 {
		return res, nil
	}
	if err := s.backend.Append(ctx, added); err != nil {
		return nil, fmt.Errorf("persist events: %w", err)
	}
	return res, nil
}

// MemoryBackend keeps the log in process memory.
type MemoryBackend struct {
	mu     sync.Mutex
	events []Event
}

// NewMemoryBackend creates a MemoryBackend seeded with events.
func NewMemoryBackend(events ...Event) *MemoryBackend {
	return &MemoryBackend{events: append([]Event(nil), events...)}
}

func (m *MemoryBackend) Load(_ context.Context) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...), nil
}

func (m *MemoryBackend) Append(_ context.Context, events []Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
	return nil
}
