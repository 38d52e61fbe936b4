package entity

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/carewatch-core/internal/backend"
)

// Snapshot is the raw result of one successful collection fetch.
type Snapshot struct {
	Kind      Kind
	Records   []backend.Record
	FetchedAt time.Time
}

// SnapshotStore persists the last successful fetch per kind so a restart
// can serve lists before the backend answers.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, s Snapshot) error
	LoadSnapshots(ctx context.Context) ([]Snapshot, error)
}

// SQLiteSnapshotStore implements SnapshotStore on the entity_snapshots table.
type SQLiteSnapshotStore struct {
	db *sql.DB
}

// NewSQLiteSnapshotStore creates a snapshot store on an open, migrated
// database.
func NewSQLiteSnapshotStore(db *sql.DB) *SQLiteSnapshotStore {
	return &SQLiteSnapshotStore{db: db}
}

// SaveSnapshot replaces the stored snapshot for s.Kind.
func (s *SQLiteSnapshotStore) SaveSnapshot(ctx context.Context, snap Snapshot) error {
	if snap.Records == nil {
		snap.Records = []backend.Record{}
	}
	data, err := json.Marshal(snap.Records)
	if err != nil {
		return fmt.Errorf("marshalling %s snapshot: %w", snap.Kind, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO entity_snapshots (kind, records, fetched_at) VALUES (?, ?, ?)
		ON CONFLICT(kind) DO UPDATE SET records = excluded.records, fetched_at = excluded.fetched_at`,
		string(snap.Kind),
		string(data),
		snap.FetchedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("saving %s snapshot: %w", snap.Kind, err)
	}
	return nil
}

// LoadSnapshots returns every stored snapshot. Rows with an unknown kind
// or unreadable data are skipped.
func (s *SQLiteSnapshotStore) LoadSnapshots(ctx context.Context) ([]Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT kind, records, fetched_at FROM entity_snapshots")
	if err != nil {
		return nil, fmt.Errorf("querying snapshots: %w", err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var kind, data, fetchedAt string
		if err := rows.Scan(&kind, &data, &fetchedAt); err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}

		k, err := ParseKind(kind)
		if err != nil {
			continue
		}
		ts, err := time.Parse(time.RFC3339Nano, fetchedAt)
		if err != nil {
			continue
		}

		var records []backend.Record
		dec := json.NewDecoder(strings.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&records); err != nil {
			continue
		}

		out = append(out, Snapshot{Kind: k, Records: records, FetchedAt: ts})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating snapshots: %w", err)
	}
	return out, nil
}

// saveSnapshot persists a fetch result. Failures are logged only.
func (c *Cache) saveSnapshot(ctx context.Context, kind Kind, records []backend.Record, fetchedAt time.Time) {
	if c.store == nil {
		return
	}
	if err := c.store.SaveSnapshot(ctx, Snapshot{Kind: kind, Records: records, FetchedAt: fetchedAt}); err != nil {
		c.logger.Warn("saving entity snapshot failed", "kind", kind, "error", err)
	}
}

// Restore loads stored snapshots into collections that have never been
// fetched. The stored fetch time is kept, so an old snapshot is still
// stale and the next non-forced fetch goes to the backend.
//
// Returns the number of collections restored.
func (c *Cache) Restore(ctx context.Context) (int, error) {
	if c.store == nil {
		return 0, nil
	}
	snaps, err := c.store.LoadSnapshots(ctx)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	restored := 0
	for _, snap := range snaps {
		switch snap.Kind {
		case KindPersons:
			restored += restoreInto(&c.persons, snap, func(r backend.Record) Person { return c.norm.person(r, "") })
		case KindDevices:
			restored += restoreInto(&c.devices, snap, func(r backend.Record) Device { return c.norm.device(r, "") })
		case KindMappings:
			restored += restoreInto(&c.mappings, snap, c.norm.mapping)
		}
	}

	c.logger.Info("entity snapshots restored", "collections", restored)
	return restored, nil
}

func restoreInto[T any](col *collection[T], snap Snapshot, normalize func(backend.Record) T) int {
	if !col.fetchedAt.IsZero() {
		return 0
	}
	items := make([]T, len(snap.Records))
	for i, r := range snap.Records {
		items[i] = normalize(r)
	}
	col.items = items
	col.fetchedAt = snap.FetchedAt
	return 1
}
