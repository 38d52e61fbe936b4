package entity

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/carewatch-core/internal/backend"
	"github.com/nerrad567/carewatch-core/internal/infrastructure/database"
	_ "github.com/nerrad567/carewatch-core/migrations"
)

func openSnapshotStore(t *testing.T) *SQLiteSnapshotStore {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "snapshots.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewSQLiteSnapshotStore(db.DB)
}

func TestSQLiteSnapshotStore_RoundTrip(t *testing.T) {
	store := openSnapshotStore(t)
	ctx := context.Background()
	at := time.Date(2026, 10, 19, 8, 30, 0, 123, time.UTC)

	err := store.SaveSnapshot(ctx, Snapshot{
		Kind:      KindDevices,
		Records:   []backend.Record{{"device_id": json.Number("12"), "status": "online"}},
		FetchedAt: at,
	})
	if err != nil {
		t.Fatalf("SaveSnapshot() error = %v", err)
	}

	// Second save replaces the first.
	err = store.SaveSnapshot(ctx, Snapshot{
		Kind:      KindDevices,
		Records:   []backend.Record{{"device_id": json.Number("13")}},
		FetchedAt: at.Add(time.Minute),
	})
	if err != nil {
		t.Fatalf("SaveSnapshot() error = %v", err)
	}

	snaps, err := store.LoadSnapshots(ctx)
	if err != nil {
		t.Fatalf("LoadSnapshots() error = %v", err)
	}
	if len(snaps) != 1 {
		t.Fatalf("got %d snapshots, want 1", len(snaps))
	}
	got := snaps[0]
	if got.Kind != KindDevices || !got.FetchedAt.Equal(at.Add(time.Minute)) {
		t.Errorf("snapshot = %+v", got)
	}
	if len(got.Records) != 1 || got.Records[0]["device_id"] != json.Number("13") {
		t.Errorf("records = %v", got.Records)
	}
}

func TestSQLiteSnapshotStore_SkipsUnknownKind(t *testing.T) {
	store := openSnapshotStore(t)
	ctx := context.Background()

	if _, err := store.db.ExecContext(ctx,
		"INSERT INTO entity_snapshots (kind, records, fetched_at) VALUES ('alerts', '[]', '2026-10-19T00:00:00Z')"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := store.db.ExecContext(ctx,
		"INSERT INTO entity_snapshots (kind, records, fetched_at) VALUES ('persons', 'not json', '2026-10-19T00:00:00Z')"); err != nil {
		t.Fatalf("insert: %v", err)
	}

	snaps, err := store.LoadSnapshots(ctx)
	if err != nil {
		t.Fatalf("LoadSnapshots() error = %v", err)
	}
	if len(snaps) != 0 {
		t.Errorf("got %d snapshots, want 0", len(snaps))
	}
}

func TestCache_SavesAndRestoresSnapshots(t *testing.T) {
	store := openSnapshotStore(t)
	ctx := context.Background()

	warm, _ := newTestCache(newFakeSource())
	warm.SetSnapshotStore(store)
	if err := warm.RefreshAll(ctx, false); err != nil {
		t.Fatalf("RefreshAll() error = %v", err)
	}

	src := newFakeSource()
	cold, clock := newTestCache(src)
	cold.SetSnapshotStore(store)

	n, err := cold.Restore(ctx)
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if n != 3 {
		t.Errorf("Restore() = %d, want 3", n)
	}
	if len(cold.Persons()) != 2 || cold.Persons()[0].PersonName != "Ann" {
		t.Errorf("restored persons = %+v", cold.Persons())
	}
	if m := cold.Mappings(); len(m) != 1 || m[0].ID != "M1" {
		t.Errorf("restored mappings = %+v", m)
	}

	// Restored collections keep their stored fetch time and age normally.
	if cold.IsStale(KindDevices) {
		t.Error("devices restored within TTL should be fresh")
	}
	clock.Advance(2 * time.Minute)
	if _, err := cold.FetchDevices(ctx, false); err != nil {
		t.Fatalf("FetchDevices() error = %v", err)
	}
	if got := src.calls[KindDevices].Load(); got != 1 {
		t.Errorf("list calls = %d, want 1", got)
	}

	// Populated collections are never overwritten.
	if n, _ := cold.Restore(ctx); n != 0 {
		t.Errorf("second Restore() = %d, want 0", n)
	}
}

type failingStore struct{}

func (failingStore) SaveSnapshot(context.Context, Snapshot) error { return errors.New("disk full") }
func (failingStore) LoadSnapshots(context.Context) ([]Snapshot, error) {
	return nil, errors.New("disk full")
}

func TestCache_SnapshotFailuresDoNotFailFetch(t *testing.T) {
	cache, _ := newTestCache(newFakeSource())
	cache.SetSnapshotStore(failingStore{})

	if _, err := cache.FetchPersons(context.Background(), false); err != nil {
		t.Errorf("FetchPersons() error = %v", err)
	}
	if _, err := cache.Restore(context.Background()); err == nil {
		t.Error("Restore() should report load failure")
	}
}

func TestCache_RestoreWithoutStore(t *testing.T) {
	cache, _ := newTestCache(newFakeSource())
	if n, err := cache.Restore(context.Background()); n != 0 || err != nil {
		t.Errorf("Restore() = %d, %v", n, err)
	}
}
