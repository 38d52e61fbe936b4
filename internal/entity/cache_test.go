package entity

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/nerrad567/carewatch-core/internal/backend"
	"github.com/nerrad567/carewatch-core/internal/problem"
)

// fakeSource counts list calls and can be told to fail.
type fakeSource struct {
	mu       sync.Mutex
	persons  []backend.Record
	devices  []backend.Record
	mappings []backend.Record
	fail     map[Kind]error

	calls map[Kind]*atomic.Int32
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		persons:  []backend.Record{{"person_id": "P1", "person_name": "Ann"}, {"person_id": "P2"}},
		devices:  []backend.Record{{"device_id": "D1", "status": "online"}},
		mappings: []backend.Record{{"id": "M1", "person_id": "P1", "device_id": "D1"}},
		fail:     map[Kind]error{},
		calls: map[Kind]*atomic.Int32{
			KindPersons: {}, KindDevices: {}, KindMappings: {},
		},
	}
}

func (f *fakeSource) list(kind Kind, records []backend.Record) ([]backend.Record, error) {
	f.calls[kind].Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[kind]; err != nil {
		return nil, err
	}
	return records, nil
}

func (f *fakeSource) setFail(kind Kind, err error) {
	f.mu.Lock()
	f.fail[kind] = err
	f.mu.Unlock()
}

func (f *fakeSource) ListPersons(context.Context) ([]backend.Record, error) {
	return f.list(KindPersons, f.persons)
}

func (f *fakeSource) ListAllDevices(context.Context) ([]backend.Record, error) {
	return f.list(KindDevices, f.devices)
}

func (f *fakeSource) ListActiveMappings(context.Context) ([]backend.Record, error) {
	return f.list(KindMappings, f.mappings)
}

// fakeClock is a settable clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestCache(src Source) (*Cache, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)}
	c := NewCache(src, TTLs{Persons: 5 * time.Minute, Devices: time.Minute, Mappings: 2 * time.Minute})
	c.SetClock(clock.Now)
	return c, clock
}

func TestFetch_FreshReturnsSameCollectionWithoutCall(t *testing.T) {
	src := newFakeSource()
	cache, clock := newTestCache(src)
	ctx := context.Background()

	first, err := cache.FetchPersons(ctx, false)
	if err != nil {
		t.Fatalf("FetchPersons() error = %v", err)
	}
	clock.Advance(4 * time.Minute)

	second, err := cache.FetchPersons(ctx, false)
	if err != nil {
		t.Fatalf("FetchPersons() error = %v", err)
	}
	if got := src.calls[KindPersons].Load(); got != 1 {
		t.Errorf("list calls = %d, want 1", got)
	}
	if len(first) == 0 || &first[0] != &second[0] {
		t.Error("fresh fetch must return the same collection instance")
	}
}

func TestFetch_StaleIssuesOneCallAndReplaces(t *testing.T) {
	src := newFakeSource()
	cache, clock := newTestCache(src)
	ctx := context.Background()

	first, _ := cache.FetchDevices(ctx, false)
	fetchedAt := cache.LastFetched(KindDevices)

	clock.Advance(61 * time.Second)
	if !cache.IsStale(KindDevices) {
		t.Fatal("devices should be stale after TTL")
	}

	second, err := cache.FetchDevices(ctx, false)
	if err != nil {
		t.Fatalf("FetchDevices() error = %v", err)
	}
	if got := src.calls[KindDevices].Load(); got != 2 {
		t.Errorf("list calls = %d, want 2", got)
	}
	if &first[0] == &second[0] {
		t.Error("stale fetch must replace the collection")
	}
	if !cache.LastFetched(KindDevices).After(fetchedAt) {
		t.Error("fetch time not updated")
	}
	if cache.Loading(KindDevices) {
		t.Error("loading flag left set")
	}
}

func TestFetch_ForceBypassesTTL(t *testing.T) {
	src := newFakeSource()
	cache, _ := newTestCache(src)
	ctx := context.Background()

	_, _ = cache.FetchMappings(ctx, false)
	_, _ = cache.FetchMappings(ctx, true)

	if got := src.calls[KindMappings].Load(); got != 2 {
		t.Errorf("list calls = %d, want 2", got)
	}
}

func TestFetch_ZeroTTLAlwaysFetches(t *testing.T) {
	src := newFakeSource()
	cache := NewCache(src, TTLs{})
	ctx := context.Background()

	_, _ = cache.FetchPersons(ctx, false)
	_, _ = cache.FetchPersons(ctx, false)

	if got := src.calls[KindPersons].Load(); got != 2 {
		t.Errorf("list calls = %d, want 2", got)
	}
}

func TestFetch_FailureKeepsPreviousCollection(t *testing.T) {
	src := newFakeSource()
	cache, clock := newTestCache(src)
	ctx := context.Background()

	before, _ := cache.FetchPersons(ctx, false)
	fetchedAt := cache.LastFetched(KindPersons)

	src.setFail(KindPersons, &backend.HTTPError{Status: 503, Body: map[string]any{"message": "maintenance"}})
	clock.Advance(10 * time.Minute)

	got, err := cache.FetchPersons(ctx, false)
	if got != nil {
		t.Error("failed fetch should return no collection")
	}
	var p *problem.Problem
	if !errors.As(err, &p) {
		t.Fatalf("error = %T %v, want *problem.Problem", err, err)
	}
	if p.Status != 503 || p.Message != "maintenance" {
		t.Errorf("problem = %+v", p)
	}

	after := cache.Persons()
	if &after[0] != &before[0] {
		t.Error("previous collection must be left untouched")
	}
	if !cache.LastFetched(KindPersons).Equal(fetchedAt) {
		t.Error("fetch time must not change on failure")
	}
}

func TestFetch_UnknownKind(t *testing.T) {
	cache, _ := newTestCache(newFakeSource())
	if err := cache.Fetch(context.Background(), Kind("alerts"), false); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("Fetch() error = %v, want ErrUnknownKind", err)
	}
}

func TestFetch_NoSource(t *testing.T) {
	cache := NewCache(nil, TTLs{})
	if _, err := cache.FetchPersons(context.Background(), false); !errors.Is(err, ErrNoSource) {
		t.Errorf("error = %v, want ErrNoSource", err)
	}
}

func TestRefreshAll_FailureDoesNotCancelSiblings(t *testing.T) {
	src := newFakeSource()
	src.setFail(KindDevices, errors.New("connection reset"))
	cache, _ := newTestCache(src)

	err := cache.RefreshAll(context.Background(), false)
	if err == nil || err.Error() != "connection reset" {
		t.Fatalf("RefreshAll() error = %v", err)
	}
	if len(cache.Persons()) != 2 || len(cache.Mappings()) != 1 {
		t.Error("persons and mappings should load despite the device failure")
	}
	if len(cache.Devices()) != 0 {
		t.Error("devices should stay empty")
	}
}

func TestSelection(t *testing.T) {
	cache, _ := newTestCache(newFakeSource())
	ctx := context.Background()
	if err := cache.RefreshAll(ctx, false); err != nil {
		t.Fatalf("RefreshAll() error = %v", err)
	}

	if _, ok := cache.SelectedPerson(); ok {
		t.Error("nothing should be selected initially")
	}

	cache.SetSelectedPerson("P2")
	p, ok := cache.SelectedPerson()
	if !ok || p.PersonID != "P2" {
		t.Errorf("SelectedPerson() = %+v, %v", p, ok)
	}

	cache.SetSelectedDevice("D1")
	if d, ok := cache.SelectedDevice(); !ok || d.Status != StatusOnline {
		t.Errorf("SelectedDevice() = %+v, %v", d, ok)
	}

	cache.SetSelectedDevice("gone")
	if _, ok := cache.SelectedDevice(); ok {
		t.Error("unknown selection should not resolve")
	}
	if cache.SelectedDeviceID() != "gone" {
		t.Error("selection id is kept even if not cached")
	}

	cache.SetSelectedPerson("")
	if cache.SelectedPersonID() != "" {
		t.Error("empty id clears selection")
	}
	if got := cache.RecentPersonIDs(); !slices.Equal(got, []string{"P2"}) {
		t.Errorf("RecentPersonIDs() = %v", got)
	}
	if got := cache.RecentDeviceIDs(); !slices.Equal(got, []string{"gone", "D1"}) {
		t.Errorf("RecentDeviceIDs() = %v", got)
	}
}

func TestTrackRecent_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cache := NewCache(nil, TTLs{})
		kind := rapid.SampledFrom([]Kind{KindPersons, KindDevices}).Draw(t, "kind")
		ids := rapid.SliceOf(rapid.StringMatching(`[a-h]`)).Draw(t, "ids")

		for _, id := range ids {
			if err := cache.TrackRecent(kind, id); err != nil {
				t.Fatalf("TrackRecent() error = %v", err)
			}

			recent := cache.RecentPersonIDs()
			if kind == KindDevices {
				recent = cache.RecentDeviceIDs()
			}
			if len(recent) > MaxRecent {
				t.Fatalf("recent list has %d entries", len(recent))
			}
			if recent[0] != id {
				t.Fatalf("most recent = %q, want %q", recent[0], id)
			}
			seen := map[string]bool{}
			for _, r := range recent {
				if seen[r] {
					t.Fatalf("duplicate %q in %v", r, recent)
				}
				seen[r] = true
			}
		}
	})
}

func TestTrackRecent_MappingsRejected(t *testing.T) {
	cache := NewCache(nil, TTLs{})
	if err := cache.TrackRecent(KindMappings, "M1"); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("TrackRecent(mappings) = %v", err)
	}
}

func TestUpsertAndRemoveMapping(t *testing.T) {
	cache, _ := newTestCache(newFakeSource())
	ctx := context.Background()

	before, _ := cache.FetchMappings(ctx, false)

	cache.UpsertMapping(Mapping{ID: "M2", PersonID: "P2", DeviceID: "D1"})
	got := cache.Mappings()
	if len(got) != 2 || got[0].ID != "M2" {
		t.Fatalf("new mapping should be prepended: %+v", got)
	}

	cache.UpsertMapping(Mapping{ID: "M1", PersonID: "P1", DeviceID: "D9"})
	got = cache.Mappings()
	if len(got) != 2 || got[1].DeviceID != "D9" {
		t.Fatalf("existing mapping should be replaced in place: %+v", got)
	}
	if before[0].DeviceID != "D1" {
		t.Error("previously returned collection must not be mutated")
	}

	if !cache.RemoveMapping("M2") {
		t.Error("RemoveMapping(M2) = false")
	}
	if cache.RemoveMapping("M2") {
		t.Error("second RemoveMapping(M2) = true")
	}
	if got := cache.Mappings(); len(got) != 1 || got[0].ID != "M1" {
		t.Errorf("after remove: %+v", got)
	}

	// Local mutations never touch the network.
	if calls := cache.source.(*fakeSource).calls[KindMappings].Load(); calls != 1 {
		t.Errorf("list calls = %d, want 1", calls)
	}
}

func TestLoadingDuringFetch(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	src := &blockingSource{fakeSource: newFakeSource(), started: started, release: release}
	cache, _ := newTestCache(src)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = cache.FetchPersons(context.Background(), false)
	}()

	<-started
	if !cache.Loading(KindPersons) {
		t.Error("Loading() should be true during fetch")
	}
	close(release)
	<-done
	if cache.Loading(KindPersons) {
		t.Error("Loading() should be false after fetch")
	}
}

type blockingSource struct {
	*fakeSource
	started chan struct{}
	release chan struct{}
}

func (b *blockingSource) ListPersons(ctx context.Context) ([]backend.Record, error) {
	close(b.started)
	<-b.release
	return b.fakeSource.ListPersons(ctx)
}
