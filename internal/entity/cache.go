package entity

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/carewatch-core/internal/backend"
	"github.com/nerrad567/carewatch-core/internal/problem"
)

// MaxRecent bounds each most-recently-used selection list.
const MaxRecent = 6

// Logger defines the logging interface used by the Cache.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Source lists raw entity records. *backend.Client satisfies it.
type Source interface {
	ListPersons(ctx context.Context) ([]backend.Record, error)
	ListAllDevices(ctx context.Context) ([]backend.Record, error)
	ListActiveMappings(ctx context.Context) ([]backend.Record, error)
}

// TTLs holds the time-to-live per collection. Zero means always stale.
type TTLs struct {
	Persons  time.Duration
	Devices  time.Duration
	Mappings time.Duration
}

func (t TTLs) of(kind Kind) time.Duration {
	switch kind {
	case KindPersons:
		return t.Persons
	case KindDevices:
		return t.Devices
	case KindMappings:
		return t.Mappings
	}
	return 0
}

// collection is one cached list with its fetch bookkeeping.
type collection[T any] struct {
	items     []T
	fetchedAt time.Time
	loading   int
}

// Cache holds persons, devices and mappings with TTL-gated refresh,
// selection state and recently selected IDs.
//
// All public methods are thread-safe.
type Cache struct {
	source Source
	ttl    TTLs
	norm   normalizer
	logger Logger
	store  SnapshotStore

	mu       sync.RWMutex
	persons  collection[Person]
	devices  collection[Device]
	mappings collection[Mapping]

	selectedPersonID string
	selectedDeviceID string
	recentPersons    []string
	recentDevices    []string
}

// NewCache creates an empty cache backed by source.
func NewCache(source Source, ttl TTLs) *Cache {
	return &Cache{
		source: source,
		ttl:    ttl,
		norm:   normalizer{now: time.Now},
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the cache.
func (c *Cache) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	c.logger = logger
}

// SetSnapshotStore attaches persistence for successful fetches.
func (c *Cache) SetSnapshotStore(store SnapshotStore) {
	c.store = store
}

// SetClock replaces time.Now. Tests use it to age collections.
func (c *Cache) SetClock(now func() time.Time) {
	c.mu.Lock()
	c.norm = normalizer{now: now}
	c.mu.Unlock()
}

func (c *Cache) fresh(fetchedAt time.Time, ttl time.Duration) bool {
	if fetchedAt.IsZero() || ttl <= 0 {
		return false
	}
	return c.norm.now().Sub(fetchedAt) < ttl
}

// fetchCollection implements the TTL contract for one collection.
//
// Fresh and not forced: the published slice is returned as is, no call.
// Otherwise: list, normalise, publish a new slice, stamp the time.
// On failure the previous slice stays and a *problem.Problem is returned.
func fetchCollection[T any](
	ctx context.Context,
	c *Cache,
	kind Kind,
	col *collection[T],
	force bool,
	list func(context.Context) ([]backend.Record, error),
	normalize func(backend.Record) T,
) ([]T, error) {
	c.mu.Lock()
	if !force && c.fresh(col.fetchedAt, c.ttl.of(kind)) {
		items := col.items
		c.mu.Unlock()
		return items, nil
	}
	col.loading++
	c.mu.Unlock()

	records, err := list(ctx)

	c.mu.Lock()
	col.loading--
	if err != nil {
		c.mu.Unlock()
		p := problem.Normalize(err)
		c.logger.Warn("entity fetch failed", "kind", kind, "error", p.Message, "status", p.Status)
		return nil, p
	}

	items := make([]T, len(records))
	for i, r := range records {
		items[i] = normalize(r)
	}
	fetchedAt := c.norm.now()
	col.items = items
	col.fetchedAt = fetchedAt
	c.mu.Unlock()

	c.logger.Debug("entity collection loaded", "kind", kind, "count", len(items))
	c.saveSnapshot(ctx, kind, records, fetchedAt)

	return items, nil
}

// FetchPersons returns the person collection, fetching when stale or forced.
func (c *Cache) FetchPersons(ctx context.Context, force bool) ([]Person, error) {
	if c.source == nil {
		return nil, ErrNoSource
	}
	return fetchCollection(ctx, c, KindPersons, &c.persons, force, c.source.ListPersons,
		func(r backend.Record) Person { return c.norm.person(r, "") })
}

// FetchDevices returns the device collection, fetching when stale or forced.
func (c *Cache) FetchDevices(ctx context.Context, force bool) ([]Device, error) {
	if c.source == nil {
		return nil, ErrNoSource
	}
	return fetchCollection(ctx, c, KindDevices, &c.devices, force, c.source.ListAllDevices,
		func(r backend.Record) Device { return c.norm.device(r, "") })
}

// FetchMappings returns the active mappings, fetching when stale or forced.
func (c *Cache) FetchMappings(ctx context.Context, force bool) ([]Mapping, error) {
	if c.source == nil {
		return nil, ErrNoSource
	}
	return fetchCollection(ctx, c, KindMappings, &c.mappings, force, c.source.ListActiveMappings, c.norm.mapping)
}

// Fetch refreshes one collection by kind.
func (c *Cache) Fetch(ctx context.Context, kind Kind, force bool) error {
	var err error
	switch kind {
	case KindPersons:
		_, err = c.FetchPersons(ctx, force)
	case KindDevices:
		_, err = c.FetchDevices(ctx, force)
	case KindMappings:
		_, err = c.FetchMappings(ctx, force)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return err
}

// RefreshAll fetches the three collections concurrently and waits for all
// of them. A failure does not cancel the others; the first error is
// returned.
func (c *Cache) RefreshAll(ctx context.Context, force bool) error {
	var g errgroup.Group
	for _, kind := range Kinds {
		g.Go(func() error {
			return c.Fetch(ctx, kind, force)
		})
	}
	return g.Wait()
}

// Persons returns the cached persons without fetching.
func (c *Cache) Persons() []Person {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.persons.items
}

// Devices returns the cached devices without fetching.
func (c *Cache) Devices() []Device {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.devices.items
}

// Mappings returns the cached mappings without fetching.
func (c *Cache) Mappings() []Mapping {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mappings.items
}

// LastFetched returns when kind was last fetched; zero if never.
func (c *Cache) LastFetched(kind Kind) time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch kind {
	case KindPersons:
		return c.persons.fetchedAt
	case KindDevices:
		return c.devices.fetchedAt
	case KindMappings:
		return c.mappings.fetchedAt
	}
	return time.Time{}
}

// IsStale reports whether a non-forced fetch of kind would hit the network.
func (c *Cache) IsStale(kind Kind) bool {
	fetchedAt := c.LastFetched(kind)
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.fresh(fetchedAt, c.ttl.of(kind))
}

// Loading reports whether a fetch of kind is in flight.
func (c *Cache) Loading(kind Kind) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch kind {
	case KindPersons:
		return c.persons.loading > 0
	case KindDevices:
		return c.devices.loading > 0
	case KindMappings:
		return c.mappings.loading > 0
	}
	return false
}

// SetSelectedPerson selects a person by ID and records it as recent.
// An empty ID clears the selection.
func (c *Cache) SetSelectedPerson(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selectedPersonID = id
	if id != "" {
		c.recentPersons = pushRecent(c.recentPersons, id)
	}
}

// SetSelectedDevice selects a device by ID and records it as recent.
// An empty ID clears the selection.
func (c *Cache) SetSelectedDevice(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selectedDeviceID = id
	if id != "" {
		c.recentDevices = pushRecent(c.recentDevices, id)
	}
}

// SelectedPersonID returns the selected person ID, or "".
func (c *Cache) SelectedPersonID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.selectedPersonID
}

// SelectedDeviceID returns the selected device ID, or "".
func (c *Cache) SelectedDeviceID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.selectedDeviceID
}

// SelectedPerson returns the cached record of the selected person.
func (c *Cache) SelectedPerson() (Person, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.selectedPersonID == "" {
		return Person{}, false
	}
	for _, p := range c.persons.items {
		if p.PersonID == c.selectedPersonID {
			return p, true
		}
	}
	return Person{}, false
}

// SelectedDevice returns the cached record of the selected device.
func (c *Cache) SelectedDevice() (Device, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.selectedDeviceID == "" {
		return Device{}, false
	}
	for _, d := range c.devices.items {
		if d.DeviceID == c.selectedDeviceID {
			return d, true
		}
	}
	return Device{}, false
}

// TrackRecent moves id to the front of the recent list for kind.
// Only persons and devices keep recent lists.
func (c *Cache) TrackRecent(kind Kind, id string) error {
	if id == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	switch kind {
	case KindPersons:
		c.recentPersons = pushRecent(c.recentPersons, id)
	case KindDevices:
		c.recentDevices = pushRecent(c.recentDevices, id)
	default:
		return fmt.Errorf("%w: no recent list for %q", ErrUnknownKind, kind)
	}
	return nil
}

// RecentPersonIDs returns recently selected person IDs, newest first.
func (c *Cache) RecentPersonIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.recentPersons)
}

// RecentDeviceIDs returns recently selected device IDs, newest first.
func (c *Cache) RecentDeviceIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.recentDevices)
}

// pushRecent returns a new list with id first, de-duplicated and capped.
func pushRecent(list []string, id string) []string {
	out := make([]string, 0, MaxRecent)
	out = append(out, id)
	for _, existing := range list {
		if len(out) == MaxRecent {
			break
		}
		if existing != id {
			out = append(out, existing)
		}
	}
	return out
}

// UpsertMapping replaces the mapping with the same ID in place, or
// prepends it. Local only; no request is made.
func (c *Cache) UpsertMapping(m Mapping) {
	c.mu.Lock()
	defer c.mu.Unlock()

	current := c.mappings.items
	if i := slices.IndexFunc(current, func(existing Mapping) bool { return existing.ID == m.ID }); i >= 0 {
		next := slices.Clone(current)
		next[i] = m
		c.mappings.items = next
		return
	}

	next := make([]Mapping, 0, len(current)+1)
	next = append(next, m)
	next = append(next, current...)
	c.mappings.items = next
}

// RemoveMapping drops the mapping with the given ID. It reports whether
// anything was removed. Local only; no request is made.
func (c *Cache) RemoveMapping(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	current := c.mappings.items
	next := make([]Mapping, 0, len(current))
	for _, m := range current {
		if m.ID != id {
			next = append(next, m)
		}
	}
	if len(next) == len(current) {
		return false
	}
	c.mappings.items = next
	return true
}
