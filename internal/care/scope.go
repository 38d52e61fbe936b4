package care

import (
	"context"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/carewatch-core/internal/backend"
	"github.com/nerrad567/carewatch-core/internal/entity"
	"github.com/nerrad567/carewatch-core/internal/problem"
)

const defaultHistorySize = 40

// Problem sections reported in View.Problems. History problems are keyed
// "history:<personID>".
const (
	SectionAlerts     = "alerts"
	SectionOverview   = "deviceOverview"
	SectionDetections = "detections"
	sectionHistory    = "history:"
)

// HistorySection is the problem section for a person's vital history.
func HistorySection(personID string) string {
	return sectionHistory + personID
}

// Logger defines the logging interface used by the Scope.
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

// Source provides the care data beside the entity lists.
// *backend.Client satisfies it.
type Source interface {
	ListAlerts(ctx context.Context, q backend.AlertQuery) ([]backend.Record, error)
	DeviceOverview(ctx context.Context) (backend.Record, error)
	DetectionSummaries(ctx context.Context) ([]backend.Record, error)
	VitalSamples(ctx context.Context, personID string, q backend.HistoryQuery) ([]backend.Record, error)
}

// Options configures a Scope. Zero values take defaults.
type Options struct {
	// HistorySize is the number of vital samples fetched per person.
	HistorySize int

	// AlertStatus is the initial status filter. Empty keeps ACTIVE.
	AlertStatus string
}

// Scope owns the aggregated dashboard state for the person in scope.
//
// Thread Safety: all methods are safe for concurrent use.
type Scope struct {
	cache       *entity.Cache
	source      Source
	logger      Logger
	historySize int
	now         func() time.Time
	onHydrated  func(View)

	syncing atomic.Bool

	mu           sync.RWMutex
	alerts       []Alert
	alertSeq     uint64 // bumped per RefreshAlerts; only the latest may write
	filter       AlertFilter
	overview     *DeviceOverview
	detections   []DetectionSummary
	histories    map[string][]VitalPoint
	problems     map[string]*problem.Problem
	lastSyncedAt time.Time
}

// NewScope creates an empty scope over cache and source.
//
// Parameters:
//   - cache: Entity cache used for persons, devices, mappings and selection
//   - source: Backend for alerts, overview, detections and history
//   - opts: Tunables; zero values take defaults
//
// Returns:
//   - *Scope: Ready scope with empty state
func NewScope(cache *entity.Cache, source Source, opts Options) *Scope {
	s := &Scope{
		cache:       cache,
		source:      source,
		logger:      noopLogger{},
		historySize: opts.HistorySize,
		now:         time.Now,
	}
	if s.historySize <= 0 {
		s.historySize = defaultHistorySize
	}
	s.Reset()
	if opts.AlertStatus != "" {
		s.filter.Status = filterValue(opts.AlertStatus)
	}
	return s
}

// SetLogger sets the logger for the scope.
func (s *Scope) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	s.logger = logger
}

// SetOnHydrated registers a callback run with the fresh view after each
// completed hydration. Dropped calls do not trigger it.
func (s *Scope) SetOnHydrated(callback func(View)) {
	s.onHydrated = callback
}

// Cache returns the entity cache the scope reads from.
func (s *Scope) Cache() *entity.Cache {
	return s.cache
}

// Reset clears all aggregated state and restores the default filter.
// The entity cache is left alone.
func (s *Scope) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = []Alert{}
	s.filter = DefaultAlertFilter()
	s.overview = nil
	s.detections = []DetectionSummary{}
	s.histories = map[string][]VitalPoint{}
	s.problems = map[string]*problem.Problem{}
	s.lastSyncedAt = time.Time{}
}

// HydrateScope refreshes everything the dashboard shows.
//
// It refreshes the entity cache, resolves the person in scope (selected
// person, else the first cached person) and selects it when nothing is
// selected. Alerts, device overview and detections are then refreshed
// concurrently; once all three settle the person's vital history is
// fetched.
//
// A call made while another is in flight does nothing and returns false.
//
// Parameters:
//   - ctx: Context for the backend requests
//   - force: Bypass entity cache TTLs
//
// Returns:
//   - bool: false if the call was dropped because a hydration was running
func (s *Scope) HydrateScope(ctx context.Context, force bool) bool {
	if !s.syncing.CompareAndSwap(false, true) {
		s.logger.Debug("hydration already in flight, skipping")
		return false
	}
	defer s.syncing.Store(false)

	start := s.now()

	if err := s.cache.RefreshAll(ctx, force); err != nil {
		s.logger.Warn("entity refresh failed", "error", err)
	}

	preferred := s.resolvePerson("")
	if preferred != "" && s.cache.SelectedPersonID() == "" {
		s.cache.SetSelectedPerson(preferred)
	}

	var g errgroup.Group
	g.Go(func() error {
		s.RefreshAlerts(ctx, "")
		return nil
	})
	g.Go(func() error {
		s.RefreshDeviceOverview(ctx)
		return nil
	})
	g.Go(func() error {
		s.RefreshDetections(ctx)
		return nil
	})
	_ = g.Wait()

	if preferred != "" {
		s.FetchHistory(ctx, preferred, 0)
	}

	s.mu.Lock()
	s.lastSyncedAt = s.now()
	s.mu.Unlock()

	s.logger.Debug("scope hydrated", "person_id", preferred, "force", force, "duration", s.now().Sub(start))
	if s.onHydrated != nil {
		s.onHydrated(s.View())
	}
	return true
}

// Syncing reports whether a hydration is in flight.
func (s *Scope) Syncing() bool {
	return s.syncing.Load()
}

// LastSyncedAt returns when the last hydration finished; zero if never.
func (s *Scope) LastSyncedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSyncedAt
}

// resolvePerson picks the person in scope: explicit, then the cache's
// selection, then the first cached person.
func (s *Scope) resolvePerson(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if id := s.cache.SelectedPersonID(); id != "" {
		return id
	}
	if persons := s.cache.Persons(); len(persons) > 0 {
		return persons[0].PersonID
	}
	return ""
}

// fail records a read failure for section and logs it.
func (s *Scope) fail(section, msg string, err error) *problem.Problem {
	p := problem.Normalize(err)
	s.logger.Warn(msg, "section", section, "error", p.Message, "status", p.Status)
	return p
}

// RefreshAlerts fetches alerts under the current filter.
//
// personID scopes the request explicitly. When empty and the filter's
// person scope is not ALL, the selected person is used. On failure the
// alerts become empty. A response that arrives after a later call has
// started is discarded, so the alerts always match the newest request.
func (s *Scope) RefreshAlerts(ctx context.Context, personID string) {
	s.mu.Lock()
	s.alertSeq++
	seq, filter := s.alertSeq, s.filter
	s.mu.Unlock()

	if personID == "" && filter.PersonScope != All {
		personID = s.cache.SelectedPersonID()
	}

	records, err := s.source.ListAlerts(ctx, filter.query(personID))

	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.alertSeq {
		s.logger.Debug("discarding superseded alert response", "status", filter.Status, "category", filter.Category)
		return
	}
	if err != nil {
		s.alerts = []Alert{}
		s.setProblem(SectionAlerts, s.fail(SectionAlerts, "failed to refresh alerts", err))
		return
	}
	s.alerts = normalizeAll(records, NormalizeAlert)
	s.setProblem(SectionAlerts, nil)
}

// RefreshDeviceOverview fetches the fleet overview. On failure it is nil.
func (s *Scope) RefreshDeviceOverview(ctx context.Context) {
	record, err := s.source.DeviceOverview(ctx)

	var (
		p        *problem.Problem
		overview *DeviceOverview
	)
	if err != nil {
		p = s.fail(SectionOverview, "failed to fetch device overview", err)
	} else {
		o := NormalizeOverview(record)
		overview = &o
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.overview = overview
	s.setProblem(SectionOverview, p)
}

// RefreshDetections fetches detection summaries. On failure they become
// empty.
func (s *Scope) RefreshDetections(ctx context.Context) {
	records, err := s.source.DetectionSummaries(ctx)

	var p *problem.Problem
	if err != nil {
		p = s.fail(SectionDetections, "failed to fetch detection summaries", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if p != nil {
		s.detections = []DetectionSummary{}
	} else {
		s.detections = normalizeAll(records, NormalizeDetection)
	}
	s.setProblem(SectionDetections, p)
}

// FetchHistory fetches vital history for a person. An empty personID
// resolves to the person in scope; with nobody in scope nothing happens.
// size <= 0 uses the configured history size. On failure the person's
// history becomes empty.
func (s *Scope) FetchHistory(ctx context.Context, personID string, size int) {
	target := s.resolvePerson(personID)
	if target == "" {
		return
	}
	if size <= 0 {
		size = s.historySize
	}

	records, err := s.source.VitalSamples(ctx, target, backend.HistoryQuery{Size: size})

	section := HistorySection(target)
	var p *problem.Problem
	if err != nil {
		p = s.fail(section, "failed to fetch history data", err)
	}

	points := []VitalPoint{}
	if p == nil {
		points = normalizeAll(records, NormalizeVitalPoint)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	next := maps.Clone(s.histories)
	next[target] = points
	s.histories = next
	s.setProblem(section, p)
}

// setProblem must be called with mu held.
func (s *Scope) setProblem(section string, p *problem.Problem) {
	if p == nil {
		if _, ok := s.problems[section]; !ok {
			return
		}
		next := maps.Clone(s.problems)
		delete(next, section)
		s.problems = next
		return
	}
	next := maps.Clone(s.problems)
	next[section] = p
	s.problems = next
}

// AlertFilter returns the current alert filter.
func (s *Scope) AlertFilter() AlertFilter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filter
}

// SetAlertFilter merges patch into the filter and re-fetches alerts.
func (s *Scope) SetAlertFilter(ctx context.Context, patch AlertFilterPatch) AlertFilter {
	s.mu.Lock()
	s.filter = s.filter.Apply(patch)
	filter := s.filter
	s.mu.Unlock()

	s.logger.Debug("alert filter changed", "category", filter.Category, "status", filter.Status, "person_scope", filter.PersonScope)
	s.RefreshAlerts(ctx, "")
	return filter
}

// Alerts returns the alerts under the current filter.
func (s *Scope) Alerts() []Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.alerts
}

// AlertStats summarises the current alerts.
func (s *Scope) AlertStats() AlertStats {
	return ComputeAlertStats(s.Alerts())
}

// DeviceOverview returns the fleet overview, or nil if unavailable.
func (s *Scope) DeviceOverview() *DeviceOverview {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.overview
}

// Detections returns the detection summaries.
func (s *Scope) Detections() []DetectionSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.detections
}

// History returns the vital history fetched for personID.
func (s *Scope) History(personID string) ([]VitalPoint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	points, ok := s.histories[personID]
	return points, ok
}

// Problems returns the read failures of the last refresh per section.
func (s *Scope) Problems() map[string]*problem.Problem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.problems
}

// View returns a consistent copy of the scope state for the selected
// person.
func (s *Scope) View() View {
	selected := s.cache.SelectedPersonID()

	s.mu.RLock()
	defer s.mu.RUnlock()

	v := View{
		SelectedPersonID: selected,
		Alerts:           slices.Clone(s.alerts),
		AlertFilter:      s.filter,
		AlertStats:       ComputeAlertStats(s.alerts),
		DeviceOverview:   s.overview,
		Detections:       slices.Clone(s.detections),
		History:          []VitalPoint{},
		Syncing:          s.syncing.Load(),
	}
	if points, ok := s.histories[selected]; ok {
		v.History = slices.Clone(points)
	}
	if !s.lastSyncedAt.IsZero() {
		t := s.lastSyncedAt
		v.LastSyncedAt = &t
	}
	if len(s.problems) > 0 {
		v.Problems = maps.Clone(s.problems)
	}
	return v
}
