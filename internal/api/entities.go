package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/carewatch-core/internal/entity"
	"github.com/nerrad567/carewatch-core/internal/problem"
	"github.com/nerrad567/carewatch-core/internal/radar"
)

// listResponse wraps a cached collection. Problem is set when the last
// fetch failed; Items then holds the previous (possibly empty) collection.
type listResponse[T any] struct {
	Items     []T              `json:"items"`
	Count     int              `json:"count"`
	FetchedAt *time.Time       `json:"fetchedAt,omitempty"`
	Stale     bool             `json:"stale"`
	Problem   *problem.Problem `json:"problem,omitempty"`
}

// listCollection fetches one collection and degrades to the cached copy
// on failure.
func listCollection[T any](
	ctx context.Context,
	s *Server,
	kind entity.Kind,
	force bool,
	fetch func(context.Context, bool) ([]T, error),
	cached func() []T,
) listResponse[T] {
	items, err := fetch(ctx, force)

	resp := listResponse[T]{Stale: s.cache.IsStale(kind)}
	if err != nil {
		resp.Problem = problem.Normalize(err)
		items = cached()
	}
	if items == nil {
		items = []T{}
	}
	resp.Items = items
	resp.Count = len(items)
	if t := s.cache.LastFetched(kind); !t.IsZero() {
		resp.FetchedAt = &t
	}
	return resp
}

// forceParam reads the ?force= query flag.
func forceParam(r *http.Request) bool {
	force, err := strconv.ParseBool(r.URL.Query().Get("force"))
	return err == nil && force
}

func (s *Server) handleListPersons(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, listCollection(r.Context(), s, entity.KindPersons, forceParam(r),
		s.cache.FetchPersons, s.cache.Persons))
}

func (s *Server) handleListMappings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, listCollection(r.Context(), s, entity.KindMappings, forceParam(r),
		s.cache.FetchMappings, s.cache.Mappings))
}

// deviceView is a device with its dashboard presentation fields.
type deviceView struct {
	entity.Device
	StatusText  string `json:"statusText"`
	StatusTone  string `json:"statusTone"`
	MonitorType string `json:"monitorType"`
	ModelText   string `json:"modelText"`
	LastSeen    string `json:"lastSeen"`
}

func (s *Server) presentDevice(d entity.Device, now time.Time) deviceView {
	return deviceView{
		Device:      d,
		StatusText:  radar.StatusText(string(d.Status)),
		StatusTone:  radar.StatusTone(string(d.Status)),
		MonitorType: radar.MonitorType(d),
		ModelText:   radar.ModelText(d),
		LastSeen:    radar.FormatDeviceTime(d.LastDataTime, now, s.loc),
	}
}

// handleListDevices lists devices with presentation fields.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	list := listCollection(r.Context(), s, entity.KindDevices, forceParam(r),
		s.cache.FetchDevices, s.cache.Devices)

	now := s.now()
	views := make([]deviceView, len(list.Items))
	for i, d := range list.Items {
		views[i] = s.presentDevice(d, now)
	}

	writeJSON(w, http.StatusOK, listResponse[deviceView]{
		Items:     views,
		Count:     len(views),
		FetchedAt: list.FetchedAt,
		Stale:     list.Stale,
		Problem:   list.Problem,
	})
}

// selectionResponse is the current selection plus recents.
type selectionResponse struct {
	PersonID        string         `json:"personId"`
	DeviceID        string         `json:"deviceId"`
	Person          *entity.Person `json:"person,omitempty"`
	Device          *entity.Device `json:"device,omitempty"`
	RecentPersonIDs []string       `json:"recentPersonIds"`
	RecentDeviceIDs []string       `json:"recentDeviceIds"`
}

func (s *Server) selection() selectionResponse {
	resp := selectionResponse{
		PersonID:        s.cache.SelectedPersonID(),
		DeviceID:        s.cache.SelectedDeviceID(),
		RecentPersonIDs: s.cache.RecentPersonIDs(),
		RecentDeviceIDs: s.cache.RecentDeviceIDs(),
	}
	if p, ok := s.cache.SelectedPerson(); ok {
		resp.Person = &p
	}
	if d, ok := s.cache.SelectedDevice(); ok {
		resp.Device = &d
	}
	if resp.RecentPersonIDs == nil {
		resp.RecentPersonIDs = []string{}
	}
	if resp.RecentDeviceIDs == nil {
		resp.RecentDeviceIDs = []string{}
	}
	return resp
}

func (s *Server) handleGetSelection(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.selection())
}

// selectionRequest changes the selection. A nil field is left as is; an
// empty string clears it.
type selectionRequest struct {
	PersonID *string `json:"personId"`
	DeviceID *string `json:"deviceId"`
}

// handleSetSelection updates the selection. Changing the selected person
// refetches that person's alerts and history.
func (s *Server) handleSetSelection(w http.ResponseWriter, r *http.Request) {
	var req selectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if req.DeviceID != nil {
		s.cache.SetSelectedDevice(*req.DeviceID)
	}
	if req.PersonID != nil && *req.PersonID != s.cache.SelectedPersonID() {
		s.cache.SetSelectedPerson(*req.PersonID)
		if *req.PersonID != "" {
			s.scope.RefreshAlerts(r.Context(), "")
			s.scope.FetchHistory(r.Context(), *req.PersonID, 0)
		}
	}

	writeJSON(w, http.StatusOK, s.selection())
}
