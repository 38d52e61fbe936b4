package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/carewatch-core/internal/care"
	"github.com/nerrad567/carewatch-core/internal/problem"
)

// handleScope returns the aggregated view for the selected person.
func (s *Server) handleScope(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.scope.View())
}

// handleHydrate runs HydrateScope and returns the resulting view.
// When a hydration is already running the call is dropped and 202 is
// returned with the current view.
func (s *Server) handleHydrate(w http.ResponseWriter, r *http.Request) {
	if !s.scope.HydrateScope(r.Context(), forceParam(r)) {
		writeJSON(w, http.StatusAccepted, s.scope.View())
		return
	}
	writeJSON(w, http.StatusOK, s.scope.View())
}

// alertsResponse is the current alert list with its filter and stats.
type alertsResponse struct {
	Items   []care.Alert     `json:"items"`
	Count   int              `json:"count"`
	Filter  care.AlertFilter `json:"filter"`
	Stats   care.AlertStats  `json:"stats"`
	Problem *problem.Problem `json:"problem,omitempty"`
}

func (s *Server) alerts() alertsResponse {
	items := s.scope.Alerts()
	if items == nil {
		items = []care.Alert{}
	}
	return alertsResponse{
		Items:   items,
		Count:   len(items),
		Filter:  s.scope.AlertFilter(),
		Stats:   care.ComputeAlertStats(items),
		Problem: s.scope.Problems()[care.SectionAlerts],
	}
}

// handleListAlerts returns the alerts. ?refresh=true refetches them first.
func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	if refresh, err := strconv.ParseBool(r.URL.Query().Get("refresh")); err == nil && refresh {
		s.scope.RefreshAlerts(r.Context(), r.URL.Query().Get("personId"))
	}
	writeJSON(w, http.StatusOK, s.alerts())
}

func (s *Server) handleAlertStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.scope.AlertStats())
}

// handlePatchAlertFilter merges the patch into the filter, refetches the
// alerts and returns them.
func (s *Server) handlePatchAlertFilter(w http.ResponseWriter, r *http.Request) {
	var patch care.AlertFilterPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	s.scope.SetAlertFilter(r.Context(), patch)
	writeJSON(w, http.StatusOK, s.alerts())
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	if forceParam(r) {
		s.scope.RefreshDeviceOverview(r.Context())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"overview": s.scope.DeviceOverview(),
		"problem":  s.scope.Problems()[care.SectionOverview],
	})
}

func (s *Server) handleDetections(w http.ResponseWriter, r *http.Request) {
	if forceParam(r) {
		s.scope.RefreshDetections(r.Context())
	}
	items := s.scope.Detections()
	if items == nil {
		items = []care.DetectionSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":   items,
		"count":   len(items),
		"problem": s.scope.Problems()[care.SectionDetections],
	})
}

// handleHistory returns a person's vital history, fetching it when it has
// not been loaded yet or when ?force=true. ?size= overrides the sample
// count.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	personID := chi.URLParam(r, "personId")

	size := 0
	if raw := r.URL.Query().Get("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeBadRequest(w, "size must be a positive integer")
			return
		}
		size = n
	}

	points, ok := s.scope.History(personID)
	if !ok || forceParam(r) || size > 0 {
		s.scope.FetchHistory(r.Context(), personID, size)
		points, _ = s.scope.History(personID)
	}
	if points == nil {
		points = []care.VitalPoint{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"personId": personID,
		"items":    points,
		"count":    len(points),
		"problem":  s.scope.Problems()[care.HistorySection(personID)],
	})
}
