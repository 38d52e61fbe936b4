package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"maps"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/carewatch-core/internal/backend"
	"github.com/nerrad567/carewatch-core/internal/entity"
)

// decodeRecord reads a JSON object body, keeping numbers as json.Number
// so IDs and readings pass through to the backend unchanged.
func decodeRecord(r *http.Request) (backend.Record, error) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var rec backend.Record
	if err := dec.Decode(&rec); err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, errNullBody
	}
	return rec, nil
}

// requireBackend writes 503 and returns false when no write path is configured.
func (s *Server) requireBackend(w http.ResponseWriter) bool {
	if s.backend == nil {
		writeUnavailable(w, "care backend not configured")
		return false
	}
	return true
}

// refreshDevices reloads the device collection after a write. A failure
// only leaves the cache stale.
func (s *Server) refreshDevices(ctx context.Context) {
	if _, err := s.cache.FetchDevices(ctx, true); err != nil {
		s.logger.Warn("device refresh after write failed", "error", err)
	}
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	if !s.requireBackend(w) {
		return
	}
	id := chi.URLParam(r, "id")

	rec, err := s.backend.GetDevice(r.Context(), id)
	if err != nil {
		if backend.IsNotFound(err) {
			writeNotFound(w, "device not found")
			return
		}
		writeProblem(w, err)
		return
	}

	writeJSON(w, http.StatusOK, s.presentDevice(entity.NormalizeDevice(rec), s.now()))
}

func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	if !s.requireBackend(w) {
		return
	}
	rec, err := decodeRecord(r)
	if err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	created, err := s.backend.CreateDevice(r.Context(), rec)
	if err != nil {
		writeProblem(w, err)
		return
	}
	s.logger.Info("device created", "device_id", entity.NormalizeDevice(created).DeviceID)
	s.refreshDevices(r.Context())

	writeJSON(w, http.StatusCreated, s.presentDevice(entity.NormalizeDevice(created), s.now()))
}

func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	if !s.requireBackend(w) {
		return
	}
	id := chi.URLParam(r, "id")
	rec, err := decodeRecord(r)
	if err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	updated, err := s.backend.UpdateDevice(r.Context(), id, rec)
	if err != nil {
		writeProblem(w, err)
		return
	}
	s.refreshDevices(r.Context())

	// Some backends answer an update with an empty body.
	if len(updated) == 0 {
		updated = maps.Clone(rec)
		updated["device_id"] = id
	}
	writeJSON(w, http.StatusOK, s.presentDevice(entity.NormalizeDevice(updated), s.now()))
}

func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	if !s.requireBackend(w) {
		return
	}
	id := chi.URLParam(r, "id")

	if err := s.backend.DeleteDevice(r.Context(), id); err != nil {
		writeProblem(w, err)
		return
	}
	s.logger.Info("device deleted", "device_id", id)
	s.refreshDevices(r.Context())

	w.WriteHeader(http.StatusNoContent)
}

// statusRequest sets one device's status.
type statusRequest struct {
	Status string `json:"status"`
}

// batchStatusRequest sets the status of several devices.
type batchStatusRequest struct {
	DeviceIDs []string `json:"deviceIds"`
	Status    string   `json:"status"`
}

// parseStatus upper-cases and validates a requested status.
func parseStatus(raw string) (entity.DeviceStatus, bool) {
	status := entity.DeviceStatus(strings.ToUpper(strings.TrimSpace(raw)))
	return status, status.IsKnown()
}

func (s *Server) handleSetDeviceStatus(w http.ResponseWriter, r *http.Request) {
	if !s.requireBackend(w) {
		return
	}
	id := chi.URLParam(r, "id")

	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	status, ok := parseStatus(req.Status)
	if !ok {
		writeBadRequest(w, "status must be ONLINE, OFFLINE or MAINTENANCE")
		return
	}

	if err := s.backend.UpdateDeviceStatus(r.Context(), id, string(status)); err != nil {
		writeProblem(w, err)
		return
	}
	s.refreshDevices(r.Context())

	writeJSON(w, http.StatusOK, map[string]any{
		"deviceId": id,
		"status":   status,
	})
}

func (s *Server) handleBatchDeviceStatus(w http.ResponseWriter, r *http.Request) {
	if !s.requireBackend(w) {
		return
	}

	var req batchStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if len(req.DeviceIDs) == 0 {
		writeBadRequest(w, "deviceIds is required")
		return
	}
	status, ok := parseStatus(req.Status)
	if !ok {
		writeBadRequest(w, "status must be ONLINE, OFFLINE or MAINTENANCE")
		return
	}

	if err := s.backend.BatchUpdateDeviceStatus(r.Context(), req.DeviceIDs, string(status)); err != nil {
		writeProblem(w, err)
		return
	}
	s.refreshDevices(r.Context())

	writeJSON(w, http.StatusOK, map[string]any{
		"deviceIds": req.DeviceIDs,
		"status":    status,
		"count":     len(req.DeviceIDs),
	})
}

// handleCreateMapping binds a device to a person and inserts the new
// mapping into the cache without refetching the collection.
func (s *Server) handleCreateMapping(w http.ResponseWriter, r *http.Request) {
	if !s.requireBackend(w) {
		return
	}

	var req backend.MappingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	req.PersonID = strings.TrimSpace(req.PersonID)
	req.DeviceID = strings.TrimSpace(req.DeviceID)
	if req.PersonID == "" || req.DeviceID == "" {
		writeBadRequest(w, "personId and deviceId are required")
		return
	}

	created, err := s.backend.CreateMapping(r.Context(), req)
	if err != nil {
		writeProblem(w, err)
		return
	}

	m := entity.NormalizeMapping(s.completeMapping(created, req))
	s.cache.UpsertMapping(m)
	s.logger.Info("mapping created", "mapping_id", m.ID, "person_id", m.PersonID, "device_id", m.DeviceID)

	writeJSON(w, http.StatusCreated, m)
}

// completeMapping fills what the backend left out of a created mapping
// from the request and the cached person and device names.
func (s *Server) completeMapping(created backend.Record, req backend.MappingRequest) backend.Record {
	rec := maps.Clone(created)
	if rec == nil {
		rec = backend.Record{}
	}
	setDefault := func(key, value string, aliases ...string) {
		if value == "" {
			return
		}
		if _, ok := backend.String(rec, append([]string{key}, aliases...)...); ok {
			return
		}
		rec[key] = value
	}

	setDefault("person_id", req.PersonID, "personId")
	setDefault("device_id", req.DeviceID, "deviceId")
	setDefault("mapping_name", req.MappingName, "mappingName")

	for _, p := range s.cache.Persons() {
		if p.PersonID == req.PersonID {
			setDefault("person_name", p.PersonName, "personName")
			break
		}
	}
	for _, d := range s.cache.Devices() {
		if d.DeviceID == req.DeviceID {
			setDefault("device_name", d.DeviceName, "deviceName")
			break
		}
	}
	return rec
}

// handleDeleteMapping unbinds a mapping and drops it from the cache.
func (s *Server) handleDeleteMapping(w http.ResponseWriter, r *http.Request) {
	if !s.requireBackend(w) {
		return
	}
	id := chi.URLParam(r, "id")

	if err := s.backend.DeleteMapping(r.Context(), id); err != nil {
		writeProblem(w, err)
		return
	}
	if !s.cache.RemoveMapping(id) {
		s.logger.Debug("deleted mapping was not cached", "mapping_id", id)
	}

	w.WriteHeader(http.StatusNoContent)
}
