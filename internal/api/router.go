package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Health and metrics need no auth
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		// WebSocket authenticates with a ticket, validated in the handler
		r.Get("/ws", s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/ws-ticket", s.handleWSTicket)

			r.Get("/persons", s.handleListPersons)
			r.Get("/mappings", s.handleListMappings)
			r.Post("/mappings", s.handleCreateMapping)
			r.Delete("/mappings/{id}", s.handleDeleteMapping)

			r.Route("/devices", func(r chi.Router) {
				r.Get("/", s.handleListDevices)
				r.Post("/", s.handleCreateDevice)
				r.Post("/status", s.handleBatchDeviceStatus)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetDevice)
					r.Patch("/", s.handleUpdateDevice)
					r.Delete("/", s.handleDeleteDevice)
					r.Put("/status", s.handleSetDeviceStatus)
				})
			})

			r.Get("/selection", s.handleGetSelection)
			r.Put("/selection", s.handleSetSelection)

			r.Get("/scope", s.handleScope)
			r.Post("/scope/hydrate", s.handleHydrate)

			r.Get("/alerts", s.handleListAlerts)
			r.Get("/alerts/stats", s.handleAlertStats)
			r.Patch("/alerts/filter", s.handlePatchAlertFilter)

			r.Get("/overview", s.handleOverview)
			r.Get("/detections", s.handleDetections)
			r.Get("/history/{personId}", s.handleHistory)
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
