package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/ws", s.handleWebSocket)

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.Route("/{name}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.Post("/refresh", s.handleRefreshDevice)
				r.Get("/history", s.handleDeviceHistory)
				r.Get("/fields/{field}", s.handleGetField)
				r.Put("/fields/{field}", s.handleSetField)
			})
		})
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := "ok"
	if !s.ctrl.IsConnected() {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        status,
		"version":       s.version,
		"session":       s.ctrl.State().String(),
		"connected":     s.ctrl.IsConnected(),
		"host":          s.ctrl.IsHost(),
		"devices":       len(s.ctrl.Devices()),
		"ws_clients":    s.hub.ClientCount(),
		"history_store": s.history != nil,
	})
}
