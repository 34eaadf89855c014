package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Prometheus scrape endpoint
	r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		// Public
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)
		r.Post("/auth/login", s.handleLogin)

		// Authenticated by a single-use ticket instead of a header
		r.Get(s.wsCfg.Path, s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/ws-ticket", s.handleWSTicket)

			r.Route("/state", func(r chi.Router) {
				r.Get("/", s.handleGetState)
				r.Get("/{key}", s.handleGetStateKey)
				r.Put("/{key}", s.handleSetStateKey)
			})

			r.Get("/climate", s.handleGetClimate)
			r.Put("/climate", s.handleSetClimate)

			r.Post("/poll", s.handlePoll)
			r.Post("/command", s.handleCommand)
		})
	})

	return r
}

// handleHealth returns the server and gateway health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"status":        "ok",
		"version":       s.version,
		"connected":     s.gateway.IsConnected(),
		"authenticated": s.gateway.IsAuthenticated(),
		"machine_id":    s.gateway.MachineID(),
	}
	if !s.gateway.IsConnected() || !s.gateway.IsAuthenticated() {
		resp["status"] = "degraded"
	}
	if s.bridge != nil {
		resp["bridge"] = s.bridge.Health()
	}
	writeJSON(w, http.StatusOK, resp)
}
