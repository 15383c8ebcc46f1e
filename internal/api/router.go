package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-litterbox/internal/auth"
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

	r.Route("/api/v1", func(r chi.Router) {
		// No auth required
		r.Get("/health", s.handleHealth)
		r.Method(http.MethodGet, "/metrics", s.metrics.handler())
		r.Post("/auth/login", s.handleLogin)

		// WebSocket authenticates with a ticket in the handler.
		r.Get("/ws", s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/ws-ticket", s.handleWSTicket)

			r.Route("/litterbox", func(r chi.Router) {
				r.With(s.requirePermission(auth.PermLitterboxRead)).Group(func(r chi.Router) {
					r.Get("/", s.handleGetLitterbox)
					r.Get("/entities", s.handleListEntities)
					r.Get("/history", s.handleHistory)
					r.Get("/usage", s.handleUsage)
				})

				r.With(s.requirePermission(auth.PermLitterboxOperate)).Group(func(r chi.Router) {
					r.Post("/refresh", s.handleRefresh)
					r.Put("/switches/{entity}", s.handleSetSwitch)
					r.Post("/buttons/{service}", s.handlePressButton)
				})
			})

			r.With(s.requirePermission(auth.PermSetupManage)).Post("/setup/discover", s.handleDiscover)
		})
	})

	return r
}

// handleHealth returns the server health status, including bridge health
// when a reporter is configured.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"status":  "ok",
		"version": s.version,
		"device":  s.ctrl.Status(),
	}
	if s.health != nil {
		h := s.health.Snapshot()
		resp["status"] = h.Status
		resp["bridge"] = h
	}
	writeJSON(w, http.StatusOK, resp)
}
