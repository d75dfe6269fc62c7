// Package httpapi exposes the advisor over HTTP: submit a run, poll
// its report, and watch it live over a WebSocket.
//
// Grounded on internal/api/routes.go's route-grouping shape (the
// WebSocket route registered before any middleware group that would
// wrap the response writer, a logging middleware applied to the
// remaining routes) repurposed from spreadsheet subscribe/unsubscribe
// to run submission/polling/live-stream.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter builds the HTTP handler for h's endpoints.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	// Register the WebSocket route before any middleware group that
	// might wrap the response writer, matching internal/api/routes.go's
	// own ordering rationale.
	r.Get("/api/runs/{runID}/live", h.HandleLive)

	r.Group(func(r chi.Router) {
		r.Use(LoggingMiddleware)

		r.Route("/api/runs", func(r chi.Router) {
			r.Post("/", h.HandleSubmitRun)
			r.Get("/{runID}", h.HandleGetRun)
		})
	})

	return r
}
