package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/qdadvisor/advisor/internal/liveprogress"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleLive upgrades the connection and streams the named run's
// liveprogress events until the client disconnects, adapted from
// internal/api/ws.go's HandleWS upgrade-then-read-loop shape —
// simplified to a pure fan-out since a run has no client-originated
// subscribe/unsubscribe messages of its own (the run id is already
// fixed by the URL).
func (h *Handler) HandleLive(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	run, ok := h.Registry.Get(runID)
	if !ok {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.L().Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	cl := &liveprogress.Client{
		Send: func(eventType string, payload any) error {
			return conn.WriteJSON(map[string]any{"type": eventType, "data": payload})
		},
	}
	run.Subscribe(cl)
	defer run.Unsubscribe(cl)

	// Block on reads purely to detect disconnect; the client sends
	// nothing of its own.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
