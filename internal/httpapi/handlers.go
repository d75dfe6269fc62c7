package httpapi

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/qdadvisor/advisor/internal/liveprogress"
	"github.com/qdadvisor/advisor/internal/report"
	"github.com/qdadvisor/advisor/internal/statementsource"
)

// RunStatus is a submitted run's lifecycle state.
type RunStatus string

const (
	RunStatusPending RunStatus = "pending"
	RunStatusRunning RunStatus = "running"
	RunStatusDone    RunStatus = "done"
	RunStatusFailed  RunStatus = "failed"
)

// RunState is one submitted run's current status and, once finished,
// its report.
type RunState struct {
	ID     string        `json:"id"`
	Status RunStatus     `json:"status"`
	Report *report.Report `json:"report,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// Driver starts analyzing statements in the background, broadcasting
// progress to run, and calls onDone once with the finished report or
// the error that ended the run. It returns nothing; Handler records
// the outcome in its own *RunState under its mutex.
type Driver func(run *liveprogress.Run, statements []statementsource.Statement, onDone func(*report.Report, error))

// Handler holds the shared resources injected from the driver
// orchestrating a run — mirroring internal/api.WSHandler's own
// injected-dependencies shape.
type Handler struct {
	Registry *liveprogress.Registry
	Driver   Driver

	mu   sync.RWMutex
	runs map[string]*RunState
}

// NewHandler builds a Handler backed by an empty run table.
func NewHandler(registry *liveprogress.Registry, driver Driver) *Handler {
	return &Handler{Registry: registry, Driver: driver, runs: make(map[string]*RunState)}
}

type submitRunRequest struct {
	Statements []statementsource.Statement `json:"statements"`
}

// HandleSubmitRun accepts a JSON body of statements to analyze and
// starts a run, returning its id immediately.
func (h *Handler) HandleSubmitRun(w http.ResponseWriter, r *http.Request) {
	var req submitRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if len(req.Statements) == 0 {
		http.Error(w, "no statements given", http.StatusBadRequest)
		return
	}

	run := h.Registry.NewRun()
	state := &RunState{ID: run.ID, Status: RunStatusRunning}

	h.mu.Lock()
	h.runs[run.ID] = state
	h.mu.Unlock()

	h.Driver(run, req.Statements, func(rep *report.Report, err error) {
		h.mu.Lock()
		defer h.mu.Unlock()
		if err != nil {
			state.Status = RunStatusFailed
			state.Error = err.Error()
			run.Broadcast(liveprogress.EventError, map[string]string{"error": err.Error()})
			return
		}
		state.Status = RunStatusDone
		state.Report = rep
		run.Broadcast(liveprogress.EventRunFinished, liveprogress.RunFinished{StatementCount: len(rep.Statements)})
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(state) //nolint:errcheck
}

// HandleGetRun returns a run's current status and, if finished, its
// report.
func (h *Handler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "runID")

	h.mu.RLock()
	state, ok := h.runs[id]
	h.mu.RUnlock()
	if !ok {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(state) //nolint:errcheck
}
