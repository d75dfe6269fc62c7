// Package liveprogress fans out per-run search events to subscribed
// WebSocket clients, so a long advisor run can be watched live instead
// of only read back from its final report.
//
// Grounded on internal/reactive/registry.go's Registry (thread-safe
// map keyed by an id, Register/Unregister/Snapshot/ForEach) and
// internal/protocol/{message,registry,dispatcher}.go's typed
// Message-envelope dispatch, repurposed from per-row live-query
// subscriptions to per-run candidate/acceptance/completion events.
package liveprogress

import (
	"sync"

	"github.com/google/uuid"
)

// Client is anything that can receive a named event with a JSON
// payload — an abstraction over the transport so Registry never
// imports gorilla/websocket directly, matching
// internal/reactive.Client's own send-func abstraction.
type Client struct {
	Send func(eventType string, payload any) error
}

// Run is one subscribable advisor run: an id and the set of clients
// currently watching it.
type Run struct {
	ID      string
	mu      sync.RWMutex
	clients map[*Client]struct{}
}

// Registry tracks every active run's subscriber set, mirroring
// internal/reactive.Registry's Register/Unregister/Get shape.
type Registry struct {
	mu   sync.RWMutex
	runs map[string]*Run
}

// NewRegistry returns an empty run registry.
func NewRegistry() *Registry {
	return &Registry{runs: make(map[string]*Run)}
}

// NewRun registers and returns a fresh run with a generated id.
func (r *Registry) NewRun() *Run {
	run := &Run{ID: uuid.NewString(), clients: make(map[*Client]struct{})}
	r.mu.Lock()
	r.runs[run.ID] = run
	r.mu.Unlock()
	return run
}

// Get looks up a run by id.
func (r *Registry) Get(id string) (*Run, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[id]
	return run, ok
}

// Unregister removes a run once it has finished and every subscriber
// has disconnected.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	delete(r.runs, id)
	r.mu.Unlock()
}

// Subscribe attaches cl to the run's broadcast set.
func (run *Run) Subscribe(cl *Client) {
	run.mu.Lock()
	run.clients[cl] = struct{}{}
	run.mu.Unlock()
}

// Unsubscribe detaches cl and reports whether the run now has no
// remaining subscribers.
func (run *Run) Unsubscribe(cl *Client) (empty bool) {
	run.mu.Lock()
	defer run.mu.Unlock()
	delete(run.clients, cl)
	return len(run.clients) == 0
}

// Broadcast sends a named event to every currently subscribed client,
// skipping (not failing the run on) individual client send errors —
// the same best-effort fanout internal/api/ws.go's Broadcast closure
// performs for live-query updates.
func (run *Run) Broadcast(eventType string, payload any) {
	run.mu.RLock()
	defer run.mu.RUnlock()
	for cl := range run.clients {
		_ = cl.Send(eventType, payload)
	}
}
