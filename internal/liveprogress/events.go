package liveprogress

import "github.com/qdadvisor/advisor/internal/optimizer"

// Event type names broadcast over a Run, mirrored in the JSON "type"
// field a WebSocket client dispatches on — the same flat string-tag
// convention internal/protocol.Message uses.
const (
	EventStatementStarted  = "statement_started"
	EventCandidateTried    = "candidate_tried"
	EventIndexAccepted     = "index_accepted"
	EventStatementFinished = "statement_finished"
	EventRunFinished       = "run_finished"
	EventError             = "error"
)

// StatementStarted announces that a new statement's search has begun.
type StatementStarted struct {
	StatementIndex int    `json:"statementIndex"`
	Query          string `json:"query"`
}

// CandidateTried mirrors one optimizer.TriedCandidate, flattened for
// JSON consumption by a live client.
type CandidateTried struct {
	StatementIndex int      `json:"statementIndex"`
	Schema         string   `json:"schema"`
	Table          string   `json:"table"`
	Columns        []string `json:"columns"`
	NewCost        float64  `json:"newCost"`
	Accepted       bool     `json:"accepted"`
	Skipped        bool     `json:"skipped"`
	Failed         bool     `json:"failed"`
}

// CandidateTriedFrom converts an optimizer.TriedCandidate into its
// broadcastable shape.
func CandidateTriedFrom(statementIndex int, tc optimizer.TriedCandidate) CandidateTried {
	return CandidateTried{
		StatementIndex: statementIndex,
		Schema:         tc.Candidate.Schema,
		Table:          tc.Candidate.Table,
		Columns:        tc.Candidate.Columns,
		NewCost:        tc.NewCost,
		Accepted:       tc.Accepted,
		Skipped:        tc.Skipped,
		Failed:         tc.Failed,
	}
}

// StatementFinished carries one statement's final base/final cost
// delta once its Optimizer run completes.
type StatementFinished struct {
	StatementIndex int     `json:"statementIndex"`
	BaseCost       float64 `json:"baseCost"`
	FinalCost      float64 `json:"finalCost"`
	NewIndexCount  int     `json:"newIndexCount"`
}

// RunFinished announces the whole run's completion.
type RunFinished struct {
	StatementCount int `json:"statementCount"`
}
