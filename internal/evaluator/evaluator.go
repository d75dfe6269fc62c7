// Package evaluator runs costed EXPLAIN under injected row/page counts
// inside a transaction that is always rolled back, so a cost probe
// never leaves DDL or catalog edits behind.
//
// Grounded on pkg/fixgres/sandbox.go's "open a scoped handle, tear it
// down unconditionally" shape (there: a disposable test schema dropped
// in t.Cleanup; here: a disposable probe transaction rolled back in a
// defer) and on the EXPLAIN (FORMAT JSON)-into-string-then-decode
// style of the query_optimizer.go reference file's AnalyzeQuery. Go
// has no exceptions, so the rollback-as-exit technique those reference
// materials don't need is realized here as a result type returned from
// a helper that always rolls back in a defer, never as a panic/recover
// sentinel.
package evaluator

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/qdadvisor/advisor/internal/model"
)

// TableCount is the (reltuples, relpages) pair asserted against
// pg_class inside a single evaluation transaction, sourced from the
// StatisticsStore export or its assumption fallback.
type TableCount struct {
	RelTuples float64
	RelPages  int64
}

// Evaluator owns one database connection pool used exclusively for
// cost probes. Per the concurrency model, two Evaluators must use
// distinct connections/pools if run concurrently against the same
// database, since each probe's transaction contends for pg_class/
// pg_statistic.
type Evaluator struct {
	db             *sql.DB
	defaultSchema  string
}

// New returns an Evaluator bound to db. defaultSchema is stored but
// not used by the probes; each CREATE INDEX is built from the
// candidate's own Schema and Table.
func New(db *sql.DB, defaultSchema string) *Evaluator {
	return &Evaluator{db: db, defaultSchema: defaultSchema}
}

// ZeroCostPlan is the sentinel the Optimizer checks for after a
// baseline probe: a plan whose Total Cost is exactly zero (a Result or
// constant-folded plan) carries no signal an index could improve, so
// the statement is skipped entirely.
const ZeroCostPlan = "zero_cost_plan"

// Mutation is invoked inside the probe transaction before statistics
// are asserted and the query is explained. It may issue CREATE INDEX;
// any index it creates must be named with the __qd_ prefix
// (model.PermutedIndexCandidate.IndexName does this) so the plan's
// used-index extraction can tell new indexes from pre-existing ones.
type Mutation func(ctx context.Context, tx *sql.Tx) error

// Run executes runWithReltuples: begin a transaction, run mutation,
// assert counts, EXPLAIN the query, and always roll back — returning
// the parsed plan (or an error) regardless of which path was taken.
func (e *Evaluator) Run(ctx context.Context, query string, params []any, counts map[string]TableCount, mutation Mutation) (*model.ExplainPlan, error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("evaluator: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback-as-exit: always invoked, success path ignores the "already committed" case because we never commit

	if mutation != nil {
		if err := mutation(ctx, tx); err != nil {
			return nil, fmt.Errorf("evaluator: mutation: %w", err)
		}
	}

	if err := assertReltuples(ctx, tx, counts); err != nil {
		return nil, fmt.Errorf("evaluator: assert reltuples: %w", err)
	}

	plan, err := explain(ctx, tx, query, params)
	if err != nil {
		return nil, fmt.Errorf("evaluator: explain: %w", err)
	}
	return plan, nil
}

// assertReltuples updates pg_class.reltuples/relpages for every named
// table, inside the caller's probe transaction. Column-level
// statistics are not touched here — those are injected once at run
// setup via statstore.Restore, outside any single probe's transaction,
// per the component's own division of labor between one-time setup
// and per-probe cost stability.
func assertReltuples(ctx context.Context, tx *sql.Tx, counts map[string]TableCount) error {
	for qualifiedName, c := range counts {
		schema, table := splitQualified(qualifiedName)
		if _, err := tx.ExecContext(ctx, `
UPDATE pg_catalog.pg_class c SET reltuples = $1, relpages = $2
FROM pg_catalog.pg_namespace n
WHERE n.oid = c.relnamespace AND n.nspname = $3 AND c.relname = $4
`+model.IntrospectionMarker,
			c.RelTuples, c.RelPages, schema, table,
		); err != nil {
			return fmt.Errorf("table %s: %w", qualifiedName, err)
		}
	}
	return nil
}

func splitQualified(name string) (schema, table string) {
	if i := strings.IndexByte(name, '.'); i >= 0 {
		return name[:i], name[i+1:]
	}
	return "public", name
}

// explain runs EXPLAIN (GENERIC_PLAN, VERBOSE, FORMAT JSON) against
// query and extracts the root plan's Total Cost and every "Index Name"
// found while walking the tree. GENERIC_PLAN lets the probe explain
// parameterized statements without supplying concrete parameter values
// (PostgreSQL 16+), so params is accepted for signature symmetry with
// Run but intentionally never bound to the statement.
func explain(ctx context.Context, tx *sql.Tx, query string, params []any) (*model.ExplainPlan, error) {
	explainSQL := fmt.Sprintf("EXPLAIN (GENERIC_PLAN, VERBOSE, FORMAT JSON) %s\n%s", query, model.IntrospectionMarker)

	var raw string
	row := tx.QueryRowContext(ctx, explainSQL)
	if err := row.Scan(&raw); err != nil {
		return nil, fmt.Errorf("scan explain output: %w", err)
	}

	var doc []map[string]any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("decode explain json: %w", err)
	}
	if len(doc) == 0 {
		return nil, fmt.Errorf("empty explain output")
	}

	planNode, ok := doc[0]["Plan"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("explain output missing root Plan node")
	}

	totalCost, _ := planNode["Total Cost"].(float64)
	var indexes []string
	collectIndexNames(planNode, &indexes)

	return &model.ExplainPlan{
		TotalCost:   totalCost,
		UsedIndexes: indexes,
		Raw:         planNode,
	}, nil
}

// collectIndexNames walks a decoded EXPLAIN JSON plan tree recursively,
// appending every "Index Name" found at any nesting level to out.
func collectIndexNames(node map[string]any, out *[]string) {
	if name, ok := node["Index Name"].(string); ok {
		*out = append(*out, name)
	}
	if plans, ok := node["Plans"].([]any); ok {
		for _, child := range plans {
			if m, ok := child.(map[string]any); ok {
				collectIndexNames(m, out)
			}
		}
	}
}
