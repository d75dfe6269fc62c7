package evaluator_test

import (
	"context"
	"testing"

	"github.com/qdadvisor/advisor/internal/evaluator"
	"github.com/qdadvisor/advisor/internal/fixgres"
	"github.com/qdadvisor/advisor/internal/model"
)

func TestRunRollsBackIndexCreation(t *testing.T) {
	fixgres.BootOnce(t, fixgres.WithGooseUp(fixgres.Migrations()))
	sbx := fixgres.NewSandbox(t)
	ctx := context.Background()

	ev := evaluator.New(sbx.DB, sbx.Schema)
	candidate := model.PermutedIndexCandidate{
		Schema:  sbx.Schema,
		Table:   "employees",
		Columns: []string{"managerId"},
	}

	counts := map[string]evaluator.TableCount{
		sbx.Schema + ".employees": {RelTuples: 10_000_000, RelPages: 1_000},
	}

	plan, err := ev.Run(ctx, `SELECT * FROM employees WHERE "managerId" = $1`, []any{int64(1)}, counts,
		evaluator.CreateIndexMutation(candidate))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if plan.TotalCost <= 0 {
		t.Errorf("expected a positive total cost, got %v", plan.TotalCost)
	}

	var count int
	if err := sbx.DB.QueryRowContext(ctx,
		`SELECT count(*) FROM pg_catalog.pg_class WHERE relname = $1`,
		candidate.IndexName(),
	).Scan(&count); err != nil {
		t.Fatalf("check index existence: %v", err)
	}
	if count != 0 {
		t.Errorf("expected the hypothetical index to be rolled back, but it persists")
	}
}

func TestRunSurfacesFailedMutation(t *testing.T) {
	fixgres.BootOnce(t, fixgres.WithGooseUp(fixgres.Migrations()))
	sbx := fixgres.NewSandbox(t)
	ctx := context.Background()

	ev := evaluator.New(sbx.DB, sbx.Schema)
	badCandidate := model.PermutedIndexCandidate{
		Schema:  sbx.Schema,
		Table:   "employees",
		Columns: []string{"does_not_exist"},
	}

	_, err := ev.Run(ctx, `SELECT * FROM employees`, nil, nil, evaluator.CreateIndexMutation(badCandidate))
	if err == nil {
		t.Fatal("expected an error for a CREATE INDEX on a nonexistent column")
	}
}
