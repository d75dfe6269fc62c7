package optimizer_test

import (
	"context"
	"testing"

	"github.com/qdadvisor/advisor/internal/catalog"
	"github.com/qdadvisor/advisor/internal/evaluator"
	"github.com/qdadvisor/advisor/internal/fixgres"
	"github.com/qdadvisor/advisor/internal/model"
	"github.com/qdadvisor/advisor/internal/optimizer"
)

func TestOptimizeRecommendsIndexOnFilteredColumn(t *testing.T) {
	fixgres.BootOnce(t, fixgres.WithGooseUp(fixgres.Migrations()))
	sbx := fixgres.NewSandbox(t)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		if _, err := sbx.DB.ExecContext(ctx,
			`INSERT INTO orders (user_id, created_at, tags, details) VALUES ($1, now(), '{}', '{}')`, i%5,
		); err != nil {
			t.Fatalf("seed insert: %v", err)
		}
	}
	if _, err := sbx.DB.ExecContext(ctx, "ANALYZE"); err != nil {
		t.Fatalf("analyze: %v", err)
	}

	cat, err := catalog.Load(ctx, sbx.DB, catalog.Options{Schemas: []string{sbx.Schema}}, false)
	if err != nil {
		t.Fatalf("catalog load: %v", err)
	}

	ev := evaluator.New(sbx.DB, sbx.Schema)
	opt := optimizer.New(ev, sbx.Schema, cat.Indexes)

	counts := map[string]evaluator.TableCount{
		sbx.Schema + ".orders": {RelTuples: 50_000_000, RelPages: 500_000},
	}

	res, err := opt.Optimize(ctx, optimizer.Inputs{
		Query:  `SELECT * FROM orders WHERE user_id = $1`,
		Params: []any{int64(3)},
		Candidates: []model.RootIndexCandidate{
			{Schema: sbx.Schema, Table: "orders", Column: "user_id"},
		},
		Counts: counts,
	})
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}

	if res.FinalCost > res.BaseCost {
		t.Errorf("expected final cost (%v) not to exceed base cost (%v)", res.FinalCost, res.BaseCost)
	}

	var sawUserIDCandidate bool
	for _, tc := range res.Tried {
		if len(tc.Candidate.Columns) == 1 && tc.Candidate.Columns[0] == "user_id" {
			sawUserIDCandidate = true
		}
	}
	if !sawUserIDCandidate {
		t.Errorf("expected the search to have tried a user_id candidate, tried: %+v", res.Tried)
	}
}

func TestOptimizeEmitsGINCandidateForJSONBColumn(t *testing.T) {
	fixgres.BootOnce(t, fixgres.WithGooseUp(fixgres.Migrations()))
	sbx := fixgres.NewSandbox(t)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		if _, err := sbx.DB.ExecContext(ctx,
			`INSERT INTO orders (user_id, created_at, tags, details) VALUES ($1, now(), '{}', '{"k":"v"}')`, i%5,
		); err != nil {
			t.Fatalf("seed insert: %v", err)
		}
	}
	if _, err := sbx.DB.ExecContext(ctx, "ANALYZE"); err != nil {
		t.Fatalf("analyze: %v", err)
	}

	cat, err := catalog.Load(ctx, sbx.DB, catalog.Options{Schemas: []string{sbx.Schema}}, false)
	if err != nil {
		t.Fatalf("catalog load: %v", err)
	}
	tbl, ok := cat.Table(sbx.Schema, "orders")
	if !ok {
		t.Fatalf("expected orders table in catalog")
	}
	var detailsMethod model.AccessMethod
	for _, col := range tbl.Columns {
		if col.Name == "details" {
			detailsMethod = col.SuggestedAccessMethod
		}
	}
	if detailsMethod != model.AccessMethodGIN {
		t.Fatalf("expected details column to suggest gin, got %q", detailsMethod)
	}

	ev := evaluator.New(sbx.DB, sbx.Schema)
	opt := optimizer.New(ev, sbx.Schema, cat.Indexes)

	counts := map[string]evaluator.TableCount{
		sbx.Schema + ".orders": {RelTuples: 50_000_000, RelPages: 500_000},
	}

	res, err := opt.Optimize(ctx, optimizer.Inputs{
		Query:  `SELECT * FROM orders WHERE details = $1`,
		Params: []any{`{"k":"v"}`},
		Candidates: []model.RootIndexCandidate{
			{Schema: sbx.Schema, Table: "orders", Column: "details", AccessMethod: detailsMethod},
		},
		Counts: counts,
	})
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}

	var sawGIN bool
	for _, tc := range res.Tried {
		if len(tc.Candidate.Columns) == 1 && tc.Candidate.Columns[0] == "details" {
			if tc.Candidate.AccessMethod != model.AccessMethodGIN {
				t.Errorf("expected details candidate to use gin access method, got %q", tc.Candidate.AccessMethod)
			}
			sawGIN = true
		}
	}
	if !sawGIN {
		t.Errorf("expected the search to have tried a details candidate, tried: %+v", res.Tried)
	}
}

func TestOptimizeSuppressesExistingBTreeMatch(t *testing.T) {
	fixgres.BootOnce(t, fixgres.WithGooseUp(fixgres.Migrations()))
	sbx := fixgres.NewSandbox(t)
	ctx := context.Background()

	if _, err := sbx.DB.ExecContext(ctx,
		`CREATE INDEX orders_user_id_idx ON orders (user_id)`); err != nil {
		t.Fatalf("create existing index: %v", err)
	}

	cat, err := catalog.Load(ctx, sbx.DB, catalog.Options{Schemas: []string{sbx.Schema}}, false)
	if err != nil {
		t.Fatalf("catalog load: %v", err)
	}

	ev := evaluator.New(sbx.DB, sbx.Schema)
	opt := optimizer.New(ev, sbx.Schema, cat.Indexes)

	counts := map[string]evaluator.TableCount{
		sbx.Schema + ".orders": {RelTuples: 10_000_000, RelPages: 100_000},
	}

	res, err := opt.Optimize(ctx, optimizer.Inputs{
		Query:  `SELECT * FROM orders WHERE user_id = $1`,
		Params: []any{int64(1)},
		Candidates: []model.RootIndexCandidate{
			{Schema: sbx.Schema, Table: "orders", Column: "user_id"},
		},
		Counts: counts,
	})
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}

	var sawSkip bool
	for _, tc := range res.Tried {
		if tc.Skipped {
			sawSkip = true
		}
	}
	if !sawSkip {
		t.Errorf("expected the user_id candidate to be suppressed by the pre-existing index, tried: %+v", res.Tried)
	}
}
