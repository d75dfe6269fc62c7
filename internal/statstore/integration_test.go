package statstore_test

import (
	"context"
	"testing"

	"github.com/qdadvisor/advisor/internal/fixgres"
	"github.com/qdadvisor/advisor/internal/fixgres/seed"
	"github.com/qdadvisor/advisor/internal/statstore"
)

type customer struct {
	ID   int64  `db:"id,pk,autoinc"`
	Name string `db:"name"`
}

func (customer) TableName() string { return "customers" }

func TestDumpRestoreRoundTrip(t *testing.T) {
	fixgres.BootOnce(t, fixgres.WithGooseUp(fixgres.Migrations()))
	sbx := fixgres.NewSandbox(t)
	ctx := context.Background()

	seed.Deterministic(7)
	if _, err := seed.Insert[customer](ctx, sbx.DB, 50); err != nil {
		t.Fatalf("seed insert: %v", err)
	}
	if _, err := sbx.DB.ExecContext(ctx, "ANALYZE"); err != nil {
		t.Fatalf("analyze: %v", err)
	}

	export, err := statstore.Dump(ctx, sbx.DB, []string{sbx.Schema}, statstore.ModeFull)
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}
	if len(export.Tables) == 0 {
		t.Fatal("expected at least one dumped table")
	}

	var sawCustomers bool
	for _, tbl := range export.Tables {
		if tbl.Table == "customers" {
			sawCustomers = true
			if tbl.RelTuples < 0 {
				t.Errorf("expected a non-negative reltuples after ANALYZE, got %v", tbl.RelTuples)
			}
		}
	}
	if !sawCustomers {
		t.Fatal("expected customers table in dump")
	}

	tx, err := sbx.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()

	report, err := statstore.Restore(ctx, tx, export)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if len(report.MissingTables) != 0 {
		t.Errorf("expected no missing tables restoring into the same schema, got %v", report.MissingTables)
	}
}

func TestApplyAssumptionFallback(t *testing.T) {
	fixgres.BootOnce(t, fixgres.WithGooseUp(fixgres.Migrations()))
	sbx := fixgres.NewSandbox(t)
	ctx := context.Background()

	tx, err := sbx.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()

	if err := statstore.ApplyAssumption(ctx, tx, []string{sbx.Schema}, statstore.DefaultAssumption); err != nil {
		t.Fatalf("ApplyAssumption: %v", err)
	}

	var reltuples float64
	if err := tx.QueryRowContext(ctx,
		`SELECT reltuples FROM pg_catalog.pg_class c JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace WHERE n.nspname = $1 AND c.relname = 'employees'`,
		sbx.Schema,
	).Scan(&reltuples); err != nil {
		t.Fatalf("scan reltuples: %v", err)
	}
	if reltuples != statstore.DefaultAssumption.RelTuples {
		t.Errorf("reltuples = %v, want %v", reltuples, statstore.DefaultAssumption.RelTuples)
	}
}
