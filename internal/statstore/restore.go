package statstore

import (
	"context"
	"database/sql"
	"fmt"
)

// RestoreReport summarizes non-fatal anomalies surfaced during a
// restore: tables named in the export but absent from the target, and
// tables the export itself says were never analyzed.
type RestoreReport struct {
	MissingTables   []string // "schema.table" present in export, absent from target
	UnanalyzedInSource []string // "schema.table" with RelTuples == -1 in the export
}

// Restore applies export's table counts and column statistics to the
// target reachable through tx, in the caller's own transaction; Restore
// neither commits nor rolls back. The Evaluator does not call it:
// cmd/qdadvisor applies it once at run setup and commits, before any
// cost probe runs.
func Restore(ctx context.Context, tx *sql.Tx, export *ExportedStatsV1) (*RestoreReport, error) {
	report := &RestoreReport{}

	for _, t := range export.Tables {
		qname := quoteQualified(t.Schema, t.Table)

		var oid sql.NullInt64
		err := tx.QueryRowContext(ctx, `SELECT to_regclass($1)::oid`, qname).Scan(&oid)
		if err != nil {
			return nil, fmt.Errorf("statstore: restore: resolve %s: %w", qname, err)
		}
		if !oid.Valid {
			report.MissingTables = append(report.MissingTables, t.Schema+"."+t.Table)
			continue
		}
		if t.RelTuples == -1 {
			report.UnanalyzedInSource = append(report.UnanalyzedInSource, t.Schema+"."+t.Table)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE pg_catalog.pg_class SET reltuples = $1, relpages = $2 WHERE oid = $3`,
			t.RelTuples, t.RelPages, oid.Int64,
		); err != nil {
			return nil, fmt.Errorf("statstore: restore: update pg_class for %s: %w", qname, err)
		}

		for _, c := range t.Columns {
			if c.Stats == nil {
				continue
			}
			if err := restoreColumnStats(ctx, tx, oid.Int64, c.Name, *c.Stats); err != nil {
				return nil, fmt.Errorf("statstore: restore: column %s.%s: %w", qname, c.Name, err)
			}
		}
	}

	return report, nil
}

func restoreColumnStats(ctx context.Context, tx *sql.Tx, relid int64, column string, es ExportedStats) error {
	var attnum int16
	if err := tx.QueryRowContext(ctx,
		`SELECT attnum FROM pg_catalog.pg_attribute WHERE attrelid = $1 AND attname = $2`,
		relid, column,
	).Scan(&attnum); err != nil {
		if err == sql.ErrNoRows {
			return nil // column renamed or dropped since dump; nothing to restore
		}
		return err
	}

	var kinds [5]int
	var ops [5]uint32
	var colls [5]uint32
	var numbers [5]any
	var values [5]any
	for i, slot := range es.Slots {
		if SupportedKind(slot.Kind) {
			kinds[i] = slot.Kind
			ops[i] = slot.Op
			colls[i] = slot.Coll
		} else {
			kinds[i] = 0
			ops[i] = 0
			colls[i] = 0
		}
		numbers[i] = floatArrayLiteral(slot.Numbers)
		values[i] = textArrayLiteral(slot.Values) // always nil; see textArrayLiteral
	}

	var exists bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM pg_catalog.pg_statistic WHERE starelid = $1 AND staattnum = $2 AND stainherit = $3)`,
		relid, attnum, es.Inherited,
	).Scan(&exists); err != nil {
		return err
	}

	if exists {
		_, err := tx.ExecContext(ctx, `
UPDATE pg_catalog.pg_statistic SET
  stanullfrac = $4, stawidth = $5, stadistinct = $6,
  stakind1 = $7, stakind2 = $8, stakind3 = $9, stakind4 = $10, stakind5 = $11,
  staop1 = $12, staop2 = $13, staop3 = $14, staop4 = $15, staop5 = $16,
  stacoll1 = $17, stacoll2 = $18, stacoll3 = $19, stacoll4 = $20, stacoll5 = $21,
  stanumbers1 = $22, stanumbers2 = $23, stanumbers3 = $24, stanumbers4 = $25, stanumbers5 = $26,
  stavalues1 = $27, stavalues2 = $28, stavalues3 = $29, stavalues4 = $30, stavalues5 = $31
WHERE starelid = $1 AND staattnum = $2 AND stainherit = $3`,
			relid, attnum, es.Inherited, es.NullFrac, es.Width, es.Distinct,
			kinds[0], kinds[1], kinds[2], kinds[3], kinds[4],
			ops[0], ops[1], ops[2], ops[3], ops[4],
			colls[0], colls[1], colls[2], colls[3], colls[4],
			numbers[0], numbers[1], numbers[2], numbers[3], numbers[4],
			values[0], values[1], values[2], values[3], values[4],
		)
		return err
	}

	_, err := tx.ExecContext(ctx, `
INSERT INTO pg_catalog.pg_statistic (
  starelid, staattnum, stainherit, stanullfrac, stawidth, stadistinct,
  stakind1, stakind2, stakind3, stakind4, stakind5,
  staop1, staop2, staop3, staop4, staop5,
  stacoll1, stacoll2, stacoll3, stacoll4, stacoll5,
  stanumbers1, stanumbers2, stanumbers3, stanumbers4, stanumbers5,
  stavalues1, stavalues2, stavalues3, stavalues4, stavalues5
) VALUES ($1,$2,$3,$4,$5,$6, $7,$8,$9,$10,$11, $12,$13,$14,$15,$16, $17,$18,$19,$20,$21, $22,$23,$24,$25,$26, $27,$28,$29,$30,$31)`,
		relid, attnum, es.Inherited, es.NullFrac, es.Width, es.Distinct,
		kinds[0], kinds[1], kinds[2], kinds[3], kinds[4],
		ops[0], ops[1], ops[2], ops[3], ops[4],
		colls[0], colls[1], colls[2], colls[3], colls[4],
		numbers[0], numbers[1], numbers[2], numbers[3], numbers[4],
		values[0], values[1], values[2], values[3], values[4],
	)
	return err
}

// ApplyAssumption writes the fallback reltuples/relpages to every
// table in schemas, used when no export is available
// (FromAssumption). It does not touch pg_statistic — without a real
// source, per-column distributions are left whatever the target
// happens to have.
func ApplyAssumption(ctx context.Context, tx *sql.Tx, schemas []string, a Assumption) error {
	filter, args := schemaFilterClause(schemas, 1)
	q := fmt.Sprintf(`
UPDATE pg_catalog.pg_class c SET reltuples = %s, relpages = %s
FROM pg_catalog.pg_namespace n
WHERE n.oid = c.relnamespace AND c.relkind IN ('r','p') AND %s
`, placeholderFor(a.RelTuples, len(args)+1), placeholderFor(a.RelPages, len(args)+2), filter)
	allArgs := append([]any{}, args...)
	allArgs = append(allArgs, a.RelTuples, a.RelPages)
	_, err := tx.ExecContext(ctx, q, allArgs...)
	return err
}

func placeholderFor(_ any, idx int) string {
	return fmt.Sprintf("$%d", idx)
}

func quoteQualified(schema, table string) string {
	if schema == "" {
		return fmt.Sprintf(`"%s"`, table)
	}
	return fmt.Sprintf(`"%s"."%s"`, schema, table)
}

func floatArrayLiteral(nums []float64) any {
	if nums == nil {
		return nil
	}
	s := "{"
	for i, n := range nums {
		if i > 0 {
			s += ","
		}
		s += fmt.Sprintf("%g", n)
	}
	s += "}"
	return s
}

// textArrayLiteral is always nil: stavaluesN is the polymorphic
// anyarray type, so reconstructing the original column's concrete
// element type from a dumped text representation alone is not safe in
// general. Per the restore contract, an array-valued slot whose
// element type cannot be reconstructed safely is written as NULL
// rather than guessed at.
func textArrayLiteral(vals []string) any {
	return nil
}
