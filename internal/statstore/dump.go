package statstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Dump reads every user table's catalog-level counts and per-column
// pg_statistic row from src and assembles a versioned export document.
// schemas restricts which namespaces are read; empty means every
// non-system schema, matching the catalog loader's default.
func Dump(ctx context.Context, src *sql.DB, schemas []string, mode Mode) (*ExportedStatsV1, error) {
	filter, args := schemaFilterClause(schemas, 1)

	tables, order, err := dumpTables(ctx, src, filter, args)
	if err != nil {
		return nil, fmt.Errorf("statstore: dump tables: %w", err)
	}
	if err := dumpColumns(ctx, src, filter, args, tables); err != nil {
		return nil, fmt.Errorf("statstore: dump columns: %w", err)
	}
	if err := dumpStats(ctx, src, filter, args, tables, mode); err != nil {
		return nil, fmt.Errorf("statstore: dump stats: %w", err)
	}

	out := &ExportedStatsV1{Version: schemaVersion, Mode: mode.String()}
	for _, k := range order {
		out.Tables = append(out.Tables, *tables[k])
	}
	return out, nil
}

func schemaFilterClause(schemas []string, argStart int) (string, []any) {
	if len(schemas) == 0 {
		return "n.nspname NOT IN ('pg_catalog','information_schema','pg_toast')", nil
	}
	placeholders := make([]string, len(schemas))
	args := make([]any, len(schemas))
	for i, s := range schemas {
		placeholders[i] = fmt.Sprintf("$%d", argStart+i)
		args[i] = s
	}
	return "n.nspname IN (" + strings.Join(placeholders, ",") + ")", args
}

func tkey(schema, table string) string { return schema + "." + table }

func dumpTables(ctx context.Context, db *sql.DB, filter string, args []any) (map[string]*ExportedTable, []string, error) {
	q := fmt.Sprintf(`
SELECT n.nspname, c.relname, c.reltuples, c.relpages, c.relallvisible
FROM pg_catalog.pg_class c
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
WHERE c.relkind IN ('r','p') AND %s
ORDER BY n.nspname, c.relname
-- @qd_introspection
`, filter)

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	out := map[string]*ExportedTable{}
	var order []string
	for rows.Next() {
		var schema, table string
		var reltuples float64
		var relpages, relallvisible int64
		if err := rows.Scan(&schema, &table, &reltuples, &relpages, &relallvisible); err != nil {
			return nil, nil, err
		}
		k := tkey(schema, table)
		out[k] = &ExportedTable{
			Schema: schema, Table: table,
			RelTuples: reltuples, RelPages: relpages, RelAllVisible: relallvisible,
		}
		order = append(order, k)
	}
	return out, order, rows.Err()
}

func dumpColumns(ctx context.Context, db *sql.DB, filter string, args []any, tables map[string]*ExportedTable) error {
	q := fmt.Sprintf(`
SELECT n.nspname, c.relname, a.attname,
       pg_catalog.format_type(a.atttypid, a.atttypmod) AS typ,
       NOT a.attnotnull AS nullable, a.attnum
FROM pg_catalog.pg_class c
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
JOIN pg_catalog.pg_attribute a ON a.attrelid = c.oid AND a.attnum > 0 AND NOT a.attisdropped
WHERE c.relkind IN ('r','p') AND %s
ORDER BY n.nspname, c.relname, a.attnum
-- @qd_introspection
`, filter)

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var schema, table, col, typ string
		var nullable bool
		var attnum int
		if err := rows.Scan(&schema, &table, &col, &typ, &nullable, &attnum); err != nil {
			return err
		}
		t, ok := tables[tkey(schema, table)]
		if !ok {
			continue
		}
		t.Columns = append(t.Columns, ExportedColumn{Name: col, Type: typ, Nullable: nullable})
	}
	return rows.Err()
}

func dumpStats(ctx context.Context, db *sql.DB, filter string, args []any, tables map[string]*ExportedTable, mode Mode) error {
	q := fmt.Sprintf(`
SELECT n.nspname, c.relname, a.attname,
       s.stainherit, s.stanullfrac, s.stawidth, s.stadistinct,
       s.stakind1, s.stakind2, s.stakind3, s.stakind4, s.stakind5,
       s.staop1, s.staop2, s.staop3, s.staop4, s.staop5,
       s.stacoll1, s.stacoll2, s.stacoll3, s.stacoll4, s.stacoll5,
       s.stanumbers1, s.stanumbers2, s.stanumbers3, s.stanumbers4, s.stanumbers5,
       s.stavalues1::text[], s.stavalues2::text[], s.stavalues3::text[],
       s.stavalues4::text[], s.stavalues5::text[]
FROM pg_catalog.pg_statistic s
JOIN pg_catalog.pg_attribute a ON a.attrelid = s.starelid AND a.attnum = s.staattnum
JOIN pg_catalog.pg_class c ON c.oid = s.starelid
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
WHERE %s
-- @qd_introspection
`, filter)

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var schema, table, col string
		var es ExportedStats
		var kinds [5]int
		var ops [5]int64
		var colls [5]int64
		var numbers [5][]byte
		var values [5][]sql.NullString
		dest := []any{
			&schema, &table, &col,
			&es.Inherited, &es.NullFrac, &es.Width, &es.Distinct,
			&kinds[0], &kinds[1], &kinds[2], &kinds[3], &kinds[4],
			&ops[0], &ops[1], &ops[2], &ops[3], &ops[4],
			&colls[0], &colls[1], &colls[2], &colls[3], &colls[4],
			&numbers[0], &numbers[1], &numbers[2], &numbers[3], &numbers[4],
			textArray(&values[0]), textArray(&values[1]), textArray(&values[2]),
			textArray(&values[3]), textArray(&values[4]),
		}
		if err := rows.Scan(dest...); err != nil {
			return err
		}

		t, ok := tables[tkey(schema, table)]
		if !ok {
			continue
		}
		for i := 0; i < 5; i++ {
			slot := ExportedSlot{Kind: kinds[i], Op: uint32(ops[i]), Coll: uint32(colls[i])}
			if nums, err := parseFloatArray(numbers[i]); err == nil {
				slot.Numbers = nums
			}
			if mode == ModeFull {
				if vals := compactStrings(values[i]); vals != nil {
					slot.Values = vals
				}
			}
			es.Slots[i] = slot
		}
		setStats(t, col, es)
	}
	return rows.Err()
}

func setStats(t *ExportedTable, column string, es ExportedStats) {
	for i := range t.Columns {
		if t.Columns[i].Name == column {
			c := es
			t.Columns[i].Stats = &c
			return
		}
	}
}

// textArray adapts a []sql.NullString destination to the generic
// driver's array-scanning convention, mirroring
// internal/catalog/stats.go's own adaptation of
// pkg/richcatalog.pqTextArray.
func textArray(dst *[]sql.NullString) any {
	return &arrayScanner{dst: dst}
}

type arrayScanner struct{ dst *[]sql.NullString }

func (a *arrayScanner) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*a.dst = nil
		return nil
	case string:
		*a.dst = parseTextArray(v)
		return nil
	case []byte:
		*a.dst = parseTextArray(string(v))
		return nil
	default:
		return errors.New("statstore: unsupported array scan source")
	}
}

func parseTextArray(s string) []sql.NullString {
	s = strings.TrimSpace(s)
	if s == "" || s == "{}" {
		return nil
	}
	s = strings.TrimPrefix(strings.TrimSuffix(s, "}"), "{")
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]sql.NullString, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		p = strings.Trim(p, `"`)
		if p == "" {
			out = append(out, sql.NullString{})
			continue
		}
		out = append(out, sql.NullString{String: p, Valid: true})
	}
	return out
}

func compactStrings(ns []sql.NullString) []string {
	if len(ns) == 0 {
		return nil
	}
	out := make([]string, 0, len(ns))
	for _, n := range ns {
		if n.Valid {
			out = append(out, n.String)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func parseFloatArray(b []byte) ([]float64, error) {
	s := strings.TrimSpace(string(b))
	if s == "" || s == "{}" {
		return nil, nil
	}
	s = strings.TrimPrefix(strings.TrimSuffix(s, "}"), "{")
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}
