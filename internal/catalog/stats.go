package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/qdadvisor/advisor/internal/model"
)

// loadColumnStats reads each column's pg_statistic row, populating the
// five parallel slots the data model mirrors directly from the
// catalog's own slot numbering (kept 1..5 rather than normalized, per
// the component's own design notes — it simplifies round-trips).
func loadColumnStats(ctx context.Context, db *sql.DB, schemaFilter string, args []any, tables map[string]*model.TableMetadata) error {
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
`, schemaFilter)

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var schema, table, col string
		var cs model.ColumnStats
		var kinds [5]int
		var ops [5]int64
		var colls [5]int64
		var numbers [5][]byte
		var values [5][]sql.NullString
		dest := []any{
			&schema, &table, &col,
			&cs.Inherited, &cs.NullFrac, &cs.Width, &cs.Distinct,
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

		t, ok := tables[key(schema, table)]
		if !ok {
			continue
		}
		for i := 0; i < 5; i++ {
			slot := model.StatSlot{
				Kind: model.StatSlotKind(kinds[i]),
				Op:   uint32(ops[i]),
				Coll: uint32(colls[i]),
			}
			if nums, err := parseFloatArray(numbers[i]); err == nil {
				slot.Numbers = nums
			}
			if vals := compactStrings(values[i]); vals != nil {
				slot.Values = vals
			}
			cs.Slots[i] = slot
		}
		setColumnStats(t, col, cs)
	}
	return rows.Err()
}

func setColumnStats(t *model.TableMetadata, column string, cs model.ColumnStats) {
	for i := range t.Columns {
		if t.Columns[i].Name == column {
			c := cs
			t.Columns[i].Stats = &c
			return
		}
	}
}

// textArray adapts a []sql.NullString destination to the generic
// driver's array-scanning convention, the same way
// pkg/richcatalog.pqTextArray avoids depending on a driver-specific
// array type.
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
		return errors.New("catalog: unsupported array scan source")
	}
}

// parseTextArray parses a PostgreSQL brace-delimited array literal
// into its element strings. It does not handle nested arrays or
// escaped commas inside quoted elements — sufficient for the
// statistics slot values this package reads, which are scalar.
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
		if p == "NULL" {
			out = append(out, sql.NullString{Valid: false})
			continue
		}
		out = append(out, sql.NullString{String: p, Valid: true})
	}
	return out
}

func compactStrings(ns []sql.NullString) []string {
	if ns == nil {
		return nil
	}
	out := make([]string, 0, len(ns))
	for _, v := range ns {
		if v.Valid {
			out = append(out, v.String)
		}
	}
	return out
}

// parseFloatArray parses a PostgreSQL real[] literal (as returned raw
// by the driver for stanumbersN) into float64 values.
func parseFloatArray(raw []byte) ([]float64, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	parts := parseTextArray(string(raw))
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		if !p.Valid {
			continue
		}
		f, err := strconv.ParseFloat(p.String, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}
