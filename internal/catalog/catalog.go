// Package catalog loads table, column, and existing-index metadata
// from a target PostgreSQL database once per run. The loaded snapshot
// is treated as immutable for the remainder of the run, per the data
// model's lifecycle rule for table/column/existing-index metadata.
//
// Grounded on pkg/richcatalog/richcatalog.go's pg_catalog
// introspection. Load issues separate pg_catalog queries for tables,
// columns, statistics and indexes; the snapshot carries no checksum,
// there is no auto-refresh/LISTEN machinery (a run-once advisor has no
// need to watch for schema drift mid-run), and there is no
// information_schema fallback path.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/qdadvisor/advisor/internal/model"
)

// Options controls which schemas a Load call introspects.
type Options struct {
	// Schemas to include. If empty, every non-system schema is
	// included, matching richcatalog's default.
	Schemas []string
}

// Catalog is the immutable, once-loaded snapshot of a database's
// tables, columns, and existing indexes.
type Catalog struct {
	tables  map[string]*model.TableMetadata // key: "schema.table"
	indexes map[string][]model.ExistingIndex
}

func key(schema, table string) string { return schema + "." + table }

// Table looks up a previously loaded table by schema and name.
func (c *Catalog) Table(schema, table string) (*model.TableMetadata, bool) {
	t, ok := c.tables[key(schema, table)]
	return t, ok
}

// Indexes returns the existing indexes on a table, in no particular
// order.
func (c *Catalog) Indexes(schema, table string) []model.ExistingIndex {
	return c.indexes[key(schema, table)]
}

// Tables returns every loaded table, sorted by (schema, table) for
// deterministic iteration.
func (c *Catalog) Tables() []*model.TableMetadata {
	out := make([]*model.TableMetadata, 0, len(c.tables))
	for _, t := range c.tables {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Schema != out[j].Schema {
			return out[i].Schema < out[j].Schema
		}
		return out[i].Table < out[j].Table
	})
	return out
}

// Load introspects db and builds a Catalog. loadStats controls whether
// per-column pg_statistic slots are read in addition to table/column
// shape — the Optimizer's evaluator database only needs shape and
// existing indexes, while the StatisticsStore's dump path against a
// production source needs the full per-column slot read.
func Load(ctx context.Context, db *sql.DB, opts Options, loadStats bool) (*Catalog, error) {
	schemaFilter, args := schemaFilterClause(opts.Schemas, 1)

	tables, err := loadTables(ctx, db, schemaFilter, args)
	if err != nil {
		return nil, fmt.Errorf("catalog: load tables: %w", err)
	}
	if err := loadColumns(ctx, db, schemaFilter, args, tables); err != nil {
		return nil, fmt.Errorf("catalog: load columns: %w", err)
	}
	if loadStats {
		if err := loadColumnStats(ctx, db, schemaFilter, args, tables); err != nil {
			return nil, fmt.Errorf("catalog: load column stats: %w", err)
		}
	}
	indexes, err := loadIndexes(ctx, db, schemaFilter, args)
	if err != nil {
		return nil, fmt.Errorf("catalog: load indexes: %w", err)
	}

	return &Catalog{tables: tables, indexes: indexes}, nil
}

// schemaFilterClause renders a WHERE fragment restricting to opts'
// schemas (or the default system-schema exclusion), and its bind args
// starting at placeholder index argStart.
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

func loadTables(ctx context.Context, db *sql.DB, schemaFilter string, args []any) (map[string]*model.TableMetadata, error) {
	q := fmt.Sprintf(`
SELECT n.nspname, c.relname, c.reltuples, c.relpages, c.relallvisible
FROM pg_catalog.pg_class c
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
WHERE c.relkind IN ('r','p') AND %s
-- @qd_introspection
`, schemaFilter)

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]*model.TableMetadata{}
	for rows.Next() {
		var schema, table string
		var reltuples float64
		var relpages, relallvisible int64
		if err := rows.Scan(&schema, &table, &reltuples, &relpages, &relallvisible); err != nil {
			return nil, err
		}
		out[key(schema, table)] = &model.TableMetadata{
			Schema:        schema,
			Table:         table,
			RelTuples:     reltuples,
			RelPages:      relpages,
			RelAllVisible: relallvisible,
		}
	}
	return out, rows.Err()
}

func loadColumns(ctx context.Context, db *sql.DB, schemaFilter string, args []any, tables map[string]*model.TableMetadata) error {
	q := fmt.Sprintf(`
SELECT n.nspname, c.relname, a.attname,
       pg_catalog.format_type(a.atttypid, a.atttypmod) AS typ,
       NOT a.attnotnull AS nullable,
       a.attnum
FROM pg_catalog.pg_class c
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
JOIN pg_catalog.pg_attribute a ON a.attrelid = c.oid AND a.attnum > 0 AND NOT a.attisdropped
WHERE c.relkind IN ('r','p') AND %s
ORDER BY n.nspname, c.relname, a.attnum
-- @qd_introspection
`, schemaFilter)

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
		t, ok := tables[key(schema, table)]
		if !ok {
			continue // table filtered out or dropped between queries
		}
		t.Columns = append(t.Columns, model.ColumnMetadata{
			Name:                  col,
			Type:                  typ,
			Nullable:              nullable,
			SuggestedAccessMethod: suggestedAccessMethod(typ),
		})
	}
	return rows.Err()
}

// suggestedAccessMethod tags a column's natural index access method:
// gin for array, jsonb, and full-text types, btree otherwise. This is
// the SPEC_FULL addition making the "B-tree and, where applicable, GIN"
// framing concrete.
func suggestedAccessMethod(declaredType string) model.AccessMethod {
	t := strings.ToLower(declaredType)
	switch {
	case strings.HasSuffix(t, "[]"):
		return model.AccessMethodGIN
	case t == "jsonb":
		return model.AccessMethodGIN
	case t == "tsvector":
		return model.AccessMethodGIN
	default:
		return model.AccessMethodBTree
	}
}

func loadIndexes(ctx context.Context, db *sql.DB, schemaFilter string, args []any) (map[string][]model.ExistingIndex, error) {
	q := fmt.Sprintf(`
SELECT n.nspname, c.relname, ci.relname AS index_name, am.amname,
       a.attname, k.ord, (i.indoption[k.ord-1] & 1) <> 0 AS is_desc
FROM pg_catalog.pg_index i
JOIN pg_catalog.pg_class c ON c.oid = i.indrelid
JOIN pg_catalog.pg_class ci ON ci.oid = i.indexrelid
JOIN pg_catalog.pg_am am ON am.oid = ci.relam
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
JOIN LATERAL unnest(i.indkey) WITH ORDINALITY AS k(attnum, ord) ON true
JOIN pg_catalog.pg_attribute a ON a.attrelid = c.oid AND a.attnum = k.attnum
WHERE %s
ORDER BY n.nspname, c.relname, ci.relname, k.ord
-- @qd_introspection
`, schemaFilter)

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byIndex := map[string]*model.ExistingIndex{}
	order := []string{}
	tableOf := map[string]string{}
	for rows.Next() {
		var schema, table, idxName, amName, col string
		var ord int
		var desc bool
		if err := rows.Scan(&schema, &table, &idxName, &amName, &col, &ord, &desc); err != nil {
			return nil, err
		}
		ik := schema + "." + table + "." + idxName
		idx, ok := byIndex[ik]
		if !ok {
			idx = &model.ExistingIndex{
				Schema:       schema,
				Table:        table,
				Name:         idxName,
				AccessMethod: model.AccessMethod(amName),
			}
			byIndex[ik] = idx
			order = append(order, ik)
			tableOf[ik] = key(schema, table)
		}
		idx.Columns = append(idx.Columns, model.IndexColumn{Name: col, Desc: desc})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := map[string][]model.ExistingIndex{}
	for _, ik := range order {
		tk := tableOf[ik]
		out[tk] = append(out[tk], *byIndex[ik])
	}
	return out, nil
}
