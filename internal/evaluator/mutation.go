package evaluator

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/qdadvisor/advisor/internal/model"
)

// CreateIndexMutation builds a Mutation that creates exactly the
// hypothetical index described by candidate, named per
// candidate.IndexName() so the probe's used-index extraction can
// classify it as "new."
func CreateIndexMutation(candidate model.PermutedIndexCandidate) Mutation {
	return func(ctx context.Context, tx *sql.Tx) error {
		return createIndex(ctx, tx, candidate)
	}
}

// CombinedMutation builds a Mutation that creates every candidate in
// candidates, used for the Optimizer's final combined evaluation once
// all per-table searches have carried forward their accepted indexes.
func CombinedMutation(candidates []model.PermutedIndexCandidate) Mutation {
	return func(ctx context.Context, tx *sql.Tx) error {
		for _, c := range candidates {
			if err := createIndex(ctx, tx, c); err != nil {
				return err
			}
		}
		return nil
	}
}

func createIndex(ctx context.Context, tx *sql.Tx, candidate model.PermutedIndexCandidate) error {
	tbl := candidate.Table
	if candidate.Schema != "" {
		tbl = fmt.Sprintf("%q.%q", candidate.Schema, candidate.Table)
	} else {
		tbl = fmt.Sprintf("%q", candidate.Table)
	}

	cols := make([]string, len(candidate.Columns))
	for i, c := range candidate.Columns {
		cols[i] = fmt.Sprintf("%q", c)
	}

	using := ""
	if candidate.AccessMethod != "" && candidate.AccessMethod != model.AccessMethodBTree {
		using = fmt.Sprintf(" USING %s", candidate.AccessMethod)
	}

	stmt := fmt.Sprintf("CREATE INDEX %q ON %s%s (%s) %s",
		candidate.IndexName(), tbl, using, strings.Join(cols, ", "), model.IntrospectionMarker)

	_, err := tx.ExecContext(ctx, stmt)
	return err
}
