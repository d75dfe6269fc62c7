// Package driver wires the Analyzer, StatisticsStore, Evaluator, and
// Optimizer into one end-to-end run over a corpus of statements,
// broadcasting liveprogress events as it goes and assembling the
// final report.
//
// Grounded on internal/app/server.go's NewServer/Run shape (open the
// shared DB handle, build the dependent components, run the work loop,
// report completion) generalized from "serve HTTP plus a WAL listener
// goroutine" to "run one statement corpus through the advisor
// pipeline."
package driver

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/qdadvisor/advisor/internal/analyzer"
	"github.com/qdadvisor/advisor/internal/catalog"
	"github.com/qdadvisor/advisor/internal/evaluator"
	"github.com/qdadvisor/advisor/internal/liveprogress"
	"github.com/qdadvisor/advisor/internal/model"
	"github.com/qdadvisor/advisor/internal/optimizer"
	"github.com/qdadvisor/advisor/internal/report"
	"github.com/qdadvisor/advisor/internal/statementsource"
	"github.com/qdadvisor/advisor/internal/statstore"
)

// Driver owns one run's shared dependencies: the target database (Run
// loads a fresh catalog snapshot from it on every call) and the default
// schema used to render canonical index definitions.
type Driver struct {
	DB            *sql.DB
	DefaultSchema string
	Source        statstore.Source
	Counts        map[string]evaluator.TableCount
	// MaxConcurrent bounds how many statements are analyzed at once.
	// Each worker shares the same *sql.DB pool but gets its own probe
	// transaction, matching the concurrency model's "distinct
	// connections per concurrent Evaluator" requirement. Below 1 it is
	// treated as 1 (sequential).
	MaxConcurrent int
}

// New returns a Driver ready to run statements against db, with
// MaxConcurrent set to 1. It performs no database work itself.
func New(ctx context.Context, db *sql.DB, defaultSchema string, source statstore.Source, counts map[string]evaluator.TableCount) *Driver {
	return &Driver{DB: db, DefaultSchema: defaultSchema, Source: source, Counts: counts, MaxConcurrent: 1}
}

// Run analyzes every statement in order, broadcasting progress events
// to run, and returns the assembled report.
func (d *Driver) Run(ctx context.Context, run *liveprogress.Run, statements []statementsource.Statement) (*report.Report, error) {
	cat, err := catalog.Load(ctx, d.DB, catalog.Options{}, false)
	if err != nil {
		return nil, fmt.Errorf("driver: load catalog: %w", err)
	}

	eval := evaluator.New(d.DB, d.DefaultSchema)
	opt := optimizer.New(eval, d.DefaultSchema, cat.Indexes)

	workers := d.MaxConcurrent
	if workers < 1 {
		workers = 1
	}

	results := make([]*report.StatementReport, len(statements))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i, stmt := range statements {
		i, stmt := i, stmt
		if run != nil {
			run.Broadcast(liveprogress.EventStatementStarted, liveprogress.StatementStarted{StatementIndex: i, Query: stmt.Query})
		}

		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			res, err := d.analyzeOne(ctx, cat, opt, stmt)
			if err != nil {
				if err != optimizer.ErrZeroCostPlan && run != nil {
					run.Broadcast(liveprogress.EventError, map[string]string{"error": err.Error(), "query": stmt.Query})
				}
				return
			}

			if run != nil {
				for _, tc := range res.Tried {
					run.Broadcast(liveprogress.EventCandidateTried, liveprogress.CandidateTriedFrom(i, tc))
				}
				run.Broadcast(liveprogress.EventStatementFinished, liveprogress.StatementFinished{
					StatementIndex: i, BaseCost: res.BaseCost, FinalCost: res.FinalCost, NewIndexCount: len(res.NewIndexes),
				})
			}

			sr := report.FromOptimizerResult(stmt.Query, res)
			results[i] = &sr
		}()
	}
	wg.Wait()

	var statementReports []report.StatementReport
	for _, r := range results {
		if r != nil {
			statementReports = append(statementReports, *r)
		}
	}

	if run != nil {
		run.Broadcast(liveprogress.EventRunFinished, liveprogress.RunFinished{StatementCount: len(statementReports)})
	}

	rep := report.NewReport(d.Source, statementReports)
	return &rep, nil
}

func (d *Driver) analyzeOne(ctx context.Context, cat *catalog.Catalog, opt *optimizer.Optimizer, stmt statementsource.Statement) (*optimizer.Result, error) {
	result, err := analyzer.Analyze(stmt.Query)
	if err != nil {
		return nil, fmt.Errorf("analyze: %w", err)
	}

	var candidates []model.RootIndexCandidate
	for _, ref := range result.Candidates {
		if ref.Ignored || ref.SkipCTE || ref.ResolvedTable == "" {
			continue
		}
		candidates = append(candidates, model.RootIndexCandidate{
			Schema:       ref.ResolvedSchema,
			Table:        ref.ResolvedTable,
			Column:       ref.Column,
			AccessMethod: d.suggestedAccessMethod(cat, ref.ResolvedSchema, ref.ResolvedTable, ref.Column),
		})
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no indexable column references found")
	}

	return opt.Optimize(ctx, optimizer.Inputs{
		Query:      stmt.Query,
		Params:     stmt.Params,
		Candidates: candidates,
		Counts:     d.Counts,
	})
}

// suggestedAccessMethod looks up column's catalog-computed suggestion,
// falling back to d.DefaultSchema when the reference was unqualified
// and defaulting to btree when the table or column isn't in the
// loaded snapshot.
func (d *Driver) suggestedAccessMethod(cat *catalog.Catalog, schema, table, column string) model.AccessMethod {
	if schema == "" {
		schema = d.DefaultSchema
	}
	tbl, ok := cat.Table(schema, table)
	if !ok {
		return model.AccessMethodBTree
	}
	for _, col := range tbl.Columns {
		if col.Name == column {
			return col.SuggestedAccessMethod
		}
	}
	return model.AccessMethodBTree
}
