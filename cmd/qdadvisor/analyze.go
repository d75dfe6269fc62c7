package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/qdadvisor/advisor/internal/config"
	"github.com/qdadvisor/advisor/internal/driver"
	"github.com/qdadvisor/advisor/internal/logutil"
	"github.com/qdadvisor/advisor/internal/report"
	"github.com/qdadvisor/advisor/internal/schemareplicator"
	"github.com/qdadvisor/advisor/internal/statementsource"
	"github.com/qdadvisor/advisor/internal/statstore"
)

var (
	statementsPath string
	statementsFmt  string
	outputFormat   string
	replicateSchema bool
)

func analyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run one statement corpus through the advisor and print its recommendation report",
		RunE:  runAnalyze,
	}
	cmd.Flags().StringVar(&statementsPath, "statements", "", "Path to a statement corpus file (required)")
	cmd.Flags().StringVar(&statementsFmt, "format", "csv", "Corpus format: csv or stream")
	cmd.Flags().StringVar(&outputFormat, "output", "text", "Report format: text, json, or markdown")
	cmd.Flags().BoolVar(&replicateSchema, "replicate-schema", false, "Replicate source-dsn's schema into target-dsn before probing (requires pg_dump/pg_restore)")
	cmd.MarkFlagRequired("statements") //nolint:errcheck
	return cmd
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	f, err := os.Open(statementsPath)
	if err != nil {
		return fmt.Errorf("open statement corpus: %w", err)
	}
	defer f.Close()

	var src statementsource.Source
	switch strings.ToLower(statementsFmt) {
	case "csv":
		src = statementsource.NewCSVSource(f)
	case "stream":
		src = statementsource.NewStreamSource(f)
	default:
		return fmt.Errorf("unrecognized --format %q (want csv or stream)", statementsFmt)
	}
	statements, err := statementsource.All(src)
	if err != nil {
		return fmt.Errorf("read statement corpus: %w", err)
	}
	if len(statements) == 0 {
		return fmt.Errorf("statement corpus %q contained no statements", statementsPath)
	}

	targetDB, err := sql.Open("pgx", cfg.TargetDSN)
	if err != nil {
		return fmt.Errorf("open target database: %w", err)
	}
	defer targetDB.Close()
	if cfg.MaxConcurrentEvaluators > 0 {
		targetDB.SetMaxOpenConns(cfg.MaxConcurrentEvaluators)
	}

	if replicateSchema {
		if cfg.SourceDSN == "" {
			return fmt.Errorf("--replicate-schema requires --source-dsn")
		}
		if err := schemareplicator.Replicate(ctx, cfg.SourceDSN, cfg.TargetDSN, nil); err != nil {
			return fmt.Errorf("replicate schema: %w", err)
		}
	}

	source, err := applyStatistics(ctx, cfg, targetDB)
	if err != nil {
		return err
	}

	d := driver.New(ctx, targetDB, cfg.DefaultSchema, source, nil)
	d.MaxConcurrent = cfg.MaxConcurrentEvaluators
	rep, err := d.Run(ctx, nil, statements)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	return printReport(*rep, outputFormat, cmd.OutOrStdout())
}

// printReport renders rep in the requested format and writes it to w.
func printReport(rep report.Report, format string, w io.Writer) error {
	switch strings.ToLower(format) {
	case "json":
		b, err := rep.JSON()
		if err != nil {
			return fmt.Errorf("render json report: %w", err)
		}
		_, err = fmt.Fprintln(w, string(b))
		return err
	case "markdown":
		md, err := rep.Markdown()
		if err != nil {
			return fmt.Errorf("render markdown report: %w", err)
		}
		_, err = fmt.Fprintln(w, md)
		return err
	case "text", "":
		_, err := fmt.Fprintln(w, rep.PlainText())
		return err
	default:
		return fmt.Errorf("unrecognized --output %q (want text, json, or markdown)", format)
	}
}

// applyStatistics dumps cardinalities from cfg.SourceDSN if one was
// given, restoring them into target inside a short-lived transaction
// that is committed immediately (this is a one-shot CLI setup step,
// not a probe, so it is the one place outside internal/evaluator a
// statstore.Restore call is allowed to commit). With no SourceDSN, the
// assumption-mode fallback is applied the same way.
func applyStatistics(ctx context.Context, cfg config.Config, target *sql.DB) (statstore.Source, error) {
	tx, err := target.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin statistics setup transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if cfg.SourceDSN == "" {
		if err := statstore.ApplyAssumption(ctx, tx, []string{cfg.DefaultSchema}, statstore.DefaultAssumption); err != nil {
			return 0, fmt.Errorf("apply assumption statistics: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return 0, fmt.Errorf("commit assumption statistics: %w", err)
		}
		zap.L().Info("applied assumption-mode statistics", zap.Float64("relTuples", statstore.DefaultAssumption.RelTuples))
		return statstore.FromAssumption, nil
	}

	sourceDB, err := sql.Open("pgx", cfg.SourceDSN)
	if err != nil {
		return 0, fmt.Errorf("open source database: %w", err)
	}
	defer sourceDB.Close()

	mode := statstore.ModeFull
	if cfg.AnonymizeStats {
		mode = statstore.ModeAnonymous
	}
	export, err := statstore.Dump(ctx, sourceDB, []string{cfg.DefaultSchema}, mode)
	if err != nil {
		return 0, fmt.Errorf("dump source statistics: %w", err)
	}
	restoreReport, err := statstore.Restore(ctx, tx, export)
	if err != nil {
		return 0, fmt.Errorf("restore statistics into target: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit restored statistics: %w", err)
	}
	if len(restoreReport.MissingTables) > 0 || len(restoreReport.UnanalyzedInSource) > 0 {
		zap.L().Warn("statistics restore anomalies", logutil.Values(
			zap.Strings("missingTables", restoreReport.MissingTables),
			zap.Strings("unanalyzedInSource", restoreReport.UnanalyzedInSource),
		))
	}
	return statstore.FromStatisticsExport, nil
}

