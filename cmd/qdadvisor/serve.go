package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/qdadvisor/advisor/internal/config"
	"github.com/qdadvisor/advisor/internal/driver"
	"github.com/qdadvisor/advisor/internal/httpapi"
	"github.com/qdadvisor/advisor/internal/liveprogress"
	"github.com/qdadvisor/advisor/internal/report"
	"github.com/qdadvisor/advisor/internal/statementsource"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the submit-a-run HTTP/WebSocket API so runs can be started and watched live",
		RunE:  runServe,
	}
}

// runServe opens the target database once at startup and wires
// internal/httpapi.Handler to a Driver closure that shares that pool
// across runs and delegates the search
// itself to internal/driver.Driver, reporting completion back through
// the httpapi.Driver callback the same way internal/app.Server wires
// its WAL listener goroutine to the reactive registry: one shared
// *http.Server, graceful shutdown on SIGINT/SIGTERM.
func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	targetDB, err := sql.Open("pgx", cfg.TargetDSN)
	if err != nil {
		return fmt.Errorf("open target database: %w", err)
	}
	defer targetDB.Close()
	if cfg.MaxConcurrentEvaluators > 0 {
		targetDB.SetMaxOpenConns(cfg.MaxConcurrentEvaluators)
	}

	registry := liveprogress.NewRegistry()

	runDriver := func(run *liveprogress.Run, statements []statementsource.Statement, onDone func(*report.Report, error)) {
		go func() {
			source, err := applyStatistics(ctx, cfg, targetDB)
			if err != nil {
				onDone(nil, err)
				return
			}
			d := driver.New(ctx, targetDB, cfg.DefaultSchema, source, nil)
			d.MaxConcurrent = cfg.MaxConcurrentEvaluators
			rep, err := d.Run(ctx, run, statements)
			onDone(rep, err)
		}()
	}

	handler := httpapi.NewHandler(registry, runDriver)
	router := httpapi.NewRouter(handler)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	zap.L().Info("listening", zap.String("addr", cfg.HTTPAddr))
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-quit:
		zap.L().Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
