// Package schemareplicator shells out to pg_dump/pg_restore to copy a
// source database's schema (never its rows) into the Evaluator's
// scratch target database, so hypothetical-index probes run against
// the same table/column/constraint shape production has.
//
// No teacher file shells out to an external process; this is the kind
// of thin, non-core plumbing the system description calls out as a
// collaborator rather than core logic, so it is built directly on
// os/exec with no domain library wrapping it.
package schemareplicator

import (
	"context"
	"fmt"
	"os/exec"
)

// Replicate dumps sourceDSN's schema-only definition and restores it
// into targetDSN, replacing whatever that target previously held for
// the given schema names (or every schema if none are given).
func Replicate(ctx context.Context, sourceDSN, targetDSN string, schemas []string) error {
	dump := exec.CommandContext(ctx, "pg_dump", buildDumpArgs(sourceDSN, schemas)...)
	dumpOut, err := dump.StdoutPipe()
	if err != nil {
		return fmt.Errorf("schemareplicator: pg_dump stdout pipe: %w", err)
	}

	restore := exec.CommandContext(ctx, "pg_restore",
		"--no-owner", "--no-privileges", "--clean", "--if-exists", "--dbname="+targetDSN)
	restore.Stdin = dumpOut

	if err := restore.Start(); err != nil {
		return fmt.Errorf("schemareplicator: start pg_restore: %w", err)
	}
	if err := dump.Run(); err != nil {
		return fmt.Errorf("schemareplicator: pg_dump: %w", err)
	}
	if err := restore.Wait(); err != nil {
		return fmt.Errorf("schemareplicator: pg_restore: %w", err)
	}
	return nil
}

// buildDumpArgs renders pg_dump's argument list for a schema-only,
// custom-format dump restricted to schemas (every schema if empty).
func buildDumpArgs(sourceDSN string, schemas []string) []string {
	args := []string{"--schema-only", "--no-owner", "--no-privileges", "--format=custom", "--dbname=" + sourceDSN}
	for _, s := range schemas {
		args = append(args, "--schema="+s)
	}
	return args
}
