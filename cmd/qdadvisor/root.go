package main

import (
	"github.com/spf13/cobra"

	"github.com/qdadvisor/advisor/internal/config"
)

// Version is the qdadvisor version, set by the release build.
var Version = "development"

func init() {
	config.RegisterFlags(rootCmd)
}

var rootCmd = &cobra.Command{
	Use:          "qdadvisor",
	Short:        "Recommends PostgreSQL indexes by probing costed EXPLAIN plans under hypothetical indexes",
	SilenceUsage: true,
	Version:      Version,
}

// Execute runs the root command, registering every subcommand first —
// mirroring xataio-pgroll's cmd/root.go Execute shape.
func Execute() error {
	rootCmd.AddCommand(analyzeCmd())
	rootCmd.AddCommand(serveCmd())
	return rootCmd.Execute()
}
