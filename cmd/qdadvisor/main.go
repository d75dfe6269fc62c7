// Command qdadvisor is the CLI entrypoint tying together the
// statement source, catalog, statistics store, evaluator, and
// optimizer into a single run, and optionally serving its live
// progress and report over HTTP.
package main

import (
	"go.uber.org/zap"
)

func main() {
	logger := zap.Must(zap.NewProduction())
	defer logger.Sync() //nolint:errcheck
	zap.ReplaceGlobals(logger)

	if err := Execute(); err != nil {
		zap.L().Fatal("qdadvisor exited", zap.Error(err))
	}
}
