package fixgres

import (
	"embed"
	"io/fs"
)

// rawMigrations is the embedded set of goose migrations that seed the
// fixture tables the Evaluator/Optimizer/StatisticsStore integration
// tests run against.
//
//go:embed migrations/*.sql
var rawMigrations embed.FS

// Migrations returns the migrations rooted at their own directory, the
// shape goose.Up(db, ".") expects when passed via WithGooseUp.
func Migrations() fs.FS {
	sub, err := fs.Sub(rawMigrations, "migrations")
	if err != nil {
		panic(err) // embed directive guarantees this directory exists
	}
	return sub
}
