// Package seed generates representative, reproducible fixture rows for
// cardinality-sensitive Evaluator/Optimizer integration tests.
// Generalized from pkg/fixgres_demo/lib.go's single hardcoded User/users
// reflect-based db-tag mapping into a generic Insert[T] over any
// db-tagged struct, and from cmd/faker_test's lesson that
// faker.SetCryptoSource must be seeded deterministically — applied here
// via internal/prng so seeded fixture data is reproducible across runs.
package seed

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-faker/faker/v4"

	"github.com/qdadvisor/advisor/internal/prng"
)

var seedOnce sync.Once

// Deterministic seeds faker's crypto source exactly once per test
// binary. Safe to call from multiple tests; only the first call takes
// effect, matching faker.SetCryptoSource's package-global, order
// dependent state.
func Deterministic(seedValue int64) {
	seedOnce.Do(func() {
		faker.SetCryptoSource(prng.New(seedValue))
	})
}

// Fill populates every exported field of v (a pointer to a struct) with
// faker-generated data, honoring `faker:"-"` to skip a field the same
// way columnsAndValues honors `db:"-"`.
func Fill(v any) error {
	return faker.FakeData(v)
}

// Table names the destination table for a fixture type; the primary key
// column is marked separately with the "pk" db tag. Implement it the
// way fixgres_demo's User.TableName did.
type Table interface {
	TableName() string
}

// Insert inserts n faker-filled rows of T into its own table, returning
// the rows actually inserted (with primary keys populated from
// RETURNING where the "pk,autoinc" db tag marks exactly one field).
func Insert[T Table](ctx context.Context, db *sql.DB, n int) ([]T, error) {
	out := make([]T, 0, n)
	for i := 0; i < n; i++ {
		var row T
		if err := Fill(&row); err != nil {
			return nil, fmt.Errorf("seed: fill: %w", err)
		}
		pkField, err := insertOne(ctx, db, row)
		if err != nil {
			return nil, fmt.Errorf("seed: insert: %w", err)
		}
		if pkField != nil {
			setPK(&row, *pkField)
		}
		out = append(out, row)
	}
	return out, nil
}

func insertOne(ctx context.Context, db *sql.DB, row Table) (*int64, error) {
	cols, vals, pkFieldName := columnsAndValues(row)
	colList := strings.Join(cols, ", ")
	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	var query string
	if pkFieldName != "" {
		query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
			row.TableName(), colList, strings.Join(placeholders, ", "), pkColumnName(row, pkFieldName))
	} else {
		query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			row.TableName(), colList, strings.Join(placeholders, ", "))
	}

	if pkFieldName == "" {
		_, err := db.ExecContext(ctx, query, vals...)
		return nil, err
	}
	var pk int64
	if err := db.QueryRowContext(ctx, query, vals...).Scan(&pk); err != nil {
		return nil, err
	}
	return &pk, nil
}

// columnsAndValues mirrors fixgres_demo's reflect-based db-tag walk,
// generalized to any struct: a tag of "-" skips the field, and
// "autoinc" excludes it from the INSERT column list (but still reports
// its field name as the primary key to scan RETURNING into).
func columnsAndValues(u any) (cols []string, vals []any, pkFieldName string) {
	v := reflect.ValueOf(u)
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		dbTag := f.Tag.Get("db")
		if dbTag == "" {
			continue
		}
		parts := strings.Split(dbTag, ",")
		col := parts[0]
		if col == "-" {
			continue
		}
		isPK := false
		isAutoinc := false
		for _, p := range parts[1:] {
			if p == "pk" {
				isPK = true
			}
			if p == "autoinc" {
				isAutoinc = true
			}
		}
		if isPK {
			pkFieldName = f.Name
		}
		if isAutoinc {
			continue
		}
		cols = append(cols, col)
		vals = append(vals, v.Field(i).Interface())
	}
	return
}

func pkColumnName(u any, pkFieldName string) string {
	t := reflect.TypeOf(u)
	f, _ := t.FieldByName(pkFieldName)
	parts := strings.Split(f.Tag.Get("db"), ",")
	return parts[0]
}

func setPK(v any, pk int64) {
	rv := reflect.ValueOf(v).Elem()
	t := rv.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		parts := strings.Split(f.Tag.Get("db"), ",")
		for _, p := range parts[1:] {
			if p == "pk" {
				rv.Field(i).SetInt(pk)
				return
			}
		}
	}
}
