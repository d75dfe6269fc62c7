// Package statementsource reads the corpus of SQL statements an
// advisor run should analyze, either from a CSV export (pgBadger /
// pg_stat_statements-shaped) or a live JSON-envelope stream.
//
// The stream-decode loop is a direct adaptation of
// internal/wal/consumer.go's Envelope/json.Unmarshal shape —
// repurposed from WAL row-change events to captured-statement events:
// same decode-loop-over-an-io.Reader structure, new envelope fields,
// no live-query fanout since a statement source has no subscribers of
// its own. The CSV path has no teacher precedent; it is new, built
// directly from the corpus-format description.
package statementsource

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
)

// Statement is one SQL statement to analyze, with its bound
// parameters if the source recorded them.
type Statement struct {
	Query  string
	Params []any
}

// Source yields statements one at a time until exhausted.
type Source interface {
	Next() (Statement, bool, error)
}

// csvSource reads one statement per CSV row: the first column is the
// query text, any remaining columns are bound parameters in order.
type csvSource struct {
	r *csv.Reader
}

// NewCSVSource wraps r as a csvSource, matching the pgBadger/
// pg_stat_statements export shape spec.md's corpus description names.
func NewCSVSource(r io.Reader) Source {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1 // rows may carry a variable number of bound params
	return &csvSource{r: cr}
}

func (s *csvSource) Next() (Statement, bool, error) {
	record, err := s.r.Read()
	if err == io.EOF {
		return Statement{}, false, nil
	}
	if err != nil {
		return Statement{}, false, fmt.Errorf("statementsource: read csv row: %w", err)
	}
	if len(record) == 0 {
		return Statement{}, false, fmt.Errorf("statementsource: empty csv row")
	}
	stmt := Statement{Query: record[0]}
	for _, p := range record[1:] {
		stmt.Params = append(stmt.Params, p)
	}
	return stmt, true, nil
}

// Envelope is one decoded line of a JSON-envelope statement stream.
type Envelope struct {
	Query  string `json:"query"`
	Params []any  `json:"params"`
}

type streamSource struct {
	dec *json.Decoder
}

// NewStreamSource wraps r, decoding one Envelope per JSON value —
// mirroring internal/wal/consumer.go's json.NewDecoder(conn) loop,
// applied to a statement-capture envelope instead of a WAL change
// envelope.
func NewStreamSource(r io.Reader) Source {
	return &streamSource{dec: json.NewDecoder(bufio.NewReader(r))}
}

func (s *streamSource) Next() (Statement, bool, error) {
	var env Envelope
	if err := s.dec.Decode(&env); err != nil {
		if err == io.EOF {
			return Statement{}, false, nil
		}
		return Statement{}, false, fmt.Errorf("statementsource: decode envelope: %w", err)
	}
	return Statement{Query: env.Query, Params: env.Params}, true, nil
}

// All drains src into a slice, for callers that want the whole corpus
// up front rather than streaming it.
func All(src Source) ([]Statement, error) {
	var out []Statement
	for {
		stmt, ok, err := src.Next()
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, stmt)
	}
}
