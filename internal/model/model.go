// Package model defines the shared value types passed between the
// advisor's core components: Permuter, Analyzer, StatisticsStore,
// Evaluator, and Optimizer.
package model

import "fmt"

// IdentPart is one dotted segment of a column or table reference, e.g.
// the "e" and "managerId" in e."managerId".
type IdentPart struct {
	Text   string
	Quoted bool
	Offset int
}

// Folded returns the catalog-matching form of the identifier: lowercase
// unless the identifier was quoted, in which case it is preserved
// bit-exact.
func (p IdentPart) Folded() string {
	if p.Quoted {
		return p.Text
	}
	return lower(p.Text)
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// ColumnReference is a single occurrence of a column in a parsed
// statement.
type ColumnReference struct {
	Parts      []IdentPart // one per dotted segment, in source order
	Start, End int         // byte range [Start, End) in the source text
	Frequency  int         // how many times this rendered text recurs
	Ignored    bool        // set when this occurrence cannot serve a plain index

	// ResolvedSchema/ResolvedTable are filled in by alias resolution
	// (Analyzer step 5); empty until resolved.
	ResolvedSchema string
	ResolvedTable  string

	// Column is the final dotted part's folded text — the column name
	// proper, as opposed to table-qualifying prefixes.
	Column string

	// SkipCTE is set when the reference's leading identifier names a
	// transient common table expression: recorded but never a candidate.
	SkipCTE bool
}

// Rendered joins the reference's parts back into dotted text, quoting
// parts that were quoted in the source.
func (c ColumnReference) Rendered() string {
	out := ""
	for i, p := range c.Parts {
		if i > 0 {
			out += "."
		}
		if p.Quoted {
			out += `"` + p.Text + `"`
		} else {
			out += p.Text
		}
	}
	return out
}

// TableReference is a resolved (schema, table) pair derived from a
// range-variable node and any alias introduced for it.
type TableReference struct {
	Schema string
	Table  string
	Alias  string // empty if the range variable introduced no alias
}

// AccessMethod names a supported PostgreSQL index access method.
type AccessMethod string

const (
	AccessMethodBTree AccessMethod = "btree"
	AccessMethodGIN   AccessMethod = "gin"
)

// StatSlotKind identifies the class of statistic held in a ColumnStats
// slot. Only the kinds named here are interpreted; any other kind value
// found in a dump is treated opaquely (preserved but not acted on).
type StatSlotKind int

const (
	StatKindNone               StatSlotKind = 0
	StatKindMostCommonValues    StatSlotKind = 1
	StatKindHistogram           StatSlotKind = 2
	StatKindCorrelation         StatSlotKind = 3
	StatKindMostCommonElements  StatSlotKind = 4
	StatKindDistinctElemCountHist StatSlotKind = 5
)

// StatSlot is one of the five parallel statistic containers in a
// column's pg_statistic row.
type StatSlot struct {
	Kind    StatSlotKind
	Op      uint32 // operator OID governing comparisons for this slot, 0 if none
	Coll    uint32 // collation OID, 0 if none
	Numbers []float64
	Values  []string // nil in anonymized exports; omitted entirely, not just empty
}

// ColumnStats mirrors a pg_statistic row's five positional slots plus
// the scalar fields that precede them.
type ColumnStats struct {
	Inherited bool
	NullFrac  float64
	Width     int
	Distinct  float64
	Slots     [5]StatSlot
}

// ColumnMetadata describes one column of a table as loaded by the
// catalog at the start of a run.
type ColumnMetadata struct {
	Name      string
	Type      string // declared type, e.g. "integer", "jsonb", "text[]"
	Nullable  bool
	Length    *int
	Precision *int
	Scale     *int
	Default   *string
	Stats     *ColumnStats // nil if no statistics are available for this column

	// SuggestedAccessMethod is gin when Type is an array, jsonb, or
	// tsvector type, and btree otherwise. Computed by the catalog loader
	// from Type at load time.
	SuggestedAccessMethod AccessMethod
}

// TableMetadata describes one user table as loaded by the catalog at
// the start of a run, and is treated as immutable for the run's
// duration.
type TableMetadata struct {
	Schema        string
	Table         string
	RelTuples     float64 // -1 means "never analyzed" (source)
	RelPages      int64
	RelAllVisible int64
	Columns       []ColumnMetadata
}

// QualifiedName renders "schema.table", omitting the schema when it
// equals defaultSchema.
func (t TableMetadata) QualifiedName(defaultSchema string) string {
	if t.Schema == defaultSchema || t.Schema == "" {
		return t.Table
	}
	return fmt.Sprintf("%s.%s", t.Schema, t.Table)
}

// RootIndexCandidate is a single-column seed discovered by the
// Analyzer and handed to the Optimizer for grouping.
type RootIndexCandidate struct {
	Schema string
	Table  string
	Column string

	// AccessMethod is the column's catalog-suggested access method
	// (ColumnMetadata.SuggestedAccessMethod), carried forward so the
	// Optimizer can seed gin candidates for array/jsonb/tsvector
	// columns instead of always probing btree.
	AccessMethod AccessMethod
}

// IndexColumn is one column participating in an index, carrying its
// sort direction.
type IndexColumn struct {
	Name string
	Desc bool
}

// PermutedIndexCandidate is an ordered, non-empty, duplicate-free
// prefix of a permutation of some candidate group's column set.
type PermutedIndexCandidate struct {
	Schema       string
	Table        string
	Columns      []string
	AccessMethod AccessMethod
}

// Definition renders the candidate's canonical textual definition:
// schema.table("c1","c2",...), schema suppressed when it equals
// defaultSchema.
func (p PermutedIndexCandidate) Definition(defaultSchema string) string {
	tbl := p.Table
	if p.Schema != "" && p.Schema != defaultSchema {
		tbl = p.Schema + "." + p.Table
	}
	cols := ""
	for i, c := range p.Columns {
		if i > 0 {
			cols += ","
		}
		cols += `"` + c + `"`
	}
	return fmt.Sprintf("%s(%s)", tbl, cols)
}

// IndexName renders the generated identifier this candidate's
// hypothetical index is created under:
// __qd_{schema}_{table}_{col1_col2_...}.
func (p PermutedIndexCandidate) IndexName() string {
	name := "__qd_" + p.Schema + "_" + p.Table
	for _, c := range p.Columns {
		name += "_" + c
	}
	return name
}

// IndexRecommendation pairs a permuted candidate with its canonical
// textual definition.
type IndexRecommendation struct {
	Candidate  PermutedIndexCandidate
	Definition string
}

// ExistingIndex is an index already present on a table, collected once
// at startup and used to suppress redundant candidates.
type ExistingIndex struct {
	Schema       string
	Table        string
	Name         string
	AccessMethod AccessMethod
	Columns      []IndexColumn
}

// ColumnNames returns the existing index's column names in order,
// ignoring direction — the shape compared against a candidate's
// Columns for suppression (P5).
func (e ExistingIndex) ColumnNames() []string {
	out := make([]string, len(e.Columns))
	for i, c := range e.Columns {
		out[i] = c.Name
	}
	return out
}

// SameColumnSequence reports whether this index's column names, in
// order, exactly equal cols.
func (e ExistingIndex) SameColumnSequence(cols []string) bool {
	names := e.ColumnNames()
	if len(names) != len(cols) {
		return false
	}
	for i := range names {
		if names[i] != cols[i] {
			return false
		}
	}
	return true
}

// ExplainPlan is the parsed root Plan node of an EXPLAIN (FORMAT JSON)
// result, plus the subset of fields the core reads.
type ExplainPlan struct {
	TotalCost  float64
	UsedIndexes []string // every "Index Name" found while walking the plan tree
	Raw        map[string]any
}

// NewIndexes returns the subset of UsedIndexes whose name carries the
// __qd_ reservation prefix — indexes the Evaluator itself created
// during this probe.
func (p ExplainPlan) NewIndexes() []string {
	var out []string
	for _, n := range p.UsedIndexes {
		if isQDName(n) {
			out = append(out, n)
		}
	}
	return out
}

// PreExistingIndexes returns the subset of UsedIndexes that do not
// carry the __qd_ reservation prefix.
func (p ExplainPlan) PreExistingIndexes() []string {
	var out []string
	for _, n := range p.UsedIndexes {
		if !isQDName(n) {
			out = append(out, n)
		}
	}
	return out
}

const qdPrefix = "__qd_"

func isQDName(name string) bool {
	return len(name) >= len(qdPrefix) && name[:len(qdPrefix)] == qdPrefix
}

// IntrospectionMarker is appended to every SQL statement the system
// issues against the target database, so consumers reading the
// target's query log can exclude it from recursive analysis.
const IntrospectionMarker = "-- @qd_introspection"
