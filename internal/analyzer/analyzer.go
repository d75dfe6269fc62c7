// Package analyzer parses a SQL statement and extracts the column
// references a candidate generator can act on: it resolves table
// aliases, tags references that occur where a plain index cannot help
// (projection targets, function-call arguments, transient CTE names),
// and computes exact byte offsets for each dotted identifier part.
//
// Grounded on pkg/pg_lineage/rewrite_pks.go's typed pg_query_go
// traversal (accessor-based type switches, not the JSON-map walk in
// pkg/pg_lineage/resolver.go) and on resolver.go's alias-scope-building
// shape, generalized here from PK-injection into reference tagging.
package analyzer

import (
	"fmt"
	"sort"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"

	"github.com/qdadvisor/advisor/internal/advisorerr"
	"github.com/qdadvisor/advisor/internal/model"
)

// Result is the Analyzer's output for one statement.
type Result struct {
	ReferencedTables []model.TableReference
	Candidates       []model.ColumnReference // Ignored and SkipCTE entries are included; filter at the call site
	HighlightedText  string
}

// relScope holds one FROM-clause entry's alias → (schema, table)
// mapping, mirroring rewrite_pks.go's collectAliasesAndRecurse.
type relScope struct {
	schema     string
	table      string
	isExplicit bool
	derived    bool // true for a RangeSubselect: has no base table to resolve to
}

// state accumulates traversal results while walking one statement's
// AST.
type state struct {
	src        string
	ctes       map[string]bool     // transient CTE names, as parsed (lowercased for matching)
	aliases    map[string]relScope // visible alias/relname -> resolution
	tables     []model.TableReference
	rawRefs    []rawRef
	path       []string // alternating field-name/node-kind tokens, per the component's path-stack design
}

type rawRef struct {
	fields  []string
	location int32
	ignored bool
}

// Analyze parses sql and extracts its candidate column references. A
// parse failure is returned as an *advisorerr.Error of
// KindParseFailure; the caller is expected to skip the statement and
// continue the run, per the error-handling policy table.
func Analyze(sql string) (*Result, error) {
	tree, err := pg_query.Parse(sql)
	if err != nil {
		return nil, advisorerr.New(advisorerr.KindParseFailure, fmt.Errorf("parse: %w", err))
	}
	if len(tree.GetStmts()) == 0 {
		return &Result{HighlightedText: sql}, nil
	}
	sel := tree.GetStmts()[0].GetStmt().GetSelectStmt()
	if sel == nil {
		// Non-SELECT statements (utility commands, DDL, etc.) carry no
		// indexable column references; not an error.
		return &Result{HighlightedText: sql}, nil
	}

	st := &state{
		src:     sql,
		ctes:    map[string]bool{},
		aliases: map[string]relScope{},
	}
	st.visitSelect(sel)

	refs, err := st.finalize()
	if err != nil {
		return nil, err
	}
	return &Result{
		ReferencedTables: st.tables,
		Candidates:       refs,
		HighlightedText:  highlight(sql, refs),
	}, nil
}

// --- Traversal ---

func (st *state) push(tokens ...string) { st.path = append(st.path, tokens...) }
func (st *state) pop(n int)             { st.path = st.path[:len(st.path)-n] }

// containsConsecutive reports whether seq appears as a contiguous
// subsequence anywhere in st.path.
func containsConsecutive(path []string, seq []string) bool {
	if len(seq) > len(path) {
		return false
	}
	for i := 0; i+len(seq) <= len(path); i++ {
		match := true
		for j, s := range seq {
			if path[i+j] != s {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func (st *state) visitSelect(sel *pg_query.SelectStmt) {
	if sel == nil {
		return
	}

	// WITH clause: record transient CTE names, recurse into each
	// member query.
	if wc := sel.GetWithClause(); wc != nil {
		for _, n := range wc.GetCtes() {
			if cte := n.GetCommonTableExpr(); cte != nil {
				if name := cte.GetCtename(); name != "" {
					st.ctes[lowerFold(name)] = true
				}
				if sub := cte.GetCtequery(); sub != nil {
					st.push("WithClause", "ctes", "CommonTableExpr", "ctequery")
					st.visitSelect(sub.GetSelectStmt())
					st.pop(4)
				}
			}
		}
	}

	// FROM clause: build alias scope, recurse into joins/subselects.
	st.push("fromClause")
	for _, n := range sel.GetFromClause() {
		st.visitFromItem(n)
	}
	st.pop(1)

	// Target list (projection): every ColumnRef here is ignored.
	st.push("targetList")
	for _, n := range sel.GetTargetList() {
		if rt := n.GetResTarget(); rt != nil {
			st.push("ResTarget", "val")
			st.visitExpr(rt.GetVal())
			st.pop(2)
		}
	}
	st.pop(1)

	if wh := sel.GetWhereClause(); wh != nil {
		st.push("whereClause")
		st.visitExpr(wh)
		st.pop(1)
	}
	if hv := sel.GetHavingClause(); hv != nil {
		st.push("havingClause")
		st.visitExpr(hv)
		st.pop(1)
	}
	if len(sel.GetGroupClause()) > 0 {
		st.push("groupClause")
		for _, n := range sel.GetGroupClause() {
			st.visitExpr(n)
		}
		st.pop(1)
	}
	if len(sel.GetSortClause()) > 0 {
		st.push("sortClause")
		for _, n := range sel.GetSortClause() {
			if sb := n.GetSortBy(); sb != nil && sb.GetNode() != nil {
				st.visitExpr(sb.GetNode())
			}
		}
		st.pop(1)
	}
}

func (st *state) visitFromItem(n *pg_query.Node) {
	switch {
	case n.GetRangeVar() != nil:
		rv := n.GetRangeVar()
		schema := rv.GetSchemaname()
		if schema == "" {
			schema = "public"
		}
		table := rv.GetRelname()
		alias := table
		explicit := false
		if a := rv.GetAlias(); a != nil && a.GetAliasname() != "" {
			alias = a.GetAliasname()
			explicit = true
		}
		sc := relScope{schema: schema, table: table, isExplicit: explicit}
		st.aliases[lowerFold(alias)] = sc
		ref := model.TableReference{Schema: schema, Table: table}
		if explicit {
			ref.Alias = alias
		}
		st.tables = append(st.tables, ref)

	case n.GetJoinExpr() != nil:
		je := n.GetJoinExpr()
		if je.GetLarg() != nil {
			st.visitFromItem(je.GetLarg())
		}
		if je.GetRarg() != nil {
			st.visitFromItem(je.GetRarg())
		}
		if je.GetQuals() != nil {
			st.push("JoinExpr", "quals")
			st.visitExpr(je.GetQuals())
			st.pop(2)
		}

	case n.GetRangeSubselect() != nil:
		rs := n.GetRangeSubselect()
		alias := "subselect"
		if a := rs.GetAlias(); a != nil && a.GetAliasname() != "" {
			alias = a.GetAliasname()
		}
		st.aliases[lowerFold(alias)] = relScope{derived: true, isExplicit: true}
		if sub := rs.GetSubquery(); sub != nil {
			st.visitSelect(sub.GetSelectStmt())
		}

	default:
		// CROSS JOIN LATERAL function calls and other from-item kinds
		// carry no base relation to resolve against; left unhandled.
	}
}

// visitExpr walks an expression subtree, collecting ColumnRefs and
// recursing into SubLinks (correlated/uncorrelated subqueries).
func (st *state) visitExpr(n *pg_query.Node) {
	if n == nil {
		return
	}
	switch {
	case n.GetColumnRef() != nil:
		cr := n.GetColumnRef()
		ignored := containsConsecutive(st.path, []string{"targetList", "ResTarget", "val"}) ||
			containsConsecutive(st.path, []string{"FuncCall", "args"})
		var fields []string
		for _, f := range cr.GetFields() {
			if s := f.GetString_(); s != nil {
				fields = append(fields, s.GetSval())
			}
			// A_Star ("*") fields carry no dotted identifier text and
			// are not indexable; skipped.
		}
		if len(fields) == 0 {
			return
		}
		st.rawRefs = append(st.rawRefs, rawRef{
			fields:   fields,
			location: cr.GetLocation(),
			ignored:  ignored,
		})

	case n.GetSubLink() != nil:
		if sub := n.GetSubLink().GetSubselect(); sub != nil {
			st.visitSelect(sub.GetSelectStmt())
		}

	case n.GetAExpr() != nil:
		ae := n.GetAExpr()
		st.visitExpr(ae.GetLexpr())
		st.visitExpr(ae.GetRexpr())

	case n.GetBoolExpr() != nil:
		for _, a := range n.GetBoolExpr().GetArgs() {
			st.visitExpr(a)
		}

	case n.GetFuncCall() != nil:
		fc := n.GetFuncCall()
		st.push("FuncCall", "args")
		for _, a := range fc.GetArgs() {
			st.visitExpr(a)
		}
		st.pop(2)

	case n.GetCaseExpr() != nil:
		ce := n.GetCaseExpr()
		for _, w := range ce.GetArgs() {
			if cw := w.GetCaseWhen(); cw != nil {
				st.visitExpr(cw.GetExpr())
				st.visitExpr(cw.GetResult())
			}
		}
		st.visitExpr(ce.GetDefresult())

	case n.GetCoalesceExpr() != nil:
		for _, a := range n.GetCoalesceExpr().GetArgs() {
			st.visitExpr(a)
		}

	case n.GetNullIfExpr() != nil:
		for _, a := range n.GetNullIfExpr().GetArgs() {
			st.visitExpr(a)
		}

	case n.GetMinMaxExpr() != nil:
		for _, a := range n.GetMinMaxExpr().GetArgs() {
			st.visitExpr(a)
		}

	case n.GetTypeCast() != nil:
		st.visitExpr(n.GetTypeCast().GetArg())

	default:
		// Constants, parameters, and other leaf/unhandled node kinds
		// carry no column reference.
	}
}

// --- Finalization: offsets, dedup, frequency, alias resolution ---

func (st *state) finalize() ([]model.ColumnReference, error) {
	seenOffsets := map[int32]bool{}
	var refs []model.ColumnReference

	for _, raw := range st.rawRefs {
		if seenOffsets[raw.location] {
			continue
		}
		seenOffsets[raw.location] = true

		if raw.location < 0 {
			// MissingLocation: skip just this reference, continue.
			continue
		}

		parts, end := computeOffsets(st.src, int(raw.location), raw.fields)
		ref := model.ColumnReference{
			Parts:   parts,
			Start:   int(raw.location),
			End:     end,
			Ignored: raw.ignored,
		}
		st.resolve(&ref)
		refs = append(refs, ref)
	}

	// Frequency: count of occurrences of the same rendered text.
	counts := map[string]int{}
	for _, r := range refs {
		counts[r.Rendered()]++
	}
	for i := range refs {
		refs[i].Frequency = counts[refs[i].Rendered()]
	}

	return refs, nil
}

// computeOffsets scans forward from loc in src, assigning each dotted
// part its quoted flag and byte offset, per the component's byte-offset
// algorithm: add the segment's length, +1 for each separating dot, +2
// for each enclosing quote pair.
func computeOffsets(src string, loc int, fields []string) ([]model.IdentPart, int) {
	cursor := loc
	parts := make([]model.IdentPart, len(fields))
	for i, f := range fields {
		quoted := cursor < len(src) && src[cursor] == '"'
		if quoted {
			cursor++ // opening quote
		}
		partStart := cursor
		cursor += len(f)
		if quoted && cursor < len(src) && src[cursor] == '"' {
			cursor++ // closing quote
		}
		// The parser hands back unquoted names already lowercased; keep the
		// source spelling so folding happens only through Folded().
		text := f
		if !quoted && partStart+len(f) <= len(src) && strings.EqualFold(src[partStart:partStart+len(f)], f) {
			text = src[partStart : partStart+len(f)]
		}
		parts[i] = model.IdentPart{Text: text, Quoted: quoted, Offset: partStart}
		if i < len(fields)-1 && cursor < len(src) && src[cursor] == '.' {
			cursor++ // separating dot
		}
	}
	return parts, cursor
}

// resolve applies step 5 of the algorithm: replace the leading dotted
// part with its resolved alias mapping, if any; flag transient-CTE
// references to skip.
func (st *state) resolve(ref *model.ColumnReference) {
	if len(ref.Parts) == 0 {
		return
	}
	last := ref.Parts[len(ref.Parts)-1]
	ref.Column = last.Folded()

	if len(ref.Parts) == 1 {
		// Unqualified reference: resolvable only when the statement has
		// exactly one base (non-derived) table in scope, mirroring
		// rewrite_pks.go's single-base-table unqualified handling.
		if sc, ok := soleBaseTable(st.aliases); ok {
			ref.ResolvedSchema = sc.schema
			ref.ResolvedTable = sc.table
		}
		return
	}

	leading := ref.Parts[0].Folded()
	if st.ctes[leading] {
		ref.SkipCTE = true
		return
	}
	if sc, ok := st.aliases[leading]; ok && !sc.derived {
		ref.ResolvedSchema = sc.schema
		ref.ResolvedTable = sc.table
		return
	}
	if sc, ok := st.aliases[leading]; ok && sc.derived {
		ref.SkipCTE = true // derived (subselect) scopes have no base relation either
		return
	}
	// Unknown leading identifier: used unmapped, per the tie-break policy,
	// case-folded the same way catalog names are matched.
	ref.ResolvedTable = ref.Parts[0].Folded()
}

func soleBaseTable(aliases map[string]relScope) (relScope, bool) {
	var found relScope
	count := 0
	for _, sc := range aliases {
		if sc.derived {
			continue
		}
		found = sc
		count++
	}
	if count == 1 {
		return found, true
	}
	return relScope{}, false
}

func lowerFold(s string) string { return strings.ToLower(s) }

// highlight renders sql with every non-ignored, resolvable candidate
// reference's source span bracketed, for CI/terminal display.
func highlight(sql string, refs []model.ColumnReference) string {
	type span struct{ start, end int }
	var spans []span
	for _, r := range refs {
		if r.Ignored || r.SkipCTE {
			continue
		}
		spans = append(spans, span{r.Start, r.End})
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	var b strings.Builder
	cursor := 0
	for _, s := range spans {
		if s.start < cursor || s.end > len(sql) {
			continue // overlapping/out-of-range span, skip defensively
		}
		b.WriteString(sql[cursor:s.start])
		b.WriteString("»")
		b.WriteString(sql[s.start:s.end])
		b.WriteString("«")
		cursor = s.end
	}
	b.WriteString(sql[cursor:])
	return b.String()
}
