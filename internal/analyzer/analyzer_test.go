package analyzer

import (
	"testing"

	"github.com/qdadvisor/advisor/internal/advisorerr"
	"github.com/qdadvisor/advisor/internal/model"
)

func findCandidate(t *testing.T, refs []model.ColumnReference, column string) model.ColumnReference {
	t.Helper()
	for _, r := range refs {
		if r.Column == column {
			return r
		}
	}
	t.Fatalf("no reference found for column %q among %d refs", column, len(refs))
	return model.ColumnReference{}
}

// Scenario 1 (single-column seed): a projection of a quoted identifier
// plus a qualified WHERE predicate.
func TestAnalyze_SingleColumnSeed(t *testing.T) {
	res, err := Analyze(`select "hi" from employees where employees."managerId" = 1`)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	hi := findCandidate(t, res.Candidates, "hi")
	if !hi.Ignored {
		t.Fatalf("projection reference %q should be ignored", hi.Rendered())
	}
	mgr := findCandidate(t, res.Candidates, "managerId")
	if mgr.Ignored {
		t.Fatalf("WHERE-clause reference should not be ignored")
	}
	if mgr.ResolvedTable != "employees" {
		t.Fatalf("ResolvedTable = %q, want employees", mgr.ResolvedTable)
	}
	if !mgr.Parts[len(mgr.Parts)-1].Quoted {
		t.Fatalf("managerId segment should be recorded as quoted")
	}
}

// Scenario 2 (projection ignored): the same column appears once in the
// projection list (ignored) and once in ORDER BY (candidate).
func TestAnalyze_ProjectionIgnoredOrderByCandidate(t *testing.T) {
	res, err := Analyze(`select name from employees order by name limit 10`)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	var ignoredCount, candidateCount int
	for _, r := range res.Candidates {
		if r.Column != "name" {
			continue
		}
		if r.Ignored {
			ignoredCount++
		} else {
			candidateCount++
		}
	}
	if ignoredCount != 1 {
		t.Fatalf("expected exactly one ignored `name` reference (projection), got %d", ignoredCount)
	}
	if candidateCount != 1 {
		t.Fatalf("expected exactly one candidate `name` reference (order by), got %d", candidateCount)
	}
}

// Scenario 3 (function-call argument ignored): lower(name) must not
// produce a usable candidate.
func TestAnalyze_FuncCallArgumentIgnored(t *testing.T) {
	res, err := Analyze(`select * from employees where lower(name) = 'x'`)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	name := findCandidate(t, res.Candidates, "name")
	if !name.Ignored {
		t.Fatalf("function-call argument reference should be ignored")
	}
}

// Scenario 4 (alias resolved): references via an alias resolve to the
// underlying relation, not the alias text (P6).
func TestAnalyze_AliasResolved(t *testing.T) {
	res, err := Analyze(`select * from employees e where e."managerId" = 1`)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	mgr := findCandidate(t, res.Candidates, "managerId")
	if mgr.ResolvedTable != "employees" {
		t.Fatalf("alias `e` should resolve to employees, got %q", mgr.ResolvedTable)
	}
}

// P6: alias resolution is independent of whether the base relation name
// also appears unaliased elsewhere in the statement.
func TestAnalyze_AliasResolutionSoundness(t *testing.T) {
	res, err := Analyze(`select * from employees emp join departments d on emp.department_id = d.id where emp.name = 'x'`)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	for _, r := range res.Candidates {
		if r.Column == "name" && r.ResolvedTable != "employees" {
			t.Fatalf("emp.name should resolve to employees, got %q", r.ResolvedTable)
		}
		if r.Column == "id" && len(r.Parts) > 1 && r.Parts[0].Text == "d" && r.ResolvedTable != "departments" {
			t.Fatalf("d.id should resolve to departments, got %q", r.ResolvedTable)
		}
	}
}

// P7: case folding — a quoted identifier is distinct from its unquoted
// lowercase form, but two unquoted forms differing only in case match.
func TestAnalyze_CaseFolding(t *testing.T) {
	res, err := Analyze(`select * from employees where employees."Foo" = 1 and employees.Foo = 2`)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	var sawQuotedFoo, sawFoldedFoo bool
	for _, r := range res.Candidates {
		last := r.Parts[len(r.Parts)-1]
		if last.Quoted && last.Text == "Foo" {
			sawQuotedFoo = true
			if last.Folded() != "Foo" {
				t.Fatalf("quoted Foo must preserve case, got %q", last.Folded())
			}
		}
		if !last.Quoted && last.Text == "Foo" {
			sawFoldedFoo = true
			if last.Folded() != "foo" {
				t.Fatalf("unquoted Foo must fold to lowercase, got %q", last.Folded())
			}
		}
	}
	if !sawQuotedFoo || !sawFoldedFoo {
		t.Fatalf("expected both a quoted and an unquoted Foo reference")
	}
}

// CTE-qualified references are recorded but flagged to skip, never
// emitted as indexable candidates.
func TestAnalyze_TransientCTESkipped(t *testing.T) {
	res, err := Analyze(`with recent as (select * from employees) select recent.name from recent`)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	for _, r := range res.Candidates {
		if len(r.Parts) > 0 && r.Parts[0].Text == "recent" {
			if !r.SkipCTE {
				t.Fatalf("reference qualified by CTE name `recent` should be flagged SkipCTE")
			}
		}
	}
}

// JoinExpr.quals binary-expression operands are collected as
// candidates even though they appear outside WHERE/targetList.
func TestAnalyze_JoinQualsCollected(t *testing.T) {
	res, err := Analyze(`select * from orders o join customers c on o.customer_id = c.id`)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	foundCustomerID := false
	foundID := false
	for _, r := range res.Candidates {
		switch r.Column {
		case "customer_id":
			foundCustomerID = true
			if r.Ignored {
				t.Fatalf("join qual operand should not be ignored")
			}
		case "id":
			foundID = true
		}
	}
	if !foundCustomerID || !foundID {
		t.Fatalf("expected both join qual operands as candidates, got customer_id=%v id=%v", foundCustomerID, foundID)
	}
}

func TestAnalyze_ParseFailureReturnsClassifiedError(t *testing.T) {
	_, err := Analyze(`select from where`)
	if err == nil {
		t.Fatalf("expected a parse error")
	}
	if !advisorerr.Is(err, advisorerr.KindParseFailure) {
		t.Fatalf("expected a %s error, got %v", advisorerr.KindParseFailure, err)
	}
}
