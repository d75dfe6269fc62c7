package analyzer

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

type analyzeCase struct {
	ID                       string   `json:"id"`
	Query                    string   `json:"query"`
	ExpectedCandidateColumns []string `json:"expected_candidate_columns"`
}

func loadAnalyzeCases(t *testing.T) []analyzeCase {
	t.Helper()
	path := filepath.Join("testdata", "analyze_cases.json")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read testdata: %v", err)
	}
	var cases []analyzeCase
	if err := json.Unmarshal(data, &cases); err != nil {
		t.Fatalf("failed to unmarshal testdata: %v", err)
	}
	return cases
}

func TestAnalyzeFixtures(t *testing.T) {
	for _, c := range loadAnalyzeCases(t) {
		t.Run(c.ID, func(t *testing.T) {
			res, err := Analyze(c.Query)
			if err != nil {
				t.Fatalf("Analyze(%q): %v", c.Query, err)
			}
			var gotCols []string
			for _, r := range res.Candidates {
				if !r.Ignored && !r.SkipCTE {
					gotCols = append(gotCols, r.Column)
				}
			}
			if len(gotCols) != len(c.ExpectedCandidateColumns) {
				t.Fatalf("got %v candidate columns, want %v", gotCols, c.ExpectedCandidateColumns)
			}
			counts := map[string]int{}
			for _, c := range gotCols {
				counts[c]++
			}
			want := map[string]int{}
			for _, c := range c.ExpectedCandidateColumns {
				want[c]++
			}
			for k, n := range want {
				if counts[k] != n {
					t.Fatalf("column %q appeared %d times, want %d (got set %v)", k, counts[k], n, gotCols)
				}
			}
		})
	}
}
