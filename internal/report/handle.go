package report

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/qdadvisor/advisor/internal/model"
)

// EncodeHandle returns a stable, opaque base64 reference to one tried
// candidate, of the form "schema.table|c1,c2" — so an HTTP client can
// correlate a liveprogress.CandidateTried event against its row in the
// eventual Report without re-serializing the whole candidate.
// Adapted from internal/common/handles.go's
// EncodeHandle(schema, table, pkCols, pkVals), repurposed from
// "identify one row by its primary key" to "identify one tried
// candidate by its column sequence."
func EncodeHandle(schema, table string, columns []string) string {
	raw := fmt.Sprintf("%s.%s|%s", schema, table, strings.Join(columns, ","))
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeHandle parses a handle produced by EncodeHandle.
func DecodeHandle(h string) (schema, table string, columns []string, err error) {
	b, err := base64.RawURLEncoding.DecodeString(h)
	if err != nil {
		return "", "", nil, fmt.Errorf("report: invalid handle: %w", err)
	}
	parts := strings.SplitN(string(b), "|", 2)
	if len(parts) != 2 {
		return "", "", nil, fmt.Errorf("report: malformed handle")
	}
	st := strings.SplitN(parts[0], ".", 2)
	if len(st) != 2 {
		return "", "", nil, fmt.Errorf("report: malformed table path")
	}
	schema, table = st[0], st[1]
	if parts[1] != "" {
		columns = strings.Split(parts[1], ",")
	}
	return schema, table, columns, nil
}

// HandleFor returns the handle for a permuted candidate.
func HandleFor(c model.PermutedIndexCandidate) string {
	return EncodeHandle(c.Schema, c.Table, c.Columns)
}
