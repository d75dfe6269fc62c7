// Package statstore dumps catalog row/page counts and per-column
// pg_statistic slots from a source database and applies them to a
// target database's pg_class/pg_statistic, so the target planner sees
// the source's cardinalities without copying any actual rows.
//
// Grounded on internal/catalog/stats.go's pg_statistic read shape
// (same slot numbering, same array-scan adaptation) for the dump side,
// and on pkg/richcatalog's checksum-stamped snapshot style for the
// versioned export document.
package statstore

// Mode controls whether a dump includes the per-slot value arrays
// (stavaluesN), which hold literal data such as most-common values and
// histogram bounds.
type Mode int

const (
	// ModeAnonymous omits stavaluesN arrays from the export, so the
	// document carries no literal data from the source database.
	ModeAnonymous Mode = iota
	// ModeFull includes stavaluesN arrays verbatim.
	ModeFull
)

func (m Mode) String() string {
	if m == ModeFull {
		return "full"
	}
	return "anonymous"
}

// Source records how a run's statistics were obtained, surfaced in
// reports so a reader understands the basis for a recommendation.
type Source int

const (
	FromStatisticsExport Source = iota
	FromAssumption
)

func (s Source) String() string {
	if s == FromAssumption {
		return "assumption"
	}
	return "statistics-export"
}

// schemaVersion tags the export document shape; Dump writes it into
// every document's Version field. This package has no decoder that
// branches on it.
const schemaVersion = "ExportedStatsV1"

// ExportedStatsV1 is the versioned, on-disk statistics export
// document described by the StatisticsStore's dump contract.
type ExportedStatsV1 struct {
	Version string           `json:"version"`
	Mode    string           `json:"mode"`
	Tables  []ExportedTable  `json:"tables"`
}

// ExportedTable is one dumped table: its catalog-level counts and its
// columns' declared shape plus statistics.
type ExportedTable struct {
	Schema        string           `json:"schema"`
	Table         string           `json:"table"`
	RelTuples     float64          `json:"relTuples"`
	RelPages      int64            `json:"relPages"`
	RelAllVisible int64            `json:"relAllVisible"`
	Columns       []ExportedColumn `json:"columns"`
}

// ExportedColumn is one dumped column: its declared shape plus an
// optional stats record mirroring its pg_statistic row.
type ExportedColumn struct {
	Name     string         `json:"name"`
	Type     string         `json:"type"`
	Nullable bool           `json:"nullable"`
	Stats    *ExportedStats `json:"stats,omitempty"`
}

// ExportedStats mirrors a pg_statistic row's scalar fields plus its
// five parallel slots.
type ExportedStats struct {
	Inherited bool          `json:"inherited"`
	NullFrac  float64       `json:"nullFrac"`
	Width     int           `json:"width"`
	Distinct  float64       `json:"distinct"`
	Slots     [5]ExportedSlot `json:"slots"`
}

// ExportedSlot is one of the five statistic slots. Values is omitted
// entirely (not just left empty) in an anonymous-mode export.
type ExportedSlot struct {
	Kind    int       `json:"kind"`
	Op      uint32    `json:"op,omitempty"`
	Coll    uint32    `json:"coll,omitempty"`
	Numbers []float64 `json:"numbers,omitempty"`
	Values  []string  `json:"values,omitempty"`
}

// supportedKinds documents which slot kinds are reliable to preserve
// across environments. Kinds outside this set are written back as
// zero on restore, per the component's fallback policy — preserving
// an uninterpreted kind risks misleading the planner more than
// omitting it.
var supportedKinds = map[int]bool{
	1: true, // most-common-values
	2: true, // scalar histogram
	3: true, // correlation
	4: true, // most-common-elements
	5: true, // distinct-element-count histogram
}

// SupportedKind reports whether kind is in the restore whitelist.
func SupportedKind(kind int) bool {
	return supportedKinds[kind]
}

// Assumption is the fallback row/page count applied to every table
// when no export is supplied.
type Assumption struct {
	RelTuples float64
	RelPages  int64
}

// DefaultAssumption is the StatisticsStore's documented fallback: a
// caller with no real source data still gets deterministic, clearly
// synthetic cardinalities rather than whatever the target's own
// (likely tiny, freshly-seeded) pg_class counts say.
var DefaultAssumption = Assumption{RelTuples: 10_000_000, RelPages: 1_000}
