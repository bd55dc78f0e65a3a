// Package schema indirects the small set of table and column names the
// pipeline writes to, mirroring the teacher's pattern of a thin struct that
// a deployment can override rather than every query hardcoding identifiers.
package schema

import "fmt"

// Schema names the tables the pipeline stores detector, edge, fusion, and
// extrapolation data under. One physical database holds one schema; the
// region a process runs under only shadows config.Config options (see
// internal/config's "option.<region>" rule), it does not partition tables,
// so every deployment migrates and queries the same table names.
type Schema struct {
	Detectors          string
	DetectorValues     string
	EdgeValues         string
	FusedValues        string
	Extrapolated       string
	SimRuns            string
	OperatingStatus    string
	OperatingStatusAgg string
	RawSourceValues    string
	VisualValues       string
}

// Default returns the fixed table-name schema matching the embedded
// migrations in internal/store/migrations. region is accepted so callers can
// pass the same value they pass to config.Load without special-casing it,
// but it has no effect here.
func Default(region string) Schema {
	return Schema{
		Detectors:          "detectors",
		DetectorValues:     "detector_values",
		EdgeValues:         "edge_values",
		FusedValues:        "fused_values",
		Extrapolated:       "extrapolated_values",
		SimRuns:            "sim_runs",
		OperatingStatus:    "operating_status",
		OperatingStatusAgg: "operating_status_group",
		RawSourceValues:    "raw_source_values",
		VisualValues:       "visual_values",
	}
}

// Quote returns table as a safely quoted SQLite identifier. Table names in
// this package are only ever built from the fixed literals above, never from
// unsanitized user input, but every dynamic-identifier query still goes
// through this helper rather than inlining fmt.Sprintf at the call site.
func Quote(table string) string {
	return fmt.Sprintf("%q", table)
}
