// Package checkdata runs an offline consistency pass over stored detector
// values, verifying that every row's fixed flag agrees with its provenance
// and null/non-null attributes. It is the Go counterpart to the original
// pipeline's checkData.py script, triggered by the process entrypoint's
// -clean flag rather than run as a separate tool.
package checkdata

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/DLR-TS/sumoldl/internal/store"
)

// Issue describes one row that failed a consistency check.
type Issue struct {
	DetectorID  string
	IntervalEnd time.Time
	Reason      string
}

// Report collects every issue found during a Run.
type Report struct {
	Checked int
	Issues  []Issue
}

// HasIssues reports whether the check found any inconsistent rows.
func (r *Report) HasIssues() bool { return len(r.Issues) > 0 }

// String renders a human-readable summary, one line per issue followed by a
// totals line.
func (r *Report) String() string {
	var b strings.Builder
	for _, i := range r.Issues {
		fmt.Fprintf(&b, "%s %s: %s\n", i.DetectorID, i.IntervalEnd.Format(time.RFC3339), i.Reason)
	}
	fmt.Fprintf(&b, "checked %d rows, %d issues\n", r.Checked, len(r.Issues))
	return b.String()
}

// Run scans every detector's stored values up to now and flags rows
// whose fixed flag disagrees with their provenance/value invariants:
// a row fixed by the correction pipeline must carry a non-real provenance,
// and a row still holding its original provenance must not be marked fixed.
func Run(ctx context.Context, s *store.Store) (*Report, error) {
	now := time.Now().UTC()

	dets, err := s.ListAllDetectors(ctx)
	if err != nil {
		return nil, fmt.Errorf("list detectors: %w", err)
	}

	report := &Report{}
	for _, d := range dets {
		values, err := s.DetectorHistory(ctx, d.DetectorID, time.Unix(0, 0).UTC(), now)
		if err != nil {
			return nil, fmt.Errorf("history for %s: %w", d.DetectorID, err)
		}
		for _, v := range values {
			report.Checked++
			if issue, bad := checkRow(v); bad {
				issue.DetectorID = v.DetectorID
				issue.IntervalEnd = v.IntervalEnd
				report.Issues = append(report.Issues, issue)
			}
		}
	}
	return report, nil
}

func checkRow(v store.DetectorValue) (Issue, bool) {
	isReal := v.Provenance == "real" || v.Provenance == ""
	if v.Fixed && isReal {
		return Issue{Reason: "marked fixed but provenance is real"}, true
	}
	if !v.Fixed && !isReal {
		return Issue{Reason: fmt.Sprintf("provenance %q but not marked fixed", v.Provenance)}, true
	}
	if !v.QPKW.Valid && !v.QLKW.Valid && !v.VPKW.Valid && !v.VLKW.Valid && v.Provenance != "NO_ORIG" {
		return Issue{Reason: "no flow or speed attribute but provenance is not NO_ORIG"}, true
	}
	return Issue{}, false
}
