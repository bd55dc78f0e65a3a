// Package operatingstatus classifies each detector's recent reporting
// health into one of five categories, the long-interval counterpart to the
// per-tick quality score already attached to every corrected reading.
package operatingstatus

import (
	"context"
	"fmt"
	"time"

	"github.com/DLR-TS/sumoldl/internal/store"
)

// Health categories, ordered from fully reliable to effectively dead.
const (
	CategoryI   = "I"   // reports consistently at the highest quality band
	CategoryII  = "II"  // reports consistently but dips below the top band
	CategoryIII = "III" // reports most of the time, often at reduced quality
	CategoryIV  = "IV"  // reports but rarely at an acceptable quality
	CategoryV   = "V"   // reports too rarely to trust at all
)

// Evaluate derives one detector's category, averaged quality, and entry
// count from its corrected-value history over [start, end), where
// updateInterval is the cadence that history was written at. A detector
// reporting fewer than half the expected entries is graded CategoryV
// outright; otherwise the category is set by how much of the expected
// volume cleared the 98 and 70 quality thresholds.
func Evaluate(history []store.DetectorValue, start, end time.Time, updateInterval time.Duration) (category string, quality float64, entries int) {
	totalEntries := end.Sub(start).Seconds() / updateInterval.Seconds()
	if totalEntries <= 0 {
		return CategoryV, 0, 0
	}

	var numQ70, numQ98, numEntries int
	var qualitySum float64
	for _, row := range history {
		if row.Quality >= 98 {
			numQ98++
		}
		if row.Quality >= 70 {
			numQ70++
		}
		if row.QPKW.Valid || row.QLKW.Valid {
			numEntries++
		}
		qualitySum += row.Quality
	}

	quality = qualitySum / totalEntries
	entries = numEntries

	switch {
	case float64(numEntries) < totalEntries/2:
		category = CategoryV
	case float64(numQ98) >= totalEntries*0.95:
		category = CategoryI
	case float64(numQ70) >= totalEntries*0.95:
		category = CategoryII
	case float64(numQ70) >= totalEntries*0.75:
		category = CategoryIII
	default:
		category = CategoryIV
	}
	return category, quality, entries
}

// Run evaluates every detector in dets over [start, end) and persists one
// row per detector plus the induction-loop-group rollup through s.
// Every row is filed under end.
func Run(ctx context.Context, s *store.Store, dets []store.Detector, start, end time.Time, updateInterval time.Duration) error {
	rows := make([]store.OperatingStatus, 0, len(dets))
	groupOf := make(map[string]string, len(dets))

	for _, d := range dets {
		history, err := s.DetectorHistory(ctx, d.DetectorID, start, end)
		if err != nil {
			return fmt.Errorf("operating status history for %s: %w", d.DetectorID, err)
		}
		category, quality, entries := Evaluate(history, start, end, updateInterval)
		rows = append(rows, store.OperatingStatus{
			DetectorID:  d.DetectorID,
			IntervalEnd: end,
			Category:    category,
			Quality:     quality,
			Entries:     entries,
		})
		if d.InductionLoopGroupID != "" {
			groupOf[d.DetectorID] = d.InductionLoopGroupID
		}
	}

	return s.UpsertOperatingStatus(ctx, end, rows, groupOf)
}
