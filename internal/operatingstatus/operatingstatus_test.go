package operatingstatus

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/DLR-TS/sumoldl/internal/schema"
	"github.com/DLR-TS/sumoldl/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := store.Open(path, schema.Default(""))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func v(quality float64, hasFlow bool) store.DetectorValue {
	dv := store.DetectorValue{Quality: quality}
	if hasFlow {
		dv.QPKW = sql.NullFloat64{Float64: 10, Valid: true}
	}
	return dv
}

func TestEvaluateCategoryI(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	end := start.Add(10 * time.Minute)
	updateInterval := time.Minute

	history := make([]store.DetectorValue, 10)
	for i := range history {
		history[i] = v(99, true)
	}

	category, quality, entries := Evaluate(history, start, end, updateInterval)
	if category != CategoryI {
		t.Errorf("category = %v, want I", category)
	}
	if quality != 99 {
		t.Errorf("quality = %v, want 99", quality)
	}
	if entries != 10 {
		t.Errorf("entries = %v, want 10", entries)
	}
}

func TestEvaluateCategoryVOnSparseReporting(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	end := start.Add(10 * time.Minute)
	updateInterval := time.Minute

	history := make([]store.DetectorValue, 3)
	for i := range history {
		history[i] = v(99, true)
	}

	category, _, entries := Evaluate(history, start, end, updateInterval)
	if category != CategoryV {
		t.Errorf("category = %v, want V", category)
	}
	if entries != 3 {
		t.Errorf("entries = %v, want 3", entries)
	}
}

func TestEvaluateCategoryIIIOnMixedQuality(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	end := start.Add(10 * time.Minute)
	updateInterval := time.Minute

	history := make([]store.DetectorValue, 10)
	for i := range history {
		if i < 8 {
			history[i] = v(75, true)
		} else {
			history[i] = v(40, true)
		}
	}

	category, _, _ := Evaluate(history, start, end, updateInterval)
	if category != CategoryIII {
		t.Errorf("category = %v, want III", category)
	}
}

func TestRunPersistsPerDetectorAndGroupRows(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	dets := []store.Detector{
		{DetectorID: "d1", EdgeID: "e1", InductionLoopGroupID: "g1"},
		{DetectorID: "d2", EdgeID: "e1", InductionLoopGroupID: "g1"},
	}
	if err := s.UpsertDetectors(ctx, dets); err != nil {
		t.Fatalf("seed detectors: %v", err)
	}

	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	end := start.Add(5 * time.Minute)
	updateInterval := time.Minute

	values := []store.DetectorValue{
		{DetectorID: "d1", IntervalEnd: start.Add(time.Minute), Quality: 99, QPKW: sql.NullFloat64{Float64: 10, Valid: true}},
		{DetectorID: "d2", IntervalEnd: start.Add(time.Minute), Quality: 40, QPKW: sql.NullFloat64{Float64: 10, Valid: true}},
	}
	if err := s.UpsertDetectorValues(ctx, start.Add(time.Minute), values); err != nil {
		t.Fatalf("seed detector values: %v", err)
	}

	if err := Run(ctx, s, dets, start, end, updateInterval); err != nil {
		t.Fatalf("Run: %v", err)
	}
}
