package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/DLR-TS/sumoldl/internal/schema"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, schema.Default(""))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenAppliesMigrations(t *testing.T) {
	s := openTestStore(t)
	var name string
	if err := s.DB().QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, "detectors").Scan(&name); err != nil {
		t.Fatalf("expected detectors table to exist: %v", err)
	}
}

func TestDetectorValuesRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.UpsertDetectors(ctx, []Detector{
		{DetectorID: "d1", EdgeID: "e1", Lane: "0", PositionM: 10, VehicleClass: "PKW"},
	}); err != nil {
		t.Fatalf("UpsertDetectors: %v", err)
	}

	interval := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	values := []DetectorValue{
		{DetectorID: "d1", QPKW: sql.NullFloat64{Float64: 120, Valid: true}, VPKW: sql.NullFloat64{Float64: 50, Valid: true},
			MergedFlow: sql.NullFloat64{Float64: 120, Valid: true}, MergedSpeed: sql.NullFloat64{Float64: 50, Valid: true},
			Quality: 90, Provenance: "real"},
	}
	if err := s.UpsertDetectorValues(ctx, interval, values); err != nil {
		t.Fatalf("UpsertDetectorValues: %v", err)
	}

	history, err := s.DetectorHistory(ctx, "d1", interval.Add(-time.Hour), interval.Add(time.Hour))
	if err != nil {
		t.Fatalf("DetectorHistory: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("got %d rows, want 1", len(history))
	}
	if history[0].MergedFlow.Float64 != 120 {
		t.Fatalf("MergedFlow = %v, want 120", history[0].MergedFlow.Float64)
	}

	// A second write for the same interval must replace, not duplicate.
	if err := s.UpsertDetectorValues(ctx, interval, values); err != nil {
		t.Fatalf("UpsertDetectorValues (re-run): %v", err)
	}
	history, err = s.DetectorHistory(ctx, "d1", interval.Add(-time.Hour), interval.Add(time.Hour))
	if err != nil {
		t.Fatalf("DetectorHistory: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("after re-run got %d rows, want 1", len(history))
	}
}

func TestEdgeValuesRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	interval := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	values := []EdgeValue{
		{EdgeID: "e1", Flow: sql.NullFloat64{Float64: 200, Valid: true}, Quality: 80, Coverage: 1},
	}
	if err := s.UpsertEdgeValues(ctx, interval, values); err != nil {
		t.Fatalf("UpsertEdgeValues: %v", err)
	}

	got, err := s.EdgeHistory(ctx, "aggregated", "e1", interval.Add(-time.Hour), interval.Add(time.Hour))
	if err != nil {
		t.Fatalf("EdgeHistory: %v", err)
	}
	if len(got) != 1 || got[0].Flow.Float64 != 200 {
		t.Fatalf("unexpected edge history: %+v", got)
	}
}

func TestSimRunLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	started := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	if err := s.InsertSimRun(ctx, SimRun{RunID: "r1", Scenario: "default", LoopKind: "simulation", StartedAt: started, Status: "running"}); err != nil {
		t.Fatalf("InsertSimRun: %v", err)
	}
	if err := s.FinishSimRun(ctx, "r1", started.Add(time.Minute), "ok", 0, 0, ""); err != nil {
		t.Fatalf("FinishSimRun: %v", err)
	}

	recent, err := s.RecentSimRuns(ctx, 10)
	if err != nil {
		t.Fatalf("RecentSimRuns: %v", err)
	}
	if len(recent) != 1 || recent[0].Status != "ok" {
		t.Fatalf("unexpected recent sim runs: %+v", recent)
	}
}
