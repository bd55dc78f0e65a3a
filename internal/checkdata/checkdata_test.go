package checkdata

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
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunFindsNoIssuesOnConsistentData(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.UpsertDetectors(ctx, []store.Detector{{DetectorID: "d1", EdgeID: "e1"}}); err != nil {
		t.Fatalf("UpsertDetectors: %v", err)
	}
	interval := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := s.UpsertDetectorValues(ctx, interval, []store.DetectorValue{
		{DetectorID: "d1", QPKW: sql.NullFloat64{Float64: 10, Valid: true}, VPKW: sql.NullFloat64{Float64: 50, Valid: true}, Provenance: "real", Fixed: false},
	}); err != nil {
		t.Fatalf("UpsertDetectorValues: %v", err)
	}

	report, err := Run(ctx, s)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.HasIssues() {
		t.Fatalf("unexpected issues: %v", report.Issues)
	}
	if report.Checked != 1 {
		t.Fatalf("Checked = %d, want 1", report.Checked)
	}
}

func TestRunFlagsFixedRealRow(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.UpsertDetectors(ctx, []store.Detector{{DetectorID: "d1", EdgeID: "e1"}}); err != nil {
		t.Fatalf("UpsertDetectors: %v", err)
	}
	interval := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := s.UpsertDetectorValues(ctx, interval, []store.DetectorValue{
		{DetectorID: "d1", QPKW: sql.NullFloat64{Float64: 10, Valid: true}, Provenance: "real", Fixed: true},
	}); err != nil {
		t.Fatalf("UpsertDetectorValues: %v", err)
	}

	report, err := Run(ctx, s)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !report.HasIssues() {
		t.Fatal("expected an issue for a fixed row with real provenance")
	}
}

func TestRunFlagsUnfixedNonRealRow(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.UpsertDetectors(ctx, []store.Detector{{DetectorID: "d1", EdgeID: "e1"}}); err != nil {
		t.Fatalf("UpsertDetectors: %v", err)
	}
	interval := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := s.UpsertDetectorValues(ctx, interval, []store.DetectorValue{
		{DetectorID: "d1", Provenance: "NO_ORIG", Fixed: false},
	}); err != nil {
		t.Fatalf("UpsertDetectorValues: %v", err)
	}

	report, err := Run(ctx, s)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !report.HasIssues() {
		t.Fatal("expected an issue for an unfixed NO_ORIG row")
	}
}
