package visual

import (
	"context"
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

func f(v float64) *float64 { return &v }

func TestDensityToFlowUsesReportedSpeed(t *testing.T) {
	flow := densityToFlow(f(10), f(40))
	if flow == nil || *flow != 400 {
		t.Fatalf("flow = %v, want 400", flow)
	}
}

func TestDensityToFlowFallsBackToFreeFlowWhenSpeedZero(t *testing.T) {
	flow := densityToFlow(f(10), f(0))
	if flow == nil || *flow != 10*freeFlowKMH {
		t.Fatalf("flow = %v, want %v", flow, 10*freeFlowKMH)
	}
}

func TestDensityToFlowFallsBackToFreeFlowWhenSpeedMissing(t *testing.T) {
	flow := densityToFlow(f(10), nil)
	if flow == nil || *flow != 10*freeFlowKMH {
		t.Fatalf("flow = %v, want %v", flow, 10*freeFlowKMH)
	}
}

func TestDensityToFlowNilDensityYieldsZero(t *testing.T) {
	flow := densityToFlow(nil, f(40))
	if flow == nil || *flow != 0 {
		t.Fatalf("flow = %v, want 0", flow)
	}
}

func TestCorrectNeverPopulatesTruckAttributes(t *testing.T) {
	rec := Correct(Reading{CameraID: "cam1", EdgeID: "e1", Density: f(10), SpeedKMH: f(45)}, 100, nil)
	if rec.QLKW != nil || rec.VLKW != nil {
		t.Fatal("camera readings never separate truck volume, QLKW/VLKW must stay nil")
	}
	if rec.QPKW == nil {
		t.Fatal("expected a car flow to be derived from density")
	}
}

func TestAggregatePersistsVisualAndRawSourceRows(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	readings := []Reading{
		{CameraID: "cam1", EdgeID: "e1", Density: f(8), SpeedKMH: f(40)},
		{CameraID: "cam2", EdgeID: "e1", Density: f(6), SpeedKMH: f(42)},
	}
	limits := map[string]float64{"e1": 100}

	if err := Aggregate(ctx, s, now, readings, limits, nil); err != nil {
		t.Fatalf("Aggregate: %v", err)
	}

	visual, err := s.VisualValuesForEdge(ctx, "e1", now)
	if err != nil {
		t.Fatalf("VisualValuesForEdge: %v", err)
	}
	if len(visual) != 2 {
		t.Fatalf("got %d visual rows, want 2", len(visual))
	}

	raw, err := s.RawSourceValues(ctx, "visual", now)
	if err != nil {
		t.Fatalf("RawSourceValues: %v", err)
	}
	row, ok := raw["e1"]
	if !ok {
		t.Fatal("expected a raw source row for e1")
	}
	if !row.Flow.Valid || row.Flow.Float64 <= 0 {
		t.Fatalf("expected a positive combined flow, got %+v", row.Flow)
	}
}
