package corrector

import (
	"testing"
	"time"

	"github.com/DLR-TS/sumoldl/internal/detector"
)

func f(v float64) *float64 { return &v }

func TestClassifyPassesThroughValidReading(t *testing.T) {
	reading := RawReading{DetectorID: "d1", QPKW: f(100), QLKW: f(5), VPKW: f(80), VLKW: f(75), Quality: 90}
	rec := Classify(Config{HasLKW: true}, reading, nil)
	if rec.Fixed() {
		t.Fatal("a valid reading should not be marked fixed by the classifier")
	}
	if *rec.QPKW != 100 {
		t.Errorf("QPKW = %v, want 100", *rec.QPKW)
	}
}

func TestClassifyNullsFatalError(t *testing.T) {
	reading := RawReading{DetectorID: "d1", QPKW: f(-5), VPKW: f(80), Quality: 90}
	rec := Classify(Config{HasLKW: true}, reading, nil)
	if rec.QPKW != nil || rec.VPKW != nil {
		t.Error("a flow-affecting error must null both attributes of that class")
	}
}

func TestClassifyWithoutLKWClearsTruckAttributes(t *testing.T) {
	reading := RawReading{DetectorID: "d1", QPKW: f(10), QLKW: f(3), VPKW: f(50), VLKW: f(55), Quality: 90}
	rec := Classify(Config{HasLKW: false}, reading, nil)
	if rec.QLKW != nil || rec.VLKW != nil {
		t.Fatal("LKW attributes must be cleared when the deployment has no truck detection")
	}
}

func TestFillGapsInterpolatesWithinRange(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	times := make([]time.Time, 5)
	records := make([]*detector.Record, 5)
	flows := []float64{10, 0, 0, 40, 50}
	for i := range times {
		times[i] = base.Add(time.Duration(i) * time.Minute)
		var q *float64
		if i != 1 && i != 2 {
			v := flows[i]
			q = &v
		}
		records[i] = detector.NewRecord("d1", q, nil, nil, nil, 90)
	}

	filled := FillGaps(records, times, times[0], times[4].Add(time.Second))
	if filled == 0 {
		t.Fatal("expected FillGaps to commit at least one value")
	}
	if records[1].QPKW == nil || records[2].QPKW == nil {
		t.Fatal("both missing slots should have been interpolated")
	}
	if !records[1].IsFixed(detector.QPKW) {
		t.Fatal("a filled value must be marked fixed")
	}
}

func TestFillGapsRespectsRangeBounds(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	times := []time.Time{base, base.Add(time.Minute), base.Add(2 * time.Minute)}
	records := []*detector.Record{
		detector.NewRecord("d1", f(10), nil, nil, nil, 90),
		detector.NewRecord("d1", nil, nil, nil, nil, 0),
		detector.NewRecord("d1", f(20), nil, nil, nil, 90),
	}
	// correctEnd excludes index 1, so nothing in range should be filled.
	filled := FillGaps(records, times, times[0], times[1])
	if filled != 0 {
		t.Fatalf("expected 0 fills outside the correction range, got %d", filled)
	}
}

func TestMergeCombinesCarAndTruck(t *testing.T) {
	r := detector.NewRecord("d1", f(100), f(20), f(80), f(60), 90)
	flow, speed := Merge(r, true)
	if flow == nil || *flow != 120 {
		t.Fatalf("merged flow = %v, want 120", flow)
	}
	want := (80.0*100 + 60.0*20) / 120.0
	if speed == nil || *speed < want-0.001 || *speed > want+0.001 {
		t.Fatalf("merged speed = %v, want %v", speed, want)
	}
}

func TestMergeWithoutLKWPassesThroughPKW(t *testing.T) {
	r := detector.NewRecord("d1", f(50), nil, f(70), nil, 90)
	flow, speed := Merge(r, false)
	if flow == nil || *flow != 50 {
		t.Fatalf("flow = %v, want 50", flow)
	}
	if speed == nil || *speed != 70 {
		t.Fatalf("speed = %v, want 70", speed)
	}
}

func TestMergeFallsBackToTruckSpeedWhenNoCars(t *testing.T) {
	zero := 0.0
	r := detector.NewRecord("d1", &zero, f(10), nil, f(55), 90)
	flow, speed := Merge(r, true)
	if flow == nil || *flow != 10 {
		t.Fatalf("flow = %v, want 10", flow)
	}
	if speed == nil || *speed != 55 {
		t.Fatalf("speed = %v, want 55 (truck speed alone)", speed)
	}
}
