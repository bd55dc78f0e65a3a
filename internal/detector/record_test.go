package detector

import "testing"

func f(v float64) *float64 { return &v }

func TestFixMarksRecord(t *testing.T) {
	r := NewRecord("d1", f(10), nil, f(50), nil, 80)
	if r.Fixed() {
		t.Fatal("new record must not be fixed")
	}
	if !r.Fix(QPKW, f(12)) {
		t.Fatal("fixing a legal flow value should succeed")
	}
	if !r.IsFixed(QPKW) {
		t.Fatal("Fix must mark the attribute fixed")
	}
	r.SetProvenance(Forecast)
	if r.Provenance != Forecast {
		t.Fatalf("Provenance = %v, want FORECAST", r.Provenance)
	}
	r.Unfix()
	if r.Fixed() {
		t.Fatal("Unfix must clear fixedSet")
	}
	if r.QPKW != nil {
		t.Fatal("Unfix must null every fixed attribute")
	}
}

func TestFixRejectsNegativeFlow(t *testing.T) {
	r := NewRecord("d1", nil, nil, nil, nil, 0)
	if r.Fix(QPKW, f(-5)) {
		t.Fatal("a negative flow must be rejected by the fix discipline")
	}
}

func TestFixSpeedRequiresKnownFlow(t *testing.T) {
	r := NewRecord("d1", nil, nil, nil, nil, 0)
	if r.Fix(VPKW, f(50)) {
		t.Fatal("fixing a speed with no known flow must be rejected")
	}
	r.QPKW = f(0)
	if !r.Fix(VPKW, f(0)) {
		t.Fatal("a zero flow must accept a zero speed")
	}
	if r.Fix(VPKW, f(10)) {
		t.Fatal("a zero flow must reject a nonzero speed")
	}
}

func TestHasFlowTruthiness(t *testing.T) {
	zero := 0.0
	r := &Record{QPKW: &zero}
	if r.HasFlow() {
		t.Fatal("a zero flow must not count as having flow, matching the original truthiness check")
	}
	r.QPKW = nil
	if r.HasFlow() {
		t.Fatal("nil flow must not count as having flow")
	}
	five := 5.0
	r.QLKW = &five
	if !r.HasFlow() {
		t.Fatal("a nonzero flow on either class must count as having flow")
	}
}

func TestIsReal(t *testing.T) {
	r := NewRecord("d1", nil, nil, nil, nil, 0)
	if !r.IsReal() {
		t.Fatal("freshly constructed record should be real")
	}
	r.SetProvenance(NoOrig)
	if r.IsReal() {
		t.Fatal("a record stamped NO_ORIG must not be real")
	}
}
