package extrapolate

import (
	"math"
	"testing"
	"time"
)

func TestSmoothPredictorAveragesOffsets(t *testing.T) {
	base := time.Date(2026, 7, 30, 8, 0, 0, 0, time.UTC)
	interval := time.Minute
	history := []Sample{
		{T: base.Add(-7 * 24 * time.Hour), Value: 100},
		{T: base.Add(-14 * 24 * time.Hour), Value: 120},
		{T: base.Add(-21 * 24 * time.Hour), Value: 140},
	}
	got, ok := SmoothPredictor(history, base, interval)
	if !ok {
		t.Fatal("expected a prediction")
	}
	if math.Abs(got-120) > 0.001 {
		t.Errorf("got %v, want 120 (mean of 100,120,140)", got)
	}
}

func TestSmoothPredictorNoHistory(t *testing.T) {
	base := time.Date(2026, 7, 30, 8, 0, 0, 0, time.UTC)
	if _, ok := SmoothPredictor(nil, base, time.Minute); ok {
		t.Fatal("expected ok=false with no history")
	}
}

func TestGetCorrectionAndFeedback(t *testing.T) {
	base := time.Date(2026, 7, 30, 8, 0, 0, 0, time.UTC)
	interval := time.Minute
	history := []Sample{
		{T: base.Add(-7 * 24 * time.Hour), Value: 100},
	}
	lastKnown := Sample{T: base, Value: 110}
	delta, ok := GetCorrection(history, lastKnown, interval)
	if !ok {
		t.Fatal("expected a correction")
	}
	if math.Abs(delta-10) > 0.001 {
		t.Errorf("delta = %v, want 10", delta)
	}

	target := base.Add(interval)
	futureHistory := append(history, Sample{T: target.Add(-7 * 24 * time.Hour), Value: 105})
	predicted, ok := FeedbackPredictorAbsolute(futureHistory, target, interval, delta)
	if !ok {
		t.Fatal("expected a feedback prediction")
	}
	if math.Abs(predicted-112.5) > 0.001 {
		t.Errorf("predicted = %v, want 112.5 (mean of 100 and 105 within the smoothing width + 10 delta)", predicted)
	}
}

func TestGEHToQuality(t *testing.T) {
	if q := GEHToQuality(0); q != 100 {
		t.Errorf("GEH=0 quality = %v, want 100", q)
	}
	if q := GEHToQuality(10); q != 0 {
		t.Errorf("GEH=10 quality = %v, want 0", q)
	}
	if q := GEHToQuality(20); q != 0 {
		t.Errorf("GEH=20 quality = %v, want clamped to 0", q)
	}
}

func TestEstimateQualityPerfectMatch(t *testing.T) {
	predicted := []float64{100, 100, 100}
	observed := []float64{100, 100, 100}
	if q := EstimateQuality(predicted, observed, false); q != 100 {
		t.Errorf("quality = %v, want 100 for a perfect match", q)
	}
}
