// Package extrapolate predicts an edge's traffic values from its own
// recent history at the same time of day and weekday, then corrects that
// prediction against the last known real value before re-validating it
// through the same fix discipline the corrector uses.
package extrapolate

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"
)

// TimeOffsets are the calendar lookbacks (same weekday, same time of day)
// the periodicity predictor averages across.
var TimeOffsets = []time.Duration{7 * 24 * time.Hour, 14 * 24 * time.Hour, 21 * 24 * time.Hour}

// SmoothingWidth is how many intervals on either side of each offset's
// matching slot also contribute to the smoothed prediction.
const SmoothingWidth = 2

// ValidationWidth is how many of the most recent known slots the quality
// estimator scores the predictor against.
const ValidationWidth = 3

// FeedbackWidth is how many of the most recent known slots the feedback
// correction is allowed to look at when computing its delta.
const FeedbackWidth = 2

// Sample is one historical (time, value) pair available to the predictor.
type Sample struct {
	T     time.Time
	Value float64
}

// SmoothPredictor averages history across TimeOffsets (± SmoothingWidth
// intervals) around target, matching the target's own time of day and
// weekday on each prior occurrence.
func SmoothPredictor(history []Sample, target time.Time, updateInterval time.Duration) (float64, bool) {
	var samples []float64
	for _, offset := range TimeOffsets {
		anchor := target.Add(-offset)
		for d := -SmoothingWidth; d <= SmoothingWidth; d++ {
			want := anchor.Add(time.Duration(d) * updateInterval)
			if v, ok := nearest(history, want, updateInterval/2); ok {
				samples = append(samples, v)
			}
		}
	}
	if len(samples) == 0 {
		return 0, false
	}
	return stat.Mean(samples, nil), true
}

func nearest(history []Sample, want time.Time, tolerance time.Duration) (float64, bool) {
	for _, s := range history {
		d := s.T.Sub(want)
		if d < 0 {
			d = -d
		}
		if d <= tolerance {
			return s.Value, true
		}
	}
	return 0, false
}

// GetCorrection computes the additive delta between the predictor's own
// estimate at lastKnown.T and the real value observed there, the
// correction FeedbackPredictorAbsolute applies going forward.
func GetCorrection(history []Sample, lastKnown Sample, updateInterval time.Duration) (float64, bool) {
	predicted, ok := SmoothPredictor(history, lastKnown.T, updateInterval)
	if !ok {
		return 0, false
	}
	return lastKnown.Value - predicted, true
}

// FeedbackPredictorAbsolute predicts target by applying delta (from
// GetCorrection) on top of the raw periodicity prediction.
func FeedbackPredictorAbsolute(history []Sample, target time.Time, updateInterval time.Duration, delta float64) (float64, bool) {
	predicted, ok := SmoothPredictor(history, target, updateInterval)
	if !ok {
		return 0, false
	}
	return predicted + delta, true
}

// GEH is the standard GEH statistic comparing a modeled value m against an
// observed value o.
func GEH(m, o float64) float64 {
	if m+o == 0 {
		return 0
	}
	return math.Sqrt(2 * (m - o) * (m - o) / (m + o))
}

// GEHToQuality converts a GEH value into a 0-100 confidence score: GEH 0
// is perfect agreement (quality 100), and quality reaches 0 once GEH hits
// 10, the conventional threshold above which two flow values are
// considered to disagree.
func GEHToQuality(g float64) float64 {
	q := 100 - 10*g
	if q < 0 {
		return 0
	}
	return q
}

// EstimateQuality scores a predictor's recent accuracy by averaging
// GEH-derived quality across the ValidationWidth most recent known slots.
// isSpeed selects the pseudo-GEH scaling the original pipeline uses for
// speed (multiplying by 100 so speed values, typically under 300 km/h,
// behave like flow values in the hundreds to thousands for GEH's
// square-root scaling to be meaningful).
func EstimateQuality(predicted, observed []float64, isSpeed bool) float64 {
	n := len(predicted)
	if len(observed) < n {
		n = len(observed)
	}
	if n > ValidationWidth {
		predicted = predicted[n-ValidationWidth:]
		observed = observed[n-ValidationWidth:]
		n = ValidationWidth
	}
	if n == 0 {
		return 0
	}

	var sum float64
	for i := 0; i < n; i++ {
		m, o := predicted[i], observed[i]
		if isSpeed {
			m *= 100
			o *= 100
		}
		sum += GEHToQuality(GEH(m, o))
	}
	return sum / float64(n)
}
