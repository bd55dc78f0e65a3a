// Package fusion combines same-interval readings for one edge from
// multiple data sources (induction loops, floating car data) into a single
// value, weighting each source's contribution by its own reported quality
// scaled by a fixed per-source trust factor.
package fusion

// QualityFactor scales a source's reported quality percentage before it
// becomes a fusion weight: loop detectors are trusted at face value, FCD
// samples are discounted because they cover only a fraction of the fleet,
// and camera-derived ("visual") readings carry the same discount.
var QualityFactor = map[string]float64{
	"loop":   1.0,
	"fcd":    0.5,
	"visual": 0.5,
}

// Value accumulates a weighted average across sources that contribute one
// value at a time via Add, tracking how much of the theoretical 100%
// confidence has been consumed so far.
type Value struct {
	weightedSum    float64
	weight         float64
	inverseQuality float64
	started        bool
}

// New returns a fresh accumulator. inverseQuality starts at 1 (0% combined
// confidence) and is driven toward 0 as sources contribute.
func New() *Value {
	return &Value{inverseQuality: 1}
}

// Add folds in one source's value, weighted by qualityPercent scaled
// through source's QualityFactor. Once inverseQuality has reached 0 (full
// confidence already achieved from prior sources), further sources are
// ignored: there is nothing left for them to add.
func (v *Value) Add(value float64, qualityPercent float64, source string) {
	if v.inverseQuality <= 0 {
		return
	}
	factor := QualityFactor[source]
	adaptedQuality := qualityPercent * factor

	v.weightedSum += value * adaptedQuality
	v.weight += adaptedQuality
	v.inverseQuality *= 1 - qualityPercent/100
	v.started = true
}

// GetValueAndQualityPercent returns the fused value and its combined
// quality percentage. ok is false if no source ever contributed.
func (v *Value) GetValueAndQualityPercent() (value, qualityPercent float64, ok bool) {
	if !v.started || v.weight == 0 {
		return 0, 0, false
	}
	return v.weightedSum / v.weight, 100 * (1 - v.inverseQuality), true
}

// EdgeResult is the flow/speed/quality triple the fusion engine writes
// back for one edge and interval, after the post-fusion consistency fixups
// in Reconcile have been applied.
type EdgeResult struct {
	Flow    *float64
	Speed   *float64
	Quality float64
}

// Reconcile applies the pipeline's post-fusion fixups: a nonzero speed with
// zero flow implies at least one vehicle was actually observed, and a
// positive flow with no speed reading can't report a speed of zero (that
// would mean stopped traffic, which the flow contradicts).
func Reconcile(flow, speed *float64, quality float64) EdgeResult {
	f, s := flow, speed
	if f != nil && *f == 0 && s != nil && *s > 0 {
		one := 1.0
		f = &one
	}
	if s != nil && *s == 0 && f != nil && *f > 0 {
		s = nil
	}
	return EdgeResult{Flow: f, Speed: s, Quality: quality}
}
