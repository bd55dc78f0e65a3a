// Package aggregator rolls up several detectors placed on the same edge
// into one edge-level flow/speed/quality reading, and writes the result
// through internal/store.
package aggregator

import "math"

// QualityMeasure selects how a Group combines its member detectors'
// quality scores into one edge-level figure.
type QualityMeasure int

const (
	Average QualityMeasure = iota
	Max
)

// maxPosDeviation bounds how far apart (in meters, along the edge) two
// detectors may be placed and still be grouped onto the same edge.
const maxPosDeviation = 10.0

// Group accumulates flow/speed/quality/coverage across every detector
// placed on one edge for a single interval, then rolls the accumulation up
// into one edge-level flow/speed/quality reading using the documented
// coverage-weighted formula: a detector that under-reports within the
// interval (fewer update-interval samples than expected) has its flow
// scaled back up by the inverse of its coverage, and the edge-level
// quality is discounted in the opposite direction so a thin sample never
// reports full confidence.
//
// flowScale and expectedEntryCount are left at their zero value by
// NewGroup, which makes Flow/Quality fall back to a plain sum/average —
// the caller must use NewScaledGroup to exercise the real rollup.
type Group struct {
	flowSum     float64
	flowCount   int
	speedSum    float64
	speedWeight float64
	speedSeeded bool
	qualitySum  float64
	qualityMax  float64
	qualityN    int
	coverageN   int // entries actually reporting this interval (entryCount)
	memberCount int // detectors grouped onto this edge (groupCount)

	flowScale          float64 // 3600/updateInterval for loops, aggregation/600 for FCD
	expectedEntryCount float64 // samples expected per detector within the interval
	isSimulation       bool    // simulation/prediction sources divide by entryCount, not groupCount
}

// NewGroup returns an empty accumulator using the plain sum/average
// fallback (no coverage scaling).
func NewGroup() *Group { return &Group{} }

// NewScaledGroup returns an empty accumulator that applies the full §4.6
// rollup: flowScale converts an interval vehicle count into vehicles/hour,
// expectedEntryCount is the number of update-interval samples a fully
// reporting detector would contribute within the aggregation window, and
// isSimulation selects the simulation/prediction denominator (entryCount)
// over the real-source one (groupCount).
func NewScaledGroup(flowScale, expectedEntryCount float64, isSimulation bool) *Group {
	return &Group{flowScale: flowScale, expectedEntryCount: expectedEntryCount, isSimulation: isSimulation}
}

// AddDetector folds one detector's reading into the group. flow and speed
// may be nil if the detector reported nothing this interval; quality is
// the detector's own confidence percentage for this reading.
//
// Flow is only summed when truthy, mirroring the original pipeline's
// "if flow:" check: a detector reporting exactly zero vehicles contributes
// nothing to the sum, since a true zero and a missing reading are
// indistinguishable once this far downstream. Speed is weighted by the
// reported flow, falling back to the caller-supplied weight when flow is
// unknown or zero, so a detector carrying more traffic has proportionally more
// say in the edge-level speed.
func (g *Group) AddDetector(flow, speed *float64, quality float64, weight float64) {
	g.memberCount++
	reported := flow != nil || speed != nil

	if flow != nil && *flow != 0 {
		g.flowSum += *flow
		g.flowCount++
	}

	if speed != nil {
		w := weight
		if flow != nil && *flow > 0 {
			w = *flow
		}
		if !g.speedSeeded {
			g.speedSum = *speed * w
			g.speedWeight = w
			g.speedSeeded = true
		} else {
			g.speedSum += *speed * w
			g.speedWeight += w
		}
	}

	if !reported {
		return
	}
	g.qualitySum += quality
	if quality > g.qualityMax {
		g.qualityMax = quality
	}
	g.qualityN++
	g.coverageN++
}

// Flow returns the edge-level flow, or nil if no detector reported one.
// When the group was built with NewGroup, this is a plain sum. When built
// with NewScaledGroup, it is the documented rollup: the raw sum is first
// grossed up by dividing by coverage (so a thin sample is extrapolated to
// what a fully reporting detector would have counted), converted from a
// per-interval count to vehicles/hour by flowScale, then divided by
// entryCount for simulation/prediction sources (whose expected sample
// count is exact) or by groupCount for real sources (whose detector count
// is the stable denominator), and truncated to an integer vehicle count.
func (g *Group) Flow() *float64 {
	if g.flowCount == 0 {
		return nil
	}
	if g.flowScale == 0 {
		v := g.flowSum
		return &v
	}
	coverage := g.Coverage()
	if coverage <= 0 {
		return nil
	}
	avg := g.flowSum / coverage
	denom := float64(g.memberCount)
	if g.isSimulation {
		denom = float64(g.coverageN)
	}
	if denom <= 0 {
		denom = 1
	}
	v := math.Trunc(avg * g.flowScale / denom)
	return &v
}

// Speed returns the flow-weighted average speed, or nil if no detector
// reported one.
func (g *Group) Speed() *float64 {
	if !g.speedSeeded || g.speedWeight == 0 {
		return nil
	}
	v := g.speedSum / g.speedWeight
	return &v
}

// Quality returns the group's combined quality under measure. When the
// group was built with NewScaledGroup, the result is discounted by the
// inverse of coverage when coverage exceeds 1 (more samples arrived than
// expected, e.g. overlapping detectors) or by coverage itself when it
// falls short of 1, so a partially reporting interval never claims the
// same confidence as a fully reporting one.
func (g *Group) Quality(measure QualityMeasure) float64 {
	if g.qualityN == 0 {
		return 0
	}
	var base float64
	switch measure {
	case Max:
		base = g.qualityMax
	default:
		base = g.qualitySum / float64(g.qualityN)
	}
	if g.expectedEntryCount <= 0 {
		return base
	}
	coverage := g.Coverage()
	discount := 1.0
	switch {
	case coverage > 1:
		discount = 1 / coverage
	case coverage < 1 && coverage > 0:
		discount = coverage
	}
	return base * discount
}

// Coverage returns the group's reporting fraction: when built with
// NewScaledGroup, the fraction of expected update-interval samples that
// actually arrived (coverageN/expectedEntryCount); otherwise the fraction
// of grouped detectors that reported anything at all this interval.
func (g *Group) Coverage() float64 {
	if g.expectedEntryCount > 0 {
		return float64(g.coverageN) / g.expectedEntryCount
	}
	if g.memberCount == 0 {
		return 0
	}
	return float64(g.coverageN) / float64(g.memberCount)
}

// WithinGroupingDistance reports whether two detector positions (in meters
// along the same edge) are close enough to be grouped together.
func WithinGroupingDistance(posA, posB float64) bool {
	d := posA - posB
	if d < 0 {
		d = -d
	}
	return d <= maxPosDeviation
}
