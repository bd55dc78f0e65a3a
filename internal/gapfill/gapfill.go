// Package gapfill replaces short runs of missing detector readings with a
// degree-1 polynomial fit through the surrounding real data, either
// interpolating between two known endpoints or forecasting forward from
// the trailing edge of a sequence. Gaps wider than MaxGapTime are left
// alone.
package gapfill

import (
	"time"

	"gonum.org/v1/gonum/stat"
)

// MaxGapTime is the longest run of missing intervals this package will
// attempt to fill. Beyond it, a linear fit through one detector's own
// recent history is no longer trustworthy.
const MaxGapTime = 30 * time.Minute

// Mode selects whether Fill interpolates between two known points or
// forecasts forward from the most recent trend.
type Mode int

const (
	Interpolate Mode = iota
	ForecastMode
)

// Point is one known (real or already-fixed) sample used to fit the line.
type Point struct {
	T     time.Time
	Value float64
}

// Gap describes one run of missing intervals between two known points (or,
// for a forecast, the point just before the run and no endpoint at all).
type Gap struct {
	Before Point
	After  *Point // nil for ForecastMode
	Times  []time.Time
}

// TooWide reports whether the gap exceeds MaxGapTime and is left unfilled.
func (g Gap) TooWide() bool {
	if len(g.Times) == 0 {
		return false
	}
	span := g.Times[len(g.Times)-1].Sub(g.Before.T)
	return span > MaxGapTime
}

// Fill fits a degree-1 polynomial through the known points bracketing (or
// preceding, in ForecastMode) the gap and evaluates it at every missing
// time, returning one value per g.Times in order. Returns nil if the gap
// is too wide to fill.
func Fill(g Gap, mode Mode, recentHistory []Point) []float64 {
	if g.TooWide() {
		return nil
	}

	var xs, ys []float64
	switch mode {
	case Interpolate:
		if g.After == nil {
			return nil
		}
		xs = []float64{0, g.After.T.Sub(g.Before.T).Seconds()}
		ys = []float64{g.Before.Value, g.After.Value}
	case ForecastMode:
		for _, p := range recentHistory {
			xs = append(xs, p.T.Sub(g.Before.T).Seconds())
			ys = append(ys, p.Value)
		}
		xs = append(xs, 0)
		ys = append(ys, g.Before.Value)
	}

	if len(xs) < 2 {
		out := make([]float64, len(g.Times))
		for i := range out {
			out[i] = g.Before.Value
		}
		return out
	}

	alpha, beta := stat.LinearRegression(xs, ys, nil, false)

	out := make([]float64, len(g.Times))
	for i, t := range g.Times {
		x := t.Sub(g.Before.T).Seconds()
		out[i] = alpha + beta*x
	}
	return out
}
