package gapfill

import (
	"time"

	"github.com/DLR-TS/sumoldl/internal/detector"
)

// FillRange runs Fill over every maximal run of nulls for attr within
// records[start:end], a dense (no positional gaps) per-detector slice
// aligned one-to-one with times. mode selects two-sided interpolation
// (support on both sides of the gap, shrinking the required window until
// at least ceil(size/2) valid points exist on each side) or forward
// forecasting (support only to the left, shrinking until at least two
// points exist). Gaps wider than MaxGapTime are left alone. Every
// successful fit is committed through the record's Fix method, so the
// error classifier's fix discipline has the final say over what sticks.
// FillRange returns the number of values actually committed.
func FillRange(records []*detector.Record, times []time.Time, attr detector.Attr, start, end int, mode Mode) int {
	filled := 0
	i := start
	for i < end {
		if records[i] == nil || records[i].Get(attr) != nil {
			i++
			continue
		}
		j := i
		for j < end && (records[j] == nil || records[j].Get(attr) == nil) {
			j++
		}
		filled += fillRun(records, times, attr, i, j, mode)
		i = j
	}
	return filled
}

func fillRun(records []*detector.Record, times []time.Time, attr detector.Attr, i, j int, mode Mode) int {
	if times[j-1].Sub(times[i]) > MaxGapTime {
		return 0
	}
	gapTimes := append([]time.Time(nil), times[i:j]...)
	size := j - i

	switch mode {
	case ForecastMode:
		for s := size; s >= 1; s-- {
			support := collect(records, times, attr, maxInt(0, i-2*s), i)
			if len(support) < 2 {
				continue
			}
			before := support[len(support)-1]
			g := Gap{Before: before, Times: gapTimes}
			vals := Fill(g, ForecastMode, support[:len(support)-1])
			return commit(records, attr, i, j, vals)
		}
		return 0
	default: // Interpolate
		for s := size; s >= 1; s-- {
			need := (s + 1) / 2 // ceil(size/2)
			left := collect(records, times, attr, maxInt(0, i-s), i)
			right := collect(records, times, attr, j, minInt(len(records), j+s))
			if len(left) < need || len(right) < need {
				continue
			}
			g := Gap{Before: left[len(left)-1], After: &right[0], Times: gapTimes}
			vals := Fill(g, Interpolate, nil)
			return commit(records, attr, i, j, vals)
		}
		return 0
	}
}

func collect(records []*detector.Record, times []time.Time, attr detector.Attr, from, to int) []Point {
	var pts []Point
	for k := from; k < to; k++ {
		if records[k] == nil {
			continue
		}
		v := records[k].Get(attr)
		if v == nil {
			continue
		}
		pts = append(pts, Point{T: times[k], Value: *v})
	}
	return pts
}

func commit(records []*detector.Record, attr detector.Attr, i, j int, vals []float64) int {
	if vals == nil {
		return 0
	}
	count := 0
	for k := i; k < j; k++ {
		v := vals[k-i]
		if records[k].Fix(attr, &v) {
			count++
		}
	}
	return count
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
