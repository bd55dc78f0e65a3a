// Package corrector runs a window of raw detector readings through
// classification, gap filling, and the PKW/LKW merge before they reach the
// aggregator. It is the part of the §4.5 contract the periodic detector
// loop drives once per update interval: classify every attribute, null
// whatever the classifier rejects, fill short runs of nulls with a
// two-sided interpolation through the detector's own recent history, then
// merge the car and truck readings into the single flow/speed pair the
// aggregator's rollup expects.
package corrector

import (
	"context"
	"database/sql"
	"time"

	"github.com/DLR-TS/sumoldl/internal/detector"
	"github.com/DLR-TS/sumoldl/internal/gapfill"
	"github.com/DLR-TS/sumoldl/internal/store"
)

// Config carries the per-deployment knobs the corrector needs: whether
// LKW-specific bounds apply at all (a region without truck detection runs
// PKW-only) and the posted lane speed limit used by the soft overspeed
// check, 0 meaning "unknown, skip that check".
type Config struct {
	HasLKW            bool
	LaneSpeedLimitKMH float64
}

// RawReading is one detector's unclassified measurement for an interval.
type RawReading struct {
	DetectorID string
	QPKW       *float64
	QLKW       *float64
	VPKW       *float64
	VLKW       *float64
	Quality    float64
}

// Classify builds a Record from reading and runs it through the full
// per-interval classifier, given the detector's preceding (chronologically
// ordered, oldest-first) slots for the hanging-detector check.
func Classify(cfg Config, reading RawReading, preceding []*detector.Record) *detector.Record {
	rec := detector.NewRecord(reading.DetectorID, reading.QPKW, reading.QLKW, reading.VPKW, reading.VLKW, reading.Quality)
	detector.ClassifyRecord(rec, preceding, cfg.HasLKW, cfg.LaneSpeedLimitKMH)
	return rec
}

// FillGaps runs the two-sided interpolation pass over every one of
// records' four attributes across [correctStart, correctEnd), where
// records is dense and aligned one-to-one with times. Intervals outside
// that range are left untouched: correctStart..correctEnd is the portion
// of the window old enough that both its past and future neighbors are
// now known, the same "overlap" slice the loop re-walks every tick before
// treating an interval as settled. It returns the number of values
// committed across all four attributes.
func FillGaps(records []*detector.Record, times []time.Time, correctStart, correctEnd time.Time) int {
	start, end := boundsFor(times, correctStart, correctEnd)
	if start < 0 {
		return 0
	}
	total := 0
	for _, attr := range []detector.Attr{detector.QPKW, detector.QLKW, detector.VPKW, detector.VLKW} {
		total += gapfill.FillRange(records, times, attr, start, end, gapfill.Interpolate)
	}
	return total
}

func boundsFor(times []time.Time, start, end time.Time) (int, int) {
	s, e := -1, -1
	for i, t := range times {
		if s < 0 && !t.Before(start) {
			s = i
		}
		if t.Before(end) {
			e = i + 1
		}
	}
	if s < 0 || e <= s {
		return -1, -1
	}
	return s, e
}

// Merge folds a record's PKW and LKW attributes into the single flow/speed
// pair the aggregator consumes, matching the original pipeline's
// merge-before-rollup step: when this deployment reports trucks and both
// counts are known, truck volume is folded into the car count and the
// speeds are combined weighted by their respective flows (falling back to
// the truck speed alone when no cars were counted). Detectors that don't
// report LKW, or that have nulled it via classification, pass the PKW
// attributes straight through.
func Merge(r *detector.Record, hasLKW bool) (flow, speed *float64) {
	if !hasLKW || r.QPKW == nil || r.QLKW == nil || *r.QLKW <= 0 {
		return r.QPKW, r.VPKW
	}

	total := *r.QPKW + *r.QLKW
	flow = &total

	switch {
	case *r.QPKW > 0 && r.VPKW != nil && r.VLKW != nil:
		v := (*r.VPKW**r.QPKW + *r.VLKW**r.QLKW) / total
		speed = &v
	case r.VLKW != nil:
		speed = r.VLKW
	default:
		speed = r.VPKW
	}
	return flow, speed
}

// Persist writes a batch of corrected records through store, merging each
// record's PKW/LKW attributes into the aggregator-facing flow/speed pair
// and translating the detector package's nilable-pointer attributes into
// the store's sql.NullFloat64 columns.
func Persist(ctx context.Context, s *store.Store, intervalEnd time.Time, records []*detector.Record, hasLKW bool) error {
	values := make([]store.DetectorValue, 0, len(records))
	for _, r := range records {
		mergedFlow, mergedSpeed := Merge(r, hasLKW)
		v := store.DetectorValue{
			DetectorID:  r.DetectorID,
			IntervalEnd: intervalEnd,
			Quality:     r.Quality,
			Provenance:  string(r.Provenance),
			Fixed:       r.Fixed(),
			ErrorPKW:    int(r.ErrorPKW),
			ErrorLKW:    int(r.ErrorLKW),
		}
		v.QPKW = nullable(r.QPKW)
		v.QLKW = nullable(r.QLKW)
		v.VPKW = nullable(r.VPKW)
		v.VLKW = nullable(r.VLKW)
		v.MergedFlow = nullable(mergedFlow)
		v.MergedSpeed = nullable(mergedSpeed)
		values = append(values, v)
	}
	return s.UpsertDetectorValues(ctx, intervalEnd, values)
}

func nullable(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
