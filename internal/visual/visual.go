// Package visual corrects and aggregates camera-derived vehicle-density
// readings into the same raw-source shape floating-car data and loop
// detectors use, so fusion can fold a third independent source in. It is
// the counterpart of internal/corrector for the camera path: cameras never
// report truck volume separately, so every reading is classified PKW-only.
package visual

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/DLR-TS/sumoldl/internal/aggregator"
	"github.com/DLR-TS/sumoldl/internal/detector"
	"github.com/DLR-TS/sumoldl/internal/store"
)

// freeFlowKMH stands in for a camera's reported speed when that speed is
// exactly zero (traffic at a standstill still has a density; computing flow
// from zero speed would divide by zero), matching the original pipeline's
// fallback of 50 km/h.
const freeFlowKMH = 50.0

// Reading is one camera's raw density/speed observation for an interval.
// Density is in vehicles per kilometre; a nil density means the camera
// reported nothing this interval.
type Reading struct {
	CameraID string
	EdgeID   string
	Density  *float64
	SpeedKMH *float64
}

// Correct converts reading's density/speed pair into the flow/speed record
// the detector classifier already knows how to validate, then runs it
// through that same classifier (PKW-only, since a camera never separates
// truck volume). laneSpeedLimitKMH is the posted limit for reading's edge,
// 0 to skip the lane-overspeed check.
func Correct(reading Reading, laneSpeedLimitKMH float64, preceding []*detector.Record) *detector.Record {
	flow := densityToFlow(reading.Density, reading.SpeedKMH)
	rec := detector.NewRecord(reading.CameraID, flow, nil, reading.SpeedKMH, nil, 0)
	detector.ClassifyRecord(rec, preceding, false, laneSpeedLimitKMH)
	return rec
}

// densityToFlow converts a vehicles/km density and a km/h speed into a
// vehicles/h flow (q = k*v). A missing density reports zero flow rather
// than nil, matching the original pipeline: a camera that saw the road and
// counted nothing is a real zero, not a missing sample.
func densityToFlow(density, speedKMH *float64) *float64 {
	if density == nil {
		zero := 0.0
		return &zero
	}
	v := freeFlowKMH
	if speedKMH != nil && *speedKMH != 0 {
		v = *speedKMH
	}
	flow := *density * v
	return &flow
}

// Aggregate groups readings' corrected records by edge and writes one
// rolled-up flow/speed/quality/coverage row per edge through
// store.UpsertRawSourceValues under source "visual", the same shape FCD
// writes into so fusion can treat either as a lower-trust input
// alongside the loop-detector aggregate. It also writes one row per camera
// through store.UpsertVisualValues for per-camera inspection.
func Aggregate(ctx context.Context, s *store.Store, intervalEnd time.Time, readings []Reading, laneSpeedLimitKMH map[string]float64, preceding map[string][]*detector.Record) error {
	byEdge := map[string][]*detector.Record{}
	visualRows := make([]store.VisualValue, 0, len(readings))

	for _, reading := range readings {
		rec := Correct(reading, laneSpeedLimitKMH[reading.EdgeID], preceding[reading.CameraID])
		byEdge[reading.EdgeID] = append(byEdge[reading.EdgeID], rec)

		v := store.VisualValue{CameraID: reading.CameraID, EdgeID: reading.EdgeID, IntervalEnd: intervalEnd, Quality: rec.Quality}
		if rec.QPKW != nil {
			v.Flow = nullable(*rec.QPKW)
		}
		if rec.VPKW != nil {
			v.Speed = nullable(*rec.VPKW)
		}
		visualRows = append(visualRows, v)
	}

	if err := s.UpsertVisualValues(ctx, intervalEnd, visualRows); err != nil {
		return fmt.Errorf("persist visual values: %w", err)
	}

	rawRows := make([]store.RawSourceValue, 0, len(byEdge))
	for edgeID, recs := range byEdge {
		group := aggregator.NewGroup()
		for _, rec := range recs {
			group.AddDetector(rec.QPKW, rec.VPKW, rec.Quality, rec.Quality)
		}
		row := store.RawSourceValue{EdgeID: edgeID, IntervalEnd: intervalEnd, Quality: group.Quality(aggregator.Average), Coverage: group.Coverage()}
		if f := group.Flow(); f != nil {
			row.Flow = nullable(*f)
		}
		if sp := group.Speed(); sp != nil {
			row.Speed = nullable(*sp)
		}
		rawRows = append(rawRows, row)
	}

	if err := s.UpsertRawSourceValues(ctx, "visual", intervalEnd, rawRows); err != nil {
		return fmt.Errorf("persist visual raw source values: %w", err)
	}
	return nil
}

func nullable(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: true}
}
