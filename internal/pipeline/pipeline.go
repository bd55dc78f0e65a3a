// Package pipeline wires the aggregator's per-edge output through the
// fusion engine and the historic-periodicity extrapolator, the two stages
// the detector-correction step doesn't own directly: aggregator → interval
// table → fusion → interval table → extrapolator → interval table.
package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/DLR-TS/sumoldl/internal/extrapolate"
	"github.com/DLR-TS/sumoldl/internal/fusion"
	"github.com/DLR-TS/sumoldl/internal/store"
)

// historyLookback covers the furthest periodicity offset (21 days) plus its
// smoothing width, the span the predictor needs loaded to score scheduledAt.
const historyLookback = 21*24*time.Hour + 2*time.Hour

// RunFusionAndExtrapolation fuses every edgeIDs' aggregated reading for
// scheduledAt into fused_values, then predicts and scores it against its own
// recent periodicity into extrapolated_values. The "loop" (induction
// detector) source always participates; when aggregateFCD is set, each
// edge's floating-car-data reading (written to raw_source_values under
// source "fcd" by the FCD aggregation pass) is folded in as fusion's
// second, lower-trust source; when aggregateVisual is set, each edge's
// camera-derived reading (source "visual", written by internal/visual) is
// folded in the same way, exercising Reconcile's post-fusion fixups against
// up to three genuinely independent inputs rather than one.
func RunFusionAndExtrapolation(ctx context.Context, s *store.Store, updateInterval time.Duration, edgeIDs []string, scheduledAt time.Time, aggregateFCD, aggregateVisual bool) (warnings, errors int, err error) {
	var fcdRows, visualRows map[string]store.RawSourceValue
	if aggregateFCD {
		fcdRows, err = s.RawSourceValues(ctx, "fcd", scheduledAt)
		if err != nil {
			return warnings, errors + 1, fmt.Errorf("read fcd raw values: %w", err)
		}
	}
	if aggregateVisual {
		visualRows, err = s.RawSourceValues(ctx, "visual", scheduledAt)
		if err != nil {
			return warnings, errors + 1, fmt.Errorf("read visual raw values: %w", err)
		}
	}

	fused := make([]store.EdgeValue, 0, len(edgeIDs))
	for _, edgeID := range edgeIDs {
		rows, err := s.EdgeHistory(ctx, "aggregated", edgeID, scheduledAt, scheduledAt)
		if err != nil {
			return warnings, errors + 1, fmt.Errorf("read aggregated %s: %w", edgeID, err)
		}
		fcd, hasFCD := fcdRows[edgeID]
		visual, hasVisual := visualRows[edgeID]
		if len(rows) == 0 && !hasFCD && !hasVisual {
			continue
		}
		var row store.EdgeValue
		if len(rows) > 0 {
			row = rows[0]
		} else {
			row = store.EdgeValue{EdgeID: edgeID, IntervalEnd: scheduledAt}
		}

		flowFusion, speedFusion := fusion.New(), fusion.New()
		if row.Flow.Valid {
			flowFusion.Add(row.Flow.Float64, row.Quality, "loop")
		}
		if row.Speed.Valid {
			speedFusion.Add(row.Speed.Float64, row.Quality, "loop")
		}
		if hasFCD {
			if fcd.Flow.Valid {
				flowFusion.Add(fcd.Flow.Float64, fcd.Quality, "fcd")
			}
			if fcd.Speed.Valid {
				speedFusion.Add(fcd.Speed.Float64, fcd.Quality, "fcd")
			}
		}
		if hasVisual {
			if visual.Flow.Valid {
				flowFusion.Add(visual.Flow.Float64, visual.Quality, "visual")
			}
			if visual.Speed.Valid {
				speedFusion.Add(visual.Speed.Float64, visual.Quality, "visual")
			}
		}

		var flowPtr, speedPtr *float64
		quality := row.Quality
		if v, q, ok := flowFusion.GetValueAndQualityPercent(); ok {
			flowPtr = &v
			quality = q
		}
		if v, _, ok := speedFusion.GetValueAndQualityPercent(); ok {
			speedPtr = &v
		}

		result := fusion.Reconcile(flowPtr, speedPtr, quality)
		ev := store.EdgeValue{EdgeID: edgeID, IntervalEnd: scheduledAt, Quality: result.Quality}
		if result.Flow != nil {
			ev.Flow = sql.NullFloat64{Float64: *result.Flow, Valid: true}
		}
		if result.Speed != nil {
			ev.Speed = sql.NullFloat64{Float64: *result.Speed, Valid: true}
		}
		fused = append(fused, ev)
	}

	if err := s.UpsertFusedValues(ctx, scheduledAt, fused); err != nil {
		return warnings, errors + 1, fmt.Errorf("persist fused values: %w", err)
	}

	extrapolated := make([]store.EdgeValue, 0, len(fused))
	for _, row := range fused {
		history, err := s.EdgeHistory(ctx, "fused", row.EdgeID, scheduledAt.Add(-historyLookback), scheduledAt.Add(-updateInterval))
		if err != nil {
			return warnings, errors + 1, fmt.Errorf("read fused history %s: %w", row.EdgeID, err)
		}
		samples := make([]extrapolate.Sample, 0, len(history))
		for _, h := range history {
			if h.Flow.Valid {
				samples = append(samples, extrapolate.Sample{T: h.IntervalEnd, Value: h.Flow.Float64})
			}
		}

		ev := store.EdgeValue{EdgeID: row.EdgeID, IntervalEnd: scheduledAt, Speed: row.Speed, Quality: row.Quality}

		var delta float64
		if n := len(samples); n > 0 {
			last := samples[n-1]
			if d, ok := extrapolate.GetCorrection(samples[:n-1], last, updateInterval); ok {
				delta = d
			}
		}

		predicted, ok := extrapolate.FeedbackPredictorAbsolute(samples, scheduledAt, updateInterval, delta)
		if ok && predicted < 0 {
			// The feedback delta can overshoot past zero (a large negative
			// correction applied to an already-small flow). A negative flow
			// would never survive the detector classifier's own fix
			// discipline, so it must not survive here either.
			ok = false
		}
		switch {
		case ok:
			ev.Flow = sql.NullFloat64{Float64: predicted, Valid: true}
		case row.Flow.Valid:
			// not enough periodicity history yet (a new deployment, or a
			// detector too young for even the 7-day offset): fall back to
			// the fused value itself rather than writing nothing.
			ev.Flow = row.Flow
		default:
			warnings++
		}

		if ok && row.Flow.Valid {
			g := extrapolate.GEH(predicted, row.Flow.Float64)
			ev.GEH = sql.NullFloat64{Float64: g, Valid: true}
		}
		ev.Quality = scoreRecentAccuracy(samples, updateInterval, row.Quality)

		extrapolated = append(extrapolated, ev)
	}

	if err := s.UpsertExtrapolatedValues(ctx, scheduledAt, extrapolated); err != nil {
		return warnings, errors + 1, fmt.Errorf("persist extrapolated values: %w", err)
	}
	return warnings, errors, nil
}

// scoreRecentAccuracy re-predicts each of the predictor's last
// extrapolate.ValidationWidth known points using only the samples that
// predated it, then averages the GEH-derived quality against what was
// actually observed there. fallback is returned unchanged when there isn't
// enough history to score against.
func scoreRecentAccuracy(samples []extrapolate.Sample, updateInterval time.Duration, fallback float64) float64 {
	n := len(samples)
	start := n - extrapolate.ValidationWidth
	if start < 0 {
		start = 0
	}

	var predicted, observed []float64
	for i := start; i < n; i++ {
		at := samples[i]
		if p, ok := extrapolate.SmoothPredictor(samples[:i], at.T, updateInterval); ok {
			predicted = append(predicted, p)
			observed = append(observed, at.Value)
		}
	}
	if len(predicted) == 0 {
		return fallback
	}
	return extrapolate.EstimateQuality(predicted, observed, false)
}
