package aggregator

import (
	"context"
	"database/sql"
	"time"

	"github.com/DLR-TS/sumoldl/internal/store"
)

// Aggregator groups every edge's detectors and writes the rolled-up
// flow/speed/quality/coverage back through store for one interval at a time.
type Aggregator struct {
	Store   *store.Store
	Measure QualityMeasure

	// UpdateInterval is the cadence at which individual detector readings
	// arrive; it drives the flowScale conversion from a per-interval count
	// to vehicles/hour.
	UpdateInterval time.Duration

	// AggregationWindow is the span of time one Run call rolls up. For the
	// ordinary per-tick loop-detector path this equals UpdateInterval (one
	// sample per detector, no temporal coverage to track). A source that
	// batches several update-interval samples before aggregating (FCD,
	// simulation dumps) sets this wider than UpdateInterval so Group's
	// coverage/quality discount reflects samples actually received against
	// samples expected, rather than detectors reporting against detectors
	// grouped.
	AggregationWindow time.Duration

	// IsSimulation selects the simulation/prediction flow denominator
	// (entryCount) over the real-source one (groupCount).
	IsSimulation bool
}

// New returns an Aggregator writing through s.
func New(s *store.Store, measure QualityMeasure, updateInterval, aggregationWindow time.Duration, isSimulation bool) *Aggregator {
	return &Aggregator{
		Store:             s,
		Measure:           measure,
		UpdateInterval:    updateInterval,
		AggregationWindow: aggregationWindow,
		IsSimulation:      isSimulation,
	}
}

// Run aggregates every edge's detector readings for intervalEnd and writes
// the result through store.UpsertEdgeValues. Every detector listed in
// edgeDetectors counts toward its edge's group, whether or not readings has
// an entry for it: a detector silently missing from readings still drags
// down that edge's coverage, the same way a detector reporting only nulls
// would.
func (a *Aggregator) Run(ctx context.Context, intervalEnd time.Time, edgeDetectors map[string][]store.Detector, readings map[string]store.DetectorValue) error {
	flowScale := 0.0
	if a.UpdateInterval > 0 {
		flowScale = 3600.0 / a.UpdateInterval.Seconds()
	}
	expectedEntryCount := 0.0
	if a.UpdateInterval > 0 && a.AggregationWindow > a.UpdateInterval {
		expectedEntryCount = a.AggregationWindow.Seconds() / a.UpdateInterval.Seconds()
	}

	results := make([]store.EdgeValue, 0, len(edgeDetectors))

	for edgeID, dets := range edgeDetectors {
		group := NewScaledGroup(flowScale, expectedEntryCount, a.IsSimulation)
		for _, d := range dets {
			reading, ok := readings[d.DetectorID]
			if !ok {
				group.AddDetector(nil, nil, 0, 0)
				continue
			}
			var flow, speed *float64
			if reading.MergedFlow.Valid {
				v := reading.MergedFlow.Float64
				flow = &v
			}
			if reading.MergedSpeed.Valid {
				v := reading.MergedSpeed.Float64
				speed = &v
			}
			group.AddDetector(flow, speed, reading.Quality, reading.Quality)
		}

		ev := store.EdgeValue{
			EdgeID:      edgeID,
			IntervalEnd: intervalEnd,
			Quality:     group.Quality(a.Measure),
			Coverage:    group.Coverage(),
		}
		if f := group.Flow(); f != nil {
			ev.Flow = sql.NullFloat64{Float64: *f, Valid: true}
		}
		if s := group.Speed(); s != nil {
			ev.Speed = sql.NullFloat64{Float64: *s, Valid: true}
		}
		results = append(results, ev)
	}

	return a.Store.UpsertEdgeValues(ctx, intervalEnd, results)
}
