package pipeline

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	"github.com/DLR-TS/sumoldl/internal/schema"
	"github.com/DLR-TS/sumoldl/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := store.Open(path, schema.Default(""))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunFusionAndExtrapolationFusesLoopSource(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	interval := 5 * time.Minute
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.UpsertEdgeValues(ctx, now, []store.EdgeValue{
		{EdgeID: "e1", Flow: sql.NullFloat64{Float64: 300, Valid: true}, Speed: sql.NullFloat64{Float64: 20, Valid: true}, Quality: 90, Coverage: 1},
	}))

	_, errors, err := RunFusionAndExtrapolation(ctx, s, interval, []string{"e1"}, now, false, false)
	require.NoError(t, err)
	require.Zero(t, errors)

	fused, err := s.EdgeHistory(ctx, "fused", "e1", now, now)
	require.NoError(t, err)
	require.Len(t, fused, 1)

	want := store.EdgeValue{
		EdgeID:      "e1",
		IntervalEnd: now,
		Flow:        sql.NullFloat64{Float64: 300, Valid: true},
		Speed:       sql.NullFloat64{Float64: 20, Valid: true},
	}
	if diff := cmp.Diff(want, fused[0],
		cmpopts.IgnoreFields(store.EdgeValue{}, "Quality", "Coverage", "GEH")); diff != "" {
		t.Fatalf("fused row mismatch (-want +got):\n%s", diff)
	}

	extrapolated, err := s.EdgeHistory(ctx, "extrapolated", "e1", now, now)
	require.NoError(t, err)
	require.Len(t, extrapolated, 1)
	// no periodicity history exists yet, so the predictor falls back to the
	// fused value itself rather than leaving the row empty.
	require.True(t, extrapolated[0].Flow.Valid)
	require.Equal(t, 300.0, extrapolated[0].Flow.Float64)
}

func TestRunFusionAndExtrapolationPredictsFromPeriodicity(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	interval := time.Hour
	now := time.Date(2026, 1, 22, 8, 0, 0, 0, time.UTC)

	// seed three weeks of the same weekday/time-of-day fused history so the
	// smooth predictor has support at each of its TIME_OFFSETS.
	for _, offset := range []time.Duration{7 * 24 * time.Hour, 14 * 24 * time.Hour, 21 * 24 * time.Hour} {
		at := now.Add(-offset)
		require.NoError(t, s.UpsertEdgeValues(ctx, at, []store.EdgeValue{
			{EdgeID: "e1", Flow: sql.NullFloat64{Float64: 500, Valid: true}, Quality: 90, Coverage: 1},
		}))
		_, _, err := RunFusionAndExtrapolation(ctx, s, interval, []string{"e1"}, at, false, false)
		require.NoError(t, err)
	}

	require.NoError(t, s.UpsertEdgeValues(ctx, now, []store.EdgeValue{
		{EdgeID: "e1", Flow: sql.NullFloat64{Float64: 520, Valid: true}, Quality: 90, Coverage: 1},
	}))

	_, _, err := RunFusionAndExtrapolation(ctx, s, interval, []string{"e1"}, now, false, false)
	require.NoError(t, err)

	extrapolated, err := s.EdgeHistory(ctx, "extrapolated", "e1", now, now)
	require.NoError(t, err)
	require.Len(t, extrapolated, 1)
	require.True(t, extrapolated[0].Flow.Valid)
	require.True(t, extrapolated[0].GEH.Valid, "expected a GEH score once both a prediction and an actual exist")
}

func TestRunFusionAndExtrapolationFoldsInFCDSource(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	interval := 5 * time.Minute
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.UpsertEdgeValues(ctx, now, []store.EdgeValue{
		{EdgeID: "e1", Flow: sql.NullFloat64{Float64: 300, Valid: true}, Speed: sql.NullFloat64{Float64: 20, Valid: true}, Quality: 90, Coverage: 1},
	}))
	require.NoError(t, s.UpsertRawSourceValues(ctx, "fcd", now, []store.RawSourceValue{
		{EdgeID: "e1", Flow: sql.NullFloat64{Float64: 280, Valid: true}, Speed: sql.NullFloat64{Float64: 22, Valid: true}, Quality: 60, Coverage: 1},
	}))

	_, errors, err := RunFusionAndExtrapolation(ctx, s, interval, []string{"e1"}, now, true, false)
	require.NoError(t, err)
	require.Zero(t, errors)

	fused, err := s.EdgeHistory(ctx, "fused", "e1", now, now)
	require.NoError(t, err)
	require.Len(t, fused, 1)
	require.True(t, fused[0].Flow.Valid)
	// the fused flow must land strictly between the two independent
	// sources, reflecting both having contributed to the reconciliation.
	require.True(t, fused[0].Flow.Float64 > 280 && fused[0].Flow.Float64 < 300)
}

func TestRunFusionAndExtrapolationFoldsInVisualSource(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	interval := 5 * time.Minute
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.UpsertEdgeValues(ctx, now, []store.EdgeValue{
		{EdgeID: "e1", Flow: sql.NullFloat64{Float64: 300, Valid: true}, Speed: sql.NullFloat64{Float64: 20, Valid: true}, Quality: 90, Coverage: 1},
	}))
	require.NoError(t, s.UpsertRawSourceValues(ctx, "visual", now, []store.RawSourceValue{
		{EdgeID: "e1", Flow: sql.NullFloat64{Float64: 260, Valid: true}, Speed: sql.NullFloat64{Float64: 25, Valid: true}, Quality: 40, Coverage: 1},
	}))

	_, errors, err := RunFusionAndExtrapolation(ctx, s, interval, []string{"e1"}, now, false, true)
	require.NoError(t, err)
	require.Zero(t, errors)

	fused, err := s.EdgeHistory(ctx, "fused", "e1", now, now)
	require.NoError(t, err)
	require.Len(t, fused, 1)
	require.True(t, fused[0].Flow.Valid)
	require.True(t, fused[0].Flow.Float64 > 260 && fused[0].Flow.Float64 < 300)
}
