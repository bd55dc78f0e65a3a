package window

import (
	"testing"
	"time"

	"github.com/DLR-TS/sumoldl/internal/detector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureGrowsDenseWithoutGaps(t *testing.T) {
	zero := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	w := New(zero, time.Minute)

	w.Ensure(zero.Add(3 * time.Minute))
	require.Equal(t, 4, w.Len(), "indices 0..3 with no gaps")

	_, ok := w.Slot(zero.Add(time.Minute))
	assert.True(t, ok, "expected an (empty) slot to exist at index 1")
}

func TestAdvanceDropsPrefixKeepsSuffix(t *testing.T) {
	zero := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	w := New(zero, time.Minute)

	slot := w.Ensure(zero.Add(2 * time.Minute))
	slot.Records["d1"] = &detector.Record{DetectorID: "d1"}

	w.Advance(zero.Add(2 * time.Minute))

	_, ok := w.Slot(zero)
	assert.False(t, ok, "expected slot at original zero to be dropped after Advance")

	got, ok := w.Slot(zero.Add(2 * time.Minute))
	require.True(t, ok, "expected the slot at the advance point to survive")
	assert.Equal(t, "d1", got.Records["d1"].DetectorID)
}

func TestEnumerateIncludesEmptySlotsInRange(t *testing.T) {
	zero := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	w := New(zero, time.Minute)

	w.Ensure(zero)
	w.Ensure(zero.Add(2 * time.Minute))

	slots := w.Enumerate(zero, zero.Add(2*time.Minute))
	require.Len(t, slots, 3, "index 1 is an empty-but-present slot")
}

func TestResetClearsEverything(t *testing.T) {
	zero := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	w := New(zero, time.Minute)
	w.Ensure(zero.Add(5 * time.Minute))

	w.Reset(zero)
	assert.Equal(t, 0, w.Len())
}

func TestDetectorsListsFleetAcrossSlots(t *testing.T) {
	zero := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	w := New(zero, time.Minute)
	w.Ensure(zero).Records["d1"] = &detector.Record{DetectorID: "d1"}
	w.Ensure(zero.Add(time.Minute)).Records["d2"] = &detector.Record{DetectorID: "d2"}

	ids := w.Detectors()
	assert.Len(t, ids, 2)
}
