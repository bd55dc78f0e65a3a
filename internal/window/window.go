// Package window implements the per-update-interval sliding window the
// detector corrector advances over: a dense, quantized-time-indexed array of
// records per detector that grows forward and discards its tail, rather than
// an unbounded history scan on every step.
package window

import (
	"time"

	"github.com/DLR-TS/sumoldl/internal/detector"
	"github.com/DLR-TS/sumoldl/internal/timeidx"
)

// Slot holds every detector's record for one interval end.
type Slot struct {
	IntervalEnd time.Time
	Records     map[string]*detector.Record
}

// Window is a dense, positionally-indexed array of Slots covering
// [zeroIndexTime, zeroIndexTime + len*updateInterval), one slot per detector
// update interval. Every index in that span always holds a Slot (its Records
// map may simply be empty); advancing drops the prefix and appends empty
// slots to the suffix, so indices never skip, matching the "arena with
// indices, not a graph" shape the corrector and aggregator both walk.
type Window struct {
	updateInterval time.Duration
	zero           time.Time
	slots          []*Slot // positional; every index up to len(slots) is non-nil
}

// New creates an empty Window anchored at zero with the given step size.
func New(zero time.Time, updateInterval time.Duration) *Window {
	return &Window{updateInterval: updateInterval, zero: zero}
}

func (w *Window) indexOf(t time.Time) int {
	return int(timeidx.Index(w.zero, w.updateInterval, t))
}

func (w *Window) timeOf(idx int) time.Time {
	return timeidx.Time(w.zero, w.updateInterval, int64(idx))
}

// Reset discards every slot, re-anchoring the window as empty at zero.
func (w *Window) Reset(zero time.Time) {
	w.zero = zero
	w.slots = nil
}

// Ensure returns the Slot for intervalEnd, extending the array (filling every
// newly-created index with its own empty Slot, never leaving a gap) if
// intervalEnd falls outside the array's current span.
func (w *Window) Ensure(intervalEnd time.Time) *Slot {
	idx := w.indexOf(intervalEnd)
	if idx < 0 {
		// intervalEnd precedes the window's zero; rebase so idx becomes 0
		// and every existing slot shifts right rather than silently dropping.
		shift := -idx
		w.zero = intervalEnd
		grown := make([]*Slot, len(w.slots)+shift)
		for i := range grown[:shift] {
			grown[i] = &Slot{IntervalEnd: w.timeOf(i), Records: map[string]*detector.Record{}}
		}
		copy(grown[shift:], w.slots)
		w.slots = grown
		idx = 0
	}
	if idx >= len(w.slots) {
		grown := make([]*Slot, idx+1)
		copy(grown, w.slots)
		for i := len(w.slots); i < len(grown); i++ {
			grown[i] = &Slot{IntervalEnd: w.timeOf(i), Records: map[string]*detector.Record{}}
		}
		w.slots = grown
	}
	return w.slots[idx]
}

// Slot returns the slot for intervalEnd, or false if intervalEnd falls
// outside the array's current span.
func (w *Window) Slot(intervalEnd time.Time) (*Slot, bool) {
	idx := w.indexOf(intervalEnd)
	if idx < 0 || idx >= len(w.slots) {
		return nil, false
	}
	return w.slots[idx], true
}

// Advance drops every slot older than cutoff from the prefix, matching the
// "prefix dropped, suffix extended with nulls" invariant: the backing array
// is re-anchored at cutoff's index rather than compacted out of order.
func (w *Window) Advance(cutoff time.Time) {
	cutIdx := w.indexOf(cutoff)
	if cutIdx <= 0 || cutIdx > len(w.slots) {
		return
	}
	w.slots = append([]*Slot(nil), w.slots[cutIdx:]...)
	w.zero = w.timeOf(cutIdx)
}

// Enumerate returns every slot between from and to (inclusive) that falls
// within the array's current span, ordered by interval end ascending; a slot
// outside the span is omitted rather than synthesized.
func (w *Window) Enumerate(from, to time.Time) []*Slot {
	fromIdx, toIdx := w.indexOf(from), w.indexOf(to)
	if fromIdx < 0 {
		fromIdx = 0
	}
	if toIdx >= len(w.slots) {
		toIdx = len(w.slots) - 1
	}
	var out []*Slot
	for idx := fromIdx; idx <= toIdx; idx++ {
		if idx >= 0 && idx < len(w.slots) {
			out = append(out, w.slots[idx])
		}
	}
	return out
}

// Len returns the number of positional slots currently held (including
// slots with empty Records maps within the array's span).
func (w *Window) Len() int { return len(w.slots) }

// Bounds returns the window's [zeroIndexTime, zeroIndexTime+len*step) span,
// or the zero time twice if the window is empty.
func (w *Window) Bounds() (oldest, newest time.Time) {
	if len(w.slots) == 0 {
		return time.Time{}, time.Time{}
	}
	return w.zero, w.timeOf(len(w.slots))
}

// Detectors returns the set of detector ids that have at least one record in
// the window's current span, for callers that need to enumerate the fleet
// currently under the window without a separate store round trip.
func (w *Window) Detectors() []string {
	seen := map[string]struct{}{}
	for _, s := range w.slots {
		if s == nil {
			continue
		}
		for id := range s.Records {
			seen[id] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	return out
}
