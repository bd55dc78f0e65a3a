// Package timeidx provides the time-index and interval-rounding algebra
// shared by the detector corrector, aggregator, and extrapolator: every
// interval end in the pipeline is a multiple of an update interval counted
// from a fixed zero time, and every incoming timestamp first gets rounded
// onto that grid.
package timeidx

import "time"

// Rounding selects how a raw timestamp snaps onto the update-interval grid.
type Rounding int

const (
	Down Rounding = iota
	Up
	HalfUp
)

// Index returns the number of whole updateInterval steps between zero and
// t. It is the inverse of Time: Time(zero, updateInterval, Index(zero,
// updateInterval, t)) rounds t down onto the grid.
func Index(zero time.Time, updateInterval time.Duration, t time.Time) int64 {
	return int64(t.Sub(zero) / updateInterval)
}

// Time returns the grid time at idx steps of updateInterval past zero.
func Time(zero time.Time, updateInterval time.Duration, idx int64) time.Time {
	return zero.Add(time.Duration(idx) * updateInterval)
}

// Round snaps t onto the nearest updateInterval boundary measured from
// zero, using the requested rounding rule.
func Round(zero time.Time, updateInterval time.Duration, t time.Time, r Rounding) time.Time {
	elapsed := t.Sub(zero)
	steps := elapsed / updateInterval
	rem := elapsed % updateInterval

	switch r {
	case Down:
		// integer division already truncates toward zero; for negative
		// elapsed with a nonzero remainder that rounds up, correct it.
		if rem < 0 {
			steps--
		}
	case Up:
		if rem > 0 {
			steps++
		}
	case HalfUp:
		if rem < 0 {
			rem = -rem
			if int64OfDuration(2*rem) >= int64OfDuration(updateInterval) {
				steps--
			}
		} else if int64OfDuration(2*rem) >= int64OfDuration(updateInterval) {
			steps++
		}
	}
	return zero.Add(time.Duration(steps) * updateInterval)
}

func int64OfDuration(d time.Duration) int64 { return int64(d) }

// RoundToMinute rounds t to the nearest minute boundary using r, ignoring
// any sub-minute component. It aligns to the wall-clock minute,
// independent of any detector zero time.
func RoundToMinute(t time.Time, r Rounding) time.Time {
	truncated := t.Truncate(time.Minute)
	switch r {
	case Down:
		return truncated
	case Up:
		if t.After(truncated) {
			return truncated.Add(time.Minute)
		}
		return truncated
	case HalfUp:
		if t.Sub(truncated) >= 30*time.Second {
			return truncated.Add(time.Minute)
		}
		return truncated
	default:
		return truncated
	}
}

// DaySeconds returns the number of seconds elapsed since local midnight for
// t, for lining up the same time-of-day across different calendar days.
func DaySeconds(t time.Time) int {
	return t.Hour()*3600 + t.Minute()*60 + t.Second()
}
