package simdriver

import (
	"regexp"
	"strconv"
	"time"
)

// navteqPattern matches the legacy NavTeq validity expression
// "[(startOffsets){durationOffsets}]", e.g. "[(y2026M3d1){d7}]".
var navteqPattern = regexp.MustCompile(`^\[\((\w*)\)\{(\w*)\}\]$`)

// componentPattern splits a NavTeq offset string into its (letter, digits)
// pairs, e.g. "y2026M3d1" -> [{y 2026} {M 3} {d 1}].
var componentPattern = regexp.MustCompile(`([yMwdhms])(\d+)`)

// ParseNavTeqValidity parses a NavTeq restriction's validity expression into
// a concrete [begin, end) window and intersects it with [windowBegin,
// windowEnd), the simulation iteration's own span. It reports ok=false when
// the expression doesn't parse or the intersection is empty.
func ParseNavTeqValidity(expr string, windowBegin, windowEnd time.Time) (begin, end time.Time, ok bool) {
	m := navteqPattern.FindStringSubmatch(expr)
	if m == nil {
		return time.Time{}, time.Time{}, false
	}

	start := applyAbsolute(windowBegin, m[1])
	stop := applyDuration(start, m[2])
	if stop.Before(start) {
		start, stop = stop, start
	}

	if stop.Before(windowBegin) || start.After(windowEnd) {
		return time.Time{}, time.Time{}, false
	}
	if start.Before(windowBegin) {
		start = windowBegin
	}
	if stop.After(windowEnd) {
		stop = windowEnd
	}
	return start, stop, true
}

// applyAbsolute overwrites ref's year/month/day/hour/minute/second fields
// with whichever of "y2026M3d1h9m0s0" components are present, mirroring the
// original parser's field-by-field replace.
func applyAbsolute(ref time.Time, offsets string) time.Time {
	year, month, day := ref.Date()
	hour, minute, second := ref.Clock()

	for _, c := range componentPattern.FindAllStringSubmatch(offsets, -1) {
		n, err := strconv.Atoi(c[2])
		if err != nil {
			continue
		}
		switch c[1] {
		case "y":
			year = n
		case "M":
			month = time.Month(n)
		case "d":
			day = n
		case "h":
			hour = n
		case "m":
			minute = n
		case "s":
			second = n
		}
	}
	return time.Date(year, month, day, hour, minute, second, 0, ref.Location())
}

// applyDuration adds each present component of a NavTeq duration string to
// ref in order y, M, w, d, h, m, s.
func applyDuration(ref time.Time, offsets string) time.Time {
	t := ref
	for _, c := range componentPattern.FindAllStringSubmatch(offsets, -1) {
		n, err := strconv.Atoi(c[2])
		if err != nil {
			continue
		}
		switch c[1] {
		case "y":
			t = t.AddDate(n, 0, 0)
		case "M":
			t = t.AddDate(0, n, 0)
		case "w":
			t = t.AddDate(0, 0, 7*n)
		case "d":
			t = t.AddDate(0, 0, n)
		case "h":
			t = t.Add(time.Duration(n) * time.Hour)
		case "m":
			t = t.Add(time.Duration(n) * time.Minute)
		case "s":
			t = t.Add(time.Duration(n) * time.Second)
		}
	}
	return t
}
