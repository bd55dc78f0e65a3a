// Package scheduler drives the two periodic loops that keep the pipeline
// running: the detector loop (correct, aggregate, fuse, extrapolate every
// update interval) and the simulation loop (stage, run, harvest a SUMO
// iteration every route/calibration interval). cmd/sumoldl runs one loop
// per process, and the two share state only through the database; Barrier
// offers a per-interval rendezvous for running both in one process, and
// cmd/sumoldl does not use it.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/DLR-TS/sumoldl/internal/logging"
	"github.com/DLR-TS/sumoldl/internal/timeutil"
)

// StepFunc runs one iteration of a loop and reports how many warnings and
// errors it logged, for the run history summary.
type StepFunc func(ctx context.Context, scheduledAt time.Time) (warnings, errors int, err error)

// StepResult records one completed step's timing and outcome.
type StepResult struct {
	ScheduledAt time.Time
	StartedAt   time.Time
	Duration    time.Duration
	Warnings    int
	Errors      int
	Err         error
}

// RunStep executes fn, measuring wall-clock duration against clock and
// logging a one-line summary in the teacher's terse style.
func RunStep(ctx context.Context, clock timeutil.Clock, name string, scheduledAt time.Time, fn StepFunc) StepResult {
	started := clock.Now()
	warnings, errors, err := fn(ctx, scheduledAt)
	res := StepResult{
		ScheduledAt: scheduledAt,
		StartedAt:   started,
		Duration:    clock.Since(started),
		Warnings:    warnings,
		Errors:      errors,
		Err:         err,
	}
	if err != nil {
		logging.Logf("%s step for %s failed after %v: %v", name, scheduledAt.Format(time.RFC3339), res.Duration, err)
	} else {
		logging.Logf("%s step for %s completed in %v (warnings=%d errors=%d)", name, scheduledAt.Format(time.RFC3339), res.Duration, warnings, errors)
	}
	return res
}

// AlignNext returns the next scheduled time at or after from that is a
// multiple of repeat since epoch's zero, so independently-started loops
// still land on the same wall-clock grid.
func AlignNext(epoch time.Time, repeat time.Duration, from time.Time) time.Time {
	elapsed := from.Sub(epoch)
	steps := elapsed / repeat
	if elapsed%repeat != 0 {
		steps++
	}
	return epoch.Add(steps * repeat)
}

// CatchUp returns every scheduled time strictly between last and upTo,
// inclusive of upTo, spaced by repeat: the times a loop must still process
// after falling behind (a slow step, a paused process) before it can
// resume real-time operation.
func CatchUp(last time.Time, upTo time.Time, repeat time.Duration) []time.Time {
	var out []time.Time
	for t := last.Add(repeat); !t.After(upTo); t = t.Add(repeat) {
		out = append(out, t)
	}
	return out
}

// Describe renders a StepResult for the status endpoint / log tail.
func Describe(r StepResult) string {
	status := "ok"
	if r.Err != nil {
		status = "error: " + r.Err.Error()
	}
	return fmt.Sprintf("%s duration=%v warnings=%d errors=%d status=%s",
		r.ScheduledAt.Format(time.RFC3339), r.Duration, r.Warnings, r.Errors, status)
}
