package scheduler

import (
	"context"
	"time"

	"github.com/DLR-TS/sumoldl/internal/timeutil"
)

// Loop drives one periodic step function on a fixed repeat interval,
// aligned to epoch, running any catch-up steps it fell behind on before
// resuming real-time pacing.
type Loop struct {
	Name    string
	Clock   timeutil.Clock
	Epoch   time.Time
	Repeat  time.Duration
	Step    StepFunc
	History []StepResult

	// MaxHistory bounds how many StepResults are retained for the status
	// endpoint; zero means unbounded.
	MaxHistory int
}

// Run blocks until ctx is cancelled, executing Step once per Repeat
// interval aligned to Epoch and catching up on any intervals missed while
// blocked on a slow prior step.
func (l *Loop) Run(ctx context.Context) {
	last := l.Epoch
	next := AlignNext(l.Epoch, l.Repeat, l.Clock.Now())

	for {
		timer := l.Clock.NewTimer(l.Clock.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C():
		}

		now := l.Clock.Now()
		for _, scheduled := range CatchUp(last, now, l.Repeat) {
			if ctx.Err() != nil {
				return
			}
			l.runOnce(ctx, scheduled)
			last = scheduled
		}

		next = last.Add(l.Repeat)
		if !next.After(now) {
			next = AlignNext(l.Epoch, l.Repeat, now)
		}
	}
}

func (l *Loop) runOnce(ctx context.Context, scheduled time.Time) {
	res := RunStep(ctx, l.Clock, l.Name, scheduled, l.Step)
	l.History = append(l.History, res)
	if l.MaxHistory > 0 && len(l.History) > l.MaxHistory {
		l.History = l.History[len(l.History)-l.MaxHistory:]
	}
}

// Status summarizes a loop's recent run history for the scheduler's
// status endpoint.
type Status struct {
	Name       string       `json:"name"`
	LastRun    *time.Time   `json:"last_run,omitempty"`
	LastStatus string       `json:"last_status,omitempty"`
	Recent     []StepResult `json:"-"`
}

// CurrentStatus builds a Status snapshot from the loop's retained history.
func (l *Loop) CurrentStatus() Status {
	s := Status{Name: l.Name, Recent: l.History}
	if len(l.History) == 0 {
		return s
	}
	last := l.History[len(l.History)-1]
	t := last.ScheduledAt
	s.LastRun = &t
	if last.Err != nil {
		s.LastStatus = "error"
	} else {
		s.LastStatus = "ok"
	}
	return s
}
