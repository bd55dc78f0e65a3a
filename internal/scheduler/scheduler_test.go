package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DLR-TS/sumoldl/internal/timeutil"
)

func TestAlignNext(t *testing.T) {
	epoch := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	repeat := 5 * time.Minute
	from := epoch.Add(7 * time.Minute)
	got := AlignNext(epoch, repeat, from)
	want := epoch.Add(10 * time.Minute)
	if !got.Equal(want) {
		t.Fatalf("AlignNext = %v, want %v", got, want)
	}
}

func TestAlignNextExactMultiple(t *testing.T) {
	epoch := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	repeat := 5 * time.Minute
	from := epoch.Add(10 * time.Minute)
	got := AlignNext(epoch, repeat, from)
	if !got.Equal(from) {
		t.Fatalf("AlignNext at exact multiple = %v, want %v", got, from)
	}
}

func TestCatchUp(t *testing.T) {
	epoch := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	last := epoch
	upTo := epoch.Add(12 * time.Minute)
	got := CatchUp(last, upTo, 5*time.Minute)
	if len(got) != 2 {
		t.Fatalf("got %d catch-up steps, want 2", len(got))
	}
	if !got[0].Equal(epoch.Add(5*time.Minute)) || !got[1].Equal(epoch.Add(10*time.Minute)) {
		t.Fatalf("unexpected catch-up times: %v", got)
	}
}

func TestRunStepReportsError(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	wantErr := errors.New("boom")
	res := RunStep(context.Background(), clock, "test", clock.Now(), func(ctx context.Context, scheduledAt time.Time) (int, int, error) {
		return 1, 2, wantErr
	})
	if res.Err != wantErr {
		t.Fatalf("Err = %v, want %v", res.Err, wantErr)
	}
	if res.Warnings != 1 || res.Errors != 2 {
		t.Fatalf("unexpected counts: %+v", res)
	}
}

func TestBarrierReleaseThenWait(t *testing.T) {
	b := NewBarrier()
	b.Release(1)
	done := make(chan struct{})
	if ok := b.Wait(1, done); !ok {
		t.Fatal("expected Wait to return true after Release")
	}
}

func TestBarrierWaitUnblocksOnDone(t *testing.T) {
	b := NewBarrier()
	done := make(chan struct{})
	close(done)
	if ok := b.Wait(42, done); ok {
		t.Fatal("expected Wait to return false when done closes first")
	}
}

func TestBarrierWaitBlocksUntilRelease(t *testing.T) {
	b := NewBarrier()
	done := make(chan struct{})
	resultCh := make(chan bool, 1)
	go func() {
		resultCh <- b.Wait(7, done)
	}()

	select {
	case <-resultCh:
		t.Fatal("Wait returned before Release was called")
	case <-time.After(20 * time.Millisecond):
	}

	b.Release(7)
	select {
	case ok := <-resultCh:
		if !ok {
			t.Fatal("expected Wait to return true after Release")
		}
	case <-time.After(time.Second):
		t.Fatal("Wait did not unblock after Release")
	}
}
