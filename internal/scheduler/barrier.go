package scheduler

import "sync"

// Barrier is a per-interval rendezvous point: Wait blocks until another
// goroutine calls Release for the same interval index. It lets a
// simulation loop wait for a detector loop's fused values when both run as
// goroutines in one process, in place of the original pipeline's
// STOP/CONT signal handshake between two OS processes. cmd/sumoldl runs a
// single loop per process and does not use it.
type Barrier struct {
	mu      sync.Mutex
	reached map[int64]chan struct{}
}

// NewBarrier returns a ready Barrier.
func NewBarrier() *Barrier {
	return &Barrier{reached: map[int64]chan struct{}{}}
}

func (b *Barrier) channelFor(intervalIdx int64) chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.reached[intervalIdx]
	if !ok {
		ch = make(chan struct{})
		b.reached[intervalIdx] = ch
	}
	return ch
}

// Release marks intervalIdx as reached, waking any waiters blocked on it.
// Safe to call more than once for the same interval.
func (b *Barrier) Release(intervalIdx int64) {
	ch := b.channelFor(intervalIdx)
	select {
	case <-ch:
		// already released
	default:
		close(ch)
	}
}

// Wait blocks until intervalIdx has been released, or done is closed.
// Unlike a sync.Cond-based wait, this never leaves a goroutine parked: the
// channel is just selected on directly, so a Wait that loses the race to
// done returns immediately and nothing is left running.
func (b *Barrier) Wait(intervalIdx int64, done <-chan struct{}) bool {
	ch := b.channelFor(intervalIdx)
	select {
	case <-ch:
		return true
	case <-done:
		return false
	}
}

// Forget drops bookkeeping for intervalIdx once both loops have moved past
// it, keeping the reached map from growing without bound over a long-running
// process.
func (b *Barrier) Forget(intervalIdx int64) {
	b.mu.Lock()
	delete(b.reached, intervalIdx)
	b.mu.Unlock()
}
