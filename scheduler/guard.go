package scheduler

import "sync/atomic"

type guardState int32

const (
	guardIdle guardState = iota
	guardRunning
)

// Guard admits one cycle at a time. A cycle that finds the guard held is
// dropped by the caller, never queued.
type Guard struct {
	state atomic.Int32
}

// TryAcquire moves Idle to Running. It reports false when a cycle is
// already running.
func (g *Guard) TryAcquire() bool {
	return g.state.CompareAndSwap(int32(guardIdle), int32(guardRunning))
}

// Release returns the guard to Idle.
func (g *Guard) Release() {
	g.state.Store(int32(guardIdle))
}

// Running reports whether a cycle holds the guard.
func (g *Guard) Running() bool {
	return guardState(g.state.Load()) == guardRunning
}
