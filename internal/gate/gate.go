// Package gate serializes access to a single resource. Waiters are served
// strictly in arrival order and an idle signal fires whenever nobody holds
// or waits for the gate.
package gate

import (
	"context"
	"sync"
)

// Gate is a FIFO mutual-exclusion gate. The zero value is not usable; call New.
type Gate struct {
	mu      sync.Mutex
	busy    bool
	waiters []chan struct{}
	idle    chan struct{} // closed while the gate is free and the queue empty
}

// New returns an idle Gate.
func New() *Gate {
	idle := make(chan struct{})
	close(idle)
	return &Gate{idle: idle}
}

// Acquire blocks until the caller owns the gate or ctx is done. Callers are
// granted the gate in the order Acquire was called.
func (g *Gate) Acquire(ctx context.Context) error {
	g.mu.Lock()
	if !g.busy {
		g.take()
		g.mu.Unlock()
		return nil
	}
	ready := make(chan struct{})
	g.waiters = append(g.waiters, ready)
	g.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
	}

	g.mu.Lock()
	for i, w := range g.waiters {
		if w == ready {
			g.waiters = append(g.waiters[:i], g.waiters[i+1:]...)
			g.mu.Unlock()
			return ctx.Err()
		}
	}
	g.mu.Unlock()

	// Ownership was handed over while we were giving up; pass it on.
	g.Release()
	return ctx.Err()
}

// TryAcquire takes the gate only if it is free and nobody is queued.
func (g *Gate) TryAcquire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.busy {
		return false
	}
	g.take()
	return true
}

// take marks the gate busy and re-arms the idle channel. Requires g.mu.
func (g *Gate) take() {
	g.busy = true
	select {
	case <-g.idle:
		g.idle = make(chan struct{})
	default:
	}
}

// Release hands the gate to the next waiter, or marks it free and signals
// idle when the queue is empty. Releasing a free gate panics.
func (g *Gate) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.busy {
		panic("gate: release of unlocked gate")
	}
	if len(g.waiters) > 0 {
		next := g.waiters[0]
		g.waiters[0] = nil
		g.waiters = g.waiters[1:]
		close(next)
		return
	}
	g.busy = false
	close(g.idle)
}

// Do runs fn while holding the gate and releases it on every exit path,
// including a panic in fn.
func (g *Gate) Do(ctx context.Context, fn func() error) error {
	if err := g.Acquire(ctx); err != nil {
		return err
	}
	defer g.Release()
	return fn()
}

// Busy reports whether someone holds the gate.
func (g *Gate) Busy() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.busy
}

// Pending returns the number of queued waiters.
func (g *Gate) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.waiters)
}

// Idle returns a channel that is closed once the gate is free with no
// waiters. A channel obtained while the gate is idle is already closed; a
// later acquisition arms a new one.
func (g *Gate) Idle() <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.idle
}
