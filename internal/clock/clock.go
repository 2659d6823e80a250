// Package clock provides the kernel tick counter and the loop that drives it
// in real time.
package clock

import "sync/atomic"

// Source is a read-only, monotonically increasing tick counter.
type Source interface {
	Ticks() uint64
}

// Clock is the tick counter advanced by the timer interrupt.
type Clock struct {
	ticks atomic.Uint64
}

// New creates a clock at tick zero.
func New() *Clock { return &Clock{} }

// Ticks returns the current tick.
func (c *Clock) Ticks() uint64 { return c.ticks.Load() }

// Advance adds one tick and returns the new value.
func (c *Clock) Advance() uint64 { return c.ticks.Add(1) }
