// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package isrlock implements interrupt-disable locks.
//
// An ISR lock disables interrupts on the local processor and then
// acquires a lock shared by all processors. The interrupt level seen
// before the acquisition is saved in a Context and restored by the
// matching release, so nested acquisitions unwind correctly.
//
// Usage:
//
//	var lc isrlock.Context
//	l.Acquire(&lc)
//	defer l.Release(&lc)
package isrlock

import (
	"sync"
	"sync/atomic"
)

// A Level is a saved interrupt level. Zero means interrupts are
// enabled.
type Level uint32

// Interrupts is the interrupt mask of one processor.
type Interrupts struct {
	level    atomic.Uint32
	disables atomic.Uint64
}

// Disable disables interrupts and returns the previous level.
func (i *Interrupts) Disable() Level {
	i.disables.Add(1)
	return Level(i.level.Swap(1))
}

// Enable restores a level returned by Disable.
func (i *Interrupts) Enable(l Level) {
	i.level.Store(uint32(l))
}

// IsEnabled reports whether interrupts are enabled.
func (i *Interrupts) IsEnabled() bool {
	return i.level.Load() == 0
}

// Disables returns the number of Disable calls so far.
func (i *Interrupts) Disables() uint64 {
	return i.disables.Load()
}

// A Context saves the interrupt state of one lock acquisition. ISR is
// the interrupt mask of the processor performing the acquisition; it
// may be nil when the caller does not run on a simulated processor,
// in which case only mutual exclusion is provided.
type Context struct {
	ISR   *Interrupts
	level Level
}

// Disable disables interrupts and remembers the previous level.
func (lc *Context) Disable() {
	if lc.ISR != nil {
		lc.level = lc.ISR.Disable()
	}
}

// Enable restores the level saved by Disable.
func (lc *Context) Enable() {
	if lc.ISR != nil {
		lc.ISR.Enable(lc.level)
	}
}

// A Lock is an ISR lock. The zero value is an unlocked lock.
type Lock struct {
	mu   sync.Mutex
	held atomic.Bool
}

// Acquire disables interrupts and acquires l.
func (l *Lock) Acquire(lc *Context) {
	lc.Disable()
	l.AcquireCritical(lc)
}

// Release releases l and restores the interrupt level saved by
// Acquire.
func (l *Lock) Release(lc *Context) {
	l.ReleaseCritical(lc)
	lc.Enable()
}

// AcquireCritical acquires l. Interrupts must already be disabled.
func (l *Lock) AcquireCritical(lc *Context) {
	l.mu.Lock()
	l.held.Store(true)
}

// ReleaseCritical releases l and leaves interrupts disabled.
func (l *Lock) ReleaseCritical(lc *Context) {
	l.held.Store(false)
	l.mu.Unlock()
}

// IsHeld reports whether some processor holds l. It is meant for
// assertions only.
func (l *Lock) IsHeld() bool {
	return l.held.Load()
}
