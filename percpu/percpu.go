// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package percpu holds the per-processor control of a system.
//
// Each processor has an executing thread and an heir. The scheduler
// owning a processor sets its heir; a dispatch makes the heir the
// executing thread. The executing thread of a processor changes only
// through Dispatch.
package percpu

import (
	"fmt"

	"golang.org/x/sys/cpu"

	"supercore/internal/isrlock"
	"supercore/thread"
)

// A CPU is the control of one processor.
type CPU struct {
	_ cpu.CacheLinePad

	index int

	// ISR is the interrupt mask of the processor. Lock contexts of
	// code running on the processor point to it.
	ISR isrlock.Interrupts

	lock              isrlock.Lock
	executing         *thread.Thread
	heir              *thread.Thread
	dispatchNecessary bool
	online            bool
	dispatches        uint64

	_ cpu.CacheLinePad
}

// Index returns the processor index.
func (c *CPU) Index() int { return c.index }

func (c *CPU) String() string { return fmt.Sprintf("cpu%d", c.index) }

// Context returns a lock context for code running on c.
func (c *CPU) Context() isrlock.Context { return isrlock.Context{ISR: &c.ISR} }

// SetHeir makes t the heir of c and requests a dispatch if t differs
// from the executing thread. The caller holds the lock of the scheduler
// owning c.
func (c *CPU) SetHeir(t *thread.Thread) {
	var lc isrlock.Context
	c.lock.Acquire(&lc)
	c.heir = t
	if t != c.executing {
		c.dispatchNecessary = true
	}
	c.lock.Release(&lc)
}

// Heir returns the thread selected to run next on c.
func (c *CPU) Heir() *thread.Thread {
	var lc isrlock.Context
	c.lock.Acquire(&lc)
	t := c.heir
	c.lock.Release(&lc)
	return t
}

// Executing returns the thread running on c.
func (c *CPU) Executing() *thread.Thread {
	var lc isrlock.Context
	c.lock.Acquire(&lc)
	t := c.executing
	c.lock.Release(&lc)
	return t
}

// DispatchNecessary reports whether the heir differs from the
// executing thread.
func (c *CPU) DispatchNecessary() bool {
	var lc isrlock.Context
	c.lock.Acquire(&lc)
	d := c.dispatchNecessary
	c.lock.Release(&lc)
	return d
}

// Dispatch makes the heir the executing thread. It reports whether a
// context switch took place.
func (c *CPU) Dispatch() bool {
	var lc isrlock.Context
	c.lock.Acquire(&lc)
	defer c.lock.Release(&lc)
	if !c.dispatchNecessary {
		return false
	}
	c.dispatchNecessary = false
	if c.executing == c.heir {
		return false
	}
	c.executing = c.heir
	c.dispatches++
	return true
}

// Dispatches returns the number of context switches on c.
func (c *CPU) Dispatches() uint64 {
	var lc isrlock.Context
	c.lock.Acquire(&lc)
	n := c.dispatches
	c.lock.Release(&lc)
	return n
}

// IsOnline reports whether c is owned by a scheduler instance.
func (c *CPU) IsOnline() bool {
	var lc isrlock.Context
	c.lock.Acquire(&lc)
	o := c.online
	c.lock.Release(&lc)
	return o
}

// SetOnline records whether c is owned by a scheduler instance. A
// processor going offline drops its heir and executing thread.
func (c *CPU) SetOnline(online bool) {
	var lc isrlock.Context
	c.lock.Acquire(&lc)
	c.online = online
	if !online {
		c.heir = nil
		c.executing = nil
		c.dispatchNecessary = false
	}
	c.lock.Release(&lc)
}

// A Table is the processor table of a system. Its size is fixed at
// boot.
type Table struct {
	cpus []*CPU
}

// NewTable returns a table of n offline processors.
func NewTable(n int) *Table {
	t := &Table{cpus: make([]*CPU, n)}
	for i := range t.cpus {
		t.cpus[i] = &CPU{index: i}
	}
	return t
}

// Len returns the number of processors.
func (t *Table) Len() int { return len(t.cpus) }

// Get returns processor i, or nil if i is out of range.
func (t *Table) Get(i int) *CPU {
	if i < 0 || i >= len(t.cpus) {
		return nil
	}
	return t.cpus[i]
}

// All returns all processors in index order.
func (t *Table) All() []*CPU { return t.cpus }

// DispatchAll dispatches every processor with a pending dispatch and
// returns the number of context switches.
func (t *Table) DispatchAll() int {
	n := 0
	for _, c := range t.cpus {
		if c.Dispatch() {
			n++
		}
	}
	return n
}
