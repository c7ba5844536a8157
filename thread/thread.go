// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package thread defines the thread control block.
//
// A Thread is owned by the Registry that allocated it. Thread queues,
// mutexes and schedulers keep only back-pointers; the registry never
// hands out a Thread struct twice, so a back-pointer can never come to
// denote a different thread.
//
// The state and priority words are updated with atomic operations so
// that a scheduler holding its own lock can read them without taking
// the thread's locks. Whoever changes the state or priority of a thread
// must afterwards tell the scheduler, which reconciles its view with
// the values it reads.
package thread

import (
	"fmt"
	"sync/atomic"

	"supercore/fatal"
	"supercore/internal/isrlock"
	"supercore/internal/states"
)

// A SchedulerNode is the per-scheduler-instance data of a thread. It is
// implemented by package scheduler.
type SchedulerNode interface {
	Owner() *Thread
}

// A WaitQueue is a queue a thread can be enqueued on. It is
// implemented by package threadq.
type WaitQueue interface {
	Name() string
	Owner() *Thread
}

// A Resource is a mutex with a priority protocol held by a thread.
type Resource interface {
	// LentPriority returns the priority the resource lends its
	// holder, or ok == false if it lends none. It must not acquire
	// queue locks.
	LentPriority() (p Priority, ok bool)
}

// A SchedulerState is the state of a thread with respect to all the
// scheduler instances it has nodes in.
type SchedulerState uint8

const (
	SchedulerBlocked SchedulerState = iota
	SchedulerReady
	SchedulerScheduled
)

func (s SchedulerState) String() string {
	switch s {
	case SchedulerBlocked:
		return "blocked"
	case SchedulerReady:
		return "ready"
	case SchedulerScheduled:
		return "scheduled"
	}
	return fmt.Sprintf("SchedulerState(%d)", uint8(s))
}

// SchedulerInfo is the scheduler-owned part of a thread. All fields
// are protected by Lock, which is a leaf lock: it may be acquired while
// holding a scheduler lock but nothing may be acquired while holding
// it.
type SchedulerInfo struct {
	Lock isrlock.Lock

	State SchedulerState

	// Home is the node of the scheduler instance the thread belongs
	// to. Nodes starts with Home and continues with helping nodes in
	// other scheduler instances.
	Home  SchedulerNode
	Nodes []SchedulerNode

	// CPU is the index of the processor assigned to the thread, or
	// -1.
	CPU int

	// HelpRequested is set while the thread is ready but not
	// scheduled and has helping nodes that may find a processor.
	HelpRequested bool
}

// A Thread is a thread control block.
type Thread struct {
	id   ID
	name string
	idle bool

	state           atomic.Uint32 // states.State
	realPriority    atomic.Uint32
	currentPriority atomic.Uint32
	resourceCount   atomic.Int32
	restoreHint     atomic.Bool

	resLock   isrlock.Lock
	resources []Resource

	Wait      Wait
	Scheduler SchedulerInfo
}

func newThread(id ID, name string, p Priority, idle bool) *Thread {
	t := &Thread{id: id, name: name, idle: idle}
	t.state.Store(uint32(states.Dormant))
	t.realPriority.Store(uint32(p))
	t.currentPriority.Store(uint32(p))
	t.Scheduler.CPU = -1
	t.Wait.init()
	return t
}

func (t *Thread) ID() ID         { return t.id }
func (t *Thread) Name() string   { return t.name }
func (t *Thread) IsIdle() bool   { return t.idle }
func (t *Thread) String() string { return t.name }

// State returns the current state bits.
func (t *Thread) State() states.State { return states.State(t.state.Load()) }

// IsReady reports whether no blocking state bit is set.
func (t *Thread) IsReady() bool { return t.State().IsReady() }

// SetState adds the bits of mask to the state of t. It returns the
// previous state. If the previous state was ready, the caller must
// block t in its scheduler.
func (t *Thread) SetState(mask states.State) states.State {
	for {
		old := t.state.Load()
		if t.state.CompareAndSwap(old, old|uint32(mask)) {
			return states.State(old)
		}
	}
}

// ClearState removes the bits of mask from the state of t. It returns
// the previous state. If the new state is ready and the previous was
// not, the caller must unblock t in its scheduler.
func (t *Thread) ClearState(mask states.State) states.State {
	for {
		old := t.state.Load()
		if t.state.CompareAndSwap(old, old&^uint32(mask)) {
			return states.State(old)
		}
	}
}

// RealPriority returns the configured priority of t.
func (t *Thread) RealPriority() Priority { return Priority(t.realPriority.Load()) }

// CurrentPriority returns the priority t is scheduled with, including
// boosts from priority inheritance and priority ceilings.
func (t *Thread) CurrentPriority() Priority { return Priority(t.currentPriority.Load()) }

// ResourceCount returns the number of held mutexes with a priority
// protocol.
func (t *Thread) ResourceCount() int { return int(t.resourceCount.Load()) }

// RestoreHint reports whether a boost is pending removal.
func (t *Thread) RestoreHint() bool { return t.restoreHint.Load() }

// AcquireResource records that t holds r.
func (t *Thread) AcquireResource(r Resource) {
	var lc isrlock.Context
	t.resLock.Acquire(&lc)
	t.resources = append(t.resources, r)
	t.resourceCount.Add(1)
	t.resLock.Release(&lc)
}

// ReleaseResource records that t released r and returns the number of
// resources t still holds.
func (t *Thread) ReleaseResource(r Resource) int {
	var lc isrlock.Context
	t.resLock.Acquire(&lc)
	found := false
	for i, x := range t.resources {
		if x == r {
			t.resources = append(t.resources[:i], t.resources[i+1:]...)
			found = true
			break
		}
	}
	n := t.resourceCount.Load()
	if found {
		n = t.resourceCount.Add(-1)
	}
	t.resLock.Release(&lc)
	fatal.Assert(found, "thread: "+t.name+" releases a resource it does not hold")
	return int(n)
}

// Boost makes p the current priority of t if p is more urgent than
// the current priority. It sets the restore hint, so that the boost is
// dropped once t no longer holds resources, and reports whether the
// current priority changed.
func (t *Thread) Boost(p Priority) bool {
	for {
		cur := t.currentPriority.Load()
		if uint32(p) >= cur {
			return false
		}
		if t.currentPriority.CompareAndSwap(cur, uint32(p)) {
			t.restoreHint.Store(true)
			return true
		}
	}
}

// Restore drops all boosts of t if it holds no resources and a boost
// is pending removal. It reports whether the current priority changed.
func (t *Thread) Restore() bool {
	if t.resourceCount.Load() != 0 || !t.restoreHint.Load() {
		return false
	}
	t.restoreHint.Store(false)
	real := t.realPriority.Load()
	return t.currentPriority.Swap(real) != real
}

// Recompute sets the current priority of t to the most urgent of its
// real priority and the priorities lent by the resources it holds.
// Boosts whose source is gone are dropped. It reports whether the
// current priority changed.
func (t *Thread) Recompute() bool {
	var lc isrlock.Context
	t.resLock.Acquire(&lc)
	p := t.RealPriority()
	for _, r := range t.resources {
		if lent, ok := r.LentPriority(); ok {
			p = p.Min(lent)
		}
	}
	t.restoreHint.Store(p != t.RealPriority())
	old := t.currentPriority.Swap(uint32(p))
	t.resLock.Release(&lc)
	return old != uint32(p)
}

// SetRealPriority changes the configured priority of t. A thread that
// holds resources keeps its boosts: its current priority only moves if
// p is more urgent, and a less urgent p takes effect when the boosts
// are dropped. It reports whether the current priority changed.
func (t *Thread) SetRealPriority(p Priority) bool {
	t.realPriority.Store(uint32(p))
	if t.resourceCount.Load() == 0 {
		t.restoreHint.Store(false)
		return t.currentPriority.Swap(uint32(p)) != uint32(p)
	}
	for {
		cur := t.currentPriority.Load()
		if uint32(p) > cur {
			t.restoreHint.Store(true)
			return false
		}
		if uint32(p) == cur {
			return false
		}
		if t.currentPriority.CompareAndSwap(cur, uint32(p)) {
			return true
		}
	}
}

// CPU returns the index of the processor assigned to t, or -1.
func (t *Thread) CPU() int {
	var lc isrlock.Context
	t.Scheduler.Lock.Acquire(&lc)
	cpu := t.Scheduler.CPU
	t.Scheduler.Lock.Release(&lc)
	return cpu
}

// SchedulerState returns the scheduler state of t.
func (t *Thread) SchedulerState() SchedulerState {
	var lc isrlock.Context
	t.Scheduler.Lock.Acquire(&lc)
	s := t.Scheduler.State
	t.Scheduler.Lock.Release(&lc)
	return s
}
