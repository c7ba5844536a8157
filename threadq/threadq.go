// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package threadq implements thread queues.
//
// A thread queue holds the threads blocked on one synchronization
// object. Its Operations order the waiters (FIFO or by priority) and
// decide whether waiters lend their priority to the queue owner.
//
// A blocking operation acquires the queue lock, checks the object
// state and calls Enqueue, which releases the lock. The enqueued
// thread is resumed later by Extract, Flush or Surrender, or by its
// timeout. The wait flags of the thread decide which of a wakeup and a
// timeout completes the wait; the loser finds the thread no longer
// enqueued and does nothing.
//
// Lock order: domain path lock, queue lock, thread wait lock,
// scheduler locks. Only holders of the path lock may hold more than
// one queue lock.
package threadq

import (
	"sync/atomic"

	"supercore/fatal"
	"supercore/internal/isrlock"
	"supercore/internal/states"
	"supercore/status"
	"supercore/thread"
	"supercore/watchdog"
)

// An Observer is told about waits on the queues of a domain. It is
// called without queue locks held.
type Observer interface {
	Enqueued(q *Queue, t *thread.Thread)
	Dequeued(q *Queue, t *thread.Thread, waited uint64, code status.Code)
}

// A Domain holds the state shared by the queues of one system.
type Domain struct {
	// path serializes the walks along owner chains: deadlock
	// detection and transitive priority inheritance.
	path isrlock.Lock

	Clock    *watchdog.Header
	Fatal    fatal.Handler
	Observer Observer

	seq atomic.Uint64
}

// NewDomain returns a domain using clock for timeouts and h for fatal
// errors.
func NewDomain(clock *watchdog.Header, h fatal.Handler) *Domain {
	return &Domain{Clock: clock, Fatal: h}
}

func (d *Domain) ticks() uint64 {
	if d.Clock == nil {
		return 0
	}
	return d.Clock.Ticks()
}

// A DeadlockCallout selects what happens when an enqueue would close
// a cycle of owners and waiters.
type DeadlockCallout uint8

const (
	// DeadlockStatus makes the enqueue fail with status.Deadlock.
	DeadlockStatus DeadlockCallout = iota

	// DeadlockFatal raises InternalErrorThreadQueueDeadlock.
	DeadlockFatal
)

// A Context carries the parameters of one queue operation.
type Context struct {
	// Lock is the lock context of the queue acquisition. Its ISR
	// field may point at the interrupt mask of the processor the
	// caller runs on.
	Lock isrlock.Context

	// State is the thread state set by Enqueue.
	State states.State

	// Deadlock selects the deadlock callout of Enqueue.
	Deadlock DeadlockCallout

	timeout  uint64
	absolute bool
	path     bool
}

// SetRelativeTimeout makes Enqueue time out after ticks clock ticks.
// Zero means no timeout.
func (qc *Context) SetRelativeTimeout(ticks uint64) {
	qc.timeout = ticks
	qc.absolute = false
}

// SetAbsoluteTimeout makes Enqueue time out at clock tick when.
func (qc *Context) SetAbsoluteTimeout(when uint64) {
	qc.timeout = when
	qc.absolute = true
}

// SetNoTimeout makes Enqueue wait forever.
func (qc *Context) SetNoTimeout() {
	qc.timeout = 0
	qc.absolute = false
}

// A Queue is a thread queue.
type Queue struct {
	name string
	d    *Domain
	ops  Operations

	lock    isrlock.Lock
	waiters []waiter
	owner   atomic.Pointer[thread.Thread]

	// lent caches LentPriority plus one; zero means none. It is
	// written with the queue lock held.
	lent atomic.Uint32
}

type waiter struct {
	t   *thread.Thread
	p   thread.Priority
	seq uint64
}

// New returns an empty queue of domain d ordered by ops. The operations
// of a queue never change.
func New(d *Domain, name string, ops Operations) *Queue {
	return &Queue{name: name, d: d, ops: ops}
}

// Name returns the name of the queue.
func (q *Queue) Name() string { return q.name }

// Domain returns the domain of the queue.
func (q *Queue) Domain() *Domain { return q.d }

// Operations returns the operations of the queue.
func (q *Queue) Operations() Operations { return q.ops }

// Owner returns the owner of the queue, or nil. Waiters of a queue
// with an owner lend their priority to it if the operations inherit
// priority.
func (q *Queue) Owner() *thread.Thread { return q.owner.Load() }

// SetOwner sets the owner of the queue. The queue lock is held.
func (q *Queue) SetOwner(t *thread.Thread) { q.owner.Store(t) }

// Acquire disables interrupts and acquires the queue lock.
func (q *Queue) Acquire(qc *Context) {
	q.lock.Acquire(&qc.Lock)
}

// AcquirePath acquires the domain path lock and then the queue lock.
// It is required by Enqueue on queues with an owner.
func (q *Queue) AcquirePath(qc *Context) {
	q.d.path.Acquire(&qc.Lock)
	qc.path = true
	q.lock.AcquireCritical(&qc.Lock)
}

// Release releases the queue lock and, if held, the path lock.
func (q *Queue) Release(qc *Context) {
	if qc.path {
		q.lock.ReleaseCritical(&qc.Lock)
		qc.path = false
		q.d.path.Release(&qc.Lock)
		return
	}
	q.lock.Release(&qc.Lock)
}

// LentPriority returns the most urgent priority among the waiters of a
// priority inheritance queue. It takes no lock, so the holder of the
// queue may call it while its priority is recomputed.
func (q *Queue) LentPriority() (thread.Priority, bool) {
	v := q.lent.Load()
	if v == 0 {
		return 0, false
	}
	return thread.Priority(v - 1), true
}

// updateLent refreshes the cached lent priority. The queue lock is
// held.
func (q *Queue) updateLent() {
	if !q.ops.Inherits() || len(q.waiters) == 0 {
		q.lent.Store(0)
		return
	}
	q.lent.Store(uint32(highestPriority(q)) + 1)
}

// IsEmpty reports whether no thread waits on the queue. The queue lock
// is held.
func (q *Queue) IsEmpty() bool { return len(q.waiters) == 0 }

// Len returns the number of waiters.
func (q *Queue) Len() int {
	var qc Context
	q.Acquire(&qc)
	n := len(q.waiters)
	q.Release(&qc)
	return n
}

// FirstLocked returns the waiter that the operations would resume
// first, or nil. The queue lock is held.
func (q *Queue) FirstLocked() *thread.Thread {
	if len(q.waiters) == 0 {
		return nil
	}
	return q.waiters[0].t
}

// First returns the waiter that would be resumed first, or nil.
func (q *Queue) First() *thread.Thread {
	var qc Context
	q.Acquire(&qc)
	t := q.FirstLocked()
	q.Release(&qc)
	return t
}

// Waiters returns the waiters in the order they would be resumed.
func (q *Queue) Waiters() []*thread.Thread {
	var qc Context
	q.Acquire(&qc)
	ts := make([]*thread.Thread, len(q.waiters))
	for i, w := range q.waiters {
		ts[i] = w.t
	}
	q.Release(&qc)
	return ts
}

// Destroy checks that q may be discarded. A queue with waiters cannot
// be destroyed.
func (q *Queue) Destroy() status.Code {
	var qc Context
	q.Acquire(&qc)
	n := len(q.waiters)
	q.Release(&qc)
	fatal.Assert(n == 0, "threadq: destroy of queue "+q.name+" with waiters")
	if n != 0 {
		return status.ResourceInUse
	}
	return status.Successful
}

func (q *Queue) indexOf(t *thread.Thread) int {
	for i, w := range q.waiters {
		if w.t == t {
			return i
		}
	}
	return -1
}

// queueOf returns the thread queue t waits on, or nil.
func queueOf(t *thread.Thread) *Queue {
	q, _ := t.Wait.Queue().(*Queue)
	return q
}
