// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package threadq

import "supercore/thread"

// Operations order the waiters of a queue.
type Operations interface {
	Name() string

	// Inherits reports whether waiters lend their priority to the
	// queue owner.
	Inherits() bool

	// insert adds w to the waiters of q.
	insert(q *Queue, w waiter)

	// reposition moves waiter i after a change of its priority.
	reposition(q *Queue, i int)
}

var (
	// FIFO resumes waiters in enqueue order.
	FIFO Operations = fifoOps{}

	// Priority resumes the most urgent waiter first, FIFO among
	// waiters of equal priority.
	Priority Operations = priorityOps{}

	// PriorityInherit orders like Priority and lends the priority of
	// the waiters to the queue owner.
	PriorityInherit Operations = priorityOps{inherit: true}
)

type fifoOps struct{}

func (fifoOps) Name() string   { return "fifo" }
func (fifoOps) Inherits() bool { return false }

func (fifoOps) insert(q *Queue, w waiter) {
	q.waiters = append(q.waiters, w)
}

func (fifoOps) reposition(q *Queue, i int) {}

type priorityOps struct {
	inherit bool
}

func (o priorityOps) Name() string {
	if o.inherit {
		return "priority-inherit"
	}
	return "priority"
}

func (o priorityOps) Inherits() bool { return o.inherit }

func before(a, b waiter) bool {
	if a.p != b.p {
		return a.p < b.p
	}
	return a.seq < b.seq
}

func (priorityOps) insert(q *Queue, w waiter) {
	i := len(q.waiters)
	for i > 0 && before(w, q.waiters[i-1]) {
		i--
	}
	q.waiters = append(q.waiters, waiter{})
	copy(q.waiters[i+1:], q.waiters[i:])
	q.waiters[i] = w
}

func (o priorityOps) reposition(q *Queue, i int) {
	w := q.waiters[i]
	q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
	o.insert(q, w)
}

// highestPriority returns the most urgent priority among the waiters
// of q. The queue lock is held and q has waiters.
func highestPriority(q *Queue) thread.Priority {
	p := q.waiters[0].t.CurrentPriority()
	for _, w := range q.waiters[1:] {
		p = p.Min(w.t.CurrentPriority())
	}
	return p
}
