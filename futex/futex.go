// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package futex implements futexes: a thread queue plus the check of a
// caller-owned value, the building block of locks that implement their
// own fast path and priority policy.
//
// Waiters are resumed in FIFO order. Futexes do not lend priority.
package futex

import (
	"math"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"supercore/internal/states"
	"supercore/status"
	"supercore/thread"
	"supercore/threadq"
)

// A Futex is a FIFO thread queue.
type Futex struct {
	q *threadq.Queue
}

// New returns a futex whose waiters belong to domain d.
func New(d *threadq.Domain, name string) *Futex {
	return &Futex{q: threadq.New(d, name, threadq.FIFO)}
}

// Name returns the name of the futex.
func (f *Futex) Name() string { return f.q.Name() }

// Queue returns the wait queue of the futex.
func (f *Futex) Queue() *threadq.Queue { return f.q }

// Wait enqueues executing if *addr equals expected. The value is read
// with the queue lock held, so a Wake that follows a store to *addr
// cannot be missed.
//
// Wait returns nil once executing is enqueued; the wait ends with a
// Wake or with the timeout of qc. If *addr differs from expected it
// returns unix.EAGAIN without blocking, and unix.ETIMEDOUT if an
// absolute timeout of qc has already passed.
func (f *Futex) Wait(executing *thread.Thread, addr *atomic.Uint32, expected uint32, qc *threadq.Context) error {
	f.q.Acquire(qc)
	if addr.Load() != expected {
		f.q.Release(qc)
		return unix.EAGAIN
	}
	qc.State = states.WaitingForFutex
	if code := f.q.Enqueue(executing, qc); code != status.Blocked {
		return code.Errno()
	}
	return nil
}

// Wake resumes up to n waiters in FIFO order and returns the number
// resumed.
func (f *Futex) Wake(n int) int {
	var qc threadq.Context
	f.q.Acquire(&qc)
	if f.q.IsEmpty() {
		f.q.Release(&qc)
		return 0
	}
	return f.q.FlushCritical(threadq.FlushCount(n), &qc)
}

// WakeAll resumes all waiters.
func (f *Futex) WakeAll() int { return f.Wake(math.MaxInt) }

// Destroy checks that the futex may be discarded.
func (f *Futex) Destroy() error {
	return f.q.Destroy().Err()
}
