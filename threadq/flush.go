// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package threadq

import (
	"supercore/status"
	"supercore/thread"
)

// A Filter selects the waiters removed by Flush. It is called with the
// queue lock held for each waiter in queue order and returns the return
// code for t, or ok == false to stop the flush before t.
type Filter func(t *thread.Thread, q *Queue, qc *Context) (code status.Code, ok bool)

// FlushDefault removes all waiters with status.Successful.
func FlushDefault(*thread.Thread, *Queue, *Context) (status.Code, bool) {
	return status.Successful, true
}

// FlushStatusUnavailable removes all waiters with status.Unavailable.
func FlushStatusUnavailable(*thread.Thread, *Queue, *Context) (status.Code, bool) {
	return status.Unavailable, true
}

// FlushStatusObjectWasDeleted removes all waiters with
// status.ObjectWasDeleted. It is used when the object owning the queue
// is deleted.
func FlushStatusObjectWasDeleted(*thread.Thread, *Queue, *Context) (status.Code, bool) {
	return status.ObjectWasDeleted, true
}

// FlushCount returns a filter removing at most n waiters with
// status.Successful.
func FlushCount(n int) Filter {
	return func(*thread.Thread, *Queue, *Context) (status.Code, bool) {
		if n <= 0 {
			return 0, false
		}
		n--
		return status.Successful, true
	}
}

// FlushCritical removes the waiters selected by filter and resumes
// them. The queue lock is held and is released by FlushCritical. It
// returns the number of removed waiters.
func (q *Queue) FlushCritical(filter Filter, qc *Context) int {
	var resume []*thread.Thread
	n := 0
	for len(q.waiters) > 0 {
		t := q.waiters[0].t
		code, ok := filter(t, q, qc)
		if !ok {
			break
		}
		// A waiter extracted before it blocked is resumed by its
		// enqueuer.
		if unblock, _ := q.extractLocked(t, code); unblock {
			resume = append(resume, t)
		}
		n++
	}
	owner := q.inheritingOwner()
	q.Release(qc)
	if n > 0 && owner != nil {
		q.d.relinquish(owner)
	}
	for _, t := range resume {
		q.d.unblock(q, t)
	}
	return n
}

// Flush acquires the queue lock and calls FlushCritical.
func (q *Queue) Flush(filter Filter) int {
	var qc Context
	q.Acquire(&qc)
	return q.FlushCritical(filter, &qc)
}
