// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package threadq

import (
	"supercore/fatal"
	"supercore/internal/isrlock"
	"supercore/internal/states"
	"supercore/scheduler"
	"supercore/status"
	"supercore/thread"
)

// maxPath bounds owner chain walks. A longer chain than there can be
// threads means the chain is corrupt.
const maxPath = thread.MaxThreads

// Enqueue blocks t on q. The queue lock is held and is released by
// Enqueue. For a queue with an owner the caller must have used
// AcquirePath.
//
// Enqueue returns status.Blocked once t is enqueued; the outcome of
// the wait is later reported through t.Wait. It returns
// status.Deadlock without enqueueing t if t directly or indirectly
// owns q, and status.Timeout if an absolute timeout has already
// passed.
func (q *Queue) Enqueue(t *thread.Thread, qc *Context) status.Code {
	d := q.d
	if t.Wait.Queue() != nil || !t.IsReady() {
		q.Release(qc)
		d.Fatal.Terminate(fatal.SourceCore, fatal.InternalErrorThreadQueueEnqueueFromBadState, t.Name())
	}

	owner := q.Owner()
	if owner != nil {
		fatal.Assert(qc.path, "threadq: enqueue on owned queue without path lock")
		if d.closesCycle(q, t) {
			q.Release(qc)
			if qc.Deadlock == DeadlockFatal {
				d.Fatal.Terminate(fatal.SourceCore, fatal.InternalErrorThreadQueueDeadlock, t.Name()+" on "+q.name)
			}
			t.Wait.SetReturnCode(status.Deadlock)
			return status.Deadlock
		}
	}

	now := d.ticks()
	if qc.absolute && qc.timeout <= now {
		q.Release(qc)
		t.Wait.SetReturnCode(status.Timeout)
		return status.Timeout
	}

	state := qc.State
	if state == 0 {
		state = states.Transient
	}
	t.Wait.Begin()
	t.Wait.State = state
	t.Wait.Seq = d.seq.Add(1)
	t.Wait.EnqueuedAt = now
	t.Wait.Claim(q)
	q.ops.insert(q, waiter{t: t, p: t.CurrentPriority(), seq: t.Wait.Seq})
	q.updateLent()

	if owner != nil && q.ops.Inherits() && qc.path {
		d.inherit(owner, t)
	}

	t.SetState(state)
	if qc.timeout != 0 && d.Clock != nil {
		arg := &timeoutArg{t: t, seq: t.Wait.Seq}
		if qc.absolute {
			d.Clock.InsertAbsolute(&t.Wait.Timer, qc.timeout, d.timeout, arg)
		} else {
			d.Clock.Insert(&t.Wait.Timer, qc.timeout, d.timeout, arg)
		}
	}
	q.Release(qc)

	if d.Observer != nil {
		d.Observer.Enqueued(q, t)
	}
	scheduler.Block(t)
	if !t.Wait.TryChangeFlags(thread.WaitIntendToBlock, thread.WaitBlocked) {
		// Extracted before it blocked; the extractor left the
		// unblock to us.
		d.unblock(q, t)
	}
	return status.Blocked
}

// closesCycle reports whether enqueueing t on q would make t wait for
// itself. The path lock is held.
func (d *Domain) closesCycle(q *Queue, t *thread.Thread) bool {
	o := q.Owner()
	for n := 0; o != nil && n < maxPath; n++ {
		if o == t {
			return true
		}
		next := queueOf(o)
		if next == nil {
			return false
		}
		o = next.Owner()
	}
	return false
}

// inherit lends the priority of waiter to owner and along the chain of
// owners reached through priority inheritance queues. The path lock and
// the lock of the queue waiter was enqueued on are held.
func (d *Domain) inherit(owner, waiter *thread.Thread) {
	p := waiter.CurrentPriority()
	home := scheduler.Home(waiter)
	o := owner
	for n := 0; o != nil && n < maxPath; n++ {
		changed := o.Boost(p)
		helped := false
		if oh := scheduler.Home(o); home != nil && oh != nil && oh != home {
			scheduler.AddHelper(o, home)
			helped = true
		}
		if !changed && !helped {
			return
		}
		scheduler.UpdatePriority(o)

		next := queueOf(o)
		if next == nil {
			return
		}
		var lc isrlock.Context
		next.lock.AcquireCritical(&lc)
		if queueOf(o) == next {
			next.repositionLocked(o)
		}
		inherits := next.ops.Inherits()
		o = next.Owner()
		next.lock.ReleaseCritical(&lc)
		if !inherits {
			return
		}
	}
}

// repositionLocked updates the order of waiter t after its priority
// changed. The queue lock is held.
func (q *Queue) repositionLocked(t *thread.Thread) {
	i := q.indexOf(t)
	if i < 0 {
		return
	}
	q.waiters[i].p = t.CurrentPriority()
	q.ops.reposition(q, i)
	q.updateLent()
}

// lowerLocked recomputes the priority of owner after a waiter of an
// inheriting queue it owns left or became less urgent, and carries a
// change along the chain of owners. The path lock is held.
func (d *Domain) lowerLocked(owner *thread.Thread) {
	o := owner
	for n := 0; o != nil && n < maxPath; n++ {
		if !o.Recompute() {
			return
		}
		scheduler.UpdatePriority(o)

		next := queueOf(o)
		if next == nil {
			return
		}
		var lc isrlock.Context
		next.lock.AcquireCritical(&lc)
		if queueOf(o) == next {
			next.repositionLocked(o)
		}
		inherits := next.ops.Inherits()
		o = next.Owner()
		next.lock.ReleaseCritical(&lc)
		if !inherits {
			return
		}
	}
}

// relinquish is lowerLocked for callers not holding the path lock. No
// queue lock is held.
func (d *Domain) relinquish(owner *thread.Thread) {
	var lc isrlock.Context
	d.path.Acquire(&lc)
	d.lowerLocked(owner)
	d.path.Release(&lc)
}

// PriorityChanged propagates a change of the current priority of t to
// its scheduler nodes, to the queue it waits on and, through priority
// inheritance, to the owners it waits for.
func (d *Domain) PriorityChanged(t *thread.Thread) {
	scheduler.UpdatePriority(t)
	var lc isrlock.Context
	d.path.Acquire(&lc)
	if q := queueOf(t); q != nil {
		var owner *thread.Thread
		var qlc isrlock.Context
		q.lock.AcquireCritical(&qlc)
		if queueOf(t) == q {
			q.repositionLocked(t)
			if o := q.Owner(); o != nil && q.ops.Inherits() {
				d.inherit(o, t)
				owner = o
			}
		}
		q.lock.ReleaseCritical(&qlc)
		if owner != nil {
			d.lowerLocked(owner)
		}
	}
	d.path.Release(&lc)
}

// BoostPriority raises the current priority of t to the most urgent
// priority among the waiters of q. The queue lock is held. It reports
// whether the current priority of t changed.
func (q *Queue) BoostPriority(t *thread.Thread) bool {
	if len(q.waiters) == 0 {
		return false
	}
	changed := t.Boost(highestPriority(q))
	helped := false
	if th := scheduler.Home(t); th != nil {
		for _, w := range q.waiters {
			if wh := scheduler.Home(w.t); wh != nil && wh != th {
				scheduler.AddHelper(t, wh)
				helped = true
			}
		}
	}
	if changed || helped {
		scheduler.UpdatePriority(t)
	}
	return changed
}

// RestorePriority drops the boosts of t once it holds no resources: its
// helping nodes are withdrawn and a pending restore is carried out. It
// reports whether the current priority changed.
func (d *Domain) RestorePriority(t *thread.Thread) bool {
	if t.ResourceCount() != 0 {
		return false
	}
	scheduler.RemoveHelpers(t)
	if !t.Restore() {
		return false
	}
	d.PriorityChanged(t)
	return true
}

// ExtractLocked removes t from q and sets its return code. The queue
// lock is held. It reports whether the caller must call Unblock after
// releasing the lock. Extracting a thread that does not wait on q is a
// no-op.
func (q *Queue) ExtractLocked(t *thread.Thread, code status.Code) bool {
	unblock, _ := q.extractLocked(t, code)
	return unblock
}

func (q *Queue) extractLocked(t *thread.Thread, code status.Code) (unblock, ok bool) {
	i := q.indexOf(t)
	if i < 0 || queueOf(t) != q {
		return false, false
	}
	q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
	q.updateLent()
	t.Wait.RestoreDefault()
	t.Wait.SetReturnCode(code)
	if t.Wait.TryChangeFlags(thread.WaitIntendToBlock, thread.WaitReadyAgain) {
		return false, true
	}
	t.Wait.SetFlags(thread.WaitReadyAgain)
	return true, true
}

// Extract removes t from q before it would be resumed normally, with
// return code status.Successful. It reports whether t was enqueued;
// extracting a thread twice is a no-op.
func (q *Queue) Extract(t *thread.Thread) bool {
	return q.ExtractWithCode(t, status.Successful)
}

// ExtractWithCode is like Extract with the given return code.
func (q *Queue) ExtractWithCode(t *thread.Thread, code status.Code) bool {
	var qc Context
	q.Acquire(&qc)
	unblock, ok := q.extractLocked(t, code)
	owner := q.inheritingOwner()
	q.Release(&qc)
	if ok && owner != nil {
		q.d.relinquish(owner)
	}
	if unblock {
		q.d.unblock(q, t)
	}
	return ok
}

// inheritingOwner returns the owner of q if its waiters lend it their
// priority, or nil. The queue lock is held.
func (q *Queue) inheritingOwner() *thread.Thread {
	if !q.ops.Inherits() {
		return nil
	}
	return q.Owner()
}

// Unblock resumes t after ExtractLocked asked for it.
func (q *Queue) Unblock(t *thread.Thread) {
	q.d.unblock(q, t)
}

// unblock resumes t after its wait on q ended. No queue lock is held.
func (d *Domain) unblock(q *Queue, t *thread.Thread) {
	if d.Clock != nil {
		d.Clock.Remove(&t.Wait.Timer)
	}
	code := t.Wait.ReturnCode()
	waited := d.ticks() - t.Wait.EnqueuedAt
	t.ClearState(t.Wait.State)
	scheduler.Unblock(t)
	if d.Observer != nil {
		d.Observer.Dequeued(q, t, waited, code)
	}
	t.Wait.Complete()
}

type timeoutArg struct {
	t   *thread.Thread
	seq uint64
}

// timeout is the watchdog function of a bounded wait. It competes with
// regular wakeups by extracting the thread under the queue lock; only
// the wait that armed the timer may be ended.
func (d *Domain) timeout(arg any) {
	a := arg.(*timeoutArg)
	q := queueOf(a.t)
	if q == nil {
		return
	}
	var qc Context
	q.Acquire(&qc)
	unblock, ok := false, false
	if queueOf(a.t) == q && a.t.Wait.Seq == a.seq {
		unblock, ok = q.extractLocked(a.t, status.Timeout)
	}
	owner := q.inheritingOwner()
	q.Release(&qc)
	if ok && owner != nil {
		d.relinquish(owner)
	}
	if unblock {
		d.unblock(q, a.t)
	}
}

// Surrender hands q to its first waiter, which becomes the owner and
// is resumed with status.Successful. The queue lock is held and is
// released by Surrender. If effect is not nil, it is called for the new
// owner with the queue lock held, before the new owner is resumed. The
// new owner is returned; if q has no waiters, its owner is cleared and
// Surrender returns nil.
func (q *Queue) Surrender(qc *Context, effect func(heir *thread.Thread)) *thread.Thread {
	heir := q.FirstLocked()
	if heir == nil {
		q.SetOwner(nil)
		q.Release(qc)
		return nil
	}
	unblock, _ := q.extractLocked(heir, status.Successful)
	q.SetOwner(heir)
	if effect != nil {
		effect(heir)
	}
	q.Release(qc)
	if unblock {
		q.d.unblock(q, heir)
	}
	return heir
}
