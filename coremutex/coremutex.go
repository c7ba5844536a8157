// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package coremutex implements the core mutex.
//
// A mutex is a thread queue with an owner and a nest count. The
// discipline selects the order of the waiters and the priority
// protocol of the holder:
//
//	FIFO             waiters in arrival order, no protocol
//	Priority         waiters by priority, no protocol
//	PriorityInherit  waiters by priority, holder inherits their priority
//	PriorityCeiling  waiters by priority, holder runs at the ceiling
//
// Holders of inherit and ceiling mutexes count them as resources. A
// priority boost gained through a mutex is kept until the holder
// releases its last resource, or until the waiter it came from leaves
// without getting the mutex.
package coremutex

import (
	"fmt"
	"sync/atomic"

	"supercore/internal/states"
	"supercore/scheduler"
	"supercore/status"
	"supercore/thread"
	"supercore/threadq"
)

// A Discipline is the waiter order and priority protocol of a mutex.
type Discipline uint8

const (
	FIFO Discipline = iota
	Priority
	PriorityInherit
	PriorityCeiling
)

var disciplineNames = [...]string{
	FIFO:            "fifo",
	Priority:        "priority",
	PriorityInherit: "inherit",
	PriorityCeiling: "ceiling",
}

func (d Discipline) String() string {
	if int(d) < len(disciplineNames) {
		return disciplineNames[d]
	}
	return fmt.Sprintf("Discipline(%d)", uint8(d))
}

// ParseDiscipline returns the discipline named s.
func ParseDiscipline(s string) (Discipline, error) {
	for d, name := range disciplineNames {
		if name == s {
			return Discipline(d), nil
		}
	}
	return 0, fmt.Errorf("unknown mutex discipline %q", s)
}

func (d Discipline) operations() threadq.Operations {
	switch d {
	case FIFO:
		return threadq.FIFO
	case PriorityInherit:
		return threadq.PriorityInherit
	}
	return threadq.Priority
}

// hasProtocol reports whether holders count the mutex as a resource.
func (d Discipline) hasProtocol() bool {
	return d == PriorityInherit || d == PriorityCeiling
}

// A NestingBehavior says what happens when the holder seizes the
// mutex again.
type NestingBehavior uint8

const (
	// NestingAcquires increments the nest count.
	NestingAcquires NestingBehavior = iota

	// NestingIsError fails with status.NestingNotAllowed.
	NestingIsError

	// NestingBlocks treats the seize as a self-deadlock and fails
	// with status.Deadlock.
	NestingBlocks
)

func (n NestingBehavior) String() string {
	switch n {
	case NestingAcquires:
		return "acquires"
	case NestingIsError:
		return "is-error"
	case NestingBlocks:
		return "blocks"
	}
	return fmt.Sprintf("NestingBehavior(%d)", uint8(n))
}

// Attributes configure a mutex.
type Attributes struct {
	Discipline Discipline

	// OnlyOwnerRelease forbids a surrender by a thread other than
	// the holder.
	OnlyOwnerRelease bool

	// PriorityCeiling is the ceiling of a PriorityCeiling mutex.
	PriorityCeiling thread.Priority

	Nesting NestingBehavior
}

// A Mutex is a core mutex.
type Mutex struct {
	q    *threadq.Queue
	attr Attributes

	// nest is protected by the queue lock. The holder is the owner
	// of the queue.
	nest int

	// ceiling mirrors attr.PriorityCeiling for LentPriority.
	ceiling atomic.Uint32
}

// New returns an unlocked mutex with the given attributes whose waiters
// belong to domain d.
func New(d *threadq.Domain, name string, attr Attributes) *Mutex {
	m := &Mutex{
		q:    threadq.New(d, name, attr.Discipline.operations()),
		attr: attr,
	}
	m.ceiling.Store(uint32(attr.PriorityCeiling))
	return m
}

// LentPriority returns the priority the mutex lends its holder: the
// ceiling of a PriorityCeiling mutex or the most urgent waiter of a
// PriorityInherit mutex.
func (m *Mutex) LentPriority() (thread.Priority, bool) {
	switch m.attr.Discipline {
	case PriorityInherit:
		return m.q.LentPriority()
	case PriorityCeiling:
		return thread.Priority(m.ceiling.Load()), true
	}
	return 0, false
}

// Name returns the name of the mutex.
func (m *Mutex) Name() string { return m.q.Name() }

// Queue returns the wait queue of the mutex.
func (m *Mutex) Queue() *threadq.Queue { return m.q }

// Attributes returns the attributes of the mutex.
func (m *Mutex) Attributes() Attributes {
	var qc threadq.Context
	m.q.Acquire(&qc)
	a := m.attr
	m.q.Release(&qc)
	return a
}

// Holder returns the thread holding the mutex, or nil.
func (m *Mutex) Holder() *thread.Thread { return m.q.Owner() }

// NestCount returns the number of seizes not yet matched by a
// surrender.
func (m *Mutex) NestCount() int {
	var qc threadq.Context
	m.q.Acquire(&qc)
	n := m.nest
	m.q.Release(&qc)
	return n
}

// IsLocked reports whether the mutex has a holder.
func (m *Mutex) IsLocked() bool { return m.Holder() != nil }

// seizeLocked handles a seize that does not block. The queue lock is
// held. It reports whether the seize completed and whether the
// current priority of executing changed.
func (m *Mutex) seizeLocked(executing *thread.Thread) (code status.Code, done, boosted bool) {
	switch m.q.Owner() {
	case nil:
		if m.attr.Discipline == PriorityCeiling && executing.CurrentPriority().MoreUrgent(m.attr.PriorityCeiling) {
			return status.MutexCeilingViolated, true, false
		}
		m.q.SetOwner(executing)
		m.nest = 1
		if m.attr.Discipline.hasProtocol() {
			executing.AcquireResource(m)
		}
		if m.attr.Discipline == PriorityCeiling {
			boosted = executing.Boost(m.attr.PriorityCeiling)
		}
		return status.Successful, true, boosted
	case executing:
		switch m.attr.Nesting {
		case NestingAcquires:
			m.nest++
			return status.Successful, true, false
		case NestingIsError:
			return status.NestingNotAllowed, true, false
		}
		return status.Deadlock, true, false
	}
	return 0, false, false
}

// Seize acquires the mutex for executing.
//
// If the mutex is held by another thread and wait is false, Seize
// returns status.Unavailable. If wait is true, executing is enqueued
// with the timeout of qc and Seize returns status.Blocked; the outcome
// of the wait is the return code in executing.Wait, and on
// status.Successful executing is the holder. Seize returns
// status.Deadlock instead of blocking if the wait would close a cycle.
func (m *Mutex) Seize(executing *thread.Thread, wait bool, qc *threadq.Context) status.Code {
	m.q.Acquire(qc)
	code, done, boosted := m.seizeLocked(executing)
	if !done && wait {
		// Contended. Owner chains are walked under the path lock,
		// so start over with it held.
		m.q.Release(qc)
		m.q.AcquirePath(qc)
		code, done, boosted = m.seizeLocked(executing)
	}
	if done {
		m.q.Release(qc)
		if boosted {
			m.q.Domain().PriorityChanged(executing)
		}
		return code
	}
	if !wait {
		m.q.Release(qc)
		return status.Unavailable
	}
	qc.State = states.WaitingForMutex
	return m.q.Enqueue(executing, qc)
}

// Surrender releases the mutex on behalf of executing.
//
// A nested release only decrements the nest count. The final release
// hands the mutex to the first waiter, which is resumed as the new
// holder and receives the priority effect of the discipline. A boost
// of the old holder is dropped once it holds no other resources.
//
// Surrender fails with status.NotOwner if the mutex requires the
// holder to release it and executing is not the holder. Releasing an
// unlocked mutex is a no-op.
func (m *Mutex) Surrender(executing *thread.Thread, qc *threadq.Context) status.Code {
	m.q.Acquire(qc)
	holder := m.q.Owner()
	if m.attr.OnlyOwnerRelease && holder != executing {
		m.q.Release(qc)
		return status.NotOwner
	}
	if m.nest == 0 {
		m.q.Release(qc)
		return status.Successful
	}
	m.nest--
	if m.nest > 0 {
		m.q.Release(qc)
		return status.Successful
	}

	protocol := m.attr.Discipline.hasProtocol()
	if protocol {
		holder.ReleaseResource(m)
	}
	m.q.Surrender(qc, func(heir *thread.Thread) {
		m.nest = 1
		if !protocol {
			return
		}
		heir.AcquireResource(m)
		switch m.attr.Discipline {
		case PriorityInherit:
			m.q.BoostPriority(heir)
		case PriorityCeiling:
			if heir.Boost(m.attr.PriorityCeiling) {
				scheduler.UpdatePriority(heir)
			}
		}
	})

	if protocol {
		m.q.Domain().RestorePriority(holder)
	}
	return status.Successful
}

// SetPriorityCeiling changes the ceiling of a PriorityCeiling mutex
// and returns the previous one. A holder is raised to a more urgent
// ceiling at once; a less urgent ceiling takes effect for the next
// holder.
func (m *Mutex) SetPriorityCeiling(p thread.Priority) (thread.Priority, status.Code) {
	var qc threadq.Context
	m.q.Acquire(&qc)
	if m.attr.Discipline != PriorityCeiling {
		m.q.Release(&qc)
		return 0, status.InvalidNumber
	}
	old := m.attr.PriorityCeiling
	m.attr.PriorityCeiling = p
	m.ceiling.Store(uint32(p))
	holder := m.q.Owner()
	boosted := holder != nil && holder.Boost(p)
	m.q.Release(&qc)
	if boosted {
		m.q.Domain().PriorityChanged(holder)
	}
	return old, status.Successful
}

// Flush resumes all waiters with status.ObjectWasDeleted. It is used
// when the mutex is deleted. It returns the number of resumed waiters.
func (m *Mutex) Flush() int {
	return m.q.Flush(threadq.FlushStatusObjectWasDeleted)
}

// Destroy checks that the mutex may be discarded. A locked mutex is in
// use.
func (m *Mutex) Destroy() status.Code {
	if m.IsLocked() {
		return status.ResourceInUse
	}
	return m.q.Destroy()
}

func (m *Mutex) String() string {
	h := "-"
	if t := m.Holder(); t != nil {
		h = t.Name()
	}
	return fmt.Sprintf("%s(%v holder=%s nest=%d waiters=%d)", m.Name(), m.attr.Discipline, h, m.NestCount(), m.q.Len())
}
