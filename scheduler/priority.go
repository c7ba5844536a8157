// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scheduler

import (
	"supercore/internal/isrlock"
	"supercore/thread"
)

// Priority is the uniprocessor priority scheduler. It owns at most one
// processor; the heir is the first node of the most urgent non-empty
// ready chain.
type Priority struct {
	base
}

// NewPriority returns a uniprocessor priority scheduler instance.
func NewPriority(name string, maxPriority thread.Priority) *Priority {
	s := new(Priority)
	s.init(s, name, AlgorithmPriority, maxPriority, 1)
	return s
}

// Heir returns the thread selected to run, or nil if the instance owns
// no processor.
func (s *Priority) Heir() *thread.Thread {
	var lc isrlock.Context
	s.lock.Acquire(&lc)
	defer s.lock.Release(&lc)
	cpu := s.owned.First()
	if cpu < 0 || s.scheduled[cpu] == nil {
		return nil
	}
	return s.scheduled[cpu].owner
}

// HighestReady returns the priority of the most urgent ready node, or
// -1 if the ready queue is empty.
func (s *Priority) HighestReady() int {
	var lc isrlock.Context
	s.lock.Acquire(&lc)
	defer s.lock.Release(&lc)
	return s.ready.highest()
}

// PrioritySMP is the SMP priority scheduler. The most urgent ready
// nodes hold the owned processors. Nodes may run on every owned
// processor.
type PrioritySMP struct {
	base
}

// NewPrioritySMP returns an SMP priority scheduler instance.
func NewPrioritySMP(name string, maxPriority thread.Priority) *PrioritySMP {
	s := new(PrioritySMP)
	s.init(s, name, AlgorithmPrioritySMP, maxPriority, MaxProcessors)
	return s
}

// PriorityAffinitySMP is the SMP priority scheduler with processor
// affinity. A node only runs on processors of its affinity set; a more
// urgent node that may not use a processor does not preempt its holder.
type PriorityAffinitySMP struct {
	base
}

// NewPriorityAffinitySMP returns an SMP priority scheduler instance
// with processor affinity.
func NewPriorityAffinitySMP(name string, maxPriority thread.Priority) *PriorityAffinitySMP {
	s := new(PriorityAffinitySMP)
	s.init(s, name, AlgorithmPriorityAffinitySMP, maxPriority, MaxProcessors)
	s.allowed = func(n *Node) ProcessorSet { return n.affinity }
	return s
}

// SetAffinity restricts n to set. A set without any owned processor
// is rejected, since the node could never run.
func (s *PriorityAffinitySMP) SetAffinity(t *thread.Thread, n *Node, set ProcessorSet) bool {
	var lc isrlock.Context
	s.lock.Acquire(&lc)
	if set.And(s.owned).IsEmpty() {
		s.lock.Release(&lc)
		return false
	}
	n.affinity = set
	if n.queued {
		s.schedule()
	}
	s.release(&lc)
	return true
}
