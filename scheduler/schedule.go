// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scheduler

import (
	"supercore/internal/isrlock"
	"supercore/thread"
)

// schedule recomputes the scheduled nodes of b. The lock of b is held.
//
// Nodes are visited in order of decreasing urgency. Each visited node
// takes one of the free processors it may use: its current processor
// if possible, otherwise the processor of the least urgent scheduled
// node. If none of its processors is free, nodes placed before it are
// moved to other free processors they may use to make room. A node
// whose thread runs in another instance is passed over.
func (b *base) schedule() {
	var pl placement
	b.ready.each(func(n *Node) bool {
		if pl.used == b.owned {
			return false
		}
		if !b.claimable(n) {
			return true
		}
		if n.IsIdle() {
			if cand := b.allowedCPUs(n) &^ pl.used; !cand.IsEmpty() {
				pl.put(n, n.idleCPU)
			}
			return true
		}
		var seen ProcessorSet
		b.place(&pl, n, &seen)
		return true
	})

	var next [MaxProcessors]*Node
	for cpu, n := range pl.next {
		if n == nil {
			continue
		}
		if !b.claim(n, cpu) {
			n.next = -1
			if n = b.idle[cpu]; n == nil || !b.claim(n, cpu) {
				continue
			}
			n.next = cpu
		}
		next[cpu] = n
	}

	for cpu, n := range b.scheduled {
		if n != nil && n.next < 0 {
			b.unschedule(n, cpu)
		}
	}
	for cpu, n := range next {
		if n == nil {
			continue
		}
		n.next = -1
		n.state = NodeScheduled
		n.cpu = cpu
		if b.cpus[cpu] != nil {
			b.cpus[cpu].SetHeir(n.owner)
		}
	}
	b.scheduled = next
}

// A placement assigns nodes to processors during one schedule pass.
type placement struct {
	next [MaxProcessors]*Node
	used ProcessorSet
}

func (pl *placement) put(n *Node, cpu int) {
	pl.next[cpu] = n
	pl.used = pl.used.Add(cpu)
	n.next = cpu
}

// place finds a processor for n. If all processors n may use are
// taken, it recursively moves their nodes to other processors; seen
// holds the processors already being freed.
func (b *base) place(pl *placement, n *Node, seen *ProcessorSet) bool {
	cand := b.allowedCPUs(n) &^ *seen
	if free := cand &^ pl.used; !free.IsEmpty() {
		pl.put(n, b.pickCPU(n, free))
		return true
	}
	for cpu := 0; cpu < MaxProcessors; cpu++ {
		if !cand.Has(cpu) || seen.Has(cpu) {
			continue
		}
		*seen = seen.Add(cpu)
		m := pl.next[cpu]
		if m == nil || m.IsIdle() {
			continue
		}
		if b.place(pl, m, seen) {
			pl.put(n, cpu)
			return true
		}
	}
	return false
}

func (b *base) allowedCPUs(n *Node) ProcessorSet {
	if n.IsIdle() {
		return ProcessorSetOf(n.idleCPU) & b.owned
	}
	return b.allowed(n) & b.owned
}

// pickCPU returns the processor of cand that n should take: its own,
// else one vacated during this pass, else the one of the least urgent
// scheduled node.
func (b *base) pickCPU(n *Node, cand ProcessorSet) int {
	if n.state == NodeScheduled && cand.Has(n.cpu) {
		return n.cpu
	}
	vacated := func(cpu int) bool {
		m := b.scheduled[cpu]
		return m == nil || m.next >= 0
	}
	best := -1
	cand.Each(func(cpu int) {
		if best < 0 {
			best = cpu
			return
		}
		switch {
		case vacated(best):
		case vacated(cpu):
			best = cpu
		case b.scheduled[cpu].priority > b.scheduled[best].priority:
			best = cpu
		}
	})
	return best
}

// claimable reports whether the thread of n is ready and not running
// in another instance.
func (b *base) claimable(n *Node) bool {
	t := n.owner
	if !t.IsReady() {
		return false
	}
	var lc isrlock.Context
	t.Scheduler.Lock.Acquire(&lc)
	defer t.Scheduler.Lock.Release(&lc)
	s := &t.Scheduler
	return s.State != thread.SchedulerScheduled || (n.state == NodeScheduled && n.cpu == s.CPU)
}

// claim records that the thread of n runs on processor cpu. It fails if
// the thread is not ready or runs in another instance.
func (b *base) claim(n *Node, cpu int) bool {
	t := n.owner
	if !t.IsReady() {
		return false
	}
	var lc isrlock.Context
	t.Scheduler.Lock.Acquire(&lc)
	defer t.Scheduler.Lock.Release(&lc)
	s := &t.Scheduler
	if s.State == thread.SchedulerScheduled && !(n.state == NodeScheduled && n.cpu == s.CPU) {
		return false
	}
	if s.State != thread.SchedulerScheduled {
		b.claimed = append(b.claimed, n)
	}
	s.State = thread.SchedulerScheduled
	s.CPU = cpu
	s.HelpRequested = false
	return true
}

// unschedule takes processor cpu from n.
func (b *base) unschedule(n *Node, cpu int) {
	if n.queued {
		n.state = NodeReady
	} else {
		n.state = NodeBlocked
	}
	n.cpu = -1

	t := n.owner
	var lc isrlock.Context
	t.Scheduler.Lock.Acquire(&lc)
	s := &t.Scheduler
	if s.State == thread.SchedulerScheduled && s.CPU == cpu {
		s.CPU = -1
		if t.IsReady() {
			s.State = thread.SchedulerReady
			if len(s.Nodes) > 1 {
				s.HelpRequested = true
				b.help = append(b.help, t)
			}
		} else {
			s.State = thread.SchedulerBlocked
		}
	}
	t.Scheduler.Lock.Release(&lc)
}

// askForHelp offers the ready thread t to the instances of its nodes
// other than from, until one schedules it.
func askForHelp(t *thread.Thread, from *base) bool {
	for _, n := range Nodes(t) {
		if n.s == from {
			continue
		}
		var lc isrlock.Context
		t.Scheduler.Lock.Acquire(&lc)
		st := t.Scheduler.State
		t.Scheduler.Lock.Release(&lc)
		if st != thread.SchedulerReady {
			return st == thread.SchedulerScheduled
		}
		if n.s.self.AskForHelp(t, n) {
			return true
		}
	}
	return false
}

func attach(t *thread.Thread, n *Node) {
	var lc isrlock.Context
	t.Scheduler.Lock.Acquire(&lc)
	if n.home {
		t.Scheduler.Home = n
		t.Scheduler.Nodes = append([]thread.SchedulerNode{n}, t.Scheduler.Nodes...)
	} else {
		t.Scheduler.Nodes = append(t.Scheduler.Nodes, n)
	}
	t.Scheduler.Lock.Release(&lc)
}

func detach(t *thread.Thread, n *Node) {
	var lc isrlock.Context
	t.Scheduler.Lock.Acquire(&lc)
	ns := t.Scheduler.Nodes[:0]
	for _, m := range t.Scheduler.Nodes {
		if m != thread.SchedulerNode(n) {
			ns = append(ns, m)
		}
	}
	t.Scheduler.Nodes = ns
	if t.Scheduler.Home == thread.SchedulerNode(n) {
		t.Scheduler.Home = nil
	}
	t.Scheduler.Lock.Release(&lc)
}
