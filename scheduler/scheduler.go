// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package scheduler assigns processors to ready threads.
//
// A scheduler instance owns a set of processors and orders the nodes
// of its ready threads by priority, FIFO among equal priorities. After
// every change the instance recomputes which nodes hold its
// processors: the most urgent nodes win, a node keeps its processor
// when it still qualifies, and a newcomer takes the processor of the
// least urgent scheduled node. Every owned processor has an idle node
// pinned to it, so no processor is ever left without a thread.
//
// A thread has a home node in one instance and may have helping nodes
// in others. It runs on at most one processor: a node is only given a
// processor if its thread is not already scheduled by another
// instance. A thread that loses its processor while it has helping
// nodes asks the other instances for help.
//
// Lock order: instance lock, then thread scheduler lock. No two
// instance locks are ever held at the same time; help requests are
// processed after the instance lock is released.
package scheduler

import (
	"fmt"

	"supercore/internal/isrlock"
	"supercore/internal/states"
	"supercore/percpu"
	"supercore/status"
	"supercore/thread"
)

// An Algorithm selects the scheduler variant of an instance.
type Algorithm uint8

const (
	AlgorithmPriority Algorithm = iota
	AlgorithmPrioritySMP
	AlgorithmPriorityAffinitySMP
)

var algorithmNames = [...]string{
	AlgorithmPriority:            "priority",
	AlgorithmPrioritySMP:         "priority-smp",
	AlgorithmPriorityAffinitySMP: "priority-affinity-smp",
}

func (a Algorithm) String() string {
	if int(a) < len(algorithmNames) {
		return algorithmNames[a]
	}
	return fmt.Sprintf("Algorithm(%d)", uint8(a))
}

// ParseAlgorithm returns the algorithm with the given String form.
func ParseAlgorithm(s string) (Algorithm, error) {
	for a, name := range algorithmNames {
		if name == s {
			return Algorithm(a), nil
		}
	}
	return 0, fmt.Errorf("unknown scheduler algorithm %q", s)
}

// A Scheduler is a scheduler instance.
type Scheduler interface {
	Name() string
	Algorithm() Algorithm

	// Processors returns the processors owned by the instance.
	Processors() ProcessorSet

	// NodeInitialize creates the node of t in this instance with
	// priority p. The node starts blocked and may use all processors.
	NodeInitialize(t *thread.Thread, p thread.Priority) *Node

	// NodeDestroy detaches a blocked node.
	NodeDestroy(t *thread.Thread, n *Node)

	// Block removes n from the ready queue. Unblock inserts it. Both
	// reconcile with the state of t: Block of a ready thread and
	// Unblock of a blocked thread leave n as the thread state
	// demands.
	Block(t *thread.Thread, n *Node)
	Unblock(t *thread.Thread, n *Node)

	// UpdatePriority reorders n after the current priority of t
	// changed.
	UpdatePriority(t *thread.Thread, n *Node)

	// Yield moves n behind the ready nodes of equal priority.
	Yield(t *thread.Thread, n *Node)

	// AskForHelp inserts n, a node of a ready thread, and reports
	// whether it obtained a processor of this instance.
	AskForHelp(t *thread.Thread, n *Node) bool

	// ReconsiderHelpRequest drops n from the ready queue if its
	// thread is scheduled by another instance.
	ReconsiderHelpRequest(t *thread.Thread, n *Node)

	// WithdrawNode removes n from the ready queue. If n was
	// scheduled, the thread state becomes next.
	WithdrawNode(t *thread.Thread, n *Node, next thread.SchedulerState)

	// AddProcessor hands cpu to the instance; idle runs on it when
	// no other node does.
	AddProcessor(cpu *percpu.CPU, idle *thread.Thread) error

	// RemoveProcessor takes cpu from the instance and returns its
	// idle thread.
	RemoveProcessor(cpu *percpu.CPU) (*thread.Thread, error)

	// SetAffinity changes the processors n may use. It reports
	// false and changes nothing if the set is not acceptable.
	SetAffinity(t *thread.Thread, n *Node, set ProcessorSet) bool

	// Scheduled returns the thread holding processor cpu of the
	// instance, or nil.
	Scheduled(cpu int) *thread.Thread

	// ReadyCount returns the number of nodes in the ready queue,
	// scheduled and idle nodes included.
	ReadyCount() int

	instance() *base
}

// New returns an instance of algorithm a without processors. Priorities
// range from thread.PriorityHighest to maxPriority; idle threads use
// thread.PriorityIdle(maxPriority).
func New(name string, a Algorithm, maxPriority thread.Priority) Scheduler {
	switch a {
	case AlgorithmPriority:
		return NewPriority(name, maxPriority)
	case AlgorithmPrioritySMP:
		return NewPrioritySMP(name, maxPriority)
	case AlgorithmPriorityAffinitySMP:
		return NewPriorityAffinitySMP(name, maxPriority)
	}
	panic("scheduler: bad algorithm " + a.String())
}

// base is the common part of all instances.
type base struct {
	self Scheduler
	name string
	alg  Algorithm

	// maxCPUs limits the number of owned processors.
	maxCPUs int

	// allowed returns the processors n may run on, before
	// intersection with the owned processors.
	allowed func(n *Node) ProcessorSet

	lock        isrlock.Lock
	maxPriority thread.Priority
	owned       ProcessorSet
	cpus        [MaxProcessors]*percpu.CPU
	idle        [MaxProcessors]*Node
	scheduled   [MaxProcessors]*Node
	ready       *readyQueue
	threads     int // home nodes attached

	// Collected under lock, processed after release.
	help    []*thread.Thread
	claimed []*Node
}

func (b *base) init(self Scheduler, name string, a Algorithm, maxPriority thread.Priority, maxCPUs int) {
	b.self = self
	b.name = name
	b.alg = a
	b.maxCPUs = maxCPUs
	b.maxPriority = maxPriority
	b.ready = newReadyQueue(maxPriority)
	b.allowed = func(*Node) ProcessorSet { return ^ProcessorSet(0) }
}

func (b *base) instance() *base { return b }

func (b *base) Name() string         { return b.name }
func (b *base) Algorithm() Algorithm { return b.alg }

func (b *base) String() string { return b.name + "(" + b.alg.String() + ")" }

func (b *base) Processors() ProcessorSet {
	var lc isrlock.Context
	b.lock.Acquire(&lc)
	defer b.lock.Release(&lc)
	return b.owned
}

func (b *base) Scheduled(cpu int) *thread.Thread {
	var lc isrlock.Context
	b.lock.Acquire(&lc)
	defer b.lock.Release(&lc)
	if cpu < 0 || cpu >= MaxProcessors || b.scheduled[cpu] == nil {
		return nil
	}
	return b.scheduled[cpu].owner
}

func (b *base) ReadyCount() int {
	var lc isrlock.Context
	b.lock.Acquire(&lc)
	defer b.lock.Release(&lc)
	return b.ready.len()
}

func (b *base) NodeInitialize(t *thread.Thread, p thread.Priority) *Node {
	if p > b.maxPriority && !t.IsIdle() {
		p = b.maxPriority
	}
	return &Node{
		owner:    t,
		s:        b,
		priority: p,
		cpu:      -1,
		next:     -1,
		affinity: ^ProcessorSet(0),
		idleCPU:  -1,
	}
}

func (b *base) NodeDestroy(t *thread.Thread, n *Node) {
	var lc isrlock.Context
	b.lock.Acquire(&lc)
	b.ready.extract(n)
	n.state = NodeBlocked
	if n.home {
		b.threads--
	}
	b.schedule()
	b.release(&lc)
}

func (b *base) Block(t *thread.Thread, n *Node) {
	b.reconcile(t, n, false)
}

func (b *base) Unblock(t *thread.Thread, n *Node) {
	b.reconcile(t, n, false)
}

// reconcile makes the membership of n in the ready queue match the
// state of t. If appendIt is set, a queued n moves behind its peers.
func (b *base) reconcile(t *thread.Thread, n *Node, appendIt bool) {
	var lc isrlock.Context
	b.lock.Acquire(&lc)
	ready := t.IsReady()
	switch {
	case ready && !n.queued:
		b.ready.insert(n, false)
		setThreadState(t, thread.SchedulerBlocked, thread.SchedulerReady)
	case ready && appendIt:
		b.ready.extract(n)
		b.ready.insert(n, false)
	case !ready && n.queued:
		b.ready.extract(n)
	}
	b.schedule()
	if !ready {
		setThreadState(t, thread.SchedulerReady, thread.SchedulerBlocked)
	}
	b.release(&lc)
}

func (b *base) UpdatePriority(t *thread.Thread, n *Node) {
	var lc isrlock.Context
	b.lock.Acquire(&lc)
	if n.IsIdle() {
		b.lock.Release(&lc)
		return
	}
	p := t.CurrentPriority()
	if p > b.maxPriority {
		p = b.maxPriority
	}
	if p != n.priority {
		if n.queued {
			first := n.state == NodeScheduled
			b.ready.extract(n)
			n.priority = p
			b.ready.insert(n, first)
		} else {
			n.priority = p
		}
		b.schedule()
	}
	b.release(&lc)
}

func (b *base) Yield(t *thread.Thread, n *Node) {
	b.reconcile(t, n, true)
}

func (b *base) AskForHelp(t *thread.Thread, n *Node) bool {
	var lc isrlock.Context
	b.lock.Acquire(&lc)
	if !t.IsReady() {
		b.lock.Release(&lc)
		return false
	}
	if !n.queued {
		p := t.CurrentPriority()
		if p > b.maxPriority {
			p = b.maxPriority
		}
		n.priority = p
		b.ready.insert(n, false)
	}
	b.schedule()
	ok := n.state == NodeScheduled
	b.release(&lc)
	return ok
}

func (b *base) ReconsiderHelpRequest(t *thread.Thread, n *Node) {
	var lc isrlock.Context
	b.lock.Acquire(&lc)
	if n.state == NodeReady && runsElsewhere(t, b.owned) {
		b.ready.extract(n)
		n.state = NodeBlocked
	}
	b.release(&lc)
}

func (b *base) WithdrawNode(t *thread.Thread, n *Node, next thread.SchedulerState) {
	var lc isrlock.Context
	b.lock.Acquire(&lc)
	wasScheduled := n.state == NodeScheduled
	cpu := n.cpu
	b.ready.extract(n)
	b.schedule()
	if wasScheduled {
		var tlc isrlock.Context
		t.Scheduler.Lock.Acquire(&tlc)
		if t.Scheduler.CPU == cpu || t.Scheduler.CPU < 0 {
			t.Scheduler.State = next
		}
		t.Scheduler.Lock.Release(&tlc)
	}
	b.release(&lc)
}

func (b *base) AddProcessor(cpu *percpu.CPU, idle *thread.Thread) error {
	var lc isrlock.Context
	b.lock.Acquire(&lc)
	i := cpu.Index()
	switch {
	case i >= MaxProcessors:
		b.lock.Release(&lc)
		return fmt.Errorf("scheduler %s: processor %d: %w", b.name, i, status.InvalidNumber)
	case b.owned.Has(i):
		b.lock.Release(&lc)
		return fmt.Errorf("scheduler %s: processor %d already owned: %w", b.name, i, status.ResourceInUse)
	case b.owned.Count() >= b.maxCPUs:
		b.lock.Release(&lc)
		return fmt.Errorf("scheduler %s: too many processors: %w", b.name, status.InvalidNumber)
	}
	n := b.NodeInitialize(idle, thread.PriorityIdle(b.maxPriority))
	n.idleCPU = i
	n.affinity = ProcessorSetOf(i)
	n.home = true
	idle.ClearState(states.AllSet)
	attach(idle, n)
	b.owned = b.owned.Add(i)
	b.cpus[i] = cpu
	b.idle[i] = n
	cpu.SetOnline(true)
	b.ready.insert(n, false)
	setThreadState(idle, thread.SchedulerBlocked, thread.SchedulerReady)
	b.schedule()
	b.release(&lc)
	return nil
}

func (b *base) RemoveProcessor(cpu *percpu.CPU) (*thread.Thread, error) {
	var lc isrlock.Context
	b.lock.Acquire(&lc)
	i := cpu.Index()
	if !b.owned.Has(i) {
		b.lock.Release(&lc)
		return nil, fmt.Errorf("scheduler %s: processor %d not owned: %w", b.name, i, status.InvalidNumber)
	}
	if b.owned.Count() == 1 && b.threads > 0 {
		b.lock.Release(&lc)
		return nil, fmt.Errorf("scheduler %s: last processor has threads: %w", b.name, status.ResourceInUse)
	}
	idle := b.idle[i]
	b.ready.extract(idle)
	b.owned = b.owned.Remove(i)
	b.idle[i] = nil
	b.schedule()
	b.cpus[i] = nil
	cpu.SetOnline(false)
	idle.state = NodeBlocked
	var tlc isrlock.Context
	idle.owner.Scheduler.Lock.Acquire(&tlc)
	idle.owner.Scheduler.State = thread.SchedulerBlocked
	idle.owner.Scheduler.CPU = -1
	idle.owner.Scheduler.Lock.Release(&tlc)
	detach(idle.owner, idle)
	b.release(&lc)
	return idle.owner, nil
}

// SetAffinity of the non-affinity variants accepts only sets that cover
// all owned processors; the node keeps using all of them.
func (b *base) SetAffinity(t *thread.Thread, n *Node, set ProcessorSet) bool {
	var lc isrlock.Context
	b.lock.Acquire(&lc)
	ok := set.Contains(b.owned)
	if ok {
		n.affinity = set
	}
	b.lock.Release(&lc)
	return ok
}

// release releases the instance lock and then processes the help
// requests and claims collected while it was held.
func (b *base) release(lc *isrlock.Context) {
	help, claimed := b.help, b.claimed
	b.help, b.claimed = nil, nil
	b.lock.Release(lc)

	for _, n := range claimed {
		for _, m := range Nodes(n.owner) {
			if m != n {
				m.s.self.ReconsiderHelpRequest(n.owner, m)
			}
		}
	}
	for _, t := range help {
		askForHelp(t, b)
	}
}

// runsElsewhere reports whether t is scheduled on a processor outside
// owned.
func runsElsewhere(t *thread.Thread, owned ProcessorSet) bool {
	var lc isrlock.Context
	t.Scheduler.Lock.Acquire(&lc)
	defer t.Scheduler.Lock.Release(&lc)
	return t.Scheduler.State == thread.SchedulerScheduled && !owned.Has(t.Scheduler.CPU)
}

func setThreadState(t *thread.Thread, from, to thread.SchedulerState) {
	var lc isrlock.Context
	t.Scheduler.Lock.Acquire(&lc)
	if t.Scheduler.State == from {
		t.Scheduler.State = to
		if to != thread.SchedulerScheduled {
			t.Scheduler.CPU = -1
		}
	}
	t.Scheduler.Lock.Release(&lc)
}
