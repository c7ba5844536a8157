// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scheduler

import (
	"fmt"

	"supercore/internal/isrlock"
	"supercore/thread"
)

// A NodeState is the state of a node within its scheduler instance.
type NodeState uint8

const (
	// NodeBlocked nodes are not in the ready queue.
	NodeBlocked NodeState = iota

	// NodeReady nodes are in the ready queue but have no processor.
	NodeReady

	// NodeScheduled nodes are in the ready queue and have a
	// processor.
	NodeScheduled
)

func (s NodeState) String() string {
	switch s {
	case NodeBlocked:
		return "blocked"
	case NodeReady:
		return "ready"
	case NodeScheduled:
		return "scheduled"
	}
	return fmt.Sprintf("NodeState(%d)", uint8(s))
}

// A Node is the data of one thread in one scheduler instance. The
// fields are protected by the lock of the instance.
type Node struct {
	owner *thread.Thread
	s     *base
	home  bool

	priority thread.Priority
	state    NodeState
	queued   bool
	cpu      int // processor index while scheduled, else -1
	next     int // processor chosen by the current scheduling pass

	// affinity is honored by PriorityAffinitySMP. Idle nodes are
	// pinned to idleCPU.
	affinity ProcessorSet
	idleCPU  int
}

// Owner returns the thread of n.
func (n *Node) Owner() *thread.Thread { return n.owner }

// Scheduler returns the instance n belongs to.
func (n *Node) Scheduler() Scheduler { return n.s.self }

// IsHome reports whether n is the node of the home instance of its
// thread.
func (n *Node) IsHome() bool { return n.home }

// IsIdle reports whether n is the node of an idle thread.
func (n *Node) IsIdle() bool { return n.idleCPU >= 0 }

// Priority returns the priority n is ordered by.
func (n *Node) Priority() thread.Priority {
	var lc isrlock.Context
	n.s.lock.Acquire(&lc)
	defer n.s.lock.Release(&lc)
	return n.priority
}

// State returns the state of n.
func (n *Node) State() NodeState {
	var lc isrlock.Context
	n.s.lock.Acquire(&lc)
	defer n.s.lock.Release(&lc)
	return n.state
}

// CPU returns the processor of a scheduled node, or -1.
func (n *Node) CPU() int {
	var lc isrlock.Context
	n.s.lock.Acquire(&lc)
	defer n.s.lock.Release(&lc)
	return n.cpu
}

// Affinity returns the processor affinity of n.
func (n *Node) Affinity() ProcessorSet {
	var lc isrlock.Context
	n.s.lock.Acquire(&lc)
	defer n.s.lock.Release(&lc)
	return n.affinity
}

func (n *Node) String() string {
	return fmt.Sprintf("%s@%s", n.owner.Name(), n.s.name)
}

// HomeNode returns the home node of t, or nil if t is not attached to
// a scheduler instance.
func HomeNode(t *thread.Thread) *Node {
	var lc isrlock.Context
	t.Scheduler.Lock.Acquire(&lc)
	defer t.Scheduler.Lock.Release(&lc)
	n, _ := t.Scheduler.Home.(*Node)
	return n
}

// Nodes returns the nodes of t, home node first.
func Nodes(t *thread.Thread) []*Node {
	var lc isrlock.Context
	t.Scheduler.Lock.Acquire(&lc)
	defer t.Scheduler.Lock.Release(&lc)
	ns := make([]*Node, 0, len(t.Scheduler.Nodes))
	for _, sn := range t.Scheduler.Nodes {
		ns = append(ns, sn.(*Node))
	}
	return ns
}
