// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scheduler

import (
	"fmt"

	"supercore/internal/isrlock"
	"supercore/status"
	"supercore/thread"
)

// The functions in this file apply a change of a thread to all of its
// nodes. Callers change the state or priority of the thread first and
// then call the matching function.

// Attach makes s the home instance of t. t must not have nodes yet.
func Attach(t *thread.Thread, s Scheduler) *Node {
	b := s.instance()
	n := s.NodeInitialize(t, t.CurrentPriority())
	n.home = true
	var lc isrlock.Context
	b.lock.Acquire(&lc)
	b.threads++
	b.lock.Release(&lc)
	attach(t, n)
	return n
}

// Detach removes all nodes of t. It is used when t is deleted; t must
// not be ready.
func Detach(t *thread.Thread) {
	for _, n := range Nodes(t) {
		n.s.self.WithdrawNode(t, n, thread.SchedulerBlocked)
		n.s.self.NodeDestroy(t, n)
		detach(t, n)
	}
}

// Home returns the home instance of t, or nil.
func Home(t *thread.Thread) Scheduler {
	if n := HomeNode(t); n != nil {
		return n.s.self
	}
	return nil
}

// Block removes t from scheduling after a blocking state bit was set.
func Block(t *thread.Thread) {
	for _, n := range Nodes(t) {
		if n.home {
			n.s.self.Block(t, n)
		} else {
			n.s.self.WithdrawNode(t, n, thread.SchedulerBlocked)
		}
	}
}

// Unblock makes t eligible for scheduling after its last blocking
// state bit was cleared. If the home instance cannot run it, the
// instances of its helping nodes are asked for help.
func Unblock(t *thread.Thread) {
	home := HomeNode(t)
	if home == nil {
		return
	}
	home.s.self.Unblock(t, home)
	if len(Nodes(t)) > 1 && t.SchedulerState() == thread.SchedulerReady {
		askForHelp(t, home.s)
	}
}

// UpdatePriority reorders all nodes of t after its current priority
// changed.
func UpdatePriority(t *thread.Thread) {
	for _, n := range Nodes(t) {
		n.s.self.UpdatePriority(t, n)
	}
}

// Yield moves t behind the ready threads of equal priority.
func Yield(t *thread.Thread) {
	if home := HomeNode(t); home != nil {
		home.s.self.Yield(t, home)
	}
}

// SetAffinity changes the processor affinity of t in its home instance.
func SetAffinity(t *thread.Thread, set ProcessorSet) bool {
	home := HomeNode(t)
	if home == nil {
		return false
	}
	return home.s.self.SetAffinity(t, home, set)
}

// AddHelper gives t a helping node in s, if it has no node there yet,
// and asks s for help if t is ready but not scheduled. Priority
// inheritance across instances uses helping nodes so that an owner can
// run on the processors of its waiters.
func AddHelper(t *thread.Thread, s Scheduler) *Node {
	for _, n := range Nodes(t) {
		if n.s == s.instance() {
			if !n.home {
				s.UpdatePriority(t, n)
			}
			return n
		}
	}
	n := s.NodeInitialize(t, t.CurrentPriority())
	attach(t, n)
	if t.IsReady() && t.SchedulerState() == thread.SchedulerReady {
		s.AskForHelp(t, n)
	}
	return n
}

// RemoveHelpers withdraws all helping nodes of t and lets the home
// instance schedule it again.
func RemoveHelpers(t *thread.Thread) {
	removed := false
	for _, n := range Nodes(t) {
		if n.home {
			continue
		}
		n.s.self.WithdrawNode(t, n, thread.SchedulerReady)
		n.s.self.NodeDestroy(t, n)
		detach(t, n)
		removed = true
	}
	if removed {
		if home := HomeNode(t); home != nil {
			home.s.self.Unblock(t, home)
		}
	}
}

// Migrate moves t to the home instance to. A thread with helping nodes
// cannot move.
func Migrate(t *thread.Thread, to Scheduler) error {
	home := HomeNode(t)
	if home == nil {
		return fmt.Errorf("scheduler: %s has no home instance: %w", t.Name(), status.InvalidNumber)
	}
	if home.s == to.instance() {
		return nil
	}
	if len(Nodes(t)) > 1 {
		return fmt.Errorf("scheduler: %s has helping nodes: %w", t.Name(), status.ResourceInUse)
	}
	if to.Processors().IsEmpty() {
		return fmt.Errorf("scheduler: %s owns no processor: %w", to.Name(), status.InvalidNumber)
	}
	home.s.self.WithdrawNode(t, home, thread.SchedulerBlocked)
	home.s.self.NodeDestroy(t, home)
	detach(t, home)
	Attach(t, to)
	Unblock(t)
	return nil
}
