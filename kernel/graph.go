// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kernel

import (
	"io"
	"sort"

	"supercore/internal/lockgraph"
	"supercore/threadq"
)

// WaitForGraph returns a snapshot of the wait-for graph: one node per
// thread waiting on an owned queue or owning a queue with waiters, and
// an edge from each waiter to the owner of its queue.
func (s *System) WaitForGraph() *lockgraph.Graph {
	g := lockgraph.New()
	for _, t := range s.reg.Threads() {
		q, ok := t.Wait.Queue().(*threadq.Queue)
		if !ok || q == nil {
			continue
		}
		o := q.Owner()
		if o == nil {
			continue
		}
		e := g.AddEdge(g.Node(t.Name()), g.Node(o.Name()))
		e.Count++
		e.Blocked++
		e.Threads = append(e.Threads, uint32(t.ID()))
	}
	return g
}

// Deadlocks returns the names of the threads in cycles of the wait-for
// graph, sorted. Deadlock detection refuses the enqueue that would
// close a cycle, so a non-empty result means a wait was set up outside
// of it.
func (s *System) Deadlocks() []string {
	g := s.WaitForGraph()
	nodes, _ := lockgraph.Cycles(g)
	names := make([]string, 0, len(nodes))
	for _, n := range nodes {
		names = append(names, g.Label(n))
	}
	sort.Strings(names)
	return names
}

// LockOrderReport writes the cycles of the lock class order graph
// observed so far, in the text report format. It reports whether there
// were any.
func (s *System) LockOrderReport(w io.Writer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cg := s.lockOrder.Graph().CycleGraph()
	if cg == nil {
		return false
	}
	lockgraph.ReportText(w, cg)
	return true
}

// LockOrderDot writes the lock class order graph in dot format.
func (s *System) LockOrderDot(w io.Writer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lockgraph.WriteDot(w, s.lockOrder.Graph())
}

// SaveLockOrder writes a snapshot of the lock class order graph
// observed so far. LoadLockOrder of another system reads it.
func (s *System) SaveLockOrder(w io.Writer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lockgraph.Save(w, s.lockOrder.Graph())
}

// LoadLockOrder merges a snapshot written by SaveLockOrder into the lock
// class order graph, so that orders taken in earlier runs count toward
// the cycles LockOrderReport finds.
func (s *System) LoadLockOrder(r io.Reader) error {
	g, err := lockgraph.Restore(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.lockOrder.Merge(g)
	s.mu.Unlock()
	s.log.Debug("lock order loaded", "classes", g.NumNodes())
	return nil
}

// ContentionProfile writes the contention profile of the completed
// waits in pprof format.
func (s *System) ContentionProfile(w io.Writer) error {
	return s.profile.WriteTo(w)
}
