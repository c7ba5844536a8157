// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package lockgraph provides a representation of lock graphs and
// algorithms for working with them.
//
// In a lock class graph, cycles indicate potential deadlocks. In a
// wait-for graph, whose nodes are threads, cycles are deadlocks.
package lockgraph

import (
	"github.com/aclements/go-moremath/graph"
	"github.com/aclements/go-moremath/graph/graphalg"
)

// Graph is a directed graph with labeled nodes. In a lock class graph
// each node is a lock class and each edge indicates that the target
// class was acquired, or waited for, while the source class was held.
//
// Graph satisfies the graph.Graph interface.
//
// Graph can be serialized to and from JSON.
type Graph struct {
	Labels []string // Node ID -> node label
	Edges  [][]Edge // Node ID -> Edge number -> Edge info
	To     [][]int  // Node ID -> Edge number -> Target node ID

	ids map[string]int
}

// maxSamples bounds the threads recorded per edge.
const maxSamples = 8

// Edge records extra information about a single edge.
type Edge struct {
	// Count is the number of times this edge has been observed.
	Count int

	// Blocked is the number of observations in which the thread
	// blocked on the target.
	Blocked int

	// Threads are some of the threads that took this edge.
	Threads []uint32
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{ids: make(map[string]int)}
}

func (g *Graph) NumNodes() int {
	return len(g.Labels)
}

func (g *Graph) Out(i int) []int {
	return g.To[i]
}

func (g *Graph) Label(i int) string {
	return g.Labels[i]
}

// Node returns the ID of the node labeled label, adding it if needed.
func (g *Graph) Node(label string) int {
	if g.ids == nil {
		g.ids = make(map[string]int, len(g.Labels))
		for i, l := range g.Labels {
			g.ids[l] = i
		}
	}
	if id, ok := g.ids[label]; ok {
		return id
	}
	id := len(g.Labels)
	g.ids[label] = id
	g.Labels = append(g.Labels, label)
	g.Edges = append(g.Edges, nil)
	g.To = append(g.To, nil)
	return id
}

// AddEdge returns the edge from node n1 to node n2, adding it if
// needed.
func (g *Graph) AddEdge(n1, n2 int) *Edge {
	for i, to := range g.To[n1] {
		if to == n2 {
			return &g.Edges[n1][i]
		}
	}
	g.To[n1] = append(g.To[n1], n2)
	g.Edges[n1] = append(g.Edges[n1], Edge{})
	return &g.Edges[n1][len(g.Edges[n1])-1]
}

// observe records one traversal of e by thread.
func (e *Edge) observe(thread uint32, blocked bool) {
	e.Count++
	if blocked {
		e.Blocked++
	}
	e.sample(thread)
}

// sample adds thread to the sampled threads of e unless it is already
// there or the sample is full.
func (e *Edge) sample(thread uint32) {
	for _, t := range e.Threads {
		if t == thread {
			return
		}
	}
	if len(e.Threads) < maxSamples {
		e.Threads = append(e.Threads, thread)
	}
}

// Cycles returns the nodes and edges involved in cycles of the graph.
func Cycles(g graph.Graph) (nodes []int, edges []graph.Edge) {
	// Nodes involved in cycles are those that are in non-trivial
	// connected components, or that have an edge to themselves.
	scc := graphalg.SCC(g, graphalg.SCCSubnodeComponent)
	marks := graphalg.NewNodeMarks()
	numNodes := 0
	for cid := 0; cid < scc.NumNodes(); cid++ {
		nids := scc.Subnodes(cid)
		if len(nids) == 1 && !selfLoop(g, nids[0]) {
			continue
		}
		numNodes += len(nids)
		for _, nid := range nids {
			marks.Mark(nid)
		}
	}

	nodes = make([]int, 0, numNodes)
	numEdges := 0
	for nid := marks.Next(-1); nid >= 0; nid = marks.Next(nid) {
		nodes = append(nodes, nid)
		for _, n2id := range g.Out(nid) {
			if marks.Test(n2id) {
				numEdges++
			}
		}
	}

	edges = make([]graph.Edge, 0, numEdges)
	for _, nid := range nodes {
		cid := scc.SubnodeComponent(nid)
		for eid, n2id := range g.Out(nid) {
			if scc.SubnodeComponent(n2id) == cid {
				edges = append(edges, graph.Edge{Node: nid, Edge: eid})
			}
		}
	}
	return
}

func selfLoop(g graph.Graph, nid int) bool {
	for _, n2id := range g.Out(nid) {
		if n2id == nid {
			return true
		}
	}
	return false
}

// Filter filters g to a subset of nodes and edges. It panics if any
// included edge points to an excluded node.
func (g *Graph) Filter(cNodes []int, cEdges []graph.Edge) *Graph {
	labels := make([]string, len(cNodes))
	oldToNew := make(map[int]int, len(cNodes))
	for newID, oldID := range cNodes {
		labels[newID] = g.Labels[oldID]
		oldToNew[oldID] = newID
	}

	edges := make([][]Edge, len(cNodes))
	out := make([][]int, len(cNodes))
	for _, oldEdge := range cEdges {
		newNode, ok := oldToNew[oldEdge.Node]
		if !ok {
			panic("cannot include edge from excluded node")
		}
		newNode2, ok := oldToNew[g.To[oldEdge.Node][oldEdge.Edge]]
		if !ok {
			panic("cannot include edge to excluded node")
		}
		out[newNode] = append(out[newNode], newNode2)
		edges[newNode] = append(edges[newNode], g.Edges[oldEdge.Node][oldEdge.Edge])
	}

	return &Graph{Labels: labels, Edges: edges, To: out}
}

// CycleGraph returns the subgraph of g made of its cycles, or nil if g
// has no cycles.
func (g *Graph) CycleGraph() *Graph {
	nodes, edges := Cycles(g)
	if len(nodes) == 0 {
		return nil
	}
	return g.Filter(nodes, edges)
}
