// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lockgraph

import (
	"fmt"
	"io"

	"github.com/aclements/go-moremath/graph/graphalg"
	"github.com/aclements/go-moremath/graph/graphout"
)

// ReportText writes a user-readable text representation of lg to w.
func ReportText(w io.Writer, lg *Graph) {
	// Walk the edges in rough depth-first order so that cycles
	// naturally appear together in the report.
	scc := graphalg.SCC(lg, 0)

	// SCC components are in reverse topo order. Walk them in topo
	// order.
	visited := graphalg.NewNodeMarks()
	var visit func(node int)
	visit = func(node int) {
		visited.Mark(node)
		for i, succ := range lg.Out(node) {
			reportTextEdge(w, lg, node, succ, lg.Edges[node][i])
			if !visited.Test(succ) {
				visit(succ)
			}
		}
	}
	inComponent := make([]int, lg.NumNodes()) // Max CID of parent nodes
	for cid := scc.NumNodes() - 1; cid >= 0; cid-- {
		subGraph := scc.Subnodes(cid)
		maxNode, maxCID := subGraph[0], -1
		for _, nid := range subGraph {
			if inComponent[nid] > maxCID {
				maxNode, maxCID = nid, inComponent[nid]
			}
			for _, nid2 := range lg.Out(nid) {
				if cid > inComponent[nid2] {
					inComponent[nid2] = cid
				}
			}
		}
		if !visited.Test(maxNode) {
			visit(maxNode)
		}
	}
}

func reportTextEdge(w io.Writer, lg *Graph, n1, n2 int, edge Edge) {
	fmt.Fprintf(w, "%s -> %s\n", lg.Label(n1), lg.Label(n2))
	fmt.Fprintf(w, "  %d times", edge.Count)
	if edge.Blocked > 0 {
		fmt.Fprintf(w, ", %d blocked", edge.Blocked)
	}
	if len(edge.Threads) > 0 {
		fmt.Fprintf(w, ", threads")
		for _, t := range edge.Threads {
			fmt.Fprintf(w, " %#08x", t)
		}
	}
	fmt.Fprintf(w, "\n")
}

// WriteDot writes lg in Graphviz dot form to w. Edges on cycles are
// drawn in red.
func WriteDot(w io.Writer, lg *Graph) error {
	_, cEdges := Cycles(lg)
	onCycle := make(map[[2]int]bool, len(cEdges))
	for _, e := range cEdges {
		onCycle[[2]int{e.Node, e.Edge}] = true
	}
	dot := graphout.Dot{
		Label: lg.Label,
		EdgeAttrs: func(node, edge int) []graphout.DotAttr {
			attrs := []graphout.DotAttr{{Name: "label", Val: lg.Edges[node][edge].Count}}
			if onCycle[[2]int{node, edge}] {
				attrs = append(attrs, graphout.DotAttr{Name: "color", Val: "red"})
			}
			return attrs
		},
	}
	ew := &errWriter{w: w}
	dot.Fprint(ew, lg)
	return ew.err
}

// errWriter remembers the first error of w.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(p []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	n, err := e.w.Write(p)
	e.err = err
	return n, err
}
