// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lockgraph

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// snapshotMagic starts every snapshot written by Save.
const snapshotMagic = "supercore lock order v1\n"

// ErrNotSnapshot is returned by Restore for input that does not start
// like a snapshot.
var ErrNotSnapshot = errors.New("lockgraph: not a lock order snapshot")

// Save writes a snapshot of g to w. The snapshot is a header line
// followed by the gzipped JSON encoding of g.
func Save(w io.Writer, g *Graph) error {
	if _, err := io.WriteString(w, snapshotMagic); err != nil {
		return err
	}
	zw := gzip.NewWriter(w)
	if err := json.NewEncoder(zw).Encode(g); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}

// Restore reads a snapshot written by Save.
func Restore(r io.Reader) (*Graph, error) {
	br := bufio.NewReader(r)
	hdr, err := br.ReadString('\n')
	if err != nil || hdr != snapshotMagic {
		return nil, ErrNotSnapshot
	}
	zr, err := gzip.NewReader(br)
	if err != nil {
		return nil, fmt.Errorf("lockgraph: snapshot: %w", err)
	}
	defer zr.Close()
	g := New()
	if err := json.NewDecoder(zr).Decode(g); err != nil {
		return nil, fmt.Errorf("lockgraph: snapshot: %w", err)
	}
	if len(g.Edges) != len(g.Labels) || len(g.To) != len(g.Labels) {
		return nil, fmt.Errorf("lockgraph: snapshot: %d labels, %d edge lists, %d target lists", len(g.Labels), len(g.Edges), len(g.To))
	}
	for n, to := range g.To {
		if len(g.Edges[n]) != len(to) {
			return nil, fmt.Errorf("lockgraph: snapshot: node %s: edge count mismatch", g.Labels[n])
		}
		for _, m := range to {
			if m < 0 || m >= len(g.Labels) {
				return nil, fmt.Errorf("lockgraph: snapshot: node %s: edge to unknown node %d", g.Labels[n], m)
			}
		}
	}
	g.ids = nil
	return g, nil
}

// Merge adds the nodes and edges of o to g. Edges present in both
// graphs add up their counts and keep up to maxSamples threads.
func (g *Graph) Merge(o *Graph) {
	for n, to := range o.To {
		from := g.Node(o.Labels[n])
		for i, m := range to {
			src := &o.Edges[n][i]
			e := g.AddEdge(from, g.Node(o.Labels[m]))
			e.Count += src.Count
			e.Blocked += src.Blocked
			for _, t := range src.Threads {
				e.sample(t)
			}
		}
	}
	// Nodes without edges.
	for _, l := range o.Labels {
		g.Node(l)
	}
}

// Merge adds the edges of g to the graph being built. It lets lock
// orders observed in earlier runs take part in cycle detection.
func (b *Builder) Merge(g *Graph) { b.g.Merge(g) }
