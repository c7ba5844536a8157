// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scheduler

import (
	"math/bits"

	"supercore/thread"
)

// readyQueue holds the ready nodes of a scheduler instance in one FIFO
// chain per priority. A bit map of non-empty chains finds the most
// urgent chain in a few word operations.
type readyQueue struct {
	chains [][]*Node
	major  uint64   // bit i set if minor[i] != 0
	minor  []uint64 // bit j of minor[i] set if chains[i*64+j] is non-empty
	n      int
}

func newReadyQueue(maxPriority thread.Priority) *readyQueue {
	n := int(maxPriority) + 2 // idle priority included
	words := (n + 63) / 64
	if words > 64 {
		panic("scheduler: priority range too large")
	}
	return &readyQueue{
		chains: make([][]*Node, n),
		minor:  make([]uint64, words),
	}
}

func (q *readyQueue) setBit(p int) {
	q.minor[p/64] |= 1 << (p % 64)
	q.major |= 1 << (p / 64)
}

func (q *readyQueue) clearBit(p int) {
	q.minor[p/64] &^= 1 << (p % 64)
	if q.minor[p/64] == 0 {
		q.major &^= 1 << (p / 64)
	}
}

// insert appends n to the chain of its priority, or prepends it if
// first is set.
func (q *readyQueue) insert(n *Node, first bool) {
	p := int(n.priority)
	if p >= len(q.chains) {
		p = len(q.chains) - 1
		n.priority = thread.Priority(p)
	}
	c := q.chains[p]
	if first {
		c = append(c, nil)
		copy(c[1:], c)
		c[0] = n
	} else {
		c = append(c, n)
	}
	q.chains[p] = c
	q.setBit(p)
	n.queued = true
	q.n++
}

// extract removes n. Extracting a node that is not queued is a no-op.
func (q *readyQueue) extract(n *Node) {
	if !n.queued {
		return
	}
	p := int(n.priority)
	c := q.chains[p]
	for i, m := range c {
		if m == n {
			copy(c[i:], c[i+1:])
			c[len(c)-1] = nil
			c = c[:len(c)-1]
			break
		}
	}
	q.chains[p] = c
	if len(c) == 0 {
		q.clearBit(p)
	}
	n.queued = false
	q.n--
}

// highest returns the most urgent priority with a queued node, or -1.
func (q *readyQueue) highest() int {
	if q.major == 0 {
		return -1
	}
	i := bits.TrailingZeros64(q.major)
	return i*64 + bits.TrailingZeros64(q.minor[i])
}

// each calls f for the queued nodes in order of decreasing urgency,
// FIFO within a priority, until f returns false. f must not modify q.
func (q *readyQueue) each(f func(*Node) bool) {
	for i := 0; i < len(q.minor); i++ {
		if q.major&(1<<i) == 0 {
			continue
		}
		w := q.minor[i]
		for w != 0 {
			j := bits.TrailingZeros64(w)
			w &^= 1 << j
			for _, n := range q.chains[i*64+j] {
				if !f(n) {
					return
				}
			}
		}
	}
}

func (q *readyQueue) len() int { return q.n }
