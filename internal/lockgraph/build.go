// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lockgraph

import (
	"fmt"
	"io"

	"supercore/internal/locklog"
)

// A Builder constructs a lock class graph from lock operations.
type Builder struct {
	g    *Graph
	held map[uint32][]heldLock
}

type heldLock struct {
	lock  uint64
	class int
}

// NewBuilder returns a Builder with an empty graph.
func NewBuilder() *Builder {
	return &Builder{g: New(), held: make(map[uint32][]heldLock)}
}

// Graph returns the graph built so far.
func (b *Builder) Graph() *Graph { return b.g }

// Acquire records that thread acquired lock of class class while
// holding the locks it acquired before.
func (b *Builder) Acquire(thread uint32, lock uint64, class string) {
	c := b.edges(thread, class, false)
	b.held[thread] = append(b.held[thread], heldLock{lock, c})
}

// Block records that thread blocked on lock of class class. It adds
// the same edges as an acquire, without holding the lock.
func (b *Builder) Block(thread uint32, lock uint64, class string) {
	b.edges(thread, class, true)
}

func (b *Builder) edges(thread uint32, class string, blocked bool) int {
	c := b.g.Node(class)
	for _, h := range b.held[thread] {
		b.g.AddEdge(h.class, c).observe(thread, blocked)
	}
	return c
}

// Release records that thread released lock. Locks need not be
// released in acquisition order. Releasing a lock that thread does not
// hold is ignored: records of a thread that migrated between
// processors may be out of order in the log.
func (b *Builder) Release(thread uint32, lock uint64) {
	held := b.held[thread]
	for i := len(held) - 1; i >= 0; i-- {
		if held[i].lock == lock {
			b.held[thread] = append(held[:i], held[i+1:]...)
			return
		}
	}
}

// Record adds one log record.
func (b *Builder) Record(rec *locklog.Record) error {
	switch rec.Op {
	case locklog.OpAcquire:
		b.Acquire(rec.Thread, rec.Lock, rec.Class)
	case locklog.OpRelease:
		b.Release(rec.Thread, rec.Lock)
	case locklog.OpBlock:
		b.Block(rec.Thread, rec.Lock, rec.Class)
	default:
		return fmt.Errorf("unhandled log op %v", rec.Op)
	}
	return nil
}

// FromLog builds the lock class graph of the log read by r.
func FromLog(r *locklog.Reader) (*Graph, error) {
	b := NewBuilder()
	var rec locklog.Record
	for {
		err := r.Next(&rec)
		if err == io.EOF {
			return b.Graph(), nil
		} else if err != nil {
			return nil, err
		}
		if err := b.Record(&rec); err != nil {
			return nil, err
		}
	}
}
