// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package thread

import (
	"errors"
	"fmt"
	"sync"

	"supercore/fatal"
)

// An ID identifies a thread. The low 16 bits hold the registry index
// plus one; the high bits hold the generation of the slot, so an ID of
// a deleted thread never resolves to the thread that reuses its slot.
type ID uint32

const indexBits = 16

// Index returns the registry slot of id.
func (id ID) Index() int { return int(id&(1<<indexBits-1)) - 1 }

// Generation returns the slot generation of id.
func (id ID) Generation() uint32 { return uint32(id) >> indexBits }

func (id ID) String() string { return fmt.Sprintf("%#08x", uint32(id)) }

func makeID(index int, gen uint32) ID {
	return ID(gen<<indexBits | uint32(index+1))
}

// ErrTooMany is returned by Allocate when every slot is in use.
var ErrTooMany = errors.New("thread: too many threads")

// MaxThreads is the largest registry size.
const MaxThreads = 1<<indexBits - 1

type slot struct {
	gen uint32
	t   *Thread
}

// A Registry owns the threads of a system. Each slot holds a thread
// from Allocate until Free.
type Registry struct {
	mu    sync.Mutex
	slots []slot
	free  []int
	max   int
}

// NewRegistry returns a registry for at most max threads, idle threads
// included.
func NewRegistry(max int) *Registry {
	if max <= 0 || max > MaxThreads {
		max = MaxThreads
	}
	return &Registry{max: max}
}

// Allocate creates a dormant thread with real and current priority p.
func (r *Registry) Allocate(name string, p Priority) (*Thread, error) {
	return r.allocate(name, p, false)
}

// AllocateIdle creates the idle thread of a processor.
func (r *Registry) AllocateIdle(name string, p Priority) (*Thread, error) {
	return r.allocate(name, p, true)
}

func (r *Registry) allocate(name string, p Priority, idle bool) (*Thread, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var i int
	if n := len(r.free); n > 0 {
		i = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		if len(r.slots) >= r.max {
			return nil, ErrTooMany
		}
		i = len(r.slots)
		r.slots = append(r.slots, slot{})
	}
	s := &r.slots[i]
	s.gen = (s.gen + 1) & (1<<indexBits - 1)
	if s.gen == 0 {
		s.gen = 1
	}
	s.t = newThread(makeID(i, s.gen), name, p, idle)
	return s.t, nil
}

// Free releases the slot of t. t must not be referenced by any queue
// or scheduler afterwards.
func (r *Registry) Free(t *Thread) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := t.id.Index()
	ok := i >= 0 && i < len(r.slots) && r.slots[i].t == t
	fatal.Assert(ok, "thread: free of unallocated thread "+t.name)
	if !ok {
		return
	}
	r.slots[i].t = nil
	r.free = append(r.free, i)
}

// Lookup returns the thread identified by id, or nil.
func (r *Registry) Lookup(id ID) *Thread {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := id.Index()
	if i < 0 || i >= len(r.slots) {
		return nil
	}
	s := r.slots[i]
	if s.gen != id.Generation() {
		return nil
	}
	return s.t
}

// LookupName returns the first allocated thread called name, or nil.
func (r *Registry) LookupName(name string) *Thread {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.slots {
		if s.t != nil && s.t.name == name {
			return s.t
		}
	}
	return nil
}

// Threads returns the allocated threads in slot order.
func (r *Registry) Threads() []*Thread {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ts []*Thread
	for _, s := range r.slots {
		if s.t != nil {
			ts = append(ts, s.t)
		}
	}
	return ts
}

// Len returns the number of allocated threads.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slots) - len(r.free)
}
