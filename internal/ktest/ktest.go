// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ktest provides a small simulated system for the tests of the
// core packages: a clock, a thread-queue domain, a thread registry and,
// optionally, processors owned by one scheduler instance.
package ktest

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"supercore/internal/states"
	"supercore/percpu"
	"supercore/scheduler"
	"supercore/thread"
	"supercore/threadq"
	"supercore/watchdog"
)

// An Env is a test system.
type Env struct {
	TB        testing.TB
	Clock     *watchdog.Header
	Domain    *threadq.Domain
	Registry  *thread.Registry
	CPUs      *percpu.Table
	Scheduler scheduler.Scheduler
}

// New returns a system without processors. Its threads are made ready
// but have no scheduler nodes.
func New(tb testing.TB) *Env {
	clock := watchdog.NewHeader(time.Millisecond)
	return &Env{
		TB:       tb,
		Clock:    clock,
		Domain:   threadq.NewDomain(clock, nil),
		Registry: thread.NewRegistry(0),
	}
}

// NewScheduled returns a system with ncpu processors owned by one
// scheduler instance using algorithm a.
func NewScheduled(tb testing.TB, a scheduler.Algorithm, ncpu int) *Env {
	e := New(tb)
	e.CPUs = percpu.NewTable(ncpu)
	e.Scheduler = scheduler.New("S", a, thread.PriorityDefaultMaximum)
	for i := 0; i < ncpu; i++ {
		idle, err := e.Registry.AllocateIdle(fmt.Sprintf("IDLE%d", i), thread.PriorityIdle(thread.PriorityDefaultMaximum))
		if err != nil {
			tb.Fatal(err)
		}
		if err := e.Scheduler.AddProcessor(e.CPUs.Get(i), idle); err != nil {
			tb.Fatal(err)
		}
	}
	return e
}

// Thread returns a new ready thread. In a scheduled system it is
// attached to the scheduler.
func (e *Env) Thread(name string, p thread.Priority) *thread.Thread {
	t, err := e.Registry.Allocate(name, p)
	if err != nil {
		e.TB.Fatal(err)
	}
	if e.Scheduler != nil {
		scheduler.Attach(t, e.Scheduler)
	}
	t.ClearState(states.Dormant)
	scheduler.Unblock(t)
	return t
}

// Heirs returns the names of the heirs of all processors, separated by
// spaces.
func (e *Env) Heirs() string {
	if e.CPUs == nil {
		return ""
	}
	var names []string
	for _, c := range e.CPUs.All() {
		h := "-"
		if t := c.Heir(); t != nil {
			h = t.Name()
		}
		names = append(names, h)
	}
	return strings.Join(names, " ")
}

// Names returns the names of ts separated by spaces.
func Names(ts []*thread.Thread) string {
	names := make([]string, len(ts))
	for i, t := range ts {
		names[i] = t.Name()
	}
	return strings.Join(names, " ")
}

// Tick advances the clock by n ticks.
func (e *Env) Tick(n int) {
	for i := 0; i < n; i++ {
		e.Clock.Tick()
	}
}
