// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scheduler_test

import (
	"errors"
	"fmt"
	"testing"

	"supercore/internal/states"
	"supercore/percpu"
	. "supercore/scheduler"
	"supercore/status"
	"supercore/thread"
)

type env struct {
	t    *testing.T
	cpus *percpu.Table
	reg  *thread.Registry
}

func newEnv(t *testing.T, ncpu int) *env {
	return &env{t: t, cpus: percpu.NewTable(ncpu), reg: thread.NewRegistry(0)}
}

func (e *env) addCPU(s Scheduler, cpu int) {
	idle, err := e.reg.AllocateIdle(fmt.Sprintf("IDLE%d", cpu), thread.PriorityIdle(thread.PriorityDefaultMaximum))
	if err != nil {
		e.t.Fatal(err)
	}
	if err := s.AddProcessor(e.cpus.Get(cpu), idle); err != nil {
		e.t.Fatal(err)
	}
}

func (e *env) start(s Scheduler, name string, p thread.Priority) *thread.Thread {
	th, err := e.reg.Allocate(name, p)
	if err != nil {
		e.t.Fatal(err)
	}
	Attach(th, s)
	th.ClearState(states.Dormant)
	Unblock(th)
	return th
}

func (e *env) heir(cpu int) string {
	h := e.cpus.Get(cpu).Heir()
	if h == nil {
		return "<nil>"
	}
	return h.Name()
}

func (e *env) wantHeirs(heirs ...string) {
	e.t.Helper()
	for cpu, want := range heirs {
		if got := e.heir(cpu); got != want {
			e.t.Fatalf("heir of cpu%d: got %s, want %s", cpu, got, want)
		}
	}
}

func block(th *thread.Thread) {
	th.SetState(states.Suspended)
	Block(th)
}

func unblock(th *thread.Thread) {
	th.ClearState(states.Suspended)
	Unblock(th)
}

func TestPriorityUniprocessor(t *testing.T) {
	e := newEnv(t, 1)
	s := NewPriority("UP", thread.PriorityDefaultMaximum)
	e.addCPU(s, 0)
	e.wantHeirs("IDLE0")

	a := e.start(s, "A", 10)
	b := e.start(s, "B", 10)
	e.wantHeirs("A")
	if b.SchedulerState() != thread.SchedulerReady {
		t.Fatalf("B: %v, want ready", b.SchedulerState())
	}

	c := e.start(s, "C", 5)
	e.wantHeirs("C")
	if a.SchedulerState() != thread.SchedulerReady {
		t.Fatalf("preempted A: %v", a.SchedulerState())
	}

	block(c)
	e.wantHeirs("A")
	if c.SchedulerState() != thread.SchedulerBlocked {
		t.Fatalf("blocked C: %v", c.SchedulerState())
	}

	Yield(a)
	e.wantHeirs("B")
	Yield(b)
	e.wantHeirs("A")

	b.SetRealPriority(1)
	UpdatePriority(b)
	e.wantHeirs("B")

	unblock(c)
	e.wantHeirs("B")
	if got := s.HighestReady(); got != 1 {
		t.Fatalf("HighestReady = %d, want 1", got)
	}
	if s.Heir() != b {
		t.Fatalf("Heir = %v, want B", s.Heir())
	}
}

func TestPriorityUniprocessorOneCPU(t *testing.T) {
	e := newEnv(t, 2)
	s := NewPriority("UP", thread.PriorityDefaultMaximum)
	e.addCPU(s, 0)
	idle, _ := e.reg.AllocateIdle("IDLE1", 256)
	err := s.AddProcessor(e.cpus.Get(1), idle)
	if !errors.Is(err, status.InvalidNumber) {
		t.Fatalf("second processor: got %v, want %v", err, status.InvalidNumber)
	}
}

func TestPrioritySMP(t *testing.T) {
	e := newEnv(t, 2)
	s := NewPrioritySMP("SMP", thread.PriorityDefaultMaximum)
	e.addCPU(s, 0)
	e.addCPU(s, 1)
	e.wantHeirs("IDLE0", "IDLE1")

	a := e.start(s, "A", 10)
	e.wantHeirs("A", "IDLE1")
	b := e.start(s, "B", 20)
	e.wantHeirs("A", "B")

	// C preempts the least urgent scheduled thread, B.
	e.start(s, "C", 15)
	e.wantHeirs("A", "C")
	if b.SchedulerState() != thread.SchedulerReady {
		t.Fatalf("B: %v, want ready", b.SchedulerState())
	}

	// A keeps its processor across a priority change.
	a.SetRealPriority(12)
	UpdatePriority(a)
	e.wantHeirs("A", "C")

	block(a)
	e.wantHeirs("B", "C")
	if a.CPU() != -1 {
		t.Fatalf("blocked thread on cpu %d", a.CPU())
	}

	if SetAffinity(b, ProcessorSetOf(0)) {
		t.Fatal("PrioritySMP accepted a partial affinity")
	}
	if !SetAffinity(b, AllProcessors(2)) {
		t.Fatal("PrioritySMP rejected the full affinity")
	}
}

func TestPriorityAffinitySMP(t *testing.T) {
	e := newEnv(t, 3)
	s := NewPriorityAffinitySMP("APS", thread.PriorityDefaultMaximum)
	for i := 0; i < 3; i++ {
		e.addCPU(s, i)
	}
	a := e.start(s, "A", 10)
	b := e.start(s, "B", 10)
	c := e.start(s, "C", 10)
	e.wantHeirs("A", "B", "C")

	// Pin a more urgent thread to cpu2. It may only take cpu2.
	h, _ := e.reg.Allocate("H", 1)
	Attach(h, s)
	if !SetAffinity(h, ProcessorSetOf(2)) {
		t.Fatal("SetAffinity rejected an owned processor")
	}
	h.ClearState(states.Dormant)
	Unblock(h)
	e.wantHeirs("A", "B", "H")
	if c.SchedulerState() != thread.SchedulerReady {
		t.Fatalf("C: %v, want ready", c.SchedulerState())
	}

	// An infeasible set is rejected without changes.
	if SetAffinity(h, ProcessorSetOf(7)) {
		t.Fatal("SetAffinity accepted a set without owned processors")
	}
	if got := HomeNode(h).Affinity(); got != ProcessorSetOf(2) {
		t.Fatalf("affinity changed to %v", got)
	}

	// Moving the pinned thread to cpu0 displaces A, which takes cpu2.
	if !SetAffinity(h, ProcessorSetOf(0)) {
		t.Fatal("SetAffinity(0) rejected")
	}
	e.wantHeirs("H", "B", "A")
	if a.CPU() != 2 {
		t.Fatalf("A on cpu %d, want 2", a.CPU())
	}

	// With only cpu1 allowed, C runs on cpu1 once cpu0 is free: the
	// thread on cpu1 moves over.
	SetAffinity(c, ProcessorSetOf(1))
	block(h)
	if e.heir(1) != "C" || e.heir(0) == "IDLE0" || e.heir(2) == "IDLE2" {
		t.Fatalf("heirs %s %s %s: want C on cpu1 and no idle processor", e.heir(0), e.heir(1), e.heir(2))
	}
	block(b)
	if e.heir(1) != "C" || a.SchedulerState() != thread.SchedulerScheduled {
		t.Fatalf("heir of cpu1 %s, A %v", e.heir(1), a.SchedulerState())
	}
}

func TestAffinityMovesFlexibleThread(t *testing.T) {
	e := newEnv(t, 2)
	s := NewPriorityAffinitySMP("APS", thread.PriorityDefaultMaximum)
	e.addCPU(s, 0)
	e.addCPU(s, 1)
	a := e.start(s, "A", 1)
	e.wantHeirs("A", "IDLE1")

	b, _ := e.reg.Allocate("B", 2)
	Attach(b, s)
	if !SetAffinity(b, ProcessorSetOf(0)) {
		t.Fatal("SetAffinity rejected cpu0")
	}
	b.ClearState(states.Dormant)
	Unblock(b)
	e.wantHeirs("B", "A")
	if a.CPU() != 1 || b.SchedulerState() != thread.SchedulerScheduled {
		t.Fatalf("A on cpu %d, B %v", a.CPU(), b.SchedulerState())
	}

	// A stays on cpu1 once B leaves.
	block(b)
	e.wantHeirs("IDLE0", "A")
}

func TestAddRemoveProcessor(t *testing.T) {
	e := newEnv(t, 2)
	s := NewPrioritySMP("SMP", thread.PriorityDefaultMaximum)
	e.addCPU(s, 0)
	e.addCPU(s, 1)
	a := e.start(s, "A", 10)
	b := e.start(s, "B", 20)
	e.wantHeirs("A", "B")

	idle, err := s.RemoveProcessor(e.cpus.Get(0))
	if err != nil {
		t.Fatal(err)
	}
	if idle.Name() != "IDLE0" {
		t.Fatalf("RemoveProcessor returned %s", idle.Name())
	}
	if e.cpus.Get(0).IsOnline() {
		t.Fatal("removed processor still online")
	}
	e.wantHeirs("<nil>", "A")
	if b.SchedulerState() != thread.SchedulerReady {
		t.Fatalf("B: %v, want ready", b.SchedulerState())
	}
	if s.Processors() != ProcessorSetOf(1) {
		t.Fatalf("Processors = %v", s.Processors())
	}

	if _, err := s.RemoveProcessor(e.cpus.Get(1)); !errors.Is(err, status.ResourceInUse) {
		t.Fatalf("removing the last processor: got %v", err)
	}
	if _, err := s.RemoveProcessor(e.cpus.Get(0)); !errors.Is(err, status.InvalidNumber) {
		t.Fatalf("removing an unowned processor: got %v", err)
	}

	if err := s.AddProcessor(e.cpus.Get(0), idle); err != nil {
		t.Fatal(err)
	}
	if a.CPU() != 1 {
		t.Fatalf("A migrated to cpu %d", a.CPU())
	}
	e.wantHeirs("B", "A")
}

func TestAskForHelp(t *testing.T) {
	e := newEnv(t, 2)
	sa := NewPrioritySMP("A", thread.PriorityDefaultMaximum)
	sb := NewPrioritySMP("B", thread.PriorityDefaultMaximum)
	e.addCPU(sa, 0)
	e.addCPU(sb, 1)

	e.start(sa, "H", 1)
	low := e.start(sa, "L", 10)
	e.wantHeirs("H", "IDLE1")
	if low.SchedulerState() != thread.SchedulerReady {
		t.Fatalf("L: %v, want ready", low.SchedulerState())
	}

	n := AddHelper(low, sb)
	if n.IsHome() {
		t.Fatal("helping node is a home node")
	}
	e.wantHeirs("H", "L")
	if low.CPU() != 1 {
		t.Fatalf("L on cpu %d, want 1", low.CPU())
	}
	if got := len(Nodes(low)); got != 2 {
		t.Fatalf("L has %d nodes", got)
	}

	// L runs through its helping node; the home node no longer asks.
	if st := HomeNode(low).State(); st == NodeScheduled {
		t.Fatalf("home node %v while running in B", st)
	}

	// A more urgent thread of B takes the processor; the home
	// instance is asked but has no room.
	g := e.start(sb, "G", 2)
	e.wantHeirs("H", "G")
	if low.SchedulerState() != thread.SchedulerReady {
		t.Fatalf("L: %v, want ready", low.SchedulerState())
	}

	block(g)
	e.wantHeirs("H", "L")

	RemoveHelpers(low)
	e.wantHeirs("H", "IDLE1")
	if low.SchedulerState() != thread.SchedulerReady || len(Nodes(low)) != 1 {
		t.Fatalf("after RemoveHelpers: %v with %d nodes", low.SchedulerState(), len(Nodes(low)))
	}
}

func TestMigrate(t *testing.T) {
	e := newEnv(t, 2)
	sa := NewPrioritySMP("A", thread.PriorityDefaultMaximum)
	sb := NewPriorityAffinitySMP("B", thread.PriorityDefaultMaximum)
	e.addCPU(sa, 0)
	e.addCPU(sb, 1)
	x := e.start(sa, "X", 5)
	e.wantHeirs("X", "IDLE1")
	if err := Migrate(x, sb); err != nil {
		t.Fatal(err)
	}
	e.wantHeirs("IDLE0", "X")
	if Home(x) != Scheduler(sb) {
		t.Fatalf("home %v", Home(x))
	}
}

func TestProcessorSet(t *testing.T) {
	s := ProcessorSetOf(0, 1, 2, 5)
	if s.String() != "0-2,5" || s.Count() != 4 || s.First() != 0 {
		t.Fatalf("set %v count %d", s, s.Count())
	}
	p, err := ParseProcessorSet("0-2,5")
	if err != nil || p != s {
		t.Fatalf("ParseProcessorSet = %v, %v", p, err)
	}
	for _, bad := range []string{"x", "3-1", "0-64"} {
		if _, err := ParseProcessorSet(bad); err == nil {
			t.Errorf("ParseProcessorSet(%q) succeeded", bad)
		}
	}
	if !AllProcessors(4).Contains(s.Remove(5)) || AllProcessors(4).Contains(s) {
		t.Fatal("Contains")
	}
	if ProcessorSet(0).String() != "{}" {
		t.Fatal("empty set string")
	}
}

func TestParseAlgorithm(t *testing.T) {
	for _, a := range []Algorithm{AlgorithmPriority, AlgorithmPrioritySMP, AlgorithmPriorityAffinitySMP} {
		got, err := ParseAlgorithm(a.String())
		if err != nil || got != a {
			t.Errorf("ParseAlgorithm(%q) = %v, %v", a, got, err)
		}
		if s := New("x", a, 10); s.Algorithm() != a {
			t.Errorf("New(%v) built %v", a, s.Algorithm())
		}
	}
	if _, err := ParseAlgorithm("edf"); err == nil {
		t.Fatal("ParseAlgorithm accepted edf")
	}
}
