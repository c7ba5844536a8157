// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kernel_test

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/google/pprof/profile"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"supercore/coremutex"
	"supercore/fatal"
	"supercore/internal/lockgraph"
	"supercore/internal/locklog"
	. "supercore/kernel"
	"supercore/scheduler"
	"supercore/status"
	"supercore/thread"
)

func boot(t *testing.T, cfg Config) *System {
	t.Helper()
	s, err := Boot(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func smpConfig(n int, alg scheduler.Algorithm) Config {
	cfg := DefaultConfig()
	cfg.Processors = n
	cpus := make([]int, n)
	for i := range cpus {
		cpus[i] = i
	}
	cfg.Schedulers = []SchedulerConfig{{Name: "SMP", Algorithm: alg.String(), Processors: cpus}}
	return cfg
}

func start(t *testing.T, s *System, name string, p thread.Priority) thread.ID {
	t.Helper()
	id, err := s.CreateThread(name, p, "")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.StartThread(id); err != nil {
		t.Fatal(err)
	}
	return id
}

func executing(s *System) string {
	var names []string
	for _, c := range s.Processors().All() {
		n := "-"
		if t := c.Executing(); t != nil {
			n = t.Name()
		}
		names = append(names, n)
	}
	return strings.Join(names, " ")
}

func TestBoot(t *testing.T) {
	s := boot(t, DefaultConfig())
	if got := executing(s); got != "IDLE0" {
		t.Fatalf("executing %q, want IDLE0", got)
	}
	if s.Scheduler("UPD") == nil {
		t.Fatal("no scheduler UPD")
	}
}

func TestBootFatal(t *testing.T) {
	for _, tc := range []struct {
		name   string
		modify func(*Config)
		code   fatal.Code
	}{
		{"idle stack", func(c *Config) { c.IdleStackSize = c.MinimumStackSize - 1 }, fatal.InternalErrorIdleThreadStackTooSmall},
		{"tls", func(c *Config) { c.MaxTLSSize, c.TLSSize = 64, 128 }, fatal.InternalErrorTooLargeTLSSize},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var got []fatal.Code
			cfg := DefaultConfig()
			cfg.FatalHandler = func(src fatal.Source, code fatal.Code) { got = append(got, code) }
			tc.modify(&cfg)
			err := fatal.Catch(func() { Boot(cfg) })
			if err == nil || err.Source != fatal.SourceCore || err.Code != tc.code {
				t.Fatalf("got %v, want %v", err, tc.code)
			}
			if len(got) != 1 || got[0] != tc.code {
				t.Fatalf("handler saw %v", got)
			}
		})
	}
}

func TestThreadLifecycle(t *testing.T) {
	s := boot(t, DefaultConfig())
	id, err := s.CreateThread("T", 10, "")
	if err != nil {
		t.Fatal(err)
	}
	if got := executing(s); got != "IDLE0" {
		t.Fatalf("dormant thread runs: %q", got)
	}
	if err := s.SuspendThread(id); !errors.Is(err, ErrIncorrectState) {
		t.Fatalf("suspend dormant: %v", err)
	}
	if err := s.StartThread(id); err != nil {
		t.Fatal(err)
	}
	if got := executing(s); got != "T" {
		t.Fatalf("executing %q, want T", got)
	}
	if err := s.StartThread(id); !errors.Is(err, ErrIncorrectState) {
		t.Fatalf("second start: %v", err)
	}
	if err := s.SuspendThread(id); err != nil {
		t.Fatal(err)
	}
	if got := executing(s); got != "IDLE0" {
		t.Fatalf("suspended thread runs: %q", got)
	}
	if err := s.ResumeThread(id); err != nil {
		t.Fatal(err)
	}
	if got := executing(s); got != "T" {
		t.Fatalf("executing %q after resume", got)
	}
	if err := s.DeleteThread(id); err != nil {
		t.Fatal(err)
	}
	if got := executing(s); got != "IDLE0" {
		t.Fatalf("deleted thread runs: %q", got)
	}
	if err := s.StartThread(id); !errors.Is(err, ErrInvalidID) {
		t.Fatalf("stale ID: %v", err)
	}
}

func TestCreateThreadErrors(t *testing.T) {
	s := boot(t, DefaultConfig())
	if _, err := s.CreateThread("T", 0, ""); !errors.Is(err, status.InvalidPriority) {
		t.Fatalf("priority 0: %v", err)
	}
	if _, err := s.CreateThread("T", 256, ""); !errors.Is(err, status.InvalidPriority) {
		t.Fatalf("priority 256: %v", err)
	}
	if _, err := s.CreateThread("T", 1, "nope"); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("bad scheduler: %v", err)
	}
	if _, err := s.CreateThread("T", 1, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateThread("T", 1, ""); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("duplicate name: %v", err)
	}
}

// A low priority thread holding an inherit mutex runs at the priority
// of the high priority thread waiting for it until it releases the
// mutex.
func TestPriorityInheritance(t *testing.T) {
	s := boot(t, DefaultConfig())
	if _, err := s.NewMutex("M", coremutex.Attributes{Discipline: coremutex.PriorityInherit}); err != nil {
		t.Fatal(err)
	}
	low := start(t, s, "L", 10)
	if code, _ := s.Seize(low, "M", true, 0); code != status.Successful {
		t.Fatalf("L seize: %v", code)
	}
	start(t, s, "MID", 5)
	if got := executing(s); got != "MID" {
		t.Fatalf("executing %q, want MID", got)
	}
	high := start(t, s, "H", 1)
	if code, _ := s.Seize(high, "M", true, 0); code != status.Blocked {
		t.Fatalf("H seize: %v", code)
	}
	if got := executing(s); got != "L" {
		t.Fatalf("executing %q, want boosted L", got)
	}
	if p := s.Thread(low).CurrentPriority(); p != 1 {
		t.Fatalf("L priority %v, want 1", p)
	}
	if code, _ := s.Surrender(low, "M"); code != status.Successful {
		t.Fatalf("L surrender: %v", code)
	}
	if got := executing(s); got != "H" {
		t.Fatalf("executing %q, want H", got)
	}
	if p := s.Thread(low).CurrentPriority(); p != 10 {
		t.Fatalf("L priority %v after release, want 10", p)
	}
	if code, done, _ := s.WaitStatus(high); !done || code != status.Successful {
		t.Fatalf("H wait: %v %v", code, done)
	}
	if m := s.Mutex("M"); m.Holder() != s.Thread(high) {
		t.Fatalf("holder %v, want H", m.Holder())
	}
}

func TestSeizeTimeout(t *testing.T) {
	s := boot(t, DefaultConfig())
	s.NewMutex("M", coremutex.Attributes{Discipline: coremutex.Priority})
	a := start(t, s, "A", 10)
	b := start(t, s, "B", 5)
	s.Seize(a, "M", true, 0)
	if code, _ := s.Seize(b, "M", true, 3); code != status.Blocked {
		t.Fatalf("B seize: %v", code)
	}
	s.Tick()
	s.Tick()
	if _, done, _ := s.WaitStatus(b); done {
		t.Fatal("B timed out early")
	}
	s.Tick()
	if code, done, _ := s.WaitStatus(b); !done || code != status.Timeout {
		t.Fatalf("B wait: %v %v", code, done)
	}
	if got := executing(s); got != "B" {
		t.Fatalf("executing %q, want B", got)
	}
}

func TestDeleteThread(t *testing.T) {
	s := boot(t, DefaultConfig())
	s.NewMutex("M", coremutex.Attributes{Discipline: coremutex.PriorityInherit})
	owner := start(t, s, "O", 10)
	waiter := start(t, s, "W", 5)
	s.Seize(owner, "M", true, 0)
	if err := s.DeleteThread(owner); !errors.Is(err, status.ResourceInUse) {
		t.Fatalf("delete holder: %v", err)
	}
	s.Seize(waiter, "M", true, 0)
	if p := s.Thread(owner).CurrentPriority(); p != 5 {
		t.Fatalf("holder priority %v, want 5", p)
	}
	if err := s.DeleteThread(waiter); err != nil {
		t.Fatal(err)
	}
	if p := s.Thread(owner).CurrentPriority(); p != 10 {
		t.Fatalf("holder priority after waiter deletion %v, want 10", p)
	}
	if n := s.Mutex("M").Queue().Len(); n != 0 {
		t.Fatalf("%d waiters left", n)
	}
	if code, _ := s.Surrender(owner, "M"); code != status.Successful {
		t.Fatalf("surrender: %v", code)
	}
	if s.Mutex("M").IsLocked() {
		t.Fatal("mutex handed to deleted thread")
	}
	if err := s.DeleteMutex("M"); err != nil {
		t.Fatal(err)
	}
}

func TestDeleteLockedMutex(t *testing.T) {
	s := boot(t, DefaultConfig())
	s.NewMutex("M", coremutex.Attributes{Discipline: coremutex.FIFO})
	a := start(t, s, "A", 10)
	s.Seize(a, "M", true, 0)
	if err := s.DeleteMutex("M"); !errors.Is(err, status.ResourceInUse) {
		t.Fatalf("delete locked mutex: %v", err)
	}
}

func TestCeilingConfiguration(t *testing.T) {
	s := boot(t, DefaultConfig())
	attr := coremutex.Attributes{Discipline: coremutex.PriorityCeiling, PriorityCeiling: 300}
	if _, err := s.NewMutex("C", attr); !errors.Is(err, status.InvalidPriority) {
		t.Fatalf("ceiling 300: %v", err)
	}
	attr.PriorityCeiling = 3
	s.NewMutex("C", attr)
	a := start(t, s, "A", 10)
	s.Seize(a, "C", true, 0)
	if p := s.Thread(a).CurrentPriority(); p != 3 {
		t.Fatalf("holder priority %v, want 3", p)
	}
	if old, err := s.SetPriorityCeiling("C", 2); err != nil || old != 3 {
		t.Fatalf("set ceiling: %v %v", old, err)
	}
	s.Surrender(a, "C")
	if p := s.Thread(a).CurrentPriority(); p != 10 {
		t.Fatalf("priority %v after release, want 10", p)
	}
	b := start(t, s, "B", 1)
	if code, _ := s.Seize(b, "C", true, 0); code != status.MutexCeilingViolated {
		t.Fatalf("B seize: %v", code)
	}
}

func TestFutex(t *testing.T) {
	s := boot(t, DefaultConfig())
	f, err := s.NewFutex("F")
	if err != nil {
		t.Fatal(err)
	}
	a := start(t, s, "A", 10)
	b := start(t, s, "B", 10)
	if err := s.FutexWait(a, "F", 1, 0); err != unix.EAGAIN {
		t.Fatalf("wait on changed value: %v", err)
	}
	if err := s.FutexWait(a, "F", 0, 0); err != nil {
		t.Fatal(err)
	}
	s.SetFutexValue("F", 1)
	if err := s.FutexWait(b, "F", 1, 0); err != nil {
		t.Fatal(err)
	}
	if f.Queue().Len() != 2 {
		t.Fatalf("%d waiters", f.Queue().Len())
	}
	if err := s.DeleteFutex("F"); err == nil {
		t.Fatal("deleted futex with waiters")
	}
	if n, _ := s.FutexWake("F", 1); n != 1 {
		t.Fatalf("woke %d", n)
	}
	if got := executing(s); got != "A" {
		t.Fatalf("executing %q, want A", got)
	}
	if n, _ := s.FutexWake("F", 5); n != 1 {
		t.Fatalf("woke %d", n)
	}
	if err := s.DeleteFutex("F"); err != nil {
		t.Fatal(err)
	}
}

func heirs(s *System) string {
	var names []string
	for i := 0; i < s.Processors().Len(); i++ {
		n := "-"
		if t := s.Heir(i); t != nil {
			n = t.Name()
		}
		names = append(names, n)
	}
	return strings.Join(names, " ")
}

func TestAddRemoveProcessor(t *testing.T) {
	s := boot(t, smpConfig(2, scheduler.AlgorithmPrioritySMP))
	start(t, s, "A", 10)
	start(t, s, "B", 20)
	if got := heirs(s); got != "A B" {
		t.Fatalf("heirs %q, want A B", got)
	}
	if err := s.RemoveProcessor(0); err != nil {
		t.Fatal(err)
	}
	if got := heirs(s); got != "- A" {
		t.Fatalf("heirs %q after removing cpu0, want - A", got)
	}
	if err := s.RemoveProcessor(1); !errors.Is(err, status.ResourceInUse) {
		t.Fatalf("remove last processor: %v", err)
	}
	if err := s.RemoveProcessor(0); err == nil {
		t.Fatal("removed an offline processor")
	}
	if err := s.AddProcessor("SMP", 0); err != nil {
		t.Fatal(err)
	}
	if got := heirs(s); got != "B A" {
		t.Fatalf("heirs %q after adding cpu0, want B A", got)
	}
	if err := s.AddProcessor("SMP", 1); err == nil {
		t.Fatal("added an online processor")
	}
}

func TestAffinity(t *testing.T) {
	s := boot(t, smpConfig(2, scheduler.AlgorithmPriorityAffinitySMP))
	a := start(t, s, "A", 10)
	if err := s.SetAffinity(a, scheduler.ProcessorSetOf(1)); err != nil {
		t.Fatal(err)
	}
	if got := executing(s); got != "IDLE0 A" {
		t.Fatalf("executing %q, want A on cpu1", got)
	}
	if err := s.SetAffinity(a, 0); !errors.Is(err, status.InvalidNumber) {
		t.Fatalf("empty affinity: %v", err)
	}
}

func TestSetScheduler(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Processors = 2
	cfg.Schedulers = append(cfg.Schedulers, SchedulerConfig{Name: "B", Algorithm: "priority", Processors: []int{1}})
	s := boot(t, cfg)
	a := start(t, s, "A", 10)
	if got := executing(s); got != "A IDLE1" {
		t.Fatalf("executing %q", got)
	}
	if err := s.SetScheduler(a, "B"); err != nil {
		t.Fatal(err)
	}
	if got := executing(s); got != "IDLE0 A" {
		t.Fatalf("executing %q after migration", got)
	}
	if err := s.SetScheduler(a, "C"); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("unknown scheduler: %v", err)
	}
}

func TestSetPriority(t *testing.T) {
	s := boot(t, DefaultConfig())
	a := start(t, s, "A", 10)
	b := start(t, s, "B", 20)
	if old, err := s.SetPriority(b, 5); err != nil || old != 20 {
		t.Fatalf("set priority: %v %v", old, err)
	}
	if got := executing(s); got != "B" {
		t.Fatalf("executing %q, want B", got)
	}
	if _, err := s.SetPriority(a, 0); !errors.Is(err, status.InvalidPriority) {
		t.Fatalf("priority 0: %v", err)
	}
}

func TestYield(t *testing.T) {
	s := boot(t, DefaultConfig())
	a := start(t, s, "A", 10)
	start(t, s, "B", 10)
	if got := executing(s); got != "A" {
		t.Fatalf("executing %q, want A", got)
	}
	s.Yield(a)
	if got := executing(s); got != "B" {
		t.Fatalf("executing %q after yield, want B", got)
	}
}

func TestWaitForGraph(t *testing.T) {
	s := boot(t, DefaultConfig())
	s.NewMutex("M1", coremutex.Attributes{Discipline: coremutex.PriorityInherit})
	s.NewMutex("M2", coremutex.Attributes{Discipline: coremutex.PriorityInherit})
	a := start(t, s, "A", 10)
	b := start(t, s, "B", 10)
	s.Seize(a, "M1", true, 0)
	s.Seize(b, "M2", true, 0)
	s.Seize(b, "M1", true, 0)
	if code, _ := s.Seize(a, "M2", true, 0); code != status.Deadlock {
		t.Fatalf("A seize M2: %v", code)
	}
	g := s.WaitForGraph()
	if g.NumNodes() != 2 || len(g.Out(g.Node("B"))) != 1 {
		t.Fatalf("wait-for graph %v %v", g.Labels, g.To)
	}
	if d := s.Deadlocks(); len(d) != 0 {
		t.Fatalf("deadlocks %v", d)
	}
}

// Taking two mutexes in opposite orders in two threads is reported as a
// lock order cycle even though the threads never deadlocked.
func TestLockOrder(t *testing.T) {
	var logBuf bytes.Buffer
	cfg := DefaultConfig()
	cfg.LockLog = &logBuf
	s := boot(t, cfg)
	s.NewMutex("M1", coremutex.Attributes{Discipline: coremutex.FIFO})
	s.NewMutex("M2", coremutex.Attributes{Discipline: coremutex.FIFO})
	a := start(t, s, "A", 10)
	b := start(t, s, "B", 10)
	for _, step := range []struct {
		id          thread.ID
		first, then string
	}{{a, "M1", "M2"}, {b, "M2", "M1"}} {
		s.Seize(step.id, step.first, true, 0)
		s.Seize(step.id, step.then, true, 0)
		s.Surrender(step.id, step.then)
		s.Surrender(step.id, step.first)
	}
	var report bytes.Buffer
	if !s.LockOrderReport(&report) {
		t.Fatal("no lock order cycle")
	}
	if !strings.Contains(report.String(), "M1 -> M2") || !strings.Contains(report.String(), "M2 -> M1") {
		t.Fatalf("report:\n%s", report.String())
	}

	if err := s.FlushLockLog(); err != nil {
		t.Fatal(err)
	}
	r, err := locklog.NewReader(&logBuf)
	if err != nil {
		t.Fatal(err)
	}
	g, err := lockgraph.FromLog(r)
	if err != nil {
		t.Fatal(err)
	}
	if nodes, _ := lockgraph.Cycles(g); len(nodes) != 2 {
		t.Fatalf("cycle nodes from log: %v", nodes)
	}
}

// Lock orders saved by one run complete a cycle with the opposite
// order taken in a later run.
func TestLockOrderAcrossRuns(t *testing.T) {
	run := func(first, then string) *System {
		s := boot(t, DefaultConfig())
		s.NewMutex("M1", coremutex.Attributes{Discipline: coremutex.FIFO})
		s.NewMutex("M2", coremutex.Attributes{Discipline: coremutex.FIFO})
		a := start(t, s, "A", 10)
		s.Seize(a, first, true, 0)
		s.Seize(a, then, true, 0)
		s.Surrender(a, then)
		s.Surrender(a, first)
		if s.LockOrderReport(io.Discard) {
			t.Fatal("single run has a lock order cycle")
		}
		return s
	}
	var snap bytes.Buffer
	if err := run("M1", "M2").SaveLockOrder(&snap); err != nil {
		t.Fatal(err)
	}
	s := run("M2", "M1")
	if err := s.LoadLockOrder(&snap); err != nil {
		t.Fatal(err)
	}
	var report bytes.Buffer
	if !s.LockOrderReport(&report) {
		t.Fatal("no lock order cycle after load")
	}
	if !strings.Contains(report.String(), "M1 -> M2") {
		t.Fatalf("report:\n%s", report.String())
	}
	if err := s.LoadLockOrder(strings.NewReader("digraph {}\n")); !errors.Is(err, lockgraph.ErrNotSnapshot) {
		t.Fatalf("loading dot output: got %v, want ErrNotSnapshot", err)
	}
}

func TestContentionProfile(t *testing.T) {
	s := boot(t, DefaultConfig())
	s.NewMutex("M", coremutex.Attributes{Discipline: coremutex.Priority})
	a := start(t, s, "A", 10)
	b := start(t, s, "B", 5)
	s.Seize(a, "M", true, 0)
	s.Seize(b, "M", true, 0)
	s.Tick()
	s.Tick()
	s.Surrender(a, "M")

	var buf bytes.Buffer
	if err := s.ContentionProfile(&buf); err != nil {
		t.Fatal(err)
	}
	p, err := profile.Parse(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Sample) != 1 {
		t.Fatalf("%d samples, want 1", len(p.Sample))
	}
	tick := s.Clock().TickDuration()
	if got, want := p.Sample[0].Value[1], int64(2*tick); got != want {
		t.Fatalf("delay %v, want %v", got, want)
	}
}

// Threads on all processors contend for one mutex. Holders must never
// overlap and every seize is eventually satisfied.
func TestInterruptsRestored(t *testing.T) {
	s := boot(t, smpConfig(2, scheduler.AlgorithmPrioritySMP))
	s.NewMutex("M", coremutex.Attributes{Discipline: coremutex.PriorityInherit, OnlyOwnerRelease: true})
	s.NewFutex("F")
	a := start(t, s, "A", 10)
	b := start(t, s, "B", 5)
	disables := func() uint64 {
		var n uint64
		for _, c := range s.Processors().All() {
			n += c.ISR.Disables()
		}
		return n
	}
	before := disables()
	for _, step := range []struct {
		name string
		op   func() error
	}{
		{"seize", func() error { return wantCode(s.Seize(b, "M", true, 0))(status.Successful) }},
		{"try", func() error { return wantCode(s.Seize(a, "M", false, 0))(status.Unavailable) }},
		{"surrender by non-owner", func() error { return wantCode(s.Surrender(a, "M"))(status.NotOwner) }},
		{"seize blocks", func() error { return wantCode(s.Seize(a, "M", true, 0))(status.Blocked) }},
		{"surrender", func() error { return wantCode(s.Surrender(b, "M"))(status.Successful) }},
		{"futex mismatch", func() error {
			if err := s.FutexWait(b, "F", 1, 0); !errors.Is(err, unix.EAGAIN) {
				return fmt.Errorf("got %v, want EAGAIN", err)
			}
			return nil
		}},
		{"futex wait", func() error { return s.FutexWait(b, "F", 0, 0) }},
	} {
		if err := step.op(); err != nil {
			t.Fatalf("%s: %v", step.name, err)
		}
		for _, c := range s.Processors().All() {
			if !c.ISR.IsEnabled() {
				t.Fatalf("%s: interrupts of %v left disabled", step.name, c)
			}
		}
	}
	if disables() == before {
		t.Fatal("operations did not mask processor interrupts")
	}
}

// wantCode returns a check of the result of an operation.
func wantCode(code status.Code, err error) func(status.Code) error {
	return func(want status.Code) error {
		if err != nil {
			return err
		}
		if code != want {
			return fmt.Errorf("got %v, want %v", code, want)
		}
		return nil
	}
}

func TestConcurrentSeize(t *testing.T) {
	const (
		ncpu   = 4
		rounds = 100
	)
	s := boot(t, smpConfig(ncpu, scheduler.AlgorithmPrioritySMP))
	s.NewMutex("M", coremutex.Attributes{Discipline: coremutex.PriorityInherit})
	var g errgroup.Group
	var inside int32
	mu := make(chan struct{}, 1)
	for i := 0; i < ncpu; i++ {
		id := start(t, s, fmt.Sprintf("T%d", i), thread.Priority(10+i))
		g.Go(func() error {
			th := s.Thread(id)
			for r := 0; r < rounds; r++ {
				code, err := s.Seize(id, "M", true, 0)
				if err != nil {
					return err
				}
				if code == status.Blocked {
					<-th.Wait.Done()
					if c := th.Wait.ReturnCode(); c != status.Successful {
						return fmt.Errorf("%s: wait ended with %v", th.Name(), c)
					}
				} else if code != status.Successful {
					return fmt.Errorf("%s: seize: %v", th.Name(), code)
				}
				select {
				case mu <- struct{}{}:
				default:
					return fmt.Errorf("%s: holders overlap", th.Name())
				}
				inside++
				<-mu
				if code, _ := s.Surrender(id, "M"); code != status.Successful {
					return fmt.Errorf("%s: surrender: %v", th.Name(), code)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if inside != ncpu*rounds {
		t.Fatalf("%d critical sections, want %d", inside, ncpu*rounds)
	}
}
