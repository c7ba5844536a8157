// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package kernel assembles the core into a system: the per-processor
// table, the clock, the thread registry, the scheduler instances and
// the thread-queue domain, plus the thread and object services built
// on them.
//
// A System is created by Boot and is never torn down. Its services may
// be called from any goroutine; each goroutine plays the role of code
// running on some processor on behalf of a thread. Every service ends
// with a dispatch, so the executing thread of each processor is its
// heir when the service returns.
package kernel

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"supercore/fatal"
	"supercore/internal/contention"
	"supercore/internal/lockgraph"
	"supercore/internal/locklog"
	"supercore/percpu"
	"supercore/scheduler"
	"supercore/status"
	"supercore/thread"
	"supercore/threadq"
	"supercore/watchdog"
)

// A System is a booted kernel.
type System struct {
	cfg    Config
	log    *slog.Logger
	fatal  fatal.Handler
	cpus   *percpu.Table
	clock  *watchdog.Header
	reg    *thread.Registry
	domain *threadq.Domain

	schedulers []scheduler.Scheduler
	byName     map[string]scheduler.Scheduler
	idle       []*thread.Thread // processor index -> idle thread

	profile   *contention.Profile
	lockLog   *locklog.Writer
	lockOrder *lockgraph.Builder

	mu      sync.Mutex
	nextID  uint64
	mutexes map[string]*Mutex
	byQueue map[*threadq.Queue]*Mutex
	futexes map[string]*Futex
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// Boot validates cfg and builds a system. Configuration-level fatal
// conditions stop the boot through the fatal handler of cfg; Boot
// does not return in that case.
func Boot(cfg Config) (*System, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(discardHandler{})
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &System{
		cfg:     cfg,
		log:     logger,
		fatal:   cfg.FatalHandler,
		byName:  make(map[string]scheduler.Scheduler),
		mutexes: make(map[string]*Mutex),
		byQueue: make(map[*threadq.Queue]*Mutex),
		futexes: make(map[string]*Futex),
	}
	if cfg.IdleStackSize < cfg.MinimumStackSize {
		s.terminate(fatal.InternalErrorIdleThreadStackTooSmall,
			fmt.Sprintf("idle stack size %d below minimum %d", cfg.IdleStackSize, cfg.MinimumStackSize))
	}
	if cfg.MaxTLSSize != 0 && cfg.TLSSize > cfg.MaxTLSSize {
		s.terminate(fatal.InternalErrorTooLargeTLSSize,
			fmt.Sprintf("thread-local storage size %d above maximum %d", cfg.TLSSize, cfg.MaxTLSSize))
	}

	s.cpus = percpu.NewTable(cfg.Processors)
	s.clock = watchdog.NewHeader(cfg.TickDuration())
	s.reg = thread.NewRegistry(cfg.MaxThreads + cfg.Processors)
	s.idle = make([]*thread.Thread, cfg.Processors)

	for _, sc := range cfg.Schedulers {
		a, _ := scheduler.ParseAlgorithm(sc.Algorithm)
		sched := scheduler.New(sc.Name, a, cfg.MaxPriority)
		s.schedulers = append(s.schedulers, sched)
		s.byName[sc.Name] = sched
		for _, cpu := range sc.Processors {
			idle, err := s.reg.AllocateIdle(fmt.Sprintf("IDLE%d", cpu), thread.PriorityIdle(cfg.MaxPriority))
			if err != nil {
				s.terminate(fatal.InternalErrorIdleThreadCreateFailed, err.Error())
			}
			if err := sched.AddProcessor(s.cpus.Get(cpu), idle); err != nil {
				s.terminate(fatal.InternalErrorBadSchedulerConfiguration, err.Error())
			}
			s.idle[cpu] = idle
		}
		s.log.Debug("scheduler", "name", sc.Name, "algorithm", a, "processors", sched.Processors())
	}

	s.domain = threadq.NewDomain(s.clock, s.fatal)
	s.profile = contention.New(cfg.TickDuration())
	s.lockOrder = lockgraph.NewBuilder()
	if cfg.LockLog != nil {
		w, err := locklog.NewWriter(cfg.LockLog)
		if err != nil {
			return nil, err
		}
		s.lockLog = w
	}
	s.domain.Observer = observer{s}

	s.dispatch()
	s.log.Debug("boot", "processors", cfg.Processors, "schedulers", len(s.schedulers))
	return s, nil
}

// terminate logs and raises a fatal error of the core.
func (s *System) terminate(code fatal.Code, msg string) {
	s.log.Error("fatal error", "source", fatal.SourceCore, "code", code, "msg", msg)
	s.fatal.Terminate(fatal.SourceCore, code, msg)
}

// dispatch switches every processor to its heir.
func (s *System) dispatch() {
	s.cpus.DispatchAll()
}

// Config returns the configuration of the system.
func (s *System) Config() Config { return s.cfg }

// Logger returns the logger of the system.
func (s *System) Logger() *slog.Logger { return s.log }

// Processors returns the processor table.
func (s *System) Processors() *percpu.Table { return s.cpus }

// Clock returns the system clock.
func (s *System) Clock() *watchdog.Header { return s.clock }

// Domain returns the thread-queue domain.
func (s *System) Domain() *threadq.Domain { return s.domain }

// Registry returns the thread registry.
func (s *System) Registry() *thread.Registry { return s.reg }

// Scheduler returns the scheduler instance named name, or nil.
func (s *System) Scheduler(name string) scheduler.Scheduler { return s.byName[name] }

// Schedulers returns the scheduler instances in configuration order.
func (s *System) Schedulers() []scheduler.Scheduler { return s.schedulers }

// Executing returns the thread executing on processor cpu.
func (s *System) Executing(cpu int) *thread.Thread {
	if c := s.cpus.Get(cpu); c != nil {
		return c.Executing()
	}
	return nil
}

// Heir returns the heir of processor cpu.
func (s *System) Heir(cpu int) *thread.Thread {
	if c := s.cpus.Get(cpu); c != nil {
		return c.Heir()
	}
	return nil
}

// Tick announces a clock tick. Expired timeouts end their waits.
func (s *System) Tick() {
	s.clock.Tick()
	s.dispatch()
}

// AddProcessor hands the offline processor cpu to the scheduler named
// sched.
func (s *System) AddProcessor(sched string, cpu int) error {
	sc := s.byName[sched]
	c := s.cpus.Get(cpu)
	switch {
	case sc == nil:
		return fmt.Errorf("kernel: no scheduler %q: %w", sched, ErrInvalidName)
	case c == nil:
		return fmt.Errorf("kernel: no processor %d: %w", cpu, ErrInvalidID)
	case c.IsOnline():
		return fmt.Errorf("kernel: processor %d is online", cpu)
	}
	idle := s.idle[cpu]
	if idle == nil {
		var err error
		idle, err = s.reg.AllocateIdle(fmt.Sprintf("IDLE%d", cpu), thread.PriorityIdle(s.cfg.MaxPriority))
		if err != nil {
			return fmt.Errorf("kernel: idle thread for processor %d: %w", cpu, err)
		}
	}
	if err := sc.AddProcessor(c, idle); err != nil {
		return err
	}
	s.idle[cpu] = idle
	s.dispatch()
	s.log.Debug("add processor", "cpu", cpu, "scheduler", sched)
	return nil
}

// RemoveProcessor takes processor cpu from its scheduler. The thread
// running on it is rescheduled on the other processors of the
// instance.
func (s *System) RemoveProcessor(cpu int) error {
	c := s.cpus.Get(cpu)
	if c == nil {
		return fmt.Errorf("kernel: no processor %d: %w", cpu, ErrInvalidID)
	}
	for _, sc := range s.schedulers {
		if !sc.Processors().Has(cpu) {
			continue
		}
		if _, err := sc.RemoveProcessor(c); err != nil {
			return err
		}
		s.dispatch()
		s.log.Debug("remove processor", "cpu", cpu, "scheduler", sc.Name())
		return nil
	}
	return fmt.Errorf("kernel: processor %d is offline", cpu)
}

// observer forwards thread-queue events to the contention profile and
// the lock log.
type observer struct{ s *System }

func (o observer) Enqueued(q *threadq.Queue, t *thread.Thread) {
	o.s.profile.Enqueued(q, t)
	if m := o.s.mutexOf(q); m != nil {
		o.s.logLock(locklog.OpBlock, t, m)
	}
}

func (o observer) Dequeued(q *threadq.Queue, t *thread.Thread, waited uint64, code status.Code) {
	o.s.profile.Dequeued(q, t, waited, code)
	if m := o.s.mutexOf(q); m != nil && m.Holder() == t {
		o.s.logLock(locklog.OpAcquire, t, m)
	}
}

func (s *System) mutexOf(q *threadq.Queue) *Mutex {
	s.mu.Lock()
	m := s.byQueue[q]
	s.mu.Unlock()
	return m
}

// logLock records a lock operation in the lock log and the lock order
// graph.
func (s *System) logLock(op locklog.Op, t *thread.Thread, m *Mutex) {
	cpu := t.CPU()
	if cpu < 0 {
		cpu = 0
	}
	rec := locklog.Record{Op: op, CPU: cpu, Thread: uint32(t.ID()), Lock: m.id, Class: m.Name()}
	s.mu.Lock()
	err := s.lockOrder.Record(&rec)
	s.mu.Unlock()
	if err == nil && s.lockLog != nil {
		err = s.lockLog.Log(&rec)
	}
	if err != nil {
		s.log.Warn("lock log", "err", err)
	}
}

// FlushLockLog writes buffered lock log records.
func (s *System) FlushLockLog() error {
	if s.lockLog == nil {
		return nil
	}
	return s.lockLog.Flush()
}
