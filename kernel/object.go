// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kernel

import (
	"fmt"
	"sort"
	"sync/atomic"

	"supercore/coremutex"
	"supercore/futex"
	"supercore/internal/locklog"
	"supercore/status"
	"supercore/thread"
	"supercore/threadq"
)

// A Mutex is a named core mutex of a system.
type Mutex struct {
	*coremutex.Mutex
	id uint64
}

// ID returns the lock identifier used in the lock log.
func (m *Mutex) ID() uint64 { return m.id }

// A Futex is a named futex of a system together with its value.
type Futex struct {
	*futex.Futex
	Value atomic.Uint32
}

// NewMutex creates a mutex called name.
func (s *System) NewMutex(name string, attr coremutex.Attributes) (*Mutex, error) {
	if attr.Discipline == coremutex.PriorityCeiling && attr.PriorityCeiling > s.cfg.MaxPriority {
		return nil, fmt.Errorf("kernel: mutex %s: ceiling %v: %w", name, attr.PriorityCeiling, status.InvalidPriority)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.mutexes[name]; ok || name == "" {
		return nil, fmt.Errorf("kernel: mutex %q: %w", name, ErrInvalidName)
	}
	s.nextID++
	m := &Mutex{Mutex: coremutex.New(s.domain, name, attr), id: s.nextID}
	s.mutexes[name] = m
	s.byQueue[m.Queue()] = m
	return m, nil
}

// Mutex returns the mutex called name, or nil.
func (s *System) Mutex(name string) *Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mutexes[name]
}

// Mutexes returns the mutexes sorted by name.
func (s *System) Mutexes() []*Mutex {
	s.mu.Lock()
	ms := make([]*Mutex, 0, len(s.mutexes))
	for _, m := range s.mutexes {
		ms = append(ms, m)
	}
	s.mu.Unlock()
	sort.Slice(ms, func(i, j int) bool { return ms[i].Name() < ms[j].Name() })
	return ms
}

// holdsMutex reports whether t holds any mutex of the system.
func (s *System) holdsMutex(t *thread.Thread) bool {
	for _, m := range s.Mutexes() {
		if m.Holder() == t {
			return true
		}
	}
	return false
}

// DeleteMutex deletes an unlocked mutex.
func (s *System) DeleteMutex(name string) error {
	m := s.Mutex(name)
	if m == nil {
		return fmt.Errorf("kernel: mutex %q: %w", name, ErrInvalidName)
	}
	if code := m.Destroy(); code != status.Successful {
		return fmt.Errorf("kernel: delete mutex %s: %w", name, code)
	}
	s.mu.Lock()
	delete(s.mutexes, name)
	delete(s.byQueue, m.Queue())
	s.mu.Unlock()
	return nil
}

// queueContext returns a queue context for an operation of t waiting
// at most ticks clock ticks; zero ticks means no timeout. Locks
// acquired through it mask the interrupts of the processor t is
// assigned to.
func (s *System) queueContext(t *thread.Thread, ticks uint64) *threadq.Context {
	qc := new(threadq.Context)
	if ticks != 0 {
		qc.SetRelativeTimeout(ticks)
	}
	if cpu := t.CPU(); cpu >= 0 {
		qc.Lock = s.cpus.Get(cpu).Context()
	}
	return qc
}

// Seize makes thread id seize the mutex called name. If the mutex is
// held by another thread and wait is set, the ready thread blocks for at
// most ticks clock ticks and Seize returns status.Blocked; the
// outcome is reported later by WaitStatus.
func (s *System) Seize(id thread.ID, name string, wait bool, ticks uint64) (status.Code, error) {
	t, err := s.thread(id)
	if err != nil {
		return 0, err
	}
	m := s.Mutex(name)
	if m == nil {
		return 0, fmt.Errorf("kernel: mutex %q: %w", name, ErrInvalidName)
	}
	if !t.IsReady() {
		return 0, fmt.Errorf("kernel: %s seize %s: %w", t.Name(), name, ErrIncorrectState)
	}
	code := m.Mutex.Seize(t, wait, s.queueContext(t, ticks))
	if code == status.Successful && m.Holder() == t && m.NestCount() == 1 {
		s.logLock(locklog.OpAcquire, t, m)
	}
	if code == status.Deadlock {
		s.log.Debug("deadlock", "thread", t.Name(), "mutex", name)
	}
	s.dispatch()
	return code, nil
}

// Surrender makes thread id release the mutex called name.
func (s *System) Surrender(id thread.ID, name string) (status.Code, error) {
	t, err := s.thread(id)
	if err != nil {
		return 0, err
	}
	m := s.Mutex(name)
	if m == nil {
		return 0, fmt.Errorf("kernel: mutex %q: %w", name, ErrInvalidName)
	}
	held := m.Holder() == t && m.NestCount() == 1
	code := m.Mutex.Surrender(t, s.queueContext(t, 0))
	if code == status.Successful && held {
		s.logLock(locklog.OpRelease, t, m)
	}
	s.dispatch()
	return code, nil
}

// SetPriorityCeiling changes the ceiling of the mutex called name and
// returns the old one.
func (s *System) SetPriorityCeiling(name string, p thread.Priority) (thread.Priority, error) {
	m := s.Mutex(name)
	if m == nil {
		return 0, fmt.Errorf("kernel: mutex %q: %w", name, ErrInvalidName)
	}
	if p > s.cfg.MaxPriority {
		return 0, fmt.Errorf("kernel: mutex %s: ceiling %v: %w", name, p, status.InvalidPriority)
	}
	old, code := m.Mutex.SetPriorityCeiling(p)
	if code != status.Successful {
		return 0, fmt.Errorf("kernel: mutex %s: %w", name, code)
	}
	s.dispatch()
	return old, nil
}

// NewFutex creates a futex called name with value zero.
func (s *System) NewFutex(name string) (*Futex, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.futexes[name]; ok || name == "" {
		return nil, fmt.Errorf("kernel: futex %q: %w", name, ErrInvalidName)
	}
	f := &Futex{Futex: futex.New(s.domain, name)}
	s.futexes[name] = f
	return f, nil
}

// Futex returns the futex called name, or nil.
func (s *System) Futex(name string) *Futex {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.futexes[name]
}

// Futexes returns the futexes sorted by name.
func (s *System) Futexes() []*Futex {
	s.mu.Lock()
	fs := make([]*Futex, 0, len(s.futexes))
	for _, f := range s.futexes {
		fs = append(fs, f)
	}
	s.mu.Unlock()
	sort.Slice(fs, func(i, j int) bool { return fs[i].Name() < fs[j].Name() })
	return fs
}

// FutexWait blocks thread id on the futex called name if its value is
// expected. It returns unix.EAGAIN if the value differs.
func (s *System) FutexWait(id thread.ID, name string, expected uint32, ticks uint64) error {
	t, err := s.thread(id)
	if err != nil {
		return err
	}
	f := s.Futex(name)
	if f == nil {
		return fmt.Errorf("kernel: futex %q: %w", name, ErrInvalidName)
	}
	if !t.IsReady() {
		return fmt.Errorf("kernel: %s wait %s: %w", t.Name(), name, ErrIncorrectState)
	}
	err = f.Wait(t, &f.Value, expected, s.queueContext(t, ticks))
	s.dispatch()
	return err
}

// FutexWake wakes up to n threads waiting on the futex called name and
// returns how many it woke.
func (s *System) FutexWake(name string, n int) (int, error) {
	f := s.Futex(name)
	if f == nil {
		return 0, fmt.Errorf("kernel: futex %q: %w", name, ErrInvalidName)
	}
	woken := f.Wake(n)
	s.dispatch()
	return woken, nil
}

// SetFutexValue stores v in the futex called name.
func (s *System) SetFutexValue(name string, v uint32) error {
	f := s.Futex(name)
	if f == nil {
		return fmt.Errorf("kernel: futex %q: %w", name, ErrInvalidName)
	}
	f.Value.Store(v)
	return nil
}

// DeleteFutex deletes a futex without waiters.
func (s *System) DeleteFutex(name string) error {
	f := s.Futex(name)
	if f == nil {
		return fmt.Errorf("kernel: futex %q: %w", name, ErrInvalidName)
	}
	if err := f.Destroy(); err != nil {
		return fmt.Errorf("kernel: delete futex %s: %w", name, err)
	}
	s.mu.Lock()
	delete(s.futexes, name)
	s.mu.Unlock()
	return nil
}
