// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kernel

import (
	"errors"
	"fmt"

	"supercore/internal/states"
	"supercore/scheduler"
	"supercore/status"
	"supercore/thread"
	"supercore/threadq"
)

var (
	// ErrInvalidID is returned for identifiers that do not name a
	// live thread or processor.
	ErrInvalidID = errors.New("invalid identifier")

	// ErrInvalidName is returned for unknown or duplicate object
	// names.
	ErrInvalidName = errors.New("invalid name")

	// ErrIncorrectState is returned when a thread is not in a state
	// the operation accepts.
	ErrIncorrectState = errors.New("incorrect state")
)

// thread returns the live thread named by id.
func (s *System) thread(id thread.ID) (*thread.Thread, error) {
	t := s.reg.Lookup(id)
	if t == nil || t.IsIdle() {
		return nil, fmt.Errorf("kernel: thread %v: %w", id, ErrInvalidID)
	}
	return t, nil
}

// Thread returns the live thread named by id, or nil.
func (s *System) Thread(id thread.ID) *thread.Thread {
	t, _ := s.thread(id)
	return t
}

// LookupThread returns the thread called name, or nil.
func (s *System) LookupThread(name string) *thread.Thread {
	t := s.reg.LookupName(name)
	if t == nil || t.IsIdle() {
		return nil
	}
	return t
}

// CreateThread creates a dormant thread with priority p, homed in the
// scheduler instance named sched. An empty sched selects the first
// instance.
func (s *System) CreateThread(name string, p thread.Priority, sched string) (thread.ID, error) {
	if p < thread.PriorityHighest+1 || p > s.cfg.MaxPriority {
		return 0, fmt.Errorf("kernel: thread %s: priority %v: %w", name, p, status.InvalidPriority)
	}
	sc := s.schedulers[0]
	if sched != "" {
		if sc = s.byName[sched]; sc == nil {
			return 0, fmt.Errorf("kernel: thread %s: no scheduler %q: %w", name, sched, ErrInvalidName)
		}
	}
	if name != "" && s.reg.LookupName(name) != nil {
		return 0, fmt.Errorf("kernel: thread %s exists: %w", name, ErrInvalidName)
	}
	t, err := s.reg.Allocate(name, p)
	if err != nil {
		return 0, fmt.Errorf("kernel: thread %s: %w", name, err)
	}
	scheduler.Attach(t, sc)
	s.log.Debug("create thread", "thread", name, "id", t.ID(), "priority", p, "scheduler", sc.Name())
	return t.ID(), nil
}

// StartThread makes a dormant thread ready.
func (s *System) StartThread(id thread.ID) error {
	t, err := s.thread(id)
	if err != nil {
		return err
	}
	if !t.State().Has(states.Dormant) {
		return fmt.Errorf("kernel: start %s: %w", t.Name(), ErrIncorrectState)
	}
	t.ClearState(states.Dormant)
	scheduler.Unblock(t)
	s.dispatch()
	return nil
}

// SuspendThread suspends t. A waiting thread stays suspended after its
// wait ends.
func (s *System) SuspendThread(id thread.ID) error {
	t, err := s.thread(id)
	if err != nil {
		return err
	}
	if t.State().HasAny(states.Suspended | states.Dormant) {
		return fmt.Errorf("kernel: suspend %s: %w", t.Name(), ErrIncorrectState)
	}
	t.SetState(states.Suspended)
	scheduler.Block(t)
	s.dispatch()
	return nil
}

// ResumeThread ends the suspension of t.
func (s *System) ResumeThread(id thread.ID) error {
	t, err := s.thread(id)
	if err != nil {
		return err
	}
	if !t.State().Has(states.Suspended) {
		return fmt.Errorf("kernel: resume %s: %w", t.Name(), ErrIncorrectState)
	}
	t.ClearState(states.Suspended)
	scheduler.Unblock(t)
	s.dispatch()
	return nil
}

// SetPriority changes the real priority of t and returns the old one.
// While t holds mutexes with a priority protocol it keeps its boosts.
func (s *System) SetPriority(id thread.ID, p thread.Priority) (thread.Priority, error) {
	t, err := s.thread(id)
	if err != nil {
		return 0, err
	}
	if p < thread.PriorityHighest+1 || p > s.cfg.MaxPriority {
		return 0, fmt.Errorf("kernel: %s: priority %v: %w", t.Name(), p, status.InvalidPriority)
	}
	old := t.RealPriority()
	if t.SetRealPriority(p) {
		s.domain.PriorityChanged(t)
	}
	s.dispatch()
	return old, nil
}

// SetAffinity restricts t to the processors in set.
func (s *System) SetAffinity(id thread.ID, set scheduler.ProcessorSet) error {
	t, err := s.thread(id)
	if err != nil {
		return err
	}
	if !scheduler.SetAffinity(t, set) {
		return fmt.Errorf("kernel: %s: affinity %v: %w", t.Name(), set, status.InvalidNumber)
	}
	s.dispatch()
	return nil
}

// SetScheduler moves t to the scheduler instance named sched.
func (s *System) SetScheduler(id thread.ID, sched string) error {
	t, err := s.thread(id)
	if err != nil {
		return err
	}
	sc := s.byName[sched]
	if sc == nil {
		return fmt.Errorf("kernel: no scheduler %q: %w", sched, ErrInvalidName)
	}
	if t.ResourceCount() != 0 {
		return fmt.Errorf("kernel: %s holds resources: %w", t.Name(), status.ResourceInUse)
	}
	if err := scheduler.Migrate(t, sc); err != nil {
		return err
	}
	s.dispatch()
	return nil
}

// Yield moves t behind the ready threads of its priority.
func (s *System) Yield(id thread.ID) error {
	t, err := s.thread(id)
	if err != nil {
		return err
	}
	scheduler.Yield(t)
	s.dispatch()
	return nil
}

// DeleteThread deletes t. A thread holding mutexes cannot be deleted;
// a waiting thread is taken off its queue with status
// ObjectWasDeleted first.
func (s *System) DeleteThread(id thread.ID) error {
	t, err := s.thread(id)
	if err != nil {
		return err
	}
	if s.holdsMutex(t) {
		return fmt.Errorf("kernel: delete %s: %w", t.Name(), status.ResourceInUse)
	}
	t.SetState(states.LifeIsChanging)
	scheduler.Block(t)
	if q, ok := t.Wait.Queue().(*threadq.Queue); ok && q != nil {
		q.ExtractWithCode(t, status.ObjectWasDeleted)
	}
	t.SetState(states.Zombie)
	scheduler.Detach(t)
	s.reg.Free(t)
	s.dispatch()
	s.log.Debug("delete thread", "thread", t.Name(), "id", id)
	return nil
}

// WaitStatus reports the outcome of the last wait of t. done is false
// while t still waits.
func (s *System) WaitStatus(id thread.ID) (code status.Code, done bool, err error) {
	t, err := s.thread(id)
	if err != nil {
		return 0, false, err
	}
	if t.Wait.Queue() != nil {
		return 0, false, nil
	}
	return t.Wait.ReturnCode(), true, nil
}
