// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package thread

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"supercore/internal/states"
	"supercore/status"
	"supercore/watchdog"
)

// WaitFlags track a thread through one blocking operation.
//
// The enqueuing side moves the flags from Ready to IntendToBlock while
// it holds the queue lock, and from IntendToBlock to Blocked once the
// thread was blocked in its scheduler. A waker that extracts the thread
// from the queue moves the flags to ReadyAgain. If the waker observed
// IntendToBlock, the enqueuing side has not blocked the thread yet and
// will notice ReadyAgain itself; if it observed Blocked, the waker must
// unblock the thread. The compare-and-swap on the flags decides which
// of a timeout and a concurrent wakeup completes the wait.
type WaitFlags uint32

const (
	WaitReady WaitFlags = iota
	WaitIntendToBlock
	WaitBlocked
	WaitReadyAgain
)

func (f WaitFlags) String() string {
	switch f {
	case WaitReady:
		return "ready"
	case WaitIntendToBlock:
		return "intend-to-block"
	case WaitBlocked:
		return "blocked"
	case WaitReadyAgain:
		return "ready-again"
	}
	return fmt.Sprintf("WaitFlags(%d)", uint32(f))
}

// Wait is the wait record of a thread.
type Wait struct {
	// mu protects queue. It nests inside the lock of the queue the
	// thread waits on.
	mu    sync.Mutex
	queue WaitQueue

	flags      atomic.Uint32
	returnCode atomic.Uint32

	// Seq is the enqueue sequence number used as the tie-break
	// among waiters of equal priority. EnqueuedAt is the clock tick
	// of the enqueue. State holds the state bits set for the wait.
	// All are written under the queue lock.
	Seq        uint64
	EnqueuedAt uint64
	State      states.State

	// Timer is the timeout watchdog of the current wait.
	Timer watchdog.Timer

	done     chan struct{}
	doneOnce *sync.Once
}

func (w *Wait) init() {
	w.done = make(chan struct{})
	w.doneOnce = new(sync.Once)
	close(w.done)
}

// Queue returns the queue the thread waits on, or nil.
func (w *Wait) Queue() WaitQueue {
	w.mu.Lock()
	q := w.queue
	w.mu.Unlock()
	return q
}

// Claim records q as the queue the thread waits on. It is called with
// the lock of q held.
func (w *Wait) Claim(q WaitQueue) {
	w.mu.Lock()
	w.queue = q
	w.mu.Unlock()
}

// RestoreDefault clears the queue the thread waits on. It is called
// with the lock of that queue held.
func (w *Wait) RestoreDefault() {
	w.mu.Lock()
	w.queue = nil
	w.mu.Unlock()
}

// Flags returns the wait flags.
func (w *Wait) Flags() WaitFlags { return WaitFlags(w.flags.Load()) }

// SetFlags unconditionally sets the wait flags.
func (w *Wait) SetFlags(f WaitFlags) { w.flags.Store(uint32(f)) }

// TryChangeFlags changes the flags from old to new and reports whether
// it succeeded.
func (w *Wait) TryChangeFlags(old, new WaitFlags) bool {
	return w.flags.CompareAndSwap(uint32(old), uint32(new))
}

// ReturnCode returns the result of the last wait.
func (w *Wait) ReturnCode() status.Code { return status.Code(w.returnCode.Load()) }

// SetReturnCode sets the result of the current wait.
func (w *Wait) SetReturnCode(c status.Code) { w.returnCode.Store(uint32(c)) }

// Begin starts a new wait. The return code defaults to Successful. It
// is called with the lock of the queue held.
func (w *Wait) Begin() {
	w.mu.Lock()
	w.done = make(chan struct{})
	w.doneOnce = new(sync.Once)
	w.mu.Unlock()
	w.returnCode.Store(uint32(status.Successful))
	w.flags.Store(uint32(WaitIntendToBlock))
}

// Complete ends the current wait. Waiters in Await are released and
// observe the return code. Completing a wait twice is a no-op.
func (w *Wait) Complete() {
	w.mu.Lock()
	done, once := w.done, w.doneOnce
	w.mu.Unlock()
	once.Do(func() { close(done) })
}

// Done returns a channel that is closed when the current wait
// completes.
func (w *Wait) Done() <-chan struct{} {
	w.mu.Lock()
	done := w.done
	w.mu.Unlock()
	return done
}

// IsDone reports whether the current wait completed.
func (w *Wait) IsDone() bool {
	select {
	case <-w.Done():
		return true
	default:
		return false
	}
}

// Await blocks until the current wait completes or ctx is done. It
// returns the return code of the wait, or the error of ctx.
func (w *Wait) Await(ctx context.Context) (status.Code, error) {
	select {
	case <-w.Done():
		return w.ReturnCode(), nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}
