// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package watchdog implements the tick-driven timeout service.
//
// A Header keeps the armed timers of one clock in a 4-ary heap ordered
// by expiry tick. Tick advances the clock and runs the functions of the
// timers that expired, outside the header lock, so a timeout function
// may take thread queue locks.
package watchdog

import (
	"time"

	"supercore/internal/isrlock"
)

// A Func is called when a timer expires.
type Func func(arg any)

// A Timer is a watchdog. The zero value is an inactive timer. A Timer
// belongs to at most one Header at a time.
type Timer struct {
	i    int // heap index, -1 when inactive
	when uint64
	seq  uint64
	f    Func
	arg  any
	h    *Header
}

// IsActive reports whether t is armed. The caller must prevent
// concurrent Insert and Remove calls on t.
func (t *Timer) IsActive() bool { return t.h != nil }

// Expiry returns the tick at which t expires. It is meaningful only
// while t is active.
func (t *Timer) Expiry() uint64 { return t.when }

// A Header is a clock with its set of armed timers.
type Header struct {
	lock      isrlock.Lock
	timers    []*Timer
	ticks     uint64
	seq       uint64
	nsPerTick uint64
	fired     uint64
}

// NewHeader returns a clock at tick zero whose tick lasts tick.
func NewHeader(tick time.Duration) *Header {
	if tick <= 0 {
		tick = 10 * time.Millisecond
	}
	return &Header{nsPerTick: uint64(tick)}
}

// Ticks returns the number of ticks since boot.
func (h *Header) Ticks() uint64 {
	var lc isrlock.Context
	h.lock.Acquire(&lc)
	n := h.ticks
	h.lock.Release(&lc)
	return n
}

// Uptime returns the monotonic time since boot.
func (h *Header) Uptime() time.Duration {
	return time.Duration(h.Ticks() * h.nsPerTick)
}

// TickDuration returns the length of one tick.
func (h *Header) TickDuration() time.Duration { return time.Duration(h.nsPerTick) }

// Len returns the number of armed timers.
func (h *Header) Len() int {
	var lc isrlock.Context
	h.lock.Acquire(&lc)
	n := len(h.timers)
	h.lock.Release(&lc)
	return n
}

// Fired returns the number of timer functions run so far.
func (h *Header) Fired() uint64 {
	var lc isrlock.Context
	h.lock.Acquire(&lc)
	n := h.fired
	h.lock.Release(&lc)
	return n
}

// Insert arms t to call f(arg) after the given number of ticks. An
// interval of zero expires at the next tick. An active t is rearmed.
func (h *Header) Insert(t *Timer, ticks uint64, f Func, arg any) {
	var lc isrlock.Context
	h.lock.Acquire(&lc)
	if ticks == 0 {
		ticks = 1
	}
	h.insertLocked(t, h.ticks+ticks, f, arg)
	h.lock.Release(&lc)
}

// InsertAbsolute arms t to call f(arg) at the given tick. A tick that
// already passed expires at the next tick.
func (h *Header) InsertAbsolute(t *Timer, when uint64, f Func, arg any) {
	var lc isrlock.Context
	h.lock.Acquire(&lc)
	if when <= h.ticks {
		when = h.ticks + 1
	}
	h.insertLocked(t, when, f, arg)
	h.lock.Release(&lc)
}

func (h *Header) insertLocked(t *Timer, when uint64, f Func, arg any) {
	if t.h != nil {
		t.h.removeLocked(t)
	}
	h.seq++
	t.when = when
	t.seq = h.seq
	t.f = f
	t.arg = arg
	t.h = h
	t.i = len(h.timers)
	h.timers = append(h.timers, t)
	h.siftup(t.i)
}

// Remove disarms t. It reports whether t was active; removing an
// inactive timer is a no-op.
func (h *Header) Remove(t *Timer) bool {
	var lc isrlock.Context
	h.lock.Acquire(&lc)
	ok := t.h == h
	if ok {
		h.removeLocked(t)
	}
	h.lock.Release(&lc)
	return ok
}

func (h *Header) removeLocked(t *Timer) {
	i := t.i
	last := len(h.timers) - 1
	if i != last {
		h.timers[i] = h.timers[last]
		h.timers[i].i = i
	}
	h.timers[last] = nil
	h.timers = h.timers[:last]
	if i != last {
		h.siftup(i)
		h.siftdown(i)
	}
	t.i = -1
	t.h = nil
}

// Tick advances the clock by one tick and runs the functions of all
// timers that expired. It returns the number of functions run.
func (h *Header) Tick() int {
	var lc isrlock.Context
	h.lock.Acquire(&lc)
	h.ticks++
	var expired []*Timer
	for len(h.timers) > 0 && h.timers[0].when <= h.ticks {
		t := h.timers[0]
		h.removeLocked(t)
		expired = append(expired, t)
	}
	h.fired += uint64(len(expired))
	h.lock.Release(&lc)

	for _, t := range expired {
		t.f(t.arg)
	}
	return len(expired)
}

func (h *Header) less(a, b *Timer) bool {
	if a.when != b.when {
		return a.when < b.when
	}
	return a.seq < b.seq
}

// Heap maintenance algorithms.

func (h *Header) siftup(i int) {
	t := h.timers
	tmp := t[i]
	for i > 0 {
		p := (i - 1) / 4 // parent
		if !h.less(tmp, t[p]) {
			break
		}
		t[i] = t[p]
		t[i].i = i
		i = p
	}
	t[i] = tmp
	tmp.i = i
}

func (h *Header) siftdown(i int) {
	t := h.timers
	n := len(t)
	tmp := t[i]
	for {
		c := i*4 + 1 // left child
		c3 := c + 2  // mid child
		if c >= n {
			break
		}
		m := t[c]
		if c+1 < n && h.less(t[c+1], m) {
			c++
			m = t[c]
		}
		if c3 < n {
			m3 := t[c3]
			if c3+1 < n && h.less(t[c3+1], m3) {
				c3++
				m3 = t[c3]
			}
			if h.less(m3, m) {
				c = c3
				m = m3
			}
		}
		if !h.less(m, tmp) {
			break
		}
		t[i] = m
		m.i = i
		i = c
	}
	t[i] = tmp
	tmp.i = i
}
