// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package contention collects a contention profile of thread-queue
// waits in pprof format.
//
// Every completed wait contributes one contention and its delay to the
// sample of the (queue, thread) pair. The sample's stack has the queue
// as its leaf frame and the waiting thread as its caller, so pprof
// shows the most contended objects at the top and the threads that
// waited for them beneath.
package contention

import (
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/pprof/profile"

	"supercore/status"
	"supercore/thread"
	"supercore/threadq"
)

type key struct {
	queue, thread string
}

type sample struct {
	count, delay int64
	timeouts     int64
}

// A Profile is a threadq.Observer accumulating contention samples.
type Profile struct {
	tick time.Duration

	mu      sync.Mutex
	samples map[key]*sample
	waiting int
}

// New returns an empty profile for a clock with the given tick.
func New(tick time.Duration) *Profile {
	return &Profile{tick: tick, samples: make(map[key]*sample)}
}

// Enqueued implements threadq.Observer.
func (p *Profile) Enqueued(q *threadq.Queue, t *thread.Thread) {
	p.mu.Lock()
	p.waiting++
	p.mu.Unlock()
}

// Dequeued implements threadq.Observer.
func (p *Profile) Dequeued(q *threadq.Queue, t *thread.Thread, waited uint64, code status.Code) {
	k := key{q.Name(), t.Name()}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.waiting > 0 {
		p.waiting--
	}
	s := p.samples[k]
	if s == nil {
		s = new(sample)
		p.samples[k] = s
	}
	s.count++
	s.delay += int64(waited) * int64(p.tick)
	if code == status.Timeout {
		s.timeouts++
	}
}

// Waiting returns the number of waits in progress.
func (p *Profile) Waiting() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waiting
}

// Reset discards all samples.
func (p *Profile) Reset() {
	p.mu.Lock()
	p.samples = make(map[key]*sample)
	p.mu.Unlock()
}

// Build returns the pprof profile of the samples collected so far.
func (p *Profile) Build() *profile.Profile {
	p.mu.Lock()
	keys := make([]key, 0, len(p.samples))
	vals := make(map[key]sample, len(p.samples))
	for k, s := range p.samples {
		keys = append(keys, k)
		vals[k] = *s
	}
	p.mu.Unlock()
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].queue != keys[j].queue {
			return keys[i].queue < keys[j].queue
		}
		return keys[i].thread < keys[j].thread
	})

	prof := &profile.Profile{
		SampleType: []*profile.ValueType{
			{Type: "contentions", Unit: "count"},
			{Type: "delay", Unit: "nanoseconds"},
		},
		PeriodType: &profile.ValueType{Type: "contentions", Unit: "count"},
		Period:     1,
	}
	locs := make(map[string]*profile.Location)
	location := func(name, file string) *profile.Location {
		if l, ok := locs[file+"\x00"+name]; ok {
			return l
		}
		fn := &profile.Function{
			ID:         uint64(len(prof.Function) + 1),
			Name:       name,
			SystemName: name,
			Filename:   file,
		}
		prof.Function = append(prof.Function, fn)
		l := &profile.Location{
			ID:   uint64(len(prof.Location) + 1),
			Line: []profile.Line{{Function: fn}},
		}
		prof.Location = append(prof.Location, l)
		locs[file+"\x00"+name] = l
		return l
	}
	for _, k := range keys {
		s := vals[k]
		ps := &profile.Sample{
			Location: []*profile.Location{location(k.queue, "queue"), location(k.thread, "thread")},
			Value:    []int64{s.count, s.delay},
		}
		if s.timeouts > 0 {
			ps.NumLabel = map[string][]int64{"timeouts": {s.timeouts}}
		}
		prof.Sample = append(prof.Sample, ps)
	}
	return prof
}

// WriteTo writes the profile to w in the gzipped protobuf format read
// by pprof.
func (p *Profile) WriteTo(w io.Writer) error {
	return p.Build().Write(w)
}
