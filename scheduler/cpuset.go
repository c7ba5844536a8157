// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scheduler

import (
	"fmt"
	"math/bits"
	"strconv"
	"strings"
)

// MaxProcessors is the number of processors a ProcessorSet can hold.
const MaxProcessors = 64

// A ProcessorSet is a set of processor indices.
type ProcessorSet uint64

// AllProcessors returns the set of processors 0 through n-1.
func AllProcessors(n int) ProcessorSet {
	if n >= MaxProcessors {
		return ^ProcessorSet(0)
	}
	return ProcessorSet(1)<<n - 1
}

// ProcessorSetOf returns the set holding the given processors.
func ProcessorSetOf(cpus ...int) ProcessorSet {
	var s ProcessorSet
	for _, c := range cpus {
		s = s.Add(c)
	}
	return s
}

// Has reports whether cpu is in s.
func (s ProcessorSet) Has(cpu int) bool {
	return cpu >= 0 && cpu < MaxProcessors && s&(1<<cpu) != 0
}

// Add returns s with cpu added.
func (s ProcessorSet) Add(cpu int) ProcessorSet {
	if cpu < 0 || cpu >= MaxProcessors {
		return s
	}
	return s | 1<<cpu
}

// Remove returns s without cpu.
func (s ProcessorSet) Remove(cpu int) ProcessorSet {
	if cpu < 0 || cpu >= MaxProcessors {
		return s
	}
	return s &^ (1 << cpu)
}

// And returns the intersection of s and t.
func (s ProcessorSet) And(t ProcessorSet) ProcessorSet { return s & t }

// Count returns the number of processors in s.
func (s ProcessorSet) Count() int { return bits.OnesCount64(uint64(s)) }

// IsEmpty reports whether s holds no processor.
func (s ProcessorSet) IsEmpty() bool { return s == 0 }

// Contains reports whether t is a subset of s.
func (s ProcessorSet) Contains(t ProcessorSet) bool { return t&^s == 0 }

// First returns the lowest processor in s, or -1.
func (s ProcessorSet) First() int {
	if s == 0 {
		return -1
	}
	return bits.TrailingZeros64(uint64(s))
}

// Each calls f for every processor in s in ascending order.
func (s ProcessorSet) Each(f func(cpu int)) {
	for s != 0 {
		c := bits.TrailingZeros64(uint64(s))
		f(c)
		s &^= 1 << c
	}
}

// String formats s as a list of ranges, such as "0-2,5".
func (s ProcessorSet) String() string {
	if s == 0 {
		return "{}"
	}
	var b strings.Builder
	for c := 0; c < MaxProcessors; c++ {
		if !s.Has(c) {
			continue
		}
		e := c
		for e+1 < MaxProcessors && s.Has(e+1) {
			e++
		}
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		if e == c {
			fmt.Fprintf(&b, "%d", c)
		} else {
			fmt.Fprintf(&b, "%d-%d", c, e)
		}
		c = e
	}
	return b.String()
}

// ParseProcessorSet parses the String form of a processor set.
func ParseProcessorSet(str string) (ProcessorSet, error) {
	var s ProcessorSet
	if str == "{}" || str == "" {
		return 0, nil
	}
	for _, f := range strings.Split(str, ",") {
		lo, hi, isRange := strings.Cut(f, "-")
		a, err := strconv.Atoi(lo)
		if err != nil {
			return 0, fmt.Errorf("bad processor set %q: %w", str, err)
		}
		b := a
		if isRange {
			if b, err = strconv.Atoi(hi); err != nil {
				return 0, fmt.Errorf("bad processor set %q: %w", str, err)
			}
		}
		if a < 0 || b >= MaxProcessors || a > b {
			return 0, fmt.Errorf("bad processor set %q: range %s out of bounds", str, f)
		}
		for c := a; c <= b; c++ {
			s = s.Add(c)
		}
	}
	return s, nil
}
