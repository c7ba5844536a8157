// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package isrlock

import (
	"testing"

	"golang.org/x/sync/errgroup"
)

func TestNestedLevels(t *testing.T) {
	var isr Interrupts
	var l1, l2 Lock
	lc1 := Context{ISR: &isr}
	lc2 := Context{ISR: &isr}
	l1.Acquire(&lc1)
	l2.Acquire(&lc2)
	if isr.IsEnabled() || !l1.IsHeld() || !l2.IsHeld() {
		t.Fatal("locks not held with interrupts disabled")
	}
	l2.Release(&lc2)
	if isr.IsEnabled() {
		t.Fatal("inner release enabled interrupts")
	}
	l1.Release(&lc1)
	if !isr.IsEnabled() || l1.IsHeld() {
		t.Fatal("outer release left interrupts disabled")
	}
	if n := isr.Disables(); n != 2 {
		t.Fatalf("%d disables, want 2", n)
	}
}

func TestMutualExclusion(t *testing.T) {
	var l Lock
	var g errgroup.Group
	n := 0
	for cpu := 0; cpu < 4; cpu++ {
		isr := new(Interrupts)
		g.Go(func() error {
			for i := 0; i < 1000; i++ {
				lc := Context{ISR: isr}
				l.Acquire(&lc)
				n++
				l.Release(&lc)
			}
			return nil
		})
	}
	g.Wait()
	if n != 4000 {
		t.Fatalf("n = %d, want 4000", n)
	}
}
