// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"supercore/kernel"
)

func newShell(t *testing.T) (*shell, *bytes.Buffer) {
	t.Helper()
	sys, err := kernel.Boot(kernel.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	return &shell{sys: sys, out: &out}, &out
}

const inheritScript = `
# L holds M while H waits for it.
thread L 10
thread H 1
mutex M inherit
start L
seize L M
start H
seize H M
ps
cpus
surrender L M
objects
quit
this line is never run
`

func TestScript(t *testing.T) {
	sh, out := newShell(t)
	if err := sh.run(strings.NewReader(inheritScript), "script"); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"L M: RTEMS_SUCCESSFUL\n",
		"H blocks on M\n",
		"10/1", // L runs at the priority of H
		"inherit mutex",
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output lacks %q:\n%s", want, out.String())
		}
	}
	if h := sh.sys.Mutex("M").Holder(); h == nil || h.Name() != "H" {
		t.Fatalf("holder %v, want H", h)
	}
}

func TestScriptErrors(t *testing.T) {
	for _, tc := range []struct {
		script string
		want   string
	}{
		{"bogus", `script:1: unknown command "bogus"`},
		{"thread A", "script:1: usage: thread NAME PRIO [SCHED]"},
		{"thread A x", `bad priority "x"`},
		{"\nstart A", `script:2: no thread "A"`},
		{"mutex M sideways", "unknown mutex discipline"},
		{"mutex M fifo 3", "ceiling given"},
		{"tick -1", "bad tick count"},
	} {
		sh, _ := newShell(t)
		err := sh.run(strings.NewReader(tc.script), "script")
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Errorf("%q: got %v, want %q", tc.script, err, tc.want)
		}
	}
}

func TestFutexCommands(t *testing.T) {
	sh, out := newShell(t)
	script := `
thread A 5
start A
futex F
wait A F 1
wait A F 0
set F 7
objects
wake F 3
`
	if err := sh.run(strings.NewReader(script), "script"); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"A wait F: resource temporarily unavailable", "A blocks on F", "futex=7", "woke 1"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output lacks %q:\n%s", want, out.String())
		}
	}
}

func TestDeadlockCommand(t *testing.T) {
	sh, out := newShell(t)
	script := `
thread A 10
thread B 10
start A
start B
mutex M1 fifo
mutex M2 fifo
seize A M1
seize A M2
surrender A M2
surrender A M1
seize B M2
seize B M1
deadlocks
`
	if err := sh.run(strings.NewReader(script), "script"); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"no deadlocked threads", "M1 -> M2", "M2 -> M1"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output lacks %q:\n%s", want, out.String())
		}
	}
}

func TestSaveLoadLocks(t *testing.T) {
	file := filepath.Join(t.TempDir(), "locks")
	sh, _ := newShell(t)
	first := `
thread A 10
start A
mutex M1 fifo
mutex M2 fifo
seize A M1
seize A M2
savelocks ` + file + "\n"
	if err := sh.run(strings.NewReader(first), "first"); err != nil {
		t.Fatal(err)
	}

	sh, out := newShell(t)
	second := `
thread B 10
start B
mutex M1 fifo
mutex M2 fifo
seize B M2
seize B M1
loadlocks ` + file + `
deadlocks
`
	if err := sh.run(strings.NewReader(second), "second"); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"M1 -> M2", "M2 -> M1"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output lacks %q:\n%s", want, out.String())
		}
	}
	if err := sh.exec("loadlocks " + filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("loading a missing file succeeded")
	}
}

func TestHelp(t *testing.T) {
	sh, out := newShell(t)
	if err := sh.exec("help"); err != nil {
		t.Fatal(err)
	}
	for _, c := range commands {
		if !strings.Contains(out.String(), c.name+" ") {
			t.Errorf("help lacks %s", c.name)
		}
	}
}
