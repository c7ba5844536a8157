// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package contention_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/pprof/profile"

	"supercore/coremutex"
	. "supercore/internal/contention"
	"supercore/internal/ktest"
	"supercore/threadq"
)

func TestProfile(t *testing.T) {
	e := ktest.New(t)
	p := New(time.Millisecond)
	e.Domain.Observer = p

	m := coremutex.New(e.Domain, "M", coremutex.Attributes{Discipline: coremutex.Priority})
	owner := e.Thread("O", 1)
	a := e.Thread("A", 2)
	b := e.Thread("B", 3)
	var qc threadq.Context
	m.Seize(owner, true, &qc)
	m.Seize(a, true, &qc)
	qc.SetRelativeTimeout(2)
	m.Seize(b, true, &qc)
	if p.Waiting() != 2 {
		t.Fatalf("waiting %d", p.Waiting())
	}
	e.Tick(3)
	m.Surrender(owner, &qc)
	if p.Waiting() != 0 {
		t.Fatalf("waiting %d", p.Waiting())
	}

	var buf bytes.Buffer
	if err := p.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	prof, err := profile.Parse(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(prof.Sample) != 2 {
		t.Fatalf("%d samples, want 2", len(prof.Sample))
	}
	want := map[string][]int64{
		"A": {1, int64(3 * time.Millisecond)},
		"B": {1, int64(2 * time.Millisecond)},
	}
	for _, s := range prof.Sample {
		if leaf := s.Location[0].Line[0].Function.Name; leaf != "M" {
			t.Errorf("leaf frame %q, want M", leaf)
		}
		th := s.Location[1].Line[0].Function.Name
		w := want[th]
		if len(w) == 0 || s.Value[0] != w[0] || s.Value[1] != w[1] {
			t.Errorf("thread %s: values %v, want %v", th, s.Value, w)
		}
		if th == "B" && s.NumLabel["timeouts"][0] != 1 {
			t.Errorf("B: timeouts %v", s.NumLabel)
		}
	}

	p.Reset()
	if len(p.Build().Sample) != 0 {
		t.Fatal("Reset kept samples")
	}
}
