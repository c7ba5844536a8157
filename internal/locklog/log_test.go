// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package locklog

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

func readAll(t *testing.T, data []byte) []Record {
	t.Helper()
	r, err := NewReader(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	var recs []Record
	for {
		var rec Record
		err := r.Next(&rec)
		if err == io.EOF {
			return recs
		}
		if err != nil {
			t.Fatal(err)
		}
		recs = append(recs, rec)
	}
}

func TestRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	if err != nil {
		t.Fatal(err)
	}
	in := []Record{
		{Op: OpAcquire, CPU: 0, Thread: 1, Lock: 10, Class: "mutex"},
		{Op: OpAcquire, CPU: 0, Thread: 1, Lock: 11, Class: "futex"},
		{Op: OpRelease, CPU: 0, Thread: 1, Lock: 11},
		{Op: OpRelease, CPU: 0, Thread: 1, Lock: 10},
		{Op: OpBlock, CPU: 0, Thread: 2, Lock: 10, Class: "mutex"},
	}
	for i := range in {
		if err := w.Log(&in[i]); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}
	// Each class is defined once.
	if n := strings.Count(buf.String(), "mutex"); n != 1 {
		t.Errorf("class name written %d times", n)
	}
	out := readAll(t, buf.Bytes())
	if len(out) != len(in) {
		t.Fatalf("read %d records, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("record %d: got %+v, want %+v", i, out[i], in[i])
		}
	}
}

func TestBlocksPerCPU(t *testing.T) {
	var buf bytes.Buffer
	w, _ := NewWriter(&buf)
	const n = 2000
	for i := 0; i < n; i++ {
		cpu := i % 2
		w.Log(&Record{Op: OpAcquire, CPU: cpu, Thread: uint32(cpu), Lock: uint64(i), Class: "c"})
		w.Log(&Record{Op: OpRelease, CPU: cpu, Thread: uint32(cpu), Lock: uint64(i)})
	}
	w.Flush()
	out := readAll(t, buf.Bytes())
	if len(out) != 2*n {
		t.Fatalf("read %d records, want %d", len(out), 2*n)
	}
	// Records of one processor keep their order, and a release
	// always follows the acquire of the same lock.
	var last [2]uint64
	for _, rec := range out {
		if rec.Thread != uint32(rec.CPU) {
			t.Fatalf("record %+v on wrong processor", rec)
		}
		switch rec.Op {
		case OpAcquire:
			last[rec.CPU] = rec.Lock
		case OpRelease:
			if rec.Lock != last[rec.CPU] {
				t.Fatalf("cpu%d released %d after acquiring %d", rec.CPU, rec.Lock, last[rec.CPU])
			}
		}
	}
}

func TestBadLog(t *testing.T) {
	if _, err := NewReader(strings.NewReader("notalog!")); err == nil {
		t.Fatal("accepted bad magic")
	}

	var buf bytes.Buffer
	w, _ := NewWriter(&buf)
	w.Log(&Record{Op: OpAcquire, Thread: 1, Lock: 1, Class: "c"})
	w.Flush()
	data := buf.Bytes()[:buf.Len()-3]
	r, err := NewReader(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	var rec Record
	if err := r.Next(&rec); !errors.Is(err, errTruncated) {
		t.Fatalf("truncated log: got %v", err)
	}

	if err := w.Log(&Record{Op: Op(7)}); err == nil {
		t.Fatal("logged bad op")
	}
}
