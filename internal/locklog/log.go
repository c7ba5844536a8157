// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package locklog implements the lock operation log.
//
// The log is a stream of blocks. Each block starts with an 8 byte
// header holding the block length (header included) and the processor
// that produced the records in it. Records are encoded with an op byte
// whose low bits hold the operation, followed by little-endian fields.
// Lock class names are interned: the first use of a class emits a
// class record ahead of the block that refers to it.
package locklog

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
)

type Op byte

// Log operation codes.
const (
	// OpAcquire records that a thread became the holder of a lock.
	OpAcquire Op = iota
	// OpRelease records that a thread released a lock.
	OpRelease
	opReleaseLast
	// OpBlock records that a thread blocked waiting for a lock.
	OpBlock

	// These are hidden from the reader's caller.
	opNewClass

	opBits = 3
)

func (op Op) String() string {
	switch op {
	case OpAcquire:
		return "acquire"
	case OpRelease:
		return "release"
	case OpBlock:
		return "block"
	}
	return fmt.Sprintf("Op(%d)", byte(op))
}

const magic = "locklog\x00"

// A Record is one lock operation.
type Record struct {
	Op     Op
	CPU    int
	Thread uint32
	Lock   uint64
	Class  string
}

// blockSize is the size at which the buffer of a processor is flushed.
const blockSize = 4096

type perCPU struct {
	buf []byte

	// last is the lock of the last acquire in buf.
	last     uint64
	haveLast bool
}

// A Writer encodes lock operations.
type Writer struct {
	mu      sync.Mutex
	w       io.Writer
	cpus    map[int]*perCPU
	classes map[string]uint32
	err     error
}

// NewWriter writes the log header to w and returns a Writer.
func NewWriter(w io.Writer) (*Writer, error) {
	if _, err := io.WriteString(w, magic); err != nil {
		return nil, fmt.Errorf("writing lock log header: %w", err)
	}
	return &Writer{w: w, cpus: make(map[int]*perCPU), classes: map[string]uint32{"": 0}}, nil
}

// Log appends rec to the buffer of its processor.
func (l *Writer) Log(rec *Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	c := l.cpus[rec.CPU]
	if c == nil {
		c = new(perCPU)
		l.cpus[rec.CPU] = c
	}
	switch rec.Op {
	case OpAcquire, OpBlock:
		class := l.class(rec.Class)
		c.buf = append(c.buf, byte(rec.Op))
		c.buf = binary.LittleEndian.AppendUint32(c.buf, rec.Thread)
		c.buf = binary.LittleEndian.AppendUint64(c.buf, rec.Lock)
		c.buf = binary.LittleEndian.AppendUint32(c.buf, class)
		if rec.Op == OpAcquire {
			c.last, c.haveLast = rec.Lock, true
		}
	case OpRelease:
		if c.haveLast && rec.Lock == c.last {
			c.buf = append(c.buf, byte(opReleaseLast))
			c.buf = binary.LittleEndian.AppendUint32(c.buf, rec.Thread)
			break
		}
		c.buf = append(c.buf, byte(OpRelease))
		c.buf = binary.LittleEndian.AppendUint32(c.buf, rec.Thread)
		c.buf = binary.LittleEndian.AppendUint64(c.buf, rec.Lock)
	default:
		return fmt.Errorf("bad log op %d", rec.Op)
	}
	if len(c.buf) >= blockSize {
		l.flushCPU(rec.CPU, c)
	}
	return l.err
}

// class returns the index of class name, emitting a class record the
// first time the name is seen. The class record goes out before any
// buffered record can refer to it.
func (l *Writer) class(name string) uint32 {
	if id, ok := l.classes[name]; ok {
		return id
	}
	id := uint32(len(l.classes))
	l.classes[name] = id
	rec := []byte{byte(opNewClass)}
	rec = binary.LittleEndian.AppendUint32(rec, uint32(len(name)))
	rec = append(rec, name...)
	l.writeBlock(-1, rec)
	return id
}

func (l *Writer) flushCPU(cpu int, c *perCPU) {
	if len(c.buf) == 0 {
		return
	}
	l.writeBlock(cpu, c.buf)
	c.buf = c.buf[:0]
	c.haveLast = false
}

func (l *Writer) writeBlock(cpu int, body []byte) {
	if l.err != nil {
		return
	}
	hdr := make([]byte, 8, 8+len(body))
	binary.LittleEndian.PutUint32(hdr[0:], uint32(8+len(body)))
	binary.LittleEndian.PutUint32(hdr[4:], uint32(int32(cpu)))
	if _, err := l.w.Write(append(hdr, body...)); err != nil {
		l.err = fmt.Errorf("writing lock log: %w", err)
	}
}

// Flush writes all buffered records.
func (l *Writer) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for cpu, c := range l.cpus {
		l.flushCPU(cpu, c)
	}
	return l.err
}

// A Reader decodes a lock log.
type Reader struct {
	r       *bufio.Reader
	block   []byte
	pos     int
	cpu     int
	last    uint64
	classes []string
}

// NewReader checks the log header on r and returns a Reader.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)
	hdr := make([]byte, len(magic))
	if _, err := io.ReadFull(br, hdr); err != nil {
		return nil, fmt.Errorf("reading lock log header: %w", err)
	}
	if string(hdr) != magic {
		return nil, fmt.Errorf("bad lock log magic number %q", hdr)
	}
	return &Reader{r: br, classes: []string{""}}, nil
}

var errTruncated = errors.New("truncated lock log record")

// Next populates rec with the next record in the log. It returns
// io.EOF if there are no more records, or another error if I/O fails
// or a record is truncated or corrupted.
func (r *Reader) Next(rec *Record) error {
nextRecord:
	if r.pos == len(r.block) {
		hdr := make([]byte, 8)
		if _, err := io.ReadFull(r.r, hdr); err != nil {
			if err == io.ErrUnexpectedEOF {
				err = errTruncated
			}
			return err
		}
		n := int(binary.LittleEndian.Uint32(hdr[0:])) - 8
		if n < 0 {
			return fmt.Errorf("bad lock log block length %d", n+8)
		}
		r.cpu = int(int32(binary.LittleEndian.Uint32(hdr[4:])))
		if cap(r.block) < n {
			r.block = make([]byte, n)
		} else {
			r.block = r.block[:n]
		}
		r.pos = 0
		r.last = 0
		if _, err := io.ReadFull(r.r, r.block); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				err = errTruncated
			}
			return err
		}
		if n == 0 {
			goto nextRecord
		}
	}

	op := Op(r.block[r.pos] & (1<<opBits - 1))
	r.pos++
	rec.Op = op
	rec.CPU = r.cpu
	rec.Class = ""

	switch op {
	default:
		return fmt.Errorf("bad log op %d", op)

	case OpAcquire, OpBlock:
		if !r.have(16) {
			return errTruncated
		}
		rec.Thread = r.readUint32()
		rec.Lock = r.readUint64()
		class := r.readUint32()
		if int(class) >= len(r.classes) {
			return fmt.Errorf("undefined lock class %d", class)
		}
		rec.Class = r.classes[class]
		if op == OpAcquire {
			r.last = rec.Lock
		}

	case OpRelease:
		if !r.have(12) {
			return errTruncated
		}
		rec.Thread = r.readUint32()
		rec.Lock = r.readUint64()

	case opReleaseLast:
		if !r.have(4) {
			return errTruncated
		}
		rec.Op = OpRelease
		rec.Thread = r.readUint32()
		rec.Lock = r.last

	case opNewClass:
		if !r.have(4) {
			return errTruncated
		}
		n := int(r.readUint32())
		if !r.have(n) {
			return errTruncated
		}
		r.classes = append(r.classes, string(r.block[r.pos:r.pos+n]))
		r.pos += n
		// These records are invisible to the caller.
		goto nextRecord
	}
	return nil
}

func (r *Reader) have(n int) bool { return len(r.block)-r.pos >= n }

func (r *Reader) readUint32() uint32 {
	v := binary.LittleEndian.Uint32(r.block[r.pos:])
	r.pos += 4
	return v
}

func (r *Reader) readUint64() uint64 {
	v := binary.LittleEndian.Uint64(r.block[r.pos:])
	r.pos += 8
	return v
}
