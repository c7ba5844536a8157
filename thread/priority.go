// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package thread

import "strconv"

// A Priority is a thread priority. Lower values are more urgent: a
// thread of priority 1 runs before a thread of priority 10.
type Priority uint32

const (
	// PriorityHighest is the most urgent priority.
	PriorityHighest Priority = 0

	// PriorityDefaultMaximum is the least urgent priority available
	// to application threads in the default configuration.
	PriorityDefaultMaximum Priority = 255
)

// PriorityIdle returns the priority of idle threads for a
// configuration whose least urgent application priority is max.
func PriorityIdle(max Priority) Priority {
	return max + 1
}

// MoreUrgent reports whether p is strictly more urgent than q.
func (p Priority) MoreUrgent(q Priority) bool { return p < q }

// Min returns the more urgent of p and q.
func (p Priority) Min(q Priority) Priority {
	if q < p {
		return q
	}
	return p
}

func (p Priority) String() string { return strconv.FormatUint(uint64(p), 10) }
