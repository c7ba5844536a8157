// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fatal

// Debug enables internal consistency checks. It corresponds to a
// debug build of the kernel; production configurations leave it off
// and Assert costs a single branch.
var Debug = false

// Assert terminates with SourceAssert if Debug is set and cond is
// false.
func Assert(cond bool, msg string) {
	if Debug && !cond {
		panic(&Error{Source: SourceAssert, Msg: msg})
	}
}
