// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package status defines the result codes passed from the
// synchronization core to the API layers above it.
//
// A Code is both the Classic API status and the POSIX errno of an
// outcome. The core never panics for caller misuse or for an expired
// wait; it reports a Code instead.
package status

import (
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"
)

// A Code is the outcome of a core operation.
type Code uint8

const (
	Successful Code = iota
	NotOwner
	NestingNotAllowed
	Timeout
	Unavailable
	Deadlock
	ObjectWasDeleted
	MutexCeilingViolated
	ResourceInUse
	InvalidNumber
	InvalidPriority

	// Blocked reports that the executing thread was enqueued on a
	// thread queue. The outcome of the wait is delivered later
	// through the thread's wait record.
	Blocked

	numCodes
)

type codeInfo struct {
	name    string
	classic string
	errno   syscall.Errno
}

var codes = [numCodes]codeInfo{
	Successful:           {"successful", "RTEMS_SUCCESSFUL", 0},
	NotOwner:             {"not owner", "RTEMS_NOT_OWNER_OF_RESOURCE", unix.EPERM},
	NestingNotAllowed:    {"nesting not allowed", "RTEMS_UNSATISFIED", unix.EDEADLK},
	Timeout:              {"timeout", "RTEMS_TIMEOUT", unix.ETIMEDOUT},
	Unavailable:          {"unavailable", "RTEMS_UNSATISFIED", unix.EBUSY},
	Deadlock:             {"deadlock", "RTEMS_INCORRECT_STATE", unix.EDEADLK},
	ObjectWasDeleted:     {"object was deleted", "RTEMS_OBJECT_WAS_DELETED", unix.EINVAL},
	MutexCeilingViolated: {"mutex ceiling violated", "RTEMS_INVALID_PRIORITY", unix.EINVAL},
	ResourceInUse:        {"resource in use", "RTEMS_RESOURCE_IN_USE", unix.EBUSY},
	InvalidNumber:        {"invalid number", "RTEMS_INVALID_NUMBER", unix.EINVAL},
	InvalidPriority:      {"invalid priority", "RTEMS_INVALID_PRIORITY", unix.EINVAL},
	Blocked:              {"blocked", "RTEMS_SUCCESSFUL", 0},
}

func (c Code) info() codeInfo {
	if c >= numCodes {
		return codeInfo{name: "status(" + strconv.Itoa(int(c)) + ")", classic: "RTEMS_INTERNAL_ERROR", errno: unix.EINVAL}
	}
	return codes[c]
}

func (c Code) String() string { return c.info().name }

// Error implements error so that a Code can be returned by API layers
// that speak Go errors. Use Err to turn Successful into a nil error.
func (c Code) Error() string { return "status: " + c.info().name }

// Err returns nil for Successful and c otherwise.
func (c Code) Err() error {
	if c == Successful {
		return nil
	}
	return c
}

// Classic returns the name of the Classic API status code for c.
func (c Code) Classic() string { return c.info().classic }

// Errno returns the POSIX error number for c. It is zero for
// Successful and Blocked.
func (c Code) Errno() syscall.Errno { return c.info().errno }
