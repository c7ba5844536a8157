// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fatal implements the fatal-error path of the kernel.
//
// A fatal error is an unrecoverable condition: a configuration that
// cannot be run, a deadlock the application asked to be fatal, or a
// failed internal assertion. Terminate reports the (source, code) pair
// to the installed handler and then stops the caller by panicking with
// an *Error. It never returns.
package fatal

import (
	"fmt"
	"strconv"
)

// A Source identifies the subsystem that raised a fatal error.
type Source uint32

const (
	SourceCore Source = iota
	SourceAPI
	SourceBSP
	SourceExit
	SourceException
	SourceAssert
	SourceApplication
)

var sourceNames = [...]string{
	SourceCore:        "INTERNAL_ERROR_CORE",
	SourceAPI:         "INTERNAL_ERROR_RTEMS_API",
	SourceBSP:         "RTEMS_FATAL_SOURCE_BSP",
	SourceExit:        "RTEMS_FATAL_SOURCE_EXIT",
	SourceException:   "RTEMS_FATAL_SOURCE_EXCEPTION",
	SourceAssert:      "RTEMS_FATAL_SOURCE_ASSERT",
	SourceApplication: "RTEMS_FATAL_SOURCE_APPLICATION",
}

func (s Source) String() string {
	if int(s) < len(sourceNames) {
		return sourceNames[s]
	}
	return "source(" + strconv.Itoa(int(s)) + ")"
}

// A Code is the source-specific error code.
type Code uint32

// Codes of SourceCore.
const (
	InternalErrorThreadExitted                  Code = 5
	InternalErrorBadAttributes                  Code = 19
	InternalErrorBadThreadDispatchDisableLevel  Code = 25
	InternalErrorThreadQueueDeadlock            Code = 28
	InternalErrorResourceInUse                  Code = 31
	InternalErrorThreadQueueEnqueueFromBadState Code = 34
	InternalErrorIdleThreadCreateFailed         Code = 39
	InternalErrorNoMemoryForPerCPUData          Code = 40
	InternalErrorTooLargeTLSSize                Code = 41
	InternalErrorIdleThreadStackTooSmall        Code = 43
	InternalErrorBadSchedulerConfiguration      Code = 44
)

var coreCodeNames = map[Code]string{
	InternalErrorThreadExitted:                  "INTERNAL_ERROR_THREAD_EXITTED",
	InternalErrorBadAttributes:                  "INTERNAL_ERROR_BAD_ATTRIBUTES",
	InternalErrorBadThreadDispatchDisableLevel:  "INTERNAL_ERROR_BAD_THREAD_DISPATCH_DISABLE_LEVEL",
	InternalErrorThreadQueueDeadlock:            "INTERNAL_ERROR_THREAD_QUEUE_DEADLOCK",
	InternalErrorResourceInUse:                  "INTERNAL_ERROR_RESOURCE_IN_USE",
	InternalErrorThreadQueueEnqueueFromBadState: "INTERNAL_ERROR_THREAD_QUEUE_ENQUEUE_FROM_BAD_STATE",
	InternalErrorIdleThreadCreateFailed:         "INTERNAL_ERROR_IDLE_THREAD_CREATE_FAILED",
	InternalErrorNoMemoryForPerCPUData:          "INTERNAL_ERROR_NO_MEMORY_FOR_PER_CPU_DATA",
	InternalErrorTooLargeTLSSize:                "INTERNAL_ERROR_TOO_LARGE_TLS_SIZE",
	InternalErrorIdleThreadStackTooSmall:        "INTERNAL_ERROR_IDLE_THREAD_STACK_TOO_SMALL",
	InternalErrorBadSchedulerConfiguration:      "INTERNAL_ERROR_BAD_SCHEDULER_CONFIGURATION",
}

// An Error is the panic value of Terminate.
type Error struct {
	Source Source
	Code   Code
	Msg    string
}

func (e *Error) Error() string {
	name, ok := "", false
	if e.Source == SourceCore {
		name, ok = coreCodeNames[e.Code]
	}
	if !ok {
		name = strconv.FormatUint(uint64(e.Code), 10)
	}
	if e.Msg != "" {
		return fmt.Sprintf("fatal error: %v: %s: %s", e.Source, name, e.Msg)
	}
	return fmt.Sprintf("fatal error: %v: %s", e.Source, name)
}

// A Handler is called with the source and code of a fatal error
// before the caller is stopped. It corresponds to the fatal user
// extension of an application. A Handler must not return control to
// the code that raised the error; if it returns, Terminate panics.
type Handler func(source Source, code Code)

// Terminate invokes h, which may be nil, and then panics with an
// *Error describing the fatal condition.
func (h Handler) Terminate(source Source, code Code, msg string) {
	if h != nil {
		h(source, code)
	}
	panic(&Error{Source: source, Code: code, Msg: msg})
}

// Catch runs f and returns the fatal error it raised, or nil if f
// returned normally. Panics that are not fatal errors propagate.
func Catch(f func()) (err *Error) {
	defer func() {
		if r := recover(); r != nil {
			e, ok := r.(*Error)
			if !ok {
				panic(r)
			}
			err = e
		}
	}()
	f()
	return nil
}
