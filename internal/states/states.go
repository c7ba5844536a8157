// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package states defines the thread state bitmask.
//
// Ready is the zero value. Every other bit is a reason for the thread
// not to be ready; a thread becomes ready again only when the last bit
// is cleared.
package states

import "strings"

// A State is a set of thread state bits.
type State uint32

const (
	Ready State = 0

	WaitingForMutex             State = 0x00000001
	WaitingForSemaphore         State = 0x00000002
	WaitingForEvent             State = 0x00000004
	WaitingForSystemEvent       State = 0x00000008
	WaitingForMessage           State = 0x00000010
	WaitingForConditionVariable State = 0x00000020
	WaitingForFutex             State = 0x00000040
	WaitingForBuffer            State = 0x00000080
	WaitingForTime              State = 0x00000100
	WaitingForPeriod            State = 0x00000200
	WaitingForSignal            State = 0x00000400
	WaitingForBarrier           State = 0x00000800
	WaitingForRWLock            State = 0x00001000
	WaitingForJoinAtExit        State = 0x00002000
	WaitingForJoin              State = 0x00004000
	Suspended                   State = 0x00008000
	WaitingForSegment           State = 0x00010000
	LifeIsChanging              State = 0x00020000
	Delaying                    State = 0x00040000
	Transient                   State = 0x00080000
	Debugger                    State = 0x08000000
	InterruptibleBySignal       State = 0x10000000
	WaitingForRPCReply          State = 0x20000000
	Zombie                      State = 0x40000000
	Dormant                     State = 0x80000000

	AllSet State = 0xffffffff
)

// Composite masks.
const (
	// LocallyBlocked is the set of states in which a thread waits
	// on an internal synchronization object.
	LocallyBlocked = WaitingForMutex |
		WaitingForSemaphore |
		WaitingForEvent |
		WaitingForSystemEvent |
		WaitingForMessage |
		WaitingForConditionVariable |
		WaitingForFutex |
		WaitingForBuffer |
		WaitingForPeriod |
		WaitingForSignal |
		WaitingForBarrier |
		WaitingForRWLock |
		WaitingForJoinAtExit |
		WaitingForJoin |
		WaitingForSegment |
		WaitingForRPCReply

	// WaitingOnThreadQueue is the set of states in which a thread is
	// enqueued on a thread queue.
	WaitingOnThreadQueue = LocallyBlocked &^ (WaitingForEvent | WaitingForSystemEvent | WaitingForPeriod)

	// Blocked is the set of states which prevent a thread from being
	// scheduled.
	Blocked = LocallyBlocked |
		WaitingForTime |
		Delaying |
		Transient |
		Suspended |
		Debugger |
		LifeIsChanging |
		Zombie |
		Dormant
)

// IsReady reports whether s has no blocking bit set.
func (s State) IsReady() bool { return s == Ready }

// Has reports whether all bits of mask are set in s.
func (s State) Has(mask State) bool { return s&mask == mask }

// HasAny reports whether any bit of mask is set in s.
func (s State) HasAny(mask State) bool { return s&mask != 0 }

// IsBlocked reports whether s prevents scheduling.
func (s State) IsBlocked() bool { return s&Blocked != 0 }

// IsLocallyBlocked reports whether s waits on a synchronization object.
func (s State) IsLocallyBlocked() bool { return s&LocallyBlocked != 0 }

// IsWaitingOnThreadQueue reports whether s implies a thread queue wait.
func (s State) IsWaitingOnThreadQueue() bool { return s&WaitingOnThreadQueue != 0 }

// Set returns s with the bits of mask added.
func (s State) Set(mask State) State { return s | mask }

// Clear returns s with the bits of mask removed.
func (s State) Clear(mask State) State { return s &^ mask }

var names = [...]struct {
	s    State
	name string
}{
	{WaitingForMutex, "mutex"},
	{WaitingForSemaphore, "semaphore"},
	{WaitingForEvent, "event"},
	{WaitingForSystemEvent, "sysevent"},
	{WaitingForMessage, "message"},
	{WaitingForConditionVariable, "condvar"},
	{WaitingForFutex, "futex"},
	{WaitingForBuffer, "buffer"},
	{WaitingForTime, "time"},
	{WaitingForPeriod, "period"},
	{WaitingForSignal, "signal"},
	{WaitingForBarrier, "barrier"},
	{WaitingForRWLock, "rwlock"},
	{WaitingForJoinAtExit, "joinatexit"},
	{WaitingForJoin, "join"},
	{Suspended, "suspended"},
	{WaitingForSegment, "segment"},
	{LifeIsChanging, "lifechange"},
	{Delaying, "delaying"},
	{Transient, "transient"},
	{Debugger, "debugger"},
	{InterruptibleBySignal, "intsig"},
	{WaitingForRPCReply, "rpcreply"},
	{Zombie, "zombie"},
	{Dormant, "dormant"},
}

// String returns the names of the bits of s joined by "|", or "ready".
func (s State) String() string {
	if s == Ready {
		return "ready"
	}
	var b strings.Builder
	for _, n := range names {
		if s&n.s != 0 {
			if b.Len() > 0 {
				b.WriteByte('|')
			}
			b.WriteString(n.name)
			s &^= n.s
		}
	}
	if s != 0 {
		if b.Len() > 0 {
			b.WriteByte('|')
		}
		b.WriteString("unknown")
	}
	return b.String()
}
