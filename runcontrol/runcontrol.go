// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package runcontrol

import (
	"context"
	"errors"
	"fmt"

	"github.com/bureau-foundation/qmlrun/remote"
)

// ErrClosed is returned by Start once the session's dispatch loop has
// exited.
var ErrClosed = errors.New("runcontrol: session closed")

// Stream identifies one of the application's output streams. It also
// tags every message delivered to the sink.
type Stream int

const (
	StreamStdout Stream = iota
	StreamStderr
)

func (s Stream) String() string {
	switch s {
	case StreamStdout:
		return "stdout"
	case StreamStderr:
		return "stderr"
	default:
		return fmt.Sprintf("stream(%d)", int(s))
	}
}

// StopResult tells the host whether a stop completed before Stop
// returned.
type StopResult int

const (
	// StoppedSynchronously means the session is fully stopped.
	StoppedSynchronously StopResult = iota
	// AsynchronousStop means the host must wait for Finished. Session
	// never returns it; it exists for hosts that multiplex several
	// RunControl implementations.
	AsynchronousStop
)

// RunControl is the capability set a host drives. The host decides when
// each method is called; the implementation owns only its own state
// transitions.
type RunControl interface {
	Start() error
	Stop() StopResult
	IsRunning() bool
	Icon() string
}

// Observer receives lifecycle signals.
type Observer interface {
	// Started follows a successful Start.
	Started()
	// Finished follows every transition from running to stopped.
	Finished()
	// RemoteStarted reports the device's acknowledgement port once the
	// launch command succeeds.
	RemoteStarted(port uint16)
	// RemoteStopped follows Finished when the stop was caused by the
	// application closing its stdout stream.
	RemoteStopped()
}

// LaunchFailureObserver is an optional extension of Observer. When the
// observer implements it, LaunchFailed follows the sink message for a
// refused or timed-out launch. The session stays running either way.
type LaunchFailureObserver interface {
	LaunchFailed(message string)
}

// MessageSink is the host console.
type MessageSink interface {
	AppendMessage(text string, stream Stream)
}

// Launcher sends the launch command to the device. remote.Client is the
// production implementation.
type Launcher interface {
	Launch(ctx context.Context, request remote.LaunchRequest) (remote.Ports, error)
}

// Compile-time interface checks.
var (
	_ RunControl = (*Session)(nil)
	_ Launcher   = (*remote.Client)(nil)
)

type nopObserver struct{}

func (nopObserver) Started()             {}
func (nopObserver) Finished()            {}
func (nopObserver) RemoteStarted(uint16) {}
func (nopObserver) RemoteStopped()       {}
