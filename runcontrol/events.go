// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package runcontrol

import (
	"net"

	"github.com/bureau-foundation/qmlrun/remote"
)

// event is something a helper goroutine reports to the dispatch loop.
// Launch events carry the attempt number they belong to; stream events
// carry the stream they were read from. The loop drops events whose
// attempt or stream is no longer current.
type event interface {
	sessionEvent()
}

type launchSucceeded struct {
	attempt uint64
	ports   remote.Ports
}

type launchFailed struct {
	attempt uint64
	message string
}

type launchTimedOut struct {
	attempt uint64
}

type streamConnected struct {
	attempt uint64
	stream  Stream
	conn    net.Conn
}

type streamConnectFailed struct {
	attempt uint64
	stream  Stream
	address string
	err     error
}

type dataReceived struct {
	output *outputStream
	data   []byte
}

type streamDisconnected struct {
	output *outputStream
	err    error
}

func (launchSucceeded) sessionEvent()     {}
func (launchFailed) sessionEvent()        {}
func (launchTimedOut) sessionEvent()      {}
func (streamConnected) sessionEvent()     {}
func (streamConnectFailed) sessionEvent() {}
func (dataReceived) sessionEvent()        {}
func (streamDisconnected) sessionEvent()  {}
