// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package runcontrol

import (
	"bytes"
	"net"
	"strconv"

	"github.com/bureau-foundation/qmlrun/lib/netutil"
)

// readBufferSize bounds a single forwarded message. A read returns
// whatever is available, so bursts larger than this arrive as several
// messages.
const readBufferSize = 32 * 1024

// outputStream is one connected output stream. The pointer identifies
// the connection: events carrying a pointer that is no longer in
// Session.outputs belong to a closed stream.
type outputStream struct {
	stream Stream
	conn   net.Conn
}

// connectOutput dials both output streams on helper goroutines.
func (s *Session) connectOutput(stdoutPort, stderrPort uint16) {
	s.dialOutput(StreamStdout, stdoutPort)
	s.dialOutput(StreamStderr, stderrPort)
}

func (s *Session) dialOutput(stream Stream, port uint16) {
	attempt := s.attempt
	address := net.JoinHostPort(s.address, strconv.Itoa(int(port)))
	// Dials are bounded by the attempt: stop cancels them.
	dialContext := s.attemptContext

	go func() {
		conn, err := s.dialer.DialContext(dialContext, address)
		if err != nil {
			s.post(streamConnectFailed{attempt: attempt, stream: stream, address: address, err: err})
			return
		}
		if !s.post(streamConnected{attempt: attempt, stream: stream, conn: conn}) {
			conn.Close()
		}
	}()
}

// attachOutput installs a newly connected stream and starts its reader.
// A connection that completes after its attempt ended is closed.
func (s *Session) attachOutput(ev streamConnected) {
	if !s.running || ev.attempt != s.attempt {
		ev.conn.Close()
		return
	}
	if previous := s.outputs[ev.stream]; previous != nil {
		previous.conn.Close()
	}

	output := &outputStream{stream: ev.stream, conn: ev.conn}
	s.outputs[ev.stream] = output
	s.logger.Debug("output stream connected",
		"stream", ev.stream.String(),
		"remote", ev.conn.RemoteAddr().String(),
	)
	go s.readOutput(output)
}

// readOutput forwards everything read from output to the dispatch loop,
// then reports the disconnection.
func (s *Session) readOutput(output *outputStream) {
	buffer := make([]byte, readBufferSize)
	for {
		n, err := output.conn.Read(buffer)
		if n > 0 {
			if !s.post(dataReceived{output: output, data: bytes.Clone(buffer[:n])}) {
				output.conn.Close()
				return
			}
		}
		if err != nil {
			s.post(streamDisconnected{output: output, err: err})
			return
		}
	}
}

func (s *Session) isCurrent(output *outputStream) bool {
	return s.outputs[output.stream] == output
}

// detachOutput closes output and forgets it. err is the read error that
// ended the stream, or nil for a local close.
func (s *Session) detachOutput(output *outputStream, err error) {
	s.outputs[output.stream] = nil
	output.conn.Close()

	switch {
	case err == nil:
	case netutil.IsExpectedCloseError(err):
		s.logger.Debug("output stream closed by device", "stream", output.stream.String())
	default:
		s.logger.Warn("output stream failed", "stream", output.stream.String(), "error", err)
	}
}

// disconnectOutput closes both streams. Safe when neither is connected.
func (s *Session) disconnectOutput() {
	for _, output := range s.outputs {
		if output != nil {
			s.detachOutput(output, nil)
		}
	}
}
