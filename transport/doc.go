// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport provides the TCP plumbing between the host and a
// paired device.
//
// The package defines two interfaces. [Listener] is the host-side
// callback endpoint the device connects back to: the session opens one
// per run on an ephemeral port, sends the port number in the launch
// command, and serves the project files over HTTP on it. [Dialer] opens
// the outbound connections the host initiates: the control connection
// carrying the launch command and the two output streams.
//
// Both have TCP implementations, [TCPListener] and [TCPDialer]. Tests
// substitute their own Dialer to observe which ports a session dials.
//
// [HTTPTransport] wraps a Dialer as an http.RoundTripper so that HTTP
// clients can reach a Listener through the same dial path.
package transport
