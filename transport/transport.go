// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"net"
	"net/http"
)

// Listener accepts inbound connections from the device. The session
// creates a Listener per run and calls Serve with the project file
// handler.
type Listener interface {
	// Serve starts accepting connections and dispatches to handler.
	// Blocks until ctx is cancelled or Close is called. Returns nil
	// on clean shutdown.
	Serve(ctx context.Context, handler http.Handler) error

	// Address returns the bound address in "host:port" format.
	Address() string

	// Port returns the bound TCP port. This is the number carried in
	// the launch command.
	Port() uint16

	// Close shuts down the listener. Safe to call more than once and
	// before Serve.
	Close() error
}

// Dialer opens connections to the device.
type Dialer interface {
	// DialContext opens a network connection to address (host:port).
	DialContext(ctx context.Context, address string) (net.Conn, error)
}

// HTTPTransport creates an http.RoundTripper that routes all requests
// through the given Dialer to the specified address. The URL host in
// requests is ignored.
func HTTPTransport(dialer Dialer, address string) http.RoundTripper {
	return &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			return dialer.DialContext(ctx, address)
		},
	}
}
