// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"
)

// Compile-time interface checks.
var (
	_ Listener = (*TCPListener)(nil)
	_ Dialer   = (*TCPDialer)(nil)
)

// TCPListener is the callback endpoint the device connects to. The
// device fetches the application's QML sources from it over plain HTTP,
// so the device must have direct TCP reachability to the host.
type TCPListener struct {
	listener net.Listener

	mu     sync.Mutex
	server *http.Server
	closed bool
}

// NewTCPListener binds a TCP listener on address (e.g., ":0" or
// "192.168.1.10:0"). Port zero asks the OS for an ephemeral port.
func NewTCPListener(address string) (*TCPListener, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}
	return &TCPListener{listener: listener}, nil
}

// Serve accepts connections and dispatches them to handler. Blocks until
// ctx is cancelled or Close is called. Returns nil if the listener was
// closed before Serve started.
func (l *TCPListener) Serve(ctx context.Context, handler http.Handler) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 30 * time.Second,
		// QML bundles can include large images; give slow device
		// links room to finish.
		WriteTimeout: 5 * time.Minute,
	}
	l.server = server
	l.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { server.Close() })
	defer stop()

	err := server.Serve(l.listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Address returns the TCP address in "host:port" format.
func (l *TCPListener) Address() string {
	return l.listener.Addr().String()
}

// Port returns the bound TCP port.
func (l *TCPListener) Port() uint16 {
	if address, ok := l.listener.Addr().(*net.TCPAddr); ok {
		return uint16(address.Port)
	}
	return 0
}

// Close shuts down the listener and any in-flight HTTP connections.
func (l *TCPListener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	if l.server != nil {
		return l.server.Close()
	}
	return l.listener.Close()
}

// TCPDialer opens TCP connections to the device: the control connection
// and the two output streams.
type TCPDialer struct {
	// Timeout is the maximum time to wait for a TCP connection to be
	// established. Zero means no standalone timeout; only the context
	// deadline applies.
	Timeout time.Duration
}

// DialContext opens a TCP connection to the given address (host:port).
func (d *TCPDialer) DialContext(ctx context.Context, address string) (net.Conn, error) {
	return (&net.Dialer{Timeout: d.Timeout}).DialContext(ctx, "tcp", address)
}
