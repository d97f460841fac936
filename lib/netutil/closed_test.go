// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
	"testing"
)

func TestIsExpectedCloseError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "eof", err: io.EOF, want: true},
		{name: "wrapped eof", err: fmt.Errorf("reading stdout stream: %w", io.EOF), want: true},
		{name: "closed", err: net.ErrClosed, want: true},
		{name: "reset", err: &net.OpError{Op: "read", Err: os.NewSyscallError("read", syscall.ECONNRESET)}, want: true},
		{name: "broken pipe", err: &net.OpError{Op: "write", Err: os.NewSyscallError("write", syscall.EPIPE)}, want: true},
		{name: "refused", err: &net.OpError{Op: "dial", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}, want: false},
		{name: "other", err: errors.New("device exploded"), want: false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := IsExpectedCloseError(test.err); got != test.want {
				t.Errorf("IsExpectedCloseError(%v) = %v, want %v", test.err, got, test.want)
			}
		})
	}
}

// loopbackPair returns both ends of a loopback TCP connection.
func loopbackPair(t *testing.T) (client, server net.Conn) {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer listener.Close()

	client, err = net.Dial("tcp", listener.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	server, err = listener.Accept()
	if err != nil {
		client.Close()
		t.Fatalf("Accept: %v", err)
	}
	return client, server
}

func TestIsExpectedCloseErrorOnLocallyClosedConnection(t *testing.T) {
	client, server := loopbackPair(t)
	defer server.Close()
	client.Close()

	_, err := client.Read(make([]byte, 1))
	if !errors.Is(err, net.ErrClosed) {
		t.Fatalf("read on locally closed connection returned %v, want net.ErrClosed", err)
	}
	if !IsExpectedCloseError(err) {
		t.Errorf("IsExpectedCloseError(%v) = false", err)
	}
}

func TestIsExpectedCloseErrorOnPeerClosedConnection(t *testing.T) {
	client, server := loopbackPair(t)
	defer client.Close()
	server.Close()

	_, err := client.Read(make([]byte, 1))
	if !IsExpectedCloseError(err) {
		t.Errorf("read after peer close returned %v, want an expected close error", err)
	}
}
