// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/bureau-foundation/qmlrun/lib/codec"
)

// requestTimeout bounds how long a control connection may take to
// deliver its command. The launch itself is not bounded.
const requestTimeout = 30 * time.Second

// LaunchFunc starts an application on the device side. peer is the
// remote address of the control connection; the callback port in the
// request refers to that host. The returned ports are sent back to the
// host. A returned error becomes the response's error string.
type LaunchFunc func(ctx context.Context, request LaunchRequest, peer net.Addr) (Ports, error)

// Server answers launch commands on a device control listener.
type Server struct {
	Launch LaunchFunc
	Logger *slog.Logger
}

// Serve accepts control connections until ctx is cancelled or listener
// fails. Each connection carries one command and is handled on its own
// goroutine. Serve closes listener and waits for in-flight commands
// before returning.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	if s.Launch == nil {
		return errors.New("remote: Server.Launch is nil")
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	stop := context.AfterFunc(ctx, func() { listener.Close() })
	defer stop()

	var handlers sync.WaitGroup
	defer handlers.Wait()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accepting control connection: %w", err)
		}
		handlers.Add(1)
		go func() {
			defer handlers.Done()
			s.handleConnection(ctx, logger, conn)
		}()
	}
}

// handleConnection processes a single command/response cycle.
func (s *Server) handleConnection(ctx context.Context, logger *slog.Logger, conn net.Conn) {
	defer conn.Close()
	logger = logger.With("peer", conn.RemoteAddr().String())

	conn.SetReadDeadline(time.Now().Add(requestTimeout))

	encoder := codec.NewEncoder(conn)

	var request LaunchRequest
	if err := codec.NewDecoder(conn).Decode(&request); err != nil {
		if errors.Is(err, io.EOF) {
			return
		}
		logger.Warn("decoding control command", "error", err)
		if err := encoder.Encode(Response{OK: false, Error: "invalid command"}); err != nil {
			logger.Warn("encoding error response", "error", err)
		}
		return
	}
	conn.SetReadDeadline(time.Time{})

	logger = logger.With("action", request.Action, "request_id", request.RequestID)

	var response Response
	switch request.Action {
	case ActionLaunch:
		response = s.handleLaunch(ctx, logger, conn.RemoteAddr(), request)
	default:
		logger.Warn("unknown control action")
		response = Response{OK: false, Error: fmt.Sprintf("unknown action %q", request.Action)}
	}

	if err := encoder.Encode(response); err != nil {
		logger.Warn("encoding control response", "error", err)
	}
}

func (s *Server) handleLaunch(ctx context.Context, logger *slog.Logger, peer net.Addr, request LaunchRequest) Response {
	if request.ApplicationID == "" {
		return Response{OK: false, Error: "application_id is required"}
	}
	if request.CallbackPort == 0 {
		return Response{OK: false, Error: "callback_port is required"}
	}

	logger.Info("launching application",
		"application_id", request.ApplicationID,
		"callback_port", request.CallbackPort,
		"debug", request.Debug,
	)

	ports, err := s.Launch(ctx, request, peer)
	if err != nil {
		logger.Warn("launch failed", "application_id", request.ApplicationID, "error", err)
		return Response{OK: false, Error: err.Error()}
	}
	if err := ports.Validate(); err != nil {
		logger.Error("launch handler returned unusable ports", "error", err)
		return Response{OK: false, Error: err.Error()}
	}

	return Response{
		OK:          true,
		ControlPort: ports.Control,
		StdoutPort:  ports.Stdout,
		StderrPort:  ports.Stderr,
	}
}
