// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/bureau-foundation/qmlrun/lib/codec"
	"github.com/bureau-foundation/qmlrun/transport"
)

// maxResponseSize bounds a launch reply. A real reply is a few dozen
// bytes.
const maxResponseSize = 64 * 1024

// Client sends commands to a device's control address.
type Client struct {
	// Address is the device control endpoint in host:port form.
	Address string

	// Dialer opens the control connection. Nil uses a plain
	// transport.TCPDialer.
	Dialer transport.Dialer
}

// Launch sends request to the device and waits for its reply. It blocks
// until the device answers, the connection fails, or ctx is done; there
// is no implicit timeout. A refusal by the device is returned as a
// *LaunchError carrying the device's message.
func (c *Client) Launch(ctx context.Context, request LaunchRequest) (Ports, error) {
	if request.Action == "" {
		request.Action = ActionLaunch
	}

	dialer := c.Dialer
	if dialer == nil {
		dialer = &transport.TCPDialer{}
	}
	conn, err := dialer.DialContext(ctx, c.Address)
	if err != nil {
		return Ports{}, fmt.Errorf("connecting to device at %s: %w", c.Address, err)
	}
	defer conn.Close()

	// Closing the connection is the only way to interrupt a blocked
	// decode. Deadlines would also work but need a deadline to exist.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	response, err := roundTrip(conn, request)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Ports{}, ctxErr
		}
		return Ports{}, err
	}

	if !response.OK {
		message := response.Error
		if message == "" {
			message = "device refused launch without a reason"
		}
		return Ports{}, &LaunchError{Message: message}
	}

	ports := Ports{
		Control: response.ControlPort,
		Stdout:  response.StdoutPort,
		Stderr:  response.StderrPort,
	}
	if err := ports.Validate(); err != nil {
		return Ports{}, err
	}
	return ports, nil
}

func roundTrip(conn net.Conn, request LaunchRequest) (*Response, error) {
	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		return nil, fmt.Errorf("sending launch command: %w", err)
	}

	var response Response
	if err := codec.NewDecoder(io.LimitReader(conn, maxResponseSize)).Decode(&response); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("device closed the control connection without replying")
		}
		return nil, fmt.Errorf("reading launch reply: %w", err)
	}
	return &response, nil
}
