// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/bureau-foundation/qmlrun/lib/projectserver"
	"github.com/bureau-foundation/qmlrun/remote"
	"github.com/bureau-foundation/qmlrun/transport"
)

// acceptTimeout bounds the wait for the host to connect both output
// streams after a launch reply.
const acceptTimeout = 30 * time.Second

// waitDelay is how long Wait tolerates output pipes held open by the
// command's own children after it exits.
const waitDelay = time.Second

// probeTimeout bounds the project server health check.
const probeTimeout = 2 * time.Second

// device runs command once per launch. Stream listeners bind to the
// same IP as the control listener.
type device struct {
	ip          net.IP
	controlPort uint16
	command     []string
	logger      *slog.Logger

	applications sync.WaitGroup
}

func newDevice(control net.Addr, command []string, logger *slog.Logger) (*device, error) {
	address, ok := control.(*net.TCPAddr)
	if !ok {
		return nil, fmt.Errorf("control listener address %s is not TCP", control)
	}
	if _, err := exec.LookPath(command[0]); err != nil {
		return nil, fmt.Errorf("application command: %w", err)
	}
	return &device{
		ip:          address.IP,
		controlPort: uint16(address.Port),
		command:     command,
		logger:      logger,
	}, nil
}

// launch implements remote.LaunchFunc.
func (d *device) launch(ctx context.Context, request remote.LaunchRequest, peer net.Addr) (remote.Ports, error) {
	callbackAddress, err := callbackAddress(peer, request.CallbackPort)
	if err != nil {
		return remote.Ports{}, err
	}

	stdout, err := net.ListenTCP("tcp", &net.TCPAddr{IP: d.ip})
	if err != nil {
		return remote.Ports{}, fmt.Errorf("opening stdout stream: %w", err)
	}
	stderr, err := net.ListenTCP("tcp", &net.TCPAddr{IP: d.ip})
	if err != nil {
		stdout.Close()
		return remote.Ports{}, fmt.Errorf("opening stderr stream: %w", err)
	}

	logger := d.logger.With(
		"application_id", request.ApplicationID,
		"request_id", request.RequestID,
	)
	d.applications.Add(1)
	go func() {
		defer d.applications.Done()
		d.runApplication(ctx, logger, request, callbackAddress, stdout, stderr)
	}()

	return remote.Ports{
		Control: d.controlPort,
		Stdout:  listenerPort(stdout),
		Stderr:  listenerPort(stderr),
	}, nil
}

// wait blocks until every launched command has exited.
func (d *device) wait() {
	d.applications.Wait()
}

func (d *device) runApplication(ctx context.Context, logger *slog.Logger, request remote.LaunchRequest,
	callbackAddress string, stdoutListener, stderrListener *net.TCPListener) {
	stdoutConn, stderrConn, err := acceptStreams(ctx, stdoutListener, stderrListener)
	if err != nil {
		logger.Warn("host did not connect output streams", "error", err)
		return
	}
	defer stdoutConn.Close()
	defer stderrConn.Close()

	// A real device would fetch main.qml from here. The command still
	// runs when the server is unreachable; it may not need the files.
	if err := probeProjectServer(ctx, callbackAddress); err != nil {
		logger.Warn("project server unreachable", "callback_address", callbackAddress, "error", err)
	}
	callbackURL := "http://" + callbackAddress + "/"

	applicationContext, cancel := context.WithCancel(ctx)
	defer cancel()

	command := exec.CommandContext(applicationContext, d.command[0], d.command[1:]...)
	command.Env = append(os.Environ(),
		"QMLRUN_APPLICATION_ID="+request.ApplicationID,
		"QMLRUN_CALLBACK_URL="+callbackURL,
		"QMLRUN_DEBUG="+debugValue(request.Debug),
	)
	command.Stdout = stdoutConn
	command.Stderr = stderrConn
	command.WaitDelay = waitDelay

	// The host never writes to the streams. A read returning means it
	// closed stdout, which is how it stops the application.
	go func() {
		io.Copy(io.Discard, stdoutConn)
		cancel()
	}()

	if err := command.Start(); err != nil {
		logger.Warn("starting application command", "error", err)
		fmt.Fprintf(stderrConn, "starting %s: %v\n", d.command[0], err)
		return
	}
	logger.Info("application started", "pid", command.Process.Pid, "callback_url", callbackURL)

	err = command.Wait()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		logger.Info("application exited", "exit_code", 0)
	case errors.As(err, &exitErr):
		logger.Info("application exited", "exit_code", exitErr.ExitCode(), "stopped_by_host", applicationContext.Err() != nil)
	default:
		logger.Warn("waiting for application", "error", err)
	}
}

// acceptStreams accepts one connection on each listener and closes both
// listeners. It gives up after acceptTimeout or when ctx is done.
func acceptStreams(ctx context.Context, stdoutListener, stderrListener *net.TCPListener) (stdout, stderr net.Conn, err error) {
	defer stdoutListener.Close()
	defer stderrListener.Close()

	stop := context.AfterFunc(ctx, func() {
		stdoutListener.Close()
		stderrListener.Close()
	})
	defer stop()

	deadline := time.Now().Add(acceptTimeout)
	stdoutListener.SetDeadline(deadline)
	stderrListener.SetDeadline(deadline)

	stdout, err = stdoutListener.Accept()
	if err != nil {
		return nil, nil, fmt.Errorf("accepting stdout stream: %w", err)
	}
	stderr, err = stderrListener.Accept()
	if err != nil {
		stdout.Close()
		return nil, nil, fmt.Errorf("accepting stderr stream: %w", err)
	}
	return stdout, stderr, nil
}

// callbackAddress is the host's project server as seen from the device:
// the control connection's source address with the callback port.
func callbackAddress(peer net.Addr, port uint16) (string, error) {
	address, ok := peer.(*net.TCPAddr)
	if !ok {
		return "", fmt.Errorf("control connection from non-TCP peer %s", peer)
	}
	return net.JoinHostPort(address.IP.String(), strconv.Itoa(int(port))), nil
}

// probeProjectServer checks the health endpoint of the project server at
// address (host:port).
func probeProjectServer(ctx context.Context, address string) error {
	client := &http.Client{
		Transport: transport.HTTPTransport(&transport.TCPDialer{Timeout: probeTimeout}, address),
		Timeout:   probeTimeout,
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+address+projectserver.HealthPath, nil)
	if err != nil {
		return err
	}
	response, err := client.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()
	io.Copy(io.Discard, response.Body)
	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned %s", response.Status)
	}
	return nil
}

func listenerPort(listener *net.TCPListener) uint16 {
	return uint16(listener.Addr().(*net.TCPAddr).Port)
}

func debugValue(debug bool) string {
	if debug {
		return "1"
	}
	return "0"
}
