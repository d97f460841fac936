// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"github.com/bureau-foundation/qmlrun/lib/config"
	"github.com/bureau-foundation/qmlrun/lib/projectserver"
	"github.com/bureau-foundation/qmlrun/remote"
	"github.com/bureau-foundation/qmlrun/runcontrol"
	"github.com/bureau-foundation/qmlrun/transport"
)

// runSession runs one application until it exits, the launch fails or
// times out, or ctx is cancelled. Only a failed launch is an error.
func runSession(ctx context.Context, cfg *config.Config, logger *slog.Logger, sink runcontrol.MessageSink) error {
	handler, err := projectserver.NewHandler(cfg.Application.ProjectDir, logger)
	if err != nil {
		return err
	}

	dialer := &transport.TCPDialer{Timeout: cfg.DialTimeout()}
	launcher := &remote.Client{
		Address: net.JoinHostPort(cfg.Device.Address, strconv.Itoa(int(cfg.Device.ControlPort))),
		Dialer:  dialer,
	}
	observer := &exitObserver{
		logger:        logger,
		remoteStopped: make(chan struct{}, 1),
		launchFailed:  make(chan string, 1),
	}

	session, err := runcontrol.New(runcontrol.Config{
		Address:       cfg.Device.Address,
		ApplicationID: cfg.Application.ID,
		Debug:         cfg.Application.Debug,
		ListenAddress: cfg.Launch.ListenAddress,
		Handler:       handler,
		Launcher:      launcher,
		Dialer:        dialer,
		LaunchTimeout: cfg.ReplyTimeout(),
		Sink:          sink,
		Observer:      observer,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	runContext, cancelRun := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- session.Run(runContext) }()
	defer func() {
		cancelRun()
		<-runDone
	}()

	if err := session.Start(); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		logger.Info("interrupted, stopping session")
		session.Stop()
		return nil
	case <-observer.remoteStopped:
		return nil
	case message := <-observer.launchFailed:
		// The session stays running after a failed launch; a CLI run
		// has nothing left to wait for.
		session.Stop()
		return fmt.Errorf("launching %s on %s: %s", cfg.Application.ID, cfg.Device.Address, message)
	}
}

// exitObserver logs lifecycle signals and reports the ones that end a
// CLI run.
type exitObserver struct {
	logger        *slog.Logger
	remoteStopped chan struct{}
	launchFailed  chan string
}

var _ runcontrol.LaunchFailureObserver = (*exitObserver)(nil)

func (o *exitObserver) Started() {
	o.logger.Debug("session started")
}

func (o *exitObserver) Finished() {
	o.logger.Debug("session finished")
}

func (o *exitObserver) RemoteStarted(port uint16) {
	o.logger.Debug("remote started", "control_port", port)
}

func (o *exitObserver) RemoteStopped() {
	o.logger.Info("application exited on device")
	select {
	case o.remoteStopped <- struct{}{}:
	default:
	}
}

func (o *exitObserver) LaunchFailed(message string) {
	select {
	case o.launchFailed <- message:
	default:
	}
}
