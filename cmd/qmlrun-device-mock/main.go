// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/qmlrun/lib/console"
	"github.com/bureau-foundation/qmlrun/lib/process"
	"github.com/bureau-foundation/qmlrun/lib/version"
	"github.com/bureau-foundation/qmlrun/remote"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		process.Fatal(err)
	}
}

type options struct {
	listenAddress string
	logLevel      string
	showVersion   bool
	command       []string
}

// parseArgs splits the mock's own flags from the application command,
// which follows "--":
//
//	qmlrun-device-mock --listen :12000 -- qmlscene main.qml
func parseArgs(args []string) (*options, error) {
	opts := &options{}
	flagSet := pflag.NewFlagSet("qmlrun-device-mock", pflag.ContinueOnError)
	flagSet.StringVar(&opts.listenAddress, "listen", ":12000", "control listener address")
	flagSet.StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flagSet.BoolVar(&opts.showVersion, "version", false, "print version information and exit")
	// Everything from the command name on belongs to the command.
	flagSet.SetInterspersed(false)

	if err := flagSet.Parse(args); err != nil {
		return nil, err
	}
	if opts.showVersion {
		return opts, nil
	}

	opts.command = flagSet.Args()
	if len(opts.command) == 0 {
		return nil, errors.New("usage: qmlrun-device-mock [flags] -- <command> [args...]")
	}
	return opts, nil
}

func run(args []string) error {
	opts, err := parseArgs(args)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if opts.showVersion {
		version.Print("qmlrun-device-mock")
		return nil
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(opts.logLevel)); err != nil {
		return fmt.Errorf("invalid --log-level: %w", err)
	}
	logger := console.NewLogger(os.Stderr, level)

	listener, err := net.Listen("tcp", opts.listenAddress)
	if err != nil {
		return fmt.Errorf("opening control listener: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	device, err := newDevice(listener.Addr(), opts.command, logger)
	if err != nil {
		listener.Close()
		return err
	}
	logger.Info("device mock listening",
		"address", listener.Addr().String(),
		"command", opts.command,
	)

	server := &remote.Server{Launch: device.launch, Logger: logger}
	if err := server.Serve(ctx, listener); err != nil {
		return err
	}
	device.wait()
	return nil
}
