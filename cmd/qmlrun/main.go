// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/qmlrun/lib/config"
	"github.com/bureau-foundation/qmlrun/lib/console"
	"github.com/bureau-foundation/qmlrun/lib/process"
	"github.com/bureau-foundation/qmlrun/lib/version"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		process.Fatal(err)
	}
}

// options holds the parsed command line. Empty strings mean "use the
// config file's value".
type options struct {
	configPath  string
	device      string
	application string
	projectDir  string
	debug       bool
	debugSet    bool
	logLevel    string
	showVersion bool
}

func parseFlags(args []string) (*options, error) {
	opts := &options{}
	flagSet := pflag.NewFlagSet("qmlrun", pflag.ContinueOnError)
	flagSet.StringVar(&opts.configPath, "config", "", "path to qmlrun.yaml (default: $"+config.EnvVar+")")
	flagSet.StringVar(&opts.device, "device", "", "device host, overriding device.address")
	flagSet.StringVar(&opts.application, "app", "", "application identifier, overriding application.id")
	flagSet.StringVar(&opts.projectDir, "project-dir", "", "directory served to the device, overriding application.project_dir")
	flagSet.BoolVar(&opts.debug, "debug", false, "start the application under the QML debugger")
	flagSet.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error), overriding log.level")
	flagSet.BoolVar(&opts.showVersion, "version", false, "print version information and exit")

	if err := flagSet.Parse(args); err != nil {
		return nil, err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return nil, fmt.Errorf("unexpected argument: %s", rest[0])
	}
	opts.debugSet = flagSet.Changed("debug")
	return opts, nil
}

// loadConfig reads the config file and applies command-line overrides.
// The result is validated.
func loadConfig(opts *options) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if opts.configPath != "" {
		cfg, err = config.LoadFile(opts.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if opts.device != "" {
		cfg.Device.Address = opts.device
	}
	if opts.application != "" {
		cfg.Application.ID = opts.application
	}
	if opts.projectDir != "" {
		projectDir, err := filepath.Abs(opts.projectDir)
		if err != nil {
			return nil, fmt.Errorf("resolving --project-dir: %w", err)
		}
		cfg.Application.ProjectDir = projectDir
	}
	if opts.debugSet {
		cfg.Application.Debug = opts.debug
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}
	return cfg, nil
}

func run(args []string) error {
	opts, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if opts.showVersion {
		version.Print("qmlrun")
		return nil
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	logger := console.NewLogger(os.Stderr, cfg.LogLevel())

	color, err := console.ParseColorMode(cfg.Console.Color, os.Stderr)
	if err != nil {
		return err
	}
	sink := console.NewSink(os.Stdout, os.Stderr, color)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return runSession(ctx, cfg, logger, sink)
}
