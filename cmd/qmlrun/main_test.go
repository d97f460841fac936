// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/qmlrun/lib/config"
	"github.com/bureau-foundation/qmlrun/lib/console"
	"github.com/bureau-foundation/qmlrun/lib/testutil"
	"github.com/bureau-foundation/qmlrun/remote"
)

func TestParseFlags(t *testing.T) {
	opts, err := parseFlags([]string{
		"--config", "/etc/qmlrun.yaml",
		"--device", "192.168.1.254",
		"--app", "fr.freebox.weather",
		"--debug",
		"--log-level", "debug",
	})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if opts.configPath != "/etc/qmlrun.yaml" || opts.device != "192.168.1.254" || opts.application != "fr.freebox.weather" {
		t.Errorf("unexpected options: %+v", opts)
	}
	if !opts.debug || !opts.debugSet {
		t.Error("--debug not recorded")
	}
	if opts.logLevel != "debug" {
		t.Errorf("logLevel = %q", opts.logLevel)
	}
}

func TestParseFlagsRejectsArguments(t *testing.T) {
	if _, err := parseFlags([]string{"main.qml"}); err == nil {
		t.Fatal("expected error for positional argument")
	}
}

// writeTestConfig writes a config pointing at a fresh project directory
// and returns its path.
func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "weather"), 0755); err != nil {
		t.Fatal(err)
	}
	content := `
device:
  address: 127.0.0.1
application:
  id: fr.freebox.weather
  project_dir: weather
launch:
  listen_address: 127.0.0.1:0
`
	path := filepath.Join(dir, "qmlrun.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfigAppliesFlags(t *testing.T) {
	path := writeTestConfig(t)
	otherProject := t.TempDir()

	cfg, err := loadConfig(&options{
		configPath:  path,
		device:      "10.0.0.9",
		application: "fr.freebox.clock",
		projectDir:  otherProject,
		debug:       true,
		debugSet:    true,
		logLevel:    "warn",
	})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Device.Address != "10.0.0.9" {
		t.Errorf("address = %s", cfg.Device.Address)
	}
	if cfg.Application.ID != "fr.freebox.clock" {
		t.Errorf("application = %s", cfg.Application.ID)
	}
	if cfg.Application.ProjectDir != otherProject {
		t.Errorf("project_dir = %s", cfg.Application.ProjectDir)
	}
	if !cfg.Application.Debug {
		t.Error("debug not applied")
	}
	if cfg.LogLevel() != slog.LevelWarn {
		t.Errorf("level = %s", cfg.LogLevel())
	}
}

func TestLoadConfigValidates(t *testing.T) {
	path := writeTestConfig(t)
	_, err := loadConfig(&options{configPath: path, logLevel: "loud"})
	if err == nil || !strings.Contains(err.Error(), "log.level") {
		t.Fatalf("expected log.level validation error, got %v", err)
	}
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv(config.EnvVar, writeTestConfig(t))
	cfg, err := loadConfig(&options{})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Application.ID != "fr.freebox.weather" {
		t.Errorf("application = %s", cfg.Application.ID)
	}
}

// startDevice serves launch commands on loopback with launch and points
// cfg at it.
func startDevice(t *testing.T, cfg *config.Config, launch remote.LaunchFunc) {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- (&remote.Server{Launch: launch}).Serve(ctx, listener) }()
	t.Cleanup(func() {
		cancel()
		testutil.RequireReceive(t, done, 5*time.Second, "device server exit")
	})
	cfg.Device.ControlPort = uint16(listener.Addr().(*net.TCPAddr).Port)
}

func loadTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := loadConfig(&options{configPath: writeTestConfig(t)})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	return cfg
}

func listenLoopback(t *testing.T) net.Listener {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() { listener.Close() })
	return listener
}

func port(listener net.Listener) uint16 {
	return uint16(listener.Addr().(*net.TCPAddr).Port)
}

func TestRunSessionRelaysUntilApplicationExits(t *testing.T) {
	cfg := loadTestConfig(t)
	startDevice(t, cfg, func(ctx context.Context, request remote.LaunchRequest, peer net.Addr) (remote.Ports, error) {
		stdout := listenLoopback(t)
		stderr := listenLoopback(t)
		go func() {
			stdoutConn, err := stdout.Accept()
			if err != nil {
				return
			}
			stderrConn, err := stderr.Accept()
			if err != nil {
				stdoutConn.Close()
				return
			}
			io.WriteString(stderrConn, "warning: no network\n")
			// Give the stderr line time to be relayed before the stdout
			// close ends the session.
			time.Sleep(50 * time.Millisecond)
			io.WriteString(stdoutConn, "hello from "+request.ApplicationID+"\n")
			stdoutConn.Close()
			stderrConn.Close()
		}()
		return remote.Ports{Control: 9999, Stdout: port(stdout), Stderr: port(stderr)}, nil
	})

	var stdout, stderr bytes.Buffer
	sink := console.NewSink(&stdout, &stderr, false)

	done := make(chan error, 1)
	go func() { done <- runSession(context.Background(), cfg, slog.New(slog.DiscardHandler), sink) }()
	if err := testutil.RequireReceive(t, done, 10*time.Second, "session exit"); err != nil {
		t.Fatalf("runSession: %v", err)
	}

	if got := stdout.String(); got != "hello from fr.freebox.weather\n" {
		t.Errorf("stdout = %q", got)
	}
	if got := stderr.String(); got != "warning: no network\n" {
		t.Errorf("stderr = %q", got)
	}
}

func TestRunSessionFailsWhenDeviceRefuses(t *testing.T) {
	cfg := loadTestConfig(t)
	startDevice(t, cfg, func(context.Context, remote.LaunchRequest, net.Addr) (remote.Ports, error) {
		return remote.Ports{}, errors.New("application fr.freebox.weather is not installed")
	})

	var stdout, stderr bytes.Buffer
	sink := console.NewSink(&stdout, &stderr, false)

	err := runSession(context.Background(), cfg, slog.New(slog.DiscardHandler), sink)
	if err == nil || !strings.Contains(err.Error(), "is not installed") {
		t.Fatalf("runSession error = %v, want the device's refusal", err)
	}
	if !strings.Contains(stderr.String(), "is not installed") {
		t.Errorf("refusal not relayed to stderr: %q", stderr.String())
	}
}

func TestRunSessionFailsOnReplyTimeout(t *testing.T) {
	cfg := loadTestConfig(t)
	cfg.Launch.ReplyTimeout = "100ms"
	startDevice(t, cfg, func(ctx context.Context, request remote.LaunchRequest, peer net.Addr) (remote.Ports, error) {
		<-ctx.Done()
		return remote.Ports{}, ctx.Err()
	})

	var stderr bytes.Buffer
	err := runSession(context.Background(), cfg, slog.New(slog.DiscardHandler), console.NewSink(io.Discard, &stderr, false))
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("runSession error = %v, want timeout", err)
	}
	if !strings.Contains(stderr.String(), "timed out") {
		t.Errorf("timeout not relayed to stderr: %q", stderr.String())
	}
}

func TestRunSessionStopsOnCancel(t *testing.T) {
	cfg := loadTestConfig(t)
	launched := make(chan struct{})
	startDevice(t, cfg, func(ctx context.Context, request remote.LaunchRequest, peer net.Addr) (remote.Ports, error) {
		close(launched)
		<-ctx.Done()
		return remote.Ports{}, ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- runSession(ctx, cfg, slog.New(slog.DiscardHandler), console.NewSink(io.Discard, io.Discard, false))
	}()

	testutil.RequireClosed(t, launched, 5*time.Second, "launch command")
	cancel()
	if err := testutil.RequireReceive(t, done, 5*time.Second, "session exit"); err != nil {
		t.Fatalf("runSession after cancel: %v", err)
	}
}
