// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// qmlrun launches a QML application on a paired device and relays its
// output to the local terminal.
//
// It reads a YAML config (--config or QMLRUN_CONFIG), opens a callback
// listener that serves the project directory to the device, and sends
// the launch command to the device's control port. The application's
// stdout is copied to qmlrun's stdout and its stderr to qmlrun's stderr.
//
// qmlrun exits when the application closes its stdout stream, when the
// device refuses or does not answer the launch, or on SIGINT/SIGTERM
// (which stops the session first).
//
// Usage:
//
//	qmlrun --config qmlrun.yaml [--device HOST] [--app ID] [--project-dir DIR] [--debug]
package main
