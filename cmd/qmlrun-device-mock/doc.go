// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// qmlrun-device-mock stands in for a device during local development
// and integration tests. It answers launch commands on a control port
// by running a local command in place of the QML application.
//
// For each launch it opens two ephemeral stream listeners, replies with
// their ports, waits for the host to connect both, checks that the
// host's project server answers its health endpoint, then runs the
// command with its stdout and stderr attached to the two streams. When
// the command exits the streams are closed, which the host reads as the
// application stopping. If the host closes the stdout stream first the
// command is killed.
//
// The command receives the launch parameters in its environment:
//
//	QMLRUN_APPLICATION_ID  the application identifier
//	QMLRUN_CALLBACK_URL    http URL of the host's project server
//	QMLRUN_DEBUG           "1" when the debugger was requested
//
// Usage:
//
//	qmlrun-device-mock [--listen ADDR] [--log-level LEVEL] -- <command> [args...]
package main
