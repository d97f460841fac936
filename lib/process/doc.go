// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides the binary entrypoint error handler shared by
// qmlrun and qmlrun-device-mock. Errors returned from run() are reported
// here because the structured logger may not exist yet.
package process
