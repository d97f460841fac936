// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package remote implements the command channel between the host and a
// paired device.
//
// The host tells the device which application to run and which host port
// to fetch it from; the device answers with the ports its output streams
// listen on. Each command uses its own TCP connection to the device's
// control address: the host writes one CBOR [LaunchRequest], the device
// writes one CBOR [Response], and the connection closes. There is no
// session state on the connection and nothing is pipelined.
//
// [Client] is the host side. [Server] is the device side; it backs the
// qmlrun-device-mock binary and the end-to-end tests of the qmlrun CLI.
package remote
