// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package runcontrol launches a QML application on a paired device and
// relays its output back to the host.
//
// A [Session] is one run attempt. The host drives it through the
// [RunControl] interface: Start opens a local callback listener, sends
// the launch command over the device's command channel, and returns
// without waiting for the reply. When the device answers with its
// stream ports, the session connects to the stdout and stderr streams
// and forwards everything it reads to the host's [MessageSink]. The
// stdout stream closing means the application ended; the session stops
// itself and tells the [Observer].
//
// # Dispatch model
//
// All session state belongs to the goroutine running [Session.Run].
// Host calls are executed on that goroutine and return once applied.
// Network work happens on helper goroutines (the launch command, the
// two dials, the two stream readers, the HTTP server) which report back
// by posting events into the loop. An event that belongs to an earlier
// attempt or to a stream the session has already detached is dropped,
// so stop never races a late reply or a final read.
//
// Observer and MessageSink methods are called on the dispatch
// goroutine. They must not call back into the Session synchronously.
//
// # Failure policy
//
// A refused launch is reported to the sink on the stderr stream and
// leaves the session running: the host decides whether to stop it,
// typically from [LaunchFailureObserver.LaunchFailed]. With
// Config.LaunchTimeout set, a device that never replies is reported the
// same way and its late reply is discarded. A stream that fails to
// connect is logged and otherwise ignored. Nothing is retried.
package runcontrol
