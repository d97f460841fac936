// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil classifies network errors.
//
// Stopping a session closes the output streams while their readers are
// blocked in Read, and a device that kills its application resets them
// from the other end. The resulting errors are part of normal teardown and must not be reported
// as failures; IsExpectedCloseError recognises them.
package netutil
