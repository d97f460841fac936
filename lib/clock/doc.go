// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction for testability.
//
// Structs that schedule work take a Clock field instead of calling
// time.AfterFunc directly:
//
//	session, _ := runcontrol.New(runcontrol.Config{Clock: clock.Real(), ...})
//
// In tests:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	// ... start the code under test ...
//	fake.WaitForTimers(1)          // wait for the timer to be registered
//	fake.Advance(30 * time.Second) // fire it deterministically
//
// WaitForTimers removes the race between a goroutine registering a timer
// and the test advancing time.
package clock
