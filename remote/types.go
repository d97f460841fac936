// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package remote

import "fmt"

// ActionLaunch asks the device to start an application.
const ActionLaunch = "launch"

// LaunchRequest is the CBOR command the host sends to start an
// application on the device.
type LaunchRequest struct {
	// Action is always ActionLaunch for requests built by the host.
	// The field exists so a device can reject commands it does not
	// understand instead of misreading them.
	Action string `cbor:"action"`

	// RequestID correlates the command with device-side logs. Not
	// interpreted by the device.
	RequestID string `cbor:"request_id,omitempty"`

	// ApplicationID identifies the run configuration on the device.
	ApplicationID string `cbor:"application_id"`

	// CallbackPort is the host listener port the device connects back
	// to for the application's sources. The device pairs it with the
	// source address of the control connection.
	CallbackPort uint16 `cbor:"callback_port"`

	// Debug asks the device to start the QML debugger alongside the
	// application.
	Debug bool `cbor:"debug"`
}

// Response is the device's reply to a command.
type Response struct {
	// OK indicates whether the command succeeded.
	OK bool `cbor:"ok"`

	// Error contains the device's error message if OK is false.
	Error string `cbor:"error,omitempty"`

	ControlPort uint16 `cbor:"control_port,omitempty"`
	StdoutPort  uint16 `cbor:"stdout_port,omitempty"`
	StderrPort  uint16 `cbor:"stderr_port,omitempty"`
}

// Ports are the device ports reported by a successful launch.
type Ports struct {
	// Control is the acknowledgement port. The host passes it to its
	// observer unchanged; the device uses it for the debugger when the
	// application was started with Debug.
	Control uint16
	Stdout  uint16
	Stderr  uint16
}

// Validate reports an error if any port is zero. A device that
// answers OK without usable ports has failed the launch.
func (p Ports) Validate() error {
	if p.Control == 0 || p.Stdout == 0 || p.Stderr == 0 {
		return fmt.Errorf("device reported incomplete ports (control=%d stdout=%d stderr=%d)",
			p.Control, p.Stdout, p.Stderr)
	}
	return nil
}

// LaunchError is a launch refused by the device. Message is the device's
// text, verbatim.
type LaunchError struct {
	Message string
}

func (e *LaunchError) Error() string { return e.Message }
