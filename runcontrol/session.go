// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package runcontrol

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/qmlrun/lib/clock"
	"github.com/bureau-foundation/qmlrun/remote"
	"github.com/bureau-foundation/qmlrun/transport"
)

// DefaultListenAddress binds the callback listener to an OS-assigned
// port on all interfaces, since the device reaches the host over the
// LAN.
const DefaultListenAddress = ":0"

// Config configures a Session. Address, ApplicationID, Launcher, and
// Sink are required.
type Config struct {
	// Address is the paired device's host (no port). Output streams
	// are dialed at this address. Fixed for the life of the session.
	Address string

	// ApplicationID is the run-configuration identifier sent in the
	// launch command.
	ApplicationID string

	// Debug asks the device to start the application under the QML
	// debugger.
	Debug bool

	// ListenAddress is where the callback listener binds. Empty means
	// DefaultListenAddress.
	ListenAddress string

	// Handler serves the callback listener. Normally the project file
	// server; nil answers 404 to everything.
	Handler http.Handler

	Launcher Launcher

	// Dialer opens the output streams. Nil uses transport.TCPDialer.
	Dialer transport.Dialer

	// LaunchTimeout bounds the wait for the device's reply to the
	// launch command. Zero waits forever.
	LaunchTimeout time.Duration

	Sink     MessageSink
	Observer Observer

	// Clock drives LaunchTimeout. Nil uses the real clock.
	Clock clock.Clock

	Logger *slog.Logger
}

// Session runs one application on one device. Create it with New, run
// its dispatch loop with Run, then drive it through the RunControl
// methods. The RunControl methods block until Run is executing.
type Session struct {
	id            string
	address       string
	applicationID string
	debug         bool
	listenAddress string
	handler       http.Handler
	launcher      Launcher
	dialer        transport.Dialer
	launchTimeout time.Duration
	sink          MessageSink
	observer      Observer
	clock         clock.Clock
	logger        *slog.Logger

	calls   chan func()
	events  chan event
	done    chan struct{}
	started atomic.Bool

	// Everything below is owned by the Run goroutine.
	runContext     context.Context
	running        bool
	listener       transport.Listener
	callbackPort   uint16
	attempt        uint64
	attemptContext context.Context
	attemptCancel  context.CancelFunc
	launchPending  bool
	launchSent     time.Time
	launchCancel   context.CancelFunc
	launchTimer    *clock.Timer
	outputs        [2]*outputStream
}

// New validates config and returns a Session that is not yet running.
func New(config Config) (*Session, error) {
	var errs []error
	if config.Address == "" {
		errs = append(errs, errors.New("device address is required"))
	}
	if config.ApplicationID == "" {
		errs = append(errs, errors.New("application identifier is required"))
	}
	if config.Launcher == nil {
		errs = append(errs, errors.New("launcher is required"))
	}
	if config.Sink == nil {
		errs = append(errs, errors.New("message sink is required"))
	}
	if config.LaunchTimeout < 0 {
		errs = append(errs, fmt.Errorf("launch timeout must not be negative, got %s", config.LaunchTimeout))
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("runcontrol: %w", errors.Join(errs...))
	}

	session := &Session{
		id:            uuid.NewString(),
		address:       config.Address,
		applicationID: config.ApplicationID,
		debug:         config.Debug,
		listenAddress: config.ListenAddress,
		handler:       config.Handler,
		launcher:      config.Launcher,
		dialer:        config.Dialer,
		launchTimeout: config.LaunchTimeout,
		sink:          config.Sink,
		observer:      config.Observer,
		clock:         config.Clock,
		logger:        config.Logger,
		calls:         make(chan func()),
		events:        make(chan event),
		done:          make(chan struct{}),
	}
	if session.listenAddress == "" {
		session.listenAddress = DefaultListenAddress
	}
	if session.handler == nil {
		session.handler = http.NotFoundHandler()
	}
	if session.dialer == nil {
		session.dialer = &transport.TCPDialer{}
	}
	if session.observer == nil {
		session.observer = nopObserver{}
	}
	if session.clock == nil {
		session.clock = clock.Real()
	}
	if session.logger == nil {
		session.logger = slog.New(slog.DiscardHandler)
	}
	session.logger = session.logger.With(
		"session", session.id,
		"application_id", session.applicationID,
		"device", session.address,
	)
	return session, nil
}

// ID returns the session's unique identifier, used in logs.
func (s *Session) ID() string { return s.id }

// Run executes the dispatch loop until ctx is cancelled. A running
// session is stopped on the way out (emitting Finished). After Run
// returns, Start returns ErrClosed and the other RunControl methods are
// no-ops. Run may be called only once.
func (s *Session) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("runcontrol: Run called more than once")
	}
	defer close(s.done)

	s.runContext = ctx
	for {
		select {
		case call := <-s.calls:
			call()
		case ev := <-s.events:
			s.handle(ev)
		case <-ctx.Done():
			s.stop()
			return nil
		}
	}
}

// Start opens the callback listener and sends the launch command. It
// does not wait for the device's reply. Start on a running session does
// nothing. If the listener cannot be opened the session stays stopped
// and the error is returned.
func (s *Session) Start() error {
	var err error
	if !s.do(func() { err = s.start() }) {
		return ErrClosed
	}
	return err
}

// Stop disconnects the output streams and closes the listener. Stop on
// a stopped session does nothing. The stop is always complete when Stop
// returns.
func (s *Session) Stop() StopResult {
	s.do(s.stop)
	return StoppedSynchronously
}

// IsRunning reports whether the session is between Start and stop.
func (s *Session) IsRunning() bool {
	var running bool
	s.do(func() { running = s.running })
	return running
}

// Icon returns the session's icon name. Sessions have none.
func (s *Session) Icon() string { return "" }

// CallbackPort returns the bound listener port, or zero when stopped.
func (s *Session) CallbackPort() uint16 {
	var port uint16
	s.do(func() { port = s.callbackPort })
	return port
}

// do runs call on the dispatch goroutine and waits for it. Returns false
// without running call if the loop has exited.
func (s *Session) do(call func()) bool {
	finished := make(chan struct{})
	select {
	case s.calls <- func() {
		defer close(finished)
		call()
	}:
	case <-s.done:
		return false
	}
	<-finished
	return true
}

// post delivers ev to the dispatch loop. Returns false if the loop has
// exited; the caller then owns any resource carried by ev.
func (s *Session) post(ev event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

func (s *Session) start() error {
	if s.running {
		return nil
	}

	listener, err := transport.NewTCPListener(s.listenAddress)
	if err != nil {
		return fmt.Errorf("opening callback listener on %s: %w", s.listenAddress, err)
	}

	s.attempt++
	attemptContext, cancel := context.WithCancel(s.runContext)
	s.attemptContext = attemptContext
	s.attemptCancel = cancel
	s.listener = listener
	s.callbackPort = listener.Port()

	go func() {
		if err := listener.Serve(attemptContext, s.handler); err != nil {
			s.logger.Warn("callback listener failed", "error", err)
		}
	}()

	s.sendLaunch()
	s.running = true

	s.logger.Info("session started",
		"callback_address", listener.Address(),
		"callback_port", s.callbackPort,
		"debug", s.debug,
		"attempt", s.attempt,
	)
	s.observer.Started()
	return nil
}

// sendLaunch issues the launch command on a helper goroutine. The reply
// arrives later as a launch event tagged with the current attempt.
func (s *Session) sendLaunch() {
	attempt := s.attempt
	request := remote.LaunchRequest{
		Action:        remote.ActionLaunch,
		RequestID:     uuid.NewString(),
		ApplicationID: s.applicationID,
		CallbackPort:  s.callbackPort,
		Debug:         s.debug,
	}

	launchContext, cancel := context.WithCancel(s.attemptContext)
	s.launchCancel = cancel
	s.launchPending = true
	s.launchSent = s.clock.Now()
	if s.launchTimeout > 0 {
		s.launchTimer = s.clock.AfterFunc(s.launchTimeout, func() {
			s.post(launchTimedOut{attempt: attempt})
		})
	}

	s.logger.Debug("sending launch command", "request_id", request.RequestID)
	go func() {
		ports, err := s.launcher.Launch(launchContext, request)
		if err != nil {
			s.post(launchFailed{attempt: attempt, message: err.Error()})
			return
		}
		s.post(launchSucceeded{attempt: attempt, ports: ports})
	}()
}

// finishLaunch clears the pending launch. Returns false if attempt is
// stale or its reply is no longer awaited.
func (s *Session) finishLaunch(attempt uint64) bool {
	if !s.running || attempt != s.attempt || !s.launchPending {
		return false
	}
	s.launchPending = false
	if s.launchTimer != nil {
		s.launchTimer.Stop()
		s.launchTimer = nil
	}
	s.launchCancel()
	return true
}

func (s *Session) stop() {
	if !s.running {
		return
	}

	s.disconnectOutput()
	s.running = false

	s.launchPending = false
	if s.launchTimer != nil {
		s.launchTimer.Stop()
		s.launchTimer = nil
	}
	s.attemptCancel()

	if err := s.listener.Close(); err != nil {
		s.logger.Warn("closing callback listener", "error", err)
	}
	s.listener = nil
	s.callbackPort = 0

	s.logger.Info("session stopped", "attempt", s.attempt)
	s.observer.Finished()
}

func (s *Session) handle(ev event) {
	switch ev := ev.(type) {
	case launchSucceeded:
		if !s.finishLaunch(ev.attempt) {
			s.logger.Debug("dropping stale launch reply", "attempt", ev.attempt)
			return
		}
		s.logger.Info("application started on device",
			"reply_time", s.clock.Now().Sub(s.launchSent),
			"control_port", ev.ports.Control,
			"stdout_port", ev.ports.Stdout,
			"stderr_port", ev.ports.Stderr,
		)
		s.observer.RemoteStarted(ev.ports.Control)
		s.connectOutput(ev.ports.Stdout, ev.ports.Stderr)

	case launchFailed:
		if !s.finishLaunch(ev.attempt) {
			s.logger.Debug("dropping stale launch failure", "attempt", ev.attempt, "error", ev.message)
			return
		}
		// The session stays running: the host owns the decision to
		// stop after a refused launch.
		s.logger.Warn("launch failed", "error", ev.message)
		s.reportLaunchFailure(ev.message)

	case launchTimedOut:
		if !s.finishLaunch(ev.attempt) {
			return
		}
		message := fmt.Sprintf("launch of %s timed out after %s without a reply from the device",
			s.applicationID, s.launchTimeout)
		s.logger.Warn("launch timed out", "timeout", s.launchTimeout)
		s.reportLaunchFailure(message)

	case streamConnected:
		s.attachOutput(ev)

	case streamConnectFailed:
		if !s.running || ev.attempt != s.attempt {
			return
		}
		s.logger.Warn("output stream connection failed",
			"stream", ev.stream.String(),
			"address", ev.address,
			"error", ev.err,
		)

	case dataReceived:
		if !s.isCurrent(ev.output) {
			return
		}
		s.sink.AppendMessage(string(ev.data), ev.output.stream)

	case streamDisconnected:
		if !s.isCurrent(ev.output) {
			return
		}
		s.detachOutput(ev.output, ev.err)
		if ev.output.stream == StreamStdout {
			s.stop()
			s.observer.RemoteStopped()
		}
	}
}

func (s *Session) reportLaunchFailure(message string) {
	s.sink.AppendMessage(message, StreamStderr)
	if observer, ok := s.observer.(LaunchFailureObserver); ok {
		observer.LaunchFailed(message)
	}
}
