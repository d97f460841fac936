// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package runcontrol

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/qmlrun/lib/clock"
	"github.com/bureau-foundation/qmlrun/lib/testutil"
	"github.com/bureau-foundation/qmlrun/remote"
	"github.com/bureau-foundation/qmlrun/transport"
)

// deviceHost is a documentation address (RFC 5737). Nothing dials it for
// real: routingDialer maps its ports onto loopback listeners.
const deviceHost = "192.0.2.10"

const (
	waitTimeout = 5 * time.Second
	quietWindow = 50 * time.Millisecond
)

// launchCall is one Launch invocation observed by fakeLauncher. The test
// answers it by sending on reply.
type launchCall struct {
	ctx     context.Context
	request remote.LaunchRequest
	reply   chan launchReply
}

type launchReply struct {
	ports remote.Ports
	err   error
}

type fakeLauncher struct {
	calls chan launchCall
}

func (f *fakeLauncher) Launch(ctx context.Context, request remote.LaunchRequest) (remote.Ports, error) {
	call := launchCall{ctx: ctx, request: request, reply: make(chan launchReply, 1)}
	f.calls <- call
	select {
	case reply := <-call.reply:
		return reply.ports, reply.err
	case <-ctx.Done():
		return remote.Ports{}, ctx.Err()
	}
}

// routingDialer records every dialed address and connects the ones it
// has a route for. Unrouted addresses fail like a refused connection.
type routingDialer struct {
	dialed chan string

	mu     sync.Mutex
	routes map[string]string
}

func (d *routingDialer) route(port uint16, target string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.routes[net.JoinHostPort(deviceHost, fmt.Sprint(port))] = target
}

func (d *routingDialer) DialContext(ctx context.Context, address string) (net.Conn, error) {
	d.dialed <- address
	d.mu.Lock()
	target, ok := d.routes[address]
	d.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("dial tcp %s: connection refused", address)
	}
	return (&transport.TCPDialer{}).DialContext(ctx, target)
}

type message struct {
	text   string
	stream Stream
}

type recordingSink struct {
	messages chan message
}

func (r *recordingSink) AppendMessage(text string, stream Stream) {
	r.messages <- message{text: text, stream: stream}
}

// recordingObserver turns every signal into a string on one channel so
// tests can assert relative order.
type recordingObserver struct {
	signals chan string
}

func (r *recordingObserver) Started()  { r.signals <- "started" }
func (r *recordingObserver) Finished() { r.signals <- "finished" }
func (r *recordingObserver) RemoteStarted(port uint16) {
	r.signals <- fmt.Sprintf("remote-started:%d", port)
}
func (r *recordingObserver) RemoteStopped() { r.signals <- "remote-stopped" }

type harness struct {
	t        *testing.T
	session  *Session
	launcher *fakeLauncher
	dialer   *routingDialer
	sink     *recordingSink
	observer *recordingObserver
	clock    *clock.FakeClock
	cancel   context.CancelFunc
	done     chan error

	runOnce sync.Once
	runErr  error
}

// newHarness builds a Session against fakes and runs its dispatch loop
// until the test ends. configure may adjust the Config before New.
func newHarness(t *testing.T, configure func(*Config)) *harness {
	t.Helper()
	h := &harness{
		t:        t,
		launcher: &fakeLauncher{calls: make(chan launchCall, 8)},
		dialer:   &routingDialer{dialed: make(chan string, 8), routes: make(map[string]string)},
		sink:     &recordingSink{messages: make(chan message, 64)},
		observer: &recordingObserver{signals: make(chan string, 16)},
		clock:    clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
		done:     make(chan error, 1),
	}

	config := Config{
		Address:       deviceHost,
		ApplicationID: testutil.UniqueID("fr.freebox.test"),
		ListenAddress: "127.0.0.1:0",
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "served "+r.URL.Path)
		}),
		Launcher: h.launcher,
		Dialer:   h.dialer,
		Sink:     h.sink,
		Observer: h.observer,
		Clock:    h.clock,
	}
	if configure != nil {
		configure(&config)
	}

	session, err := New(config)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.session = session

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- session.Run(ctx) }()
	t.Cleanup(h.shutdown)
	return h
}

// stopRun cancels the dispatch loop and returns Run's result. Safe to
// call more than once.
func (h *harness) stopRun() error {
	h.cancel()
	h.runOnce.Do(func() {
		h.runErr = testutil.RequireReceive(h.t, h.done, waitTimeout, "dispatch loop exit")
	})
	return h.runErr
}

func (h *harness) shutdown() {
	if err := h.stopRun(); err != nil {
		h.t.Errorf("Run: %v", err)
	}
}

func (h *harness) start() launchCall {
	h.t.Helper()
	if err := h.session.Start(); err != nil {
		h.t.Fatalf("Start: %v", err)
	}
	h.expectSignal("started")
	return testutil.RequireReceive(h.t, h.launcher.calls, waitTimeout, "launch command")
}

func (h *harness) expectSignal(want string) {
	h.t.Helper()
	if got := testutil.RequireReceive(h.t, h.observer.signals, waitTimeout, "waiting for %s", want); got != want {
		h.t.Fatalf("signal = %q, want %q", got, want)
	}
}

func (h *harness) expectMessage() message {
	h.t.Helper()
	return testutil.RequireReceive(h.t, h.sink.messages, waitTimeout, "sink message")
}

// deviceStream is the device end of one output stream.
type deviceStream struct {
	listener net.Listener
	accepted chan net.Conn
}

// newDeviceStream listens on loopback and routes port on the device host
// to it.
func (h *harness) newDeviceStream(port uint16) *deviceStream {
	h.t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		h.t.Fatalf("Listen: %v", err)
	}
	stream := &deviceStream{listener: listener, accepted: make(chan net.Conn, 1)}
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		stream.accepted <- conn
	}()
	h.t.Cleanup(func() { listener.Close() })
	h.dialer.route(port, listener.Addr().String())
	return stream
}

func (d *deviceStream) conn(t *testing.T) net.Conn {
	t.Helper()
	conn := testutil.RequireReceive(t, d.accepted, waitTimeout, "device stream accept")
	t.Cleanup(func() { conn.Close() })
	return conn
}

// connectStreams answers call with ports (1000, 1001, 1002), waits for
// both streams to be accepted, and returns the device ends.
func (h *harness) connectStreams(call launchCall) (stdout, stderr net.Conn) {
	h.t.Helper()
	stdoutStream := h.newDeviceStream(1001)
	stderrStream := h.newDeviceStream(1002)
	call.reply <- launchReply{ports: remote.Ports{Control: 1000, Stdout: 1001, Stderr: 1002}}
	h.expectSignal("remote-started:1000")
	return stdoutStream.conn(h.t), stderrStream.conn(h.t)
}
