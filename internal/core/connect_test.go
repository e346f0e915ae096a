package core

import (
	"bytes"
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"telfence/internal/capability"
	ncerr "telfence/internal/errors"
	"telfence/internal/metrics"
	"telfence/internal/retry"
	"telfence/internal/telnet/telnettest"
	"telfence/internal/transport"
	"telfence/util"
)

func startServer(t *testing.T, handle func(string) string) *telnettest.Server {
	t.Helper()
	srv := telnettest.NewServer(handle)
	srv.Greeting = "login ok\r\n$ "
	if err := srv.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { srv.Close() })
	return srv
}

// TestConnectMode_Script verifies end-to-end connect mode with a
// command list.
func TestConnectMode_Script(t *testing.T) {
	srv := startServer(t, func(cmd string) string { return cmd + " done\r\n$ " })

	var out bytes.Buffer
	m := metrics.New()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	mode := &ConnectMode{
		Dialer:     &transport.TCPDialer{Timeout: 2 * time.Second},
		Capability: &capability.Script{Commands: []string{"uptime", "df"}, Out: &out},
		Address:    srv.Addr,
		Marker:     99,
		Logger:     util.NewLogger(0),
		Metrics:    m,
	}

	if err := mode.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got, want := out.String(), "uptime done\r\n$ df done\r\n$ "; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}

	snap := m.Snapshot()
	if snap.SessionsTotal != 1 || snap.SessionsActive != 0 {
		t.Errorf("sessions total=%d active=%d", snap.SessionsTotal, snap.SessionsActive)
	}
	if snap.Commands != 2 {
		t.Errorf("commands = %d, want 2", snap.Commands)
	}
	// Greeting plus two commands.
	if snap.Fences != 3 {
		t.Errorf("fences = %d, want 3", snap.Fences)
	}
	if snap.BytesIn == 0 || snap.BytesOut == 0 {
		t.Errorf("bytes in=%d out=%d", snap.BytesIn, snap.BytesOut)
	}
}

// TestConnectMode_BadMarker verifies that an invalid marker fails
// before anything is dialed.
func TestConnectMode_BadMarker(t *testing.T) {
	mode := &ConnectMode{
		Dialer:     &transport.TCPDialer{},
		Capability: &capability.Script{},
		Address:    "127.0.0.1:1",
		Marker:     10,
		Logger:     util.NewLogger(0),
	}

	err := mode.Run(context.Background())
	var cfgErr *ncerr.ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Field != "marker" {
		t.Fatalf("err = %v, want marker ConfigError", err)
	}
}

// TestConnectMode_CancelUnblocksRead verifies that cancelling the
// context ends a read cycle the server never fences.
func TestConnectMode_CancelUnblocksRead(t *testing.T) {
	srv := telnettest.NewServer(nil)
	srv.IgnoreFence = true
	if err := srv.Start(); err != nil {
		t.Fatal(err)
	}
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	mode := &ConnectMode{
		Dialer:     &transport.TCPDialer{Timeout: 2 * time.Second},
		Capability: &capability.Script{Commands: []string{"hang"}, Out: &bytes.Buffer{}},
		Address:    srv.Addr,
		Marker:     99,
		Logger:     util.NewLogger(0),
	}

	done := make(chan error, 1)
	go func() { done <- mode.Run(ctx) }()

	select {
	case err := <-done:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("err = %v, want context.DeadlineExceeded", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

// refusingDialer fails its first failures dials, with a retryable
// error unless permanent is set.
type refusingDialer struct {
	transport.TCPDialer
	failures  int
	permanent bool
	calls     int
}

func (d *refusingDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	d.calls++
	if d.calls <= d.failures {
		if d.permanent {
			return nil, ncerr.Wrap("dial", address, errors.New("no route to host"))
		}
		return nil, ncerr.Wrap("dial", address, &net.OpError{Op: "dial", Err: temporaryErr{}})
	}
	return d.TCPDialer.Dial(ctx, network, address)
}

type temporaryErr struct{}

func (temporaryErr) Error() string   { return "try again" }
func (temporaryErr) Timeout() bool   { return false }
func (temporaryErr) Temporary() bool { return true }

// TestConnectMode_RetriesDial verifies transient dial failures are
// retried and counted.
func TestConnectMode_RetriesDial(t *testing.T) {
	srv := startServer(t, func(cmd string) string { return "ok\r\n" })

	d := &refusingDialer{TCPDialer: transport.TCPDialer{Timeout: 2 * time.Second}, failures: 2}
	m := metrics.New()
	var out bytes.Buffer

	mode := &ConnectMode{
		Dialer:     d,
		Capability: &capability.Script{Commands: []string{"x"}, Out: &out},
		Address:    srv.Addr,
		Marker:     99,
		Backoff:    &retry.Backoff{InitialDelay: time.Millisecond, MaxAttempts: 3},
		Logger:     util.NewLogger(0),
		Metrics:    m,
	}

	if err := mode.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if d.calls != 3 {
		t.Errorf("dial calls = %d, want 3", d.calls)
	}
	if got := m.Snapshot().DialRetries; got != 2 {
		t.Errorf("dial retries = %d, want 2", got)
	}
	if out.String() != "ok\r\n" {
		t.Errorf("output = %q", out.String())
	}
}

// TestConnectMode_RefusedGivesUp verifies that a server that never
// comes up exhausts the dial budget.
func TestConnectMode_RefusedGivesUp(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	m := metrics.New()
	mode := &ConnectMode{
		Dialer:     &transport.TCPDialer{Timeout: time.Second},
		Capability: &capability.Script{},
		Address:    addr,
		Marker:     99,
		Backoff:    &retry.Backoff{InitialDelay: time.Millisecond, MaxAttempts: 3},
		Logger:     util.NewLogger(0),
		Metrics:    m,
	}

	err = mode.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "giving up after 3 attempts") {
		t.Fatalf("err = %v, want retry exhaustion", err)
	}
	if got := m.Snapshot().DialRetries; got != 2 {
		t.Errorf("dial retries = %d, want 2", got)
	}
	if m.ErrorCount() != 1 {
		t.Errorf("errors = %d, want 1", m.ErrorCount())
	}
}

// TestConnectMode_PermanentDialError verifies that a non-transient
// dial error is not retried.
func TestConnectMode_PermanentDialError(t *testing.T) {
	d := &refusingDialer{failures: 5}
	d.permanent = true

	mode := &ConnectMode{
		Dialer:     d,
		Capability: &capability.Script{},
		Address:    "127.0.0.1:23",
		Marker:     99,
		Backoff:    &retry.Backoff{InitialDelay: time.Millisecond, MaxAttempts: 5},
		Logger:     util.NewLogger(0),
	}

	if err := mode.Run(context.Background()); err == nil {
		t.Fatal("expected dial error")
	}
	if d.calls != 1 {
		t.Errorf("dial calls = %d, want 1", d.calls)
	}
}
