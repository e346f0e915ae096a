package errors

import (
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
	"testing"
)

func TestNetworkError_Format(t *testing.T) {
	tests := []struct {
		name string
		err  NetworkError
		want string
	}{
		{
			name: "retryable",
			err:  NetworkError{Op: "dial", Addr: "router:23", Err: io.EOF, Retryable: true},
			want: "dial router:23: EOF (retryable)",
		},
		{
			name: "non-retryable",
			err:  NetworkError{Op: "write", Addr: "10.0.0.1:23", Err: fmt.Errorf("broken pipe")},
			want: "write 10.0.0.1:23: broken pipe",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNetworkError_Unwrap(t *testing.T) {
	err := &NetworkError{Op: "dial", Addr: "x", Err: io.EOF}
	if !Is(err, io.EOF) {
		t.Error("should unwrap to io.EOF")
	}
}

func TestSSHError_Format(t *testing.T) {
	err := WrapSSH("handshake", "bastion.example.com", 22, fmt.Errorf("connection refused"))
	want := "ssh handshake bastion.example.com:22: connection refused"
	if got := err.Error(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if !Is(err, err.Err) {
		t.Error("should unwrap to inner error")
	}
}

func TestConfigError_Format(t *testing.T) {
	tests := []struct {
		name string
		err  ConfigError
		want string
	}{
		{
			name: "with value and hint",
			err: ConfigError{
				Field:   "marker",
				Value:   7,
				Message: "out of range 40-239",
				Hint:    "pick an option code no real telnet option uses",
			},
			want: "config: --marker=7: out of range 40-239\n  hint: pick an option code no real telnet option uses",
		},
		{
			name: "missing value no hint",
			err: ConfigError{
				Field:   "host",
				Message: "required",
			},
			want: "config: --host: required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("got:\n%s\nwant:\n%s", got, tt.want)
			}
		})
	}
}

func TestDisconnectedError(t *testing.T) {
	err := Disconnected(io.EOF)

	if got, want := err.Error(), "disconnected: EOF"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if !Is(err, ErrDisconnected) {
		t.Error("should match ErrDisconnected")
	}
	if !Is(err, io.EOF) {
		t.Error("should unwrap to the cause")
	}

	wrapped := fmt.Errorf("exec %q: %w", "show version", err)
	var de *DisconnectedError
	if !As(wrapped, &de) || de.Err != io.EOF {
		t.Errorf("As through wrapping failed: %v", de)
	}

	if got := (&DisconnectedError{}).Error(); got != "disconnected" {
		t.Errorf("nil cause formats as %q", got)
	}
}

func TestWrap(t *testing.T) {
	inner := fmt.Errorf("connection refused")
	err := Wrap("dial", "10.0.0.1:23", inner)
	if err.Op != "dial" || err.Addr != "10.0.0.1:23" {
		t.Errorf("wrong fields: Op=%q Addr=%q", err.Op, err.Addr)
	}
	if !Is(err, inner) {
		t.Error("should unwrap to inner error")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"retryable network", &NetworkError{Op: "dial", Addr: "x", Err: io.EOF, Retryable: true}, true},
		{"non-retryable network", &NetworkError{Op: "dial", Addr: "x", Err: io.EOF, Retryable: false}, false},
		{"plain error", fmt.Errorf("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsInterrupted(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"EINTR", syscall.EINTR, true},
		{"EAGAIN", syscall.EAGAIN, true},
		{"wrapped EINTR", &os.SyscallError{Syscall: "read", Err: syscall.EINTR}, true},
		{"EOF", io.EOF, false},
		{"closed", net.ErrClosed, false},
		{"disconnected wrapping EINTR", Disconnected(syscall.EINTR), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsInterrupted(tt.err); got != tt.want {
				t.Errorf("IsInterrupted(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestClassifyRetryable_NetOpError(t *testing.T) {
	opErr := &net.OpError{
		Op:  "dial",
		Net: "tcp",
		Err: &net.DNSError{IsTemporary: true},
	}
	if !classifyRetryable(opErr) {
		t.Error("temporary OpError should be retryable")
	}
}

func TestClassifyRetryable_Refused(t *testing.T) {
	opErr := &net.OpError{
		Op:  "dial",
		Net: "tcp",
		Err: os.NewSyscallError("connect", syscall.ECONNREFUSED),
	}
	if !classifyRetryable(opErr) {
		t.Error("refused connection should be retryable")
	}
	if !Wrap("dial", "router:23", opErr).Retryable {
		t.Error("Wrap should classify a refused dial as retryable")
	}
	if classifyRetryable(fmt.Errorf("no route")) {
		t.Error("plain error should not be retryable")
	}
}

func TestSentinels(t *testing.T) {
	sentinels := []error{ErrDisconnected, ErrNotConnected, ErrAuthFailed}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i != j && Is(a, b) {
				t.Errorf("sentinel %d and %d should not match", i, j)
			}
		}
	}
}
