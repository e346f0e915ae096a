package transport

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	ncerr "telfence/internal/errors"
	"telfence/util"
)

// SSHConfig describes the jump host telnet connections are forwarded
// through.
type SSHConfig struct {
	User          string
	Host          string
	Port          int
	KeyPath       string
	PromptPass    bool
	UseAgent      bool
	StrictHostKey bool
	KnownHosts    string
	ConnTimeout   time.Duration

	// Prompt reads passwords and key passphrases.  Nil means the
	// controlling terminal.
	Prompt Prompt
}

// SSHDialer forwards connections through an SSH jump host.  The SSH
// connection is made on the first Dial, shared by every later Dial,
// and re-established if the jump host drops it.  SSHDialer is safe for
// concurrent use.
type SSHDialer struct {
	config *SSHConfig
	logger *util.Logger

	mu     sync.Mutex
	client *ssh.Client
}

// NewSSHDialer creates a dialer for the jump host in cfg.  Nothing is
// dialed until the first Dial.
func NewSSHDialer(cfg *SSHConfig, logger *util.Logger) *SSHDialer {
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.ConnTimeout == 0 {
		cfg.ConnTimeout = 30 * time.Second
	}
	if cfg.Prompt == nil {
		cfg.Prompt = TerminalPrompt
	}
	return &SSHDialer{config: cfg, logger: logger}
}

// Dial opens a forwarded connection to address on the far side of the
// jump host.
func (d *SSHDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	client, err := d.connect(ctx)
	if err != nil {
		return nil, err
	}

	d.logger.Debug("ssh: forwarding %s %s", network, address)
	conn, err := client.Dial(network, address)
	if err != nil {
		return nil, ncerr.WrapSSH("forward", d.config.Host, d.config.Port,
			fmt.Errorf("%s: %w", address, err))
	}
	return conn, nil
}

// Close shuts down the SSH connection, if any.
func (d *SSHDialer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.client == nil {
		return nil
	}
	err := d.client.Close()
	d.client = nil
	return err
}

// connect returns the live SSH client, dialing the jump host if there
// is none yet.
func (d *SSHDialer) connect(ctx context.Context) (*ssh.Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.client != nil {
		return d.client, nil
	}

	cfg := d.config
	auth, err := authMethods(cfg)
	if err != nil {
		return nil, ncerr.WrapSSH("auth", cfg.Host, cfg.Port, err)
	}
	hostKeys, err := hostKeyCallback(cfg)
	if err != nil {
		return nil, ncerr.WrapSSH("hostkey", cfg.Host, cfg.Port, err)
	}

	addr := util.FormatAddr(cfg.Host, cfg.Port)
	d.logger.Verbose("ssh: connecting to jump host %s as %q", addr, cfg.User)

	dialer := net.Dialer{Timeout: cfg.ConnTimeout}
	tcpConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, ncerr.Wrap("dial", addr, err)
	}

	// The handshake is bounded by ConnTimeout and by ctx: a jump host
	// that accepts TCP but never speaks SSH must not hold d.mu forever.
	tcpConn.SetDeadline(time.Now().Add(cfg.ConnTimeout)) //nolint:errcheck
	stopWatch := context.AfterFunc(ctx, func() { tcpConn.Close() })

	sshConn, chans, reqs, err := ssh.NewClientConn(tcpConn, addr, &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            auth,
		HostKeyCallback: hostKeys,
		Timeout:         cfg.ConnTimeout,
	})
	cancelled := !stopWatch()
	if err == nil && cancelled {
		sshConn.Close()
		err = fmt.Errorf("handshake interrupted")
	}
	if err != nil {
		tcpConn.Close()
		switch {
		case cancelled:
			err = fmt.Errorf("%w: %v", ctx.Err(), err)
		case strings.Contains(err.Error(), "unable to authenticate"):
			err = fmt.Errorf("%w: %v", ncerr.ErrAuthFailed, err)
		}
		return nil, ncerr.WrapSSH("handshake", cfg.Host, cfg.Port, err)
	}
	tcpConn.SetDeadline(time.Time{}) //nolint:errcheck

	client := ssh.NewClient(sshConn, chans, reqs)
	d.client = client
	go d.watch(client)

	d.logger.Verbose("ssh: jump host %s ready", addr)
	return client, nil
}

// watch forgets client once its connection ends so the next Dial
// reconnects.
func (d *SSHDialer) watch(client *ssh.Client) {
	err := client.Wait()

	d.mu.Lock()
	if d.client == client {
		d.client = nil
	}
	d.mu.Unlock()

	d.logger.Debug("ssh: jump host connection closed: %v", err)
}
