// Package telnettest provides a loopback telnet command server for
// tests.  It answers every option request with a refusal strictly after
// the output of the commands that preceded the request, which is the
// behaviour the fence relies on.
package telnettest

import (
	"net"
	"strings"
	"sync"

	"telfence/internal/telnet"
	"telfence/util"
)

// Server is a line-oriented telnet server on 127.0.0.1.
type Server struct {
	// Addr is host:port once Start has returned.
	Addr string

	// Greeting is written when a client connects.
	Greeting string

	// Handle produces the output for one command line.  The command
	// "quit" closes the connection instead.
	Handle func(cmd string) string

	// IgnoreFence makes the server never answer option requests.
	IgnoreFence bool

	ln    net.Listener
	wg    sync.WaitGroup
	mu    sync.Mutex
	conns []net.Conn
}

// NewServer returns an unstarted server that runs handle per command.
func NewServer(handle func(cmd string) string) *Server {
	return &Server{Handle: handle}
}

// Start listens on an ephemeral loopback port and serves in the
// background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return err
	}
	s.ln = ln
	s.Addr = ln.Addr().String()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			s.mu.Lock()
			s.conns = append(s.conns, conn)
			s.mu.Unlock()

			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				defer conn.Close()
				s.serve(conn)
			}()
		}
	}()
	return nil
}

// Close stops the listener, drops open connections and waits for the
// serving goroutines to exit.
func (s *Server) Close() error {
	err := s.ln.Close()
	s.mu.Lock()
	for _, c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	return err
}

func (s *Server) serve(conn net.Conn) {
	tc := telnet.NewConn(conn, util.NewLogger(0), nil)

	var pending []telnet.Signal
	tc.SetNegotiator(func(sig telnet.Signal) ([]byte, bool) {
		pending = append(pending, sig)
		return nil, true
	})

	iac := byte(telnet.IAC)
	conn.Write([]byte{iac, byte(telnet.WILL), telnet.OptEcho}) //nolint:errcheck
	if s.Greeting != "" {
		tc.Write([]byte(s.Greeting)) //nolint:errcheck
	}

	var line strings.Builder
	buf := make([]byte, 512)
	for {
		n, err := tc.Read(buf)
		for _, b := range buf[:n] {
			if b != '\n' {
				line.WriteByte(b)
				continue
			}
			cmd := strings.TrimRight(line.String(), "\r")
			line.Reset()
			if cmd == "quit" {
				return
			}
			s.respond(conn, tc, cmd)
		}

		for _, sig := range pending {
			if sig.Command == telnet.DO && !s.IgnoreFence {
				conn.Write([]byte{iac, byte(telnet.WONT), sig.Option}) //nolint:errcheck
			}
		}
		pending = pending[:0]

		if err != nil {
			return
		}
	}
}

// respond writes the command output in two halves with a no-op command
// and an unrelated negotiation between them, so clients see signals
// interleaved with data.
func (s *Server) respond(conn net.Conn, tc *telnet.Conn, cmd string) {
	out := ""
	if s.Handle != nil {
		out = s.Handle(cmd)
	}
	half := len(out) / 2

	iac := byte(telnet.IAC)
	tc.Write([]byte(out[:half]))                                                    //nolint:errcheck
	conn.Write([]byte{iac, byte(telnet.NOP), iac, byte(telnet.DO), telnet.OptNAWS}) //nolint:errcheck
	tc.Write([]byte(out[half:]))                                                    //nolint:errcheck
}
