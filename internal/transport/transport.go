// Package transport provides the ways telfence reaches a telnet
// server: a plain TCP dialer and a dialer that forwards through an SSH
// jump host.  What runs over the resulting connection is the telnet
// and session layers' business.
package transport

import (
	"context"
	"net"
)

// Dialer opens outbound network connections.
type Dialer interface {
	// Dial establishes a connection to the given network address.
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Close releases any long-lived resources held by the dialer
	// (e.g. an SSH client).  Stateless dialers return nil.
	Close() error
}
