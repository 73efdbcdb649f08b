// Package transport provides the byte-level duplex channels an XMPP
// stream runs over: plain TCP with in-band STARTTLS, or WebSocket with
// TLS at the socket layer.
package transport

import (
	"crypto/tls"
	"io"
	"net"
)

// Transport is a duplex byte channel carrying one XMPP stream. The
// stream engine owns exactly one at a time; Session.Rebind swaps in a
// fresh one after a drop.
type Transport interface {
	io.ReadWriteCloser

	// StartTLS upgrades the channel to TLS in place. Transports that
	// are secured at dial time (wss://, Direct TLS) refuse it.
	StartTLS(config *tls.Config) error

	// ConnectionState reports the TLS state and whether TLS is active.
	ConnectionState() (tls.ConnectionState, bool)

	// Peer returns the remote endpoint's address.
	Peer() net.Addr

	// LocalAddress returns the local endpoint's address.
	LocalAddress() net.Addr
}
