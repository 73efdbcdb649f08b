package transport

import (
	"crypto/tls"
	"errors"
	"net"
	"sync"
)

// TCP implements Transport over a stream socket. The same value is
// used before and after STARTTLS: the upgrade wraps the live socket in
// place (RFC 6120 §5.4.3.3) rather than reconnecting, so readers and
// writers holding the transport keep working across it.
type TCP struct {
	mu      sync.Mutex
	conn    net.Conn
	secured bool
}

// NewTCP wraps an established connection. A conn that is already a
// *tls.Conn (the Direct TLS dial path, XEP-0368) is recognized as
// secured from the start.
func NewTCP(conn net.Conn) *TCP {
	_, secured := conn.(*tls.Conn)
	return &TCP{conn: conn, secured: secured}
}

// Read reads from the connection.
func (t *TCP) Read(p []byte) (int, error) {
	return t.conn.Read(p)
}

// Write writes to the connection.
func (t *TCP) Write(p []byte) (int, error) {
	return t.conn.Write(p)
}

// Close closes the connection.
func (t *TCP) Close() error {
	return t.conn.Close()
}

// StartTLS runs the client side of a TLS handshake over the existing
// socket and swaps the wrapped connection in. It refuses a second
// upgrade: RFC 6120 negotiates STARTTLS at most once per stream.
func (t *TCP) StartTLS(config *tls.Config) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.secured {
		return errors.New("transport: connection is already TLS-secured")
	}
	tlsConn := tls.Client(t.conn, config)
	if err := tlsConn.Handshake(); err != nil {
		return err
	}
	t.conn = tlsConn
	t.secured = true
	return nil
}

// ConnectionState reports the TLS state, and whether TLS is active at
// all.
func (t *TCP) ConnectionState() (tls.ConnectionState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if tlsConn, ok := t.conn.(*tls.Conn); ok {
		return tlsConn.ConnectionState(), true
	}
	return tls.ConnectionState{}, false
}

// Peer returns the remote address.
func (t *TCP) Peer() net.Addr {
	return t.conn.RemoteAddr()
}

// LocalAddress returns the local address.
func (t *TCP) LocalAddress() net.Addr {
	return t.conn.LocalAddr()
}

// Conn returns the current underlying net.Conn (the *tls.Conn once
// STARTTLS has run).
func (t *TCP) Conn() net.Conn {
	return t.conn
}
