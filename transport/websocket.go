package transport

import (
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"net/url"

	"github.com/gorilla/websocket"
)

// wsSubprotocol is the WebSocket subprotocol token for the XMPP framing
// defined by RFC 7395.
const wsSubprotocol = "xmpp"

// WebSocket implements Transport over a WebSocket connection framed per
// RFC 7395: each XML stream element (the open/close framing elements or
// a stanza) is carried as exactly one text frame.
type WebSocket struct {
	conn *websocket.Conn
	peer net.Addr
	buf  []byte
}

// DialWebSocket opens a WebSocket connection to uri (a ws:// or wss://
// URL) negotiating the "xmpp" subprotocol required by RFC 7395.
func DialWebSocket(uri string, tlsConfig *tls.Config) (*WebSocket, error) {
	if _, err := url.Parse(uri); err != nil {
		return nil, err
	}
	dialer := &websocket.Dialer{
		Subprotocols:    []string{wsSubprotocol},
		TLSClientConfig: tlsConfig,
	}
	conn, resp, err := dialer.Dial(uri, http.Header{})
	if err != nil {
		return nil, err
	}
	if resp != nil && resp.Header.Get("Sec-WebSocket-Protocol") != wsSubprotocol {
		conn.Close()
		return nil, errors.New("transport: server did not accept the xmpp subprotocol")
	}
	return NewWebSocket(conn), nil
}

// NewWebSocket wraps an already-established WebSocket connection.
func NewWebSocket(conn *websocket.Conn) *WebSocket {
	return &WebSocket{
		conn: conn,
		peer: conn.RemoteAddr(),
	}
}

// Read returns the payload of the next complete WebSocket message,
// buffering any part a caller's p is too small to hold.
func (ws *WebSocket) Read(p []byte) (int, error) {
	for len(ws.buf) == 0 {
		_, data, err := ws.conn.ReadMessage()
		if err != nil {
			return 0, err
		}
		ws.buf = data
	}
	n := copy(p, ws.buf)
	ws.buf = ws.buf[n:]
	return n, nil
}

// Write sends p as a single WebSocket text frame, matching RFC 7395's
// "one frame per stream element" framing.
func (ws *WebSocket) Write(p []byte) (int, error) {
	if err := ws.conn.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close sends a close frame and closes the underlying connection.
func (ws *WebSocket) Close() error {
	_ = ws.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return ws.conn.Close()
}

// StartTLS returns an error: a WebSocket transport is secured at dial
// time via a wss:// URI, not via an in-band STARTTLS negotiation.
func (ws *WebSocket) StartTLS(_ *tls.Config) error {
	return errors.New("transport: WebSocket does not support STARTTLS; use wss://")
}

// ConnectionState returns the TLS state if the connection runs over wss://.
func (ws *WebSocket) ConnectionState() (tls.ConnectionState, bool) {
	if tc, ok := ws.conn.UnderlyingConn().(*tls.Conn); ok {
		return tc.ConnectionState(), true
	}
	return tls.ConnectionState{}, false
}

// Peer returns the remote address.
func (ws *WebSocket) Peer() net.Addr {
	return ws.peer
}

// LocalAddress returns the local address.
func (ws *WebSocket) LocalAddress() net.Addr {
	return ws.conn.LocalAddr()
}
