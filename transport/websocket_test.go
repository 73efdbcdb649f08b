package transport

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
)

func newWebSocketPair(t *testing.T) (*WebSocket, *WebSocket) {
	t.Helper()
	upgrader := websocket.Upgrader{Subprotocols: []string{wsSubprotocol}}
	serverCh := make(chan *websocket.Conn, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		serverCh <- conn
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/"
	client, err := DialWebSocket(url, nil)
	if err != nil {
		t.Fatalf("DialWebSocket: %v", err)
	}
	server := NewWebSocket(<-serverCh)
	t.Cleanup(func() { client.Close(); server.Close() })
	return client, server
}

func TestWebSocketReadWrite(t *testing.T) {
	t.Parallel()
	client, server := newWebSocketPair(t)

	msg := []byte("<message>hello</message>")
	go func() { client.Write(msg) }()

	buf := make([]byte, 128)
	n, err := server.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf[:n]) != string(msg) {
		t.Errorf("Read = %q, want %q", string(buf[:n]), string(msg))
	}
}

func TestWebSocketReadSplitAcrossBuffer(t *testing.T) {
	t.Parallel()
	client, server := newWebSocketPair(t)

	msg := []byte("<open xmlns='urn:ietf:params:xml:ns:xmpp-framing'/>")
	go func() { client.Write(msg) }()

	var got []byte
	small := make([]byte, 4)
	for len(got) < len(msg) {
		n, err := server.Read(small)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		got = append(got, small[:n]...)
	}
	if string(got) != string(msg) {
		t.Errorf("Read = %q, want %q", got, msg)
	}
}

func TestWebSocketStartTLSError(t *testing.T) {
	t.Parallel()
	client, _ := newWebSocketPair(t)

	if err := client.StartTLS(nil); err == nil {
		t.Error("StartTLS should return error for WebSocket")
	}
}

func TestWebSocketConnectionState(t *testing.T) {
	t.Parallel()
	client, _ := newWebSocketPair(t)

	_, ok := client.ConnectionState()
	if ok {
		t.Error("plain connection should return false")
	}
}

func TestWebSocketPeerLocalAddress(t *testing.T) {
	t.Parallel()
	client, _ := newWebSocketPair(t)

	if client.Peer() == nil {
		t.Error("Peer() should not be nil")
	}
	if client.LocalAddress() == nil {
		t.Error("LocalAddress() should not be nil")
	}
}

func TestWebSocketClose(t *testing.T) {
	t.Parallel()
	client, server := newWebSocketPair(t)

	if err := client.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	buf := make([]byte, 64)
	if _, err := server.Read(buf); err == nil {
		t.Error("expected error reading from closed peer")
	}
}
