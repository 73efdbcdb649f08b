package xmpp

import (
	"context"
	"encoding/xml"
	"net"
	"testing"
	"time"

	"github.com/quietwire/xmpp/internal/ns"
	"github.com/quietwire/xmpp/jid"
	"github.com/quietwire/xmpp/stanza"
	"github.com/quietwire/xmpp/transport"
)

// TestSendIQUniqueIDs checks that every generated iq id is unique, and
// that the pending table holds at most one entry per id at a time
// (registering then forgetting leaves no trace behind).
func TestSendIQUniqueIDs(t *testing.T) {
	t.Parallel()
	var tbl pendingIQTable
	tbl.init()

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		id := stanza.GenerateID()
		if seen[id] {
			t.Fatalf("duplicate id generated: %s", id)
		}
		seen[id] = true

		tbl.registerSync(id)
		if len(tbl.waiters) != 1 {
			t.Fatalf("waiters = %d, want 1 after register", len(tbl.waiters))
		}
		tbl.forget(id)
		if len(tbl.waiters) != 0 {
			t.Fatalf("waiters = %d, want 0 after forget", len(tbl.waiters))
		}
	}
}

// TestSendIQDeliversResult drives a full SendIQ round trip over a
// net.Pipe fake transport: a goroutine plays the "server" side, reading
// the request and writing back a correlated <iq type="result"/>.
func TestSendIQDeliversResult(t *testing.T) {
	t.Parallel()
	s, c2 := newTestSession(t)
	defer s.Close()
	defer c2.Close()

	go func() {
		buf := make([]byte, 4096)
		n, err := c2.Read(buf)
		if err != nil {
			return
		}
		var iq stanza.IQ
		if err := xml.Unmarshal(buf[:n], &iq); err != nil {
			return
		}
		c2.Write([]byte(`<iq type="result" id="` + iq.ID + `"/>`))
	}()

	go s.Serve(nil)

	iq := stanza.NewIQ(stanza.IQGet)
	resp, err := s.SendIQ(context.Background(), iq)
	if err != nil {
		t.Fatalf("SendIQ: %v", err)
	}
	if resp.Type != stanza.IQResult {
		t.Errorf("resp.Type = %q, want %q", resp.Type, stanza.IQResult)
	}
	if resp.ID != iq.ID {
		t.Errorf("resp.ID = %q, want %q", resp.ID, iq.ID)
	}
}

// TestSendIQTimeoutIsTimeout checks that a plain (non-ping) request
// that never gets a reply surfaces as Timeout.
func TestSendIQTimeoutIsTimeout(t *testing.T) {
	t.Parallel()
	s, c2 := newTestSession(t)
	defer s.Close()
	defer c2.Close()

	go func() {
		buf := make([]byte, 4096)
		c2.Read(buf) // drain the request, never reply
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	iq := stanza.NewIQ(stanza.IQGet)
	iq.To = jid.MustParse("pubsub.example.com")
	_, err := s.SendIQ(ctx, iq)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	xerr, ok := err.(*Error)
	if !ok || xerr.Kind != Timeout {
		t.Fatalf("err = %v, want Kind=Timeout", err)
	}
}

// TestSendIQCancelledContext checks that explicitly cancelling the
// caller's context (as opposed to it timing out) surfaces as Cancelled,
// not Timeout.
func TestSendIQCancelledContext(t *testing.T) {
	t.Parallel()
	s, c2 := newTestSession(t)
	defer s.Close()
	defer c2.Close()

	go func() {
		buf := make([]byte, 4096)
		c2.Read(buf) // drain the request, never reply
	}()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	iq := stanza.NewIQ(stanza.IQGet)
	_, err := s.SendIQ(ctx, iq)
	if err == nil {
		t.Fatal("expected error")
	}
	xerr, ok := err.(*Error)
	if !ok || xerr.Kind != Cancelled {
		t.Fatalf("err = %v, want Kind=Cancelled", err)
	}
}

// TestSendIQPingTimeoutEscalatesToConnectionLost checks that a
// timed-out XEP-0199 ping to the session's own server domain escalates
// to ConnectionLost rather than a plain Timeout, and fires a
// ConnectionStatus(false, "error", "ping-timeout", ...) event.
func TestSendIQPingTimeoutEscalatesToConnectionLost(t *testing.T) {
	t.Parallel()
	local := jid.MustParse("alice@example.com/res")
	remote := jid.MustParse("example.com")
	s, c2 := newTestSession(t, WithLocalAddr(local), WithRemoteAddr(remote))
	defer s.Close()
	defer c2.Close()

	go func() {
		buf := make([]byte, 4096)
		c2.Read(buf) // drain the ping, never reply
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	iq := stanza.NewIQ(stanza.IQGet)
	iq.To = jidDomain(remote.Domain())
	iq.Query = []byte(`<ping xmlns="` + ns.Ping + `"/>`)

	_, err := s.SendIQ(ctx, iq)
	if err == nil {
		t.Fatal("expected error")
	}
	xerr, ok := err.(*Error)
	if !ok || xerr.Kind != ConnectionLost {
		t.Fatalf("err = %v, want Kind=ConnectionLost", err)
	}

	select {
	case ev := <-s.Events():
		cs, ok := ev.(ConnectionStatusEvent)
		if !ok {
			t.Fatalf("event = %#v, want ConnectionStatusEvent", ev)
		}
		if cs.Connected || cs.Criticity != CriticityError || cs.Reason != "ping-timeout" {
			t.Errorf("event = %#v, want Connected=false Criticity=error Reason=ping-timeout", cs)
		}
	default:
		t.Fatal("expected a ConnectionStatusEvent to be emitted")
	}
}

// TestSendIQNotConnectedOnClose covers the third SendIQ exit path: a
// session closed while a request is in flight returns NotConnected and
// removes the pending entry rather than leaking it.
func TestSendIQNotConnectedOnClose(t *testing.T) {
	t.Parallel()
	c1, c2 := net.Pipe()
	tcp := transport.NewTCP(c1)
	s, err := NewSession(context.Background(), tcp)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer c2.Close()

	go func() {
		buf := make([]byte, 4096)
		c2.Read(buf)
		s.Close()
	}()

	iq := stanza.NewIQ(stanza.IQGet)
	_, err = s.SendIQ(context.Background(), iq)
	if err == nil {
		t.Fatal("expected error after session close")
	}
	xerr, ok := err.(*Error)
	if !ok || xerr.Kind != NotConnected {
		t.Fatalf("err = %v, want Kind=NotConnected", err)
	}
}

// TestUnclaimedIQGetAutoReplies checks that an inbound get/set iq that
// no extension or pending waiter claims gets exactly one outbound
// error reply (RFC 6120 §8.3.3) with condition
// feature-not-implemented, the same id, and swapped addresses.
func TestUnclaimedIQGetAutoReplies(t *testing.T) {
	t.Parallel()
	local := jid.MustParse("alice@x/res")
	remote := jid.MustParse("x")
	s, c2 := newTestSession(t, WithLocalAddr(local), WithRemoteAddr(remote))
	defer c2.Close()

	replyCh := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 4096)
		n, err := c2.Read(buf)
		if err != nil {
			return
		}
		replyCh <- append([]byte(nil), buf[:n]...)
	}()

	go func() {
		c2.Write([]byte(`<iq type="get" id="42" from="svc@x" to="alice@x/res">` +
			`<foo xmlns="urn:test"/></iq>`))
	}()

	go s.Serve(nil)

	select {
	case raw := <-replyCh:
		var iq stanza.IQ
		if err := xml.Unmarshal(raw, &iq); err != nil {
			t.Fatalf("unmarshal reply: %v (%s)", err, raw)
		}
		if iq.Type != stanza.IQError {
			t.Errorf("reply Type = %q, want %q", iq.Type, stanza.IQError)
		}
		if iq.ID != "42" {
			t.Errorf("reply ID = %q, want %q", iq.ID, "42")
		}
		if iq.From.String() != "alice@x/res" || iq.To.String() != "svc@x" {
			t.Errorf("reply To/From = %q/%q, want svc@x/alice@x/res (swapped)", iq.To, iq.From)
		}
		if iq.Error == nil || iq.Error.Condition != stanza.ErrorFeatureNotImplemented {
			t.Errorf("reply Error = %#v, want condition %q", iq.Error, stanza.ErrorFeatureNotImplemented)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for auto-reply")
	}

	s.Close()
}
