package xmpp

import (
	"context"
	"encoding/xml"
	"errors"
	"io"
	"log"
	"sync"
	"sync/atomic"

	"github.com/quietwire/xmpp/internal/ns"
	"github.com/quietwire/xmpp/jid"
	"github.com/quietwire/xmpp/plugin"
	"github.com/quietwire/xmpp/stanza"
	"github.com/quietwire/xmpp/stream"
	"github.com/quietwire/xmpp/transport"
	xmppxml "github.com/quietwire/xmpp/xml"
)

// SessionState represents the state of an XMPP session.
type SessionState uint32

const (
	StateSecure        SessionState = 1 << iota // TLS negotiated
	StateAuthenticated                           // SASL complete
	StateBound                                   // Resource bound
	StateReady                                   // Fully negotiated
	StateServer                                  // Server role
	StateS2S                                     // Server-to-server
)

// Session represents an XMPP session (client or server).
type Session struct {
	state     atomic.Uint32
	mu        sync.Mutex
	trans     transport.Transport
	localJID  jid.JID
	remoteJID jid.JID
	reader    *xmppxml.StreamReader
	writer    *xmppxml.StreamWriter
	mux       *Mux
	closed    chan struct{}
	err       error
	logger    *log.Logger
	events    chan Event

	pending pendingIQTable
	sm      streamManagement
	plugins *plugin.Manager

	// framing selects the stream preamble/close convention: TCP's
	// <stream:stream> or WebSocket's <open>/<close> (RFC 7395). Set
	// from the transport's concrete type in NewSession.
	framing framingKind
}

type framingKind int

const (
	framingTCP framingKind = iota
	framingWebSocket
)

// NewSession creates a new XMPP session with the given transport and options.
func NewSession(ctx context.Context, trans transport.Transport, opts ...SessionOption) (*Session, error) {
	s := &Session{
		trans:  trans,
		reader: xmppxml.NewStreamReader(trans),
		writer: xmppxml.NewStreamWriter(trans),
		mux:    NewMux(),
		closed: make(chan struct{}),
		logger: discardLogger,
		events: make(chan Event, 64),
	}
	if _, ok := trans.(*transport.WebSocket); ok {
		s.framing = framingWebSocket
	}
	s.pending.init()

	for _, opt := range opts {
		opt.apply(s)
	}

	return s, nil
}

// Events returns the channel on which the session delivers
// ConnectionStatus transitions and unclaimed inbound stanzas. Consumers
// should drain it; a full buffer causes the oldest pending event to be
// dropped rather than stalling the read loop.
func (s *Session) Events() <-chan Event {
	return s.events
}

// emit delivers ev without blocking the caller. If the buffer is full
// the oldest queued event is discarded to make room, since a stalled
// consumer must never wedge stream negotiation or stanza delivery.
func (s *Session) emit(ev Event) {
	for {
		select {
		case s.events <- ev:
			return
		default:
		}
		select {
		case <-s.events:
		default:
			return
		}
	}
}

// Send sends a stanza through the session, first running it through
// the extension pipeline's output filters: outbound filters may mutate
// a stanza, e.g. stamping a delivery-receipt request (XEP-0184) or a
// chat-state hint (XEP-0085).
func (s *Session) Send(ctx context.Context, st stanza.Stanza) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.closed:
		return NewError(NotConnected, ErrNotConnected)
	default:
	}

	if s.plugins != nil {
		if err := s.plugins.DispatchOutbound(ctx, st); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.closed:
		return NewError(NotConnected, ErrNotConnected)
	default:
	}

	if err := s.writer.Encode(st); err != nil {
		return err
	}
	s.sm.recordOutbound(st)
	return nil
}

// SendRaw writes raw XML to the stream.
func (s *Session) SendRaw(ctx context.Context, r io.Reader) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.closed:
		return NewError(NotConnected, ErrNotConnected)
	default:
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	_, err = s.writer.WriteRaw(data)
	return err
}

// SendElement encodes an XML element to the stream.
func (s *Session) SendElement(ctx context.Context, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.closed:
		return NewError(NotConnected, ErrNotConnected)
	default:
	}

	return s.writer.Encode(v)
}

// Serve reads stanzas from the stream and dispatches them: pending iq
// correlation first, then the extension pipeline (the first plugin to
// claim a stanza halts further dispatch), then handler for whatever
// neither claimed. An inbound iq of type get/set that no extension
// claims is answered automatically with type="error"
// feature-not-implemented, per RFC 6120 §8.3.3; message/presence left
// unclaimed fall through to handler (the mux, by default).
func (s *Session) Serve(handler Handler) error {
	if handler == nil {
		handler = s.mux
	}
	for {
		select {
		case <-s.closed:
			return s.err
		default:
		}

		tok, err := s.reader.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			select {
			case <-s.closed:
				// Close() tore down the transport under the reader;
				// that is an orderly shutdown, not a reader failure.
				return nil
			default:
			}
			// The transport dropped mid-stream. The session is left
			// un-closed on purpose: stream-management state survives so
			// a Rebind + resume can pick the stream back up.
			lost := NewError(ConnectionLost, err)
			s.emit(ErrorEvent{Err: lost})
			s.emit(ConnectionStatusEvent{
				Connected: false,
				Criticity: CriticityError,
				Reason:    "connection-lost",
				Details:   err.Error(),
			})
			return lost
		}

		if end, ok := tok.(xml.EndElement); ok {
			// The root </stream:stream> end tag is the TCP framing's
			// orderly close (RFC 6120 §4.4).
			if end.Name.Space == ns.Stream && end.Name.Local == "stream" {
				return s.handlePeerClose()
			}
			continue
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		if start.Name.Space == ns.SM {
			if err := s.handleSMElement(context.Background(), start); err != nil {
				return err
			}
			continue
		}
		if start.Name.Space == ns.Stream && start.Name.Local == "error" {
			return s.handleStreamError(start)
		}
		if start.Name.Space == ns.Framing && start.Name.Local == "close" {
			_ = s.reader.Skip()
			return s.handlePeerClose()
		}

		var st stanza.Stanza
		switch start.Name.Local {
		case "message":
			msg := &stanza.Message{}
			if err := s.reader.DecodeElement(msg, &start); err != nil {
				return err
			}
			st = msg
		case "presence":
			pres := &stanza.Presence{}
			if err := s.reader.DecodeElement(pres, &start); err != nil {
				return err
			}
			st = pres
		case "iq":
			iq := &stanza.IQ{}
			if err := s.reader.DecodeElement(iq, &start); err != nil {
				return err
			}
			st = iq
		default:
			if err := s.reader.Skip(); err != nil {
				return err
			}
			continue
		}

		s.sm.countInbound()
		ctx := context.Background()

		if iq, ok := st.(*stanza.IQ); ok && (iq.Type == stanza.IQResult || iq.Type == stanza.IQError) {
			if s.pending.deliver(iq) {
				continue
			}
		}

		claimed := false
		if s.plugins != nil {
			claimed, err = s.plugins.DispatchInbound(ctx, st)
			if err != nil {
				return err
			}
		}
		if claimed {
			continue
		}

		switch v := st.(type) {
		case *stanza.IQ:
			s.emit(IqEvent{Iq: v})
			if v.Type == stanza.IQGet || v.Type == stanza.IQSet {
				if err := s.Send(ctx, v.ErrorIQ(ErrFeatureNotImplemented(""))); err != nil {
					return err
				}
				continue
			}
		case *stanza.Message:
			s.emit(MessageEvent{Message: v})
		case *stanza.Presence:
			s.emit(PresenceEvent{Presence: v})
		}

		if err := handler.HandleStanza(ctx, s, st); err != nil {
			return err
		}
	}
}

// handlePeerClose responds to the peer's orderly stream shutdown: a
// TCP </stream:stream> end tag (RFC 6120 §4.4) or a WebSocket <close/>
// frame (RFC 7395 §3.5). The engine acknowledges in kind and clears
// resumeId, since XEP-0198 forbids resumption after an orderly close.
// It also tears down the transport and marks the session closed so
// that any Send issued after this point fails with NotConnected
// instead of racing a dead connection.
func (s *Session) handlePeerClose() error {
	if s.framing == framingWebSocket {
		_, _ = s.writer.WriteRaw(stream.WebSocketCloseFrame())
	} else {
		_, _ = s.writer.WriteRaw(stream.Close())
	}
	_ = s.closeTransport()
	return nil
}

// closeTransport tears down the transport and marks the session closed,
// idempotently, without emitting any event: it is the shared teardown
// both Close and the Serve-loop error paths (handlePeerClose,
// handleStreamError) use so that a Send issued right after an orderly
// peer close or a fatal stream error fails with NotConnected instead of
// racing an already-dead connection.
func (s *Session) closeTransport() error {
	s.mu.Lock()
	select {
	case <-s.closed:
		s.mu.Unlock()
		return nil
	default:
		close(s.closed)
	}
	s.mu.Unlock()

	s.sm.mu.Lock()
	s.sm.id = ""
	s.sm.resumeOK = false
	s.sm.enabled = false
	s.sm.mu.Unlock()

	return s.trans.Close()
}

// Close closes the session. Once closed, XEP-0198 resumption is
// forbidden: the stream-management resume id is cleared so a caller
// that mistakenly tries to resume a closed session fails fast rather
// than reattaching to stale server-side state.
func (s *Session) Close() error {
	err := s.closeTransport()
	s.emit(ConnectionStatusEvent{Connected: false, Criticity: CriticityInfo, Reason: "closed"})
	return err
}

// State returns the current session state.
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

// SetState sets session state flags.
func (s *Session) SetState(state SessionState) {
	s.state.Store(uint32(s.State() | state))
}

// LocalAddr returns the local JID.
func (s *Session) LocalAddr() jid.JID {
	return s.localJID
}

// RemoteAddr returns the remote JID.
func (s *Session) RemoteAddr() jid.JID {
	return s.remoteJID
}

// SetLocalAddr sets the local JID.
func (s *Session) SetLocalAddr(j jid.JID) {
	s.localJID = j
}

// SetRemoteAddr sets the remote JID.
func (s *Session) SetRemoteAddr(j jid.JID) {
	s.remoteJID = j
}

// Transport returns the underlying transport.
func (s *Session) Transport() transport.Transport {
	return s.trans
}

// Reader returns the XML stream reader.
func (s *Session) Reader() *xmppxml.StreamReader {
	return s.reader
}

// Writer returns the XML stream writer.
func (s *Session) Writer() *xmppxml.StreamWriter {
	return s.writer
}

// Mux returns the stanza multiplexer.
func (s *Session) Mux() *Mux {
	return s.mux
}

// resetStreams rebuilds the XML reader and writer over the current
// transport. RFC 6120 requires a fresh stream header after STARTTLS and
// after SASL succeeds, since the XML stream itself restarts; rebuilding
// here also drops anything the old decoder may have buffered from the
// pre-upgrade plaintext connection.
func (s *Session) resetStreams() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reader = xmppxml.NewStreamReader(s.trans)
	s.writer = xmppxml.NewStreamWriter(s.trans)
}

// Rebind swaps the session onto a newly dialed transport in place,
// discarding the old reader/writer/closed-channel but leaving sm and
// pending untouched. This is what makes XEP-0198 resumption's
// stanza-resend actually reachable: a Session that is replaced wholesale
// on reconnect starts with an empty sm.unacked queue, so nothing is ever
// left to resend. Rebind instead keeps the same *Session (and therefore
// the same unacked queue) alive across the transport drop, so
// Client.Reconnect can resume the old stream-management session and
// replay it over the new connection.
//
// Callers must re-negotiate (STARTTLS/SASL/bind or resume) over the new
// transport before using the session again; Rebind only swaps the wire,
// it does not speak the stream itself.
func (s *Session) Rebind(trans transport.Transport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.closed:
	default:
		_ = s.trans.Close()
	}

	s.trans = trans
	s.reader = xmppxml.NewStreamReader(trans)
	s.writer = xmppxml.NewStreamWriter(trans)
	s.closed = make(chan struct{})
	s.err = nil
	s.state.Store(0)
	if _, ok := trans.(*transport.WebSocket); ok {
		s.framing = framingWebSocket
	} else {
		s.framing = framingTCP
	}
	return nil
}

// Logger returns the session's logger, or a discard logger if none was set.
func (s *Session) Logger() *log.Logger {
	return s.logger
}
