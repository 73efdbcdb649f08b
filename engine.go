package xmpp

import (
	"context"
	"encoding/xml"
	"fmt"

	"github.com/quietwire/xmpp/internal/ns"
	"github.com/quietwire/xmpp/stream"
)

// Open writes the initial stream header (addressed to the session's
// remote JID) and reads the server's reply header, without yet reading
// <stream:features>. The wire framing follows s.framing: a TCP
// <stream:stream> preamble, or a WebSocket <open/> frame (RFC 7395).
func (s *Session) Open(ctx context.Context) error {
	if s.framing == framingWebSocket {
		return s.openWebSocket(ctx)
	}

	hdr := stream.Header{
		To:      s.remoteJID,
		Version: stream.DefaultVersion,
		NS:      ns.Client,
	}
	if _, err := s.writer.WriteRaw(stream.Open(hdr)); err != nil {
		return NewError(ConnectFailed, err)
	}

	tok, err := s.reader.Token()
	if err != nil {
		return NewError(ConnectFailed, err)
	}
	start, ok := tok.(xml.StartElement)
	if !ok || start.Name.Local != "stream" || start.Name.Space != ns.Stream {
		return NewError(ProtocolViolation, fmt.Errorf("xmpp: expected stream:stream, got %v", tok))
	}
	return nil
}

// openWebSocket writes the RFC 7395 <open/> frame and reads the
// server's <open/> reply.
func (s *Session) openWebSocket(ctx context.Context) error {
	frame := stream.WebSocketOpenBytes(stream.WebSocketOpen{To: s.remoteJID.String()})
	if _, err := s.writer.WriteRaw(frame); err != nil {
		return NewError(ConnectFailed, err)
	}

	tok, err := s.reader.Token()
	if err != nil {
		return NewError(ConnectFailed, err)
	}
	start, ok := tok.(xml.StartElement)
	if !ok || start.Name.Local != "open" || start.Name.Space != ns.Framing {
		return NewError(ProtocolViolation, fmt.Errorf("xmpp: expected framing open, got %v", tok))
	}
	return s.reader.Skip()
}

// featureData pairs a feature matched from <stream:features> with the
// value its Parse function produced.
type featureData struct {
	feature StreamFeature
	data    any
}

// readFeatures reads a <stream:features> element, parsing the body of
// any child that matches a feature the negotiator knows about (so its
// Negotiate call receives real data, e.g. the offered SASL mechanism
// list) and skipping every other child outright.
func (s *Session) readFeatures(ctx context.Context, available []StreamFeature) ([]featureData, error) {
	tok, err := s.reader.Token()
	if err != nil {
		return nil, NewError(ProtocolViolation, err)
	}
	start, ok := tok.(xml.StartElement)
	if !ok || start.Name.Local != "features" || start.Name.Space != ns.Stream {
		return nil, NewError(ProtocolViolation, fmt.Errorf("xmpp: expected stream:features, got %v", tok))
	}

	var matched []featureData
	for {
		tok, err := s.reader.Token()
		if err != nil {
			return nil, NewError(ProtocolViolation, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if f, ok := findFeature(available, t.Name); ok {
				data, err := f.Parse(ctx, s.reader, &t)
				if err != nil {
					return nil, NewError(ProtocolViolation, err)
				}
				matched = append(matched, featureData{feature: f, data: data})
				continue
			}
			if err := s.reader.Skip(); err != nil {
				return nil, NewError(ProtocolViolation, err)
			}
		case xml.EndElement:
			if t.Name == start.Name {
				return matched, nil
			}
		}
	}
}

func findFeature(available []StreamFeature, name xml.Name) (StreamFeature, bool) {
	for _, f := range available {
		if f.Name == name {
			return f, true
		}
	}
	return StreamFeature{}, false
}

// Negotiate drives the full client-side stream negotiation state
// machine: STARTTLS (if offered and not yet secure), SASL, a stream
// restart, then resource bind, until the session reaches the StopAt
// state (StateBound by default). Streams restart only after STARTTLS
// and after SASL, never after bind.
func (n *Negotiator) Negotiate(ctx context.Context, session *Session) error {
	for {
		session.emit(StatusEvent{Status: negotiationStatus(session.State())})

		available := n.Features(session.State())
		matched, err := session.readFeatures(ctx, available)
		if err != nil {
			return err
		}
		if len(matched) == 0 {
			if session.State()&n.stopAt == n.stopAt {
				if n.stopAt&StateBound != 0 {
					session.SetState(StateReady)
					session.emit(StatusEvent{Status: Active})
				}
				return nil
			}
			return NewError(ProtocolViolation, fmt.Errorf("xmpp: no negotiable feature offered for current state"))
		}

		// Negotiate the highest-priority matched feature: the order the
		// negotiator's features were registered in.
		chosen := matched[0]
		for _, m := range matched[1:] {
			if featurePriority(available, m.feature.Name) < featurePriority(available, chosen.feature.Name) {
				chosen = m
			}
		}

		newState, err := chosen.feature.Negotiate(ctx, session, chosen.data)
		if err != nil {
			return err
		}
		session.SetState(newState)

		if newState&(StateSecure|StateAuthenticated) != 0 {
			// TLS and SASL both restart the XML stream (RFC 6120 §5.4.3.3, §6.4.6).
			session.resetStreams()
			if err := session.Open(ctx); err != nil {
				return err
			}
		}

		if session.State()&StateBound != 0 {
			session.SetState(StateReady)
			session.emit(StatusEvent{Status: Active})
			return nil
		}
	}
}

func negotiationStatus(state SessionState) ConnectionStatus {
	switch {
	case state&StateBound != 0:
		return Binding
	case state&StateAuthenticated != 0:
		return Binding
	case state&StateSecure != 0:
		return Authenticating
	default:
		return Securing
	}
}

// featurePriority returns the index of name within available, used to
// prefer earlier-registered features (e.g. STARTTLS before SASL) when
// a server happens to advertise more than one negotiable feature at once.
func featurePriority(available []StreamFeature, name xml.Name) int {
	for i, f := range available {
		if f.Name == name {
			return i
		}
	}
	return len(available)
}
