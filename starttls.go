package xmpp

import (
	"context"
	"crypto/tls"
	"encoding/xml"
	"fmt"

	"github.com/quietwire/xmpp/internal/ns"
	xmppxml "github.com/quietwire/xmpp/xml"
)

// StartTLS returns a StreamFeature that drives the client side of
// STARTTLS negotiation (RFC 6120 §5): send <starttls/>, wait for
// <proceed/> or <failure/>, then upgrade the transport in place.
//
// attempt is the caller's "tls" configuration knob. When false, the
// feature still matches (so a required offer can be detected) but
// never sends <starttls/>: an offer carrying <required/> (RFC 6120
// §5.4.2.1) fails fast with AuthenticationFailed, before any
// credentials reach the wire; an offer without <required/> is skipped
// and negotiation proceeds in plaintext.
func StartTLS(config *tls.Config, attempt bool) StreamFeature {
	return StreamFeature{
		Name:       xml.Name{Space: ns.TLS, Local: "starttls"},
		Required:   true,
		Prohibited: StateSecure,
		List: func(ctx context.Context, e *xmppxml.Encoder) error {
			start := xml.StartElement{
				Name: xml.Name{Space: ns.TLS, Local: "starttls"},
			}
			if err := e.EncodeToken(start); err != nil {
				return err
			}
			req := xml.StartElement{Name: xml.Name{Local: "required"}}
			if err := e.EncodeToken(req); err != nil {
				return err
			}
			if err := e.EncodeToken(xml.EndElement{Name: req.Name}); err != nil {
				return err
			}
			if err := e.EncodeToken(xml.EndElement{Name: start.Name}); err != nil {
				return err
			}
			return e.Flush()
		},
		Parse: func(ctx context.Context, r *xmppxml.StreamReader, start *xml.StartElement) (any, error) {
			required := false
			for {
				tok, err := r.Token()
				if err != nil {
					return nil, err
				}
				switch t := tok.(type) {
				case xml.StartElement:
					if t.Name.Local == "required" {
						required = true
					}
					if err := r.Skip(); err != nil {
						return nil, err
					}
				case xml.EndElement:
					if t.Name == start.Name {
						return required, nil
					}
				}
			}
		},
		Negotiate: func(ctx context.Context, session *Session, data any) (SessionState, error) {
			required, _ := data.(bool)

			if !attempt {
				if required {
					return 0, NewError(AuthenticationFailed, fmt.Errorf("xmpp: the server requires TLS/SSL"))
				}
				// Not negotiating a real upgrade, but the step is
				// resolved: mark StateSecure so the offer isn't
				// re-matched every round and negotiation can proceed
				// over the plaintext connection the caller explicitly
				// asked for.
				return StateSecure, nil
			}

			start := xml.StartElement{Name: xml.Name{Space: ns.TLS, Local: "starttls"}}
			enc := session.writer.Encoder()
			if err := enc.EncodeToken(start); err != nil {
				return 0, NewError(TlsFailed, err)
			}
			if err := enc.EncodeToken(xml.EndElement{Name: start.Name}); err != nil {
				return 0, NewError(TlsFailed, err)
			}
			if err := session.writer.Flush(); err != nil {
				return 0, NewError(TlsFailed, err)
			}

			tok, err := session.reader.Token()
			if err != nil {
				return 0, NewError(TlsFailed, err)
			}
			reply, ok := tok.(xml.StartElement)
			if !ok || reply.Name.Space != ns.TLS {
				return 0, NewError(TlsFailed, fmt.Errorf("xmpp: unexpected reply to starttls: %v", tok))
			}
			if err := session.reader.Skip(); err != nil {
				return 0, NewError(TlsFailed, err)
			}
			if reply.Name.Local == "failure" {
				return 0, NewError(TlsFailed, fmt.Errorf("xmpp: server rejected starttls"))
			}

			if err := session.Transport().StartTLS(config); err != nil {
				return 0, NewError(TlsFailed, err)
			}
			session.resetStreams()
			return StateSecure, nil
		},
	}
}
