package xmpp

import (
	"context"
	"encoding/base64"
	"encoding/xml"
	"fmt"

	"github.com/quietwire/xmpp/internal/ns"
	"github.com/quietwire/xmpp/sasl"
	xmppxml "github.com/quietwire/xmpp/xml"
)

// SASLFeature returns a StreamFeature that drives client-side SASL
// negotiation (RFC 6120 §6) using negotiator to select and run a
// mechanism against the server-offered list.
func SASLFeature(negotiator *sasl.Negotiator) StreamFeature {
	return StreamFeature{
		// Not gated on StateSecure: a server that never offers STARTTLS
		// still advertises mechanisms on its first <stream:features>, and
		// when both are offered at once the negotiator's registration
		// order picks STARTTLS first anyway.
		Name:       xml.Name{Space: ns.SASL, Local: "mechanisms"},
		Required:   true,
		Prohibited: StateAuthenticated,
		List: func(ctx context.Context, e *xmppxml.Encoder) error {
			start := xml.StartElement{Name: xml.Name{Space: ns.SASL, Local: "mechanisms"}}
			if err := e.EncodeToken(start); err != nil {
				return err
			}
			for _, mech := range negotiator.MechanismNames() {
				mechStart := xml.StartElement{Name: xml.Name{Space: ns.SASL, Local: "mechanism"}}
				if err := e.EncodeToken(mechStart); err != nil {
					return err
				}
				if err := e.EncodeToken(xml.CharData(mech)); err != nil {
					return err
				}
				if err := e.EncodeToken(xml.EndElement{Name: mechStart.Name}); err != nil {
					return err
				}
			}
			if err := e.EncodeToken(xml.EndElement{Name: start.Name}); err != nil {
				return err
			}
			return e.Flush()
		},
		Parse: func(ctx context.Context, r *xmppxml.StreamReader, start *xml.StartElement) (any, error) {
			var offered []string
			for {
				tok, err := r.Token()
				if err != nil {
					return nil, err
				}
				switch t := tok.(type) {
				case xml.StartElement:
					var name string
					if err := r.DecodeElement(&name, &t); err != nil {
						return nil, err
					}
					offered = append(offered, name)
				case xml.EndElement:
					if t.Name == start.Name {
						return offered, nil
					}
				}
			}
		},
		Negotiate: func(ctx context.Context, session *Session, data any) (SessionState, error) {
			offered, _ := data.([]string)
			mech, err := negotiator.Select(offered)
			if err != nil {
				return 0, NewError(AuthenticationFailed, ErrNoSupportedSaslMechanism)
			}
			if err := runSASL(ctx, session, mech); err != nil {
				return 0, err
			}
			return StateAuthenticated, nil
		},
	}
}

// runSASL drives mech through the XMPP SASL profile: one <auth>, any
// number of <challenge>/<response> round trips, then <success> (whose
// optional payload carries SCRAM's server signature) or <failure>.
func runSASL(ctx context.Context, session *Session, mech sasl.Mechanism) error {
	initial, err := mech.Start()
	if err != nil {
		return NewError(AuthenticationFailed, err)
	}
	if err := writeSASLElement(session, "auth", map[string]string{"mechanism": mech.Name()}, initial); err != nil {
		return NewError(AuthenticationFailed, err)
	}

	for {
		tok, err := session.reader.Token()
		if err != nil {
			return NewError(AuthenticationFailed, err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Space != ns.SASL {
			continue
		}

		var body string
		if err := session.reader.DecodeElement(&body, &start); err != nil {
			return NewError(AuthenticationFailed, err)
		}

		switch start.Name.Local {
		case "challenge":
			challenge, err := base64.StdEncoding.DecodeString(body)
			if err != nil {
				return NewError(AuthenticationFailed, err)
			}
			resp, err := mech.Next(challenge)
			if err != nil {
				return NewError(AuthenticationFailed, ErrBadCredentials)
			}
			if err := writeSASLElement(session, "response", nil, resp); err != nil {
				return NewError(AuthenticationFailed, err)
			}
		case "success":
			if body != "" {
				payload, err := base64.StdEncoding.DecodeString(body)
				if err != nil {
					return NewError(AuthenticationFailed, err)
				}
				if _, err := mech.Next(payload); err != nil {
					return NewError(AuthenticationFailed, ErrServerSignatureMismatch)
				}
			}
			return nil
		case "failure":
			return NewError(AuthenticationFailed, fmt.Errorf("%w: %s", ErrBadCredentials, body))
		default:
			return NewError(ProtocolViolation, fmt.Errorf("xmpp: unexpected SASL element %q", start.Name.Local))
		}
	}
}

// writeSASLElement writes a complete SASL element (start, optional
// base64 body, end) as a single flush so framed transports such as
// WebSocket send it as one frame per RFC 7395.
func writeSASLElement(session *Session, local string, attrs map[string]string, body []byte) error {
	start := xml.StartElement{Name: xml.Name{Space: ns.SASL, Local: local}}
	for k, v := range attrs {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: k}, Value: v})
	}
	enc := session.writer.Encoder()
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	if len(body) > 0 {
		if err := enc.EncodeToken(xml.CharData(base64.StdEncoding.EncodeToString(body))); err != nil {
			return err
		}
	}
	if err := enc.EncodeToken(xml.EndElement{Name: start.Name}); err != nil {
		return err
	}
	return session.writer.Flush()
}
