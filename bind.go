package xmpp

import (
	"context"
	"encoding/xml"
	"fmt"

	"github.com/quietwire/xmpp/internal/ns"
	"github.com/quietwire/xmpp/jid"
	"github.com/quietwire/xmpp/stanza"
	xmppxml "github.com/quietwire/xmpp/xml"
)

// BindRequest represents a resource bind request.
type BindRequest struct {
	XMLName  xml.Name `xml:"urn:ietf:params:xml:ns:xmpp-bind bind"`
	Resource string   `xml:"resource,omitempty"`
}

// BindResult represents a resource bind result.
type BindResult struct {
	XMLName xml.Name `xml:"urn:ietf:params:xml:ns:xmpp-bind bind"`
	JID     string   `xml:"jid"`
}

// BindFeature returns a StreamFeature that performs RFC 6120 §7
// resource binding: an IQ set carrying the requested resource (or none,
// letting the server generate one), whose result carries the full bound
// JID.
func BindFeature(resource string) StreamFeature {
	return StreamFeature{
		Name:       xml.Name{Space: ns.Bind, Local: "bind"},
		Required:   true,
		Necessary:  StateAuthenticated,
		Prohibited: StateBound,
		List: func(ctx context.Context, e *xmppxml.Encoder) error {
			start := xml.StartElement{Name: xml.Name{Space: ns.Bind, Local: "bind"}}
			if err := e.EncodeToken(start); err != nil {
				return err
			}
			if err := e.EncodeToken(xml.EndElement{Name: start.Name}); err != nil {
				return err
			}
			return e.Flush()
		},
		Parse: func(ctx context.Context, r *xmppxml.StreamReader, start *xml.StartElement) (any, error) {
			if err := r.Skip(); err != nil {
				return nil, err
			}
			return nil, nil
		},
		Negotiate: func(ctx context.Context, session *Session, data any) (SessionState, error) {
			iq := stanza.NewIQ(stanza.IQSet)
			iq.XMLName = xml.Name{Space: ns.Client, Local: "iq"}

			payload := &BindRequest{Resource: resource}
			buf, err := xml.Marshal(payload)
			if err != nil {
				return 0, NewError(BindFailed, err)
			}
			iq.Query = buf

			// Bind runs during stream negotiation, strictly before Serve's
			// read loop starts: use the synchronous, direct-off-the-wire
			// send/read path, not SendIQ (which relies on Serve to deliver
			// the reply via the pending-IQ table).
			resp, err := session.SendIQSync(ctx, iq)
			if err != nil {
				return 0, NewError(BindFailed, err)
			}
			if resp.Type == stanza.IQError {
				return 0, NewError(BindFailed, fmt.Errorf("xmpp: server rejected resource bind"))
			}

			var result BindResult
			if err := xml.Unmarshal(resp.Query, &result); err != nil {
				return 0, NewError(BindFailed, err)
			}
			bound, err := jid.Parse(result.JID)
			if err != nil {
				return 0, NewError(BindFailed, err)
			}
			session.SetLocalAddr(bound)

			return StateBound, nil
		},
	}
}
