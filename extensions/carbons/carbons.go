// Package carbons implements XEP-0280 Message Carbons: enabling the
// feature and unwrapping carbon-copied messages forwarded by the server.
package carbons

import (
	"context"
	"encoding/xml"

	"github.com/quietwire/xmpp/internal/ns"
	"github.com/quietwire/xmpp/plugin"
	"github.com/quietwire/xmpp/stanza"
)

const Name = "carbons"

// Enable is the <enable/> payload sent to request carbons.
type Enable struct {
	XMLName xml.Name `xml:"urn:xmpp:carbons:2 enable"`
}

// Disable is the <disable/> payload sent to stop carbons.
type Disable struct {
	XMLName xml.Name `xml:"urn:xmpp:carbons:2 disable"`
}

// Sent wraps a <forwarded/> copy of a message this account sent from
// another resource.
type Sent struct {
	XMLName   xml.Name `xml:"urn:xmpp:carbons:2 sent"`
	Forwarded []byte   `xml:",innerxml"`
}

// Received wraps a <forwarded/> copy of a message another resource of
// this account received.
type Received struct {
	XMLName   xml.Name `xml:"urn:xmpp:carbons:2 received"`
	Forwarded []byte   `xml:",innerxml"`
}

// Private marks an outbound message as exempt from carbon copying.
type Private struct {
	XMLName xml.Name `xml:"urn:xmpp:carbons:2 private"`
}

// Plugin tracks whether the server has confirmed carbons are active.
// Unwrapping a carbon copy is left to the caller (via Unwrap) rather
// than claimed here, since the inner forwarded message still needs to
// reach the application's ordinary message handling.
type Plugin struct {
	enabled bool
	params  plugin.InitParams
}

// New creates a carbons plugin, initially disabled.
func New() *Plugin { return &Plugin{} }

func (p *Plugin) Name() string           { return Name }
func (p *Plugin) Version() string        { return "1.0.0" }
func (p *Plugin) Dependencies() []string { return nil }
func (p *Plugin) Namespaces() []string   { return []string{ns.Carbons} }

func (p *Plugin) Initialize(_ context.Context, params plugin.InitParams) error {
	p.params = params
	return nil
}

func (p *Plugin) Close() error { return nil }

// IsEnabled reports whether the server has confirmed carbons are active.
func (p *Plugin) IsEnabled() bool { return p.enabled }

// SetEnabled records the outcome of an enable/disable request.
func (p *Plugin) SetEnabled(v bool) { p.enabled = v }

// EnableRequest builds the iq set requesting carbons.
func EnableRequest() *stanza.IQ {
	iq := stanza.NewIQ(stanza.IQSet)
	buf, _ := xml.Marshal(Enable{})
	iq.Query = buf
	return iq
}

// DisableRequest builds the iq set stopping carbons.
func DisableRequest() *stanza.IQ {
	iq := stanza.NewIQ(stanza.IQSet)
	buf, _ := xml.Marshal(Disable{})
	iq.Query = buf
	return iq
}

// Unwrap reports whether msg carries a carbons wrapper and, if so,
// returns the forwarded inner message's raw XML and whether it was
// sent (true) or received (false) from another resource of this
// account.
func Unwrap(msg *stanza.Message) (forwarded []byte, sent bool, ok bool) {
	for _, ext := range msg.Extensions {
		if ext.XMLName.Space != ns.Carbons {
			continue
		}
		switch ext.XMLName.Local {
		case "sent":
			return ext.Inner, true, true
		case "received":
			return ext.Inner, false, true
		}
	}
	return nil, false, false
}
