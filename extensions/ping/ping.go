// Package ping implements XEP-0199 XMPP Ping.
package ping

import (
	"bytes"
	"context"
	"encoding/xml"

	"github.com/quietwire/xmpp/internal/ns"
	"github.com/quietwire/xmpp/jid"
	"github.com/quietwire/xmpp/plugin"
	"github.com/quietwire/xmpp/stanza"
)

const Name = "ping"

// Element is the XEP-0199 ping payload.
type Element struct {
	XMLName xml.Name `xml:"urn:xmpp:ping ping"`
}

// Plugin answers inbound pings with an empty iq result; it claims only
// an iq get carrying the urn:xmpp:ping payload and leaves everything
// else for the rest of the pipeline.
type Plugin struct {
	params plugin.InitParams
}

// New creates a new ping plugin.
func New() *Plugin { return &Plugin{} }

func (p *Plugin) Name() string           { return Name }
func (p *Plugin) Version() string        { return "1.0.0" }
func (p *Plugin) Dependencies() []string { return nil }
func (p *Plugin) Namespaces() []string   { return []string{ns.Ping} }

func (p *Plugin) Initialize(_ context.Context, params plugin.InitParams) error {
	p.params = params
	return nil
}

func (p *Plugin) Close() error { return nil }

// HandleInbound claims iq gets carrying a ping payload and answers
// with an empty result.
func (p *Plugin) HandleInbound(ctx context.Context, st stanza.Stanza) (bool, error) {
	iq, ok := st.(*stanza.IQ)
	if !ok || iq.Type != stanza.IQGet || !bytes.Contains(iq.Query, []byte(ns.Ping)) {
		return false, nil
	}
	return true, p.params.SendStanza(ctx, iq.ResultIQ())
}

// Request builds an outbound ping iq get. An empty to addresses the
// connected server's own domain.
func Request(to jid.JID) *stanza.IQ {
	iq := stanza.NewIQ(stanza.IQGet)
	if !to.IsZero() {
		iq.To = to
	}
	buf, _ := xml.Marshal(Element{})
	iq.Query = buf
	return iq
}
