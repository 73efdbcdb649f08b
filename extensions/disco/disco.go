// Package disco implements the responder side of XEP-0030 Service
// Discovery: it answers inbound disco#info/disco#items queries about
// this client with the identities, features and items registered on
// it. Probing a peer (or the server) is the caller's job, via ProbeInfo.
package disco

import (
	"bytes"
	"context"
	"encoding/xml"
	"sync"

	"github.com/quietwire/xmpp/internal/ns"
	"github.com/quietwire/xmpp/jid"
	"github.com/quietwire/xmpp/plugin"
	"github.com/quietwire/xmpp/stanza"
)

const Name = "disco"

// Identity represents a disco identity.
type Identity struct {
	XMLName  xml.Name `xml:"identity"`
	Category string   `xml:"category,attr"`
	Type     string   `xml:"type,attr"`
	Name     string   `xml:"name,attr,omitempty"`
	Lang     string   `xml:"xml:lang,attr,omitempty"`
}

// Feature represents a disco feature.
type Feature struct {
	XMLName xml.Name `xml:"feature"`
	Var     string   `xml:"var,attr"`
}

// InfoQuery represents a disco#info query or result payload.
type InfoQuery struct {
	XMLName    xml.Name   `xml:"http://jabber.org/protocol/disco#info query"`
	Node       string     `xml:"node,attr,omitempty"`
	Identities []Identity `xml:"identity"`
	Features   []Feature  `xml:"feature"`
}

// Item represents a disco item.
type Item struct {
	XMLName xml.Name `xml:"item"`
	JID     string   `xml:"jid,attr"`
	Node    string   `xml:"node,attr,omitempty"`
	Name    string   `xml:"name,attr,omitempty"`
}

// ItemsQuery represents a disco#items query or result payload.
type ItemsQuery struct {
	XMLName xml.Name `xml:"http://jabber.org/protocol/disco#items query"`
	Node    string   `xml:"node,attr,omitempty"`
	Items   []Item   `xml:"item"`
}

// Plugin answers inbound disco#info/disco#items queries about this
// client with its registered identities, features and items.
type Plugin struct {
	mu         sync.RWMutex
	identities []Identity
	features   []Feature
	items      []Item
	params     plugin.InitParams
}

// New creates a disco plugin advertising disco#info/disco#items
// support by default.
func New() *Plugin {
	return &Plugin{
		features: []Feature{
			{Var: ns.DiscoInfo},
			{Var: ns.DiscoItems},
		},
	}
}

func (p *Plugin) Name() string           { return Name }
func (p *Plugin) Version() string        { return "1.0.0" }
func (p *Plugin) Dependencies() []string { return nil }
func (p *Plugin) Namespaces() []string   { return []string{ns.DiscoInfo, ns.DiscoItems} }

func (p *Plugin) Initialize(_ context.Context, params plugin.InitParams) error {
	p.params = params
	return nil
}

func (p *Plugin) Close() error { return nil }

// AddIdentity registers an identity reported in future disco#info replies.
func (p *Plugin) AddIdentity(identity Identity) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.identities = append(p.identities, identity)
}

// AddFeature registers a feature var reported in future disco#info replies.
func (p *Plugin) AddFeature(feature string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.features = append(p.features, Feature{Var: feature})
}

// AddItem registers an item reported in future disco#items replies.
func (p *Plugin) AddItem(item Item) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items = append(p.items, item)
}

// Info returns a snapshot of the registered identities and features.
func (p *Plugin) Info() InfoQuery {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return InfoQuery{
		Identities: append([]Identity(nil), p.identities...),
		Features:   append([]Feature(nil), p.features...),
	}
}

// Items returns a snapshot of the registered items.
func (p *Plugin) Items() ItemsQuery {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return ItemsQuery{Items: append([]Item(nil), p.items...)}
}

// HandleInbound answers disco#info and disco#items iq gets addressed
// to this client; anything else is left unclaimed.
func (p *Plugin) HandleInbound(ctx context.Context, st stanza.Stanza) (bool, error) {
	iq, ok := st.(*stanza.IQ)
	if !ok || iq.Type != stanza.IQGet {
		return false, nil
	}
	switch {
	case bytes.Contains(iq.Query, []byte(ns.DiscoInfo)):
		result := iq.ResultIQ()
		buf, err := xml.Marshal(p.Info())
		if err != nil {
			return true, err
		}
		result.Query = buf
		return true, p.params.SendStanza(ctx, result)
	case bytes.Contains(iq.Query, []byte(ns.DiscoItems)):
		result := iq.ResultIQ()
		buf, err := xml.Marshal(p.Items())
		if err != nil {
			return true, err
		}
		result.Query = buf
		return true, p.params.SendStanza(ctx, result)
	default:
		return false, nil
	}
}

// ProbeInfo builds an outbound disco#info query for to (the server's
// domain JID, typically).
func ProbeInfo(to jid.JID) *stanza.IQ {
	iq := stanza.NewIQ(stanza.IQGet)
	iq.To = to
	buf, _ := xml.Marshal(InfoQuery{})
	iq.Query = buf
	return iq
}
