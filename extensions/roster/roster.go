// Package roster implements the client side of RFC 6121 roster
// management: an in-memory cache populated by the initial fetch and
// kept current by inbound roster pushes.
package roster

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

const Name = "roster"

// Subscription states (RFC 6121 §2.1.2.5).
const (
	SubNone   = "none"
	SubTo     = "to"
	SubFrom   = "from"
	SubBoth   = "both"
	SubRemove = "remove"
)

// Item represents a roster item.
type Item struct {
	XMLName      xml.Name `xml:"item"`
	JID          string   `xml:"jid,attr"`
	Name         string   `xml:"name,attr,omitempty"`
	Subscription string   `xml:"subscription,attr,omitempty"`
	Ask          string   `xml:"ask,attr,omitempty"`
	Groups       []string `xml:"group,omitempty"`
}

// Query represents a jabber:iq:roster query or result payload.
type Query struct {
	XMLName xml.Name `xml:"jabber:iq:roster query"`
	Ver     string   `xml:"ver,attr,omitempty"`
	Items   []Item   `xml:"item"`
}

// Plugin caches the roster client-side and claims inbound roster
// pushes (iq set from the bare account JID or empty from, per RFC
// 6121 §2.1.6) to keep the cache current.
type Plugin struct {
	mu     sync.RWMutex
	items  map[string]Item
	ver    string
	params plugin.InitParams
}

// New creates an empty roster plugin.
func New() *Plugin {
	return &Plugin{items: make(map[string]Item)}
}

func (p *Plugin) Name() string           { return Name }
func (p *Plugin) Version() string        { return "1.0.0" }
func (p *Plugin) Dependencies() []string { return nil }
func (p *Plugin) Namespaces() []string   { return []string{ns.Roster} }

func (p *Plugin) Initialize(_ context.Context, params plugin.InitParams) error {
	p.params = params
	return nil
}

func (p *Plugin) Close() error { return nil }

// Get returns a cached roster item by bare JID.
func (p *Plugin) Get(jid string) (Item, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	item, ok := p.items[jid]
	return item, ok
}

// Items returns a snapshot of the cached roster.
func (p *Plugin) Items() []Item {
	p.mu.RLock()
	defer p.mu.RUnlock()
	items := make([]Item, 0, len(p.items))
	for _, item := range p.items {
		items = append(items, item)
	}
	return items
}

// RosterVersion returns the cached roster version string (empty if none).
func (p *Plugin) RosterVersion() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ver
}

func (p *Plugin) apply(q Query) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ver = q.Ver
	for _, item := range q.Items {
		if item.Subscription == SubRemove {
			delete(p.items, item.JID)
			continue
		}
		p.items[item.JID] = item
	}
}

// HandleInbound claims an inbound jabber:iq:roster push, applies it to
// the cache, and answers with an empty result as RFC 6121 requires.
func (p *Plugin) HandleInbound(ctx context.Context, st stanza.Stanza) (bool, error) {
	iq, ok := st.(*stanza.IQ)
	if !ok || iq.Type != stanza.IQSet || !bytes.Contains(iq.Query, []byte(ns.Roster)) {
		return false, nil
	}
	if !iq.From.IsZero() {
		if p.params.LocalJID == nil {
			return false, nil
		}
		local, err := jid.Parse(p.params.LocalJID())
		if err != nil || !iq.From.Equal(local.Bare()) {
			return false, nil
		}
	}
	var q Query
	if err := xml.Unmarshal(iq.Query, &q); err != nil {
		return true, err
	}
	p.apply(q)
	return true, p.params.SendStanza(ctx, iq.ResultIQ())
}

// FetchRequest builds the initial roster-fetch iq get.
func FetchRequest() *stanza.IQ {
	iq := stanza.NewIQ(stanza.IQGet)
	buf, _ := xml.Marshal(Query{})
	iq.Query = buf
	return iq
}

// ApplyFetchResult parses a roster-fetch result and seeds the cache
// from it, replacing whatever it held before.
func (p *Plugin) ApplyFetchResult(result *stanza.IQ) error {
	var q Query
	if err := xml.Unmarshal(result.Query, &q); err != nil {
		return err
	}
	p.mu.Lock()
	p.items = make(map[string]Item, len(q.Items))
	p.mu.Unlock()
	p.apply(q)
	return nil
}
