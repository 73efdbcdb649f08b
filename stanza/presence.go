package stanza

import (
	"encoding/xml"

	"github.com/quietwire/xmpp/internal/ns"
)

// Presence type constants.
const (
	PresenceAvailable    = ""
	PresenceUnavailable  = "unavailable"
	PresenceSubscribe    = "subscribe"
	PresenceSubscribed   = "subscribed"
	PresenceUnsubscribe  = "unsubscribe"
	PresenceUnsubscribed = "unsubscribed"
	PresenceProbe        = "probe"
	PresenceError        = "error"
)

// Show values for presence.
const (
	ShowAway = "away"
	ShowChat = "chat"
	ShowDND  = "dnd"
	ShowXA   = "xa"
)

// Status is a localized <status xml:lang="…"> element. Presence may
// carry zero or more, one per language (RFC 6121 §4.7.2.2).
type Status struct {
	XMLName xml.Name `xml:"status"`
	Lang    string   `xml:"xml:lang,attr,omitempty"`
	Text    string   `xml:",chardata"`
}

// Presence represents an XMPP presence stanza.
type Presence struct {
	Header
	XMLName    xml.Name    `xml:"presence"`
	Show       string      `xml:"show,omitempty"`
	Statuses   []Status    `xml:"status,omitempty"`
	Priority   int8        `xml:"priority,omitempty"`
	Error      *StanzaError `xml:"error,omitempty"`
	Extensions []Extension `xml:",any,omitempty"`
}

// NewPresence creates a new Presence with the given type.
func NewPresence(typ string) *Presence {
	return &Presence{
		Header: Header{
			XMLName: xml.Name{Space: ns.Client, Local: "presence"},
			ID:      GenerateID(),
			Type:    typ,
		},
	}
}

// StanzaType returns "presence".
func (p *Presence) StanzaType() string {
	return "presence"
}

// Status returns the untagged (no xml:lang) status text, or the first
// status if none is untagged, or "" if the presence carries no status.
func (p *Presence) Status() string {
	var fallback string
	for i, s := range p.Statuses {
		if i == 0 {
			fallback = s.Text
		}
		if s.Lang == "" {
			return s.Text
		}
	}
	return fallback
}

// SetStatus replaces all statuses with a single untagged status.
func (p *Presence) SetStatus(text string) {
	p.Statuses = []Status{{Text: text}}
}
