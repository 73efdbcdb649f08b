package stanza

import (
	"encoding/xml"

	"github.com/quietwire/xmpp/internal/ns"
)

// Message type constants.
const (
	MessageChat       = "chat"
	MessageError      = "error"
	MessageGroupchat  = "groupchat"
	MessageHeadline   = "headline"
	MessageManagement = "management"
	MessageNormal     = "normal"
)

// Body is a localized <body xml:lang="…"> element. A message may carry
// zero or more, one per language (RFC 6121 §5.2.3).
type Body struct {
	XMLName xml.Name `xml:"body"`
	Lang    string   `xml:"xml:lang,attr,omitempty"`
	Text    string   `xml:",chardata"`
}

// Message represents an XMPP message stanza.
type Message struct {
	Header
	XMLName    xml.Name    `xml:"message"`
	Subject    string      `xml:"subject,omitempty"`
	Bodies     []Body      `xml:"body,omitempty"`
	Thread     string      `xml:"thread,omitempty"`
	Error      *StanzaError `xml:"error,omitempty"`
	Extensions []Extension `xml:",any,omitempty"`
}

// NewMessage creates a new Message with the given type and a random ID.
func NewMessage(typ string) *Message {
	return &Message{
		Header: Header{
			XMLName: xml.Name{Space: ns.Client, Local: "message"},
			ID:      GenerateID(),
			Type:    typ,
		},
	}
}

// StanzaType returns "message".
func (m *Message) StanzaType() string {
	return "message"
}

// Body returns the untagged (no xml:lang) body text, or the first body
// if none is untagged, or "" if the message carries no body.
func (m *Message) Body() string {
	var fallback string
	for i, b := range m.Bodies {
		if i == 0 {
			fallback = b.Text
		}
		if b.Lang == "" {
			return b.Text
		}
	}
	return fallback
}

// SetBody replaces all bodies with a single untagged body.
func (m *Message) SetBody(text string) {
	m.Bodies = []Body{{Text: text}}
}
