// Package ns holds the XML namespace URIs the session engine speaks.
// Only namespaces the engine or its built-in extensions actually emit
// or match live here; per-XEP add-ons carry their own.
package ns

const (
	// The stream itself (RFC 6120).
	Client  = "jabber:client"                         // default stanza namespace
	Stream  = "http://etherx.jabber.org/streams"      // stream: prefix
	Streams = "urn:ietf:params:xml:ns:xmpp-streams"   // stream error conditions
	Stanzas = "urn:ietf:params:xml:ns:xmpp-stanzas"   // stanza error conditions
	Framing = "urn:ietf:params:xml:ns:xmpp-framing"   // WebSocket <open/>/<close/> (RFC 7395)

	// Negotiation (RFC 6120).
	TLS  = "urn:ietf:params:xml:ns:xmpp-tls"
	SASL = "urn:ietf:params:xml:ns:xmpp-sasl"
	Bind = "urn:ietf:params:xml:ns:xmpp-bind"

	// Legacy session establishment (RFC 3921); obsolete but still
	// demanded by some servers before stanzas may flow.
	Session = "urn:ietf:params:xml:ns:xmpp-session"

	// Stream Management (XEP-0198).
	SM = "urn:xmpp:sm:3"

	// Roster and the privacy-list feature surface (RFC 6121, XEP-0016).
	Roster  = "jabber:iq:roster"
	Privacy = "jabber:iq:privacy"

	// Built-in extensions.
	DiscoInfo  = "http://jabber.org/protocol/disco#info"  // XEP-0030
	DiscoItems = "http://jabber.org/protocol/disco#items" // XEP-0030
	Carbons    = "urn:xmpp:carbons:2"                     // XEP-0280
	Ping       = "urn:xmpp:ping"                          // XEP-0199
)
