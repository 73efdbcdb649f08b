// Package plugin defines the XMPP extension pipeline: a lifecycle
// interface for protocol add-ons plus the ordered input/output filters
// the session routes stanzas through.
package plugin

import (
	"context"

	"github.com/quietwire/xmpp/stanza"
)

// Plugin is the interface that all XMPP extensions must implement.
type Plugin interface {
	// Name returns the unique plugin name.
	Name() string

	// Version returns the plugin version.
	Version() string

	// Initialize is called when the plugin is activated on a session.
	Initialize(ctx context.Context, params InitParams) error

	// Close releases resources held by the plugin.
	Close() error

	// Dependencies returns the names of plugins this plugin depends on.
	Dependencies() []string
}

// Namespaces is implemented by plugins addressable by the XML
// namespace(s) they claim, so the engine can expose
// get_extension_by_namespace alongside get_extension(name).
type Namespaces interface {
	Namespaces() []string
}

// InputFilter is implemented by plugins that observe or claim inbound
// stanzas. HandleInbound runs in pipeline registration order; the
// first plugin to return claimed=true halts further dispatch for that
// stanza, and the session's own fallback behavior (e.g. replying
// feature-not-implemented to an unclaimed iq get/set) does not run.
// Implementations must be reentrant: the core does not guarantee
// filters run on any particular goroutine.
type InputFilter interface {
	HandleInbound(ctx context.Context, st stanza.Stanza) (claimed bool, err error)
}

// OutputFilter is implemented by plugins that transform outbound
// stanzas before they reach the transport, e.g. stamping a
// delivery-receipt request or chat-state hint. Implementations must
// not block.
type OutputFilter interface {
	HandleOutbound(ctx context.Context, st stanza.Stanza) error
}

// InitParams provides parameters for plugin initialization.
// This avoids a circular import with the root xmpp package: a plugin
// reaches the session only through this capability handle, never by
// holding a reference to the session itself.
type InitParams struct {
	// SendRaw sends raw bytes on the session.
	SendRaw func(ctx context.Context, data []byte) error
	// SendElement encodes and sends an XML element.
	SendElement func(ctx context.Context, v any) error
	// SendStanza sends a stanza, running it through the output pipeline.
	SendStanza func(ctx context.Context, st stanza.Stanza) error
	// SendIQ sends an iq and blocks for the correlated result/error.
	SendIQ func(ctx context.Context, iq *stanza.IQ) (*stanza.IQ, error)
	// State returns the current session state as a uint32.
	State func() uint32
	// LocalJID returns the local JID string.
	LocalJID func() string
	// RemoteJID returns the remote JID string.
	RemoteJID func() string
	// Get retrieves another plugin by name.
	Get func(name string) (Plugin, bool)
	// GetByNamespace retrieves another plugin by a namespace it claims.
	GetByNamespace func(uri string) (Plugin, bool)
}
