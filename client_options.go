package xmpp

import (
	"crypto/tls"
	"log"
	"time"

	"github.com/quietwire/xmpp/dial"
	"github.com/quietwire/xmpp/plugin"
)

type clientOptions struct {
	tlsConfig      *tls.Config
	dialer         *dial.Dialer
	handler        Handler
	address        string
	hostname       string
	proxyURL       string
	directTLS      bool
	noTLS          bool
	useWebSocket   bool
	webSocketURI   string
	resource       string
	defaultTimeout time.Duration
	debug          bool
	logger         *log.Logger
	plugins        []plugin.Plugin

	resumePrevID    string
	resumeHandled   uint32
	resumeRequested bool
}

// ClientOption configures a Client.
type ClientOption interface {
	apply(*clientOptions)
}

type clientOptionFunc func(*clientOptions)

func (f clientOptionFunc) apply(o *clientOptions) { f(o) }

// WithClientTLS sets the TLS configuration for the client.
func WithClientTLS(config *tls.Config) ClientOption {
	return clientOptionFunc(func(o *clientOptions) {
		o.tlsConfig = config
	})
}

// WithClientDialer sets a custom dialer.
func WithClientDialer(d *dial.Dialer) ClientOption {
	return clientOptionFunc(func(o *clientOptions) {
		o.dialer = d
	})
}

// WithHandler sets the stanza handler for the client.
func WithHandler(h Handler) ClientOption {
	return clientOptionFunc(func(o *clientOptions) {
		o.handler = h
	})
}

// WithDirectTLS enables Direct TLS (XEP-0368).
func WithDirectTLS() ClientOption {
	return clientOptionFunc(func(o *clientOptions) {
		o.directTLS = true
	})
}

// WithNoTLS disables STARTTLS: Connect will not send <starttls/> even
// if the server offers it. If the server's offer carries <required/>
// (RFC 6120 §5.4.2.1), Connect fails with AuthenticationFailed before
// any credentials are sent, instead of silently negotiating over
// plaintext.
func WithNoTLS() ClientOption {
	return clientOptionFunc(func(o *clientOptions) {
		o.noTLS = true
	})
}

// WithAddress dials addr (host or host:port) instead of resolving the
// JID's domain through DNS. The stream is still addressed to, and the
// certificate still verified against, the JID's domain.
func WithAddress(addr string) ClientOption {
	return clientOptionFunc(func(o *clientOptions) {
		o.address = addr
	})
}

// WithHostname overrides the name used for TLS SNI and the stream's
// to attribute, for servers whose XMPP identity differs from the JID
// domain being dialed.
func WithHostname(name string) ClientOption {
	return clientOptionFunc(func(o *clientOptions) {
		o.hostname = name
	})
}

// WithProxy routes the TCP connection through the HTTP CONNECT proxy
// at uri.
func WithProxy(uri string) ClientOption {
	return clientOptionFunc(func(o *clientOptions) {
		o.proxyURL = uri
	})
}

// WithWebSocket connects over a WebSocket transport (RFC 7395) at uri
// instead of TCP.
func WithWebSocket(uri string) ClientOption {
	return clientOptionFunc(func(o *clientOptions) {
		o.useWebSocket = true
		o.webSocketURI = uri
	})
}

// WithResource requests resource during bind; an empty value lets the
// server generate one.
func WithResource(resource string) ClientOption {
	return clientOptionFunc(func(o *clientOptions) {
		o.resource = resource
	})
}

// WithDefaultTimeout sets the default deadline applied to synchronous
// SendIQ calls that don't carry their own context deadline.
func WithDefaultTimeout(d time.Duration) ClientOption {
	return clientOptionFunc(func(o *clientOptions) {
		o.defaultTimeout = d
	})
}

// WithDebug enables verbose protocol logging through the configured logger.
func WithDebug() ClientOption {
	return clientOptionFunc(func(o *clientOptions) {
		o.debug = true
	})
}

// WithClientLogger sets the logger passed through to the session.
func WithClientLogger(logger *log.Logger) ClientOption {
	return clientOptionFunc(func(o *clientOptions) {
		o.logger = logger
	})
}

// WithStreamResume requests XEP-0198 stream resumption on the next
// Connect instead of a fresh SASL bind: previd and lastHandled are the
// (resumeId, lastHandledIn) pair a caller persisted from a prior
// session's ResumeID/HandledCount before the transport dropped. This
// is for resuming after the process itself restarted, so there is no
// live Session to carry the old unacked-stanza queue forward; use
// Client.Reconnect instead when the Session survives the drop within
// the same process, since that path can actually resend unacknowledged
// stanzas (XEP-0198 §5). If the server refuses the resume (<failed/>
// or the offer has expired), Connect falls back to an ordinary bind
// automatically; this option only changes what is attempted first.
func WithStreamResume(previd string, lastHandled uint32) ClientOption {
	return clientOptionFunc(func(o *clientOptions) {
		o.resumePrevID = previd
		o.resumeHandled = lastHandled
		o.resumeRequested = previd != ""
	})
}

// WithPlugin registers an extension to be initialized on Connect.
func WithPlugin(p plugin.Plugin) ClientOption {
	return clientOptionFunc(func(o *clientOptions) {
		o.plugins = append(o.plugins, p)
	})
}
