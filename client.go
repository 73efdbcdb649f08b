package xmpp

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/xml"
	"net/url"
	"strings"
	"sync"

	"github.com/quietwire/xmpp/dial"
	"github.com/quietwire/xmpp/extensions/carbons"
	"github.com/quietwire/xmpp/extensions/disco"
	"github.com/quietwire/xmpp/extensions/ping"
	"github.com/quietwire/xmpp/extensions/roster"
	"github.com/quietwire/xmpp/internal/ns"
	"github.com/quietwire/xmpp/jid"
	"github.com/quietwire/xmpp/plugin"
	"github.com/quietwire/xmpp/sasl"
	"github.com/quietwire/xmpp/stanza"
	"github.com/quietwire/xmpp/transport"
)

// Client is a high-level XMPP client: it owns a single Session and the
// extension pipeline layered on top of it, and drives the connection
// from a bare address through the post-Bound sequence to FullyConnected.
type Client struct {
	mu       sync.Mutex
	addr     jid.JID
	password string
	session  *Session
	plugins  *plugin.Manager
	dialer   *dial.Dialer
	opts     clientOptions
	handler  Handler

	disco   *disco.Plugin
	roster  *roster.Plugin
	carbons *carbons.Plugin
}

// NewClient creates a new XMPP client for addr (a full or bare JID
// whose domain identifies the server to dial).
func NewClient(addr jid.JID, password string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		addr:     addr,
		password: password,
		dialer:   dial.NewDialer(),
	}

	for _, opt := range opts {
		opt.apply(&c.opts)
	}
	if c.opts.dialer != nil {
		c.dialer = c.opts.dialer
	}
	if c.opts.hostname != "" {
		cfg := c.opts.tlsConfig
		if cfg == nil {
			cfg = &tls.Config{}
		} else {
			cfg = cfg.Clone()
		}
		if cfg.ServerName == "" {
			cfg.ServerName = c.opts.hostname
		}
		c.opts.tlsConfig = cfg
	}
	if c.opts.tlsConfig != nil {
		c.dialer.TLSConfig = c.opts.tlsConfig
	}
	c.dialer.DirectTLS = c.opts.directTLS
	c.dialer.Address = c.opts.address
	if c.opts.proxyURL != "" {
		u, err := url.Parse(c.opts.proxyURL)
		if err != nil {
			return nil, NewError(InvalidConfig, err)
		}
		c.dialer.ProxyURL = u
	}
	if c.opts.handler != nil {
		c.handler = c.opts.handler
	}

	return c, nil
}

// Connect dials the server, negotiates the stream (STARTTLS, SASL,
// resource bind), initializes the extension pipeline, and runs the
// post-Bound sequence (session establishment, a disco probe, optional
// stream-management enable, optional message-carbons enable, and a
// roster fetch) before emitting FullyConnectedEvent. Ongoing stanza
// delivery still requires the caller to run Serve.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	trans, initialState, err := c.dial(ctx)
	if err != nil {
		return err
	}

	streamTo := c.addr.Domain()
	if c.opts.hostname != "" {
		streamTo = c.opts.hostname
	}
	sessionOpts := []SessionOption{
		WithLocalAddr(c.addr),
		WithRemoteAddr(jidDomain(streamTo)),
		WithState(initialState),
	}
	if c.opts.logger != nil {
		sessionOpts = append(sessionOpts, WithLogger(c.opts.logger))
	}

	session, err := NewSession(ctx, trans, sessionOpts...)
	if err != nil {
		trans.Close()
		return err
	}
	c.session = session

	mgr, discoP, rosterP, carbonsP, err := c.buildPlugins(ctx, session)
	if err != nil {
		session.Close()
		c.session = nil
		return err
	}
	c.plugins = mgr
	c.disco = discoP
	c.roster = rosterP
	c.carbons = carbonsP
	session.plugins = mgr

	resumed, err := c.doNegotiate(ctx, session, c.opts.resumeRequested, c.opts.resumePrevID, c.opts.resumeHandled)
	if err != nil {
		c.closeLocked()
		return err
	}

	// A successful resume picks the session back up exactly where the
	// dropped connection left it; re-running session establishment,
	// disco, carbons-enable, and roster fetch would just be redundant
	// round trips against state the server already has for us.
	if !resumed {
		if err := c.runPostBoundSequence(ctx, session); err != nil {
			c.closeLocked()
			return err
		}
	}
	session.emit(FullyConnectedEvent{})

	return nil
}

// Reconnect re-dials the server and rebinds the existing Session onto
// the new transport (Session.Rebind) instead of replacing it with a
// fresh one. Call it after a transport drop when c.Session() is still
// the session that was live before the drop: keeping the same *Session*
// keeps its stream-management unacked queue intact, so a successful
// XEP-0198 resume actually has something to resend (XEP-0198 §5). Use
// WithStreamResume/Connect instead when the process itself restarted
// and there is no surviving Session to rebind.
//
// If the server declines the resume, Reconnect falls back to a fresh
// bind and re-runs the post-Bound sequence, same as Connect.
func (c *Client) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	session := c.session
	if session == nil {
		return NewError(NotConnected, ErrNotConnected)
	}

	previd, resumeOK := session.ResumeID()
	handled := session.HandledCount()

	trans, initialState, err := c.dial(ctx)
	if err != nil {
		return err
	}
	if err := session.Rebind(trans); err != nil {
		trans.Close()
		return err
	}
	session.SetState(initialState)

	resumeRequested := resumeOK && previd != ""
	resumed, err := c.doNegotiate(ctx, session, resumeRequested, previd, handled)
	if err != nil {
		c.closeLocked()
		return err
	}

	if !resumed {
		if err := c.runPostBoundSequence(ctx, session); err != nil {
			c.closeLocked()
			return err
		}
	}
	session.emit(FullyConnectedEvent{})

	return nil
}

// dial opens the transport for the configured address, returning the
// initial session state bits the transport already satisfies (e.g.
// StateSecure when the connection is TLS-wrapped before the XMPP
// stream even starts).
func (c *Client) dial(ctx context.Context) (transport.Transport, SessionState, error) {
	var state SessionState
	if c.opts.directTLS {
		state |= StateSecure
	}

	if c.opts.useWebSocket {
		tlsCfg := c.opts.tlsConfig
		ws, err := transport.DialWebSocket(c.opts.webSocketURI, tlsCfg)
		if err != nil {
			return nil, 0, NewError(ConnectFailed, err)
		}
		if strings.HasPrefix(c.opts.webSocketURI, "wss://") {
			state |= StateSecure
		}
		return ws, state, nil
	}

	trans, err := c.dialer.Dial(ctx, c.addr.Domain())
	if err != nil {
		return nil, 0, NewError(ConnectFailed, err)
	}
	return trans, state, nil
}

// buildPlugins registers the built-in extension set (disco, roster,
// carbons, ping) alongside any caller-supplied plugins and initializes
// all of them against session.
func (c *Client) buildPlugins(ctx context.Context, session *Session) (*plugin.Manager, *disco.Plugin, *roster.Plugin, *carbons.Plugin, error) {
	mgr := plugin.NewManager()

	discoP := disco.New()
	discoP.AddIdentity(disco.Identity{Category: "client", Type: "bot", Name: "quietwire"})
	rosterP := roster.New()
	carbonsP := carbons.New()
	pingP := ping.New()

	builtins := []plugin.Plugin{discoP, rosterP, carbonsP, pingP}
	for _, p := range builtins {
		if err := mgr.Register(p); err != nil {
			return nil, nil, nil, nil, err
		}
	}
	for _, p := range c.opts.plugins {
		if err := mgr.Register(p); err != nil {
			return nil, nil, nil, nil, err
		}
	}

	params := plugin.InitParams{
		SendRaw: func(ctx context.Context, data []byte) error {
			return session.SendRaw(ctx, bytes.NewReader(data))
		},
		SendElement:    session.SendElement,
		SendStanza:     session.Send,
		SendIQ:         session.SendIQ,
		State:          func() uint32 { return uint32(session.State()) },
		LocalJID:       func() string { return session.LocalAddr().String() },
		RemoteJID:      func() string { return session.RemoteAddr().String() },
		Get:            mgr.Get,
		GetByNamespace: mgr.GetByNamespace,
	}
	if err := mgr.Initialize(ctx, params); err != nil {
		return nil, nil, nil, nil, err
	}
	return mgr, discoP, rosterP, carbonsP, nil
}

// doNegotiate builds the SASL and stream-feature negotiators from the
// client's configuration and drives session from stream-open through
// Bound. When resumeRequested is set, bind is skipped in favor of a
// <resume/> attempt (XEP-0198 §5) on the freshly authenticated stream,
// using previd and lastHandled as the prior session's resume id and
// handled-inbound count; a <failed/> resume falls back to an ordinary
// RFC 6120 §7 resource bind on the same stream rather than failing the
// caller outright. Connect calls this with the client's configured
// WithStreamResume values; Reconnect calls it with the still-live
// Session's own ResumeID/HandledCount so it can resume in place after a
// transport drop.
func (c *Client) doNegotiate(ctx context.Context, session *Session, resumeRequested bool, previd string, lastHandled uint32) (resumed bool, err error) {
	creds := sasl.Credentials{Username: c.addr.Local(), Password: c.password}
	saslNegotiator := sasl.NewNegotiator(creds,
		sasl.NewSCRAMSHA512(creds),
		sasl.NewSCRAMSHA256(creds),
		sasl.NewSCRAMSHA1(creds),
		sasl.NewPlain(creds),
	)

	authNegotiator := NewNegotiator()
	authNegotiator.AddFeature(StartTLS(c.opts.tlsConfig, !c.opts.noTLS))
	authNegotiator.AddFeature(SASLFeature(saslNegotiator))

	if err := session.Open(ctx); err != nil {
		return false, err
	}

	if !resumeRequested {
		authNegotiator.AddFeature(BindFeature(c.opts.resource))
		return false, authNegotiator.Negotiate(ctx, session)
	}

	authNegotiator.StopAt(StateAuthenticated)
	if err := authNegotiator.Negotiate(ctx, session); err != nil {
		return false, err
	}

	// Negotiate already restarted the stream after SASL success (RFC
	// 6120 §6.4.6) and consumed the post-restart <stream:features>; that
	// offer (bind, and possibly sm) isn't needed here since resume is
	// driven directly on the already-open, already-authenticated stream.
	session.emit(StatusEvent{Status: Resuming})
	if err := session.ResumeStreamManagement(ctx, previd, lastHandled); err == nil {
		return true, nil
	}

	// Resume was declined; the stream is still open and authenticated,
	// so fall back to an ordinary bind on it.
	bindNegotiator := NewNegotiator(BindFeature(c.opts.resource))
	return false, bindNegotiator.Negotiate(ctx, session)
}

// runPostBoundSequence runs the steps a freshly bound session still
// needs before it is usable, in order, each completing before the next
// begins: the legacy RFC 3921 session-establishment iq, a disco probe
// of the server, optional XEP-0198 stream-management enable, optional
// XEP-0280 message-carbons enable, and an RFC 6121 roster fetch.
// Failures here are silently discarded rather than propagated, since
// they are non-fatal to an already-bound session.
func (c *Client) runPostBoundSequence(ctx context.Context, session *Session) error {
	c.establishSession(ctx, session)
	c.probeServerDisco(ctx, session)
	c.tryEnableStreamManagement(ctx, session)
	c.tryEnableCarbons(ctx, session)
	c.fetchRoster(ctx, session)
	return nil
}

// establishSession sends the legacy RFC 3921 <session/> iq-set some
// servers still require before a bound resource can exchange stanzas;
// RFC 6121 made it obsolete, so failure or absence of a reply is
// ignored.
func (c *Client) establishSession(ctx context.Context, session *Session) {
	iq := stanza.NewIQ(stanza.IQSet)
	iq.To = jidDomain(session.RemoteAddr().Domain())
	buf, _ := xml.Marshal(struct {
		XMLName xml.Name `xml:"session"`
	}{XMLName: xml.Name{Space: ns.Session, Local: "session"}})
	iq.Query = buf
	_, _ = session.SendIQSync(ctx, iq)
}

func (c *Client) probeServerDisco(ctx context.Context, session *Session) {
	req := disco.ProbeInfo(jidDomain(session.RemoteAddr().Domain()))
	resp, err := session.SendIQSync(ctx, req)
	if err != nil || resp.Type != stanza.IQResult {
		return
	}
	var info disco.InfoQuery
	_ = xml.Unmarshal(resp.Query, &info)
}

func (c *Client) tryEnableStreamManagement(ctx context.Context, session *Session) {
	_ = session.EnableStreamManagement(ctx)
}

func (c *Client) tryEnableCarbons(ctx context.Context, session *Session) {
	resp, err := session.SendIQSync(ctx, carbons.EnableRequest())
	if err != nil {
		return
	}
	if resp.Type == stanza.IQResult {
		c.carbons.SetEnabled(true)
	}
}

func (c *Client) fetchRoster(ctx context.Context, session *Session) {
	resp, err := session.SendIQSync(ctx, roster.FetchRequest())
	if err != nil || resp.Type != stanza.IQResult {
		return
	}
	_ = c.roster.ApplyFetchResult(resp)
}

func jidDomain(domain string) jid.JID {
	j, _ := jid.New("", domain, "")
	return j
}

// Serve starts reading and dispatching inbound stanzas. It blocks
// until the stream ends or handler returns an error; handler defaults
// to the session's Mux when nil.
func (c *Client) Serve(handler Handler) error {
	c.mu.Lock()
	session := c.session
	if handler == nil {
		handler = c.handler
	}
	debug := c.opts.debug
	logger := c.opts.logger
	c.mu.Unlock()

	if session == nil {
		return NewError(NotConnected, ErrNotConnected)
	}
	if debug {
		if handler == nil {
			handler = session.Mux()
		}
		handler = Chain(handler, LogMiddleware(logger))
	}
	return session.Serve(handler)
}

// SendIQ sends iq and blocks until the correlated reply arrives,
// applying the client's configured default timeout (WithDefaultTimeout)
// when ctx carries no deadline of its own. A zero or negative default
// leaves the wait unbounded.
func (c *Client) SendIQ(ctx context.Context, iq *stanza.IQ) (*stanza.IQ, error) {
	c.mu.Lock()
	s := c.session
	d := c.opts.defaultTimeout
	c.mu.Unlock()

	if s == nil {
		return nil, NewError(NotConnected, ErrNotConnected)
	}
	if d > 0 {
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
	}
	return s.SendIQ(ctx, iq)
}

// Send sends a stanza.
func (c *Client) Send(ctx context.Context, st stanza.Stanza) error {
	c.mu.Lock()
	s := c.session
	c.mu.Unlock()

	if s == nil {
		return NewError(NotConnected, ErrNotConnected)
	}
	return s.Send(ctx, st)
}

// Session returns the underlying session.
func (c *Client) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Close closes the client connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

// closeLocked is Close's body, callable by Connect and Reconnect error
// paths that already hold c.mu: calling the public Close from inside
// Connect (which holds c.mu for its whole body via its own deferred
// unlock) would deadlock on re-entry.
func (c *Client) closeLocked() error {
	var firstErr error
	if c.plugins != nil {
		if err := c.plugins.Close(); err != nil {
			firstErr = err
		}
		c.plugins = nil
	}
	if c.session != nil {
		if err := c.session.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		c.session = nil
	}
	return firstErr
}

// Plugin returns a registered plugin by name.
func (c *Client) Plugin(name string) (plugin.Plugin, bool) {
	c.mu.Lock()
	mgr := c.plugins
	c.mu.Unlock()

	if mgr == nil {
		return nil, false
	}
	return mgr.Get(name)
}

// Disco returns the built-in service-discovery plugin.
func (c *Client) Disco() *disco.Plugin { return c.disco }

// Roster returns the built-in roster cache.
func (c *Client) Roster() *roster.Plugin { return c.roster }

// Carbons returns the built-in message-carbons plugin.
func (c *Client) Carbons() *carbons.Plugin { return c.carbons }

// JID returns the client's JID.
func (c *Client) JID() jid.JID {
	return c.addr
}
