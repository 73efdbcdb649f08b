package xmpp

import (
	"context"
	"testing"
	"time"

	"github.com/quietwire/xmpp/jid"
	"github.com/quietwire/xmpp/stanza"
)

func TestJIDDomainHelper(t *testing.T) {
	t.Parallel()
	j := jidDomain("example.com")
	if !j.IsDomainOnly() {
		t.Errorf("jidDomain(%q) = %v, want a domain-only JID", "example.com", j)
	}
	if j.Domain() != "example.com" {
		t.Errorf("Domain() = %q, want %q", j.Domain(), "example.com")
	}
}

func TestNewClientAppliesOptions(t *testing.T) {
	t.Parallel()
	addr := jid.MustParse("juliet@example.com")
	c, err := NewClient(addr, "secret", WithResource("balcony"), WithNoTLS())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if c.opts.resource != "balcony" {
		t.Errorf("resource = %q, want %q", c.opts.resource, "balcony")
	}
	if !c.opts.noTLS {
		t.Error("expected noTLS option to be recorded")
	}
	if !c.JID().Equal(addr) {
		t.Errorf("JID() = %v, want %v", c.JID(), addr)
	}
}

func TestNewClientWiresDialOverrides(t *testing.T) {
	t.Parallel()
	addr := jid.MustParse("juliet@example.com")
	c, err := NewClient(addr, "secret",
		WithAddress("10.0.0.5:5223"),
		WithHostname("xmpp.internal"),
		WithProxy("http://proxy.corp:3128"),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if c.dialer.Address != "10.0.0.5:5223" {
		t.Errorf("dialer.Address = %q, want %q", c.dialer.Address, "10.0.0.5:5223")
	}
	if c.dialer.ProxyURL == nil || c.dialer.ProxyURL.Host != "proxy.corp:3128" {
		t.Errorf("dialer.ProxyURL = %v, want host proxy.corp:3128", c.dialer.ProxyURL)
	}
	if c.dialer.TLSConfig == nil || c.dialer.TLSConfig.ServerName != "xmpp.internal" {
		t.Errorf("dialer.TLSConfig = %+v, want ServerName xmpp.internal", c.dialer.TLSConfig)
	}
}

func TestNewClientRejectsBadProxyURI(t *testing.T) {
	t.Parallel()
	addr := jid.MustParse("juliet@example.com")
	_, err := NewClient(addr, "secret", WithProxy("://bad"))
	xerr, ok := err.(*Error)
	if !ok || xerr.Kind != InvalidConfig {
		t.Errorf("NewClient with bad proxy URI = %v, want an InvalidConfig *Error", err)
	}
}

func TestClientSendIQWithoutConnectReturnsNotConnected(t *testing.T) {
	t.Parallel()
	addr := jid.MustParse("juliet@example.com")
	c, err := NewClient(addr, "secret", WithDefaultTimeout(50*time.Millisecond))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	_, err = c.SendIQ(context.Background(), stanza.NewIQ(stanza.IQGet))
	xerr, ok := err.(*Error)
	if !ok || xerr.Kind != NotConnected {
		t.Errorf("SendIQ() error = %v, want a NotConnected *Error", err)
	}
}

func TestClientCloseWithoutConnectIsSafe(t *testing.T) {
	t.Parallel()
	addr := jid.MustParse("juliet@example.com")
	c, err := NewClient(addr, "secret")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on an unconnected client = %v, want nil", err)
	}
}

func TestWithStreamResumeRecordsResumeState(t *testing.T) {
	t.Parallel()
	addr := jid.MustParse("juliet@example.com")
	c, err := NewClient(addr, "secret", WithStreamResume("rid-1", 7))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if !c.opts.resumeRequested {
		t.Fatal("expected resumeRequested to be set")
	}
	if c.opts.resumePrevID != "rid-1" || c.opts.resumeHandled != 7 {
		t.Errorf("resume state = (%q, %d), want (%q, %d)", c.opts.resumePrevID, c.opts.resumeHandled, "rid-1", 7)
	}
}

func TestWithStreamResumeEmptyPrevIDIsNotRequested(t *testing.T) {
	t.Parallel()
	addr := jid.MustParse("juliet@example.com")
	c, err := NewClient(addr, "secret", WithStreamResume("", 0))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if c.opts.resumeRequested {
		t.Error("expected an empty previd to leave resumeRequested false")
	}
}

func TestClientSendWithoutConnectReturnsNotConnected(t *testing.T) {
	t.Parallel()
	addr := jid.MustParse("juliet@example.com")
	c, err := NewClient(addr, "secret")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	err = c.Send(nil, nil)
	xerr, ok := err.(*Error)
	if !ok || xerr.Kind != NotConnected {
		t.Errorf("Send() error = %v, want a NotConnected *Error", err)
	}
}
