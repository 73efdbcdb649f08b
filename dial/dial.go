package dial

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/quietwire/xmpp/transport"
)

// Dialer dials XMPP connections.
type Dialer struct {
	Resolver  *Resolver
	TLSConfig *tls.Config
	Timeout   time.Duration
	DirectTLS bool

	// Address, when set, is the host:port to dial, bypassing SRV
	// resolution of the domain entirely. The port may be omitted, in
	// which case the default client port applies.
	Address string

	// ProxyURL, when set, routes the TCP connection through an HTTP
	// CONNECT proxy instead of dialing the target directly.
	ProxyURL *url.URL
}

// NewDialer creates a new Dialer with default settings.
func NewDialer() *Dialer {
	return &Dialer{
		Resolver: NewResolver(),
		Timeout:  30 * time.Second,
	}
}

// Dial connects to an XMPP server for the given domain.
func (d *Dialer) Dial(ctx context.Context, domain string) (*transport.TCP, error) {
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	defaultPort := "5222"
	if d.DirectTLS {
		defaultPort = "5223"
	}

	var records []SRVRecord
	if d.Address != "" {
		host, port, err := net.SplitHostPort(d.Address)
		if err != nil {
			host, port = d.Address, defaultPort
		}
		records = []SRVRecord{{Target: host, Port: parsePort(port)}}
	} else {
		var err error
		if d.DirectTLS {
			records, err = d.Resolver.ResolveClientTLS(ctx, domain)
		} else {
			records, err = d.Resolver.ResolveClient(ctx, domain)
		}

		// Fall back to the domain on the default port (5222, or 5223
		// for Direct TLS) if SRV lookup fails
		if err != nil || len(records) == 0 {
			records = []SRVRecord{{Target: domain, Port: parsePort(defaultPort)}}
		}
	}

	// Try each record in order
	var lastErr error
	netDialer := &net.Dialer{Timeout: d.Timeout}
	for _, rec := range records {
		addr := net.JoinHostPort(rec.Target, fmt.Sprintf("%d", rec.Port))

		var conn net.Conn
		switch {
		case d.ProxyURL != nil:
			conn, lastErr = dialViaProxy(ctx, d.ProxyURL, addr)
			if lastErr == nil && d.DirectTLS {
				tlsConn := tls.Client(conn, d.tlsConfig(domain))
				if err := tlsConn.HandshakeContext(ctx); err != nil {
					conn.Close()
					lastErr = err
					conn = nil
				} else {
					conn = tlsConn
				}
			}
		case d.DirectTLS:
			tlsCfg := d.tlsConfig(domain)
			tlsDialer := &tls.Dialer{
				NetDialer: netDialer,
				Config:    tlsCfg,
			}
			conn, lastErr = tlsDialer.DialContext(ctx, "tcp", addr)
		default:
			conn, lastErr = netDialer.DialContext(ctx, "tcp", addr)
		}

		if lastErr == nil {
			return transport.NewTCP(conn), nil
		}
	}

	return nil, fmt.Errorf("dial: failed to connect to %s: %w", domain, lastErr)
}

// DialServer connects to an XMPP server for S2S communication.
func (d *Dialer) DialServer(ctx context.Context, domain string) (*transport.TCP, error) {
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	records, err := d.Resolver.ResolveServer(ctx, domain)
	if err != nil || len(records) == 0 {
		records = []SRVRecord{{Target: domain, Port: 5269}}
	}

	var lastErr error
	netDialer := &net.Dialer{Timeout: d.Timeout}
	for _, rec := range records {
		addr := net.JoinHostPort(rec.Target, fmt.Sprintf("%d", rec.Port))
		conn, dialErr := netDialer.DialContext(ctx, "tcp", addr)
		if dialErr == nil {
			return transport.NewTCP(conn), nil
		}
		lastErr = dialErr
	}

	return nil, fmt.Errorf("dial: failed to connect to %s: %w", domain, lastErr)
}

func (d *Dialer) tlsConfig(domain string) *tls.Config {
	if d.TLSConfig != nil {
		cfg := d.TLSConfig.Clone()
		if cfg.ServerName == "" {
			cfg.ServerName = domain
		}
		return cfg
	}
	return &tls.Config{ServerName: domain}
}

func parsePort(s string) uint16 {
	var port uint16
	fmt.Sscanf(s, "%d", &port)
	return port
}
