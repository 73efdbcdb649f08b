package dial

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"net/url"

	"golang.org/x/net/http/httpproxy"
)

// ProxyFromEnvironment returns the HTTP CONNECT proxy URL that applies to
// connections to the given XMPP address, following the same http_proxy /
// https_proxy / no_proxy conventions as net/http, via
// golang.org/x/net/http/httpproxy. It returns nil if no proxy applies.
func ProxyFromEnvironment(addr string) (*url.URL, error) {
	cfg := httpproxy.FromEnvironment()
	reqURL := &url.URL{Scheme: "https", Host: addr}
	return cfg.ProxyFunc()(reqURL)
}

// dialViaProxy opens a TCP connection to targetAddr by issuing an HTTP
// CONNECT request through the proxy at proxyURL.
func dialViaProxy(ctx context.Context, proxyURL *url.URL, targetAddr string) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", proxyURL.Host)
	if err != nil {
		return nil, fmt.Errorf("dial: proxy connect to %s: %w", proxyURL.Host, err)
	}

	req := &http.Request{
		Method: http.MethodConnect,
		URL:    &url.URL{Opaque: targetAddr},
		Host:   targetAddr,
		Header: make(http.Header),
	}
	if proxyURL.User != nil {
		req.Header.Set("Proxy-Authorization", basicAuth(proxyURL.User))
	}

	if err := req.Write(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("dial: writing CONNECT request: %w", err)
	}

	br := bufio.NewReader(conn)
	resp, err := http.ReadResponse(br, req)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("dial: reading CONNECT response: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		conn.Close()
		return nil, fmt.Errorf("dial: proxy CONNECT failed: %s", resp.Status)
	}
	if br.Buffered() > 0 {
		conn.Close()
		return nil, fmt.Errorf("dial: proxy sent data before CONNECT tunnel was established")
	}

	return conn, nil
}

func basicAuth(u *url.Userinfo) string {
	pass, _ := u.Password()
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(u.Username()+":"+pass))
}
