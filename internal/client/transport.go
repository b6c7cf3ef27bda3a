package client

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
	"golang.org/x/net/proxy"

	"hopchain/internal/fingerprint"
)

// ErrUnsupportedProxy is returned for proxy URLs with an unknown scheme.
var ErrUnsupportedProxy = errors.New("unsupported proxy scheme")

// connectionHeaders are forbidden on HTTP/2 and dropped before an h2 round trip.
var connectionHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Connection",
	"Transfer-Encoding",
	"Upgrade",
}

// roundTripper opens one connection per request. https targets are dialed
// through uTLS with the profile's ClientHello and spoken to over h2 or
// HTTP/1.1 depending on the negotiated ALPN.
type roundTripper struct {
	profile        *fingerprint.Profile
	proxies        map[string]string
	connectTimeout time.Duration
	insecure       bool
}

func (t *roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	proxyURL, err := selectProxy(t.proxies, req.URL.Scheme)
	if err != nil {
		return nil, err
	}

	switch req.URL.Scheme {
	case "http":
		return t.roundTripPlain(req, proxyURL)
	case "https":
		return t.roundTripTLS(req, proxyURL)
	default:
		return nil, fmt.Errorf("unsupported scheme %q", req.URL.Scheme)
	}
}

// roundTripPlain serves http targets. HTTP proxies receive absolute-form
// requests; SOCKS proxies are used as the dialer.
func (t *roundTripper) roundTripPlain(req *http.Request, proxyURL *url.URL) (*http.Response, error) {
	tr := &http.Transport{
		DisableKeepAlives:  true,
		DisableCompression: true,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			ctx, cancel := context.WithTimeout(ctx, t.connectTimeout)
			defer cancel()
			if proxyURL != nil && isSOCKS(proxyURL) {
				return t.dialRaw(ctx, network, addr, proxyURL)
			}
			return t.dialRaw(ctx, network, addr, nil)
		},
	}
	if proxyURL != nil && !isSOCKS(proxyURL) {
		tr.Proxy = http.ProxyURL(proxyURL)
	}

	resp, err := tr.RoundTrip(req)
	if err != nil {
		tr.CloseIdleConnections()
		return nil, err
	}
	return resp, nil
}

func (t *roundTripper) roundTripTLS(req *http.Request, proxyURL *url.URL) (*http.Response, error) {
	conn, err := t.dialTLS(req.Context(), targetAddr(req.URL), req.URL.Hostname(), proxyURL)
	if err != nil {
		return nil, err
	}

	if conn.ConnectionState().NegotiatedProtocol == http2.NextProtoTLS {
		return roundTripH2(req, conn)
	}
	return roundTripH1(req, conn)
}

func (t *roundTripper) dialTLS(ctx context.Context, addr, serverName string, proxyURL *url.URL) (*utls.UConn, error) {
	ctx, cancel := context.WithTimeout(ctx, t.connectTimeout)
	defer cancel()

	raw, err := t.dialRaw(ctx, "tcp", addr, proxyURL)
	if err != nil {
		return nil, err
	}

	hello := utls.HelloChrome_Auto
	if t.profile != nil {
		hello = t.profile.HelloID
	}
	uConn := utls.UClient(raw, &utls.Config{
		ServerName:         serverName,
		InsecureSkipVerify: t.insecure, // #nosec G402 -- operator-controlled
	}, hello)
	if err := uConn.HandshakeContext(ctx); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("tls handshake with %s: %w", addr, err)
	}
	return uConn, nil
}

// dialRaw opens a TCP connection to addr, directly or through proxyURL.
func (t *roundTripper) dialRaw(ctx context.Context, network, addr string, proxyURL *url.URL) (net.Conn, error) {
	d := &net.Dialer{}
	if proxyURL == nil {
		return d.DialContext(ctx, network, addr)
	}

	if isSOCKS(proxyURL) {
		var auth *proxy.Auth
		if u := proxyURL.User; u != nil {
			pass, _ := u.Password()
			auth = &proxy.Auth{User: u.Username(), Password: pass}
		}
		dialer, err := proxy.SOCKS5("tcp", targetAddr(proxyURL), auth, d)
		if err != nil {
			return nil, fmt.Errorf("socks5 proxy: %w", err)
		}
		cd, ok := dialer.(proxy.ContextDialer)
		if !ok {
			return nil, fmt.Errorf("socks5 proxy: dialer does not support context")
		}
		// socks5h lets the proxy resolve the target; socks5 resolves here.
		if proxyURL.Scheme == "socks5" {
			if addr, err = resolveLocal(ctx, addr); err != nil {
				return nil, fmt.Errorf("socks5 proxy: %w", err)
			}
		}
		return cd.DialContext(ctx, network, addr)
	}

	conn, err := d.DialContext(ctx, "tcp", targetAddr(proxyURL))
	if err != nil {
		return nil, fmt.Errorf("dial proxy: %w", err)
	}
	if proxyURL.Scheme == "https" {
		tc := tls.Client(conn, &tls.Config{
			ServerName:         proxyURL.Hostname(),
			InsecureSkipVerify: t.insecure, // #nosec G402 -- operator-controlled
		})
		if err := tc.HandshakeContext(ctx); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("proxy tls handshake: %w", err)
		}
		conn = tc
	}
	if err := connectTunnel(ctx, conn, addr, proxyURL.User); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

// connectTunnel asks an HTTP proxy to open a tunnel to addr.
func connectTunnel(ctx context.Context, conn net.Conn, addr string, user *url.Userinfo) error {
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
		defer func() { _ = conn.SetDeadline(time.Time{}) }()
	}

	req := &http.Request{
		Method: http.MethodConnect,
		URL:    &url.URL{Opaque: addr},
		Host:   addr,
		Header: make(http.Header),
	}
	if user != nil {
		pass, _ := user.Password()
		cred := base64.StdEncoding.EncodeToString([]byte(user.Username() + ":" + pass))
		req.Header.Set("Proxy-Authorization", "Basic "+cred)
	}
	if err := req.Write(conn); err != nil {
		return fmt.Errorf("proxy connect: %w", err)
	}

	resp, err := http.ReadResponse(bufio.NewReader(conn), req)
	if err != nil {
		return fmt.Errorf("proxy connect: %w", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("proxy connect: %s", resp.Status)
	}
	return nil
}

func roundTripH2(req *http.Request, conn net.Conn) (*http.Response, error) {
	tr := &http2.Transport{DisableCompression: true}
	cc, err := tr.NewClientConn(conn)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("h2 client conn: %w", err)
	}

	req = req.Clone(req.Context())
	for _, h := range connectionHeaders {
		req.Header.Del(h)
	}

	resp, err := cc.RoundTrip(req)
	if err != nil {
		_ = cc.Close()
		return nil, err
	}
	resp.Body = &connBody{ReadCloser: resp.Body, closeConn: cc.Close}
	return resp, nil
}

func roundTripH1(req *http.Request, conn net.Conn) (*http.Response, error) {
	stop := context.AfterFunc(req.Context(), func() { _ = conn.Close() })

	req = req.Clone(req.Context())
	req.Close = true
	if err := req.Write(conn); err != nil {
		stop()
		_ = conn.Close()
		return nil, err
	}

	resp, err := http.ReadResponse(bufio.NewReader(conn), req)
	if err != nil {
		stop()
		_ = conn.Close()
		return nil, err
	}
	resp.Body = &connBody{
		ReadCloser: resp.Body,
		closeConn: func() error {
			stop()
			_ = conn.Close()
			return nil
		},
	}
	return resp, nil
}

// connBody releases the underlying connection once the body is closed.
type connBody struct {
	io.ReadCloser
	closeConn func() error
}

func (b *connBody) Close() error {
	err := b.ReadCloser.Close()
	if cerr := b.closeConn(); err == nil {
		err = cerr
	}
	return err
}

// selectProxy picks the proxy for a target scheme, falling back to "all".
func selectProxy(proxies map[string]string, scheme string) (*url.URL, error) {
	raw, ok := proxies[scheme]
	if !ok || raw == "" {
		raw = proxies["all"]
	}
	if raw == "" {
		return nil, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse proxy url: %w", err)
	}
	switch u.Scheme {
	case "http", "https", "socks5", "socks5h":
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProxy, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("proxy url %q has no host", raw)
	}
	return u, nil
}

// resolveLocal replaces the host of addr with one of its IP addresses,
// preferring IPv4.
func resolveLocal(ctx context.Context, addr string) (string, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", err
	}
	if net.ParseIP(host) != nil {
		return addr, nil
	}

	ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", host, err)
	}
	if len(ips) == 0 {
		return "", fmt.Errorf("resolve %s: no addresses", host)
	}
	ip := ips[0].IP
	for _, a := range ips {
		if a.IP.To4() != nil {
			ip = a.IP
			break
		}
	}
	return net.JoinHostPort(ip.String(), port), nil
}

func isSOCKS(u *url.URL) bool {
	return u.Scheme == "socks5" || u.Scheme == "socks5h"
}

// targetAddr returns host:port for u, filling in the scheme's default port.
func targetAddr(u *url.URL) string {
	if port := u.Port(); port != "" {
		return net.JoinHostPort(u.Hostname(), port)
	}
	switch u.Scheme {
	case "https":
		return net.JoinHostPort(u.Hostname(), "443")
	case "socks5", "socks5h":
		return net.JoinHostPort(u.Hostname(), "1080")
	default:
		return net.JoinHostPort(u.Hostname(), "80")
	}
}
