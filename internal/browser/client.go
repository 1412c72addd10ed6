// Package browser builds outbound HTTP clients that present themselves as a
// desktop Chrome browser: request headers, cookie handling and, optionally,
// the TLS ClientHello.
//
// Several upstreams sit behind anti-bot gateways that reject Go's default TLS
// fingerprint before any HTTP is exchanged. With fingerprinting enabled the
// client dials through uTLS using the Chrome 120 hello, learns per host which
// protocol the server picks from Chrome's ALPN offer, and routes the request
// to an HTTP/2 or an HTTP/1.1 transport accordingly. Requests are never
// re-sent on another transport.
package browser

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
	"golang.org/x/net/publicsuffix"
)

// DefaultUserAgent is the Chrome identity used when none is configured.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

const dialTimeout = 15 * time.Second

// Options configures NewClient.
type Options struct {
	// Timeout bounds the whole exchange including the body. Zero means none,
	// which is what streaming callers want.
	Timeout time.Duration
	// Fingerprint enables the uTLS Chrome ClientHello for https requests.
	Fingerprint bool
}

// NewClient returns an http.Client with a public-suffix aware cookie jar and,
// when requested, the Chrome TLS fingerprint transport.
func NewClient(opts Options) *http.Client {
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})

	var transport http.RoundTripper = http.DefaultTransport.(*http.Transport).Clone()
	if opts.Fingerprint {
		transport = NewFingerprintTransport()
	}

	return &http.Client{
		Timeout:   opts.Timeout,
		Transport: transport,
		Jar:       jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("too many redirects")
			}
			for key, values := range via[0].Header {
				if _, ok := req.Header[key]; ok {
					continue
				}
				req.Header[key] = append([]string(nil), values...)
			}
			return nil
		},
	}
}

// ApplyHeaders sets the browser header set on req. Callers add Referer/Origin
// themselves when the upstream checks them.
func ApplyHeaders(req *http.Request, userAgent string) {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json,text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("DNT", "1")
	req.Header.Set("Cache-Control", "no-cache")
}

// FingerprintTransport dispatches https requests to HTTP/2 or HTTP/1.1 based
// on the protocol each host negotiated for Chrome's ALPN offer.
type FingerprintTransport struct {
	plain *http.Transport
	h1    *http.Transport
	h2    *http2.Transport

	mu     sync.Mutex
	protos map[string]string
}

func NewFingerprintTransport() *FingerprintTransport {
	t := &FingerprintTransport{
		plain:  http.DefaultTransport.(*http.Transport).Clone(),
		protos: make(map[string]string),
	}
	t.h1 = &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialTLSContext:        dialChromeH1,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: 60 * time.Second,
	}
	t.h2 = &http2.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
			return dialChrome(ctx, network, addr)
		},
	}
	return t
}

func (t *FingerprintTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme != "https" {
		return t.plain.RoundTrip(req)
	}
	proto, err := t.protocolFor(req.Context(), canonicalAddr(req.URL))
	if err != nil {
		return nil, err
	}
	if proto == http2.NextProtoTLS {
		return t.h2.RoundTrip(req)
	}
	return t.h1.RoundTrip(req)
}

// CloseIdleConnections releases pooled connections of every inner transport.
func (t *FingerprintTransport) CloseIdleConnections() {
	t.plain.CloseIdleConnections()
	t.h1.CloseIdleConnections()
	t.h2.CloseIdleConnections()
}

// protocolFor performs one Chrome handshake per host to learn the ALPN result.
func (t *FingerprintTransport) protocolFor(ctx context.Context, addr string) (string, error) {
	t.mu.Lock()
	proto, ok := t.protos[addr]
	t.mu.Unlock()
	if ok {
		return proto, nil
	}

	conn, err := dialChrome(ctx, "tcp", addr)
	if err != nil {
		return "", err
	}
	proto = conn.ConnectionState().NegotiatedProtocol
	conn.Close()

	t.mu.Lock()
	t.protos[addr] = proto
	t.mu.Unlock()
	return proto, nil
}

// dialChrome opens a TLS connection with the stock Chrome 120 hello, which
// offers both h2 and http/1.1.
func dialChrome(ctx context.Context, network, addr string) (*utls.UConn, error) {
	raw, host, err := dialRaw(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	conn := utls.UClient(raw, &utls.Config{ServerName: host, MinVersion: tls.VersionTLS12}, utls.HelloChrome_120)
	if err := conn.HandshakeContext(ctx); err != nil {
		raw.Close()
		return nil, fmt.Errorf("tls handshake %s: %w", addr, err)
	}
	return conn, nil
}

// dialChromeH1 opens a TLS connection with the Chrome 120 hello rewritten to
// offer http/1.1 only. The preset ignores Config.NextProtos, so the ALPN
// extension of the ClientHelloSpec is edited in place.
func dialChromeH1(ctx context.Context, network, addr string) (net.Conn, error) {
	spec, err := utls.UTLSIdToSpec(utls.HelloChrome_120)
	if err != nil {
		return nil, fmt.Errorf("chrome hello spec: %w", err)
	}
	for _, ext := range spec.Extensions {
		switch e := ext.(type) {
		case *utls.ALPNExtension:
			e.AlpnProtocols = []string{"http/1.1"}
		case *utls.ApplicationSettingsExtension:
			e.SupportedProtocols = []string{"http/1.1"}
		}
	}

	raw, host, err := dialRaw(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	conn := utls.UClient(raw, &utls.Config{ServerName: host, MinVersion: tls.VersionTLS12}, utls.HelloCustom)
	if err := conn.ApplyPreset(&spec); err != nil {
		raw.Close()
		return nil, fmt.Errorf("apply chrome hello: %w", err)
	}
	if err := conn.HandshakeContext(ctx); err != nil {
		raw.Close()
		return nil, fmt.Errorf("tls handshake %s: %w", addr, err)
	}
	return conn, nil
}

func dialRaw(ctx context.Context, network, addr string) (net.Conn, string, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	dialer := &net.Dialer{Timeout: dialTimeout, KeepAlive: 30 * time.Second}
	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, "", err
	}
	return conn, host, nil
}

func canonicalAddr(u *url.URL) string {
	port := u.Port()
	if port == "" {
		port = "443"
	}
	return net.JoinHostPort(u.Hostname(), port)
}
