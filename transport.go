package impersonate

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	http "github.com/bogdanfinn/fhttp"
	"github.com/bogdanfinn/fhttp/http2"
	butls "github.com/bogdanfinn/utls"

	"github.com/kaptinlin/impersonate/alpn"
	"github.com/kaptinlin/impersonate/netscheme"
	"github.com/kaptinlin/impersonate/profiles"
	"github.com/kaptinlin/impersonate/tlsconf"
)

type prefKey struct{}

// withPref attaches the per-request version preference to ctx.
func withPref(ctx context.Context, p alpn.Pref) context.Context {
	if !p.Valid() {
		return ctx
	}
	return context.WithValue(ctx, prefKey{}, p)
}

func prefFrom(ctx context.Context) (alpn.Pref, bool) {
	p, ok := ctx.Value(prefKey{}).(alpn.Pref)
	return p, ok
}

// TransportOptions are the connection limits shared by every route.
type TransportOptions struct {
	DialTimeout           time.Duration
	TLSHandshakeTimeout   time.Duration
	ResponseHeaderTimeout time.Duration
	IdleConnTimeout       time.Duration
	MaxIdleConns          int
	MaxIdleConnsPerHost   int
	MaxConnsPerHost       int
}

// Transport is a http.RoundTripper that dials through a network scheme
// and handshakes with an impersonated ClientHello. Requests pick the
// scheme and version preference from their context.
type Transport struct {
	connector *tlsconf.Connector
	dialer    *netscheme.Dialer
	h2        profiles.HTTP2
	opts      TransportOptions
	logger    Logger

	mu     sync.Mutex
	routes map[routeKey]*route

	// host:port pairs that answered http/1.1 to an offer of both
	h1Only sync.Map
}

type routeKey struct {
	scheme string
	pref   alpn.Pref
}

type route struct {
	h1 *http.Transport
	h2 *http2.Transport
}

// NewTransport returns a Transport over connector and dialer. h2 holds the
// HTTP/2 connection preface of the impersonated client.
func NewTransport(connector *tlsconf.Connector, dialer *netscheme.Dialer, h2 profiles.HTTP2, opts TransportOptions, logger Logger) *Transport {
	return &Transport{
		connector: connector,
		dialer:    dialer,
		h2:        h2,
		opts:      opts,
		logger:    logger,
		routes:    make(map[routeKey]*route),
	}
}

// Connector returns the TLS connector of every handshake.
func (t *Transport) Connector() *tlsconf.Connector {
	return t.connector
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	scheme, _ := netscheme.FromContext(ctx)
	pref, ok := prefFrom(ctx)
	if !ok {
		pref = t.connector.ALPN()
	}
	pref = pref.OrDefault(alpn.Default)
	rt := t.route(scheme, pref)

	if req.URL.Scheme != "https" || pref == alpn.Http1 {
		return rt.h1.RoundTrip(req)
	}
	if pref == alpn.Both {
		if _, ok := t.h1Only.Load(canonicalAddr(req)); ok {
			return rt.h1.RoundTrip(req)
		}
	}

	resp, err := rt.h2.RoundTrip(h2Request(req))
	if err == nil {
		return resp, nil
	}
	if !errors.Is(err, ErrALPNMismatch) {
		if _, ok := t.h1Only.Load(canonicalAddr(req)); !ok {
			return nil, err
		}
	}
	if pref == alpn.Http2 {
		return nil, fmt.Errorf("%w: %s", ErrHTTP2Required, req.URL.Host)
	}

	if t.logger != nil {
		t.logger.Debugf("%s negotiated http/1.1, falling back", req.URL.Host)
	}
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		req = req.Clone(ctx)
		req.Body = body
	}
	return rt.h1.RoundTrip(req)
}

// h2Request adapts a suppressed user-agent for the http2 encoder, which
// skips empty fields before noting the name and then adds its default.
// A single empty value is omitted without the default.
func h2Request(req *http.Request) *http.Request {
	if vv, ok := req.Header["User-Agent"]; !ok || len(vv) > 0 {
		return req
	}
	out := req.Clone(req.Context())
	out.Header["User-Agent"] = []string{""}
	return out
}

// CloseIdleConnections closes idle connections of every route.
func (t *Transport) CloseIdleConnections() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, rt := range t.routes {
		rt.h1.CloseIdleConnections()
		rt.h2.CloseIdleConnections()
	}
}

func (t *Transport) route(s netscheme.Scheme, pref alpn.Pref) *route {
	key := routeKey{scheme: s.Key(), pref: pref}

	t.mu.Lock()
	defer t.mu.Unlock()
	if rt, ok := t.routes[key]; ok {
		return rt
	}
	rt := &route{
		h1: t.newHTTP1(s, pref),
		h2: t.newHTTP2(s, pref),
	}
	t.routes[key] = rt
	return rt
}

func (t *Transport) newHTTP1(s netscheme.Scheme, pref alpn.Pref) *http.Transport {
	return &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return t.dialer.DialContext(ctx, s, network, addr)
		},
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, proto, err := t.dialTLS(ctx, s, network, addr, pref)
			if err != nil {
				return nil, err
			}
			if proto == alpn.ProtoHTTP2 {
				conn.Close() //nolint:errcheck
				return nil, fmt.Errorf("%w: %s offered h2 on an http/1.1 connection", ErrALPNMismatch, addr)
			}
			return conn, nil
		},
		DisableCompression:    true,
		TLSHandshakeTimeout:   t.opts.TLSHandshakeTimeout,
		ResponseHeaderTimeout: t.opts.ResponseHeaderTimeout,
		IdleConnTimeout:       t.opts.IdleConnTimeout,
		MaxIdleConns:          t.opts.MaxIdleConns,
		MaxIdleConnsPerHost:   t.opts.MaxIdleConnsPerHost,
		MaxConnsPerHost:       t.opts.MaxConnsPerHost,
	}
}

func (t *Transport) newHTTP2(s netscheme.Scheme, pref alpn.Pref) *http2.Transport {
	settings := make(map[http2.SettingID]uint32, len(t.h2.Settings))
	order := make([]http2.SettingID, 0, len(t.h2.Settings))
	for _, st := range t.h2.Settings {
		id := http2.SettingID(st.ID)
		settings[id] = st.Val
		order = append(order, id)
	}

	return &http2.Transport{
		// fhttp's http2 pool dials without the request, so request
		// cancellation does not reach this dial. The dial and handshake
		// timeouts bound it instead.
		DialTLS: func(network, addr string, _ *butls.Config) (net.Conn, error) {
			ctx := context.Background()
			if limit := t.opts.DialTimeout + t.opts.TLSHandshakeTimeout; limit > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, limit)
				defer cancel()
			}
			conn, proto, err := t.dialTLS(ctx, s, network, addr, pref)
			if err != nil {
				return nil, err
			}
			if proto != alpn.ProtoHTTP2 {
				conn.Close() //nolint:errcheck
				t.h1Only.Store(addr, struct{}{})
				return nil, fmt.Errorf("%w: %s negotiated %q", ErrALPNMismatch, addr, proto)
			}
			return conn, nil
		},
		Settings:           settings,
		SettingsOrder:      order,
		PseudoHeaderOrder:  t.h2.PseudoHeaderOrder,
		ConnectionFlow:     t.h2.ConnectionFlow,
		DisableCompression: true,
		IdleConnTimeout:    t.opts.IdleConnTimeout,
	}
}

// dialTLS connects along s and runs an impersonated handshake. The
// returned protocol is the one the server selected.
func (t *Transport) dialTLS(ctx context.Context, s netscheme.Scheme, network, addr string, pref alpn.Pref) (net.Conn, string, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, "", err
	}
	conn, err := t.dialer.DialContext(ctx, s, network, addr)
	if err != nil {
		return nil, "", err
	}

	opts := tlsconf.HandshakeOptions{ServerName: host}
	if pref != t.connector.ALPN() {
		opts.ALPN = pref
	}
	if t.opts.TLSHandshakeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.opts.TLSHandshakeTimeout)
		defer cancel()
	}
	uconn, err := t.connector.Handshake(ctx, conn, opts)
	if err != nil {
		return nil, "", err
	}
	return uconn, uconn.ConnectionState().NegotiatedProtocol, nil
}

// canonicalAddr returns the host:port the transports dial for req.
func canonicalAddr(req *http.Request) string {
	host := req.URL.Hostname()
	port := req.URL.Port()
	if port == "" {
		port = "443"
		if req.URL.Scheme == "http" {
			port = "80"
		}
	}
	return net.JoinHostPort(host, port)
}
