// Package netscheme describes the egress path of a connection: local
// address, network interface, proxy and proxy bypass list. It also
// provides the dialer that realizes a scheme.
package netscheme

import (
	"context"
	"errors"
	"math/rand/v2"
	"net/netip"
	"net/url"
	"strings"
	"sync/atomic"
)

// ErrNoSchemes is returned when a rotating selector is built from nothing.
var ErrNoSchemes = errors.New("netscheme: no network schemes")

// Scheme is an opaque egress descriptor. The zero value dials directly
// from the default interface.
type Scheme struct {
	// LocalAddr binds outgoing connections to a source address.
	LocalAddr netip.Addr
	// Interface binds outgoing connections to a network device.
	Interface string
	// Proxy tunnels connections through an http, https, socks5 or
	// socks5h proxy.
	Proxy *url.URL
	// NoProxy is a comma-separated bypass list with NO_PROXY semantics.
	NoProxy string
}

// Key identifies schemes that can share pooled connections.
func (s Scheme) Key() string {
	var b strings.Builder
	if s.LocalAddr.IsValid() {
		b.WriteString(s.LocalAddr.String())
	}
	b.WriteByte('|')
	b.WriteString(s.Interface)
	b.WriteByte('|')
	if s.Proxy != nil {
		b.WriteString(s.Proxy.String())
	}
	b.WriteByte('|')
	b.WriteString(s.NoProxy)
	return b.String()
}

// IsDirect reports whether s uses no proxy.
func (s Scheme) IsDirect() bool {
	return s.Proxy == nil
}

// ProxyFor returns the proxy to use for host, or nil when the scheme is
// direct or host is on the bypass list.
func (s Scheme) ProxyFor(host string) *url.URL {
	if s.Proxy == nil {
		return nil
	}
	if s.NoProxy != "" && ParseNoProxy(s.NoProxy).Matches(host) {
		return nil
	}
	return s.Proxy
}

// Selector picks the scheme for a send attempt. Attempts are numbered
// from zero; retries of one request pass increasing numbers.
type Selector func(attempt int) Scheme

// Static always selects s.
func Static(s Scheme) Selector {
	return func(int) Scheme { return s }
}

// RoundRobin cycles through schemes, one step per call. Safe for
// concurrent use.
func RoundRobin(schemes ...Scheme) (Selector, error) {
	if len(schemes) == 0 {
		return nil, ErrNoSchemes
	}
	schemes = append([]Scheme(nil), schemes...)
	n := uint64(len(schemes))
	var counter atomic.Uint64
	return func(int) Scheme {
		idx := counter.Add(1) - 1
		return schemes[idx%n]
	}, nil
}

// Random picks a random scheme on every call. Safe for concurrent use.
func Random(schemes ...Scheme) (Selector, error) {
	if len(schemes) == 0 {
		return nil, ErrNoSchemes
	}
	schemes = append([]Scheme(nil), schemes...)
	return func(int) Scheme {
		return schemes[rand.IntN(len(schemes))]
	}, nil
}

// FromProxies builds one scheme per proxy URL sharing base's local
// address, interface and bypass list.
func FromProxies(base Scheme, proxyURLs ...string) ([]Scheme, error) {
	if len(proxyURLs) == 0 {
		return nil, ErrNoProxies
	}
	schemes := make([]Scheme, len(proxyURLs))
	for i, raw := range proxyURLs {
		u, err := VerifyProxy(raw)
		if err != nil {
			return nil, err
		}
		s := base
		s.Proxy = u
		schemes[i] = s
	}
	return schemes, nil
}

type ctxKey struct{}

// NewContext returns a context carrying s for the dialer.
func NewContext(ctx context.Context, s Scheme) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the scheme stored in ctx, if any.
func FromContext(ctx context.Context) (Scheme, bool) {
	s, ok := ctx.Value(ctxKey{}).(Scheme)
	return s, ok
}
