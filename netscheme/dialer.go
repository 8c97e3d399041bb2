package netscheme

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strconv"
	"time"

	http "github.com/bogdanfinn/fhttp"
	"golang.org/x/net/proxy"

	"github.com/kaptinlin/impersonate/dns"
)

// Dialer opens TCP connections along a Scheme.
type Dialer struct {
	// Resolver resolves target and proxy host names. Nil uses dns.System.
	Resolver dns.Resolver
	// Timeout bounds each TCP connect. Zero means no limit beyond ctx.
	Timeout time.Duration
	// KeepAlive is the TCP keep-alive period.
	KeepAlive time.Duration
}

// DialContext connects to addr ("host:port") along s. Proxied
// connections are tunneled so that the caller always receives a raw byte
// stream to addr.
func (d *Dialer) DialContext(ctx context.Context, s Scheme, network, addr string) (net.Conn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}

	p := s.ProxyFor(host)
	if p == nil {
		return d.dialDirect(ctx, s, network, addr)
	}
	switch p.Scheme {
	case "http", "https":
		return d.dialConnect(ctx, s, p, addr)
	case "socks5", "socks5h":
		return d.dialSOCKS5(ctx, s, p, network, addr)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, p.Scheme)
	}
}

func (d *Dialer) resolver() dns.Resolver {
	if d.Resolver == nil {
		return dns.System()
	}
	return d.Resolver
}

func (d *Dialer) netDialer(s Scheme) *net.Dialer {
	nd := &net.Dialer{
		Timeout:   d.Timeout,
		KeepAlive: d.KeepAlive,
	}
	if s.LocalAddr.IsValid() {
		nd.LocalAddr = &net.TCPAddr{IP: s.LocalAddr.AsSlice()}
	}
	if s.Interface != "" {
		bindInterface(nd, s.Interface)
	}
	return nd
}

// dialDirect resolves addr and tries each address in turn.
func (d *Dialer) dialDirect(ctx context.Context, s Scheme, network, addr string) (net.Conn, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return nil, fmt.Errorf("netscheme: invalid port %q: %w", portStr, err)
	}

	addrs, err := d.lookup(ctx, host)
	if err != nil {
		return nil, err
	}
	addrs = filterFamily(addrs, network, s.LocalAddr)
	if len(addrs) == 0 {
		return nil, fmt.Errorf("%w: %s has no usable %s address", dns.ErrNotFound, host, network)
	}

	nd := d.netDialer(s)
	var errs []error
	for _, ip := range addrs {
		conn, err := nd.DialContext(ctx, "tcp", netip.AddrPortFrom(ip, uint16(port)).String())
		if err == nil {
			return conn, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, errors.Join(errs...)
}

func (d *Dialer) lookup(ctx context.Context, host string) ([]netip.Addr, error) {
	if ip, err := netip.ParseAddr(host); err == nil {
		return []netip.Addr{ip.Unmap()}, nil
	}
	return d.resolver().Resolve(ctx, host)
}

// filterFamily keeps the addresses reachable from local, and the ones
// matching a "tcp4" or "tcp6" network.
func filterFamily(addrs []netip.Addr, network string, local netip.Addr) []netip.Addr {
	out := addrs[:0:0]
	for _, a := range addrs {
		switch {
		case network == "tcp4" && !a.Is4():
		case network == "tcp6" && !a.Is6():
		case local.IsValid() && local.Is4() != a.Is4():
		default:
			out = append(out, a)
		}
	}
	return out
}

func (d *Dialer) dialConnect(ctx context.Context, s Scheme, p *url.URL, addr string) (net.Conn, error) {
	conn, err := d.dialDirect(ctx, s, "tcp", proxyAddr(p))
	if err != nil {
		return nil, fmt.Errorf("netscheme: connect to proxy: %w", err)
	}
	if p.Scheme == "https" {
		tlsConn := tls.Client(conn, &tls.Config{ServerName: p.Hostname(), MinVersion: tls.VersionTLS12})
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close() //nolint:errcheck
			return nil, fmt.Errorf("netscheme: proxy tls: %w", err)
		}
		conn = tlsConn
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
		defer conn.SetDeadline(time.Time{}) //nolint:errcheck
	}

	req := &http.Request{
		Method: http.MethodConnect,
		URL:    &url.URL{Opaque: addr},
		Host:   addr,
		Header: make(http.Header),
	}
	if p.User != nil {
		password, _ := p.User.Password()
		cred := base64.StdEncoding.EncodeToString([]byte(p.User.Username() + ":" + password))
		req.Header.Set("Proxy-Authorization", "Basic "+cred)
	}
	if err := req.Write(conn); err != nil {
		conn.Close() //nolint:errcheck
		return nil, fmt.Errorf("netscheme: write CONNECT: %w", err)
	}

	br := bufio.NewReader(conn)
	resp, err := http.ReadResponse(br, req)
	if err != nil {
		conn.Close() //nolint:errcheck
		return nil, fmt.Errorf("netscheme: read CONNECT response: %w", err)
	}
	resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusOK {
		conn.Close() //nolint:errcheck
		return nil, fmt.Errorf("%w: %s", ErrProxyConnect, resp.Status)
	}

	if br.Buffered() > 0 {
		return &bufferedConn{Conn: conn, r: br}, nil
	}
	return conn, nil
}

func (d *Dialer) dialSOCKS5(ctx context.Context, s Scheme, p *url.URL, network, addr string) (net.Conn, error) {
	var auth *proxy.Auth
	if p.User != nil {
		password, _ := p.User.Password()
		auth = &proxy.Auth{User: p.User.Username(), Password: password}
	}

	// socks5 resolves the target locally, socks5h leaves it to the proxy.
	target := addr
	if p.Scheme == "socks5" {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}
		addrs, err := d.lookup(ctx, host)
		if err != nil {
			return nil, err
		}
		target = net.JoinHostPort(addrs[0].String(), port)
	}

	socks, err := proxy.SOCKS5("tcp", proxyAddr(p), auth, forwardDialer{d: d, s: s})
	if err != nil {
		return nil, fmt.Errorf("netscheme: socks5 dialer: %w", err)
	}
	cd, ok := socks.(proxy.ContextDialer)
	if !ok {
		return socks.Dial(network, target)
	}
	conn, err := cd.DialContext(ctx, network, target)
	if err != nil {
		return nil, fmt.Errorf("netscheme: socks5 connect: %w", err)
	}
	return conn, nil
}

// forwardDialer reaches the SOCKS proxy itself along the scheme.
type forwardDialer struct {
	d *Dialer
	s Scheme
}

func (f forwardDialer) Dial(network, addr string) (net.Conn, error) {
	return f.DialContext(context.Background(), network, addr)
}

func (f forwardDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	return f.d.dialDirect(ctx, f.s, network, addr)
}

// bufferedConn serves bytes the proxy sent after its CONNECT response.
type bufferedConn struct {
	net.Conn
	r *bufio.Reader
}

func (c *bufferedConn) Read(p []byte) (int, error) {
	return c.r.Read(p)
}
