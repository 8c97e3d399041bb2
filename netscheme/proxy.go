package netscheme

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strings"
)

var (
	// ErrUnsupportedScheme is returned for proxy URLs with an unknown scheme.
	ErrUnsupportedScheme = errors.New("netscheme: unsupported proxy scheme")
	// ErrNoProxies is returned when a proxy list is empty.
	ErrNoProxies = errors.New("netscheme: no proxies provided")
	// ErrProxyConnect is returned when a proxy refuses a CONNECT tunnel.
	ErrProxyConnect = errors.New("netscheme: proxy connect failed")
)

// NoProxy holds parsed bypass rules for proxy exclusion.
type NoProxy struct {
	domains  []string
	addrs    []netip.Addr
	prefixes []netip.Prefix
	wildcard bool
}

// ParseNoProxy parses a comma-separated NO_PROXY string. Entries are
// domain names (a leading dot matches subdomains only), IP addresses,
// CIDR prefixes, or "*" to bypass everything.
func ParseNoProxy(bypass string) *NoProxy {
	np := &NoProxy{}
	for entry := range strings.SplitSeq(bypass, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if entry == "*" {
			np.wildcard = true
			return np
		}
		if prefix, err := netip.ParsePrefix(entry); err == nil {
			np.prefixes = append(np.prefixes, prefix.Masked())
			continue
		}
		if addr, err := netip.ParseAddr(entry); err == nil {
			np.addrs = append(np.addrs, addr.Unmap())
			continue
		}
		np.domains = append(np.domains, strings.ToLower(entry))
	}
	return np
}

// Matches reports whether host, with or without a port, is bypassed.
func (np *NoProxy) Matches(host string) bool {
	if np == nil {
		return false
	}
	if np.wildcard {
		return true
	}

	hostname := host
	if h, _, err := net.SplitHostPort(host); err == nil {
		hostname = h
	}
	hostname = strings.ToLower(strings.Trim(hostname, "[]"))

	if addr, err := netip.ParseAddr(hostname); err == nil {
		addr = addr.Unmap()
		for _, a := range np.addrs {
			if a == addr {
				return true
			}
		}
		for _, p := range np.prefixes {
			if p.Contains(addr) {
				return true
			}
		}
		return false
	}

	for _, d := range np.domains {
		if strings.HasPrefix(d, ".") {
			if strings.HasSuffix(hostname, d) {
				return true
			}
			continue
		}
		if hostname == d || strings.HasSuffix(hostname, "."+d) {
			return true
		}
	}
	return false
}

// VerifyProxy parses a proxy URL and checks its scheme.
func VerifyProxy(proxyURL string) (*url.URL, error) {
	u, err := url.Parse(proxyURL)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "http", "https", "socks5", "socks5h":
		if u.Host == "" {
			return nil, fmt.Errorf("%w: missing host in %q", ErrUnsupportedScheme, proxyURL)
		}
		return u, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, u.Scheme)
	}
}

func proxyAddr(u *url.URL) string {
	if u.Port() != "" {
		return u.Host
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
