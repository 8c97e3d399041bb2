package dns

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"time"

	mdns "github.com/miekg/dns"
)

// ErrNoServers is returned by a Server resolver without upstream addresses.
var ErrNoServers = errors.New("dns: no upstream servers configured")

// Server resolves names by querying explicit DNS servers for A and AAAA
// records. Servers are tried in order until one answers.
type Server struct {
	addrs  []string
	client *mdns.Client
}

// NewServer returns a resolver querying addrs ("host:port") over UDP. A
// zero timeout uses the miekg/dns default.
func NewServer(timeout time.Duration, addrs ...string) *Server {
	return &Server{
		addrs:  append([]string(nil), addrs...),
		client: &mdns.Client{Net: "udp", Timeout: timeout},
	}
}

// Resolve implements Resolver. IPv4 addresses come before IPv6 ones.
func (s *Server) Resolve(ctx context.Context, name string) ([]netip.Addr, error) {
	if addr, err := netip.ParseAddr(name); err == nil {
		return []netip.Addr{addr}, nil
	}
	if len(s.addrs) == 0 {
		return nil, ErrNoServers
	}

	var lastErr error
	for _, server := range s.addrs {
		var addrs []netip.Addr
		answered := false
		for _, qtype := range []uint16{mdns.TypeA, mdns.TypeAAAA} {
			found, err := s.query(ctx, server, name, qtype)
			if err != nil {
				lastErr = err
				continue
			}
			answered = true
			addrs = append(addrs, found...)
		}
		if len(addrs) > 0 {
			return addrs, nil
		}
		if answered {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
	}
	return nil, lastErr
}

func (s *Server) query(ctx context.Context, server, name string, qtype uint16) ([]netip.Addr, error) {
	msg := new(mdns.Msg)
	msg.SetQuestion(mdns.Fqdn(name), qtype)
	msg.RecursionDesired = true

	in, _, err := s.client.ExchangeContext(ctx, msg, server)
	if err != nil {
		return nil, fmt.Errorf("dns: query %s %s: %w", server, mdns.TypeToString[qtype], err)
	}
	if in.Rcode != mdns.RcodeSuccess && in.Rcode != mdns.RcodeNameError {
		return nil, fmt.Errorf("dns: query %s %s: %s", server, mdns.TypeToString[qtype], mdns.RcodeToString[in.Rcode])
	}

	var addrs []netip.Addr
	for _, rr := range in.Answer {
		var raw []byte
		switch rr := rr.(type) {
		case *mdns.A:
			raw = rr.A
		case *mdns.AAAA:
			raw = rr.AAAA
		default:
			continue
		}
		if addr, ok := netip.AddrFromSlice(raw); ok {
			addrs = append(addrs, addr.Unmap())
		}
	}
	return addrs, nil
}
