// Package dns provides the name resolution capability used by the dialer:
// the system resolver, a resolver talking to explicit DNS servers, and an
// override map consulted before either.
package dns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"
)

// ErrNotFound is returned when a name resolves to no addresses.
var ErrNotFound = errors.New("dns: no addresses found")

// Resolver turns a host name into IP addresses.
type Resolver interface {
	Resolve(ctx context.Context, name string) ([]netip.Addr, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, name string) ([]netip.Addr, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context, name string) ([]netip.Addr, error) {
	return f(ctx, name)
}

type systemResolver struct {
	r *net.Resolver
}

// System returns a resolver backed by the operating system.
func System() Resolver {
	return systemResolver{r: net.DefaultResolver}
}

func (s systemResolver) Resolve(ctx context.Context, name string) ([]netip.Addr, error) {
	addrs, err := s.r.LookupNetIP(ctx, "ip", name)
	if err != nil {
		return nil, err
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	for i, a := range addrs {
		addrs[i] = a.Unmap()
	}
	return addrs, nil
}

type overrideResolver struct {
	next      Resolver
	overrides map[string][]netip.Addr
}

// WithOverrides returns a resolver that answers names present in overrides
// from the map and delegates everything else to next. Names match
// case-insensitively and ignore a trailing dot. A nil next resolves
// through System.
func WithOverrides(next Resolver, overrides map[string][]netip.Addr) Resolver {
	if next == nil {
		next = System()
	}
	if len(overrides) == 0 {
		return next
	}
	m := make(map[string][]netip.Addr, len(overrides))
	for name, addrs := range overrides {
		m[normalize(name)] = append([]netip.Addr(nil), addrs...)
	}
	return overrideResolver{next: next, overrides: m}
}

func (o overrideResolver) Resolve(ctx context.Context, name string) ([]netip.Addr, error) {
	if addrs, ok := o.overrides[normalize(name)]; ok && len(addrs) > 0 {
		return append([]netip.Addr(nil), addrs...), nil
	}
	return o.next.Resolve(ctx, name)
}

// ParseOverrides converts a name to address-strings map, as found in
// configuration files, into an override map.
func ParseOverrides(in map[string][]string) (map[string][]netip.Addr, error) {
	out := make(map[string][]netip.Addr, len(in))
	for name, raw := range in {
		for _, s := range raw {
			addr, err := netip.ParseAddr(strings.TrimSpace(s))
			if err != nil {
				return nil, fmt.Errorf("dns: override %s: %w", name, err)
			}
			out[name] = append(out[name], addr)
		}
	}
	return out, nil
}

func normalize(name string) string {
	return strings.TrimSuffix(strings.ToLower(name), ".")
}
