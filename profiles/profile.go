// Package profiles holds the impersonation profiles: the ClientHello,
// TLS parameters, HTTP/2 settings and default headers of a browser or HTTP
// library release.
package profiles

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/kaptinlin/impersonate/alpn"
	"github.com/kaptinlin/impersonate/assemble"
	"github.com/kaptinlin/impersonate/tlsconf"
)

// ErrUnknownProfile is returned by Lookup for names it does not know.
var ErrUnknownProfile = errors.New("profiles: unknown profile")

// Browser is the family a profile belongs to.
type Browser string

// Known browser families.
const (
	Chrome  Browser = "chrome"
	Edge    Browser = "edge"
	Firefox Browser = "firefox"
	Safari  Browser = "safari"
	OkHttp  Browser = "okhttp"
)

// HTTP2Setting is one entry of the SETTINGS frame, in send order.
type HTTP2Setting struct {
	ID  uint16
	Val uint32
}

// HTTP/2 setting identifiers (RFC 9113 section 6.5.2).
const (
	SettingHeaderTableSize      uint16 = 0x1
	SettingEnablePush           uint16 = 0x2
	SettingMaxConcurrentStreams uint16 = 0x3
	SettingInitialWindowSize    uint16 = 0x4
	SettingMaxFrameSize         uint16 = 0x5
	SettingMaxHeaderListSize    uint16 = 0x6
)

// HTTP2 describes the HTTP/2 connection preface of a profile.
type HTTP2 struct {
	Settings          []HTTP2Setting
	ConnectionFlow    uint32
	PseudoHeaderOrder []string
}

func (h HTTP2) clone() HTTP2 {
	h.Settings = slices.Clone(h.Settings)
	h.PseudoHeaderOrder = slices.Clone(h.PseudoHeaderOrder)
	return h
}

// Profile is an impersonation profile. Lookup returns a fresh value on
// every call, so callers may modify it freely.
type Profile struct {
	Name    string
	Browser Browser
	Version string

	// DefaultOS is used when no OS is requested or the requested one is
	// not in OSes.
	DefaultOS OS
	OSes      []OS

	// Hello returns the base ClientHello from fingerprint research.
	Hello      tlsconf.SpecFactory
	MinVersion tlsconf.Version
	MaxVersion tlsconf.Version
	// CertCompression is advertised in this order.
	CertCompression []tlsconf.CertCompressor
	ALPN            alpn.Pref

	PermuteExtensions bool
	ShuffleExtensions bool
	// Shuffle overrides the permutation function. Nil uses the Chromium
	// shuffler.
	Shuffle tlsconf.ShuffleFunc

	ECHGrease           bool
	ApplicationSettings bool

	HeaderOrder []string
	HTTP2       HTTP2

	headers func(OS) []assemble.Field
}

// Steps returns the configurator steps that apply the TLS side of p.
func (p Profile) Steps() []tlsconf.Step {
	steps := []tlsconf.Step{
		tlsconf.WithALPN(p.ALPN),
		tlsconf.WithMinVersion(p.MinVersion),
		tlsconf.WithMaxVersion(p.MaxVersion),
		tlsconf.WithShuffleFunc(p.Shuffle),
		tlsconf.WithPermutation(p.PermuteExtensions, p.ShuffleExtensions),
		tlsconf.WithECHGrease(p.ECHGrease),
		tlsconf.WithApplicationSettings(p.ApplicationSettings),
	}
	for _, c := range p.CertCompression {
		steps = append(steps, tlsconf.WithCertCompression(c))
	}
	return steps
}

// Connector builds the TLS connector of p. The extra steps run after the
// profile ones and may override them.
func (p Profile) Connector(extra ...tlsconf.Step) (*tlsconf.Connector, error) {
	return tlsconf.Build(p.Hello, append(p.Steps(), extra...)...)
}

// ResolveOS returns os when p supports it, else the profile default.
func (p Profile) ResolveOS(os OS) OS {
	if os != 0 && slices.Contains(p.OSes, os) {
		return os
	}
	return p.DefaultOS
}

// DefaultHeaders returns the headers the browser sends on a top-level
// navigation from os.
func (p Profile) DefaultHeaders(os OS) assemble.Header {
	if p.headers == nil {
		return assemble.Header{}
	}
	return assemble.NewHeader(p.headers(p.ResolveOS(os))...)
}

// UserAgent returns the user-agent p sends from os.
func (p Profile) UserAgent(os OS) string {
	h := p.DefaultHeaders(os)
	return h.Get("user-agent")
}

var registry = map[string]func() Profile{
	"chrome_131":          chrome131,
	"chrome_133":          chrome133,
	"edge_131":            edge131,
	"firefox_133":         firefox133,
	"safari_18":           safari18,
	"safari_ios_18":       safariIOS18,
	"okhttp_4_android_13": okhttp4Android13,
}

var aliases = map[string]string{
	"chrome":    "chrome_133",
	"edge":      "edge_131",
	"firefox":   "firefox_133",
	"safari":    "safari_18",
	"safariios": "safari_ios_18",
	"okhttp":    "okhttp_4_android_13",
}

// Lookup returns the profile registered under name. Names are matched
// case-insensitively and "-" or "." may stand in for "_"; family names
// such as "chrome" select the newest release.
func Lookup(name string) (Profile, error) {
	key := strings.NewReplacer("-", "_", ".", "_", " ", "_").Replace(strings.ToLower(strings.TrimSpace(name)))
	if alias, ok := aliases[strings.ReplaceAll(key, "_", "")]; ok {
		key = alias
	}
	build, ok := registry[key]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
	return build(), nil
}

// Names returns the registered profile names in lexical order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
