// Package tlsconf builds the TLS connector template of an impersonation
// profile and derives a fresh ClientHello for every handshake.
//
// A connector is assembled once from a ClientHello factory and an ordered
// list of steps:
//
//	conn, err := tlsconf.Build(factory,
//		tlsconf.WithVerification(true),
//		tlsconf.WithALPN(alpn.Both),
//		tlsconf.WithCertCompression(tlsconf.Brotli()),
//		tlsconf.WithNativeRoots(tlsconf.SystemRoots()),
//	)
//
// The result is immutable and safe for concurrent handshakes.
package tlsconf

import (
	"crypto/x509"
	"fmt"
	"slices"

	utls "github.com/refraction-networking/utls"

	"github.com/kaptinlin/impersonate/alpn"
)

// SpecFactory returns a fresh base ClientHello. Every call must return
// new extension values: attempts mutate them.
type SpecFactory func() (utls.ClientHelloSpec, error)

// ShuffleFunc permutes a ClientHello extension list.
type ShuffleFunc func([]utls.TLSExtension) []utls.TLSExtension

// Logger receives debug output from the configurator.
type Logger interface {
	Debugf(format string, v ...any)
}

// Template is the value threaded through the configuration steps.
type Template struct {
	factory     SpecFactory
	skipVerify  bool
	alpnWire    []byte
	alpnProtos  []string
	alpnPref    alpn.Pref
	minVersion  Version
	maxVersion  Version
	compressors []CertCompressor
	roots       *x509.CertPool
	customRoots bool
	permute     bool
	shuffle     bool
	shuffleFn   ShuffleFunc
	echGrease   bool
	alps        bool
	logger      Logger
}

// Step transforms a template. A failing step aborts Build.
type Step func(Template) (Template, error)

// Connector is a finished, read-only TLS connector template.
type Connector struct {
	t Template
}

// Build runs steps in order over a template seeded with the defaults of
// the engine: verification on, ALPN h2+http/1.1, no version bounds, no
// certificate compression and no custom trust store.
func Build(factory SpecFactory, steps ...Step) (*Connector, error) {
	if factory == nil {
		return nil, ErrNoSpecFactory
	}
	t := Template{
		factory:   factory,
		shuffleFn: utls.ShuffleChromeTLSExtensions,
	}
	t, err := WithALPN(alpn.Default)(t)
	if err != nil {
		return nil, err
	}
	for _, step := range steps {
		if step == nil {
			continue
		}
		if t, err = step(t); err != nil {
			return nil, err
		}
	}
	if t.minVersion.IsSet() && t.maxVersion.IsSet() && t.minVersion > t.maxVersion {
		return nil, fmt.Errorf("%w: min %s above max %s", ErrVersionRange, t.minVersion, t.maxVersion)
	}
	return &Connector{t: t}, nil
}

// WithVerification toggles certificate chain and hostname verification.
// Disabled skips every check.
func WithVerification(enabled bool) Step {
	return func(t Template) (Template, error) {
		t.skipVerify = !enabled
		return t, nil
	}
}

// WithALPN advertises the protocols of pref.
func WithALPN(pref alpn.Pref) Step {
	return func(t Template) (Template, error) {
		t, err := WithALPNBytes(alpn.Encode(pref))(t)
		if err != nil {
			return t, err
		}
		t.alpnPref = pref.OrDefault(alpn.Default)
		return t, nil
	}
}

// WithALPNBytes advertises a raw length-prefixed ALPN list.
func WithALPNBytes(raw []byte) Step {
	return func(t Template) (Template, error) {
		protos, err := alpn.Decode(raw)
		if err != nil {
			return t, fmt.Errorf("%w: %w", ErrALPN, err)
		}
		t.alpnWire = slices.Clone(raw)
		t.alpnProtos = protos
		if pref, ok := alpn.Parse(protos); ok {
			t.alpnPref = pref
		} else {
			t.alpnPref = 0
		}
		return t, nil
	}
}

// WithMinVersion sets the lowest TLS version offered. Unset is a no-op.
func WithMinVersion(v Version) Step {
	return func(t Template) (Template, error) {
		if !v.IsSet() {
			return t, nil
		}
		t.minVersion = v
		return t, nil
	}
}

// WithMaxVersion sets the highest TLS version offered. Unset is a no-op.
func WithMaxVersion(v Version) Step {
	return func(t Template) (Template, error) {
		if !v.IsSet() {
			return t, nil
		}
		t.maxVersion = v
		return t, nil
	}
}

// WithCertCompression registers a certificate compression algorithm.
// Algorithms are advertised in registration order.
func WithCertCompression(c CertCompressor) Step {
	return func(t Template) (Template, error) {
		if c.Compress == nil || c.Decompress == nil {
			return t, fmt.Errorf("%w: algorithm %d", ErrNilCompression, c.ID)
		}
		for _, existing := range t.compressors {
			if existing.ID == c.ID {
				return t, fmt.Errorf("%w: algorithm %d", ErrDuplicateCompression, c.ID)
			}
		}
		t.compressors = append(slices.Clone(t.compressors), c)
		return t, nil
	}
}

// WithTrustStore replaces the default trust anchors with pool. A nil pool
// is a no-op.
func WithTrustStore(pool *x509.CertPool) Step {
	return func(t Template) (Template, error) {
		if pool == nil {
			return t, nil
		}
		t.roots = pool
		t.customRoots = true
		return t, nil
	}
}

// WithNativeRoots trusts the operating system certificates loaded through
// cache. It is a no-op when a custom trust store was supplied. Parse
// failures are logged at debug level.
func WithNativeRoots(cache *NativeRoots) Step {
	return func(t Template) (Template, error) {
		if t.customRoots || cache == nil {
			return t, nil
		}
		res := cache.Load()
		if t.logger != nil {
			for _, err := range res.Errors {
				t.logger.Debugf("native root certificate skipped: %v", err)
			}
			if res.FellBack {
				t.logger.Debugf("native roots unusable (%d valid, %d invalid), using default trust store",
					res.Valid, res.Invalid)
			}
		}
		t.roots = res.Pool
		return t, nil
	}
}

// WithPermutation controls extension order randomization. When enable is
// false the base order is kept untouched. Otherwise shuffle selects a
// fresh permutation per handshake or the fixed base order.
func WithPermutation(enable, shuffle bool) Step {
	return func(t Template) (Template, error) {
		if !enable {
			return t, nil
		}
		t.permute = true
		t.shuffle = shuffle
		return t, nil
	}
}

// WithShuffleFunc replaces the permutation function. A nil fn is a no-op.
func WithShuffleFunc(fn ShuffleFunc) Step {
	return func(t Template) (Template, error) {
		if fn == nil {
			return t, nil
		}
		t.shuffleFn = fn
		return t, nil
	}
}

// WithECHGrease sets whether attempts send a GREASE encrypted client hello.
func WithECHGrease(enabled bool) Step {
	return func(t Template) (Template, error) {
		t.echGrease = enabled
		return t, nil
	}
}

// WithApplicationSettings sets whether attempts send the ALPS extension.
func WithApplicationSettings(enabled bool) Step {
	return func(t Template) (Template, error) {
		t.alps = enabled
		return t, nil
	}
}

// WithLogger sets the debug logger. Place it before steps that log.
func WithLogger(l Logger) Step {
	return func(t Template) (Template, error) {
		t.logger = l
		return t, nil
	}
}

// ALPN returns the advertised version preference, or zero for a custom list.
func (c *Connector) ALPN() alpn.Pref { return c.t.alpnPref }

// ALPNBytes returns a copy of the advertised ALPN wire list.
func (c *Connector) ALPNBytes() []byte { return slices.Clone(c.t.alpnWire) }

// VersionRange returns the configured bounds; unset bounds are zero.
func (c *Connector) VersionRange() (minVersion, maxVersion Version) {
	return c.t.minVersion, c.t.maxVersion
}

// VerifiesCertificates reports whether handshakes verify the server chain.
func (c *Connector) VerifiesCertificates() bool { return !c.t.skipVerify }

// RootCAs returns the trust anchors, nil meaning the engine default.
func (c *Connector) RootCAs() *x509.CertPool { return c.t.roots }

// CertCompression returns the registered algorithm ids in order.
func (c *Connector) CertCompression() []utls.CertCompressionAlgo {
	ids := make([]utls.CertCompressionAlgo, len(c.t.compressors))
	for i, cc := range c.t.compressors {
		ids[i] = cc.ID
	}
	return ids
}

// Decompress inflates a compressed certificate message with the codec
// registered for id.
func (c *Connector) Decompress(id utls.CertCompressionAlgo, data []byte) ([]byte, error) {
	for _, cc := range c.t.compressors {
		if cc.ID == id {
			return cc.Decompress(data)
		}
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownCompression, id)
}

// Permutation reports the extension ordering policy.
func (c *Connector) Permutation() (enabled, shuffle bool) {
	return c.t.permute, c.t.shuffle
}

// ECHGrease reports whether attempts default to a GREASE ECH extension.
func (c *Connector) ECHGrease() bool { return c.t.echGrease }

// ApplicationSettings reports whether attempts default to sending ALPS.
func (c *Connector) ApplicationSettings() bool { return c.t.alps }
