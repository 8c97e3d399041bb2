package profiles

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	utls "github.com/refraction-networking/utls"

	"github.com/kaptinlin/impersonate/alpn"
	"github.com/kaptinlin/impersonate/tlsconf"
)

// ErrInvalidJA3 is returned for JA3 strings that do not parse.
var ErrInvalidJA3 = errors.New("profiles: invalid JA3 string")

// JA3Spec is a parsed JA3 fingerprint.
type JA3Spec struct {
	Version             uint16
	CipherSuites        []uint16
	Extensions          []uint16
	EllipticCurves      []utls.CurveID
	EllipticCurvePoints []uint8
}

// Predefined JA3 fingerprints.
var (
	Chrome120JA3  = "771,4865-4866-4867-49195-49199-49196-49200-52393-52392-49171-49172-156-157-47-53,0-23-65281-10-11-35-16-5-13-18-51-45-43-27-17513,29-23-24,0"
	Firefox120JA3 = "771,4865-4867-4866-49195-49199-49196-49200-52393-52392-49171-49172-156-157-47-53,0-23-65281-10-11-35-16-5-13-18-51-45-43-27-17513-41,29-23-24-25,0"
)

// ParseJA3 parses the five comma separated JA3 fields.
func ParseJA3(ja3 string) (*JA3Spec, error) {
	parts := strings.Split(strings.TrimSpace(ja3), ",")
	if len(parts) != 5 {
		return nil, fmt.Errorf("%w: want 5 fields, got %d", ErrInvalidJA3, len(parts))
	}

	version, err := strconv.ParseUint(parts[0], 10, 16)
	if err != nil {
		return nil, fmt.Errorf("%w: version: %w", ErrInvalidJA3, err)
	}
	ciphers, err := parseList[uint16](parts[1], 16, "cipher suite")
	if err != nil {
		return nil, err
	}
	extensions, err := parseList[uint16](parts[2], 16, "extension")
	if err != nil {
		return nil, err
	}
	curves, err := parseList[utls.CurveID](parts[3], 16, "curve")
	if err != nil {
		return nil, err
	}
	points, err := parseList[uint8](parts[4], 8, "point format")
	if err != nil {
		return nil, err
	}

	return &JA3Spec{
		Version:             uint16(version),
		CipherSuites:        ciphers,
		Extensions:          extensions,
		EllipticCurves:      curves,
		EllipticCurvePoints: points,
	}, nil
}

func parseList[T ~uint8 | ~uint16](field string, bits int, what string) ([]T, error) {
	var out []T
	for _, s := range strings.Split(field, "-") {
		if s == "" {
			continue
		}
		v, err := strconv.ParseUint(s, 10, bits)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidJA3, what, err)
		}
		out = append(out, T(v))
	}
	return out, nil
}

func isGREASEValue(v uint16) bool {
	return v&0x0f0f == 0x0a0a && v>>8 == v&0xff
}

func (s *JA3Spec) has(ext uint16) bool {
	return slices.Contains(s.Extensions, ext)
}

// tls13 reports whether the fingerprint offers TLS 1.3 cipher suites.
func (s *JA3Spec) tls13() bool {
	return slices.ContainsFunc(s.CipherSuites, func(c uint16) bool { return c>>8 == 0x13 })
}

// Factory returns a ClientHello factory that reproduces the fingerprint.
// Extensions without a dedicated type are sent empty. Pre-shared keys are
// dropped since sessions are never resumed.
func (s *JA3Spec) Factory() tlsconf.SpecFactory {
	return func() (utls.ClientHelloSpec, error) {
		exts := make([]utls.TLSExtension, 0, len(s.Extensions))
		for _, id := range s.Extensions {
			if id == extPreSharedKey {
				continue
			}
			exts = append(exts, s.extension(id))
		}
		return utls.ClientHelloSpec{
			CipherSuites:       slices.Clone(s.CipherSuites),
			CompressionMethods: []byte{0},
			Extensions:         exts,
		}, nil
	}
}

const (
	extPreSharedKey uint16 = 41
	extCompressCert uint16 = 27
	extALPS         uint16 = 17513
	extALPSNew      uint16 = 17613
	extECH          uint16 = 0xfe0d
)

func (s *JA3Spec) extension(id uint16) utls.TLSExtension {
	if isGREASEValue(id) {
		return &utls.UtlsGREASEExtension{}
	}
	switch id {
	case 0:
		return &utls.SNIExtension{}
	case 5:
		return &utls.StatusRequestExtension{}
	case 10:
		return &utls.SupportedCurvesExtension{Curves: s.curves()}
	case 11:
		return &utls.SupportedPointsExtension{SupportedPoints: slices.Clone(s.EllipticCurvePoints)}
	case 13:
		return &utls.SignatureAlgorithmsExtension{SupportedSignatureAlgorithms: slices.Clone(chromiumSignatures)}
	case 16:
		return &utls.ALPNExtension{AlpnProtocols: alpn.Both.Protocols()}
	case 18:
		return &utls.SCTExtension{}
	case 21:
		return &utls.UtlsPaddingExtension{GetPaddingLen: utls.BoringPaddingStyle}
	case 23:
		return &utls.ExtendedMasterSecretExtension{}
	case extCompressCert:
		return &utls.UtlsCompressCertExtension{Algorithms: []utls.CertCompressionAlgo{utls.CertCompressionBrotli}}
	case 28:
		return &utls.FakeRecordSizeLimitExtension{Limit: 0x4001}
	case 34:
		return &utls.DelegatedCredentialsExtension{SupportedSignatureAlgorithms: []utls.SignatureScheme{
			utls.ECDSAWithP256AndSHA256,
			utls.ECDSAWithP384AndSHA384,
			utls.ECDSAWithP521AndSHA512,
			utls.ECDSAWithSHA1,
		}}
	case 35:
		return &utls.SessionTicketExtension{}
	case 43:
		return &utls.SupportedVersionsExtension{Versions: s.versions()}
	case 45:
		return &utls.PSKKeyExchangeModesExtension{Modes: []uint8{utls.PskModeDHE}}
	case 51:
		return &utls.KeyShareExtension{KeyShares: s.keyShares()}
	case extALPS:
		return &utls.ApplicationSettingsExtension{SupportedProtocols: []string{alpn.ProtoHTTP2}}
	case extALPSNew:
		return &utls.ApplicationSettingsExtensionNew{SupportedProtocols: []string{alpn.ProtoHTTP2}}
	case extECH:
		return utls.BoringGREASEECH()
	case 65281:
		return &utls.RenegotiationInfoExtension{Renegotiation: utls.RenegotiateOnceAsClient}
	default:
		return &utls.GenericExtension{Id: id}
	}
}

func (s *JA3Spec) curves() []utls.CurveID {
	out := make([]utls.CurveID, 0, len(s.EllipticCurves))
	for _, c := range s.EllipticCurves {
		if isGREASEValue(uint16(c)) {
			c = utls.GREASE_PLACEHOLDER
		}
		out = append(out, c)
	}
	return out
}

func (s *JA3Spec) versions() []uint16 {
	var out []uint16
	if slices.ContainsFunc(s.Extensions, isGREASEValue) {
		out = append(out, utls.GREASE_PLACEHOLDER)
	}
	if s.tls13() {
		out = append(out, utls.VersionTLS13)
	}
	return append(out, utls.VersionTLS12)
}

// keyShares sends a share for the first hybrid and classic groups offered.
func (s *JA3Spec) keyShares() []utls.KeyShare {
	var shares []utls.KeyShare
	for _, c := range s.curves() {
		switch {
		case c == utls.GREASE_PLACEHOLDER && len(shares) == 0:
			shares = append(shares, utls.KeyShare{Group: c, Data: []byte{0}})
		case c == utls.X25519MLKEM768:
			shares = append(shares, utls.KeyShare{Group: c})
		case c == utls.X25519 || c == utls.CurveP256:
			return append(shares, utls.KeyShare{Group: c})
		}
	}
	return append(shares, utls.KeyShare{Group: utls.X25519})
}

// WithJA3 returns a copy of p whose ClientHello follows the fingerprint.
// Headers and HTTP/2 settings are kept. Extensions the template adds on its
// own are only enabled when the fingerprint lists them.
func (p Profile) WithJA3(ja3 string) (Profile, error) {
	spec, err := ParseJA3(ja3)
	if err != nil {
		return Profile{}, err
	}
	p.Name += "+ja3"
	p.Hello = spec.Factory()
	p.MinVersion = tlsconf.TLS12
	p.MaxVersion = tlsconf.TLS12
	if spec.tls13() {
		p.MaxVersion = tlsconf.TLS13
	}
	p.ECHGrease = spec.has(extECH)
	p.ApplicationSettings = spec.has(extALPS) || spec.has(extALPSNew)
	switch {
	case !spec.has(extCompressCert):
		p.CertCompression = nil
	case len(p.CertCompression) == 0:
		p.CertCompression = []tlsconf.CertCompressor{tlsconf.Brotli()}
	}
	return p, nil
}
