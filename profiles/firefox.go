package profiles

import (
	"slices"

	utls "github.com/refraction-networking/utls"

	"github.com/kaptinlin/impersonate/alpn"
	"github.com/kaptinlin/impersonate/assemble"
	"github.com/kaptinlin/impersonate/tlsconf"
)

// Finite field groups NSS still advertises.
const (
	curveFFDHE2048 utls.CurveID = 0x0100
	curveFFDHE3072 utls.CurveID = 0x0101
)

func firefoxHello() (utls.ClientHelloSpec, error) {
	return utls.ClientHelloSpec{
		CipherSuites: []uint16{
			utls.TLS_AES_128_GCM_SHA256,
			utls.TLS_CHACHA20_POLY1305_SHA256,
			utls.TLS_AES_256_GCM_SHA384,
			utls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			utls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			utls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
			utls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
			utls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			utls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			utls.TLS_ECDHE_ECDSA_WITH_AES_256_CBC_SHA,
			utls.TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA,
			utls.TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA,
			utls.TLS_ECDHE_RSA_WITH_AES_256_CBC_SHA,
			utls.TLS_RSA_WITH_AES_128_GCM_SHA256,
			utls.TLS_RSA_WITH_AES_256_GCM_SHA384,
			utls.TLS_RSA_WITH_AES_128_CBC_SHA,
			utls.TLS_RSA_WITH_AES_256_CBC_SHA,
		},
		CompressionMethods: []byte{0},
		Extensions: []utls.TLSExtension{
			&utls.SNIExtension{},
			&utls.ExtendedMasterSecretExtension{},
			&utls.RenegotiationInfoExtension{Renegotiation: utls.RenegotiateOnceAsClient},
			&utls.SupportedCurvesExtension{Curves: []utls.CurveID{
				utls.X25519,
				utls.CurveP256,
				utls.CurveP384,
				utls.CurveP521,
				curveFFDHE2048,
				curveFFDHE3072,
			}},
			&utls.SupportedPointsExtension{SupportedPoints: []byte{0}},
			&utls.SessionTicketExtension{},
			&utls.ALPNExtension{AlpnProtocols: []string{alpn.ProtoHTTP2, alpn.ProtoHTTP1}},
			&utls.StatusRequestExtension{},
			&utls.DelegatedCredentialsExtension{
				SupportedSignatureAlgorithms: []utls.SignatureScheme{
					utls.ECDSAWithP256AndSHA256,
					utls.ECDSAWithP384AndSHA384,
					utls.ECDSAWithP521AndSHA512,
					utls.ECDSAWithSHA1,
				},
			},
			&utls.KeyShareExtension{KeyShares: []utls.KeyShare{
				{Group: utls.X25519},
				{Group: utls.CurveP256},
			}},
			&utls.SupportedVersionsExtension{Versions: []uint16{
				utls.VersionTLS13,
				utls.VersionTLS12,
			}},
			&utls.SignatureAlgorithmsExtension{SupportedSignatureAlgorithms: []utls.SignatureScheme{
				utls.ECDSAWithP256AndSHA256,
				utls.ECDSAWithP384AndSHA384,
				utls.ECDSAWithP521AndSHA512,
				utls.PSSWithSHA256,
				utls.PSSWithSHA384,
				utls.PSSWithSHA512,
				utls.PKCS1WithSHA256,
				utls.PKCS1WithSHA384,
				utls.PKCS1WithSHA512,
				utls.ECDSAWithSHA1,
				utls.PKCS1WithSHA1,
			}},
			&utls.PSKKeyExchangeModesExtension{Modes: []uint8{utls.PskModeDHE}},
			&utls.FakeRecordSizeLimitExtension{Limit: 0x4001},
			&utls.UtlsCompressCertExtension{Algorithms: []utls.CertCompressionAlgo{
				utls.CertCompressionZlib,
				utls.CertCompressionBrotli,
				utls.CertCompressionZstd,
			}},
			utls.BoringGREASEECH(),
		},
	}, nil
}

var firefoxHeaderOrder = []string{
	"host",
	"user-agent",
	"accept",
	"accept-language",
	"accept-encoding",
	"content-type",
	"content-length",
	"origin",
	"referer",
	"cookie",
	"upgrade-insecure-requests",
	"sec-fetch-dest",
	"sec-fetch-mode",
	"sec-fetch-site",
	"sec-fetch-user",
	"priority",
	"te",
}

func firefoxUserAgent(os OS, version string) string {
	switch os {
	case MacOS:
		return "Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:" + version + ".0) Gecko/20100101 Firefox/" + version + ".0"
	case Linux:
		return "Mozilla/5.0 (X11; Linux x86_64; rv:" + version + ".0) Gecko/20100101 Firefox/" + version + ".0"
	case Android:
		return "Mozilla/5.0 (Android 14; Mobile; rv:" + version + ".0) Gecko/" + version + ".0 Firefox/" + version + ".0"
	default:
		return "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:" + version + ".0) Gecko/20100101 Firefox/" + version + ".0"
	}
}

func firefox133() Profile {
	return Profile{
		Name:      "firefox_133",
		Browser:   Firefox,
		Version:   "133",
		DefaultOS: Windows,
		OSes:      []OS{Windows, MacOS, Linux, Android},
		Hello:     firefoxHello,
		// NSS lists zlib first.
		CertCompression: []tlsconf.CertCompressor{tlsconf.Zlib(), tlsconf.Brotli(), tlsconf.Zstd()},
		MinVersion:      tlsconf.TLS12,
		MaxVersion:      tlsconf.TLS13,
		ALPN:            alpn.Both,
		ECHGrease:       true,
		HeaderOrder:     slices.Clone(firefoxHeaderOrder),
		HTTP2: HTTP2{
			Settings: []HTTP2Setting{
				{SettingHeaderTableSize, 65536},
				{SettingEnablePush, 0},
				{SettingInitialWindowSize, 131072},
				{SettingMaxFrameSize, 16384},
			},
			ConnectionFlow:    12517377,
			PseudoHeaderOrder: []string{":method", ":path", ":authority", ":scheme"},
		},
		headers: func(os OS) []assemble.Field {
			return []assemble.Field{
				{Name: "user-agent", Value: firefoxUserAgent(os, "133")},
				{Name: "accept", Value: "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"},
				{Name: "accept-language", Value: "en-US,en;q=0.5"},
				{Name: "accept-encoding", Value: "gzip, deflate, br, zstd"},
				{Name: "upgrade-insecure-requests", Value: "1"},
				{Name: "sec-fetch-dest", Value: "document"},
				{Name: "sec-fetch-mode", Value: "navigate"},
				{Name: "sec-fetch-site", Value: "none"},
				{Name: "sec-fetch-user", Value: "?1"},
				{Name: "priority", Value: "u=0, i"},
				{Name: "te", Value: "trailers"},
			}
		},
	}
}
