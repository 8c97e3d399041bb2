package profiles

import (
	"slices"

	utls "github.com/refraction-networking/utls"

	"github.com/kaptinlin/impersonate/alpn"
	"github.com/kaptinlin/impersonate/assemble"
	"github.com/kaptinlin/impersonate/tlsconf"
)

var chromiumCiphers = []uint16{
	utls.GREASE_PLACEHOLDER,
	utls.TLS_AES_128_GCM_SHA256,
	utls.TLS_AES_256_GCM_SHA384,
	utls.TLS_CHACHA20_POLY1305_SHA256,
	utls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	utls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	utls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	utls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	utls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
	utls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
	utls.TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA,
	utls.TLS_ECDHE_RSA_WITH_AES_256_CBC_SHA,
	utls.TLS_RSA_WITH_AES_128_GCM_SHA256,
	utls.TLS_RSA_WITH_AES_256_GCM_SHA384,
	utls.TLS_RSA_WITH_AES_128_CBC_SHA,
	utls.TLS_RSA_WITH_AES_256_CBC_SHA,
}

var chromiumSignatures = []utls.SignatureScheme{
	utls.ECDSAWithP256AndSHA256,
	utls.PSSWithSHA256,
	utls.PKCS1WithSHA256,
	utls.ECDSAWithP384AndSHA384,
	utls.PSSWithSHA384,
	utls.PKCS1WithSHA384,
	utls.PSSWithSHA512,
	utls.PKCS1WithSHA512,
}

// chromiumHello is the BoringSSL ClientHello shipped since Chrome 131.
// The ECH and ALPS extensions sit in their usual slots; whether they are
// sent is decided per attempt. Pre-shared keys are left out because the
// client does not resume sessions.
func chromiumHello(alps utls.TLSExtension) tlsconf.SpecFactory {
	return func() (utls.ClientHelloSpec, error) {
		return utls.ClientHelloSpec{
			CipherSuites:       append([]uint16(nil), chromiumCiphers...),
			CompressionMethods: []byte{0},
			Extensions: []utls.TLSExtension{
				&utls.UtlsGREASEExtension{},
				&utls.SNIExtension{},
				&utls.ExtendedMasterSecretExtension{},
				&utls.RenegotiationInfoExtension{Renegotiation: utls.RenegotiateOnceAsClient},
				&utls.SupportedCurvesExtension{Curves: []utls.CurveID{
					utls.GREASE_PLACEHOLDER,
					utls.X25519MLKEM768,
					utls.X25519,
					utls.CurveP256,
					utls.CurveP384,
				}},
				&utls.SupportedPointsExtension{SupportedPoints: []byte{0}},
				&utls.SessionTicketExtension{},
				&utls.ALPNExtension{AlpnProtocols: []string{alpn.ProtoHTTP2, alpn.ProtoHTTP1}},
				&utls.StatusRequestExtension{},
				&utls.SignatureAlgorithmsExtension{
					SupportedSignatureAlgorithms: append([]utls.SignatureScheme(nil), chromiumSignatures...),
				},
				&utls.SCTExtension{},
				&utls.KeyShareExtension{KeyShares: []utls.KeyShare{
					{Group: utls.CurveID(utls.GREASE_PLACEHOLDER), Data: []byte{0}},
					{Group: utls.X25519MLKEM768},
					{Group: utls.X25519},
				}},
				&utls.PSKKeyExchangeModesExtension{Modes: []uint8{utls.PskModeDHE}},
				&utls.SupportedVersionsExtension{Versions: []uint16{
					utls.GREASE_PLACEHOLDER,
					utls.VersionTLS13,
					utls.VersionTLS12,
				}},
				&utls.UtlsCompressCertExtension{Algorithms: []utls.CertCompressionAlgo{utls.CertCompressionBrotli}},
				alps,
				utls.BoringGREASEECH(),
				&utls.UtlsGREASEExtension{},
			},
		}, nil
	}
}

var chromiumHTTP2 = HTTP2{
	Settings: []HTTP2Setting{
		{SettingHeaderTableSize, 65536},
		{SettingEnablePush, 0},
		{SettingInitialWindowSize, 6291456},
		{SettingMaxHeaderListSize, 262144},
	},
	ConnectionFlow:    15663105,
	PseudoHeaderOrder: []string{":method", ":authority", ":scheme", ":path"},
}

var chromiumHeaderOrder = []string{
	"host",
	"content-length",
	"cache-control",
	"sec-ch-ua",
	"sec-ch-ua-mobile",
	"sec-ch-ua-platform",
	"upgrade-insecure-requests",
	"user-agent",
	"content-type",
	"accept",
	"origin",
	"sec-fetch-site",
	"sec-fetch-mode",
	"sec-fetch-user",
	"sec-fetch-dest",
	"referer",
	"accept-encoding",
	"accept-language",
	"cookie",
	"priority",
}

var chromiumOSes = []OS{Windows, MacOS, Linux, Android, IOS}

// chromiumUserAgent returns the reduced user-agent string Chromium sends
// for the given major version.
func chromiumUserAgent(os OS, major, suffix string) string {
	switch os {
	case MacOS:
		return "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/" + major + ".0.0.0 Safari/537.36" + suffix
	case Linux:
		return "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/" + major + ".0.0.0 Safari/537.36" + suffix
	case Android:
		return "Mozilla/5.0 (Linux; Android 10; K) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/" + major + ".0.0.0 Mobile Safari/537.36" + suffix
	case IOS:
		return "Mozilla/5.0 (iPhone; CPU iPhone OS 17_7 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) CriOS/" + major + ".0.0.0 Mobile/15E148 Safari/604.1"
	default:
		return "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/" + major + ".0.0.0 Safari/537.36" + suffix
	}
}

func chromiumHeaders(secCHUA func(OS) string, userAgent func(OS) string) func(OS) []assemble.Field {
	return func(os OS) []assemble.Field {
		return []assemble.Field{
			{Name: "sec-ch-ua", Value: secCHUA(os)},
			{Name: "sec-ch-ua-mobile", Value: os.mobileHint()},
			{Name: "sec-ch-ua-platform", Value: os.platform()},
			{Name: "upgrade-insecure-requests", Value: "1"},
			{Name: "user-agent", Value: userAgent(os)},
			{Name: "accept", Value: "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7"},
			{Name: "sec-fetch-site", Value: "none"},
			{Name: "sec-fetch-mode", Value: "navigate"},
			{Name: "sec-fetch-user", Value: "?1"},
			{Name: "sec-fetch-dest", Value: "document"},
			{Name: "accept-encoding", Value: "gzip, deflate, br, zstd"},
			{Name: "accept-language", Value: "en-US,en;q=0.9"},
			{Name: "priority", Value: "u=0, i"},
		}
	}
}

func chromium(name string, browser Browser, version string, alps utls.TLSExtension) Profile {
	return Profile{
		Name:                name,
		Browser:             browser,
		Version:             version,
		DefaultOS:           Windows,
		OSes:                slices.Clone(chromiumOSes),
		Hello:               chromiumHello(alps),
		MinVersion:          tlsconf.TLS12,
		MaxVersion:          tlsconf.TLS13,
		CertCompression:     []tlsconf.CertCompressor{tlsconf.Brotli()},
		ALPN:                alpn.Both,
		PermuteExtensions:   true,
		ShuffleExtensions:   true,
		ECHGrease:           true,
		ApplicationSettings: true,
		HeaderOrder:         slices.Clone(chromiumHeaderOrder),
		HTTP2:               chromiumHTTP2.clone(),
	}
}

func chrome131() Profile {
	p := chromium("chrome_131", Chrome, "131",
		&utls.ApplicationSettingsExtension{SupportedProtocols: []string{alpn.ProtoHTTP2}})
	p.headers = chromiumHeaders(
		func(OS) string { return `"Google Chrome";v="131", "Chromium";v="131", "Not_A Brand";v="24"` },
		func(os OS) string { return chromiumUserAgent(os, "131", "") },
	)
	return p
}

// chrome133 switched ALPS to the new codepoint.
func chrome133() Profile {
	p := chromium("chrome_133", Chrome, "133",
		&utls.ApplicationSettingsExtensionNew{SupportedProtocols: []string{alpn.ProtoHTTP2}})
	p.headers = chromiumHeaders(
		func(OS) string { return `"Not(A:Brand";v="99", "Google Chrome";v="133", "Chromium";v="133"` },
		func(os OS) string { return chromiumUserAgent(os, "133", "") },
	)
	return p
}

func edge131() Profile {
	p := chromium("edge_131", Edge, "131",
		&utls.ApplicationSettingsExtension{SupportedProtocols: []string{alpn.ProtoHTTP2}})
	p.OSes = []OS{Windows, MacOS, Linux, Android}
	p.headers = chromiumHeaders(
		func(OS) string {
			return `"Microsoft Edge";v="131", "Chromium";v="131", "Not_A Brand";v="24"`
		},
		func(os OS) string {
			if os == Android {
				return chromiumUserAgent(os, "131", " EdgA/131.0.0.0")
			}
			return chromiumUserAgent(os, "131", " Edg/131.0.0.0")
		},
	)
	return p
}
