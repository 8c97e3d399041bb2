package profiles

import (
	"slices"

	utls "github.com/refraction-networking/utls"

	"github.com/kaptinlin/impersonate/alpn"
	"github.com/kaptinlin/impersonate/assemble"
	"github.com/kaptinlin/impersonate/tlsconf"
)

var safariSignatures = []utls.SignatureScheme{
	utls.ECDSAWithP256AndSHA256,
	utls.PSSWithSHA256,
	utls.PKCS1WithSHA256,
	utls.ECDSAWithP384AndSHA384,
	utls.PSSWithSHA384,
	utls.PKCS1WithSHA384,
	utls.PSSWithSHA512,
	utls.PKCS1WithSHA512,
	utls.ECDSAWithSHA1,
	utls.PKCS1WithSHA1,
}

// safariHello returns the Secure Transport ClientHello. The iOS build
// does not GREASE.
func safariHello(grease bool) tlsconf.SpecFactory {
	return func() (utls.ClientHelloSpec, error) {
		ciphers := []uint16{
			utls.TLS_AES_128_GCM_SHA256,
			utls.TLS_AES_256_GCM_SHA384,
			utls.TLS_CHACHA20_POLY1305_SHA256,
			utls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			utls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			utls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
			utls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			utls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			utls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
			utls.TLS_ECDHE_ECDSA_WITH_AES_256_CBC_SHA,
			utls.TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA,
			utls.TLS_ECDHE_RSA_WITH_AES_256_CBC_SHA,
			utls.TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA,
		}
		curves := []utls.CurveID{utls.X25519, utls.CurveP256, utls.CurveP384, utls.CurveP521}
		shares := []utls.KeyShare{{Group: utls.X25519}}
		versions := []uint16{utls.VersionTLS13, utls.VersionTLS12}
		if grease {
			ciphers = append([]uint16{utls.GREASE_PLACEHOLDER}, ciphers...)
			curves = append([]utls.CurveID{utls.GREASE_PLACEHOLDER}, curves...)
			shares = append([]utls.KeyShare{{Group: utls.CurveID(utls.GREASE_PLACEHOLDER), Data: []byte{0}}}, shares...)
			versions = append([]uint16{utls.GREASE_PLACEHOLDER}, versions...)
		}

		exts := []utls.TLSExtension{
			&utls.SNIExtension{},
			&utls.ExtendedMasterSecretExtension{},
			&utls.RenegotiationInfoExtension{Renegotiation: utls.RenegotiateOnceAsClient},
			&utls.SupportedCurvesExtension{Curves: curves},
			&utls.SupportedPointsExtension{SupportedPoints: []byte{0}},
			&utls.ALPNExtension{AlpnProtocols: []string{alpn.ProtoHTTP2, alpn.ProtoHTTP1}},
			&utls.StatusRequestExtension{},
			&utls.SignatureAlgorithmsExtension{
				SupportedSignatureAlgorithms: slices.Clone(safariSignatures),
			},
			&utls.SCTExtension{},
			&utls.KeyShareExtension{KeyShares: shares},
			&utls.PSKKeyExchangeModesExtension{Modes: []uint8{utls.PskModeDHE}},
			&utls.SupportedVersionsExtension{Versions: versions},
			&utls.UtlsCompressCertExtension{Algorithms: []utls.CertCompressionAlgo{utls.CertCompressionZlib}},
		}
		if grease {
			exts = append([]utls.TLSExtension{&utls.UtlsGREASEExtension{}}, exts...)
			exts = append(exts, &utls.UtlsGREASEExtension{})
		}
		exts = append(exts, &utls.UtlsPaddingExtension{GetPaddingLen: utls.BoringPaddingStyle})

		return utls.ClientHelloSpec{
			CipherSuites:       ciphers,
			CompressionMethods: []byte{0},
			Extensions:         exts,
		}, nil
	}
}

var safariHeaderOrder = []string{
	"host",
	"content-type",
	"origin",
	"content-length",
	"sec-fetch-dest",
	"user-agent",
	"accept",
	"referer",
	"sec-fetch-site",
	"sec-fetch-mode",
	"cookie",
	"accept-language",
	"priority",
	"accept-encoding",
}

func safariHeaders(os OS) []assemble.Field {
	ua := "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.0 Safari/605.1.15"
	if os == IOS {
		ua = "Mozilla/5.0 (iPhone; CPU iPhone OS 18_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.0 Mobile/15E148 Safari/604.1"
	}
	return []assemble.Field{
		{Name: "sec-fetch-dest", Value: "document"},
		{Name: "user-agent", Value: ua},
		{Name: "accept", Value: "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"},
		{Name: "sec-fetch-site", Value: "none"},
		{Name: "sec-fetch-mode", Value: "navigate"},
		{Name: "accept-language", Value: "en-US,en;q=0.9"},
		{Name: "priority", Value: "u=0, i"},
		{Name: "accept-encoding", Value: "gzip, deflate, br"},
	}
}

func safari(name string, os OS, grease bool) Profile {
	return Profile{
		Name:            name,
		Browser:         Safari,
		Version:         "18",
		DefaultOS:       os,
		OSes:            []OS{os},
		Hello:           safariHello(grease),
		CertCompression: []tlsconf.CertCompressor{tlsconf.Zlib()},
		MinVersion:      tlsconf.TLS12,
		MaxVersion:      tlsconf.TLS13,
		ALPN:            alpn.Both,
		HeaderOrder:     slices.Clone(safariHeaderOrder),
		HTTP2: HTTP2{
			Settings: []HTTP2Setting{
				{SettingEnablePush, 0},
				{SettingInitialWindowSize, 2097152},
				{SettingMaxConcurrentStreams, 100},
			},
			ConnectionFlow:    10420225,
			PseudoHeaderOrder: []string{":method", ":scheme", ":path", ":authority"},
		},
		headers: safariHeaders,
	}
}

func safari18() Profile {
	return safari("safari_18", MacOS, true)
}

func safariIOS18() Profile {
	return safari("safari_ios_18", IOS, false)
}
