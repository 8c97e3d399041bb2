package profiles

import (
	"fmt"
	"strings"
	"testing"

	utls "github.com/refraction-networking/utls"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaptinlin/impersonate/alpn"
	"github.com/kaptinlin/impersonate/tlsconf"
)

func extensionTypes(spec *utls.ClientHelloSpec) []string {
	out := make([]string, 0, len(spec.Extensions))
	for _, ext := range spec.Extensions {
		out = append(out, strings.TrimPrefix(fmt.Sprintf("%T", ext), "*tls."))
	}
	return out
}

func TestLookup(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"chrome_131", "chrome_131"},
		{"Chrome-133", "chrome_133"},
		{"chrome", "chrome_133"},
		{"FIREFOX", "firefox_133"},
		{"safari.18", "safari_18"},
		{"safari_ios", "safari_ios_18"},
		{"okhttp", "okhttp_4_android_13"},
		{"edge", "edge_131"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			p, err := Lookup(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Name)
		})
	}

	_, err := Lookup("netscape_4")
	assert.ErrorIs(t, err, ErrUnknownProfile)
}

func TestLookupReturnsFreshValues(t *testing.T) {
	a, err := Lookup("chrome_133")
	require.NoError(t, err)
	a.HeaderOrder[0] = "mutated"
	a.HTTP2.Settings[0].Val = 1
	a.OSes[0] = IOS

	b, err := Lookup("chrome_133")
	require.NoError(t, err)
	assert.Equal(t, "host", b.HeaderOrder[0])
	assert.Equal(t, uint32(65536), b.HTTP2.Settings[0].Val)
	assert.Equal(t, Windows, b.OSes[0])
}

func TestNames(t *testing.T) {
	names := Names()
	assert.Len(t, names, 7)
	assert.IsNonDecreasing(t, names)
	for _, name := range names {
		_, err := Lookup(name)
		assert.NoError(t, err, name)
	}
}

func TestEveryProfileBuildsAHello(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			p, err := Lookup(name)
			require.NoError(t, err)

			c, err := p.Connector()
			require.NoError(t, err)
			assert.Equal(t, p.ALPN, c.ALPN())

			a, err := c.NewAttempt()
			require.NoError(t, err)
			require.NoError(t, a.ConfigureECHGrease(p.ECHGrease))
			require.NoError(t, a.ConfigureApplicationSettings(p.ApplicationSettings, p.ALPN))
			spec := a.Spec()
			require.NotNil(t, spec)
			assert.NotEmpty(t, spec.CipherSuites)
			assert.Contains(t, extensionTypes(spec), "SNIExtension")
			assert.Contains(t, extensionTypes(spec), "ALPNExtension")

			assert.NotEmpty(t, p.UserAgent(0))
			assert.NotEmpty(t, p.HTTP2.PseudoHeaderOrder)
			assert.NotZero(t, p.HTTP2.ConnectionFlow)
		})
	}
}

func TestChromeHelloCarriesSlots(t *testing.T) {
	tests := []struct {
		name string
		alps string
	}{
		{"chrome_131", "ApplicationSettingsExtension"},
		{"chrome_133", "ApplicationSettingsExtensionNew"},
		{"edge_131", "ApplicationSettingsExtension"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Lookup(tt.name)
			require.NoError(t, err)
			p.ShuffleExtensions = false

			c, err := p.Connector()
			require.NoError(t, err)
			a, err := c.NewAttempt()
			require.NoError(t, err)
			require.NoError(t, a.ConfigureECHGrease(true))
			require.NoError(t, a.ConfigureApplicationSettings(true, alpn.Both))

			kinds := extensionTypes(a.Spec())
			assert.Contains(t, kinds, tt.alps)
			assert.Contains(t, kinds, "GREASEEncryptedClientHelloExtension")
			assert.Equal(t, "UtlsGREASEExtension", kinds[0])
			assert.Equal(t, "UtlsGREASEExtension", kinds[len(kinds)-1])
		})
	}
}

func TestChromeHelloWithoutSlots(t *testing.T) {
	p, err := Lookup("chrome_131")
	require.NoError(t, err)
	c, err := p.Connector(tlsconf.WithPermutation(false, false))
	require.NoError(t, err)
	a, err := c.NewAttempt()
	require.NoError(t, err)

	kinds := extensionTypes(a.Spec())
	assert.NotContains(t, kinds, "ApplicationSettingsExtension")
	assert.NotContains(t, kinds, "GREASEEncryptedClientHelloExtension")
}

func TestCertCompressionOrder(t *testing.T) {
	p, err := Lookup("firefox_133")
	require.NoError(t, err)
	c, err := p.Connector()
	require.NoError(t, err)
	assert.Equal(t, []utls.CertCompressionAlgo{
		utls.CertCompressionZlib,
		utls.CertCompressionBrotli,
		utls.CertCompressionZstd,
	}, c.CertCompression())

	p, err = Lookup("okhttp")
	require.NoError(t, err)
	c, err = p.Connector()
	require.NoError(t, err)
	assert.Empty(t, c.CertCompression())
}

func TestExtraStepsOverrideProfile(t *testing.T) {
	p, err := Lookup("chrome_133")
	require.NoError(t, err)
	c, err := p.Connector(tlsconf.WithALPN(alpn.Http1))
	require.NoError(t, err)
	assert.Equal(t, alpn.Http1, c.ALPN())
	a, err := c.NewAttempt()
	require.NoError(t, err)
	assert.Equal(t, []string{alpn.ProtoHTTP1}, a.Protocols())
}

func TestDefaultHeaders(t *testing.T) {
	p, err := Lookup("chrome_133")
	require.NoError(t, err)

	h := p.DefaultHeaders(MacOS)
	assert.Equal(t, `"macOS"`, h.Get("sec-ch-ua-platform"))
	assert.Equal(t, "?0", h.Get("sec-ch-ua-mobile"))
	assert.Contains(t, h.Get("user-agent"), "Macintosh")
	assert.Contains(t, h.Get("user-agent"), "Chrome/133.0.0.0")

	h = p.DefaultHeaders(Android)
	assert.Equal(t, "?1", h.Get("sec-ch-ua-mobile"))
	assert.Contains(t, h.Get("user-agent"), "Mobile Safari")

	edge, err := Lookup("edge_131")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(edge.UserAgent(Windows), "Edg/131.0.0.0"))
	assert.True(t, strings.HasSuffix(edge.UserAgent(Android), "EdgA/131.0.0.0"))

	ff, err := Lookup("firefox_133")
	require.NoError(t, err)
	assert.Equal(t, "trailers", ff.DefaultHeaders(0).Get("te"))
	assert.False(t, ff.DefaultHeaders(0).Has("sec-ch-ua"))

	ok, err := Lookup("okhttp")
	require.NoError(t, err)
	assert.Equal(t, "okhttp/4.12.0", ok.UserAgent(Windows))
}

func TestResolveOS(t *testing.T) {
	p, err := Lookup("safari_18")
	require.NoError(t, err)
	assert.Equal(t, MacOS, p.ResolveOS(0))
	assert.Equal(t, MacOS, p.ResolveOS(Windows))

	p, err = Lookup("chrome")
	require.NoError(t, err)
	assert.Equal(t, Windows, p.ResolveOS(0))
	assert.Equal(t, Linux, p.ResolveOS(Linux))
}

func TestParseOS(t *testing.T) {
	tests := []struct {
		in      string
		want    OS
		wantErr bool
	}{
		{"", 0, false},
		{"Windows", Windows, false},
		{"darwin", MacOS, false},
		{"linux", Linux, false},
		{"android", Android, false},
		{"iOS", IOS, false},
		{"beos", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseOS(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHTTP2Settings(t *testing.T) {
	p, err := Lookup("firefox")
	require.NoError(t, err)
	assert.Equal(t, []HTTP2Setting{
		{SettingHeaderTableSize, 65536},
		{SettingEnablePush, 0},
		{SettingInitialWindowSize, 131072},
		{SettingMaxFrameSize, 16384},
	}, p.HTTP2.Settings)
	assert.Equal(t, uint32(12517377), p.HTTP2.ConnectionFlow)
	assert.Equal(t, []string{":method", ":path", ":authority", ":scheme"}, p.HTTP2.PseudoHeaderOrder)
}
