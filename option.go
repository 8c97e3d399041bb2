package impersonate

import (
	"net/netip"
	"os"
	"time"

	http "github.com/bogdanfinn/fhttp"

	"github.com/kaptinlin/impersonate/alpn"
	"github.com/kaptinlin/impersonate/assemble"
	"github.com/kaptinlin/impersonate/dns"
	"github.com/kaptinlin/impersonate/netscheme"
	"github.com/kaptinlin/impersonate/profiles"
	"github.com/kaptinlin/impersonate/tlsconf"
)

// ClientOption configures a Client. Use with New().
type ClientOption func(*Client)

// WithImpersonate selects the profile by name, e.g. "chrome_133" or
// "firefox". Unknown names make New fail with ErrUnknownProfile.
func WithImpersonate(name string) ClientOption {
	return func(c *Client) {
		p, err := profiles.Lookup(name)
		if err != nil {
			c.setErr(err)
			return
		}
		c.profile = p
	}
}

// WithProfile impersonates a custom profile.
func WithProfile(p profiles.Profile) ClientOption {
	return func(c *Client) { c.profile = p }
}

// WithImpersonateOS sets the operating system the profile claims in its
// user agent and client hints. Systems the profile does not ship on fall
// back to its default.
func WithImpersonateOS(os profiles.OS) ClientOption {
	return func(c *Client) { c.os = os }
}

// WithSkipHeaders drops the default headers of the profile. Header order
// and the TLS fingerprint still apply.
func WithSkipHeaders() ClientOption {
	return func(c *Client) { c.skipHeaders = true }
}

// WithHeaderOrder replaces the canonical header order of the profile.
// A non-nil empty list still finalizes requests.
func WithHeaderOrder(order ...string) ClientOption {
	return func(c *Client) {
		if order == nil {
			order = []string{}
		}
		c.headerOrder = order
	}
}

// WithJA3 replaces the ClientHello of the profile with a JA3 fingerprint.
func WithJA3(ja3 string) ClientOption {
	return func(c *Client) { c.tls.ja3 = ja3 }
}

// WithTLSSteps appends raw configuration steps to the TLS connector. They
// run after every other TLS option.
func WithTLSSteps(steps ...tlsconf.Step) ClientOption {
	return func(c *Client) { c.tls.steps = append(c.tls.steps, steps...) }
}

// WithHTTPVersion restricts or widens the protocols offered in ALPN.
func WithHTTPVersion(p alpn.Pref) ClientOption {
	return func(c *Client) {
		if !p.Valid() {
			c.errorf("%w: %s", tlsconf.ErrALPN, p)
			return
		}
		c.pref = p
	}
}

// WithBaseURL sets the base URL for the client.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) { c.SetBaseURL(baseURL) }
}

// WithTimeout sets the overall request timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.SetDefaultTimeout(timeout) }
}

// WithHeader sets a default header on the client.
func WithHeader(key, value string) ClientOption {
	return func(c *Client) { c.SetDefaultHeader(key, value) }
}

// WithHeaders sets all default headers on the client.
func WithHeaders(headers assemble.Header) ClientOption {
	return func(c *Client) { c.SetDefaultHeaders(headers) }
}

// WithContentType sets the default Content-Type header.
func WithContentType(contentType string) ClientOption {
	return func(c *Client) { c.SetDefaultContentType(contentType) }
}

// WithAccept sets the default Accept header.
func WithAccept(accept string) ClientOption {
	return func(c *Client) { c.SetDefaultAccept(accept) }
}

// WithUserAgent overrides the User-Agent of the profile.
func WithUserAgent(userAgent string) ClientOption {
	return func(c *Client) { c.SetDefaultUserAgent(userAgent) }
}

// WithReferer sets the default Referer header.
func WithReferer(referer string) ClientOption {
	return func(c *Client) { c.SetDefaultReferer(referer) }
}

// WithCookies sets default cookies on the client.
func WithCookies(cookies map[string]string) ClientOption {
	return func(c *Client) { c.SetDefaultCookies(cookies) }
}

// WithCookieJar sets the cookie jar for the client.
func WithCookieJar(jar http.CookieJar) ClientOption {
	return func(c *Client) { c.SetDefaultCookieJar(jar) }
}

// WithAuth sets the authentication method for the client.
func WithAuth(auth AuthMethod) ClientOption {
	return func(c *Client) { c.SetAuth(auth) }
}

// WithBasicAuth sets HTTP Basic Authentication credentials.
func WithBasicAuth(username, password string) ClientOption {
	return func(c *Client) {
		c.SetAuth(BasicAuth{Username: username, Password: password})
	}
}

// WithBearerAuth sets a Bearer token for authentication.
func WithBearerAuth(token string) ClientOption {
	return func(c *Client) { c.SetAuth(BearerAuth{Token: token}) }
}

// WithMaxRetries sets the maximum number of retry attempts.
func WithMaxRetries(maxRetries int) ClientOption {
	return func(c *Client) { c.SetMaxRetries(maxRetries) }
}

// WithRetryStrategy sets the backoff strategy for retries.
func WithRetryStrategy(strategy BackoffStrategy) ClientOption {
	return func(c *Client) { c.SetRetryStrategy(strategy) }
}

// WithRetryIf sets the custom retry condition function.
func WithRetryIf(retryIf RetryIfFunc) ClientOption {
	return func(c *Client) { c.SetRetryIf(retryIf) }
}

// WithMiddleware adds middleware to the client.
func WithMiddleware(middlewares ...Middleware) ClientOption {
	return func(c *Client) { c.AddMiddleware(middlewares...) }
}

// WithInsecureSkipVerify disables certificate and hostname verification.
func WithInsecureSkipVerify() ClientOption {
	return func(c *Client) { c.tls.skipVerify = true }
}

// WithRootCertificate trusts the PEM certificates in a file instead of the
// system roots.
func WithRootCertificate(pemFilePath string) ClientOption {
	return func(c *Client) {
		data, err := os.ReadFile(pemFilePath) //nolint:gosec
		if err != nil {
			c.errorf("%w: %w", tlsconf.ErrTrustStore, err)
			return
		}
		c.tls.roots = append(c.tls.roots, data...)
	}
}

// WithRootCertificateFromString trusts the PEM certificates in pemCerts
// instead of the system roots.
func WithRootCertificateFromString(pemCerts string) ClientOption {
	return func(c *Client) { c.tls.roots = append(c.tls.roots, pemCerts...) }
}

// WithNativeRoots loads the operating system certificate bundle once per
// process and trusts it. Custom root certificates take precedence.
func WithNativeRoots() ClientOption {
	return func(c *Client) { c.tls.nativeRoots = true }
}

// WithMinTLSVersion sets the lowest TLS version offered.
func WithMinTLSVersion(v tlsconf.Version) ClientOption {
	return func(c *Client) { c.tls.minVersion = v }
}

// WithMaxTLSVersion sets the highest TLS version offered.
func WithMaxTLSVersion(v tlsconf.Version) ClientOption {
	return func(c *Client) { c.tls.maxVersion = v }
}

// WithNetworkScheme sets the egress path of every request.
func WithNetworkScheme(s netscheme.Scheme) ClientOption {
	return func(c *Client) { c.scheme = s }
}

// WithNetworkSchemes rotates the egress path across retry attempts.
func WithNetworkSchemes(selector netscheme.Selector) ClientOption {
	return func(c *Client) { c.SetNetworkSchemes(selector) }
}

// WithProxy tunnels every request through proxyURL (http, https, socks5
// or socks5h).
func WithProxy(proxyURL string) ClientOption {
	return func(c *Client) {
		u, err := netscheme.VerifyProxy(proxyURL)
		if err != nil {
			c.setErr(err)
			return
		}
		c.scheme.Proxy = u
	}
}

// WithNoProxy sets a NO_PROXY style bypass list for the proxy.
func WithNoProxy(bypass string) ClientOption {
	return func(c *Client) { c.scheme.NoProxy = bypass }
}

// WithProxies rotates the given proxies across retry attempts in round
// robin order. Local address and interface settings given before it are
// kept on every proxy.
func WithProxies(proxyURLs ...string) ClientOption {
	return func(c *Client) {
		schemes, err := netscheme.FromProxies(c.scheme, proxyURLs...)
		if err != nil {
			c.setErr(err)
			return
		}
		selector, err := netscheme.RoundRobin(schemes...)
		if err != nil {
			c.setErr(err)
			return
		}
		c.SetNetworkSchemes(selector)
	}
}

// WithLocalAddress binds outgoing connections to a source address.
func WithLocalAddress(addr string) ClientOption {
	return func(c *Client) {
		ip, err := netip.ParseAddr(addr)
		if err != nil {
			c.errorf("local address: %w", err)
			return
		}
		c.scheme.LocalAddr = ip
	}
}

// WithInterface binds outgoing connections to a network device.
func WithInterface(name string) ClientOption {
	return func(c *Client) { c.scheme.Interface = name }
}

// WithResolver replaces the system resolver.
func WithResolver(r dns.Resolver) ClientOption {
	return func(c *Client) { c.resolver = r }
}

// WithDNSServers resolves through the given DNS servers ("host:port").
func WithDNSServers(timeout time.Duration, servers ...string) ClientOption {
	return func(c *Client) { c.resolver = dns.NewServer(timeout, servers...) }
}

// WithDNSOverrides pins host names to fixed addresses.
func WithDNSOverrides(overrides map[string][]string) ClientOption {
	return func(c *Client) {
		parsed, err := dns.ParseOverrides(overrides)
		if err != nil {
			c.setErr(err)
			return
		}
		if c.overrides == nil {
			c.overrides = make(map[string][]netip.Addr, len(parsed))
		}
		for host, addrs := range parsed {
			c.overrides[host] = addrs
		}
	}
}

// WithDialTimeout sets the TCP connection timeout.
func WithDialTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.transport.DialTimeout = d }
}

// WithTLSHandshakeTimeout sets the TLS handshake timeout.
func WithTLSHandshakeTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.transport.TLSHandshakeTimeout = d }
}

// WithResponseHeaderTimeout sets the time to wait for response headers on
// HTTP/1.1 connections.
func WithResponseHeaderTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.transport.ResponseHeaderTimeout = d }
}

// WithMaxIdleConns sets the maximum number of idle connections across all hosts.
func WithMaxIdleConns(n int) ClientOption {
	return func(c *Client) { c.transport.MaxIdleConns = n }
}

// WithMaxIdleConnsPerHost sets the maximum number of idle connections per host.
func WithMaxIdleConnsPerHost(n int) ClientOption {
	return func(c *Client) { c.transport.MaxIdleConnsPerHost = n }
}

// WithMaxConnsPerHost sets the maximum total number of connections per host.
func WithMaxConnsPerHost(n int) ClientOption {
	return func(c *Client) { c.transport.MaxConnsPerHost = n }
}

// WithIdleConnTimeout sets how long idle connections remain in the pool.
func WithIdleConnTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.transport.IdleConnTimeout = d }
}

// WithRedirectPolicy sets the redirect policy for the client.
func WithRedirectPolicy(policies ...RedirectPolicy) ClientOption {
	return func(c *Client) { c.SetRedirectPolicy(policies...) }
}

// WithLogger sets the logger for the client. It also receives the debug
// output of the TLS connector.
func WithLogger(logger Logger) ClientOption {
	return func(c *Client) { c.SetLogger(logger) }
}

// WithJSONMarshal sets a custom JSON marshal function.
func WithJSONMarshal(marshalFunc func(v any) ([]byte, error)) ClientOption {
	return func(c *Client) { c.SetJSONMarshal(marshalFunc) }
}

// WithJSONUnmarshal sets a custom JSON unmarshal function.
func WithJSONUnmarshal(unmarshalFunc func(data []byte, v any) error) ClientOption {
	return func(c *Client) { c.SetJSONUnmarshal(unmarshalFunc) }
}

// WithXMLMarshal sets a custom XML marshal function.
func WithXMLMarshal(marshalFunc func(v any) ([]byte, error)) ClientOption {
	return func(c *Client) { c.SetXMLMarshal(marshalFunc) }
}

// WithXMLUnmarshal sets a custom XML unmarshal function.
func WithXMLUnmarshal(unmarshalFunc func(data []byte, v any) error) ClientOption {
	return func(c *Client) { c.SetXMLUnmarshal(unmarshalFunc) }
}

// WithYAMLMarshal sets a custom YAML marshal function.
func WithYAMLMarshal(marshalFunc func(v any) ([]byte, error)) ClientOption {
	return func(c *Client) { c.SetYAMLMarshal(marshalFunc) }
}

// WithYAMLUnmarshal sets a custom YAML unmarshal function.
func WithYAMLUnmarshal(unmarshalFunc func(data []byte, v any) error) ClientOption {
	return func(c *Client) { c.SetYAMLUnmarshal(unmarshalFunc) }
}

// WithOptions applies opts in order. Useful for option sets loaded from
// configuration.
func WithOptions(opts ...ClientOption) ClientOption {
	return func(c *Client) {
		for _, opt := range opts {
			opt(c)
		}
	}
}
