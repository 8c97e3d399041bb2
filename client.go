package impersonate

import (
	"fmt"
	"net/netip"
	"sync"
	"time"

	http "github.com/bogdanfinn/fhttp"
	"github.com/bogdanfinn/fhttp/cookiejar"
	"golang.org/x/net/publicsuffix"

	"github.com/kaptinlin/impersonate/alpn"
	"github.com/kaptinlin/impersonate/assemble"
	"github.com/kaptinlin/impersonate/dns"
	"github.com/kaptinlin/impersonate/netscheme"
	"github.com/kaptinlin/impersonate/profiles"
	"github.com/kaptinlin/impersonate/tlsconf"
)

// DefaultProfile is impersonated when no profile is configured.
const DefaultProfile = "chrome"

// Client sends requests that look like they come from a real browser on
// the wire: ClientHello, HTTP/2 preface and header order all follow the
// impersonated profile.
type Client struct {
	mu            sync.RWMutex
	BaseURL       string
	Headers       assemble.Header
	Cookies       []*http.Cookie
	Middlewares   []Middleware
	MaxRetries    int             // Maximum number of retry attempts
	RetryStrategy BackoffStrategy // The backoff strategy function
	RetryIf       RetryIfFunc     // Custom function to determine retry based on request and response
	HTTPClient    *http.Client
	JSONEncoder   Encoder
	JSONDecoder   Decoder
	XMLEncoder    Encoder
	XMLDecoder    Decoder
	YAMLEncoder   Encoder
	YAMLDecoder   Decoder
	Logger        Logger
	auth          AuthMethod

	profile     profiles.Profile
	os          profiles.OS
	skipHeaders bool
	headerOrder []string
	tls         tlsSettings
	pref        alpn.Pref
	scheme      netscheme.Scheme
	selector    netscheme.Selector
	resolver    dns.Resolver
	overrides   map[string][]netip.Addr
	transport   TransportOptions
	policies    []RedirectPolicy
	jar         http.CookieJar
	timeout     time.Duration

	err error
}

type tlsSettings struct {
	skipVerify  bool
	roots       []byte
	nativeRoots bool
	minVersion  tlsconf.Version
	maxVersion  tlsconf.Version
	ja3         string
	steps       []tlsconf.Step
}

// Config sets up the initial configuration for Create.
type Config struct {
	BaseURL            string            // The base URL for all requests made by this client.
	Impersonate        string            // Profile name, see profiles.Names.
	OS                 profiles.OS       // Operating system of the profile; zero picks its default.
	Headers            assemble.Header   // Default headers sent with each request.
	Cookies            map[string]string // Default cookies sent with each request.
	Timeout            time.Duration     // Timeout for requests.
	CookieJar          http.CookieJar    // Cookie jar; nil installs an in-memory jar.
	Middlewares        []Middleware      // Middleware stack for request/response manipulation.
	HTTPVersion        alpn.Pref         // Protocol preference; zero keeps the profile's.
	Proxy              string            // Proxy URL for every request.
	MaxRetries         int               // Maximum number of retry attempts
	RetryStrategy      BackoffStrategy   // The backoff strategy function
	RetryIf            RetryIfFunc       // Custom function to determine retry based on request and response
	Logger             Logger            // Logger instance for the client
	InsecureSkipVerify bool              // Disable certificate verification.
}

// New builds a client from options. Option and TLS configuration errors
// are returned and no client is created.
func New(opts ...ClientOption) (*Client, error) {
	c := &Client{
		JSONEncoder:   DefaultJSONCodec,
		JSONDecoder:   DefaultJSONCodec,
		XMLEncoder:    DefaultXMLCodec,
		XMLDecoder:    DefaultXMLCodec,
		YAMLEncoder:   DefaultYAMLCodec,
		YAMLDecoder:   DefaultYAMLCodec,
		RetryStrategy: DefaultBackoffStrategy(1 * time.Second),
		RetryIf:       DefaultRetryIf,
		transport: TransportOptions{
			DialTimeout:         30 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			IdleConnTimeout:     90 * time.Second,
			MaxIdleConns:        100,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.err != nil {
		return nil, c.err
	}
	if err := c.build(); err != nil {
		return nil, err
	}
	return c, nil
}

// Create initializes a client from config.
func Create(config *Config) (*Client, error) {
	if config == nil {
		config = &Config{}
	}
	return New(config.options()...)
}

func (config *Config) options() []ClientOption {
	opts := []ClientOption{
		WithBaseURL(config.BaseURL),
		WithMaxRetries(config.MaxRetries),
	}
	if config.Impersonate != "" {
		opts = append(opts, WithImpersonate(config.Impersonate))
	}
	if config.OS != 0 {
		opts = append(opts, WithImpersonateOS(config.OS))
	}
	if config.Headers.Len() > 0 {
		opts = append(opts, WithHeaders(config.Headers))
	}
	if config.Cookies != nil {
		opts = append(opts, WithCookies(config.Cookies))
	}
	if config.Timeout != 0 {
		opts = append(opts, WithTimeout(config.Timeout))
	}
	if config.CookieJar != nil {
		opts = append(opts, WithCookieJar(config.CookieJar))
	}
	if len(config.Middlewares) > 0 {
		opts = append(opts, WithMiddleware(config.Middlewares...))
	}
	if config.HTTPVersion != 0 {
		opts = append(opts, WithHTTPVersion(config.HTTPVersion))
	}
	if config.Proxy != "" {
		opts = append(opts, WithProxy(config.Proxy))
	}
	if config.RetryStrategy != nil {
		opts = append(opts, WithRetryStrategy(config.RetryStrategy))
	}
	if config.RetryIf != nil {
		opts = append(opts, WithRetryIf(config.RetryIf))
	}
	if config.Logger != nil {
		opts = append(opts, WithLogger(config.Logger))
	}
	if config.InsecureSkipVerify {
		opts = append(opts, WithInsecureSkipVerify())
	}
	return opts
}

// build resolves the profile and creates the connector, transport and
// underlying http.Client.
func (c *Client) build() error {
	if c.profile.Name == "" {
		p, err := profiles.Lookup(DefaultProfile)
		if err != nil {
			return err
		}
		c.profile = p
	}
	if c.tls.ja3 != "" {
		p, err := c.profile.WithJA3(c.tls.ja3)
		if err != nil {
			return err
		}
		c.profile = p
	}
	c.os = c.profile.ResolveOS(c.os)

	connector, err := c.profile.Connector(c.tlsSteps()...)
	if err != nil {
		return err
	}

	var resolver dns.Resolver = dns.System()
	if c.resolver != nil {
		resolver = c.resolver
	}
	if len(c.overrides) > 0 {
		resolver = dns.WithOverrides(resolver, c.overrides)
	}
	dialer := &netscheme.Dialer{
		Resolver:  resolver,
		Timeout:   c.transport.DialTimeout,
		KeepAlive: 30 * time.Second,
	}

	jar := c.jar
	if jar == nil {
		cj, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return err
		}
		jar = cj
	}

	c.HTTPClient = &http.Client{
		Transport:     NewTransport(connector, dialer, c.profile.HTTP2, c.transport, c.Logger),
		Jar:           jar,
		Timeout:       c.timeout,
		CheckRedirect: checkRedirect(c.policies),
	}
	return nil
}

// tlsSteps layers client settings over the profile. Later steps win.
func (c *Client) tlsSteps() []tlsconf.Step {
	var steps []tlsconf.Step
	if c.Logger != nil {
		steps = append(steps, tlsconf.WithLogger(c.Logger))
	}
	if c.tls.skipVerify {
		steps = append(steps, tlsconf.WithVerification(false))
	}
	if c.pref.Valid() {
		steps = append(steps, tlsconf.WithALPN(c.pref))
	}
	if c.tls.minVersion.IsSet() {
		steps = append(steps, tlsconf.WithMinVersion(c.tls.minVersion))
	}
	if c.tls.maxVersion.IsSet() {
		steps = append(steps, tlsconf.WithMaxVersion(c.tls.maxVersion))
	}
	if len(c.tls.roots) > 0 {
		steps = append(steps, func(t tlsconf.Template) (tlsconf.Template, error) {
			pool, err := tlsconf.TrustStoreFromPEM(c.tls.roots)
			if err != nil {
				return t, err
			}
			return tlsconf.WithTrustStore(pool)(t)
		})
	}
	if c.tls.nativeRoots {
		steps = append(steps, tlsconf.WithNativeRoots(tlsconf.SystemRoots()))
	}
	return append(steps, c.tls.steps...)
}

// Profile returns the impersonated profile.
func (c *Client) Profile() profiles.Profile {
	return c.profile
}

// Connector returns the TLS connector shared by every connection.
func (c *Client) Connector() *tlsconf.Connector {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if t, ok := c.HTTPClient.Transport.(*Transport); ok {
		return t.Connector()
	}
	return nil
}

// CloseIdleConnections closes idle pooled connections.
func (c *Client) CloseIdleConnections() {
	c.mu.RLock()
	defer c.mu.RUnlock()
	c.HTTPClient.CloseIdleConnections()
}

// SetBaseURL sets the base URL for the client
func (c *Client) SetBaseURL(baseURL string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.BaseURL = baseURL
}

// AddMiddleware adds a middleware to the client
func (c *Client) AddMiddleware(middlewares ...Middleware) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Middlewares = append(c.Middlewares, middlewares...)
}

// SetDefaultHeaders replaces the default headers.
func (c *Client) SetDefaultHeaders(headers assemble.Header) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Headers = headers.Clone()
}

// SetDefaultHeader adds or updates a default header
func (c *Client) SetDefaultHeader(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Headers.Set(key, value)
}

// AddDefaultHeader adds a default header
func (c *Client) AddDefaultHeader(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Headers.Add(key, value)
}

// DelDefaultHeader removes a default header.
func (c *Client) DelDefaultHeader(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Headers.Del(key)
}

// SetDefaultContentType sets the default content type for the client
func (c *Client) SetDefaultContentType(contentType string) {
	c.SetDefaultHeader("content-type", contentType)
}

// SetDefaultAccept sets the default accept header for the client
func (c *Client) SetDefaultAccept(accept string) {
	c.SetDefaultHeader("accept", accept)
}

// SetDefaultUserAgent overrides the user agent of the profile.
func (c *Client) SetDefaultUserAgent(userAgent string) {
	c.SetDefaultHeader("user-agent", userAgent)
}

// SetDefaultReferer sets the default referer for the client
func (c *Client) SetDefaultReferer(referer string) {
	c.SetDefaultHeader("referer", referer)
}

// SetDefaultTimeout sets the overall timeout of a request, redirects included.
func (c *Client) SetDefaultTimeout(timeout time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.timeout = timeout
	if c.HTTPClient != nil {
		c.HTTPClient.Timeout = timeout
	}
}

// SetDefaultCookieJar sets the cookie jar. A nil jar disables cookie
// persistence.
func (c *Client) SetDefaultCookieJar(jar http.CookieJar) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.jar = jar
	if c.HTTPClient != nil {
		c.HTTPClient.Jar = jar
	}
}

// SetDefaultCookies sets the default cookies for the client
func (c *Client) SetDefaultCookies(cookies map[string]string) {
	for name, value := range cookies {
		c.SetDefaultCookie(name, value)
	}
}

// SetDefaultCookie sets a default cookie for the client
func (c *Client) SetDefaultCookie(name, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Cookies = append(c.Cookies, &http.Cookie{Name: name, Value: value})
}

// DelDefaultCookie removes a default cookie from the client
func (c *Client) DelDefaultCookie(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, cookie := range c.Cookies {
		if cookie.Name == name {
			c.Cookies = append(c.Cookies[:i], c.Cookies[i+1:]...)
			break
		}
	}
}

// SetJSONMarshal sets the JSON marshal function.
func (c *Client) SetJSONMarshal(marshalFunc func(v any) ([]byte, error)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.JSONEncoder = &Codec{MarshalFunc: marshalFunc, Type: ContentTypeJSON}
}

// SetJSONUnmarshal sets the JSON unmarshal function.
func (c *Client) SetJSONUnmarshal(unmarshalFunc func(data []byte, v any) error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.JSONDecoder = &Codec{UnmarshalFunc: unmarshalFunc, Type: ContentTypeJSON}
}

// SetXMLMarshal sets the XML marshal function.
func (c *Client) SetXMLMarshal(marshalFunc func(v any) ([]byte, error)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.XMLEncoder = &Codec{MarshalFunc: marshalFunc, Type: ContentTypeXML}
}

// SetXMLUnmarshal sets the XML unmarshal function.
func (c *Client) SetXMLUnmarshal(unmarshalFunc func(data []byte, v any) error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.XMLDecoder = &Codec{UnmarshalFunc: unmarshalFunc, Type: ContentTypeXML}
}

// SetYAMLMarshal sets the YAML marshal function.
func (c *Client) SetYAMLMarshal(marshalFunc func(v any) ([]byte, error)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.YAMLEncoder = &Codec{MarshalFunc: marshalFunc, Type: ContentTypeYAML}
}

// SetYAMLUnmarshal sets the YAML unmarshal function.
func (c *Client) SetYAMLUnmarshal(unmarshalFunc func(data []byte, v any) error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.YAMLDecoder = &Codec{UnmarshalFunc: unmarshalFunc, Type: ContentTypeYAML}
}

// SetMaxRetries sets the maximum number of retry attempts
func (c *Client) SetMaxRetries(maxRetries int) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.MaxRetries = maxRetries
	return c
}

// SetRetryStrategy sets the backoff strategy for retries
func (c *Client) SetRetryStrategy(strategy BackoffStrategy) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.RetryStrategy = strategy
	return c
}

// SetRetryIf sets the custom retry condition function
func (c *Client) SetRetryIf(retryIf RetryIfFunc) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.RetryIf = retryIf
	return c
}

// SetAuth configures an authentication method for the client.
func (c *Client) SetAuth(auth AuthMethod) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if auth.Valid() {
		c.auth = auth
	}
}

// SetRedirectPolicy sets the redirect policy for the client
func (c *Client) SetRedirectPolicy(policies ...RedirectPolicy) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.policies = policies
	if c.HTTPClient != nil {
		c.HTTPClient.CheckRedirect = checkRedirect(policies)
	}
	return c
}

// SetLogger sets logger instance in client.
func (c *Client) SetLogger(logger Logger) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Logger = logger
	return c
}

// SetNetworkSchemes rotates the egress path across retries. Attempt n of a
// request uses selector(n).
func (c *Client) SetNetworkSchemes(selector netscheme.Selector) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.selector = selector
	return c
}

// networkScheme returns the scheme of an attempt.
func (c *Client) networkScheme(attempt int) netscheme.Scheme {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.selector != nil {
		return c.selector(attempt)
	}
	return c.scheme
}

func (c *Client) setErr(err error) {
	if c.err == nil && err != nil {
		c.err = err
	}
}

// errorf records a configuration error returned by New.
func (c *Client) errorf(format string, args ...any) {
	c.setErr(fmt.Errorf(format, args...))
}

// Get initiates a GET request
func (c *Client) Get(path string) *RequestBuilder {
	return c.NewRequestBuilder(http.MethodGet, path)
}

// Post initiates a POST request
func (c *Client) Post(path string) *RequestBuilder {
	return c.NewRequestBuilder(http.MethodPost, path)
}

// Delete initiates a DELETE request
func (c *Client) Delete(path string) *RequestBuilder {
	return c.NewRequestBuilder(http.MethodDelete, path)
}

// Put initiates a PUT request
func (c *Client) Put(path string) *RequestBuilder {
	return c.NewRequestBuilder(http.MethodPut, path)
}

// Patch initiates a PATCH request
func (c *Client) Patch(path string) *RequestBuilder {
	return c.NewRequestBuilder(http.MethodPatch, path)
}

// Options initiates an OPTIONS request
func (c *Client) Options(path string) *RequestBuilder {
	return c.NewRequestBuilder(http.MethodOptions, path)
}

// Head initiates a HEAD request
func (c *Client) Head(path string) *RequestBuilder {
	return c.NewRequestBuilder(http.MethodHead, path)
}

// Custom initiates a custom request
func (c *Client) Custom(path, method string) *RequestBuilder {
	return c.NewRequestBuilder(method, path)
}
