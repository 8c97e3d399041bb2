package impersonate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	http "github.com/bogdanfinn/fhttp"
	"github.com/google/go-querystring/query"

	"github.com/kaptinlin/impersonate/alpn"
	"github.com/kaptinlin/impersonate/assemble"
	"github.com/kaptinlin/impersonate/netscheme"
)

// RequestBuilder facilitates building and executing HTTP requests
type RequestBuilder struct {
	client        *Client
	method        string
	path          string
	headers       assemble.Header
	cookies       []*http.Cookie
	queries       url.Values
	pathParams    map[string]string
	formFields    url.Values
	formFiles     []*File
	boundary      string
	bodyData      any
	rawBody       *assemble.Body
	timeout       time.Duration
	middlewares   []Middleware
	maxRetries    int
	retryStrategy BackoffStrategy
	retryIf       RetryIfFunc
	auth          AuthMethod
	version       alpn.Pref
	scheme        *netscheme.Scheme
	stream        StreamCallback
	streamErr     StreamErrCallback
	streamDone    StreamDoneCallback
}

// NewRequestBuilder creates a new RequestBuilder with default settings
func (c *Client) NewRequestBuilder(method, path string) *RequestBuilder {
	return &RequestBuilder{
		client:  c,
		method:  method,
		path:    path,
		queries: url.Values{},
	}
}

// AddMiddleware adds a middleware to the request.
func (b *RequestBuilder) AddMiddleware(middlewares ...Middleware) *RequestBuilder {
	b.middlewares = append(b.middlewares, middlewares...)
	return b
}

// Method sets the HTTP method for the request.
func (b *RequestBuilder) Method(method string) *RequestBuilder {
	b.method = method
	return b
}

// Path sets the URL path for the request.
func (b *RequestBuilder) Path(path string) *RequestBuilder {
	b.path = path
	return b
}

// PathParams sets multiple path params fields and their values at one go in the RequestBuilder instance.
func (b *RequestBuilder) PathParams(params map[string]string) *RequestBuilder {
	if b.pathParams == nil {
		b.pathParams = map[string]string{}
	}
	for key, value := range params {
		b.pathParams[key] = value
	}
	return b
}

// PathParam sets a single path param field and its value in the RequestBuilder instance.
func (b *RequestBuilder) PathParam(key, value string) *RequestBuilder {
	if b.pathParams == nil {
		b.pathParams = map[string]string{}
	}
	b.pathParams[key] = value
	return b
}

// DelPathParam removes one or more path params fields from the RequestBuilder instance.
func (b *RequestBuilder) DelPathParam(key ...string) *RequestBuilder {
	for _, k := range key {
		delete(b.pathParams, k)
	}
	return b
}

// preparePath replaces path parameters in the URL path.
func (b *RequestBuilder) preparePath() string {
	preparedPath := b.path
	for key, value := range b.pathParams {
		preparedPath = strings.ReplaceAll(preparedPath, "{"+key+"}", url.PathEscape(value))
	}
	return preparedPath
}

// Queries adds query parameters to the request
func (b *RequestBuilder) Queries(params url.Values) *RequestBuilder {
	for key, values := range params {
		for _, value := range values {
			b.queries.Add(key, value)
		}
	}
	return b
}

// Query adds a single query parameter to the request
func (b *RequestBuilder) Query(key, value string) *RequestBuilder {
	b.queries.Add(key, value)
	return b
}

// DelQuery removes one or more query parameters from the request.
func (b *RequestBuilder) DelQuery(key ...string) *RequestBuilder {
	for _, k := range key {
		b.queries.Del(k)
	}
	return b
}

// QueriesStruct adds query parameters from a struct tagged with url tags.
func (b *RequestBuilder) QueriesStruct(queryStruct any) *RequestBuilder {
	values, err := query.Values(queryStruct)
	if err != nil {
		b.logf("Error encoding query struct: %v", err)
		return b
	}
	return b.Queries(values)
}

// Headers sets every field of headers, in their order.
func (b *RequestBuilder) Headers(headers assemble.Header) *RequestBuilder {
	for _, f := range headers.Fields() {
		b.headers.Set(f.Name, f.Value)
	}
	return b
}

// Header sets (or replaces) a header in the request.
func (b *RequestBuilder) Header(key, value string) *RequestBuilder {
	b.headers.Set(key, value)
	return b
}

// AddHeader adds a header to the request.
func (b *RequestBuilder) AddHeader(key, value string) *RequestBuilder {
	b.headers.Add(key, value)
	return b
}

// DelHeader removes one or more headers from the request.
func (b *RequestBuilder) DelHeader(key ...string) *RequestBuilder {
	for _, k := range key {
		b.headers.Del(k)
	}
	return b
}

// Cookies method for map
func (b *RequestBuilder) Cookies(cookies map[string]string) *RequestBuilder {
	for key, value := range cookies {
		b.Cookie(key, value)
	}
	return b
}

// Cookie adds a cookie to the request.
func (b *RequestBuilder) Cookie(key, value string) *RequestBuilder {
	b.cookies = append(b.cookies, &http.Cookie{Name: key, Value: value})
	return b
}

// DelCookie removes one or more cookies from the request.
func (b *RequestBuilder) DelCookie(key ...string) *RequestBuilder {
	b.cookies = slices.DeleteFunc(b.cookies, func(c *http.Cookie) bool {
		return slices.Contains(key, c.Name)
	})
	return b
}

// ContentType sets the Content-Type header for the request.
func (b *RequestBuilder) ContentType(contentType string) *RequestBuilder {
	b.headers.Set("content-type", contentType)
	return b
}

// Accept sets the Accept header for the request.
func (b *RequestBuilder) Accept(accept string) *RequestBuilder {
	b.headers.Set("accept", accept)
	return b
}

// UserAgent sets the User-Agent header for the request.
func (b *RequestBuilder) UserAgent(userAgent string) *RequestBuilder {
	b.headers.Set("user-agent", userAgent)
	return b
}

// Referer sets the Referer header for the request.
func (b *RequestBuilder) Referer(referer string) *RequestBuilder {
	b.headers.Set("referer", referer)
	return b
}

// Auth applies an authentication method to the request.
func (b *RequestBuilder) Auth(auth AuthMethod) *RequestBuilder {
	if auth.Valid() {
		b.auth = auth
	}
	return b
}

// Form sets form fields and files for the request
func (b *RequestBuilder) Form(v any) *RequestBuilder {
	formFields, formFiles, err := parseForm(v)
	if err != nil {
		b.logf("Error parsing form: %v", err)
		return b
	}
	if formFields != nil {
		b.formFields = formFields
	}
	if formFiles != nil {
		b.formFiles = formFiles
	}
	return b
}

// FormFields sets multiple form fields at once
func (b *RequestBuilder) FormFields(fields any) *RequestBuilder {
	values, err := toValues(fields)
	if err != nil {
		b.logf("Error parsing form fields: %v", err)
		return b
	}
	if b.formFields == nil {
		b.formFields = url.Values{}
	}
	for key, value := range values {
		for _, v := range value {
			b.formFields.Add(key, v)
		}
	}
	return b
}

// FormField adds or updates a form field
func (b *RequestBuilder) FormField(key, val string) *RequestBuilder {
	if b.formFields == nil {
		b.formFields = url.Values{}
	}
	b.formFields.Add(key, val)
	return b
}

// DelFormField removes one or more form fields
func (b *RequestBuilder) DelFormField(key ...string) *RequestBuilder {
	for _, k := range key {
		b.formFields.Del(k)
	}
	return b
}

// Files sets multiple files at once
func (b *RequestBuilder) Files(files ...*File) *RequestBuilder {
	b.formFiles = append(b.formFiles, files...)
	return b
}

// File adds a file to the request
func (b *RequestBuilder) File(key, filename string, content io.ReadCloser) *RequestBuilder {
	b.formFiles = append(b.formFiles, &File{
		Name:     key,
		FileName: filename,
		Content:  content,
	})
	return b
}

// DelFile removes one or more files from the request
func (b *RequestBuilder) DelFile(key ...string) *RequestBuilder {
	b.formFiles = slices.DeleteFunc(b.formFiles, func(f *File) bool {
		return slices.Contains(key, f.Name)
	})
	return b
}

// Boundary sets a fixed multipart boundary.
func (b *RequestBuilder) Boundary(boundary string) *RequestBuilder {
	b.boundary = boundary
	return b
}

// Body sets the request body. Its encoding follows the Content-Type header,
// or is inferred from the value type when none is set.
func (b *RequestBuilder) Body(body any) *RequestBuilder {
	b.bodyData = body
	return b
}

// JSONBody encodes v as JSON.
func (b *RequestBuilder) JSONBody(v any) *RequestBuilder {
	b.bodyData = v
	b.headers.Set("content-type", b.client.JSONEncoder.ContentType())
	return b
}

// XMLBody encodes v as XML.
func (b *RequestBuilder) XMLBody(v any) *RequestBuilder {
	b.bodyData = v
	b.headers.Set("content-type", b.client.XMLEncoder.ContentType())
	return b
}

// YAMLBody encodes v as YAML.
func (b *RequestBuilder) YAMLBody(v any) *RequestBuilder {
	b.bodyData = v
	b.headers.Set("content-type", b.client.YAMLEncoder.ContentType())
	return b
}

// TextBody sends v as plain text.
func (b *RequestBuilder) TextBody(v string) *RequestBuilder {
	b.bodyData = v
	b.headers.Set("content-type", ContentTypeText)
	return b
}

// RawBody sends v unchanged.
func (b *RequestBuilder) RawBody(v []byte) *RequestBuilder {
	body := assemble.Bytes(v)
	b.rawBody = &body
	return b
}

// ReaderBody streams r. The length is unknown, so no content-length is
// sent and the request cannot be retried once r was read.
func (b *RequestBuilder) ReaderBody(r io.Reader) *RequestBuilder {
	body := assemble.Reader(r)
	b.rawBody = &body
	return b
}

// SizedBody streams exactly n bytes of r.
func (b *RequestBuilder) SizedBody(r io.Reader, n int64) *RequestBuilder {
	body := assemble.Sized(r, n)
	b.rawBody = &body
	return b
}

// Version sets the protocol version of the request, e.g. (1, 1) or (2, 0).
// The client default applies to versions it does not know.
func (b *RequestBuilder) Version(major, minor int) *RequestBuilder {
	b.version = alpn.FromProtoVersion(major, minor, 0)
	return b
}

// HTTPVersion sets the protocol preference of the request.
func (b *RequestBuilder) HTTPVersion(p alpn.Pref) *RequestBuilder {
	b.version = p
	return b
}

// NetworkScheme pins the egress path of every attempt of this request.
func (b *RequestBuilder) NetworkScheme(s netscheme.Scheme) *RequestBuilder {
	b.scheme = &s
	return b
}

// Timeout sets the request timeout
func (b *RequestBuilder) Timeout(timeout time.Duration) *RequestBuilder {
	b.timeout = timeout
	return b
}

// MaxRetries sets the maximum number of retry attempts
func (b *RequestBuilder) MaxRetries(maxRetries int) *RequestBuilder {
	b.maxRetries = maxRetries
	return b
}

// RetryStrategy sets the backoff strategy for retries
func (b *RequestBuilder) RetryStrategy(strategy BackoffStrategy) *RequestBuilder {
	b.retryStrategy = strategy
	return b
}

// RetryIf sets the custom retry condition function
func (b *RequestBuilder) RetryIf(retryIf RetryIfFunc) *RequestBuilder {
	b.retryIf = retryIf
	return b
}

// Stream delivers the response body line by line to callback instead of
// buffering it.
func (b *RequestBuilder) Stream(callback StreamCallback) *RequestBuilder {
	b.stream = callback
	return b
}

// StreamErr sets the callback for read errors while streaming.
func (b *RequestBuilder) StreamErr(callback StreamErrCallback) *RequestBuilder {
	b.streamErr = callback
	return b
}

// StreamDone sets the callback run after the stream ends.
func (b *RequestBuilder) StreamDone(callback StreamDoneCallback) *RequestBuilder {
	b.streamDone = callback
	return b
}

func (b *RequestBuilder) logf(format string, args ...any) {
	if b.client.Logger != nil {
		b.client.Logger.Errorf(format, args...)
	}
}

// Build assembles the request without sending it. The header is merged
// from the profile, client and request, then put in wire order.
func (b *RequestBuilder) Build() (*assemble.Request, error) {
	body, contentType, err := b.prepareBody()
	if err != nil {
		b.logf("Error preparing request body: %v", err)
		return nil, err
	}

	c := b.client
	c.mu.RLock()
	baseURL := c.BaseURL
	c.mu.RUnlock()

	parsedURL, err := url.Parse(baseURL + b.preparePath())
	if err != nil {
		b.logf("Error parsing URL: %v", err)
		return nil, fmt.Errorf("%w: %w", ErrRequestCreationFailed, err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("%w: %q is not an absolute url", ErrRequestCreationFailed, parsedURL.String())
	}
	q := parsedURL.Query()
	for key, values := range b.queries {
		for _, value := range values {
			q.Set(key, value)
		}
	}
	parsedURL.RawQuery = q.Encode()

	builder := assemble.NewBuilder().
		Method(b.method).
		URL(parsedURL).
		Pref(b.version).
		Headers(b.header(contentType)).
		HeaderOrder(c.order())
	if b.scheme != nil {
		builder.NetworkScheme(*b.scheme)
	}
	return builder.Body(body), nil
}

// header merges the header layers. Later layers replace earlier values
// but keep their position.
func (b *RequestBuilder) header(contentType string) assemble.Header {
	c := b.client
	c.mu.RLock()
	defer c.mu.RUnlock()

	var h assemble.Header
	if !c.skipHeaders {
		h = c.profile.DefaultHeaders(c.os)
	}
	overlay(&h, c.Headers)
	overlay(&h, b.headers)
	if contentType != "" {
		h.Set("content-type", contentType)
	}

	switch {
	case b.auth != nil:
		b.auth.Apply(&h)
	case c.auth != nil:
		c.auth.Apply(&h)
	}

	cookies := make([]string, 0, len(c.Cookies)+len(b.cookies))
	for _, ck := range slices.Concat(c.Cookies, b.cookies) {
		cookies = append(cookies, ck.String())
	}
	if len(cookies) > 0 {
		if existing := h.Get("cookie"); existing != "" {
			cookies = append([]string{existing}, cookies...)
		}
		h.Set("cookie", strings.Join(cookies, "; "))
	}
	return h
}

// overlay replaces the values of every name present in layer. The first
// value takes the position of the existing field.
func overlay(h *assemble.Header, layer assemble.Header) {
	for _, name := range layer.Names() {
		values := layer.Values(name)
		h.Set(name, values[0])
		for _, v := range values[1:] {
			h.Add(name, v)
		}
	}
}

// order returns the canonical header order, nil when none applies.
func (c *Client) order() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.headerOrder != nil {
		return c.headerOrder
	}
	return c.profile.HeaderOrder
}

// Send assembles the request once and sends it, retrying according to the
// retry settings. Retries may egress along another network scheme but
// never change the header.
func (b *RequestBuilder) Send(ctx context.Context) (*Response, error) {
	areq, err := b.Build()
	if err != nil {
		return nil, err
	}

	var cancel context.CancelFunc
	if _, ok := ctx.Deadline(); !ok && b.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
	}

	resp, err := b.do(ctx, areq)
	if err != nil {
		if cancel != nil {
			cancel()
		}
		b.logf("Error executing request: %v", err)
		return nil, err
	}

	response, err := NewResponse(ctx, resp, b.client, b.stream, b.streamErr, b.streamDone)
	if cancel != nil {
		if b.stream != nil && response != nil {
			response.cancel = cancel
		} else {
			cancel()
		}
	}
	return response, err
}

func (b *RequestBuilder) do(ctx context.Context, areq *assemble.Request) (*http.Response, error) {
	c := b.client
	c.mu.RLock()
	maxRetries := c.MaxRetries
	retryStrategy := c.RetryStrategy
	retryIf := c.RetryIf
	middlewares := slices.Clone(c.Middlewares)
	httpClient := c.HTTPClient
	c.mu.RUnlock()

	if b.maxRetries > 0 {
		maxRetries = b.maxRetries
	}
	if b.retryStrategy != nil {
		retryStrategy = b.retryStrategy
	}
	if b.retryIf != nil {
		retryIf = b.retryIf
	}

	send := chain(func(req *http.Request) (*http.Response, error) {
		return httpClient.Do(req)
	}, middlewares, b.middlewares)

	var lastErr error
	var resp *http.Response
	for attempt := 0; attempt <= maxRetries; attempt++ {
		scheme := areq.Scheme
		if b.scheme == nil {
			scheme = c.networkScheme(attempt)
		}

		req, err := newHTTPRequest(ctx, areq.WithNetworkScheme(scheme))
		if err != nil {
			if errors.Is(err, assemble.ErrBodyConsumed) && lastErr != nil {
				return nil, fmt.Errorf("%w: %w", ErrBodyNotReplayable, lastErr)
			}
			return nil, err
		}
		resp, lastErr = send(req)
		if lastErr != nil {
			// a rejected redirect returns the last response, body already closed
			resp = nil
		}

		shouldRetry := !isRedirectRejection(lastErr) &&
			(lastErr != nil || (retryIf != nil && retryIf(req, resp, lastErr)))
		if !shouldRetry || attempt == maxRetries {
			if lastErr != nil && maxRetries > 0 && c.Logger != nil {
				c.Logger.Errorf("Error after %d attempts: %v", attempt+1, lastErr)
			}
			break
		}

		if resp != nil {
			resp.Body.Close() //nolint:errcheck
			if lastErr == nil {
				lastErr = fmt.Errorf("retryable status %d", resp.StatusCode)
			}
			resp = nil
		}

		if c.Logger != nil {
			c.Logger.Infof("Retrying request (attempt %d) after backoff", attempt+1)
		}

		select {
		case <-ctx.Done():
			if c.Logger != nil {
				c.Logger.Errorf("Request canceled or timed out: %v", ctx.Err())
			}
			return nil, ctx.Err()
		case <-time.After(retryStrategy(attempt)):
		}
	}

	if resp != nil {
		return resp, nil
	}
	return nil, lastErr
}

// newHTTPRequest converts an assembled request into the fhttp request of
// one attempt. Field names and their order are carried in the header
// order keys; host and content-length are set on the request itself.
func newHTTPRequest(ctx context.Context, r *assemble.Request) (*http.Request, error) {
	ctx = netscheme.NewContext(ctx, r.Scheme)
	ctx = withPref(ctx, r.Version)

	var body io.Reader
	if !r.Body.IsNone() {
		if r.Body.Replayable() {
			body = bytes.NewReader(r.Body.Bytes())
		} else {
			rc, err := r.Body.Open()
			if err != nil {
				return nil, err
			}
			body = rc
		}
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL.String(), body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRequestCreationFailed, err)
	}
	if n, ok := r.Body.Len(); ok {
		req.ContentLength = n
	} else if !r.Body.IsNone() && !r.Body.Replayable() {
		req.ContentLength = -1
	}

	for _, f := range r.Header.Fields() {
		switch name := strings.ToLower(f.Name); name {
		case "host":
			req.Host = f.Value
		case assemble.ContentLength:
			if n, err := strconv.ParseInt(f.Value, 10, 64); err == nil {
				req.ContentLength = n
			}
		default:
			req.Header.Add(f.Name, f.Value)
		}
	}
	if !r.Header.Has("user-agent") {
		// non-nil and empty keeps fhttp from adding its own
		req.Header["User-Agent"] = []string{}
	}
	if order := wireOrder(r.Header, r.HeaderOrder()); len(order) > 0 {
		req.Header[http.HeaderOrderKey] = order
	}
	return req, nil
}

// wireOrder lists header names in the order fhttp writes them. Names of
// the canonical order come first so fields added at send time, such as
// host or jar cookies, take their canonical slot. Assembled names outside
// the canonical order follow in assembled order.
func wireOrder(h assemble.Header, canonical []string) []string {
	order := make([]string, 0, len(canonical)+h.Len())
	for _, name := range canonical {
		if name = strings.ToLower(name); !slices.Contains(order, name) {
			order = append(order, name)
		}
	}
	for _, f := range h.Fields() {
		if name := strings.ToLower(f.Name); !slices.Contains(order, name) {
			order = append(order, name)
		}
	}
	return order
}

// prepareBody encodes the payload. Encoded payloads are in memory and can
// be resent; only ReaderBody and SizedBody stream.
func (b *RequestBuilder) prepareBody() (assemble.Body, string, error) {
	switch {
	case len(b.formFiles) > 0:
		data, contentType, err := encodeMultipart(b.boundary, b.formFields, b.formFiles)
		if err != nil {
			return assemble.NoBody, "", err
		}
		return assemble.Bytes(data), contentType, nil
	case len(b.formFields) > 0:
		return assemble.String(b.formFields.Encode()), ContentTypeForm, nil
	case b.rawBody != nil:
		return *b.rawBody, "", nil
	case b.bodyData != nil:
		return b.prepareBodyBasedOnContentType()
	default:
		return assemble.NoBody, "", nil
	}
}

// mediaType strips parameters from a Content-Type value.
func mediaType(contentType string) string {
	mt, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}

func (b *RequestBuilder) prepareBodyBasedOnContentType() (assemble.Body, string, error) {
	contentType := b.contentType()
	if contentType == "" {
		switch b.bodyData.(type) {
		case url.Values, map[string][]string, map[string]string:
			contentType = ContentTypeForm
		case string, []byte:
			contentType = ContentTypeText
		default:
			contentType = b.client.JSONEncoder.ContentType()
		}
	}

	var encoder Encoder
	switch mediaType(contentType) {
	case "application/json":
		encoder = b.client.JSONEncoder
	case "application/xml", "text/xml":
		encoder = b.client.XMLEncoder
	case "application/yaml", "application/x-yaml":
		encoder = b.client.YAMLEncoder
	case ContentTypeForm:
		encoder = DefaultFormEncoder
	default:
		switch data := b.bodyData.(type) {
		case string:
			return assemble.String(data), contentType, nil
		case []byte:
			return assemble.Bytes(data), contentType, nil
		default:
			return assemble.NoBody, "", fmt.Errorf("%w: %s", ErrUnsupportedContentType, contentType)
		}
	}

	data, err := encoder.Encode(b.bodyData)
	if err != nil {
		return assemble.NoBody, "", err
	}
	return assemble.Bytes(data), contentType, nil
}

// contentType returns the Content-Type set on the request or client.
func (b *RequestBuilder) contentType() string {
	if ct := b.headers.Get("content-type"); ct != "" {
		return ct
	}
	b.client.mu.RLock()
	defer b.client.mu.RUnlock()
	return b.client.Headers.Get("content-type")
}
