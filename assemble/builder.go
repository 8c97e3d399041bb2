package assemble

import (
	"net/url"
	"slices"

	"github.com/kaptinlin/impersonate/alpn"
	"github.com/kaptinlin/impersonate/netscheme"
)

// Builder collects the parts of a request. Body is terminal: it finalizes
// the request and must be called exactly once.
//
// A builder without a method or a URL, or one reused after Body, is a
// programming error and panics.
type Builder struct {
	method  string
	url     *url.URL
	urlErr  error
	version alpn.Pref
	header  Header
	order   []string
	scheme  netscheme.Scheme
	built   bool
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Method sets the request method.
func (b *Builder) Method(method string) *Builder {
	b.method = method
	return b
}

// URL sets the target URL.
func (b *Builder) URL(u *url.URL) *Builder {
	b.url, b.urlErr = u, nil
	return b
}

// URI parses raw as the target URL.
func (b *Builder) URI(raw string) *Builder {
	b.url, b.urlErr = url.Parse(raw)
	return b
}

// Version sets the preference from a wire protocol version. Versions
// other than HTTP/0.9 to HTTP/2 leave the client default in place.
func (b *Builder) Version(major, minor int) *Builder {
	b.version = alpn.FromProtoVersion(major, minor, 0)
	return b
}

// Pref sets the version preference directly.
func (b *Builder) Pref(p alpn.Pref) *Builder {
	b.version = p
	return b
}

// Headers replaces the header with a copy of h.
func (b *Builder) Headers(h Header) *Builder {
	b.header = h.Clone()
	return b
}

// Header appends a single field.
func (b *Builder) Header(name, value string) *Builder {
	b.header.Add(name, value)
	return b
}

// HeaderOrder sets the canonical order list. A nil list leaves the header
// order and content-length untouched.
func (b *Builder) HeaderOrder(order []string) *Builder {
	b.order = slices.Clone(order)
	return b
}

// NetworkScheme sets the egress path of the first attempt.
func (b *Builder) NetworkScheme(s netscheme.Scheme) *Builder {
	b.scheme = s
	return b
}

// Body sets the payload and returns the finalized request.
func (b *Builder) Body(body Body) *Request {
	switch {
	case b.built:
		panic("assemble: builder reused after Body")
	case b.method == "":
		panic("assemble: request without method")
	case b.urlErr != nil:
		panic("assemble: invalid request url: " + b.urlErr.Error())
	case b.url == nil:
		panic("assemble: request without url")
	}
	b.built = true

	u := *b.url
	r := &Request{
		Method:  b.method,
		URL:     &u,
		Version: b.version,
		Header:  b.header.Clone(),
		Body:    body,
		Scheme:  b.scheme,
		order:   b.order,
	}
	r.finalize()
	return r
}
