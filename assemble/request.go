// Package assemble builds outgoing requests whose header order and
// content-length are finalized once, before the first send attempt.
package assemble

import (
	"net/url"
	"slices"
	"strconv"

	"github.com/kaptinlin/impersonate/alpn"
	"github.com/kaptinlin/impersonate/netscheme"
)

// ContentLength is the header injected for bodies of known length.
const ContentLength = "content-length"

// Request is a finalized outgoing request. Its header is already in wire
// order; retries reuse it and only swap the network scheme.
type Request struct {
	Method string
	URL    *url.URL
	// Version is the per-request protocol preference, zero when the
	// client default applies.
	Version alpn.Pref
	Header  Header
	Body    Body
	Scheme  netscheme.Scheme

	order []string
}

// HeaderOrder returns the canonical order list the request was sorted by,
// or nil when none was given.
func (r *Request) HeaderOrder() []string {
	return slices.Clone(r.order)
}

// Clone returns a copy sharing the body but not the header or URL.
func (r *Request) Clone() *Request {
	out := *r
	u := *r.URL
	out.URL = &u
	out.Header = r.Header.Clone()
	out.order = slices.Clone(r.order)
	return &out
}

// WithNetworkScheme returns a copy of r that egresses along s. Header
// order and content-length are carried over untouched.
func (r *Request) WithNetworkScheme(s netscheme.Scheme) *Request {
	out := r.Clone()
	out.Scheme = s
	return out
}

// finalize injects content-length and sorts the header when an order list
// is present. Without one the header is sent as given.
func (r *Request) finalize() {
	if r.order == nil {
		return
	}
	if n, ok := r.Body.Len(); ok && !r.Header.Has(ContentLength) {
		r.Header.Add(ContentLength, strconv.FormatInt(n, 10))
	}
	SortHeaders(&r.Header, r.order)
}
