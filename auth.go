package impersonate

import (
	"encoding/base64"

	"github.com/kaptinlin/impersonate/assemble"
)

// AuthMethod writes credentials into the request header before the header
// is put in wire order.
type AuthMethod interface {
	Apply(h *assemble.Header)
	Valid() bool
}

// BasicAuth represents HTTP Basic Authentication credentials.
type BasicAuth struct {
	Username string
	Password string
}

// Apply adds the Basic Auth credentials to the header.
func (b BasicAuth) Apply(h *assemble.Header) {
	cred := base64.StdEncoding.EncodeToString([]byte(b.Username + ":" + b.Password))
	h.Set("authorization", "Basic "+cred)
}

// Valid checks if the Basic Auth credentials are present.
func (b BasicAuth) Valid() bool {
	return b.Username != "" && b.Password != ""
}

// BearerAuth represents an OAuth 2.0 Bearer token.
type BearerAuth struct {
	Token string
}

// Apply adds the Bearer token to the Authorization header.
func (b BearerAuth) Apply(h *assemble.Header) {
	if b.Valid() {
		h.Set("authorization", "Bearer "+b.Token)
	}
}

// Valid checks if the Bearer token is present.
func (b BearerAuth) Valid() bool {
	return b.Token != ""
}

// CustomAuth allows for custom Authorization header values.
type CustomAuth struct {
	Header string
}

// Apply sets a custom Authorization header value.
func (c CustomAuth) Apply(h *assemble.Header) {
	if c.Valid() {
		h.Set("authorization", c.Header)
	}
}

// Valid checks if the custom Authorization header value is present.
func (c CustomAuth) Valid() bool {
	return c.Header != ""
}
