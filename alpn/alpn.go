// Package alpn maps HTTP protocol versions to the abstract version preference a
// client advertises, and that preference to ALPN wire bytes.
package alpn

import (
	"errors"
	"fmt"
)

// Pref is the HTTP version preference advertised during the TLS handshake.
type Pref uint8

const (
	// Http1 offers only http/1.1.
	Http1 Pref = iota + 1
	// Http2 offers only h2.
	Http2
	// Both offers h2 followed by http/1.1.
	Both
)

// Default is the preference used when none was configured.
const Default = Both

const (
	// ProtoHTTP1 is the ALPN identifier for HTTP/1.1.
	ProtoHTTP1 = "http/1.1"
	// ProtoHTTP2 is the ALPN identifier for HTTP/2 over TLS.
	ProtoHTTP2 = "h2"
)

// ErrMalformed is returned when an ALPN byte string cannot be parsed.
var ErrMalformed = errors.New("alpn: malformed protocol list")

var (
	wireHTTP1 = []byte("\x08http/1.1")
	wireHTTP2 = []byte("\x02h2")
	wireBoth  = []byte("\x02h2\x08http/1.1")
)

// String returns a readable name of the preference.
func (p Pref) String() string {
	switch p {
	case Http1:
		return "http1"
	case Http2:
		return "http2"
	case Both:
		return "both"
	default:
		return fmt.Sprintf("Pref(%d)", uint8(p))
	}
}

// Valid reports whether p is one of the three known preferences.
func (p Pref) Valid() bool {
	return p >= Http1 && p <= Both
}

// OrDefault returns p, or def when p is not set.
func (p Pref) OrDefault(def Pref) Pref {
	if p.Valid() {
		return p
	}
	return def
}

// Protocols returns the ALPN identifiers for p in wire order.
func (p Pref) Protocols() []string {
	switch p.OrDefault(Default) {
	case Http1:
		return []string{ProtoHTTP1}
	case Http2:
		return []string{ProtoHTTP2}
	default:
		return []string{ProtoHTTP2, ProtoHTTP1}
	}
}

// ApplicationProtocol is the protocol carried by the application settings
// extension: h2 for any preference that offers HTTP/2.
func (p Pref) ApplicationProtocol() string {
	if p.OrDefault(Default) == Http1 {
		return ProtoHTTP1
	}
	return ProtoHTTP2
}

// FromProtoVersion maps a wire protocol version to a preference.
// HTTP/0.9, 1.0 and 1.1 map to Http1, HTTP/2 maps to Http2, anything
// else falls back to def.
func FromProtoVersion(major, minor int, def Pref) Pref {
	switch {
	case major == 0 && minor == 9, major == 1 && (minor == 0 || minor == 1):
		return Http1
	case major == 2 && minor == 0:
		return Http2
	default:
		return def
	}
}

// Encode returns the length-prefixed ALPN list for p. When both protocols
// are offered h2 comes first.
func Encode(p Pref) []byte {
	var src []byte
	switch p.OrDefault(Default) {
	case Http1:
		src = wireHTTP1
	case Http2:
		src = wireHTTP2
	default:
		src = wireBoth
	}
	out := make([]byte, len(src))
	copy(out, src)
	return out
}

// Decode parses a length-prefixed ALPN list.
func Decode(b []byte) ([]string, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty list", ErrMalformed)
	}
	var protos []string
	for len(b) > 0 {
		n := int(b[0])
		if n == 0 {
			return nil, fmt.Errorf("%w: empty protocol identifier", ErrMalformed)
		}
		if len(b) < 1+n {
			return nil, fmt.Errorf("%w: truncated protocol identifier", ErrMalformed)
		}
		protos = append(protos, string(b[1:1+n]))
		b = b[1+n:]
	}
	return protos, nil
}

// Parse maps an ALPN protocol list back to a preference. Lists that are
// neither of the three known shapes report false.
func Parse(protos []string) (Pref, bool) {
	switch {
	case len(protos) == 1 && protos[0] == ProtoHTTP1:
		return Http1, true
	case len(protos) == 1 && protos[0] == ProtoHTTP2:
		return Http2, true
	case len(protos) == 2 && protos[0] == ProtoHTTP2 && protos[1] == ProtoHTTP1:
		return Both, true
	default:
		return 0, false
	}
}

// ParseName maps a configuration string ("http1", "http2", "both", "1.1",
// "2", "h2", "http/1.1") to a preference.
func ParseName(name string) (Pref, error) {
	switch name {
	case "http1", "1.1", "http/1.1", "HTTP/1.1":
		return Http1, nil
	case "http2", "2", "h2", "HTTP/2":
		return Http2, nil
	case "both", "all", "":
		return Both, nil
	default:
		return 0, fmt.Errorf("alpn: unknown http version %q", name)
	}
}
