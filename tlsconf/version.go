package tlsconf

import (
	"fmt"
	"strings"

	utls "github.com/refraction-networking/utls"
)

// Version is one of the four TLS protocol levels a profile may bound the
// handshake with. The zero value means "unset": the engine default applies.
type Version uint8

// Supported protocol levels.
const (
	TLS10 Version = iota + 1
	TLS11
	TLS12
	TLS13
)

// Wire returns the engine identifier for v, or 0 when v is unset.
func (v Version) Wire() uint16 {
	switch v {
	case TLS10:
		return utls.VersionTLS10
	case TLS11:
		return utls.VersionTLS11
	case TLS12:
		return utls.VersionTLS12
	case TLS13:
		return utls.VersionTLS13
	default:
		return 0
	}
}

// IsSet reports whether v names a protocol level.
func (v Version) IsSet() bool {
	return v >= TLS10 && v <= TLS13
}

func (v Version) String() string {
	switch v {
	case TLS10:
		return "TLS1.0"
	case TLS11:
		return "TLS1.1"
	case TLS12:
		return "TLS1.2"
	case TLS13:
		return "TLS1.3"
	default:
		return "unset"
	}
}

// ParseVersion accepts "1.0".."1.3", optionally prefixed with "tls".
// An empty string is the unset version.
func ParseVersion(s string) (Version, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "tls")
	s = strings.TrimPrefix(s, "v")
	switch s {
	case "":
		return 0, nil
	case "1.0", "10":
		return TLS10, nil
	case "1.1", "11":
		return TLS11, nil
	case "1.2", "12":
		return TLS12, nil
	case "1.3", "13":
		return TLS13, nil
	default:
		return 0, fmt.Errorf("%w: unknown tls version %q", ErrVersionRange, s)
	}
}
