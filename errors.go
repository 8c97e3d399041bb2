package impersonate

import (
	"context"
	"errors"
	"net"

	"github.com/kaptinlin/impersonate/netscheme"
	"github.com/kaptinlin/impersonate/profiles"
)

var (
	// ErrUnsupportedContentType is returned when the content type is unsupported.
	ErrUnsupportedContentType = errors.New("unsupported content type")

	// ErrUnsupportedDataType is returned when the data type is unsupported.
	ErrUnsupportedDataType = errors.New("unsupported data type")

	// ErrEncodingFailed is returned when the encoding fails.
	ErrEncodingFailed = errors.New("encoding failed")

	// ErrRequestCreationFailed is returned when the request cannot be created.
	ErrRequestCreationFailed = errors.New("failed to create request")

	// ErrResponseReadFailed is returned when the response cannot be read.
	ErrResponseReadFailed = errors.New("failed to read response")

	// ErrUnsupportedContentEncoding is returned for response encodings that
	// cannot be decoded.
	ErrUnsupportedContentEncoding = errors.New("unsupported content encoding")

	// ErrUnsupportedFormFieldsType is returned when the form fields type is unsupported.
	ErrUnsupportedFormFieldsType = errors.New("unsupported form fields type")

	// ErrNotSupportSaveMethod is returned when the provided type for saving is not supported.
	ErrNotSupportSaveMethod = errors.New("unsupported save type")

	// ErrAutoRedirectDisabled is returned when the auto redirect is disabled.
	ErrAutoRedirectDisabled = errors.New("auto redirect disabled")

	// ErrTooManyRedirects is returned when the number of redirects is too many.
	ErrTooManyRedirects = errors.New("too many redirects")

	// ErrRedirectNotAllowed is returned when the redirect is not allowed.
	ErrRedirectNotAllowed = errors.New("redirect not allowed")

	// ErrALPNMismatch is returned when a server negotiates a protocol the
	// connection was not dialed for.
	ErrALPNMismatch = errors.New("negotiated protocol does not match")

	// ErrHTTP2Required is returned when HTTP/2 was required but the server
	// only speaks HTTP/1.1.
	ErrHTTP2Required = errors.New("server does not support HTTP/2")

	// ErrBodyNotReplayable is returned when a request must be resent but its
	// streaming body was already consumed.
	ErrBodyNotReplayable = errors.New("request body cannot be replayed")

	// ErrUnsupportedScheme is returned when the proxy scheme is unsupported.
	ErrUnsupportedScheme = netscheme.ErrUnsupportedScheme

	// ErrNoProxies is returned when no proxy URLs are provided to a rotation function.
	ErrNoProxies = netscheme.ErrNoProxies

	// ErrUnknownProfile is returned for impersonation profiles that do not exist.
	ErrUnknownProfile = profiles.ErrUnknownProfile
)

// IsTimeout reports whether err is or wraps a timeout error.
// It checks for context.DeadlineExceeded and net.Error timeout errors.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsConnectionError reports whether err is a connection-level failure
// (DNS resolution, TCP connect, proxy tunnel, TLS handshake).
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, netscheme.ErrProxyConnect) || errors.Is(err, ErrALPNMismatch) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}
