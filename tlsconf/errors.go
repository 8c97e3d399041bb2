package tlsconf

import "errors"

// ErrALPN is returned when the encoded ALPN protocol list is malformed.
var ErrALPN = errors.New("tlsconf: invalid alpn protocol list")

// ErrDuplicateCompression is returned when a certificate compression
// algorithm is registered twice.
var ErrDuplicateCompression = errors.New("tlsconf: duplicate certificate compression algorithm")

// ErrNilCompression is returned when a certificate compressor lacks a
// compress or decompress function.
var ErrNilCompression = errors.New("tlsconf: certificate compressor is missing a function")

// ErrUnknownCompression is returned by Decompress for an algorithm that was
// never registered.
var ErrUnknownCompression = errors.New("tlsconf: unknown certificate compression algorithm")

// ErrVersionRange is returned when the minimum TLS version exceeds the maximum.
var ErrVersionRange = errors.New("tlsconf: invalid tls version range")

// ErrTrustStore is returned when a custom trust store cannot be parsed.
var ErrTrustStore = errors.New("tlsconf: invalid trust store")

// ErrNoSpecFactory is returned by Build when no ClientHello factory is given.
var ErrNoSpecFactory = errors.New("tlsconf: missing client hello factory")

// ErrAttemptFinalized is returned when an attempt is modified after Spec.
var ErrAttemptFinalized = errors.New("tlsconf: attempt already finalized")

// ErrNoRoots is returned by the default native root source when no
// certificate bundle exists on the host.
var ErrNoRoots = errors.New("tlsconf: no native root certificates found")
