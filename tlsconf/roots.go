package tlsconf

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"sync"
)

// certBundles lists the PEM bundles checked by the default native root
// source, in order. SSL_CERT_FILE takes precedence over all of them.
var certBundles = []string{
	"/etc/ssl/certs/ca-certificates.crt",
	"/etc/pki/tls/certs/ca-bundle.crt",
	"/etc/ssl/ca-bundle.pem",
	"/etc/pki/tls/cacert.pem",
	"/etc/pki/ca-trust/extracted/pem/tls-ca-bundle.pem",
	"/etc/ssl/cert.pem",
	"/usr/local/etc/openssl/cert.pem",
	"/opt/homebrew/etc/openssl@3/cert.pem",
}

// RootsResult is the outcome of loading the host trust store.
type RootsResult struct {
	// Pool is the trust anchor set. A nil Pool selects the engine default.
	Pool *x509.CertPool
	// Valid is the number of certificates parsed successfully.
	Valid int
	// Invalid is the number of certificates that failed to parse.
	Invalid int
	// FellBack is set when the engine default trust store is used instead
	// of the native certificates.
	FellBack bool
	// Errors holds the parse failures and the source error, if any.
	Errors []error
}

// NativeRoots loads the operating system trust store at most once. The
// zero value reads the host PEM bundles and falls back to
// x509.SystemCertPool.
type NativeRoots struct {
	// Source returns the DER encoded certificates to trust.
	Source func() ([][]byte, error)
	// Fallback returns the engine default trust store.
	Fallback func() (*x509.CertPool, error)

	once   sync.Once
	result *RootsResult
}

var systemRoots = &NativeRoots{}

// SystemRoots returns the process-wide native root cache.
func SystemRoots() *NativeRoots {
	return systemRoots
}

// Load returns the cached trust store, loading it on first use. Concurrent
// first callers block until the single load completes.
func (n *NativeRoots) Load() *RootsResult {
	n.once.Do(func() {
		n.result = n.load()
	})
	return n.result
}

func (n *NativeRoots) load() *RootsResult {
	source := n.Source
	if source == nil {
		source = readCertBundles
	}

	res := &RootsResult{}
	ders, err := source()
	if err != nil {
		res.Errors = append(res.Errors, err)
		return n.fallback(res)
	}

	pool := x509.NewCertPool()
	for i, der := range ders {
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			res.Invalid++
			res.Errors = append(res.Errors, fmt.Errorf("certificate %d: %w", i, err))
			continue
		}
		pool.AddCert(cert)
		res.Valid++
	}

	if res.Valid == 0 && res.Invalid > 0 {
		return n.fallback(res)
	}
	res.Pool = pool
	return res
}

func (n *NativeRoots) fallback(res *RootsResult) *RootsResult {
	res.FellBack = true
	fallback := n.Fallback
	if fallback == nil {
		fallback = x509.SystemCertPool
	}
	pool, err := fallback()
	if err != nil {
		res.Errors = append(res.Errors, err)
		return res
	}
	res.Pool = pool
	return res
}

func readCertBundles() ([][]byte, error) {
	paths := certBundles
	if env := os.Getenv("SSL_CERT_FILE"); env != "" {
		paths = append([]string{env}, paths...)
	}
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		return DERFromPEM(data), nil
	}
	return nil, ErrNoRoots
}

// DERFromPEM extracts the DER bytes of every CERTIFICATE block in data.
func DERFromPEM(data []byte) [][]byte {
	var ders [][]byte
	for len(data) > 0 {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" || len(block.Headers) != 0 {
			continue
		}
		ders = append(ders, block.Bytes)
	}
	return ders
}

// TrustStoreFromPEM builds a custom trust store from PEM encoded
// certificates. At least one certificate must parse.
func TrustStoreFromPEM(data []byte) (*x509.CertPool, error) {
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("%w: no certificates parsed", ErrTrustStore)
	}
	return pool, nil
}
