package tlsconf

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaptinlin/impersonate/alpn"
)

func newTLSServer(t *testing.T) (*httptest.Server, *x509.CertPool) {
	t.Helper()
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	srv.EnableHTTP2 = true
	srv.TLS = &tls.Config{NextProtos: []string{"h2", "http/1.1"}}
	srv.StartTLS()
	t.Cleanup(srv.Close)

	pool := x509.NewCertPool()
	pool.AddCert(srv.Certificate())
	return srv, pool
}

func dialServer(t *testing.T, srv *httptest.Server) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", srv.Listener.Addr().String(), 5*time.Second)
	require.NoError(t, err)
	return conn
}

func TestHandshakeNegotiatesALPN(t *testing.T) {
	srv, pool := newTLSServer(t)

	c, err := Build(chromeLikeSpec, WithTrustStore(pool), WithALPN(alpn.Both))
	require.NoError(t, err)

	tests := []struct {
		name     string
		override alpn.Pref
		want     string
	}{
		{"connector default", 0, "h2"},
		{"per request http1", alpn.Http1, "http/1.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			uconn, err := c.Handshake(ctx, dialServer(t, srv), HandshakeOptions{
				ServerName: "example.com",
				ALPN:       tt.override,
			})
			require.NoError(t, err)
			defer uconn.Close() //nolint:errcheck

			assert.Equal(t, tt.want, uconn.ConnectionState().NegotiatedProtocol)
		})
	}
}

func TestHandshakeVerifiesCertificates(t *testing.T) {
	srv, _ := newTLSServer(t)

	c, err := Build(chromeLikeSpec, WithTrustStore(x509.NewCertPool()))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = c.Handshake(ctx, dialServer(t, srv), HandshakeOptions{ServerName: "example.com"})
	assert.Error(t, err)

	insecure, err := Build(chromeLikeSpec, WithVerification(false))
	require.NoError(t, err)
	uconn, err := insecure.Handshake(ctx, dialServer(t, srv), HandshakeOptions{ServerName: "example.com"})
	require.NoError(t, err)
	assert.NoError(t, uconn.Close())
}
