package impersonate

import (
	"context"
	"io"
	"net"
	nethttp "net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startTunnelProxy runs an HTTP proxy that accepts CONNECT tunnels and
// counts them. With reject set every CONNECT is refused.
func startTunnelProxy(t *testing.T, reject bool) (string, *atomic.Int32) {
	t.Helper()
	var tunnels atomic.Int32
	proxy := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodConnect || reject {
			w.WriteHeader(nethttp.StatusBadGateway)
			return
		}
		upstream, err := net.Dial("tcp", r.Host)
		if err != nil {
			w.WriteHeader(nethttp.StatusBadGateway)
			return
		}
		tunnels.Add(1)
		hj, _ := w.(nethttp.Hijacker)
		conn, _, err := hj.Hijack()
		if err != nil {
			_ = upstream.Close()
			return
		}
		_, _ = io.WriteString(conn, "HTTP/1.1 200 Connection established\r\n\r\n")
		go func() {
			_, _ = io.Copy(upstream, conn)
			_ = upstream.Close()
		}()
		go func() {
			_, _ = io.Copy(conn, upstream)
			_ = conn.Close()
		}()
	}))
	t.Cleanup(proxy.Close)
	return proxy.URL, &tunnels
}

// startClosingServer answers every request with Connection: close so each
// request needs a fresh tunnel.
func startClosingServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Connection", "close")
		_, _ = w.Write([]byte("via"))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestSetProxy(t *testing.T) {
	server := startClosingServer(t)
	proxyURL, tunnels := startTunnelProxy(t, false)

	client, err := New(WithBaseURL(server.URL))
	require.NoError(t, err)
	require.NoError(t, client.SetProxy(proxyURL))

	resp, err := client.Get("/").Send(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "via", resp.String())
	assert.Equal(t, int32(1), tunnels.Load())
}

func TestSetProxyInvalid(t *testing.T) {
	client, err := New()
	require.NoError(t, err)

	assert.ErrorIs(t, client.SetProxy("ftp://127.0.0.1:21"), ErrUnsupportedScheme)
	assert.ErrorIs(t, client.SetProxy("http://"), ErrUnsupportedScheme)
	assert.Error(t, client.SetProxy("://bad"))
	assert.Nil(t, client.scheme.Proxy)
}

func TestRemoveProxy(t *testing.T) {
	server := startClosingServer(t)
	proxyURL, tunnels := startTunnelProxy(t, true)

	client, err := New(WithBaseURL(server.URL), WithProxy(proxyURL))
	require.NoError(t, err)

	_, err = client.Get("/").Send(context.Background())
	require.Error(t, err)
	assert.True(t, IsConnectionError(err))

	client.RemoveProxy()
	resp, err := client.Get("/").Send(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "via", resp.String())
	assert.Zero(t, tunnels.Load())
}

func TestSetProxyWithBypass(t *testing.T) {
	server := startClosingServer(t)
	proxyURL, tunnels := startTunnelProxy(t, false)

	client, err := New(WithBaseURL(server.URL))
	require.NoError(t, err)
	require.NoError(t, client.SetProxyWithBypass(proxyURL, "localhost, 127.0.0.0/8"))

	_, err = client.Get("/").Send(context.Background())
	require.NoError(t, err)
	assert.Zero(t, tunnels.Load())

	assert.Error(t, client.SetProxyWithBypass("gopher://x", "*"))
}

func TestSetProxyFromEnv(t *testing.T) {
	t.Setenv("HTTP_PROXY", "http://127.0.0.1:3128")
	t.Setenv("HTTPS_PROXY", "socks5h://127.0.0.1:1080")
	t.Setenv("NO_PROXY", "internal.example")

	client, err := New()
	require.NoError(t, err)
	require.NoError(t, client.SetProxyFromEnv())
	require.NotNil(t, client.scheme.Proxy)
	assert.Equal(t, "socks5h", client.scheme.Proxy.Scheme)
	assert.Equal(t, "internal.example", client.scheme.NoProxy)

	t.Setenv("HTTPS_PROXY", "")
	require.NoError(t, client.SetProxyFromEnv())
	assert.Equal(t, "127.0.0.1:3128", client.scheme.Proxy.Host)

	t.Setenv("HTTP_PROXY", "")
	require.NoError(t, client.SetProxyFromEnv())
	assert.Nil(t, client.scheme.Proxy)
}

func TestRoundRobinProxies(t *testing.T) {
	server := startClosingServer(t)
	first, firstTunnels := startTunnelProxy(t, false)
	second, secondTunnels := startTunnelProxy(t, false)

	client, err := New(WithBaseURL(server.URL))
	require.NoError(t, err)
	require.NoError(t, client.SetProxies(first, second))

	for range 4 {
		_, err := client.Get("/").Send(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), firstTunnels.Load())
	assert.Equal(t, int32(2), secondTunnels.Load())
}

func TestRandomProxies(t *testing.T) {
	server := startClosingServer(t)
	first, firstTunnels := startTunnelProxy(t, false)
	second, secondTunnels := startTunnelProxy(t, false)

	client, err := New(WithBaseURL(server.URL))
	require.NoError(t, err)
	require.NoError(t, client.SetRandomProxies(first, second))

	for range 6 {
		_, err := client.Get("/").Send(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, int32(6), firstTunnels.Load()+secondTunnels.Load())
}

func TestSetProxiesValidation(t *testing.T) {
	client, err := New()
	require.NoError(t, err)

	assert.ErrorIs(t, client.SetProxies(), ErrNoProxies)
	assert.ErrorIs(t, client.SetRandomProxies(), ErrNoProxies)
	assert.ErrorIs(t, client.SetProxies("http://127.0.0.1:1", "ftp://127.0.0.1:2"), ErrUnsupportedScheme)
	assert.Nil(t, client.selector)

	_, err = New(WithProxies())
	assert.ErrorIs(t, err, ErrNoProxies)
}

func TestSetProxyClearsRotation(t *testing.T) {
	client, err := New(WithProxies("http://127.0.0.1:1", "http://127.0.0.1:2"))
	require.NoError(t, err)
	require.NotNil(t, client.selector)

	require.NoError(t, client.SetProxy("http://127.0.0.1:3"))
	assert.Nil(t, client.selector)
	assert.Equal(t, "127.0.0.1:3", client.networkScheme(0).Proxy.Host)
}

func TestRetryRotatesProxy(t *testing.T) {
	server := startClosingServer(t)
	broken, _ := startTunnelProxy(t, true)
	working, tunnels := startTunnelProxy(t, false)

	client, err := New(
		WithBaseURL(server.URL),
		WithProxies(broken, working),
		WithMaxRetries(1),
		WithRetryStrategy(DefaultBackoffStrategy(time.Millisecond)),
	)
	require.NoError(t, err)

	resp, err := client.Get("/").Send(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "via", resp.String())
	assert.Equal(t, int32(1), tunnels.Load())
}
