package middlewares

import (
	"context"
	"fmt"
	nethttp "net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	http "github.com/bogdanfinn/fhttp"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaptinlin/impersonate"
)

func newCountingServer(t *testing.T, gzipped bool) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		n := calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		if !gzipped {
			fmt.Fprintf(w, `{"count":%d}`, n)
			return
		}
		w.Header().Set("Content-Encoding", "gzip")
		zw := gzip.NewWriter(w)
		fmt.Fprintf(zw, `{"count":%d}`, n)
		_ = zw.Close()
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func TestCacheMiddleware(t *testing.T) {
	server, calls := newCountingServer(t, false)
	cache := NewMemoryCache()
	defer cache.Close()

	client, err := impersonate.New(
		impersonate.WithBaseURL(server.URL),
		impersonate.WithMiddleware(CacheMiddleware(cache, 200*time.Millisecond, impersonate.DefaultLogger)),
	)
	require.NoError(t, err)

	first, err := client.Get("/test").Send(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"count":1}`, first.String())

	second, err := client.Get("/test").Send(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"count":1}`, second.String())
	assert.Equal(t, int32(1), calls.Load())

	time.Sleep(300 * time.Millisecond)

	third, err := client.Get("/test").Send(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"count":2}`, third.String())
	assert.Equal(t, int32(2), calls.Load())
}

func TestCacheMiddlewareKeepsEncoding(t *testing.T) {
	server, calls := newCountingServer(t, true)
	cache := NewMemoryCache()
	defer cache.Close()

	client, err := impersonate.New(
		impersonate.WithBaseURL(server.URL),
		impersonate.WithMiddleware(CacheMiddleware(cache, time.Minute, impersonate.DefaultLogger)),
	)
	require.NoError(t, err)

	for range 2 {
		resp, err := client.Get("/gz").Send(context.Background())
		require.NoError(t, err)
		assert.JSONEq(t, `{"count":1}`, resp.String())
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestCacheMiddlewareSkipsNonGet(t *testing.T) {
	server, calls := newCountingServer(t, false)
	cache := NewMemoryCache()
	defer cache.Close()

	client, err := impersonate.New(
		impersonate.WithBaseURL(server.URL),
		impersonate.WithMiddleware(CacheMiddleware(cache, time.Minute, impersonate.DefaultLogger)),
	)
	require.NoError(t, err)

	for range 2 {
		_, err := client.Post("/test").Send(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), calls.Load())
}

func TestCacheKey(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{"path", "http://example.com/test", "example.com/test"},
		{"query", "http://example.com/test?a=1&b=2", "example.com/test?a=1&b=2"},
		{"port", "http://example.com:8080/", "example.com:8080/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, tt.url, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, cacheKey(req))
		})
	}
}

func TestMemoryCache(t *testing.T) {
	cache := NewMemoryCache()
	defer cache.Close()

	cache.Set("a", []byte("1"), time.Minute)
	v, ok := cache.Get("a")
	assert.True(t, ok)
	assert.Equal(t, []byte("1"), v)

	cache.Set("b", []byte("2"), time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	_, ok = cache.Get("b")
	assert.False(t, ok)

	cache.Delete("a")
	_, ok = cache.Get("a")
	assert.False(t, ok)
}
