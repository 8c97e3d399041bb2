package impersonate

import (
	"context"
	"fmt"
	nethttp "net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	http "github.com/bogdanfinn/fhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startRedirectServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		switch r.URL.Path {
		case "/redirect-1":
			nethttp.Redirect(w, r, "/redirect-2", nethttp.StatusFound)
		case "/redirect-2":
			nethttp.Redirect(w, r, "/final", nethttp.StatusFound)
		case "/final":
			_, _ = fmt.Fprintf(w, "final %s", r.Header.Get("X-Token"))
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestRedirectPolicies(t *testing.T) {
	server := startRedirectServer(t)

	t.Run("Prohibit", func(t *testing.T) {
		client, err := New(WithBaseURL(server.URL), WithRedirectPolicy(NewProhibitRedirectPolicy()))
		require.NoError(t, err)

		_, err = client.Get("/redirect-1").Send(context.Background())
		assert.ErrorIs(t, err, ErrAutoRedirectDisabled)
	})

	t.Run("Allow", func(t *testing.T) {
		client, err := New(WithBaseURL(server.URL))
		require.NoError(t, err)
		client.SetRedirectPolicy(NewAllowRedirectPolicy(3))

		resp, err := client.Get("/redirect-1").Header("X-Token", "t1").Send(context.Background())
		require.NoError(t, err)
		assert.Equal(t, nethttp.StatusOK, resp.StatusCode())
		assert.Equal(t, "final t1", resp.String())
	})

	t.Run("AllowExceedsLimit", func(t *testing.T) {
		client, err := New(WithBaseURL(server.URL), WithRedirectPolicy(NewAllowRedirectPolicy(1)))
		require.NoError(t, err)

		_, err = client.Get("/redirect-1").Send(context.Background())
		assert.ErrorIs(t, err, ErrTooManyRedirects)
		assert.Contains(t, err.Error(), "stopped after 1 redirects")
	})

	t.Run("SpecifiedDomain", func(t *testing.T) {
		client, err := New(WithBaseURL(server.URL), WithRedirectPolicy(NewRedirectSpecifiedDomainPolicy("127.0.0.1")))
		require.NoError(t, err)

		resp, err := client.Get("/redirect-1").Send(context.Background())
		require.NoError(t, err)
		assert.Equal(t, nethttp.StatusOK, resp.StatusCode())
	})

	t.Run("SpecifiedDomainRejects", func(t *testing.T) {
		client, err := New(WithBaseURL(server.URL), WithRedirectPolicy(NewRedirectSpecifiedDomainPolicy("other.example")))
		require.NoError(t, err)

		_, err = client.Get("/redirect-1").Send(context.Background())
		assert.ErrorIs(t, err, ErrRedirectNotAllowed)
	})

	t.Run("Func", func(t *testing.T) {
		var hops int
		policy := RedirectPolicyFunc(func(req *http.Request, via []*http.Request) error {
			hops = len(via)
			return nil
		})
		client, err := New(WithBaseURL(server.URL), WithRedirectPolicy(policy))
		require.NoError(t, err)

		_, err = client.Get("/redirect-1").Send(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, hops)
	})
}

func TestSensitiveHeaderStripping(t *testing.T) {
	tests := []struct {
		name      string
		from, to  url.URL
		wantStrip bool
	}{
		{
			name:      "cross host",
			from:      url.URL{Scheme: "https", Host: "example.com"},
			to:        url.URL{Scheme: "https", Host: "other.com"},
			wantStrip: true,
		},
		{
			name: "same host other port",
			from: url.URL{Scheme: "https", Host: "example.com"},
			to:   url.URL{Scheme: "https", Host: "EXAMPLE.com:8443"},
		},
		{
			name:      "scheme downgrade",
			from:      url.URL{Scheme: "https", Host: "example.com"},
			to:        url.URL{Scheme: "http", Host: "example.com"},
			wantStrip: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cur := &http.Request{URL: &tt.to, Header: http.Header{
				"Authorization": {"Bearer secret"},
				"Cookie":        {"session=abc"},
			}}
			pre := &http.Request{URL: &tt.from, Header: http.Header{
				"X-Custom":           {"value"},
				http.HeaderOrderKey: {"x-custom", "authorization", "cookie"},
			}}

			checkHostAndAddHeaders(cur, pre)
			if tt.wantStrip {
				assert.Empty(t, cur.Header.Get("Authorization"))
				assert.Empty(t, cur.Header.Get("Cookie"))
				assert.Empty(t, cur.Header.Get("X-Custom"))
				return
			}
			assert.Equal(t, "Bearer secret", cur.Header.Get("Authorization"))
			assert.Equal(t, "value", cur.Header.Get("X-Custom"))
			assert.Equal(t, []string{"x-custom", "authorization", "cookie"}, cur.Header[http.HeaderOrderKey])
		})
	}
}

func TestCheckHostSkipsHopHeaders(t *testing.T) {
	pre := &http.Request{URL: &url.URL{Scheme: "https", Host: "example.com"}, Header: http.Header{
		"Host":           {"example.com"},
		"Content-Length": {"7"},
		"Content-Type":   {"application/json"},
		"X-Custom":       {"value"},
	}}
	cur := &http.Request{URL: &url.URL{Scheme: "https", Host: "example.com:8443"}, Header: http.Header{}}

	checkHostAndAddHeaders(cur, pre)
	assert.Equal(t, http.Header{"X-Custom": {"value"}}, cur.Header)
}

func TestSmartRedirectPolicy(t *testing.T) {
	tests := []struct {
		name       string
		policy     RedirectPolicy
		method     string
		status     int
		wantMethod string
	}{
		{name: "post on 301", method: http.MethodPost, status: nethttp.StatusMovedPermanently, wantMethod: http.MethodGet},
		{name: "post on 302", method: http.MethodPost, status: nethttp.StatusFound, wantMethod: http.MethodGet},
		{name: "post on 303", method: http.MethodPost, status: nethttp.StatusSeeOther, wantMethod: http.MethodGet},
		{name: "get on 307", method: http.MethodGet, status: nethttp.StatusTemporaryRedirect, wantMethod: http.MethodGet},
		{name: "head on 303", method: http.MethodHead, status: nethttp.StatusSeeOther, wantMethod: http.MethodHead},
		{name: "allow post on 302", policy: NewAllowRedirectPolicy(5), method: http.MethodPost, status: nethttp.StatusFound, wantMethod: http.MethodGet},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			type hop struct{ method, contentType, contentLength string }
			final := make(chan hop, 1)
			server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
				switch r.URL.Path {
				case "/start":
					nethttp.Redirect(w, r, "/final", tt.status)
				case "/final":
					final <- hop{r.Method, r.Header.Get("Content-Type"), r.Header.Get("Content-Length")}
				}
			}))
			defer server.Close()

			policy := tt.policy
			if policy == nil {
				policy = NewSmartRedirectPolicy(5)
			}
			client, err := New(WithBaseURL(server.URL), WithRedirectPolicy(policy))
			require.NoError(t, err)

			b := client.Custom("/start", tt.method)
			if tt.method == http.MethodPost {
				b.JSONBody(map[string]int{"a": 1})
			}
			resp, err := b.Send(context.Background())
			require.NoError(t, err)
			assert.Equal(t, nethttp.StatusOK, resp.StatusCode())

			got := <-final
			assert.Equal(t, tt.wantMethod, got.method)
			assert.Empty(t, got.contentLength)
			if tt.method == http.MethodPost && tt.policy == nil {
				assert.Empty(t, got.contentType)
			}
		})
	}

	t.Run("limit", func(t *testing.T) {
		server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
			nethttp.Redirect(w, r, "/loop", nethttp.StatusFound)
		}))
		defer server.Close()

		client, err := New(WithBaseURL(server.URL))
		require.NoError(t, err)
		client.SetRedirectPolicy(NewSmartRedirectPolicy(2))

		_, err = client.Get("/loop").Send(context.Background())
		assert.ErrorIs(t, err, ErrTooManyRedirects)
	})
}

func TestDropPayloadHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("Content-Length", "42")
	h.Set("Content-Encoding", "gzip")
	h.Set("Transfer-Encoding", "chunked")
	h.Set("Accept", "application/json")

	dropPayloadHeaders(h)

	assert.Empty(t, h.Get("Content-Type"))
	assert.Empty(t, h.Get("Content-Length"))
	assert.Empty(t, h.Get("Content-Encoding"))
	assert.Empty(t, h.Get("Transfer-Encoding"))
	assert.Equal(t, "application/json", h.Get("Accept"))
}

func TestGetHostname(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"example.com", "example.com"},
		{"Example.COM", "example.com"},
		{"example.com:8080", "example.com"},
		{"127.0.0.1:8080", "127.0.0.1"},
		{"[::1]:8080", "::1"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, getHostname(tt.input))
		})
	}
}

func TestRedirectRejectionNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		calls.Add(1)
		nethttp.Redirect(w, r, "/elsewhere", nethttp.StatusFound)
	}))
	defer server.Close()

	client, err := New(
		WithBaseURL(server.URL),
		WithRedirectPolicy(NewProhibitRedirectPolicy()),
		WithMaxRetries(3),
		WithRetryStrategy(DefaultBackoffStrategy(0)),
	)
	require.NoError(t, err)

	resp, err := client.Get("/").Send(context.Background())
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, ErrAutoRedirectDisabled)
	assert.Equal(t, int32(1), calls.Load())
}
