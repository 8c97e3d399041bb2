package impersonate

import (
	"context"
	"errors"
	nethttp "net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	http "github.com/bogdanfinn/fhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaptinlin/impersonate/netscheme"
)

func TestBackoffStrategies(t *testing.T) {
	t.Run("Default", func(t *testing.T) {
		s := DefaultBackoffStrategy(2 * time.Second)
		for attempt := range 5 {
			assert.Equal(t, 2*time.Second, s(attempt))
		}
	})

	t.Run("Linear", func(t *testing.T) {
		s := LinearBackoffStrategy(100 * time.Millisecond)
		assert.Equal(t, 100*time.Millisecond, s(0))
		assert.Equal(t, 200*time.Millisecond, s(1))
		assert.Equal(t, 500*time.Millisecond, s(4))
	})

	t.Run("Exponential", func(t *testing.T) {
		s := ExponentialBackoffStrategy(100*time.Millisecond, 2, time.Second)
		assert.Equal(t, 100*time.Millisecond, s(0))
		assert.Equal(t, 200*time.Millisecond, s(1))
		assert.Equal(t, 800*time.Millisecond, s(3))
		assert.Equal(t, time.Second, s(4), "capped")
		assert.Equal(t, time.Second, s(200), "overflow is capped")
	})
}

func TestJitterBackoffStrategy(t *testing.T) {
	t.Run("WithinBounds", func(t *testing.T) {
		jittered := JitterBackoffStrategy(DefaultBackoffStrategy(time.Second), 0.25)
		for range 100 {
			delay := jittered(0)
			assert.GreaterOrEqual(t, delay, 750*time.Millisecond)
			assert.LessOrEqual(t, delay, 1250*time.Millisecond)
		}
	})

	t.Run("NonPositiveFractionKeepsBase", func(t *testing.T) {
		for _, fraction := range []float64{0, -0.5} {
			jittered := JitterBackoffStrategy(DefaultBackoffStrategy(500*time.Millisecond), fraction)
			assert.Equal(t, 500*time.Millisecond, jittered(0))
		}
	})

	t.Run("NeverNegative", func(t *testing.T) {
		jittered := JitterBackoffStrategy(DefaultBackoffStrategy(10*time.Millisecond), 2)
		for range 1000 {
			assert.GreaterOrEqual(t, jittered(0), time.Duration(0))
		}
	})

	t.Run("FollowsExponentialBase", func(t *testing.T) {
		jittered := JitterBackoffStrategy(ExponentialBackoffStrategy(100*time.Millisecond, 2, 10*time.Second), 0.1)
		delay := jittered(2)
		assert.GreaterOrEqual(t, delay, 360*time.Millisecond)
		assert.LessOrEqual(t, delay, 440*time.Millisecond)
	})
}

func TestDefaultRetryIf(t *testing.T) {
	tests := []struct {
		name string
		resp *http.Response
		err  error
		want bool
	}{
		{name: "transport error", err: errors.New("reset"), want: true},
		{name: "server error", resp: &http.Response{StatusCode: 503}, want: true},
		{name: "client error", resp: &http.Response{StatusCode: 429}, want: false},
		{name: "success", resp: &http.Response{StatusCode: 200}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultRetryIf(nil, tt.resp, tt.err))
		})
	}
}

func TestClientRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(nethttp.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	client, err := New(
		WithBaseURL(server.URL),
		WithMaxRetries(3),
		WithRetryStrategy(DefaultBackoffStrategy(time.Millisecond)),
	)
	require.NoError(t, err)

	resp, err := client.Get("/").Send(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.String())
	assert.Equal(t, int32(3), calls.Load())
}

func TestClientRetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		calls.Add(1)
		w.WriteHeader(nethttp.StatusBadGateway)
	}))
	defer server.Close()

	client, err := New(WithBaseURL(server.URL))
	require.NoError(t, err)
	client.SetMaxRetries(2).SetRetryStrategy(DefaultBackoffStrategy(0))

	resp, err := client.Get("/").Send(context.Background())
	require.NoError(t, err)
	assert.Equal(t, nethttp.StatusBadGateway, resp.StatusCode())
	assert.Equal(t, int32(3), calls.Load())
}

func TestClientRetryRespectsContext(t *testing.T) {
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.WriteHeader(nethttp.StatusServiceUnavailable)
	}))
	defer server.Close()

	client, err := New(
		WithBaseURL(server.URL),
		WithMaxRetries(5),
		WithRetryStrategy(DefaultBackoffStrategy(time.Second)),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = client.Get("/").Send(ctx)
	assert.True(t, IsTimeout(err))
}

func TestClientRetryRotatesNetworkScheme(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(nethttp.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(nethttp.StatusNoContent)
	}))
	defer server.Close()

	var mu sync.Mutex
	var attempts []int
	selector := func(attempt int) netscheme.Scheme {
		mu.Lock()
		defer mu.Unlock()
		attempts = append(attempts, attempt)
		return netscheme.Scheme{}
	}

	client, err := New(
		WithBaseURL(server.URL),
		WithNetworkSchemes(selector),
		WithMaxRetries(3),
		WithRetryStrategy(DefaultBackoffStrategy(0)),
	)
	require.NoError(t, err)

	resp, err := client.Get("/").Send(context.Background())
	require.NoError(t, err)
	assert.Equal(t, nethttp.StatusNoContent, resp.StatusCode())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2}, attempts)
}

func TestClientRequestSchemeSkipsSelector(t *testing.T) {
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.WriteHeader(nethttp.StatusOK)
	}))
	defer server.Close()

	var used atomic.Bool
	client, err := New(WithBaseURL(server.URL), WithNetworkSchemes(func(int) netscheme.Scheme {
		used.Store(true)
		return netscheme.Scheme{}
	}))
	require.NoError(t, err)

	_, err = client.Get("/").NetworkScheme(netscheme.Scheme{}).Send(context.Background())
	require.NoError(t, err)
	assert.False(t, used.Load())
}
