package middlewares

import (
	"testing"

	http "github.com/bogdanfinn/fhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaptinlin/impersonate"
	"github.com/kaptinlin/impersonate/assemble"
)

func TestHeaderMiddleware(t *testing.T) {
	var extra assemble.Header
	extra.Add("X-Trace", "abc")
	extra.Add("Accept", "text/plain")

	tests := []struct {
		name      string
		order     []string
		existing  map[string]string
		wantOrder []string
		wantValue map[string][]string
	}{
		{
			name:      "no order",
			wantValue: map[string][]string{"X-Trace": {"abc"}, "Accept": {"text/plain"}},
		},
		{
			name:      "appends to order",
			order:     []string{"accept", "user-agent"},
			existing:  map[string]string{"Accept": "*/*"},
			wantOrder: []string{"accept", "user-agent", "x-trace"},
			wantValue: map[string][]string{"X-Trace": {"abc"}, "Accept": {"*/*", "text/plain"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, "https://example.com", nil)
			require.NoError(t, err)
			for k, v := range tt.existing {
				req.Header.Set(k, v)
			}
			if tt.order != nil {
				req.Header[http.HeaderOrderKey] = tt.order
			}

			next := impersonate.MiddlewareHandlerFunc(func(req *http.Request) (*http.Response, error) {
				for k, want := range tt.wantValue {
					assert.Equal(t, want, req.Header.Values(k), k)
				}
				assert.Equal(t, tt.wantOrder, req.Header[http.HeaderOrderKey])
				return &http.Response{StatusCode: http.StatusOK}, nil
			})

			_, err = HeaderMiddleware(extra)(next)(req)
			require.NoError(t, err)
		})
	}
}
