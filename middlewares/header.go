package middlewares

import (
	"slices"
	"strings"

	http "github.com/bogdanfinn/fhttp"

	"github.com/kaptinlin/impersonate"
	"github.com/kaptinlin/impersonate/assemble"
)

// HeaderMiddleware adds headers to every attempt. Names missing from the
// wire order are appended to it, so they are sent after the ordered ones.
func HeaderMiddleware(headers assemble.Header) impersonate.Middleware {
	return func(next impersonate.MiddlewareHandlerFunc) impersonate.MiddlewareHandlerFunc {
		return func(req *http.Request) (*http.Response, error) {
			order := req.Header[http.HeaderOrderKey]
			for _, f := range headers.Fields() {
				req.Header.Add(f.Name, f.Value)
				name := strings.ToLower(f.Name)
				if order != nil && !slices.Contains(order, name) {
					order = append(order, name)
				}
			}
			if order != nil {
				req.Header[http.HeaderOrderKey] = order
			}
			return next(req)
		}
	}
}
