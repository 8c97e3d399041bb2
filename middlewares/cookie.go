package middlewares

import (
	"slices"

	http "github.com/bogdanfinn/fhttp"

	"github.com/kaptinlin/impersonate"
)

// CookieMiddleware adds cookies the attempt does not already carry, so
// cookies set on the request win by name. The cookie field keeps its slot
// in the header order, or is written last when the order has none.
func CookieMiddleware(cookies []*http.Cookie) impersonate.Middleware {
	return func(next impersonate.MiddlewareHandlerFunc) impersonate.MiddlewareHandlerFunc {
		return func(req *http.Request) (*http.Response, error) {
			seen := make(map[string]bool)
			for _, c := range req.Cookies() {
				seen[c.Name] = true
			}
			added := false
			for _, c := range cookies {
				if seen[c.Name] {
					continue
				}
				req.AddCookie(c)
				seen[c.Name] = true
				added = true
			}
			if order, ok := req.Header[http.HeaderOrderKey]; ok && added && !slices.Contains(order, "cookie") {
				req.Header[http.HeaderOrderKey] = append(slices.Clone(order), "cookie")
			}
			return next(req)
		}
	}
}
