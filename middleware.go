package impersonate

import http "github.com/bogdanfinn/fhttp"

// MiddlewareHandlerFunc sends one attempt of a request.
type MiddlewareHandlerFunc func(req *http.Request) (*http.Response, error)

// Middleware wraps the send of every attempt. The request reaching a
// middleware already carries its final header order.
type Middleware func(next MiddlewareHandlerFunc) MiddlewareHandlerFunc

func chain(final MiddlewareHandlerFunc, stacks ...[]Middleware) MiddlewareHandlerFunc {
	for i := len(stacks) - 1; i >= 0; i-- {
		mws := stacks[i]
		for j := len(mws) - 1; j >= 0; j-- {
			final = mws[j](final)
		}
	}
	return final
}
