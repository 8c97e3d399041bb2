package impersonate

import (
	"errors"
	"fmt"
	"net"
	"slices"
	"strings"

	http "github.com/bogdanfinn/fhttp"
)

// RedirectPolicy decides whether a redirect is followed.
type RedirectPolicy interface {
	Apply(req *http.Request, via []*http.Request) error
}

// RedirectPolicyFunc adapts a function to RedirectPolicy.
type RedirectPolicyFunc func(req *http.Request, via []*http.Request) error

// Apply calls f.
func (f RedirectPolicyFunc) Apply(req *http.Request, via []*http.Request) error {
	return f(req, via)
}

// ProhibitRedirectPolicy does not allow any redirects.
type ProhibitRedirectPolicy struct{}

func NewProhibitRedirectPolicy() *ProhibitRedirectPolicy {
	return &ProhibitRedirectPolicy{}
}

func (p *ProhibitRedirectPolicy) Apply(*http.Request, []*http.Request) error {
	return ErrAutoRedirectDisabled
}

// AllowRedirectPolicy follows up to a fixed number of redirects. Headers
// of the first request, in their wire order, are carried to same-host hops.
type AllowRedirectPolicy struct {
	numberRedirects int
}

func NewAllowRedirectPolicy(numberRedirects int) *AllowRedirectPolicy {
	return &AllowRedirectPolicy{numberRedirects: numberRedirects}
}

func (a *AllowRedirectPolicy) Apply(req *http.Request, via []*http.Request) error {
	if len(via) >= a.numberRedirects {
		return fmt.Errorf("stopped after %d redirects: %w", a.numberRedirects, ErrTooManyRedirects)
	}
	checkHostAndAddHeaders(req, via[0])
	return nil
}

func getHostname(host string) string {
	if strings.Index(host, ":") > 0 {
		host, _, _ = net.SplitHostPort(host)
	}
	return strings.ToLower(host)
}

// RedirectSpecifiedDomainPolicy only follows redirects to listed hosts.
type RedirectSpecifiedDomainPolicy struct {
	domains map[string]bool
}

func NewRedirectSpecifiedDomainPolicy(domains ...string) *RedirectSpecifiedDomainPolicy {
	hosts := make(map[string]bool, len(domains))
	for _, h := range domains {
		hosts[strings.ToLower(h)] = true
	}
	return &RedirectSpecifiedDomainPolicy{domains: hosts}
}

func (s *RedirectSpecifiedDomainPolicy) Apply(req *http.Request, _ []*http.Request) error {
	if !s.domains[getHostname(req.URL.Host)] {
		return ErrRedirectNotAllowed
	}
	return nil
}

// SmartRedirectPolicy follows up to a fixed number of redirects like a
// browser: methods rewritten to GET lose their payload headers, and
// credentials never leave the original host or its https scheme.
type SmartRedirectPolicy struct {
	maxRedirects int
}

func NewSmartRedirectPolicy(maxRedirects int) *SmartRedirectPolicy {
	return &SmartRedirectPolicy{maxRedirects: maxRedirects}
}

func (s *SmartRedirectPolicy) Apply(req *http.Request, via []*http.Request) error {
	if len(via) >= s.maxRedirects {
		return fmt.Errorf("stopped after %d redirects: %w", s.maxRedirects, ErrTooManyRedirects)
	}
	checkHostAndAddHeaders(req, via[0])
	prev := via[len(via)-1]
	if req.Method != prev.Method && (req.Method == http.MethodGet || req.Method == http.MethodHead) {
		dropPayloadHeaders(req.Header)
	}
	return nil
}

var sensitiveHeaders = []string{"Authorization", "Cookie", "Cookie2", "Proxy-Authorization", "Www-Authenticate"}

var payloadHeaders = []string{"Content-Type", "Content-Length", "Content-Encoding", "Transfer-Encoding"}

// checkHostAndAddHeaders copies the headers of pre onto a same-host hop.
// Hops to another host or from https to http lose their credentials.
// Host and payload headers are never copied: fhttp writes them into pre
// while sending and they describe that hop only.
func checkHostAndAddHeaders(cur *http.Request, pre *http.Request) {
	sameHost := strings.EqualFold(getHostname(cur.URL.Host), getHostname(pre.URL.Host))
	downgrade := pre.URL.Scheme == "https" && cur.URL.Scheme == "http"
	if !sameHost || downgrade {
		for _, name := range sensitiveHeaders {
			cur.Header.Del(name)
		}
		return
	}
	for key, val := range pre.Header {
		if key == "Host" || slices.Contains(payloadHeaders, key) {
			continue
		}
		if _, ok := cur.Header[key]; !ok {
			cur.Header[key] = val
		}
	}
}

func dropPayloadHeaders(h http.Header) {
	for _, name := range payloadHeaders {
		h.Del(name)
	}
}

// isRedirectRejection reports whether err came from a built-in policy. Such
// errors repeat on every attempt.
func isRedirectRejection(err error) bool {
	return errors.Is(err, ErrAutoRedirectDisabled) ||
		errors.Is(err, ErrTooManyRedirects) ||
		errors.Is(err, ErrRedirectNotAllowed)
}

// checkRedirect chains policies into a http.Client CheckRedirect hook.
// Without policies the fhttp default of ten hops applies.
func checkRedirect(policies []RedirectPolicy) func(req *http.Request, via []*http.Request) error {
	if len(policies) == 0 {
		return nil
	}
	return func(req *http.Request, via []*http.Request) error {
		for _, p := range policies {
			if err := p.Apply(req, via); err != nil {
				return err
			}
		}
		return nil
	}
}
