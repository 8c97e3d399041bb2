package impersonate

import (
	"golang.org/x/net/http/httpproxy"

	"github.com/kaptinlin/impersonate/netscheme"
)

// SetProxy tunnels every following request through proxyURL. Supported
// schemes are http, https, socks5 and socks5h.
func (c *Client) SetProxy(proxyURL string) error {
	u, err := netscheme.VerifyProxy(proxyURL)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.scheme.Proxy = u
	c.scheme.NoProxy = ""
	c.selector = nil
	return nil
}

// SetProxyWithBypass is SetProxy with a NO_PROXY style bypass list of
// domains, IPs, CIDR subnets or "*".
func (c *Client) SetProxyWithBypass(proxyURL, bypass string) error {
	if err := c.SetProxy(proxyURL); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.scheme.NoProxy = bypass
	return nil
}

// SetProxyFromEnv reads HTTPS_PROXY, HTTP_PROXY and NO_PROXY. The https
// proxy wins when both are set, since one egress path serves every
// target. Without either variable the proxy is removed.
func (c *Client) SetProxyFromEnv() error {
	env := httpproxy.FromEnvironment()
	proxyURL := env.HTTPSProxy
	if proxyURL == "" {
		proxyURL = env.HTTPProxy
	}
	if proxyURL == "" {
		c.RemoveProxy()
		return nil
	}
	return c.SetProxyWithBypass(proxyURL, env.NoProxy)
}

// SetProxies rotates proxies in round robin order. Each attempt, retries
// included, takes the next proxy.
func (c *Client) SetProxies(proxyURLs ...string) error {
	return c.setProxies(netscheme.RoundRobin, proxyURLs)
}

// SetRandomProxies picks a random proxy for each attempt.
func (c *Client) SetRandomProxies(proxyURLs ...string) error {
	return c.setProxies(netscheme.Random, proxyURLs)
}

func (c *Client) setProxies(rotate func(...netscheme.Scheme) (netscheme.Selector, error), proxyURLs []string) error {
	c.mu.RLock()
	base := c.scheme
	c.mu.RUnlock()

	schemes, err := netscheme.FromProxies(base, proxyURLs...)
	if err != nil {
		return err
	}
	selector, err := rotate(schemes...)
	if err != nil {
		return err
	}
	c.SetNetworkSchemes(selector)
	return nil
}

// RemoveProxy sends following requests directly. Local address and
// interface bindings are kept.
func (c *Client) RemoveProxy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scheme.Proxy = nil
	c.scheme.NoProxy = ""
	c.selector = nil
}
