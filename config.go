package impersonate

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/kaptinlin/impersonate/alpn"
	"github.com/kaptinlin/impersonate/assemble"
	"github.com/kaptinlin/impersonate/profiles"
	"github.com/kaptinlin/impersonate/tlsconf"
)

// FileConfig is the YAML form of a client configuration.
//
//	impersonate: chrome_133
//	os: macos
//	http_version: both
//	timeout: 30s
//	proxies:
//	  - socks5h://127.0.0.1:1080
//	dns:
//	  overrides:
//	    example.com: [127.0.0.1]
type FileConfig struct {
	BaseURL     string            `yaml:"base_url"`
	Impersonate string            `yaml:"impersonate"`
	OS          string            `yaml:"os"`
	JA3         string            `yaml:"ja3"`
	HTTPVersion string            `yaml:"http_version"`
	SkipHeaders bool              `yaml:"skip_headers"`
	HeaderOrder []string          `yaml:"header_order"`
	Headers     yaml.MapSlice     `yaml:"headers"`
	Cookies     map[string]string `yaml:"cookies"`
	Timeout     time.Duration     `yaml:"timeout"`
	MaxRetries  int               `yaml:"max_retries"`
	LogLevel    string            `yaml:"log_level"`

	TLS struct {
		InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
		RootCertificates   string `yaml:"root_certificates"`
		NativeRoots        bool   `yaml:"native_roots"`
		MinVersion         string `yaml:"min_version"`
		MaxVersion         string `yaml:"max_version"`
	} `yaml:"tls"`

	Network struct {
		LocalAddress string `yaml:"local_address"`
		Interface    string `yaml:"interface"`
		NoProxy      string `yaml:"no_proxy"`
	} `yaml:"network"`
	Proxy   string   `yaml:"proxy"`
	Proxies []string `yaml:"proxies"`

	DNS struct {
		Servers   []string            `yaml:"servers"`
		Timeout   time.Duration       `yaml:"timeout"`
		Overrides map[string][]string `yaml:"overrides"`
	} `yaml:"dns"`
}

// LoadConfig reads a YAML configuration file.
func LoadConfig(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes a YAML configuration. Unknown keys are rejected.
func ParseConfig(data []byte) (*FileConfig, error) {
	var cfg FileConfig
	if err := yaml.UnmarshalWithOptions(data, &cfg, yaml.Strict()); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// Options converts the configuration into client options. Values that do
// not parse are reported here rather than by New.
func (f *FileConfig) Options() ([]ClientOption, error) {
	var opts []ClientOption
	if f.BaseURL != "" {
		opts = append(opts, WithBaseURL(f.BaseURL))
	}
	if f.Impersonate != "" {
		opts = append(opts, WithImpersonate(f.Impersonate))
	}
	if f.OS != "" {
		o, err := profiles.ParseOS(f.OS)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithImpersonateOS(o))
	}
	if f.JA3 != "" {
		opts = append(opts, WithJA3(f.JA3))
	}
	if f.HTTPVersion != "" {
		p, err := alpn.ParseName(f.HTTPVersion)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithHTTPVersion(p))
	}
	if f.SkipHeaders {
		opts = append(opts, WithSkipHeaders())
	}
	if f.HeaderOrder != nil {
		opts = append(opts, WithHeaderOrder(f.HeaderOrder...))
	}
	if len(f.Headers) > 0 {
		var h assemble.Header
		for _, item := range f.Headers {
			h.Add(fmt.Sprint(item.Key), fmt.Sprint(item.Value))
		}
		opts = append(opts, WithHeaders(h))
	}
	if len(f.Cookies) > 0 {
		opts = append(opts, WithCookies(f.Cookies))
	}
	if f.Timeout > 0 {
		opts = append(opts, WithTimeout(f.Timeout))
	}
	if f.MaxRetries > 0 {
		opts = append(opts, WithMaxRetries(f.MaxRetries))
	}
	if f.LogLevel != "" {
		opts = append(opts, WithLogger(NewDefaultLogger(os.Stderr, ParseLevel(f.LogLevel))))
	}

	tlsOpts, err := f.tlsOptions()
	if err != nil {
		return nil, err
	}
	opts = append(opts, tlsOpts...)

	if f.Network.LocalAddress != "" {
		opts = append(opts, WithLocalAddress(f.Network.LocalAddress))
	}
	if f.Network.Interface != "" {
		opts = append(opts, WithInterface(f.Network.Interface))
	}
	if f.Network.NoProxy != "" {
		opts = append(opts, WithNoProxy(f.Network.NoProxy))
	}
	if f.Proxy != "" {
		opts = append(opts, WithProxy(f.Proxy))
	}
	if len(f.Proxies) > 0 {
		opts = append(opts, WithProxies(f.Proxies...))
	}

	if len(f.DNS.Servers) > 0 {
		opts = append(opts, WithDNSServers(f.DNS.Timeout, f.DNS.Servers...))
	}
	if len(f.DNS.Overrides) > 0 {
		opts = append(opts, WithDNSOverrides(f.DNS.Overrides))
	}
	return opts, nil
}

func (f *FileConfig) tlsOptions() ([]ClientOption, error) {
	var opts []ClientOption
	if f.TLS.InsecureSkipVerify {
		opts = append(opts, WithInsecureSkipVerify())
	}
	if f.TLS.RootCertificates != "" {
		opts = append(opts, WithRootCertificate(f.TLS.RootCertificates))
	}
	if f.TLS.NativeRoots {
		opts = append(opts, WithNativeRoots())
	}
	if f.TLS.MinVersion != "" {
		v, err := tlsconf.ParseVersion(f.TLS.MinVersion)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithMinTLSVersion(v))
	}
	if f.TLS.MaxVersion != "" {
		v, err := tlsconf.ParseVersion(f.TLS.MaxVersion)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithMaxTLSVersion(v))
	}
	return opts, nil
}

// NewFromConfig builds a client from a configuration file. Extra options
// are applied after the file.
func NewFromConfig(path string, extra ...ClientOption) (*Client, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	opts, err := cfg.Options()
	if err != nil {
		return nil, err
	}
	return New(append(opts, extra...)...)
}
