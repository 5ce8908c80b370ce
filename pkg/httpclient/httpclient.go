package httpclient

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPDoer is the subset of *http.Client used for upstream calls. Tests
// inject httpclienttest.FakeDoer.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Options struct {
	Timeout time.Duration
	// ProxyURL routes requests through an HTTP(S) proxy when set.
	ProxyURL string
}

// New builds an *http.Client for upstream traffic. Redirects are returned
// to the caller instead of followed.
func New(opts Options) (*http.Client, error) {
	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return nil, fmt.Errorf("unexpected default transport %T", http.DefaultTransport)
	}
	tr := base.Clone()
	tr.DisableCompression = true
	if v := strings.TrimSpace(opts.ProxyURL); v != "" {
		u, err := url.Parse(v)
		if err != nil {
			return nil, fmt.Errorf("parse proxy_url: %w", err)
		}
		if u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("parse proxy_url: %q is missing scheme or host", v)
		}
		tr.Proxy = http.ProxyURL(u)
	}
	return &http.Client{
		Timeout:   opts.Timeout,
		Transport: tr,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}, nil
}
