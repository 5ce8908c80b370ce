package httpclient

import (
	"net/http"
	"net/url"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	c, err := New(Options{Timeout: 3 * time.Second})
	if err != nil {
		t.Fatalf("New err=%v", err)
	}
	if c.Timeout != 3*time.Second {
		t.Fatalf("timeout=%v", c.Timeout)
	}
	tr, ok := c.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("transport=%T", c.Transport)
	}
	if !tr.DisableCompression {
		t.Fatalf("compression must be disabled so bodies arrive as sent")
	}
	if c.CheckRedirect(nil, nil) != http.ErrUseLastResponse {
		t.Fatalf("redirects should not be followed")
	}
}

func TestNew_ProxyURL(t *testing.T) {
	c, err := New(Options{ProxyURL: "http://127.0.0.1:7890"})
	if err != nil {
		t.Fatalf("New err=%v", err)
	}
	tr := c.Transport.(*http.Transport)
	req := &http.Request{URL: &url.URL{Scheme: "http", Host: "example.com"}}
	u, err := tr.Proxy(req)
	if err != nil || u == nil || u.Host != "127.0.0.1:7890" {
		t.Fatalf("proxy=%v err=%v", u, err)
	}

	if _, err := New(Options{ProxyURL: "127.0.0.1"}); err == nil {
		t.Fatalf("expected error for proxy url without scheme")
	}
}
