// Package proxy forwards requests that no local route handles to the
// upstream API.
package proxy

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/r9s-ai/fieldproxy/internal/telemetry"
	"github.com/r9s-ai/fieldproxy/pkg/httpclient"
)

// Context key holding the upstream status code.
const CtxUpstreamStatus = "fp.upstream_status"

var hopByHopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

type Client struct {
	HTTP    httpclient.HTTPDoer
	BaseURL *url.URL
	// PreserveHost forwards the downstream Host header instead of the
	// upstream's.
	PreserveHost bool
}

func New(doer httpclient.HTTPDoer, baseURL string, preserveHost bool) (*Client, error) {
	if doer == nil {
		return nil, errors.New("proxy: nil http client")
	}
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("parse upstream.base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("upstream.base_url: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.New("upstream.base_url: missing host")
	}
	return &Client{HTTP: doer, BaseURL: u, PreserveHost: preserveHost}, nil
}

// Forward sends the downstream request upstream and copies the response
// back through gc.Writer.
func (p *Client) Forward(gc *gin.Context) {
	ctx, span := telemetry.Tracer().Start(gc.Request.Context(), "fieldproxy.upstream",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	req, err := p.newUpstreamRequest(gc.Request.WithContext(ctx))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "build request")
		writeUpstreamError(gc, http.StatusBadGateway, "invalid upstream request")
		return
	}
	span.SetAttributes(
		attribute.String("http.method", req.Method),
		attribute.String("http.url", req.URL.Redacted()),
	)
	telemetry.Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := p.HTTP.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upstream request failed")
		log.Printf("upstream request failed: method=%s path=%q err=%v", req.Method, gc.Request.URL.Path, err)
		writeUpstreamError(gc, http.StatusBadGateway, "upstream request failed")
		return
	}
	defer func() { _ = resp.Body.Close() }()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	gc.Set(CtxUpstreamStatus, resp.StatusCode)
	if err := writeResponse(gc, resp); err != nil {
		span.RecordError(err)
		log.Printf("copy upstream response failed: path=%q err=%v", gc.Request.URL.Path, err)
	}
}

func (p *Client) newUpstreamRequest(in *http.Request) (*http.Request, error) {
	target := *p.BaseURL
	target.Path = joinURLPath(p.BaseURL.Path, in.URL.Path)
	target.RawPath = ""
	target.RawQuery = in.URL.RawQuery

	var body io.Reader
	if in.Body != nil && in.Body != http.NoBody {
		body = in.Body
	}
	out, err := http.NewRequestWithContext(in.Context(), in.Method, target.String(), body)
	if err != nil {
		return nil, err
	}
	out.ContentLength = in.ContentLength
	out.Header = in.Header.Clone()
	removeHopByHop(out.Header)
	// Identity bodies only; compressed payloads cannot be filtered.
	out.Header.Del("Accept-Encoding")

	if p.PreserveHost {
		out.Host = in.Host
	}
	if ip, _, err := net.SplitHostPort(in.RemoteAddr); err == nil {
		if prior := out.Header.Get("X-Forwarded-For"); prior != "" {
			ip = prior + ", " + ip
		}
		out.Header.Set("X-Forwarded-For", ip)
	}
	if out.Header.Get("X-Forwarded-Host") == "" && in.Host != "" {
		out.Header.Set("X-Forwarded-Host", in.Host)
	}
	if out.Header.Get("X-Forwarded-Proto") == "" {
		proto := "http"
		if in.TLS != nil {
			proto = "https"
		}
		out.Header.Set("X-Forwarded-Proto", proto)
	}
	return out, nil
}

func joinURLPath(base, p string) string {
	if base == "" || base == "/" {
		if p == "" {
			return "/"
		}
		return p
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(p, "/")
}

func removeHopByHop(h http.Header) {
	for _, v := range h.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				h.Del(name)
			}
		}
	}
	for _, name := range hopByHopHeaders {
		h.Del(name)
	}
}

func writeUpstreamError(gc *gin.Context, status int, msg string) {
	gc.AbortWithStatusJSON(status, gin.H{
		"error": gin.H{
			"message": msg,
			"type":    "upstream_error",
			"code":    "bad_gateway",
		},
	})
}
