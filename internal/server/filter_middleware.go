package server

import (
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/r9s-ai/fieldproxy/internal/telemetry"
	"github.com/r9s-ai/fieldproxy/pkg/fieldfilter"
	"github.com/r9s-ai/fieldproxy/pkg/rules"
)

// Context keys set by the filter middleware.
const (
	CtxFields   = "fp.fields"
	CtxFilter   = "fp.filter"
	CtxRule     = "fp.rule"
	CtxBytesIn  = "fp.bytes_in"
	CtxBytesOut = "fp.bytes_out"
)

// Outcomes recorded in CtxFilter besides the fieldfilter reasons.
const (
	filterDisabled    = "disabled"
	filterTooLarge    = "too_large"
	filterStatus      = "status"
	filterContentType = "content_type"
	filterEncoding    = "encoding"
)

type FilterOptions struct {
	// Enabled applies to paths no rule matches.
	Enabled      bool
	Param        string
	ContentTypes []string
	PayloadPath  string
	EachItem     bool
	// MaxBodyBytes bounds buffering; 0 means unbounded.
	MaxBodyBytes int
	Cache        *fieldfilter.TreeCache
	Rules        *rules.Registry
}

type filterPlan struct {
	sel         string
	rule        string
	payloadPath string
	eachItem    bool
}

// FilterMiddleware prunes JSON responses to the fields named in the request's
// selector parameter. Anything it cannot handle is sent unchanged.
func FilterMiddleware(opts FilterOptions) gin.HandlerFunc {
	param := strings.TrimSpace(opts.Param)
	if param == "" {
		param = "fields"
	}
	return func(c *gin.Context) {
		plan, ok := resolvePlan(c, opts, param)
		if !ok {
			c.Next()
			return
		}
		if c.Request.Method == http.MethodHead {
			c.Next()
			return
		}

		orig := c.Writer
		bw := newBufferedWriter(orig, opts.MaxBodyBytes)
		c.Writer = bw
		c.Next()
		c.Writer = orig

		if bw.spilled {
			c.Set(CtxFilter, filterTooLarge)
			return
		}
		body := bw.buf.Bytes()
		c.Set(CtxBytesIn, len(body))
		out, outcome := filterResponse(c, opts, plan, bw.status, body)
		c.Set(CtxFilter, outcome)
		orig.WriteHeader(bw.status)
		if !bw.started {
			return
		}
		n, _ := orig.Write(out)
		c.Set(CtxBytesOut, n)
	}
}

func resolvePlan(c *gin.Context, opts FilterOptions, param string) (filterPlan, bool) {
	plan := filterPlan{payloadPath: opts.PayloadPath, eachItem: opts.EachItem}
	rule, matched := opts.Rules.Match(c.Request.Method, c.Request.URL.Path)
	switch {
	case matched && !rule.IsEnabled():
		c.Set(CtxRule, rule.Name)
		c.Set(CtxFilter, filterDisabled)
		return plan, false
	case matched:
		plan.rule = rule.Name
		if rule.PayloadPath != "" {
			plan.payloadPath = rule.PayloadPath
		}
		plan.eachItem = rule.EachItemOr(opts.EachItem)
	case !opts.Enabled:
		return plan, false
	case c.Request.Method != http.MethodGet:
		return plan, false
	}

	plan.sel = strings.TrimSpace(c.Query(param))
	if plan.sel == "" && matched {
		plan.sel = rule.DefaultFields
	}
	if plan.rule != "" {
		c.Set(CtxRule, plan.rule)
	}
	if plan.sel == "" {
		c.Set(CtxFilter, fieldfilter.ReasonNoSelector)
		return plan, false
	}
	c.Set(CtxFields, plan.sel)
	return plan, true
}

// filterResponse returns the body to send and the outcome to log. It may
// adjust the response headers.
func filterResponse(c *gin.Context, opts FilterOptions, plan filterPlan, status int, body []byte) ([]byte, string) {
	_, span := telemetry.Tracer().Start(c.Request.Context(), "fieldproxy.filter")
	defer span.End()
	span.SetAttributes(
		attribute.String("fieldproxy.selector", plan.sel),
		attribute.String("fieldproxy.rule", plan.rule),
		attribute.Int("http.status_code", status),
	)
	record := func(outcome string) string {
		span.SetAttributes(attribute.String("fieldproxy.outcome", outcome))
		return outcome
	}

	if status < 200 || status > 299 || len(body) == 0 {
		return body, record(filterStatus)
	}
	h := c.Writer.Header()
	if !isJSONMediaType(h.Get("Content-Type"), body, opts.ContentTypes) {
		return body, record(filterContentType)
	}

	plain, gunzipped, err := decodeContent(h.Get("Content-Encoding"), body, opts.MaxBodyBytes)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, errBodyTooLarge) {
			return body, record(filterTooLarge)
		}
		return body, record(filterEncoding)
	}

	tree := opts.Cache.Parse(plan.sel)
	out, res, err := fieldfilter.FilterJSONTree(plain, tree, fieldfilter.Options{
		PayloadPath: plan.payloadPath,
		EachItem:    plan.eachItem,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, res.Reason)
	}
	span.SetAttributes(attribute.Int("fieldproxy.fields", res.Fields))
	if !res.Applied {
		return body, record(res.Reason)
	}
	if gunzipped {
		h.Del("Content-Encoding")
		h.Add("Vary", "Accept-Encoding")
	}
	h.Set("Content-Length", strconv.Itoa(len(out)))
	h.Del("ETag")
	return out, record(res.Reason)
}

func isJSONMediaType(contentType string, body []byte, allowed []string) bool {
	if strings.TrimSpace(contentType) == "" {
		return mimetype.Detect(body).Is("application/json")
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	mt = strings.ToLower(mt)
	if strings.HasSuffix(mt, "+json") {
		return true
	}
	if len(allowed) == 0 {
		return mt == "application/json"
	}
	for _, a := range allowed {
		if a == mt {
			return true
		}
	}
	return false
}

var errBodyTooLarge = errors.New("decoded body exceeds filter.max_body_bytes")

// decodeContent undoes a gzip Content-Encoding. Other encodings are
// rejected.
func decodeContent(encoding string, body []byte, limit int) ([]byte, bool, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return body, false, nil
	case "gzip", "x-gzip":
	default:
		return nil, false, fmt.Errorf("unsupported content-encoding %q", encoding)
	}
	zr, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = zr.Close() }()
	var r io.Reader = zr
	if limit > 0 {
		r = io.LimitReader(zr, int64(limit)+1)
	}
	plain, err := io.ReadAll(r)
	if err != nil {
		return nil, false, err
	}
	if limit > 0 && len(plain) > limit {
		return nil, false, errBodyTooLarge
	}
	return plain, true, nil
}
