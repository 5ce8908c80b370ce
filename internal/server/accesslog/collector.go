// Package accesslog gathers request-scoped values from the gin context for
// the access log line.
package accesslog

import (
	"strings"

	"github.com/gin-gonic/gin"
)

type contextFieldSpec struct {
	ctxKey string
	logKey string
}

var contextFieldSpecs = []contextFieldSpec{
	{ctxKey: "fp.rule", logKey: "rule"},
	{ctxKey: "fp.fields", logKey: "fields"},
	{ctxKey: "fp.filter", logKey: "filter"},
	{ctxKey: "fp.upstream_status", logKey: "upstream_status"},
	{ctxKey: "fp.bytes_in", logKey: "bytes_in"},
	{ctxKey: "fp.bytes_out", logKey: "bytes_out"},
}

type Collector struct {
	requestIDKey string
}

// NewCollector reads the request id from the context key requestIDKey.
func NewCollector(requestIDKey string) *Collector {
	return &Collector{requestIDKey: requestIDKey}
}

func (c *Collector) Collect(ctx *gin.Context) map[string]any {
	out := make(map[string]any, len(contextFieldSpecs)+2)
	if ctx == nil {
		return out
	}
	if v := strings.TrimSpace(ctx.GetString(c.requestIDKey)); v != "" {
		out["request_id"] = v
	}
	if ctx.Request != nil {
		if ua := strings.TrimSpace(ctx.Request.UserAgent()); ua != "" {
			out["user_agent"] = ua
		}
	}
	for _, s := range contextFieldSpecs {
		if v, ok := ctx.Get(s.ctxKey); ok {
			out[s.logKey] = v
		}
	}
	return out
}
