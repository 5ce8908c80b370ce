package server

import (
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/r9s-ai/fieldproxy/internal/logx"
	"github.com/r9s-ai/fieldproxy/internal/server/accesslog"
	"github.com/r9s-ai/fieldproxy/pkg/requestid"
)

func requestIDMiddleware(headerKey string) gin.HandlerFunc {
	headerKey = requestid.ResolveHeaderKey(headerKey)
	return func(c *gin.Context) {
		id := requestid.FromHeader(c.Request.Header, headerKey)
		c.Header(headerKey, id)
		c.Set(headerKey, id)
		c.Next()
	}
}

func requestLoggerWithColor(l *log.Logger, color bool, requestIDHeaderKey string, formatter *logx.AccessLogFormatter) gin.HandlerFunc {
	collector := accesslog.NewCollector(requestid.ResolveHeaderKey(requestIDHeaderKey))
	if l == nil {
		l = log.New(os.Stdout, "", log.LstdFlags)
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		e := logx.Entry{
			Time:     time.Now(),
			Status:   c.Writer.Status(),
			Latency:  time.Since(start),
			ClientIP: c.ClientIP(),
			Method:   c.Request.Method,
			Path:     c.Request.URL.Path,
			Fields:   collector.Collect(c),
		}
		if formatter != nil {
			l.Println(formatter.Format(e, color))
			return
		}
		l.Println(logx.FormatRequestLineWithColor(e, color))
	}
}
