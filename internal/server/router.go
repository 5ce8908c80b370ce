package server

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/r9s-ai/fieldproxy/internal/auth"
	"github.com/r9s-ai/fieldproxy/internal/logx"
	"github.com/r9s-ai/fieldproxy/internal/telemetry"
	"github.com/r9s-ai/fieldproxy/pkg/config"
)

const requestIDHeaderKey = "X-Request-Id"

// NewRouter serves /healthz and /admin locally and proxies every other
// path upstream through the filter.
func NewRouter(
	cfg *config.Config,
	st *state,
	forward gin.HandlerFunc,
	accessLogger *log.Logger,
	accessLoggerColor bool,
	accessFormatter *logx.AccessLogFormatter,
) *gin.Engine {
	r := gin.New()
	r.Use(requestIDMiddleware(requestIDHeaderKey))
	if cfg.Logging.AccessLogEnabled() {
		r.Use(requestLoggerWithColor(accessLogger, accessLoggerColor, requestIDHeaderKey, accessFormatter))
	}
	r.Use(gin.Recovery())
	r.Use(telemetry.Middleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	admin := r.Group("/admin")
	admin.Use(auth.Middleware(st.APIKey))
	admin.GET("/selector", selectorHandler(st, cfg.Filter.Param))
	admin.GET("/rules", rulesHandler(st))
	admin.GET("/status", statusHandler(st))
	admin.POST("/filter", filterHandler(st, cfg.Filter.Param, cfg.Filter.MaxBodyBytes))
	admin.POST("/reload", reloadHandler(st))

	r.NoRoute(FilterMiddleware(FilterOptions{
		Enabled:      cfg.Filter.Enabled,
		Param:        cfg.Filter.Param,
		ContentTypes: cfg.Filter.ContentTypes,
		PayloadPath:  cfg.Filter.PayloadPath,
		EachItem:     cfg.Filter.EachItem,
		MaxBodyBytes: cfg.Filter.MaxBodyBytes,
		Cache:        st.cache,
		Rules:        st.rules,
	}), forward)

	return r
}
