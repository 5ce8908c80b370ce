package server

import (
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/r9s-ai/fieldproxy/pkg/fieldfilter"
)

// selectorHandler shows how a selector parses.
func selectorHandler(st *state, param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		sel := c.Query(param)
		tree := st.cache.Parse(sel)
		c.JSON(http.StatusOK, gin.H{
			"input":     sel,
			"canonical": tree.String(),
			"empty":     tree.Empty(),
			"tree":      tree,
		})
	}
}

func rulesHandler(st *state) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"rules_file": st.RulesFile(),
			"rules":      st.rules.List(),
		})
	}
}

// filterHandler applies a selector to a JSON request body:
// POST /admin/filter?fields=...&payload_path=$.data&each_item=true
func filterHandler(st *state, param string, maxBody int) gin.HandlerFunc {
	return func(c *gin.Context) {
		var r io.Reader = c.Request.Body
		if maxBody > 0 {
			r = http.MaxBytesReader(c.Writer, c.Request.Body, int64(maxBody))
		}
		body, err := io.ReadAll(r)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": gin.H{"message": err.Error()}})
			return
		}
		eachItem, _ := strconv.ParseBool(c.DefaultQuery("each_item", "false"))
		opts := fieldfilter.Options{
			PayloadPath: strings.TrimSpace(c.Query("payload_path")),
			EachItem:    eachItem,
		}
		out, res, err := fieldfilter.FilterJSONTree(body, st.cache.Parse(c.Query(param)), opts)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": err.Error(), "reason": res.Reason}})
			return
		}
		c.Header("X-Fieldproxy-Filter", res.Reason)
		c.Data(http.StatusOK, "application/json; charset=utf-8", out)
	}
}

func statusHandler(st *state) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"started_at":   st.startedAt.Unix(),
			"rules":        st.rules.Len(),
			"cached_trees": st.cache.Len(),
			"reloads":      st.reloads.Load(),
		})
	}
}

func reloadHandler(st *state) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := st.reloadAll()
		if err != nil {
			log.Printf("reload failed (admin): %v", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": gin.H{"message": err.Error()}})
			return
		}
		log.Printf("reload ok (admin): rules_file=%q rules=%d", res.RulesFile, res.Rules)
		c.JSON(http.StatusOK, gin.H{"ok": true, "rules_file": res.RulesFile, "rules": res.Rules})
	}
}
