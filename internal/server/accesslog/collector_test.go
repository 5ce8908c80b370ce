package accesslog

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestCollector_CollectMapsContextFields(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(w)
	ctx.Request = httptest.NewRequest("GET", "/wp/v2/posts?fields=id", nil)
	ctx.Request.Header.Set("User-Agent", "curl/8.0")

	ctx.Set("X-Request-Id", "rid-1")
	ctx.Set("fp.rule", "posts")
	ctx.Set("fp.fields", "id")
	ctx.Set("fp.filter", "applied")
	ctx.Set("fp.upstream_status", 200)
	ctx.Set("fp.bytes_in", 120)
	ctx.Set("fp.bytes_out", 9)

	got := NewCollector("X-Request-Id").Collect(ctx)
	want := map[string]any{
		"request_id":      "rid-1",
		"user_agent":      "curl/8.0",
		"rule":            "posts",
		"fields":          "id",
		"filter":          "applied",
		"upstream_status": 200,
		"bytes_in":        120,
		"bytes_out":       9,
	}
	if len(got) != len(want) {
		t.Fatalf("got %d fields: %#v", len(got), got)
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("field %s=%#v want=%#v", k, got[k], v)
		}
	}
}

func TestCollector_MissingValues(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx, _ := gin.CreateTestContext(httptest.NewRecorder())
	ctx.Request = httptest.NewRequest("GET", "/", nil)
	ctx.Request.Header.Del("User-Agent")

	got := NewCollector("X-Request-Id").Collect(ctx)
	if len(got) != 0 {
		t.Fatalf("expected no fields, got %#v", got)
	}
	if got := NewCollector("X-Request-Id").Collect(nil); len(got) != 0 {
		t.Fatalf("nil context should yield no fields")
	}
}
