package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// KeyFunc returns the currently configured key; it is read per request so
// a reload can rotate it.
type KeyFunc func() string

// Middleware accepts "Authorization: Bearer <key>" or "x-api-key: <key>".
// An empty configured key lets every request through.
func Middleware(key KeyFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		expected := ""
		if key != nil {
			expected = strings.TrimSpace(key())
		}
		if expected == "" {
			c.Next()
			return
		}
		got := PresentedKey(c.Request)
		if got != "" && subtle.ConstantTimeCompare([]byte(got), []byte(expected)) == 1 {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": gin.H{
				"message": "unauthorized",
				"type":    "invalid_request_error",
				"code":    "invalid_api_key",
			},
		})
	}
}

// PresentedKey extracts the credential a client sent.
func PresentedKey(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get("Authorization")); len(v) > 7 && strings.EqualFold(v[:7], "Bearer ") {
		return strings.TrimSpace(v[7:])
	}
	return strings.TrimSpace(r.Header.Get("x-api-key"))
}

// StaticKey adapts a fixed key to KeyFunc.
func StaticKey(k string) KeyFunc {
	return func() string { return k }
}
