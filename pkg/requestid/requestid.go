package requestid

import (
	crand "crypto/rand"
	"encoding/hex"
	"net/http"
	"strings"
	"time"
)

const DefaultHeaderKey = "X-Request-Id"

const maxIncomingLen = 128

// ResolveHeaderKey returns headerKey when non-empty, otherwise the default.
func ResolveHeaderKey(headerKey string) string {
	if v := strings.TrimSpace(headerKey); v != "" {
		return v
	}
	return DefaultHeaderKey
}

// Gen returns "yyyymmddHHMMSS" followed by 12 random hex digits.
func Gen() string {
	return time.Now().UTC().Format("20060102150405") + randomHex(6)
}

// FromHeader returns the caller-supplied id when it is safe to log and
// forward, or a fresh one.
func FromHeader(h http.Header, headerKey string) string {
	if v, ok := incoming(h.Get(ResolveHeaderKey(headerKey))); ok {
		return v
	}
	return Gen()
}

func incoming(v string) (string, bool) {
	v = strings.TrimSpace(v)
	if v == "" || len(v) > maxIncomingLen {
		return "", false
	}
	for i := 0; i < len(v); i++ {
		c := v[i]
		ok := c == '-' || c == '_' || c == '.' ||
			('0' <= c && c <= '9') || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
		if !ok {
			return "", false
		}
	}
	return v, true
}

func randomHex(nBytes int) string {
	if nBytes <= 0 {
		return ""
	}
	b := make([]byte, nBytes)
	if _, err := crand.Read(b); err != nil {
		// best effort fallback
		return strings.Repeat("0", nBytes*2)
	}
	return hex.EncodeToString(b)
}
