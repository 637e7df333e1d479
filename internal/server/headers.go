package server

import (
	"net/http"
	"regexp"
)

var securityHeaders = map[string]string{
	"X-Frame-Options":        "DENY",
	"X-Content-Type-Options": "nosniff",
	"Referrer-Policy":        "strict-origin-when-cross-origin",
	"Permissions-Policy":     "geolocation=(), microphone=(), camera=()",
}

// SecurityHeaders sets the fixed security header set on every response.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		for k, v := range securityHeaders {
			h.Set(k, v)
		}
		next.ServeHTTP(w, r)
	})
}

const (
	cacheImmutable  = "public, max-age=31536000, immutable"
	cacheDocument   = "public, max-age=3600"
	cacheRevalidate = "public, max-age=0"
)

var (
	immutablePattern = regexp.MustCompile(`\.(?:css|js|png|jpg|jpeg|gif|svg|woff|woff2|ttf|eot)$`)
	documentPattern  = regexp.MustCompile(`\.(?:html|xml)$`)
)

// CacheControl returns the Cache-Control value for a successfully served
// path, or "" to leave the origin's header alone.
func CacheControl(path string) string {
	switch {
	case immutablePattern.MatchString(path):
		return cacheImmutable
	case documentPattern.MatchString(path):
		return cacheDocument
	default:
		return ""
	}
}
