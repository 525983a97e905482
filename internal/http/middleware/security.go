package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const defaultHSTSMaxAge = 180 * 24 * time.Hour

// SecurityOptions selects the optional headers of SecurityHeaders.
//
// HSTS is only emitted for HTTPS requests and should only be enabled when
// the proxy to bot hop is TLS as well. NoStore marks responses uncacheable.
// EnablePolicy adds browser feature policies, which API clients ignore.
type SecurityOptions struct {
	EnableHSTS   bool
	HSTSMaxAge   time.Duration // defaults to 180 days
	NoStore      bool
	EnablePolicy bool
}

// SecurityHeaders hardens responses of the read-only JSON API. The OneBot
// webhook does not use it; its only client is the bot implementation.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	maxAge := opt.HSTSMaxAge
	if maxAge <= 0 {
		maxAge = defaultHSTSMaxAge
	}
	hsts := "max-age=" + strconv.Itoa(int(maxAge.Seconds())) + "; includeSubDomains; preload"

	fixed := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "no-referrer",
	}
	if opt.EnablePolicy {
		fixed["Permissions-Policy"] = "geolocation=(), microphone=(), camera=(), payment=()"
		fixed["X-Permitted-Cross-Domain-Policies"] = "none"
	}
	if opt.NoStore {
		fixed["Cache-Control"] = "no-store"
		fixed["Pragma"] = "no-cache"
		fixed["Expires"] = "0"
	}

	return func(c *gin.Context) {
		h := c.Writer.Header()
		for k, v := range fixed {
			h.Set(k, v)
		}
		if opt.EnableHSTS && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hsts)
		}
		if h.Get(requestIDHeader) != "" {
			exposeHeader(h, requestIDHeader)
		}
		c.Next()
	}
}

// exposeHeader appends name to Access-Control-Expose-Headers once.
func exposeHeader(h http.Header, name string) {
	const key = "Access-Control-Expose-Headers"
	cur := h.Get(key)
	switch {
	case cur == "":
		h.Set(key, name)
	case !strings.Contains(cur, name):
		h.Set(key, cur+", "+name)
	}
}

// isHTTPS reports whether the request arrived over TLS, directly or behind a
// proxy that set X-Forwarded-Proto.
func isHTTPS(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
