// Package middleware contains the Gin middleware shared by the webhook and
// the read-only API: correlation ids, structured request logs, panic
// recovery, Prometheus metrics, rate limiting, security headers and the
// OneBot signature check.
package middleware

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	requestIDKey    = "requestID"
	requestIDHeader = "X-Request-ID"

	// selfIDHeader carries the bot account on OneBot HTTP POST callbacks.
	selfIDHeader = "X-Self-ID"

	maxQueryLogLength = 2048
)

// RequestID reuses an inbound X-Request-ID or mints a UUID, stores it on the
// gin context and echoes it on the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// Logger emits one structured line per request. The request-scoped logger is
// also attached to the request context, so log.Ctx in the dispatcher and the
// game services inherits request_id and self_id.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		l := requestLogger(c)
		c.Set("logger", &l)
		c.Request = c.Request.WithContext(l.WithContext(c.Request.Context()))

		c.Next()

		status := c.Writer.Status()
		ev := l.WithLevel(requestLevel(c, status)).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Int64("bytes_in", c.Request.ContentLength).
			Int("bytes_out", c.Writer.Size()).
			Str("user_agent", c.Request.UserAgent())
		if q := c.Request.URL.RawQuery; q != "" {
			ev = ev.Str("query", truncate(q, maxQueryLogLength))
		}
		if len(c.Errors) > 0 {
			ev = ev.Str("errors", c.Errors.String())
		}
		ev.Msg("request")
	}
}

func requestLogger(c *gin.Context) zerolog.Logger {
	rid, _ := c.Get(requestIDKey)
	path := c.FullPath()
	if path == "" {
		path = c.Request.URL.Path
	}
	lc := log.With().
		Str("request_id", asString(rid)).
		Str("method", c.Request.Method).
		Str("path", path).
		Str("remote_ip", c.ClientIP())
	if self := c.GetHeader(selfIDHeader); self != "" {
		lc = lc.Str("self_id", self)
	}
	return lc.Logger()
}

// requestLevel keeps successful webhook traffic at debug; chat groups
// generate a request per message.
func requestLevel(c *gin.Context, status int) zerolog.Level {
	switch {
	case len(c.Errors) > 0, status >= http.StatusInternalServerError:
		return zerolog.ErrorLevel
	case status >= http.StatusBadRequest:
		return zerolog.WarnLevel
	default:
		return zerolog.DebugLevel
	}
}

// Recovery turns a handler panic into a JSON 500 carrying the request id.
// If the response was already started only the status is recorded.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			LoggerFrom(c).Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("panic recovered")
			if c.Writer.Written() {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			abortJSON(c, http.StatusInternalServerError, "internal_error", "internal server error")
		}()
		c.Next()
	}
}

// LoggerFrom returns the request-scoped logger set by Logger, or the global
// logger when the middleware did not run.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get("logger"); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	l := log.With().Logger()
	return &l
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
