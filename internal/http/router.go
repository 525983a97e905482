// Package httpapi wires the Gin engine: tracing, correlation ids, request
// logging, panic recovery and metrics on every route; the signed, rate
// limited OneBot webhook; and the read-only JSON API with CORS, gzip and
// security headers.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/lovelyMokou/astrbot-plugin-mudae-qq-mokou/internal/config"
	"github.com/lovelyMokou/astrbot-plugin-mudae-qq-mokou/internal/http/handlers"
	"github.com/lovelyMokou/astrbot-plugin-mudae-qq-mokou/internal/http/middleware"
)

// EventPath is where the OneBot implementation posts events.
const EventPath = "/onebot/event"

// maxEventBytes caps webhook bodies; OneBot events are small JSON objects.
const maxEventBytes = 1 << 20

// Deps are the collaborators the routes call into.
type Deps struct {
	Events handlers.EventHandler
	Game   handlers.GameReader
	// Ready backs /health; nil means always ready.
	Ready func(ctx context.Context) error
}

// RegisterRoutes attaches middleware and endpoints to r.
//
// Global order: OpenTelemetry, RequestID, Logger, Recovery, Metrics. The
// webhook adds a body cap, the rate limiter and the signature check; the API
// group adds CORS, security headers and gzip.
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.Metrics())

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", health(deps.Ready))

	h := handlers.New(deps.Events, deps.Game, cfg.Game.EventTimeout)

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyBySelfOrIP())
	r.POST(EventPath,
		limitBody(maxEventBytes),
		rl.Handler(),
		middleware.VerifySignature(cfg.OneBot.Secret),
		h.PostEvent,
	)

	api := groupWithPrefix(r, cfg.APIBasePath)
	api.Use(corsMiddleware(cfg.CORS))
	api.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		EnablePolicy: true,
	}))
	api.Use(gzip.Gzip(gzip.DefaultCompression))
	{
		api.GET("/characters", h.SearchCharacters)
		api.GET("/groups/:group/config", h.GetConfig)
		api.GET("/groups/:group/characters/:id", h.GetCharacter)
		api.GET("/groups/:group/users/:user/harem", h.GetHarem)
		api.GET("/groups/:group/users/:user/wishes", h.GetWishes)
	}
}

// corsMiddleware allows any origin when none are configured. The API is
// read-only and carries no credentials.
func corsMiddleware(c config.CORSConfig) gin.HandlerFunc {
	cc := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Accept", "Content-Type", "X-Request-ID"},
		ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(c.AllowedOrigins) == 0 {
		cc.AllowAllOrigins = true
	} else {
		cc.AllowOrigins = c.AllowedOrigins
	}
	return cors.New(cc)
}

func health(ready func(context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if ready != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := ready(ctx); err != nil {
				middleware.LoggerFrom(c).Warn().Err(err).Msg("health check failed")
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// limitBody caps the request body with http.MaxBytesReader. Reads past the
// cap fail downstream.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
