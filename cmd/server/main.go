// Command server runs the collection game bot: it receives OneBot v11
// events over HTTP, answers in the group through the OneBot HTTP API and
// serves a read-only JSON view of the game state.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/lovelyMokou/astrbot-plugin-mudae-qq-mokou/internal/catalog"
	"github.com/lovelyMokou/astrbot-plugin-mudae-qq-mokou/internal/commands"
	"github.com/lovelyMokou/astrbot-plugin-mudae-qq-mokou/internal/config"
	"github.com/lovelyMokou/astrbot-plugin-mudae-qq-mokou/internal/domain"
	"github.com/lovelyMokou/astrbot-plugin-mudae-qq-mokou/internal/events"
	httpapi "github.com/lovelyMokou/astrbot-plugin-mudae-qq-mokou/internal/http"
	"github.com/lovelyMokou/astrbot-plugin-mudae-qq-mokou/internal/http/handlers"
	"github.com/lovelyMokou/astrbot-plugin-mudae-qq-mokou/internal/kv"
	"github.com/lovelyMokou/astrbot-plugin-mudae-qq-mokou/internal/messaging"
	"github.com/lovelyMokou/astrbot-plugin-mudae-qq-mokou/internal/observability"
	"github.com/lovelyMokou/astrbot-plugin-mudae-qq-mokou/internal/repo"
	"github.com/lovelyMokou/astrbot-plugin-mudae-qq-mokou/internal/services"
	"github.com/lovelyMokou/astrbot-plugin-mudae-qq-mokou/internal/sysutil"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version string

func main() {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	sysutil.SetupLogger(os.Stderr, cfg.LogLevel, cfg.LogPretty)
	ver := sysutil.FirstNonEmpty(version, os.Getenv("APP_VERSION"), "dev")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, ver)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	store, ready, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.KVBackend).Msg("kv store unavailable")
	}

	loc, err := cfg.Location()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid TIMEZONE")
	}

	cat, err := catalog.Load(ctx, cfg.Game.CatalogSource, cfg.Game.CatalogTimeout)
	if err != nil {
		log.Fatal().Err(err).Str("source", cfg.Game.CatalogSource).Msg("catalog load failed")
	}
	if cat.Len() == 0 {
		log.Fatal().Str("source", cfg.Game.CatalogSource).Msg("catalog is empty")
	}
	log.Info().Int("characters", cat.Len()).Str("source", cfg.Game.CatalogSource).Msg("catalog loaded")

	messenger, roles := newMessenger(cfg.OneBot)

	publisher, closePublisher := newPublisher(cfg.NATS)

	game := services.NewGame(store, cat, messenger, publisher, services.GameOptions{
		Defaults: domain.GroupConfig{
			DrawHourlyLimit: cfg.Game.DrawHourlyLimit,
			HaremMaxSize:    cfg.Game.HaremMaxSize,
		},
		Location: loc,
	})
	dispatcher := commands.New(game, messenger, roles, cfg.Game.SuperAdmins)

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{
		Events: dispatcher,
		Game:   handlers.NewGameReader(game),
		Ready:  ready,
	}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("version", ver).
			Str("kv_backend", cfg.KVBackend).
			Str("event_path", httpapi.EventPath).
			Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	// In-flight events finish within EVENT_TIMEOUT.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Game.EventTimeout+5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := closePublisher(); err != nil {
		log.Error().Err(err).Msg("event publisher close")
	}
	if err := closeStore(); err != nil {
		log.Error().Err(err).Msg("kv store close")
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown")
	}
}

// openStore builds the configured KV backend, a readiness probe for /health
// and a close func.
func openStore(ctx context.Context, cfg config.Config) (kv.Store, func(context.Context) error, func() error, error) {
	switch cfg.KVBackend {
	case config.BackendMemory:
		log.Warn().Msg("memory kv backend: game state is lost on restart")
		return kv.NewMemoryStore(), nil, func() error { return nil }, nil

	case config.BackendRedis:
		rs := kv.NewRedisStore(kv.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
		if err := rs.Ping(ctx, 3*time.Second); err != nil {
			_ = rs.Close()
			return nil, nil, nil, err
		}
		ready := func(ctx context.Context) error { return rs.Ping(ctx, time.Second) }
		return rs, ready, rs.Close, nil

	default:
		db, err := repo.OpenSQLite(cfg.DBPath)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := repo.AutoMigrate(db); err != nil {
			return nil, nil, nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, nil, err
		}
		return repo.NewSQLStore(db), sqlDB.PingContext, sqlDB.Close, nil
	}
}

// newMessenger returns the OneBot client, or a logging stand-in when no API
// URL is configured.
func newMessenger(cfg config.OneBotConfig) (messaging.Messenger, messaging.RoleResolver) {
	if strings.TrimSpace(cfg.APIURL) == "" {
		log.Warn().Msg("ONEBOT_API_URL not set: replies are logged, not sent")
		lm := &messaging.LogMessenger{}
		return lm, lm
	}
	c := messaging.NewOneBotClient(cfg.APIURL, cfg.AccessToken, cfg.Timeout)
	return c, c
}

// newPublisher connects to NATS when configured. A failed connection is
// logged and events are dropped; the game does not depend on them.
func newPublisher(cfg config.NATSConfig) (events.Publisher, func() error) {
	noop := func() error { return nil }
	if cfg.URL == "" {
		return events.Noop{}, noop
	}
	p, err := events.NewNATSPublisher(events.NATSConfig{
		URL:           cfg.URL,
		Name:          "mudae-bot",
		SubjectPrefix: cfg.SubjectPrefix,
	})
	if err != nil {
		log.Error().Err(err).Str("url", cfg.URL).Msg("nats unavailable, events disabled")
		return events.Noop{}, noop
	}
	return p, p.Close
}
