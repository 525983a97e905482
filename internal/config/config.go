// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server, logging,
// storage, chat platform, game default and observability settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// KV backends selectable with KV_BACKEND.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// CORSConfig defines Cross-Origin Resource Sharing settings for the
// read-only API.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines response hardening for the API.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// RedisConfig holds the Redis KV backend settings.
type RedisConfig struct {
	Addr     string // REDIS_ADDR
	Password string // REDIS_PASSWORD
	DB       int    // REDIS_DB
	Prefix   string // REDIS_PREFIX, prepended to every key
}

// OneBotConfig describes the OneBot v11 HTTP API used to send replies and
// resolve roles, and the secret that signs inbound webhook posts.
type OneBotConfig struct {
	APIURL      string        // ONEBOT_API_URL; empty logs replies instead
	AccessToken string        // ONEBOT_ACCESS_TOKEN
	Secret      string        // ONEBOT_SECRET; empty disables signature checks
	Timeout     time.Duration // ONEBOT_TIMEOUT
}

// GameConfig holds process-wide game defaults. Groups override them with
// the 系统设置 command.
type GameConfig struct {
	CatalogSource   string // CATALOG_SOURCE, file path or http(s) URL
	CatalogTimeout  time.Duration
	SuperAdmins     []string // SUPER_ADMINS, comma separated user ids
	DrawHourlyLimit int      // DRAW_HOURLY_LIMIT
	HaremMaxSize    int      // HAREM_MAX_SIZE
	TimeZone        string   // TIMEZONE for hourly draw buckets
	EventTimeout    time.Duration
}

// NATSConfig enables domain event publishing when URL is set.
type NATSConfig struct {
	URL           string // NATS_URL
	SubjectPrefix string // NATS_SUBJECT_PREFIX
}

// OTELConfig controls trace export. Tracing is off unless Enabled.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT, gRPC host:port
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG
}

// Config is the whole process configuration, read once at startup.
type Config struct {
	// HTTP server for the OneBot webhook and the API
	Port              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	GinMode           string // debug|release|test

	// Logging
	LogLevel    string // debug|info|warn|error|fatal|panic
	LogPretty   bool   // pretty console logs in dev
	APIBasePath string // base path for the read-only API

	// Storage
	KVBackend string // memory|sqlite|redis
	DBPath    string // SQLite path
	Redis     RedisConfig

	// Chat platform and game
	OneBot OneBotConfig
	Game   GameConfig

	// Webhook rate limiting
	RateRPS   float64 // per bot account or client IP
	RateBurst int

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Events and observability
	NATS NATSConfig
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads the environment (after godotenv has merged .env), fills
// defaults and returns the first validation error it finds.
func Load() (Config, error) {
	cfg := Config{
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		LogLevel:    strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:   getbool("LOG_PRETTY", false),
		APIBasePath: normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		KVBackend: strings.ToLower(getenv("KV_BACKEND", BackendSQLite)),
		DBPath:    getenv("DB_PATH", "mudae.db"),
		Redis: RedisConfig{
			Addr:     getenv("REDIS_ADDR", "localhost:6379"),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getint("REDIS_DB", 0),
			Prefix:   getenv("REDIS_PREFIX", "mudae:"),
		},

		OneBot: OneBotConfig{
			APIURL:      strings.TrimRight(getenv("ONEBOT_API_URL", ""), "/"),
			AccessToken: getenv("ONEBOT_ACCESS_TOKEN", ""),
			Secret:      getenv("ONEBOT_SECRET", ""),
			Timeout:     getdur("ONEBOT_TIMEOUT", 10*time.Second),
		},
		Game: GameConfig{
			CatalogSource:   getenv("CATALOG_SOURCE", "data/characters.json"),
			CatalogTimeout:  getdur("CATALOG_TIMEOUT", 30*time.Second),
			SuperAdmins:     splitCSV(getenv("SUPER_ADMINS", "")),
			DrawHourlyLimit: getint("DRAW_HOURLY_LIMIT", 5),
			HaremMaxSize:    getint("HAREM_MAX_SIZE", 10),
			TimeZone:        getenv("TIMEZONE", "Local"),
			EventTimeout:    getdur("EVENT_TIMEOUT", 30*time.Second),
		},

		RateRPS:   getfloat("RATE_RPS", 20.0),
		RateBurst: getint("RATE_BURST", 40),

		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		NATS: NATSConfig{
			URL:           getenv("NATS_URL", ""),
			SubjectPrefix: getenv("NATS_SUBJECT_PREFIX", "mudae"),
		},
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "mudae-bot"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	switch cfg.KVBackend {
	case BackendMemory, BackendRedis:
	case BackendSQLite:
		if strings.TrimSpace(cfg.DBPath) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	default:
		return cfg, fmt.Errorf("KV_BACKEND must be one of: %s, %s, %s", BackendMemory, BackendSQLite, BackendRedis)
	}
	if cfg.KVBackend == BackendRedis && strings.TrimSpace(cfg.Redis.Addr) == "" {
		return cfg, errors.New("REDIS_ADDR must not be empty")
	}
	if strings.TrimSpace(cfg.Game.CatalogSource) == "" {
		return cfg, errors.New("CATALOG_SOURCE must not be empty")
	}
	if cfg.Game.DrawHourlyLimit < 1 {
		return cfg, errors.New("DRAW_HOURLY_LIMIT must be >= 1")
	}
	if cfg.Game.HaremMaxSize < 1 {
		return cfg, errors.New("HAREM_MAX_SIZE must be >= 1")
	}
	if _, err := cfg.Location(); err != nil {
		return cfg, fmt.Errorf("TIMEZONE: %w", err)
	}
	if cfg.Game.EventTimeout <= 0 || cfg.OneBot.Timeout <= 0 || cfg.Game.CatalogTimeout <= 0 {
		return cfg, errors.New("EVENT_TIMEOUT, ONEBOT_TIMEOUT and CATALOG_TIMEOUT must be > 0")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// Location resolves TIMEZONE. "Local" and "" mean the process time zone.
func (c Config) Location() (*time.Location, error) {
	switch c.Game.TimeZone {
	case "", "Local", "local":
		return time.Local, nil
	}
	return time.LoadLocation(c.Game.TimeZone)
}

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath returns p with one leading slash and no trailing slash.
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
