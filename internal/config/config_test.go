package config

import (
	"os"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestMustLoad_PanicsOnInvalidConfig(t *testing.T) {
	t.Setenv("LOG_LEVEL", "verbose") // invalid -> Load() error
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("MustLoad should panic on invalid config")
		}
	}()
	_ = MustLoad()
}

func TestLoad_Success_DefaultsAndOverrides(t *testing.T) {
	// Server timeouts / sizes (valid)
	t.Setenv("PORT", "8088")
	t.Setenv("READ_TIMEOUT", "2s")
	t.Setenv("READ_HEADER_TIMEOUT", "1s")
	t.Setenv("WRITE_TIMEOUT", "3s")
	t.Setenv("IDLE_TIMEOUT", "4s")
	t.Setenv("MAX_HEADER_BYTES", "8192")
	t.Setenv("GIN_MODE", "weird") // will normalize to "release"

	// Logging
	t.Setenv("LOG_LEVEL", "warning") // will normalize to "warn"
	t.Setenv("LOG_PRETTY", "yes")
	t.Setenv("API_BASE_PATH", "api/v1/") // no leading slash + trailing slash -> "/api/v1"

	// Storage
	t.Setenv("KV_BACKEND", "REDIS")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("REDIS_PREFIX", "bot:")

	// Chat platform and game
	t.Setenv("ONEBOT_API_URL", "http://napcat:3000/")
	t.Setenv("ONEBOT_ACCESS_TOKEN", "tok")
	t.Setenv("ONEBOT_SECRET", "s3cret")
	t.Setenv("ONEBOT_TIMEOUT", "5s")
	t.Setenv("CATALOG_SOURCE", "https://example.com/chars.json")
	t.Setenv("SUPER_ADMINS", " 111, ,222 ")
	t.Setenv("DRAW_HOURLY_LIMIT", "8")
	t.Setenv("HAREM_MAX_SIZE", "20")
	t.Setenv("TIMEZONE", "Asia/Shanghai")
	t.Setenv("EVENT_TIMEOUT", "7s")

	// Rate limiting (use invalids for parse to fall back to defaults)
	t.Setenv("RATE_RPS", "x")      // -> default 20
	t.Setenv("RATE_BURST", "nope") // -> default 40

	// Web protection
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.com , , http://b ")
	t.Setenv("ENABLE_HSTS", "TRUE")
	t.Setenv("HSTS_MAX_AGE", "24h")

	// Events / OTEL
	t.Setenv("NATS_URL", "nats://nats:4222")
	t.Setenv("NATS_SUBJECT_PREFIX", "game")
	t.Setenv("OTEL_ENABLED", "1")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "otel:4317")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "0")
	t.Setenv("OTEL_SERVICE_NAME", "svc")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.75")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	// Server
	if cfg.Port != "8088" ||
		cfg.ReadTimeout != 2*time.Second ||
		cfg.ReadHeaderTimeout != 1*time.Second ||
		cfg.WriteTimeout != 3*time.Second ||
		cfg.IdleTimeout != 4*time.Second ||
		cfg.MaxHeaderBytes != 8192 ||
		cfg.GinMode != "release" {
		t.Fatalf("server fields unexpected: %+v", cfg)
	}

	// Logging
	if cfg.LogLevel != "warn" || !cfg.LogPretty || cfg.APIBasePath != "/api/v1" {
		t.Fatalf("logging unexpected: %+v", cfg)
	}

	// Storage
	if cfg.KVBackend != BackendRedis || cfg.Redis.Addr != "redis:6379" || cfg.Redis.DB != 3 || cfg.Redis.Prefix != "bot:" {
		t.Fatalf("storage unexpected: %+v", cfg.Redis)
	}

	// Chat platform and game
	if cfg.OneBot.APIURL != "http://napcat:3000" || cfg.OneBot.AccessToken != "tok" ||
		cfg.OneBot.Secret != "s3cret" || cfg.OneBot.Timeout != 5*time.Second {
		t.Fatalf("onebot unexpected: %+v", cfg.OneBot)
	}
	if cfg.Game.CatalogSource != "https://example.com/chars.json" ||
		!reflect.DeepEqual(cfg.Game.SuperAdmins, []string{"111", "222"}) ||
		cfg.Game.DrawHourlyLimit != 8 || cfg.Game.HaremMaxSize != 20 ||
		cfg.Game.EventTimeout != 7*time.Second {
		t.Fatalf("game unexpected: %+v", cfg.Game)
	}
	loc, err := cfg.Location()
	if err != nil || loc.String() != "Asia/Shanghai" {
		t.Fatalf("location = %v, %v", loc, err)
	}

	// Rate limiting (parse fallback to defaults)
	if cfg.RateRPS != 20.0 || cfg.RateBurst != 40 {
		t.Fatalf("rate limiting unexpected: %+v", cfg)
	}

	// Web protection
	if !reflect.DeepEqual(cfg.CORS.AllowedOrigins, []string{"https://a.com", "http://b"}) {
		t.Fatalf("cors origins unexpected: %#v", cfg.CORS.AllowedOrigins)
	}
	if !cfg.Security.EnableHSTS || cfg.Security.HSTSMaxAge != 24*time.Hour {
		t.Fatalf("security unexpected: %+v", cfg.Security)
	}

	// Events / OTEL
	if cfg.NATS.URL != "nats://nats:4222" || cfg.NATS.SubjectPrefix != "game" {
		t.Fatalf("nats unexpected: %+v", cfg.NATS)
	}
	if !cfg.OTEL.Enabled || cfg.OTEL.Endpoint != "otel:4317" || cfg.OTEL.Insecure || cfg.OTEL.ServiceName != "svc" || cfg.OTEL.SampleRatio != 0.75 {
		t.Fatalf("otel unexpected: %+v", cfg.OTEL)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"invalid LOG_LEVEL", map[string]string{"LOG_LEVEL": "verbose"}, "LOG_LEVEL"},
		{"empty PORT via spaces", map[string]string{"PORT": "   "}, "PORT must not be empty"},
		{"non-positive timeouts", map[string]string{"READ_TIMEOUT": "0s"}, "timeouts must be positive"},
		{"max header bytes <= 0", map[string]string{"MAX_HEADER_BYTES": "0"}, "MAX_HEADER_BYTES"},
		{"unknown backend", map[string]string{"KV_BACKEND": "etcd"}, "KV_BACKEND"},
		{"empty DB_PATH", map[string]string{"KV_BACKEND": "sqlite", "DB_PATH": "   "}, "DB_PATH must not be empty"},
		{"empty REDIS_ADDR", map[string]string{"KV_BACKEND": "redis", "REDIS_ADDR": "  "}, "REDIS_ADDR"},
		{"empty catalog", map[string]string{"CATALOG_SOURCE": " "}, "CATALOG_SOURCE"},
		{"hourly limit < 1", map[string]string{"DRAW_HOURLY_LIMIT": "0"}, "DRAW_HOURLY_LIMIT"},
		{"harem size < 1", map[string]string{"HAREM_MAX_SIZE": "-2"}, "HAREM_MAX_SIZE"},
		{"bad time zone", map[string]string{"TIMEZONE": "Mars/Olympus"}, "TIMEZONE"},
		{"event timeout <= 0", map[string]string{"EVENT_TIMEOUT": "0s"}, "EVENT_TIMEOUT"},
		{"rate rps negative", map[string]string{"RATE_RPS": "-1"}, "RATE_RPS"},
		{"rate burst < 1", map[string]string{"RATE_BURST": "0"}, "RATE_BURST"},
		{"hsts max age negative", map[string]string{"HSTS_MAX_AGE": "-1s"}, "HSTS_MAX_AGE"},
		{"otel sample ratio out of range", map[string]string{"OTEL_TRACES_SAMPLER_ARG": "1.5"}, "OTEL_TRACES_SAMPLER_ARG"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); !containsErr(err, tc.want) {
				t.Fatalf("expected %s validation error, got: %v", tc.want, err)
			}
		})
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("X_EMPTY", "")
	t.Setenv("X_STR", "val")
	t.Setenv("X_FLOAT", "3.14")
	t.Setenv("X_INT", "42")
	t.Setenv("X_DUR", "150ms")
	t.Setenv("X_BAD", "zzz")

	if getenv("X_EMPTY", "d") != "d" || getenv("X_STR", "d") != "val" {
		t.Fatalf("getenv mismatch")
	}
	if getfloat("X_FLOAT", 0) != 3.14 || getfloat("X_BAD", 1.5) != 1.5 {
		t.Fatalf("getfloat mismatch")
	}
	if getint("X_INT", 0) != 42 || getint("X_BAD", 7) != 7 {
		t.Fatalf("getint mismatch")
	}
	if getdur("X_DUR", time.Second) != 150*time.Millisecond || getdur("X_BAD", 2*time.Second) != 2*time.Second {
		t.Fatalf("getdur mismatch")
	}
}

func TestGetbool(t *testing.T) {
	for _, v := range []string{"1", "true", "TRUE", " yes ", "Y", "on"} {
		t.Setenv("X_BOOL", v)
		if !getbool("X_BOOL", false) {
			t.Errorf("getbool(%q) = false", v)
		}
	}
	for _, v := range []string{"0", "false", " no ", "N", "Off"} {
		t.Setenv("X_BOOL", v)
		if getbool("X_BOOL", true) {
			t.Errorf("getbool(%q) = true", v)
		}
	}
	t.Setenv("X_BOOL", "")
	if !getbool("X_BOOL", true) || getbool("X_BOOL", false) {
		t.Fatalf("empty value should fall back to the default")
	}
}

func TestSplitCSVAndBasePath(t *testing.T) {
	if splitCSV("") != nil {
		t.Fatalf("splitCSV(\"\") should be nil")
	}
	if got := splitCSV(" 111, ,222 ,"); !reflect.DeepEqual(got, []string{"111", "222"}) {
		t.Fatalf("splitCSV = %#v", got)
	}
	for in, want := range map[string]string{"": "/", "v1": "/v1", "/v1/": "/v1", " / ": "/"} {
		if got := normalizeBasePath(in); got != want {
			t.Errorf("normalizeBasePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMain(m *testing.M) {
	os.Unsetenv("PORT")
	os.Exit(m.Run())
}

// containsErr reports whether err's message contains the given substring.
func containsErr(err error, want string) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), want)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.APIBasePath != "/api/v1" {
		t.Fatalf("API_BASE_PATH default expected '/api/v1', got %q", cfg.APIBasePath)
	}
	if cfg.KVBackend != BackendSQLite || cfg.DBPath != "mudae.db" {
		t.Fatalf("storage defaults unexpected: %q %q", cfg.KVBackend, cfg.DBPath)
	}
	if cfg.Game.DrawHourlyLimit != 5 || cfg.Game.HaremMaxSize != 10 || cfg.OneBot.APIURL != "" || cfg.NATS.URL != "" {
		t.Fatalf("game defaults unexpected: %+v", cfg.Game)
	}
	if loc, _ := cfg.Location(); loc != time.Local {
		t.Fatalf("default location should be Local")
	}
}

func TestMustLoad_Success_NoPanic(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("MustLoad should not panic on valid defaults, got: %v", r)
		}
	}()
	cfg := MustLoad()
	if cfg.APIBasePath == "" {
		t.Fatalf("unexpected empty config from MustLoad")
	}
}
