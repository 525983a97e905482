package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func captureLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev, prevLevel := log.Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prev
		zerolog.SetGlobalLevel(prevLevel)
	})
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	log.Logger = zerolog.New(&buf)
	return &buf
}

// logLines decodes every JSON line written to buf.
func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("bad log line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestRequestID_GenerateAndPropagate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	var seen string
	r.GET("/health", func(c *gin.Context) {
		v, _ := c.Get(requestIDKey)
		seen = asString(v)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if gen := w.Header().Get(requestIDHeader); gen == "" || gen != seen {
		t.Fatalf("generated id header=%q ctx=%q", gen, seen)
	}

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("x-request-id", "abc-123")
	r.ServeHTTP(w, req)
	if got := w.Header().Get(requestIDHeader); got != "abc-123" || seen != "abc-123" {
		t.Fatalf("propagated id header=%q ctx=%q", got, seen)
	}
}

func TestLogger_LevelsByOutcome(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID(), Logger())
	r.POST("/onebot/event", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/boom", func(c *gin.Context) {
		_ = c.Error(errors.New("dispatch failed"))
		c.Status(http.StatusOK)
	})

	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/onebot/event"},
		{http.MethodGet, "/missing"},
		{http.MethodGet, "/boom"},
	} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(tc.method, tc.path, nil))
	}

	lines := logLines(t, buf)
	if len(lines) != 3 {
		t.Fatalf("expected 3 request lines, got %d", len(lines))
	}
	want := []struct{ level, path string }{
		{"debug", "/onebot/event"},
		{"warn", "/missing"},
		{"error", "/boom"},
	}
	for i, w := range want {
		if lines[i]["level"] != w.level || lines[i]["path"] != w.path {
			t.Errorf("line %d = %v, want level=%s path=%s", i, lines[i], w.level, w.path)
		}
		if lines[i]["request_id"] == "" || lines[i]["status"] == nil {
			t.Errorf("line %d missing request fields: %v", i, lines[i])
		}
	}
	if lines[2]["errors"] == nil {
		t.Errorf("gin errors not logged: %v", lines[2])
	}
}

func TestLogger_ContextCarriesRequestFields(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID(), Logger())
	r.POST("/onebot/event", func(c *gin.Context) {
		// Downstream code only sees the context, as the dispatcher does.
		zerolog.Ctx(c.Request.Context()).Info().Msg("handled")
		LoggerFrom(c).Info().Msg("via gin")
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodPost, "/onebot/event", nil)
	req.Header.Set(requestIDHeader, "rid-9")
	req.Header.Set("X-Self-ID", "10001")
	r.ServeHTTP(httptest.NewRecorder(), req)

	lines := logLines(t, buf)
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	for _, l := range lines[:2] {
		if l["request_id"] != "rid-9" || l["self_id"] != "10001" {
			t.Fatalf("context logger missing fields: %v", l)
		}
	}
}

func TestLoggerFrom_Fallback(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.GET("/x", func(c *gin.Context) {
		LoggerFrom(c).Info().Msg("plain")
		c.Status(http.StatusOK)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))

	lines := logLines(t, buf)
	if len(lines) != 1 || lines[0]["message"] != "plain" || lines[0]["request_id"] != nil {
		t.Fatalf("unexpected fallback output: %v", lines)
	}
}

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("json body before write", func(t *testing.T) {
		buf := captureLogger(t)
		r := gin.New()
		r.Use(RequestID(), Recovery())
		r.GET("/panic", func(c *gin.Context) { panic("kaboom") })

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
		if w.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d", w.Code)
		}
		var body map[string]any
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("invalid json: %v", err)
		}
		if body["code"] != "internal_error" || body["request_id"] != w.Header().Get(requestIDHeader) {
			t.Fatalf("body = %v", body)
		}
		if !strings.Contains(buf.String(), "panic recovered") {
			t.Fatalf("panic not logged: %s", buf.String())
		}
	})

	t.Run("no body after write", func(t *testing.T) {
		captureLogger(t)
		r := gin.New()
		r.Use(Recovery())
		r.GET("/late", func(c *gin.Context) {
			c.String(http.StatusOK, "partial")
			panic("late")
		})

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/late", nil))
		if strings.Contains(w.Body.String(), "internal_error") {
			t.Fatalf("json written after partial body: %q", w.Body.String())
		}
	})
}

func TestHelpers(t *testing.T) {
	if asString("x") != "x" || asString(7) != "" {
		t.Fatalf("asString")
	}
	if truncate("hello", 10) != "hello" || truncate("abcdefgh", 5) != "abcde…" || truncate("abc", 0) != "abc" {
		t.Fatalf("truncate")
	}
}
