package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestKeyBySelfOrIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/onebot/event", nil)
	c.Request.RemoteAddr = "10.0.0.7:5555"

	key := KeyBySelfOrIP()
	if got := key(c); got != "ip:10.0.0.7" {
		t.Fatalf("key = %q", got)
	}
	c.Request.Header.Set("X-Self-ID", "123456")
	if got := key(c); got != "self:123456" {
		t.Fatalf("key = %q", got)
	}
}

func TestNewRateLimiter_BurstFloorAndReuse(t *testing.T) {
	rl := NewRateLimiter(1, 0, KeyBySelfOrIP())
	if rl.burst != 1 {
		t.Fatalf("burst = %d, want 1", rl.burst)
	}
	now := time.Now()
	if rl.getVisitor("self:1", now) != rl.getVisitor("self:1", now) {
		t.Fatalf("expected the same limiter for the same key")
	}
	if rl.getVisitor("self:1", now) == rl.getVisitor("self:2", now) {
		t.Fatalf("expected distinct limiters per key")
	}
}

func TestRateLimiter_EvictsIdleVisitors(t *testing.T) {
	rl := NewRateLimiter(1, 1, KeyBySelfOrIP())
	rl.cleanupEvery = 3
	start := time.Now()

	rl.getVisitor("self:old", start)
	rl.getVisitor("self:fresh", start.Add(rl.ttl))
	// Third lookup triggers the sweep; "old" has been idle for 2*ttl.
	rl.getVisitor("self:fresh", start.Add(2*rl.ttl))

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if _, ok := rl.visitors["self:old"]; ok {
		t.Fatalf("idle visitor not evicted")
	}
	if _, ok := rl.visitors["self:fresh"]; !ok {
		t.Fatalf("active visitor evicted")
	}
}

func TestRateLimiter_Handler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.Use(NewRateLimiter(0.001, 2, KeyBySelfOrIP()).Handler())
	r.POST("/onebot/event", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	post := func(self string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/onebot/event", nil)
		req.Header.Set("X-Self-ID", self)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	for i := 0; i < 2; i++ {
		if w := post("bot-a"); w.Code != http.StatusNoContent {
			t.Fatalf("request %d = %d", i, w.Code)
		}
	}
	w := post("bot-a")
	if w.Code != http.StatusTooManyRequests || w.Header().Get("Retry-After") != "1" {
		t.Fatalf("expected 429 with Retry-After, got %d %v", w.Code, w.Header())
	}
	if w := post("bot-b"); w.Code != http.StatusNoContent {
		t.Fatalf("separate bucket throttled: %d", w.Code)
	}
}
