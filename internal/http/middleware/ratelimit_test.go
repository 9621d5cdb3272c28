package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

func limiterContext(t *testing.T, ip string) *gin.Context {
	t.Helper()
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodPost, "/updates/message", nil)
	c.Request.RemoteAddr = net.JoinHostPort(ip, "50111")
	return c
}

func TestKeyByUserOrIP(t *testing.T) {
	c := limiterContext(t, "198.51.100.7")

	// Before the handler binds the update there is no user, so the key
	// falls back to the client IP.
	if key := KeyByUserOrIP()(c); key != "ip:198.51.100.7" {
		t.Fatalf("ip fallback key = %q", key)
	}

	c.Set("userID", "314159")
	if key := KeyByUserOrIP()(c); key != "user:314159" {
		t.Fatalf("user key = %q", key)
	}
}

func TestRateLimiterVisitorLifecycle(t *testing.T) {
	rl := NewRateLimiter(2.0, 0, KeyByUserOrIP())
	if rl.burst != 1 {
		t.Fatalf("burst 0 not coerced to 1, got %d", rl.burst)
	}

	first := rl.getVisitor("user:1")
	if first == nil {
		t.Fatal("nil limiter")
	}
	if rl.getVisitor("user:1") != first {
		t.Fatal("repeat lookup allocated a fresh limiter")
	}

	// Seed a stale visitor and force the opportunistic sweep on the next
	// lookup; the stale entry must go, the new key must stay.
	rl.ttl = time.Nanosecond
	rl.mu.Lock()
	rl.visitors["user:stale"] = &visitor{
		limiter:  rate.NewLimiter(1, 1),
		lastSeen: time.Now().Add(-time.Hour),
	}
	rl.cleanupN = 4999
	rl.mu.Unlock()

	_ = rl.getVisitor("user:2")

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if _, ok := rl.visitors["user:stale"]; ok {
		t.Fatal("stale visitor survived the sweep")
	}
	if _, ok := rl.visitors["user:2"]; !ok {
		t.Fatal("fresh visitor missing after the sweep")
	}
}

func TestRateLimiterHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	// burst 1 at 1 rps: the first webhook delivery passes, an immediate
	// retry is rejected.
	rl := NewRateLimiter(1.0, 1, KeyByUserOrIP())
	r := gin.New()
	r.Use(RequestID(), rl.Handler())
	r.POST("/updates/message", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/updates/message", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("first delivery = %d, want 200", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/updates/message", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("immediate retry = %d, want 429", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "1" {
		t.Fatalf("Retry-After = %q, want 1", got)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid json body: %v", err)
	}
	if body["code"] != "rate_limited" || body["request_id"] == nil {
		t.Fatalf("unexpected body: %v", body)
	}
}
