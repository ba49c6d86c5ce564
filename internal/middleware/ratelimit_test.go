package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// ---------------------------------------------------------------------------
// RateLimiter.Allow
// ---------------------------------------------------------------------------

func newTestLimiter(t *testing.T, rpm, burst int) (*RateLimiter, *time.Time) {
	t.Helper()
	rl := NewRateLimiter(RateLimitConfig{
		RequestsPerMinute: rpm,
		BurstSize:         burst,
		CleanupInterval:   time.Hour, // Don't clean up during tests
	})
	t.Cleanup(rl.Stop)

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	return rl, &now
}

func allow(t *testing.T, rl *RateLimiter, key string) Decision {
	t.Helper()
	d, err := rl.Allow(context.Background(), key)
	if err != nil {
		t.Fatalf("Allow() error: %v", err)
	}
	return d
}

func TestRateLimiter_AllowsUpToBurst(t *testing.T) {
	rl, _ := newTestLimiter(t, 60, 3)

	for i := 0; i < 3; i++ {
		if d := allow(t, rl, "client"); !d.Allowed {
			t.Fatalf("request %d denied, want allowed within burst", i+1)
		}
	}
	d := allow(t, rl, "client")
	if d.Allowed {
		t.Error("request beyond burst allowed")
	}
	if d.RetryAfter <= 0 {
		t.Errorf("RetryAfter = %v, want > 0", d.RetryAfter)
	}
}

func TestRateLimiter_Refills(t *testing.T) {
	rl, now := newTestLimiter(t, 60, 1) // one token per second

	allow(t, rl, "client")
	if allow(t, rl, "client").Allowed {
		t.Fatal("second immediate request allowed with burst 1")
	}

	*now = now.Add(1100 * time.Millisecond)
	if !allow(t, rl, "client").Allowed {
		t.Error("request after refill interval denied")
	}
}

func TestRateLimiter_KeysAreIndependent(t *testing.T) {
	rl, _ := newTestLimiter(t, 60, 1)

	allow(t, rl, "a")
	if !allow(t, rl, "b").Allowed {
		t.Error("key b throttled by key a's usage")
	}
}

func TestRateLimiter_EvictIdle(t *testing.T) {
	rl, now := newTestLimiter(t, 60, 1)
	allow(t, rl, "old")

	*now = now.Add(11 * time.Minute)
	rl.evictIdle(10 * time.Minute)

	rl.mu.Lock()
	n := len(rl.entries)
	rl.mu.Unlock()
	if n != 0 {
		t.Errorf("entries after eviction = %d, want 0", n)
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(CredentialRateLimitConfig(10, 5))
	rl.Stop()
	rl.Stop()
}

// ---------------------------------------------------------------------------
// RateLimitMiddleware
// ---------------------------------------------------------------------------

func newRateLimitRouter(l Limiter) *gin.Engine {
	r := gin.New()
	r.Use(RateLimitMiddleware(l))
	r.POST("/login", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func postLogin(r *gin.Engine) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.RemoteAddr = "203.0.113.7:5555"
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimitMiddleware_Returns429(t *testing.T) {
	rl, _ := newTestLimiter(t, 10, 2)
	r := newRateLimitRouter(rl)

	for i := 0; i < 2; i++ {
		if w := postLogin(r); w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i+1, w.Code)
		}
	}

	w := postLogin(r)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if retry, err := strconv.Atoi(w.Header().Get("Retry-After")); err != nil || retry < 1 {
		t.Errorf("Retry-After = %q, want positive integer", w.Header().Get("Retry-After"))
	}
	if w.Header().Get("X-RateLimit-Limit") != "10" {
		t.Errorf("X-RateLimit-Limit = %q, want 10", w.Header().Get("X-RateLimit-Limit"))
	}
}

func TestRateLimitMiddleware_RedisUnavailableFailsOpen(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { client.Close() })

	r := newRateLimitRouter(NewRedisRateLimiter(client, CredentialRateLimitConfig(1, 1), "test:"))
	for i := 0; i < 3; i++ {
		if w := postLogin(r); w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200 when redis is down", i+1, w.Code)
		}
	}
}

func TestGetRateLimitKey(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.RemoteAddr = "198.51.100.1:1234"

	if got := getRateLimitKey(c); got != "ip:198.51.100.1" {
		t.Errorf("key = %q, want ip:198.51.100.1", got)
	}

	c.Set(UserIDKey, int64(42))
	if got := getRateLimitKey(c); got != "user:42" {
		t.Errorf("key = %q, want user:42", got)
	}
}
