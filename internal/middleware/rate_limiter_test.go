package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_AllowsWithinBurst(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{MaxCallsPerMinute: 5, BurstSize: 5})
	for i := 0; i < 5; i++ {
		assert.True(t, rl.Allow("client-a"))
	}
}

func TestRateLimiter_RejectsOverBurst(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{MaxCallsPerMinute: 5, BurstSize: 5})
	for i := 0; i < 5; i++ {
		rl.Allow("client-b")
	}
	assert.False(t, rl.Allow("client-b"))
}

func TestRateLimiter_KeysAreIndependent(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{MaxCallsPerMinute: 1, BurstSize: 1})
	assert.True(t, rl.Allow("client-c"))
	assert.False(t, rl.Allow("client-c"))
	assert.True(t, rl.Allow("client-d"))
}

func TestRateLimiter_MiddlewareReturns429(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{MaxCallsPerMinute: 1, BurstSize: 1})
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/polls", nil)
	req.RemoteAddr = "203.0.113.5:54321"

	rec1 := httptest.NewRecorder()
	handler.ServeHTTP(rec1, req)
	assert.Equal(t, http.StatusOK, rec1.Code)

	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req)
	assert.Equal(t, http.StatusTooManyRequests, rec2.Code)
	assert.Equal(t, "60", rec2.Header().Get("Retry-After"))
}

func TestRateLimiter_Stats(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{MaxCallsPerMinute: 10})
	rl.Allow("client-e")

	stats := rl.Stats()
	assert.Equal(t, 1, stats["active_windows"])
	assert.Equal(t, 10, stats["max_calls_per_min"])
}
