package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMiddlewareLimitsPerClient(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	defer rl.Shutdown()

	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(forwardedFor string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Forwarded-For", forwardedFor)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}

	// Burst of 2 for one client, then limited
	assert.Equal(t, http.StatusOK, do("203.0.113.9"))
	assert.Equal(t, http.StatusOK, do("203.0.113.9"))
	assert.Equal(t, http.StatusTooManyRequests, do("203.0.113.9"))

	// A different client has its own bucket
	assert.Equal(t, http.StatusOK, do("203.0.113.10"))
}

func TestMiddlewareFallsBackToRemoteAddr(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	defer rl.Shutdown()

	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.7:4123"
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
}
