package limiter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestAllowPerIP(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := NewIPRateLimiter(ctx, rate.Every(time.Hour), 2)

	require.True(t, l.Allow("10.0.0.1:1000"))
	require.True(t, l.Allow("10.0.0.1:1001"))
	require.False(t, l.Allow("10.0.0.1:1002"), "same host, different port shares the bucket")

	require.True(t, l.Allow("10.0.0.2:1000"))
	require.Equal(t, 2, l.Len())
}

func TestEvictIdle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := NewIPRateLimiter(ctx, rate.Every(time.Second), 1)
	require.True(t, l.Allow("10.0.0.1"))
	l.GetLimiter("10.0.0.2")

	removed, remaining := l.evictIdle(time.Now())
	require.Equal(t, 1, removed)
	require.Equal(t, 1, remaining)

	removed, remaining = l.evictIdle(time.Now().Add(time.Minute))
	require.Equal(t, 1, removed)
	require.Equal(t, 0, remaining)
}

func TestMiddleware(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := NewIPRateLimiter(ctx, rate.Every(time.Hour), 1)
	handler := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/ws", nil))
	require.Equal(t, http.StatusNoContent, first.Code)

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/ws", nil))
	require.Equal(t, http.StatusTooManyRequests, second.Code)
}
