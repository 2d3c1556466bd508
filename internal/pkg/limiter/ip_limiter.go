/*
Package limiter provides rate limiting keyed by client IP address.

It utilizes the Token Bucket algorithm (rate.Limiter) to control how often each client IP may
open a chat connection, over WebSocket or raw TCP, and includes a cleanup goroutine that
periodically removes idle limiters.
*/
package limiter

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"chatrelay/internal/pkg/errs"
	"chatrelay/internal/pkg/logx"
	"chatrelay/internal/pkg/resp"
)

// cleanupInterval is how often idle limiters are evicted.
const cleanupInterval = 3 * time.Minute

// IPRateLimiter implements a rate limiter keyed by client IP address.
type IPRateLimiter struct {
	// mu protects concurrent access to the limits map.
	mu sync.RWMutex

	// limits maps a client IP address to its token bucket.
	limits map[string]*rate.Limiter

	// r is the number of events allowed per second for each IP.
	r rate.Limit

	// b is the burst size of each bucket.
	b int
}

// NewIPRateLimiter creates a limiter allowing r events per second with burst b per IP.
// The cleanup goroutine runs until ctx is cancelled.
func NewIPRateLimiter(ctx context.Context, r rate.Limit, b int) *IPRateLimiter {
	i := &IPRateLimiter{
		limits: make(map[string]*rate.Limiter),
		r:      r,
		b:      b,
	}

	go i.cleanUpVisitors(ctx)

	return i
}

// GetLimiter retrieves the rate limiter for ip, creating it on first use.
func (i *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	i.mu.RLock()
	limiter, exists := i.limits[ip]
	i.mu.RUnlock()

	if !exists {
		i.mu.Lock()
		limiter, exists = i.limits[ip]
		if !exists {
			limiter = rate.NewLimiter(i.r, i.b)
			i.limits[ip] = limiter
		}
		i.mu.Unlock()
	}

	return limiter
}

// Allow consumes one token for the IP in addr ("host" or "host:port").
func (i *IPRateLimiter) Allow(addr string) bool {
	return i.GetLimiter(hostOf(addr)).Allow()
}

// Len returns the number of tracked IPs.
func (i *IPRateLimiter) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.limits)
}

// cleanUpVisitors periodically evicts limiters whose bucket is full again, i.e. IPs that
// have been idle long enough to have regained their whole burst.
func (i *IPRateLimiter) cleanUpVisitors(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			removed, remaining := i.evictIdle(now)
			logx.Info("Rate limiter cleanup finished.", "removed_ips", removed, "active_ips", remaining)
		}
	}
}

func (i *IPRateLimiter) evictIdle(now time.Time) (removed, remaining int) {
	i.mu.Lock()
	defer i.mu.Unlock()

	for ip, limiter := range i.limits {
		if limiter.TokensAt(now) >= float64(limiter.Burst()) {
			delete(i.limits, ip)
			removed++
		}
	}
	return removed, len(i.limits)
}

// Middleware returns an HTTP middleware that rejects requests over the limit with 429.
func (i *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !i.Allow(r.RemoteAddr) {
			logx.Warn("Request rejected: Rate limit exceeded.", "remote_ip", logx.AnonymizeIP(r.RemoteAddr))
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func hostOf(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	if host == "" {
		host = "unknown_ip"
	}
	return host
}
