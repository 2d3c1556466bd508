package handler

import (
	"chatrelay/internal/app/chat"
	"chatrelay/internal/configs"
	"chatrelay/internal/pkg/limiter"
)

// AppDeps bundles what the HTTP layer needs from the rest of the relay.
type AppDeps struct {
	Hub    *chat.Hub
	Config *configs.AppConfig

	// ConnectLimiter throttles new chat connections per client IP. It is shared with
	// the TCP listener so both transports draw from the same bucket.
	ConnectLimiter *limiter.IPRateLimiter
}
