/*
Package handler provides the HTTP handlers and routing setup for the chat relay.

This file defines the main Router, applying middleware like logging, CORS and recovery
before delegating requests to the WebSocket endpoint and the small read-only API.
*/
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"chatrelay/internal/app/transport"
	"chatrelay/internal/pkg/logx"
	"chatrelay/internal/pkg/resp"
)

// Router sets up the HTTP routing table for the relay.
func Router(deps *AppDeps) http.Handler {
	r := chi.NewRouter()

	allowedOrigins := make(map[string]struct{})
	for _, origin := range deps.Config.AllowedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	wsUpgrader := transport.Upgrader(func(r *http.Request) bool {
		if deps.Config.IsDevelopment() {
			return true
		}

		origin := r.Header.Get("Origin")
		if _, ok := allowedOrigins[origin]; ok {
			return true
		}

		logx.Warn("WebSocket connection rejected: Origin not allowed.", "origin", origin)
		return false
	})

	corsAllowedOrigins := []string{}
	if deps.Config.IsDevelopment() {
		corsAllowedOrigins = []string{"*"}
	} else if len(deps.Config.AllowedOrigins) > 0 {
		corsAllowedOrigins = deps.Config.AllowedOrigins
	}

	c := cors.New(cors.Options{
		AllowedOrigins: corsAllowedOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	})
	r.Use(c.Handler)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logx.RequestLogger())
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		resp.RespondSuccess(w, r, map[string]string{
			"status":  "ok",
			"service": "chatrelay",
		})
	})

	r.Route("/api", func(api chi.Router) {
		api.Get("/users", HandleListUsers(deps))
	})

	r.With(deps.ConnectLimiter.Middleware).Get("/ws", HandleWebSocket(wsUpgrader, deps))

	return r
}
