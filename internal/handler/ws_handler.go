package handler

import (
	"net/http"

	"github.com/gorilla/websocket"

	"chatrelay/internal/app/transport"
	"chatrelay/internal/pkg/logx"
)

// HandleWebSocket upgrades the request and serves the chat session on it until the
// connection ends. Connection throttling is applied by the router before this handler.
func HandleWebSocket(upgrader websocket.Upgrader, deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		remoteIP := logx.AnonymizeIP(r.RemoteAddr)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already written the HTTP error response.
			logx.Warn("Failed to upgrade connection to WebSocket", "remote_ip", remoteIP, "error", err.Error())
			return
		}

		wsConn, err := transport.NewWebSocketConn(conn, int64(deps.Config.MaxFrameBytes))
		if err != nil {
			logx.Error(err, "Failed to prepare WebSocket connection", "remote_ip", remoteIP)
			_ = conn.Close()
			return
		}

		deps.Hub.Serve(r.Context(), wsConn)
	}
}
