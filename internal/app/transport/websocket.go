package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// maximum time allowed for the server to wait for a Pong message from the peer.
	pongWait = 60 * time.Second

	// frequency at which Ping messages are sent; must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// WebSocketConn adapts a gorilla websocket connection to Conn.
type WebSocketConn struct {
	conn      *websocket.Conn
	keepalive bool
	closeOnce sync.Once
	closeErr  error
}

// NewWebSocketConn wraps a server-side websocket connection, installing the read limit
// and the pong handler that extends the read deadline. The returned conn implements Pinger.
func NewWebSocketConn(conn *websocket.Conn, maxFrameBytes int64) (*WebSocketConn, error) {
	if maxFrameBytes <= 0 {
		maxFrameBytes = DefaultMaxFrameBytes
	}
	conn.SetReadLimit(maxFrameBytes)

	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return nil, fmt.Errorf("set read deadline: %w", err)
	}

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	return &WebSocketConn{conn: conn, keepalive: true}, nil
}

// DialWebSocket opens a client connection to a ws:// or wss:// URL.
func DialWebSocket(ctx context.Context, url string, maxFrameBytes int64) (*WebSocketConn, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (HTTP %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	if maxFrameBytes <= 0 {
		maxFrameBytes = DefaultMaxFrameBytes
	}
	conn.SetReadLimit(maxFrameBytes)

	// the server drives keepalive; the default ping handler answers it
	return &WebSocketConn{conn: conn}, nil
}

// ReadFrame returns the payload of the next text or binary message.
func (c *WebSocketConn) ReadFrame() ([]byte, error) {
	for {
		messageType, frame, err := c.conn.ReadMessage()
		if err != nil {
			if err == websocket.ErrReadLimit {
				return nil, ErrFrameTooLarge
			}
			return nil, err
		}

		if messageType == websocket.TextMessage || messageType == websocket.BinaryMessage {
			return frame, nil
		}
	}
}

// WriteFrame sends frame as a single text message.
func (c *WebSocketConn) WriteFrame(frame []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

// Ping sends a websocket ping control frame.
func (c *WebSocketConn) Ping() error {
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// PingInterval reports how often Ping must be called to keep the read deadline alive.
// Zero means the connection does not need pings.
func (c *WebSocketConn) PingInterval() time.Duration {
	if !c.keepalive {
		return 0
	}
	return pingPeriod
}

// Close sends a normal-closure control frame (best effort) and closes the socket.
func (c *WebSocketConn) Close() error {
	c.closeOnce.Do(func() {
		closeMessage := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, closeMessage, time.Now().Add(time.Second))
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// RemoteAddr returns the peer's network address.
func (c *WebSocketConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// IsExpectedClose reports whether err is an ordinary end of a websocket session.
func IsExpectedClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived)
}

// Upgrader returns a websocket upgrader whose origin policy is decided by checkOrigin.
func Upgrader(checkOrigin func(r *http.Request) bool) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     checkOrigin,
	}
}
