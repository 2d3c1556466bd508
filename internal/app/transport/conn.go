/*
Package transport adapts concrete network connections to the message-framed Conn used by
the chat core.

Two transports are provided: WebSocket (one protocol frame per WebSocket message) and raw
TCP with a 4-byte big-endian length prefix per frame. The chat core never sees which one
it is talking to.
*/
package transport

import (
	"errors"
	"time"
)

const (
	// DefaultMaxFrameBytes caps a single inbound frame when no limit is configured.
	DefaultMaxFrameBytes = 64 * 1024

	// writeWait bounds a single frame write.
	writeWait = 10 * time.Second
)

var (
	// ErrFrameTooLarge is returned when a peer announces or sends a frame above the limit.
	ErrFrameTooLarge = errors.New("transport: frame exceeds maximum size")

	// ErrClosed is returned by operations on a connection that was closed locally.
	ErrClosed = errors.New("transport: connection closed")
)

// Conn is a bidirectional, message-framed connection.
//
// ReadFrame may be called from one goroutine while WriteFrame is called from another,
// but neither method may be called concurrently with itself. Close may be called from
// any goroutine, any number of times, and unblocks a pending ReadFrame.
type Conn interface {
	ReadFrame() ([]byte, error)
	WriteFrame(frame []byte) error
	Close() error
	RemoteAddr() string
}

// Pinger is implemented by transports with a keepalive the writer goroutine must drive.
type Pinger interface {
	Ping() error
	PingInterval() time.Duration
}
