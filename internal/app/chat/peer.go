package chat

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"chatrelay/internal/app/transport"
)

// DefaultSendQueueSize is the outbound buffer of a peer when none is configured.
const DefaultSendQueueSize = 256

var (
	// ErrPeerClosed is returned by Send once the peer has been closed.
	ErrPeerClosed = errors.New("chat: peer closed")

	// ErrSendQueueFull is returned by Send when the peer is not draining its queue.
	ErrSendQueueFull = errors.New("chat: send queue full")
)

// Peer is the connection handle stored in the registry. Frames handed to Send are queued
// and written in order by WritePump, the only goroutine that writes to the transport.
type Peer struct {
	// underlying message-framed connection.
	conn transport.Conn

	// buffered queue of encoded frames waiting to be written.
	send chan []byte

	// closed when the peer is shut down.
	done chan struct{}

	closeOnce sync.Once
	closeErr  error

	logger zerolog.Logger
}

// NewPeer wraps conn with an outbound queue of queueSize frames.
func NewPeer(conn transport.Conn, queueSize int, logger zerolog.Logger) *Peer {
	if queueSize <= 0 {
		queueSize = DefaultSendQueueSize
	}

	return &Peer{
		conn:   conn,
		send:   make(chan []byte, queueSize),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Send queues frame without blocking.
func (p *Peer) Send(frame []byte) error {
	select {
	case <-p.done:
		return ErrPeerClosed
	default:
	}

	select {
	case p.send <- frame:
		return nil
	case <-p.done:
		return ErrPeerClosed
	default:
		p.logger.Warn().Int("queue_len", len(p.send)).Msg("Peer send queue full, dropping frame.")
		return ErrSendQueueFull
	}
}

// Close stops the writer and closes the transport. Safe to call repeatedly.
func (p *Peer) Close() error {
	p.closeOnce.Do(func() {
		close(p.done)
		p.closeErr = p.conn.Close()
	})
	return p.closeErr
}

// ReadFrame reads the next inbound frame from the transport.
func (p *Peer) ReadFrame() ([]byte, error) {
	return p.conn.ReadFrame()
}

// WritePump writes queued frames to the transport until the peer is closed or a write
// fails, driving transport keepalive when the connection needs it. A write failure
// closes the peer, which in turn ends the session's read loop.
func (p *Peer) WritePump() {
	defer p.Close()

	var (
		pinger transport.Pinger
		tick   <-chan time.Time
	)
	if pg, ok := p.conn.(transport.Pinger); ok && pg.PingInterval() > 0 {
		ticker := time.NewTicker(pg.PingInterval())
		defer ticker.Stop()
		pinger, tick = pg, ticker.C
	}

	for {
		select {
		case frame := <-p.send:
			if err := p.conn.WriteFrame(frame); err != nil {
				p.logger.Info().Err(err).Msg("Error writing frame, closing peer.")
				return
			}

		case <-tick:
			if err := pinger.Ping(); err != nil {
				p.logger.Info().Err(err).Msg("Error writing ping, closing peer.")
				return
			}

		case <-p.done:
			return
		}
	}
}
