package chat

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"chatrelay/internal/app/transport"
	"chatrelay/internal/pkg/logx"
)

// Options tunes session behaviour.
type Options struct {
	// SelfEcho delivers a sender's chat messages back to the sender as well.
	SelfEcho bool

	// MaxNameLength limits display names, in runes. Zero disables the limit.
	MaxNameLength int

	// MaxChatBytes limits chat text, in bytes. Zero disables the limit.
	MaxChatBytes int

	// MessageRate and MessageBurst throttle inbound frames per connection.
	// A non-positive rate disables throttling.
	MessageRate  rate.Limit
	MessageBurst int

	// SendQueueSize is the outbound buffer of each connection.
	SendQueueSize int
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		MaxNameLength: 32,
		MaxChatBytes:  5000,
		MessageRate:   5,
		MessageBurst:  10,
		SendQueueSize: DefaultSendQueueSize,
	}
}

// Hub owns the registry and dispatcher and runs one session per served connection.
type Hub struct {
	registry   *Registry
	dispatcher *Dispatcher
	opts       Options

	// ctx is cancelled by Shutdown and ends every running session.
	ctx    context.Context
	cancel context.CancelFunc

	// mu guards closed and the wg.Add calls racing with Shutdown.
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup

	logger zerolog.Logger
}

// NewHub constructs a Hub with an empty registry.
func NewHub(opts Options) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	registry := NewRegistry()

	return &Hub{
		registry:   registry,
		dispatcher: NewDispatcher(registry),
		opts:       opts,
		ctx:        ctx,
		cancel:     cancel,
		logger:     logx.Component("hub"),
	}
}

// Registry exposes the connection registry for read-only reporting.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Serve runs the session for conn and blocks until it has been torn down. The session
// ends when the peer disconnects, the transport fails, ctx is cancelled or the hub shuts down.
func (h *Hub) Serve(ctx context.Context, conn transport.Conn) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		h.logger.Warn().Msg("Hub is shut down, rejecting connection.")
		_ = conn.Close()
		return
	}
	h.wg.Add(1)
	h.mu.Unlock()
	defer h.wg.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopHub := context.AfterFunc(h.ctx, cancel)
	defer stopHub()

	logger := logx.Component("session").With().
		Str("remote_ip", logx.AnonymizeIP(conn.RemoteAddr())).
		Logger()

	peer := NewPeer(conn, h.opts.SendQueueSize, logger)
	id := h.registry.Register(peer)

	logger = logger.With().Str("conn_id", string(id)).Logger()
	logger.Info().Int("total_connections", h.registry.Len()).Msg("Connection registered.")

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		peer.WritePump()
	}()

	newSession(h, id, peer, logger).run(ctx)
	<-writerDone

	logger.Info().Msg("Connection closed.")
}

// Shutdown stops accepting connections, ends every session through its normal teardown
// path and waits for them to finish or for ctx to expire.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.logger.Info().Int("connections", h.registry.Len()).Msg("Shutting down hub...")

	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()

	h.cancel()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info().Msg("Hub shutdown complete.")
		return nil
	case <-ctx.Done():
		h.logger.Warn().Msg("Hub shutdown timed out, some sessions may still be running.")
		return ctx.Err()
	}
}
