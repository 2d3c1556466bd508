package transport

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"sync"
	"time"

	"chatrelay/internal/pkg/logx"
)

// frameHeaderSize is the length of the big-endian uint32 prefix preceding every TCP frame.
const frameHeaderSize = 4

// FramedConn implements Conn over a stream socket using length-prefixed frames.
type FramedConn struct {
	conn          net.Conn
	reader        *bufio.Reader
	maxFrameBytes int64
	closeOnce     sync.Once
	closeErr      error
}

// NewFramedConn wraps conn. Inbound frames larger than maxFrameBytes are rejected.
func NewFramedConn(conn net.Conn, maxFrameBytes int64) *FramedConn {
	if maxFrameBytes <= 0 {
		maxFrameBytes = DefaultMaxFrameBytes
	}

	return &FramedConn{
		conn:          conn,
		reader:        bufio.NewReader(conn),
		maxFrameBytes: maxFrameBytes,
	}
}

// DialTCP connects to a framed TCP chat endpoint.
func DialTCP(ctx context.Context, addr string, maxFrameBytes int64) (*FramedConn, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return NewFramedConn(conn, maxFrameBytes), nil
}

// ReadFrame reads the next length-prefixed frame.
func (c *FramedConn) ReadFrame() ([]byte, error) {
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(c.reader, header[:]); err != nil {
		return nil, err
	}

	size := int64(binary.BigEndian.Uint32(header[:]))
	if size > c.maxFrameBytes {
		return nil, ErrFrameTooLarge
	}

	frame := make([]byte, size)
	if _, err := io.ReadFull(c.reader, frame); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}

	return frame, nil
}

// WriteFrame writes frame with its length prefix in a single write.
func (c *FramedConn) WriteFrame(frame []byte) error {
	if uint64(len(frame)) > math.MaxUint32 {
		return ErrFrameTooLarge
	}

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}

	buf := make([]byte, frameHeaderSize+len(frame))
	binary.BigEndian.PutUint32(buf, uint32(len(frame)))
	copy(buf[frameHeaderSize:], frame)

	_, err := c.conn.Write(buf)
	return err
}

// Close closes the underlying socket. Subsequent calls return the first result.
func (c *FramedConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// RemoteAddr returns the peer's network address.
func (c *FramedConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// TCPOptions configures ServeTCP.
type TCPOptions struct {
	// MaxFrameBytes caps inbound frames on accepted connections.
	MaxFrameBytes int64

	// Allow, when set, is consulted with the remote address of every accepted connection;
	// connections it rejects are closed immediately.
	Allow func(remoteAddr string) bool
}

// ServeTCP accepts connections on ln until ctx is cancelled or the listener fails, running
// handle on its own goroutine for each one. It returns after every handler has returned.
func ServeTCP(ctx context.Context, ln net.Listener, opts TCPOptions, handle func(ctx context.Context, conn Conn)) error {
	logger := logx.Component("tcp_listener").With().Str("addr", ln.Addr().String()).Logger()

	var wg sync.WaitGroup
	defer wg.Wait()

	stop := context.AfterFunc(ctx, func() {
		_ = ln.Close()
	})
	defer stop()

	var backoff time.Duration
	for {
		netConn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				logger.Info().Msg("TCP listener stopped.")
				return nil
			}

			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				backoff = nextBackoff(backoff)
				logger.Warn().Err(err).Dur("retry_in", backoff).Msg("Accept failed, retrying.")
				time.Sleep(backoff)
				continue
			}

			return fmt.Errorf("accept: %w", err)
		}
		backoff = 0

		remoteAddr := netConn.RemoteAddr().String()
		if opts.Allow != nil && !opts.Allow(remoteAddr) {
			logger.Warn().Str("remote_ip", logx.AnonymizeIP(remoteAddr)).Msg("TCP connection rejected: Rate limit exceeded.")
			_ = netConn.Close()
			continue
		}

		if tcpConn, ok := netConn.(*net.TCPConn); ok {
			_ = tcpConn.SetKeepAlive(true)
		}

		conn := NewFramedConn(netConn, opts.MaxFrameBytes)
		logger.Debug().Str("remote_ip", logx.AnonymizeIP(remoteAddr)).Msg("TCP connection accepted.")

		wg.Add(1)
		go func() {
			defer wg.Done()
			handle(ctx, conn)
		}()
	}
}

func nextBackoff(current time.Duration) time.Duration {
	if current == 0 {
		return 5 * time.Millisecond
	}
	current *= 2
	if current > time.Second {
		current = time.Second
	}
	return current
}

// ensure both transports satisfy Conn.
var (
	_ Conn   = (*FramedConn)(nil)
	_ Conn   = (*WebSocketConn)(nil)
	_ Pinger = (*WebSocketConn)(nil)
)
