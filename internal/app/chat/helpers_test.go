package chat

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chatrelay/internal/app/protocol"
	"chatrelay/internal/app/transport"
)

const (
	waitTimeout  = 2 * time.Second
	quietTimeout = 100 * time.Millisecond
)

// fakeConn is an in-memory transport.Conn.
type fakeConn struct {
	inbound    chan []byte
	outbound   chan []byte
	closed     chan struct{}
	closeOnce  sync.Once
	closeCount atomic.Int32
	failWrites atomic.Bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound:  make(chan []byte, 64),
		outbound: make(chan []byte, 256),
		closed:   make(chan struct{}),
	}
}

func (c *fakeConn) ReadFrame() ([]byte, error) {
	select {
	case frame := <-c.inbound:
		return frame, nil
	case <-c.closed:
		return nil, io.EOF
	}
}

func (c *fakeConn) WriteFrame(frame []byte) error {
	if c.failWrites.Load() {
		return errors.New("broken pipe")
	}

	select {
	case <-c.closed:
		return transport.ErrClosed
	default:
	}

	select {
	case c.outbound <- frame:
		return nil
	case <-c.closed:
		return transport.ErrClosed
	}
}

func (c *fakeConn) Close() error {
	c.closeCount.Add(1)
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) RemoteAddr() string { return "192.0.2.10:40000" }

// testClient drives one connection served by a hub.
type testClient struct {
	t    *testing.T
	hub  *Hub
	conn *fakeConn
	done chan struct{}
}

// connect serves a new fake connection and waits until it is registered.
func connect(t *testing.T, hub *Hub) *testClient {
	t.Helper()

	before := hub.Registry().Len()
	c := &testClient{t: t, hub: hub, conn: newFakeConn(), done: make(chan struct{})}

	go func() {
		defer close(c.done)
		hub.Serve(context.Background(), c.conn)
	}()

	require.Eventually(t, func() bool {
		return hub.Registry().Len() > before
	}, waitTimeout, time.Millisecond)

	t.Cleanup(func() { _ = c.conn.Close() })
	return c
}

func (c *testClient) send(msg protocol.Message) {
	c.t.Helper()
	frame, err := protocol.Encode(msg)
	require.NoError(c.t, err)
	c.sendRaw(frame)
}

func (c *testClient) sendRaw(frame []byte) {
	c.t.Helper()
	select {
	case c.conn.inbound <- frame:
	case <-time.After(waitTimeout):
		c.t.Fatal("timed out sending frame")
	}
}

// expect returns the next message delivered to this client.
func (c *testClient) expect() protocol.Message {
	c.t.Helper()
	select {
	case frame := <-c.conn.outbound:
		msg, err := protocol.Decode(frame)
		require.NoError(c.t, err)
		return msg
	case <-time.After(waitTimeout):
		c.t.Fatal("timed out waiting for a message")
		return nil
	}
}

// expectNothing fails if any message arrives within quietTimeout.
func (c *testClient) expectNothing() {
	c.t.Helper()
	select {
	case frame := <-c.conn.outbound:
		c.t.Fatalf("unexpected message: %s", frame)
	case <-time.After(quietTimeout):
	}
}

// join sets the client's name and consumes the user list reply.
func (c *testClient) join(name string) protocol.UserList {
	c.t.Helper()
	c.send(protocol.SetName{Name: name})
	list, ok := c.expect().(protocol.UserList)
	require.True(c.t, ok, "expected a user list after joining as %q", name)
	return list
}

// disconnect closes the client side and waits for the session to finish.
func (c *testClient) disconnect() {
	c.t.Helper()
	_ = c.conn.Close()
	c.waitClosed()
}

func (c *testClient) waitClosed() {
	c.t.Helper()
	select {
	case <-c.done:
	case <-time.After(waitTimeout):
		c.t.Fatal("session did not terminate")
	}
}

func unlimitedOptions() Options {
	opts := DefaultOptions()
	opts.MessageRate = 0
	return opts
}

// recordingSender is a Sender that stores frames, optionally failing every Send.
type recordingSender struct {
	mu     sync.Mutex
	frames [][]byte
	err    error
	closed bool
}

func (s *recordingSender) Send(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.frames = append(s.frames, frame)
	return nil
}

func (s *recordingSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *recordingSender) messages(t *testing.T) []protocol.Message {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]protocol.Message, 0, len(s.frames))
	for _, frame := range s.frames {
		msg, err := protocol.Decode(frame)
		require.NoError(t, err)
		out = append(out, msg)
	}
	return out
}
