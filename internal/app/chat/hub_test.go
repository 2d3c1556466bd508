package chat

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatrelay/internal/app/protocol"
	"chatrelay/internal/pkg/errs"
)

func errorReply(code int) protocol.Error {
	e := errs.NewError(code)
	return protocol.Error{Code: e.Code, Reason: e.Message}
}

// drain collects every message delivered to c until it goes quiet.
func (c *testClient) drain() []protocol.Message {
	c.t.Helper()

	var out []protocol.Message
	for {
		select {
		case frame := <-c.conn.outbound:
			msg, err := protocol.Decode(frame)
			require.NoError(c.t, err)
			out = append(out, msg)
		case <-time.After(quietTimeout):
			return out
		}
	}
}

func TestTwoClientConversation(t *testing.T) {
	hub := NewHub(unlimitedOptions())

	c1 := connect(t, hub)
	c2 := connect(t, hub)

	c1.send(protocol.SetName{Name: "alice"})
	assert.Equal(t, protocol.UserList{}, c1.expect())
	// c2 has not joined yet but is connected, so it still hears about alice
	assert.Equal(t, protocol.UserJoined{Name: "alice"}, c2.expect())

	c2.send(protocol.SetName{Name: "bob"})
	assert.Equal(t, protocol.UserList{Names: []string{"alice"}}, c2.expect())
	assert.Equal(t, protocol.UserJoined{Name: "bob"}, c1.expect())

	c1.send(protocol.Chat{Text: "hi"})
	assert.Equal(t, protocol.Chat{Sender: "alice", Text: "hi"}, c2.expect())
	c1.expectNothing()

	c2.disconnect()
	assert.Equal(t, protocol.UserLeft{Name: "bob"}, c1.expect())
	assert.Equal(t, []string{"alice"}, hub.Registry().ActiveNames())
}

func TestSelfEcho(t *testing.T) {
	opts := unlimitedOptions()
	opts.SelfEcho = true
	hub := NewHub(opts)

	c1 := connect(t, hub)
	c1.join("alice")

	c1.send(protocol.Chat{Text: "echo?"})
	assert.Equal(t, protocol.Chat{Sender: "alice", Text: "echo?"}, c1.expect())
}

func TestPendingDisconnectIsSilent(t *testing.T) {
	hub := NewHub(unlimitedOptions())

	c1 := connect(t, hub)
	c1.join("alice")

	c2 := connect(t, hub)
	c2.disconnect()

	c1.expectNothing()
	assert.Equal(t, 1, hub.Registry().Len())
}

func TestJoinAndLeaveAreSymmetric(t *testing.T) {
	hub := NewHub(unlimitedOptions())

	observer := connect(t, hub)
	observer.join("observer")

	for i := range 5 {
		name := fmt.Sprintf("guest-%d", i)
		c := connect(t, hub)
		c.join(name)
		assert.Equal(t, protocol.UserJoined{Name: name}, observer.expect())

		c.disconnect()
		assert.Equal(t, protocol.UserLeft{Name: name}, observer.expect())
	}

	observer.expectNothing()
	assert.Equal(t, []string{"observer"}, hub.Registry().ActiveNames())
}

func TestChatBeforeNameIsRejected(t *testing.T) {
	hub := NewHub(unlimitedOptions())

	c1 := connect(t, hub)
	c1.send(protocol.Chat{Text: "hello?"})
	assert.Equal(t, errorReply(errs.ErrNameRequired), c1.expect())

	// the connection is still usable
	assert.Equal(t, protocol.UserList{}, c1.join("alice"))
}

func TestNameTaken(t *testing.T) {
	hub := NewHub(unlimitedOptions())

	c1 := connect(t, hub)
	c1.join("alice")

	c2 := connect(t, hub)
	c2.send(protocol.SetName{Name: "alice"})
	assert.Equal(t, errorReply(errs.ErrNameTaken), c2.expect())
	c1.expectNothing()

	c2.send(protocol.Chat{Text: "still pending"})
	assert.Equal(t, errorReply(errs.ErrNameRequired), c2.expect())

	assert.Equal(t, protocol.UserList{Names: []string{"alice"}}, c2.join("bob"))
	assert.Equal(t, protocol.UserJoined{Name: "bob"}, c1.expect())
}

func TestInvalidNames(t *testing.T) {
	hub := NewHub(unlimitedOptions())
	c1 := connect(t, hub)

	for _, name := range []string{
		"",
		"   ",
		strings.Repeat("x", 33),
		"bad\x00name",
		"tab\tname",
	} {
		c1.send(protocol.SetName{Name: name})
		assert.Equal(t, errorReply(errs.ErrInvalidName), c1.expect(), "name %q", name)
	}

	state, ok := hub.Registry().StateOf(c1.connID(t))
	require.True(t, ok)
	assert.Equal(t, StatePending, state)

	// surrounding whitespace is trimmed
	c1.join("  alice  ")
	assert.Equal(t, []string{"alice"}, hub.Registry().ActiveNames())
}

func TestRename(t *testing.T) {
	hub := NewHub(unlimitedOptions())

	c1 := connect(t, hub)
	c1.join("alice")
	c2 := connect(t, hub)
	c2.join("bob")
	assert.Equal(t, protocol.UserJoined{Name: "bob"}, c1.expect())

	c1.send(protocol.SetName{Name: "alicia"})
	assert.Equal(t, protocol.UserLeft{Name: "alice"}, c2.expect())
	assert.Equal(t, protocol.UserJoined{Name: "alicia"}, c2.expect())
	c1.expectNothing()

	c1.send(protocol.SetName{Name: "alicia"})
	c1.expectNothing()
	c2.expectNothing()

	c1.send(protocol.SetName{Name: "bob"})
	assert.Equal(t, errorReply(errs.ErrNameTaken), c1.expect())

	c1.send(protocol.Chat{Text: "new name"})
	assert.Equal(t, protocol.Chat{Sender: "alicia", Text: "new name"}, c2.expect())
	assert.ElementsMatch(t, []string{"alicia", "bob"}, hub.Registry().ActiveNames())
}

func TestChatValidation(t *testing.T) {
	hub := NewHub(unlimitedOptions())

	c1 := connect(t, hub)
	c1.join("alice")
	c2 := connect(t, hub)
	c2.join("bob")
	c1.expect()

	c1.send(protocol.Chat{Text: " \n\t "})
	assert.Equal(t, errorReply(errs.ErrMessageEmpty), c1.expect())

	c1.send(protocol.Chat{Text: strings.Repeat("a", 5001)})
	assert.Equal(t, errorReply(errs.ErrMessageContentTooLong), c1.expect())

	long := strings.Repeat("a", 5000)
	c1.send(protocol.Chat{Text: long})
	assert.Equal(t, protocol.Chat{Sender: "alice", Text: long}, c2.expect())
	c1.expectNothing()
}

func TestMalformedInputIsIsolated(t *testing.T) {
	hub := NewHub(unlimitedOptions())

	c1 := connect(t, hub)
	c1.join("alice")
	c2 := connect(t, hub)
	c2.join("bob")
	c1.expect()

	for _, raw := range []string{
		`not json`,
		`{"type":"CHAT"}`,
		`{"type":"NOPE","payload":{}}`,
		`{"type":"CHAT","payload":{"text":"x","extra":1}}`,
	} {
		c2.sendRaw([]byte(raw))
		assert.Equal(t, errorReply(errs.ErrMalformedMessage), c2.expect(), "frame %s", raw)
	}
	c1.expectNothing()

	c2.send(protocol.Chat{Text: "still here"})
	assert.Equal(t, protocol.Chat{Sender: "bob", Text: "still here"}, c1.expect())
}

func TestServerMessageFromClientIsRejected(t *testing.T) {
	hub := NewHub(unlimitedOptions())

	c1 := connect(t, hub)
	c1.join("alice")

	c1.send(protocol.UserJoined{Name: "mallory"})
	assert.Equal(t, errorReply(errs.ErrUnexpectedMessage), c1.expect())
	assert.Equal(t, []string{"alice"}, hub.Registry().ActiveNames())
}

func TestRateLimit(t *testing.T) {
	opts := DefaultOptions()
	opts.MessageRate = 0.001
	opts.MessageBurst = 2
	hub := NewHub(opts)

	c1 := connect(t, hub)
	c1.join("alice")
	c1.send(protocol.Chat{Text: "one"})
	c1.expectNothing()

	c1.send(protocol.Chat{Text: "two"})
	assert.Equal(t, errorReply(errs.ErrRateLimitExceeded), c1.expect())
}

func TestWriteFailureTearsDownSession(t *testing.T) {
	hub := NewHub(unlimitedOptions())

	c1 := connect(t, hub)
	c1.join("alice")
	c2 := connect(t, hub)
	c2.join("bob")
	assert.Equal(t, protocol.UserJoined{Name: "bob"}, c1.expect())

	c2.conn.failWrites.Store(true)
	c1.send(protocol.Chat{Text: "anyone?"})

	c2.waitClosed()
	assert.Equal(t, protocol.UserLeft{Name: "bob"}, c1.expect())
	assert.Equal(t, []string{"alice"}, hub.Registry().ActiveNames())
}

func TestCallerContextEndsSession(t *testing.T) {
	hub := NewHub(unlimitedOptions())

	c1 := connect(t, hub)
	c1.join("alice")

	ctx, cancel := context.WithCancel(context.Background())
	conn := newFakeConn()
	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Serve(ctx, conn)
	}()

	require.NoError(t, protocolSend(conn, protocol.SetName{Name: "bob"}))
	assert.Equal(t, protocol.UserJoined{Name: "bob"}, c1.expect())

	cancel()
	select {
	case <-done:
	case <-time.After(waitTimeout):
		t.Fatal("session ignored context cancellation")
	}

	assert.Equal(t, protocol.UserLeft{Name: "bob"}, c1.expect())
	assert.Positive(t, conn.closeCount.Load())
}

func TestShutdown(t *testing.T) {
	hub := NewHub(unlimitedOptions())

	c1 := connect(t, hub)
	c1.join("alice")
	c2 := connect(t, hub)
	c2.join("bob")
	c3 := connect(t, hub)

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	require.NoError(t, hub.Shutdown(ctx))

	for _, c := range []*testClient{c1, c2, c3} {
		c.waitClosed()
		assert.Positive(t, c.conn.closeCount.Load())
	}
	assert.Zero(t, hub.Registry().Len())

	late := newFakeConn()
	hub.Serve(context.Background(), late)
	assert.Positive(t, late.closeCount.Load(), "connections after shutdown are rejected")
	assert.Zero(t, hub.Registry().Len())
}

func TestConcurrentJoinsWithSameName(t *testing.T) {
	const n = 16
	hub := NewHub(unlimitedOptions())

	clients := make([]*testClient, n)
	for i := range clients {
		clients[i] = connect(t, hub)
	}

	frame, err := protocol.Encode(protocol.SetName{Name: "alice"})
	require.NoError(t, err)
	for _, c := range clients {
		go func() { c.conn.inbound <- frame }()
	}

	require.Eventually(t, func() bool {
		return len(hub.Registry().ActiveNames()) == 1
	}, waitTimeout, time.Millisecond)

	var lists, taken int
	for _, c := range clients {
		for _, msg := range c.drain() {
			switch m := msg.(type) {
			case protocol.UserList:
				lists++
			case protocol.Error:
				assert.Equal(t, errorReply(errs.ErrNameTaken), m)
				taken++
			}
		}
	}

	assert.Equal(t, 1, lists)
	assert.Equal(t, n-1, taken)
	assert.Equal(t, []string{"alice"}, hub.Registry().ActiveNames())
}

func TestConcurrentJoinsWithDistinctNames(t *testing.T) {
	const n = 16
	hub := NewHub(unlimitedOptions())

	clients := make([]*testClient, n)
	for i := range clients {
		clients[i] = connect(t, hub)
	}

	for i, c := range clients {
		frame, err := protocol.Encode(protocol.SetName{Name: fmt.Sprintf("user-%d", i)})
		require.NoError(t, err)
		go func() { c.conn.inbound <- frame }()
	}

	require.Eventually(t, func() bool {
		return len(hub.Registry().ActiveNames()) == n
	}, waitTimeout, time.Millisecond)

	for i, c := range clients {
		var (
			lists  int
			joined = map[string]bool{}
		)
		for _, msg := range c.drain() {
			switch m := msg.(type) {
			case protocol.UserList:
				lists++
				for _, name := range m.Names {
					joined[name] = true
				}
			case protocol.UserJoined:
				joined[m.Name] = true
			}
		}

		assert.Equal(t, 1, lists, "client %d", i)
		// every other user is known either from the list or a join event
		assert.Len(t, joined, n-1, "client %d", i)
	}
}

func (c *testClient) connID(t *testing.T) ConnID {
	t.Helper()
	for _, target := range c.hub.Registry().AllActiveConnections() {
		if peer, ok := target.Conn.(*Peer); ok && peer.conn == c.conn {
			return target.ID
		}
	}
	t.Fatal("connection not registered")
	return ""
}

func protocolSend(conn *fakeConn, msg protocol.Message) error {
	frame, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	conn.inbound <- frame
	return nil
}
