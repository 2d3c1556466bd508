/*
Package client is the client side of the relay protocol: it dials a relay over WebSocket or
framed TCP, sends names and chat text, and keeps a local view of who is online.
*/
package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"chatrelay/internal/app/protocol"
	"chatrelay/internal/app/transport"
)

// ErrUnsupportedScheme is returned by Dial for addresses it cannot route to a transport.
var ErrUnsupportedScheme = errors.New("client: unsupported address scheme")

// Client is a connection to a relay. Send methods may be called from any goroutine;
// Receive must only be called from one.
type Client struct {
	conn transport.Conn

	// writeMu serializes frame writes.
	writeMu sync.Mutex

	roster *Roster
}

// Dial connects to addr, which is either a ws:// or wss:// URL or a tcp://host:port address.
func Dial(ctx context.Context, addr string, maxFrameBytes int64) (*Client, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("parse address %q: %w", addr, err)
	}

	var conn transport.Conn
	switch u.Scheme {
	case "ws", "wss":
		conn, err = transport.DialWebSocket(ctx, addr, maxFrameBytes)
	case "tcp":
		if u.Host == "" {
			return nil, fmt.Errorf("address %q has no host", addr)
		}
		conn, err = transport.DialTCP(ctx, u.Host, maxFrameBytes)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	if err != nil {
		return nil, err
	}

	return New(conn), nil
}

// New wraps an established transport connection.
func New(conn transport.Conn) *Client {
	return &Client{conn: conn, roster: NewRoster()}
}

// SetName asks the relay to assign name to this connection.
func (c *Client) SetName(name string) error {
	return c.send(protocol.SetName{Name: name})
}

// Chat sends text to every other user.
func (c *Client) Chat(text string) error {
	return c.send(protocol.Chat{Text: text})
}

// Receive blocks for the next server message and folds it into the roster.
func (c *Client) Receive() (protocol.Message, error) {
	frame, err := c.conn.ReadFrame()
	if err != nil {
		return nil, err
	}

	msg, err := protocol.Decode(frame)
	if err != nil {
		return nil, err
	}

	c.roster.Apply(msg)
	return msg, nil
}

// Roster returns the users this client currently knows to be online.
func (c *Client) Roster() *Roster {
	return c.roster
}

// Close ends the connection and unblocks a pending Receive.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) send(msg protocol.Message) error {
	frame, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.WriteFrame(frame); err != nil {
		return fmt.Errorf("send %s: %w", msg.Kind(), err)
	}
	return nil
}
