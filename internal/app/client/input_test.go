package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatrelay/internal/app/protocol"
)

func TestParseInput(t *testing.T) {
	tests := []struct {
		line string
		want Command
	}{
		{"", Command{Kind: CommandNone}},
		{"   \n", Command{Kind: CommandNone}},
		{"hello there", Command{Kind: CommandChat, Arg: "hello there"}},
		{"  indented stays as typed\r\n", Command{Kind: CommandChat, Arg: "  indented stays as typed"}},
		{"/nick alice", Command{Kind: CommandNick, Arg: "alice"}},
		{"/nick   bob  ", Command{Kind: CommandNick, Arg: "bob"}},
		{"/users", Command{Kind: CommandUsers}},
		{"/quit", Command{Kind: CommandQuit}},
	}

	for _, tt := range tests {
		got, err := ParseInput(tt.line)
		require.NoError(t, err, "line %q", tt.line)
		assert.Equal(t, tt.want, got, "line %q", tt.line)
	}
}

func TestParseInputErrors(t *testing.T) {
	_, err := ParseInput("/nick")
	assert.ErrorIs(t, err, ErrInvalidParameters)

	_, err = ParseInput("/nick two words")
	assert.ErrorIs(t, err, ErrInvalidParameters)

	_, err = ParseInput("/quit now")
	assert.ErrorIs(t, err, ErrInvalidParameters)

	_, err = ParseInput("/connect 127.0.0.1:3042")
	assert.ErrorIs(t, err, ErrUnknownCommand)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "alice: hi", Format(protocol.Chat{Sender: "alice", Text: "hi"}))
	assert.Equal(t, "* bob joined", Format(protocol.UserJoined{Name: "bob"}))
	assert.Equal(t, "* bob left", Format(protocol.UserLeft{Name: "bob"}))
	assert.Equal(t, "* nobody else is here", Format(protocol.UserList{}))
	assert.Equal(t, "* online: alice, bob", Format(protocol.UserList{Names: []string{"alice", "bob"}}))
	assert.Equal(t, "! name taken", Format(protocol.Error{Reason: "name taken"}))
}

func TestRoster(t *testing.T) {
	r := NewRoster()

	r.Apply(protocol.UserJoined{Name: "carol"})
	r.Apply(protocol.UserList{Names: []string{"bob", "alice"}})
	assert.Equal(t, []string{"alice", "bob", "carol"}, r.Names())

	r.Apply(protocol.UserJoined{Name: "alice"})
	r.Apply(protocol.UserLeft{Name: "bob"})
	r.Apply(protocol.Chat{Sender: "alice", Text: "ignored"})
	assert.Equal(t, []string{"alice", "carol"}, r.Names())

	r.Apply(protocol.UserLeft{Name: "nobody"})
	assert.Equal(t, []string{"alice", "carol"}, r.Names())
}
