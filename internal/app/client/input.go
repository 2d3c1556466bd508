package client

import (
	"errors"
	"fmt"
	"strings"

	"chatrelay/internal/app/protocol"
)

// CommandKind identifies what a line of user input asks for.
type CommandKind int

const (
	CommandNone CommandKind = iota
	CommandChat
	CommandNick
	CommandUsers
	CommandQuit
)

var (
	ErrUnknownCommand    = errors.New("unknown command")
	ErrInvalidParameters = errors.New("invalid parameters")
)

// Command is a parsed line of user input.
type Command struct {
	Kind CommandKind
	Arg  string
}

// ParseInput turns a line into a Command. Lines starting with "/" are commands
// (/nick NAME, /users, /quit); any other non-blank line is chat text, sent as typed.
func ParseInput(line string) (Command, error) {
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return Command{Kind: CommandNone}, nil
	}

	if !strings.HasPrefix(line, "/") {
		return Command{Kind: CommandChat, Arg: line}, nil
	}

	fields := strings.Fields(line)
	name, params := fields[0], fields[1:]

	switch name {
	case "/nick":
		if len(params) != 1 {
			return Command{}, fmt.Errorf("%s: %w, usage: /nick NAME", name, ErrInvalidParameters)
		}
		return Command{Kind: CommandNick, Arg: params[0]}, nil
	case "/users":
		if len(params) != 0 {
			return Command{}, fmt.Errorf("%s: %w", name, ErrInvalidParameters)
		}
		return Command{Kind: CommandUsers}, nil
	case "/quit":
		if len(params) != 0 {
			return Command{}, fmt.Errorf("%s: %w", name, ErrInvalidParameters)
		}
		return Command{Kind: CommandQuit}, nil
	default:
		return Command{}, fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
}

// Format renders a server message as one line of terminal output.
func Format(msg protocol.Message) string {
	switch m := msg.(type) {
	case protocol.Chat:
		return fmt.Sprintf("%s: %s", m.Sender, m.Text)
	case protocol.UserJoined:
		return fmt.Sprintf("* %s joined", m.Name)
	case protocol.UserLeft:
		return fmt.Sprintf("* %s left", m.Name)
	case protocol.UserList:
		if len(m.Names) == 0 {
			return "* nobody else is here"
		}
		return "* online: " + strings.Join(m.Names, ", ")
	case protocol.Error:
		return "! " + m.Reason
	default:
		return fmt.Sprintf("? unexpected %s message", msg.Kind())
	}
}
