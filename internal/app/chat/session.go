package chat

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"chatrelay/internal/app/protocol"
	"chatrelay/internal/app/transport"
	"chatrelay/internal/pkg/errs"
)

// SessionState is the state of one connection's state machine.
type SessionState int

const (
	SessionPending SessionState = iota
	SessionActive
	SessionClosed
)

func (s SessionState) String() string {
	switch s {
	case SessionPending:
		return "pending"
	case SessionActive:
		return "active"
	default:
		return "closed"
	}
}

// session runs the protocol for a single connection. All of its fields except the
// shared hub are owned by the goroutine executing run.
type session struct {
	hub   *Hub
	id    ConnID
	peer  *Peer
	state SessionState
	name  string

	// limiter throttles inbound frames; nil means unlimited.
	limiter *rate.Limiter

	teardownOnce sync.Once
	logger       zerolog.Logger
}

func newSession(hub *Hub, id ConnID, peer *Peer, logger zerolog.Logger) *session {
	s := &session{
		hub:    hub,
		id:     id,
		peer:   peer,
		state:  SessionPending,
		logger: logger,
	}

	if hub.opts.MessageRate > 0 {
		s.limiter = rate.NewLimiter(hub.opts.MessageRate, hub.opts.MessageBurst)
	}

	return s
}

// run reads frames until the transport fails or ctx is cancelled, then tears down.
func (s *session) run(ctx context.Context) {
	defer s.teardown()

	stop := context.AfterFunc(ctx, func() {
		_ = s.peer.Close()
	})
	defer stop()

	for {
		frame, err := s.peer.ReadFrame()
		if err != nil {
			s.logReadError(ctx, err)
			return
		}

		s.handleFrame(frame)
	}
}

func (s *session) logReadError(ctx context.Context, err error) {
	switch {
	case ctx.Err() != nil:
		s.logger.Debug().Msg("Session cancelled.")
	case errors.Is(err, transport.ErrFrameTooLarge):
		s.logger.Warn().Msg("Peer sent an oversized frame, closing connection.")
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed), transport.IsExpectedClose(err):
		s.logger.Debug().Err(err).Msg("Connection closed by peer.")
	default:
		s.logger.Info().Err(err).Msg("Error reading frame, closing connection.")
	}
}

// teardown is the single exit path for every way a connection can end.
func (s *session) teardown() {
	s.teardownOnce.Do(func() {
		registry := s.hub.registry
		s.logger.Debug().Stringer("session_state", s.state).Msg("Tearing down session.")

		if registry.BeginClose(s.id) {
			if name, ok := registry.Remove(s.id); ok {
				s.hub.dispatcher.Broadcast(protocol.UserLeft{Name: name}, s.id)
				s.logger.Info().Str("name", name).Int("total_connections", registry.Len()).Msg("User left.")
			}
		}

		_ = s.peer.Close()
		s.state = SessionClosed
	})
}

func (s *session) handleFrame(frame []byte) {
	if s.limiter != nil && !s.limiter.Allow() {
		s.logger.Warn().Msg("Inbound message rate exceeded, dropping frame.")
		s.reply(errs.ErrRateLimitExceeded)
		return
	}

	msg, err := protocol.Decode(frame)
	if err != nil {
		s.logger.Warn().Err(err).Int("frame_len", len(frame)).Msg("Client sent a malformed message.")
		s.reply(errs.ErrMalformedMessage)
		return
	}

	if !protocol.IsClientMessage(msg) {
		s.logger.Warn().Str("msg_type", string(msg.Kind())).Msg("Client sent a server-only message type.")
		s.reply(errs.ErrUnexpectedMessage)
		return
	}

	switch m := msg.(type) {
	case protocol.SetName:
		s.handleSetName(m.Name)
	case protocol.Chat:
		s.handleChat(m.Text)
	}
}

func (s *session) handleSetName(requested string) {
	name, ok := s.hub.normalizeName(requested)
	if !ok {
		s.reply(errs.ErrInvalidName)
		return
	}

	previous := s.name
	if s.state == SessionActive && name == previous {
		return
	}

	if err := s.hub.registry.SetName(s.id, name); err != nil {
		if errors.Is(err, ErrNameTaken) {
			s.reply(errs.ErrNameTaken)
			return
		}
		s.logger.Error().Err(err).Str("name", name).Msg("Failed to set name.")
		return
	}

	s.name = name
	s.logger = s.logger.With().Str("name", name).Logger()

	if s.state == SessionPending {
		s.state = SessionActive

		var others []string
		for _, active := range s.hub.registry.ActiveNames() {
			if active != name {
				others = append(others, active)
			}
		}

		if err := s.hub.dispatcher.SendTo(s.id, protocol.UserList{Names: others}); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to send user list.")
		}
		s.hub.dispatcher.Broadcast(protocol.UserJoined{Name: name}, s.id)

		s.logger.Info().Int("total_users", len(others)+1).Msg("User joined.")
		return
	}

	s.hub.dispatcher.Broadcast(protocol.UserLeft{Name: previous}, s.id)
	s.hub.dispatcher.Broadcast(protocol.UserJoined{Name: name}, s.id)
	s.logger.Info().Str("previous_name", previous).Msg("User renamed.")
}

func (s *session) handleChat(text string) {
	if s.state != SessionActive {
		s.reply(errs.ErrNameRequired)
		return
	}

	if strings.TrimSpace(text) == "" {
		s.reply(errs.ErrMessageEmpty)
		return
	}

	if limit := s.hub.opts.MaxChatBytes; limit > 0 && len(text) > limit {
		s.reply(errs.ErrMessageContentTooLong)
		return
	}

	exclude := s.id
	if s.hub.opts.SelfEcho {
		exclude = ""
	}

	s.hub.dispatcher.Broadcast(protocol.Chat{Sender: s.name, Text: text}, exclude)
}

// reply sends the error identified by code to this connection only.
func (s *session) reply(code int) {
	customErr := errs.NewError(code)

	err := s.hub.dispatcher.SendTo(s.id, protocol.Error{Code: customErr.Code, Reason: customErr.Message})
	if err != nil {
		s.logger.Warn().Err(err).Int("error_code", code).Msg("Failed to send error reply.")
	}
}

// normalizeName trims name and checks it against the configured rules.
func (h *Hub) normalizeName(name string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" || !utf8.ValidString(name) {
		return "", false
	}

	if h.opts.MaxNameLength > 0 && utf8.RuneCountInString(name) > h.opts.MaxNameLength {
		return "", false
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return "", false
		}
	}

	return name, true
}
