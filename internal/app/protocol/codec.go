package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"
)

// ErrInvalidUTF8 is returned by Encode for messages whose text is not valid UTF-8.
var ErrInvalidUTF8 = errors.New("protocol: text is not valid UTF-8")

// envelope is the outer JSON object every frame carries.
type envelope struct {
	Type    Kind            `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// DecodeError is returned by Decode for any input that is not a well-formed message.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol: %s: %v", e.Reason, e.Err)
	}
	return "protocol: " + e.Reason
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Encode serializes m into a single frame. The output is deterministic for a given message.
// Every text field must be valid UTF-8; JSON would otherwise replace bad bytes silently.
func Encode(m Message) ([]byte, error) {
	if m == nil {
		return nil, errors.New("protocol: cannot encode nil message")
	}

	if !validUTF8(m) {
		return nil, fmt.Errorf("encode %s: %w", m.Kind(), ErrInvalidUTF8)
	}

	// an absent list is sent as an empty array so clients never see null
	if list, ok := m.(UserList); ok && list.Names == nil {
		m = UserList{Names: []string{}}
	}

	payload, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal %s payload: %w", m.Kind(), err)
	}

	frame, err := json.Marshal(envelope{Type: m.Kind(), Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal %s envelope: %w", m.Kind(), err)
	}

	return frame, nil
}

// Decode parses one frame. Malformed, truncated or unknown input yields a *DecodeError.
func Decode(frame []byte) (Message, error) {
	var env envelope
	if err := decodeStrict(frame, &env); err != nil {
		return nil, &DecodeError{Reason: "invalid envelope", Err: err}
	}

	if env.Type == "" {
		return nil, &DecodeError{Reason: "missing message type"}
	}

	if len(env.Payload) == 0 || bytes.Equal(env.Payload, []byte("null")) {
		return nil, &DecodeError{Reason: fmt.Sprintf("missing payload for %s", env.Type)}
	}

	switch env.Type {
	case KindSetName:
		var m SetName
		return decodePayload(env, &m)
	case KindChat:
		var m Chat
		return decodePayload(env, &m)
	case KindUserJoined:
		var m UserJoined
		return decodePayload(env, &m)
	case KindUserLeft:
		var m UserLeft
		return decodePayload(env, &m)
	case KindUserList:
		var m UserList
		msg, err := decodePayload(env, &m)
		if err != nil {
			return nil, err
		}
		if list := msg.(UserList); len(list.Names) == 0 {
			return UserList{}, nil
		}
		return msg, nil
	case KindError:
		var m Error
		return decodePayload(env, &m)
	default:
		return nil, &DecodeError{Reason: fmt.Sprintf("unknown message type %q", env.Type)}
	}
}

// decodePayload unmarshals the envelope payload into dst and returns the dereferenced value.
func decodePayload[T Message](env envelope, dst *T) (Message, error) {
	if err := decodeStrict(env.Payload, dst); err != nil {
		return nil, &DecodeError{Reason: fmt.Sprintf("invalid %s payload", env.Type), Err: err}
	}
	return *dst, nil
}

// decodeStrict rejects unknown fields and anything after the first JSON value.
func decodeStrict(data []byte, dst any) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		return err
	}

	if rest := bytes.TrimSpace(data[decoder.InputOffset():]); len(rest) > 0 {
		return errors.New("unexpected data after message")
	}

	return nil
}

func validUTF8(m Message) bool {
	switch m := m.(type) {
	case SetName:
		return utf8.ValidString(m.Name)
	case Chat:
		return utf8.ValidString(m.Sender) && utf8.ValidString(m.Text)
	case UserJoined:
		return utf8.ValidString(m.Name)
	case UserLeft:
		return utf8.ValidString(m.Name)
	case UserList:
		for _, name := range m.Names {
			if !utf8.ValidString(name) {
				return false
			}
		}
		return true
	case Error:
		return utf8.ValidString(m.Reason)
	default:
		return true
	}
}
