/*
Package protocol defines the messages exchanged between chat clients and the relay server
and their wire encoding.

Every message travels as a single JSON envelope of the form

	{"type":"CHAT","payload":{"sender":"alice","text":"hi"}}

regardless of the transport carrying it. The package is pure data and codec logic; it
performs no I/O.
*/
package protocol

// Kind is the tag identifying a message variant on the wire.
type Kind string

const (
	// KindSetName is sent by a client to claim or change its display name.
	KindSetName Kind = "SET_NAME"

	// KindChat carries chat text. Clients send it without a sender; the server
	// relays it with the sender's active name filled in.
	KindChat Kind = "CHAT"

	// KindUserJoined announces a newly named user.
	KindUserJoined Kind = "USER_JOINED"

	// KindUserLeft announces that a named user disconnected or renamed.
	KindUserLeft Kind = "USER_LEFT"

	// KindUserList is sent directly to a connection that just got its name.
	KindUserList Kind = "USER_LIST"

	// KindError reports a rejected request back to the requester only.
	KindError Kind = "ERROR"
)

// Message is implemented by every protocol variant.
type Message interface {
	Kind() Kind
}

// SetName asks the server to assign Name to the sending connection.
type SetName struct {
	Name string `json:"name"`
}

// Chat is a chat line. Sender is empty on client-originated messages.
type Chat struct {
	Sender string `json:"sender,omitempty"`
	Text   string `json:"text"`
}

// UserJoined announces that Name became active.
type UserJoined struct {
	Name string `json:"name"`
}

// UserLeft announces that Name is no longer active.
type UserLeft struct {
	Name string `json:"name"`
}

// UserList lists the names active at the time the list was built.
type UserList struct {
	Names []string `json:"names"`
}

// Error is a server reply describing why a request was rejected.
type Error struct {
	Code   int    `json:"code,omitempty"`
	Reason string `json:"reason"`
}

func (SetName) Kind() Kind    { return KindSetName }
func (Chat) Kind() Kind       { return KindChat }
func (UserJoined) Kind() Kind { return KindUserJoined }
func (UserLeft) Kind() Kind   { return KindUserLeft }
func (UserList) Kind() Kind   { return KindUserList }
func (Error) Kind() Kind      { return KindError }

// IsClientMessage reports whether m is a variant clients are allowed to send.
func IsClientMessage(m Message) bool {
	switch m.(type) {
	case SetName, Chat:
		return true
	default:
		return false
	}
}
