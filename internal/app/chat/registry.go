/*
Package chat contains the core of the relay: the connection registry, the dispatcher that fans
protocol messages out to live connections, and the per-connection session state machine.

This file defines the Registry, the only shared mutable state in the server. A single mutex
guards the whole table, every operation is atomic with respect to the others, and no I/O ever
happens while the lock is held.
*/
package chat

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// ConnID uniquely identifies a registered connection for its whole lifetime.
type ConnID string

// State is the lifecycle stage of a registry entry.
type State int

const (
	// StatePending is a connected entry that has not set a name yet.
	StatePending State = iota

	// StateActive is an entry holding a unique display name.
	StateActive

	// StateClosing is an entry whose connection is being torn down.
	StateClosing
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	// ErrNameTaken is returned by SetName when another active entry holds the name.
	ErrNameTaken = errors.New("chat: name taken")

	// ErrUnknownConnection is returned for ids that are absent or already closing.
	ErrUnknownConnection = errors.New("chat: unknown connection")
)

// Sender is the capability to deliver an encoded frame to exactly one remote peer.
type Sender interface {
	// Send queues frame for delivery. It must not block on network I/O.
	Send(frame []byte) error

	// Close terminates the peer. It is safe to call more than once.
	Close() error
}

// Target is a snapshot of one live connection, used for fan-out.
type Target struct {
	ID   ConnID
	Conn Sender
}

type entry struct {
	id    ConnID
	conn  Sender
	name  string
	state State
}

// Registry maps live connections to identities and back.
type Registry struct {
	mu sync.Mutex

	// entries holds every registered connection keyed by id.
	entries map[ConnID]*entry

	// order keeps registration order for deterministic snapshots.
	order []ConnID

	// names maps an active name to the id holding it.
	names map[string]ConnID
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[ConnID]*entry),
		names:   make(map[string]ConnID),
	}
}

// Register adds conn as a Pending entry and returns its new id.
func (r *Registry) Register(conn Sender) ConnID {
	id := ConnID(uuid.NewString())

	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[id] = &entry{id: id, conn: conn, state: StatePending}
	r.order = append(r.order, id)

	return id
}

// SetName assigns name to id, moving a Pending entry to Active or renaming an Active one.
// It fails with ErrNameTaken, leaving the entry unchanged, when another active entry holds name.
func (r *Registry) SetName(id ConnID, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok || e.state == StateClosing {
		return ErrUnknownConnection
	}

	if holder, taken := r.names[name]; taken {
		if holder == id {
			return nil
		}
		r.mustBeActiveHolder(holder, name)
		return ErrNameTaken
	}

	if e.state == StateActive {
		delete(r.names, e.name)
	}

	e.name = name
	e.state = StateActive
	r.names[name] = id

	return nil
}

// mustBeActiveHolder panics if the name index disagrees with the entry table.
// Such a mismatch can only come from a bug in this file.
func (r *Registry) mustBeActiveHolder(id ConnID, name string) {
	e, ok := r.entries[id]
	if !ok || e.state == StatePending || e.name != name {
		panic(fmt.Sprintf("chat: registry invariant violated: name %q indexed to %s which does not hold it", name, id))
	}
}

// Name returns the active name of id.
func (r *Registry) Name(id ConnID) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok || e.state != StateActive {
		return "", false
	}
	return e.name, true
}

// StateOf returns the current state of id.
func (r *Registry) StateOf(id ConnID) (State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return 0, false
	}
	return e.state, true
}

// BeginClose moves id to Closing, which hides it from fan-out. An active entry keeps its
// name reserved until Remove, so nobody can claim it before the departure is announced.
// BeginClose returns false if the entry is absent or already closing, so exactly one
// caller proceeds with teardown.
func (r *Registry) BeginClose(id ConnID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok || e.state == StateClosing {
		return false
	}

	e.state = StateClosing
	return true
}

// Remove deletes id regardless of its state. It returns the name the entry held if it
// had reached Active, so the caller can announce the departure.
func (r *Registry) Remove(id ConnID) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return "", false
	}

	delete(r.entries, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	if e.name == "" {
		return "", false
	}

	if holder, indexed := r.names[e.name]; indexed && holder == id {
		delete(r.names, e.name)
	}
	return e.name, true
}

// ActiveNames returns the names of all Active entries in registration order.
func (r *Registry) ActiveNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.names))
	for _, id := range r.order {
		if e := r.entries[id]; e.state == StateActive {
			names = append(names, e.name)
		}
	}
	return names
}

// AllActiveConnections returns every live (Pending or Active) connection in registration order.
func (r *Registry) AllActiveConnections() []Target {
	r.mu.Lock()
	defer r.mu.Unlock()

	targets := make([]Target, 0, len(r.order))
	for _, id := range r.order {
		if e := r.entries[id]; e.state != StateClosing {
			targets = append(targets, Target{ID: id, Conn: e.conn})
		}
	}
	return targets
}

// Lookup returns the connection for id if it is live.
func (r *Registry) Lookup(id ConnID) (Sender, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok || e.state == StateClosing {
		return nil, false
	}
	return e.conn, true
}

// Len returns the number of registered entries in any state.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
