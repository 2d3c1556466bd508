package client

import (
	"slices"
	"sync"

	"chatrelay/internal/app/protocol"
)

// Roster tracks online users from the server's list and join/leave events.
type Roster struct {
	mu    sync.Mutex
	names []string
}

func NewRoster() *Roster {
	return &Roster{}
}

// Apply updates the roster from msg. Messages that carry no presence change are ignored.
func (r *Roster) Apply(msg protocol.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch m := msg.(type) {
	case protocol.UserList:
		// keep names that joined while the list was in flight
		merged := slices.Clone(m.Names)
		for _, name := range r.names {
			if !slices.Contains(merged, name) {
				merged = append(merged, name)
			}
		}
		r.names = merged
	case protocol.UserJoined:
		if !slices.Contains(r.names, m.Name) {
			r.names = append(r.names, m.Name)
		}
	case protocol.UserLeft:
		r.names = slices.DeleteFunc(r.names, func(name string) bool { return name == m.Name })
	}
}

// Names returns a sorted copy of the known names.
func (r *Roster) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := slices.Clone(r.names)
	slices.Sort(names)
	return names
}
