package chat

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"chatrelay/internal/app/protocol"
	"chatrelay/internal/pkg/logx"
)

// Dispatcher delivers protocol messages to connections resolved from the registry.
// It only reads the registry and never mutates it.
type Dispatcher struct {
	registry *Registry
	logger   zerolog.Logger
}

// NewDispatcher returns a dispatcher reading targets from registry.
func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		logger:   logx.Component("dispatcher"),
	}
}

// Broadcast encodes msg once and delivers it to every live connection except exclude
// (an empty exclude delivers to all). Failed deliveries are logged and skipped; the
// number of successful deliveries is returned.
func (d *Dispatcher) Broadcast(msg protocol.Message, exclude ConnID) int {
	frame, err := protocol.Encode(msg)
	if err != nil {
		d.logger.Error().Err(err).Str("msg_type", string(msg.Kind())).Msg("Failed to encode broadcast message.")
		return 0
	}

	delivered := 0
	for _, target := range d.registry.AllActiveConnections() {
		if exclude != "" && target.ID == exclude {
			continue
		}

		if err := target.Conn.Send(frame); err != nil {
			event := d.logger.Warn()
			if errors.Is(err, ErrPeerClosed) {
				// expected while a peer is mid-teardown
				event = d.logger.Debug()
			}
			event.
				Err(err).
				Str("conn_id", string(target.ID)).
				Str("msg_type", string(msg.Kind())).
				Msg("Delivery failed, skipping target.")
			continue
		}
		delivered++
	}

	return delivered
}

// SendTo delivers msg to a single connection.
func (d *Dispatcher) SendTo(id ConnID, msg protocol.Message) error {
	conn, ok := d.registry.Lookup(id)
	if !ok {
		return fmt.Errorf("send %s to %s: %w", msg.Kind(), id, ErrUnknownConnection)
	}

	frame, err := protocol.Encode(msg)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg.Kind(), err)
	}

	if err := conn.Send(frame); err != nil {
		return fmt.Errorf("send %s to %s: %w", msg.Kind(), id, err)
	}
	return nil
}
