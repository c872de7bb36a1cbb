// Package signaling is the relay that lets two peers in the same room
// exchange negotiation envelopes before they have a direct connection. It
// holds a WebSocket server, its client, and an in-process hub with the same
// semantics.
package signaling

import "github.com/1ureka/duet/internal/protocol"

// Handler receives the events of one room membership. Methods are called
// from the relay's read goroutine, one at a time and in order.
type Handler interface {
	// OnPeerConnected is called when another participant joins after us.
	OnPeerConnected()
	// OnPeerDisconnected is called when another participant leaves.
	OnPeerDisconnected()
	// OnSignal delivers an envelope sent by another participant.
	OnSignal(protocol.Envelope)
}

// Conn is a room membership.
type Conn interface {
	// Signal sends env to every other participant of the room.
	Signal(env protocol.Envelope) error
	// Close leaves the room.
	Close() error
}

// Connector joins a room, delivering its events to h.
type Connector func(h Handler) (Conn, error)
