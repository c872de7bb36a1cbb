package signaling

import (
	"encoding/json"

	"github.com/1ureka/duet/internal/protocol"
)

// Event names a relay frame.
type Event string

const (
	EventSignal           Event = "signal"
	EventConnectedPeer    Event = "connected peer"
	EventDisconnectedPeer Event = "disconnected peer"
)

// Frame is the JSON structure exchanged with the relay.
type Frame struct {
	Event Event              `json:"event"`
	Data  *protocol.Envelope `json:"data,omitempty"`
}

// relayFrame is what the server forwards; the envelope is passed on
// verbatim without being interpreted.
type relayFrame struct {
	Event Event           `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// dispatch hands one received frame to h.
func dispatch(h Handler, f Frame) {
	switch f.Event {
	case EventConnectedPeer:
		h.OnPeerConnected()
	case EventDisconnectedPeer:
		h.OnPeerDisconnected()
	case EventSignal:
		if f.Data != nil {
			h.OnSignal(*f.Data)
		}
	}
}
