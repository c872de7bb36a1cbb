package signaling

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/1ureka/duet/internal/protocol"
)

// ErrLeft is returned when signalling on a membership that was closed.
var ErrLeft = errors.New("left the room")

// MemoryHub is an in-process relay with the same room semantics as Server.
// Frames go through their JSON form so both sides never share memory.
type MemoryHub struct {
	mu    sync.Mutex
	rooms map[string][]*MemoryConn
}

// NewMemoryHub creates an empty hub.
func NewMemoryHub() *MemoryHub {
	return &MemoryHub{rooms: make(map[string][]*MemoryConn)}
}

// MemoryConn is a membership of a MemoryHub room.
type MemoryConn struct {
	hub     *MemoryHub
	room    string
	handler Handler

	// deliveries to one membership are serialized, like a socket read loop.
	recvMu sync.Mutex
	left   bool
}

// Connector returns a Connector joining room.
func (h *MemoryHub) Connector(room string) Connector {
	return func(handler Handler) (Conn, error) {
		return h.Join(room, handler), nil
	}
}

// Join adds a participant to room and tells the occupants already there.
func (h *MemoryHub) Join(room string, handler Handler) *MemoryConn {
	c := &MemoryConn{hub: h, room: room, handler: handler}

	h.mu.Lock()
	others := append([]*MemoryConn(nil), h.rooms[room]...)
	h.rooms[room] = append(h.rooms[room], c)
	h.mu.Unlock()

	for _, o := range others {
		o.receive(Frame{Event: EventConnectedPeer})
	}
	return c
}

// Signal sends env to the other participants.
func (c *MemoryConn) Signal(env protocol.Envelope) error {
	data, err := json.Marshal(Frame{Event: EventSignal, Data: &env})
	if err != nil {
		return err
	}

	others, ok := c.hub.others(c)
	if !ok {
		return ErrLeft
	}
	for _, o := range others {
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			return err
		}
		o.receive(f)
	}
	return nil
}

// Close leaves the room. It is idempotent.
func (c *MemoryConn) Close() error {
	h := c.hub
	h.mu.Lock()
	members := h.rooms[c.room]
	found := false
	for i, m := range members {
		if m == c {
			members = append(members[:i:i], members[i+1:]...)
			found = true
			break
		}
	}
	if len(members) == 0 {
		delete(h.rooms, c.room)
	} else {
		h.rooms[c.room] = members
	}
	others := append([]*MemoryConn(nil), members...)
	h.mu.Unlock()

	if !found {
		return nil
	}
	c.recvMu.Lock()
	c.left = true
	c.recvMu.Unlock()

	for _, o := range others {
		o.receive(Frame{Event: EventDisconnectedPeer})
	}
	return nil
}

func (h *MemoryHub) others(c *MemoryConn) ([]*MemoryConn, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var others []*MemoryConn
	present := false
	for _, m := range h.rooms[c.room] {
		if m == c {
			present = true
			continue
		}
		others = append(others, m)
	}
	return others, present
}

func (c *MemoryConn) receive(f Frame) {
	c.recvMu.Lock()
	defer c.recvMu.Unlock()
	if c.left {
		return
	}
	dispatch(c.handler, f)
}
