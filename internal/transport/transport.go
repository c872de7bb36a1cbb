// Package transport owns the session's PeerConnection handle: it creates,
// destroys and recreates it, and wires its callbacks.
package transport

import (
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/duet/internal/util"
	rtc "github.com/1ureka/duet/internal/webrtc"
)

// ErrNoConnection is returned when an operation needs a live handle.
var ErrNoConnection = errors.New("no live connection")

// Manager is the exclusive owner of the connection handle. It is not safe
// for concurrent use: every method runs on the session's event loop.
type Manager struct {
	factory *rtc.Factory
	exec    rtc.Executor
	track   webrtc.TrackLocal // optional local media

	generation uint64
	current    *Connection
}

// NewManager creates a Manager. exec delivers every callback of every handle;
// track, when non-nil, is attached to each new connection.
func NewManager(factory *rtc.Factory, exec rtc.Executor, track webrtc.TrackLocal) *Manager {
	return &Manager{factory: factory, exec: exec, track: track}
}

// Current returns the live handle, or nil.
func (m *Manager) Current() *Connection { return m.current }

// Create returns a fresh connection with h registered and local media
// attached. An existing handle must be destroyed first.
func (m *Manager) Create(h Handlers) (*Connection, error) {
	if m.current != nil {
		return nil, errors.New("connection already exists")
	}

	pc, err := m.factory.NewPeerConnection()
	if err != nil {
		return nil, fmt.Errorf("create PeerConnection: %w", err)
	}

	m.generation++
	c := &Connection{
		pc:         pc,
		generation: m.generation,
		pcState:    webrtc.PeerConnectionStateNew,
	}
	c.register(h, m.exec)

	if m.track != nil {
		sender, err := pc.AddTrack(m.track)
		if err != nil {
			c.reg.Release()
			pc.Close()
			return nil, fmt.Errorf("attach local media: %w", err)
		}
		go drainRTCP(sender)
	}

	m.current = c
	util.LogDebug("connection #%d created", c.generation)
	return c, nil
}

// Destroy releases the handlers, detaches the remote display and closes the
// connection. Channels of the destroyed handle are unusable afterwards.
func (m *Manager) Destroy() error {
	c := m.current
	if c == nil {
		return nil
	}
	m.current = nil

	c.reg.Release()
	if c.handlers.OnDetach != nil {
		c.handlers.OnDetach()
	}

	util.LogDebug("connection #%d destroyed", c.generation)
	return c.pc.Close()
}

// Reset destroys the live handle and creates a new one with h.
func (m *Manager) Reset(h Handlers) (*Connection, error) {
	if err := m.Destroy(); err != nil {
		util.LogDebug("close during reset: %v", err)
	}
	return m.Create(h)
}

// drainRTCP reads incoming RTCP so that interceptors keep working; it exits
// when the sender is closed.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}
