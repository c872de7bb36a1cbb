package transport

import (
	"sync"

	"github.com/pion/webrtc/v4"

	rtc "github.com/1ureka/duet/internal/webrtc"
)

// Connection is one live PeerConnection handle. It is never mutated field by
// field: a reset destroys it and the Manager creates a new one.
type Connection struct {
	pc         *webrtc.PeerConnection
	generation uint64
	reg        *Registration
	exec       rtc.Executor
	handlers   Handlers

	mu      sync.RWMutex
	pcState webrtc.PeerConnectionState
}

// register wires h onto the PeerConnection and returns the token that
// detaches them.
func (c *Connection) register(h Handlers, exec rtc.Executor) *Registration {
	reg := &Registration{}
	c.reg = reg
	c.handlers = h
	c.exec = reg.guard(exec)

	c.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		c.mu.Lock()
		c.pcState = state
		c.mu.Unlock()
		if h.OnConnectionState != nil {
			c.exec(func() { h.OnConnectionState(state) })
		}
	})

	c.pc.OnDataChannel(func(d *webrtc.DataChannel) {
		if !reg.Active() {
			return
		}
		ch := rtc.Wrap(d, c.exec)
		if h.OnChannel != nil {
			c.exec(func() { h.OnChannel(ch) })
		}
	})

	c.pc.OnNegotiationNeeded(func() {
		if h.OnNegotiationNeeded != nil {
			c.exec(h.OnNegotiationNeeded)
		}
	})

	c.pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if h.OnCandidate == nil {
			return
		}
		var init *webrtc.ICECandidateInit
		if candidate != nil {
			j := candidate.ToJSON()
			init = &j
		}
		c.exec(func() { h.OnCandidate(init) })
	})

	c.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if h.OnTrack != nil {
			c.exec(func() { h.OnTrack(track) })
		}
	})

	return reg
}

// Generation identifies the handle; it increases with every Create.
func (c *Connection) Generation() uint64 { return c.generation }

// Registration returns the handler token of this handle.
func (c *Connection) Registration() *Registration { return c.reg }

// ConnectionState returns the last observed PeerConnection state.
func (c *Connection) ConnectionState() webrtc.PeerConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pcState
}

// CreateChannel opens a logical channel with the given purpose. Chat and
// features channels are pre-negotiated on their fixed ids; the others are
// announced to the peer in-band. All channels are reliable and ordered.
func (c *Connection) CreateChannel(purpose rtc.Purpose, name string) (*rtc.Channel, error) {
	init := &webrtc.DataChannelInit{}
	if id, ok := purpose.Negotiated(); ok {
		negotiated := true
		init.Negotiated = &negotiated
		init.ID = &id
	}

	dc, err := c.pc.CreateDataChannel(purpose.Label(name), init)
	if err != nil {
		return nil, err
	}
	return rtc.Wrap(dc, c.exec), nil
}

// ---------------------------------------------------------------------------
// Negotiation
// ---------------------------------------------------------------------------

// SignalingState returns the current signaling state.
func (c *Connection) SignalingState() webrtc.SignalingState {
	return c.pc.SignalingState()
}

// CreateOffer computes an SDP offer without committing it.
func (c *Connection) CreateOffer() (webrtc.SessionDescription, error) {
	return c.pc.CreateOffer(nil)
}

// CreateAnswer computes an SDP answer without committing it.
func (c *Connection) CreateAnswer() (webrtc.SessionDescription, error) {
	return c.pc.CreateAnswer(nil)
}

// SetLocalDescription commits a computed description.
func (c *Connection) SetLocalDescription(sd webrtc.SessionDescription) error {
	return c.pc.SetLocalDescription(sd)
}

// Rollback discards an uncommitted local offer, returning to stable.
func (c *Connection) Rollback() error {
	return c.pc.SetLocalDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeRollback})
}

// SetRemoteDescription applies the peer's description.
func (c *Connection) SetRemoteDescription(sd webrtc.SessionDescription) error {
	return c.pc.SetRemoteDescription(sd)
}

// HasRemoteDescription reports whether a remote description is applied.
func (c *Connection) HasRemoteDescription() bool {
	return c.pc.RemoteDescription() != nil
}

// AddICECandidate applies a remote candidate received through the relay.
func (c *Connection) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(candidate)
}
