// Package negotiation implements perfect negotiation on top of a Peer: both
// sides may offer at any time, and collisions resolve through the polite and
// impolite roles without ever deadlocking.
package negotiation

import (
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/duet/internal/protocol"
	"github.com/1ureka/duet/internal/util"
)

// maxPendingCandidates bounds the candidates kept while no remote description
// is applied.
const maxPendingCandidates = 128

// Peer is the negotiation surface of one connection handle.
type Peer interface {
	SignalingState() webrtc.SignalingState
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(webrtc.SessionDescription) error
	Rollback() error
	SetRemoteDescription(webrtc.SessionDescription) error
	HasRemoteDescription() bool
	AddICECandidate(webrtc.ICECandidateInit) error
}

// Lifecycle gives the coordinator the live handle and lets it replace it.
type Lifecycle interface {
	// Peer returns the live handle, or nil when there is none.
	Peer() Peer
	// Reset destroys the live handle, creates a new one and rewires its
	// channels.
	Reset() error
}

// Signaler transmits envelopes to the remote peer through the relay.
type Signaler interface {
	Signal(protocol.Envelope) error
}

// Coordinator is the perfect negotiation state machine. It is not safe for
// concurrent use: every method must run on the session's event loop.
type Coordinator struct {
	role    Role
	flags   Flags
	life    Lifecycle
	out     Signaler
	pending []webrtc.ICECandidateInit
	log     util.Scoped
}

// New creates an impolite coordinator with all flags clear.
func New(life Lifecycle, out Signaler) *Coordinator {
	return &Coordinator{life: life, out: out, log: util.Scoped("negotiation")}
}

// IsPolite reports whether this side yields on collision.
func (c *Coordinator) IsPolite() bool { return c.role == Polite }

// Snapshot returns a copy of the current state.
func (c *Coordinator) Snapshot() State {
	return State{Role: c.role, Flags: c.flags, PendingCandidates: len(c.pending)}
}

// PeerJoined is called when another participant enters the room after us.
func (c *Coordinator) PeerJoined() {
	c.role = Polite
	c.log.Debug("peer joined, role is now %s", c.role)
}

// Left returns the coordinator to its initial state when leaving the room.
func (c *Coordinator) Left() {
	c.role = Impolite
	c.Forget()
}

// Forget clears the flags and buffered candidates, keeping the role.
func (c *Coordinator) Forget() {
	c.flags = Flags{}
	c.pending = nil
}

// OnLocalNegotiationNeeded makes and transmits a local offer.
func (c *Coordinator) OnLocalNegotiationNeeded() {
	if c.flags.SuppressingInitialOffer {
		c.log.Debug("initial offer suppressed after reset")
		return
	}
	p := c.life.Peer()
	if p == nil {
		return
	}

	c.flags.MakingOffer = true
	defer func() { c.flags.MakingOffer = false }()

	offer, err := describe(p, webrtc.SDPTypeOffer)
	if err != nil {
		c.log.Warning("local offer: %v", err)
		return
	}
	c.signal(protocol.DescriptionEnvelope(protocol.DescriptionFrom(offer)))
}

// OnRemoteSignal applies one envelope received from the relay.
func (c *Coordinator) OnRemoteSignal(env protocol.Envelope) {
	if err := env.Validate(); err != nil {
		c.log.Debug("dropping envelope: %v", err)
		return
	}
	if env.Description != nil {
		c.onDescription(*env.Description)
		return
	}
	if env.Candidate != nil {
		c.onCandidate(*env.Candidate)
	}
}

func (c *Coordinator) onDescription(d protocol.Description) {
	if d.Type == protocol.TypeReset {
		c.log.Info("peer requested a reset")
		c.ResetAndRetry()
		return
	}

	p := c.life.Peer()
	if p == nil {
		return
	}

	state := p.SignalingState()
	readyForOffer := !c.flags.MakingOffer &&
		(state == webrtc.SignalingStateStable || c.flags.SettingRemoteAnswerPending)
	offerCollision := d.Type == protocol.TypeOffer && !readyForOffer

	c.flags.IgnoringOffer = !c.IsPolite() && offerCollision
	if c.flags.IgnoringOffer {
		c.log.Debug("ignoring colliding offer")
		return
	}

	remote, err := d.SessionDescription()
	if err != nil {
		c.log.Debug("dropping description: %v", err)
		return
	}

	c.flags.SettingRemoteAnswerPending = d.Type == protocol.TypeAnswer
	if offerCollision && state == webrtc.SignalingStateHaveLocalOffer {
		if err := p.Rollback(); err != nil {
			c.log.Warning("rollback local offer: %v", err)
			c.ResetAndRetry()
			return
		}
		c.log.Debug("rolled back local offer")
	}

	if err := p.SetRemoteDescription(remote); err != nil {
		c.log.Warning("remote %s rejected: %v", d.Type, err)
		c.ResetAndRetry()
		return
	}
	c.flags.SettingRemoteAnswerPending = false
	c.flushCandidates(p)

	if d.Type != protocol.TypeOffer {
		return
	}

	answer, err := describe(p, webrtc.SDPTypeAnswer)
	if err != nil {
		c.log.Warning("local answer: %v", err)
		c.ResetAndRetry()
		return
	}
	c.signal(protocol.DescriptionEnvelope(protocol.DescriptionFrom(answer)))
	c.flags.SuppressingInitialOffer = false
}

func (c *Coordinator) onCandidate(candidate webrtc.ICECandidateInit) {
	if len(candidate.Candidate) <= 1 {
		return
	}
	p := c.life.Peer()
	if p == nil {
		return
	}

	if !p.HasRemoteDescription() {
		if len(c.pending) >= maxPendingCandidates {
			c.log.Debug("candidate buffer full, dropping candidate")
			return
		}
		c.pending = append(c.pending, candidate)
		return
	}
	c.addCandidate(p, candidate)
}

func (c *Coordinator) flushCandidates(p Peer) {
	pending := c.pending
	c.pending = nil
	for _, candidate := range pending {
		c.addCandidate(p, candidate)
	}
}

func (c *Coordinator) addCandidate(p Peer, candidate webrtc.ICECandidateInit) {
	if err := p.AddICECandidate(candidate); err != nil {
		if c.flags.IgnoringOffer {
			return
		}
		c.log.Debug("add candidate: %v", err)
	}
}

// ResetAndRetry replaces the connection after an unrecoverable negotiation
// error. Only the polite side asks the peer to do the same, and it then
// waits for the peer's first offer on the new connection.
func (c *Coordinator) ResetAndRetry() {
	polite := c.IsPolite()
	c.flags = Flags{SuppressingInitialOffer: polite}
	c.pending = nil

	if err := c.life.Reset(); err != nil {
		c.log.Error("reset connection: %v", err)
	}
	if polite {
		c.signal(protocol.ResetEnvelope())
	}
}

func (c *Coordinator) signal(env protocol.Envelope) {
	if err := c.out.Signal(env); err != nil {
		c.log.Warning("signal: %v", err)
	}
}

// describe computes a description of the given kind and commits it as the
// local description.
func describe(p Peer, kind webrtc.SDPType) (webrtc.SessionDescription, error) {
	var (
		sd  webrtc.SessionDescription
		err error
	)
	switch kind {
	case webrtc.SDPTypeOffer:
		sd, err = p.CreateOffer()
	case webrtc.SDPTypeAnswer:
		sd, err = p.CreateAnswer()
	default:
		return sd, fmt.Errorf("cannot describe %s", kind)
	}
	if err != nil {
		return sd, fmt.Errorf("create %s: %w", kind, err)
	}
	if err := p.SetLocalDescription(sd); err != nil {
		return sd, fmt.Errorf("set local %s: %w", kind, err)
	}
	return sd, nil
}
