package negotiation

import (
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/duet/internal/protocol"
)

var errFake = errors.New("fake failure")

// fakePeer models the signaling state transitions of a PeerConnection.
type fakePeer struct {
	name   string
	state  webrtc.SignalingState
	remote *webrtc.SessionDescription
	seq    int

	failRemote bool
	failOffer  bool

	candidates []webrtc.ICECandidateInit
	rollbacks  int
}

func newFakePeer(name string) *fakePeer {
	return &fakePeer{name: name, state: webrtc.SignalingStateStable}
}

func (p *fakePeer) SignalingState() webrtc.SignalingState { return p.state }

func (p *fakePeer) CreateOffer() (webrtc.SessionDescription, error) {
	if p.failOffer {
		return webrtc.SessionDescription{}, errFake
	}
	p.seq++
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: fmt.Sprintf("offer-%s-%d", p.name, p.seq)}, nil
}

func (p *fakePeer) CreateAnswer() (webrtc.SessionDescription, error) {
	if p.state != webrtc.SignalingStateHaveRemoteOffer {
		return webrtc.SessionDescription{}, errors.New("no remote offer")
	}
	p.seq++
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: fmt.Sprintf("answer-%s-%d", p.name, p.seq)}, nil
}

func (p *fakePeer) SetLocalDescription(sd webrtc.SessionDescription) error {
	switch {
	case sd.Type == webrtc.SDPTypeOffer && (p.state == webrtc.SignalingStateStable || p.state == webrtc.SignalingStateHaveLocalOffer):
		p.state = webrtc.SignalingStateHaveLocalOffer
	case sd.Type == webrtc.SDPTypeAnswer && p.state == webrtc.SignalingStateHaveRemoteOffer:
		p.state = webrtc.SignalingStateStable
	default:
		return fmt.Errorf("invalid local %s in %s", sd.Type, p.state)
	}
	return nil
}

func (p *fakePeer) Rollback() error {
	if p.state != webrtc.SignalingStateHaveLocalOffer {
		return fmt.Errorf("nothing to roll back in %s", p.state)
	}
	p.rollbacks++
	p.state = webrtc.SignalingStateStable
	return nil
}

func (p *fakePeer) SetRemoteDescription(sd webrtc.SessionDescription) error {
	if p.failRemote {
		return errFake
	}
	switch {
	case sd.Type == webrtc.SDPTypeOffer && p.state == webrtc.SignalingStateStable:
		p.state = webrtc.SignalingStateHaveRemoteOffer
	case sd.Type == webrtc.SDPTypeAnswer && p.state == webrtc.SignalingStateHaveLocalOffer:
		p.state = webrtc.SignalingStateStable
	default:
		return fmt.Errorf("invalid remote %s in %s", sd.Type, p.state)
	}
	p.remote = &sd
	return nil
}

func (p *fakePeer) HasRemoteDescription() bool { return p.remote != nil }

func (p *fakePeer) AddICECandidate(c webrtc.ICECandidateInit) error {
	if p.remote == nil {
		return errors.New("no remote description")
	}
	p.candidates = append(p.candidates, c)
	return nil
}

// fakeLifecycle replaces its peer on every reset.
type fakeLifecycle struct {
	name   string
	peer   *fakePeer
	resets int
}

func newFakeLifecycle(name string) *fakeLifecycle {
	return &fakeLifecycle{name: name, peer: newFakePeer(name)}
}

func (l *fakeLifecycle) Peer() Peer {
	if l.peer == nil {
		return nil
	}
	return l.peer
}

func (l *fakeLifecycle) Reset() error {
	l.resets++
	l.peer = newFakePeer(fmt.Sprintf("%s#%d", l.name, l.resets))
	return nil
}

// outbox records every envelope a coordinator signals.
type outbox struct {
	sent []protocol.Envelope
	all  []protocol.Envelope
}

func (o *outbox) Signal(env protocol.Envelope) error {
	o.sent = append(o.sent, env)
	o.all = append(o.all, env)
	return nil
}

// take returns and clears the envelopes signalled so far.
func (o *outbox) take() []protocol.Envelope {
	sent := o.sent
	o.sent = nil
	return sent
}

// count returns how many descriptions of type t were ever signalled.
func (o *outbox) count(t protocol.DescriptionType) int {
	n := 0
	for _, env := range o.all {
		if env.Description != nil && env.Description.Type == t {
			n++
		}
	}
	return n
}

// side bundles one coordinator and its collaborators.
type side struct {
	c    *Coordinator
	life *fakeLifecycle
	out  *outbox
}

func newSide(name string, role Role) *side {
	s := &side{life: newFakeLifecycle(name), out: &outbox{}}
	s.c = New(s.life, s.out)
	if role == Polite {
		s.c.PeerJoined()
	}
	return s
}

// deliver hands every envelope from -> to.
func deliver(from, to *side) {
	for _, env := range from.out.take() {
		to.c.OnRemoteSignal(env)
	}
}
