// Package protocol defines the wire formats exchanged through the relay and
// over the data channels.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"
)

// DescriptionType identifies the kind of description carried in an Envelope.
type DescriptionType string

const (
	TypeOffer  DescriptionType = "offer"
	TypeAnswer DescriptionType = "answer"
	// TypeReset asks the peer to tear down and rebuild its connection.
	TypeReset DescriptionType = "_reset"
)

// ErrInvalidEnvelope is returned when an envelope carries both or neither of
// a description and a candidate.
var ErrInvalidEnvelope = errors.New("envelope must carry exactly one of description or candidate")

// Description is a session description as relayed between peers. A reset
// description has no SDP.
type Description struct {
	Type DescriptionType `json:"type"`
	SDP  string          `json:"sdp,omitempty"`
}

// SessionDescription converts an offer or answer into pion's form.
func (d *Description) SessionDescription() (webrtc.SessionDescription, error) {
	switch d.Type {
	case TypeOffer:
		return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: d.SDP}, nil
	case TypeAnswer:
		return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: d.SDP}, nil
	default:
		return webrtc.SessionDescription{}, fmt.Errorf("description type %q has no session description", d.Type)
	}
}

// DescriptionFrom converts a committed pion description for transmission.
func DescriptionFrom(sd webrtc.SessionDescription) *Description {
	return &Description{Type: DescriptionType(sd.Type.String()), SDP: sd.SDP}
}

// Envelope is the only payload of a relay "signal" event.
//
// A candidate envelope whose candidate is JSON null marks the end of
// candidates; EndOfCandidates records that case since Candidate is nil.
type Envelope struct {
	Description     *Description
	Candidate       *webrtc.ICECandidateInit
	EndOfCandidates bool
}

// DescriptionEnvelope wraps d.
func DescriptionEnvelope(d *Description) Envelope {
	return Envelope{Description: d}
}

// CandidateEnvelope wraps c; a nil c produces an end-of-candidates envelope.
func CandidateEnvelope(c *webrtc.ICECandidateInit) Envelope {
	return Envelope{Candidate: c, EndOfCandidates: c == nil}
}

// ResetEnvelope is the envelope the polite side emits after a failed negotiation.
func ResetEnvelope() Envelope {
	return Envelope{Description: &Description{Type: TypeReset}}
}

// IsCandidate reports whether the envelope carries the candidate field,
// including the null end-of-candidates marker.
func (e Envelope) IsCandidate() bool {
	return e.Candidate != nil || e.EndOfCandidates
}

// Validate checks that exactly one field is present.
func (e Envelope) Validate() error {
	if (e.Description != nil) == e.IsCandidate() {
		return ErrInvalidEnvelope
	}
	if e.Description != nil {
		switch e.Description.Type {
		case TypeOffer, TypeAnswer, TypeReset:
		default:
			return fmt.Errorf("%w: unknown description type %q", ErrInvalidEnvelope, e.Description.Type)
		}
	}
	return nil
}

type envelopeWire struct {
	Description *Description    `json:"description,omitempty"`
	Candidate   json.RawMessage `json:"candidate,omitempty"`
}

var jsonNull = []byte("null")

func (e Envelope) MarshalJSON() ([]byte, error) {
	w := envelopeWire{Description: e.Description}
	switch {
	case e.Candidate != nil:
		data, err := json.Marshal(e.Candidate)
		if err != nil {
			return nil, err
		}
		w.Candidate = data
	case e.EndOfCandidates:
		w.Candidate = jsonNull
	}
	return json.Marshal(w)
}

func (e *Envelope) UnmarshalJSON(data []byte) error {
	var w envelopeWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	*e = Envelope{Description: w.Description}
	if w.Candidate == nil {
		return nil
	}
	if bytes.Equal(bytes.TrimSpace(w.Candidate), jsonNull) {
		e.EndOfCandidates = true
		return nil
	}

	var c webrtc.ICECandidateInit
	if err := json.Unmarshal(w.Candidate, &c); err != nil {
		return fmt.Errorf("decode candidate: %w", err)
	}
	e.Candidate = &c
	return nil
}
