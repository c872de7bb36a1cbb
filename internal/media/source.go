// Package media provides the local video track attached to each connection
// and consumes the remote one.
package media

import (
	"context"
	"errors"
	"io"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// Source acquires the local media track. Acquiring happens once per session;
// a failure aborts the session start.
type Source interface {
	Acquire(ctx context.Context) (webrtc.TrackLocal, error)
}

// None is a Source without media: connections carry data channels only.
type None struct{}

func (None) Acquire(context.Context) (webrtc.TrackLocal, error) { return nil, nil }

// Stream describes a remote track.
type Stream struct {
	ID       string
	StreamID string
	Kind     string
	Codec    string
}

// Describe returns what is known about a remote track.
func Describe(track *webrtc.TrackRemote) Stream {
	return Stream{
		ID:       track.ID(),
		StreamID: track.StreamID(),
		Kind:     track.Kind().String(),
		Codec:    track.Codec().MimeType,
	}
}

// Consume reads RTP packets from track until it ends, handing each to fn
// when fn is non-nil. Remote tracks must be read for the connection's
// interceptors to keep working.
func Consume(track *webrtc.TrackRemote, fn func(*rtp.Packet)) error {
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if fn != nil {
			fn(pkt)
		}
	}
}
