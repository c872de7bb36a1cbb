package session

import (
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/duet/internal/media"
	"github.com/1ureka/duet/internal/messaging"
	"github.com/1ureka/duet/internal/protocol"
	"github.com/1ureka/duet/internal/transfer"
)

// Display is the presentation surface of a session. Every method runs on the
// session's event loop and must not block.
type Display interface {
	ConnectionStateChanged(webrtc.PeerConnectionState)
	StreamAttached(media.Stream)
	StreamDetached()
	messaging.Events
}

// NopDisplay discards everything.
type NopDisplay struct{}

func (NopDisplay) ConnectionStateChanged(webrtc.PeerConnectionState) {}
func (NopDisplay) StreamAttached(media.Stream)                       {}
func (NopDisplay) StreamDetached()                                   {}
func (NopDisplay) MessageReceived(protocol.ChatMessage)              {}
func (NopDisplay) DeliveryConfirmed(int64, bool)                     {}
func (NopDisplay) FileReceived(transfer.Artifact)                    {}
func (NopDisplay) TransferFailed(string, error)                      {}
func (NopDisplay) PeerEffect(string)                                 {}
func (NopDisplay) PeerFeatures(protocol.Features)                    {}
