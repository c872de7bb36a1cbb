package transport

import (
	"sync/atomic"

	"github.com/pion/webrtc/v4"

	rtc "github.com/1ureka/duet/internal/webrtc"
)

// Handlers are the callbacks wired onto every connection the Manager creates.
// Every handler runs through the Manager's Executor; nil handlers are skipped.
type Handlers struct {
	OnConnectionState   func(webrtc.PeerConnectionState)
	OnChannel           func(*rtc.Channel)
	OnNegotiationNeeded func()
	// OnCandidate receives nil once gathering completes.
	OnCandidate func(*webrtc.ICECandidateInit)
	OnTrack     func(*webrtc.TrackRemote)
	// OnDetach runs when the connection is destroyed, before it is closed.
	OnDetach func()
}

// Registration is the token returned when handlers are wired onto a
// connection. Once released, callbacks still in flight from that connection
// are dropped instead of reaching the handlers.
type Registration struct {
	released atomic.Bool
}

// Release deregisters the handlers. It is idempotent.
func (r *Registration) Release() { r.released.Store(true) }

// Active reports whether the handlers are still registered.
func (r *Registration) Active() bool { return !r.released.Load() }

// guard returns an executor that drops callbacks once r is released, both
// when they are scheduled and when they are about to run.
func (r *Registration) guard(exec rtc.Executor) rtc.Executor {
	return func(fn func()) {
		if !r.Active() {
			return
		}
		exec(func() {
			if r.Active() {
				fn()
			}
		})
	}
}
