// Package session runs one room membership: it owns the event loop on which
// relay events, connection callbacks and local actions execute one at a
// time, and wires the relay, the connection, negotiation and messaging
// together.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/duet/internal/media"
	"github.com/1ureka/duet/internal/messaging"
	"github.com/1ureka/duet/internal/negotiation"
	"github.com/1ureka/duet/internal/protocol"
	"github.com/1ureka/duet/internal/queue"
	"github.com/1ureka/duet/internal/signaling"
	"github.com/1ureka/duet/internal/transfer"
	"github.com/1ureka/duet/internal/transport"
	"github.com/1ureka/duet/internal/util"
	rtc "github.com/1ureka/duet/internal/webrtc"
)

var (
	// ErrClosed is returned by actions on a session that has ended.
	ErrClosed = errors.New("session closed")
	// ErrRelayLost ends a session whose relay connection dropped.
	ErrRelayLost = errors.New("relay connection lost")
)

// Options configures a session.
type Options struct {
	Factory *rtc.Factory
	// Media is the local track source; nil means no media.
	Media   media.Source
	Display Display
	// Agent is announced to the peer.
	Agent string
}

// Status is a snapshot of a session.
type Status struct {
	Negotiation     negotiation.State
	Connection      webrtc.PeerConnectionState
	Generation      uint64
	Queued          int
	Transfers       int
	Receiving       int64
	PeerFeatures    protocol.Features
	HasPeerFeatures bool
}

// Session is one room membership. Its exported methods are safe for
// concurrent use; everything else runs on the event loop.
type Session struct {
	loop    *util.Loop
	display Display
	log     util.Scoped

	manager *transport.Manager
	coord   *negotiation.Coordinator
	layer   *messaging.Layer
	queue   *queue.Queue
	clock   *protocol.Clock
	relay   signaling.Conn

	state    webrtc.PeerConnectionState
	streamOn bool

	cancel    context.CancelFunc
	done      chan struct{}
	leaveOnce sync.Once
	errMu     sync.Mutex
	err       error
}

// Join acquires local media, creates the first connection and joins the
// room through connect. The session runs until Leave is called, ctx is
// cancelled or the relay connection drops.
func Join(ctx context.Context, connect signaling.Connector, opts Options) (*Session, error) {
	if opts.Factory == nil {
		return nil, errors.New("session: no connection factory")
	}
	display := opts.Display
	if display == nil {
		display = NopDisplay{}
	}
	source := opts.Media
	if source == nil {
		source = media.None{}
	}

	// The loop outlives ctx long enough to tear the connection down.
	loopCtx, cancel := context.WithCancel(context.Background())
	track, err := source.Acquire(loopCtx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("acquire media: %w", err)
	}

	s := &Session{
		loop:    util.NewLoop(),
		display: display,
		log:     util.Scoped("session"),
		queue:   queue.New(),
		clock:   protocol.NewClock(),
		state:   webrtc.PeerConnectionStateNew,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	s.manager = transport.NewManager(opts.Factory, s.loop.Post, track)
	s.coord = negotiation.New(lifecycle{s}, signaler{s})
	s.layer = messaging.New(messaging.Options{
		Post:   s.loop.Post,
		Clock:  s.clock,
		Queue:  s.queue,
		Events: display,
		Agent:  opts.Agent,
	})

	go func() {
		s.loop.Run(loopCtx)
		close(s.done)
	}()

	// Connecting on the loop holds back relay events until s.relay is set.
	var joinErr error
	if err := s.loop.Call(ctx, func() {
		if joinErr = s.rebuild(); joinErr != nil {
			return
		}
		s.relay, joinErr = connect(relayEvents{s})
	}); err != nil {
		joinErr = err
	}
	if joinErr != nil {
		s.shutdown(nil)
		return nil, fmt.Errorf("join: %w", joinErr)
	}

	if d, ok := s.relay.(interface{ Done() <-chan struct{} }); ok {
		go func() {
			select {
			case <-d.Done():
				s.log.Warning("relay connection lost")
				s.shutdown(ErrRelayLost)
			case <-s.done:
			}
		}()
	}
	go func() {
		select {
		case <-ctx.Done():
			s.shutdown(ctx.Err())
		case <-s.done:
		}
	}()

	s.log.Info("joined room")
	return s, nil
}

// Done is closed once the session has ended.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err returns why the session ended: nil after Leave.
func (s *Session) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Leave closes the connection, leaves the room and stops the loop. It must
// not be called from a Display method.
func (s *Session) Leave() {
	s.shutdown(nil)
}

func (s *Session) shutdown(cause error) {
	s.leaveOnce.Do(func() {
		s.errMu.Lock()
		s.err = cause
		s.errMu.Unlock()

		// A stopped loop drops the call; the context only bounds the wait.
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			select {
			case <-s.done:
				cancel()
			case <-ctx.Done():
			}
		}()
		_ = s.loop.Call(ctx, func() {
			s.coord.Left()
			if err := s.manager.Destroy(); err != nil {
				s.log.Debug("close connection: %v", err)
			}
			if s.relay != nil {
				s.relay.Close()
			}
		})
		cancel()
		s.cancel()
		<-s.done
	})
}

// do runs fn on the loop and waits for it.
func (s *Session) do(ctx context.Context, fn func()) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.done:
			cancel()
		case <-callCtx.Done():
		}
	}()
	if err := s.loop.Call(callCtx, fn); err != nil {
		if ctx.Err() == nil {
			return ErrClosed
		}
		return err
	}
	return nil
}

// SendText sends a chat message, queueing it while the chat channel is
// closed.
func (s *Session) SendText(ctx context.Context, text string) (protocol.ChatMessage, error) {
	var msg protocol.ChatMessage
	err := s.do(ctx, func() { msg = s.layer.SendText(text) })
	return msg, err
}

// SendFile transfers f, queueing it while not connected. It reports whether
// the file was queued.
func (s *Session) SendFile(ctx context.Context, f transfer.File) (bool, error) {
	var queued bool
	err := s.do(ctx, func() { queued = s.layer.SendFile(f) })
	return queued, err
}

// SendEffect asks the peer to apply a named effect.
func (s *Session) SendEffect(ctx context.Context, name string) error {
	var sendErr error
	if err := s.do(ctx, func() { sendErr = s.layer.SendEffect(name) }); err != nil {
		return err
	}
	return sendErr
}

// Status returns a snapshot of the session.
func (s *Session) Status(ctx context.Context) (Status, error) {
	var st Status
	err := s.do(ctx, func() {
		st = Status{
			Negotiation: s.coord.Snapshot(),
			Connection:  s.state,
			Queued:      s.queue.Len(),
			Transfers:   s.layer.Transfers(),
			Receiving:   s.layer.Receiving(),
		}
		if c := s.manager.Current(); c != nil {
			st.Generation = c.Generation()
		}
		st.PeerFeatures, st.HasPeerFeatures = s.layer.PeerFeatures()
	})
	return st, err
}

// ---------------------------------------------------------------------------
// Loop-side wiring
// ---------------------------------------------------------------------------

func (s *Session) signal(env protocol.Envelope) error {
	if s.relay == nil {
		return errors.New("not in a room")
	}
	return s.relay.Signal(env)
}

// rebuild replaces the connection handle and rewires the message layer.
func (s *Session) rebuild() error {
	c, err := s.manager.Reset(s.handlers())
	if err != nil {
		return err
	}
	if err := s.layer.Attach(opener{c}); err != nil {
		return err
	}
	s.setState(webrtc.PeerConnectionStateNew)
	return nil
}

func (s *Session) handlers() transport.Handlers {
	return transport.Handlers{
		OnConnectionState:   s.setState,
		OnChannel:           func(ch *rtc.Channel) { s.layer.OnChannel(ch) },
		OnNegotiationNeeded: s.coord.OnLocalNegotiationNeeded,
		OnCandidate: func(c *webrtc.ICECandidateInit) {
			if err := s.signal(protocol.CandidateEnvelope(c)); err != nil {
				s.log.Debug("signal candidate: %v", err)
			}
		},
		OnTrack:  s.onTrack,
		OnDetach: s.onDetach,
	}
}

func (s *Session) setState(state webrtc.PeerConnectionState) {
	if state == s.state {
		return
	}
	s.state = state
	s.layer.SetConnected(state == webrtc.PeerConnectionStateConnected)
	s.log.Debug("connection %s", state)
	s.display.ConnectionStateChanged(state)
}

func (s *Session) onTrack(track *webrtc.TrackRemote) {
	s.streamOn = true
	s.display.StreamAttached(media.Describe(track))
	go func() {
		if err := media.Consume(track, nil); err != nil {
			s.log.Debug("remote track: %v", err)
		}
	}()
}

func (s *Session) onDetach() {
	s.layer.Detach()
	if s.streamOn {
		s.streamOn = false
		s.display.StreamDetached()
	}
}

func (s *Session) onPeerConnected() {
	s.coord.PeerJoined()
}

func (s *Session) onPeerDisconnected() {
	s.log.Info("peer left, resetting connection")
	s.coord.Forget()
	if err := s.rebuild(); err != nil {
		s.log.Error("reset connection: %v", err)
	}
}

// lifecycle lets the coordinator see and replace the connection.
type lifecycle struct{ s *Session }

func (l lifecycle) Peer() negotiation.Peer {
	if c := l.s.manager.Current(); c != nil {
		return c
	}
	return nil
}

func (l lifecycle) Reset() error { return l.s.rebuild() }

// signaler sends the coordinator's envelopes through the relay.
type signaler struct{ s *Session }

func (r signaler) Signal(env protocol.Envelope) error { return r.s.signal(env) }

// opener creates message layer channels on one connection handle.
type opener struct{ c *transport.Connection }

func (o opener) CreateChannel(purpose rtc.Purpose, name string) (messaging.Channel, error) {
	ch, err := o.c.CreateChannel(purpose, name)
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// relayEvents moves relay events onto the loop.
type relayEvents struct{ s *Session }

func (r relayEvents) OnPeerConnected()    { r.s.loop.Post(r.s.onPeerConnected) }
func (r relayEvents) OnPeerDisconnected() { r.s.loop.Post(r.s.onPeerDisconnected) }

func (r relayEvents) OnSignal(env protocol.Envelope) {
	r.s.loop.Post(func() { r.s.coord.OnRemoteSignal(env) })
}
