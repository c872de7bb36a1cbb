// Package messaging runs the application protocol over the data channels of
// one connection: chat with delivery receipts, the features handshake, peer
// effects and file transfers.
package messaging

import (
	"errors"
	"fmt"

	"github.com/1ureka/duet/internal/protocol"
	"github.com/1ureka/duet/internal/queue"
	"github.com/1ureka/duet/internal/transfer"
	"github.com/1ureka/duet/internal/util"
	rtc "github.com/1ureka/duet/internal/webrtc"
)

var (
	// ErrNotConnected is returned by sends that cannot be queued.
	ErrNotConnected = errors.New("not connected to a peer")
	// ErrDetached ends the transfers of a connection that was replaced.
	ErrDetached = errors.New("connection replaced")
)

// Channel is a data channel as the layer sees it.
type Channel interface {
	transfer.Channel
	Purpose() rtc.Purpose
}

// Opener creates channels on the live connection.
type Opener interface {
	CreateChannel(purpose rtc.Purpose, name string) (Channel, error)
}

// Events receives what the layer surfaces. Methods run on the owner's loop.
type Events interface {
	MessageReceived(protocol.ChatMessage)
	DeliveryConfirmed(id int64, delayed bool)
	FileReceived(transfer.Artifact)
	TransferFailed(name string, err error)
	PeerEffect(name string)
	PeerFeatures(protocol.Features)
}

// Options configures a Layer.
type Options struct {
	// Post schedules work on the owner's loop.
	Post   rtc.Executor
	Clock  *protocol.Clock
	Queue  *queue.Queue
	Events Events
	// Agent is announced to the peer in the features frame.
	Agent string
}

// Layer is the message layer of a session. It outlives connection handles:
// Attach binds it to each new one and Detach lets go of the old. It is not
// safe for concurrent use.
type Layer struct {
	post   rtc.Executor
	clock  *protocol.Clock
	queue  *queue.Queue
	events Events
	local  protocol.Features
	log    util.Scoped

	opener    Opener
	connected bool
	chat      Channel
	features  Channel
	peer      *protocol.Features

	senders   map[*transfer.Sender]struct{}
	receivers map[*transfer.Receiver]struct{}
}

// New creates a detached layer.
func New(opts Options) *Layer {
	return &Layer{
		post:   opts.Post,
		clock:  opts.Clock,
		queue:  opts.Queue,
		events: opts.Events,
		local: protocol.Features{
			BinaryType: "arraybuffer",
			ChunkSize:  protocol.ChunkSize,
			Agent:      opts.Agent,
		},
		log:       util.Scoped("messaging"),
		senders:   make(map[*transfer.Sender]struct{}),
		receivers: make(map[*transfer.Receiver]struct{}),
	}
}

// Attach creates the pre-negotiated chat and features channels on a new
// connection.
func (l *Layer) Attach(opener Opener) error {
	l.Detach()

	chat, err := opener.CreateChannel(rtc.PurposeChat, "")
	if err != nil {
		return fmt.Errorf("create chat channel: %w", err)
	}
	features, err := opener.CreateChannel(rtc.PurposeFeatures, "")
	if err != nil {
		chat.Close()
		return fmt.Errorf("create features channel: %w", err)
	}

	l.opener = opener
	l.chat = chat
	l.features = features
	l.installChat(chat)
	l.installFeatures(features)
	return nil
}

// Detach drops the channels of the current connection and abandons its
// transfers.
func (l *Layer) Detach() {
	for s := range l.senders {
		s.Abandon(ErrDetached)
	}
	for r := range l.receivers {
		r.Abandon(ErrDetached)
	}
	l.senders = make(map[*transfer.Sender]struct{})
	l.receivers = make(map[*transfer.Receiver]struct{})

	l.opener = nil
	l.chat = nil
	l.features = nil
	l.peer = nil
	l.connected = false
}

// SetConnected records whether the connection is currently usable for new
// transfers.
func (l *Layer) SetConnected(connected bool) { l.connected = connected }

// PeerFeatures returns what the peer announced, if it did.
func (l *Layer) PeerFeatures() (protocol.Features, bool) {
	if l.peer == nil {
		return protocol.Features{}, false
	}
	return *l.peer, true
}

// Transfers returns the number of transfers in flight.
func (l *Layer) Transfers() int { return len(l.senders) + len(l.receivers) }

// Receiving returns the bytes accumulated by the inbound transfers in flight.
func (l *Layer) Receiving() int64 {
	var n int64
	for r := range l.receivers {
		n += r.Received()
	}
	return n
}

// ---------------------------------------------------------------------------
// Inbound channels
// ---------------------------------------------------------------------------

// OnChannel routes a channel announced by the peer.
func (l *Layer) OnChannel(ch Channel) {
	switch ch.Purpose() {
	case rtc.PurposeTransfer:
		l.receive(ch)
	case rtc.PurposeEffect:
		name := ch.Name()
		ch.OnOpen(func() {
			l.events.PeerEffect(name)
			ch.Close()
		})
	default:
		l.log.Debug("closing unexpected %s channel %q", ch.Purpose(), ch.Name())
		ch.Close()
	}
}

func (l *Layer) receive(ch Channel) {
	var r *transfer.Receiver
	r = transfer.Receive(ch, l.clock, transfer.ReceiveHooks{
		OnFile: func(a transfer.Artifact) {
			delete(l.receivers, r)
			l.events.FileReceived(a)
		},
		OnFailed: func(name string, err error) {
			delete(l.receivers, r)
			l.events.TransferFailed(name, err)
		},
		OnAckFailed: func(receipt protocol.Receipt) {
			l.queue.Push(queue.ReceiptEntry(receipt))
		},
	})
	l.receivers[r] = struct{}{}
}

// ---------------------------------------------------------------------------
// Chat and features
// ---------------------------------------------------------------------------

func (l *Layer) installChat(ch Channel) {
	ch.OnOpen(func() {
		l.log.Debug("chat channel open")
		if n := l.queue.Flush(l.replay); n > 0 {
			l.log.Info("flushed %d queued items", n)
		}
	})
	ch.OnMessage(func(m rtc.Message) {
		if !m.IsText {
			return
		}
		frame, err := protocol.DecodeChatFrame(m.Data)
		if err != nil {
			l.log.Debug("%v", err)
			return
		}
		if r := frame.Receipt; r != nil {
			l.events.DeliveryConfirmed(r.ID, r.Delayed())
			return
		}
		msg := *frame.Message
		l.events.MessageReceived(msg)
		l.sendReceipt(protocol.NewReceipt(msg.Timestamp, l.clock.Now()))
	})
	ch.OnClose(func() {
		l.log.Debug("chat channel closed")
	})
}

func (l *Layer) installFeatures(ch Channel) {
	ch.OnOpen(func() {
		text, err := protocol.Encode(l.local)
		if err == nil {
			err = ch.SendText(text)
		}
		if err != nil {
			l.log.Debug("send features: %v", err)
		}
	})
	ch.OnMessage(func(m rtc.Message) {
		f, err := protocol.DecodeFeatures(m.Data)
		if err != nil {
			l.log.Debug("features: %v", err)
			return
		}
		l.peer = &f
		l.events.PeerFeatures(f)
	})
}

// replay sends one flushed entry. A failing entry goes back in the queue for
// the next flush.
func (l *Layer) replay(e queue.Entry) {
	switch e.Kind {
	case queue.KindChat:
		l.sendChat(e.Chat)
	case queue.KindReceipt:
		l.sendReceipt(e.Receipt)
	case queue.KindFile:
		l.startFile(e.File)
	}
}

// ---------------------------------------------------------------------------
// Outbound
// ---------------------------------------------------------------------------

// SendText sends a chat message, or queues it until the chat channel opens.
func (l *Layer) SendText(text string) protocol.ChatMessage {
	msg := protocol.ChatMessage{Text: text, Timestamp: l.clock.Next()}
	l.sendChat(msg)
	return msg
}

func (l *Layer) sendChat(msg protocol.ChatMessage) {
	if err := l.sendOnChat(msg); err != nil {
		l.log.Debug("queueing message %d: %v", msg.Timestamp, err)
		l.queue.Push(queue.ChatEntry(msg))
	}
}

func (l *Layer) sendReceipt(r protocol.Receipt) {
	if err := l.sendOnChat(r); err != nil {
		l.log.Debug("queueing receipt %d: %v", r.ID, err)
		l.queue.Push(queue.ReceiptEntry(r))
	}
}

func (l *Layer) sendOnChat(v any) error {
	if l.chat == nil {
		return rtc.ErrChannelNotOpen
	}
	text, err := protocol.Encode(v)
	if err != nil {
		return err
	}
	return l.chat.SendText(text)
}

// SendFile starts a transfer, or queues it when no connection is up. It
// reports whether the file was queued.
func (l *Layer) SendFile(f transfer.File) (queued bool) {
	if !l.connected || l.opener == nil {
		l.log.Debug("queueing %s until connected", f.Name)
		l.queue.Push(queue.FileEntry(f))
		return true
	}
	return !l.startFile(f)
}

// startFile runs the sender protocol on a new transfer channel. It queues f
// and returns false when the channel cannot be created.
func (l *Layer) startFile(f transfer.File) bool {
	if l.opener == nil {
		l.queue.Push(queue.FileEntry(f))
		return false
	}
	ch, err := l.opener.CreateChannel(rtc.PurposeTransfer, f.Name)
	if err != nil {
		l.log.Warning("create transfer channel for %s: %v", f.Name, err)
		l.queue.Push(queue.FileEntry(f))
		return false
	}

	var s *transfer.Sender
	s = transfer.Send(ch, f, l.clock.Next(), l.post, func(o transfer.Outcome) {
		delete(l.senders, s)
		if o.Err != nil {
			l.events.TransferFailed(o.Metadata.Name, o.Err)
			return
		}
		l.events.DeliveryConfirmed(o.Metadata.Timestamp, o.Delayed)
	})
	l.senders[s] = struct{}{}
	l.log.Debug("sending %s (%s) as %d", f.Name, util.FormatBytes(float64(f.Size())), s.Metadata().Timestamp)
	return true
}

// SendEffect asks the peer to apply a named effect. Effects are not queued.
func (l *Layer) SendEffect(name string) error {
	if !l.connected || l.opener == nil {
		return ErrNotConnected
	}
	if _, err := l.opener.CreateChannel(rtc.PurposeEffect, name); err != nil {
		return fmt.Errorf("create effect channel: %w", err)
	}
	return nil
}
