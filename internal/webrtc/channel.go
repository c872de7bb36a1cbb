package webrtc

import (
	"context"
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/duet/internal/util"
)

const (
	HighWaterMark = 256 * 1024 // pause sending when bufferedAmount exceeds this
	LowWaterMark  = 64 * 1024  // resume sending when bufferedAmount drops below this
)

// ErrChannelNotOpen is returned by every send on a channel that is not open.
// Sends are never retried.
var ErrChannelNotOpen = errors.New("data channel is not open")

// Message is one inbound data channel frame.
type Message struct {
	Data   []byte
	IsText bool
}

// Executor schedules a callback on the owner's thread of control. Channel
// events are always delivered through it. An Executor must queue fn and
// return without running it.
type Executor func(func())

// Channel wraps a pion DataChannel with its purpose, backpressure control and
// serialized event delivery.
//
// Inbound channels get their handlers registered on the owner's thread after
// pion may already have opened them or delivered frames. Events that happen
// before a handler exists are kept and replayed, in order, on registration.
type Channel struct {
	raw     *webrtc.DataChannel
	purpose Purpose
	name    string
	exec    Executor

	sendReady chan struct{}
	closed    chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	opened   bool
	isClosed bool
	pending  []Message
	onOpen   func()
	onClose  func()
	onMsg    func(Message)
}

// Wrap installs the wrapper's callbacks on raw. From then on, handlers must be
// registered through the wrapper.
func Wrap(raw *webrtc.DataChannel, exec Executor) *Channel {
	purpose, name := ParseLabel(raw.Label())
	c := &Channel{
		raw:       raw,
		purpose:   purpose,
		name:      name,
		exec:      exec,
		sendReady: make(chan struct{}, 1),
		closed:    make(chan struct{}),
	}

	raw.SetBufferedAmountLowThreshold(uint64(LowWaterMark))
	raw.OnBufferedAmountLow(func() {
		select {
		case c.sendReady <- struct{}{}:
		default:
		}
	})

	raw.OnOpen(func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.opened = true
		if c.onOpen != nil {
			c.exec(c.onOpen)
		}
	})

	raw.OnClose(func() {
		c.closeOnce.Do(func() { close(c.closed) })
		c.mu.Lock()
		defer c.mu.Unlock()
		c.isClosed = true
		if c.onClose != nil {
			c.exec(c.onClose)
		}
	})

	raw.OnMessage(func(msg webrtc.DataChannelMessage) {
		util.Stats.AddRecv(len(msg.Data))
		m := Message{Data: msg.Data, IsText: msg.IsString}

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.onMsg == nil {
			c.pending = append(c.pending, m)
			return
		}
		fn := c.onMsg
		c.exec(func() { fn(m) })
	})

	return c
}

// Purpose returns the channel kind decoded from its label.
func (c *Channel) Purpose() Purpose { return c.purpose }

// Name returns the label part after the purpose prefix.
func (c *Channel) Name() string { return c.name }

// Label returns the wire label.
func (c *Channel) Label() string { return c.raw.Label() }

// Negotiated reports whether the channel was pre-negotiated on a fixed id.
func (c *Channel) Negotiated() bool { return c.raw.Negotiated() }

// ID returns the SCTP stream id, or 0 before it is assigned.
func (c *Channel) ID() uint16 {
	if id := c.raw.ID(); id != nil {
		return *id
	}
	return 0
}

// IsOpen reports whether sends can currently succeed.
func (c *Channel) IsOpen() bool {
	return c.raw.ReadyState() == webrtc.DataChannelStateOpen
}

// SendText sends one text frame.
func (c *Channel) SendText(s string) error {
	if !c.IsOpen() {
		return ErrChannelNotOpen
	}
	if err := c.raw.SendText(s); err != nil {
		return err
	}
	util.Stats.AddSent(len(s))
	return nil
}

// Send sends one binary frame.
func (c *Channel) Send(data []byte) error {
	if !c.IsOpen() {
		return ErrChannelNotOpen
	}
	if err := c.raw.Send(data); err != nil {
		return err
	}
	util.Stats.AddSent(len(data))
	return nil
}

// SendPaced sends one binary frame, first blocking while the buffered amount
// is above HighWaterMark until it drains, the channel closes or ctx is done.
func (c *Channel) SendPaced(ctx context.Context, data []byte) error {
	if err := waitDrained(ctx, c.raw.BufferedAmount, c.sendReady, c.closed); err != nil {
		return err
	}
	return c.Send(data)
}

// waitDrained blocks until buffered() is at most HighWaterMark. A wakeup on
// ready only prompts a re-check: the token may predate the current backlog.
func waitDrained(ctx context.Context, buffered func() uint64, ready, closed <-chan struct{}) error {
	for buffered() > uint64(HighWaterMark) {
		select {
		case <-ready:
		case <-closed:
			return ErrChannelNotOpen
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// OnOpen / OnClose / OnMessage register the single handler of each event.
// Handlers run through the wrapper's Executor. Registering after the event
// already happened delivers it immediately.
func (c *Channel) OnOpen(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onOpen = fn
	if c.opened && fn != nil {
		c.exec(fn)
	}
}

func (c *Channel) OnClose(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClose = fn
	if c.isClosed && fn != nil {
		c.exec(fn)
	}
}

func (c *Channel) OnMessage(fn func(Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMsg = fn
	if fn == nil {
		return
	}
	for _, m := range c.pending {
		c.exec(func() { fn(m) })
	}
	c.pending = nil
}

// Close closes the underlying data channel.
func (c *Channel) Close() error { return c.raw.Close() }
