package transfer

import (
	"context"
	"sync"

	rtc "github.com/1ureka/duet/internal/webrtc"
)

// fakeChannel is an in-memory data channel. Frames sent on one end of a pipe
// are delivered to the other end through its executor.
type fakeChannel struct {
	name string
	exec rtc.Executor

	mu      sync.Mutex
	open    bool
	closed  bool
	peer    *fakeChannel
	texts   []string
	frames  [][]byte
	sendErr error
	onOpen  func()
	onClose func()
	onMsg   func(rtc.Message)
}

func newFakeChannel(name string, exec rtc.Executor) *fakeChannel {
	return &fakeChannel{name: name, exec: exec}
}

// pipe returns two connected channels.
func pipe(name string, exec rtc.Executor) (*fakeChannel, *fakeChannel) {
	a, b := newFakeChannel(name, exec), newFakeChannel(name, exec)
	a.peer, b.peer = b, a
	return a, b
}

func (c *fakeChannel) Name() string { return c.name }

func (c *fakeChannel) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *fakeChannel) SendText(s string) error {
	c.mu.Lock()
	if err := c.sendable(); err != nil {
		c.mu.Unlock()
		return err
	}
	c.texts = append(c.texts, s)
	peer := c.peer
	c.mu.Unlock()

	if peer != nil {
		peer.deliver(rtc.Message{Data: []byte(s), IsText: true})
	}
	return nil
}

func (c *fakeChannel) SendPaced(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	if err := c.sendable(); err != nil {
		c.mu.Unlock()
		return err
	}
	frame := append([]byte(nil), data...)
	c.frames = append(c.frames, frame)
	peer := c.peer
	c.mu.Unlock()

	if peer != nil {
		peer.deliver(rtc.Message{Data: frame})
	}
	return nil
}

func (c *fakeChannel) sendable() error {
	if c.sendErr != nil {
		return c.sendErr
	}
	if !c.open {
		return rtc.ErrChannelNotOpen
	}
	return nil
}

func (c *fakeChannel) OnOpen(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onOpen = fn
}

func (c *fakeChannel) OnClose(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClose = fn
}

func (c *fakeChannel) OnMessage(fn func(rtc.Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMsg = fn
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.open = false
	fn, peer := c.onClose, c.peer
	c.mu.Unlock()

	if fn != nil {
		c.exec(fn)
	}
	if peer != nil {
		return peer.Close()
	}
	return nil
}

// fireOpen marks the channel open and delivers the open event.
func (c *fakeChannel) fireOpen() {
	c.mu.Lock()
	c.open = true
	fn := c.onOpen
	c.mu.Unlock()
	if fn != nil {
		c.exec(fn)
	}
}

func (c *fakeChannel) deliver(m rtc.Message) {
	c.mu.Lock()
	fn := c.onMsg
	c.mu.Unlock()
	if fn != nil {
		c.exec(func() { fn(m) })
	}
}

func (c *fakeChannel) sentTexts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.texts...)
}

func (c *fakeChannel) sentFrames() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}
