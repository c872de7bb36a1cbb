package messaging

import (
	"context"
	"fmt"
	"sync"

	"github.com/1ureka/duet/internal/protocol"
	"github.com/1ureka/duet/internal/transfer"
	rtc "github.com/1ureka/duet/internal/webrtc"
)

// fakeChannel is one end of an in-memory channel pair.
type fakeChannel struct {
	purpose rtc.Purpose
	name    string
	exec    rtc.Executor
	net     *fakeNet

	mu      sync.Mutex
	open    bool
	closed  bool
	peer    *fakeChannel
	onOpen  func()
	onClose func()
	onMsg   func(rtc.Message)
}

func (c *fakeChannel) Purpose() rtc.Purpose { return c.purpose }
func (c *fakeChannel) Name() string         { return c.name }

func (c *fakeChannel) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *fakeChannel) SendText(s string) error {
	return c.send(rtc.Message{Data: []byte(s), IsText: true})
}

func (c *fakeChannel) SendPaced(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.send(rtc.Message{Data: append([]byte(nil), data...)})
}

func (c *fakeChannel) send(m rtc.Message) error {
	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return rtc.ErrChannelNotOpen
	}
	peer := c.peer
	c.mu.Unlock()

	if m.IsText && c.purpose == rtc.PurposeChat {
		c.net.record(fmt.Sprintf("chat:%s", m.Data))
	}
	if peer != nil {
		peer.mu.Lock()
		fn := peer.onMsg
		peer.mu.Unlock()
		if fn != nil {
			peer.exec(func() { fn(m) })
		}
	}
	return nil
}

func (c *fakeChannel) OnOpen(fn func()) {
	c.mu.Lock()
	c.onOpen = fn
	open := c.open
	c.mu.Unlock()
	if open && fn != nil {
		c.exec(fn)
	}
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
	c.closed, c.open = true, false
	fn, peer := c.onClose, c.peer
	c.mu.Unlock()

	if fn != nil {
		c.exec(fn)
	}
	if peer != nil {
		peer.Close()
	}
	return nil
}

func (c *fakeChannel) fireOpen() {
	c.mu.Lock()
	if c.closed || c.open {
		c.mu.Unlock()
		return
	}
	c.open = true
	fn := c.onOpen
	c.mu.Unlock()
	if fn != nil {
		c.exec(fn)
	}
}

// fakeNet pairs the channels two layers create. Pre-negotiated channels are
// matched by purpose; the others are announced to the remote layer.
type fakeNet struct {
	mu       sync.Mutex
	exec     rtc.Executor
	layers   map[*fakeOpener]*Layer
	pending  map[rtc.Purpose]*fakeChannel
	channels []*fakeChannel
	autoOpen bool
	log      []string
}

func newFakeNet(exec rtc.Executor) *fakeNet {
	return &fakeNet{
		exec:    exec,
		layers:  make(map[*fakeOpener]*Layer),
		pending: make(map[rtc.Purpose]*fakeChannel),
	}
}

func (n *fakeNet) record(event string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.log = append(n.log, event)
}

func (n *fakeNet) events() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.log...)
}

// openAll opens every channel created so far.
func (n *fakeNet) openAll() {
	n.mu.Lock()
	channels := append([]*fakeChannel(nil), n.channels...)
	n.autoOpen = true
	n.mu.Unlock()
	for _, c := range channels {
		c.fireOpen()
	}
}

type fakeOpener struct {
	net    *fakeNet
	remote *fakeOpener
	fail   bool
}

// link connects two layers through n.
func (n *fakeNet) link(a, b *Layer) (*fakeOpener, *fakeOpener) {
	oa, ob := &fakeOpener{net: n}, &fakeOpener{net: n}
	oa.remote, ob.remote = ob, oa
	n.layers[oa], n.layers[ob] = a, b
	return oa, ob
}

func (o *fakeOpener) CreateChannel(purpose rtc.Purpose, name string) (Channel, error) {
	if o.fail {
		return nil, fmt.Errorf("create %s: %w", purpose, rtc.ErrChannelNotOpen)
	}
	n := o.net
	local := &fakeChannel{purpose: purpose, name: name, exec: n.exec, net: n}

	n.mu.Lock()
	n.channels = append(n.channels, local)
	autoOpen := n.autoOpen
	if _, negotiated := purpose.Negotiated(); negotiated {
		if other, ok := n.pending[purpose]; ok {
			delete(n.pending, purpose)
			local.peer, other.peer = other, local
		} else {
			n.pending[purpose] = local
		}
		n.mu.Unlock()
		if autoOpen && local.peer != nil {
			local.fireOpen()
			local.peer.fireOpen()
		}
		return local, nil
	}

	remote := &fakeChannel{purpose: purpose, name: name, exec: n.exec, net: n, peer: local}
	local.peer = remote
	n.channels = append(n.channels, remote)
	layer := n.layers[o.remote]
	n.mu.Unlock()

	n.record(fmt.Sprintf("open:%s", purpose.Label(name)))
	n.exec(func() {
		layer.OnChannel(remote)
		if autoOpen {
			remote.fireOpen()
			local.fireOpen()
		}
	})
	return local, nil
}

// recorder collects the events a layer surfaces.
type recorder struct {
	mu        sync.Mutex
	messages  []protocol.ChatMessage
	confirmed []int64
	files     []transfer.Artifact
	failed    []error
	effects   []string
	features  []protocol.Features
	notify    chan struct{}
}

func newRecorder() *recorder {
	return &recorder{notify: make(chan struct{}, 64)}
}

func (r *recorder) poke() {
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

func (r *recorder) MessageReceived(m protocol.ChatMessage) {
	r.mu.Lock()
	r.messages = append(r.messages, m)
	r.mu.Unlock()
	r.poke()
}

func (r *recorder) DeliveryConfirmed(id int64, _ bool) {
	r.mu.Lock()
	r.confirmed = append(r.confirmed, id)
	r.mu.Unlock()
	r.poke()
}

func (r *recorder) FileReceived(a transfer.Artifact) {
	r.mu.Lock()
	r.files = append(r.files, a)
	r.mu.Unlock()
	r.poke()
}

func (r *recorder) TransferFailed(_ string, err error) {
	r.mu.Lock()
	r.failed = append(r.failed, err)
	r.mu.Unlock()
	r.poke()
}

func (r *recorder) PeerEffect(name string) {
	r.mu.Lock()
	r.effects = append(r.effects, name)
	r.mu.Unlock()
	r.poke()
}

func (r *recorder) PeerFeatures(f protocol.Features) {
	r.mu.Lock()
	r.features = append(r.features, f)
	r.mu.Unlock()
	r.poke()
}
