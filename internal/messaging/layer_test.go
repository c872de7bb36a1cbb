package messaging

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/1ureka/duet/internal/protocol"
	"github.com/1ureka/duet/internal/queue"
	"github.com/1ureka/duet/internal/transfer"
	"github.com/1ureka/duet/internal/util"
)

const waitTimeout = 5 * time.Second

type pair struct {
	loop   *util.Loop
	net    *fakeNet
	a, b   *Layer
	ea, eb *recorder
	qa, qb *queue.Queue
	oa, ob *fakeOpener
}

func newPair(t *testing.T) *pair {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	p := &pair{loop: util.NewLoop(), ea: newRecorder(), eb: newRecorder(), qa: queue.New(), qb: queue.New()}
	go p.loop.Run(ctx)
	p.net = newFakeNet(p.loop.Post)

	clock := protocol.NewClock()
	p.a = New(Options{Post: p.loop.Post, Clock: clock, Queue: p.qa, Events: p.ea, Agent: "a"})
	p.b = New(Options{Post: p.loop.Post, Clock: clock, Queue: p.qb, Events: p.eb, Agent: "b"})
	p.oa, p.ob = p.net.link(p.a, p.b)

	p.call(t, func() {
		if err := p.a.Attach(p.oa); err != nil {
			t.Error(err)
		}
		if err := p.b.Attach(p.ob); err != nil {
			t.Error(err)
		}
	})
	return p
}

func (p *pair) call(t *testing.T, fn func()) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	if err := p.loop.Call(ctx, fn); err != nil {
		t.Fatal(err)
	}
}

func (p *pair) connect(t *testing.T) {
	p.call(t, func() {
		p.a.SetConnected(true)
		p.b.SetConnected(true)
	})
	p.net.openAll()
}

func waitFor(t *testing.T, r *recorder, cond func() bool) {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		r.mu.Lock()
		ok := cond()
		r.mu.Unlock()
		if ok {
			return
		}
		select {
		case <-r.notify:
		case <-time.After(5 * time.Millisecond):
		case <-deadline:
			t.Fatal("condition not met in time")
		}
	}
}

func TestChatAndReceipt(t *testing.T) {
	p := newPair(t)
	p.connect(t)

	var sent protocol.ChatMessage
	p.call(t, func() { sent = p.a.SendText("hello") })

	waitFor(t, p.eb, func() bool { return len(p.eb.messages) == 1 })
	if got := p.eb.messages[0]; got != sent {
		t.Fatalf("received %+v, want %+v", got, sent)
	}

	waitFor(t, p.ea, func() bool { return len(p.ea.confirmed) == 1 })
	if got := p.ea.confirmed[0]; got != sent.Timestamp {
		t.Fatalf("confirmed id %d, want %d", got, sent.Timestamp)
	}
}

func TestFeaturesExchange(t *testing.T) {
	p := newPair(t)
	p.connect(t)

	waitFor(t, p.ea, func() bool { return len(p.ea.features) == 1 })
	waitFor(t, p.eb, func() bool { return len(p.eb.features) == 1 })

	if got := p.ea.features[0]; got.Agent != "b" || got.ChunkSize != protocol.ChunkSize {
		t.Errorf("a saw features %+v", got)
	}
	p.call(t, func() {
		if f, ok := p.b.PeerFeatures(); !ok || f.Agent != "a" {
			t.Errorf("b stored features %+v, %v", f, ok)
		}
	})
}

func TestQueuedSendsFlushInOrder(t *testing.T) {
	p := newPair(t)
	payload := bytes.Repeat([]byte("duet"), 5000)

	p.call(t, func() {
		p.a.SendText("A")
		if queued := p.a.SendFile(transfer.File{Name: "B", MimeType: "text/plain", Payload: payload}); !queued {
			t.Error("file sent while disconnected")
		}
		p.a.SendText("C")
		if n := p.qa.Len(); n != 3 {
			t.Errorf("queue length = %d, want 3", n)
		}
	})

	p.connect(t)

	waitFor(t, p.eb, func() bool { return len(p.eb.messages) == 2 && len(p.eb.files) == 1 })
	waitFor(t, p.ea, func() bool { return len(p.ea.confirmed) == 3 })

	if got := []string{p.eb.messages[0].Text, p.eb.messages[1].Text}; got[0] != "A" || got[1] != "C" {
		t.Fatalf("messages arrived as %v, want [A C]", got)
	}
	if !bytes.Equal(p.eb.files[0].Data, payload) {
		t.Fatal("file payload mismatch")
	}

	pos := func(substr string) int {
		for i, e := range p.net.events() {
			if strings.Contains(e, substr) {
				return i
			}
		}
		t.Fatalf("no %q in %v", substr, p.net.events())
		return -1
	}
	if a, b, c := pos(`"text":"A"`), pos("open:image-B"), pos(`"text":"C"`); !(a < b && b < c) {
		t.Fatalf("flush order: A@%d B@%d C@%d", a, b, c)
	}

	p.call(t, func() {
		if n := p.qa.Len(); n != 0 {
			t.Errorf("queue length after flush = %d, want 0", n)
		}
	})
}

func TestEffects(t *testing.T) {
	p := newPair(t)

	p.call(t, func() {
		if err := p.a.SendEffect("sparkle"); !errors.Is(err, ErrNotConnected) {
			t.Errorf("SendEffect while disconnected: %v", err)
		}
	})

	p.connect(t)
	p.call(t, func() {
		if err := p.a.SendEffect("sparkle"); err != nil {
			t.Error(err)
		}
	})

	waitFor(t, p.eb, func() bool { return len(p.eb.effects) == 1 })
	if p.eb.effects[0] != "sparkle" {
		t.Fatalf("effect = %q", p.eb.effects[0])
	}
}

func TestDetachAbandonsTransfers(t *testing.T) {
	p := newPair(t)
	p.call(t, func() {
		p.a.SetConnected(true)
		p.a.SendFile(transfer.File{Name: "slow.bin", Payload: make([]byte, 10)})
	})
	// Let the remote side see the announced channel.
	p.call(t, func() {})
	p.call(t, func() {
		if p.a.Transfers() != 1 || p.b.Transfers() != 1 {
			t.Errorf("transfers in flight: a=%d b=%d, want 1 and 1", p.a.Transfers(), p.b.Transfers())
		}
		p.a.Detach()
		p.b.Detach()
	})

	waitFor(t, p.ea, func() bool { return len(p.ea.failed) == 1 })
	waitFor(t, p.eb, func() bool { return len(p.eb.failed) == 1 })
	if !errors.Is(p.ea.failed[0], ErrDetached) || !errors.Is(p.eb.failed[0], ErrDetached) {
		t.Fatalf("failures: %v, %v", p.ea.failed[0], p.eb.failed[0])
	}
	p.call(t, func() {
		if p.a.Transfers() != 0 || p.b.Transfers() != 0 {
			t.Errorf("transfers left after detach: a=%d b=%d", p.a.Transfers(), p.b.Transfers())
		}
	})
}

func TestFileQueuedWhenChannelCannotOpen(t *testing.T) {
	p := newPair(t)
	p.oa.fail = true

	p.call(t, func() {
		p.a.SetConnected(true)
		if queued := p.a.SendFile(transfer.File{Name: "x"}); !queued {
			t.Error("file not queued after channel creation failed")
		}
		if n := p.qa.Len(); n != 1 {
			t.Errorf("queue length = %d, want 1", n)
		}
	})
}
