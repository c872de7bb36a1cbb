package transfer

import (
	"context"
	"fmt"
	"sync"

	"github.com/1ureka/duet/internal/protocol"
	"github.com/1ureka/duet/internal/util"
	rtc "github.com/1ureka/duet/internal/webrtc"
)

// Outcome is the end of one outgoing transfer. Err is nil once the peer
// confirmed delivery.
type Outcome struct {
	Metadata protocol.FileMetadata
	Delayed  bool
	Err      error
}

// Sender drives one outgoing transfer channel. Channel events and the
// outcome callback run on the owner's loop; the payload frames are written
// by a dedicated goroutine so the loop never blocks on backpressure.
type Sender struct {
	ch       Channel
	meta     protocol.FileMetadata
	frames   [][]byte
	post     rtc.Executor
	onResult func(Outcome)
	log      util.Scoped

	ctx        context.Context
	cancel     context.CancelFunc
	openSignal chan struct{}
	openOnce   sync.Once

	finished bool // loop only
}

// Send starts the transfer of f on ch, identified by id. post schedules
// work on the owner's loop; onResult is called exactly once, on the loop.
func Send(ch Channel, f File, id int64, post rtc.Executor, onResult func(Outcome)) *Sender {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Sender{
		ch: ch,
		meta: protocol.FileMetadata{
			Name:      f.Name,
			Size:      f.Size(),
			Timestamp: id,
			MimeType:  f.MimeType,
		},
		frames:     protocol.Chunk(f.Payload),
		post:       post,
		onResult:   onResult,
		log:        util.Scoped("send " + f.Name),
		ctx:        ctx,
		cancel:     cancel,
		openSignal: make(chan struct{}),
	}

	ch.OnOpen(s.handleOpen)
	ch.OnMessage(s.handleMessage)
	ch.OnClose(s.handleClose)
	go s.pump()

	return s
}

// Metadata returns the frame announced to the peer.
func (s *Sender) Metadata() protocol.FileMetadata { return s.meta }

// Abandon ends the transfer with err unless it already finished.
func (s *Sender) Abandon(err error) { s.fail(err) }

func (s *Sender) handleOpen() {
	if s.finished {
		return
	}
	text, err := protocol.Encode(s.meta)
	if err == nil {
		err = s.ch.SendText(text)
	}
	if err != nil {
		s.fail(fmt.Errorf("send metadata: %w", err))
		return
	}
	s.log.Debug("metadata sent, %d frames to go", len(s.frames))
	s.openOnce.Do(func() { close(s.openSignal) })
}

// pump is the single writer of binary frames. It waits for the metadata
// frame to be out, then writes every frame with backpressure.
func (s *Sender) pump() {
	// Phase 1: wait for the metadata frame.
	select {
	case <-s.openSignal:
	case <-s.ctx.Done():
		return
	}

	// Phase 2: payload frames.
	for i, frame := range s.frames {
		if err := s.ch.SendPaced(s.ctx, frame); err != nil {
			// A closed channel is reported by its close event.
			if s.ctx.Err() != nil || !s.ch.IsOpen() {
				return
			}
			s.post(func() { s.fail(fmt.Errorf("send frame %d/%d: %w", i+1, len(s.frames), err)) })
			return
		}
	}
	s.log.Debug("all frames written, awaiting receipt")
}

func (s *Sender) handleMessage(m rtc.Message) {
	if s.finished || !m.IsText {
		return
	}
	r, err := protocol.DecodeReceipt(m.Data)
	if err != nil {
		s.log.Debug("ignoring frame: %v", err)
		return
	}
	if r.ID != s.meta.Timestamp {
		s.log.Debug("ignoring receipt for %d", r.ID)
		return
	}

	s.finished = true
	s.cancel()
	if err := s.ch.Close(); err != nil {
		s.log.Debug("close: %v", err)
	}
	util.Stats.TransferDone()
	s.onResult(Outcome{Metadata: s.meta, Delayed: r.Delayed()})
}

func (s *Sender) handleClose() {
	s.fail(ErrIncomplete)
}

func (s *Sender) fail(err error) {
	if s.finished {
		return
	}
	s.finished = true
	s.cancel()
	if cerr := s.ch.Close(); cerr != nil {
		s.log.Debug("close: %v", cerr)
	}
	util.Stats.TransferFailed()
	s.log.Warning("transfer failed: %v", err)
	s.onResult(Outcome{Metadata: s.meta, Err: err})
}
