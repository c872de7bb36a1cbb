package transfer

import (
	"bytes"
	"fmt"

	"github.com/1ureka/duet/internal/protocol"
	"github.com/1ureka/duet/internal/util"
	rtc "github.com/1ureka/duet/internal/webrtc"
)

// maxPreallocFrames bounds the frame list reserved up front.
const maxPreallocFrames = 1024

// Artifact is a completed inbound file.
type Artifact struct {
	Metadata protocol.FileMetadata
	Data     []byte
}

// ReceiveHooks are the outcomes of an inbound transfer, called on the loop.
type ReceiveHooks struct {
	OnFile func(Artifact)
	// OnFailed receives the channel name since the metadata may be missing.
	OnFailed func(name string, err error)
	// OnAckFailed receives a receipt that could not be sent, for a later retry
	// on another channel.
	OnAckFailed func(protocol.Receipt)
}

// Receiver reassembles one inbound transfer channel. It is driven entirely
// by channel events on the owner's loop.
type Receiver struct {
	ch    Channel
	clock *protocol.Clock
	hooks ReceiveHooks
	log   util.Scoped

	meta     *protocol.FileMetadata
	frames   [][]byte
	received int64
	finished bool
}

// Receive starts reassembling ch.
func Receive(ch Channel, clock *protocol.Clock, hooks ReceiveHooks) *Receiver {
	r := &Receiver{
		ch:    ch,
		clock: clock,
		hooks: hooks,
		log:   util.Scoped("recv " + ch.Name()),
	}
	ch.OnMessage(r.handleMessage)
	ch.OnClose(r.handleClose)
	return r
}

// Received returns the bytes accumulated so far.
func (r *Receiver) Received() int64 { return r.received }

// Abandon drops the partial state unless the transfer already finished.
func (r *Receiver) Abandon(err error) { r.fail(err) }

func (r *Receiver) handleMessage(m rtc.Message) {
	if r.finished {
		return
	}

	if r.meta == nil {
		if !m.IsText {
			r.fail(ErrNoMetadata)
			return
		}
		meta, err := protocol.DecodeMetadata(m.Data)
		if err != nil {
			r.fail(fmt.Errorf("%w: %v", ErrNoMetadata, err))
			return
		}
		if meta.Size > MaxSize {
			r.fail(fmt.Errorf("%w: %d bytes declared, limit is %d", ErrOverflow, meta.Size, MaxSize))
			return
		}
		r.meta = &meta
		// The declared size is the peer's claim; grow the frame list as data arrives.
		r.frames = make([][]byte, 0, min(protocol.FrameCount(meta.Size), maxPreallocFrames))
		r.log.Debug("expecting %s in %d frames", util.FormatBytes(float64(meta.Size)), protocol.FrameCount(meta.Size))
		if meta.Size == 0 {
			r.complete()
		}
		return
	}

	if m.IsText {
		r.log.Debug("ignoring text frame during transfer")
		return
	}
	if r.received+int64(len(m.Data)) > r.meta.Size {
		r.fail(fmt.Errorf("%w: %d bytes declared", ErrOverflow, r.meta.Size))
		return
	}
	r.frames = append(r.frames, m.Data)
	r.received += int64(len(m.Data))
	if r.received == r.meta.Size {
		r.complete()
	}
}

func (r *Receiver) complete() {
	r.finished = true
	artifact := Artifact{Metadata: *r.meta, Data: bytes.Join(r.frames, nil)}
	r.frames = nil
	util.Stats.TransferDone()
	r.hooks.OnFile(artifact)

	receipt := protocol.NewReceipt(r.meta.Timestamp, r.clock.Now())
	text, err := protocol.Encode(receipt)
	if err == nil {
		err = r.ch.SendText(text)
	}
	if err != nil {
		r.log.Debug("receipt not sent, queueing: %v", err)
		if r.hooks.OnAckFailed != nil {
			r.hooks.OnAckFailed(receipt)
		}
	}
}

func (r *Receiver) handleClose() {
	r.fail(ErrIncomplete)
}

func (r *Receiver) fail(err error) {
	if r.finished {
		return
	}
	r.finished = true
	r.frames = nil
	if cerr := r.ch.Close(); cerr != nil {
		r.log.Debug("close: %v", cerr)
	}
	util.Stats.TransferFailed()
	r.log.Warning("transfer failed after %s: %v", util.FormatBytes(float64(r.received)), err)
	if r.hooks.OnFailed != nil {
		r.hooks.OnFailed(r.ch.Name(), err)
	}
}
