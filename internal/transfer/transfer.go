// Package transfer implements the file transfer protocol of a transfer
// channel: one metadata text frame, the payload in fixed-size binary frames,
// and one receipt sent back by the receiver.
package transfer

import (
	"context"
	"errors"

	rtc "github.com/1ureka/duet/internal/webrtc"
)

var (
	// ErrOverflow is returned when the frames exceed the declared size.
	ErrOverflow = errors.New("transfer exceeds declared size")
	// ErrNoMetadata is returned when the first frame is not a metadata frame.
	ErrNoMetadata = errors.New("transfer did not start with metadata")
	// ErrIncomplete is returned when the channel closes mid-transfer.
	ErrIncomplete = errors.New("channel closed before the transfer completed")
)

// MaxSize is the largest declared size a receiver accepts.
const MaxSize int64 = 4 << 30

// Channel is the subset of a data channel the codec drives.
type Channel interface {
	Name() string
	IsOpen() bool
	SendText(string) error
	SendPaced(context.Context, []byte) error
	OnOpen(func())
	OnClose(func())
	OnMessage(func(rtc.Message))
	Close() error
}

// File is an outgoing payload. It is kept whole so that a queued transfer
// can be sent again from the start.
type File struct {
	Name     string
	MimeType string
	Payload  []byte
}

// Size returns the payload length.
func (f File) Size() int64 { return int64(len(f.Payload)) }
