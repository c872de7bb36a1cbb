package protocol

import (
	"encoding/json"
	"fmt"
)

// ChatMessage is a text frame on the chat channel.
type ChatMessage struct {
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// Receipt acknowledges a chat message or a file transfer. ID is the
// timestamp of the acknowledged item; Timestamp is when it was received.
type Receipt struct {
	ID        int64 `json:"id"`
	Timestamp int64 `json:"timestamp"`
}

// DelayThreshold is the receipt latency, in milliseconds, above which a
// delivery is reported as delayed.
const DelayThreshold = 1000

// Delayed reports whether the item took more than DelayThreshold to arrive.
func (r Receipt) Delayed() bool {
	return r.Timestamp-r.ID > DelayThreshold
}

// NewReceipt acknowledges the item identified by id at time now.
func NewReceipt(id, now int64) Receipt {
	return Receipt{ID: id, Timestamp: now}
}

// FileMetadata is the first frame of every transfer channel. Timestamp is
// the transfer's correlation id.
type FileMetadata struct {
	Name      string `json:"name"`
	Size      int64  `json:"size"`
	Timestamp int64  `json:"timestamp"`
	MimeType  string `json:"type"`
}

// Features is the one-shot capability frame sent when the features channel opens.
type Features struct {
	BinaryType string `json:"binaryType"`
	ChunkSize  int    `json:"chunkSize"`
	Agent      string `json:"agent,omitempty"`
}

// ChatFrame is a decoded chat channel frame: exactly one of Message or Receipt.
type ChatFrame struct {
	Message *ChatMessage
	Receipt *Receipt
}

// chatWire is the union of both chat frame shapes. A frame carrying an id is
// a receipt.
type chatWire struct {
	ID        *int64 `json:"id"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// DecodeChatFrame parses one chat channel frame.
func DecodeChatFrame(data []byte) (ChatFrame, error) {
	var w chatWire
	if err := json.Unmarshal(data, &w); err != nil {
		return ChatFrame{}, fmt.Errorf("decode chat frame: %w", err)
	}
	if w.ID != nil && *w.ID != 0 {
		return ChatFrame{Receipt: &Receipt{ID: *w.ID, Timestamp: w.Timestamp}}, nil
	}
	return ChatFrame{Message: &ChatMessage{Text: w.Text, Timestamp: w.Timestamp}}, nil
}

// DecodeMetadata parses a transfer metadata frame.
func DecodeMetadata(data []byte) (FileMetadata, error) {
	var m FileMetadata
	if err := json.Unmarshal(data, &m); err != nil {
		return FileMetadata{}, fmt.Errorf("decode metadata: %w", err)
	}
	if m.Size < 0 {
		return FileMetadata{}, fmt.Errorf("decode metadata: negative size %d", m.Size)
	}
	return m, nil
}

// DecodeReceipt parses a receipt frame.
func DecodeReceipt(data []byte) (Receipt, error) {
	var r Receipt
	if err := json.Unmarshal(data, &r); err != nil {
		return Receipt{}, fmt.Errorf("decode receipt: %w", err)
	}
	return r, nil
}

// DecodeFeatures parses a features frame.
func DecodeFeatures(data []byte) (Features, error) {
	var f Features
	if err := json.Unmarshal(data, &f); err != nil {
		return Features{}, fmt.Errorf("decode features: %w", err)
	}
	return f, nil
}

// Encode serializes any frame for transmission as a text message.
func Encode(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
