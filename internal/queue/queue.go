// Package queue holds the sends that could not go out while the chat
// channel was closed.
package queue

import (
	"sync"

	"github.com/1ureka/duet/internal/protocol"
	"github.com/1ureka/duet/internal/transfer"
)

// Kind tags the variant carried by an Entry.
type Kind int

const (
	KindChat Kind = iota
	KindReceipt
	KindFile
)

func (k Kind) String() string {
	switch k {
	case KindChat:
		return "chat"
	case KindReceipt:
		return "receipt"
	case KindFile:
		return "file"
	default:
		return "unknown"
	}
}

// Entry is one deferred send. Only the field matching Kind is set.
type Entry struct {
	Kind    Kind
	Chat    protocol.ChatMessage
	Receipt protocol.Receipt
	File    transfer.File
}

// ChatEntry defers a chat message.
func ChatEntry(m protocol.ChatMessage) Entry { return Entry{Kind: KindChat, Chat: m} }

// ReceiptEntry defers a receipt.
func ReceiptEntry(r protocol.Receipt) Entry { return Entry{Kind: KindReceipt, Receipt: r} }

// FileEntry defers a whole file transfer; it is sent again from the start.
func FileEntry(f transfer.File) Entry { return Entry{Kind: KindFile, File: f} }

// Queue is an in-memory FIFO of entries, shared by every kind of send.
type Queue struct {
	mu      sync.Mutex
	entries []Entry
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{}
}

// Push appends e.
func (q *Queue) Push(e Entry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, e)
}

// Len returns the number of waiting entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Flush hands each entry waiting at the time of the call to fn, in order,
// and removes them. Entries pushed while flushing, including by fn itself,
// wait for the next flush. It returns the number of entries flushed.
func (q *Queue) Flush(fn func(Entry)) int {
	q.mu.Lock()
	entries := q.entries
	q.entries = nil
	q.mu.Unlock()

	for _, e := range entries {
		fn(e)
	}
	return len(entries)
}
