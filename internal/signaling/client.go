package signaling

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/1ureka/duet/internal/protocol"
	"github.com/1ureka/duet/internal/util"
)

// Client is a room membership on a WebSocket relay.
type Client struct {
	sender    *sender
	done      chan struct{}
	err       error
	closing   atomic.Bool
	closeOnce sync.Once
}

// Dial joins the room at url, e.g. ws://relay.example:8080/ws/1234567, and
// starts delivering its events to h.
func Dial(ctx context.Context, url string, h Handler) (*Client, error) {
	conn, err := connect(ctx, url)
	if err != nil {
		return nil, err
	}
	util.LogDebug("relay connected: %s", url)

	c := &Client{
		sender: &sender{conn: conn},
		done:   make(chan struct{}),
	}
	r := &receiver{conn: conn, handler: h}
	go func() {
		if err := r.watch(); err != nil && !c.closing.Load() {
			c.err = err
		}
		conn.Close()
		close(c.done)
	}()
	return c, nil
}

// WebSocketConnector returns a Connector that dials url.
func WebSocketConnector(ctx context.Context, url string) Connector {
	return func(h Handler) (Conn, error) {
		return Dial(ctx, url, h)
	}
}

// Signal sends env to the other participants.
func (c *Client) Signal(env protocol.Envelope) error {
	return c.sender.send(Frame{Event: EventSignal, Data: &env})
}

// Done is closed when the relay connection ends.
func (c *Client) Done() <-chan struct{} { return c.done }

// Err returns why the connection ended. It is only valid after Done.
func (c *Client) Err() error { return c.err }

// Close leaves the room and waits for the read loop to end.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closing.Store(true)
		c.sender.close()
		c.sender.conn.Close()
	})
	<-c.done
	return nil
}
