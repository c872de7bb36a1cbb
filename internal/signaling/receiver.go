package signaling

import (
	"errors"
	"fmt"

	"github.com/gorilla/websocket"
)

// receiver reads frames from the WebSocket and dispatches them (private).
type receiver struct {
	conn    *websocket.Conn
	handler Handler
}

// watch is the read loop. It returns nil when the relay closed the
// connection normally.
func (r *receiver) watch() error {
	for {
		var frame Frame
		if err := r.conn.ReadJSON(&frame); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
				errors.Is(err, websocket.ErrCloseSent) {
				return nil
			}
			return fmt.Errorf("read relay frame: %w", err)
		}
		dispatch(r.handler, frame)
	}
}
