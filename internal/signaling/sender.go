package signaling

import (
	"sync"

	"github.com/gorilla/websocket"
)

// sender serializes outgoing frames to the WebSocket (private).
type sender struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// send writes one frame to the WebSocket, guarded by a mutex.
func (s *sender) send(frame any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(frame)
}

// close sends a normal closure frame. Errors are ignored since the
// connection is going away anyway.
func (s *sender) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
