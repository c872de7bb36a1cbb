package signaling

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/1ureka/duet/internal/config"
	"github.com/1ureka/duet/internal/util"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// participant is one WebSocket in a room.
type participant struct {
	id     uuid.UUID
	room   string
	sender *sender
}

// Server is the WebSocket relay. Each room is a broadcast group: whatever a
// participant signals goes to every other participant of the same room.
type Server struct {
	log util.Scoped

	mu    sync.Mutex
	rooms map[string]map[*participant]struct{}
}

// NewServer creates a relay with no rooms.
func NewServer() *Server {
	return &Server{
		log:   util.Scoped("relay"),
		rooms: make(map[string]map[*participant]struct{}),
	}
}

// Handler returns the relay's HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/{room}", s.handleWS)
	return mux
}

// ListenAndServe serves the relay on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start relay: %w", err)
	}
	return s.Serve(ctx, listener)
}

// Serve serves the relay on listener until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: handshakeTimeout}
	s.log.Info("listening on %s", listener.Addr())

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Occupants returns the number of participants in room.
func (s *Server) Occupants(room string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms[room])
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	room := r.PathValue("room")
	if !config.ValidRoom(room) {
		http.NotFound(w, r)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	p := &participant{id: uuid.New(), room: room, sender: &sender{conn: conn}}
	s.join(p)
	defer s.leave(p)

	for {
		var frame relayFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("%s: %v", p.id, err)
			}
			return
		}
		if frame.Event != EventSignal {
			s.log.Debug("%s: ignoring %q frame", p.id, frame.Event)
			continue
		}
		s.broadcast(p, frame)
	}
}

// join adds p to its room and tells the occupants already there.
func (s *Server) join(p *participant) {
	s.mu.Lock()
	occupants := s.rooms[p.room]
	if occupants == nil {
		occupants = make(map[*participant]struct{})
		s.rooms[p.room] = occupants
	}
	others := s.othersLocked(p)
	occupants[p] = struct{}{}
	s.mu.Unlock()

	s.log.Info("room %s: %s joined (%d present)", p.room, p.id, len(others)+1)
	for _, o := range others {
		s.deliver(o, relayFrame{Event: EventConnectedPeer})
	}
}

// leave removes p and tells the remaining occupants.
func (s *Server) leave(p *participant) {
	s.mu.Lock()
	occupants := s.rooms[p.room]
	delete(occupants, p)
	if len(occupants) == 0 {
		delete(s.rooms, p.room)
	}
	others := s.othersLocked(p)
	s.mu.Unlock()

	s.log.Info("room %s: %s left (%d present)", p.room, p.id, len(others))
	for _, o := range others {
		s.deliver(o, relayFrame{Event: EventDisconnectedPeer})
	}
}

func (s *Server) broadcast(from *participant, frame relayFrame) {
	s.mu.Lock()
	others := s.othersLocked(from)
	s.mu.Unlock()

	for _, o := range others {
		s.deliver(o, frame)
	}
}

func (s *Server) othersLocked(p *participant) []*participant {
	var others []*participant
	for o := range s.rooms[p.room] {
		if o != p {
			others = append(others, o)
		}
	}
	return others
}

func (s *Server) deliver(to *participant, frame relayFrame) {
	if err := to.sender.send(frame); err != nil {
		s.log.Debug("%s: send %q: %v", to.id, frame.Event, err)
	}
}
