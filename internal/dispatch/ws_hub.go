package dispatch

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var ErrNoSession = errors.New("dispatch: no live session")

const writeWait = 5 * time.Second

// wsSession is one connected panel client.
type wsSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *wsSession) send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(v)
}

// Hub fans applied notifications out to every panel client connected to
// the live feed. A client whose write fails is dropped.
type Hub struct {
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*wsSession
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{logger: logger.With("component", "live_feed"), sessions: make(map[string]*wsSession)}
}

// Add registers conn and returns its session id. The hub owns conn from
// here on: it is closed when the client goes away or on Close.
func (h *Hub) Add(conn *websocket.Conn) string {
	id := uuid.NewString()
	h.mu.Lock()
	h.sessions[id] = &wsSession{conn: conn}
	h.mu.Unlock()

	// Clients never send; reading only surfaces the close.
	conn.SetReadLimit(1024)
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				h.Remove(id)
				return
			}
		}
	}()
	return id
}

func (h *Hub) Remove(id string) {
	h.mu.Lock()
	s, ok := h.sessions[id]
	delete(h.sessions, id)
	h.mu.Unlock()
	if ok {
		_ = s.conn.Close()
	}
}

// Send writes v to one session.
func (h *Hub) Send(id string, v any) error {
	h.mu.RLock()
	s, ok := h.sessions[id]
	h.mu.RUnlock()
	if !ok {
		return ErrNoSession
	}
	if err := s.send(v); err != nil {
		h.logger.Debug("ws send error", "session", id, "error", err)
		h.Remove(id)
		return err
	}
	return nil
}

// Broadcast writes v to every session and returns how many received it.
func (h *Hub) Broadcast(v any) int {
	h.mu.RLock()
	ids := make([]string, 0, len(h.sessions))
	for id := range h.sessions {
		ids = append(ids, id)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, id := range ids {
		if h.Send(id, v) == nil {
			delivered++
		}
	}
	return delivered
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	sessions := h.sessions
	h.sessions = make(map[string]*wsSession)
	h.mu.Unlock()
	for _, s := range sessions {
		s.mu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"), time.Now().Add(time.Second))
		s.mu.Unlock()
		_ = s.conn.Close()
	}
}
