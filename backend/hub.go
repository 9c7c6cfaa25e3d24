package backend

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	sendBuffer   = 64
	writeTimeout = 10 * time.Second
)

// subscriber is one open event channel. The write pump is the only writer
// on conn; closing send drains it and then closes the connection.
type subscriber struct {
	id       string
	token    string
	operator string
	conn     *websocket.Conn
	send     chan []byte
}

func newSubscriber(conn *websocket.Conn, token, operator string) *subscriber {
	return &subscriber{
		id:       uuid.NewString(),
		token:    token,
		operator: operator,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
	}
}

func (s *subscriber) writePump(logger *slog.Logger) {
	defer s.conn.Close()
	for frame := range s.send {
		s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := s.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			logger.Debug("write failed", "subscriber", s.id, "error", err)
			return
		}
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// hub tracks live subscribers. Every send to a subscriber's channel happens
// under mu while it is still registered, so close(send) never races a send.
type hub struct {
	mu     sync.Mutex
	subs   map[string]*subscriber
	logger *slog.Logger
}

func newHub(logger *slog.Logger) *hub {
	return &hub{subs: make(map[string]*subscriber), logger: logger}
}

func (h *hub) add(s *subscriber) {
	h.mu.Lock()
	h.subs[s.id] = s
	h.mu.Unlock()
}

// remove unregisters s and lets its write pump finish. Safe to call twice.
func (h *hub) remove(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(s)
}

func (h *hub) removeLocked(s *subscriber) {
	if _, ok := h.subs[s.id]; !ok {
		return
	}
	delete(h.subs, s.id)
	close(s.send)
}

// deliverLocked queues frame for s, evicting it when it can't keep up.
func (h *hub) deliverLocked(s *subscriber, frame []byte) bool {
	select {
	case s.send <- frame:
		return true
	default:
		h.logger.Warn("subscriber too slow, dropping", "subscriber", s.id)
		h.removeLocked(s)
		return false
	}
}

// broadcast queues frame for every subscriber and returns how many took it.
func (h *hub) broadcast(frame []byte) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, s := range h.subs {
		if h.deliverLocked(s, frame) {
			n++
		}
	}
	return n
}

// evict ends s, sending final first when it is non-nil.
func (h *hub) evict(s *subscriber, final []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s.id]; !ok {
		return
	}
	if final == nil || h.deliverLocked(s, final) {
		h.removeLocked(s)
	}
}

// closeToken ends every subscriber holding token. When final is non-nil it
// is the last frame they receive.
func (h *hub) closeToken(token string, final []byte) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, s := range h.subs {
		if s.token != token {
			continue
		}
		if final == nil || h.deliverLocked(s, final) {
			h.removeLocked(s)
		}
		n++
	}
	return n
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.subs {
		h.removeLocked(s)
	}
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
