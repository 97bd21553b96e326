package dispatch

import (
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
)

// session wraps one WebSocket connection; the mutex serializes writes since
// gorilla connections allow only one concurrent writer.
type session struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *session) send(ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(ev)
}

// Hub holds the live push sessions for drivers and riders. It implements
// Dispatcher; a missing or broken session yields ErrNoSession and the client
// falls back to polling.
type Hub struct {
	mu      sync.RWMutex
	drivers map[string]*session
	riders  map[string]*session
	log     *slog.Logger
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		drivers: make(map[string]*session),
		riders:  make(map[string]*session),
		log:     log,
	}
}

func (h *Hub) AddDriver(driverID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.drivers[driverID] = &session{conn: conn}
}

func (h *Hub) AddRider(riderID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.riders[riderID] = &session{conn: conn}
}

func (h *Hub) RemoveDriver(driverID string) { h.remove(h.drivers, driverID) }
func (h *Hub) RemoveRider(riderID string)   { h.remove(h.riders, riderID) }

func (h *Hub) remove(m map[string]*session, id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := m[id]; ok {
		_ = s.conn.Close()
		delete(m, id)
	}
}

func (h *Hub) NotifyDriver(driverID string, ev Event) error {
	return h.notify(h.drivers, driverID, ev)
}

func (h *Hub) NotifyRider(riderID string, ev Event) error {
	return h.notify(h.riders, riderID, ev)
}

func (h *Hub) notify(m map[string]*session, id string, ev Event) error {
	h.mu.RLock()
	s, ok := m[id]
	h.mu.RUnlock()
	if !ok {
		return ErrNoSession
	}
	if err := s.send(ev); err != nil {
		h.log.Warn("ws send failed", "target", id, "error", err)
		return err
	}
	return nil
}
