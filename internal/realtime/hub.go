package realtime

import (
	"log"
	"sync"
)

// Sender is the minimal interface the hub needs from a connection: the
// ability to push one event to the client.
type Sender interface {
	Send(ev Event) error
}

// Hub tracks which connections are in which rooms. A user may hold
// several connections at once (multiple devices); each one is keyed by
// its connection id inside every room it joined.
type Hub struct {
	mu    sync.RWMutex
	rooms map[Channel]map[string]Sender
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{rooms: make(map[Channel]map[string]Sender)}
}

// Register adds a connection to a room.
func (h *Hub) Register(ch Channel, connID string, s Sender) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.rooms[ch]; !ok {
		h.rooms[ch] = make(map[string]Sender)
	}
	h.rooms[ch][connID] = s
}

// Unregister removes a connection from a room. Unknown ids are ignored.
func (h *Hub) Unregister(ch Channel, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns, ok := h.rooms[ch]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(h.rooms, ch)
		}
	}
}

// RoomSize returns the number of connections currently in the room.
// The gateway uses it on the user room to decide presence transitions.
func (h *Hub) RoomSize(ch Channel) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[ch])
}

// Publish delivers the event to every connection in the room, best
// effort. Connections whose send fails (closed or saturated) are
// evicted from every room they joined so broken streams don't
// accumulate.
func (h *Hub) Publish(ch Channel, ev Event) {
	h.mu.RLock()
	conns := make(map[string]Sender, len(h.rooms[ch]))
	for id, s := range h.rooms[ch] {
		conns[id] = s
	}
	h.mu.RUnlock()

	var failed []string
	for id, s := range conns {
		if err := s.Send(ev); err != nil {
			failed = append(failed, id)
		}
	}

	for _, id := range failed {
		log.Printf("realtime: dropping unresponsive connection %s", id)
		h.evict(id)
	}
}

// evict removes a connection from every room it joined.
func (h *Hub) evict(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch, conns := range h.rooms {
		if _, ok := conns[connID]; !ok {
			continue
		}
		delete(conns, connID)
		if len(conns) == 0 {
			delete(h.rooms, ch)
		}
	}
}

// Broadcast delivers the event to every connection in every room,
// once per connection.
func (h *Hub) Broadcast(ev Event) {
	h.mu.RLock()
	seen := make(map[string]Sender)
	for _, conns := range h.rooms {
		for id, s := range conns {
			seen[id] = s
		}
	}
	h.mu.RUnlock()

	for id, s := range seen {
		if err := s.Send(ev); err != nil {
			log.Printf("realtime: broadcast to connection %s failed: %v", id, err)
		}
	}
}
