package ws

import (
	"log"
	"sync"

	"activamigos-chat/internal/events"
	"activamigos-chat/internal/models"
)

// Hub maintains active websocket rooms.
type Hub struct {
	rooms map[models.RoomRef]map[*Client]struct{}
	mu    sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{rooms: make(map[models.RoomRef]map[*Client]struct{})}
}

// Join adds a client to a room. Joining twice is a no-op.
func (h *Hub) Join(room models.RoomRef, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[room]; !ok {
		h.rooms[room] = make(map[*Client]struct{})
	}
	h.rooms[room][c] = struct{}{}
}

// Leave removes a client from a room and reports whether it was joined.
func (h *Hub) Leave(room models.RoomRef, c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.leaveLocked(room, c)
}

func (h *Hub) leaveLocked(room models.RoomRef, c *Client) bool {
	clients, ok := h.rooms[room]
	if !ok {
		return false
	}
	if _, joined := clients[c]; !joined {
		return false
	}
	delete(clients, c)
	if len(clients) == 0 {
		delete(h.rooms, room)
	}
	return true
}

// RemoveClient drops a client from every room it joined.
func (h *Hub) RemoveClient(c *Client) []models.RoomRef {
	h.mu.Lock()
	defer h.mu.Unlock()
	var left []models.RoomRef
	for room := range h.rooms {
		if h.leaveLocked(room, c) {
			left = append(left, room)
		}
	}
	return left
}

// Members returns the number of clients joined to room.
func (h *Hub) Members(room models.RoomRef) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

func (h *Hub) clients(room models.RoomRef) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	list := make([]*Client, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		list = append(list, c)
	}
	return list
}

// BroadcastRoom sends ev to all clients in room.
func (h *Hub) BroadcastRoom(room models.RoomRef, ev events.Event) {
	payload, err := events.Encode(ev)
	if err != nil {
		log.Printf("websocket encode error: room=%s type=%s err=%v", room, ev.Type(), err)
		return
	}
	for _, c := range h.clients(room) {
		c.enqueue(payload)
	}
}

// EvictUser removes every connection of userID from room and tells each one
// it is banned there.
func (h *Hub) EvictUser(room models.RoomRef, userID int64) {
	h.mu.Lock()
	var evicted []*Client
	for c := range h.rooms[room] {
		if c.identity.UserID == userID {
			evicted = append(evicted, c)
		}
	}
	for _, c := range evicted {
		h.leaveLocked(room, c)
	}
	h.mu.Unlock()

	for _, c := range evicted {
		c.Send(events.Error{Code: events.CodeBanned, Message: "you are banned from this chat", Room: &room})
	}
	if len(evicted) > 0 {
		log.Printf("websocket evicted user: room=%s user_id=%d conns=%d", room, userID, len(evicted))
	}
}
