package ws

import (
	"encoding/json"
	"log"
	"sync"
)

// Envelope is the wire format for every event in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// EventHandler receives transport callbacks. Connect/disconnect are
// dispatched from the hub's run loop; events are dispatched from the
// owning connection's read goroutine.
type EventHandler interface {
	HandleConnect(connID string)
	HandleEvent(connID, event string, data json.RawMessage)
	HandleDisconnect(connID string)
}

// Hub tracks connected clients and their room membership and fans events
// out to them. Registration goes through channels serialized by Run; room
// membership is guarded by the mutex because joins and leaves happen on
// connection goroutines.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	rooms   map[string]map[string]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	handler EventHandler
}

func NewHub(handler EventHandler) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		rooms:      make(map[string]map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		handler:    handler,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			h.mu.Unlock()
			// Handler callbacks do store work; keep them off the run
			// loop so a slow call cannot stall other registrations.
			go h.handler.HandleConnect(client.id)
		case client := <-h.unregister:
			h.mu.Lock()
			_, ok := h.clients[client.id]
			if ok {
				delete(h.clients, client.id)
				for room, members := range h.rooms {
					delete(members, client.id)
					if len(members) == 0 {
						delete(h.rooms, room)
					}
				}
				close(client.send)
			}
			h.mu.Unlock()
			if ok {
				go h.handler.HandleDisconnect(client.id)
			}
		}
	}
}

// Emit sends one event to one connection. Unknown connection ids are
// ignored; a full send buffer drops the event rather than blocking the
// caller.
func (h *Hub) Emit(connID, event string, payload any) {
	msg, err := encode(event, payload)
	if err != nil {
		log.Printf("error encoding %s event: %v", event, err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if client, ok := h.clients[connID]; ok {
		h.deliver(client, event, msg)
	}
}

// Broadcast sends an event to every member of a room, optionally skipping
// one connection (the originator).
func (h *Hub) Broadcast(room, event string, payload any, exceptConn string) {
	msg, err := encode(event, payload)
	if err != nil {
		log.Printf("error encoding %s event: %v", event, err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, client := range h.rooms[room] {
		if id == exceptConn {
			continue
		}
		h.deliver(client, event, msg)
	}
}

// BroadcastAll sends an event to every connected client, room or not.
func (h *Hub) BroadcastAll(event string, payload any) {
	msg, err := encode(event, payload)
	if err != nil {
		log.Printf("error encoding %s event: %v", event, err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		h.deliver(client, event, msg)
	}
}

func (h *Hub) Join(connID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	client, ok := h.clients[connID]
	if !ok {
		return
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]*Client)
		h.rooms[room] = members
	}
	members[connID] = client
}

func (h *Hub) Leave(connID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// deliver must run with mu held. Run closes the send channel only under
// the write lock, so a held read lock keeps the channel open for the
// duration of the send.
func (h *Hub) deliver(client *Client, event string, msg []byte) {
	select {
	case client.send <- msg:
	default:
		log.Printf("dropping %s event for slow connection %s", event, client.id)
	}
}

func encode(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}
