package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// allSubjects is the watch key of clients that receive every event.
const allSubjects = ""

type Hub struct {
	clients    map[*Client]bool
	subjects   map[string]map[*Client]bool
	broadcast  chan Event
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		subjects:   make(map[string]map[*Client]bool),
		broadcast:  make(chan Event, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run serves the hub until ctx is done, then disconnects all clients.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case event := <-h.broadcast:
			h.deliver(event)
		case <-ctx.Done():
			h.closeAll()
			close(h.done)
			return
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = true

	if h.subjects[client.subjectID] == nil {
		h.subjects[client.subjectID] = make(map[*Client]bool)
	}
	h.subjects[client.subjectID][client] = true
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.dropLocked(client)
}

func (h *Hub) dropLocked(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}

	delete(h.clients, client)
	delete(h.subjects[client.subjectID], client)
	if len(h.subjects[client.subjectID]) == 0 {
		delete(h.subjects, client.subjectID)
	}

	close(client.send)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		h.dropLocked(client)
	}
}

func (h *Hub) deliver(event Event) {
	message, err := json.Marshal(event)
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	targets := make([]*Client, 0)
	if event.SubjectID == allSubjects {
		for client := range h.clients {
			targets = append(targets, client)
		}
	} else {
		for client := range h.subjects[event.SubjectID] {
			targets = append(targets, client)
		}
		for client := range h.subjects[allSubjects] {
			targets = append(targets, client)
		}
	}

	// slow clients are dropped rather than blocking the hub
	for _, client := range targets {
		select {
		case client.send <- message:
		default:
			h.dropLocked(client)
		}
	}
}

// Broadcast queues an event. It never blocks; events are dropped when
// the queue is full.
func (h *Hub) Broadcast(subjectID string, eventType EventType, data interface{}) {
	event := Event{
		SubjectID: subjectID,
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now(),
	}

	select {
	case h.broadcast <- event:
	default:
	}
}

// ConnectedClients counts clients watching subjectID, or all clients when
// subjectID is empty.
func (h *Hub) ConnectedClients(subjectID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if subjectID == allSubjects {
		return len(h.clients)
	}
	return len(h.subjects[subjectID])
}
