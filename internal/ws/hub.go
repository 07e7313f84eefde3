package ws

import (
	"encoding/json"
	"log/slog"
	"sync"

	"funnelgram/entity"
)

// Event represents a WebSocket event pushed to dashboard clients.
type Event struct {
	Type string `json:"type"` // "broadcast_progress", "broadcast_status"
	Data any    `json:"data"`
}

// Hub maintains the set of active WebSocket clients and pushes campaign
// progress events to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan *Event
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	log        *slog.Logger
}

// NewHub creates a new Hub instance.
func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan *Event, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		log:        log,
	}
}

// Run starts the hub's event loop. Should be called in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case event := <-h.broadcast:
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- data:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// progressData is the wire shape of a campaign progress update.
type progressData struct {
	ID        string                 `json:"id"`
	Status    entity.BroadcastStatus `json:"status"`
	Total     int                    `json:"total"`
	Sent      int64                  `json:"sent"`
	Delivered int64                  `json:"delivered"`
	Failed    int64                  `json:"failed"`
	Blocked   int64                  `json:"blocked"`
	Progress  int                    `json:"progress"`
}

// BroadcastProgress pushes a campaign's counters to all connected clients.
func (h *Hub) BroadcastProgress(b *entity.Broadcast) {
	event := &Event{
		Type: "broadcast_progress",
		Data: progressData{
			ID:        b.ID,
			Status:    b.Status,
			Total:     b.Total,
			Sent:      b.Sent,
			Delivered: b.Delivered,
			Failed:    b.Failed,
			Blocked:   b.Blocked,
			Progress:  b.Progress(),
		},
	}
	select {
	case h.broadcast <- event:
	default:
		if h.log != nil {
			h.log.Warn("ws event queue full, progress update dropped",
				slog.String("broadcast_id", b.ID))
		}
	}
}

// BroadcastStatus pushes a bare status transition to all connected clients.
func (h *Hub) BroadcastStatus(id string, status entity.BroadcastStatus) {
	select {
	case h.broadcast <- &Event{
		Type: "broadcast_status",
		Data: map[string]string{"id": id, "status": string(status)},
	}:
	default:
	}
}
