package websocket

import (
	"encoding/json"
	"sync"

	"credits/internal/snapshot"
)

// Hub fans committed account snapshots out to the owner's open sockets.
// It is a read-only observer wired as a projector subscriber; a slow or
// gone client just misses the frame.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
	}
}

func (h *Hub) Register(ownerID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[ownerID] == nil {
		h.clients[ownerID] = make(map[*Client]struct{})
	}
	h.clients[ownerID][client] = struct{}{}
}

func (h *Hub) Unregister(ownerID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[ownerID] == nil {
		return
	}
	delete(h.clients[ownerID], client)
	if len(h.clients[ownerID]) == 0 {
		delete(h.clients, ownerID)
	}
}

func (h *Hub) BroadcastSnapshot(snap *snapshot.Snapshot) {
	payload, _ := json.Marshal(snap)
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[snap.Account.OwnerID] {
		select {
		case client.send <- payload:
		default:
		}
	}
}
