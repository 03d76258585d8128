package server

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/npezzotti/go-watchparty/internal/stats"
)

// Hub tracks live connections and the broadcast group each one listens to.
type Hub struct {
	log     zerolog.Logger
	stats   stats.StatsProvider
	mu      sync.RWMutex
	clients map[string]*Client
	rooms   map[string]map[string]*Client
}

func NewHub(log zerolog.Logger, st stats.StatsProvider) *Hub {
	return &Hub{
		log:     log.With().Str("module", "server.hub").Logger(),
		stats:   st,
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[string]*Client),
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[c.id] = c
}

// Unregister removes the client and every subscription it holds.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.clients, c.id)
	for code := range h.rooms {
		h.unsubscribeLocked(code, c)
	}
}

func (h *Hub) Subscribe(code string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[code]
	if !ok {
		members = make(map[string]*Client)
		h.rooms[code] = members
		h.stats.Incr(stats.ActiveRooms)
		h.log.Debug().Str("code", code).Msg("opened broadcast group")
	}
	members[c.id] = c
}

func (h *Hub) Unsubscribe(code string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.unsubscribeLocked(code, c)
}

func (h *Hub) unsubscribeLocked(code string, c *Client) {
	members, ok := h.rooms[code]
	if !ok {
		return
	}
	if _, ok := members[c.id]; !ok {
		return
	}

	delete(members, c.id)
	if len(members) == 0 {
		delete(h.rooms, code)
		h.stats.Decr(stats.ActiveRooms)
		h.log.Debug().Str("code", code).Msg("closed broadcast group")
	}
}

func (h *Hub) Members(code string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	members := make([]*Client, 0, len(h.rooms[code]))
	for _, c := range h.rooms[code] {
		members = append(members, c)
	}

	return members
}

func (h *Hub) Clients() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}

	return clients
}
