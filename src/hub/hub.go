// Package hub maintains the authorized-connection registry and fans internal
// events out to every live connection.
package hub

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/chatbridge/satori/src/metrics"
)

// Hub holds the ordered registry of authorized connections. The WebSocket
// gateway writes to it; the dispatcher reads snapshots from it.
type Hub struct {
	mu      sync.RWMutex
	clients []*Client

	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// New creates an empty registry.
func New(logger zerolog.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		logger:  logger.With().Str("component", "hub").Logger(),
		metrics: m,
	}
}

// Add registers an authorized client. Duplicate adds are ignored, so
// membership stays in lockstep with the Authorized state.
func (h *Hub) Add(c *Client) {
	h.mu.Lock()
	for _, existing := range h.clients {
		if existing == c {
			h.mu.Unlock()
			return
		}
	}
	h.clients = append(h.clients, c)
	h.mu.Unlock()

	h.metrics.ConnOpened()
	h.logger.Info().
		Str("client_id", c.ID).
		Time("connected_at", c.ConnectedAt()).
		Msg("client registered")
}

// Remove unregisters exactly the given client, by identity. Idempotent.
func (h *Hub) Remove(c *Client) {
	h.mu.Lock()
	idx := -1
	for i, existing := range h.clients {
		if existing == c {
			idx = i
			break
		}
	}
	if idx == -1 {
		h.mu.Unlock()
		return
	}
	h.clients = append(h.clients[:idx], h.clients[idx+1:]...)
	h.mu.Unlock()

	h.metrics.ConnClosed()
	h.logger.Info().Str("client_id", c.ID).Msg("client unregistered")
}

// Snapshot returns a copy of the registry. Dispatch iterates the copy so a
// connection closing mid-broadcast cannot disturb delivery to the rest.
func (h *Hub) Snapshot() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	cp := make([]*Client, len(h.clients))
	copy(cp, h.clients)
	return cp
}

// Len returns the number of authorized connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAll closes every registered connection. Used on shutdown.
func (h *Hub) CloseAll() {
	for _, c := range h.Snapshot() {
		c.Close()
		h.Remove(c)
	}
}
