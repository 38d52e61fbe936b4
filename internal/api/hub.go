package api

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
	"time"

	"github.com/nerrad567/carewatch-core/internal/infrastructure/config"
	"github.com/nerrad567/carewatch-core/internal/infrastructure/logging"
	"github.com/nerrad567/carewatch-core/internal/radar"
)

// Channels lists the event channels clients can subscribe to.
var Channels = []string{
	radar.ChannelVital,
	radar.ChannelPosture,
	radar.ChannelFallAlert,
	radar.ChannelAlertStats,
}

// retainedChannels keep their last event, which is replayed to clients
// that subscribe later.
var retainedChannels = map[string]bool{
	radar.ChannelAlertStats: true,
}

// knownChannel reports whether ch can be subscribed to.
func knownChannel(ch string) bool {
	return ch == WSChannelAll || slices.Contains(Channels, ch)
}

// Hub fans events out to subscribed WebSocket clients.
//
// Thread Safety: all methods are safe for concurrent use. The hub lock is
// never held while a client lock is taken.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger
	now    func() time.Time

	mu       sync.RWMutex
	clients  map[*WSClient]struct{}
	retained map[string][]byte
}

// NewHub creates a hub with no clients.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		clients:  make(map[*WSClient]struct{}),
		retained: make(map[string][]byte),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", n, "subject", client.subject)
}

// Unregister removes a client and closes its send channel. Calling it
// for a client closeAll already removed is harmless.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	delete(h.clients, client)
	n := len(h.clients)
	h.mu.Unlock()

	client.closeSend()
	h.logger.Debug("websocket client disconnected", "clients", n)
}

// event encodes an event envelope for channel.
func (h *Hub) event(channel string, payload any) ([]byte, error) {
	return json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: channel,
		Timestamp: h.now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
}

// Broadcast sends payload to every client subscribed to channel. Slow
// clients with a full buffer miss the event.
func (h *Hub) Broadcast(channel string, payload any) {
	data, err := h.event(channel, payload)
	if err != nil {
		h.logger.Error("failed to encode event", "channel", channel, "error", err)
		return
	}

	h.mu.Lock()
	if retainedChannels[channel] {
		h.retained[channel] = data
	}
	clients := make([]*WSClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.Unlock()

	delivered := 0
	for _, client := range clients {
		if client.isSubscribed(channel) && client.trySend(data) {
			delivered++
		}
	}
	if delivered > 0 {
		h.logger.Debug("event broadcast", "channel", channel, "recipients", delivered)
	}
}

// replay sends the retained events matching channels to client.
func (h *Hub) replay(client *WSClient, channels []string) {
	all := slices.Contains(channels, WSChannelAll)

	h.mu.RLock()
	var pending [][]byte
	for _, ch := range Channels {
		data, ok := h.retained[ch]
		if ok && (all || slices.Contains(channels, ch)) {
			pending = append(pending, data)
		}
	}
	h.mu.RUnlock()

	for _, data := range pending {
		client.trySend(data)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// closeAll disconnects every client and closes its send channel so its
// writePump exits.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		client.closeSend()
		if client.conn != nil {
			client.conn.Close()
		}
		delete(h.clients, client)
	}
}
