package desk

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"fraud-detector/internal/storage"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 5 * time.Second

// Hub fans stored transactions out to websocket clients. Publish never
// blocks; when the buffer is full the transaction is dropped from the stream.
type Hub struct {
	upgrader         websocket.Upgrader
	clients          map[*websocket.Conn]bool
	clientsMu        sync.RWMutex
	broadcastChannel chan storage.Transaction
	metrics          MetricsInterface
}

func NewHub(metrics MetricsInterface) *Hub {
	return &Hub{
		upgrader:         websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		clients:          make(map[*websocket.Conn]bool),
		broadcastChannel: make(chan storage.Transaction, 100),
		metrics:          metrics,
	}
}

// Publish queues t for every connected client.
func (h *Hub) Publish(t storage.Transaction) {
	select {
	case h.broadcastChannel <- t:
	default:
		log.Warn().Str("transaction_id", t.ID).Msg("Stream buffer full, dropping transaction")
	}
}

// Run broadcasts queued transactions until ctx is done, then disconnects
// every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case t := <-h.broadcastChannel:
			h.broadcastToClients(t)
		case <-ctx.Done():
			h.closeAll()
			return
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

func (h *Hub) broadcastToClients(t storage.Transaction) {
	data, err := json.Marshal(t)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal transaction for broadcast")
		return
	}

	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()

	for client := range h.clients {
		client.SetWriteDeadline(time.Now().Add(writeWait))
		if err := client.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Error().Err(err).Msg("Failed to send message to WebSocket client")
			client.Close()
			delete(h.clients, client)
		}
	}
	h.reportClients()
}

func (h *Hub) closeAll() {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	for client := range h.clients {
		client.Close()
	}
	h.clients = make(map[*websocket.Conn]bool)
	h.reportClients()
}

// reportClients must be called with clientsMu held.
func (h *Hub) reportClients() {
	if h.metrics != nil {
		h.metrics.StreamClientsSet(len(h.clients))
	}
}

// ServeHTTP upgrades the request and keeps the client registered until it
// disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}
	defer conn.Close()

	h.clientsMu.Lock()
	h.clients[conn] = true
	h.reportClients()
	h.clientsMu.Unlock()

	// Clients only listen; reading detects the disconnect.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.clientsMu.Lock()
	delete(h.clients, conn)
	h.reportClients()
	h.clientsMu.Unlock()
}
