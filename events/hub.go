package events

import (
	"context"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/sendergui/groundstation/logging"
	"github.com/sendergui/groundstation/metrics"
)

// Message types pushed to websocket clients.
const (
	MessagePosition  = "position"
	MessageTelemetry = "telemetry"
	MessageCameras   = "cameras"
	MessageFrame     = "frame"
	MessageRender    = "render"
	MessageArrival   = "arrival"
	MessageMission   = "mission"
	MessageJournal   = "journal"
)

// Message is the websocket envelope.
type Message struct {
	Type      string    `json:"type"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Hub fans messages out to connected websocket clients. Broadcast never
// blocks the caller; slow clients lose messages.
type Hub struct {
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu      sync.RWMutex
	clients map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[*Client]struct{}),
	}
}

// Run services the hub until ctx is done, then closes every client. Run
// must be called at most once.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	log := logging.Component("hub")
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			log.Info().Msg("hub stopped")
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(n))
			log.Info().Int("clients", n).Msg("websocket client connected")

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(n))
			log.Info().Int("clients", n).Msg("websocket client disconnected")

		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					metrics.WebSocketDropped.Inc()
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
	metrics.WebSocketClients.Set(0)
}

// Broadcast queues a typed message for every client.
func (h *Hub) Broadcast(msgType string, data any) {
	b, err := json.Marshal(Message{Type: msgType, Data: data, Timestamp: time.Now()})
	if err != nil {
		logging.Warn().Err(err).Str("type", msgType).Msg("failed to encode websocket message")
		return
	}
	select {
	case h.broadcast <- b:
	default:
		metrics.WebSocketDropped.Inc()
	}
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Attach registers an upgraded connection and starts its pumps.
func (h *Hub) Attach(conn *websocket.Conn) {
	c := &Client{hub: h, conn: conn, send: make(chan []byte, 64)}
	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}
