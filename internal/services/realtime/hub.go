// Package realtime fans named events out to browser clients over WebSocket.
package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/sdcc_greenhouse/internal/model/messages"
)

// Envelope is the frame exchanged with viewers in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Hub maintains the set of active clients and broadcasts messages.
type Hub struct {
	clients    map[*Client]struct{}
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	direct     chan directMessage
	done       chan struct{}
	mu         sync.RWMutex

	upgrader websocket.Upgrader
	status   func() any
	log      *zap.Logger
	now      func() time.Time
}

// NewHub builds a hub. An empty allowedOrigins accepts every origin.
func NewHub(allowedOrigins []string, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Hub{
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		direct:     make(chan directMessage, 64),
		done:       make(chan struct{}),
		log:        log,
		now:        time.Now,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// SetStatusProvider supplies the payload answered to "request-status".
func (h *Hub) SetStatusProvider(fn func() any) {
	h.mu.Lock()
	h.status = fn
	h.mu.Unlock()
}

type directMessage struct {
	client *Client
	msg    []byte
}

// Run owns the client set and every client's Send channel until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.Send)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()
			h.log.Info("websocket client registered", zap.String("client", c.ID), zap.String("remote", c.remote))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.Send)
				h.log.Info("websocket client unregistered", zap.String("client", c.ID))
			}
			h.mu.Unlock()

		case d := <-h.direct:
			h.mu.Lock()
			if _, ok := h.clients[d.client]; ok {
				select {
				case d.client.Send <- d.msg:
				default:
				}
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.Send <- msg:
				default:
					h.log.Warn("websocket client too slow, removing", zap.String("client", c.ID))
					delete(h.clients, c)
					close(c.Send)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast queues an event for every client. It never blocks: when the queue is
// full the event is dropped.
func (h *Hub) Broadcast(event string, payload any) {
	b, err := encode(event, payload)
	if err != nil {
		h.log.Error("marshal broadcast", zap.String("event", event), zap.Error(err))
		return
	}
	select {
	case h.broadcast <- b:
	default:
		h.log.Warn("broadcast queue full, event dropped", zap.String("event", event))
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request and attaches the connection to the hub.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &Client{
		ID:     uuid.NewString(),
		Hub:    h,
		Conn:   conn,
		Send:   make(chan []byte, 64),
		remote: conn.RemoteAddr().String(),
	}
	greeting, _ := encode(messages.EventConnected, map[string]any{
		"message":   "Connected to greenhouse backend",
		"clientId":  c.ID,
		"timestamp": h.now().UTC(),
	})
	c.Send <- greeting

	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	}
	go c.WritePump()
	go c.ReadPump()
}

// handleInbound answers the few requests a viewer can send.
func (h *Hub) handleInbound(c *Client, env Envelope) {
	switch env.Event {
	case "control-pump", "control-fan":
		device := "pump"
		if env.Event == "control-fan" {
			device = "fan"
		}
		ack := map[string]any{}
		if len(env.Data) > 0 {
			_ = json.Unmarshal(env.Data, &ack)
		}
		ack["device"] = device
		ack["timestamp"] = h.now().UTC()
		h.sendTo(c, "control-acknowledged", ack)
	case "request-status":
		h.mu.RLock()
		status := h.status
		h.mu.RUnlock()
		h.sendTo(c, "status-request-acknowledged", nil)
		if status != nil {
			h.sendTo(c, messages.EventActuatorStatus, status())
		}
	case "update-thresholds":
		h.log.Info("threshold update requested over websocket, ignored", zap.String("client", c.ID))
	default:
		h.log.Debug("unknown websocket event", zap.String("event", env.Event))
	}
}

// sendTo queues a frame for one client; it is dropped if the hub is busy or stopped.
func (h *Hub) sendTo(c *Client, event string, payload any) {
	b, err := encode(event, payload)
	if err != nil {
		return
	}
	select {
	case h.direct <- directMessage{client: c, msg: b}:
	case <-h.done:
	default:
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func encode(event string, payload any) ([]byte, error) {
	var data json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		data = b
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}
