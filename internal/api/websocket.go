package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/jcihitachi-core/internal/cloud/thing"
	"github.com/nerrad567/jcihitachi-core/internal/infrastructure/config"
	"github.com/nerrad567/jcihitachi-core/internal/infrastructure/logging"
)

// WebSocket message types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"
)

// Event channels.
const (
	ChannelStateChanged   = "device.state_changed"
	ChannelConnectionLost = "session.connection_lost"
)

const wsSendBufferSize = 64

var knownChannels = map[string]bool{
	ChannelStateChanged:   true,
	ChannelConnectionLost: true,
}

// WSMessage is every frame exchanged on the socket.
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	EventType string          `json:"event_type,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// WSSubscribePayload lists the channels of a (un)subscribe request.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// Hub fans events out to connected WebSocket clients.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
	closed  bool
}

type wsClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu            sync.RWMutex
	subscriptions map[string]bool
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The API binds to the local network only.
	CheckOrigin: func(*http.Request) bool { return true },
}

// NewHub creates an empty hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{cfg: cfg, logger: logger, clients: make(map[*wsClient]struct{})}
}

// Run blocks until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.mu.Lock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Notify is a session change callback: a snapshot becomes a
// device.state_changed event, nil becomes session.connection_lost.
func (h *Hub) Notify(snap *thing.Snapshot) {
	if snap == nil {
		h.Broadcast(ChannelConnectionLost, map[string]any{"connected": false})
		return
	}
	h.Broadcast(ChannelStateChanged, snap)
}

// Broadcast sends an event to every client subscribed to channel. Slow
// clients whose buffer is full miss the event.
func (h *Hub) Broadcast(channel string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("encoding websocket event", "channel", channel, "error", err)
		return
	}
	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   body,
	})
	if err != nil {
		h.logger.Error("encoding websocket event", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.subscribed(channel) {
			c.trySend(data)
		}
	}
}

// ClientCount is the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(c *wsClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	c := &wsClient{
		hub:           s.hub,
		conn:          conn,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: make(map[string]bool),
	}
	if !s.hub.register(c) {
		conn.Close()
		return
	}
	s.logger.Debug("websocket client connected", "clients", s.hub.ClientCount())

	go c.writePump()
	go c.readPump()
}

func (c *wsClient) timings() (ping, pong time.Duration) {
	ping = time.Duration(c.hub.cfg.PingInterval) * time.Second
	pong = time.Duration(c.hub.cfg.PongTimeout) * time.Second
	if ping <= 0 {
		ping = 30 * time.Second
	}
	if pong <= 0 {
		pong = 10 * time.Second
	}
	return ping, pong
}

func (c *wsClient) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	if c.hub.cfg.MaxMessageSize > 0 {
		c.conn.SetReadLimit(int64(c.hub.cfg.MaxMessageSize))
	}
	ping, pong := c.timings()
	extend := func() error { return c.conn.SetReadDeadline(time.Now().Add(ping + pong)) }
	_ = extend() //nolint:errcheck // a failed deadline surfaces on read
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("websocket read error", "error", err)
			}
			return
		}
		_ = extend() //nolint:errcheck // see above
		c.handle(data)
	}
}

func (c *wsClient) writePump() {
	ping, pong := c.timings()
	ticker := time.NewTicker(ping)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(pong)) //nolint:errcheck // surfaces on write
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil) //nolint:errcheck // closing anyway
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(pong)) //nolint:errcheck // surfaces on write
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) handle(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.reply("", WSTypeError, map[string]string{"message": "invalid JSON message"})
		return
	}

	switch msg.Type {
	case WSTypePing:
		c.reply(msg.ID, WSTypePong, nil)
	case WSTypeSubscribe, WSTypeUnsubscribe:
		var req WSSubscribePayload
		if err := json.Unmarshal(msg.Payload, &req); err != nil || len(req.Channels) == 0 {
			c.reply(msg.ID, WSTypeError, map[string]string{"message": "channels are required"})
			return
		}
		for _, ch := range req.Channels {
			if !knownChannels[ch] {
				c.reply(msg.ID, WSTypeError, map[string]string{"message": "unknown channel: " + ch})
				return
			}
		}
		c.mu.Lock()
		for _, ch := range req.Channels {
			if msg.Type == WSTypeSubscribe {
				c.subscriptions[ch] = true
			} else {
				delete(c.subscriptions, ch)
			}
		}
		c.mu.Unlock()
		c.reply(msg.ID, WSTypeResponse, map[string]any{"channels": req.Channels, "action": msg.Type})
	default:
		c.reply(msg.ID, WSTypeError, map[string]string{"message": "unknown message type: " + msg.Type})
	}
}

func (c *wsClient) subscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subscriptions[channel]
}

// trySend must be called with the hub lock held, so send is not closed
// underneath it.
func (c *wsClient) trySend(data []byte) {
	select {
	case c.send <- data:
	default:
		c.hub.logger.Debug("websocket client buffer full, event dropped")
	}
}

func (c *wsClient) reply(id, typ string, payload any) {
	msg := WSMessage{Type: typ, ID: id, Timestamp: time.Now().UTC().Format(time.RFC3339)}
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return
		}
		msg.Payload = body
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.clients[c]; ok {
		c.trySend(data)
	}
}
