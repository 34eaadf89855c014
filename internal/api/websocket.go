package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/savecair-bridge/internal/infrastructure/config"
	"github.com/nerrad567/savecair-bridge/internal/infrastructure/logging"
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

// Push channels.
const (
	// ChannelState carries every session snapshot.
	ChannelState = "state.updated"
	// ChannelClimate carries the climate entity attributes after each update.
	ChannelClimate = "climate.updated"
	// ChannelError carries gateway ERROR frames.
	ChannelError = "gateway.error"
)

// wsSendBufferSize is the per-client outbound queue length. A client that
// falls this far behind misses events.
const wsSendBufferSize = 64

var knownChannels = map[string]struct{}{
	ChannelState:   {},
	ChannelClimate: {},
	ChannelError:   {},
}

// WSMessage is a frame exchanged with a WebSocket client.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// wsRequest is a client frame; subscribe and unsubscribe carry channels.
type wsRequest struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Payload struct {
		Channels []string `json:"channels"`
	} `json:"payload"`
}

// Hub tracks WebSocket clients and fans events out to their subscriptions.
//
// Sends to a client's queue happen under the read lock and the queue is
// only closed under the write lock, so a send never races a close.
type Hub struct {
	logger  *logging.Logger
	mu      sync.RWMutex
	clients map[*WSClient]struct{}
	closed  bool
}

// WSClient is one connected WebSocket client.
type WSClient struct {
	hub           *Hub
	conn          *websocket.Conn
	send          chan []byte
	mu            sync.RWMutex
	subscriptions map[string]struct{}
}

// NewHub creates an empty hub.
func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client. After the hub has shut down the client is closed
// instead.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(client.send)
		if client.conn != nil {
			client.conn.Close()
		}
		return
	}
	h.clients[client] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", count)
}

// Unregister removes a client and closes its queue. Safe to call twice.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, ok := h.clients[client]
	if ok {
		delete(h.clients, client)
		close(client.send)
	}
	count := len(h.clients)
	h.mu.Unlock()
	if ok {
		h.logger.Debug("websocket client disconnected", "clients", count)
	}
}

// Broadcast queues an event for every client subscribed to channel.
func (h *Hub) Broadcast(channel string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		if client.isSubscribed(channel) {
			client.enqueue(data)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// deliver queues data for one client if it is still registered.
func (h *Hub) deliver(client *WSClient, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[client]; ok {
		client.enqueue(data)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for client := range h.clients {
		close(client.send)
		if client.conn != nil {
			client.conn.Close()
		}
		delete(h.clients, client)
	}
}

// parseChannels splits a comma separated channel list and rejects unknown
// names.
func parseChannels(list string) ([]string, error) {
	var out []string
	for _, ch := range strings.Split(list, ",") {
		ch = strings.TrimSpace(ch)
		if ch == "" {
			continue
		}
		if _, ok := knownChannels[ch]; !ok {
			return nil, fmt.Errorf("unknown channel %q", ch)
		}
		out = append(out, ch)
	}
	return out, nil
}

// handleWebSocket redeems the ticket query parameter and upgrades the
// connection. Channels named in the "channels" query parameter are
// subscribed immediately.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if !s.tickets.consume(query.Get("ticket")) {
		writeUnauthorized(w, "valid ticket required")
		return
	}
	channels, err := parseChannels(query.Get("channels"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || s.isAllowedOrigin(origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &WSClient{
		hub:           s.hub,
		conn:          conn,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: make(map[string]struct{}, len(channels)),
	}
	client.setSubscribed(channels, true)
	s.hub.Register(client)

	go client.writePump(s.wsCfg)
	go client.readPump(s.wsCfg)
}

func (c *WSClient) readPump(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	deadline := cfg.GetPingInterval() + cfg.GetPongTimeout()
	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	//nolint:errcheck // a failed deadline surfaces on the next read
	c.conn.SetReadDeadline(time.Now().Add(deadline))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		// Application pings count as liveness too.
		//nolint:errcheck // a failed deadline surfaces on the next read
		c.conn.SetReadDeadline(time.Now().Add(deadline))
		c.handleMessage(data)
	}
}

func (c *WSClient) writePump(cfg config.WebSocketConfig) {
	ticker := time.NewTicker(cfg.GetPingInterval())
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	writeWait := cfg.GetPongTimeout()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				//nolint:errcheck // connection is being torn down
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WSClient) handleMessage(data []byte) {
	var req wsRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.reply("", WSTypeError, map[string]string{"message": "invalid JSON message"})
		return
	}

	switch req.Type {
	case WSTypePing:
		c.reply(req.ID, WSTypePong, nil)
	case WSTypeSubscribe, WSTypeUnsubscribe:
		channels, err := parseChannels(strings.Join(req.Payload.Channels, ","))
		if err != nil {
			c.reply(req.ID, WSTypeError, map[string]string{"message": err.Error()})
			return
		}
		subscribe := req.Type == WSTypeSubscribe
		c.setSubscribed(channels, subscribe)
		key := "unsubscribed"
		if subscribe {
			key = "subscribed"
		}
		c.reply(req.ID, WSTypeResponse, map[string]any{key: channels})
	default:
		c.reply(req.ID, WSTypeError, map[string]string{"message": "unknown message type: " + req.Type})
	}
}

func (c *WSClient) setSubscribed(channels []string, on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range channels {
		if on {
			c.subscriptions[ch] = struct{}{}
		} else {
			delete(c.subscriptions, ch)
		}
	}
}

func (c *WSClient) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.subscriptions[channel]
	return ok
}

// enqueue drops data when the client's queue is full. Callers hold the
// hub read lock.
func (c *WSClient) enqueue(data []byte) {
	select {
	case c.send <- data:
	default:
		c.hub.logger.Debug("websocket client queue full, event dropped")
	}
}

func (c *WSClient) reply(id, msgType string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	c.hub.deliver(c, data)
}
