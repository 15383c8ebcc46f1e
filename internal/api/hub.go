package api

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-litterbox/internal/auth"
	"github.com/nerrad567/gray-logic-litterbox/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-litterbox/internal/infrastructure/logging"
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

	// wsSendBufferSize is the per-client outbound queue length.
	wsSendBufferSize = 256
)

// Fallback keepalive timings when the config leaves them zero.
const (
	defaultPingInterval = 30 * time.Second
	defaultPongTimeout  = 10 * time.Second
)

// WSMessage is an outbound WebSocket frame.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload is the payload for subscribe/unsubscribe messages.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// wsInbound is a client frame. The payload is decoded per message type.
type wsInbound struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Hub fans litter box events out to WebSocket clients by channel.
//
// Thread Safety:
//   - All methods are safe for concurrent use. The hub lock and a client
//     lock are never held together.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger
	now    func() time.Time

	mu      sync.RWMutex
	clients map[*WSClient]struct{}

	initialMu sync.RWMutex
	initial   map[string]func() (any, bool)

	dropped atomic.Uint64
}

// WSClient is one connected WebSocket peer.
type WSClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu            sync.RWMutex
	subscriptions map[string]struct{}
	closed        bool

	// Identity from the WebSocket ticket.
	subject string
	role    auth.Role
}

// NewHub creates a WebSocket hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		clients: make(map[*WSClient]struct{}),
		initial: make(map[string]func() (any, bool)),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// SetInitial registers fn to produce the event a client receives when it
// subscribes to channel. fn returns false when there is nothing to send.
func (h *Hub) SetInitial(channel string, fn func() (any, bool)) {
	h.initialMu.Lock()
	h.initial[channel] = fn
	h.initialMu.Unlock()
}

func (h *Hub) initialFor(channel string) (any, bool) {
	h.initialMu.RLock()
	fn := h.initial[channel]
	h.initialMu.RUnlock()
	if fn == nil {
		return nil, false
	}
	return fn()
}

// Register adds a client to the hub.
func (h *Hub) Register(c *WSClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "subject", c.subject, "role", c.role, "clients", n)
}

// Unregister removes a client and closes its queue. Repeated calls are
// no-ops.
func (h *Hub) Unregister(c *WSClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		c.close()
		h.logger.Debug("websocket client disconnected", "subject", c.subject, "clients", n)
	}
}

// Broadcast queues an event for every client subscribed to channel.
// Clients with a full queue miss the event; see Dropped.
func (h *Hub) Broadcast(channel string, payload any) {
	data, err := h.encode(WSMessage{Type: WSTypeEvent, EventType: channel, Payload: payload})
	if err != nil {
		h.logger.Error("failed to encode websocket event", "channel", channel, "error", err)
		return
	}

	delivered := 0
	for _, c := range h.snapshot() {
		if c.isSubscribed(channel) && c.deliver(data) {
			delivered++
		}
	}
	if delivered > 0 {
		h.logger.Debug("websocket event sent", "channel", channel, "recipients", delivered)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many messages were discarded because a client's
// queue was full.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

func (h *Hub) snapshot() []*WSClient {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*WSClient, 0, len(h.clients))
	for c := range h.clients {
		out = append(out, c)
	}
	return out
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*WSClient]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.close()
		if c.conn != nil {
			c.conn.Close()
		}
	}
}

// encode stamps and marshals an outbound frame.
func (h *Hub) encode(msg WSMessage) ([]byte, error) {
	msg.Timestamp = h.now().UTC().Format(time.RFC3339)
	return json.Marshal(msg)
}

// keepalive holds the ping cadence and how long a peer may stay silent.
type keepalive struct {
	ping     time.Duration
	pongWait time.Duration
}

func keepaliveFrom(cfg config.WebSocketConfig) keepalive {
	k := keepalive{
		ping:     time.Duration(cfg.PingInterval) * time.Second,
		pongWait: time.Duration(cfg.PongTimeout) * time.Second,
	}
	if k.ping <= 0 {
		k.ping = defaultPingInterval
	}
	if k.pongWait <= 0 {
		k.pongWait = defaultPongTimeout
	}
	return k
}

func (k keepalive) readDeadline() time.Time {
	return time.Now().Add(k.ping + k.pongWait)
}

// start launches the connection's reader and writer.
func (c *WSClient) start() {
	k := keepaliveFrom(c.hub.cfg)
	go c.writeLoop(k)
	go c.readLoop(int64(c.hub.cfg.MaxMessageSize), k)
}

// readLoop handles client frames until the connection fails. Any frame,
// not only a pong, extends the read deadline.
func (c *WSClient) readLoop(limit int64, k keepalive) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	if limit > 0 {
		c.conn.SetReadLimit(limit)
	}
	extend := func(string) error { return c.conn.SetReadDeadline(k.readDeadline()) }
	if err := extend(""); err != nil {
		return
	}
	c.conn.SetPongHandler(extend)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read failed", "subject", c.subject, "error", err)
			}
			return
		}
		if err := extend(""); err != nil {
			return
		}
		c.handleMessage(data)
	}
}

// writeLoop drains the send queue and pings the peer.
func (c *WSClient) writeLoop(k keepalive) {
	ticker := time.NewTicker(k.ping)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	write := func(kind int, data []byte) error {
		if err := c.conn.SetWriteDeadline(time.Now().Add(k.pongWait)); err != nil {
			return err
		}
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				write(websocket.CloseMessage, nil) //nolint:errcheck // connection is closing
				return
			}
			if write(websocket.TextMessage, data) != nil {
				return
			}
		case <-ticker.C:
			if write(websocket.PingMessage, nil) != nil {
				return
			}
		}
	}
}

func (c *WSClient) handleMessage(data []byte) {
	var msg wsInbound
	if err := json.Unmarshal(data, &msg); err != nil {
		c.replyError("", "invalid JSON message")
		return
	}

	switch msg.Type {
	case WSTypeSubscribe:
		c.subscribe(msg)
	case WSTypeUnsubscribe:
		c.unsubscribe(msg)
	case WSTypePing:
		c.reply(msg.ID, WSTypePong, nil)
	default:
		c.replyError(msg.ID, "unknown message type: "+msg.Type)
	}
}

// channelsOf decodes the channel list of a subscribe or unsubscribe frame.
func (c *WSClient) channelsOf(msg wsInbound) ([]string, bool) {
	var p WSSubscribePayload
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			c.replyError(msg.ID, "invalid "+msg.Type+" payload")
			return nil, false
		}
	}
	if len(p.Channels) == 0 {
		c.replyError(msg.ID, msg.Type+" requires at least one channel")
		return nil, false
	}
	return p.Channels, true
}

// subscribe adds channels and replays each channel's current value.
// Unknown channels reject the whole request.
func (c *WSClient) subscribe(msg wsInbound) {
	channels, ok := c.channelsOf(msg)
	if !ok {
		return
	}
	for _, ch := range channels {
		if !isKnownChannel(ch) {
			c.replyError(msg.ID, "unknown channel: "+ch)
			return
		}
	}

	c.mu.Lock()
	for _, ch := range channels {
		c.subscriptions[ch] = struct{}{}
	}
	c.mu.Unlock()

	c.hub.logger.Debug("websocket client subscribed", "subject", c.subject, "channels", channels)
	c.reply(msg.ID, WSTypeResponse, map[string]any{"subscribed": channels})

	for _, ch := range channels {
		payload, ok := c.hub.initialFor(ch)
		if !ok {
			continue
		}
		if data, err := c.hub.encode(WSMessage{Type: WSTypeEvent, EventType: ch, Payload: payload}); err == nil {
			c.deliver(data)
		}
	}
}

func (c *WSClient) unsubscribe(msg wsInbound) {
	channels, ok := c.channelsOf(msg)
	if !ok {
		return
	}

	c.mu.Lock()
	for _, ch := range channels {
		delete(c.subscriptions, ch)
	}
	c.mu.Unlock()

	c.reply(msg.ID, WSTypeResponse, map[string]any{"unsubscribed": channels})
}

func (c *WSClient) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.subscriptions[channel]
	return ok
}

// deliver queues data without blocking. It reports false when the client
// is closed or its queue is full.
func (c *WSClient) deliver(data []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		c.hub.dropped.Add(1)
		return false
	}
}

func (c *WSClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *WSClient) reply(id, msgType string, payload any) {
	data, err := c.hub.encode(WSMessage{Type: msgType, ID: id, Payload: payload})
	if err != nil {
		return
	}
	c.deliver(data)
}

func (c *WSClient) replyError(id, message string) {
	c.reply(id, WSTypeError, map[string]string{"message": message})
}
