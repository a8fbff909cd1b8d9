package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/riyaztrinon/esp32-secure-dashboard/internal/access"
	"github.com/riyaztrinon/esp32-secure-dashboard/internal/device"
	"github.com/riyaztrinon/esp32-secure-dashboard/internal/infrastructure/config"
	"github.com/riyaztrinon/esp32-secure-dashboard/internal/infrastructure/logging"
	"github.com/riyaztrinon/esp32-secure-dashboard/internal/session"
)

// WebSocket constants.
const (
	WSTypePing     = "ping"
	WSTypePong     = "pong"
	WSTypeEvent    = "event"
	WSTypeResponse = "response"
	WSTypeError    = "error"

	// Event types pushed to clients.
	WSEventDevices     = "devices.snapshot"
	WSEventRoleChanged = "session.role_changed"
	WSEventSignedOut   = "session.signed_out"

	// wsSendBufferSize is the per-client outbound message buffer size.
	wsSendBufferSize = 256
)

// WSMessage represents a message sent to/from a WebSocket client.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// Hub manages WebSocket connections and pushes per-client device snapshots.
type Hub struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	clients map[*WSClient]struct{}
	mu      sync.RWMutex
}

// WSClient represents a connected WebSocket client. Each connection is bound
// to the account that redeemed the ticket; the principal is replaced in
// place when the account's role changes mid-connection.
type WSClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu            sync.RWMutex
	principal     *session.Principal
	cancelSession func() // releases the session subscription, if any
}

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// NewHub creates a new WebSocket hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run starts the hub's main loop. It blocks until the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client to the hub.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", h.ClientCount())
}

// Unregister removes a client from the hub.
// Only the goroutine that successfully removes the client from the map
// closes the send channel, preventing double-close panics during shutdown.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	h.mu.Unlock()

	if existed {
		if client.cancelSession != nil {
			client.cancelSession()
		}
		close(client.send)
	}
	h.logger.Debug("websocket client disconnected", "clients", h.ClientCount())
}

// BroadcastDevices sends each connected client its own filtered view of the
// device snapshot. Filtering happens per client because visibility depends
// on the client's account and current role.
func (h *Hub) BroadcastDevices(snapshot map[string]*device.Device, now time.Time) {
	// Snapshot client list under hub lock, then release before sending
	h.mu.RLock()
	clients := make([]*WSClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		client.sendDevices(snapshot, now)
	}
	if len(clients) > 0 {
		h.logger.Debug("device snapshot broadcast", "recipients", len(clients))
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// closeAll disconnects all clients and closes their send channels
// so writePump goroutines can exit cleanly.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		if client.cancelSession != nil {
			client.cancelSession()
		}
		close(client.send)
		if client.conn != nil {
			client.conn.Close()
		}
		delete(h.clients, client)
	}
}

// devicesPayload builds the filtered device list for one principal.
func devicesPayload(snapshot map[string]*device.Device, principal *session.Principal, now time.Time) map[string]any {
	visible := access.Filter(snapshot, principal)
	views := make([]deviceView, 0, len(visible))
	for _, dev := range visible {
		views = append(views, newDeviceView(dev, now))
	}
	sort.Slice(views, func(i, j int) bool { return views[i].ID < views[j].ID })
	return map[string]any{"devices": views, "count": len(views)}
}

// handleWebSocket upgrades the HTTP connection to a WebSocket connection.
// Authentication is via ticket query parameter (obtained from POST /auth/ws-ticket).
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ticket := r.URL.Query().Get("ticket")
	if ticket == "" {
		writeUnauthorized(w, "ticket query parameter is required")
		return
	}
	principal, ok := s.validateTicket(r.Context(), ticket)
	if !ok {
		writeUnauthorized(w, "invalid or expired ticket")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &WSClient{
		hub:       s.hub,
		conn:      conn,
		send:      make(chan []byte, wsSendBufferSize),
		principal: principal,
	}

	s.attachSessionFeed(client, principal.ID)
	s.hub.Register(client)

	// Start read/write pumps
	go client.writePump(s.wsCfg)
	go client.readPump(s.wsCfg)

	// Initial snapshot so the dashboard renders without waiting for the
	// next store mutation.
	client.sendDevices(s.cache.Snapshot(), time.Now())
}

// attachSessionFeed forwards the account's session events onto the
// connection: role changes update the client's principal and trigger a
// fresh snapshot, sign-out closes the connection.
func (s *Server) attachSessionFeed(client *WSClient, accountID string) {
	mgr := s.sessions.Manager(accountID)
	if mgr == nil {
		return
	}

	events, cancel := mgr.Subscribe()
	client.cancelSession = cancel

	go func() {
		for ev := range events {
			if ev.Principal == nil {
				client.sendEvent(WSEventSignedOut, nil)
				client.conn.Close()
				return
			}
			client.setPrincipal(ev.Principal)
			client.sendEvent(WSEventRoleChanged, map[string]string{"role": string(ev.Principal.Role)})
			client.sendDevices(s.cache.Snapshot(), time.Now())
		}
	}()
}

// readPump reads messages from the WebSocket connection.
func (c *WSClient) readPump(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	pongWait := time.Duration(cfg.PongTimeout) * time.Second
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			} else {
				c.hub.logger.Debug("websocket closed", "error", err)
			}
			return
		}
		// Any client message resets the read deadline (keeps connection alive
		// even if browser doesn't respond to protocol-level pings).
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		c.handleMessage(message)
	}
}

// writePump writes messages to the WebSocket connection.
func (c *WSClient) writePump(cfg config.WebSocketConfig) {
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	pongWait := time.Duration(cfg.PongTimeout) * time.Second

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				// Hub closed the channel
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage processes an incoming WebSocket message.
func (c *WSClient) handleMessage(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("", "invalid JSON message")
		return
	}

	switch msg.Type {
	case WSTypePing:
		c.sendResponse(msg.ID, WSTypePong, nil)
	default:
		c.sendError(msg.ID, "unknown message type: "+msg.Type)
	}
}

// setPrincipal replaces the client's principal after a role change.
func (c *WSClient) setPrincipal(p *session.Principal) {
	c.mu.Lock()
	c.principal = p
	c.mu.Unlock()
}

// currentPrincipal returns the principal bound to this connection.
func (c *WSClient) currentPrincipal() *session.Principal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.principal
}

// sendDevices pushes this client's filtered view of the snapshot.
func (c *WSClient) sendDevices(snapshot map[string]*device.Device, now time.Time) {
	c.sendEvent(WSEventDevices, devicesPayload(snapshot, c.currentPrincipal(), now))
}

// sendEvent sends an event message to the client.
func (c *WSClient) sendEvent(eventType string, payload any) {
	msg := WSMessage{
		Type:      WSTypeEvent,
		EventType: eventType,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		c.hub.logger.Error("failed to marshal websocket event", "error", err)
		return
	}
	c.trySend(data)
}

// trySend attempts to send data to the client's send channel.
// It silently handles closed channels (client disconnected during broadcast)
// and full buffers (slow client).
func (c *WSClient) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // Absorb send-on-closed-channel panic
	}()

	select {
	case c.send <- data:
	default:
		// Client buffer full, skip
	}
}

// sendResponse sends a response message to the client.
// Routes through trySend to safely handle closed channels during shutdown.
func (c *WSClient) sendResponse(id, msgType string, payload any) {
	msg := WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.trySend(data)
}

// sendError sends an error message to the client.
func (c *WSClient) sendError(id, message string) {
	c.sendResponse(id, WSTypeError, map[string]string{"message": message})
}
