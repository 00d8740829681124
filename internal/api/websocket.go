package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/cryptoctl/tradeengine/internal/domain"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4096
)

// MessageType is the frame type carried over /ws (spec.md §6).
type MessageType string

const (
	MessageTypePing     MessageType = "ping"
	MessageTypePong     MessageType = "pong"
	MessageTypeStatus   MessageType = "status"
	MessageTypeStart    MessageType = "start"
	MessageTypeStop     MessageType = "stop"
	MessageTypePositions MessageType = "positions"
	MessageTypeTrade    MessageType = "trade"
	MessageTypeError    MessageType = "error"
)

// Message is one frame on the bidirectional /ws command channel.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Client is one /ws connection, paired with the Hub that dispatches
// its commands and routes replies back to it.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub maintains active /ws command-channel clients. Unlike the
// /ws/events stream (eventStreamHandler, which fans out Bus events
// broadcast-only), /ws is bidirectional: each client's commands are
// dispatched against the Server that owns the Hub.
type Hub struct {
	server *Server

	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a command-channel hub bound to server, so command
// handlers can reach the same Risk Gateway / Execution Adapter / db
// the REST surface uses.
func NewHub(server *Server) *Hub {
	return &Hub{
		server:     server,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run services client (un)registration. It never needs to fan out a
// broadcast itself: each client's commands are answered directly by
// its own writePump.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			log.Info().Int("total_clients", n).Msg("ws client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			log.Info().Int("total_clients", n).Msg("ws client disconnected")
		}
	}
}

// ClientCount returns the number of connected /ws clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Msg("ws read error")
			}
			return
		}
		c.handleCommand(raw)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleCommand dispatches one of ping|status|start|stop|positions|trade
// (spec.md §6) against the server the hub is bound to and writes a
// single reply frame back to the issuing client.
func (c *Client) handleCommand(raw []byte) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.reply(MessageTypeError, gin.H{"error": "invalid frame"})
		return
	}

	s := c.hub.server
	ctx := context.Background()

	switch msg.Type {
	case MessageTypePing:
		c.reply(MessageTypePong, nil)

	case MessageTypeStatus:
		execReady := s.execAdapter != nil
		c.reply(MessageTypeStatus, gin.H{"execution_adapter": execReady, "clients": c.hub.ClientCount()})

	case MessageTypeStart:
		if s.execAdapter == nil {
			c.reply(MessageTypeError, gin.H{"error": "execution adapter not configured"})
			return
		}
		if err := s.execAdapter.Connect(ctx); err != nil {
			c.reply(MessageTypeError, gin.H{"error": err.Error()})
			return
		}
		c.reply(MessageTypeStart, gin.H{"status": "started"})

	case MessageTypeStop:
		if s.execAdapter == nil {
			c.reply(MessageTypeError, gin.H{"error": "execution adapter not configured"})
			return
		}
		if err := s.execAdapter.Disconnect(ctx); err != nil {
			c.reply(MessageTypeError, gin.H{"error": err.Error()})
			return
		}
		c.reply(MessageTypeStop, gin.H{"status": "stopped"})

	case MessageTypePositions:
		if s.execAdapter == nil {
			c.reply(MessageTypeError, gin.H{"error": "execution adapter not configured"})
			return
		}
		positions, err := s.execAdapter.ListPositions(ctx)
		if err != nil {
			c.reply(MessageTypeError, gin.H{"error": err.Error()})
			return
		}
		c.reply(MessageTypePositions, positions)

	case MessageTypeTrade:
		var req struct {
			Symbol   string          `json:"symbol"`
			Side     domain.Side     `json:"side"`
			Type     domain.OrderType `json:"type"`
			Quantity float64         `json:"quantity"`
		}
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			c.reply(MessageTypeError, gin.H{"error": "invalid trade payload"})
			return
		}
		if s.riskGW == nil || s.execAdapter == nil {
			c.reply(MessageTypeError, gin.H{"error": "order path not configured"})
			return
		}
		account, err := s.execAdapter.GetBalance(ctx)
		if err != nil {
			c.reply(MessageTypeError, gin.H{"error": err.Error()})
			return
		}
		order, err := s.riskGW.Submit(ctx, domain.OrderRequest{
			Symbol:   req.Symbol,
			Side:     req.Side,
			Type:     req.Type,
			Quantity: req.Quantity,
			Source:   "ws",
		}, account)
		if err != nil {
			c.reply(MessageTypeError, gin.H{"error": err.Error()})
			return
		}
		c.reply(MessageTypeTrade, order)

	default:
		c.reply(MessageTypeError, gin.H{"error": "unknown command"})
	}
}

func (c *Client) reply(t MessageType, data interface{}) {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return
		}
		raw = b
	}
	msg := Message{Type: t, Timestamp: time.Now(), Data: raw}
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case c.send <- b:
	default:
	}
}

func newUpgrader(allowedOrigins []string, production bool) websocket.Upgrader {
	originMap := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		originMap[o] = true
	}

	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return !production
			}
			return originMap[origin]
		},
	}
}

// handleWS upgrades to the bidirectional command channel
// (spec.md §6): ping|status|start|stop|positions|trade.
func (s *Server) handleWS(c *gin.Context) {
	upgrader := newUpgrader(s.wsAllowedOrigins, s.wsProduction)
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws upgrade failed")
		return
	}

	client := &Client{hub: s.hub, conn: conn, send: make(chan []byte, 64)}
	client.hub.register <- client

	go client.writePump()
	go client.readPump()
}

// handleWSEvents upgrades to the one-way event stream (spec.md §6):
// one JSON frame per domain.Event published on the Event Bus, for as
// long as the client stays connected.
func (s *Server) handleWSEvents(c *gin.Context) {
	if s.events == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event bus not configured"})
		return
	}

	upgrader := newUpgrader(s.wsAllowedOrigins, s.wsProduction)
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	subName := "ws-" + uuid.New().String()
	sub := s.events.Subscribe(subName, 64)
	defer s.events.Unsubscribe(subName)

	for event := range sub {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(event); err != nil {
			return
		}
	}
}
