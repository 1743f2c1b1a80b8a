package websocket

import (
	"context"
	"encoding/json"
	"time"

	"client/internal/utils"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 64
)

type Client struct {
	hub  *Hub
	conn ClientConn
	send chan []byte
	ID   string
}

type ClientConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

func generateClientID() string {
	return uuid.NewString()[:8]
}

// Hub fans engine events out to connected UI clients. Slow clients are
// dropped rather than blocking the event bus.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	done       chan struct{}
	origins    []string
	upgrader   websocket.Upgrader
	logger     *zap.SugaredLogger
}

// NewHub accepts UI clients whose Origin is one of origins. Clients that
// send no Origin are not browsers and are accepted.
func NewHub(logger *zap.Logger, origins []string) *Hub {
	h := &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, sendBuffer),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
		origins:    origins,
		logger:     logger.Sugar(),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// Forward is an event bus handler that queues e for every client.
func (h *Hub) Forward(e utils.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		h.logger.Errorw("Failed to encode event for clients", "event", e.Event, "error", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.logger.Warnw("Hub broadcast queue full, event dropped", "event", e.Event)
	}
}

func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("WebSocket Hub started")

	for {
		select {
		case <-ctx.Done():
			close(h.done)
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.logger.Info("WebSocket Hub stopped")
			return

		case client := <-h.register:
			h.clients[client] = true
			h.logger.Infow("Client connected",
				"client_id", client.ID,
				"clients_count", len(h.clients),
			)

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.logger.Infow("Client disconnected",
					"client_id", client.ID,
					"clients_count", len(h.clients),
				)
			}

		case data := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- data:
				default:
					delete(h.clients, client)
					close(client.send)
					h.logger.Warnw("Client too slow, disconnected", "client_id", client.ID)
				}
			}
		}
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
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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
