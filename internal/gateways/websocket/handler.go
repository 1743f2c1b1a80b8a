package websocket

import (
	"net/http"
	"time"

	"client/internal/utils"

	"github.com/gin-gonic/gin"
)

func (h *Hub) checkOrigin(r *http.Request) bool {
	return utils.OriginAllowed(h.origins, r.Header.Get("Origin"))
}

func (h *Hub) ServeWS(c *gin.Context) {
	if !h.checkOrigin(c.Request) {
		h.logger.Warnw("Rejected websocket from foreign origin",
			"origin", c.GetHeader("Origin"),
			"client_ip", c.ClientIP(),
		)
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "origin not allowed"})
		return
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorw("Failed to upgrade connection",
			"client_ip", c.ClientIP(),
			"error", err,
		)
		return
	}

	client := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
		ID:   generateClientID(),
	}

	h.logger.Infow("WebSocket connection established",
		"client_id", client.ID,
		"client_ip", c.ClientIP(),
		"user_agent", c.GetHeader("User-Agent"),
	)

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}
	go client.writePump()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}
