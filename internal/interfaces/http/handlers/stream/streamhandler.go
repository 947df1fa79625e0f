// Package stream provides the websocket handler for the live event stream.
package stream

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"meshbridge/internal/infrastructure/stream"
	"meshbridge/internal/shared/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Should be configured in production
	},
}

// StreamHandler upgrades clients and pumps hub frames at them.
type StreamHandler struct {
	hub    *stream.Hub
	logger logger.Interface
}

func NewStreamHandler(hub *stream.Hub, log logger.Interface) *StreamHandler {
	return &StreamHandler{
		hub:    hub,
		logger: log.Named("stream-handler"),
	}
}

// EventStream handles GET /events/stream. Every normalized device event is
// pushed as a JSON frame; clients that stop reading are disconnected.
func (h *StreamHandler) EventStream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorw("failed to upgrade to websocket",
			"error", err,
			"ip", c.ClientIP(),
		)
		return
	}

	client := h.hub.Register()

	h.logger.Infow("event stream websocket connected",
		"client_id", client.ID(),
		"ip", c.ClientIP(),
	)

	go h.writePump(client, conn)
	h.readPump(client.ID(), conn)
}

// readPump drains the connection so pongs and close frames are processed.
// Clients never send application data on this socket.
func (h *StreamHandler) readPump(clientID string, conn *websocket.Conn) {
	defer func() {
		h.hub.Unregister(clientID)
		conn.Close()
	}()

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				h.logger.Warnw("event stream websocket read error",
					"error", err,
					"client_id", clientID,
				)
			}
			break
		}
	}
}

// writePump forwards hub frames and keeps the connection alive with pings.
// A closed send channel means the hub dropped or shut down this client.
func (h *StreamHandler) writePump(client *stream.Client, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case msg, ok := <-client.Send():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Warnw("failed to write to event stream websocket",
					"error", err,
					"client_id", client.ID(),
				)
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
