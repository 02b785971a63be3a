package gateway

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096, // READY and SYNC carry whole snapshots
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandleWebSocket handles GET /gateway by upgrading to WebSocket. While the
// server shuts down it answers 503 so clients retry against another instance.
func (m *Manager) HandleWebSocket(c echo.Context) error {
	if m.draining.Load() {
		return c.JSON(http.StatusServiceUnavailable, map[string]any{
			"error": map[string]string{"code": "GATEWAY_DRAINING", "message": "server is shutting down"},
		})
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Warn("gateway upgrade failed", "remote", c.RealIP(), "error", err)
		return nil
	}

	m.serve(ws)
	return nil
}

// serve greets the client with the heartbeat interval; nothing is sent about
// read state until IDENTIFY or RESUME.
func (m *Manager) serve(ws *websocket.Conn) {
	conn := newConnection(ws, m)
	conn.SendPayload(GatewayPayload{
		Op:   OpHello,
		Data: mustMarshal(HelloData{HeartbeatInterval: int(heartbeatInterval.Milliseconds())}),
	})

	go conn.writePump()
	go conn.readPump()
}
