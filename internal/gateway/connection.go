package gateway

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Phambanam99/qlvb-thanh-sub004/internal/readstatus"
)

const (
	heartbeatInterval = 41250 * time.Millisecond
	heartbeatTimeout  = 10 * time.Second
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	maxMessageSize    = 4096
	sendBufferSize    = 256
)

// Connection represents a single WebSocket client connection.
type Connection struct {
	UserID    int64
	SessionID string
	Conn      *websocket.Conn
	Send      chan []byte
	manager   *Manager
	sequence  atomic.Int64

	closeOnce sync.Once
	done      chan struct{}
	flushOnce sync.Once
	flush     chan struct{} // closed to write out queued payloads, then close

	lastHeartbeat atomic.Int64 // unix millis of last heartbeat ACK from client

	feedMu      sync.Mutex
	revision    uint64 // last store revision delivered to the client
	unsubscribe func()
}

func newConnection(conn *websocket.Conn, manager *Manager) *Connection {
	c := &Connection{
		Conn:    conn,
		Send:    make(chan []byte, sendBufferSize),
		manager: manager,
		done:    make(chan struct{}),
		flush:   make(chan struct{}),
	}
	c.lastHeartbeat.Store(time.Now().UnixMilli())
	return c
}

// NextSequence increments and returns the next sequence number.
func (c *Connection) NextSequence() int64 {
	return c.sequence.Add(1)
}

// SendPayload marshals and queues a payload. It reports false when the
// payload was dropped because the client is not keeping up.
func (c *Connection) SendPayload(p GatewayPayload) bool {
	data, err := json.Marshal(p)
	if err != nil {
		slog.Error("marshal error", "userID", c.UserID, "error", err)
		return false
	}
	select {
	case c.Send <- data:
		return true
	default:
		slog.Warn("send buffer full, dropping message", "userID", c.UserID, "op", p.Op)
		return false
	}
}

// SendEvent sends a dispatch event with a sequence number. A dropped event
// would leave the client with stale read state, so the connection is closed
// instead and the client resumes from its last revision.
func (c *Connection) SendEvent(name string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		slog.Error("marshal event error", "event", name, "error", err)
		return
	}
	seq := c.NextSequence()
	if !c.SendPayload(GatewayPayload{Op: OpDispatch, Data: raw, Sequence: &seq, Event: &name}) {
		c.closeAfterFlush()
	}
}

// follow subscribes c to store and then calls greet with the current state.
// Updates at or below the greeted revision are not forwarded, so the client
// sees every later change exactly once and after the greeting.
func (c *Connection) follow(store *readstatus.Store, greet func(readstatus.Snapshot, uint64)) {
	c.feedMu.Lock()
	defer c.feedMu.Unlock()

	c.unsubscribe = store.Subscribe(func(ch readstatus.Change) {
		c.feedMu.Lock()
		defer c.feedMu.Unlock()
		if ch.Revision <= c.revision {
			return
		}
		c.revision = ch.Revision
		ev := updateEvent(ch)
		c.SendEvent(ev.Name, ev.Data)
	})

	snap, rev := store.State()
	c.revision = rev
	greet(snap, rev)
}

// detach removes c from its store. Safe to call more than once.
func (c *Connection) detach() {
	c.feedMu.Lock()
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	c.feedMu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// closeAfterFlush closes the connection once every payload already queued
// has been written.
func (c *Connection) closeAfterFlush() {
	c.flushOnce.Do(func() { close(c.flush) })
}

// Close terminates the connection.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.Conn.Close()
	})
}

// readPump reads messages from the WebSocket and handles them.
func (c *Connection) readPump() {
	defer func() {
		c.manager.unregister(c)
		c.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.manager.endSession(c)
			} else if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway) {
				slog.Error("read error", "userID", c.UserID, "error", err)
			}
			return
		}
		c.handleMessage(message)
	}
}

// writePump writes messages from the Send channel to the WebSocket,
// and sends heartbeats on a timer.
func (c *Connection) writePump() {
	heartbeatTicker := time.NewTicker(heartbeatInterval)
	defer func() {
		heartbeatTicker.Stop()
		c.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-heartbeatTicker.C:
			// Check if client responded to last heartbeat.
			lastAck := c.lastHeartbeat.Load()
			if time.Since(time.UnixMilli(lastAck)) > heartbeatInterval+heartbeatTimeout {
				slog.Warn("heartbeat timeout", "userID", c.UserID)
				return
			}

			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.SendPayload(GatewayPayload{Op: OpHeartbeat})

		case <-c.flush:
			for {
				select {
				case message := <-c.Send:
					_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
					if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
						return
					}
				default:
					_ = c.Conn.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
			}

		case <-c.done:
			return
		}
	}
}

// handleMessage processes an incoming gateway payload from the client.
func (c *Connection) handleMessage(data []byte) {
	var payload GatewayPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		slog.Error("invalid payload", "userID", c.UserID, "error", err)
		return
	}

	switch payload.Op {
	case OpHeartbeat:
		c.lastHeartbeat.Store(time.Now().UnixMilli())
		c.SendPayload(GatewayPayload{Op: OpHeartbeatAck})

	case OpIdentify:
		c.manager.handleIdentify(c, payload.Data)

	case OpResume:
		c.manager.handleResume(c, payload.Data)
	}
}
