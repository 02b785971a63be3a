package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Phambanam99/qlvb-thanh-sub004/internal/auth"
	"github.com/Phambanam99/qlvb-thanh-sub004/internal/readstatus"
	"github.com/Phambanam99/qlvb-thanh-sub004/internal/redis"
)

const (
	replayBufferSize = 100
	sessionTTL       = 24 * time.Hour
)

// Manager manages all active WebSocket connections and ties each one to the
// read status store of its user.
type Manager struct {
	mu          sync.RWMutex
	connections map[int64]map[*Connection]struct{} // userID → live connections
	sessions    map[string]*Connection             // sessionID → connection

	// Ring buffer per user for session resume replay.
	replayMu     sync.Mutex
	replayBuffer map[int64]*ringBuffer // userID → recent updates by revision

	tokens   *auth.TokenService
	stores   StoreProvider
	redis    *redis.Client
	draining atomic.Bool // set by CloseAll; new upgrades are refused
}

// NewManager creates a new gateway Manager.
func NewManager(tokens *auth.TokenService, stores StoreProvider, redisClient *redis.Client) *Manager {
	return &Manager{
		connections:  make(map[int64]map[*Connection]struct{}),
		sessions:     make(map[string]*Connection),
		replayBuffer: make(map[int64]*ringBuffer),
		tokens:       tokens,
		stores:       stores,
		redis:        redisClient,
	}
}

// register adds a connection to the manager. A connection already holding
// the same session is told to reconnect and closed.
func (m *Manager) register(c *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.sessions[c.SessionID]; ok && old != c {
		old.SendPayload(GatewayPayload{Op: OpReconnect})
		old.detach()
		old.closeAfterFlush()
		m.removeConnLocked(old)
	}

	conns := m.connections[c.UserID]
	if conns == nil {
		conns = make(map[*Connection]struct{})
		m.connections[c.UserID] = conns
	}
	conns[c] = struct{}{}
	m.sessions[c.SessionID] = c
}

// unregister removes a connection from the manager and stops its feed.
// The Redis session is kept so the client can resume.
func (m *Manager) unregister(c *Connection) {
	m.mu.Lock()
	m.removeConnLocked(c)
	if existing, ok := m.sessions[c.SessionID]; ok && existing == c {
		delete(m.sessions, c.SessionID)
	}
	m.mu.Unlock()

	c.detach()
}

func (m *Manager) removeConnLocked(c *Connection) {
	conns, ok := m.connections[c.UserID]
	if !ok {
		return
	}
	delete(conns, c)
	if len(conns) == 0 {
		delete(m.connections, c.UserID)
	}
}

// endSession forgets the session of a client that closed cleanly; it cannot
// be resumed afterwards.
func (m *Manager) endSession(c *Connection) {
	if c.SessionID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := m.redis.DeleteSession(ctx, c.SessionID); err != nil {
		slog.Error("failed to delete gateway session", "sessionID", c.SessionID, "error", err)
	}
}

// ConnectionCount returns the number of live connections for a user.
func (m *Manager) ConnectionCount(userID int64) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections[userID])
}

// CloseAll asks every client to reconnect, closes its connection and refuses
// further upgrades.
func (m *Manager) CloseAll() {
	m.draining.Store(true)

	m.mu.RLock()
	var all []*Connection
	for _, conns := range m.connections {
		for c := range conns {
			all = append(all, c)
		}
	}
	m.mu.RUnlock()

	for _, c := range all {
		c.SendPayload(GatewayPayload{Op: OpReconnect})
		c.detach()
		c.closeAfterFlush()
	}
}

// handleIdentify processes an IDENTIFY payload from a client.
func (m *Manager) handleIdentify(c *Connection, data json.RawMessage) {
	if c.SessionID != "" {
		slog.Warn("duplicate identify", "userID", c.UserID, "sessionID", c.SessionID)
		return
	}

	var identify IdentifyData
	if err := json.Unmarshal(data, &identify); err != nil {
		slog.Error("invalid identify data", "error", err)
		c.Close()
		return
	}

	claims, err := m.tokens.ValidateAccessToken(identify.Token)
	if err != nil {
		slog.Warn("invalid token in identify", "error", err)
		c.Close()
		return
	}

	c.UserID = claims.UserID
	c.SessionID = uuid.NewString()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := m.redis.StoreSession(ctx, c.SessionID, c.UserID, sessionTTL); err != nil {
		slog.Error("failed to store gateway session", "userID", c.UserID, "error", err)
	}

	store := m.stores.Store(c.UserID)
	m.ensureReplay(c.UserID, store)
	m.register(c)

	c.follow(store, func(snap readstatus.Snapshot, rev uint64) {
		c.SendEvent(EventReady, ReadyData{
			SessionID:    c.SessionID,
			UserID:       c.UserID,
			Revision:     rev,
			ReadStatuses: snap.Entries(),
		})
	})
}

// handleResume processes a RESUME payload. Updates newer than the client's
// revision are replayed; if the buffer no longer covers the gap the client
// gets the full state in a READ_STATUS_SYNC instead.
func (m *Manager) handleResume(c *Connection, data json.RawMessage) {
	if c.SessionID != "" {
		slog.Warn("resume on identified connection", "userID", c.UserID, "sessionID", c.SessionID)
		return
	}

	var resume ResumeData
	if err := json.Unmarshal(data, &resume); err != nil {
		slog.Error("invalid resume data", "error", err)
		c.SendPayload(GatewayPayload{Op: OpReconnect})
		c.closeAfterFlush()
		return
	}

	claims, err := m.tokens.ValidateAccessToken(resume.Token)
	if err != nil {
		slog.Warn("invalid token in resume", "error", err)
		c.Close()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	owner, err := m.redis.GetSessionUserID(ctx, resume.SessionID)
	if err != nil || owner != claims.UserID {
		slog.Warn("resume rejected", "userID", claims.UserID, "sessionID", resume.SessionID, "error", err)
		c.SendPayload(GatewayPayload{Op: OpReconnect})
		c.closeAfterFlush()
		return
	}

	c.UserID = claims.UserID
	c.SessionID = resume.SessionID

	if err := m.redis.StoreSession(ctx, c.SessionID, c.UserID, sessionTTL); err != nil {
		slog.Error("failed to refresh gateway session", "userID", c.UserID, "error", err)
	}

	store := m.stores.Store(c.UserID)
	m.ensureReplay(c.UserID, store)
	m.register(c)

	c.follow(store, func(snap readstatus.Snapshot, rev uint64) {
		events, ok := m.replaySince(c.UserID, resume.Revision, rev)
		if !ok {
			c.SendEvent(EventReadStatusSync, ReadStatusSyncData{
				Revision:     rev,
				ReadStatuses: snap.Entries(),
			})
			return
		}
		for _, ev := range events {
			c.SendEvent(ev.Name, ev.Data)
		}
	})
}

// ensureReplay starts recording the user's store changes for resume.
func (m *Manager) ensureReplay(userID int64, store *readstatus.Store) {
	m.replayMu.Lock()
	defer m.replayMu.Unlock()

	if _, ok := m.replayBuffer[userID]; ok {
		return
	}
	m.replayBuffer[userID] = newRingBuffer(replayBufferSize)
	store.Subscribe(func(ch readstatus.Change) {
		m.storeReplayEvent(userID, ch.Revision, updateEvent(ch))
	})
}

// storeReplayEvent adds an event to the user's replay ring buffer.
func (m *Manager) storeReplayEvent(userID int64, rev uint64, event Event) {
	m.replayMu.Lock()
	defer m.replayMu.Unlock()

	rb, ok := m.replayBuffer[userID]
	if !ok {
		rb = newRingBuffer(replayBufferSize)
		m.replayBuffer[userID] = rb
	}
	rb.add(rev, event)
}

// replaySince returns the buffered events for revisions after..upTo. It
// reports false unless every revision in that range is present.
func (m *Manager) replaySince(userID int64, after, upTo uint64) ([]Event, bool) {
	if after > upTo {
		return nil, false
	}
	if after == upTo {
		return nil, true
	}

	m.replayMu.Lock()
	defer m.replayMu.Unlock()

	rb, ok := m.replayBuffer[userID]
	if !ok {
		return nil, false
	}

	var events []Event
	next := after + 1
	for _, se := range rb.since(after) {
		if se.Revision > upTo {
			break
		}
		if se.Revision != next {
			return nil, false
		}
		events = append(events, se.Event)
		next++
	}
	if next != upTo+1 {
		return nil, false
	}
	return events, true
}

// sequencedEvent pairs an event with the store revision that produced it.
type sequencedEvent struct {
	Revision uint64
	Event
}

// ringBuffer is a fixed-size circular buffer for replay events.
type ringBuffer struct {
	events []sequencedEvent
	size   int
	pos    int
	full   bool
}

func newRingBuffer(size int) *ringBuffer {
	return &ringBuffer{
		events: make([]sequencedEvent, size),
		size:   size,
	}
}

func (rb *ringBuffer) add(rev uint64, event Event) {
	rb.events[rb.pos] = sequencedEvent{Revision: rev, Event: event}
	rb.pos = (rb.pos + 1) % rb.size
	if rb.pos == 0 {
		rb.full = true
	}
}

// since returns all events with revision > after, oldest first.
func (rb *ringBuffer) since(after uint64) []sequencedEvent {
	var result []sequencedEvent
	count := rb.size
	if !rb.full {
		count = rb.pos
	}

	start := 0
	if rb.full {
		start = rb.pos
	}

	for i := 0; i < count; i++ {
		idx := (start + i) % rb.size
		if rb.events[idx].Revision > after {
			result = append(result, rb.events[idx])
		}
	}
	return result
}
