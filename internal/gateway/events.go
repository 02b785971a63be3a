package gateway

import (
	"encoding/json"

	"github.com/Phambanam99/qlvb-thanh-sub004/internal/readstatus"
)

// Op codes for gateway payloads.
const (
	OpDispatch     = 0
	OpHeartbeat    = 1
	OpIdentify     = 2
	OpResume       = 6
	OpReconnect    = 7
	OpHello        = 10
	OpHeartbeatAck = 11
)

// Event names for DISPATCH payloads.
const (
	EventReady            = "READY"
	EventReadStatusUpdate = "READ_STATUS_UPDATE"
	EventReadStatusSync   = "READ_STATUS_SYNC"
)

// GatewayPayload is the envelope for all gateway messages.
type GatewayPayload struct {
	Op       int             `json:"op"`
	Data     json.RawMessage `json:"d,omitempty"`
	Sequence *int64          `json:"s,omitempty"`
	Event    *string         `json:"t,omitempty"`
}

// IdentifyData is sent by the client in an Op 2 IDENTIFY.
type IdentifyData struct {
	Token string `json:"token"`
}

// ResumeData is sent by the client in an Op 6 RESUME. Revision is the last
// store revision the client applied.
type ResumeData struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	Revision  uint64 `json:"revision"`
}

// HelloData is sent by the server after WebSocket connect.
type HelloData struct {
	HeartbeatInterval int `json:"heartbeat_interval"`
}

// ReadyData is sent by the server after successful IDENTIFY.
type ReadyData struct {
	SessionID    string             `json:"session_id"`
	UserID       int64              `json:"user_id,string"`
	Revision     uint64             `json:"revision"`
	ReadStatuses []readstatus.Entry `json:"read_statuses"`
}

// ReadStatusUpdateData carries the entries written by one store mutation.
type ReadStatusUpdateData struct {
	Revision uint64             `json:"revision"`
	Entries  []readstatus.Entry `json:"entries"`
}

// ReadStatusSyncData replaces the client's whole view when replay is not possible.
type ReadStatusSyncData struct {
	Revision     uint64             `json:"revision"`
	ReadStatuses []readstatus.Entry `json:"read_statuses"`
}

// Event is a dispatch event ready to send.
type Event struct {
	Name string
	Data any
}

func updateEvent(c readstatus.Change) Event {
	return Event{
		Name: EventReadStatusUpdate,
		Data: ReadStatusUpdateData{Revision: c.Revision, Entries: c.Entries},
	}
}

// mustMarshal encodes payload data whose types always marshal.
func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic("gateway: marshal " + err.Error())
	}
	return data
}
