// Package events defines the session lifecycle events published on the
// in-process event bus.
package events

import "time"

// EventType identifies an event published through the EventBus.
type EventType string

const (
	// Session lifecycle
	EventIdentityGenerated  EventType = "identity_generated"
	EventSessionInitialized EventType = "session_initialized"
	EventSessionReauth      EventType = "session_reauth"
	EventDriftCorrected     EventType = "drift_corrected"
	EventSessionDead        EventType = "session_dead"
	EventProtocolFailure    EventType = "protocol_failure"

	// Background work
	EventSnapshotCollected EventType = "snapshot_collected"
	EventHeartbeat         EventType = "heartbeat"

	// System
	EventShutdown EventType = "shutdown"
)

// Event is a single message on the bus.
type Event struct {
	Type      EventType   `json:"type"`
	Source    string      `json:"source"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// IdentityPayload accompanies EventIdentityGenerated.
type IdentityPayload struct {
	PlayerID string `json:"player_id"`
	Secret   string `json:"-"`
}

// SessionPayload accompanies session lifecycle events.
type SessionPayload struct {
	PlayerID    string `json:"player_id"`
	Action      string `json:"action,omitempty"`
	Status      int    `json:"status,omitempty"`
	StatusName  string `json:"status_name,omitempty"`
	DriftOffset int64  `json:"drift_offset"`
	Attempt     int    `json:"attempt,omitempty"`
}

// SnapshotPayload accompanies EventSnapshotCollected.
type SnapshotPayload struct {
	ID        int64  `json:"id"`
	Kind      string `json:"kind"`
	SubjectID string `json:"subject_id"`
}
