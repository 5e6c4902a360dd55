// Package protocol defines the frames pushed to ops WebSocket clients.
package protocol

import "time"

// ProtocolVersion is bumped when the frame layout changes.
const ProtocolVersion = 1

// WebSocket event names pushed from server to client.
const (
	EventSessionUpdated   = "session.updated"
	EventSessionSwept     = "session.swept"
	EventEscalationFired  = "escalation.fired"
	EventOperationalEmail = "operational_email"
	EventLedgerRow        = "ledger_row"
	EventIntentFailed     = "intent_failed"
	EventSummarySent      = "summary.sent"
	EventCatalogReloaded  = "catalog.reloaded"
	EventShutdown         = "shutdown"
)

// EventFrame is one server-to-client push.
type EventFrame struct {
	Type    string      `json:"type"` // always "event"
	Event   string      `json:"event"`
	Payload interface{} `json:"payload,omitempty"`
	Ts      int64       `json:"ts"`
}

// NewEvent builds an EventFrame stamped with the current time.
func NewEvent(name string, payload interface{}) *EventFrame {
	return &EventFrame{
		Type:    "event",
		Event:   name,
		Payload: payload,
		Ts:      time.Now().UnixMilli(),
	}
}
