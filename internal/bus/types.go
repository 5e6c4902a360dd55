// Package bus carries normalized events between channel adapters and the
// dialogue runtime, and defines the outbound intents the core emits for
// external execution. The core never performs a side effect itself: it
// returns intents, and the dispatcher executes them.
package bus

import (
	"context"
	"time"

	"github.com/washdeskhq/washdesk/internal/identity"
)

// InboundEvent is a message received from a channel, already normalized by
// the adapter. Attachment retrieval and validation happen before the event
// reaches the core; AttachmentRefs are opaque handles.
type InboundEvent struct {
	Channel        string            `json:"channel"`         // "telegram", "discord", ...
	Address        string            `json:"address"`         // raw channel address (chat/phone id)
	SenderName     string            `json:"sender_name,omitempty"`
	Text           string            `json:"text"`
	AttachmentRefs []string          `json:"attachment_refs,omitempty"`
	MessageID      string            `json:"message_id"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// IdentityKey builds the session key for an event: {channel}:{address}.
func (e InboundEvent) IdentityKey() string {
	return e.Channel + ":" + e.Address
}

// RequestKind tags the flavour of an operational side effect.
type RequestKind string

const (
	KindTechnician    RequestKind = "technician"
	KindOrder         RequestKind = "order"
	KindDamage        RequestKind = "damage"
	KindTraining      RequestKind = "training"
	KindGeneralOffice RequestKind = "general_office"
	KindSummary       RequestKind = "summary"
	KindGuest         RequestKind = "guest"
)

// Intent is a side-effect request emitted by the core. The dispatcher
// executes intents fire-and-forget; a failed intent is logged and never
// rolls back the state transition that produced it.
type Intent interface {
	IntentName() string
}

// SendReply delivers text back to the conversation.
type SendReply struct {
	Address string // identity key ({channel}:{address})
	Text    string
}

func (SendReply) IntentName() string { return "send_reply" }

// SendOperationalEmail notifies the operations side (technician dispatch,
// order desk, office) about a request. Rendering and delivery live outside
// the core, behind the dispatcher's Mailer.
type SendOperationalEmail struct {
	Kind        RequestKind
	Customer    *identity.Customer // nil for guest requests
	TicketID    string
	Subject     string
	Payload     string
	Attachments []string
}

func (SendOperationalEmail) IntentName() string { return "send_operational_email" }

// SendCustomerConfirmation acknowledges an accepted request to the customer
// out-of-band (email), with the issued ticket id.
type SendCustomerConfirmation struct {
	Kind     RequestKind
	Customer *identity.Customer
	TicketID string
	Summary  string
}

func (SendCustomerConfirmation) IntentName() string { return "send_customer_confirmation" }

// RecordLedgerRow appends one row to the service ledger.
type RecordLedgerRow struct {
	TicketID     string
	At           time.Time
	Kind         RequestKind
	CustomerName string
	Summary      string
	Resolved     bool
}

func (RecordLedgerRow) IntentName() string { return "record_ledger_row" }

// Event is a server-side event broadcast to ops WebSocket clients.
type Event struct {
	Name    string      `json:"name"`
	Payload interface{} `json:"payload,omitempty"`
}

// EventHandler handles a broadcast event.
type EventHandler func(Event)

// EventPublisher abstracts event broadcast + subscription, decoupling the
// gateway server and the runtime from the concrete MessageBus.
type EventPublisher interface {
	Subscribe(id string, handler EventHandler)
	Unsubscribe(id string)
	Broadcast(event Event)
}

// InboundRouter abstracts inbound event flow between channels and the
// dialogue runtime.
type InboundRouter interface {
	PublishInbound(ev InboundEvent)
	ConsumeInbound(ctx context.Context) (InboundEvent, bool)
}
