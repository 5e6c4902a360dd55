// Package dispatch executes the side-effect intents emitted by the dialogue
// core. Execution is fire-and-forget: a failed intent is logged, broadcast
// to ops clients, and never rolls back the session transition that produced
// it.
package dispatch

import (
	"context"
	"log/slog"
	"strings"

	"github.com/washdeskhq/washdesk/internal/bus"
	"github.com/washdeskhq/washdesk/internal/channels"
)

// Ledger appends rows to the service ledger.
type Ledger interface {
	Append(ctx context.Context, row bus.RecordLedgerRow) error
}

// Dispatcher routes intents to their executors.
type Dispatcher struct {
	channels *channels.Manager
	mailer   Mailer
	ledger   Ledger
	events   bus.EventPublisher
}

// New creates a dispatcher. Any dependency may be nil; intents without an
// executor are logged and dropped.
func New(ch *channels.Manager, mailer Mailer, ledger Ledger, events bus.EventPublisher) *Dispatcher {
	return &Dispatcher{channels: ch, mailer: mailer, ledger: ledger, events: events}
}

// Execute runs every intent in order. Errors are logged per intent and do
// not stop the batch.
func (d *Dispatcher) Execute(ctx context.Context, intents []bus.Intent) {
	for _, intent := range intents {
		if err := d.execute(ctx, intent); err != nil {
			slog.Error("intent failed", "intent", intent.IntentName(), "error", err)
			d.broadcast("intent_failed", map[string]string{
				"intent": intent.IntentName(),
				"error":  err.Error(),
			})
		}
	}
}

func (d *Dispatcher) execute(ctx context.Context, intent bus.Intent) error {
	switch it := intent.(type) {
	case bus.SendReply:
		if d.channels == nil {
			slog.Warn("no channel manager, dropping reply", "address", it.Address)
			return nil
		}
		return d.channels.Send(ctx, it.Address, it.Text)

	case bus.SendOperationalEmail:
		if d.mailer == nil {
			slog.Warn("no mailer, dropping operational email", "kind", it.Kind)
			return nil
		}
		if err := d.mailer.SendOperational(ctx, it); err != nil {
			return err
		}
		d.broadcast("operational_email", map[string]string{
			"kind":   string(it.Kind),
			"ticket": it.TicketID,
		})
		return nil

	case bus.SendCustomerConfirmation:
		if d.mailer == nil {
			slog.Warn("no mailer, dropping customer confirmation", "kind", it.Kind)
			return nil
		}
		return d.mailer.SendConfirmation(ctx, it)

	case bus.RecordLedgerRow:
		if d.ledger == nil {
			slog.Warn("no ledger, dropping row", "ticket", it.TicketID)
			return nil
		}
		if err := d.ledger.Append(ctx, it); err != nil {
			return err
		}
		d.broadcast("ledger_row", map[string]interface{}{
			"ticket":   it.TicketID,
			"kind":     string(it.Kind),
			"resolved": it.Resolved,
		})
		return nil

	default:
		slog.Warn("unknown intent", "intent", intent.IntentName())
		return nil
	}
}

func (d *Dispatcher) broadcast(name string, payload interface{}) {
	if d.events == nil {
		return
	}
	d.events.Broadcast(bus.Event{Name: name, Payload: payload})
}

// Preview renders a short log line for a batch, used at debug level.
func Preview(intents []bus.Intent) string {
	names := make([]string, 0, len(intents))
	for _, it := range intents {
		names = append(names, it.IntentName())
	}
	return strings.Join(names, ",")
}
