package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/washdeskhq/washdesk/internal/bus"
	"github.com/washdeskhq/washdesk/internal/config"
	"github.com/washdeskhq/washdesk/internal/identity"
)

type fakeMailer struct {
	operational   []bus.SendOperationalEmail
	confirmations []bus.SendCustomerConfirmation
	fail          bool
}

func (m *fakeMailer) SendOperational(_ context.Context, mail bus.SendOperationalEmail) error {
	if m.fail {
		return errors.New("smtp down")
	}
	m.operational = append(m.operational, mail)
	return nil
}

func (m *fakeMailer) SendConfirmation(_ context.Context, mail bus.SendCustomerConfirmation) error {
	m.confirmations = append(m.confirmations, mail)
	return nil
}

type fakeLedger struct {
	rows []bus.RecordLedgerRow
}

func (l *fakeLedger) Append(_ context.Context, row bus.RecordLedgerRow) error {
	l.rows = append(l.rows, row)
	return nil
}

type fakeEvents struct {
	events []bus.Event
}

func (e *fakeEvents) Subscribe(string, bus.EventHandler) {}
func (e *fakeEvents) Unsubscribe(string)                 {}
func (e *fakeEvents) Broadcast(ev bus.Event)             { e.events = append(e.events, ev) }

func TestExecuteRoutesIntents(t *testing.T) {
	mailer := &fakeMailer{}
	ledger := &fakeLedger{}
	events := &fakeEvents{}
	d := New(nil, mailer, ledger, events)

	d.Execute(context.Background(), []bus.Intent{
		bus.SendOperationalEmail{Kind: bus.KindTechnician, TicketID: "SR-5001", Subject: "Technician visit"},
		bus.SendCustomerConfirmation{Kind: bus.KindOrder, TicketID: "SR-5002", Customer: &identity.Customer{Email: "dana@x"}},
		bus.RecordLedgerRow{TicketID: "SR-5001", At: time.Now(), Kind: bus.KindTechnician},
	})

	if len(mailer.operational) != 1 || mailer.operational[0].TicketID != "SR-5001" {
		t.Fatalf("operational mail = %+v", mailer.operational)
	}
	if len(mailer.confirmations) != 1 || mailer.confirmations[0].TicketID != "SR-5002" {
		t.Fatalf("confirmations = %+v", mailer.confirmations)
	}
	if len(ledger.rows) != 1 {
		t.Fatalf("ledger rows = %d, want 1", len(ledger.rows))
	}

	var names []string
	for _, ev := range events.events {
		names = append(names, ev.Name)
	}
	if len(names) != 2 || names[0] != "operational_email" || names[1] != "ledger_row" {
		t.Fatalf("broadcast events = %v", names)
	}
}

func TestExecuteFailureDoesNotStopBatch(t *testing.T) {
	mailer := &fakeMailer{fail: true}
	ledger := &fakeLedger{}
	events := &fakeEvents{}
	d := New(nil, mailer, ledger, events)

	d.Execute(context.Background(), []bus.Intent{
		bus.SendOperationalEmail{Kind: bus.KindTechnician, TicketID: "SR-5001"},
		bus.RecordLedgerRow{TicketID: "SR-5001", Kind: bus.KindTechnician},
	})

	if len(ledger.rows) != 1 {
		t.Fatalf("ledger rows = %d, want 1 after earlier failure", len(ledger.rows))
	}
	if len(events.events) == 0 || events.events[0].Name != "intent_failed" {
		t.Fatalf("expected intent_failed broadcast, got %+v", events.events)
	}
}

func TestLogMailerConfirmationNeedsRecipient(t *testing.T) {
	m := NewLogMailer(config.MailConfig{FromAddress: "bot@washdesk"})
	err := m.SendConfirmation(context.Background(), bus.SendCustomerConfirmation{TicketID: "SR-5003"})
	if err == nil {
		t.Fatal("expected error for missing recipient")
	}
}
