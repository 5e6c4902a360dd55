package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/washdeskhq/washdesk/internal/bus"
	"github.com/washdeskhq/washdesk/internal/config"
	"github.com/washdeskhq/washdesk/internal/identity"
)

// Mailer delivers operational and customer-facing mail.
type Mailer interface {
	SendOperational(ctx context.Context, mail bus.SendOperationalEmail) error
	SendConfirmation(ctx context.Context, mail bus.SendCustomerConfirmation) error
}

// LogMailer renders mail to the structured log instead of delivering it.
// It is the default when no delivery backend is configured, and keeps the
// full pipeline observable in development.
type LogMailer struct {
	cfg config.MailConfig
}

// NewLogMailer creates a log-backed mailer.
func NewLogMailer(cfg config.MailConfig) *LogMailer {
	return &LogMailer{cfg: cfg}
}

func (m *LogMailer) SendOperational(_ context.Context, mail bus.SendOperationalEmail) error {
	to := m.cfg.OperationsAddress
	if mail.Kind == bus.KindTechnician {
		to = m.cfg.TechniciansAddr
	}
	slog.Info("operational email",
		"to", to,
		"from", m.cfg.FromAddress,
		"kind", mail.Kind,
		"ticket", mail.TicketID,
		"subject", mail.Subject,
		"customer", customerLabel(mail.Customer),
		"attachments", len(mail.Attachments),
		"body", oneLine(mail.Payload),
	)
	return nil
}

func (m *LogMailer) SendConfirmation(_ context.Context, mail bus.SendCustomerConfirmation) error {
	if mail.Customer == nil || mail.Customer.Email == "" {
		return fmt.Errorf("confirmation for ticket %s has no recipient", mail.TicketID)
	}
	slog.Info("customer confirmation",
		"to", mail.Customer.Email,
		"from", m.cfg.FromAddress,
		"kind", mail.Kind,
		"ticket", mail.TicketID,
		"summary", oneLine(mail.Summary),
	)
	return nil
}

func customerLabel(c *identity.Customer) string {
	if c == nil {
		return "guest"
	}
	if c.Site != "" {
		return c.Name + " (" + c.Site + ")"
	}
	return c.Name
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
