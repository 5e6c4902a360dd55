// Package store defines the persistence contracts shared by the SQLite and
// Postgres backends. Standalone deployments use a local SQLite file; managed
// deployments share a Postgres database across gateway instances.
package store

import (
	"context"
	"time"

	"github.com/washdeskhq/washdesk/internal/bus"
	"github.com/washdeskhq/washdesk/internal/ticket"
)

// LedgerStore records service-request outcomes for reporting.
type LedgerStore interface {
	Append(ctx context.Context, row bus.RecordLedgerRow) error
	// DayRows returns the rows recorded on the calendar day of t, in
	// insertion order.
	DayRows(ctx context.Context, t time.Time) ([]bus.RecordLedgerRow, error)
}

// Stores is the top-level container for all storage backends.
type Stores struct {
	Tickets ticket.Sequence
	Ledger  LedgerStore

	closer func() error
}

// Close releases the underlying database handle, if any.
func (s *Stores) Close() error {
	if s == nil || s.closer == nil {
		return nil
	}
	return s.closer()
}

// NewStores bundles backends with a shared closer. Used by the backend
// factories; tests may call it with in-memory implementations.
func NewStores(tickets ticket.Sequence, ledger LedgerStore, closer func() error) *Stores {
	return &Stores{Tickets: tickets, Ledger: ledger, closer: closer}
}

// StoreConfig carries everything a backend factory needs.
type StoreConfig struct {
	SQLitePath  string
	PostgresDSN string
	TicketFloor int64
}
